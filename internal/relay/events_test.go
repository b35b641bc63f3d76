package relay

import (
	"encoding/json"
	"testing"
)

// TestParseJoinRequestObject verifies the current-client payload shape.
func TestParseJoinRequestObject(t *testing.T) {
	req, err := parseJoinRequest(json.RawMessage(`{"username":"Ana","deviceId":"device-a"}`), "conn-1")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if req.Username != "Ana" || req.DeviceID != "device-a" {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.DeviceIDSynthesized {
		t.Error("deviceId flagged as synthesized despite being supplied")
	}
}

// TestParseJoinRequestLegacyString verifies the legacy bare-string payload:
// the device identity is synthesized from the connection id.
func TestParseJoinRequestLegacyString(t *testing.T) {
	req, err := parseJoinRequest(json.RawMessage(`"Ana"`), "conn-1")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if req.Username != "Ana" {
		t.Errorf("expected username Ana, got %q", req.Username)
	}
	if req.DeviceID != "legacy_conn-1" {
		t.Errorf("expected synthesized device legacy_conn-1, got %q", req.DeviceID)
	}
	if !req.DeviceIDSynthesized {
		t.Error("synthesized deviceId not flagged")
	}
}

// TestParseJoinRequestMissingDeviceID verifies synthesis when the object
// form omits the deviceId.
func TestParseJoinRequestMissingDeviceID(t *testing.T) {
	req, err := parseJoinRequest(json.RawMessage(`{"username":"Ana"}`), "conn-7")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if req.DeviceID != "legacy_conn-7" || !req.DeviceIDSynthesized {
		t.Errorf("expected synthesized device, got %+v", req)
	}
}

// TestParseJoinRequestMalformed verifies that a payload that is neither a
// string nor an object is rejected without panicking.
func TestParseJoinRequestMalformed(t *testing.T) {
	if _, err := parseJoinRequest(json.RawMessage(`[1,2,3]`), "conn-1"); err == nil {
		t.Error("expected an error for an array payload")
	}
}

// TestEncodeEventRoundTrip verifies the outbound envelope shape.
func TestEncodeEventRoundTrip(t *testing.T) {
	payload, err := encodeEvent(EventUpdateUsers, []string{"Ana", "Luis"})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("envelope does not round-trip: %v", err)
	}
	if env.Event != EventUpdateUsers {
		t.Errorf("expected event %q, got %q", EventUpdateUsers, env.Event)
	}

	var names []string
	if err := json.Unmarshal(env.Data, &names); err != nil {
		t.Fatalf("payload does not round-trip: %v", err)
	}
	if len(names) != 2 || names[0] != "Ana" {
		t.Errorf("unexpected payload: %v", names)
	}
}
