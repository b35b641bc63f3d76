// Package relay defines the JSON wire protocol spoken over the WebSocket:
// named events wrapped in a small envelope, matching the browser client's
// socket.io-era event names one to one.
package relay

import (
	"encoding/json"
	"fmt"
)

// Events consumed from a connection.
const (
	EventJoin           = "join"
	EventSendMessage    = "send_message"
	EventReactMessage   = "react_message"
	EventTyping         = "typing"
	EventStopTyping     = "stop_typing"
	EventChangeUsername = "change_username"
)

// Events produced toward connections.
const (
	EventChatHistory    = "chat_history"
	EventReceiveMessage = "receive_message"
	EventMessageUpdated = "message_updated"
	EventRefreshHistory = "refresh_history"
	EventUpdateUsers    = "update_users"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"
)

// Envelope is the JSON frame exchanged in both directions: an event name
// plus its raw payload, decoded further once the event is known.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// sendMessagePayload carries a new chat message from a client.
type sendMessagePayload struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

// reactMessagePayload identifies the message and reaction kind to toggle.
// The deviceId field is only trusted for connections that never joined;
// joined connections react as their bound device.
type reactMessagePayload struct {
	MessageID int64  `json:"messageId"`
	Reaction  string `json:"reaction"`
	DeviceID  string `json:"deviceId"`
}

// typingPayload is fanned out to every device except the one composing.
type typingPayload struct {
	Username string `json:"username,omitempty"`
	DeviceID string `json:"deviceId"`
}

// joinRequest is the normalized form of the join payload. On the wire it is
// a tagged variant: an object {username, deviceId} from current clients, or
// a bare string username from legacy ones.
type joinRequest struct {
	Username            string
	DeviceID            string
	DeviceIDSynthesized bool
}

// parseJoinRequest normalizes the duck-typed join payload. A missing
// deviceId is synthesized from the connection id, making the device
// effectively unique per connection: no cross-tab merging for that client,
// but never a hard failure.
func parseJoinRequest(data json.RawMessage, connID string) (joinRequest, error) {
	var req joinRequest

	var legacy string
	if err := json.Unmarshal(data, &legacy); err == nil {
		req.Username = legacy
	} else {
		var obj struct {
			Username string `json:"username"`
			DeviceID string `json:"deviceId"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return req, fmt.Errorf("join payload is neither a string nor an object: %w", err)
		}
		req.Username = obj.Username
		req.DeviceID = obj.DeviceID
	}

	if req.DeviceID == "" {
		req.DeviceID = "legacy_" + connID
		req.DeviceIDSynthesized = true
	}
	return req, nil
}

// encodeEvent marshals an outbound event into its envelope frame.
func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
