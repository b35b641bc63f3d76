package relay

import (
	"reflect"
	"testing"
	"time"
)

// newTestHistory returns a history with a deterministic clock that advances
// one millisecond per Append.
func newTestHistory(limit int) *History {
	h := NewHistory(limit)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var tick int64
	h.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	return h
}

// TestAppendAssignsAscendingIDs verifies that ids are unique and strictly
// increasing across appends.
func TestAppendAssignsAscendingIDs(t *testing.T) {
	h := newTestHistory(20)

	var last int64
	for i := 0; i < 5; i++ {
		msg := h.Append("device-a", "Ana", "hola")
		if msg.ID <= last {
			t.Fatalf("id %d not greater than previous %d", msg.ID, last)
		}
		last = msg.ID
	}
}

// TestAppendMonotonicWhenClockStalls verifies id uniqueness even when the
// clock returns the same millisecond twice.
func TestAppendMonotonicWhenClockStalls(t *testing.T) {
	h := NewHistory(20)
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return frozen }

	first := h.Append("device-a", "Ana", "uno")
	second := h.Append("device-a", "Ana", "dos")

	if second.ID != first.ID+1 {
		t.Errorf("expected stalled-clock id %d, got %d", first.ID+1, second.ID)
	}
}

// TestAppendAllowsEmptyText verifies the accepted quirk that empty text
// flows through unvalidated.
func TestAppendAllowsEmptyText(t *testing.T) {
	h := newTestHistory(20)

	msg := h.Append("device-a", "Ana", "")
	if msg == nil || msg.Text != "" {
		t.Fatalf("empty text did not flow through: %+v", msg)
	}
	if h.Len() != 1 {
		t.Errorf("expected 1 retained message, got %d", h.Len())
	}
}

// TestEvictionKeepsNewestTwenty verifies the capacity bound: appending 21
// messages leaves exactly the 2nd through 21st, in order.
func TestEvictionKeepsNewestTwenty(t *testing.T) {
	h := newTestHistory(20)

	ids := make([]int64, 0, 21)
	for i := 0; i < 21; i++ {
		ids = append(ids, h.Append("device-a", "Ana", "msg").ID)
	}

	snap := h.Snapshot()
	if len(snap) != 20 {
		t.Fatalf("expected 20 retained messages, got %d", len(snap))
	}
	for i, msg := range snap {
		if msg.ID != ids[i+1] {
			t.Fatalf("position %d: expected id %d, got %d", i, ids[i+1], msg.ID)
		}
	}
	if h.find(ids[0]) != nil {
		t.Errorf("oldest message %d still retained after eviction", ids[0])
	}
}

// TestToggleReactionOnOff verifies that toggling the same reaction kind
// twice by the same device restores the original state, and that the kind
// survives as an empty set.
func TestToggleReactionOnOff(t *testing.T) {
	h := newTestHistory(20)
	msg := h.Append("device-a", "Ana", "hola")

	updated, ok := h.ToggleReaction(msg.ID, "❤️", "device-b")
	if !ok {
		t.Fatal("toggle-on reported NotFound")
	}
	if got := updated.Reactions["❤️"]; !reflect.DeepEqual(got, []string{"device-b"}) {
		t.Fatalf("expected [device-b], got %v", got)
	}

	updated, ok = h.ToggleReaction(msg.ID, "❤️", "device-b")
	if !ok {
		t.Fatal("toggle-off reported NotFound")
	}
	set, exists := updated.Reactions["❤️"]
	if !exists {
		t.Error("reaction kind deleted after toggle-off; expected empty set")
	}
	if len(set) != 0 {
		t.Errorf("expected empty reaction set, got %v", set)
	}
}

// TestToggleReactionDistinctDevices verifies independent toggles per device.
func TestToggleReactionDistinctDevices(t *testing.T) {
	h := newTestHistory(20)
	msg := h.Append("device-a", "Ana", "hola")

	h.ToggleReaction(msg.ID, "❤️", "device-b")
	h.ToggleReaction(msg.ID, "❤️", "device-c")
	updated, _ := h.ToggleReaction(msg.ID, "❤️", "device-b")

	if got := updated.Reactions["❤️"]; !reflect.DeepEqual(got, []string{"device-c"}) {
		t.Errorf("expected [device-c] after device-b toggled off, got %v", got)
	}
}

// TestToggleReactionUnknownMessage verifies the NotFound path.
func TestToggleReactionUnknownMessage(t *testing.T) {
	h := newTestHistory(20)
	h.Append("device-a", "Ana", "hola")

	if _, ok := h.ToggleReaction(99999, "❤️", "device-b"); ok {
		t.Error("toggle on an unknown message id reported success")
	}
}

// TestRewriteUsernameOnlyMatchingDevice verifies the retroactive rename:
// every entry by the device is rewritten, everything else is untouched, and
// ids and text never change.
func TestRewriteUsernameOnlyMatchingDevice(t *testing.T) {
	h := newTestHistory(20)
	m1 := h.Append("device-a", "Ana", "hola")
	m2 := h.Append("device-b", "Luis", "buenas")
	m3 := h.Append("device-a", "Ana", "que tal")

	if changed := h.RewriteUsername("device-a", "Anita"); changed != 2 {
		t.Fatalf("expected 2 rewritten entries, got %d", changed)
	}

	snap := h.Snapshot()
	if snap[0].Username != "Anita" || snap[2].Username != "Anita" {
		t.Errorf("device-a entries not rewritten: %q, %q", snap[0].Username, snap[2].Username)
	}
	if snap[1].Username != "Luis" {
		t.Errorf("unrelated entry rewritten to %q", snap[1].Username)
	}
	if snap[0].ID != m1.ID || snap[1].ID != m2.ID || snap[2].ID != m3.ID {
		t.Error("rewrite changed message ids")
	}
	if snap[0].Text != "hola" || snap[2].Text != "que tal" {
		t.Error("rewrite changed message text")
	}
}

// TestSnapshotOrder verifies oldest-first ordering and that an empty
// history yields an empty, non-nil slice.
func TestSnapshotOrder(t *testing.T) {
	h := newTestHistory(20)

	if snap := h.Snapshot(); snap == nil || len(snap) != 0 {
		t.Fatalf("empty history snapshot should be an empty slice, got %v", snap)
	}

	h.Append("device-a", "Ana", "uno")
	h.Append("device-b", "Luis", "dos")

	snap := h.Snapshot()
	if snap[0].Text != "uno" || snap[1].Text != "dos" {
		t.Errorf("snapshot out of order: %q, %q", snap[0].Text, snap[1].Text)
	}
}
