package relay

import (
	"reflect"
	"testing"
)

// TestJoinCreatesSession verifies that the first join for a device creates
// a session holding the display name and the connection.
func TestJoinCreatesSession(t *testing.T) {
	r := NewSessionRegistry()

	r.Join("device-a", "Ana", "conn-1")

	if r.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", r.Len())
	}
	name, ok := r.Name("device-a")
	if !ok || name != "Ana" {
		t.Errorf("expected name Ana, got %q (ok=%v)", name, ok)
	}
}

// TestJoinLastWriteWinsAcrossTabs verifies that joins from multiple
// connections under the same device collapse into one session whose name is
// the most recently applied value.
func TestJoinLastWriteWinsAcrossTabs(t *testing.T) {
	r := NewSessionRegistry()

	r.Join("device-a", "Ana", "conn-1")
	r.Join("device-a", "Anita", "conn-2")
	r.Join("device-a", "Ana Maria", "conn-3")

	if r.Len() != 1 {
		t.Fatalf("expected 1 session for 3 tabs, got %d", r.Len())
	}
	if name, _ := r.Name("device-a"); name != "Ana Maria" {
		t.Errorf("expected last-write-wins name 'Ana Maria', got %q", name)
	}
	if got := r.Usernames(); !reflect.DeepEqual(got, []string{"Ana Maria"}) {
		t.Errorf("expected single presence entry, got %v", got)
	}
}

// TestLeaveKeepsSessionWhileTabsRemain verifies that dropping one of
// several connections mutates the session but keeps it alive.
func TestLeaveKeepsSessionWhileTabsRemain(t *testing.T) {
	r := NewSessionRegistry()
	r.Join("device-a", "Ana", "conn-1")
	r.Join("device-a", "Ana", "conn-2")

	if changed := r.Leave("device-a", "conn-1"); !changed {
		t.Error("expected leave of a live connection to report a mutation")
	}
	if r.Len() != 1 {
		t.Fatalf("session destroyed while a connection remained")
	}
	if name, ok := r.Name("device-a"); !ok || name != "Ana" {
		t.Errorf("surviving session lost its name: %q (ok=%v)", name, ok)
	}
}

// TestLeaveDestroysSessionOnLastConnection verifies the session lifecycle
// invariant: a session exists iff at least one connection is live.
func TestLeaveDestroysSessionOnLastConnection(t *testing.T) {
	r := NewSessionRegistry()
	r.Join("device-a", "Ana", "conn-1")

	if changed := r.Leave("device-a", "conn-1"); !changed {
		t.Error("expected leave to report a mutation")
	}
	if r.Len() != 0 {
		t.Fatalf("expected session to be destroyed, %d remain", r.Len())
	}
	if got := r.Usernames(); len(got) != 0 {
		t.Errorf("presence still lists %v after last connection left", got)
	}
}

// TestLeaveUnknownConnection verifies that a connection disconnecting
// before joining, or twice, is a no-op.
func TestLeaveUnknownConnection(t *testing.T) {
	r := NewSessionRegistry()
	r.Join("device-a", "Ana", "conn-1")

	if r.Leave("device-b", "conn-9") {
		t.Error("leave of an unknown device reported a mutation")
	}
	if r.Leave("device-a", "conn-9") {
		t.Error("leave of an unknown connection reported a mutation")
	}
	if r.Len() != 1 {
		t.Errorf("no-op leaves changed the registry")
	}
}

// TestRenameUnknownDeviceIgnored verifies the silent-ignore contract for
// renames targeting devices with no live session.
func TestRenameUnknownDeviceIgnored(t *testing.T) {
	r := NewSessionRegistry()

	if r.Rename("device-ghost", "Nadie") {
		t.Error("rename of an unknown device reported success")
	}

	r.Join("device-a", "Ana", "conn-1")
	if !r.Rename("device-a", "Anita") {
		t.Fatal("rename of a live session failed")
	}
	if name, _ := r.Name("device-a"); name != "Anita" {
		t.Errorf("expected renamed session, got %q", name)
	}
}

// TestUsernamesJoinOrderAndDuplicates verifies that presence lists one
// entry per device in join order and does not deduplicate identical names
// across devices.
func TestUsernamesJoinOrderAndDuplicates(t *testing.T) {
	r := NewSessionRegistry()
	r.Join("device-a", "Ana", "conn-1")
	r.Join("device-b", "Luis", "conn-2")
	r.Join("device-c", "Ana", "conn-3")
	r.Join("device-a", "Ana", "conn-4")

	got := r.Usernames()
	want := []string{"Ana", "Luis", "Ana"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
