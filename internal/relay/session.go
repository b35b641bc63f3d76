// Package relay tracks device sessions: the live binding between a stable
// per-browser device identifier and its display name plus connection set.
package relay

import "sort"

// deviceSession binds one device identity to its current display name and
// the live connections sharing it. Every tab of one browser collapses into
// a single session with a single name.
type deviceSession struct {
	name  string
	conns map[string]struct{}
	seq   uint64
}

// SessionRegistry holds the live device sessions. A session exists exactly
// while at least one of its connections is live. Like History, the registry
// carries no lock: the hub's event loop is its sole owner.
type SessionRegistry struct {
	sessions map[string]*deviceSession
	nextSeq  uint64
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*deviceSession)}
}

// Join binds connID to the session for deviceID, creating the session on
// first contact. The display name always takes the incoming value; last
// write wins across all tabs of the device. Join cannot fail.
func (r *SessionRegistry) Join(deviceID, name, connID string) {
	s, ok := r.sessions[deviceID]
	if !ok {
		s = &deviceSession{conns: make(map[string]struct{}), seq: r.nextSeq}
		r.nextSeq++
		r.sessions[deviceID] = s
	}
	s.name = name
	s.conns[connID] = struct{}{}
}

// Leave drops connID from deviceID's session and destroys the session when
// its connection set becomes empty. It reports whether a session was found
// and mutated, which is what decides a presence broadcast. A connection
// that disconnects before joining is a no-op.
func (r *SessionRegistry) Leave(deviceID, connID string) bool {
	s, ok := r.sessions[deviceID]
	if !ok {
		return false
	}
	if _, ok := s.conns[connID]; !ok {
		return false
	}
	delete(s.conns, connID)
	if len(s.conns) == 0 {
		delete(r.sessions, deviceID)
	}
	return true
}

// Rename sets the display name of deviceID's session. Unknown devices are
// reported as false so the caller can drop the rename; the observed
// contract is silent-ignore, not an error.
func (r *SessionRegistry) Rename(deviceID, newName string) bool {
	s, ok := r.sessions[deviceID]
	if !ok {
		return false
	}
	s.name = newName
	return true
}

// Name returns the current display name bound to deviceID.
func (r *SessionRegistry) Name(deviceID string) (string, bool) {
	s, ok := r.sessions[deviceID]
	if !ok {
		return "", false
	}
	return s.name, true
}

// Usernames lists the display names of all live sessions in join order, one
// entry per device regardless of how many tabs it has open. Identical names
// on different devices are not deduplicated.
func (r *SessionRegistry) Usernames() []string {
	type entry struct {
		seq  uint64
		name string
	}
	entries := make([]entry, 0, len(r.sessions))
	for _, s := range r.sessions {
		entries = append(entries, entry{s.seq, s.name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int { return len(r.sessions) }
