// Package relay keeps the bounded chat history: a FIFO log of messages
// whose reaction maps and author names are the only fields ever rewritten.
package relay

import "time"

// ChatMessage is one entry in the rolling chat log. Text, author device and
// timestamp are fixed at creation; the reaction map and the author name are
// rewritten in place afterwards, nothing else ever changes. The JSON shape
// is what the browser client renders directly.
type ChatMessage struct {
	ID        int64               `json:"id"`
	Username  string              `json:"username"`
	Text      string              `json:"text"`
	Timestamp time.Time           `json:"timestamp"`
	DeviceID  string              `json:"deviceId"`
	Reactions map[string][]string `json:"reactions"`
}

// History is the bounded FIFO log of chat messages. It has no lock of its
// own: the hub's event loop is the single owner and serialization point for
// all chat state, and nothing else may hold a mutable reference.
type History struct {
	messages []*ChatMessage
	limit    int
	lastID   int64
	now      func() time.Time
}

// NewHistory creates an empty log holding at most limit messages.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &History{limit: limit, now: time.Now}
}

// Append creates a message authored by deviceID, assigns it a unique
// ascending id and the current timestamp, and evicts the eldest entry once
// the log exceeds its capacity. Empty or whitespace-only text flows through
// untouched; the relay never validated message bodies and clients rely on
// that.
func (h *History) Append(deviceID, username, text string) *ChatMessage {
	ts := h.now()
	id := ts.UnixMilli()
	if id <= h.lastID {
		id = h.lastID + 1
	}
	h.lastID = id

	msg := &ChatMessage{
		ID:        id,
		Username:  username,
		Text:      text,
		Timestamp: ts,
		DeviceID:  deviceID,
		Reactions: make(map[string][]string),
	}
	h.messages = append(h.messages, msg)
	if len(h.messages) > h.limit {
		h.messages = h.messages[1:]
	}
	return msg
}

// ToggleReaction flips deviceID's reaction of the given kind on the message
// with the given id: present means remove, absent means add. Toggling the
// last reactor off leaves an empty set behind rather than deleting the kind.
// Returns false when the message is no longer retained.
func (h *History) ToggleReaction(messageID int64, reaction, deviceID string) (*ChatMessage, bool) {
	msg := h.find(messageID)
	if msg == nil {
		return nil, false
	}
	set := msg.Reactions[reaction]
	for i, id := range set {
		if id == deviceID {
			msg.Reactions[reaction] = append(set[:i], set[i+1:]...)
			return msg, true
		}
	}
	msg.Reactions[reaction] = append(set, deviceID)
	return msg, true
}

// RewriteUsername stamps newName onto every retained message authored by
// deviceID and reports how many entries changed. Ids, text, timestamps and
// ordering are untouched.
func (h *History) RewriteUsername(deviceID, newName string) int {
	changed := 0
	for _, msg := range h.messages {
		if msg.DeviceID == deviceID {
			msg.Username = newName
			changed++
		}
	}
	return changed
}

// Snapshot returns the retained messages, oldest first, for replay to a
// newly joined connection or a full-history broadcast.
func (h *History) Snapshot() []*ChatMessage {
	out := make([]*ChatMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of retained messages.
func (h *History) Len() int { return len(h.messages) }

func (h *History) find(id int64) *ChatMessage {
	for _, msg := range h.messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}
