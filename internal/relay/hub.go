// Package relay coordinates connection registration, event dispatch, and
// state broadcast for the listener chat via the Hub type.
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// sinkTimeout bounds one fire-and-forget publish to the external sink.
const sinkTimeout = 2 * time.Second

// inboundEvent pairs a decoded frame with the connection that produced it.
type inboundEvent struct {
	client   *Client
	envelope Envelope
}

// Hub is the relay's single event-processing stream. The goroutine running
// Run exclusively owns the connected-clients set, the device session
// registry and the message history; every mutation of chat state happens on
// that goroutine, which is what gives the relay its ordering and atomicity
// guarantees. Everything else talks to the hub over channels.
type Hub struct {
	cfg Config

	clients  map[*Client]bool
	registry *SessionRegistry
	history  *History

	register   chan *Client
	unregister chan *Client
	events     chan inboundEvent

	origins *originPolicy
	sink    MessageSink
	log     *zap.SugaredLogger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub from the given configuration. A nil config means
// defaults; a nil sink disables external mirroring; a nil logger discards
// all output. The returned hub is inert until Run is started.
func NewHub(cfg *Config, sink MessageSink, log *zap.SugaredLogger) *Hub {
	resolved := defaultConfig()
	if cfg != nil {
		resolved = cfg.sanitized()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        resolved,
		clients:    make(map[*Client]bool),
		registry:   NewSessionRegistry(),
		history:    NewHistory(resolved.HistoryLimit),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan inboundEvent),
		origins:    newOriginPolicy(resolved.AllowedOrigins, log),
		sink:       sink,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It must be started exactly once, in its own
// goroutine, and runs until Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration; skipping")
				continue
			}
			client.closed = false
			h.clients[client] = true
			h.log.Infof("connection %s registered from %s (%d live)", client.id, client.addr, len(h.clients))

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.dropClient(client)

		case ev := <-h.events:
			h.dispatch(ev.client, ev.envelope)
		}
	}
}

// dropClient removes a connection from the hub and, if it was joined,
// releases its slot in the device session. The disconnect is terminal; the
// client object is discarded.
func (h *Hub) dropClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.closed = true
	close(c.send)
	h.log.Infof("connection %s from %s closed (%d live)", c.id, c.addr, len(h.clients))

	if c.joined && h.registry.Leave(c.deviceID, c.id) {
		h.broadcastPresence()
	}
}

// dispatch routes one inbound event. Malformed or out-of-state events are
// dropped; no event from a single connection can take the relay down.
func (h *Hub) dispatch(c *Client, env Envelope) {
	switch env.Event {
	case EventJoin:
		h.handleJoin(c, env.Data)
	case EventSendMessage:
		h.handleSendMessage(c, env.Data)
	case EventReactMessage:
		h.handleReactMessage(c, env.Data)
	case EventTyping:
		h.handleTyping(c)
	case EventStopTyping:
		h.handleStopTyping(c)
	case EventChangeUsername:
		h.handleChangeUsername(c, env.Data)
	default:
		h.log.Debugf("connection %s sent unknown event %q; dropping", c.id, env.Event)
	}
}

func (h *Hub) handleJoin(c *Client, data json.RawMessage) {
	req, err := parseJoinRequest(data, c.id)
	if err != nil {
		h.log.Warnf("connection %s sent malformed join payload: %v", c.id, err)
		return
	}
	if req.DeviceIDSynthesized {
		h.log.Infof("connection %s joined without a deviceId; using %s", c.id, req.DeviceID)
	}

	h.registry.Join(req.DeviceID, req.Username, c.id)
	c.deviceID = req.DeviceID
	c.joined = true

	h.log.Infof("%s joined (device %s); replaying %d messages", req.Username, req.DeviceID, h.history.Len())
	h.unicast(c, EventChatHistory, h.history.Snapshot())
	h.broadcastPresence()
}

func (h *Hub) handleSendMessage(c *Client, data json.RawMessage) {
	if !c.joined {
		h.log.Debugf("connection %s sent a message before joining; dropping", c.id)
		return
	}

	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.log.Warnf("connection %s sent malformed message payload: %v", c.id, err)
		return
	}

	// The author name is the session's current display name, not whatever
	// the payload claims; stale tabs would otherwise undo a rename.
	name, ok := h.registry.Name(c.deviceID)
	if !ok {
		name = payload.Username
	}

	msg := h.history.Append(c.deviceID, name, payload.Text)
	h.log.Infof("message from %s (%d retained)", name, h.history.Len())
	h.broadcast(EventReceiveMessage, msg)
	h.publishToSink(msg)
}

func (h *Hub) handleReactMessage(c *Client, data json.RawMessage) {
	var payload reactMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.log.Warnf("connection %s sent malformed reaction payload: %v", c.id, err)
		return
	}

	deviceID := payload.DeviceID
	if c.joined {
		deviceID = c.deviceID
	}
	if deviceID == "" {
		h.log.Debugf("connection %s reacted with no device identity; dropping", c.id)
		return
	}

	msg, ok := h.history.ToggleReaction(payload.MessageID, payload.Reaction, deviceID)
	if !ok {
		h.log.Debugf("reaction for unknown message %d; dropping", payload.MessageID)
		return
	}
	h.broadcast(EventMessageUpdated, msg)
}

func (h *Hub) handleTyping(c *Client) {
	if !c.joined {
		return
	}
	name, _ := h.registry.Name(c.deviceID)
	h.broadcastExceptDevice(c.deviceID, EventUserTyping, typingPayload{Username: name, DeviceID: c.deviceID})
}

func (h *Hub) handleStopTyping(c *Client) {
	if !c.joined {
		return
	}
	h.broadcastExceptDevice(c.deviceID, EventUserStopTyping, typingPayload{DeviceID: c.deviceID})
}

func (h *Hub) handleChangeUsername(c *Client, data json.RawMessage) {
	var newName string
	if err := json.Unmarshal(data, &newName); err != nil {
		h.log.Warnf("connection %s sent malformed rename payload: %v", c.id, err)
		return
	}

	if !c.joined || !h.registry.Rename(c.deviceID, newName) {
		h.log.Debugf("rename on connection %s targets no live session; dropping", c.id)
		return
	}

	changed := h.history.RewriteUsername(c.deviceID, newName)
	h.log.Infof("device %s renamed to %s; rewrote %d history entries", c.deviceID, newName, changed)
	h.broadcast(EventRefreshHistory, h.history.Snapshot())
	h.broadcastPresence()
}

// publishToSink mirrors an appended message to the external sink. The
// payload is marshaled on the event loop (the message may be mutated by
// later reactions) but the network call runs in its own goroutine; sink
// failure is logged and otherwise invisible to chat.
func (h *Hub) publishToSink(msg *ChatMessage) {
	if h.sink == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Warnf("sink payload marshal failed: %v", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		if err := h.sink.PublishMessage(ctx, payload); err != nil {
			h.log.Warnf("sink publish failed: %v", err)
		}
	}()
}

// broadcastPresence pushes the current display-name list to everyone.
func (h *Hub) broadcastPresence() {
	h.broadcast(EventUpdateUsers, h.registry.Usernames())
}

func (h *Hub) broadcast(event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		h.log.Errorf("encoding %s event: %v", event, err)
		return
	}
	h.fanOut(payload, "")
}

func (h *Hub) broadcastExceptDevice(deviceID, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		h.log.Errorf("encoding %s event: %v", event, err)
		return
	}
	h.fanOut(payload, deviceID)
}

func (h *Hub) unicast(c *Client, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		h.log.Errorf("encoding %s event: %v", event, err)
		return
	}
	if !h.send(c, payload) {
		h.dropClient(c)
	}
}

// fanOut delivers payload to every live connection, skipping connections
// bound to excludeDevice. Connections with a full send buffer are dropped.
func (h *Hub) fanOut(payload []byte, excludeDevice string) {
	var failed []*Client
	for client := range h.clients {
		if excludeDevice != "" && client.deviceID == excludeDevice {
			continue
		}
		if !h.send(client, payload) {
			failed = append(failed, client)
		}
	}
	for _, client := range failed {
		h.log.Warnf("connection %s from %s dropped: send buffer full", client.id, client.addr)
		h.dropClient(client)
	}
}

// send enqueues payload for one connection. Only ever called from the event
// loop, so the clients map and the closed flag need no lock.
func (h *Hub) send(c *Client, payload []byte) bool {
	if _, ok := h.clients[c]; !ok || c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// shutdownClients closes all active client connections so the pump
// goroutines unwind.
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	count := 0
	for client := range h.clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warnf("closing connection %s: %v", client.id, err)
			}
		}
		count++
	}

	h.log.Infof("closed %d client connections", count)
}

// Shutdown stops the event loop, closes every connection, and waits for all
// pump goroutines to finish or for the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
