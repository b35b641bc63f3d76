// Package relay manages individual WebSocket connections, handling
// read/write pumps, rate limiting, and lifecycle control.
package relay

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// pongWait is how long a connection may stay silent before the read
	// deadline kills it; pings go out well inside that window.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second

	sendBufferSize = 256
)

// Client represents one live WebSocket connection. Its id is the
// transport-level identity: unique per socket and discarded on disconnect,
// unrelated to the client-persisted device identifier bound at join time.
// The deviceID/joined/closed fields belong to the hub's event loop and are
// never touched by the pumps.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	id   string
	addr string

	deviceID string
	joined   bool
	closed   bool

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	log            *zap.SugaredLogger
}

// NewClient wraps an upgraded WebSocket connection for the given hub and
// assigns it a fresh connection id. The send channel is buffered so a slow
// reader does not stall the event loop.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            hub,
		id:             uuid.NewString(),
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		log:            hub.log,
	}
}

// setupReadConnection configures the read deadline and pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warnf("setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warnf("setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs an appropriate message for a read failure. Reads
// never survive an error; the caller always exits the pump afterwards.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warnf("frame from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)

	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Infof("connection %s disconnected: %v", c.id, err)

	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Infof("connection %s closed: %v", c.id, err)

	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warnf("unexpected WebSocket error from %s: %v", c.addr, err)

	default:
		c.log.Warnf("WebSocket read error from %s: %v", c.addr, err)
	}
}

// checkRateLimit reports whether the next inbound frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warnf("rate limit exceeded for %s (%d events per %s); discarding frame", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processFrame decodes one inbound frame into an envelope and hands it to
// the hub's event loop. Invalid frames are dropped; they never terminate
// the connection or the relay.
func (c *Client) processFrame(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Warnf("invalid frame from %s: %v", c.addr, err)
		return
	}
	if env.Event == "" {
		c.log.Debugf("frame from %s has no event name; dropping", c.addr)
		return
	}

	select {
	case c.hub.events <- inboundEvent{client: c, envelope: env}:
	case <-c.hub.ctx.Done():
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warnf("closing connection in readPump: %v", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			break
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processFrame(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when
// the pump should stop.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case payload, ok := <-c.send:
		return c.handlePayload(payload, ok)
	case <-ticker.C:
		return c.handlePing()
	case <-c.hub.ctx.Done():
		return false
	}
}

// closeConnection closes the WebSocket connection, tolerating the usual
// already-closed errors.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warnf("closing connection in writePump: %v", err)
	}
}

// handlePayload writes one outbound frame, or the close frame when the hub
// has shut this connection's send channel.
func (c *Client) handlePayload(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warnf("setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(payload)
}

// writeCloseMessage sends a close frame to the client.
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warnf("writing close message to %s: %v", c.addr, err)
		}
	}
	return false
}

// writeTextMessage writes the payload plus any queued payloads, coalesced
// into one frame separated by newlines.
func (c *Client) writeTextMessage(payload []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Warnf("creating writer for %s: %v", c.addr, err)
		return false
	}

	if _, err := w.Write(payload); err != nil {
		c.log.Warnf("writing payload to %s: %v", c.addr, err)
		return false
	}

	queued := len(c.send)
	for i := 0; i < queued; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.log.Warnf("writing separator to %s: %v", c.addr, err)
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			c.log.Warnf("writing queued payload to %s: %v", c.addr, err)
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Warnf("closing writer for %s: %v", c.addr, err)
		return false
	}
	return true
}

// handlePing keeps the connection alive between outbound frames.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warnf("setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warnf("writing ping to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// isExpectedCloseError reports whether an error is part of a normal
// connection teardown.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
