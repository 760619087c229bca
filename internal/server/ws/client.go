package ws

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeTimeout bounds a single frame write.
	writeTimeout = 10 * time.Second

	// pongTimeout is how long a silent peer stays connected.
	pongTimeout = 60 * time.Second

	// pingInterval must leave room for the pong to come back.
	pingInterval = (pongTimeout * 9) / 10

	// readLimit caps incoming frames; peers only send small filter updates.
	readLimit = 4096

	// queueLen is the per-client outgoing buffer.
	queueLen = 256
)

// client is one WebSocket connection with its channel filter.
type client struct {
	hub   *Hub
	conn  *websocket.Conn
	queue chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

// newClient wraps a connection, subscribed to every feed channel until the
// peer narrows the filter.
func newClient(h *Hub, conn *websocket.Conn) *client {
	c := &client{
		hub:   h,
		conn:  conn,
		queue: make(chan []byte, queueLen),
		subs:  make(map[string]bool, len(feedChannels)),
	}
	for _, ch := range feedChannels {
		c.subs[ch] = true
	}
	return c
}

// subRequest is the filter-update frame peers send. Both shapes are
// accepted: {"action":"subscribe","channels":[...]} and the short
// {"subscribe":[...],"unsubscribe":[...]}.
type subRequest struct {
	Action      string   `json:"action"`
	Channels    []string `json:"channels"`
	Subscribe   []string `json:"subscribe"`
	Unsubscribe []string `json:"unsubscribe"`
}

func (m subRequest) empty() bool {
	return m.Action == "" && len(m.Channels) == 0 &&
		len(m.Subscribe) == 0 && len(m.Unsubscribe) == 0
}

// readLoop consumes frames until the peer goes away, applying any filter
// updates it sends. It owns unregistration.
func (c *client) readLoop() {
	defer func() {
		c.hub.leave <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var req subRequest
		if err := json.Unmarshal(frame, &req); err == nil && !req.empty() {
			c.applyFilter(req)
		}
	}
}

// applyFilter merges a filter update into the client's channel set.
func (c *client) applyFilter(req subRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range req.Subscribe {
		c.subs[ch] = true
	}
	for _, ch := range req.Unsubscribe {
		delete(c.subs, ch)
	}

	switch req.Action {
	case "subscribe":
		for _, ch := range req.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range req.Channels {
			delete(c.subs, ch)
		}
	}
}

// wants reports whether the filter admits messages from channel. A trailing
// "*" in a subscription matches by prefix, so "ch:*" admits "ch:ledger".
func (c *client) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// greet queues a status envelope so the peer can mark the connection
// healthy before any ledger event flows.
func (c *client) greet() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	frame, err := json.Marshal(map[string]any{
		"type": "ledger_status",
		"payload": map[string]any{
			"mode":           c.hub.mode,
			"ws_connected":   true,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}
	select {
	case c.queue <- frame:
	default:
	}
}

// writeLoop drains the queue onto the wire and keeps the connection alive
// with pings. Write failures tear the connection down; readLoop notices and
// unregisters.
func (c *client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
