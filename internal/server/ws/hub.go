// Package ws fans committed ledger events out to WebSocket subscribers.
// The hub subscribes to the bus feed channels once and multiplexes them to
// any number of connected clients, each with its own channel filter.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// feedChannels are the bus channels the hub listens on. ch:ledger carries
// every committed event; the family channels carry their slice of it.
var feedChannels = []string{
	"ch:ledger",
	"conditions",
	"positions",
	"transfers",
}

// feedItem is one bus message tagged with the channel it arrived on.
type feedItem struct {
	origin  string
	payload []byte
}

// Config carries the runtime metadata reported in the greeting frame and
// the origins allowed to open a socket.
type Config struct {
	Mode      string
	StartedAt time.Time
	Origins   []string
}

// Hub bridges the signal bus to connected WebSocket clients.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger

	mode      string
	startedAt time.Time

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool

	events chan feedItem
	join   chan *client
	leave  chan *client
}

// NewHub creates a hub. Run must be started before HandleWS accepts clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	h := &Hub{
		bus:       bus,
		logger:    logger,
		mode:      mode,
		startedAt: startedAt,
		clients:   make(map[*client]bool),
		events:    make(chan feedItem, 256),
		join:      make(chan *client),
		leave:     make(chan *client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.Origins),
	}
	return h
}

// originChecker admits requests without an Origin header (non-browser
// clients) and browser requests from the configured origins. An empty list
// or a "*" entry admits everyone.
func originChecker(origins []string) func(*http.Request) bool {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[strings.ToLower(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		return allowed[strings.ToLower(origin)]
	}
}

// Run owns the client set. It serves joins, leaves, and event fan-out until
// ctx is cancelled, then closes every client's queue.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range feedChannels {
		go h.pumpChannel(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.queue)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.join:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", total))

		case c := <-h.leave:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.queue)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", total))

		case item := <-h.events:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(item.origin) {
					continue
				}
				select {
				case c.queue <- item.payload:
				default:
					// A full queue means the peer stopped reading.
					h.logger.Warn("ws: dropping message for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// pumpChannel forwards one bus subscription into the hub's event channel.
func (h *Hub) pumpChannel(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: subscribed to channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: subscription closed", slog.String("channel", channel))
				return
			}
			select {
			case h.events <- feedItem{origin: channel, payload: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and hands the connection to the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn)
	h.join <- c
	c.greet()

	go c.writeLoop()
	go c.readLoop()
}
