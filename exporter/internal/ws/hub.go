package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/api"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/refresh"
)

// EventStatus is the event name of every message.
const EventStatus = "status"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Source provides the status document streamed to clients.
type Source interface {
	Health() api.HealthResponse
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string             `json:"event"`
	Data  api.HealthResponse `json:"data"`
}

// Hub fans the exporter status out to every connected WebSocket client:
// once on connect, on every tick of the broadcast interval and after each
// refresh cycle. Clients that fall behind are dropped.
type Hub struct {
	source   Source
	interval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// New creates a Hub that reads from src and broadcasts every interval.
func New(src Source, interval time.Duration) *Hub {
	return &Hub{
		source:   src,
		interval: interval,
		clients:  make(map[*client]struct{}),
	}
}

// Run broadcasts on every tick until ctx is cancelled, then disconnects all
// clients.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.disconnectAll()
			return
		case <-t.C:
			h.broadcast()
		}
	}
}

// ObserveCycle implements refresh.Observer.
func (h *Hub) ObserveCycle(context.Context, refresh.Cycle) {
	h.broadcast()
}

// ServeHTTP upgrades the request and streams status until the client goes
// away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // the upgrader has replied
	}

	c := newClient(conn)
	if msg, err := h.encode(); err == nil {
		c.enqueue(msg)
	}
	h.add(c)
	defer h.remove(c)

	go c.writeLoop()
	c.readLoop()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) snapshotClients() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) broadcast() {
	msg, err := h.encode()
	if err != nil {
		slog.Warn("ws: encode status failed", "err", err)
		return
	}
	for _, c := range h.snapshotClients() {
		if !c.enqueue(msg) {
			slog.Debug("ws: dropping slow client", "remote", c.remoteAddr().String())
			h.remove(c)
		}
	}
}

func (h *Hub) encode() ([]byte, error) {
	return json.Marshal(Message{Event: EventStatus, Data: h.source.Health()})
}

func (h *Hub) disconnectAll() {
	for _, c := range h.snapshotClients() {
		h.remove(c)
	}
}
