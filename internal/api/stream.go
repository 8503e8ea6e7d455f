package api

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	clientQueue    = 256
)

// frame is one encoded event on its way to subscribers.
type frame struct {
	typ  string
	data []byte
}

// Hub fans dashboard events out to connected WebSocket clients. A client
// that falls behind is dropped; it reconnects and receives a fresh snapshot.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	joins  chan *Client
	leaves chan *Client
	outbox chan frame
	done   chan struct{}
	once   sync.Once

	logger *slog.Logger
}

// Client is one dashboard connection.
type Client struct {
	ID     string
	hub    *Hub
	conn   *websocket.Conn
	queue  chan []byte
	topics map[string]struct{} // nil receives every event type
}

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		joins:   make(chan *Client),
		leaves:  make(chan *Client),
		outbox:  make(chan frame, clientQueue),
		done:    make(chan struct{}),
		logger:  logger.With("component", "ws-hub"),
	}
}

// Run owns client membership until Close. Call it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				h.dropLocked(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.joins:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("dashboard client joined", "client_id", c.ID, "topics", c.topicList(), "count", n)

		case c := <-h.leaves:
			h.mu.Lock()
			h.dropLocked(c)
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("dashboard client left", "client_id", c.ID, "count", n)

		case f := <-h.outbox:
			h.deliver(f)
		}
	}
}

func (h *Hub) deliver(f frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(f.typ) {
			continue
		}
		select {
		case c.queue <- f.data:
		default:
			h.logger.Warn("dashboard client too slow, dropping", "client_id", c.ID, "event", f.typ)
			h.dropLocked(c)
		}
	}
}

// dropLocked removes c and closes its queue; the write pump then closes the socket.
func (h *Hub) dropLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.queue)
}

// Close stops Run and disconnects every client.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastEvent encodes evt once and queues it for every subscriber.
func (h *Hub) BroadcastEvent(evt DashboardEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal event", "type", evt.Type, "error", err)
		return
	}

	select {
	case h.outbox <- frame{typ: evt.Type, data: data}:
	default:
		h.logger.Warn("hub outbox full, dropping event", "type", evt.Type)
	}
}

// ParseTopics reads a comma-separated event filter such as "board,alert".
// Empty input subscribes to everything. Snapshots are always delivered.
func ParseTopics(s string) map[string]struct{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	topics := map[string]struct{}{EventSnapshot: {}}
	for _, t := range strings.Split(s, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			topics[t] = struct{}{}
		}
	}
	return topics
}

func (c *Client) wants(typ string) bool {
	if c.topics == nil {
		return true
	}
	_, ok := c.topics[typ]
	return ok
}

func (c *Client) topicList() string {
	if c.topics == nil {
		return "*"
	}
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return strings.Join(out, ",")
}

// NewClient attaches conn to the hub and starts its pumps. first, when
// non-nil, is queued ahead of any broadcast.
func NewClient(hub *Hub, conn *websocket.Conn, topics map[string]struct{}, first []byte) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		hub:    hub,
		conn:   conn,
		queue:  make(chan []byte, clientQueue),
		topics: topics,
	}
	if first != nil {
		c.queue <- first
	}

	select {
	case hub.joins <- c:
	case <-hub.done:
		conn.Close()
		return c
	}

	go c.writePump()
	go c.readPump()
	return c
}

// writePump owns all writes to the socket.
func (c *Client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.queue:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the pong deadline fresh. The stream is push-only, so
// anything the client sends is discarded.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.leaves <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("dashboard socket error", "client_id", c.ID, "error", err)
			}
			return
		}
	}
}
