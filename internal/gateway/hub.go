// Package gateway fans notification activations out to WebSocket
// observers (dashboards, debugging tools). Optional at runtime; the bot
// works fine with zero connected clients.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Qolorerr/Athena/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Observers are read-only; any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub manages connected WebSocket clients and broadcasts activation
// events to all of them. It implements model.EventSink.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

// activationEnvelope is one WS message.
type activationEnvelope struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`
	TS   string `json:"ts"`

	ID     int64  `json:"id"`
	ChatID int64  `json:"chat_id"`
	Rule   string `json:"rule"`
}

// PublishActivation broadcasts the event to every connected client.
// Slow clients are skipped, never waited on.
func (h *Hub) PublishActivation(ctx context.Context, n model.Notification) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	data, err := json.Marshal(activationEnvelope{
		Type:   "activation",
		Seq:    seq,
		TS:     time.Now().UTC().Format(time.RFC3339Nano),
		ID:     n.ID,
		ChatID: n.ChatID,
		Rule:   n.Origin,
	})
	if err != nil {
		log.Printf("[gateway] marshal activation %d: %v", n.ID, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// ServeHTTP upgrades an HTTP connection and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.writePump()
	go client.readPump()
}

// RemoveClient unregisters a client and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
