// Package hub fans frames out to connected rendering clients. Each
// client is one websocket peer identified by its session id; the engine
// addresses frames per session rather than broadcasting.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Client is one connected rendering peer with a buffered outbound queue.
type Client struct {
	ID   string
	Send chan []byte
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:   id,
		Send: make(chan []byte, bufferSize),
	}
}

// Hub owns the client registry and outbound delivery. Sends are
// non-blocking: a client that cannot keep up drops frames rather than
// stalling the tick loop.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		logger:     logger,
	}
}

// Run processes registration until the context closes, then closes every
// client queue.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", total)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Send queues raw bytes for one session. It reports false when the
// session is gone or its buffer is full.
func (h *Hub) Send(sessionID string, data []byte) bool {
	h.mu.RLock()
	client, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case client.Send <- data:
		return true
	default:
		h.logger.Debug("client send buffer full, dropping frame", "client_id", sessionID)
		return false
	}
}

// SendJSON marshals and queues a frame for one session.
func (h *Hub) SendJSON(sessionID string, frame any) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("frame marshal failed", "error", err)
		return false
	}
	return h.Send(sessionID, data)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	existing, ok := h.clients[client.ID]
	if !ok || existing != client {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[string]*Client)
}
