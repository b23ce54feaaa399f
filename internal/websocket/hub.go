package websocket

import (
	"sync"

	"github.com/linkpulse/collector/internal/metrics"
	"github.com/linkpulse/collector/internal/store"
)

// Hub maintains the set of active clients and broadcasts run progress to
// them. The collector is single-operator, so every client sees every event.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *store.ProgressEvent

	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *store.ProgressEvent),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.Default().IncWSConnections()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.Default().DecWSConnections()
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- ev:
				default:
					// Client's buffer is full, close the connection
					close(client.send)
					delete(h.clients, client)
					metrics.Default().DecWSConnections()
				}
			}
			h.mu.Unlock()
		}
	}
}

// PublishProgress implements store.ProgressPublisher, so the hub can be used
// directly as an in-process progress sink.
func (h *Hub) PublishProgress(ev *store.ProgressEvent) {
	h.broadcast <- ev
}

// TotalClients returns the number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
