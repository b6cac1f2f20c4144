package notify

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Client is one connected observer. Send is buffered; a client that cannot
// keep up has messages dropped rather than stalling the broadcast.
type Client struct {
	ID   string
	Send chan []byte
}

// Hub fans state-change events out to zero or more live observers.
// Delivery is best-effort: there are no observers to fail for, and a slow
// one only loses its own messages. Clients that miss events recover
// through the polling API.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// NewClient registers a fresh observer and returns it. Unregister must be
// called when the observer disconnects.
func (h *Hub) NewClient() *Client {
	client := &Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- payload:
		default:
			h.logger.Printf("drop message for client %s", client.ID)
		}
	}
}
