// Package ws pushes matching job events to connected dashboard clients.
package ws

import (
	"context"
	"sync"

	"matchengine/internal/metrics"

	"github.com/rs/zerolog"
)

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	logger     zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 1024),
		register:   make(chan *Client, 128),
		unregister: make(chan *Client, 128),
		logger:     logger,
	}
}

func (h *Hub) String() string { return "ws-hub" }

// Serve runs the hub loop until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Serve(ctx context.Context) error {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case client := <-h.register:
			if client == nil {
				continue
			}
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			h.logger.Debug().Int("total_clients", total).Msg("ws connected")

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.mutex.RLock()
			clientsSnapshot := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				clientsSnapshot = append(clientsSnapshot, c)
			}
			h.mutex.RUnlock()

			for _, client := range clientsSnapshot {
				select {
				case client.send <- message:
				default:
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	if client == nil {
		return
	}
	h.mutex.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mutex.Unlock()
	metrics.WebSocketClients.Set(float64(total))
	h.logger.Debug().Int("total_clients", total).Msg("ws disconnected")
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mutex.Unlock()
	metrics.WebSocketClients.Set(0)
}

func (h *Hub) Register(client *Client) {
	if h == nil {
		return
	}
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	if h == nil {
		return
	}
	h.unregister <- client
}

// Broadcast queues message for every client. It never blocks; a full buffer
// drops the message.
func (h *Hub) Broadcast(message []byte) {
	if h == nil {
		return
	}
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn().Str("reason", "buffer_full").Msg("ws broadcast dropped")
	}
}

func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
