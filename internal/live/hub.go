// Package live pushes tick results to websocket clients.
package live

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/valeevte/valora/internal/logging"
	"github.com/valeevte/valora/internal/simulation"
)

const MessageTypeTick = "tick"

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans tick messages out to every connected client. Slow clients whose
// send buffer is full are dropped.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		close(h.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish implements simulation.Publisher. It never blocks the tick: when the
// broadcast buffer is full the message is dropped.
func (h *Hub) Publish(ctx context.Context, tick simulation.TickResult) {
	payload, err := json.Marshal(Message{Type: MessageTypeTick, Data: tick})
	if err != nil {
		logging.Error(ctx, "live: marshal tick", "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		logging.Debug(ctx, "live: broadcast buffer full, tick dropped", "product_id", tick.ProductID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
