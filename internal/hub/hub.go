// Package hub fans out engine and market events to websocket subscribers.
// Delivery is best effort: a subscriber that cannot keep up loses messages,
// never the feed.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/rxtech-lab/argo-exchange/internal/logger"
	"go.uber.org/zap"
)

// clientQueueSize bounds each subscriber's outbound queue. When the queue is
// full new messages for that subscriber are dropped.
const clientQueueSize = 64

// Hub is the subscriber registry. Broadcast never blocks on any client.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  log,
	}
}

// Register adds a client to the registry.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("subscriber connected",
		zap.String("remote", c.remote),
		zap.Int("total", total))
}

// Unregister removes a client and closes its queue. Safe to call twice; only
// the first call closes the channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Info("subscriber disconnected",
			zap.String("remote", c.remote),
			zap.Int("total", total))
	}
}

// Broadcast marshals the payload once and offers it to every subscriber.
// Clients with a full queue are skipped; one slow reader must not delay or
// drop delivery to the others.
func (h *Hub) Broadcast(payload any) {
	message, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast payload", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- message:
		default:
			// Queue full. Drop for this subscriber only.
		}
	}
}

// SubscriberCount returns the number of registered clients.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
