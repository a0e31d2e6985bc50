package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KevinKickass/OpenLabManager/internal/auth"
	"github.com/KevinKickass/OpenLabManager/internal/live"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
)

// Authenticator resolves the token sent in the first client message.
type Authenticator interface {
	Resolve(ctx context.Context, token string) (*auth.Session, error)
}

// Hub maintains active WebSocket clients and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu sync.RWMutex

	// Closed when Run returns
	done chan struct{}

	logger *zap.Logger
	auth   Authenticator
	bus    *live.Bus
}

func NewHub(logger *zap.Logger, authenticator Authenticator, bus *live.Bus) *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		logger:     logger,
		auth:       authenticator,
		bus:        bus,
	}
}

// Run starts the hub's main event loop and forwards bus invalidations to
// clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket Hub started")
	defer close(h.done)

	var changes <-chan []types.Table
	var seen map[types.Table]uint64
	if h.bus != nil {
		ch, cancel := h.bus.Subscribe()
		defer cancel()
		changes = ch
		seen = h.bus.Versions(types.AllTables...)
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.remoteAddr()),
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("remote_addr", client.remoteAddr()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case <-changes:
			// Notifications coalesce, so the version diff is what moved.
			var tables []types.Table
			tables, seen = h.moved(seen)
			if len(tables) > 0 {
				h.deliver(changeMessage(tables))
			}

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) moved(seen map[types.Table]uint64) ([]types.Table, map[types.Table]uint64) {
	current := h.bus.Versions(types.AllTables...)
	var tables []types.Table
	for _, t := range types.AllTables {
		if current[t] != seen[t] {
			tables = append(tables, t)
		}
	}
	return tables, current
}

// changeMessage turns an invalidation into a notification. An invalidation
// of every table means the store was reset.
func changeMessage(tables []types.Table) Message {
	if coversAll(tables) {
		return NewReloadMessage()
	}
	return NewTablesChangedMessage(tables)
}

func coversAll(tables []types.Table) bool {
	seen := make(map[types.Table]bool, len(tables))
	for _, t := range tables {
		seen[t] = true
	}
	for _, t := range types.AllTables {
		if !seen[t] {
			return false
		}
	}
	return true
}

func (h *Hub) deliver(message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Client send channel full - unregister slow/dead client
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn("Client send buffer full, unregistering",
				zap.String("remote_addr", client.remoteAddr()))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
