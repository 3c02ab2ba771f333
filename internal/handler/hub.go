package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"storybook-server/internal/models"
	"storybook-server/internal/session"
)

const sendBuffer = 256

// client is one WebSocket connection subscribed to a session.
type client struct {
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
}

// Hub fans session events out to the WebSocket clients watching each
// session. A session may have any number of clients.
type Hub struct {
	clients    map[string]map[*client]struct{}
	register   chan *client
	unregister chan *client
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	logger     *zap.Logger
}

var _ session.EventSink = (*Hub)(nil)

// NewHub creates and starts a Hub.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[string]map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger.Named("WebSocketHub"),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[c.sessionID]
			if !ok {
				set = make(map[*client]struct{})
				h.clients[c.sessionID] = set
			}
			set[c] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("Client registered", zap.String("session_id", c.sessionID))

		case c := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[c.sessionID]; ok {
				if _, ok := set[c]; ok {
					delete(set, c)
					close(c.send)
				}
				if len(set) == 0 {
					delete(h.clients, c.sessionID)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("Client unregistered", zap.String("session_id", c.sessionID))

		case <-h.done:
			h.mu.Lock()
			for id, set := range h.clients {
				for c := range set {
					close(c.send)
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) add(c *client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

func (h *Hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// HandleEvent queues event for every client of its session. Slow clients
// miss events rather than block the session.
func (h *Hub) HandleEvent(event models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.clients[event.SessionID]
	if len(set) == 0 {
		return
	}

	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}
	for c := range set {
		select {
		case c.send <- message:
		default:
			h.logger.Warn("Client send queue full, event dropped",
				zap.String("session_id", event.SessionID),
				zap.String("type", string(event.Type)),
			)
		}
	}
}

// Clients returns how many clients watch sessionID.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Close disconnects every client and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
