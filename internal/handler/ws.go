package handler

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"storybook-server/internal/models"
	"storybook-server/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Clients only send control frames.
	maxMessageSize = 512
)

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
}

// serveWS streams the session's events. The first message is a
// state.changed event carrying the current snapshot.
func (h *SessionHandler) serveWS(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already replied
		h.logger.Warn("Failed to upgrade connection", zap.String("session_id", s.ID()), zap.Error(err))
		return
	}

	cl := &client{sessionID: s.ID(), conn: conn, send: make(chan []byte, sendBuffer)}
	if initial, err := json.Marshal(snapshotEvent(s.Snapshot())); err == nil {
		cl.send <- initial
	}
	h.hub.add(cl)

	log := h.logger.With(zap.String("session_id", s.ID()))
	log.Info("WebSocket connection established")
	go cl.writePump(log)
	go cl.readPump(h.hub, log)
}

func snapshotEvent(snap session.Snapshot) models.Event {
	message := snap.Message
	if message == "" {
		message = snap.Notice
	}
	return models.Event{
		ID:        uuid.NewString(),
		SessionID: snap.ID,
		Type:      models.EventStateChanged,
		Phase:     snap.Phase,
		Book:      snap.Book,
		Draft:     snap.Draft,
		Target:    snap.Target,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

func (c *client) readPump(hub *Hub, log *zap.Logger) {
	defer func() {
		hub.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WebSocket read error", zap.Error(err))
			} else {
				log.Info("WebSocket connection closed")
			}
			return
		}
	}
}

func (c *client) writePump(log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("Failed to write message", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
