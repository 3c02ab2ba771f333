package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"storybook-server/internal/export"
	"storybook-server/internal/models"
	"storybook-server/internal/session"
)

// SessionHandler exposes the session state machine over HTTP.
type SessionHandler struct {
	sessions      *session.Manager
	hub           *Hub
	publicBaseURL string
	upgrader      websocket.Upgrader
	logger        *zap.Logger
}

func NewSessionHandler(sessions *session.Manager, hub *Hub, publicBaseURL string, allowedOrigins []string, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:      sessions,
		hub:           hub,
		publicBaseURL: publicBaseURL,
		upgrader:      newUpgrader(allowedOrigins),
		logger:        logger.Named("SessionHandler"),
	}
}

func (h *SessionHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	api.POST("/sessions", h.createSession)

	s := api.Group("/sessions/:id")
	{
		s.GET("", h.getSession)
		s.DELETE("", h.deleteSession)
		s.POST("/submit", h.submit)
		s.POST("/confirm", h.confirm)
		s.POST("/cancel", h.cancel)
		s.POST("/edit/start", h.startEdit)
		s.POST("/edit/finish", h.finishEdit)
		s.POST("/edit/close", h.closeEdit)
		s.POST("/regenerate", h.regenerate)
		s.POST("/restart", h.restart)
		s.GET("/share", h.share)
		s.POST("/narration", h.narrate)
		s.DELETE("/narration", h.stopNarration)
		s.GET("/export", h.export)
		s.GET("/ws", h.serveWS)
	}
}

type createSessionRequest struct {
	Location string `json:"location"`
	ClientID string `json:"clientId"`
}

type finishEditRequest struct {
	Instruction string `json:"instruction"`
}

type narrationRequest struct {
	Target models.SlotRef `json:"target"`
}

type shareResponse struct {
	URL   string `json:"url"`
	Story string `json:"story"`
}

type narrationResponse struct {
	Started bool `json:"started"`
}

func (h *SessionHandler) session(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return nil, false
	}
	return s, true
}

// command runs fn against the session and replies with the resulting snapshot.
func (h *SessionHandler) command(c *gin.Context, status int, fn func(*session.Session) error) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := fn(s); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(status, s.Snapshot())
}

func (h *SessionHandler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	_, snap := h.sessions.Create(c.Request.Context(), req.Location, req.ClientID)
	c.JSON(http.StatusCreated, snap)
}

func (h *SessionHandler) getSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *SessionHandler) deleteSession(c *gin.Context) {
	if _, ok := h.session(c); !ok {
		return
	}
	h.sessions.Remove(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) submit(c *gin.Context) {
	var form models.StoryFormData
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, err)
		return
	}
	h.command(c, http.StatusAccepted, func(s *session.Session) error { return s.Submit(form) })
}

func (h *SessionHandler) confirm(c *gin.Context) {
	h.command(c, http.StatusAccepted, (*session.Session).Confirm)
}

func (h *SessionHandler) cancel(c *gin.Context) {
	h.command(c, http.StatusOK, (*session.Session).Cancel)
}

func (h *SessionHandler) startEdit(c *gin.Context) {
	var target models.ImageEditTarget
	if err := c.ShouldBindJSON(&target); err != nil {
		badRequest(c, err)
		return
	}
	h.command(c, http.StatusOK, func(s *session.Session) error { return s.StartEdit(target.Ref()) })
}

func (h *SessionHandler) finishEdit(c *gin.Context) {
	var req finishEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.command(c, http.StatusAccepted, func(s *session.Session) error { return s.FinishEdit(req.Instruction) })
}

func (h *SessionHandler) closeEdit(c *gin.Context) {
	h.command(c, http.StatusOK, (*session.Session).CloseEdit)
}

func (h *SessionHandler) regenerate(c *gin.Context) {
	var target models.ImageEditTarget
	if err := c.ShouldBindJSON(&target); err != nil {
		badRequest(c, err)
		return
	}
	h.command(c, http.StatusAccepted, func(s *session.Session) error { return s.Regenerate(target.Ref()) })
}

func (h *SessionHandler) restart(c *gin.Context) {
	ctx := c.Request.Context()
	h.command(c, http.StatusOK, func(s *session.Session) error { return s.Restart(ctx) })
}

func (h *SessionHandler) share(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	link, encoded, err := s.ShareLink(h.publicBaseURL)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, shareResponse{URL: link, Story: encoded})
}

func (h *SessionHandler) narrate(c *gin.Context) {
	var req narrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	started, err := s.Narrate(c.Request.Context(), req.Target)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, narrationResponse{Started: started})
}

func (h *SessionHandler) stopNarration(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.StopNarration()
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) export(c *gin.Context) {
	layout, err := export.ParseLayout(c.Query("layout"))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	book, err := s.Book()
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteHTML(&buf, book, layout); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", "storybook-"+string(layout)+".html"))
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
