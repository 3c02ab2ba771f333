package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storybook-server/internal/codec"
	"storybook-server/internal/models"
	"storybook-server/internal/narration"
	"storybook-server/internal/pipeline"
	"storybook-server/internal/repository"
)

const reapInterval = time.Minute

// Manager owns the live sessions.
type Manager struct {
	pipeline *pipeline.Pipeline
	speech   narration.SpeechSource
	store    repository.Store
	sinks    []EventSink
	idleTTL  time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager. Sessions idle for longer than idleTTL are
// closed by Run; zero disables reaping.
func NewManager(p *pipeline.Pipeline, speech narration.SpeechSource, store repository.Store, idleTTL time.Duration, logger *zap.Logger, sinks ...EventSink) *Manager {
	return &Manager{
		pipeline: p,
		speech:   speech,
		store:    store,
		sinks:    sinks,
		idleTTL:  idleTTL,
		logger:   logger.Named("SessionManager"),
		sessions: make(map[string]*Session),
	}
}

// Create starts a session booted from location. clientID scopes the durable
// copy so a returning client finds its saved storybook; without it the copy
// is scoped to the new session.
func (m *Manager) Create(ctx context.Context, location, clientID string) (*Session, Snapshot) {
	id := uuid.NewString()
	scope := clientID
	if scope == "" {
		scope = id
	}
	s := New(id, Deps{
		Pipeline: m.pipeline,
		Speech:   m.speech,
		Durable:  codec.NewDurableStore(repository.Namespaced(m.store, scope), codec.DefaultKey, m.logger),
		Sinks:    m.sinks,
		Logger:   m.logger,
	})
	snap := s.Boot(ctx, location)

	m.mu.Lock()
	m.sessions[id] = s
	activeSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	m.logger.Info("Session created", zap.String("session_id", id), zap.String("phase", string(snap.Phase)))
	return s, snap
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	return s, nil
}

// Remove closes and forgets a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	activeSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Run closes idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.reap(now); n > 0 {
				m.logger.Info("Closed idle sessions", zap.Int("count", n))
			}
		}
	}
}

func (m *Manager) reap(now time.Time) int {
	var idle []string
	m.mu.RLock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActive()) > m.idleTTL {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range idle {
		m.Remove(id)
	}
	return len(idle)
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	activeSessions.Set(0)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}
