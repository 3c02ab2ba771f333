package session

import (
	"go.uber.org/zap"

	"storybook-server/internal/models"
)

// sessionBook is the pipeline's view of the session's book, pinned to the
// token that was current when the operation started.
type sessionBook struct {
	s     *Session
	token uint64
}

func (b *sessionBook) Current() (models.Storybook, bool) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if b.s.token != b.token {
		return models.Storybook{}, false
	}
	return bookOf(b.s.state)
}

func (b *sessionBook) Apply(patch models.ImagePatch) bool {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != b.token {
		stalePatches.Inc()
		return false
	}
	book, ok := bookOf(s.state)
	if !ok {
		stalePatches.Inc()
		return false
	}
	next, err := book.Apply(patch)
	if err != nil {
		s.logger.Error("Rejected image patch", zap.Stringer("slot", patch.Slot), zap.Error(err))
		return false
	}
	s.state = withBook(s.state, next)
	s.lastActive = timeNow()

	eventType := models.EventImagePatched
	if patch.Op == models.PatchRestore {
		eventType = models.EventBookRestored
	}
	s.emitLocked(models.Event{Type: eventType, Patch: &patch})

	if patch.Op != models.PatchLoading && next.IsComplete() {
		s.saveLocked()
	}
	return true
}
