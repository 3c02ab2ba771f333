package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storybook-server/internal/codec"
	"storybook-server/internal/mocks"
	"storybook-server/internal/models"
	"storybook-server/internal/pipeline"
	"storybook-server/internal/repository"
)

func newTestManager(t *testing.T, store repository.Store, sinks ...EventSink) *Manager {
	client := mocks.NewMockGenClient(t)
	p := pipeline.New(client, pipeline.Options{MaxPages: 25}, zap.NewNop())
	m := NewManager(p, client, store, time.Minute, zap.NewNop(), sinks...)
	t.Cleanup(m.Close)
	return m
}

func TestManager_GetAndRemove(t *testing.T) {
	m := newTestManager(t, repository.NewMemoryStore())
	s, _ := m.Create(context.Background(), "", "")

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	m.Remove(s.ID())
	_, err = m.Get(s.ID())
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	assert.ErrorIs(t, s.Restart(context.Background()), models.ErrSessionNotFound)
}

func TestManager_ReapsIdleSessions(t *testing.T) {
	m := newTestManager(t, repository.NewMemoryStore())
	idle, _ := m.Create(context.Background(), "", "")
	fresh, _ := m.Create(context.Background(), "", "")

	idle.mu.Lock()
	idle.lastActive = time.Now().Add(-2 * time.Minute)
	idle.mu.Unlock()

	assert.Equal(t, 1, m.reap(time.Now()))
	_, err := m.Get(idle.ID())
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	_, err = m.Get(fresh.ID())
	assert.NoError(t, err)
}

func TestManager_ClientIDScopesDurableCopy(t *testing.T) {
	store := repository.NewMemoryStore()
	m := newTestManager(t, store)

	book := models.Storybook{Cover: models.Cover{Title: "Saved"}, Pages: []models.Page{{PageNumber: 1, Text: "hi"}}}
	d := codec.NewDurableStore(repository.Namespaced(store, "alice"), codec.DefaultKey, zap.NewNop())
	require.NoError(t, d.Save(context.Background(), book))

	_, snap := m.Create(context.Background(), "", "alice")
	assert.Equal(t, models.PhaseViewing, snap.Phase)

	_, snap = m.Create(context.Background(), "", "bob")
	assert.Equal(t, models.PhaseForm, snap.Phase)

	_, snap = m.Create(context.Background(), "", "")
	assert.Equal(t, models.PhaseForm, snap.Phase)
}

func TestOutbox_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	var mu sync.Mutex
	var got []string
	o := newOutbox([]EventSink{EventSinkFunc(func(e models.Event) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		got = append(got, e.ID)
		mu.Unlock()
	})})

	var want []string
	for i := 0; i < 50; i++ {
		id := string(rune('a' + i%26))
		want = append(want, id)
		o.push(models.Event{ID: id})
	}
	o.close()
	o.push(models.Event{ID: "late"})
	o.close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

func TestStateOf(t *testing.T) {
	book := models.Storybook{Pages: []models.Page{{PageNumber: 1}}}
	for _, st := range []State{GeneratingImages{Book: book}, Viewing{Book: book}, EditingImage{Book: book}} {
		got, ok := bookOf(st)
		assert.True(t, ok)
		assert.Equal(t, book, got)

		next := models.Storybook{Cover: models.Cover{Title: "x"}, Pages: []models.Page{}}
		got, _ = bookOf(withBook(st, next))
		assert.Equal(t, next, got)
		assert.Equal(t, st.Phase(), withBook(st, next).Phase())
	}
	for _, st := range []State{Form{}, GeneratingText{}, Preview{}, Failed{}} {
		_, ok := bookOf(st)
		assert.False(t, ok)
	}
}
