package handler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storybook-server/internal/models"
)

func TestHub_FanOutPerSession(t *testing.T) {
	hub := NewHub(zap.NewNop())
	t.Cleanup(hub.Close)

	a1 := &client{sessionID: "a", send: make(chan []byte, 4)}
	a2 := &client{sessionID: "a", send: make(chan []byte, 4)}
	b := &client{sessionID: "b", send: make(chan []byte, 4)}
	hub.add(a1)
	hub.add(a2)
	hub.add(b)
	require.Eventually(t, func() bool { return hub.Clients("a") == 2 && hub.Clients("b") == 1 }, time.Second, time.Millisecond)

	hub.HandleEvent(models.Event{SessionID: "a", Type: models.EventImagePatched})

	for _, c := range []*client{a1, a2} {
		select {
		case raw := <-c.send:
			var e models.Event
			require.NoError(t, json.Unmarshal(raw, &e))
			assert.Equal(t, models.EventImagePatched, e.Type)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
	assert.Empty(t, b.send)

	hub.remove(a1)
	require.Eventually(t, func() bool { return hub.Clients("a") == 1 }, time.Second, time.Millisecond)
	_, open := <-a1.send
	assert.False(t, open)
}

func TestHub_FullQueueDropsEvent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	t.Cleanup(hub.Close)

	c := &client{sessionID: "a", send: make(chan []byte, 1)}
	hub.add(c)
	require.Eventually(t, func() bool { return hub.Clients("a") == 1 }, time.Second, time.Millisecond)

	hub.HandleEvent(models.Event{SessionID: "a", Type: models.EventStateChanged})
	hub.HandleEvent(models.Event{SessionID: "a", Type: models.EventImagePatched})
	assert.Len(t, c.send, 1)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := &client{sessionID: "a", send: make(chan []byte, 1)}
	hub.add(c)
	require.Eventually(t, func() bool { return hub.Clients("a") == 1 }, time.Second, time.Millisecond)

	hub.Close()
	hub.Close()
	select {
	case _, open := <-c.send:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("client not disconnected")
	}

	late := &client{sessionID: "a", send: make(chan []byte, 1)}
	hub.add(late)
	_, open := <-late.send
	assert.False(t, open)
	hub.remove(late)
}
