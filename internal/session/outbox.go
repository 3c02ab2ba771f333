package session

import (
	"sync"

	"storybook-server/internal/models"
)

// EventSink receives session events. Calls come from a single goroutine per
// session, in the order the events happened.
type EventSink interface {
	HandleEvent(event models.Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(event models.Event)

func (f EventSinkFunc) HandleEvent(event models.Event) { f(event) }

// outbox delivers events in order without making the producer wait for
// slow sinks.
type outbox struct {
	sinks []EventSink

	mu     sync.Mutex
	queue  []models.Event
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newOutbox(sinks []EventSink) *outbox {
	o := &outbox{
		sinks: sinks,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *outbox) push(event models.Event) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.queue = append(o.queue, event)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *outbox) run() {
	defer close(o.done)
	for {
		o.mu.Lock()
		batch := o.queue
		o.queue = nil
		closed := o.closed
		o.mu.Unlock()

		for _, event := range batch {
			for _, sink := range o.sinks {
				sink.HandleEvent(event)
			}
		}
		if len(batch) == 0 {
			if closed {
				return
			}
			<-o.wake
		}
	}
}

// close delivers what is queued and stops the delivery goroutine.
func (o *outbox) close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		<-o.done
		return
	}
	o.closed = true
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	<-o.done
}
