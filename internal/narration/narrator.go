package narration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// ErrSuperseded is returned by Narrate when Stop or another Narrate call
// happened while the speech was being generated.
var ErrSuperseded = errors.New("narration superseded")

var narrations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storybook_narrations_total",
		Help: "Narration attempts by outcome.",
	},
	[]string{"outcome"}, // started, stopped, finished, superseded, failed
)

// SpeechSource produces raw speech PCM for a text.
type SpeechSource interface {
	GenerateSpeech(ctx context.Context, text string) ([]byte, error)
}

// Output is an audio sink acquired per narration and closed when it ends.
// Play must not call onDone synchronously.
type Output interface {
	Play(clip Clip, onDone func()) (Playback, error)
	Close() error
}

// Playback is a running clip.
type Playback interface {
	Stop()
}

// OutputFactory acquires an Output for the narration identified by key.
type OutputFactory func(key string) (Output, error)

type activeNarration struct {
	key      string
	out      Output
	playback Playback
	once     sync.Once
}

// Narrator plays at most one narration at a time.
type Narrator struct {
	speech SpeechSource
	open   OutputFactory
	logger *zap.Logger

	mu     sync.Mutex
	active *activeNarration
	gen    uint64
}

// New creates a Narrator. open is called lazily, on the first narration.
func New(speech SpeechSource, open OutputFactory, logger *zap.Logger) *Narrator {
	return &Narrator{speech: speech, open: open, logger: logger.Named("Narrator")}
}

// Narrate stops any active narration, then speaks text. key identifies what
// is being narrated (for example "page[2]").
func (n *Narrator) Narrate(ctx context.Context, key, text string) error {
	n.mu.Lock()
	n.stopLocked("superseded")
	n.gen++
	gen := n.gen
	n.mu.Unlock()

	pcm, err := n.speech.GenerateSpeech(ctx, text)
	if err != nil {
		narrations.WithLabelValues("failed").Inc()
		return fmt.Errorf("generate speech: %w", err)
	}
	clip, err := DecodeSpeech(pcm)
	if err != nil {
		narrations.WithLabelValues("failed").Inc()
		return fmt.Errorf("decode speech: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gen != gen {
		narrations.WithLabelValues("superseded").Inc()
		return ErrSuperseded
	}

	out, err := n.open(key)
	if err != nil {
		narrations.WithLabelValues("failed").Inc()
		return fmt.Errorf("acquire audio output: %w", err)
	}
	a := &activeNarration{key: key, out: out}
	playback, err := out.Play(clip, func() { go n.finished(a) })
	if err != nil {
		_ = out.Close()
		narrations.WithLabelValues("failed").Inc()
		return fmt.Errorf("start playback: %w", err)
	}
	a.playback = playback
	n.active = a
	narrations.WithLabelValues("started").Inc()
	n.logger.Debug("Narration started", zap.String("key", key), zap.Duration("duration", clip.Duration()))
	return nil
}

// Toggle stops the narration of key if it is the active one, otherwise it
// starts narrating key. started reports which happened.
func (n *Narrator) Toggle(ctx context.Context, key, text string) (started bool, err error) {
	n.mu.Lock()
	if n.active != nil && n.active.key == key {
		n.gen++
		n.stopLocked("stopped")
		n.mu.Unlock()
		return false, nil
	}
	n.mu.Unlock()

	if err := n.Narrate(ctx, key, text); err != nil {
		return false, err
	}
	return true, nil
}

// Stop halts the active narration and releases its output. Speech still
// being generated is discarded when it arrives.
func (n *Narrator) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gen++
	n.stopLocked("stopped")
}

// Active returns the key of the active narration.
func (n *Narrator) Active() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.active == nil {
		return "", false
	}
	return n.active.key, true
}

func (n *Narrator) stopLocked(outcome string) {
	a := n.active
	if a == nil {
		return
	}
	n.active = nil
	n.release(a, true)
	narrations.WithLabelValues(outcome).Inc()
	n.logger.Debug("Narration stopped", zap.String("key", a.key))
}

func (n *Narrator) finished(a *activeNarration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.active != a {
		return
	}
	n.active = nil
	n.release(a, false)
	narrations.WithLabelValues("finished").Inc()
}

// release stops (when asked) and closes a narration exactly once.
func (n *Narrator) release(a *activeNarration, stop bool) {
	a.once.Do(func() {
		if stop {
			a.playback.Stop()
		}
		if err := a.out.Close(); err != nil {
			n.logger.Warn("Failed to release audio output", zap.Error(err))
		}
	})
}
