package session

import (
	"sync"
	"time"

	"storybook-server/internal/models"
	"storybook-server/internal/narration"
)

var timeNow = time.Now

// eventOutput plays narration by streaming the PCM to event subscribers.
// The clip counts as playing for its duration.
type eventOutput struct {
	s    *Session
	key  string
	once sync.Once
}

func (s *Session) openOutput(key string) (narration.Output, error) {
	return &eventOutput{s: s, key: key}, nil
}

func (o *eventOutput) Play(clip narration.Clip, onDone func()) (narration.Playback, error) {
	o.s.publish(models.Event{
		Type: models.EventNarrationStarted,
		Audio: &models.AudioPayload{
			Target:     o.key,
			Data:       narration.EncodePCM16(clip.Samples),
			SampleRate: clip.SampleRate,
			Channels:   clip.Channels,
			BitDepth:   16,
		},
	})
	return timerPlayback{time.AfterFunc(clip.Duration(), onDone)}, nil
}

func (o *eventOutput) Close() error {
	o.once.Do(func() {
		o.s.publish(models.Event{
			Type:  models.EventNarrationStopped,
			Audio: &models.AudioPayload{Target: o.key},
		})
	})
	return nil
}

type timerPlayback struct {
	timer *time.Timer
}

func (p timerPlayback) Stop() { p.timer.Stop() }
