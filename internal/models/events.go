package models

import "time"

// Phase is the user-visible state of a session.
type Phase string

const (
	PhaseForm             Phase = "form"
	PhaseGeneratingText   Phase = "generating_text"
	PhasePreview          Phase = "preview"
	PhaseGeneratingImages Phase = "generating_images"
	PhaseViewing          Phase = "viewing"
	PhaseEditingImage     Phase = "editing_image"
	PhaseError            Phase = "error"
)

// EventType names a session event.
type EventType string

const (
	EventStateChanged     EventType = "state.changed"
	EventImagePatched     EventType = "image.patched"
	EventBookRestored     EventType = "book.restored"
	EventEditFailed       EventType = "edit.failed"
	EventNarrationStarted EventType = "narration.started"
	EventNarrationStopped EventType = "narration.stopped"
)

// Event is published to session subscribers and, optionally, to the broker.
type Event struct {
	ID        string             `json:"id"`
	SessionID string             `json:"sessionId"`
	Type      EventType          `json:"type"`
	Phase     Phase              `json:"phase"`
	Patch     *ImagePatch        `json:"patch,omitempty"`
	Book      *Storybook         `json:"book,omitempty"`
	Draft     *TextOnlyStorybook `json:"draft,omitempty"`
	Target    *ImageEditTarget   `json:"target,omitempty"`
	Message   string             `json:"message,omitempty"`
	Audio     *AudioPayload      `json:"audio,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// AudioPayload carries raw PCM narration to a remote player.
type AudioPayload struct {
	Target     string `json:"target"`
	Data       []byte `json:"data"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bitDepth"`
}
