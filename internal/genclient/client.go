package genclient

import (
	"context"
	"encoding/json"
	"fmt"

	"storybook-server/internal/config"
	"storybook-server/internal/models"

	"go.uber.org/zap"
)

// Speech output format returned by GenerateSpeech.
const (
	SpeechSampleRate = 24000
	SpeechChannels   = 1
	SpeechBitDepth   = 16
)

// Image is raw image bytes plus their mime type.
type Image struct {
	Data     []byte
	MimeType string
}

// Client is the boundary to the remote generative models.
// Every error it returns wraps models.ErrTransport or models.ErrMalformedResponse.
type Client interface {
	// GenerateStoryText returns the schema-constrained story JSON, unparsed.
	GenerateStoryText(ctx context.Context, form models.StoryFormData) (json.RawMessage, error)
	GenerateImage(ctx context.Context, prompt string) (Image, error)
	EditImage(ctx context.Context, image Image, instruction string) (Image, error)
	// GenerateSpeech returns 24kHz mono 16-bit little-endian PCM.
	GenerateSpeech(ctx context.Context, text string) ([]byte, error)
}

// TextGenerator produces story text. It is split out so the text backend
// can differ from the media backend.
type TextGenerator interface {
	GenerateStoryText(ctx context.Context, form models.StoryFormData) (json.RawMessage, error)
}

type compositeClient struct {
	TextGenerator
	*openAIClient
}

// GenerateStoryText resolves the ambiguity between the embedded types.
func (c *compositeClient) GenerateStoryText(ctx context.Context, form models.StoryFormData) (json.RawMessage, error) {
	return c.TextGenerator.GenerateStoryText(ctx, form)
}

// NewClient builds the Generation Client described by cfg. Images, edits and
// speech always go through the OpenAI-compatible API; text goes through
// cfg.AIClientType.
func NewClient(cfg *config.Config, logger *zap.Logger) (Client, error) {
	media, err := newOpenAIClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	switch cfg.AIClientType {
	case config.ClientOpenAI, "":
		logger.Info("Generation client created",
			zap.String("text_backend", config.ClientOpenAI),
			zap.String("base_url", cfg.AIBaseURL),
			zap.String("text_model", cfg.AITextModel))
		return media, nil
	case config.ClientOllama:
		text, err := newOllamaTextClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Generation client created",
			zap.String("text_backend", config.ClientOllama),
			zap.String("ollama_url", cfg.OllamaURL),
			zap.String("text_model", cfg.AITextModel))
		return &compositeClient{TextGenerator: text, openAIClient: media}, nil
	default:
		return nil, fmt.Errorf("unsupported AI client type: %s", cfg.AIClientType)
	}
}
