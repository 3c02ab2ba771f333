package genclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storybook-server/internal/config"
	"storybook-server/internal/models"

	"github.com/ollama/ollama/api"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ollamaTextClient generates story text with a local Ollama model using
// structured outputs.
type ollamaTextClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func newOllamaTextClient(cfg *config.Config, logger *zap.Logger) (*ollamaTextClient, error) {
	baseURL := strings.TrimSuffix(cfg.OllamaURL, "/v1")
	baseURL = strings.TrimSuffix(baseURL, "/")

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse Ollama URL '%s': %w", baseURL, err)
	}

	return &ollamaTextClient{
		client:  api.NewClient(parsedURL, &http.Client{Timeout: cfg.AITimeout}),
		model:   cfg.AITextModel,
		timeout: cfg.AITimeout,
		logger:  logger.Named("OllamaClient"),
	}, nil
}

func (c *ollamaTextClient) GenerateStoryText(ctx context.Context, form models.StoryFormData) (json.RawMessage, error) {
	userPrompt := BuildStoryPrompt(form)
	stream := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "system", Content: storySystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: &stream,
		Format: StorySchema(),
	}

	requestCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		requestCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var content strings.Builder
	var promptTokens, completionTokens int
	start := time.Now()
	err := c.client.Chat(requestCtx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			promptTokens = resp.PromptEvalCount
			completionTokens = resp.EvalCount
		}
		return nil
	})
	duration := time.Since(start)
	aiRequestDuration.With(prometheus.Labels{"operation": opStoryText, "model": c.model}).Observe(duration.Seconds())

	if err != nil {
		err = transportErr(opStoryText, err)
		c.observe(err)
		c.logger.Error("Ollama story request failed", zap.Duration("duration", duration), zap.Error(err))
		return nil, err
	}
	if strings.TrimSpace(content.String()) == "" {
		err = malformedErr(opStoryText, "empty completion")
		c.observe(err)
		return nil, err
	}

	if promptTokens > 0 {
		aiPromptTokens.With(prometheus.Labels{"model": c.model, "source": "reported"}).Observe(float64(promptTokens))
		aiCompletionTokens.With(prometheus.Labels{"model": c.model}).Observe(float64(completionTokens))
	}
	c.observe(nil)
	c.logger.Info("Story text received",
		zap.String("model", c.model),
		zap.Duration("duration", duration),
		zap.Int("response_bytes", content.Len()))
	return json.RawMessage(content.String()), nil
}

func (c *ollamaTextClient) observe(err error) {
	aiRequestsTotal.With(prometheus.Labels{"operation": opStoryText, "model": c.model, "status": statusFor(err)}).Inc()
}
