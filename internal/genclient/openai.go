package genclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"storybook-server/internal/config"
	"storybook-server/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/prometheus/client_golang/prometheus"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAIClient talks to an OpenAI-compatible API for every operation.
type openAIClient struct {
	client      *openaigo.Client
	textModel   string
	imageModel  string
	editModel   string
	speechModel string
	voice       string
	imageSize   string
	logger      *zap.Logger
}

func newOpenAIClient(cfg *config.Config, logger *zap.Logger) (*openAIClient, error) {
	if cfg.AIAPIKey == "" && cfg.AIClientType == config.ClientOpenAI {
		return nil, fmt.Errorf("AI API key is not configured")
	}

	clientCfg := openaigo.DefaultConfig(cfg.AIAPIKey)
	clientCfg.BaseURL = strings.TrimSuffix(cfg.AIBaseURL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.AITimeout}

	return &openAIClient{
		client:      openaigo.NewClientWithConfig(clientCfg),
		textModel:   cfg.AITextModel,
		imageModel:  cfg.AIImageModel,
		editModel:   cfg.AIEditModel,
		speechModel: cfg.AISpeechModel,
		voice:       cfg.AISpeechVoice,
		imageSize:   cfg.AIImageSize,
		logger:      logger.Named("OpenAIClient"),
	}, nil
}

// GenerateStoryText requests the story as a strict JSON-schema response.
func (c *openAIClient) GenerateStoryText(ctx context.Context, form models.StoryFormData) (json.RawMessage, error) {
	userPrompt := BuildStoryPrompt(form)
	log := c.logger.With(zap.String("operation", opStoryText), zap.String("model", c.textModel))

	req := openaigo.ChatCompletionRequest{
		Model: c.textModel,
		Messages: []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleSystem, Content: storySystemPrompt},
			{Role: openaigo.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openaigo.ChatCompletionResponseFormatJSONSchema{
				Name:   "storybook",
				Schema: StorySchema(),
				Strict: true,
			},
		},
	}

	start := time.Now()
	log.Debug("Sending story request", zap.Int("num_pages", form.NumPages), zap.Int("prompt_bytes", len(userPrompt)))
	resp, err := c.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)
	aiRequestDuration.With(prometheus.Labels{"operation": opStoryText, "model": c.textModel}).Observe(duration.Seconds())

	if err != nil {
		err = transportErr(opStoryText, err)
		c.observe(opStoryText, c.textModel, err)
		log.Error("Story request failed", zap.Duration("duration", duration), zap.Error(err))
		return nil, err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		err = malformedErr(opStoryText, "empty completion")
		c.observe(opStoryText, c.textModel, err)
		log.Error("Story request returned no content", zap.Duration("duration", duration))
		return nil, err
	}

	c.observeUsage(resp.Usage, userPrompt)
	c.observe(opStoryText, c.textModel, nil)
	content := resp.Choices[0].Message.Content
	log.Info("Story text received", zap.Duration("duration", duration), zap.Int("response_bytes", len(content)))
	return json.RawMessage(content), nil
}

func (c *openAIClient) observeUsage(usage openaigo.Usage, userPrompt string) {
	if usage.TotalTokens > 0 {
		aiPromptTokens.With(prometheus.Labels{"model": c.textModel, "source": "reported"}).Observe(float64(usage.PromptTokens))
		aiCompletionTokens.With(prometheus.Labels{"model": c.textModel}).Observe(float64(usage.CompletionTokens))
		return
	}
	// some compatible backends omit usage
	if n, ok := estimateTokens(c.textModel, storySystemPrompt, userPrompt); ok {
		aiPromptTokens.With(prometheus.Labels{"model": c.textModel, "source": "estimated"}).Observe(float64(n))
		c.logger.Debug("Usage missing, prompt tokens estimated", zap.Int("prompt_tokens", n))
	}
}

// GenerateImage renders one illustration as PNG.
func (c *openAIClient) GenerateImage(ctx context.Context, prompt string) (Image, error) {
	req := openaigo.ImageRequest{
		Prompt: prompt,
		Model:  c.imageModel,
		N:      1,
		Size:   c.imageSize,
	}
	if acceptsResponseFormat(c.imageModel) {
		req.ResponseFormat = openaigo.CreateImageResponseFormatB64JSON
	}

	start := time.Now()
	resp, err := c.client.CreateImage(ctx, req)
	aiRequestDuration.With(prometheus.Labels{"operation": opImage, "model": c.imageModel}).Observe(time.Since(start).Seconds())
	if err != nil {
		err = transportErr(opImage, err)
		c.observe(opImage, c.imageModel, err)
		return Image{}, err
	}

	img, err := decodeImageResponse(opImage, resp)
	c.observe(opImage, c.imageModel, err)
	return img, err
}

// EditImage applies instruction to image. The API takes a file upload, so
// the bytes go through a temporary file.
func (c *openAIClient) EditImage(ctx context.Context, image Image, instruction string) (Image, error) {
	if len(image.Data) == 0 {
		return Image{}, fmt.Errorf("%w: empty image", models.ErrInvalidEditTarget)
	}

	f, err := os.CreateTemp("", "storybook-edit-*"+extensionFor(image.MimeType))
	if err != nil {
		return Image{}, fmt.Errorf("create temp file for edit: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()
	if _, err := f.Write(image.Data); err != nil {
		return Image{}, fmt.Errorf("write temp file for edit: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Image{}, fmt.Errorf("rewind temp file for edit: %w", err)
	}

	req := openaigo.ImageEditRequest{
		Image:  f,
		Prompt: instruction,
		Model:  c.editModel,
		N:      1,
		Size:   c.imageSize,
	}
	if acceptsResponseFormat(c.editModel) {
		req.ResponseFormat = openaigo.CreateImageResponseFormatB64JSON
	}

	start := time.Now()
	resp, err := c.client.CreateEditImage(ctx, req)
	aiRequestDuration.With(prometheus.Labels{"operation": opEditImage, "model": c.editModel}).Observe(time.Since(start).Seconds())
	if err != nil {
		err = transportErr(opEditImage, err)
		c.observe(opEditImage, c.editModel, err)
		return Image{}, err
	}

	img, err := decodeImageResponse(opEditImage, resp)
	c.observe(opEditImage, c.editModel, err)
	return img, err
}

// GenerateSpeech returns raw 24kHz mono 16-bit PCM.
func (c *openAIClient) GenerateSpeech(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()
	raw, err := c.client.CreateSpeech(ctx, openaigo.CreateSpeechRequest{
		Model:          openaigo.SpeechModel(c.speechModel),
		Input:          text,
		Voice:          openaigo.SpeechVoice(c.voice),
		ResponseFormat: openaigo.SpeechResponseFormatPcm,
	})
	aiRequestDuration.With(prometheus.Labels{"operation": opSpeech, "model": c.speechModel}).Observe(time.Since(start).Seconds())
	if err != nil {
		err = transportErr(opSpeech, err)
		c.observe(opSpeech, c.speechModel, err)
		return nil, err
	}
	defer raw.Close()

	audio, err := io.ReadAll(raw)
	if err != nil {
		err = transportErr(opSpeech, err)
		c.observe(opSpeech, c.speechModel, err)
		return nil, err
	}
	if len(audio) == 0 {
		err = malformedErr(opSpeech, "no audio data received")
		c.observe(opSpeech, c.speechModel, err)
		return nil, err
	}
	if len(audio)%2 != 0 {
		// a dangling byte cannot form a 16-bit sample
		audio = audio[:len(audio)-1]
	}
	c.observe(opSpeech, c.speechModel, nil)
	return audio, nil
}

func (c *openAIClient) observe(op, model string, err error) {
	aiRequestsTotal.With(prometheus.Labels{"operation": op, "model": model, "status": statusFor(err)}).Inc()
}

func decodeImageResponse(op string, resp openaigo.ImageResponse) (Image, error) {
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return Image{}, malformedErr(op, "no image part in response")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return Image{}, malformedErr(op, "image is not valid base64: %v", err)
	}
	return Image{Data: data, MimeType: sniffImageType(data)}, nil
}

// acceptsResponseFormat reports whether model takes response_format. The
// gpt-image models always answer with base64 and reject the parameter.
func acceptsResponseFormat(model string) bool {
	return strings.HasPrefix(model, "dall-e")
}

// sniffImageType falls back to PNG, which is what the backend is asked for.
func sniffImageType(data []byte) string {
	mtype := mimetype.Detect(data)
	for t := mtype; t != nil; t = t.Parent() {
		if strings.HasPrefix(t.String(), "image/") {
			return t.String()
		}
	}
	return models.DefaultMimeType
}

// extensionFor picks the upload file name extension; the edit endpoint
// infers the image format from it.
func extensionFor(mimeType string) string {
	if mtype := mimetype.Lookup(mimeType); mtype != nil && mtype.Extension() != "" {
		return mtype.Extension()
	}
	return ".png"
}
