package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"storybook-server/internal/models"

	"go.uber.org/zap"
)

// storyShape mirrors TextOnlyStorybook with pointers so a missing cover or
// pages key can be told apart from an empty one.
type storyShape struct {
	Cover *models.TextOnlyCover  `json:"cover"`
	Pages *[]models.TextOnlyPage `json:"pages"`
}

// GenerateStoryText asks the text model for the story and returns the draft
// with pages sorted by pageNumber. There is no retry here.
func (p *Pipeline) GenerateStoryText(ctx context.Context, form models.StoryFormData) (models.TextOnlyStorybook, error) {
	if err := form.Validate(p.opts.MaxPages); err != nil {
		return models.TextOnlyStorybook{}, err
	}
	clean := form.Cleaned()
	log := p.logger.With(zap.String("title", clean.Title), zap.Int("num_pages", clean.NumPages))

	raw, err := p.client.GenerateStoryText(ctx, clean)
	if err != nil {
		storyTextOutcomes.WithLabelValues(outcomeLabel(err)).Inc()
		log.Error("Story text generation failed", zap.Error(err))
		return models.TextOnlyStorybook{}, err
	}

	draft, err := ParseStoryText(raw)
	if err != nil {
		storyTextOutcomes.WithLabelValues("malformed").Inc()
		log.Error("Story text response is malformed", zap.Error(err), zap.Int("response_bytes", len(raw)))
		return models.TextOnlyStorybook{}, err
	}
	if len(draft.Pages) != clean.NumPages {
		// accepted as-is, the preview shows what the model produced
		log.Warn("Model returned a different page count", zap.Int("got", len(draft.Pages)))
	}

	storyTextOutcomes.WithLabelValues("success").Inc()
	log.Info("Story text generated", zap.Int("pages", len(draft.Pages)))
	return draft, nil
}

// ParseStoryText decodes and validates a story response. Markdown code
// fences around the JSON are tolerated. Pages come back sorted and
// renumbered 1..n.
func ParseStoryText(raw []byte) (models.TextOnlyStorybook, error) {
	var shape storyShape
	dec := json.NewDecoder(bytes.NewReader(stripCodeFence(raw)))
	if err := dec.Decode(&shape); err != nil {
		return models.TextOnlyStorybook{}, fmt.Errorf("%w: story is not valid JSON: %v", models.ErrMalformedResponse, err)
	}
	if shape.Cover == nil {
		return models.TextOnlyStorybook{}, fmt.Errorf("%w: story has no cover", models.ErrMalformedResponse)
	}
	if shape.Pages == nil {
		return models.TextOnlyStorybook{}, fmt.Errorf("%w: story has no pages array", models.ErrMalformedResponse)
	}
	if len(*shape.Pages) == 0 {
		return models.TextOnlyStorybook{}, fmt.Errorf("%w: story has an empty pages array", models.ErrMalformedResponse)
	}

	draft := models.TextOnlyStorybook{Cover: *shape.Cover, Pages: *shape.Pages}
	draft.SortPages()
	for i := range draft.Pages {
		// gaps or duplicates in the model's numbering must not break pages[i].pageNumber == i+1
		draft.Pages[i].PageNumber = i + 1
	}
	return draft, nil
}

func stripCodeFence(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return []byte(s)
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return []byte(strings.TrimSpace(s))
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, models.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, models.ErrTransport):
		return "transport"
	default:
		return "other"
	}
}
