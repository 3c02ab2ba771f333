package genclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_ai_requests_total",
			Help: "Total number of requests to the generation backends.",
		},
		[]string{"operation", "model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_ai_request_duration_seconds",
			Help:    "Histogram of generation backend request durations.",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"operation", "model"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_ai_prompt_tokens",
			Help:    "Histogram of story prompt token counts.",
			Buckets: prometheus.LinearBuckets(250, 250, 20),
		},
		[]string{"model", "source"}, // source: reported or estimated
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_ai_completion_tokens",
			Help:    "Histogram of story completion token counts.",
			Buckets: prometheus.LinearBuckets(250, 250, 20),
		},
		[]string{"model"},
	)
)

const (
	opStoryText = "story_text"
	opImage     = "image"
	opEditImage = "edit_image"
	opSpeech    = "speech"

	statusSuccess   = "success"
	statusTransport = "error_transport"
	statusMalformed = "error_malformed"
)
