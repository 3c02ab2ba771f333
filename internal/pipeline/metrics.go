package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var imageOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storybook_pipeline_image_outcomes_total",
		Help: "Image slot outcomes by operation (illustrate, edit, regenerate).",
	},
	[]string{"operation", "outcome"}, // outcome: success, failure, rollback, stale
)

var storyTextOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storybook_pipeline_story_text_total",
		Help: "Story text generation outcomes.",
	},
	[]string{"outcome"}, // success, transport, malformed
)
