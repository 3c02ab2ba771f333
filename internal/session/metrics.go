package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_session_transitions_total",
			Help: "Session state transitions.",
		},
		[]string{"from", "to"},
	)
	stalePatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storybook_session_stale_patches_total",
		Help: "Patches dropped because the session was restarted after the request was issued.",
	})
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storybook_sessions_active",
		Help: "Sessions currently held in memory.",
	})
)
