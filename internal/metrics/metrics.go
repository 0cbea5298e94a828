package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pixshop",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pixshop",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"method", "route"},
	)

	// Generation service calls
	GenerationCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pixshop",
			Subsystem: "genai",
			Name:      "calls_total",
			Help:      "Calls to the generation service by operation and outcome",
		},
		[]string{"op", "model", "outcome"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pixshop",
			Subsystem: "genai",
			Name:      "call_duration_seconds",
			Help:      "Generation service call latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 90},
		},
		[]string{"op"},
	)

	// Preset store
	PresetMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pixshop",
			Subsystem: "presets",
			Name:      "mutations_total",
			Help:      "Preset store mutations by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	// Subject description cache
	SubjectCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pixshop",
			Subsystem: "composer",
			Name:      "subject_cache_total",
			Help:      "Subject description lookups by result",
		},
		[]string{"result"},
	)

	// Live preview
	PreviewRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pixshop",
			Subsystem: "preview",
			Name:      "runs_total",
			Help:      "Debounced preview renders by outcome",
		},
		[]string{"outcome"},
	)

	PanelTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pixshop",
			Subsystem: "dispatch",
			Name:      "panel_transitions_total",
			Help:      "Panel state transitions by target state",
		},
		[]string{"task", "state"},
	)
)
