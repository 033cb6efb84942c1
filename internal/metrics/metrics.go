// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_gateway_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_gateway_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .025, .1, .5, 1, 5, 15, 60, 180},
		},
		[]string{"method", "path"},
	)

	// Generation metrics
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_gateway_generations_total",
			Help: "Generation requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	FramesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_gateway_frames_emitted_total",
			Help: "Frames written to clients",
		},
		[]string{"provider"},
	)

	FinishReasons = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_gateway_finish_reasons_total",
			Help: "Finish reasons reported by upstream providers",
		},
		[]string{"provider", "reason"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_gateway_tokens_total",
			Help: "Tokens reported by upstream providers",
		},
		[]string{"provider", "kind"}, // "prompt" or "completion"
	)

	TimeToFirstFrame = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_gateway_time_to_first_frame_seconds",
			Help:    "Latency until the first upstream frame",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// Persistence metrics
	ConversationSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_gateway_conversation_saves_total",
			Help: "Conversation save requests by outcome",
		},
		[]string{"outcome"},
	)
)
