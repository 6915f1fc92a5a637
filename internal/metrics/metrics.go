package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway metrics
var (
	// Open websocket connections
	ConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "connections_open",
			Help:      "Number of open websocket connections",
		},
	)

	// Inbound frames by envelope type
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "frames_total",
			Help:      "Total inbound frames by message type",
		},
		[]string{"type"},
	)

	// Error envelopes by code
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "Total error envelopes sent by code",
		},
		[]string{"code"},
	)

	// Streams currently relaying deltas
	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "streams_active",
			Help:      "Number of in-flight completion streams",
		},
	)

	// Finished streams by provider and outcome
	StreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "streams_total",
			Help:      "Total completion streams by outcome",
		},
		[]string{"provider", "outcome"},
	)

	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "stream_duration_seconds",
			Help:      "Completion stream duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	// Provider swaps through provider.config
	ProviderSwapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "provider_swaps_total",
			Help:      "Total provider configuration attempts",
		},
		[]string{"provider", "status"},
	)

	// HTTP side channel
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

// Stream outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)
