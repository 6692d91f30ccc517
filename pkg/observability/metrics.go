// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the bruecke gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for model inference
// latencies, ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and model.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bruecke_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "model"},
	)

	// RequestDuration records HTTP request duration in seconds by method and model.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bruecke_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "model"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bruecke_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ModelRequestsTotal counts requests sent to the native model backend.
	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bruecke_model_requests_total",
			Help: "Backend model requests",
		},
		[]string{"backend", "model", "status"},
	)

	// ModelLatency records backend model latency in seconds.
	ModelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bruecke_model_latency_seconds",
			Help:    "Backend model latency",
			Buckets: LLMBuckets,
		},
		[]string{"backend", "model"},
	)

	// ModelTokensTotal counts tokens processed by direction (input/output).
	ModelTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bruecke_model_tokens_total",
			Help: "Token count",
		},
		[]string{"backend", "model", "direction"},
	)

	// BridgeTurnsTotal counts agentic-loop turns by how they ended.
	BridgeTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bruecke_bridge_turns_total",
			Help: "Bridge loop turns",
		},
		[]string{"outcome"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bruecke_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ModelRequestsTotal,
		ModelLatency,
		ModelTokensTotal,
		BridgeTurnsTotal,
		RateLimitRejectedTotal,
	)
}
