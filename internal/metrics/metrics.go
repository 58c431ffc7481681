// Package metrics exposes BatVault's process-wide Prometheus collectors,
// mounted at /metrics by cmd/gateway and cmd/memory the way the teacher's
// internal/escrow package registers its own counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AskRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batvault_gateway_ask_requests_total",
		Help: "Total /v2/ask requests, partitioned by outcome.",
	}, []string{"outcome"})

	AskLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batvault_gateway_ask_latency_seconds",
		Help:    "End-to-end /v2/ask handler latency.",
		Buckets: prometheus.DefBuckets,
	})

	MemoryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batvault_memory_requests_total",
		Help: "Total Memory service requests, partitioned by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})
)

// ObserveAskLatency records one /v2/ask handler duration.
func ObserveAskLatency(d time.Duration) {
	AskLatencySeconds.Observe(d.Seconds())
}

// IncAskRequests increments the /v2/ask outcome counter ("ok", "fallback",
// "error").
func IncAskRequests(outcome string) {
	AskRequestsTotal.WithLabelValues(outcome).Inc()
}

// IncMemoryRequest increments a Memory endpoint's outcome counter.
func IncMemoryRequest(endpoint, outcome string) {
	MemoryRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}
