package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// SolveRequests counts solves by kind (matrix, stops) and outcome (solved, no_solution, bad_request, internal).
	SolveRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solve_requests_total", Help: "Solve requests by kind and outcome."},
		[]string{"kind", "outcome"},
	)
	// SolveDuration records wall time spent in the solver.
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solve_duration_seconds", Help: "Solver wall time in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 4, 5, 6}},
		[]string{"kind", "outcome"},
	)
	// SolveNodes observes problem sizes.
	SolveNodes = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solve_nodes", Help: "Number of nodes per solve request.", Buckets: prometheus.ExponentialBuckets(2, 2, 8)},
	)
	// SolvesInFlight is the number of solves currently holding a solver slot.
	SolvesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "solves_in_flight", Help: "Solves currently running."},
	)
	// RateLimited counts requests rejected by the per-tenant limiter.
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rate_limited_total", Help: "Requests rejected with 429 by tenant."},
		[]string{"tenant"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(SolveRequests, SolveDuration, SolveNodes, SolvesInFlight, RateLimited)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
