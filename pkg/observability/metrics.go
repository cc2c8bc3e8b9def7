// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the odin service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// RequestBuckets defines histogram buckets for request latencies, ranging
// from 1ms to 10s.
var RequestBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and
	// descriptor kind.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odin_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "kind"},
	)

	// RequestDuration records HTTP request duration in seconds by method and kind.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "odin_request_duration_seconds",
			Help:    "Request duration",
			Buckets: RequestBuckets,
		},
		[]string{"method", "kind"},
	)

	// ResponseSize records response body sizes in bytes by kind.
	ResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "odin_response_size_bytes",
			Help:    "Response body size",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"kind"},
	)

	// InFlightRequests tracks the number of requests being served.
	InFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "odin_requests_in_flight",
			Help: "Requests in flight",
		},
	)

	// DispatchTotal counts dispatched requests, batch operations included,
	// by kind and exact status.
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odin_dispatch_total",
			Help: "Dispatched requests",
		},
		[]string{"kind", "status"},
	)

	// DispatchDuration records time spent in the dispatcher by kind.
	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "odin_dispatch_duration_seconds",
			Help:    "Dispatch duration",
			Buckets: RequestBuckets,
		},
		[]string{"kind"},
	)

	// ErrorsTotal counts error responses by error kind.
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odin_errors_total",
			Help: "Error responses",
		},
		[]string{"error_kind"},
	)

	// ChangesetsTotal counts $batch changesets by outcome
	// (committed, rolled_back, failed).
	ChangesetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odin_changesets_total",
			Help: "Batch changesets",
		},
		[]string{"outcome"},
	)

	// StorageOperationsTotal counts record store operations by backend,
	// operation, and outcome.
	StorageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odin_storage_operations_total",
			Help: "Storage operations",
		},
		[]string{"backend", "operation", "outcome"},
	)

	// MetadataReloadsTotal counts schema reloads by outcome.
	MetadataReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odin_metadata_reloads_total",
			Help: "Metadata reloads",
		},
		[]string{"outcome"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odin_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ResponseSize,
		InFlightRequests,
		DispatchTotal,
		DispatchDuration,
		ErrorsTotal,
		ChangesetsTotal,
		StorageOperationsTotal,
		MetadataReloadsTotal,
		RateLimitRejectedTotal,
	)
}
