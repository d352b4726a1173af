// Package metrics exposes Prometheus instrumentation for window processing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Window metrics
	WindowsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsweep_windows_processed_total",
			Help: "Windows that reached a terminal status",
		},
		[]string{"status"},
	)

	WindowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logsweep_window_duration_seconds",
			Help:    "End-to-end window processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
		},
		[]string{"status"},
	)

	LogEventsFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logsweep_log_events_fetched_total",
			Help: "Log events read from the log store",
		},
	)

	WindowsTruncatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logsweep_windows_truncated_total",
			Help: "Windows whose condensed text omitted events to fit the budget",
		},
	)

	// Inference metrics
	InferenceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsweep_inference_requests_total",
			Help: "Inference requests by outcome",
		},
		[]string{"provider", "model", "status"},
	)

	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logsweep_inference_duration_seconds",
			Help:    "Inference request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 500ms to ~17min
		},
		[]string{"provider", "model"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsweep_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)
)

// Inference outcome labels.
const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"
	StatusError   = "error"
)
