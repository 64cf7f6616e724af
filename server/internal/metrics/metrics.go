package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pibench_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pibench_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	// Compute backend
	ComputeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pibench_compute_backend_requests_total",
			Help: "Compute backend calls by operation and normalized outcome",
		},
		[]string{"operation", "outcome"},
	)

	ComputeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pibench_compute_backend_request_duration_seconds",
			Help:    "Compute backend call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"operation"},
	)

	// Storage
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pibench_store_operations_total",
			Help: "Metadata store operations by result (ok, error, miss, skipped)",
		},
		[]string{"operation", "result"},
	)

	// Source scraping
	SourceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pibench_source_fetches_total",
			Help: "Fetches of the remote algorithm source file by result",
		},
		[]string{"result"},
	)

	SourceFunctionsExtracted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pibench_source_functions_extracted",
			Help: "Number of functions extracted by the last successful source fetch",
		},
	)

	// Reruns
	RerunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pibench_reruns_total",
			Help: "Rerun requests by result (rejected, compute_failed, persisted, not_persisted)",
		},
		[]string{"result"},
	)
)

// RecordAPIRequest records one served API request.
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordComputeRequest records one compute backend call.
func RecordComputeRequest(operation, outcome string, duration time.Duration) {
	ComputeRequestsTotal.WithLabelValues(operation, outcome).Inc()
	ComputeRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStoreOperation records one metadata store operation.
func RecordStoreOperation(operation, result string) {
	StoreOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordSourceFetch records one fetch of the source file. The extracted gauge
// is only updated for an "ok" fetch with a non-negative count.
func RecordSourceFetch(result string, extracted int) {
	SourceFetchesTotal.WithLabelValues(result).Inc()
	if result == "ok" && extracted >= 0 {
		SourceFunctionsExtracted.Set(float64(extracted))
	}
}

// RecordRerun records the final result of one rerun request.
func RecordRerun(result string) {
	RerunsTotal.WithLabelValues(result).Inc()
}
