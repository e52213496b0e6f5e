package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Image-API Metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagevault",
			Subsystem: "image_api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imagevault",
			Subsystem: "image_api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	// Upload counters
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagevault",
			Subsystem: "image_api",
			Name:      "uploads_total",
			Help:      "Total image uploads by outcome",
		},
		[]string{"flow", "status"},
	)

	// Upload bytes counter
	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imagevault",
			Subsystem: "image_api",
			Name:      "upload_bytes_total",
			Help:      "Total bytes accepted for upload",
		},
	)

	// Blob store operations counter
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagevault",
			Subsystem: "image_api",
			Name:      "storage_operations_total",
			Help:      "Total blob store operations",
		},
		[]string{"operation", "status"},
	)

	// Blob store operation duration
	StorageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imagevault",
			Subsystem: "image_api",
			Name:      "storage_duration_seconds",
			Help:      "Blob store operation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	// Screening counters
	ScreeningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagevault",
			Subsystem: "image_api",
			Name:      "screenings_total",
			Help:      "Total content screening calls by outcome",
		},
		[]string{"status"},
	)

	// Screening duration
	ScreeningDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "imagevault",
			Subsystem: "image_api",
			Name:      "screening_duration_seconds",
			Help:      "Content screening call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)

	// Compensation counter: a later saga step failed and a prior step's
	// effect had to be undone.
	CompensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagevault",
			Subsystem: "image_api",
			Name:      "compensations_total",
			Help:      "Total compensating blob deletes by flow and outcome",
		},
		[]string{"flow", "status"},
	)

	// Orphan counter: reconciliation items that need out-of-band cleanup.
	OrphansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagevault",
			Subsystem: "image_api",
			Name:      "orphans_total",
			Help:      "Total orphaned blobs or dangling records detected",
		},
		[]string{"kind"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordUpload records an upload attempt outcome
func RecordUpload(flow, status string, bytes int64) {
	UploadsTotal.WithLabelValues(flow, status).Inc()
	if status == "success" {
		UploadBytesTotal.Add(float64(bytes))
	}
}

// RecordStorageOperation records a blob store operation
func RecordStorageOperation(operation, status string, durationSec float64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	StorageDuration.WithLabelValues(operation).Observe(durationSec)
}

// RecordScreening records a content screening call
func RecordScreening(status string, durationSec float64) {
	ScreeningsTotal.WithLabelValues(status).Inc()
	ScreeningDuration.Observe(durationSec)
}

// RecordCompensation records a compensating delete attempt
func RecordCompensation(flow, status string) {
	CompensationsTotal.WithLabelValues(flow, status).Inc()
}

// RecordOrphan records a reconciliation item
func RecordOrphan(kind string) {
	OrphansTotal.WithLabelValues(kind).Inc()
}
