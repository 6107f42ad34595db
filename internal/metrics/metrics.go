// Package metrics provides Prometheus metrics for the transform worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the transform worker.
type Metrics struct {
	// Job metrics
	JobsCompleted *prometheus.CounterVec
	JobAttempts   prometheus.Counter
	RetryAttempts prometheus.Counter
	DeadLetters   prometheus.Counter

	// Transform metrics
	TransformDuration prometheus.Histogram
	EventsProcessed   prometheus.Counter
	TotalEvents       prometheus.Gauge

	// Conversion metrics
	BatchesFlushed    prometheus.Counter
	BatchRows         prometheus.Histogram
	BatchBytes        prometheus.Histogram
	SinkFlushDuration prometheus.Histogram

	// Upload metrics
	UploadDuration prometheus.Histogram
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "transform_worker"
	}

	m := &Metrics{
		JobsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_completed_total",
				Help:      "Total number of jobs that reached a terminal state",
			},
			[]string{"status"},
		),
		JobAttempts: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_attempts_total",
				Help:      "Total number of transform attempts, including retries",
			},
		),
		RetryAttempts: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
		),
		DeadLetters: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dead_letters_total",
				Help:      "Total number of permanently failed jobs published to the dead-letter topic",
			},
		),
		TransformDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transform_duration_seconds",
				Help:      "Wall-clock time of one external transform invocation",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
			},
		),
		EventsProcessed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_processed_total",
				Help:      "Total number of events reported processed by the external transform",
			},
		),
		TotalEvents: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_total_events",
				Help:      "Total events announced by the most recent transform run",
			},
		),
		BatchesFlushed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_flushed_total",
				Help:      "Total number of columnar batches flushed to the sink",
			},
		),
		BatchRows: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_rows",
				Help:      "Number of rows per flushed batch",
				Buckets:   prometheus.ExponentialBuckets(100, 2, 10), // 100 to ~100k
			},
		),
		BatchBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_bytes",
				Help:      "Encoded size of flushed batches in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 2, 15), // 1KB to ~32MB
			},
		),
		SinkFlushDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sink_flush_duration_seconds",
				Help:      "Time to flush one batch to the sink",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
		UploadDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_duration_seconds",
				Help:      "Time to upload the transformed output artifact",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncJobsCompleted increments the terminal-outcome counter for a status.
func (m *Metrics) IncJobsCompleted(status string) {
	if m == nil {
		return
	}
	m.JobsCompleted.WithLabelValues(status).Inc()
}

// IncJobAttempts increments the attempt counter.
func (m *Metrics) IncJobAttempts() {
	if m == nil {
		return
	}
	m.JobAttempts.Inc()
}

// IncRetryAttempts increments the retry counter.
func (m *Metrics) IncRetryAttempts() {
	if m == nil {
		return
	}
	m.RetryAttempts.Inc()
}

// IncDeadLetters increments the dead-letter counter.
func (m *Metrics) IncDeadLetters() {
	if m == nil {
		return
	}
	m.DeadLetters.Inc()
}

// ObserveTransformDuration records one transform invocation's wall time.
func (m *Metrics) ObserveTransformDuration(seconds float64) {
	if m == nil {
		return
	}
	m.TransformDuration.Observe(seconds)
}

// RecordProgress records the counters scraped from a transform run's log.
func (m *Metrics) RecordProgress(eventsProcessed, totalEvents int64) {
	if m == nil {
		return
	}
	m.EventsProcessed.Add(float64(eventsProcessed))
	m.TotalEvents.Set(float64(totalEvents))
}

// ObserveBatchFlush records one flushed batch.
func (m *Metrics) ObserveBatchFlush(rows int, bytes int, seconds float64) {
	if m == nil {
		return
	}
	m.BatchesFlushed.Inc()
	m.BatchRows.Observe(float64(rows))
	m.BatchBytes.Observe(float64(bytes))
	m.SinkFlushDuration.Observe(seconds)
}

// ObserveUploadDuration records one artifact upload.
func (m *Metrics) ObserveUploadDuration(seconds float64) {
	if m == nil {
		return
	}
	m.UploadDuration.Observe(seconds)
}
