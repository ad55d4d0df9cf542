// Package metrics exposes the Prometheus instrumentation surface used by
// the job queue: job lifecycle counters/histograms and durable-adapter
// query timings.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for the queue.
type Metrics struct {
	registry *prometheus.Registry

	// Job metrics, recorded by the poller.
	JobStarted   *prometheus.CounterVec
	JobCompleted *prometheus.CounterVec
	JobFailed    *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec

	// Database metrics, recorded by the durable adapter.
	DatabaseQueriesTotal  *prometheus.CounterVec
	DatabaseQueryDuration *prometheus.HistogramVec
}

// NewMetrics creates a new metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.JobStarted = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_started_total",
			Help: "Total number of jobs claimed and started by a poller.",
		},
		[]string{"type"},
	)

	m.JobCompleted = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_completed_total",
			Help: "Total number of jobs completed.",
		},
		[]string{"type"},
	)

	m.JobFailed = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_failed_total",
			Help: "Total number of jobs that returned an error from the handler, whether requeued or terminally failed.",
		},
		[]string{"type"},
	)

	m.JobDuration = promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_job_duration_seconds",
			Help:    "Handler execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	m.DatabaseQueriesTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_database_queries_total",
			Help: "Total number of queries issued by the durable adapter.",
		},
		[]string{"operation"},
	)

	m.DatabaseQueryDuration = promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_database_query_duration_seconds",
			Help:    "Durable adapter query duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	return m
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordQuery records a durable adapter query's duration.
func (m *Metrics) RecordQuery(operation string, duration time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(operation).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
