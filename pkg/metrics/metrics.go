// Package metrics defines the Prometheus collectors used by the similarity
// pipeline, the worker pool and the HTTP API, and exposes an HTTP handler for
// scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	TasksTotal          *prometheus.CounterVec
	PoolWorkers         prometheus.Gauge
	PoolBusyWorkers     prometheus.Gauge
	PoolQueueDepth      prometheus.Gauge
	WorkerRestartsTotal *prometheus.CounterVec
	TaskDuration        prometheus.Histogram

	CandidateSetSize        prometheus.Histogram
	MatchesPerSource        prometheus.Histogram
	VocabularyRebuildsTotal prometheus.Counter
	VocabularySize          prometheus.Gauge
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	MemoryPressureTotal     prometheus.Counter
	PersistFailuresTotal    *prometheus.CounterVec
	CircuitBreakerState     *prometheus.GaugeVec
}

// New creates all collectors and registers them on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pool_tasks_total",
				Help: "Tasks resolved by the worker pool by outcome (completed, failed, cancelled, rejected).",
			},
			[]string{"outcome"},
		),
		PoolWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pool_workers",
				Help: "Number of worker slots in the pool.",
			},
		),
		PoolBusyWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pool_busy_workers",
				Help: "Number of workers currently executing a task.",
			},
		),
		PoolQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pool_queue_depth",
				Help: "Number of tasks waiting for an idle worker.",
			},
		),
		WorkerRestartsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pool_worker_restarts_total",
				Help: "Worker restarts by reason (critical, cancelled).",
			},
			[]string{"reason"},
		),
		TaskDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pool_task_duration_seconds",
				Help:    "Time from dispatch to terminal outcome.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		CandidateSetSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "similarity_candidate_set_size",
				Help:    "Number of candidate targets proposed by the pre-filters per source.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
		),
		MatchesPerSource: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "similarity_matches_per_source",
				Help:    "Number of matches returned per source document.",
				Buckets: []float64{0, 1, 2, 3, 5, 10},
			},
		),
		VocabularyRebuildsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vsm_vocabulary_rebuilds_total",
				Help: "Number of vocabulary/IDF rebuilds caused by a corpus fingerprint change.",
			},
		),
		VocabularySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vsm_vocabulary_size",
				Help: "Number of terms in the current vocabulary.",
			},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Cache hits by cache name.",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Cache misses by cache name.",
			},
			[]string{"cache"},
		),
		MemoryPressureTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "memory_pressure_clears_total",
				Help: "Number of times registered caches were cleared under memory pressure.",
			},
		),
		PersistFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "persist_failures_total",
				Help: "Best-effort persistence writes that failed, by operation.",
			},
			[]string{"operation"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.TasksTotal,
		m.PoolWorkers,
		m.PoolBusyWorkers,
		m.PoolQueueDepth,
		m.WorkerRestartsTotal,
		m.TaskDuration,
		m.CandidateSetSize,
		m.MatchesPerSource,
		m.VocabularyRebuildsTotal,
		m.VocabularySize,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.MemoryPressureTotal,
		m.PersistFailuresTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
