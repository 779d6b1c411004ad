// Package metrics defines the Prometheus collectors for indexing runs,
// searches and the HTTP layer, and exposes them for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine. A nil *Metrics is
// valid and records nothing, so library callers need not wire a registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitedTotal     prometheus.Counter

	IndexRunsTotal       *prometheus.CounterVec
	IndexRunDuration     *prometheus.HistogramVec
	FilesIndexedTotal    prometheus.Counter
	IndexFileErrorsTotal prometheus.Counter
	IndexTerms           prometheus.Gauge
	IndexPostings        prometheus.Gauge

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CacheHitsTotal     *prometheus.CounterVec
	CacheMissesTotal   prometheus.Counter

	CircuitBreakerState *prometheus.GaugeVec
}

// New creates all collectors and registers them, plus the Go runtime and
// process collectors, on reg. A nil reg gets a fresh registry, which keeps
// repeated construction in tests from colliding on the global one.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
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
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Index requests rejected by the per-client rate limiter.",
			},
		),
		IndexRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_runs_total",
				Help: "Indexing runs by outcome (completed, timed_out, cancelled).",
			},
			[]string{"outcome"},
		),
		IndexRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_run_duration_seconds",
				Help:    "Wall-clock duration of indexing runs.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		FilesIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_files_total",
				Help: "Files whose term counts were merged into the index.",
			},
		),
		IndexFileErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_file_errors_total",
				Help: "Files skipped because they could not be read.",
			},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_terms",
				Help: "Distinct terms held in the index.",
			},
		),
		IndexPostings: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_postings",
				Help: "Term-document pairs held in the index.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 2, 5, 10},
			},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Search cache hits by backend (redis, lru).",
			},
			[]string{"backend"},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of search cache misses.",
			},
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
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RateLimitedTotal,
		m.IndexRunsTotal,
		m.IndexRunDuration,
		m.FilesIndexedTotal,
		m.IndexFileErrorsTotal,
		m.IndexTerms,
		m.IndexPostings,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Registry returns the registry the collectors were registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) FileIndexed() {
	if m == nil {
		return
	}
	m.FilesIndexedTotal.Inc()
}

func (m *Metrics) FileFailed() {
	if m == nil {
		return
	}
	m.IndexFileErrorsTotal.Inc()
}

// ObserveRun records one finished indexing run and the index size after it.
func (m *Metrics) ObserveRun(outcome string, elapsed time.Duration, terms, postings int) {
	if m == nil {
		return
	}
	m.IndexRunsTotal.WithLabelValues(outcome).Inc()
	m.IndexRunDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	m.IndexTerms.Set(float64(terms))
	m.IndexPostings.Set(float64(postings))
}

// ObserveSearch records one answered query. cacheStatus is "hit" or "miss".
func (m *Metrics) ObserveSearch(cacheStatus string, elapsed time.Duration, results int) {
	if m == nil {
		return
	}
	resultType := "hit"
	if results == 0 {
		resultType = "zero_result"
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	m.SearchResultsCount.Observe(float64(results))
}

func (m *Metrics) CacheHit(backend string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(backend).Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// SetBreakerState publishes a circuit breaker's state as 0, 1 or 2.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}
