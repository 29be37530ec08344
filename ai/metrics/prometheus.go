// Package metrics provides Prometheus metrics export for the indexing and
// search pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports pipeline metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Search metrics
	searchLatency  *prometheus.HistogramVec
	searchRequests *prometheus.CounterVec

	// Embedding metrics
	embeddingLatency *prometheus.HistogramVec
	embeddingErrors  *prometheus.CounterVec

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Reindex metrics
	reindexPasses    *prometheus.CounterVec
	reindexLatency   *prometheus.HistogramVec
	reindexCollapsed *prometheus.CounterVec
	reindexPending   prometheus.Gauge
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	// Search metrics
	e.searchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recruitsense",
			Subsystem: "ai",
			Name:      "search_latency_seconds",
			Help:      "Search request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"entity", "mode"},
	)

	e.searchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recruitsense",
			Subsystem: "ai",
			Name:      "search_requests_total",
			Help:      "Total number of search requests",
		},
		[]string{"entity", "mode", "fallback"},
	)

	// Embedding metrics
	e.embeddingLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recruitsense",
			Subsystem: "ai",
			Name:      "embedding_latency_seconds",
			Help:      "Embedding provider call latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"model"},
	)

	e.embeddingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recruitsense",
			Subsystem: "ai",
			Name:      "embedding_errors_total",
			Help:      "Total number of failed embedding provider calls",
		},
		[]string{"model", "error_type"},
	)

	// Cache metrics
	e.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recruitsense",
			Subsystem: "ai",
			Name:      "cache_hits_total",
			Help:      "Embedding cache lookups answered from the cache",
		},
		[]string{"cache_type"},
	)

	e.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recruitsense",
			Subsystem: "ai",
			Name:      "cache_misses_total",
			Help:      "Embedding cache lookups that called the provider",
		},
		[]string{"cache_type"},
	)

	// Reindex metrics
	e.reindexPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recruitsense",
			Subsystem: "reindex",
			Name:      "passes_total",
			Help:      "Total number of reindex passes",
		},
		[]string{"entity", "trigger", "status"},
	)

	e.reindexLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recruitsense",
			Subsystem: "reindex",
			Name:      "pass_latency_seconds",
			Help:      "Reindex pass latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"entity"},
	)

	e.reindexCollapsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recruitsense",
			Subsystem: "reindex",
			Name:      "events_collapsed_total",
			Help:      "Total number of events merged into an already pending pass",
		},
		[]string{"entity"},
	)

	e.reindexPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recruitsense",
			Subsystem: "reindex",
			Name:      "pending_records",
			Help:      "Number of records with a pending or running pass",
		},
	)

	// Register all metrics
	registry.MustRegister(
		e.searchLatency,
		e.searchRequests,
		e.embeddingLatency,
		e.embeddingErrors,
		e.cacheHits,
		e.cacheMisses,
		e.reindexPasses,
		e.reindexLatency,
		e.reindexCollapsed,
		e.reindexPending,
	)

	return e
}

// RecordSearch records a search request metric.
func (e *PrometheusExporter) RecordSearch(entity, mode string, fallback bool, latency time.Duration) {
	e.searchRequests.WithLabelValues(entity, mode, strconv.FormatBool(fallback)).Inc()
	e.searchLatency.WithLabelValues(entity, mode).Observe(latency.Seconds())
}

// RecordEmbedding records one provider call. An empty errorType means success.
func (e *PrometheusExporter) RecordEmbedding(model string, latency time.Duration, errorType string) {
	e.embeddingLatency.WithLabelValues(model).Observe(latency.Seconds())
	if errorType != "" {
		e.embeddingErrors.WithLabelValues(model, errorType).Inc()
	}
}

// RecordCacheHit records a cache hit.
func (e *PrometheusExporter) RecordCacheHit(cacheType string) {
	e.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (e *PrometheusExporter) RecordCacheMiss(cacheType string) {
	e.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordReindexPass records a finished reindex pass.
func (e *PrometheusExporter) RecordReindexPass(entity, trigger string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}

	e.reindexPasses.WithLabelValues(entity, trigger, status).Inc()
	e.reindexLatency.WithLabelValues(entity).Observe(latency.Seconds())
}

// RecordEventCollapsed records an event merged into a pending pass.
func (e *PrometheusExporter) RecordEventCollapsed(entity string) {
	e.reindexCollapsed.WithLabelValues(entity).Inc()
}

// SetPendingRecords sets the number of records with pending or running passes.
func (e *PrometheusExporter) SetPendingRecords(count int) {
	e.reindexPending.Set(float64(count))
}

// GetHandler returns the HTTP handler for Prometheus metrics.
func (e *PrometheusExporter) GetHandler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ServeHTTP implements http.Handler for the metrics endpoint.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.GetHandler().ServeHTTP(w, r)
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}
