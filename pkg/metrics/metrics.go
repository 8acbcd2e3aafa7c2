// Package metrics defines the Prometheus metric collectors used by the
// geocoder services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the geocoder.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	GeocodeQueriesTotal  *prometheus.CounterVec
	GeocodeLatency       *prometheus.HistogramVec
	GeocodeResultsCount  prometheus.Histogram
	SpatialmatchLatency  prometheus.Histogram
	StacksBuilt          prometheus.Histogram
	StacksCoalesced      prometheus.Counter
	WasteStacksTotal     prometheus.Counter
	ShardLoadsTotal      *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	FeaturesIndexedTotal *prometheus.CounterVec
	PhrasesWrittenTotal  *prometheus.CounterVec
	IndexFlushesTotal    *prometheus.CounterVec
	StoreKeys            *prometheus.GaugeVec
	CircuitBreakerState  *prometheus.GaugeVec
	KafkaMessagesTotal   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
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
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		GeocodeQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geocode_queries_total",
				Help: "Total forward geocode queries by outcome (hit, empty, error, reverse, feature_ref).",
			},
			[]string{"outcome"},
		),
		GeocodeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geocode_latency_seconds",
				Help:    "Forward geocode latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		GeocodeResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "geocode_results_count",
				Help:    "Number of features returned per geocode query.",
				Buckets: []float64{0, 1, 2, 5, 10},
			},
		),
		SpatialmatchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "spatialmatch_latency_seconds",
				Help:    "Time spent building, loading and coalescing stacks.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
		),
		StacksBuilt: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "spatialmatch_stacks_built",
				Help:    "Stacks produced by stackable per query.",
				Buckets: []float64{0, 1, 5, 10, 30, 100, 300},
			},
		),
		StacksCoalesced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "spatialmatch_stacks_coalesced_total",
				Help: "Total stacks sent to the coalescer.",
			},
		),
		WasteStacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "spatialmatch_waste_stacks_total",
				Help: "Total stacks that coalesced to no match.",
			},
		),
		ShardLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shard_loads_total",
				Help: "Total shard load calls by status.",
			},
			[]string{"status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		FeaturesIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "features_indexed_total",
				Help: "Total features indexed by source.",
			},
			[]string{"source"},
		),
		PhrasesWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phrases_written_total",
				Help: "Total phrase grid entries flushed by source.",
			},
			[]string{"source"},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"status"},
		),
		StoreKeys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "store_keys",
				Help: "Number of keys held by the shard store per type.",
			},
			[]string{"type"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		KafkaMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_total",
				Help: "Consumed Kafka messages by topic and outcome (ok, skipped, dropped).",
			},
			[]string{"topic", "outcome"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.GeocodeQueriesTotal,
		m.GeocodeLatency,
		m.GeocodeResultsCount,
		m.SpatialmatchLatency,
		m.StacksBuilt,
		m.StacksCoalesced,
		m.WasteStacksTotal,
		m.ShardLoadsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.FeaturesIndexedTotal,
		m.PhrasesWrittenTotal,
		m.IndexFlushesTotal,
		m.StoreKeys,
		m.CircuitBreakerState,
		m.KafkaMessagesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for g. A nil g uses
// the default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
