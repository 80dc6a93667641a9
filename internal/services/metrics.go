package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters for the resolution pipeline.
type Metrics struct {
	Resolutions     *prometheus.CounterVec // labels: source={cache,corridor-store,external-source,routing-engine,fallback}
	ResolveFailures prometheus.Counter

	CacheLookups *prometheus.CounterVec // labels: result={hit,miss}

	ProviderRequests  *prometheus.CounterVec // labels: provider, outcome={success,empty,error,rate_limited}
	DirectionOutcomes *prometheus.CounterVec // labels: outcome={stated,classified,corrected,undirected}
	ParityMismatches  prometheus.Counter

	ResolveDuration prometheus.Histogram
}

// NewMetrics creates and registers all resolver metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corridor",
			Name:      "resolutions_total",
			Help:      "Resolved events by geometry provenance tier.",
		}, []string{"source"}),
		ResolveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corridor",
			Name:      "resolve_failures_total",
			Help:      "Events rejected before any tier ran, usually invalid coordinates.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corridor",
			Name:      "cache_lookups_total",
			Help:      "Geometry cache lookups by result.",
		}, []string{"result"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corridor",
			Name:      "provider_requests_total",
			Help:      "External geometry provider requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		DirectionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corridor",
			Name:      "direction_outcomes_total",
			Help:      "Direction reconciliation outcomes.",
		}, []string{"outcome"}),
		ParityMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corridor",
			Name:      "parity_mismatches_total",
			Help:      "Events whose direction runs against the route numbering axis.",
		}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "corridor",
			Name:      "resolve_duration_seconds",
			Help:      "End-to-end duration of a single event resolution.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}

	prometheus.MustRegister(
		m.Resolutions,
		m.ResolveFailures,
		m.CacheLookups,
		m.ProviderRequests,
		m.DirectionOutcomes,
		m.ParityMismatches,
		m.ResolveDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// construct resolvers freely without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		Resolutions:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "corridor", Name: "resolutions_total"}, []string{"source"}),
		ResolveFailures:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "corridor", Name: "resolve_failures_total"}),
		CacheLookups:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "corridor", Name: "cache_lookups_total"}, []string{"result"}),
		ProviderRequests:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "corridor", Name: "provider_requests_total"}, []string{"provider", "outcome"}),
		DirectionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "corridor", Name: "direction_outcomes_total"}, []string{"outcome"}),
		ParityMismatches:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "corridor", Name: "parity_mismatches_total"}),
		ResolveDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "corridor", Name: "resolve_duration_seconds"}),
	}
}
