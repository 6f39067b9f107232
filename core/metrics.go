package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks rewrite outcomes on an injected Prometheus registerer,
// so tests and embedders can keep their own registries.
type Metrics struct {
	Queries     *prometheus.CounterVec // terminal outcome per statement
	Fallbacks   *prometheus.CounterVec // fallback cause
	Branches    prometheus.Counter     // branch queries emitted
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// Fallback reason labels.
const (
	FallbackReasonAggregate    = "has_aggregate"
	FallbackReasonNoKey        = "no_partition_key"
	FallbackReasonShape        = "unsupported_shape"
	FallbackReasonRewriteError = "rewrite_error"
)

// NewMetrics creates and registers the orchestrator's metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semsql",
			Subsystem: "rewrite",
			Name:      "queries_total",
			Help:      "Statements processed, by terminal outcome.",
		}, []string{"outcome"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semsql",
			Subsystem: "rewrite",
			Name:      "fallbacks_total",
			Help:      "Sequential fallbacks, by cause.",
		}, []string{"reason"}),
		Branches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semsql",
			Subsystem: "rewrite",
			Name:      "branches_total",
			Help:      "Partitioned branch queries emitted.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semsql",
			Subsystem: "rewrite",
			Name:      "cache_hits_total",
			Help:      "Rewrite cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semsql",
			Subsystem: "rewrite",
			Name:      "cache_misses_total",
			Help:      "Rewrite cache misses.",
		}),
	}
	reg.MustRegister(m.Queries, m.Fallbacks, m.Branches, m.CacheHits, m.CacheMisses)
	return m
}
