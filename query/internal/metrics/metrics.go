package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_query_cache_lookups_total",
			Help: "Cache lookups by kind (facility, search) and outcome (hit, miss)",
		},
		[]string{"kind", "outcome"},
	)

	// TierFallbacks counts read-path degradations: every increment means a
	// tier was unreachable and the next one answered instead. Operators
	// alert on the index->store transition to catch search degradation.
	TierFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_query_tier_fallbacks_total",
			Help: "Reads that fell back from one tier to the next",
		},
		[]string{"from", "to"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_query_request_duration_seconds",
			Help:    "Read-path request duration by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CachePurges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_query_admin_cache_purges_total",
			Help: "Keys removed through the administrative purge endpoint",
		},
	)
)
