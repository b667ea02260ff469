package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event pipeline metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_stream_events_published_total",
			Help: "Total change events published to the bus",
		},
		[]string{"event_type"},
	)

	PublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_stream_publish_errors_total",
			Help: "Total publish attempts rejected by the bus transport",
		},
	)

	// Streaming connection metrics
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulse_stream_active_connections",
			Help: "Currently open streaming connections",
		},
		[]string{"mode"},
	)

	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_stream_events_delivered_total",
			Help: "Events forwarded to streaming clients",
		},
		[]string{"mode"},
	)

	EventsFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_stream_events_filtered_total",
			Help: "Events withheld from region subscribers by the geo filter",
		},
	)

	HeartbeatsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_stream_heartbeats_total",
			Help: "Heartbeat events written to streaming clients",
		},
	)

	SlowConsumerDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_stream_slow_consumer_disconnects_total",
			Help: "Connections force-closed after their event queue overflowed",
		},
	)

	// Invalidation metrics
	Invalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_stream_cache_invalidations_total",
			Help: "Entity cache entries purged in response to change events",
		},
	)

	InvalidationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_stream_cache_invalidation_errors_total",
			Help: "Failed entity cache purges (best-effort, logged)",
		},
	)
)
