package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// ActiveConnections tracks connected event stream clients.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lmsr_amm_ws_active_connections",
		Help: "Number of connected event stream clients",
	})

	// EventsPublishedTotal tracks events fanned out by the hub, by type.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsr_amm_ws_events_published_total",
			Help: "Total number of ledger events published to the stream",
		},
		[]string{"event_type"},
	)

	// MessagesDroppedTotal tracks messages that could not be delivered.
	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsr_amm_ws_messages_dropped_total",
			Help: "Total number of event stream messages dropped",
		},
		[]string{"reason"},
	)

	// ConnectionDuration tracks how long clients stay connected.
	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lmsr_amm_ws_connection_duration_seconds",
		Help:    "Duration of event stream connections before disconnect",
		Buckets: []float64{1, 10, 60, 300, 1800, 3600, 14400, 86400},
	})

	// EventsReceivedTotal tracks events read by a Subscriber, by type.
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsr_amm_ws_events_received_total",
			Help: "Total number of ledger events received by subscribers",
		},
		[]string{"event_type"},
	)

	// ReconnectAttemptsTotal tracks subscriber connection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lmsr_amm_ws_reconnect_attempts_total",
		Help: "Total number of event stream connection attempts",
	})

	// ReconnectFailuresTotal tracks failed subscriber connection attempts.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lmsr_amm_ws_reconnect_failures_total",
		Help: "Total number of failed event stream connection attempts",
	})
)
