// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_published_total",
			Help: "Total number of publish attempts per channel and outcome",
		},
		[]string{"channel", "status"},
	)

	EventReceivers = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_event_receivers",
			Help:    "Number of subscribers that received a published event",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"channel"},
	)

	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_streams_active",
			Help: "Number of open client event streams",
		},
	)

	ChannelHandlers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_channel_handlers",
			Help: "Number of registered message handlers per channel",
		},
		[]string{"channel"},
	)

	NotificationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_enqueued_total",
			Help: "Total number of notification payloads handed to the delivery queue",
		},
		[]string{"backend", "status"},
	)

	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Total number of queued notifications drained onto the realtime channel",
		},
		[]string{"source", "status"},
	)

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Duration of read queries against the application and analytics stores",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query", "store"},
	)
)
