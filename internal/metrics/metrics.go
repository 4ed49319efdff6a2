package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointment_events_published_total",
			Help: "Domain events published to the event bus",
		},
		[]string{"type", "result"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointment_events_consumed_total",
			Help: "Domain events received from the event bus",
		},
		[]string{"type", "result"},
	)

	BusReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_bus_resubscribes_total",
			Help: "Times the subscriber lost its connection and resubscribed",
		},
	)

	NotificationsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_persisted_total",
			Help: "Notification records written to the store",
		},
		[]string{"result"},
	)

	Pushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_pushes_total",
			Help: "Per-channel notification pushes",
		},
		[]string{"result"},
	)

	LiveChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_channels",
			Help: "Currently registered live channels",
		},
	)
)
