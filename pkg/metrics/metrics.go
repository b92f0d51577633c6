package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Room lifecycle
	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_rooms_active",
			Help: "Rooms currently held in memory",
		},
	)

	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_connections_active",
			Help: "Registered websocket connections across all rooms",
		},
	)

	// Event traffic
	EventsBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_events_broadcast_total",
			Help: "Domain events fanned out to room connections",
		},
		[]string{"type"},
	)

	MalformedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_malformed_events_total",
			Help: "Inbound payloads dropped because they were not a known event",
		},
	)

	// Responder dispatch
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_dispatch_total",
			Help: "Responder dispatches by path and outcome",
		},
		[]string{"path", "outcome"}, // path: inference|retrieval, outcome: ok|fallback
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_dispatch_duration_seconds",
			Help:    "Time from user message to assistant reply",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"path"},
	)

	// Activity tap
	TapEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_tap_events_total",
			Help: "Room events observed by the activity tap",
		},
		[]string{"type"},
	)

	TapDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_tap_dropped_total",
			Help: "Room events not published to the event bus because its queue was full",
		},
	)
)

var (
	// HTTP surface
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_http_request_duration_seconds",
			Help:    "HTTP request latency (websocket routes measure the upgrade only)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
