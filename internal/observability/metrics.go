package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ride_simulator"

var (
	RidesRequested  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rides_requested_total", Help: "Total ride requests accepted"})
	RideTransitions = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Committed status transitions by target status"}, []string{"status"})
	InvalidActions  = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "invalid_actions_total", Help: "Actions rejected by the state machine"}, []string{"action"})

	MatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "matches_total", Help: "Drivers matched, by fleet or synthetic source"}, []string{"source"})
	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Match latency seconds"})

	SimTicks        = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "sim_ticks_total", Help: "Position simulator ticks applied"})
	SimTickFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "sim_tick_failures_total", Help: "Ticks that failed and were treated as no-ops"})
	StaleCallbacks  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "stale_callbacks_total", Help: "Scheduled callbacks dropped because their ride was superseded"})

	RouteUnavailable  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "route_unavailable_total", Help: "Route fetches that degraded to straight-line paths"})
	RouteBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "route_breaker_state", Help: "Route provider circuit state (0 closed, 1 half-open, 2 open)"}, []string{"breaker"})
	PersistErrors     = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "persistence_errors_total", Help: "State backend failures"}, []string{"op"})
	SinkErrors        = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "sink_errors_total", Help: "Event sink delivery failures"}, []string{"sink"})

	ActiveRideFare = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "active_ride_fare", Help: "Current fare of the active ride"})
	DriversOnline  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "drivers_online", Help: "Number of online simulated drivers"})
	WSClients      = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "ws_clients", Help: "Connected ride stream clients"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
