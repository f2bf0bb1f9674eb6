// Package metrics declares every Prometheus metric this service exposes.
// Naming follows namespace_subsystem_name: namespace is always "sfu",
// subsystem groups by component (worker, room, session, monitor,
// circuit_breaker, rate_limit).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sfu",
		Subsystem: "worker",
		Name:      "workers_active",
		Help:      "Current number of live media workers.",
	})

	WorkerConsumers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sfu",
		Subsystem: "worker",
		Name:      "consumers_active",
		Help:      "Current live consumer count per worker.",
	}, []string{"worker_id"})

	WorkerDeaths = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sfu",
		Subsystem: "worker",
		Name:      "deaths_total",
		Help:      "Total number of media workers that died unexpectedly.",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sfu",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms.",
	})

	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sfu",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants with at least one producer in each room.",
	}, []string{"room_id"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sfu",
		Subsystem: "session",
		Name:      "sessions_active",
		Help:      "Current number of active participant WebSocket sessions.",
	})

	SignalingMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfu",
		Subsystem: "session",
		Name:      "signaling_messages_total",
		Help:      "Total signaling messages processed, by action and outcome.",
	}, []string{"action", "status"})

	ActiveMonitors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sfu",
		Subsystem: "monitor",
		Name:      "connections_active",
		Help:      "Current number of connected monitor processes.",
	})

	MonitorEventsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfu",
		Subsystem: "monitor",
		Name:      "events_sent_total",
		Help:      "Total lifecycle events delivered to monitors.",
	}, []string{"event_kind"})

	MonitorEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sfu",
		Subsystem: "monitor",
		Name:      "evictions_total",
		Help:      "Total monitor connections evicted after repeated send failures.",
	})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sfu",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Circuit breaker state per service (0=closed, 1=open, 2=half-open).",
	}, []string{"service"})

	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfu",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by an open circuit breaker.",
	}, []string{"service"})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfu",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total requests that exceeded the connection rate limit.",
	}, []string{"endpoint"})
)
