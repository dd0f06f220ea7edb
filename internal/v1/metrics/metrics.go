package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the signaling broker.
//
// Naming convention: namespace_subsystem_name
// - namespace: signaling (application-level grouping)
// - subsystem: websocket, room, dispatch (feature-level grouping)
//
// Metric Types:
// - Gauge: Current state (connections, rooms)
// - Counter: Cumulative events (frames dispatched, rejections, drops)

var (
	// ActiveConnections tracks the current number of admitted WebSocket clients
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of admitted WebSocket connections",
	})

	// ActiveRooms tracks the current number of non-empty rooms
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of non-empty rooms",
	})

	// FramesDispatched counts inbound frames by outcome
	FramesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "dispatch",
		Name:      "frames_total",
		Help:      "Total inbound frames processed by the dispatcher",
	}, []string{"kind", "status"})

	// AdmissionRejections counts refused connections by reason
	AdmissionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "admission_rejections_total",
		Help:      "Total connections refused at handshake",
	}, []string{"reason"})

	// RateLimitDrops counts frames discarded by the per-client token bucket
	RateLimitDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "dispatch",
		Name:      "rate_limit_drops_total",
		Help:      "Total frames dropped by the per-client rate limiter",
	})

	// HeartbeatEvictions counts clients terminated for missing a pong
	HeartbeatEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "heartbeat_evictions_total",
		Help:      "Total clients evicted by the liveness heartbeat",
	})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
