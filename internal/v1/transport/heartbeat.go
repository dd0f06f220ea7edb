package transport

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/peerlink/signaling/internal/v1/logging"
	"github.com/peerlink/signaling/internal/v1/metrics"
)

// runHeartbeat drives the process-wide liveness ticker until shutdown.
func (h *Hub) runHeartbeat() {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopHeartbeat:
			return
		case <-ticker.C:
			h.heartbeatSweep()
		}
	}
}

// heartbeatSweep evicts every client that missed the previous tick's ping,
// then arms the next round: clear alive, send a ping. A pong flips alive
// back before the next sweep. Eviction is quiet to the evicted client but
// announced to its room via the usual peer-left path.
func (h *Hub) heartbeatSweep() {
	for _, c := range h.registry.Snapshot() {
		if !c.alive.Load() {
			metrics.HeartbeatEvictions.Inc()
			logging.Warn(context.Background(), "Evicting unresponsive client", zap.String("clientId", c.id))
			h.Disconnect(c, websocket.CloseNormalClosure, "heartbeat timeout")
			continue
		}

		c.alive.Store(false)
		c.Ping()
	}
}
