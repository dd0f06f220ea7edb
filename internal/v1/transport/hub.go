package transport

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/peerlink/signaling/internal/v1/auth"
	"github.com/peerlink/signaling/internal/v1/config"
	"github.com/peerlink/signaling/internal/v1/logging"
	"github.com/peerlink/signaling/internal/v1/metrics"
	"github.com/peerlink/signaling/internal/v1/protocol"
	"github.com/peerlink/signaling/internal/v1/ratelimit"
)

// Close codes used by the broker. 4401 sits in the application range the
// WebSocket protocol reserves for private use.
const (
	closeOverloaded       = websocket.CloseTryAgainLater   // 1013
	closeOriginNotAllowed = websocket.ClosePolicyViolation // 1008
	closeAuthFailed       = 4401
	closeSlowConsumer     = websocket.CloseTryAgainLater // 1013
)

// Hub is the signaling broker: it owns the client registry, the room index,
// and the heartbeat, and hands each accepted connection to its own pair of
// pumps. Tests instantiate a fresh Hub per case; there is no process-global
// state.
type Hub struct {
	cfg            *config.Config
	registry       *Registry
	rooms          *Rooms
	secret         *auth.SecretValidator
	allowedOrigins []string
	connLimiter    *ratelimit.ConnectionLimiter

	wg            sync.WaitGroup
	stopHeartbeat chan struct{}
	closing       atomic.Bool
}

// NewHub creates a broker configured from cfg. The connection limiter is
// optional; pass nil to disable per-IP handshake limiting.
func NewHub(cfg *config.Config, connLimiter *ratelimit.ConnectionLimiter) *Hub {
	return &Hub{
		cfg:            cfg,
		registry:       NewRegistry(cfg.MaxClients),
		rooms:          NewRooms(cfg.MaxRoomClients),
		secret:         auth.NewSecretValidator(cfg.WSSecret),
		allowedOrigins: auth.ParseAllowedOrigins(cfg.AllowedOrigins),
		connLimiter:    connLimiter,
		stopHeartbeat:  make(chan struct{}),
	}
}

// Start launches the liveness heartbeat. Call once after construction.
func (h *Hub) Start() {
	go h.runHeartbeat()
}

// ServeWs upgrades the request and runs admission. Origin and token failures
// are reported with the protocol's close codes, which requires upgrading
// first; the upgrader itself accepts every origin.
func (h *Hub) ServeWs(c *gin.Context) {
	if h.closing.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}

	if h.connLimiter != nil && !h.connLimiter.CheckConnect(c) {
		return
	}

	origin := c.GetHeader("Origin")
	token := c.Query("token")

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
		WriteBufferPool: &sync.Pool{
			New: func() any {
				return make([]byte, 4096)
			},
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to upgrade connection", zap.Error(err))
		return
	}

	h.admit(conn, origin, token)
}

// admit runs the admission sequence on an upgraded connection: capacity,
// origin, token, then registration. The id frame is enqueued before the
// write pump starts, so it is always the first server frame.
func (h *Hub) admit(conn wsConnection, origin, token string) {
	if h.registry.AtCapacity() {
		h.reject(conn, closeOverloaded, "overloaded")
		return
	}

	if err := auth.ValidateOrigin(origin, h.allowedOrigins); err != nil {
		logging.Warn(context.Background(), "Origin not allowed", zap.String("origin", origin))
		h.reject(conn, closeOriginNotAllowed, "origin-not-allowed")
		return
	}

	if err := h.secret.ValidateToken(token); err != nil {
		h.reject(conn, closeAuthFailed, "auth-failed")
		return
	}

	client := newClient(conn, h)
	id, err := h.registry.Admit(client)
	if err != nil {
		h.reject(conn, closeOverloaded, "overloaded")
		return
	}

	client.alive.Store(true)
	metrics.IncConnection()
	client.Send(protocol.ID(id))

	go client.writePump()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	logging.Info(context.Background(), "Client admitted", zap.String("clientId", id))
}

// reject refuses a handshake after upgrade. No id frame is ever issued.
func (h *Hub) reject(conn wsConnection, code int, reason string) {
	metrics.AdmissionRejections.WithLabelValues(reason).Inc()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	_ = conn.Close()
	logging.Warn(context.Background(), "Connection rejected", zap.String("reason", reason))
}

// Disconnect detaches a client from the registry and its room, announcing
// the departure to room peers, then closes the client's stream.
func (h *Hub) Disconnect(c *Client, code int, reason string) {
	h.detach(c)
	c.shutdown(code, reason)
}

// detach removes the client from shared state exactly once. Room peers
// receive peer-left; the departing client gets no room-left, it is already
// gone.
func (h *Hub) detach(c *Client) {
	c.detachOnce.Do(func() {
		if _, remaining, ok := h.rooms.Leave(c); ok {
			for _, peer := range remaining {
				h.deliver(peer, protocol.PeerLeft(c.id))
			}
		}
		h.registry.Remove(c.id)
		metrics.DecConnection()
	})
}

// ClientCount reports the number of admitted clients, for readiness checks.
func (h *Hub) ClientCount() int {
	return h.registry.Len()
}

// ClientCapacity reports the global client cap.
func (h *Hub) ClientCapacity() int {
	return h.cfg.MaxClients
}

// Shutdown closes every client with a normal close code and waits up to the
// context deadline for read loops to drain, then forces termination.
func (h *Hub) Shutdown(ctx context.Context) error {
	if !h.closing.CompareAndSwap(false, true) {
		return nil
	}

	logging.Info(ctx, "Shutting down broker - closing all clients")
	close(h.stopHeartbeat)

	clients := h.registry.Snapshot()
	for _, c := range clients {
		h.Disconnect(c, websocket.CloseNormalClosure, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info(ctx, "All clients closed", zap.Int("count", len(clients)))
		return nil
	case <-ctx.Done():
		for _, c := range clients {
			_ = c.conn.Close()
		}
		return ctx.Err()
	}
}
