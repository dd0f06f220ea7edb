// Package ratelimit guards the WebSocket handshake path with a per-IP
// connection-attempt limit. Per-frame rate limiting is a separate concern
// handled by each client's token bucket in the transport package.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/peerlink/signaling/internal/v1/logging"
	"github.com/peerlink/signaling/internal/v1/metrics"
)

// ConnectionLimiter bounds how fast a single IP may attempt new WebSocket
// connections. State is in-memory; the broker holds no cross-instance state.
type ConnectionLimiter struct {
	perIP *limiter.Limiter
}

// NewConnectionLimiter parses a formatted rate such as "100-M" (100 per
// minute) and returns a limiter backed by a memory store.
func NewConnectionLimiter(formattedRate string) (*ConnectionLimiter, error) {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		return nil, fmt.Errorf("invalid connect rate: %w", err)
	}
	return &ConnectionLimiter{
		perIP: limiter.New(memory.NewStore(), rate),
	}, nil
}

// CheckConnect reports whether a new connection attempt from the request's IP
// is allowed. On breach it writes a 429 response and returns false. Store
// errors fail open: availability wins over strictness here.
func (rl *ConnectionLimiter) CheckConnect(c *gin.Context) bool {
	ctx := c.Request.Context()

	ip := c.ClientIP()
	ipContext, err := rl.perIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "Connection rate limiter store failed", zap.Error(err))
		return true
	}

	if ipContext.Reached {
		metrics.AdmissionRejections.WithLabelValues("connect-rate").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(ipContext.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}

	return true
}
