package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CapacityReporter exposes the broker's admission headroom to the readiness
// probe without coupling this package to the transport internals.
type CapacityReporter interface {
	ClientCount() int
	ClientCapacity() int
}

// Handler manages health check endpoints
type Handler struct {
	broker CapacityReporter
}

// NewHandler creates a new health check handler
func NewHandler(broker CapacityReporter) *Handler {
	return &Handler{broker: broker}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 while the broker can still admit clients, 503 once the global
// client cap is reached.
func (h *Handler) Readiness(c *gin.Context) {
	checks := make(map[string]string)

	status := "ready"
	statusCode := http.StatusOK

	capacity := "healthy"
	if h.broker != nil && h.broker.ClientCount() >= h.broker.ClientCapacity() {
		capacity = "saturated"
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}
	checks["capacity"] = capacity

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}
