package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StatusResponse is the read-only snapshot served by GET /status. It
// tolerates transient inconsistency: a client may appear in Clients before
// it shows up in any room.
type StatusResponse struct {
	TotalClients int                 `json:"totalClients"`
	Clients      []string            `json:"clients"`
	Rooms        map[string][]string `json:"rooms"`
}

// Status handles GET /status.
func (h *Hub) Status(c *gin.Context) {
	clients := h.registry.IDs()
	c.JSON(http.StatusOK, StatusResponse{
		TotalClients: len(clients),
		Clients:      clients,
		Rooms:        h.rooms.Snapshot(),
	})
}
