package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/yt-fetch-go/internal/app"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	orch *app.Orchestrator
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(orch *app.Orchestrator) *HealthHandler {
	return &HealthHandler{
		orch: orch,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Tasks   struct {
		Accepting bool `json:"accepting"`
		Active    int  `json:"active"`
	} `json:"tasks"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
	}
	response.Tasks.Accepting = h.orch.Accepting()
	response.Tasks.Active = h.orch.Active()

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.orch.Accepting() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "orchestrator is shutting down",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
