package handlers

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// HistoryHandler handles download history HTTP requests
type HistoryHandler struct {
	history domain.HistoryRepository
	orch    *app.Orchestrator
	logger  *zap.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(history domain.HistoryRepository, orch *app.Orchestrator, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		history: history,
		orch:    orch,
		logger:  logger,
	}
}

// ListHistory handles GET /api/v1/history
func (h *HistoryHandler) ListHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	entries, err := h.history.FindRecent(limit)
	if err != nil {
		h.logger.Error("Failed to list history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, entries)
}

// DeleteHistory handles DELETE /api/v1/history/:id. The downloaded file is
// removed along with the record, and any live task state under the same id
// is cleaned up.
func (h *HistoryHandler) DeleteHistory(c *gin.Context) {
	id := c.Param("id")

	entry, err := h.history.FindByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history entry not found"})
		return
	}

	if entry.FilePath != "" {
		if err := os.Remove(entry.FilePath); err != nil && !os.IsNotExist(err) {
			h.logger.Warn("Failed to remove downloaded file",
				zap.String("path", entry.FilePath),
				zap.Error(err))
		}
	}

	if err := h.history.Delete(id); err != nil {
		h.logger.Error("Failed to delete history entry", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.orch.Cleanup(id)

	c.JSON(http.StatusOK, gin.H{"message": "history entry deleted"})
}
