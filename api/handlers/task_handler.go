package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	orch   *app.Orchestrator
	logger *zap.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(orch *app.Orchestrator, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		orch:   orch,
		logger: logger,
	}
}

// SubmitTaskRequest represents a request to submit a download task
type SubmitTaskRequest struct {
	URL    string `json:"url" binding:"required"`
	Format string `json:"format,omitempty"`
	ID     string `json:"id,omitempty"`
}

// SubmitTask handles POST /api/v1/tasks
func (h *TaskHandler) SubmitTask(c *gin.Context) {
	var req SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.orch.Submit(req.URL, req.Format, req.ID, nil)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrShuttingDown):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		case errors.Is(err, app.ErrTaskExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to submit task", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	task, ok := h.orch.GetStatus(id)
	if !ok {
		// The record can only vanish this fast through a concurrent cleanup.
		c.JSON(http.StatusCreated, gin.H{"id": id})
		return
	}

	c.JSON(http.StatusCreated, task)
}

// GetTask handles GET /api/v1/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	id := c.Param("id")

	task, ok := h.orch.GetStatus(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	c.JSON(http.StatusOK, task)
}

// ListTasks handles GET /api/v1/tasks
func (h *TaskHandler) ListTasks(c *gin.Context) {
	tasks := h.orch.Tasks()

	if status := c.Query("status"); status != "" {
		filtered := make([]domain.Task, 0, len(tasks))
		for _, task := range tasks {
			if string(task.Status) == status {
				filtered = append(filtered, task)
			}
		}
		tasks = filtered
	}

	c.JSON(http.StatusOK, tasks)
}

// CancelTranscodeRequest carries optional flags for a transcode cancel
type CancelTranscodeRequest struct {
	DeleteInput bool `json:"delete_input"`
}

// CancelTranscode handles POST /api/v1/tasks/:id/transcode/cancel
func (h *TaskHandler) CancelTranscode(c *gin.Context) {
	id := c.Param("id")

	var req CancelTranscodeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := h.orch.CancelTranscode(id, req.DeleteInput); err != nil {
		if errors.Is(err, app.ErrTranscodeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to cancel transcode", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "transcode cancelled"})
}

// DeleteTask handles DELETE /api/v1/tasks/:id
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id := c.Param("id")

	if !h.orch.Cleanup(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "task cleaned up"})
}
