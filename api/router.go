package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/api/handlers"
	"github.com/yourusername/yt-fetch-go/api/middleware"
	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// SetupRouter sets up the HTTP router. history may be nil, in which case
// the history endpoints are not mounted.
func SetupRouter(orch *app.Orchestrator, history domain.HistoryRepository, log *zap.Logger) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(orch)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Live progress socket
	progressHandler := handlers.NewProgressWebSocketHandler(orch, log)
	router.GET("/ws/progress", progressHandler.HandleWebSocket)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Task endpoints
		taskHandler := handlers.NewTaskHandler(orch, log)
		tasks := v1.Group("/tasks")
		{
			tasks.POST("", taskHandler.SubmitTask)
			tasks.GET("", taskHandler.ListTasks)
			tasks.GET("/:id", taskHandler.GetTask)
			tasks.POST("/:id/transcode/cancel", taskHandler.CancelTranscode)
			tasks.DELETE("/:id", taskHandler.DeleteTask)
		}

		// History endpoints
		if history != nil {
			historyHandler := handlers.NewHistoryHandler(history, orch, log)
			hist := v1.Group("/history")
			{
				hist.GET("", historyHandler.ListHistory)
				hist.DELETE("/:id", historyHandler.DeleteHistory)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
