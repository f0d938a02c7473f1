package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/domain"
)

const (
	progressPushInterval = 1 * time.Second
	progressPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// ProgressMessage is the payload pushed to websocket clients
type ProgressMessage struct {
	ActiveTasks []domain.Task `json:"active_tasks"`
}

// ProgressWebSocketHandler handles WebSocket connections for live task progress
type ProgressWebSocketHandler struct {
	orch   *app.Orchestrator
	logger *zap.Logger
}

// NewProgressWebSocketHandler creates a new progress WebSocket handler
func NewProgressWebSocketHandler(orch *app.Orchestrator, log *zap.Logger) *ProgressWebSocketHandler {
	return &ProgressWebSocketHandler{
		orch:   orch,
		logger: log,
	}
}

// HandleWebSocket handles GET /ws/progress. Snapshots of every live task
// are pushed on a fixed interval until the client disconnects.
func (h *ProgressWebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("WebSocket client connected",
		zap.String("remote_addr", c.Request.RemoteAddr))

	// Send the current snapshot so a new client does not wait for the
	// first tick.
	if err := h.push(conn); err != nil {
		return
	}

	// Read messages from client (close detection and ping/pong)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pushTicker := time.NewTicker(progressPushInterval)
	defer pushTicker.Stop()

	pingTicker := time.NewTicker(progressPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-pushTicker.C:
			if err := h.push(conn); err != nil {
				return
			}

		case <-pingTicker.C:
			// Keep the connection alive across idle periods
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func (h *ProgressWebSocketHandler) push(conn *websocket.Conn) error {
	msg := ProgressMessage{ActiveTasks: h.orch.Tasks()}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal progress message", zap.Error(err))
		return err
	}

	return conn.WriteMessage(websocket.TextMessage, data)
}
