package hub

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentmesh/orchestrator/internal/common/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests to websocket connections on behalf of one Hub.
type Handler struct {
	hub    *Hub
	logger *logger.Logger
}

// NewHandler builds a gin-compatible handler for hub.
func NewHandler(h *Hub, log *logger.Logger) *Handler {
	return &Handler{hub: h, logger: log}
}

// HandleConnection upgrades the request, registers the connection with the
// hub, and blocks for the connection's lifetime running its read pump.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade failed", zap.Error(err))
		return
	}

	client := h.hub.Accept(conn)
	client.ReadPump(c.Request.Context())
}

// RegisterHealth attaches a plain HTTP health endpoint to the router, reporting
// the hub's live connection count.
func RegisterHealth(r gin.IRouter, h *Hub) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": h.Count()})
	})
}
