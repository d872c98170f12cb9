package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/EvanKristianPratama/Anon-chat/internal/service"
	"github.com/EvanKristianPratama/Anon-chat/internal/session"
	ws "github.com/EvanKristianPratama/Anon-chat/internal/websocket"
	"github.com/EvanKristianPratama/Anon-chat/pkg/logger"
)

// WebSocketHandler upgrades user and admin connections.
type WebSocketHandler struct {
	hub      *ws.Hub
	registry *session.Registry
	metrics  *service.MetricsService
}

func NewWebSocketHandler(hub *ws.Hub, registry *session.Registry, metrics *service.MetricsService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		registry: registry,
		metrics:  metrics,
	}
}

// HandleUser accepts a user connection: a fresh opaque session id is
// assigned and announced to the metrics feed before the pumps start.
func (h *WebSocketHandler) HandleUser(c *gin.Context) {
	sess := h.registry.Register(c.ClientIP())

	ctx := context.Background()
	// The connect must land before the pumps can observe a disconnect,
	// or an instant close would decrement first and clamp at zero.
	h.metrics.OnConnect(ctx)

	if err := ws.ServeUser(h.hub, c.Writer, c.Request, sess.ID); err != nil {
		h.registry.Remove(sess.ID)
		h.metrics.OnDisconnect(ctx)
		return
	}

	h.metrics.Broadcast(ctx)

	logger.Debug("User connected", "userId", sess.ID, "ip", sess.IP)
}

// HandleAdmin accepts an admin connection. The connection stays
// unauthorized until admin:subscribe presents a valid token.
func (h *WebSocketHandler) HandleAdmin(c *gin.Context) {
	adminID := uuid.New().String()
	_ = ws.ServeAdmin(h.hub, c.Writer, c.Request, adminID)
}
