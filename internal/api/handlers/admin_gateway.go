package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"

	"github.com/EvanKristianPratama/Anon-chat/internal/models"
	"github.com/EvanKristianPratama/Anon-chat/pkg/logger"
)

// HandleAdminEvent routes inbound admin envelopes. Only admin:subscribe
// exists; a bad token both reports the error and force-closes the
// connection, unlike every user-facing failure.
func (g *ChatGateway) HandleAdminEvent(adminID string, envelope models.Envelope) {
	if envelope.Event != models.EventAdminSubscribe {
		g.emitAdminError(adminID, models.ErrCodeBadRequest, "Unsupported admin event.")
		return
	}

	var body models.AdminSubscribePayload
	if err := json.Unmarshal(envelope.Payload, &body); err != nil || body.Token == "" {
		g.rejectAdmin(adminID)
		return
	}

	if subtle.ConstantTimeCompare([]byte(body.Token), []byte(g.cfg.AdminToken)) != 1 {
		g.rejectAdmin(adminID)
		return
	}

	g.hub.AuthorizeAdmin(adminID)
	logger.Info("Admin subscribed", "adminId", adminID)

	snapshot, err := g.metrics.Snapshot(context.Background())
	if err != nil {
		logger.Error("Failed to snapshot metrics for admin", "error", err)
		return
	}
	g.hub.EmitToAdmin(adminID, models.EventAdminMetrics, snapshot)
}

// HandleAdminDisconnect is part of the hub handler contract; admin
// state lives entirely in the hub, so nothing remains to clean up.
func (g *ChatGateway) HandleAdminDisconnect(adminID string) {
	logger.Debug("Admin disconnected", "adminId", adminID)
}

func (g *ChatGateway) rejectAdmin(adminID string) {
	g.emitAdminError(adminID, models.ErrCodeBadRequest, "Invalid admin token.")
	g.hub.CloseAdmin(adminID)
}

func (g *ChatGateway) emitAdminError(adminID string, code models.ErrorCode, message string) {
	g.hub.EmitToAdmin(adminID, models.EventSystemError, models.SystemErrorPayload{
		Code:    code,
		Message: message,
	})
}
