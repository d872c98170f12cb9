package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/EvanKristianPratama/Anon-chat/internal/config"
	"github.com/EvanKristianPratama/Anon-chat/internal/models"
	"github.com/EvanKristianPratama/Anon-chat/internal/sanitize"
	"github.com/EvanKristianPratama/Anon-chat/internal/service"
	"github.com/EvanKristianPratama/Anon-chat/internal/session"
	"github.com/EvanKristianPratama/Anon-chat/pkg/logger"
	"github.com/EvanKristianPratama/Anon-chat/pkg/ratelimit"
)

// SocketHub is the slice of the WebSocket hub the gateway emits
// through.
type SocketHub interface {
	EmitToUser(userID, event string, payload interface{})
	EmitToAdmin(adminID, event string, payload interface{})
	AuthorizeAdmin(adminID string)
	CloseAdmin(adminID string)
}

// Rate limit policy table, keyed by client IP.
const (
	queueJoinLimit  = 5
	queueJoinWindow = 10 * time.Second
	skipLimit       = 5
	skipWindow      = 10 * time.Second
	textLimit       = 25
	textWindow      = 5 * time.Second
	imageLimit      = 3
	imageWindow     = 5 * time.Second
)

var allowedImageMime = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

// ChatGateway validates inbound envelopes once at the boundary and
// forwards them to the engine. Every failure here is per-request and
// reported to the originating connection only.
type ChatGateway struct {
	cfg      *config.Config
	registry *session.Registry
	limiter  ratelimit.Limiter
	hub      SocketHub
	match    *service.MatchService
	rooms    *service.RoomService
	metrics  *service.MetricsService
}

func NewChatGateway(
	cfg *config.Config,
	registry *session.Registry,
	limiter ratelimit.Limiter,
	hub SocketHub,
	match *service.MatchService,
	rooms *service.RoomService,
	metrics *service.MetricsService,
) *ChatGateway {
	return &ChatGateway{
		cfg:      cfg,
		registry: registry,
		limiter:  limiter,
		hub:      hub,
		match:    match,
		rooms:    rooms,
		metrics:  metrics,
	}
}

// HandleUserEvent routes one inbound user envelope.
func (g *ChatGateway) HandleUserEvent(userID string, envelope models.Envelope) {
	ctx := context.Background()

	switch envelope.Event {
	case models.EventQueueJoin:
		g.onQueueJoin(ctx, userID, envelope.Payload)
	case models.EventRoomSkip:
		g.onRoomSkip(ctx, userID)
	case models.EventRoomStay:
		g.onRoomStay(ctx, userID)
	case models.EventChatText:
		g.onChatText(ctx, userID, envelope.Payload)
	case models.EventChatImage:
		g.onChatImage(ctx, userID, envelope.Payload)
	case models.EventHeartbeat:
		g.onHeartbeat(ctx, userID)
	default:
		g.emitError(userID, models.ErrCodeBadRequest, "Unsupported event.")
	}
}

// HandleUserDisconnect sequences the cleanup a session removal
// triggers: room termination, queue removal, session drop, metrics.
func (g *ChatGateway) HandleUserDisconnect(userID string) {
	ctx := context.Background()

	if _, err := g.rooms.EndByUser(ctx, userID, models.EndReasonDisconnect); err != nil {
		logger.Error("Failed to end room on disconnect", "userId", userID, "error", err)
	}
	g.match.RemoveFromQueue(ctx, userID)
	g.registry.Remove(userID)
	g.metrics.OnDisconnect(ctx)
	g.metrics.Broadcast(ctx)
}

func (g *ChatGateway) onQueueJoin(ctx context.Context, userID string, payload json.RawMessage) {
	if !g.allow(ctx, userID, "queue_join", queueJoinLimit, queueJoinWindow) {
		g.emitError(userID, models.ErrCodeRateLimited, "Too many queue requests.")
		return
	}

	var body models.QueueJoinPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &body); err != nil {
			g.emitError(userID, models.ErrCodeBadRequest, "Invalid payload.")
			return
		}
	}

	if body.Alias != "" {
		g.registry.SetAlias(userID, body.Alias)
	}
	if body.Avatar != nil {
		if !body.Avatar.Valid() {
			g.emitError(userID, models.ErrCodeBadRequest, "Invalid avatar descriptor.")
			return
		}
		g.registry.SetAvatar(userID, body.Avatar)
	}

	g.enqueue(ctx, userID)
}

func (g *ChatGateway) onRoomSkip(ctx context.Context, userID string) {
	if !g.allow(ctx, userID, "room_skip", skipLimit, skipWindow) {
		g.emitError(userID, models.ErrCodeRateLimited, "Skip rate limit exceeded.")
		return
	}

	// The skip actor gets no room:ended; it re-enters the queue instead.
	if _, err := g.rooms.EndByUser(ctx, userID, models.EndReasonSkip); err != nil {
		logger.Error("Failed to end room on skip", "userId", userID, "error", err)
	}

	g.enqueue(ctx, userID)
	g.metrics.Broadcast(ctx)
}

func (g *ChatGateway) onRoomStay(ctx context.Context, userID string) {
	room, err := g.rooms.FindByUser(ctx, userID)
	if err != nil {
		logger.Error("Failed to look up room on stay", "userId", userID, "error", err)
		return
	}
	if room != nil {
		return
	}

	g.enqueue(ctx, userID)
}

func (g *ChatGateway) onChatText(ctx context.Context, userID string, payload json.RawMessage) {
	if !g.allow(ctx, userID, "chat_text", textLimit, textWindow) {
		g.emitError(userID, models.ErrCodeRateLimited, "Message rate limit exceeded.")
		return
	}

	var body models.ChatTextPayload
	if err := json.Unmarshal(payload, &body); err != nil || body.Text == "" {
		g.emitError(userID, models.ErrCodeBadRequest, "Invalid message payload.")
		return
	}

	text := sanitize.Text(strings.TrimSpace(body.Text))
	if text == "" {
		return
	}

	if len([]rune(text)) > g.cfg.MaxMessageLength {
		g.emitError(userID, models.ErrCodeMessageTooLong, "Message exceeds the maximum length.")
		return
	}

	if err := g.rooms.RelayText(ctx, userID, text); err != nil {
		if errors.Is(err, service.ErrNotInRoom) {
			g.emitError(userID, models.ErrCodeNotInRoom, "You are not in an active room.")
			return
		}
		logger.Error("Failed to relay text", "userId", userID, "error", err)
	}
}

func (g *ChatGateway) onChatImage(ctx context.Context, userID string, payload json.RawMessage) {
	if !g.allow(ctx, userID, "chat_image", imageLimit, imageWindow) {
		g.emitError(userID, models.ErrCodeRateLimited, "Image rate limit exceeded.")
		return
	}

	var body models.ChatImagePayload
	if err := json.Unmarshal(payload, &body); err != nil {
		g.emitError(userID, models.ErrCodeBadRequest, "Invalid image payload.")
		return
	}

	if _, ok := allowedImageMime[body.Mime]; !ok {
		g.emitError(userID, models.ErrCodeUnsupportedImage, "Supported image types: jpeg, png, webp.")
		return
	}
	if body.Data == "" {
		g.emitError(userID, models.ErrCodeBadRequest, "Invalid image payload.")
		return
	}

	if base64ByteLength(body.Data) > g.cfg.MaxImageBytes {
		g.emitError(userID, models.ErrCodeImageTooLarge, "Image exceeds the maximum size.")
		return
	}

	if err := g.rooms.RelayImage(ctx, userID, body.Mime, body.Data); err != nil {
		if errors.Is(err, service.ErrNotInRoom) {
			g.emitError(userID, models.ErrCodeNotInRoom, "You are not in an active room.")
			return
		}
		logger.Error("Failed to relay image", "userId", userID, "error", err)
	}
}

func (g *ChatGateway) onHeartbeat(ctx context.Context, userID string) {
	if err := g.rooms.TouchByUser(ctx, userID); err != nil {
		logger.Error("Failed to touch room on heartbeat", "userId", userID, "error", err)
	}
}

func (g *ChatGateway) enqueue(ctx context.Context, userID string) {
	err := g.match.EnqueueAndMatch(ctx, userID, time.Now().UnixMilli())
	if errors.Is(err, service.ErrAlreadyInRoom) {
		g.emitError(userID, models.ErrCodeBadRequest, "Leave the active room before joining the queue.")
		return
	}
	if err != nil {
		logger.Error("Failed to enqueue user", "userId", userID, "error", err)
	}
}

// allow rate limits by client IP; an unknown session falls back to the
// user id so the limiter still has a stable key.
func (g *ChatGateway) allow(ctx context.Context, userID, action string, limit int, window time.Duration) bool {
	key := userID
	if s := g.registry.Get(userID); s != nil && s.IP != "" {
		key = s.IP
	}

	allowed, err := g.limiter.Allow(ctx, key, action, limit, window)
	if err != nil {
		logger.Error("Rate limiter failed", "action", action, "error", err)
		// Backpressure must not turn an infrastructure error into an
		// outage; fail open.
		return true
	}
	return allowed
}

func (g *ChatGateway) emitError(userID string, code models.ErrorCode, message string) {
	g.hub.EmitToUser(userID, models.EventSystemError, models.SystemErrorPayload{
		Code:    code,
		Message: message,
	})
}

// base64ByteLength computes the decoded size without decoding; data-URL
// prefixes before a comma are ignored.
func base64ByteLength(raw string) int {
	encoded := raw
	if idx := strings.LastIndexByte(raw, ','); idx >= 0 {
		encoded = raw[idx+1:]
	}

	padding := 0
	if strings.HasSuffix(encoded, "==") {
		padding = 2
	} else if strings.HasSuffix(encoded, "=") {
		padding = 1
	}
	return len(encoded)*3/4 - padding
}
