package models

import "encoding/json"

// Inbound event names (client -> server)
const (
	EventQueueJoin      = "queue:join"
	EventRoomSkip       = "room:skip"
	EventRoomStay       = "room:stay"
	EventChatText       = "chat:text"
	EventChatImage      = "chat:image"
	EventHeartbeat      = "session:heartbeat"
	EventAdminSubscribe = "admin:subscribe"
)

// Outbound event names (server -> client)
const (
	EventQueueWaiting = "queue:waiting"
	EventRoomMatched  = "room:matched"
	EventRoomEnded    = "room:ended"
	EventSystemError  = "system:error"
	EventAdminMetrics = "admin:metrics"
)

// ErrorCode client-facing error taxonomy
type ErrorCode string

const (
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"
	ErrCodeBadRequest       ErrorCode = "BAD_REQUEST"
	ErrCodeMessageTooLong   ErrorCode = "MESSAGE_TOO_LONG"
	ErrCodeImageTooLarge    ErrorCode = "IMAGE_TOO_LARGE"
	ErrCodeUnsupportedImage ErrorCode = "UNSUPPORTED_IMAGE"
	ErrCodeNotInRoom        ErrorCode = "NOT_IN_ROOM"
)

// Envelope the wire frame for every WebSocket message, both directions.
// Payload stays raw until the handler for the event validates it.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AvatarPayload optional avatar descriptor carried on queue:join.
// Either a generated avatar (dicebear) or a user-supplied image.
type AvatarPayload struct {
	Type  string `json:"type"`
	Style string `json:"style,omitempty"`
	Seed  string `json:"seed,omitempty"`
	Mime  string `json:"mime,omitempty"`
	Data  string `json:"data,omitempty"`
}

// Valid reports whether the descriptor is one of the two allowed shapes.
func (a *AvatarPayload) Valid() bool {
	switch a.Type {
	case "dicebear":
		return true
	case "custom":
		return a.Mime != "" && a.Data != ""
	default:
		return false
	}
}

// QueueJoinPayload inbound queue:join
type QueueJoinPayload struct {
	Alias  string         `json:"alias,omitempty"`
	Avatar *AvatarPayload `json:"avatar,omitempty"`
}

// ChatTextPayload inbound/outbound chat:text
type ChatTextPayload struct {
	From  string `json:"from,omitempty"`
	Alias string `json:"alias,omitempty"`
	Text  string `json:"text"`
	At    int64  `json:"at,omitempty"`
}

// ChatImagePayload inbound/outbound chat:image. Data is base64-encoded.
type ChatImagePayload struct {
	From  string `json:"from,omitempty"`
	Alias string `json:"alias,omitempty"`
	Mime  string `json:"mime"`
	Data  string `json:"data"`
	At    int64  `json:"at,omitempty"`
}

// AdminSubscribePayload inbound admin:subscribe
type AdminSubscribePayload struct {
	Token string `json:"token"`
}

// RoomMatchedPayload outbound room:matched
type RoomMatchedPayload struct {
	RoomID       string `json:"roomId"`
	PartnerID    string `json:"partnerId"`
	PartnerAlias string `json:"partnerAlias,omitempty"`
}

// RoomEndedPayload outbound room:ended
type RoomEndedPayload struct {
	Reason EndReason `json:"reason"`
}

// SystemErrorPayload outbound system:error
type SystemErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}
