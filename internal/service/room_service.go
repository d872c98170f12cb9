package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/EvanKristianPratama/Anon-chat/internal/models"
	"github.com/EvanKristianPratama/Anon-chat/internal/session"
	"github.com/EvanKristianPratama/Anon-chat/internal/store"
	"github.com/EvanKristianPratama/Anon-chat/pkg/logger"
)

// roomLockTTL bounds worst-case contention if a terminator crashes
// mid-operation.
const roomLockTTL = 5 * time.Second

// RoomService owns the room state machine: creation, relay, touch,
// termination and the expiry sweep. All room mutations serialize through
// the store's per-room lock (or its single mutex), so touch, relay and
// end never interleave inconsistently.
type RoomService struct {
	store    store.Store
	registry *session.Registry
	notifier Notifier

	idleTimeout time.Duration
	maxSession  time.Duration

	now func() time.Time
}

func NewRoomService(
	st store.Store,
	registry *session.Registry,
	notifier Notifier,
	idleTimeout time.Duration,
	maxSession time.Duration,
) *RoomService {
	return &RoomService{
		store:       st,
		registry:    registry,
		notifier:    notifier,
		idleTimeout: idleTimeout,
		maxSession:  maxSession,
		now:         time.Now,
	}
}

// Create pairs two users into a fresh room. Returns
// store.ErrAlreadyInRoom when the duplicate-pairing guard trips, which
// callers treat as a silent discard.
func (s *RoomService) Create(ctx context.Context, userA, userB string) (*models.Room, error) {
	now := s.now().UnixMilli()
	room := &models.Room{
		RoomID:         uuid.New().String(),
		UserA:          userA,
		UserB:          userB,
		StartedAt:      now,
		LastActivityAt: now,
		Status:         models.RoomStatusActive,
	}

	if err := s.store.CreateRoom(ctx, room); err != nil {
		return nil, err
	}

	if err := s.store.RecordRoomStarted(ctx); err != nil {
		logger.Error("Failed to record room start", "roomId", room.RoomID, "error", err)
	}

	logger.Info("Room created",
		"roomId", room.RoomID,
		"userA", userA,
		"userB", userB,
	)
	return room, nil
}

// FindByUser resolves the user's active room. A pointer referencing a
// vanished room is cleaned up and treated as absent.
func (s *RoomService) FindByUser(ctx context.Context, userID string) (*models.Room, error) {
	roomID, err := s.store.RoomIDByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if roomID == "" {
		return nil, nil
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		if err := s.store.ClearUserRoom(ctx, userID, roomID); err != nil {
			logger.Error("Failed to clear dangling room pointer", "userId", userID, "error", err)
		}
		return nil, nil
	}

	return room, nil
}

// TouchByUser advances the room's last activity, used by heartbeats.
func (s *RoomService) TouchByUser(ctx context.Context, userID string) error {
	room, err := s.FindByUser(ctx, userID)
	if err != nil || room == nil {
		return err
	}
	return s.store.TouchRoom(ctx, room.RoomID, s.now().UnixMilli())
}

// RelayText forwards a sanitized message to the sender's partner and
// touches the room. Returns ErrNotInRoom when the sender has no room.
func (s *RoomService) RelayText(ctx context.Context, fromUserID, text string) error {
	room, err := s.FindByUser(ctx, fromUserID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrNotInRoom
	}

	if err := s.store.TouchRoom(ctx, room.RoomID, s.now().UnixMilli()); err != nil {
		logger.Error("Failed to touch room on relay", "roomId", room.RoomID, "error", err)
	}

	s.notifier.EmitToUser(room.PartnerOf(fromUserID), models.EventChatText, models.ChatTextPayload{
		From:  fromUserID,
		Alias: s.registry.Alias(fromUserID),
		Text:  text,
		At:    s.now().UnixMilli(),
	})
	return nil
}

// RelayImage forwards a validated image to the sender's partner.
func (s *RoomService) RelayImage(ctx context.Context, fromUserID, mime, data string) error {
	room, err := s.FindByUser(ctx, fromUserID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrNotInRoom
	}

	if err := s.store.TouchRoom(ctx, room.RoomID, s.now().UnixMilli()); err != nil {
		logger.Error("Failed to touch room on relay", "roomId", room.RoomID, "error", err)
	}

	s.notifier.EmitToUser(room.PartnerOf(fromUserID), models.EventChatImage, models.ChatImagePayload{
		From:  fromUserID,
		Alias: s.registry.Alias(fromUserID),
		Mime:  mime,
		Data:  data,
		At:    s.now().UnixMilli(),
	})
	return nil
}

// EndByUser terminates the user's current room, if any. A nil result
// with nil error means there was nothing to end.
func (s *RoomService) EndByUser(ctx context.Context, userID string, reason models.EndReason) (*models.EndResult, error) {
	room, err := s.FindByUser(ctx, userID)
	if err != nil || room == nil {
		return nil, err
	}
	return s.EndByID(ctx, room.RoomID, reason, userID)
}

// EndByID terminates one room. Idempotent and race-safe: the short-TTL
// room lock serializes concurrent terminators, and a lost lock or a
// vanished room is a no-op, not an error.
//
// Notification policy: for skip only the non-acting member hears
// room:ended (the actor re-enters the queue instead); every other
// reason notifies each still-connected member.
func (s *RoomService) EndByID(ctx context.Context, roomID string, reason models.EndReason, actorUserID string) (*models.EndResult, error) {
	lock, err := s.store.LockRoom(ctx, roomID, roomLockTTL)
	if errors.Is(err, store.ErrLockNotAcquired) {
		// Another termination is in flight.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock room: %w", err)
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			logger.Error("Failed to release room lock", "roomId", roomID, "error", err)
		}
	}()

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, nil
	}

	if err := s.store.DeleteRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to delete room: %w", err)
	}

	duration := time.Duration(s.now().UnixMilli()-room.StartedAt) * time.Millisecond
	if err := s.store.RecordRoomEnded(ctx, duration); err != nil {
		logger.Error("Failed to record room end", "roomId", roomID, "error", err)
	}

	s.notifyEnded(room, reason, actorUserID)

	logger.Info("Room ended",
		"roomId", roomID,
		"reason", string(reason),
		"durationSec", duration.Seconds(),
	)
	return &models.EndResult{Room: room, Reason: reason}, nil
}

func (s *RoomService) notifyEnded(room *models.Room, reason models.EndReason, actorUserID string) {
	payload := models.RoomEndedPayload{Reason: reason}

	if reason == models.EndReasonSkip && actorUserID != "" {
		s.notifier.EmitToUser(room.PartnerOf(actorUserID), models.EventRoomEnded, payload)
		return
	}

	s.notifier.EmitToUser(room.UserA, models.EventRoomEnded, payload)
	s.notifier.EmitToUser(room.UserB, models.EventRoomEnded, payload)
}

// SweepExpired terminates idle and over-duration rooms. Rooms vanishing
// between enumeration and termination are handled by EndByID's
// idempotence.
func (s *RoomService) SweepExpired(ctx context.Context) int {
	roomIDs, err := s.store.ActiveRoomIDs(ctx)
	if err != nil {
		logger.Error("Failed to enumerate active rooms", "error", err)
		return 0
	}

	now := s.now().UnixMilli()
	ended := 0

	for _, roomID := range roomIDs {
		room, err := s.store.GetRoom(ctx, roomID)
		if err != nil {
			logger.Error("Failed to read room during sweep", "roomId", roomID, "error", err)
			continue
		}
		if room == nil {
			if err := s.store.PruneActiveRoom(ctx, roomID); err != nil {
				logger.Error("Failed to prune stale room", "roomId", roomID, "error", err)
			}
			continue
		}

		idle := time.Duration(now-room.LastActivityAt) * time.Millisecond
		total := time.Duration(now-room.StartedAt) * time.Millisecond

		switch {
		case idle > s.idleTimeout:
			if result, _ := s.EndByID(ctx, roomID, models.EndReasonTimeout, ""); result != nil {
				ended++
			}
		case total > s.maxSession:
			if result, _ := s.EndByID(ctx, roomID, models.EndReasonMaxDuration, ""); result != nil {
				ended++
			}
		}
	}

	if ended > 0 {
		logger.Info("Sweep ended rooms", "count", ended)
	}
	return ended
}
