package service

import (
	"context"
	"errors"

	"github.com/EvanKristianPratama/Anon-chat/internal/models"
	"github.com/EvanKristianPratama/Anon-chat/internal/session"
	"github.com/EvanKristianPratama/Anon-chat/internal/store"
	"github.com/EvanKristianPratama/Anon-chat/pkg/distributed"
	"github.com/EvanKristianPratama/Anon-chat/pkg/logger"
)

// MatchService drains the waiting queue two at a time and turns eligible
// pairs into rooms. The store's PopPair is a single atomic operation;
// everything after it re-checks against the duplicate-pairing guard.
type MatchService struct {
	store      store.Store
	registry   *session.Registry
	notifier   Notifier
	rooms      *RoomService
	dispatcher distributed.MatchDispatcher
}

func NewMatchService(
	st store.Store,
	registry *session.Registry,
	notifier Notifier,
	rooms *RoomService,
	dispatcher distributed.MatchDispatcher,
) *MatchService {
	return &MatchService{
		store:      st,
		registry:   registry,
		notifier:   notifier,
		rooms:      rooms,
		dispatcher: dispatcher,
	}
}

// EnqueueAndMatch puts the user into the waiting queue and schedules a
// pairing pass. Users already in a room must leave it first.
func (s *MatchService) EnqueueAndMatch(ctx context.Context, userID string, enqueuedAt int64) error {
	roomID, err := s.store.RoomIDByUser(ctx, userID)
	if err != nil {
		return err
	}
	if roomID != "" {
		return ErrAlreadyInRoom
	}

	queued, err := s.store.Enqueue(ctx, models.QueueEntry{
		UserID:     userID,
		EnqueuedAt: enqueuedAt,
	})
	if err != nil {
		return err
	}

	s.notifier.EmitToUser(userID, models.EventQueueWaiting, nil)

	if queued {
		if err := s.dispatcher.NotifyEnqueued(ctx); err != nil {
			logger.Error("Failed to dispatch match attempt", "userId", userID, "error", err)
		}
	}
	return nil
}

// RemoveFromQueue drops a departing user from the waiting queue.
func (s *MatchService) RemoveFromQueue(ctx context.Context, userID string) {
	if err := s.store.RemoveFromQueue(ctx, userID); err != nil {
		logger.Error("Failed to remove user from queue", "userId", userID, "error", err)
	}
}

// RunMatchingPass repeatedly pops pairs until fewer than two entries
// remain. Stale entries (disconnected users, users who raced into a
// room) are discarded; a lone eligible survivor goes back to the front
// of the queue so it keeps its priority.
func (s *MatchService) RunMatchingPass(ctx context.Context) {
	for {
		first, second, err := s.store.PopPair(ctx)
		if errors.Is(err, store.ErrQueueEmpty) {
			return
		}
		if err != nil {
			logger.Error("Failed to pop queue pair", "error", err)
			return
		}

		// A user's two entries meeting each other is a benign race
		// under rapid disconnect/reconnect: requeue and keep going.
		if first.UserID == second.UserID {
			s.requeueFront(ctx, first)
			continue
		}

		firstEligible := s.eligible(ctx, first.UserID)
		secondEligible := s.eligible(ctx, second.UserID)

		switch {
		case !firstEligible && !secondEligible:
			continue
		case firstEligible && !secondEligible:
			s.requeueFront(ctx, first)
			continue
		case !firstEligible && secondEligible:
			s.requeueFront(ctx, second)
			continue
		}

		s.pair(ctx, first.UserID, second.UserID)
	}
}

// eligible means registered, connected to this process, and roomless.
func (s *MatchService) eligible(ctx context.Context, userID string) bool {
	if !s.registry.Has(userID) || !s.notifier.IsConnected(userID) {
		return false
	}

	roomID, err := s.store.RoomIDByUser(ctx, userID)
	if err != nil {
		logger.Error("Failed to check room membership", "userId", userID, "error", err)
		return false
	}
	return roomID == ""
}

func (s *MatchService) requeueFront(ctx context.Context, entry models.QueueEntry) {
	if err := s.store.PushFront(ctx, entry); err != nil {
		logger.Error("Failed to requeue entry", "userId", entry.UserID, "error", err)
	}
}

func (s *MatchService) pair(ctx context.Context, userA, userB string) {
	room, err := s.rooms.Create(ctx, userA, userB)
	if errors.Is(err, store.ErrAlreadyInRoom) {
		// Guard tripped by a race; drop the pair silently. Still-queued
		// users stay eligible for the next pass.
		logger.Debug("Discarded pair on duplicate-pairing guard", "userA", userA, "userB", userB)
		return
	}
	if err != nil {
		logger.Error("Failed to create room", "userA", userA, "userB", userB, "error", err)
		return
	}

	s.notifier.EmitToUser(userA, models.EventRoomMatched, models.RoomMatchedPayload{
		RoomID:       room.RoomID,
		PartnerID:    userB,
		PartnerAlias: s.registry.Alias(userB),
	})
	s.notifier.EmitToUser(userB, models.EventRoomMatched, models.RoomMatchedPayload{
		RoomID:       room.RoomID,
		PartnerID:    userA,
		PartnerAlias: s.registry.Alias(userA),
	})
}
