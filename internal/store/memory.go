package store

import (
	"context"
	"sync"
	"time"

	"github.com/EvanKristianPratama/Anon-chat/internal/models"
)

// MemoryStore is the single-process backend. One mutex owns the queue,
// the rooms and the counters, so every multi-key operation is naturally
// atomic and two pairing passes can never consume the same entry.
type MemoryStore struct {
	mu sync.Mutex

	queue        []models.QueueEntry
	queueMembers map[string]struct{}

	rooms     map[string]*models.Room
	userRooms map[string]string

	roomLocks map[string]time.Time // lock key -> expiry

	online         int64
	peakOnline     int64
	activeRooms    int64
	durationSumSec float64
	endedSessions  int64

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queueMembers: make(map[string]struct{}),
		rooms:        make(map[string]*models.Room),
		userRooms:    make(map[string]string),
		roomLocks:    make(map[string]time.Time),
		now:          time.Now,
	}
}

func (s *MemoryStore) Enqueue(_ context.Context, entry models.QueueEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, queued := s.queueMembers[entry.UserID]; queued {
		return false, nil
	}

	s.queueMembers[entry.UserID] = struct{}{}
	s.queue = append(s.queue, entry)
	return true, nil
}

func (s *MemoryStore) PushFront(_ context.Context, entry models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queueMembers[entry.UserID] = struct{}{}
	s.queue = append([]models.QueueEntry{entry}, s.queue...)
	return nil
}

func (s *MemoryStore) RemoveFromQueue(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.queueMembers, userID)
	for i := len(s.queue) - 1; i >= 0; i-- {
		if s.queue[i].UserID == userID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
		}
	}
	return nil
}

func (s *MemoryStore) PopPair(_ context.Context) (models.QueueEntry, models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) < 2 {
		return models.QueueEntry{}, models.QueueEntry{}, ErrQueueEmpty
	}

	first, second := s.queue[0], s.queue[1]
	s.queue = s.queue[2:]
	delete(s.queueMembers, first.UserID)
	delete(s.queueMembers, second.UserID)
	return first, second, nil
}

func (s *MemoryStore) QueueLen(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.queue)), nil
}

func (s *MemoryStore) CreateRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.userRooms[room.UserA]; busy {
		return ErrAlreadyInRoom
	}
	if _, busy := s.userRooms[room.UserB]; busy {
		return ErrAlreadyInRoom
	}

	cloned := *room
	s.rooms[room.RoomID] = &cloned
	s.userRooms[room.UserA] = room.RoomID
	s.userRooms[room.UserB] = room.RoomID
	return nil
}

func (s *MemoryStore) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, nil
	}
	cloned := *room
	return &cloned, nil
}

func (s *MemoryStore) RoomIDByUser(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userRooms[userID], nil
}

func (s *MemoryStore) TouchRoom(_ context.Context, roomID string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	if at > room.LastActivityAt {
		room.LastActivityAt = at
	}
	return nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms, room.RoomID)
	// Only clear pointers still referencing this room; a member may have
	// been re-paired already by the time a stale delete arrives.
	if s.userRooms[room.UserA] == room.RoomID {
		delete(s.userRooms, room.UserA)
	}
	if s.userRooms[room.UserB] == room.RoomID {
		delete(s.userRooms, room.UserB)
	}
	return nil
}

func (s *MemoryStore) ActiveRoomIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) ClearUserRoom(_ context.Context, userID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userRooms[userID] == roomID {
		delete(s.userRooms, userID)
	}
	return nil
}

func (s *MemoryStore) PruneActiveRoom(_ context.Context, _ string) error {
	// Room records are the active set here, nothing separate to prune.
	return nil
}

type memoryLock struct {
	store *MemoryStore
	key   string
}

func (l *memoryLock) Release(_ context.Context) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	delete(l.store.roomLocks, l.key)
	return nil
}

func (s *MemoryStore) LockRoom(_ context.Context, roomID string, ttl time.Duration) (Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := "room:" + roomID
	if expiry, held := s.roomLocks[key]; held && s.now().Before(expiry) {
		return nil, ErrLockNotAcquired
	}

	s.roomLocks[key] = s.now().Add(ttl)
	return &memoryLock{store: s, key: key}, nil
}

func (s *MemoryStore) RecordConnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.online++
	if s.online > s.peakOnline {
		s.peakOnline = s.online
	}
	return nil
}

func (s *MemoryStore) RecordDisconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.online > 0 {
		s.online--
	}
	return nil
}

func (s *MemoryStore) RecordRoomStarted(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRooms++
	return nil
}

func (s *MemoryStore) RecordRoomEnded(_ context.Context, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeRooms > 0 {
		s.activeRooms--
	}
	if duration > 0 {
		s.durationSumSec += duration.Seconds()
	}
	s.endedSessions++
	return nil
}

func (s *MemoryStore) MetricsSnapshot(_ context.Context) (*models.MetricsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	avg := 0.0
	if s.endedSessions > 0 {
		avg = s.durationSumSec / float64(s.endedSessions)
	}

	return &models.MetricsSnapshot{
		OnlineUsers:           s.online,
		ActiveRooms:           s.activeRooms,
		AvgSessionDurationSec: avg,
		PeakOnlineUsers:       s.peakOnline,
		At:                    s.now().UnixMilli(),
	}, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
