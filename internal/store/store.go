// Package store defines the coordination store behind the matchmaking
// engine and room lifecycle. Two implementations exist: a Redis adapter
// for multi-process deployments (atomic Lua scripts, SETNX locks) and an
// in-memory adapter for single-process deployments (one mutex).
//
// Services are written against this contract only. Every operation that
// reads-then-writes more than one key is atomic inside the adapter.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/EvanKristianPratama/Anon-chat/internal/models"
)

var (
	// ErrQueueEmpty fewer than two entries were available for a pair pop.
	ErrQueueEmpty = errors.New("waiting queue has fewer than two entries")

	// ErrAlreadyInRoom the duplicate-pairing guard tripped on room creation.
	ErrAlreadyInRoom = errors.New("user already belongs to an active room")

	// ErrLockNotAcquired another termination holds the room lock.
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// Lock is a held mutual-exclusion lock with a TTL. Release is safe to
// call after the TTL expired; it only deletes a lock this holder owns.
type Lock interface {
	Release(ctx context.Context) error
}

// Store is the coordination capability set: the waiting queue with set
// membership, room records with member back-pointers, short-TTL room
// locks, and cumulative metrics counters.
type Store interface {
	// Enqueue appends the entry unless the user is already queued.
	// Returns false for the idempotent duplicate case.
	Enqueue(ctx context.Context, entry models.QueueEntry) (bool, error)

	// PushFront re-inserts an entry at the head, preserving its priority.
	PushFront(ctx context.Context, entry models.QueueEntry) error

	// RemoveFromQueue drops the user from the membership set. A list
	// entry left behind becomes stale and is discarded by the next pop.
	RemoveFromQueue(ctx context.Context, userID string) error

	// PopPair atomically removes the two head entries, or returns
	// ErrQueueEmpty leaving a lone waiter in place. Two concurrent
	// callers never observe the same entry.
	PopPair(ctx context.Context) (models.QueueEntry, models.QueueEntry, error)

	// QueueLen reports the number of queued entries.
	QueueLen(ctx context.Context) (int64, error)

	// CreateRoom stores the room and both member back-pointers in one
	// atomic step. Returns ErrAlreadyInRoom when either user already has
	// a room pointer.
	CreateRoom(ctx context.Context, room *models.Room) error

	// GetRoom returns the room or nil when it does not exist.
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)

	// RoomIDByUser returns the user's current room id, or "".
	RoomIDByUser(ctx context.Context, userID string) (string, error)

	// TouchRoom advances lastActivityAt. Values never move backwards.
	TouchRoom(ctx context.Context, roomID string, at int64) error

	// DeleteRoom removes the room record, both member pointers and the
	// active-set entry in one atomic step.
	DeleteRoom(ctx context.Context, room *models.Room) error

	// ActiveRoomIDs lists ids for the expiry sweep. Rooms may disappear
	// between enumeration and termination.
	ActiveRoomIDs(ctx context.Context) ([]string, error)

	// ClearUserRoom drops a dangling user pointer, but only while it
	// still references roomID.
	ClearUserRoom(ctx context.Context, userID, roomID string) error

	// PruneActiveRoom drops a stale id from the active set after its
	// room record vanished.
	PruneActiveRoom(ctx context.Context, roomID string) error

	// LockRoom acquires the short-TTL lock guarding termination of one
	// room. Returns ErrLockNotAcquired when another caller holds it.
	LockRoom(ctx context.Context, roomID string, ttl time.Duration) (Lock, error)

	// RecordConnect bumps the online counter and the peak watermark.
	RecordConnect(ctx context.Context) error

	// RecordDisconnect decrements the online counter, clamped at zero.
	RecordDisconnect(ctx context.Context) error

	// RecordRoomStarted bumps the active-rooms counter.
	RecordRoomStarted(ctx context.Context) error

	// RecordRoomEnded decrements active rooms and accumulates the
	// completed session's duration. Called once per termination.
	RecordRoomEnded(ctx context.Context, duration time.Duration) error

	// MetricsSnapshot reads the counters. Average duration is
	// sum/count, zero while no session has ended.
	MetricsSnapshot(ctx context.Context) (*models.MetricsSnapshot, error)

	// Close releases adapter resources (store connections).
	Close() error
}
