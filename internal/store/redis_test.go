package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EvanKristianPratama/Anon-chat/internal/models"
)

func setupRedisStore(t *testing.T) (*RedisStore, *redis.Client) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available:", err)
	}

	client.FlushDB(ctx)

	return NewRedisStore(client, 17*time.Minute), client
}

func TestRedisStore_EnqueueDeduplicates(t *testing.T) {
	s, client := setupRedisStore(t)
	defer client.Close()
	ctx := context.Background()

	queued, err := s.Enqueue(ctx, models.QueueEntry{UserID: "u1", EnqueuedAt: 1})
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = s.Enqueue(ctx, models.QueueEntry{UserID: "u1", EnqueuedAt: 2})
	require.NoError(t, err)
	assert.False(t, queued, "duplicate enqueue should report not queued")

	n, err := s.QueueLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisStore_PopPair(t *testing.T) {
	s, client := setupRedisStore(t)
	defer client.Close()
	ctx := context.Background()

	// One waiter keeps its place.
	s.Enqueue(ctx, models.QueueEntry{UserID: "u1", EnqueuedAt: 1})
	_, _, err := s.PopPair(ctx)
	assert.ErrorIs(t, err, ErrQueueEmpty)

	n, _ := s.QueueLen(ctx)
	assert.Equal(t, int64(1), n)

	s.Enqueue(ctx, models.QueueEntry{UserID: "u2", EnqueuedAt: 2})

	first, second, err := s.PopPair(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, "u2", second.UserID)

	// Popped users may enqueue again.
	queued, err := s.Enqueue(ctx, models.QueueEntry{UserID: "u1", EnqueuedAt: 3})
	require.NoError(t, err)
	assert.True(t, queued)
}

func TestRedisStore_PushFrontRestoresPriority(t *testing.T) {
	s, client := setupRedisStore(t)
	defer client.Close()
	ctx := context.Background()

	s.Enqueue(ctx, models.QueueEntry{UserID: "u2", EnqueuedAt: 2})
	require.NoError(t, s.PushFront(ctx, models.QueueEntry{UserID: "u1", EnqueuedAt: 1}))

	first, second, err := s.PopPair(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, "u2", second.UserID)
}

func TestRedisStore_CreateRoomGuardsBusyMembers(t *testing.T) {
	s, client := setupRedisStore(t)
	defer client.Close()
	ctx := context.Background()

	room := &models.Room{
		RoomID: "r1", UserA: "u1", UserB: "u2",
		StartedAt: 100, LastActivityAt: 100, Status: models.RoomStatusActive,
	}
	require.NoError(t, s.CreateRoom(ctx, room))

	dup := &models.Room{
		RoomID: "r2", UserA: "u2", UserB: "u3",
		StartedAt: 200, LastActivityAt: 200, Status: models.RoomStatusActive,
	}
	assert.ErrorIs(t, s.CreateRoom(ctx, dup), ErrAlreadyInRoom)

	// The rejected creation must leave no partial state behind.
	roomID, err := s.RoomIDByUser(ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, roomID)

	got, err := s.GetRoom(ctx, "r2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_RoomRoundTrip(t *testing.T) {
	s, client := setupRedisStore(t)
	defer client.Close()
	ctx := context.Background()

	room := &models.Room{
		RoomID: "r1", UserA: "u1", UserB: "u2",
		StartedAt: 100, LastActivityAt: 100, Status: models.RoomStatusActive,
	}
	require.NoError(t, s.CreateRoom(ctx, room))

	got, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserA)
	assert.Equal(t, "u2", got.UserB)
	assert.Equal(t, int64(100), got.StartedAt)
	assert.Equal(t, models.RoomStatusActive, got.Status)

	roomID, err := s.RoomIDByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "r1", roomID)

	ids, err := s.ActiveRoomIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids)

	// Missing rooms read as nil, not as an error.
	missing, err := s.GetRoom(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedisStore_TouchRoomIsMonotonic(t *testing.T) {
	s, client := setupRedisStore(t)
	defer client.Close()
	ctx := context.Background()

	room := &models.Room{
		RoomID: "r1", UserA: "u1", UserB: "u2",
		StartedAt: 100, LastActivityAt: 100, Status: models.RoomStatusActive,
	}
	require.NoError(t, s.CreateRoom(ctx, room))

	require.NoError(t, s.TouchRoom(ctx, "r1", 200))
	require.NoError(t, s.TouchRoom(ctx, "r1", 150))

	got, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.LastActivityAt)

	// Touching a vanished room is a no-op.
	assert.NoError(t, s.TouchRoom(ctx, "ghost", 300))
}

func TestRedisStore_DeleteRoomClearsOwnPointersOnly(t *testing.T) {
	s, client := setupRedisStore(t)
	defer client.Close()
	ctx := context.Background()

	room := &models.Room{
		RoomID: "r1", UserA: "u1", UserB: "u2",
		StartedAt: 100, LastActivityAt: 100, Status: models.RoomStatusActive,
	}
	require.NoError(t, s.CreateRoom(ctx, room))
	require.NoError(t, s.DeleteRoom(ctx, room))

	got, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, got)

	roomID, _ := s.RoomIDByUser(ctx, "u1")
	assert.Empty(t, roomID)

	ids, _ := s.ActiveRoomIDs(ctx)
	assert.Empty(t, ids)

	// A stale delete arriving after re-pairing keeps the new pointer.
	next := &models.Room{
		RoomID: "r2", UserA: "u1", UserB: "u3",
		StartedAt: 200, LastActivityAt: 200, Status: models.RoomStatusActive,
	}
	require.NoError(t, s.CreateRoom(ctx, next))
	require.NoError(t, s.DeleteRoom(ctx, room))

	roomID, _ = s.RoomIDByUser(ctx, "u1")
	assert.Equal(t, "r2", roomID)
}

func TestRedisStore_LockRoom(t *testing.T) {
	s, client := setupRedisStore(t)
	defer client.Close()
	ctx := context.Background()

	lock, err := s.LockRoom(ctx, "r1", 5*time.Second)
	require.NoError(t, err)

	_, err = s.LockRoom(ctx, "r1", 5*time.Second)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))

	lock2, err := s.LockRoom(ctx, "r1", 5*time.Second)
	require.NoError(t, err)

	// Releasing an already-expired lock is not an error.
	client.Del(ctx, roomLockKey("r1"))
	assert.NoError(t, lock2.Release(ctx))
}

func TestRedisStore_StaleReleaseKeepsNewHolder(t *testing.T) {
	s, client := setupRedisStore(t)
	defer client.Close()
	ctx := context.Background()

	stale, err := s.LockRoom(ctx, "r1", 5*time.Second)
	require.NoError(t, err)

	// TTL overrun mid-termination: the lock expires while the first
	// holder still runs, and another goroutine re-acquires it.
	client.Del(ctx, roomLockKey("r1"))
	current, err := s.LockRoom(ctx, "r1", 5*time.Second)
	require.NoError(t, err)

	// The late release carries a different owner token and must leave
	// the new holder's lock in place.
	require.NoError(t, stale.Release(ctx))

	_, err = s.LockRoom(ctx, "r1", 5*time.Second)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, current.Release(ctx))
}

func TestRedisStore_Metrics(t *testing.T) {
	s, client := setupRedisStore(t)
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, s.RecordConnect(ctx))
	require.NoError(t, s.RecordConnect(ctx))
	require.NoError(t, s.RecordConnect(ctx))
	require.NoError(t, s.RecordDisconnect(ctx))

	snap, err := s.MetricsSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.OnlineUsers)
	assert.Equal(t, int64(3), snap.PeakOnlineUsers)

	require.NoError(t, s.RecordRoomStarted(ctx))
	require.NoError(t, s.RecordRoomEnded(ctx, 30*time.Second))
	require.NoError(t, s.RecordRoomStarted(ctx))
	require.NoError(t, s.RecordRoomEnded(ctx, 90*time.Second))

	snap, err = s.MetricsSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.ActiveRooms)
	assert.InDelta(t, 60.0, snap.AvgSessionDurationSec, 0.001)
}

func TestRedisStore_MetricsClampAtZero(t *testing.T) {
	s, client := setupRedisStore(t)
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, s.RecordDisconnect(ctx))
	require.NoError(t, s.RecordRoomEnded(ctx, time.Second))

	snap, err := s.MetricsSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.OnlineUsers)
	assert.Equal(t, int64(0), snap.ActiveRooms)
}
