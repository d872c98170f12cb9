package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/EvanKristianPratama/Anon-chat/internal/models"
	"github.com/EvanKristianPratama/Anon-chat/pkg/distributed"
)

// Key layout. Everything lives under one prefix so a shared Redis can
// host other tenants.
const (
	keyQueue        = "chat:queue"
	keyQueueMembers = "chat:queue:members"
	keyActiveRooms  = "chat:rooms:active"

	keyMetricsOnline      = "chat:metrics:online"
	keyMetricsPeakOnline  = "chat:metrics:peak_online"
	keyMetricsActiveRooms = "chat:metrics:active_rooms"
	keyMetricsDurationSum = "chat:metrics:duration_sum_sec"
	keyMetricsEndedCount  = "chat:metrics:ended_count"
)

func roomKey(roomID string) string     { return "chat:room:" + roomID }
func userRoomKey(userID string) string { return "chat:user_room:" + userID }
func roomLockKey(roomID string) string { return "chat:room_lock:" + roomID }

// popPairScript removes the two head entries only when at least two are
// queued, so a lone waiter keeps its position. Running as one script is
// what stops two processes from consuming the same head entry.
var popPairScript = redis.NewScript(`
	if redis.call("LLEN", KEYS[1]) < 2 then
		return {}
	end
	local first = redis.call("LPOP", KEYS[1])
	local second = redis.call("LPOP", KEYS[1])
	return { first, second }
`)

// createRoomScript is the authoritative duplicate-pairing guard: the
// room hash and both member pointers appear in one atomic step, and
// creation refuses when either pointer already exists.
var createRoomScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[2]) == 1 or redis.call("EXISTS", KEYS[3]) == 1 then
		return 0
	end
	redis.call("HSET", KEYS[1],
		"userA", ARGV[1],
		"userB", ARGV[2],
		"startedAt", ARGV[3],
		"lastActivityAt", ARGV[3],
		"status", ARGV[4])
	redis.call("EXPIRE", KEYS[1], ARGV[5])
	redis.call("SET", KEYS[2], ARGV[6], "EX", ARGV[5])
	redis.call("SET", KEYS[3], ARGV[6], "EX", ARGV[5])
	redis.call("SADD", KEYS[4], ARGV[6])
	return 1
`)

// deleteRoomScript clears member pointers only while they still point at
// this room; a member may already belong to a newer room.
var deleteRoomScript = redis.NewScript(`
	redis.call("DEL", KEYS[1])
	redis.call("SREM", KEYS[4], ARGV[1])
	if redis.call("GET", KEYS[2]) == ARGV[1] then
		redis.call("DEL", KEYS[2])
	end
	if redis.call("GET", KEYS[3]) == ARGV[1] then
		redis.call("DEL", KEYS[3])
	end
	return 1
`)

// touchRoomScript keeps lastActivityAt monotonically non-decreasing.
var touchRoomScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 0 then
		return 0
	end
	local current = tonumber(redis.call("HGET", KEYS[1], "lastActivityAt")) or 0
	local at = tonumber(ARGV[1])
	if at > current then
		redis.call("HSET", KEYS[1], "lastActivityAt", ARGV[1])
	end
	return 1
`)

// connectScript bumps online and raises the peak watermark atomically.
var connectScript = redis.NewScript(`
	local online = redis.call("INCR", KEYS[1])
	local peak = tonumber(redis.call("GET", KEYS[2])) or 0
	if online > peak then
		redis.call("SET", KEYS[2], online)
	end
	return online
`)

// clampedDecrScript decrements without going below zero.
var clampedDecrScript = redis.NewScript(`
	local value = redis.call("DECR", KEYS[1])
	if value < 0 then
		redis.call("SET", KEYS[1], 0)
		return 0
	end
	return value
`)

// RedisStore is the multi-process backend. State lives in Redis and
// every read-then-write spanning more than one key runs as a Lua script,
// since Redis offers no wider transaction the engine could lean on.
type RedisStore struct {
	client  *redis.Client
	locks   *distributed.RedisLockManager
	roomTTL time.Duration
}

// NewRedisStore wraps an existing client. roomTTL is a safety net above
// the max session duration; the sweeper is the primary terminator.
func NewRedisStore(client *redis.Client, roomTTL time.Duration) *RedisStore {
	return &RedisStore{
		client:  client,
		locks:   distributed.NewRedisLockManager(client),
		roomTTL: roomTTL,
	}
}

func (s *RedisStore) Enqueue(ctx context.Context, entry models.QueueEntry) (bool, error) {
	inserted, err := s.client.SAdd(ctx, keyQueueMembers, entry.UserID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add queue member: %w", err)
	}
	if inserted == 0 {
		return false, nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	if err := s.client.RPush(ctx, keyQueue, data).Err(); err != nil {
		return false, fmt.Errorf("failed to enqueue: %w", err)
	}
	return true, nil
}

func (s *RedisStore) PushFront(ctx context.Context, entry models.QueueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, keyQueueMembers, entry.UserID)
	pipe.LPush(ctx, keyQueue, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push front: %w", err)
	}
	return nil
}

func (s *RedisStore) RemoveFromQueue(ctx context.Context, userID string) error {
	if err := s.client.SRem(ctx, keyQueueMembers, userID).Err(); err != nil {
		return fmt.Errorf("failed to remove queue member: %w", err)
	}
	return nil
}

func (s *RedisStore) PopPair(ctx context.Context) (models.QueueEntry, models.QueueEntry, error) {
	var empty models.QueueEntry

	result, err := popPairScript.Run(ctx, s.client, []string{keyQueue}).Result()
	if err != nil && err != redis.Nil {
		return empty, empty, fmt.Errorf("failed to pop pair: %w", err)
	}

	items, ok := result.([]interface{})
	if !ok || len(items) < 2 {
		return empty, empty, ErrQueueEmpty
	}

	first, err := parseQueueEntry(items[0])
	if err != nil {
		return empty, empty, err
	}
	second, err := parseQueueEntry(items[1])
	if err != nil {
		return empty, empty, err
	}

	// Membership follows the list; stale set entries would block
	// re-enqueueing these users.
	if err := s.client.SRem(ctx, keyQueueMembers, first.UserID, second.UserID).Err(); err != nil {
		return empty, empty, fmt.Errorf("failed to clear queue membership: %w", err)
	}

	return first, second, nil
}

func parseQueueEntry(raw interface{}) (models.QueueEntry, error) {
	var entry models.QueueEntry
	str, ok := raw.(string)
	if !ok {
		return entry, errors.New("unexpected queue entry type")
	}
	if err := json.Unmarshal([]byte(str), &entry); err != nil {
		return entry, fmt.Errorf("failed to unmarshal queue entry: %w", err)
	}
	return entry, nil
}

func (s *RedisStore) QueueLen(ctx context.Context) (int64, error) {
	return s.client.LLen(ctx, keyQueue).Result()
}

func (s *RedisStore) CreateRoom(ctx context.Context, room *models.Room) error {
	ttlSec := int64(s.roomTTL.Seconds())

	created, err := createRoomScript.Run(ctx, s.client,
		[]string{roomKey(room.RoomID), userRoomKey(room.UserA), userRoomKey(room.UserB), keyActiveRooms},
		room.UserA, room.UserB, room.StartedAt, string(room.Status), ttlSec, room.RoomID,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	if created == 0 {
		return ErrAlreadyInRoom
	}
	return nil
}

func (s *RedisStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	raw, err := s.client.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read room: %w", err)
	}
	return parseRoom(roomID, raw), nil
}

func parseRoom(roomID string, raw map[string]string) *models.Room {
	if raw["userA"] == "" || raw["userB"] == "" {
		return nil
	}

	startedAt, err := strconv.ParseInt(raw["startedAt"], 10, 64)
	if err != nil {
		return nil
	}
	lastActivityAt, err := strconv.ParseInt(raw["lastActivityAt"], 10, 64)
	if err != nil {
		return nil
	}

	status := models.RoomStatusActive
	if raw["status"] == string(models.RoomStatusEnding) {
		status = models.RoomStatusEnding
	}

	return &models.Room{
		RoomID:         roomID,
		UserA:          raw["userA"],
		UserB:          raw["userB"],
		StartedAt:      startedAt,
		LastActivityAt: lastActivityAt,
		Status:         status,
	}
}

func (s *RedisStore) RoomIDByUser(ctx context.Context, userID string) (string, error) {
	roomID, err := s.client.Get(ctx, userRoomKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read user room pointer: %w", err)
	}
	return roomID, nil
}

func (s *RedisStore) TouchRoom(ctx context.Context, roomID string, at int64) error {
	if err := touchRoomScript.Run(ctx, s.client, []string{roomKey(roomID)}, at).Err(); err != nil {
		return fmt.Errorf("failed to touch room: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteRoom(ctx context.Context, room *models.Room) error {
	err := deleteRoomScript.Run(ctx, s.client,
		[]string{roomKey(room.RoomID), userRoomKey(room.UserA), userRoomKey(room.UserB), keyActiveRooms},
		room.RoomID,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}

func (s *RedisStore) ActiveRoomIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, keyActiveRooms).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active rooms: %w", err)
	}
	return ids, nil
}

// clearUserRoomScript deletes the pointer only while it still
// references the given room.
var clearUserRoomScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		redis.call("DEL", KEYS[1])
		return 1
	end
	return 0
`)

func (s *RedisStore) ClearUserRoom(ctx context.Context, userID, roomID string) error {
	err := clearUserRoomScript.Run(ctx, s.client, []string{userRoomKey(userID)}, roomID).Err()
	if err != nil {
		return fmt.Errorf("failed to clear user room pointer: %w", err)
	}
	return nil
}

func (s *RedisStore) PruneActiveRoom(ctx context.Context, roomID string) error {
	if err := s.client.SRem(ctx, keyActiveRooms, roomID).Err(); err != nil {
		return fmt.Errorf("failed to prune active room: %w", err)
	}
	return nil
}

func (s *RedisStore) LockRoom(ctx context.Context, roomID string, ttl time.Duration) (Lock, error) {
	// Fresh owner token per acquisition: after a TTL overrun, a stale
	// Release must not pass the owner check against a newer holder.
	lock, err := s.locks.AcquireLock(ctx, roomLockKey(roomID), uuid.New().String(), ttl)
	if err == distributed.ErrLockNotAcquired {
		return nil, ErrLockNotAcquired
	}
	if err != nil {
		return nil, err
	}
	return redisLock{lock: lock}, nil
}

type redisLock struct {
	lock *distributed.RedisLock
}

func (l redisLock) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if err == distributed.ErrLockNotHeld {
		// TTL expired mid-termination; nothing left to free.
		return nil
	}
	return err
}

func (s *RedisStore) RecordConnect(ctx context.Context) error {
	if err := connectScript.Run(ctx, s.client, []string{keyMetricsOnline, keyMetricsPeakOnline}).Err(); err != nil {
		return fmt.Errorf("failed to record connect: %w", err)
	}
	return nil
}

func (s *RedisStore) RecordDisconnect(ctx context.Context) error {
	if err := clampedDecrScript.Run(ctx, s.client, []string{keyMetricsOnline}).Err(); err != nil {
		return fmt.Errorf("failed to record disconnect: %w", err)
	}
	return nil
}

func (s *RedisStore) RecordRoomStarted(ctx context.Context) error {
	if err := s.client.Incr(ctx, keyMetricsActiveRooms).Err(); err != nil {
		return fmt.Errorf("failed to record room start: %w", err)
	}
	return nil
}

func (s *RedisStore) RecordRoomEnded(ctx context.Context, duration time.Duration) error {
	if err := clampedDecrScript.Run(ctx, s.client, []string{keyMetricsActiveRooms}).Err(); err != nil {
		return fmt.Errorf("failed to record room end: %w", err)
	}

	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}

	pipe := s.client.TxPipeline()
	pipe.IncrByFloat(ctx, keyMetricsDurationSum, seconds)
	pipe.Incr(ctx, keyMetricsEndedCount)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record session duration: %w", err)
	}
	return nil
}

func (s *RedisStore) MetricsSnapshot(ctx context.Context) (*models.MetricsSnapshot, error) {
	values, err := s.client.MGet(ctx,
		keyMetricsOnline,
		keyMetricsActiveRooms,
		keyMetricsDurationSum,
		keyMetricsEndedCount,
		keyMetricsPeakOnline,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	online := parseCounter(values[0])
	active := parseCounter(values[1])
	durationSum := parseFloatCounter(values[2])
	endedCount := parseCounter(values[3])
	peak := parseCounter(values[4])

	avg := 0.0
	if endedCount > 0 {
		avg = durationSum / float64(endedCount)
	}

	return &models.MetricsSnapshot{
		OnlineUsers:           online,
		ActiveRooms:           active,
		AvgSessionDurationSec: avg,
		PeakOnlineUsers:       peak,
		At:                    time.Now().UnixMilli(),
	}, nil
}

func parseCounter(raw interface{}) int64 {
	str, ok := raw.(string)
	if !ok {
		return 0
	}
	value, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func parseFloatCounter(raw interface{}) float64 {
	str, ok := raw.(string)
	if !ok {
		return 0
	}
	value, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0
	}
	return value
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
