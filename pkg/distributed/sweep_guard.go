package distributed

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/EvanKristianPratama/Anon-chat/pkg/logger"
)

const sweepLockKey = "chat:sweep_lock"

// RedisSweepGuard lets exactly one process run the expiry sweep per
// interval. The lock TTL should stay below the sweep interval so a
// crashed holder never skips more than one pass.
type RedisSweepGuard struct {
	locks   *RedisLockManager
	ownerID string
	ttl     time.Duration
}

func NewRedisSweepGuard(client *redis.Client, ttl time.Duration) *RedisSweepGuard {
	return &RedisSweepGuard{
		locks:   NewRedisLockManager(client),
		ownerID: uuid.New().String(),
		ttl:     ttl,
	}
}

// Acquire attempts the sweep lock once: no retries, a lost race simply
// means another process sweeps this round.
func (g *RedisSweepGuard) Acquire(ctx context.Context) (func(), bool) {
	lock, err := g.locks.AcquireLock(ctx, sweepLockKey, g.ownerID, g.ttl)
	if err == ErrLockNotAcquired {
		return nil, false
	}
	if err != nil {
		logger.Error("Failed to acquire sweep lock", "error", err)
		return nil, false
	}

	return func() {
		if err := lock.Release(context.Background()); err != nil && err != ErrLockNotHeld {
			logger.Error("Failed to release sweep lock", "error", err)
		}
	}, true
}
