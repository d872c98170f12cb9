package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript increments the window counter and stamps the TTL on first
// use. Buckets expire windowSec + 1 so Redis garbage-collects them.
var allowScript = redis.NewScript(`
	local count = redis.call("INCR", KEYS[1])
	if count == 1 then
		redis.call("EXPIRE", KEYS[1], ARGV[1])
	end
	return count
`)

// RedisLimiter fixed-window limiter shared by every process in the
// multi-process deployment.
type RedisLimiter struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		keyPrefix: "chat:ratelimit:",
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, clientKey, action string, limit int, window time.Duration) (bool, error) {
	key := l.keyPrefix + bucketKey(clientKey, action, time.Now(), window)
	ttlSec := int64(window.Seconds()) + 1

	count, err := allowScript.Run(ctx, l.client, []string{key}, ttlSec).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}

	return count <= limit, nil
}
