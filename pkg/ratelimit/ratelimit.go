// Package ratelimit implements fixed-window counters keyed by client
// and action. This is courtesy backpressure, not a security boundary:
// a rejected call gets a retryable error after the window rolls.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Limiter reports whether one more occurrence of an action is allowed
// for the client within the current window.
type Limiter interface {
	Allow(ctx context.Context, clientKey, action string, limit int, window time.Duration) (bool, error)
}

type bucket struct {
	count     int
	expiresAt time.Time
}

// MemoryLimiter fixed-window limiter for the single-process deployment.
// Expired buckets are purged on every call, so memory stays bounded
// without a background goroutine.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	now func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow increments the counter for (clientKey, action, windowIndex) and
// allows while the post-increment count stays within limit.
func (l *MemoryLimiter) Allow(_ context.Context, clientKey, action string, limit int, window time.Duration) (bool, error) {
	now := l.now()
	key := bucketKey(clientKey, action, now, window)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{expiresAt: now.Add(window + time.Second)}
		l.buckets[key] = b
	}
	b.count++

	l.gc(now)
	return b.count <= limit, nil
}

func (l *MemoryLimiter) gc(now time.Time) {
	for key, b := range l.buckets {
		if !b.expiresAt.After(now) {
			delete(l.buckets, key)
		}
	}
}

func bucketKey(clientKey, action string, now time.Time, window time.Duration) string {
	windowIndex := now.UnixMilli() / window.Milliseconds()
	return clientKey + ":" + action + ":" + strconv.FormatInt(windowIndex, 10)
}
