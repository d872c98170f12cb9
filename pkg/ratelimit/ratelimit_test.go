package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_Allow(t *testing.T) {
	limiter := NewMemoryLimiter()
	base := time.UnixMilli(1_700_000_000_000)
	limiter.now = func() time.Time { return base }

	ctx := context.Background()

	// First 5 calls in the window are allowed.
	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "1.2.3.4", "queue_join", 5, 10*time.Second)
		if err != nil {
			t.Fatalf("Allow returned error: %v", err)
		}
		if !allowed {
			t.Errorf("Call %d should be allowed", i+1)
		}
	}

	// 6th call in the same window is denied.
	allowed, err := limiter.Allow(ctx, "1.2.3.4", "queue_join", 5, 10*time.Second)
	if err != nil {
		t.Fatalf("Allow returned error: %v", err)
	}
	if allowed {
		t.Error("6th call in the window should be denied")
	}
}

func TestMemoryLimiter_WindowRolls(t *testing.T) {
	limiter := NewMemoryLimiter()
	base := time.UnixMilli(1_700_000_000_000)
	now := base
	limiter.now = func() time.Time { return now }

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		limiter.Allow(ctx, "client", "action", 3, 10*time.Second)
	}
	if allowed, _ := limiter.Allow(ctx, "client", "action", 3, 10*time.Second); allowed {
		t.Fatal("Call over the limit should be denied")
	}

	// Advance past the window boundary; the counter starts fresh.
	now = base.Add(10 * time.Second)
	if allowed, _ := limiter.Allow(ctx, "client", "action", 3, 10*time.Second); !allowed {
		t.Error("First call in the next window should be allowed")
	}
}

func TestMemoryLimiter_IndependentKeys(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()

	limiter.Allow(ctx, "clientA", "action", 1, 10*time.Second)
	if allowed, _ := limiter.Allow(ctx, "clientA", "action", 1, 10*time.Second); allowed {
		t.Error("clientA over its limit should be denied")
	}

	// A different client and a different action each get their own bucket.
	if allowed, _ := limiter.Allow(ctx, "clientB", "action", 1, 10*time.Second); !allowed {
		t.Error("clientB should have its own counter")
	}
	if allowed, _ := limiter.Allow(ctx, "clientA", "other", 1, 10*time.Second); !allowed {
		t.Error("other action should have its own counter")
	}
}

func TestMemoryLimiter_ExpiredBucketsAreCollected(t *testing.T) {
	limiter := NewMemoryLimiter()
	base := time.UnixMilli(1_700_000_000_000)
	now := base
	limiter.now = func() time.Time { return now }

	ctx := context.Background()

	limiter.Allow(ctx, "client", "action", 5, time.Second)

	// Well past expiry the old bucket must be gone after the next call.
	now = base.Add(time.Minute)
	limiter.Allow(ctx, "other", "action", 5, time.Second)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.buckets) != 1 {
		t.Errorf("Expected 1 live bucket, got %d", len(limiter.buckets))
	}
}
