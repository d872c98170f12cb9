package distributed

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDispatcher_RunsHandlerInline(t *testing.T) {
	dispatcher := NewLocalDispatcher()
	ctx := context.Background()

	var calls int32
	err := dispatcher.Start(ctx, func(context.Context) {
		atomic.AddInt32(&calls, 1)
	})
	require.NoError(t, err)
	defer dispatcher.Stop()

	require.NoError(t, dispatcher.NotifyEnqueued(ctx))
	require.NoError(t, dispatcher.NotifyEnqueued(ctx))

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRedisDispatcher_DeliversAttempts(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	dispatcher := NewRedisDispatcher(client, 4)
	ctx := context.Background()

	attempts := make(chan struct{}, 8)
	err := dispatcher.Start(ctx, func(context.Context) {
		attempts <- struct{}{}
	})
	require.NoError(t, err)
	defer dispatcher.Stop()

	require.NoError(t, dispatcher.NotifyEnqueued(ctx))

	select {
	case <-attempts:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked after publish")
	}
}

func TestRedisDispatcher_StopWaitsForInflight(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	dispatcher := NewRedisDispatcher(client, 2)
	ctx := context.Background()

	started := make(chan struct{})
	var finished int32
	err := dispatcher.Start(ctx, func(context.Context) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
	})
	require.NoError(t, err)

	require.NoError(t, dispatcher.NotifyEnqueued(ctx))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	dispatcher.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&finished), "Stop should wait for the in-flight pass")
}
