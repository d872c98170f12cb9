package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/EvanKristianPratama/Anon-chat/pkg/logger"
)

// DispatchEvent a match-attempt notification on the pub/sub channel.
type DispatchEvent struct {
	Type       string    `json:"type"`
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
}

const eventMatchAttempt = "match_attempt"

// RedisDispatcher fans match attempts out over Redis Pub/Sub and runs
// the pairing pass on a bounded worker pool. Any instance may win an
// attempt; the atomic pair-pop in the store keeps concurrent passes from
// consuming the same queue entries.
type RedisDispatcher struct {
	client       *redis.Client
	instanceID   string
	eventChannel string
	workers      int

	handler func(ctx context.Context)
	sem     chan struct{}
	stopped chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

func NewRedisDispatcher(client *redis.Client, workers int) *RedisDispatcher {
	if workers <= 0 {
		workers = 20
	}

	return &RedisDispatcher{
		client:       client,
		instanceID:   uuid.New().String(),
		eventChannel: "matchmaking:attempts",
		workers:      workers,
		sem:          make(chan struct{}, workers),
		stopped:      make(chan struct{}),
	}
}

// Start subscribes to the attempt channel and begins consuming. It
// returns after the subscription is confirmed; consumption continues in
// the background until Stop.
func (d *RedisDispatcher) Start(ctx context.Context, handler func(ctx context.Context)) error {
	d.handler = handler

	subCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	pubsub := d.client.Subscribe(subCtx, d.eventChannel)
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	logger.Info("Match dispatcher started",
		"instanceId", d.instanceID,
		"channel", d.eventChannel,
		"workers", d.workers,
	)

	d.wg.Add(1)
	go d.consume(subCtx, pubsub)

	return nil
}

func (d *RedisDispatcher) consume(ctx context.Context, pubsub *redis.PubSub) {
	defer d.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				continue
			}

			var event DispatchEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Error("Failed to unmarshal dispatch event", "error", err)
				continue
			}
			if event.Type != eventMatchAttempt {
				continue
			}

			select {
			case d.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				defer func() { <-d.sem }()
				d.handler(ctx)
			}()

		case <-d.stopped:
			return

		case <-ctx.Done():
			return
		}
	}
}

// NotifyEnqueued publishes one attempt. Every subscribed instance sees
// it, but only passes with locally connected eligible users produce
// pairs.
func (d *RedisDispatcher) NotifyEnqueued(ctx context.Context) error {
	event := DispatchEvent{
		Type:       eventMatchAttempt,
		InstanceID: d.instanceID,
		Timestamp:  time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch event: %w", err)
	}

	if err := d.client.Publish(ctx, d.eventChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish dispatch event: %w", err)
	}

	return nil
}

// Stop cancels the subscription and waits for in-flight passes.
func (d *RedisDispatcher) Stop() {
	d.once.Do(func() {
		close(d.stopped)
		if d.cancel != nil {
			d.cancel()
		}
		d.wg.Wait()
		logger.Info("Match dispatcher stopped", "instanceId", d.instanceID)
	})
}
