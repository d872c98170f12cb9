// Package distributed carries the coordination primitives used by the
// multi-process deployment: Redis locks and the match-attempt
// dispatcher. The single-process deployment uses the local dispatcher,
// which collapses dispatch into a direct call.
package distributed

import "context"

// MatchDispatcher decouples "a user became eligible to match" from
// running the pairing pass, so the pass can execute on a bounded worker
// pool instead of inline in the connection's event handler.
type MatchDispatcher interface {
	// NotifyEnqueued schedules one pairing pass.
	NotifyEnqueued(ctx context.Context) error

	// Start begins consuming attempts with the given handler.
	Start(ctx context.Context, handler func(ctx context.Context)) error

	// Stop drains workers and stops consuming.
	Stop()
}

// LocalDispatcher runs the pairing pass inline. With a single state
// owner there is nothing to coordinate across processes.
type LocalDispatcher struct {
	handler func(ctx context.Context)
}

func NewLocalDispatcher() *LocalDispatcher {
	return &LocalDispatcher{}
}

func (d *LocalDispatcher) Start(_ context.Context, handler func(ctx context.Context)) error {
	d.handler = handler
	return nil
}

func (d *LocalDispatcher) NotifyEnqueued(ctx context.Context) error {
	if d.handler != nil {
		d.handler(ctx)
	}
	return nil
}

func (d *LocalDispatcher) Stop() {}
