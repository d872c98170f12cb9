package service

import (
	"context"
	"sync"
	"time"

	"github.com/EvanKristianPratama/Anon-chat/pkg/logger"
)

// SweepGuard keeps the sweep at concurrency 1. The local guard always
// grants (one goroutine per process, one process); the distributed
// guard wraps a short-TTL Redis lock so only one process sweeps per
// interval.
type SweepGuard interface {
	// Acquire returns a release func and true when this caller may
	// sweep now.
	Acquire(ctx context.Context) (func(), bool)
}

// LocalSweepGuard grants unconditionally.
type LocalSweepGuard struct{}

func (LocalSweepGuard) Acquire(context.Context) (func(), bool) {
	return func() {}, true
}

// Sweeper periodically terminates idle and over-duration rooms and then
// pushes fresh metrics to the admin feed. It is the only source of
// time-based room termination.
type Sweeper struct {
	rooms    *RoomService
	metrics  *MetricsService
	guard    SweepGuard
	interval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewSweeper(rooms *RoomService, metrics *MetricsService, guard SweepGuard, interval time.Duration) *Sweeper {
	return &Sweeper{
		rooms:    rooms,
		metrics:  metrics,
		guard:    guard,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	logger.Info("Starting expiry sweeper", "interval", s.interval)

	s.wg.Add(1)
	go s.loop()
}

// Stop halts the sweep loop.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	logger.Info("Expiry sweeper stopped")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// RunOnce performs one guarded sweep pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	release, ok := s.guard.Acquire(ctx)
	if !ok {
		// Another process is sweeping this interval.
		return
	}
	defer release()

	s.rooms.SweepExpired(ctx)
	s.metrics.Broadcast(ctx)
}
