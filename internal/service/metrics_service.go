package service

import (
	"context"
	"sync"
	"time"

	"github.com/EvanKristianPratama/Anon-chat/internal/models"
	"github.com/EvanKristianPratama/Anon-chat/pkg/logger"
)

// MetricsService aggregates online/active/peak/average-duration counters
// and pushes snapshots to admin subscribers on a fixed interval. The
// counters themselves live in the coordination store, so every process
// of a multi-process deployment reads the same numbers.
type MetricsService struct {
	store    metricsStore
	admins   AdminNotifier
	interval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// metricsStore is the slice of store.Store the aggregator needs.
type metricsStore interface {
	RecordConnect(ctx context.Context) error
	RecordDisconnect(ctx context.Context) error
	MetricsSnapshot(ctx context.Context) (*models.MetricsSnapshot, error)
}

func NewMetricsService(st metricsStore, admins AdminNotifier, interval time.Duration) *MetricsService {
	return &MetricsService{
		store:    st,
		admins:   admins,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// OnConnect bumps the online counter and the peak watermark.
func (s *MetricsService) OnConnect(ctx context.Context) {
	if err := s.store.RecordConnect(ctx); err != nil {
		logger.Error("Failed to record connect", "error", err)
	}
}

// OnDisconnect decrements the online counter.
func (s *MetricsService) OnDisconnect(ctx context.Context) {
	if err := s.store.RecordDisconnect(ctx); err != nil {
		logger.Error("Failed to record disconnect", "error", err)
	}
}

// Snapshot returns a point-in-time read of the counters.
func (s *MetricsService) Snapshot(ctx context.Context) (*models.MetricsSnapshot, error) {
	return s.store.MetricsSnapshot(ctx)
}

// Broadcast pushes one snapshot to admin subscribers immediately.
func (s *MetricsService) Broadcast(ctx context.Context) {
	snapshot, err := s.store.MetricsSnapshot(ctx)
	if err != nil {
		logger.Error("Failed to snapshot metrics", "error", err)
		return
	}
	s.admins.BroadcastAdmins(models.EventAdminMetrics, snapshot)
}

// Start begins the periodic admin push feed.
func (s *MetricsService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	logger.Info("Starting metrics push feed", "interval", s.interval)

	s.wg.Add(1)
	go s.pushLoop()
}

// Stop halts the push feed.
func (s *MetricsService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
}

func (s *MetricsService) pushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Broadcast(context.Background())
		case <-s.stopChan:
			return
		}
	}
}
