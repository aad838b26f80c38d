package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs compaction on a fixed interval.
type Scheduler struct {
	svc      *CompactionService
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewScheduler creates a new compaction scheduler.
func NewScheduler(svc *CompactionService, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}

	return &Scheduler{
		svc:      svc,
		interval: interval,
		logger:   logger.With("component", "compaction-scheduler"),
	}
}

// Start runs compaction every interval in a background goroutine. The first
// run happens after one interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("scheduler already running")
		return
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true

	go s.run(ctx, s.stopCh, s.doneCh)

	s.logger.Info("compaction scheduler started", "interval", s.interval)
}

// Stop signals the scheduler and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	done := s.doneCh
	s.running = false
	s.mu.Unlock()

	<-done
	s.logger.Info("compaction scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.logger.Info("scheduled compaction triggered")
			if err := s.svc.CompactAll(ctx); err != nil {
				s.logger.Error("scheduled compaction failed", "error", err)
			}
		}
	}
}
