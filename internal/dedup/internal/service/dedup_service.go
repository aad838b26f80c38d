// Package service drives the fingerprint filter: periodic rotation,
// batch filtering and the dedup metric.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/moveoone/moveo/internal/dedup/internal/domain"
	"github.com/moveoone/moveo/internal/observability"
)

// DedupService owns a FingerprintFilter and rotates it every half window.
type DedupService struct {
	filter  *domain.FingerprintFilter
	metrics *observability.Metrics
	logger  *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewDedupService creates a service over a filter with the given parameters.
// metrics may be nil.
func NewDedupService(
	window time.Duration,
	capacity uint,
	fpRate float64,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *DedupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DedupService{
		filter:  domain.NewFingerprintFilter(window, capacity, fpRate),
		metrics: metrics,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// IsDuplicate reports whether fingerprint was seen within the window and
// records it otherwise. Empty fingerprints are never duplicates.
func (s *DedupService) IsDuplicate(ctx context.Context, appID, fingerprint string) bool {
	if fingerprint == "" {
		return false
	}

	if !s.filter.Seen(fingerprint) {
		return false
	}

	if s.metrics != nil {
		s.metrics.DedupDropped.Add(ctx, 1,
			otelmetric.WithAttributes(attribute.String("app_id", appID)))
	}
	s.logger.Debug("duplicate event dropped",
		"app_id", appID,
		"fingerprint", fingerprint,
	)
	return true
}

// Start launches the rotation goroutine. It stops when ctx is cancelled or
// Stop is called. Calling Start more than once has no effect.
func (s *DedupService) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		interval := s.filter.Window() / 2
		s.logger.Info("dedup service started",
			"window", s.filter.Window(),
			"rotate_interval", interval,
		)
		go s.rotateLoop(ctx, interval)
	})
}

func (s *DedupService) rotateLoop(ctx context.Context, interval time.Duration) {
	defer close(s.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n := s.filter.Rotate()
			s.logger.Debug("fingerprint filter rotated", "retired_half_window_keys", n)
		case <-ctx.Done():
			s.logger.Info("dedup service stopping (context cancelled)")
			return
		case <-s.stopCh:
			s.logger.Info("dedup service stopping (stop requested)")
			return
		}
	}
}

// Stop signals the rotation goroutine and waits for it. It is safe to call
// without Start and more than once.
func (s *DedupService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		started := true
		s.startOnce.Do(func() { started = false })
		if started {
			<-s.doneCh
		}
	})
}

// Stats exposes the filter counters.
func (s *DedupService) Stats() domain.Stats {
	return s.filter.Stats()
}
