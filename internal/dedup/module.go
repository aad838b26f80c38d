package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/moveoone/moveo/internal/dedup/internal/service"
	"github.com/moveoone/moveo/internal/observability"
)

// Config holds the dedup module configuration.
//
// Environment variable overrides (under the command's prefix):
//   - DEDUP_WINDOW:   sliding window duration (default: 10m)
//   - DEDUP_CAPACITY: expected events per window (default: 1000000)
//   - DEDUP_FP_RATE:  bloom filter false positive rate (default: 0.0001)
type Config struct {
	Enabled  bool          `env:"DEDUP_ENABLED"  envDefault:"true"`
	Window   time.Duration `env:"DEDUP_WINDOW"   envDefault:"10m"`
	Capacity uint          `env:"DEDUP_CAPACITY" envDefault:"1000000"`
	FPRate   float64       `env:"DEDUP_FP_RATE"  envDefault:"0.0001"`
}

// DefaultConfig returns a 10 minute window sized for 1M events at a 0.01%
// false positive rate.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Window:   10 * time.Minute,
		Capacity: 1_000_000,
		FPRate:   0.0001,
	}
}

// Module is the dedup module facade.
type Module struct {
	svc *service.DedupService
}

var _ Deduplicator = (*Module)(nil)

// New creates a dedup Module. metrics may be nil.
func New(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "dedup")

	return &Module{
		svc: service.NewDedupService(cfg.Window, cfg.Capacity, cfg.FPRate, metrics, logger),
	}
}

// Start begins background filter rotation.
func (m *Module) Start(ctx context.Context) {
	m.svc.Start(ctx)
}

// Stop halts rotation and waits for completion.
func (m *Module) Stop() {
	m.svc.Stop()
}

// IsDuplicate checks and records a single fingerprint.
func (m *Module) IsDuplicate(ctx context.Context, appID, fingerprint string) bool {
	return m.svc.IsDuplicate(ctx, appID, fingerprint)
}
