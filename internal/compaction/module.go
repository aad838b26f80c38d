// Package compaction periodically merges the small Parquet files the
// warehouse sink writes, one per partition flush, into larger files.
//
// Only partitions older than the current hour are touched, and originals
// are deleted only after the merged file is uploaded. Rows with an event id
// already seen in the batch are dropped, which removes the copies left when
// a write succeeded but its ACK did not.
package compaction

import (
	"context"
	"log/slog"
	"time"

	"github.com/moveoone/moveo/internal/compaction/internal/service"
	"github.com/moveoone/moveo/internal/observability"
	"github.com/moveoone/moveo/internal/warehouse"
)

// ObjectStore is implemented by *warehouse.S3Client.
type ObjectStore = service.ObjectStore

// Config holds configuration for the compaction module.
type Config struct {
	Enabled bool `env:"COMPACTION_ENABLED" envDefault:"true"`

	// Schedule is the interval between compaction runs.
	Schedule time.Duration `env:"COMPACTION_SCHEDULE" envDefault:"1h"`

	// TargetSize is the compacted file size to aim for, in bytes.
	TargetSize int64 `env:"COMPACTION_TARGET_SIZE" envDefault:"134217728"`

	// MinFiles is the fewest small files worth merging in one partition.
	MinFiles int `env:"COMPACTION_MIN_FILES" envDefault:"2"`
}

// Module is the compaction module facade.
type Module struct {
	svc       *service.CompactionService
	scheduler *service.Scheduler
	config    Config
	logger    *slog.Logger
}

// New creates a compaction module over the objects under prefix.
func New(
	store ObjectStore,
	prefix string,
	parquetCfg warehouse.ParquetConfig,
	cfg Config,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Module {
	if logger == nil {
		logger = slog.Default()
	}

	svc := service.NewCompactionService(
		store,
		prefix,
		warehouse.NewParquetWriter(parquetCfg),
		cfg.TargetSize,
		cfg.MinFiles,
		metrics,
		logger,
	)

	return &Module{
		svc:       svc,
		scheduler: service.NewScheduler(svc, cfg.Schedule, logger),
		config:    cfg,
		logger:    logger.With("component", "compaction-module"),
	}
}

// Start begins scheduled compaction. It is a no-op when disabled.
func (m *Module) Start(ctx context.Context) {
	if !m.config.Enabled {
		m.logger.Info("compaction disabled, skipping start")
		return
	}

	m.logger.Info("starting compaction module",
		"schedule", m.config.Schedule,
		"target_size", m.config.TargetSize,
		"min_files", m.config.MinFiles,
	)
	m.scheduler.Start(ctx)
}

// Stop stops the scheduler and waits for an in-flight run.
func (m *Module) Stop() {
	m.scheduler.Stop()
}

// RunNow compacts all cold partitions immediately.
func (m *Module) RunNow(ctx context.Context) error {
	return m.svc.CompactAll(ctx)
}
