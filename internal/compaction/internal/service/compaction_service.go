// Package service merges the small Parquet files the warehouse sink writes
// into larger ones, dropping rows that redelivery wrote twice.
//
// The service keeps no state of its own: each run lists cold partitions,
// merges groups of small files, uploads the result and only then deletes the
// files that went into it. A failed run leaves the originals for the next one.
package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/moveoone/moveo/internal/observability"
	"github.com/moveoone/moveo/internal/warehouse"
)

// Default compaction parameters.
const (
	// DefaultTargetSize is the target compacted file size (128 MB).
	DefaultTargetSize int64 = 128 * 1024 * 1024

	// DefaultMinFiles is the minimum number of small files needed to trigger compaction.
	DefaultMinFiles int = 2
)

// ObjectStore is the slice of the S3 API compaction needs.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]warehouse.ObjectInfo, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, keys []string) error
}

// CompactionService merges small files in partitions older than the
// current hour.
type CompactionService struct {
	store      ObjectStore
	prefix     string
	writer     *warehouse.ParquetWriter
	targetSize int64
	minFiles   int
	metrics    *observability.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewCompactionService creates a new compaction service for the objects
// under prefix.
func NewCompactionService(
	store ObjectStore,
	prefix string,
	writer *warehouse.ParquetWriter,
	targetSize int64,
	minFiles int,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *CompactionService {
	if logger == nil {
		logger = slog.Default()
	}
	if writer == nil {
		writer = warehouse.NewParquetWriter(warehouse.ParquetConfig{})
	}
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	if minFiles < DefaultMinFiles {
		minFiles = DefaultMinFiles
	}

	return &CompactionService{
		store:      store,
		prefix:     prefix,
		writer:     writer,
		targetSize: targetSize,
		minFiles:   minFiles,
		metrics:    metrics,
		logger:     logger.With("component", "compaction-service"),
		now:        time.Now,
	}
}

// CompactAll compacts every cold partition. A failing partition is logged
// and skipped.
func (cs *CompactionService) CompactAll(ctx context.Context) error {
	start := time.Now()
	cs.logger.Info("starting compaction run")

	partitions, err := cs.listColdPartitions(ctx)
	if err != nil {
		return fmt.Errorf("list cold partitions: %w", err)
	}

	var compacted int
	for _, partition := range partitions {
		if err := ctx.Err(); err != nil {
			return err
		}

		did, err := cs.CompactPartition(ctx, partition)
		if err != nil {
			cs.logger.Error("failed to compact partition",
				"partition", partition,
				"error", err,
			)
			continue
		}
		if did {
			compacted++
		}
	}

	duration := float64(time.Since(start).Milliseconds())
	if cs.metrics != nil {
		cs.metrics.CompactionRuns.Add(ctx, 1)
		cs.metrics.CompactionDuration.Record(ctx, duration)
	}

	cs.logger.Info("compaction run complete",
		"partitions_total", len(partitions),
		"partitions_compacted", compacted,
		"duration_ms", duration,
	)
	return nil
}

// CompactPartition merges the small files of one partition. It reports
// whether anything was merged.
func (cs *CompactionService) CompactPartition(ctx context.Context, partition string) (bool, error) {
	objects, err := cs.store.List(ctx, partition)
	if err != nil {
		return false, fmt.Errorf("list objects in partition %s: %w", partition, err)
	}

	var smallFiles []warehouse.ObjectInfo
	for _, obj := range objects {
		if obj.Size < cs.targetSize {
			smallFiles = append(smallFiles, obj)
		}
	}

	if len(smallFiles) < cs.minFiles {
		cs.logger.Debug("skipping partition, not enough small files",
			"partition", partition,
			"small_files", len(smallFiles),
		)
		return false, nil
	}

	cs.logger.Info("compacting partition",
		"partition", partition,
		"small_files", len(smallFiles),
	)

	merged := false
	for i, batch := range cs.groupIntoBatches(smallFiles) {
		if err := ctx.Err(); err != nil {
			return merged, err
		}
		did, err := cs.mergeBatch(ctx, partition, batch)
		if err != nil {
			return merged, fmt.Errorf("merge batch %d in partition %s: %w", i, partition, err)
		}
		merged = merged || did
	}

	return merged, nil
}

// groupIntoBatches groups small files into batches whose total size approaches targetSize.
func (cs *CompactionService) groupIntoBatches(files []warehouse.ObjectInfo) [][]warehouse.ObjectInfo {
	var batches [][]warehouse.ObjectInfo
	var current []warehouse.ObjectInfo
	var currentSize int64

	for _, f := range files {
		if currentSize+f.Size > cs.targetSize && len(current) >= cs.minFiles {
			batches = append(batches, current)
			current = nil
			currentSize = 0
		}
		current = append(current, f)
		currentSize += f.Size
	}

	if len(current) >= cs.minFiles {
		batches = append(batches, current)
	}

	return batches
}

// mergeBatch reads a batch of files, drops rows whose event id was already
// seen, uploads one file and deletes the inputs that were read. Unreadable
// files are left in place.
func (cs *CompactionService) mergeBatch(ctx context.Context, partition string, batch []warehouse.ObjectInfo) (bool, error) {
	var (
		rows   []warehouse.EventRow
		merged []string
		seen   = make(map[string]struct{})
		dupes  int
	)

	for _, obj := range batch {
		data, err := cs.store.Download(ctx, obj.Key)
		if err != nil {
			return false, fmt.Errorf("download %s: %w", obj.Key, err)
		}

		fileRows, err := parquet.Read[warehouse.EventRow](bytes.NewReader(data), int64(len(data)))
		if err != nil {
			cs.logger.Warn("skipping unreadable parquet file",
				"key", obj.Key,
				"error", err,
			)
			continue
		}

		for _, row := range fileRows {
			if _, ok := seen[row.ID]; ok {
				dupes++
				continue
			}
			seen[row.ID] = struct{}{}
			rows = append(rows, row)
		}
		merged = append(merged, obj.Key)
	}

	if len(merged) < 2 {
		cs.logger.Warn("not enough readable files in batch, skipping",
			"partition", partition,
			"readable", len(merged),
		)
		return false, nil
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TimestampMS < rows[j].TimestampMS })

	data, err := cs.writer.Write(rows)
	if err != nil {
		return false, fmt.Errorf("write compacted file: %w", err)
	}

	key := compactedKey(partition)
	if err := cs.store.Upload(ctx, key, data); err != nil {
		return false, fmt.Errorf("upload compacted file %s: %w", key, err)
	}

	cs.logger.Info("uploaded compacted file",
		"key", key,
		"size_bytes", len(data),
		"source_files", len(merged),
		"rows", len(rows),
		"duplicates_dropped", dupes,
	)

	// The compacted file is already durable; a failed delete only leaves
	// rows that the next run dedupes away.
	if err := cs.store.Delete(ctx, merged); err != nil {
		cs.logger.Error("failed to delete original files after compaction",
			"partition", partition,
			"error", err,
		)
	}

	if cs.metrics != nil {
		cs.metrics.CompactionFilesCompacted.Add(ctx, int64(len(merged)))
		cs.metrics.CompactionRowsDeduped.Add(ctx, int64(dupes))
	}

	return true, nil
}

// listColdPartitions returns the partition prefixes older than the current
// hour, sorted.
func (cs *CompactionService) listColdPartitions(ctx context.Context) ([]string, error) {
	now := cs.now().UTC()

	objects, err := cs.store.List(ctx, cs.prefix+"/")
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for _, obj := range objects {
		partition := extractPartitionPrefix(obj.Key)
		if partition != "" && isColdPartition(partition, now) {
			set[partition] = struct{}{}
		}
	}

	partitions := make([]string, 0, len(set))
	for p := range set {
		partitions = append(partitions, p)
	}
	sort.Strings(partitions)
	return partitions, nil
}

// partitionRegex matches Hive-style partition paths and extracts date components.
var partitionRegex = regexp.MustCompile(
	`(.*?/app_id=[^/]+/year=(\d{4})/month=(\d{2})/day=(\d{2})/hour=(\d{2})/)`,
)

// extractPartitionPrefix returns the partition directory of an object key,
// or "" when the key is not in the partition layout.
func extractPartitionPrefix(key string) string {
	matches := partitionRegex.FindStringSubmatch(key)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// isColdPartition reports whether a partition is older than the current hour.
func isColdPartition(partition string, now time.Time) bool {
	matches := partitionRegex.FindStringSubmatch(partition)
	if len(matches) < 6 {
		return false
	}

	year, _ := strconv.Atoi(matches[2])
	month, _ := strconv.Atoi(matches[3])
	day, _ := strconv.Atoi(matches[4])
	hour, _ := strconv.Atoi(matches[5])

	partitionTime := time.Date(year, time.Month(month), day, hour, 0, 0, 0, time.UTC)
	currentHour := now.UTC().Truncate(time.Hour)

	return partitionTime.Before(currentHour)
}

func compactedKey(partition string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return partition + "compacted_" + id.String() + ".parquet"
}
