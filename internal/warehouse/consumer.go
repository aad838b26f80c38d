package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/moveoone/moveo/internal/events"
	"github.com/moveoone/moveo/internal/observability"
)

// DeadLetterer receives messages the consumer can never archive.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, msg jetstream.Msg, reason string) error
}

// trackedEvent pairs a decoded envelope with its NATS message so that
// ACK/NAK can be deferred until after the S3 write succeeds or fails.
type trackedEvent struct {
	env *events.Envelope
	msg jetstream.Msg
}

// Consumer pulls envelopes from JetStream and writes them to S3 as Parquet.
type Consumer struct {
	js           jetstream.JetStream
	config       Config
	store        ObjectStore
	parquet      *ParquetWriter
	deadLetters  DeadLetterer
	logger       *slog.Logger
	metrics      *observability.Metrics
	consumerName string
	streamName   string

	mu        sync.Mutex
	batch     []trackedEvent
	lastFlush time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	started   atomic.Bool
}

// NewConsumer creates a new warehouse consumer. deadLetters may be nil, in
// which case poison messages are only terminated.
func NewConsumer(
	js jetstream.JetStream,
	cfg Config,
	store ObjectStore,
	deadLetters DeadLetterer,
	consumerName string,
	streamName string,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		js:           js,
		config:       cfg,
		store:        store,
		parquet:      NewParquetWriter(cfg.Parquet),
		deadLetters:  deadLetters,
		logger:       logger.With("component", "warehouse-consumer"),
		metrics:      metrics,
		consumerName: consumerName,
		streamName:   streamName,
		batch:        make([]trackedEvent, 0, cfg.Batch.MaxEvents),
		lastFlush:    time.Now(),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start starts consuming events from NATS with a configurable worker pool.
func (c *Consumer) Start(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, c.streamName)
	if err != nil {
		return fmt.Errorf("failed to get stream: %w", err)
	}

	consumer, err := stream.Consumer(ctx, c.consumerName)
	if err != nil {
		return fmt.Errorf("failed to get consumer: %w", err)
	}

	workerCount := max(c.config.Batch.WorkerCount, 1)

	c.logger.Info("starting warehouse consumer",
		"consumer", c.consumerName,
		"stream", c.streamName,
		"workers", workerCount,
		"fetch_batch_size", c.config.Batch.FetchBatchSize,
	)

	c.started.Store(true)
	go c.flushTimer(ctx)

	var wg sync.WaitGroup
	for i := range workerCount {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.workerLoop(ctx, consumer, id)
		}(i)
	}

	go func() {
		wg.Wait()
		close(c.doneCh)
	}()

	return nil
}

// workerLoop pulls messages for one fetch worker. ACK/NAK is deferred to flush.
func (c *Consumer) workerLoop(ctx context.Context, consumer jetstream.Consumer, id int) {
	logger := c.logger.With("worker_id", id)
	logger.Debug("worker started")
	defer logger.Debug("worker stopped")

	fetchSize := c.config.Batch.FetchBatchSize
	if fetchSize < 1 {
		fetchSize = 100
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		msgs, err := consumer.Fetch(fetchSize, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				logger.Error("failed to fetch messages", "error", err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				case <-c.stopCh:
					return
				}
			}
			continue
		}

		for msg := range msgs.Messages() {
			c.processMessage(ctx, msg)
		}

		if err := msgs.Error(); err != nil {
			logger.Error("messages iteration error", "error", err)
		}
	}
}

// decodeEnvelope parses a message body and checks it is archivable.
func decodeEnvelope(data []byte) (*events.Envelope, error) {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env.AppID == "" || env.ID == "" {
		return nil, fmt.Errorf("%w: missing id or app_id", ErrBadEnvelope)
	}
	if err := events.Validate(env.Event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	return &env, nil
}

// processMessage decodes a single message and adds it to the batch.
// Poison messages go to the dead letter stream and are terminated so they
// are not redelivered.
func (c *Consumer) processMessage(ctx context.Context, msg jetstream.Msg) {
	env, err := decodeEnvelope(msg.Data())
	if err != nil {
		c.rejectPoison(ctx, msg, err)
		return
	}

	c.mu.Lock()
	c.batch = append(c.batch, trackedEvent{env: env, msg: msg})
	shouldFlush := len(c.batch) >= c.config.Batch.MaxEvents
	c.mu.Unlock()

	if shouldFlush {
		if err := c.flush(ctx); err != nil {
			c.logger.Error("failed to flush batch", "error", err)
		}
	}
}

func (c *Consumer) rejectPoison(ctx context.Context, msg jetstream.Msg, cause error) {
	c.logger.Error("poison message, terminating",
		"error", cause,
		"subject", msg.Subject(),
	)
	if c.deadLetters != nil {
		if err := c.deadLetters.DeadLetter(ctx, msg, cause.Error()); err != nil {
			c.logger.Error("failed to dead-letter poison message", "error", err)
		}
	}
	if err := msg.Term(); err != nil {
		c.logger.Error("failed to terminate poison message", "error", err)
	}
}

// flushTimer periodically flushes the batch based on time interval.
func (c *Consumer) flushTimer(ctx context.Context) {
	ticker := time.NewTicker(c.config.Batch.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			batchLen := len(c.batch)
			sinceFlush := time.Since(c.lastFlush)
			c.mu.Unlock()

			if batchLen > 0 && sinceFlush >= c.config.Batch.FlushInterval {
				c.logger.Debug("time-based flush triggered",
					"batch_size", batchLen,
					"interval", sinceFlush,
				)
				if err := c.flush(ctx); err != nil {
					c.logger.Error("failed to flush batch on timer", "error", err)
				}
			}
		}
	}
}

// flush writes the current batch to S3, one file per partition.
// Messages are ACKed only after their partition is written and NAKed on
// failure so NATS redelivers them.
func (c *Consumer) flush(ctx context.Context) error {
	flushStart := time.Now()

	c.mu.Lock()
	if len(c.batch) == 0 {
		c.mu.Unlock()
		return nil
	}
	tracked := c.batch
	c.batch = make([]trackedEvent, 0, c.config.Batch.MaxEvents)
	c.lastFlush = time.Now()
	c.mu.Unlock()

	batchSize := len(tracked)
	c.logger.Info("flushing batch", "count", batchSize)

	if c.metrics != nil {
		c.metrics.NATSBatchSize.Record(ctx, int64(batchSize))
	}

	partitions := groupByPartition(tracked)

	failed := 0
	for key, partitionTracked := range partitions {
		if err := c.writePartition(ctx, key, partitionTracked); err != nil {
			failed++
			c.logger.Error("failed to write partition, NAKing messages for redelivery",
				"partition", key,
				"events", len(partitionTracked),
				"error", err,
			)
			for _, t := range partitionTracked {
				if nakErr := t.msg.Nak(); nakErr != nil {
					c.logger.Error("failed to NAK message", "error", nakErr)
				}
			}
			continue
		}

		for _, t := range partitionTracked {
			if ackErr := t.msg.Ack(); ackErr != nil {
				c.logger.Error("failed to ACK message after successful write", "error", ackErr)
			}
		}

		if c.metrics != nil {
			c.metrics.S3FilesWritten.Add(ctx, 1)
			c.metrics.NATSMessagesProcessed.Add(ctx, int64(len(partitionTracked)))
		}
	}

	if c.metrics != nil {
		c.metrics.NATSFlushLatency.Record(ctx, float64(time.Since(flushStart).Milliseconds()))
	}

	c.logger.Info("batch flushed",
		"count", batchSize,
		"partitions", len(partitions),
		"failed_partitions", failed,
		"duration_ms", time.Since(flushStart).Milliseconds(),
	)

	if failed > 0 {
		return fmt.Errorf("%d of %d partitions failed", failed, len(partitions))
	}
	return nil
}

// partitionKey identifies one Hive partition of the archive.
type partitionKey struct {
	AppID string
	Year  int
	Month int
	Day   int
	Hour  int
}

// groupByPartition buckets events by app and the UTC hour of the event time.
func groupByPartition(tracked []trackedEvent) map[partitionKey][]trackedEvent {
	partitions := make(map[partitionKey][]trackedEvent)

	for _, t := range tracked {
		ts := time.UnixMilli(t.env.Event.Timestamp).UTC()
		key := partitionKey{
			AppID: t.env.AppID,
			Year:  ts.Year(),
			Month: int(ts.Month()),
			Day:   ts.Day(),
			Hour:  ts.Hour(),
		}
		partitions[key] = append(partitions[key], t)
	}

	return partitions
}

// writePartition encodes one partition and uploads it.
func (c *Consumer) writePartition(ctx context.Context, key partitionKey, tracked []trackedEvent) error {
	rows := make([]EventRow, len(tracked))
	for i, t := range tracked {
		rows[i] = EventRowFromEnvelope(t.env, key.Year, key.Month, key.Day, key.Hour)
	}

	data, err := c.parquet.Write(rows)
	if err != nil {
		return fmt.Errorf("failed to write parquet: %w", err)
	}

	objectKey := c.store.GenerateKey(key.AppID, key.Year, key.Month, key.Day, key.Hour)
	if err := c.store.Upload(ctx, objectKey, data); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	if c.metrics != nil {
		c.metrics.S3FileSize.Record(ctx, int64(len(data)))
	}

	c.logger.Debug("partition written",
		"key", objectKey,
		"events", len(tracked),
		"size_bytes", len(data),
	)

	return nil
}

// Stop signals workers to stop, waits for them up to ShutdownTimeout and
// flushes whatever is still buffered.
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("stopping warehouse consumer")
	c.stopOnce.Do(func() { close(c.stopCh) })

	shutdownTimeout := c.config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 60 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if c.started.Load() {
		select {
		case <-c.doneCh:
			c.logger.Info("all workers stopped")
		case <-shutdownCtx.Done():
			c.logger.Warn("shutdown timeout waiting for workers, proceeding with final flush",
				"timeout", shutdownTimeout,
			)
		}
	}

	c.logger.Info("performing final flush")
	if err := c.flush(shutdownCtx); err != nil {
		c.logger.Error("failed final flush, messages may be redelivered by NATS", "error", err)
		return fmt.Errorf("final flush failed: %w", err)
	}

	c.logger.Info("warehouse consumer stopped")
	return nil
}
