package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/moveoone/moveo/internal/events"
	"github.com/moveoone/moveo/internal/observability"
	"github.com/moveoone/moveo/sdk/moveo"
)

// EventPublisher publishes accepted envelopes. It returns the number
// published before any failure.
type EventPublisher interface {
	PublishBatch(ctx context.Context, envs []events.Envelope) (int, error)
}

// DuplicateFilter drops envelopes already seen within its window.
type DuplicateFilter interface {
	FilterEnvelopes(ctx context.Context, envs []events.Envelope) (kept []events.Envelope, dropped int)
}

// EventResult reports the outcome for one event of a batch.
type EventResult struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// IngestResult summarises a batch ingestion.
type IngestResult struct {
	Accepted   int           `json:"accepted"`
	Duplicates int           `json:"duplicates"`
	Rejected   int           `json:"rejected"`
	Results    []EventResult `json:"results,omitempty"`
}

// EventService validates SDK batches, wraps events in envelopes, drops
// replays and publishes the rest.
type EventService struct {
	publisher EventPublisher
	dedup     DuplicateFilter
	maxBatch  int
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewEventService creates an EventService. dedup and metrics may be nil.
func NewEventService(publisher EventPublisher, dedup DuplicateFilter, maxBatch int, metrics *observability.Metrics, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{
		publisher: publisher,
		dedup:     dedup,
		maxBatch:  maxBatch,
		metrics:   metrics,
		logger:    logger.With("component", "event-service"),
		now:       time.Now,
	}
}

// IngestBatch handles one SDK batch for appID. Invalid events are rejected
// individually; the batch fails only when it is empty, too large, entirely
// invalid, or nothing could be published.
func (s *EventService) IngestBatch(ctx context.Context, appID string, batch []moveo.Event) (*IngestResult, error) {
	if appID == "" {
		return nil, ErrAppIDRequired
	}
	if len(batch) == 0 {
		return nil, ErrAtLeastOneEvent
	}
	if s.maxBatch > 0 && len(batch) > s.maxBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(batch), s.maxBatch)
	}

	attrs := otelmetric.WithAttributes(attribute.String("app_id", appID))
	if s.metrics != nil {
		s.metrics.IngestBatchSize.Record(ctx, int64(len(batch)), attrs)
		s.metrics.EventsReceived.Add(ctx, int64(len(batch)), attrs)
	}

	result := &IngestResult{}
	receivedAt := s.now()
	envs := make([]events.Envelope, 0, len(batch))
	for i, event := range batch {
		if err := events.Validate(event); err != nil {
			result.Rejected++
			result.Results = append(result.Results, EventResult{
				Index:  i,
				Status: "rejected",
				Error:  err.Error(),
			})
			continue
		}
		envs = append(envs, events.NewEnvelope(appID, event, receivedAt))
	}

	if len(envs) == 0 {
		s.recordRejected(ctx, appID, result.Rejected)
		return result, ErrAllRejected
	}

	if s.dedup != nil {
		envs, result.Duplicates = s.dedup.FilterEnvelopes(ctx, envs)
	}

	if len(envs) > 0 {
		published, err := s.publisher.PublishBatch(ctx, envs)
		result.Accepted = published
		if err != nil {
			failed := len(envs) - published
			result.Rejected += failed
			s.logger.Error("failed to publish batch",
				"app_id", appID,
				"published", published,
				"failed", failed,
				"error", err,
			)
			if published == 0 {
				s.recordRejected(ctx, appID, result.Rejected)
				return result, errors.Join(ErrPublishFailed, err)
			}
		}
	}

	s.recordRejected(ctx, appID, result.Rejected)

	s.logger.Debug("batch ingested",
		"app_id", appID,
		"total", len(batch),
		"accepted", result.Accepted,
		"duplicates", result.Duplicates,
		"rejected", result.Rejected,
	)

	return result, nil
}

func (s *EventService) recordRejected(ctx context.Context, appID string, n int) {
	if s.metrics == nil || n == 0 {
		return
	}
	s.metrics.EventsRejected.Add(ctx, int64(n),
		otelmetric.WithAttributes(attribute.String("app_id", appID)))
}
