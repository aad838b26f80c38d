package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/moveoone/moveo/internal/events"
	"github.com/moveoone/moveo/internal/observability"
)

// jsPublisher is the part of jetstream.JetStream the publisher uses.
type jsPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
	PublishAsync(subject string, data []byte, opts ...jetstream.PublishOpt) (jetstream.PubAckFuture, error)
}

// Publisher publishes event envelopes to JetStream as JSON. Each message
// carries the envelope fingerprint as Nats-Msg-Id, so the stream drops
// replays that slip past the collector's own dedup.
type Publisher struct {
	js      jsPublisher
	timeout time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a new envelope publisher. metrics may be nil.
func NewPublisher(js jetstream.JetStream, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	return newPublisher(js, timeout, metrics, logger)
}

func newPublisher(js jsPublisher, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		js:      js,
		timeout: timeout,
		metrics: metrics,
		logger:  logger.With("component", "publisher"),
	}
}

// PublishEnvelope publishes a single envelope and waits for its ack.
func (p *Publisher) PublishEnvelope(ctx context.Context, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	subject := Subject(env)
	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(env.Fingerprint))
	if err != nil {
		p.recordErrors(ctx, env.AppID, 1)
		return fmt.Errorf("failed to publish envelope: %w", err)
	}

	p.recordPublished(ctx, env.AppID, 1)
	p.logger.Debug("envelope published",
		"envelope_id", env.ID,
		"subject", subject,
		"stream", ack.Stream,
		"sequence", ack.Sequence,
		"duplicate", ack.Duplicate,
	)

	return nil
}

// PublishBatch publishes envelopes asynchronously and waits for every ack.
// It returns the number acknowledged; when some fail the error wraps
// ErrPartialPublish.
func (p *Publisher) PublishBatch(ctx context.Context, envs []events.Envelope) (int, error) {
	if len(envs) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	futures := make([]jetstream.PubAckFuture, 0, len(envs))
	var failed []error

	for _, env := range envs {
		data, err := json.Marshal(env)
		if err != nil {
			failed = append(failed, fmt.Errorf("marshal envelope %s: %w", env.ID, err))
			continue
		}

		future, err := p.js.PublishAsync(Subject(env), data, jetstream.WithMsgID(env.Fingerprint))
		if err != nil {
			failed = append(failed, fmt.Errorf("publish envelope %s: %w", env.ID, err))
			continue
		}
		futures = append(futures, future)
	}

	published := 0
	for _, future := range futures {
		select {
		case <-future.Ok():
			published++
		case err := <-future.Err():
			failed = append(failed, err)
		case <-ctx.Done():
			failed = append(failed, ctx.Err())
		}
	}

	appID := envs[0].AppID
	p.recordPublished(ctx, appID, published)

	if len(failed) > 0 {
		p.recordErrors(ctx, appID, len(failed))
		p.logger.Error("failed to publish part of a batch",
			"app_id", appID,
			"failed", len(failed),
			"total", len(envs),
			"first_error", failed[0],
		)
		return published, fmt.Errorf("%w: %d of %d failed: %w",
			ErrPartialPublish, len(failed), len(envs), errors.Join(failed...))
	}

	return published, nil
}

func (p *Publisher) recordPublished(ctx context.Context, appID string, n int) {
	if p.metrics == nil || n == 0 {
		return
	}
	p.metrics.NATSEventsPublished.Add(ctx, int64(n),
		otelmetric.WithAttributes(attribute.String("app_id", appID)))
}

func (p *Publisher) recordErrors(ctx context.Context, appID string, n int) {
	if p.metrics == nil {
		return
	}
	p.metrics.NATSPublishErrors.Add(ctx, int64(n),
		otelmetric.WithAttributes(attribute.String("app_id", appID)))
}

// Subject derives the NATS subject of an envelope.
// Format: events.{app_id}.{category}.{type}.
func Subject(env events.Envelope) string {
	return fmt.Sprintf("events.%s.%s.%s",
		events.SanitizeSubjectName(env.AppID),
		env.Category,
		env.EventType,
	)
}
