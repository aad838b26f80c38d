// Package dlq moves messages the warehouse sink cannot archive into the
// dead-letter stream.
//
// Two paths feed it. When a consumer fails to acknowledge a message after
// MaxDeliver attempts, NATS emits an advisory; the module fetches the
// original message and republishes it. Consumers can also hand over poison
// messages directly with DeadLetter before terminating them.
package dlq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/moveoone/moveo/internal/dlq/internal/service"
	natsclient "github.com/moveoone/moveo/internal/nats"
	"github.com/moveoone/moveo/internal/observability"
)

// Config holds configuration for the DLQ module.
type Config struct {
	// AlertThreshold is the DLQ depth at which a warning is logged.
	AlertThreshold int64 `env:"DLQ_ALERT_THRESHOLD" envDefault:"100"`

	// CheckInterval is how often the DLQ depth is checked. Zero disables it.
	CheckInterval time.Duration `env:"DLQ_CHECK_INTERVAL" envDefault:"1m"`
}

// Module is the dead-letter queue module facade.
type Module struct {
	service       *service.DLQService
	js            jetstream.JetStream
	config        Config
	dlqStreamName string
	logger        *slog.Logger
	stopCh        chan struct{}
}

// New creates a new DLQ module watching the given consumers of streamName.
// Dead-lettered messages land in dlqStreamName.
func New(
	js jetstream.JetStream,
	nc *nats.Conn,
	streamName string,
	dlqStreamName string,
	consumerNames []string,
	cfg Config,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Module {
	if logger == nil {
		logger = slog.Default()
	}

	fetch := func(ctx context.Context, seq uint64) (*jetstream.RawStreamMsg, error) {
		stream, err := js.Stream(ctx, streamName)
		if err != nil {
			return nil, fmt.Errorf("get stream %s: %w", streamName, err)
		}
		return stream.GetMsg(ctx, seq)
	}

	return &Module{
		service: service.NewDLQService(js, nc, fetch, natsclient.DLQSubjectPrefix,
			streamName, consumerNames, metrics, logger),
		js:            js,
		config:        cfg,
		dlqStreamName: dlqStreamName,
		logger:        logger.With("component", "dlq"),
		stopCh:        make(chan struct{}),
	}
}

// Start begins listening for MaxDeliver advisories and, when configured,
// watching the DLQ depth.
func (m *Module) Start(ctx context.Context) error {
	if err := m.service.Start(ctx); err != nil {
		return err
	}
	if m.config.CheckInterval > 0 {
		go m.watchDepth(ctx)
	}
	return nil
}

// Stop unsubscribes from advisories and stops the depth watcher.
func (m *Module) Stop() {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	m.service.Stop()
}

// DeadLetter republishes msg to the DLQ with reason. The caller still owns
// msg and should Term it.
func (m *Module) DeadLetter(ctx context.Context, msg jetstream.Msg, reason string) error {
	return m.service.DeadLetter(ctx, msg, reason)
}

// GetDLQCount returns the number of messages currently in the DLQ stream.
func (m *Module) GetDLQCount(ctx context.Context) (int64, error) {
	stream, err := m.js.Stream(ctx, m.dlqStreamName)
	if err != nil {
		return 0, fmt.Errorf("failed to get DLQ stream: %w", err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get DLQ stream info: %w", err)
	}

	return int64(info.State.Msgs), nil
}

// AlertThreshold returns the configured alert threshold.
func (m *Module) AlertThreshold() int64 {
	return m.config.AlertThreshold
}

func (m *Module) watchDepth(ctx context.Context) {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			count, err := m.GetDLQCount(ctx)
			if err != nil {
				m.logger.Error("failed to read DLQ depth", "error", err)
				continue
			}
			if exceedsThreshold(count, m.config.AlertThreshold) {
				m.logger.Warn("DLQ depth above threshold",
					"stream", m.dlqStreamName,
					"count", count,
					"threshold", m.config.AlertThreshold,
				)
			}
		}
	}
}

func exceedsThreshold(count, threshold int64) bool {
	return threshold > 0 && count >= threshold
}
