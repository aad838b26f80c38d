package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// StreamManager creates and updates the event and dead-letter streams and
// their durable consumers.
type StreamManager struct {
	js     jetstream.JetStream
	config StreamConfig
	logger *slog.Logger
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(js jetstream.JetStream, cfg StreamConfig, logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamManager{
		js:     js,
		config: cfg,
		logger: logger.With("component", "stream-manager"),
	}
}

// EventStreamConfig returns the JetStream configuration of the event stream.
func (m *StreamManager) EventStreamConfig() jetstream.StreamConfig {
	storage := jetstream.FileStorage
	if strings.EqualFold(m.config.Storage, "memory") {
		storage = jetstream.MemoryStorage
	}

	return jetstream.StreamConfig{
		Name:        m.config.Name,
		Subjects:    m.config.Subjects,
		Storage:     storage,
		MaxAge:      m.config.MaxAge,
		MaxBytes:    m.config.MaxBytes,
		Replicas:    m.config.Replicas,
		Duplicates:  m.config.DuplicateWindow,
		Retention:   jetstream.LimitsPolicy,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
	}
}

// DLQStreamConfig returns the JetStream configuration of the dead-letter
// stream.
func (m *StreamManager) DLQStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        m.config.DLQStreamName,
		Subjects:    []string{DLQSubjectPrefix + ">"},
		Storage:     jetstream.FileStorage,
		MaxAge:      m.config.DLQMaxAge,
		Replicas:    m.config.Replicas,
		Retention:   jetstream.LimitsPolicy,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
	}
}

// EnsureStream creates or updates the event stream.
func (m *StreamManager) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	return m.upsertStream(ctx, m.EventStreamConfig())
}

// EnsureDLQStream creates or updates the dead-letter stream.
func (m *StreamManager) EnsureDLQStream(ctx context.Context) (jetstream.Stream, error) {
	return m.upsertStream(ctx, m.DLQStreamConfig())
}

func (m *StreamManager) upsertStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	_, err := m.js.Stream(ctx, cfg.Name)
	switch {
	case err == nil:
		stream, err := m.js.UpdateStream(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to update stream %s: %w", cfg.Name, err)
		}
		m.logger.Info("stream updated", "name", cfg.Name)
		return stream, nil

	case errors.Is(err, jetstream.ErrStreamNotFound):
		stream, err := m.js.CreateStream(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
		m.logger.Info("stream created",
			"name", cfg.Name,
			"subjects", cfg.Subjects,
			"max_age", cfg.MaxAge,
			"duplicate_window", cfg.Duplicates,
		)
		return stream, nil

	default:
		return nil, fmt.Errorf("failed to look up stream %s: %w", cfg.Name, err)
	}
}

// EnsureConsumers creates or updates the given durable consumers.
func (m *StreamManager) EnsureConsumers(ctx context.Context, stream jetstream.Stream, configs []ConsumerConfig) error {
	for _, cfg := range configs {
		if _, err := stream.CreateOrUpdateConsumer(ctx, consumerConfig(cfg)); err != nil {
			return fmt.Errorf("failed to ensure consumer %s: %w", cfg.Name, err)
		}
		m.logger.Info("consumer ready",
			"name", cfg.Name,
			"filter", cfg.FilterSubject,
		)
	}
	return nil
}

func consumerConfig(cfg ConsumerConfig) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxAckPending: cfg.MaxAckPending,
		MaxDeliver:    cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
}

// GetStreamInfo returns information about the event stream.
func (m *StreamManager) GetStreamInfo(ctx context.Context) (*jetstream.StreamInfo, error) {
	stream, err := m.js.Stream(ctx, m.config.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	return info, nil
}
