// Package service contains the business logic for session scoring and
// latency report ingestion.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/moveoone/moveo/internal/events"
	"github.com/moveoone/moveo/internal/observability"
	"github.com/moveoone/moveo/internal/prediction/internal/domain"
	"github.com/moveoone/moveo/sdk/moveo"
)

// ModelStore defines the port for model persistence.
type ModelStore interface {
	Get(ctx context.Context, appID, id string) (*domain.Model, error)
	Upsert(ctx context.Context, m *domain.Model) error
	ListByAppID(ctx context.Context, appID string) ([]domain.Model, error)
}

// LatencyStore defines the port for latency report persistence.
type LatencyStore interface {
	Insert(ctx context.Context, rec *domain.LatencyRecord) error
}

// ErrInvalidEvent wraps an event that failed validation.
var ErrInvalidEvent = errors.New("invalid event")

// PredictionService scores sessions against registered models and stores
// client latency reports.
type PredictionService struct {
	models    ModelStore
	latencies LatencyStore
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewPredictionService creates a new PredictionService. metrics may be nil.
func NewPredictionService(models ModelStore, latencies LatencyStore, metrics *observability.Metrics, logger *slog.Logger) *PredictionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictionService{
		models:    models,
		latencies: latencies,
		metrics:   metrics,
		logger:    logger.With("component", "prediction-service"),
	}
}

// Predict scores the session's events with model modelID of appID.
//
// Errors, checked in order:
//   - domain.ErrInvalidSessionID, domain.ErrNoEvents, domain.ErrSessionMismatch
//     or ErrInvalidEvent when the request is malformed
//   - domain.ErrModelNotFound when the model does not exist
//   - domain.ErrNotEnoughEvents when the session is still too short
//   - domain.ErrConditionNotMet when the conditional event is missing
func (s *PredictionService) Predict(ctx context.Context, appID, modelID, sessionID string, evts []moveo.Event) (pred domain.Prediction, err error) {
	start := time.Now()
	defer func() {
		s.record(ctx, modelID, outcome(err), time.Since(start))
	}()

	if err := domain.CheckSession(sessionID, evts); err != nil {
		return domain.Prediction{}, err
	}
	for i, e := range evts {
		if err := events.Validate(e); err != nil {
			return domain.Prediction{}, fmt.Errorf("%w: event %d: %w", ErrInvalidEvent, i, err)
		}
	}

	model, err := s.models.Get(ctx, appID, modelID)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("failed to load model: %w", err)
	}
	if model == nil {
		return domain.Prediction{}, domain.ErrModelNotFound
	}

	if err := model.Ready(evts); err != nil {
		return domain.Prediction{}, err
	}

	pred = model.Score(evts)

	s.logger.Debug("session scored",
		"app_id", appID,
		"model_id", modelID,
		"session_id", sessionID,
		"events", len(evts),
		"probability", pred.Probability,
	)

	return pred, nil
}

// RecordLatency validates and stores a client latency report.
func (s *PredictionService) RecordLatency(ctx context.Context, rec *domain.LatencyRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.Must(uuid.NewV7()).String()
	}

	if err := s.latencies.Insert(ctx, rec); err != nil {
		return fmt.Errorf("failed to store latency report: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ClientPredictLatency.Record(ctx, float64(rec.TotalExecutionTimeMs),
			otelmetric.WithAttributes(
				attribute.String("model_id", rec.ModelID),
				attribute.String("client", rec.Client),
				attribute.String("status", rec.Status),
			))
	}

	return nil
}

// SaveModel validates and stores a model definition.
func (s *PredictionService) SaveModel(ctx context.Context, m *domain.Model) error {
	m.AppID = strings.TrimSpace(m.AppID)
	m.ID = strings.TrimSpace(m.ID)
	if err := m.Validate(); err != nil {
		return err
	}
	if err := s.models.Upsert(ctx, m); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}

	s.logger.Info("model saved",
		"app_id", m.AppID,
		"model_id", m.ID,
	)
	return nil
}

// ListModels returns all models for appID.
func (s *PredictionService) ListModels(ctx context.Context, appID string) ([]domain.Model, error) {
	return s.models.ListByAppID(ctx, appID)
}

func (s *PredictionService) record(ctx context.Context, modelID, result string, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("model_id", modelID),
		attribute.String("result", result),
	)
	s.metrics.PredictionsServed.Add(ctx, 1, attrs)
	s.metrics.PredictionDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// outcome maps a Predict error to the metric label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrModelNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrNotEnoughEvents):
		return "pending"
	case errors.Is(err, domain.ErrConditionNotMet):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidSessionID),
		errors.Is(err, domain.ErrNoEvents),
		errors.Is(err, domain.ErrSessionMismatch),
		errors.Is(err, ErrInvalidEvent):
		return "invalid_data"
	default:
		return "error"
	}
}
