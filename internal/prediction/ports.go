// Package prediction scores live SDK sessions. Each app registers logistic
// models; the SDK posts its buffered events to /api/models/{id}/predict and
// receives a probability, or a status explaining why no score was produced.
// Client-side latency reports are stored alongside.
package prediction

import (
	"context"

	"github.com/moveoone/moveo/internal/prediction/internal/domain"
)

// ModelStore defines the port for model persistence.
type ModelStore interface {
	// Get returns the model or nil, nil when it does not exist.
	Get(ctx context.Context, appID, id string) (*domain.Model, error)

	// Upsert creates a model or replaces its definition.
	Upsert(ctx context.Context, m *domain.Model) error

	// ListByAppID returns all models for an app ordered by id.
	ListByAppID(ctx context.Context, appID string) ([]domain.Model, error)
}

// LatencyStore defines the port for client latency reports.
type LatencyStore interface {
	Insert(ctx context.Context, rec *domain.LatencyRecord) error
}

// Model is the public view of a scoring model.
type Model = domain.Model

// LatencyRecord is the public view of a stored latency report.
type LatencyRecord = domain.LatencyRecord

// Exported domain errors.
var (
	ErrModelNotFound   = domain.ErrModelNotFound
	ErrNotEnoughEvents = domain.ErrNotEnoughEvents
	ErrConditionNotMet = domain.ErrConditionNotMet
	ErrInvalidModel    = domain.ErrInvalidModel
)
