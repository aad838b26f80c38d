// Package repo provides the SQL implementations of the model and latency
// stores. Queries run unchanged on PostgreSQL and SQLite.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/moveoone/moveo/internal/prediction/internal/domain"
)

// ModelRepository implements ModelStore on the models table.
type ModelRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewModelRepository creates a new ModelRepository backed by db.
func NewModelRepository(db *sql.DB) *ModelRepository {
	return &ModelRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Get retrieves a model by app and id. Returns nil, nil if not found.
func (r *ModelRepository) Get(ctx context.Context, appID, id string) (*domain.Model, error) {
	query := `
		SELECT app_id, id, name, min_events, threshold, bias, weights, conditional_event, created_at
		FROM models
		WHERE app_id = $1 AND id = $2
	`

	var (
		m       domain.Model
		weights string
	)
	err := r.db.QueryRowContext(ctx, query, appID, id).Scan(
		&m.AppID,
		&m.ID,
		&m.Name,
		&m.MinEvents,
		&m.Threshold,
		&m.Bias,
		&weights,
		&m.ConditionalEvent,
		&m.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query model: %w", err)
	}

	if err := json.Unmarshal([]byte(weights), &m.Weights); err != nil {
		return nil, fmt.Errorf("failed to decode weights for model %s: %w", id, err)
	}

	return &m, nil
}

// Upsert inserts a model or replaces the definition of an existing one.
// CreatedAt is set when zero and preserved on replace.
func (r *ModelRepository) Upsert(ctx context.Context, m *domain.Model) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now()
	}

	weights := m.Weights
	if weights == nil {
		weights = map[string]float64{}
	}
	encoded, err := json.Marshal(weights)
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}

	query := `
		INSERT INTO models (app_id, id, name, min_events, threshold, bias, weights, conditional_event, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (app_id, id) DO UPDATE SET
			name = excluded.name,
			min_events = excluded.min_events,
			threshold = excluded.threshold,
			bias = excluded.bias,
			weights = excluded.weights,
			conditional_event = excluded.conditional_event
	`

	_, err = r.db.ExecContext(ctx, query,
		m.AppID, m.ID, m.Name, m.MinEvents, m.Threshold, m.Bias,
		string(encoded), m.ConditionalEvent, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert model: %w", err)
	}

	return nil
}

// ListByAppID returns all models for appID ordered by id.
func (r *ModelRepository) ListByAppID(ctx context.Context, appID string) ([]domain.Model, error) {
	query := `
		SELECT app_id, id, name, min_events, threshold, bias, weights, conditional_event, created_at
		FROM models
		WHERE app_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}
	defer rows.Close()

	var models []domain.Model
	for rows.Next() {
		var (
			m       domain.Model
			weights string
		)
		if err := rows.Scan(&m.AppID, &m.ID, &m.Name, &m.MinEvents, &m.Threshold,
			&m.Bias, &weights, &m.ConditionalEvent, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		if err := json.Unmarshal([]byte(weights), &m.Weights); err != nil {
			return nil, fmt.Errorf("failed to decode weights for model %s: %w", m.ID, err)
		}
		models = append(models, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating models: %w", err)
	}

	return models, nil
}
