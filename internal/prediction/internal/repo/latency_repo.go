package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/moveoone/moveo/internal/prediction/internal/domain"
)

// LatencyRepository implements LatencyStore on the prediction_latencies table.
type LatencyRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewLatencyRepository creates a new LatencyRepository backed by db.
func NewLatencyRepository(db *sql.DB) *LatencyRepository {
	return &LatencyRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Insert stores one latency report. ReceivedAt is set when zero.
func (r *LatencyRepository) Insert(ctx context.Context, rec *domain.LatencyRecord) error {
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = r.now()
	}

	query := `
		INSERT INTO prediction_latencies (
			id, app_id, model_id, session_id, client, status,
			start_time_ms, end_time_ms, total_execution_time_ms, received_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.AppID, rec.ModelID, rec.SessionID, rec.Client, rec.Status,
		rec.StartTimeMs, rec.EndTimeMs, rec.TotalExecutionTimeMs, rec.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert latency record: %w", err)
	}

	return nil
}

// ListByModel returns the most recent reports for a model, newest first.
func (r *LatencyRepository) ListByModel(ctx context.Context, appID, modelID string, limit int) ([]domain.LatencyRecord, error) {
	query := `
		SELECT id, app_id, model_id, session_id, client, status,
			start_time_ms, end_time_ms, total_execution_time_ms, received_at
		FROM prediction_latencies
		WHERE app_id = $1 AND model_id = $2
		ORDER BY received_at DESC, id DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, appID, modelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latency records: %w", err)
	}
	defer rows.Close()

	var records []domain.LatencyRecord
	for rows.Next() {
		var rec domain.LatencyRecord
		if err := rows.Scan(
			&rec.ID, &rec.AppID, &rec.ModelID, &rec.SessionID, &rec.Client, &rec.Status,
			&rec.StartTimeMs, &rec.EndTimeMs, &rec.TotalExecutionTimeMs, &rec.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan latency record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating latency records: %w", err)
	}

	return records, nil
}
