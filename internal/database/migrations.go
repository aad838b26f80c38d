package database

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is a versioned schema change. Statements run one at a time
// inside a single transaction.
type migration struct {
	version int
	up      []string
}

// migrations is the ordered list of schema migrations. New migrations are
// appended; existing ones are never edited. The SQL sticks to types and
// syntax shared by PostgreSQL and SQLite.
var migrations = []migration{
	{
		version: 1,
		up: []string{
			`CREATE TABLE IF NOT EXISTS sdk_tokens (
				id TEXT PRIMARY KEY,
				app_id TEXT NOT NULL,
				token_hash TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL DEFAULT '',
				revoked BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP NOT NULL,
				revoked_at TIMESTAMP NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sdk_tokens_app ON sdk_tokens(app_id)`,
		},
	},
	{
		version: 2,
		up: []string{
			`CREATE TABLE IF NOT EXISTS models (
				app_id TEXT NOT NULL,
				id TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				min_events INTEGER NOT NULL DEFAULT 1,
				threshold DOUBLE PRECISION NOT NULL DEFAULT 0.5,
				bias DOUBLE PRECISION NOT NULL DEFAULT 0,
				weights TEXT NOT NULL DEFAULT '{}',
				conditional_event TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				PRIMARY KEY (app_id, id)
			)`,
		},
	},
	{
		version: 3,
		up: []string{
			`CREATE TABLE IF NOT EXISTS prediction_latencies (
				id TEXT PRIMARY KEY,
				app_id TEXT NOT NULL,
				model_id TEXT NOT NULL,
				session_id TEXT NOT NULL,
				client TEXT NOT NULL,
				status TEXT NOT NULL,
				start_time_ms BIGINT NOT NULL,
				end_time_ms BIGINT NOT NULL,
				total_execution_time_ms BIGINT NOT NULL,
				received_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_prediction_latencies_model ON prediction_latencies(app_id, model_id)`,
		},
	},
}

// migrate applies all pending migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}

	return nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration v%d: %w", m.version, err)
	}

	for _, stmt := range m.up {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES ($1)", m.version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration v%d: %w", m.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration v%d: %w", m.version, err)
	}

	return nil
}

// currentVersion returns the highest applied migration version, or 0.
func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}
