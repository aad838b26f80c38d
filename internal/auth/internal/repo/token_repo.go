// Package repo provides the SQL implementation of the TokenStore port. The
// queries run unchanged on PostgreSQL and SQLite.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/moveoone/moveo/internal/auth/internal/domain"
)

// TokenRepository implements TokenStore on the sdk_tokens table.
type TokenRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTokenRepository creates a new TokenRepository backed by db.
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// FindByHash retrieves a token by its SHA256 hash, revoked or not.
// Returns nil, nil if no matching token is found.
func (r *TokenRepository) FindByHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	query := `
		SELECT id, app_id, token_hash, name, revoked, created_at, revoked_at
		FROM sdk_tokens
		WHERE token_hash = $1
	`

	token, err := scanToken(r.db.QueryRowContext(ctx, query, tokenHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sdk token by hash: %w", err)
	}

	return token, nil
}

// Create inserts a new token record. CreatedAt is set when zero.
func (r *TokenRepository) Create(ctx context.Context, token *domain.Token) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = r.now()
	}

	query := `
		INSERT INTO sdk_tokens (id, app_id, token_hash, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query, token.ID, token.AppID, token.TokenHash, token.Name, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert sdk token: %w", err)
	}

	return nil
}

// Revoke marks a token as revoked. Revoking an unknown id returns
// domain.ErrTokenNotFound.
func (r *TokenRepository) Revoke(ctx context.Context, id string) error {
	query := `
		UPDATE sdk_tokens SET revoked = TRUE, revoked_at = $1
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, r.now(), id)
	if err != nil {
		return fmt.Errorf("failed to revoke sdk token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrTokenNotFound, id)
	}

	return nil
}

// ListByAppID returns all tokens for appID, newest first.
func (r *TokenRepository) ListByAppID(ctx context.Context, appID string) ([]domain.Token, error) {
	query := `
		SELECT id, app_id, token_hash, name, revoked, created_at, revoked_at
		FROM sdk_tokens
		WHERE app_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sdk tokens by app_id: %w", err)
	}
	defer rows.Close()

	var tokens []domain.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sdk token: %w", err)
		}
		tokens = append(tokens, *token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sdk tokens: %w", err)
	}

	return tokens, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(s scanner) (*domain.Token, error) {
	var (
		token     domain.Token
		revokedAt sql.NullTime
	)
	if err := s.Scan(
		&token.ID,
		&token.AppID,
		&token.TokenHash,
		&token.Name,
		&token.Revoked,
		&token.CreatedAt,
		&revokedAt,
	); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		token.RevokedAt = &t
	}
	return &token, nil
}
