// Package service contains the business logic for SDK token operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/moveoone/moveo/internal/auth/internal/domain"
)

// TokenStore defines the port for token persistence. This mirrors the
// top-level auth.TokenStore interface to avoid import cycles.
type TokenStore interface {
	FindByHash(ctx context.Context, tokenHash string) (*domain.Token, error)
	Create(ctx context.Context, token *domain.Token) error
	Revoke(ctx context.Context, id string) error
	ListByAppID(ctx context.Context, appID string) ([]domain.Token, error)
}

// Common errors returned by TokenService methods.
var (
	ErrEmptyAppID   = errors.New("app_id is required")
	ErrInvalidToken = errors.New("invalid sdk token")
)

// TokenService creates, validates, revokes and lists SDK tokens.
type TokenService struct {
	store  TokenStore
	logger *slog.Logger
}

// NewTokenService creates a new TokenService.
func NewTokenService(store TokenStore, logger *slog.Logger) *TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{
		store:  store,
		logger: logger.With("component", "token-service"),
	}
}

// ValidateToken resolves a plaintext token. It returns ErrInvalidToken for
// malformed or unknown tokens and domain.ErrTokenRevoked for revoked ones.
func (s *TokenService) ValidateToken(ctx context.Context, plaintext string) (*domain.Token, error) {
	if !domain.ValidateTokenFormat(plaintext) {
		return nil, ErrInvalidToken
	}

	token, err := s.store.FindByHash(ctx, domain.HashToken(plaintext))
	if err != nil {
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	if token == nil {
		return nil, ErrInvalidToken
	}

	if token.Revoked {
		s.logger.Warn("attempt to use revoked token",
			"token_id", token.ID,
			"app_id", token.AppID,
		)
		return nil, domain.ErrTokenRevoked
	}

	return token, nil
}

// CreateToken generates a token for appID. The plaintext is returned once
// and cannot be retrieved again.
func (s *TokenService) CreateToken(ctx context.Context, appID, name string) (plaintext string, token *domain.Token, err error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return "", nil, ErrEmptyAppID
	}

	plaintext, hash, err := domain.GenerateToken()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	token = &domain.Token{
		ID:        uuid.Must(uuid.NewV7()).String(),
		AppID:     appID,
		TokenHash: hash,
		Name:      name,
	}

	if err := s.store.Create(ctx, token); err != nil {
		return "", nil, fmt.Errorf("failed to store token: %w", err)
	}

	s.logger.Info("sdk token created",
		"token_id", token.ID,
		"app_id", appID,
		"name", name,
	)

	return plaintext, token, nil
}

// RevokeToken revokes a token by its ID.
func (s *TokenService) RevokeToken(ctx context.Context, id string) error {
	if err := s.store.Revoke(ctx, id); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	s.logger.Info("sdk token revoked", "token_id", id)
	return nil
}

// ListTokens returns all tokens for appID.
func (s *TokenService) ListTokens(ctx context.Context, appID string) ([]domain.Token, error) {
	if appID == "" {
		return nil, ErrEmptyAppID
	}

	tokens, err := s.store.ListByAppID(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	return tokens, nil
}
