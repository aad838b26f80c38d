// Package auth authenticates SDK requests. SDKs send their token in the
// Authorization header; the module resolves it to an app_id through hashed
// tokens stored in SQL. It follows the ports (interfaces) and adapters (HTTP
// middleware, SQL repository) layout.
package auth

import (
	"context"

	"github.com/moveoone/moveo/internal/auth/internal/domain"
)

// TokenStore defines the port for SDK token persistence.
type TokenStore interface {
	// FindByHash retrieves a token by its SHA256 hash, including revoked ones.
	FindByHash(ctx context.Context, tokenHash string) (*domain.Token, error)

	// Create persists a new token.
	Create(ctx context.Context, token *domain.Token) error

	// Revoke marks a token as revoked.
	Revoke(ctx context.Context, id string) error

	// ListByAppID returns all tokens for an app, newest first.
	ListByAppID(ctx context.Context, appID string) ([]domain.Token, error)
}

// Token is the public view of a stored SDK token.
type Token = domain.Token

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

// AppIDContextKey is the context key used to inject the authenticated app_id
// into the request context after successful token validation.
const AppIDContextKey contextKey = "app_id"

// WithAppID returns a copy of ctx carrying appID.
func WithAppID(ctx context.Context, appID string) context.Context {
	return context.WithValue(ctx, AppIDContextKey, appID)
}
