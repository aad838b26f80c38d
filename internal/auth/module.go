package auth

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/moveoone/moveo/internal/auth/internal/handler"
	"github.com/moveoone/moveo/internal/auth/internal/repo"
	"github.com/moveoone/moveo/internal/auth/internal/service"
	"github.com/moveoone/moveo/internal/observability"
)

// Exported service errors.
var (
	ErrEmptyAppID = service.ErrEmptyAppID

	errInvalidToken = service.ErrInvalidToken
)

// Module is the auth module facade. It wires the domain, service, repository
// and handler layers and exposes token management and the HTTP middleware.
type Module struct {
	service *service.TokenService
	repo    *repo.TokenRepository
	handler *handler.TokenHandler
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates an auth Module over db. metrics may be nil. When adminToken is
// empty the admin routes are unauthenticated, which is only suitable for
// local development.
func New(db *sql.DB, adminToken string, metrics *observability.Metrics, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}

	tokenRepo := repo.NewTokenRepository(db)
	tokenSvc := service.NewTokenService(tokenRepo, logger)
	tokenHandler := handler.NewTokenHandler(tokenSvc, adminToken, logger)

	return &Module{
		service: tokenSvc,
		repo:    tokenRepo,
		handler: tokenHandler,
		metrics: metrics,
		logger:  logger.With("component", "auth-module"),
	}
}

// CreateToken generates a token for appID. The returned plaintext must be
// shown once; it cannot be retrieved again.
func (m *Module) CreateToken(ctx context.Context, appID, name string) (string, error) {
	plaintext, _, err := m.service.CreateToken(ctx, appID, name)
	if err != nil {
		return "", err
	}
	return plaintext, nil
}

// RevokeToken revokes a token by its ID.
func (m *Module) RevokeToken(ctx context.Context, id string) error {
	return m.service.RevokeToken(ctx, id)
}

// ListTokens returns all tokens for appID.
func (m *Module) ListTokens(ctx context.Context, appID string) ([]Token, error) {
	return m.service.ListTokens(ctx, appID)
}

// AuthMiddleware returns middleware that validates SDK tokens from the
// Authorization header and injects the app_id into the request context.
func (m *Module) AuthMiddleware() func(http.Handler) http.Handler {
	return m.authMiddleware()
}

// RegisterAdminRoutes mounts the token administration endpoints on mux:
//   - POST   /api/admin/tokens
//   - DELETE /api/admin/tokens/{id}
//   - GET    /api/admin/tokens?app_id=...
func (m *Module) RegisterAdminRoutes(mux *http.ServeMux) {
	m.handler.RegisterRoutes(mux)
}
