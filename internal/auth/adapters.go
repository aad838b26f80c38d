package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/moveoone/moveo/internal/auth/internal/domain"
)

// skipAuthPaths lists URL path prefixes that bypass SDK token auth.
// Infrastructure endpoints stay open; admin endpoints use the admin token.
var skipAuthPaths = []string{
	"/health",
	"/ready",
	"/metrics",
	"/api/admin/",
}

// authMiddleware validates the Authorization header. On success it injects
// the app_id into the request context. Missing and unknown tokens get 401,
// revoked tokens get 403, both with a JSON {"detail": ...} body.
func (m *Module) authMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range skipAuthPaths {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			plaintext := domain.ParseAuthorization(r.Header.Get("Authorization"))
			if plaintext == "" {
				m.reject(w, r, http.StatusUnauthorized, "missing_token", "missing SDK token")
				return
			}

			token, err := m.service.ValidateToken(r.Context(), plaintext)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrTokenRevoked):
				m.reject(w, r, http.StatusForbidden, "revoked_token", "SDK token has been revoked")
				return
			case errors.Is(err, errInvalidToken):
				m.reject(w, r, http.StatusUnauthorized, "invalid_token", "invalid SDK token")
				return
			default:
				m.logger.Error("failed to validate sdk token",
					"error", err,
					"path", r.URL.Path,
				)
				m.reject(w, r, http.StatusUnauthorized, "lookup_failed", "invalid SDK token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAppID(r.Context(), token.AppID)))
		})
	}
}

func (m *Module) reject(w http.ResponseWriter, r *http.Request, status int, reason, message string) {
	if m.metrics != nil {
		m.metrics.AuthFailures.Add(r.Context(), 1,
			otelmetric.WithAttributes(attribute.String("reason", reason)))
	}
	writeAuthError(w, status, message)
}

// GetAppID retrieves the authenticated app_id from the request context.
// Returns an empty string if no app_id is present.
func GetAppID(ctx context.Context) string {
	if appID, ok := ctx.Value(AppIDContextKey).(string); ok {
		return appID
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"detail": message,
	})
}
