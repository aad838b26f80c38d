// Package handler provides HTTP handlers for SDK token administration.
package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/moveoone/moveo/internal/auth/internal/domain"
	"github.com/moveoone/moveo/internal/auth/internal/service"
)

// AdminTokenHeader carries the operator secret on admin requests.
const AdminTokenHeader = "X-Admin-Token"

// TokenHandler handles token create, revoke and list requests.
type TokenHandler struct {
	service    *service.TokenService
	adminToken string
	logger     *slog.Logger
}

// NewTokenHandler creates a TokenHandler. When adminToken is non-empty every
// request must present it in the X-Admin-Token header.
func NewTokenHandler(svc *service.TokenService, adminToken string, logger *slog.Logger) *TokenHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenHandler{
		service:    svc,
		adminToken: adminToken,
		logger:     logger.With("component", "token-handler"),
	}
}

// RegisterRoutes mounts the admin endpoints on mux.
//
// Endpoints:
//   - POST   /api/admin/tokens       - Create a token
//   - DELETE /api/admin/tokens/{id}  - Revoke a token
//   - GET    /api/admin/tokens       - List tokens for an app
func (h *TokenHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /api/admin/tokens", h.requireAdmin(h.handleCreate))
	mux.Handle("DELETE /api/admin/tokens/{id}", h.requireAdmin(h.handleRevoke))
	mux.Handle("GET /api/admin/tokens", h.requireAdmin(h.handleList))
}

func (h *TokenHandler) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken != "" {
			got := r.Header.Get(AdminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.adminToken)) != 1 {
				writeJSON(w, http.StatusUnauthorized, detail("admin token required"))
				return
			}
		}
		next(w, r)
	})
}

type createTokenRequest struct {
	AppID string `json:"app_id"`
	Name  string `json:"name"`
}

// createTokenResponse is the only place the plaintext token is ever shown.
type createTokenResponse struct {
	ID      string `json:"id"`
	AppID   string `json:"app_id"`
	Name    string `json:"name"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

type tokenItem struct {
	ID        string     `json:"id"`
	AppID     string     `json:"app_id"`
	Name      string     `json:"name"`
	Revoked   bool       `json:"revoked"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func (h *TokenHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, detail("invalid request body"))
		return
	}

	plaintext, token, err := h.service.CreateToken(r.Context(), req.AppID, req.Name)
	if errors.Is(err, service.ErrEmptyAppID) {
		writeJSON(w, http.StatusBadRequest, detail("app_id is required"))
		return
	}
	if err != nil {
		h.logger.Error("failed to create sdk token",
			"app_id", req.AppID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, detail("failed to create token"))
		return
	}

	writeJSON(w, http.StatusCreated, createTokenResponse{
		ID:      token.ID,
		AppID:   token.AppID,
		Name:    token.Name,
		Token:   plaintext,
		Message: "Store this token securely. It will not be shown again.",
	})
}

func (h *TokenHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.service.RevokeToken(r.Context(), id)
	if errors.Is(err, domain.ErrTokenNotFound) {
		writeJSON(w, http.StatusNotFound, detail("token not found"))
		return
	}
	if err != nil {
		h.logger.Error("failed to revoke sdk token",
			"token_id", id,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, detail("failed to revoke token"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "revoked",
		"id":     id,
	})
}

// handleList handles GET /api/admin/tokens?app_id={app_id}. Hashes are never
// exposed.
func (h *TokenHandler) handleList(w http.ResponseWriter, r *http.Request) {
	appID := r.URL.Query().Get("app_id")
	if appID == "" {
		writeJSON(w, http.StatusBadRequest, detail("app_id query parameter is required"))
		return
	}

	tokens, err := h.service.ListTokens(r.Context(), appID)
	if err != nil {
		h.logger.Error("failed to list sdk tokens",
			"app_id", appID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, detail("failed to list tokens"))
		return
	}

	items := make([]tokenItem, len(tokens))
	for i, t := range tokens {
		items[i] = tokenItem{
			ID:        t.ID,
			AppID:     t.AppID,
			Name:      t.Name,
			Revoked:   t.Revoked,
			CreatedAt: t.CreatedAt,
			RevokedAt: t.RevokedAt,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tokens": items,
		"count":  len(items),
	})
}

func detail(msg string) map[string]string {
	return map[string]string{"detail": msg}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
