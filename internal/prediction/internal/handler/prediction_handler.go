// Package handler provides the HTTP handlers for session prediction, latency
// reports and model administration.
package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/moveoone/moveo/internal/auth"
	"github.com/moveoone/moveo/internal/prediction/internal/domain"
	"github.com/moveoone/moveo/internal/prediction/internal/service"
	"github.com/moveoone/moveo/sdk/moveo"
)

// AdminTokenHeader carries the operator secret on admin requests.
const AdminTokenHeader = "X-Admin-Token"

// PredictionHandler serves the SDK prediction endpoints and the model
// admin endpoints.
type PredictionHandler struct {
	service    *service.PredictionService
	adminToken string
	logger     *slog.Logger
}

// NewPredictionHandler creates a PredictionHandler.
func NewPredictionHandler(svc *service.PredictionService, adminToken string, logger *slog.Logger) *PredictionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictionHandler{
		service:    svc,
		adminToken: adminToken,
		logger:     logger.With("component", "prediction-handler"),
	}
}

// RegisterRoutes mounts the SDK endpoints on mux.
//
// Endpoints:
//   - POST /api/models/{id}/predict  - Score the caller's live session
//   - POST /api/prediction-latency   - Record a client timing report
func (h *PredictionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/models/{id}/predict", h.handlePredict)
	mux.HandleFunc("POST /api/prediction-latency", h.handleLatency)
}

// RegisterAdminRoutes mounts the model admin endpoints on mux.
//
// Endpoints:
//   - PUT /api/admin/models/{id}  - Create or replace a model
//   - GET /api/admin/models       - List models for an app
func (h *PredictionHandler) RegisterAdminRoutes(mux *http.ServeMux) {
	mux.Handle("PUT /api/admin/models/{id}", h.requireAdmin(h.handlePutModel))
	mux.Handle("GET /api/admin/models", h.requireAdmin(h.handleListModels))
}

type predictRequest struct {
	Events    []moveo.Event `json:"events"`
	SessionID string        `json:"session_id"`
}

type predictResponse struct {
	PredictionProbability float64 `json:"prediction_probability"`
	PredictionBinary      bool    `json:"prediction_binary"`
}

type latencyRequest struct {
	ModelID              string `json:"model_id"`
	SessionID            string `json:"session_id"`
	Client               string `json:"client"`
	TotalExecutionTimeMs int64  `json:"total_execution_time_ms"`
	LatencyData          struct {
		StartTimeMs int64  `json:"start_time_ms"`
		EndTimeMs   int64  `json:"end_time_ms"`
		Status      string `json:"status"`
	} `json:"latency_data"`
}

type modelRequest struct {
	AppID            string             `json:"app_id"`
	Name             string             `json:"name"`
	MinEvents        int                `json:"min_events"`
	Threshold        float64            `json:"threshold"`
	Bias             float64            `json:"bias"`
	Weights          map[string]float64 `json:"weights"`
	ConditionalEvent string             `json:"conditional_event"`
}

type modelItem struct {
	ID string `json:"id"`
	modelRequest
	CreatedAt time.Time `json:"created_at"`
}

// handlePredict maps scoring outcomes onto the status codes the SDK
// classifies: 200 scored, 202 pending, 404 unknown model, 409 conditional
// event missing, 422 malformed request.
func (h *PredictionHandler) handlePredict(w http.ResponseWriter, r *http.Request) {
	modelID := r.PathValue("id")

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, detail("request body is not valid JSON"))
		return
	}

	pred, err := h.service.Predict(r.Context(), auth.GetAppID(r.Context()), modelID, req.SessionID, req.Events)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, predictResponse{
			PredictionProbability: pred.Probability,
			PredictionBinary:      pred.Binary,
		})
	case errors.Is(err, domain.ErrNotEnoughEvents):
		writeJSON(w, http.StatusAccepted, map[string]string{
			"message": "Not enough events in session to make a prediction",
		})
	case errors.Is(err, domain.ErrModelNotFound):
		writeJSON(w, http.StatusNotFound, detail("model not found"))
	case errors.Is(err, domain.ErrConditionNotMet):
		writeJSON(w, http.StatusConflict, detail(err.Error()))
	case errors.Is(err, domain.ErrInvalidSessionID),
		errors.Is(err, domain.ErrNoEvents),
		errors.Is(err, domain.ErrSessionMismatch),
		errors.Is(err, service.ErrInvalidEvent):
		writeJSON(w, http.StatusUnprocessableEntity, detail(err.Error()))
	default:
		h.logger.Error("prediction failed",
			"model_id", modelID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, detail("prediction failed"))
	}
}

func (h *PredictionHandler) handleLatency(w http.ResponseWriter, r *http.Request) {
	var req latencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, detail("request body is not valid JSON"))
		return
	}

	rec := &domain.LatencyRecord{
		AppID:                auth.GetAppID(r.Context()),
		ModelID:              req.ModelID,
		SessionID:            req.SessionID,
		Client:               req.Client,
		Status:               req.LatencyData.Status,
		StartTimeMs:          req.LatencyData.StartTimeMs,
		EndTimeMs:            req.LatencyData.EndTimeMs,
		TotalExecutionTimeMs: req.TotalExecutionTimeMs,
	}

	err := h.service.RecordLatency(r.Context(), rec)
	if errors.Is(err, domain.ErrInvalidLatency) {
		writeJSON(w, http.StatusUnprocessableEntity, detail(err.Error()))
		return
	}
	if err != nil {
		h.logger.Error("failed to record latency",
			"model_id", req.ModelID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, detail("failed to record latency"))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (h *PredictionHandler) requireAdmin(next http.HandlerFunc) http.Handler {
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

func (h *PredictionHandler) handlePutModel(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, detail("invalid request body"))
		return
	}

	m := &domain.Model{
		AppID:            req.AppID,
		ID:               r.PathValue("id"),
		Name:             req.Name,
		MinEvents:        req.MinEvents,
		Threshold:        req.Threshold,
		Bias:             req.Bias,
		Weights:          req.Weights,
		ConditionalEvent: req.ConditionalEvent,
	}

	err := h.service.SaveModel(r.Context(), m)
	if errors.Is(err, domain.ErrInvalidModel) {
		writeJSON(w, http.StatusBadRequest, detail(err.Error()))
		return
	}
	if err != nil {
		h.logger.Error("failed to save model",
			"app_id", req.AppID,
			"model_id", m.ID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, detail("failed to save model"))
		return
	}

	writeJSON(w, http.StatusOK, toItem(*m))
}

func (h *PredictionHandler) handleListModels(w http.ResponseWriter, r *http.Request) {
	appID := r.URL.Query().Get("app_id")
	if appID == "" {
		writeJSON(w, http.StatusBadRequest, detail("app_id query parameter is required"))
		return
	}

	models, err := h.service.ListModels(r.Context(), appID)
	if err != nil {
		h.logger.Error("failed to list models",
			"app_id", appID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, detail("failed to list models"))
		return
	}

	items := make([]modelItem, len(models))
	for i, m := range models {
		items[i] = toItem(m)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"models": items,
		"count":  len(items),
	})
}

func toItem(m domain.Model) modelItem {
	return modelItem{
		ID: m.ID,
		modelRequest: modelRequest{
			AppID:            m.AppID,
			Name:             m.Name,
			MinEvents:        m.MinEvents,
			Threshold:        m.Threshold,
			Bias:             m.Bias,
			Weights:          m.Weights,
			ConditionalEvent: m.ConditionalEvent,
		},
		CreatedAt: m.CreatedAt,
	}
}

func detail(msg string) map[string]string {
	return map[string]string{"detail": msg}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
