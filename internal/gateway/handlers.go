package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/moveoone/moveo/internal/auth"
	"github.com/moveoone/moveo/sdk/moveo"
)

// batchRequest is the body SDKs POST to /api/analytic/event.
type batchRequest struct {
	Events []moveo.Event `json:"events"`
}

// ingestHandler serves POST /api/analytic/event.
type ingestHandler struct {
	service *EventService
	logger  *slog.Logger
}

func (h *ingestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	result, err := h.service.IngestBatch(r.Context(), auth.GetAppID(r.Context()), req.Events)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, ErrAppIDRequired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrBatchTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrAtLeastOneEvent):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrAllRejected):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail":   err.Error(),
			"rejected": result.Rejected,
			"results":  result.Results,
		})
	case errors.Is(err, ErrPublishFailed):
		writeError(w, http.StatusServiceUnavailable, "event pipeline unavailable")
	default:
		h.logger.Error("ingest failed",
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
