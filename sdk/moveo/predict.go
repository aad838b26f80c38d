package moveo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// PredictionStatus is the closed set of outcomes of a prediction call.
type PredictionStatus string

// Prediction outcomes.
const (
	StatusSuccess        PredictionStatus = "success"
	StatusPending        PredictionStatus = "pending"
	StatusInvalidModelID PredictionStatus = "invalid_model_id"
	StatusNotInitialized PredictionStatus = "not_initialized"
	StatusNoSession      PredictionStatus = "no_session"
	StatusTimeout        PredictionStatus = "timeout"
	StatusUnauthorized   PredictionStatus = "unauthorized"
	StatusForbidden      PredictionStatus = "forbidden"
	StatusNotFound       PredictionStatus = "not_found"
	StatusConflict       PredictionStatus = "conflict"
	StatusInvalidData    PredictionStatus = "invalid_data"
	StatusServerError    PredictionStatus = "server_error"
	StatusNetworkError   PredictionStatus = "network_error"
	StatusUnknownError   PredictionStatus = "unknown_error"
)

// Fixed result messages.
const (
	msgInvalidModelID = "Model ID is required and must be a non-empty string"
	msgNotInitialized = "MoveoOne must be initialized with a valid token before using predict method"
	msgNoSession      = "Session must be started before making predictions. Call Start() first"
	msgUnauthorized   = "Authentication token is invalid or expired"
	msgForbidden      = "Access forbidden: insufficient permissions for this model"
	msgNotFound       = "Model not found or not accessible"
	msgConflict       = "Conditional event not found"
	msgInvalidData    = "Invalid prediction request data"
	msgServerError    = "Server error processing prediction request"
	msgNetworkError   = "Network error: no response received from prediction service"
	msgPending        = "Prediction is being processed"
)

// PredictionResult is the outcome of Predict. Callers switch on Status;
// Predict never returns an error.
type PredictionResult struct {
	Success               bool             `json:"success"`
	Status                PredictionStatus `json:"status"`
	PredictionProbability float64          `json:"prediction_probability"`
	PredictionBinary      bool             `json:"prediction_binary"`
	Message               string           `json:"message,omitempty"`
}

func failure(status PredictionStatus, message string) PredictionResult {
	return PredictionResult{Status: status, Message: message}
}

// predictRequest is the body of the prediction endpoint.
type predictRequest struct {
	Events    []Event `json:"events"`
	SessionID string  `json:"session_id"`
}

// predictResponse covers the success, pending and error bodies.
type predictResponse struct {
	PredictionProbability *float64        `json:"prediction_probability"`
	PredictionBinary      *bool           `json:"prediction_binary"`
	Message               string          `json:"message"`
	Detail                json.RawMessage `json:"detail"`
}

// predictionClient issues bounded-timeout prediction requests.
type predictionClient struct {
	client   *http.Client
	endpoint string
	timeout  time.Duration
}

func newPredictionClient(cfg Config) *predictionClient {
	return &predictionClient{
		client:   cfg.HTTPClient,
		endpoint: cfg.Endpoint,
		timeout:  cfg.PredictTimeout,
	}
}

// predict sends the live buffer for scoring and classifies the outcome.
func (p *predictionClient) predict(ctx context.Context, modelID, token, sessionID string, events []Event) PredictionResult {
	if events == nil {
		events = []Event{}
	}

	body, err := json.Marshal(predictRequest{Events: events, SessionID: sessionID})
	if err != nil {
		return failure(StatusUnknownError, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	endpoint := p.endpoint + "/api/models/" + url.PathEscape(modelID) + "/predict"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return failure(StatusUnknownError, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := p.client.Do(req)
	if err != nil {
		return p.classifyError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return p.classifyError(err)
	}

	return p.classifyResponse(resp.StatusCode, data)
}

// classifyError maps a transport failure onto the result taxonomy.
func (p *predictionClient) classifyError(err error) PredictionResult {
	if isTimeout(err) {
		return failure(StatusTimeout, fmt.Sprintf("Request timed out after %dms", p.timeout.Milliseconds()))
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && !errors.Is(err, context.Canceled) {
		return failure(StatusNetworkError, msgNetworkError)
	}

	return failure(StatusUnknownError, err.Error())
}

func (p *predictionClient) classifyResponse(status int, data []byte) PredictionResult {
	var body predictResponse
	decodeErr := json.Unmarshal(data, &body)

	switch {
	case status == http.StatusOK:
		if decodeErr != nil {
			return failure(StatusUnknownError, fmt.Sprintf("decode prediction response: %v", decodeErr))
		}
		if body.PredictionProbability == nil || body.PredictionBinary == nil {
			return failure(StatusUnknownError, "prediction response is missing prediction fields")
		}
		return PredictionResult{
			Success:               true,
			Status:                StatusSuccess,
			PredictionProbability: *body.PredictionProbability,
			PredictionBinary:      *body.PredictionBinary,
		}
	case status == http.StatusAccepted:
		message := body.Message
		if message == "" {
			message = msgPending
		}
		return failure(StatusPending, message)
	case status == http.StatusUnauthorized:
		return failure(StatusUnauthorized, msgUnauthorized)
	case status == http.StatusForbidden:
		return failure(StatusForbidden, msgForbidden)
	case status == http.StatusNotFound:
		return failure(StatusNotFound, msgNotFound)
	case status == http.StatusConflict:
		return failure(StatusConflict, msgConflict)
	case status == http.StatusUnprocessableEntity:
		return failure(StatusInvalidData, detailOr(body.Detail, msgInvalidData))
	default:
		return failure(StatusServerError, detailOr(body.Detail, msgServerError))
	}
}

// detailOr returns the body detail when it is a non-empty string.
func detailOr(detail json.RawMessage, fallback string) string {
	var s string
	if len(detail) > 0 && json.Unmarshal(detail, &s) == nil && s != "" {
		return s
	}
	return fallback
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
