package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/moveoone/moveo/internal/auth"
	"github.com/moveoone/moveo/internal/database"
	"github.com/moveoone/moveo/internal/observability"
	"github.com/moveoone/moveo/sdk/moveo"
)

func newTestModule(t *testing.T, adminToken string) *Module {
	t.Helper()

	client, err := database.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	metrics, err := observability.NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	return New(client.DB(), adminToken, metrics, nil)
}

// withApp injects app_id the way the auth middleware does.
func withApp(appID string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.WithAppID(r.Context(), appID)))
	})
}

func sessionEvents(sid string, clicks int) []moveo.Event {
	evts := []moveo.Event{{Context: "checkout", Type: moveo.KindStartSession, Timestamp: 1, SessionID: sid}}
	for i := range clicks {
		evts = append(evts, moveo.Event{
			Context:   "checkout",
			Type:      moveo.KindTrack,
			Timestamp: int64(i + 2),
			SessionID: sid,
			Properties: &moveo.Properties{
				ElementID:   "pay",
				Action:      moveo.ActionClick,
				ElementType: moveo.TypeButton,
				Value:       "-",
			},
		})
	}
	return evts
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPredictEndpoint(t *testing.T) {
	m := newTestModule(t, "")
	ctx := context.Background()

	models := []*Model{
		{AppID: "app-1", ID: "churn", MinEvents: 2, Threshold: 0.5, Weights: map[string]float64{"button:click": 1}},
		{AppID: "app-1", ID: "needs-cancel", MinEvents: 1, Threshold: 0.5, ConditionalEvent: "el:cancel"},
		{AppID: "app-1", ID: "warmup", MinEvents: 50, Threshold: 0.5},
	}
	for _, model := range models {
		if err := m.SaveModel(ctx, model); err != nil {
			t.Fatalf("SaveModel(%s): %v", model.ID, err)
		}
	}

	mux := http.NewServeMux()
	m.RegisterRoutes(mux)
	h := withApp("app-1", mux)

	tests := []struct {
		name       string
		model      string
		body       any
		wantStatus int
	}{
		{"scored", "churn", map[string]any{"events": sessionEvents("sid_1", 3), "session_id": "sid_1"}, http.StatusOK},
		{"pending", "warmup", map[string]any{"events": sessionEvents("sid_1", 3), "session_id": "sid_1"}, http.StatusAccepted},
		{"unknown model", "ghost", map[string]any{"events": sessionEvents("sid_1", 3), "session_id": "sid_1"}, http.StatusNotFound},
		{"conditional missing", "needs-cancel", map[string]any{"events": sessionEvents("sid_1", 3), "session_id": "sid_1"}, http.StatusConflict},
		{"empty events", "churn", map[string]any{"events": []moveo.Event{}, "session_id": "sid_1"}, http.StatusUnprocessableEntity},
		{"blank session", "churn", map[string]any{"events": sessionEvents("sid_1", 1), "session_id": ""}, http.StatusUnprocessableEntity},
		{"not json", "churn", "{", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h, "/api/models/"+tt.model+"/predict", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}

			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			switch rec.Code {
			case http.StatusOK:
				if _, ok := body["prediction_probability"].(float64); !ok {
					t.Errorf("missing prediction_probability in %v", body)
				}
				if b, ok := body["prediction_binary"].(bool); !ok || !b {
					t.Errorf("prediction_binary = %v, want true", body["prediction_binary"])
				}
			case http.StatusAccepted:
				if _, ok := body["message"].(string); !ok {
					t.Errorf("missing message in %v", body)
				}
			default:
				if _, ok := body["detail"].(string); !ok {
					t.Errorf("missing detail in %v", body)
				}
			}
		})
	}
}

func TestPredictEndpoint_ScopedByApp(t *testing.T) {
	m := newTestModule(t, "")
	if err := m.SaveModel(context.Background(), &Model{AppID: "app-1", ID: "churn", MinEvents: 1, Threshold: 0.5}); err != nil {
		t.Fatalf("SaveModel: %v", err)
	}

	mux := http.NewServeMux()
	m.RegisterRoutes(mux)

	rec := postJSON(t, withApp("app-2", mux), "/api/models/churn/predict",
		map[string]any{"events": sessionEvents("sid_1", 1), "session_id": "sid_1"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for another app's model", rec.Code)
	}
}

func TestLatencyEndpoint(t *testing.T) {
	m := newTestModule(t, "")
	mux := http.NewServeMux()
	m.RegisterRoutes(mux)
	h := withApp("app-1", mux)

	report := map[string]any{
		"model_id":                "churn",
		"session_id":              "sid_1",
		"client":                  moveo.ClientName,
		"total_execution_time_ms": 42,
		"latency_data": map[string]any{
			"start_time_ms": 1000,
			"end_time_ms":   1042,
			"status":        string(moveo.StatusSuccess),
		},
	}

	rec := postJSON(t, h, "/api/prediction-latency", report)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}

	got, err := m.RecentLatencies(context.Background(), "app-1", "churn", 10)
	if err != nil {
		t.Fatalf("RecentLatencies: %v", err)
	}
	if len(got) != 1 || got[0].TotalExecutionTimeMs != 42 || got[0].Status != "success" {
		t.Errorf("RecentLatencies() = %+v", got)
	}

	report["session_id"] = ""
	if rec := postJSON(t, h, "/api/prediction-latency", report); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid report status = %d, want 422", rec.Code)
	}
}

func TestAdminModelRoutes(t *testing.T) {
	m := newTestModule(t, "secret")
	mux := http.NewServeMux()
	m.RegisterAdminRoutes(mux)

	body := `{"app_id":"app-1","name":"Churn","min_events":2,"threshold":0.7,"weights":{"button:click":0.4}}`

	req := httptest.NewRequest(http.MethodPut, "/api/admin/models/churn", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without admin token status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/admin/models/churn", bytes.NewBufferString(body))
	req.Header.Set("X-Admin-Token", "secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/models?app_id=app-1", nil)
	req.Header.Set("X-Admin-Token", "secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var list struct {
		Models []struct {
			ID        string  `json:"id"`
			Threshold float64 `json:"threshold"`
		} `json:"models"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Count != 1 || list.Models[0].ID != "churn" || list.Models[0].Threshold != 0.7 {
		t.Errorf("list = %+v", list)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/admin/models/bad", bytes.NewBufferString(`{"app_id":"app-1"}`))
	req.Header.Set("X-Admin-Token", "secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid model status = %d, want 400", rec.Code)
	}
}
