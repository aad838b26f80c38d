package prediction

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/moveoone/moveo/internal/observability"
	"github.com/moveoone/moveo/internal/prediction/internal/handler"
	"github.com/moveoone/moveo/internal/prediction/internal/repo"
	"github.com/moveoone/moveo/internal/prediction/internal/service"
	"github.com/moveoone/moveo/sdk/moveo"
)

// Module is the prediction module facade.
type Module struct {
	service   *service.PredictionService
	models    *repo.ModelRepository
	latencies *repo.LatencyRepository
	handler   *handler.PredictionHandler
}

var (
	_ ModelStore   = (*repo.ModelRepository)(nil)
	_ LatencyStore = (*repo.LatencyRepository)(nil)
)

// New creates a prediction Module over db. metrics may be nil. adminToken
// guards the model admin routes when non-empty.
func New(db *sql.DB, adminToken string, metrics *observability.Metrics, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "prediction")

	models := repo.NewModelRepository(db)
	latencies := repo.NewLatencyRepository(db)
	svc := service.NewPredictionService(models, latencies, metrics, logger)

	return &Module{
		service:   svc,
		models:    models,
		latencies: latencies,
		handler:   handler.NewPredictionHandler(svc, adminToken, logger),
	}
}

// Predict scores a session for appID with model modelID.
func (m *Module) Predict(ctx context.Context, appID, modelID, sessionID string, events []moveo.Event) (probability float64, binary bool, err error) {
	pred, err := m.service.Predict(ctx, appID, modelID, sessionID, events)
	if err != nil {
		return 0, false, err
	}
	return pred.Probability, pred.Binary, nil
}

// SaveModel creates or replaces a model.
func (m *Module) SaveModel(ctx context.Context, model *Model) error {
	return m.service.SaveModel(ctx, model)
}

// ListModels returns the models registered for appID.
func (m *Module) ListModels(ctx context.Context, appID string) ([]Model, error) {
	return m.service.ListModels(ctx, appID)
}

// RecentLatencies returns up to limit latency reports for a model, newest
// first.
func (m *Module) RecentLatencies(ctx context.Context, appID, modelID string, limit int) ([]LatencyRecord, error) {
	return m.latencies.ListByModel(ctx, appID, modelID, limit)
}

// RegisterRoutes mounts the SDK endpoints. They expect the auth middleware
// to have placed the app_id in the request context.
func (m *Module) RegisterRoutes(mux *http.ServeMux) {
	m.handler.RegisterRoutes(mux)
}

// RegisterAdminRoutes mounts the model admin endpoints.
func (m *Module) RegisterAdminRoutes(mux *http.ServeMux) {
	m.handler.RegisterAdminRoutes(mux)
}
