package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/moveoone/moveo/internal/observability"
)

// RouteRegistrar mounts SDK-facing routes. They run behind SDK token auth.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// AdminRouteRegistrar mounts operator routes under /api/admin/.
type AdminRouteRegistrar interface {
	RegisterAdminRoutes(mux *http.ServeMux)
}

// ReadinessCheck is one dependency probed by /ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Dependencies are the collaborators the server routes to.
type Dependencies struct {
	// Events handles /api/analytic/event. Required.
	Events *EventService

	// Authenticate resolves the SDK token into an app_id. Required.
	Authenticate Middleware

	// Routes and AdminRoutes are mounted on the same mux.
	Routes      []RouteRegistrar
	AdminRoutes []AdminRouteRegistrar

	// Metrics enables request metrics and rate limit counters when set.
	Metrics *observability.Metrics

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler

	// Checks are run by /ready.
	Checks []ReadinessCheck
}

// Server is the collector's HTTP server.
type Server struct {
	cfg        Config
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer builds the route table and middleware stack.
func NewServer(cfg Config, deps Dependencies, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http-server")

	if deps.Events == nil {
		return nil, errors.New("gateway: event service is required")
	}
	if deps.Authenticate == nil {
		return nil, errors.New("gateway: authentication middleware is required")
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/analytic/event", ContentType(&ingestHandler{service: deps.Events, logger: logger}))
	for _, r := range deps.Routes {
		r.RegisterRoutes(mux)
	}
	for _, r := range deps.AdminRoutes {
		r.RegisterAdminRoutes(mux)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /ready", readyHandler(deps.Checks))
	if deps.MetricsHandler != nil {
		mux.Handle("GET /metrics", deps.MetricsHandler)
	}

	// HTTPMetrics wraps the mux directly so it sees the matched pattern.
	var routed http.Handler = mux
	if deps.Metrics != nil {
		routed = observability.HTTPMetrics(deps.Metrics)(mux)
	}

	limitOpts := []LimitOption{WithLimitMetrics(deps.Metrics)}
	handler := Chain(routed,
		Recovery(logger),
		RequestID,
		Logging(logger),
		CORS(cfg.CORS),
		RateLimit(cfg.RateLimit, limitOpts...),
		BodySizeLimit(cfg.MaxBodyBytes),
		deps.Authenticate,
		PerKeyRateLimit(cfg.RateLimit, limitOpts...),
	)

	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		httpServer: &http.Server{
			Addr:           cfg.Addr,
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
	}, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("http server listening", "addr", l.Addr().String())
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests,
// bounded by ctx and the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func readyHandler(checks []ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[c.Name] = err.Error()
				continue
			}
			results[c.Name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not ready"
		}
		writeJSON(w, status, map[string]any{
			"status": state,
			"checks": results,
		})
	}
}
