// Command collector runs the dev collector: the HTTP gateway SDKs send event
// batches, prediction requests and latency reports to.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/moveoone/moveo/internal/auth"
	"github.com/moveoone/moveo/internal/database"
	"github.com/moveoone/moveo/internal/dedup"
	"github.com/moveoone/moveo/internal/gateway"
	"github.com/moveoone/moveo/internal/nats"
	"github.com/moveoone/moveo/internal/observability"
	"github.com/moveoone/moveo/internal/prediction"
)

// Config holds all collector configuration.
type Config struct {
	// LogLevel is the log level (debug, info, warn, error)
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is the log format (json, text)
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// ServiceName names the OTel meter
	ServiceName string `env:"SERVICE_NAME" envDefault:"moveo-collector"`

	// AdminToken guards /api/admin/ routes when set
	AdminToken string `env:"ADMIN_TOKEN"`

	// HTTP gateway configuration
	Gateway gateway.Config `envPrefix:""`

	// NATS configuration
	NATS nats.Config `envPrefix:""`

	// Database configuration
	Database database.Config `envPrefix:"DB_"`

	// Dedup configuration
	Dedup dedup.Config `envPrefix:""`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting moveo collector",
		"log_level", cfg.LogLevel,
		"http_addr", cfg.Gateway.Addr,
		"nats_url", cfg.NATS.URL,
		"db_driver", cfg.Database.Driver,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Metrics
	obs, err := observability.New(cfg.ServiceName)
	if err != nil {
		logger.Error("failed to set up observability", "error", err)
		os.Exit(1)
	}
	metrics, err := observability.NewMetrics(obs.Meter())
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	// Database
	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// NATS
	natsClient, err := nats.NewClient(ctx, cfg.NATS, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	streamMgr := nats.NewStreamManager(natsClient.JetStream(), cfg.NATS.Stream, logger)
	stream, err := streamMgr.EnsureStream(ctx)
	if err != nil {
		logger.Error("failed to ensure stream", "error", err)
		os.Exit(1)
	}
	if _, err := streamMgr.EnsureDLQStream(ctx); err != nil {
		logger.Error("failed to ensure DLQ stream", "error", err)
		os.Exit(1)
	}
	if err := streamMgr.EnsureConsumers(ctx, stream, nats.DefaultConsumerConfigs()); err != nil {
		logger.Error("failed to ensure consumers", "error", err)
		os.Exit(1)
	}

	// Modules
	authModule := auth.New(db.DB(), cfg.AdminToken, metrics, logger)
	predictions := prediction.New(db.DB(), cfg.AdminToken, metrics, logger)

	dedupModule := dedup.New(cfg.Dedup, metrics, logger)
	dedupModule.Start(ctx)
	defer dedupModule.Stop()

	publisher := nats.NewPublisher(natsClient.JetStream(), cfg.NATS.PublishTimeout, metrics, logger)
	eventService := gateway.NewEventService(publisher, dedupModule, cfg.Gateway.MaxBatchEvents, metrics, logger)

	server, err := gateway.NewServer(cfg.Gateway, gateway.Dependencies{
		Events:         eventService,
		Authenticate:   authModule.AuthMiddleware(),
		Routes:         []gateway.RouteRegistrar{predictions},
		AdminRoutes:    []gateway.AdminRouteRegistrar{authModule, predictions},
		Metrics:        metrics,
		MetricsHandler: obs.MetricsHandler(),
		Checks: []gateway.ReadinessCheck{
			{Name: "database", Check: db.Ping},
			{Name: "nats", Check: natsClient.HealthCheck},
		},
	}, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := natsClient.Drain(); err != nil {
		logger.Error("NATS drain error", "error", err)
	}

	metricsCtx, metricsCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer metricsCancel()
	if err := obs.Shutdown(metricsCtx); err != nil {
		logger.Error("metrics shutdown error", "error", err)
	}

	logger.Info("collector stopped")
}

// setupLogger creates a logger based on configuration.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
