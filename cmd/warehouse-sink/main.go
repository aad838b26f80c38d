// Command warehouse-sink consumes collected events from NATS and archives
// them to S3/MinIO as Parquet.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/moveoone/moveo/internal/compaction"
	"github.com/moveoone/moveo/internal/dlq"
	"github.com/moveoone/moveo/internal/nats"
	"github.com/moveoone/moveo/internal/observability"
	"github.com/moveoone/moveo/internal/warehouse"
)

// Config holds all warehouse sink configuration.
type Config struct {
	// LogLevel is the log level (debug, info, warn, error)
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is the log format (json, text)
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// ServiceName names the OTel meter
	ServiceName string `env:"SERVICE_NAME" envDefault:"moveo-warehouse-sink"`

	// MetricsAddr serves /metrics; empty disables it
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9091"`

	// NATS configuration
	NATS nats.Config `envPrefix:""`

	// Warehouse configuration
	Warehouse warehouse.Config `envPrefix:""`

	// DLQ configuration
	DLQ dlq.Config `envPrefix:""`

	// Compaction configuration
	Compaction compaction.Config `envPrefix:""`

	// ConsumerName is the NATS consumer name
	ConsumerName string `env:"CONSUMER_NAME" envDefault:"warehouse-sink"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting warehouse sink",
		"log_level", cfg.LogLevel,
		"nats_url", cfg.NATS.URL,
		"s3_endpoint", cfg.Warehouse.S3.Endpoint,
		"s3_bucket", cfg.Warehouse.S3.Bucket,
		"consumer", cfg.ConsumerName,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

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

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", obs.MetricsHandler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Connect to NATS
	natsClient, err := nats.NewClient(ctx, cfg.NATS, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	// Setup streams and consumers
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

	// Dead-letter handling
	deadLetters := dlq.New(
		natsClient.JetStream(),
		natsClient.Conn(),
		cfg.NATS.Stream.Name,
		cfg.NATS.Stream.DLQStreamName,
		[]string{cfg.ConsumerName},
		cfg.DLQ,
		metrics,
		logger,
	)
	if err := deadLetters.Start(ctx); err != nil {
		logger.Error("failed to start DLQ", "error", err)
		os.Exit(1)
	}

	// S3
	s3Client, err := warehouse.NewS3Client(ctx, cfg.Warehouse.S3, logger)
	if err != nil {
		logger.Error("failed to create S3 client", "error", err)
		os.Exit(1)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		logger.Error("failed to ensure bucket", "error", err)
		os.Exit(1)
	}
	if err := s3Client.HealthCheck(ctx); err != nil {
		logger.Error("S3 not reachable", "error", err)
		os.Exit(1)
	}

	consumer := warehouse.NewConsumer(
		natsClient.JetStream(),
		cfg.Warehouse,
		s3Client,
		deadLetters,
		cfg.ConsumerName,
		cfg.NATS.Stream.Name,
		logger,
		metrics,
	)
	if err := consumer.Start(ctx); err != nil {
		logger.Error("failed to start consumer", "error", err)
		os.Exit(1)
	}

	compactor := compaction.New(s3Client, cfg.Warehouse.S3.Prefix, cfg.Warehouse.Parquet, cfg.Compaction, metrics, logger)
	compactor.Start(ctx)

	logger.Info("warehouse sink started")

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	logger.Info("initiating graceful shutdown")
	cancel()

	if err := consumer.Stop(context.Background()); err != nil {
		logger.Error("consumer stop error", "error", err)
	}
	compactor.Stop()
	deadLetters.Stop()

	if err := natsClient.Drain(); err != nil {
		logger.Error("NATS drain error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown error", "error", err)
	}

	logger.Info("warehouse sink stopped")
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

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
