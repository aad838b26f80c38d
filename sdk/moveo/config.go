package moveo

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Default configuration values.
const (
	DefaultEndpoint        = "http://localhost:8080"
	DefaultFlushInterval   = 10 * time.Second
	DefaultMaxThreshold    = 500
	DefaultPredictTimeout  = 400 * time.Millisecond
	DefaultLatencyTimeout  = 5 * time.Second
	DefaultDispatchTimeout = 10 * time.Second

	MinFlushInterval = 5 * time.Second
	MaxFlushInterval = 60 * time.Second
)

// Config holds the SDK configuration shared by every client a Registry creates.
type Config struct {
	// Endpoint is the collector base URL (e.g., "https://collector.example.com").
	Endpoint string

	// FlushInterval is the deferred flush delay (default: 10s, range 5s-60s).
	FlushInterval time.Duration

	// MaxThreshold is the buffer length that forces an immediate flush (default: 500).
	MaxThreshold int

	// CustomPush disables automatic flushing; the caller drains with CustomFlush.
	CustomPush bool

	// CalculateLatency enables asynchronous prediction latency reports (default: true).
	CalculateLatency *bool

	// Logging enables diagnostic output. It never changes behavior.
	Logging bool

	// PredictTimeout bounds the prediction request (default: 400ms).
	PredictTimeout time.Duration

	// LatencyTimeout bounds the latency report request (default: 5s).
	LatencyTimeout time.Duration

	// DispatchTimeout bounds a single batch POST (default: 10s).
	DispatchTimeout time.Duration

	// Logger receives diagnostics when Logging is on (default: slog.Default()).
	Logger *slog.Logger

	// HTTPClient is used for every outbound call. Per-call timeouts are applied
	// through the request context.
	HTTPClient *http.Client

	// Meter creates the SDK instruments. Nil means a noop meter.
	Meter otelmetric.Meter
}

// envConfig is the environment-facing subset of Config.
type envConfig struct {
	Endpoint         string        `env:"ENDPOINT" envDefault:"http://localhost:8080"`
	FlushInterval    time.Duration `env:"FLUSH_INTERVAL" envDefault:"10s"`
	MaxThreshold     int           `env:"MAX_THRESHOLD" envDefault:"500"`
	CustomPush       bool          `env:"CUSTOM_PUSH" envDefault:"false"`
	CalculateLatency bool          `env:"CALCULATE_LATENCY" envDefault:"true"`
	Logging          bool          `env:"LOGGING" envDefault:"false"`
	PredictTimeout   time.Duration `env:"PREDICT_TIMEOUT" envDefault:"400ms"`
	LatencyTimeout   time.Duration `env:"LATENCY_TIMEOUT" envDefault:"5s"`
	DispatchTimeout  time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"10s"`
}

// ConfigFromEnv reads MOVEO_* environment variables into a Config.
// The returned Config is validated.
func ConfigFromEnv() (Config, error) {
	var ec envConfig
	if err := env.ParseWithOptions(&ec, env.Options{Prefix: "MOVEO_"}); err != nil {
		return Config{}, fmt.Errorf("moveo: parse environment: %w", err)
	}

	calculateLatency := ec.CalculateLatency
	cfg := Config{
		Endpoint:         ec.Endpoint,
		FlushInterval:    ec.FlushInterval,
		MaxThreshold:     ec.MaxThreshold,
		CustomPush:       ec.CustomPush,
		CalculateLatency: &calculateLatency,
		Logging:          ec.Logging,
		PredictTimeout:   ec.PredictTimeout,
		LatencyTimeout:   ec.LatencyTimeout,
		DispatchTimeout:  ec.DispatchTimeout,
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate checks that set values are usable. Zero values are allowed and
// replaced by withDefaults.
func (c *Config) validate() error {
	if c.Endpoint != "" {
		parsed, err := url.Parse(c.Endpoint)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidEndpoint, c.Endpoint)
		}
	}

	if c.FlushInterval != 0 && !validFlushInterval(c.FlushInterval) {
		return fmt.Errorf("moveo: flush interval must be between %v and %v", MinFlushInterval, MaxFlushInterval)
	}

	if c.MaxThreshold < 0 {
		return fmt.Errorf("moveo: max threshold must be non-negative")
	}

	if c.PredictTimeout < 0 || c.LatencyTimeout < 0 || c.DispatchTimeout < 0 {
		return fmt.Errorf("moveo: timeouts must be non-negative")
	}

	return nil
}

// withDefaults returns a copy of the config with default values applied.
func (c Config) withDefaults() Config {
	cfg := c

	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimSuffix(cfg.Endpoint, "/")

	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.MaxThreshold == 0 {
		cfg.MaxThreshold = DefaultMaxThreshold
	}
	if cfg.CalculateLatency == nil {
		enabled := true
		cfg.CalculateLatency = &enabled
	}
	if cfg.PredictTimeout == 0 {
		cfg.PredictTimeout = DefaultPredictTimeout
	}
	if cfg.LatencyTimeout == 0 {
		cfg.LatencyTimeout = DefaultLatencyTimeout
	}
	if cfg.DispatchTimeout == 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	return cfg
}

func validFlushInterval(d time.Duration) bool {
	return d >= MinFlushInterval && d <= MaxFlushInterval
}
