package moveo

import (
	"errors"
	"testing"
	"time"
)

// TestConfig_Validate verifies rejected values.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero config", Config{}, false},
		{"valid", Config{Endpoint: "https://collector.example.com", FlushInterval: 20 * time.Second}, false},
		{"endpoint without scheme", Config{Endpoint: "collector.example.com"}, true},
		{"flush interval too short", Config{FlushInterval: 2 * time.Second}, true},
		{"flush interval too long", Config{FlushInterval: 2 * time.Minute}, true},
		{"negative threshold", Config{MaxThreshold: -1}, true},
		{"negative timeout", Config{PredictTimeout: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestConfig_WithDefaults verifies the default values.
func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{Endpoint: "https://collector.example.com/"}.withDefaults()

	if cfg.Endpoint != "https://collector.example.com" {
		t.Errorf("Endpoint = %q, want trailing slash trimmed", cfg.Endpoint)
	}
	if cfg.FlushInterval != DefaultFlushInterval {
		t.Errorf("FlushInterval = %v", cfg.FlushInterval)
	}
	if cfg.MaxThreshold != DefaultMaxThreshold {
		t.Errorf("MaxThreshold = %d", cfg.MaxThreshold)
	}
	if cfg.CalculateLatency == nil || !*cfg.CalculateLatency {
		t.Error("CalculateLatency default is not true")
	}
	if cfg.PredictTimeout != DefaultPredictTimeout {
		t.Errorf("PredictTimeout = %v", cfg.PredictTimeout)
	}
	if cfg.Logger == nil || cfg.HTTPClient == nil {
		t.Error("Logger or HTTPClient not defaulted")
	}

	off := Config{CalculateLatency: boolPtr(false)}.withDefaults()
	if *off.CalculateLatency {
		t.Error("explicit CalculateLatency=false overridden")
	}
}

// TestConfigFromEnv verifies MOVEO_* parsing.
func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MOVEO_ENDPOINT", "https://collector.example.com")
	t.Setenv("MOVEO_FLUSH_INTERVAL", "15s")
	t.Setenv("MOVEO_MAX_THRESHOLD", "200")
	t.Setenv("MOVEO_CALCULATE_LATENCY", "false")
	t.Setenv("MOVEO_LOGGING", "true")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() error = %v", err)
	}

	if cfg.Endpoint != "https://collector.example.com" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.FlushInterval != 15*time.Second {
		t.Errorf("FlushInterval = %v", cfg.FlushInterval)
	}
	if cfg.MaxThreshold != 200 {
		t.Errorf("MaxThreshold = %d", cfg.MaxThreshold)
	}
	if *cfg.CalculateLatency {
		t.Error("CalculateLatency = true, want false")
	}
	if !cfg.Logging {
		t.Error("Logging = false, want true")
	}
	if cfg.PredictTimeout != DefaultPredictTimeout {
		t.Errorf("PredictTimeout = %v, want default", cfg.PredictTimeout)
	}
}

// TestConfigFromEnv_InvalidInterval verifies env values are validated.
func TestConfigFromEnv_InvalidInterval(t *testing.T) {
	t.Setenv("MOVEO_FLUSH_INTERVAL", "1s")

	if _, err := ConfigFromEnv(); err == nil {
		t.Error("ConfigFromEnv() with 1s interval returned nil error")
	}
}

// TestConfigFromEnv_InvalidEndpoint verifies the endpoint sentinel.
func TestConfigFromEnv_InvalidEndpoint(t *testing.T) {
	t.Setenv("MOVEO_ENDPOINT", "::bad")

	if _, err := ConfigFromEnv(); !errors.Is(err, ErrInvalidEndpoint) {
		t.Errorf("ConfigFromEnv() error = %v, want ErrInvalidEndpoint", err)
	}
}
