// Package observability provides OpenTelemetry metrics with a Prometheus
// exporter for the Moveo collector and warehouse sink.
package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Module owns the MeterProvider and the Prometheus registry it exports to.
type Module struct {
	registry *promclient.Registry
	provider *sdkmetric.MeterProvider
	meter    otelmetric.Meter
}

// New creates a Module whose instruments are exported on a dedicated
// Prometheus registry. The provider is also installed as the global OTel
// MeterProvider so libraries using otel.Meter report to the same place.
func New(serviceName string) (*Module, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	return &Module{
		registry: registry,
		provider: provider,
		meter:    provider.Meter(serviceName),
	}, nil
}

// Shutdown flushes and stops the MeterProvider.
func (m *Module) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// MetricsHandler serves the registry in the Prometheus exposition format.
// Mount it at "/metrics".
func (m *Module) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Meter returns the Meter for creating instruments.
func (m *Module) Meter() otelmetric.Meter {
	return m.meter
}
