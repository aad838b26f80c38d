package moveo

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope of the SDK instruments.
const meterName = "github.com/moveoone/moveo/sdk/moveo"

// sdkMetrics holds the SDK instruments. With no Meter configured they are noop.
type sdkMetrics struct {
	eventsTracked      otelmetric.Int64Counter
	flushes            otelmetric.Int64Counter
	eventsDispatched   otelmetric.Int64Counter
	dispatchFailures   otelmetric.Int64Counter
	predictionDuration otelmetric.Float64Histogram
}

func newSDKMetrics(meter otelmetric.Meter) (*sdkMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(meterName)
	}

	var m sdkMetrics
	var err error

	m.eventsTracked, err = meter.Int64Counter(
		"moveo.events.buffered",
		otelmetric.WithDescription("Events appended to the session buffer"),
	)
	if err != nil {
		return nil, err
	}

	m.flushes, err = meter.Int64Counter(
		"moveo.flushes",
		otelmetric.WithDescription("Buffer snapshots handed to the dispatcher"),
	)
	if err != nil {
		return nil, err
	}

	m.eventsDispatched, err = meter.Int64Counter(
		"moveo.events.dispatched",
		otelmetric.WithDescription("Events accepted by the collector"),
	)
	if err != nil {
		return nil, err
	}

	m.dispatchFailures, err = meter.Int64Counter(
		"moveo.dispatch.failures",
		otelmetric.WithDescription("Batch sends that failed and were dropped"),
	)
	if err != nil {
		return nil, err
	}

	m.predictionDuration, err = meter.Float64Histogram(
		"moveo.prediction.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Prediction call duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *sdkMetrics) recordBuffered(kind Kind) {
	m.eventsTracked.Add(context.Background(), 1,
		otelmetric.WithAttributes(attribute.String("type", string(kind))))
}

func (m *sdkMetrics) recordPrediction(status PredictionStatus, elapsedMs float64) {
	m.predictionDuration.Record(context.Background(), elapsedMs,
		otelmetric.WithAttributes(attribute.String("status", string(status))))
}
