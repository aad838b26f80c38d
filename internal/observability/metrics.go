package observability

import (
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments shared by the collector and the warehouse
// sink. Instruments are created once at startup and handed to middleware,
// handlers and services.
type Metrics struct {
	// HTTP metrics
	HTTPRequestDuration otelmetric.Float64Histogram
	HTTPRequestTotal    otelmetric.Int64Counter
	HTTPRequestErrors   otelmetric.Int64Counter
	HTTPRateLimited     otelmetric.Int64Counter
	AuthFailures        otelmetric.Int64Counter

	// Ingest metrics
	EventsReceived  otelmetric.Int64Counter
	EventsRejected  otelmetric.Int64Counter
	IngestBatchSize otelmetric.Int64Histogram

	// NATS metrics
	NATSEventsPublished   otelmetric.Int64Counter
	NATSPublishErrors     otelmetric.Int64Counter
	NATSMessagesProcessed otelmetric.Int64Counter
	NATSBatchSize         otelmetric.Int64Histogram
	NATSFlushLatency      otelmetric.Float64Histogram
	DLQMessages           otelmetric.Int64Counter

	// S3 / storage metrics
	S3FilesWritten otelmetric.Int64Counter
	S3FileSize     otelmetric.Int64Histogram

	// Compaction metrics
	CompactionRuns           otelmetric.Int64Counter
	CompactionDuration       otelmetric.Float64Histogram
	CompactionFilesCompacted otelmetric.Int64Counter
	CompactionRowsDeduped    otelmetric.Int64Counter

	// Deduplication metrics
	DedupDropped otelmetric.Int64Counter

	// Prediction metrics
	PredictionsServed    otelmetric.Int64Counter
	PredictionDuration   otelmetric.Float64Histogram
	ClientPredictLatency otelmetric.Float64Histogram
}

// NewMetrics creates all metric instruments from the given Meter.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http.request.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestTotal, err = meter.Int64Counter(
		"http.request.total",
		otelmetric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestErrors, err = meter.Int64Counter(
		"http.request.errors",
		otelmetric.WithDescription("HTTP request errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRateLimited, err = meter.Int64Counter(
		"http.request.rate_limited",
		otelmetric.WithDescription("Requests rejected by a rate limiter"),
	)
	if err != nil {
		return nil, err
	}

	m.AuthFailures, err = meter.Int64Counter(
		"auth.failures",
		otelmetric.WithDescription("Requests rejected for a missing or unknown SDK token"),
	)
	if err != nil {
		return nil, err
	}

	// Ingest metrics
	m.EventsReceived, err = meter.Int64Counter(
		"ingest.events.received",
		otelmetric.WithDescription("SDK events accepted by the collector"),
	)
	if err != nil {
		return nil, err
	}

	m.EventsRejected, err = meter.Int64Counter(
		"ingest.events.rejected",
		otelmetric.WithDescription("SDK events rejected during validation"),
	)
	if err != nil {
		return nil, err
	}

	m.IngestBatchSize, err = meter.Int64Histogram(
		"ingest.batch.size",
		otelmetric.WithDescription("Events per SDK batch request"),
	)
	if err != nil {
		return nil, err
	}

	// NATS metrics
	m.NATSEventsPublished, err = meter.Int64Counter(
		"nats.events.published",
		otelmetric.WithDescription("Events published to JetStream"),
	)
	if err != nil {
		return nil, err
	}

	m.NATSPublishErrors, err = meter.Int64Counter(
		"nats.publish.errors",
		otelmetric.WithDescription("Failed JetStream publishes"),
	)
	if err != nil {
		return nil, err
	}

	m.NATSMessagesProcessed, err = meter.Int64Counter(
		"nats.messages.processed",
		otelmetric.WithDescription("Messages consumed and acknowledged"),
	)
	if err != nil {
		return nil, err
	}

	m.NATSBatchSize, err = meter.Int64Histogram(
		"nats.batch.size",
		otelmetric.WithDescription("Messages per warehouse flush"),
	)
	if err != nil {
		return nil, err
	}

	m.NATSFlushLatency, err = meter.Float64Histogram(
		"nats.flush.latency",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Time to write one warehouse batch"),
	)
	if err != nil {
		return nil, err
	}

	m.DLQMessages, err = meter.Int64Counter(
		"nats.dlq.messages",
		otelmetric.WithDescription("Messages routed to the dead letter stream"),
	)
	if err != nil {
		return nil, err
	}

	// S3 / storage metrics
	m.S3FilesWritten, err = meter.Int64Counter(
		"s3.files.written",
		otelmetric.WithDescription("Parquet files uploaded"),
	)
	if err != nil {
		return nil, err
	}

	m.S3FileSize, err = meter.Int64Histogram(
		"s3.file.size",
		otelmetric.WithUnit("By"),
		otelmetric.WithDescription("Size of uploaded Parquet files"),
	)
	if err != nil {
		return nil, err
	}

	// Compaction metrics
	m.CompactionRuns, err = meter.Int64Counter(
		"compaction.runs",
		otelmetric.WithDescription("Compaction runs"),
	)
	if err != nil {
		return nil, err
	}

	m.CompactionDuration, err = meter.Float64Histogram(
		"compaction.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Duration of one compaction run"),
	)
	if err != nil {
		return nil, err
	}

	m.CompactionFilesCompacted, err = meter.Int64Counter(
		"compaction.files.compacted",
		otelmetric.WithDescription("Small Parquet files merged away"),
	)
	if err != nil {
		return nil, err
	}

	m.CompactionRowsDeduped, err = meter.Int64Counter(
		"compaction.rows.deduped",
		otelmetric.WithDescription("Redelivered rows dropped while merging"),
	)
	if err != nil {
		return nil, err
	}

	// Deduplication metrics
	m.DedupDropped, err = meter.Int64Counter(
		"dedup.events.dropped",
		otelmetric.WithDescription("Replayed events dropped by the dedup filter"),
	)
	if err != nil {
		return nil, err
	}

	// Prediction metrics
	m.PredictionsServed, err = meter.Int64Counter(
		"prediction.requests",
		otelmetric.WithDescription("Prediction requests by result status"),
	)
	if err != nil {
		return nil, err
	}

	m.PredictionDuration, err = meter.Float64Histogram(
		"prediction.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Server-side scoring time"),
	)
	if err != nil {
		return nil, err
	}

	m.ClientPredictLatency, err = meter.Float64Histogram(
		"prediction.client.latency",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Round-trip prediction latency reported by SDKs"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}
