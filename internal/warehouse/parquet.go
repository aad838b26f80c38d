package warehouse

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/moveoone/moveo/internal/events"
	"github.com/moveoone/moveo/sdk/moveo"
)

// EventRow is the flattened structure for Parquet storage.
// Partition columns mirror the Hive layout of the object keys.
type EventRow struct {
	// Envelope fields
	ID           string `parquet:"id,snappy"`
	AppID        string `parquet:"app_id,snappy,dict"`
	ReceivedAtMS int64  `parquet:"received_at_ms"`
	Fingerprint  string `parquet:"fingerprint,snappy"`

	// Event fields
	SessionID   string `parquet:"session_id,snappy"`
	UserID      string `parquet:"user_id,snappy,optional"`
	Context     string `parquet:"context,snappy,dict"`
	Kind        string `parquet:"kind,snappy,dict"`
	TimestampMS int64  `parquet:"timestamp_ms"`

	EventCategory string `parquet:"event_category,snappy,dict"`
	EventType     string `parquet:"event_type,snappy,dict"`

	// Track properties
	SemanticGroup string `parquet:"semantic_group,snappy,dict,optional"`
	ElementID     string `parquet:"element_id,snappy,optional"`
	Action        string `parquet:"action,snappy,dict,optional"`
	ElementType   string `parquet:"element_type,snappy,dict,optional"`
	Value         string `parquet:"value,snappy,optional"`

	MetadataJSON string `parquet:"metadata_json,snappy"`

	// Partition columns (for Hive partitioning)
	Year  int `parquet:"year,dict"`
	Month int `parquet:"month,dict"`
	Day   int `parquet:"day,dict"`
	Hour  int `parquet:"hour,dict"`
}

// EventRowFromEnvelope flattens an envelope into a row for the given partition.
func EventRowFromEnvelope(env *events.Envelope, year, month, day, hour int) EventRow {
	e := env.Event
	row := EventRow{
		ID:            env.ID,
		AppID:         env.AppID,
		ReceivedAtMS:  env.ReceivedAtMs,
		Fingerprint:   env.Fingerprint,
		SessionID:     e.SessionID,
		UserID:        e.UserID,
		Context:       e.Context,
		Kind:          string(e.Type),
		TimestampMS:   e.Timestamp,
		EventCategory: env.Category,
		EventType:     env.EventType,
		MetadataJSON:  serializeMetadata(e.Metadata),
		Year:          year,
		Month:         month,
		Day:           day,
		Hour:          hour,
	}

	if p := e.Properties; p != nil {
		row.SemanticGroup = p.SemanticGroup
		row.ElementID = p.ElementID
		row.Action = p.Action
		row.ElementType = p.ElementType
		row.Value = p.Value
	}

	return row
}

func serializeMetadata(meta map[string]any) string {
	if len(meta) == 0 {
		return "{}"
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ParquetWriter handles writing events to Parquet format.
type ParquetWriter struct {
	config ParquetConfig
}

// NewParquetWriter creates a new Parquet writer.
func NewParquetWriter(cfg ParquetConfig) *ParquetWriter {
	return &ParquetWriter{
		config: cfg,
	}
}

// Write encodes a batch of event rows and returns the file bytes.
func (w *ParquetWriter) Write(rows []EventRow) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoRowsToWrite
	}

	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[EventRow](&buf,
		parquet.Compression(w.getCompressionCodec()),
		parquet.CreatedBy("moveo-warehouse-sink", moveo.LibVersion, ""),
	)

	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("failed to write rows: %w", err)
	}

	// Close writer to flush
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return buf.Bytes(), nil
}

// getCompressionCodec returns the compression codec based on config.
func (w *ParquetWriter) getCompressionCodec() compress.Codec {
	switch w.config.Compression {
	case "gzip":
		return &parquet.Gzip
	case "zstd":
		return &parquet.Zstd
	case "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Snappy
	}
}
