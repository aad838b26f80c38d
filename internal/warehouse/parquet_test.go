package warehouse

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/moveoone/moveo/internal/events"
	"github.com/moveoone/moveo/sdk/moveo"
)

func TestEventRowFromEnvelope(t *testing.T) {
	ts := time.Date(2026, 6, 15, 14, 30, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name    string
		event   moveo.Event
		wantRow EventRow
	}{
		{
			name: "track event",
			event: moveo.Event{
				Context:   "checkout",
				Type:      moveo.KindTrack,
				Timestamp: ts,
				SessionID: "sid_1",
				UserID:    "user-9",
				Properties: &moveo.Properties{
					SemanticGroup: "cart",
					ElementID:     "pay",
					Action:        moveo.ActionClick,
					ElementType:   moveo.TypeButton,
					Value:         "42",
				},
			},
			wantRow: EventRow{
				SessionID:     "sid_1",
				UserID:        "user-9",
				Context:       "checkout",
				Kind:          "track",
				TimestampMS:   ts,
				EventCategory: events.CategoryInteraction,
				EventType:     "click",
				SemanticGroup: "cart",
				ElementID:     "pay",
				Action:        moveo.ActionClick,
				ElementType:   moveo.TypeButton,
				Value:         "42",
				MetadataJSON:  "{}",
			},
		},
		{
			name: "session start with metadata",
			event: moveo.Event{
				Context:   "home",
				Type:      moveo.KindStartSession,
				Timestamp: ts,
				SessionID: "sid_2",
				Metadata:  map[string]any{"libVersion": "1.0.0"},
			},
			wantRow: EventRow{
				SessionID:     "sid_2",
				Context:       "home",
				Kind:          "start_session",
				TimestampMS:   ts,
				EventCategory: events.CategorySession,
				EventType:     "start",
				MetadataJSON:  `{"libVersion":"1.0.0"}`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := events.NewEnvelope("app-1", tt.event, time.UnixMilli(ts+5))
			got := EventRowFromEnvelope(&env, 2026, 6, 15, 14)

			want := tt.wantRow
			want.ID = env.ID
			want.AppID = "app-1"
			want.ReceivedAtMS = ts + 5
			want.Fingerprint = env.Fingerprint
			want.Year, want.Month, want.Day, want.Hour = 2026, 6, 15, 14

			if got != want {
				t.Errorf("EventRowFromEnvelope() =\n%+v\nwant\n%+v", got, want)
			}
		})
	}
}

func TestParquetWriter_WriteReadBack(t *testing.T) {
	env := testEnvelope("app-1", baseTS)
	rows := []EventRow{
		EventRowFromEnvelope(&env, 2026, 3, 1, 10),
		EventRowFromEnvelope(&env, 2026, 3, 1, 10),
	}
	rows[1].ID = "second"

	data, err := NewParquetWriter(ParquetConfig{Compression: "zstd"}).Write(rows)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if string(data[:4]) != "PAR1" {
		t.Fatalf("invalid Parquet magic bytes: %q", data[:4])
	}

	got, err := parquet.Read[EventRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parquet.Read() error = %v", err)
	}
	if len(got) != 2 || got[0] != rows[0] || got[1].ID != "second" {
		t.Errorf("read back %+v", got)
	}
}

func TestParquetWriter_WriteEmpty(t *testing.T) {
	_, err := NewParquetWriter(ParquetConfig{}).Write(nil)
	if !errors.Is(err, ErrNoRowsToWrite) {
		t.Errorf("Write(nil) error = %v, want ErrNoRowsToWrite", err)
	}
}

func TestParquetWriter_Compression(t *testing.T) {
	env := testEnvelope("app-1", baseTS)
	rows := []EventRow{EventRowFromEnvelope(&env, 2026, 3, 1, 10)}

	for _, codec := range []string{"snappy", "gzip", "zstd", "none", ""} {
		t.Run(codec, func(t *testing.T) {
			data, err := NewParquetWriter(ParquetConfig{Compression: codec}).Write(rows)
			if err != nil {
				t.Fatalf("Write() with compression %q error = %v", codec, err)
			}
			if len(data) == 0 {
				t.Error("Write() returned empty data")
			}
		})
	}
}
