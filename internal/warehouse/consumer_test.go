package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/moveoone/moveo/internal/events"
	"github.com/moveoone/moveo/internal/observability"
	"github.com/moveoone/moveo/sdk/moveo"
)

// mockJetStreamMsg implements jetstream.Msg for testing.
type mockJetStreamMsg struct {
	data       []byte
	subject    string
	ackCalled  atomic.Bool
	nakCalled  atomic.Bool
	termCalled atomic.Bool
	ackErr     error
	nakErr     error
	termErr    error
}

func (m *mockJetStreamMsg) Data() []byte                    { return m.data }
func (m *mockJetStreamMsg) Subject() string                 { return m.subject }
func (m *mockJetStreamMsg) Reply() string                   { return "" }
func (m *mockJetStreamMsg) Headers() nats.Header            { return nats.Header{} }
func (m *mockJetStreamMsg) InProgress() error               { return nil }
func (m *mockJetStreamMsg) DoubleAck(context.Context) error { return m.Ack() }

func (m *mockJetStreamMsg) Ack() error {
	m.ackCalled.Store(true)
	return m.ackErr
}

func (m *mockJetStreamMsg) Nak() error {
	m.nakCalled.Store(true)
	return m.nakErr
}

func (m *mockJetStreamMsg) NakWithDelay(time.Duration) error {
	m.nakCalled.Store(true)
	return m.nakErr
}

func (m *mockJetStreamMsg) Term() error {
	m.termCalled.Store(true)
	return m.termErr
}

func (m *mockJetStreamMsg) TermWithReason(string) error {
	m.termCalled.Store(true)
	return m.termErr
}

func (m *mockJetStreamMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{}, nil
}

// mockS3Client records uploads.
type mockS3Client struct {
	mu        sync.Mutex
	uploadErr error
	keys      []string
	files     [][]byte
}

func (m *mockS3Client) Upload(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return m.uploadErr
	}
	m.keys = append(m.keys, key)
	m.files = append(m.files, data)
	return nil
}

func (m *mockS3Client) GenerateKey(appID string, year, month, day, hour int) string {
	return objectKey("events", appID, year, month, day, hour, "test")
}

func (m *mockS3Client) uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// mockDeadLetterer records dead-lettered messages.
type mockDeadLetterer struct {
	reasons []string
	err     error
}

func (m *mockDeadLetterer) DeadLetter(_ context.Context, _ jetstream.Msg, reason string) error {
	m.reasons = append(m.reasons, reason)
	return m.err
}

func createTestMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	m, err := observability.NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m
}

func createTestConsumer(t *testing.T, store ObjectStore, dl DeadLetterer, maxEvents int) *Consumer {
	t.Helper()
	cfg := Config{
		Batch: BatchConfig{
			MaxEvents:      maxEvents,
			FlushInterval:  time.Minute,
			FetchBatchSize: 10,
			WorkerCount:    1,
		},
		ShutdownTimeout: time.Second,
		Parquet:         ParquetConfig{Compression: "snappy"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewConsumer(nil, cfg, store, dl, "warehouse-sink", "MOVEO_EVENTS", logger, createTestMetrics(t))
}

func testEnvelope(appID string, ts int64) events.Envelope {
	evt := moveo.Event{
		Context:   "checkout",
		Type:      moveo.KindTrack,
		Timestamp: ts,
		SessionID: "sid_1",
		Properties: &moveo.Properties{
			SemanticGroup: "cart",
			ElementID:     "pay",
			Action:        moveo.ActionClick,
			ElementType:   moveo.TypeButton,
			Value:         "-",
		},
	}
	return events.NewEnvelope(appID, evt, time.UnixMilli(ts))
}

func envelopeMsg(t *testing.T, env events.Envelope) *mockJetStreamMsg {
	t.Helper()
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &mockJetStreamMsg{data: data, subject: "events.app.interaction.click"}
}

// 2026-03-01T10:15:00Z
const baseTS int64 = 1772360100000

func TestConsumer_ProcessMessageBuffers(t *testing.T) {
	c := createTestConsumer(t, &mockS3Client{}, nil, 100)
	msg := envelopeMsg(t, testEnvelope("app-1", baseTS))

	c.processMessage(context.Background(), msg)

	if len(c.batch) != 1 {
		t.Fatalf("batch size = %d, want 1", len(c.batch))
	}
	if msg.ackCalled.Load() || msg.nakCalled.Load() || msg.termCalled.Load() {
		t.Error("message settled before flush")
	}
}

func TestConsumer_PoisonMessages(t *testing.T) {
	noApp := testEnvelope("app-1", baseTS)
	noApp.AppID = ""
	badEvent := testEnvelope("app-1", baseTS)
	badEvent.Event.Context = ""

	tests := []struct {
		name string
		data func(t *testing.T) []byte
	}{
		{"not json", func(*testing.T) []byte { return []byte("\x00\x01") }},
		{"missing app id", func(t *testing.T) []byte { return envelopeMsg(t, noApp).data }},
		{"invalid event", func(t *testing.T) []byte { return envelopeMsg(t, badEvent).data }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dl := &mockDeadLetterer{}
			c := createTestConsumer(t, &mockS3Client{}, dl, 100)
			msg := &mockJetStreamMsg{data: tt.data(t), subject: "events.x"}

			c.processMessage(context.Background(), msg)

			if !msg.termCalled.Load() {
				t.Error("poison message not terminated")
			}
			if len(dl.reasons) != 1 {
				t.Errorf("dead-lettered %d messages, want 1", len(dl.reasons))
			}
			if len(c.batch) != 0 {
				t.Errorf("poison message buffered")
			}
		})
	}
}

func TestConsumer_PoisonTerminatedWhenDeadLetterFails(t *testing.T) {
	dl := &mockDeadLetterer{err: errors.New("dlq down")}
	c := createTestConsumer(t, &mockS3Client{}, dl, 100)
	msg := &mockJetStreamMsg{data: []byte("{"), subject: "events.x"}

	c.processMessage(context.Background(), msg)

	if !msg.termCalled.Load() {
		t.Error("poison message not terminated after dead-letter failure")
	}
}

func TestConsumer_FlushAcksPerPartition(t *testing.T) {
	store := &mockS3Client{}
	c := createTestConsumer(t, store, nil, 100)

	msgs := []*mockJetStreamMsg{
		envelopeMsg(t, testEnvelope("app-1", baseTS)),
		envelopeMsg(t, testEnvelope("app-1", baseTS+1000)),
		envelopeMsg(t, testEnvelope("app-2", baseTS)),
		envelopeMsg(t, testEnvelope("app-1", baseTS+time.Hour.Milliseconds())),
	}
	for _, m := range msgs {
		c.processMessage(context.Background(), m)
	}

	if err := c.flush(context.Background()); err != nil {
		t.Fatalf("flush() error = %v", err)
	}

	if store.uploads() != 3 {
		t.Errorf("uploads = %d, want 3 partitions", store.uploads())
	}
	for i, m := range msgs {
		if !m.ackCalled.Load() || m.nakCalled.Load() {
			t.Errorf("msg %d: ack = %v nak = %v", i, m.ackCalled.Load(), m.nakCalled.Load())
		}
	}
	if len(c.batch) != 0 {
		t.Errorf("batch not reset: %d", len(c.batch))
	}
}

func TestConsumer_FlushNaksOnUploadFailure(t *testing.T) {
	store := &mockS3Client{uploadErr: errors.New("s3 unavailable")}
	c := createTestConsumer(t, store, nil, 100)
	msg := envelopeMsg(t, testEnvelope("app-1", baseTS))
	c.processMessage(context.Background(), msg)

	if err := c.flush(context.Background()); err == nil {
		t.Fatal("flush() error = nil, want error")
	}
	if !msg.nakCalled.Load() || msg.ackCalled.Load() {
		t.Errorf("ack = %v nak = %v, want NAK only", msg.ackCalled.Load(), msg.nakCalled.Load())
	}
}

func TestConsumer_FlushEmptyBatch(t *testing.T) {
	store := &mockS3Client{}
	c := createTestConsumer(t, store, nil, 100)

	if err := c.flush(context.Background()); err != nil {
		t.Fatalf("flush() error = %v", err)
	}
	if store.uploads() != 0 {
		t.Errorf("uploads = %d, want 0", store.uploads())
	}
}

func TestConsumer_SizeTriggeredFlush(t *testing.T) {
	store := &mockS3Client{}
	c := createTestConsumer(t, store, nil, 2)

	first := envelopeMsg(t, testEnvelope("app-1", baseTS))
	c.processMessage(context.Background(), first)
	if store.uploads() != 0 {
		t.Fatal("flushed before reaching MaxEvents")
	}

	c.processMessage(context.Background(), envelopeMsg(t, testEnvelope("app-1", baseTS+1)))
	if store.uploads() != 1 {
		t.Errorf("uploads = %d, want 1", store.uploads())
	}
	if !first.ackCalled.Load() {
		t.Error("first message not acked after size-triggered flush")
	}
}

func TestConsumer_StopFlushesRemaining(t *testing.T) {
	store := &mockS3Client{}
	c := createTestConsumer(t, store, nil, 100)
	msg := envelopeMsg(t, testEnvelope("app-1", baseTS))
	c.processMessage(context.Background(), msg)

	// No workers were started.
	close(c.doneCh)

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !msg.ackCalled.Load() {
		t.Error("buffered message not flushed on Stop")
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestGroupByPartition(t *testing.T) {
	a := testEnvelope("app-1", baseTS)
	b := testEnvelope("app-1", baseTS+30*time.Minute.Milliseconds())
	c := testEnvelope("app-1", baseTS+2*time.Hour.Milliseconds())

	parts := groupByPartition([]trackedEvent{{env: &a}, {env: &b}, {env: &c}})

	if len(parts) != 2 {
		t.Fatalf("partitions = %d, want 2", len(parts))
	}
	key := partitionKey{AppID: "app-1", Year: 2026, Month: 3, Day: 1, Hour: 10}
	if len(parts[key]) != 2 {
		t.Errorf("partition %+v has %d events, want 2", key, len(parts[key]))
	}
	key.Hour = 12
	if len(parts[key]) != 1 {
		t.Errorf("partition %+v has %d events, want 1", key, len(parts[key]))
	}
}

func TestObjectKey(t *testing.T) {
	got := objectKey("events", "app-1", 2026, 3, 1, 9, "abc")
	want := "events/app_id=app-1/year=2026/month=03/day=01/hour=09/events_abc.parquet"
	if got != want {
		t.Errorf("objectKey() = %q, want %q", got, want)
	}
}
