package moveo

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T, url string) *dispatcher {
	t.Helper()

	cfg := Config{Endpoint: url}.withDefaults()
	metrics, err := newSDKMetrics(nil)
	if err != nil {
		t.Fatalf("newSDKMetrics() error = %v", err)
	}
	return newDispatcher(cfg, "tok_123", newDiagLogger(slog.Default(), false), metrics)
}

// TestDispatcher_SendsBatch verifies the wire format of a batch POST.
func TestDispatcher_SendsBatch(t *testing.T) {
	var got batchRequest
	var auth, contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %q, want POST", r.Method)
		}
		if r.URL.Path != "/api/analytic/event" {
			t.Errorf("Path = %q, want /api/analytic/event", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := newTestDispatcher(t, server.URL)
	events := []Event{
		{Context: "home", Type: KindStartSession, SessionID: "sid_1", Metadata: map[string]any{"libVersion": LibVersion}},
		{Context: "home", Type: KindTrack, SessionID: "sid_1", Properties: &Properties{ElementID: "b1"}},
	}

	if err := d.send(context.Background(), events); err != nil {
		t.Fatalf("send() error = %v", err)
	}

	if auth != "tok_123" {
		t.Errorf("Authorization = %q, want raw token", auth)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if len(got.Events) != 2 || got.Events[1].Properties.ElementID != "b1" {
		t.Errorf("received events = %+v", got.Events)
	}
}

// TestDispatcher_Non2xxIsError verifies a rejected batch is reported once and
// never retried.
func TestDispatcher_Non2xxIsError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := newTestDispatcher(t, server.URL)
	d.start()

	d.enqueue([]Event{testEvent(1)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.close(ctx); err != nil {
		t.Fatalf("close() error = %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("requests = %d, want exactly 1 (no retry)", calls.Load())
	}
}

// TestDispatcher_PreservesOrder verifies snapshots are sent in enqueue order.
func TestDispatcher_PreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		order = append(order, req.Events[0].Timestamp)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := newTestDispatcher(t, server.URL)
	d.start()

	for i := 1; i <= 20; i++ {
		if !d.enqueue([]Event{testEvent(i)}) {
			t.Fatalf("enqueue(%d) rejected", i)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.close(ctx); err != nil {
		t.Fatalf("close() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 20 {
		t.Fatalf("batches received = %d, want 20", len(order))
	}
	for i, ts := range order {
		if ts != int64(i+1) {
			t.Fatalf("batch %d has timestamp %d, want %d", i, ts, i+1)
		}
	}
}

// TestDispatcher_EnqueueAfterClose verifies snapshots are dropped once closed.
func TestDispatcher_EnqueueAfterClose(t *testing.T) {
	d := newTestDispatcher(t, "http://127.0.0.1:1")
	d.start()

	if err := d.close(context.Background()); err != nil {
		t.Fatalf("close() error = %v", err)
	}
	if d.enqueue([]Event{testEvent(1)}) {
		t.Error("enqueue() after close = true, want false")
	}
	if err := d.close(context.Background()); err != nil {
		t.Errorf("second close() error = %v", err)
	}
}

// TestDispatcher_UnreachableCollector verifies network failures are swallowed.
func TestDispatcher_UnreachableCollector(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	d := newTestDispatcher(t, url)
	if err := d.send(context.Background(), []Event{testEvent(1)}); err == nil {
		t.Fatal("send() to closed server returned nil error")
	}

	d.start()
	d.enqueue([]Event{testEvent(1)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.close(ctx); err != nil {
		t.Errorf("close() error = %v", err)
	}
}
