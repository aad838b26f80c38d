package moveo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeTimer is a manually fired timer.
type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

// fakeClock records scheduled timers so tests decide when they fire.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeHandle struct {
	clock *fakeClock
	timer *fakeTimer
}

func (h fakeHandle) Stop() bool {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()

	wasActive := !h.timer.stopped
	h.timer.stopped = true
	return wasActive
}

func (c *fakeClock) afterFunc(d time.Duration, f func()) timerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return fakeHandle{clock: c, timer: t}
}

// scheduled returns how many timers were ever created.
func (c *fakeClock) scheduled() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.timers)
}

// active returns the timers that were neither stopped nor fired.
func (c *fakeClock) active() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

// fire runs every active timer as if its delay elapsed.
func (c *fakeClock) fire() {
	for _, t := range c.active() {
		c.mu.Lock()
		t.stopped = true
		c.mu.Unlock()
		t.f()
	}
}

// last returns the most recently created timer.
func (c *fakeClock) last() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

// collectorStub is an httptest collector that records every call.
type collectorStub struct {
	server *httptest.Server

	mu        sync.Mutex
	batches   [][]Event
	tokens    []string
	predicts  []predictRequest
	latencies []latencyReport

	// predictHandler answers prediction calls. Defaults to a 200 success.
	predictHandler http.HandlerFunc
}

func newCollectorStub(t *testing.T) *collectorStub {
	t.Helper()

	c := &collectorStub{}
	c.predictHandler = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prediction_probability":0.82,"prediction_binary":true}`))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analytic/event", func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode batch: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.batches = append(c.batches, req.Events)
		c.tokens = append(c.tokens, r.Header.Get("Authorization"))
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/models/{id}/predict", func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode predict: %v", err)
		}
		c.mu.Lock()
		c.predicts = append(c.predicts, req)
		handler := c.predictHandler
		c.mu.Unlock()
		handler(w, r)
	})
	mux.HandleFunc("POST /api/prediction-latency", func(w http.ResponseWriter, r *http.Request) {
		var rep latencyReport
		if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
			t.Errorf("decode latency: %v", err)
		}
		c.mu.Lock()
		c.latencies = append(c.latencies, rep)
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	c.server = httptest.NewServer(mux)
	t.Cleanup(c.server.Close)
	return c
}

func (c *collectorStub) setPredictHandler(h http.HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.predictHandler = h
}

func (c *collectorStub) getBatches() [][]Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]Event(nil), c.batches...)
}

// allEvents flattens every received batch in arrival order.
func (c *collectorStub) allEvents() []Event {
	var out []Event
	for _, b := range c.getBatches() {
		out = append(out, b...)
	}
	return out
}

func (c *collectorStub) predictCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.predicts)
}

func (c *collectorStub) getLatencies() []latencyReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]latencyReport(nil), c.latencies...)
}

// newTestClient builds a client against stub with a manual clock.
func newTestClient(t *testing.T, stub *collectorStub, cfg Config) (*Client, *fakeClock) {
	t.Helper()

	cfg.Endpoint = stub.server.URL
	c, err := New("test-token", cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	clock := &fakeClock{}
	c.scheduler.afterFunc = clock.afterFunc

	return c, clock
}

// closeClient closes c and waits for queued sends to finish.
func closeClient(t *testing.T, c *Client) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func boolPtr(b bool) *bool {
	return &b
}
