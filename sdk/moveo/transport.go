package moveo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// eventPath is the collector batch endpoint.
const eventPath = "/api/analytic/event"

// dispatcher sends buffer snapshots to the collector from a single
// background worker, in the order they were enqueued. Each snapshot gets
// exactly one attempt; failures are logged and the events are dropped.
type dispatcher struct {
	client  *http.Client
	url     string
	token   string
	timeout time.Duration
	log     *diagLogger
	metrics *sdkMetrics

	mu     sync.Mutex
	queue  [][]Event
	closed bool

	wakeCh chan struct{} // buffered so enqueue never blocks
	stopCh chan struct{}
	doneCh chan struct{}
}

func newDispatcher(cfg Config, token string, log *diagLogger, metrics *sdkMetrics) *dispatcher {
	return &dispatcher{
		client:  cfg.HTTPClient,
		url:     cfg.Endpoint + eventPath,
		token:   token,
		timeout: cfg.DispatchTimeout,
		log:     log,
		metrics: metrics,
		wakeCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// start launches the worker goroutine.
func (d *dispatcher) start() {
	go d.run()
}

// enqueue hands a snapshot to the worker. It never blocks.
// Returns false if the dispatcher is closed and the snapshot was dropped.
func (d *dispatcher) enqueue(events []Event) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.get().Warn("dispatcher closed, dropping batch", "events", len(events))
		return false
	}
	d.queue = append(d.queue, events)
	d.mu.Unlock()

	d.metrics.flushes.Add(context.Background(), 1)

	select {
	case d.wakeCh <- struct{}{}:
	default:
		// Wake-up already pending
	}
	return true
}

// close stops accepting snapshots, lets the worker drain what is queued and
// waits for it to exit or for ctx to end.
func (d *dispatcher) close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stopCh)

	select {
	case <-d.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("moveo: waiting for dispatcher: %w", ctx.Err())
	}
}

func (d *dispatcher) run() {
	defer close(d.doneCh)

	for {
		select {
		case <-d.wakeCh:
			d.drainQueue()
		case <-d.stopCh:
			d.drainQueue()
			return
		}
	}
}

// drainQueue sends every queued snapshot in FIFO order.
func (d *dispatcher) drainQueue() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		events := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.send(ctx, events)
		cancel()

		if err != nil {
			d.metrics.dispatchFailures.Add(context.Background(), 1)
			d.log.get().Error("failed to send events", "events", len(events), "error", err)
			continue
		}

		d.metrics.eventsDispatched.Add(context.Background(), int64(len(events)))
		d.log.get().Debug("events sent", "events", len(events))
	}
}

// send POSTs one batch to the collector. Any non-2xx status is an error.
func (d *dispatcher) send(ctx context.Context, events []Event) error {
	body, err := json.Marshal(batchRequest{Events: events})
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	// Read and discard body to enable connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}
