// Package moveo is the Moveo One telemetry SDK.
//
// A Client records semantically tagged UI interaction events into a
// session-scoped buffer and ships the buffer to the collector when it reaches
// MaxThreshold events, when the flush interval elapses, or when the session
// starts or stops. Delivery is fire-and-forget: a failed batch is logged and
// dropped.
//
// Predict scores the live buffer against a model on the collector with a
// tight timeout and always returns a PredictionResult, never an error.
//
// Clients are obtained from a Registry, one per token:
//
//	reg, err := moveo.NewRegistry(moveo.Config{Endpoint: "https://collector.example.com"})
//	client, err := reg.GetInstance(token)
//	client.Start("checkout", map[string]any{"appVersion": "2.1.0"})
//	client.Track("checkout", moveo.TrackEvent{
//		SemanticGroup: "cart",
//		ID:            "pay-button",
//		Action:        moveo.ActionClick,
//		Type:          moveo.TypeButton,
//		Value:         "Pay now",
//	})
//	result := client.Predict(ctx, "churn-v2")
//	defer reg.Close(ctx)
package moveo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Client is one SDK instance bound to a token. It is safe for concurrent use.
type Client struct {
	token string
	cfg   Config

	log        *diagLogger
	metrics    *sdkMetrics
	scheduler  *flushScheduler
	dispatcher *dispatcher
	predictor  *predictionClient
	latency    *latencyReporter

	calculateLatency atomic.Bool

	mu             sync.Mutex
	started        bool
	context        string
	sessionID      string
	userID         string
	sessionMeta    map[string]any
	additionalMeta map[string]any
	closed         bool

	newSessionID func() string
}

// New creates a client for token. Most callers go through Registry.GetInstance.
// Call Close when done to flush the buffer and stop the background worker.
func New(token string, cfg Config) (*Client, error) {
	if !isValidString(token) {
		return nil, ErrInvalidToken
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	metrics, err := newSDKMetrics(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("moveo: create metrics: %w", err)
	}

	log := newDiagLogger(cfg.Logger, cfg.Logging)

	c := &Client{
		token:        token,
		cfg:          cfg,
		log:          log,
		metrics:      metrics,
		dispatcher:   newDispatcher(cfg, token, log, metrics),
		predictor:    newPredictionClient(cfg),
		latency:      newLatencyReporter(cfg, token, log),
		newSessionID: defaultSessionID,
	}
	c.calculateLatency.Store(*cfg.CalculateLatency)
	c.scheduler = newFlushScheduler(cfg.FlushInterval, cfg.MaxThreshold, cfg.CustomPush, c.enqueue)

	c.dispatcher.start()

	return c, nil
}

func defaultSessionID() string {
	return "sid_" + uuid.New().String()
}

// enqueue is the scheduler's dispatch hook.
func (c *Client) enqueue(events []Event) {
	c.dispatcher.enqueue(events)
}

// Start begins a session under context. It force-flushes whatever is left in
// the buffer, assigns a fresh session id and appends a start_session event
// carrying metadata plus libVersion. It is a no-op while a session is active.
func (c *Client) Start(contextName string, metadata map[string]any) error {
	if !isValidString(contextName) {
		return fmt.Errorf("%w: %q", ErrInvalidContext, contextName)
	}
	if err := validateMetadata(metadata); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}

	c.startLocked(contextName, metadata)
	return nil
}

func (c *Client) startLocked(contextName string, metadata map[string]any) {
	c.scheduler.evaluate(true)

	c.started = true
	c.context = contextName
	c.sessionID = c.newSessionID()
	c.sessionMeta = mergeMetadata(nil, metadata)
	c.additionalMeta = nil

	meta := mergeMetadata(metadata, map[string]any{"libVersion": LibVersion})
	c.appendLocked(c.newEventLocked(contextName, KindStartSession, nil, meta), false)

	c.log.get().Info("session started", "context", contextName, "session_id", c.sessionID)
}

// Stop ends the active session: it appends a stop_session event, flushes the
// buffer and clears the session id and context. It is a no-op when no session
// is active.
func (c *Client) Stop(contextName string) error {
	if !isValidString(contextName) {
		return fmt.Errorf("%w: %q", ErrInvalidContext, contextName)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.started {
		return nil
	}

	c.appendLocked(c.newEventLocked(contextName, KindStopSession, nil, nil), true)

	c.log.get().Info("session stopped", "context", contextName, "session_id", c.sessionID)

	c.started = false
	c.context = ""
	c.sessionID = ""
	c.sessionMeta = nil
	c.additionalMeta = nil

	return nil
}

// Track records an interaction under contextName, starting a session first if
// none is active.
func (c *Client) Track(contextName string, event TrackEvent) error {
	if !isValidString(contextName) {
		return fmt.Errorf("%w: %q", ErrInvalidContext, contextName)
	}
	if err := validateMetadata(event.Metadata); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.started {
		c.startLocked(contextName, nil)
	}

	c.trackLocked(contextName, event)
	return nil
}

// Tick records an interaction under the active context. It fails with
// ErrNoActiveContext when no session is active.
func (c *Client) Tick(event TrackEvent) error {
	if err := validateMetadata(event.Metadata); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.started || c.context == "" {
		return ErrNoActiveContext
	}

	c.trackLocked(c.context, event)
	return nil
}

func (c *Client) trackLocked(contextName string, event TrackEvent) {
	// Buffered events own their metadata; callers may reuse their map.
	meta := mergeMetadata(c.additionalMeta, event.Metadata)
	if len(meta) == 0 {
		meta = nil
	}

	c.appendLocked(c.newEventLocked(contextName, KindTrack, normalize(event), meta), false)
}

// UpdateSessionMetadata merges metadata into the session metadata and records
// the merged result as an update_metadata event. It does nothing when no
// session is active.
func (c *Client) UpdateSessionMetadata(metadata map[string]any) error {
	if err := validateMetadata(metadata); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.started {
		c.log.get().Debug("session metadata update ignored, no active session")
		return nil
	}

	c.sessionMeta = mergeMetadata(c.sessionMeta, metadata)
	c.appendLocked(c.newEventLocked(c.context, KindUpdateMetadata, nil, mergeMetadata(nil, c.sessionMeta)), false)
	return nil
}

// UpdateAdditionalMetadata merges metadata into the additional metadata,
// records it as an update_metadata event and attaches it to every later track
// event of the session. It does nothing when no session is active.
func (c *Client) UpdateAdditionalMetadata(metadata map[string]any) error {
	if err := validateMetadata(metadata); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.started {
		c.log.get().Debug("additional metadata update ignored, no active session")
		return nil
	}

	c.additionalMeta = mergeMetadata(c.additionalMeta, metadata)
	c.appendLocked(c.newEventLocked(c.context, KindUpdateMetadata, nil, mergeMetadata(nil, c.additionalMeta)), false)
	return nil
}

// Identify associates subsequent events with userID, across sessions, until
// it is called again. An empty userID clears the identity.
func (c *Client) Identify(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.userID = userID
}

func (c *Client) newEventLocked(contextName string, kind Kind, props *Properties, meta map[string]any) Event {
	return Event{
		Context:    contextName,
		Type:       kind,
		Timestamp:  nowMillis(),
		Properties: props,
		Metadata:   meta,
		SessionID:  c.sessionID,
		UserID:     c.userID,
	}
}

func (c *Client) appendLocked(event Event, force bool) {
	c.scheduler.record(event, force)
	c.metrics.recordBuffered(event.Type)
}

// SetLogging switches diagnostic output on or off.
func (c *Client) SetLogging(enabled bool) {
	c.log.enabled.Store(enabled)
}

// SetFlushInterval changes the deferred flush delay for timers scheduled from
// now on. Values outside [MinFlushInterval, MaxFlushInterval] are rejected and
// the current interval is kept.
func (c *Client) SetFlushInterval(d time.Duration) error {
	if !validFlushInterval(d) {
		c.log.get().Warn("flush interval rejected",
			"interval", d,
			"min", MinFlushInterval,
			"max", MaxFlushInterval,
		)
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidFlushInterval, d, MinFlushInterval, MaxFlushInterval)
	}

	c.scheduler.setInterval(d)
	return nil
}

// CalculateLatency switches prediction latency reporting on or off.
func (c *Client) CalculateLatency(enabled bool) {
	c.calculateLatency.Store(enabled)
}

// Flush sends the buffer now, even with CustomPush enabled.
func (c *Client) Flush() {
	c.scheduler.flushNow()
}

// CustomFlush empties the buffer and returns its events without sending them.
// It returns nil when the buffer is empty.
func (c *Client) CustomFlush() []Event {
	return c.scheduler.drain()
}

// Predict scores the live buffer against modelID. The buffer is read, never
// modified. Preconditions are checked locally first, in order: a blank model
// id, a blank token, no active session.
func (c *Client) Predict(ctx context.Context, modelID string) PredictionResult {
	if !isValidString(modelID) {
		return failure(StatusInvalidModelID, msgInvalidModelID)
	}
	if !isValidString(c.token) {
		return failure(StatusNotInitialized, msgNotInitialized)
	}

	c.mu.Lock()
	started, sessionID := c.started, c.sessionID
	c.mu.Unlock()

	if !started || sessionID == "" {
		return failure(StatusNoSession, msgNoSession)
	}

	events := c.scheduler.snapshot()

	start := time.Now()
	result := c.predictor.predict(ctx, modelID, c.token, sessionID, events)
	end := time.Now()

	c.metrics.recordPrediction(result.Status, float64(end.Sub(start).Microseconds())/1000)
	if result.Status != StatusSuccess {
		c.log.get().Warn("prediction failed",
			"model_id", modelID,
			"status", result.Status,
			"message", result.Message,
		)
	}

	if c.calculateLatency.Load() {
		c.latency.report(modelID, sessionID, start, end, result.Status)
	}

	return result
}

// Close flushes the buffer, stops the background worker once it has sent
// everything queued, and waits for pending latency reports. With CustomPush
// the buffer is left to the caller. Calls after the first return nil.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.scheduler.evaluate(true)
	c.scheduler.stop()
	c.mu.Unlock()

	return errors.Join(
		c.dispatcher.close(ctx),
		c.latency.wait(ctx),
	)
}

// SessionID returns the active session id, or "" when no session is active.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sessionID
}

// Context returns the active context name, or "" when no session is active.
func (c *Client) Context() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.context
}

// Started reports whether a session is active.
func (c *Client) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.started
}

// FlushInterval returns the current deferred flush delay.
func (c *Client) FlushInterval() time.Duration {
	return c.scheduler.currentInterval()
}

// BufferLen returns the number of events waiting to be flushed.
func (c *Client) BufferLen() int {
	return c.scheduler.len()
}
