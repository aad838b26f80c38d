package moveo

import (
	"sync"
	"time"
)

// timerHandle is the cancellable part of a deferred call.
type timerHandle interface {
	Stop() bool
}

// afterFunc schedules f after d. Default is time.AfterFunc; tests inject a
// manual clock.
type afterFunc func(d time.Duration, f func()) timerHandle

func realAfterFunc(d time.Duration, f func()) timerHandle {
	return time.AfterFunc(d, f)
}

// flushScheduler owns the event buffer and the deferred flush timer.
// Appends, snapshot-and-clear and timer transitions all happen under mu,
// which keeps at most one timer pending at any instant.
type flushScheduler struct {
	mu         sync.Mutex
	buffer     *eventBuffer
	interval   time.Duration
	threshold  int
	customPush bool

	timer      timerHandle
	generation uint64
	afterFunc  afterFunc

	// dispatch receives each snapshot. It is called with mu held so snapshots
	// reach the dispatcher in the order they were taken; it must not block.
	dispatch func(events []Event)
}

func newFlushScheduler(interval time.Duration, threshold int, customPush bool, dispatch func([]Event)) *flushScheduler {
	return &flushScheduler{
		buffer:     newEventBuffer(threshold),
		interval:   interval,
		threshold:  threshold,
		customPush: customPush,
		afterFunc:  realAfterFunc,
		dispatch:   dispatch,
	}
}

// record appends an event and evaluates the flush policy in one step.
func (s *flushScheduler) record(event Event, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer.append(event)
	s.evaluateLocked(force)
}

// evaluate applies the flush policy to the current buffer.
func (s *flushScheduler) evaluate(force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evaluateLocked(force)
}

func (s *flushScheduler) evaluateLocked(force bool) {
	if s.customPush {
		return
	}

	if force || s.buffer.len() >= s.threshold {
		s.flushLocked()
		return
	}

	if s.timer == nil {
		s.generation++
		gen := s.generation
		s.timer = s.afterFunc(s.interval, func() { s.onTimer(gen) })
	}
}

// flushNow cancels any pending timer and dispatches the buffer if non-empty.
// It ignores CustomPush.
func (s *flushScheduler) flushNow() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushLocked()
}

// drain cancels any pending timer and returns the buffer without dispatching.
func (s *flushScheduler) drain() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTimerLocked()
	return s.buffer.snapshotAndClear()
}

// snapshot returns a copy of the live buffer.
func (s *flushScheduler) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buffer.snapshot()
}

func (s *flushScheduler) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buffer.len()
}

// pending reports whether a deferred flush is scheduled.
func (s *flushScheduler) pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.timer != nil
}

// setInterval changes the delay used for timers scheduled from now on.
func (s *flushScheduler) setInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interval = d
}

func (s *flushScheduler) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.interval
}

// stop cancels any pending timer without flushing.
func (s *flushScheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTimerLocked()
}

func (s *flushScheduler) onTimer(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A timer cancelled after it already fired must not flush again.
	if s.timer == nil || gen != s.generation {
		return
	}
	s.timer = nil
	s.flushLocked()
}

func (s *flushScheduler) flushLocked() {
	s.cancelTimerLocked()

	events := s.buffer.snapshotAndClear()
	if len(events) == 0 {
		return
	}
	s.dispatch(events)
}

func (s *flushScheduler) cancelTimerLocked() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
}
