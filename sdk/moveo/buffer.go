package moveo

// eventBuffer is the ordered, append-only sequence of pending events.
// Insertion order is flush order. It is not safe for concurrent use;
// the scheduler serializes every access behind its mutex.
type eventBuffer struct {
	events []Event
}

func newEventBuffer(capacity int) *eventBuffer {
	return &eventBuffer{events: make([]Event, 0, capacity)}
}

// append adds an event. It never rejects.
func (b *eventBuffer) append(event Event) {
	b.events = append(b.events, event)
}

// len returns the number of pending events.
func (b *eventBuffer) len() int {
	return len(b.events)
}

// snapshotAndClear returns every pending event and resets the buffer.
// The returned slice is owned by the caller.
func (b *eventBuffer) snapshotAndClear() []Event {
	if len(b.events) == 0 {
		return nil
	}

	events := b.events
	b.events = make([]Event, 0, cap(events))
	return events
}

// snapshot returns a copy of the pending events without clearing them.
func (b *eventBuffer) snapshot() []Event {
	events := make([]Event, len(b.events))
	copy(events, b.events)
	return events
}
