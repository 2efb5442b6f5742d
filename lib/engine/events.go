package engine

import "sync"

// eventBuffer is the capacity of a connection's event channel. Events that do not
// fit are dropped, receivers only care about the first lifecycle event anyway.
const eventBuffer = 8

// EventHub implements the event side of IConn for engine implementations.
// It is safe for concurrent use.
type EventHub struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewEventHub creates a hub with an open event channel.
func NewEventHub() *EventHub {
	return &EventHub{ch: make(chan Event, eventBuffer)}
}

// Events returns the receive side of the event channel.
func (h *EventHub) Events() <-chan Event {
	return h.ch
}

// Emit delivers ev without blocking. It returns false if the hub is closed or the buffer is full.
func (h *EventHub) Emit(ev Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	select {
	case h.ch <- ev:
		return true
	default:
		return false
	}
}

// Close emits EventClose and closes the channel. It returns false if the hub was already closed.
func (h *EventHub) Close(version uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.closed = true
	select {
	case h.ch <- Event{Type: EventClose, OldVersion: version}:
	default:
	}
	close(h.ch)
	return true
}

// Closed reports whether Close has been called.
func (h *EventHub) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
