package dbusconn

import (
	"sync"

	"github.com/rs/xid"
)

// EventType enumerates the lifecycle notifications the connection engine
// publishes to registered Listeners.
type EventType int

const (
	EventStateChanged EventType = iota
	EventHealthCheckSuccess
	EventHealthCheckFailure
	EventReconnectionAttempt
	EventReconnectionSuccess
	EventReconnectionFailure
	EventReconnectionExhausted
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state_changed"
	case EventHealthCheckSuccess:
		return "health_check_success"
	case EventHealthCheckFailure:
		return "health_check_failure"
	case EventReconnectionAttempt:
		return "reconnection_attempt"
	case EventReconnectionSuccess:
		return "reconnection_success"
	case EventReconnectionFailure:
		return "reconnection_failure"
	case EventReconnectionExhausted:
		return "reconnection_exhausted"
	default:
		return "unknown"
	}
}

// Event is one notification delivered to a Listener.
type Event struct {
	// ID tags this delivery so downstream sinks (logs, metrics labels)
	// can join records for the same event. Assigned by the bus.
	ID string

	Type EventType

	// Populated for EventStateChanged.
	From, To ConnectionState

	// Populated for reconnection_* events.
	Attempt int

	// Cause is the error that triggered the event, when applicable
	// (health_check_failure, reconnection_failure).
	Cause error
}

// Listener receives events from an event bus. Implementations must not
// block: the bus invokes listeners synchronously from whichever engine
// goroutine publishes the event (read loop, reconnect loop, health monitor,
// or the caller of Connect/Close), so a Listener may be called concurrently.
type Listener func(Event)

// eventBus is a simple synchronous fan-out: a small registry of callbacks
// invoked inline rather than a broadcast channel, to keep event ordering
// identical to the order state changes actually happen in.
type eventBus struct {
	mu        sync.Mutex
	listeners []Listener
}

func newEventBus() *eventBus { return &eventBus{} }

// Subscribe registers a Listener and returns an unsubscribe function.
func (b *eventBus) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
	idx := len(b.listeners) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.listeners) {
			b.listeners[idx] = nil
		}
	}
}

// Publish delivers evt to every registered listener, in registration order.
// Listeners must not block; a listener that panics is not recovered from.
func (b *eventBus) Publish(evt Event) {
	if evt.ID == "" {
		evt.ID = xid.New().String()
	}
	b.mu.Lock()
	ls := make([]Listener, len(b.listeners))
	copy(ls, b.listeners)
	b.mu.Unlock()
	for _, l := range ls {
		if l != nil {
			l(evt)
		}
	}
}
