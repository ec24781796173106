package dbusconntest

import (
	"sync"

	"github.com/atsika/dbusconn"
)

// eventBus is a minimal synchronous listener registry, mirroring the shape
// of dbusconn's internal event bus closely enough for tests that exercise
// Subscribe/Publish without needing a real connection.
type eventBus struct {
	mu        sync.Mutex
	listeners []dbusconn.Listener
}

func newEventBus() *eventBus { return &eventBus{} }

func (b *eventBus) Subscribe(l dbusconn.Listener) func() {
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

func (b *eventBus) Publish(evt dbusconn.Event) {
	b.mu.Lock()
	ls := make([]dbusconn.Listener, len(b.listeners))
	copy(ls, b.listeners)
	b.mu.Unlock()
	for _, l := range ls {
		if l != nil {
			l(evt)
		}
	}
}
