package dbusconn

import (
	"sync"
	"time"
)

// pendingResult is what a pendingCall's done channel carries: either an
// inbound reply message or a terminal error (timeout, closed).
type pendingResult struct {
	msg *Message
	err error
}

// pendingCall is one outstanding method_call awaiting its method_return or
// error.
type pendingCall struct {
	serial uint32
	timer  *time.Timer
	done   chan pendingResult
	once   sync.Once
}

func (pc *pendingCall) complete(msg *Message, err error) {
	pc.once.Do(func() {
		pc.done <- pendingResult{msg: msg, err: err}
	})
}

// pendingCallTable is the per-connection table of in-flight method calls
// keyed by serial, touched from the read loop (inbound arrivals), the writer (registration),
// timers (deadline expiry), and close() (drain). Guarded by a mutex rather
// than confined to a single loop goroutine, since dbusconn's engine spans
// multiple goroutines (read loop, health monitor, caller goroutines) instead
// of a single-threaded scheduler.
type pendingCallTable struct {
	mu      sync.Mutex
	calls   map[uint32]*pendingCall
	metrics Metrics
}

func newPendingCallTable(metrics Metrics) *pendingCallTable {
	return &pendingCallTable{calls: make(map[uint32]*pendingCall), metrics: metrics}
}

// register installs a pending entry for serial and arms its timeout timer.
// It must run before the frame is flushed to the transport, so a reply
// racing the write is never missed.
func (t *pendingCallTable) register(serial uint32, timeout time.Duration) *pendingCall {
	pc := &pendingCall{serial: serial, done: make(chan pendingResult, 1)}
	t.mu.Lock()
	t.calls[serial] = pc
	t.mu.Unlock()
	pc.timer = time.AfterFunc(timeout, func() { t.timeout(serial) })
	return pc
}

func (t *pendingCallTable) timeout(serial uint32) {
	t.mu.Lock()
	pc, ok := t.calls[serial]
	if ok {
		delete(t.calls, serial)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	t.metrics.MethodCallTimedOut()
	pc.complete(nil, ErrTimeout)
}

// complete looks up serial and, if present, stops its timer and completes
// it with (msg, err). Returns false if no pending entry matched (the caller
// should then deliver the message through the pipeline as unsolicited).
func (t *pendingCallTable) complete(serial uint32, msg *Message, err error) bool {
	t.mu.Lock()
	pc, ok := t.calls[serial]
	if ok {
		delete(t.calls, serial)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	pc.timer.Stop()
	success := err == nil && (msg == nil || msg.Type != TypeError)
	t.metrics.MethodCallCompleted(success)
	pc.complete(msg, err)
	return true
}

// cancel removes and completes a single pending entry with a cancellation
// error, for best-effort send_request cancellation.
func (t *pendingCallTable) cancel(serial uint32, cause error) {
	t.mu.Lock()
	pc, ok := t.calls[serial]
	if ok {
		delete(t.calls, serial)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	pc.timer.Stop()
	pc.complete(nil, cause)
}

// drain empties the table, completing every entry with cause. Called on
// close and when the connection goes inactive.
func (t *pendingCallTable) drain(cause error) {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[uint32]*pendingCall)
	t.mu.Unlock()
	for _, pc := range calls {
		pc.timer.Stop()
		pc.complete(nil, cause)
	}
}

func (t *pendingCallTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
