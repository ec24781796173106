package dbusconn

import (
	"sync"
	"time"
)

// circuitState is the internal state of a circuitBreaker.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// circuitBreaker guards connect attempts: after failureThreshold consecutive
// connect failures it opens and rejects attempts outright for
// recoveryTimeout, then allows one half-open probe; successThreshold
// consecutive probe successes close it again (F=3, S=2).
type circuitBreaker struct {
	mu               sync.Mutex
	state            circuitState
	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration

	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
	probing              bool
	now                  func() time.Time
}

func newCircuitBreaker(failureThreshold, successThreshold int, recoveryTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{
		state:            circuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
	}
}

// Allow reports whether a connect attempt may proceed right now. Calling
// Allow when the breaker is open transitions it to half-open once the
// recovery timeout has elapsed, and admits exactly that one probe.
func (b *circuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case circuitClosed:
		return true
	case circuitHalfOpen:
		if b.probing {
			return false // a probe is already in flight
		}
		b.probing = true
		return true
	case circuitOpen:
		if b.now().Sub(b.openedAt) >= b.recoveryTimeout {
			b.state = circuitHalfOpen
			b.consecutiveSuccesses = 0
			b.probing = true
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess reports a successful connect attempt.
func (b *circuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case circuitHalfOpen:
		b.consecutiveSuccesses++
		b.probing = false
		if b.consecutiveSuccesses >= b.successThreshold {
			b.state = circuitClosed
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 0
		}
	case circuitClosed:
		b.consecutiveFailures = 0
	}
}

// RecordFailure reports a failed connect attempt.
func (b *circuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case circuitHalfOpen:
		b.trip()
	case circuitClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.trip()
		}
	}
}

func (b *circuitBreaker) trip() {
	b.state = circuitOpen
	b.openedAt = b.now()
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.probing = false
}

// State returns the breaker's current state, for observability/tests.
func (b *circuitBreaker) State() circuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker fully closed, e.g. after a user-initiated
// reconnect.
func (b *circuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = circuitClosed
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.probing = false
}
