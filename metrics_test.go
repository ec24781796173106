package dbusconn

import "testing"

func TestAtomicMetricsSnapshot(t *testing.T) {
	m := NewAtomicMetrics()
	m.MessagesSent()
	m.MessagesSent()
	m.MessagesReceived()
	m.BytesSent(10)
	m.BytesReceived(20)
	m.MethodCallCompleted(true)
	m.MethodCallCompleted(false)
	m.MethodCallTimedOut()
	m.ReconnectAttempt()
	m.ReconnectSuccess()
	m.ReconnectExhausted()
	m.HealthCheckResult(true)
	m.HealthCheckResult(false)

	snap := m.Snapshot()
	want := AtomicMetricsSnapshot{
		MessagesSent: 2, MessagesReceived: 1,
		BytesSent: 10, BytesReceived: 20,
		CallsSucceeded: 1, CallsFailed: 1, CallsTimedOut: 1,
		ReconnectAttempts: 1, ReconnectSuccesses: 1, ReconnectExhausted: 1,
		HealthSuccesses: 1, HealthFailures: 1,
	}
	if snap != want {
		t.Errorf("Snapshot() = %+v, want %+v", snap, want)
	}
}

func TestNoopMetricsDoesNotPanic(t *testing.T) {
	var m Metrics = NoopMetrics{}
	m.MessagesSent()
	m.MessagesReceived()
	m.BytesSent(1)
	m.BytesReceived(1)
	m.MethodCallCompleted(true)
	m.MethodCallTimedOut()
	m.ReconnectAttempt()
	m.ReconnectSuccess()
	m.ReconnectExhausted()
	m.HealthCheckResult(true)
	m.StateTransition(StateConnecting, StateConnected)
}
