package dbusconn

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the instrumentation seam the connection engine reports
// through. Callers inject an implementation rather than the engine owning
// a concrete backend.
type Metrics interface {
	MessagesSent()
	MessagesReceived()
	BytesSent(n int)
	BytesReceived(n int)
	MethodCallCompleted(success bool)
	MethodCallTimedOut()
	ReconnectAttempt()
	ReconnectSuccess()
	ReconnectExhausted()
	HealthCheckResult(success bool)
	StateTransition(from, to ConnectionState)
}

// NoopMetrics discards everything; it is Config's default.
type NoopMetrics struct{}

func (NoopMetrics) MessagesSent()                               {}
func (NoopMetrics) MessagesReceived()                            {}
func (NoopMetrics) BytesSent(int)                                {}
func (NoopMetrics) BytesReceived(int)                            {}
func (NoopMetrics) MethodCallCompleted(bool)                     {}
func (NoopMetrics) MethodCallTimedOut()                          {}
func (NoopMetrics) ReconnectAttempt()                            {}
func (NoopMetrics) ReconnectSuccess()                            {}
func (NoopMetrics) ReconnectExhausted()                          {}
func (NoopMetrics) HealthCheckResult(bool)                       {}
func (NoopMetrics) StateTransition(from, to ConnectionState)     {}

// AtomicMetrics is an in-process counter implementation, useful for tests
// and simple observability without a metrics backend.
type AtomicMetrics struct {
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	bytesSent        atomic.Uint64
	bytesReceived    atomic.Uint64
	callsSucceeded   atomic.Uint64
	callsFailed      atomic.Uint64
	callsTimedOut    atomic.Uint64
	reconnectAttempts  atomic.Uint64
	reconnectSuccesses atomic.Uint64
	reconnectExhausted atomic.Uint64
	healthSuccesses  atomic.Uint64
	healthFailures   atomic.Uint64
}

func NewAtomicMetrics() *AtomicMetrics { return &AtomicMetrics{} }

func (m *AtomicMetrics) MessagesSent()         { m.messagesSent.Add(1) }
func (m *AtomicMetrics) MessagesReceived()     { m.messagesReceived.Add(1) }
func (m *AtomicMetrics) BytesSent(n int)       { m.bytesSent.Add(uint64(n)) }
func (m *AtomicMetrics) BytesReceived(n int)   { m.bytesReceived.Add(uint64(n)) }

func (m *AtomicMetrics) MethodCallCompleted(success bool) {
	if success {
		m.callsSucceeded.Add(1)
		return
	}
	m.callsFailed.Add(1)
}

func (m *AtomicMetrics) MethodCallTimedOut()  { m.callsTimedOut.Add(1) }
func (m *AtomicMetrics) ReconnectAttempt()    { m.reconnectAttempts.Add(1) }
func (m *AtomicMetrics) ReconnectSuccess()    { m.reconnectSuccesses.Add(1) }
func (m *AtomicMetrics) ReconnectExhausted()  { m.reconnectExhausted.Add(1) }

func (m *AtomicMetrics) HealthCheckResult(success bool) {
	if success {
		m.healthSuccesses.Add(1)
		return
	}
	m.healthFailures.Add(1)
}

func (m *AtomicMetrics) StateTransition(from, to ConnectionState) {}

// Snapshot returns a point-in-time copy of every counter, for tests.
func (m *AtomicMetrics) Snapshot() AtomicMetricsSnapshot {
	return AtomicMetricsSnapshot{
		MessagesSent:       m.messagesSent.Load(),
		MessagesReceived:   m.messagesReceived.Load(),
		BytesSent:          m.bytesSent.Load(),
		BytesReceived:      m.bytesReceived.Load(),
		CallsSucceeded:     m.callsSucceeded.Load(),
		CallsFailed:        m.callsFailed.Load(),
		CallsTimedOut:      m.callsTimedOut.Load(),
		ReconnectAttempts:  m.reconnectAttempts.Load(),
		ReconnectSuccesses: m.reconnectSuccesses.Load(),
		ReconnectExhausted: m.reconnectExhausted.Load(),
		HealthSuccesses:    m.healthSuccesses.Load(),
		HealthFailures:     m.healthFailures.Load(),
	}
}

type AtomicMetricsSnapshot struct {
	MessagesSent, MessagesReceived       uint64
	BytesSent, BytesReceived             uint64
	CallsSucceeded, CallsFailed, CallsTimedOut uint64
	ReconnectAttempts, ReconnectSuccesses, ReconnectExhausted uint64
	HealthSuccesses, HealthFailures uint64
}

// PrometheusMetrics reports through client_golang counters, for deployments
// already scraping Prometheus.
type PrometheusMetrics struct {
	messages     *prometheus.CounterVec
	bytesTotal   *prometheus.CounterVec
	callResults  *prometheus.CounterVec
	reconnects   *prometheus.CounterVec
	healthChecks *prometheus.CounterVec
	stateChanges *prometheus.CounterVec
}

// NewPrometheusMetrics registers its collectors on reg and returns a ready
// Metrics implementation. reg may be nil, in which case the collectors are
// not registered anywhere; passing prometheus.DefaultRegisterer is the
// common case.
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) *PrometheusMetrics {
	pm := &PrometheusMetrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dbus_messages_total", Help: "D-Bus messages by direction.",
		}, []string{"direction"}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dbus_bytes_total", Help: "D-Bus bytes by direction.",
		}, []string{"direction"}),
		callResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dbus_method_calls_total", Help: "Completed method calls by outcome.",
		}, []string{"outcome"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dbus_reconnects_total", Help: "Reconnection events by outcome.",
		}, []string{"outcome"}),
		healthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dbus_health_checks_total", Help: "Health probe results.",
		}, []string{"result"}),
		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dbus_state_transitions_total", Help: "Connection state transitions.",
		}, []string{"from", "to"}),
	}
	if reg != nil {
		reg.MustRegister(pm.messages, pm.bytesTotal, pm.callResults, pm.reconnects, pm.healthChecks, pm.stateChanges)
	}
	return pm
}

func (p *PrometheusMetrics) MessagesSent()     { p.messages.WithLabelValues("sent").Inc() }
func (p *PrometheusMetrics) MessagesReceived() { p.messages.WithLabelValues("received").Inc() }
func (p *PrometheusMetrics) BytesSent(n int)     { p.bytesTotal.WithLabelValues("sent").Add(float64(n)) }
func (p *PrometheusMetrics) BytesReceived(n int) { p.bytesTotal.WithLabelValues("received").Add(float64(n)) }

func (p *PrometheusMetrics) MethodCallCompleted(success bool) {
	if success {
		p.callResults.WithLabelValues("success").Inc()
		return
	}
	p.callResults.WithLabelValues("failure").Inc()
}

func (p *PrometheusMetrics) MethodCallTimedOut() { p.callResults.WithLabelValues("timeout").Inc() }
func (p *PrometheusMetrics) ReconnectAttempt()   { p.reconnects.WithLabelValues("attempt").Inc() }
func (p *PrometheusMetrics) ReconnectSuccess()   { p.reconnects.WithLabelValues("success").Inc() }
func (p *PrometheusMetrics) ReconnectExhausted() { p.reconnects.WithLabelValues("exhausted").Inc() }

func (p *PrometheusMetrics) HealthCheckResult(success bool) {
	if success {
		p.healthChecks.WithLabelValues("success").Inc()
		return
	}
	p.healthChecks.WithLabelValues("failure").Inc()
}

func (p *PrometheusMetrics) StateTransition(from, to ConnectionState) {
	p.stateChanges.WithLabelValues(from.String(), to.String()).Inc()
}
