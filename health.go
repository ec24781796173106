package dbusconn

import (
	"context"
	"sync"
	"time"
)

// healthMonitor issues a periodic Ping against org.freedesktop.DBus.Peer
// and tracks consecutive failures, moving the connection between connected
// and unhealthy. Runs on its own ticker, independent of user traffic.
type healthMonitor struct {
	conn     *Conn
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	consecutiveFailures int
}

func newHealthMonitor(conn *Conn, interval, timeout time.Duration) *healthMonitor {
	return &healthMonitor{conn: conn, interval: interval, timeout: timeout}
}

// Start begins the periodic probe loop; a no-op if already running.
func (h *healthMonitor) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})
	h.consecutiveFailures = 0
	h.mu.Unlock()

	h.wg.Add(1)
	go h.loop()
}

// Stop halts the probe loop and waits for it to exit.
func (h *healthMonitor) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	close(h.stopCh)
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *healthMonitor) loop() {
	defer h.wg.Done()
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
			_ = h.Check(ctx)
			cancel()
		}
	}
}

// Check runs one Ping probe immediately and updates the consecutive-failure
// counter, moving the connection state when the two-failure threshold is
// crossed in either direction.
func (h *healthMonitor) Check(ctx context.Context) error {
	msg := NewMessage(TypeMethodCall)
	msg.SetPath("/")
	msg.SetInterface("org.freedesktop.DBus.Peer")
	msg.SetMember("Ping")

	_, err := h.conn.SendRequest(ctx, msg)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.consecutiveFailures++
		h.conn.cfg.Metrics.HealthCheckResult(false)
		h.conn.events.Publish(Event{Type: EventHealthCheckFailure, Cause: err})
		if h.consecutiveFailures >= 2 && h.conn.State() == StateConnected {
			h.conn.setState(StateUnhealthy)
		}
		return err
	}

	wasUnhealthy := h.consecutiveFailures > 0
	h.consecutiveFailures = 0
	h.conn.cfg.Metrics.HealthCheckResult(true)
	h.conn.events.Publish(Event{Type: EventHealthCheckSuccess})
	if wasUnhealthy && h.conn.State() == StateUnhealthy {
		h.conn.setState(StateConnected)
	}
	return nil
}
