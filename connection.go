package dbusconn

import (
	"context"
	"log"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Conn is the client-side D-Bus connection engine (C6): it owns the
// transport, drives the SASL handshake and the mandatory Hello call,
// maintains the pending-call table, and feeds the inbound/outbound
// pipeline.
type Conn struct {
	id         string
	cfg        *Config
	addr       Address
	mechanisms []saslMechanism
	logger     *log.Logger

	stateMu sync.Mutex
	state   ConnectionState
	busName string

	transport Transport
	writeMu   sync.Mutex

	pipeline *Pipeline
	events   *eventBus
	pending  *pendingCallTable

	serial uint32Counter

	breaker   *circuitBreaker
	reconnect *reconnectController
	health    *healthMonitor

	connectMu  sync.Mutex
	connecting bool
	failOnce   sync.Once

	closeOnce sync.Once
	closing   atomic.Bool
	closed    chan struct{}

	readLoopDone chan struct{}
}

// NewConn builds an unconnected engine for addr. If mechanisms is empty,
// the default preference order EXTERNAL, DBUS_COOKIE_SHA1, ANONYMOUS is
// used with the current process's UID and identity.
func NewConn(addr Address, cfg *Config, mechanisms ...saslMechanism) *Conn {
	if cfg == nil {
		cfg = defaultConfig()
	}
	if len(mechanisms) == 0 {
		uid := os.Getuid()
		identity := strconv.Itoa(uid)
		mechanisms = []saslMechanism{
			newExternalMechanism(uid),
			newCookieMechanism(identity, nil),
			newAnonymousMechanism(""),
		}
	}

	c := &Conn{
		id:         uuid.New().String(),
		cfg:        cfg,
		addr:       addr,
		mechanisms: mechanisms,
		logger:     log.Default(),
		pipeline:   NewPipeline(),
		events:     newEventBus(),
		closed:     make(chan struct{}),
	}
	c.pending = newPendingCallTable(cfg.Metrics)
	c.breaker = newCircuitBreaker(3, 2, 2*cfg.ConnectTimeout)
	c.reconnect = newReconnectController(cfg.ReconnectInitialDelay, cfg.ReconnectMaxDelay, cfg.ReconnectBackoffMultiplier, cfg.MaxReconnectAttempts)
	c.pipeline.onOutboundToEngine = c.writeMessage
	c.pipeline.onInboundUnhandled = c.handleUnhandledInbound
	c.pipeline.onFatal = c.handleFatal
	if cfg.HealthCheckEnabled {
		c.health = newHealthMonitor(c, cfg.HealthCheckInterval, cfg.HealthCheckTimeout)
	}
	return c
}

// Dial is the one-shot entry point: it parses addr (e.g.
// "unix:path=/run/dbus/system_bus_socket" or "tcp:host=h,port=p"), builds a
// Config from opts, and drives the new connection to connected. On any
// failure the partially built connection is closed and the error returned.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	address, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	c := NewConn(address, cfg)
	if err := c.Connect(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// uint32Counter wraps a uint32 behind a mutex for the serial allocator.
// NextSerial must skip 0 on wraparound, which plain
// sync/atomic addition can't express in one step.
type uint32Counter struct {
	mu  sync.Mutex
	val uint32
}

func (c *uint32Counter) next() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val++
	if c.val == 0 {
		c.val = 1
	}
	return c.val
}

// NextSerial returns the next monotonically increasing, non-zero serial
// for this connection.
func (c *Conn) NextSerial() uint32 { return c.serial.next() }

func (c *Conn) setState(next ConnectionState) {
	c.stateMu.Lock()
	prev := c.state
	c.state = next
	c.stateMu.Unlock()
	c.cfg.Metrics.StateTransition(prev, next)
	c.events.Publish(Event{Type: EventStateChanged, From: prev, To: next})
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() ConnectionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// ID returns the process-local identifier for this connection instance,
// distinct from the bus-assigned unique name. It is stable across
// reconnects and useful for correlating events and log lines.
func (c *Conn) ID() string { return c.id }

// BusName returns the unique name assigned by Hello, once connected.
func (c *Conn) BusName() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.busName
}

// Pipeline returns the handler chain user code attaches to.
func (c *Conn) Pipeline() *Pipeline { return c.pipeline }

// Subscribe registers an event Listener; the returned func unsubscribes it.
func (c *Conn) Subscribe(l Listener) (unsubscribe func()) { return c.events.Subscribe(l) }

// Connect drives the state machine to connected or failed.
// Only one Connect may be in flight; a concurrent call fails with
// already_in_progress.
func (c *Conn) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	if c.connecting {
		c.connectMu.Unlock()
		return ErrAlreadyInProgress
	}
	if c.State() == StateConnected {
		c.connectMu.Unlock()
		return ErrAlreadyConnected
	}
	c.connecting = true
	c.connectMu.Unlock()
	defer func() {
		c.connectMu.Lock()
		c.connecting = false
		c.connectMu.Unlock()
	}()

	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}

	if err := c.doConnect(ctx); err != nil {
		c.breaker.RecordFailure()
		c.setState(StateFailed)
		return err
	}
	c.breaker.RecordSuccess()
	return nil
}

func (c *Conn) doConnect(ctx context.Context) error {
	c.setState(StateConnecting)

	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	transport, err := DialTransport(c.addr, time.Until(deadline))
	if err != nil {
		return err
	}
	_ = transport.SetReadDeadline(deadline)
	_ = transport.SetWriteDeadline(deadline)

	c.setState(StateAuthenticating)

	sasl := newSASLClient(transport, c.mechanisms...)
	if _, err := sasl.Authenticate(); err != nil {
		transport.Close()
		return err
	}

	c.writeMu.Lock()
	c.transport = transport
	c.failOnce = sync.Once{}
	c.readLoopDone = make(chan struct{})
	c.writeMu.Unlock()
	go c.readLoop(transport)

	if err := c.sayHello(deadline); err != nil {
		c.teardownTransport()
		return newErr(KindHelloFailed, err)
	}

	c.setState(StateConnected)
	c.pipeline.FireConnectionActive()
	c.reconnect.Reset()
	if c.health != nil {
		c.health.Start()
	}
	return nil
}

func (c *Conn) sayHello(deadline time.Time) error {
	msg := NewMessage(TypeMethodCall)
	msg.SetPath("/org/freedesktop/DBus")
	msg.SetInterface("org.freedesktop.DBus")
	msg.SetMember("Hello")
	msg.SetDestination("org.freedesktop.DBus")

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	reply, err := c.sendRequestDirect(ctx, msg)
	if err != nil {
		return err
	}
	if reply.Type == TypeError {
		name, _ := reply.ErrorName()
		return newErrf(KindHelloFailed, "Hello failed: %s", name)
	}
	if len(reply.Body) != 1 {
		return newErr(KindHelloFailed, errStr("Hello reply body must contain exactly one value"))
	}
	name, ok := reply.Body[0].(string)
	if !ok {
		return newErr(KindHelloFailed, errStr("Hello reply body must be a string"))
	}
	c.stateMu.Lock()
	c.busName = name
	c.stateMu.Unlock()
	return nil
}

// writeMessage encodes and writes msg, assigning it a serial if it doesn't
// have one. This is the pipeline's head-sentinel hand-off to the engine.
func (c *Conn) writeMessage(msg *Message) error {
	if msg.Serial == 0 {
		msg.Serial = c.NextSerial()
	}
	frame, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.transport == nil {
		return ErrNotActive
	}
	_ = c.transport.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	n, err := c.transport.Write(frame)
	if err != nil {
		return newErr(KindTransportIO, err)
	}
	c.cfg.Metrics.MessagesSent()
	c.cfg.Metrics.BytesSent(n)
	return nil
}

// Send writes msg fire-and-forget; the returned error reflects only
// whether the bytes were handed to the transport.
func (c *Conn) Send(msg *Message) error {
	if !c.State().canHandleRequests() {
		return ErrNotActive
	}
	if msg.Serial == 0 {
		msg.Serial = c.NextSerial()
	}
	return c.writeMessage(msg)
}

// SendRequest writes msg, registers a pending entry, and blocks until a
// matching reply arrives, ctx is done, or the method-call timeout elapses.
func (c *Conn) SendRequest(ctx context.Context, msg *Message) (*Message, error) {
	if !c.State().canHandleRequests() {
		return nil, ErrNotActive
	}
	return c.sendRequestDirect(ctx, msg)
}

func (c *Conn) sendRequestDirect(ctx context.Context, msg *Message) (*Message, error) {
	if msg.Serial == 0 {
		msg.Serial = c.NextSerial()
	}
	timeout := c.cfg.MethodCallTimeout
	if d, ok := ctx.Deadline(); ok {
		if until := time.Until(d); until < timeout {
			timeout = until
		}
	}

	pc := c.pending.register(msg.Serial, timeout)
	if err := c.writeMessage(msg); err != nil {
		c.pending.cancel(msg.Serial, err)
		return nil, err
	}

	select {
	case res := <-pc.done:
		return res.msg, res.err
	case <-ctx.Done():
		c.pending.cancel(msg.Serial, ctx.Err())
		return nil, ctx.Err()
	}
}

// SendAndRouteResponse writes msg without registering a pending entry: the
// response, when it arrives, is delivered through the pipeline as an
// unsolicited inbound message instead of completing a sink.
func (c *Conn) SendAndRouteResponse(msg *Message) error {
	if !c.State().canHandleRequests() {
		return ErrNotActive
	}
	if msg.Serial == 0 {
		msg.Serial = c.NextSerial()
	}
	return c.writeMessage(msg)
}

// readLoop owns the inbound side of t until it fails or is closed. Each
// Read is bounded by ReadTimeout; a connection idle past it is treated as
// dead, the same as any other transport failure.
func (c *Conn) readLoop(t Transport) {
	defer close(c.readLoopDone)
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		_ = t.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		n, err := t.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			c.cfg.Metrics.BytesReceived(n)
		}
		if err != nil {
			c.onTransportFailure(newErr(KindTransportIO, err))
			return
		}
		for {
			msg, consumed, derr := DecodeFrame(buf)
			if derr == errNeedMoreData {
				break
			}
			if derr != nil {
				c.onTransportFailure(derr)
				return
			}
			buf = buf[consumed:]
			c.cfg.Metrics.MessagesReceived()
			c.routeInbound(msg)
		}
		if len(buf) == 0 {
			buf = buf[:0]
		}
	}
}

// routeInbound implements the inbound routing rule: a
// method_return/error with a matching pending entry completes it; anything
// else (signals, unsolicited method_returns, method_calls) goes through the
// pipeline.
func (c *Conn) routeInbound(msg *Message) {
	if msg.Type == TypeMethodReturn || msg.Type == TypeError {
		if replySerial, ok := msg.ReplySerial(); ok && c.pending.complete(replySerial, msg, nil) {
			return
		}
	}
	c.pipeline.FireInboundMessage(msg)
}

// handleUnhandledInbound is the pipeline tail's default behaviour: for an
// unconsumed method_call it synthesises a NotSupported error reply;
// signals and other message types are silently dropped.
func (c *Conn) handleUnhandledInbound(msg *Message) {
	if msg.Type != TypeMethodCall {
		return
	}
	reply := NewMessage(TypeError)
	reply.SetErrorName("org.freedesktop.DBus.Error.NotSupported")
	reply.SetReplySerial(msg.Serial)
	if sender, ok := msg.Sender(); ok {
		reply.SetDestination(sender)
	}
	if err := c.writeMessage(reply); err != nil {
		c.logger.Printf("dbusconn: conn %s: failed to write NotSupported reply: %v", c.id, err)
	}
}

// handleFatal is the pipeline's onFatal hook: a failure that escapes an
// inbound handler's own failure hook, or any outbound handler failure, is a
// protocol violation that terminates the connection.
func (c *Conn) handleFatal(cause error) {
	c.onTransportFailure(cause)
}

func (c *Conn) onTransportFailure(cause error) {
	c.failOnce.Do(func() {
		c.teardownTransport()
		c.pending.drain(cause)

		// A failure observed while Close is tearing the connection down is
		// not a failure: Close owns the state transition and the inactive
		// event, and no reconnect may start.
		if c.closing.Load() {
			return
		}

		prev := c.State()
		if prev == StateFailed || prev == StateDisconnected {
			return
		}
		c.pipeline.FireConnectionInactive(cause)

		if c.cfg.AutoReconnectEnabled {
			c.setState(StateReconnecting)
			go c.reconnectLoop()
			return
		}
		c.setState(StateFailed)
	})
}

func (c *Conn) teardownTransport() {
	if c.health != nil {
		c.health.Stop()
	}
	c.writeMu.Lock()
	t := c.transport
	c.transport = nil
	c.writeMu.Unlock()
	if t != nil {
		t.Close()
	}
}

func (c *Conn) reconnectLoop() {
	for {
		delay, attempt, ok := c.reconnect.NextDelay()
		if !ok {
			// Canceled means the user (or Close) stopped reconnection; only
			// genuine exhaustion of the attempt budget is a failure.
			if c.reconnect.Canceled() {
				return
			}
			c.events.Publish(Event{Type: EventReconnectionExhausted})
			c.cfg.Metrics.ReconnectExhausted()
			c.setState(StateFailed)
			return
		}
		waitCtx, cancel := context.WithTimeout(context.Background(), delay+c.cfg.ConnectTimeout)
		if err := c.reconnect.Wait(waitCtx, delay); err != nil {
			cancel()
			return
		}
		if c.closing.Load() {
			cancel()
			return
		}
		c.events.Publish(Event{Type: EventReconnectionAttempt, Attempt: attempt})
		c.cfg.Metrics.ReconnectAttempt()

		if !c.breaker.Allow() {
			cancel()
			c.events.Publish(Event{Type: EventReconnectionFailure, Cause: ErrCircuitOpen})
			continue
		}

		err := c.doConnect(waitCtx)
		cancel()
		if err != nil {
			c.breaker.RecordFailure()
			c.events.Publish(Event{Type: EventReconnectionFailure, Cause: err})
			if c.closing.Load() {
				return
			}
			c.setState(StateReconnecting)
			continue
		}
		c.breaker.RecordSuccess()
		c.events.Publish(Event{Type: EventReconnectionSuccess})
		c.cfg.Metrics.ReconnectSuccess()
		return
	}
}

// CancelReconnection stops any pending reconnect attempt from being
// scheduled further.
func (c *Conn) CancelReconnection() { c.reconnect.Cancel() }

// ResetReconnectionState zeroes the reconnect attempt counter.
func (c *Conn) ResetReconnectionState() { c.reconnect.Reset() }

// ReconnectAttempts returns the number of reconnect attempts made in the
// current cycle.
func (c *Conn) ReconnectAttempts() int { return c.reconnect.Attempts() }

// TriggerHealthCheck runs one Ping probe immediately, independent of the
// monitor's own ticker.
func (c *Conn) TriggerHealthCheck(ctx context.Context) error {
	if c.health == nil {
		return newErr(KindNotActive, errStr("health checking is disabled"))
	}
	return c.health.Check(ctx)
}

// Close transitions the connection to disconnected, cancels pending calls
// with closed, and releases the transport. The wait for the read loop to
// drain is bounded by CloseTimeout. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.reconnect.Cancel()
		prev := c.State()
		if prev != StateDisconnected {
			c.teardownTransport()
			c.pending.drain(ErrClosed)
			if prev != StateFailed {
				c.pipeline.FireConnectionInactive(ErrClosed)
			}
		}
		c.writeMu.Lock()
		done := c.readLoopDone
		c.writeMu.Unlock()
		if done != nil {
			select {
			case <-done:
			case <-time.After(c.cfg.CloseTimeout):
			}
		}
		c.setState(StateDisconnected)
		close(c.closed)
	})
	return nil
}

// Done returns a channel closed once Close has completed.
func (c *Conn) Done() <-chan struct{} { return c.closed }
