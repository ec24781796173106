// Package dbusconntest provides an in-memory dbusconn.Engine double for
// testing handlers and application code without a real bus daemon.
package dbusconntest

import (
	"context"
	"sync"

	"github.com/atsika/dbusconn"
)

// Responder answers one outbound method_call; returning a nil reply with a
// nil error means "never respond" (the caller will time out).
type Responder func(req *dbusconn.Message) (*dbusconn.Message, error)

// Engine is a programmable dbusconn.Engine: Send/SendRequest never touch a
// socket. Method calls are matched against registered Responders by
// interface+member; unmatched calls get a NotSupported error, mirroring the
// real engine's pipeline-tail default.
type Engine struct {
	mu         sync.Mutex
	state      dbusconn.ConnectionState
	pipeline   *dbusconn.Pipeline
	events     *eventBus
	serial     uint32
	responders map[string]Responder
	sent       []*dbusconn.Message
}

// New builds a ready, connected Engine.
func New() *Engine {
	e := &Engine{
		state:      dbusconn.StateConnected,
		pipeline:   dbusconn.NewPipeline(),
		events:     newEventBus(),
		responders: make(map[string]Responder),
	}
	return e
}

// OnMethodCall registers a Responder for iface.member, replacing any
// previous registration for the same key.
func (e *Engine) OnMethodCall(iface, member string, r Responder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responders[iface+"."+member] = r
}

// Sent returns every message handed to Send/SendRequest/SendAndRouteResponse
// so far, in order, for assertions in tests.
func (e *Engine) Sent() []*dbusconn.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*dbusconn.Message, len(e.sent))
	copy(out, e.sent)
	return out
}

func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = dbusconn.StateConnected
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = dbusconn.StateDisconnected
	return nil
}

func (e *Engine) NextSerial() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.serial++
	if e.serial == 0 {
		e.serial = 1
	}
	return e.serial
}

func (e *Engine) State() dbusconn.ConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Pipeline() *dbusconn.Pipeline { return e.pipeline }

func (e *Engine) Subscribe(l dbusconn.Listener) (unsubscribe func()) {
	return e.events.Subscribe(l)
}

func (e *Engine) Send(msg *dbusconn.Message) error {
	e.record(msg)
	return nil
}

func (e *Engine) SendAndRouteResponse(msg *dbusconn.Message) error {
	e.record(msg)
	reply := e.respond(msg)
	if reply != nil {
		e.pipeline.FireInboundMessage(reply)
	}
	return nil
}

func (e *Engine) SendRequest(ctx context.Context, msg *dbusconn.Message) (*dbusconn.Message, error) {
	e.record(msg)
	reply := e.respond(msg)
	if reply == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return reply, nil
}

func (e *Engine) record(msg *dbusconn.Message) {
	if msg.Serial == 0 {
		msg.Serial = e.NextSerial()
	}
	e.mu.Lock()
	e.sent = append(e.sent, msg)
	e.mu.Unlock()
}

func (e *Engine) respond(msg *dbusconn.Message) *dbusconn.Message {
	iface, _ := msg.Interface()
	member, _ := msg.Member()

	e.mu.Lock()
	r, ok := e.responders[iface+"."+member]
	e.mu.Unlock()
	if !ok {
		reply := dbusconn.NewMessage(dbusconn.TypeError)
		reply.SetErrorName("org.freedesktop.DBus.Error.NotSupported")
		reply.SetReplySerial(msg.Serial)
		return reply
	}

	reply, err := r(msg)
	if err != nil {
		errMsg := dbusconn.NewMessage(dbusconn.TypeError)
		errMsg.SetErrorName("org.freedesktop.DBus.Error.Failed")
		errMsg.SetReplySerial(msg.Serial)
		return errMsg
	}
	if reply == nil {
		return nil
	}
	reply.SetReplySerial(msg.Serial)
	return reply
}

var _ dbusconn.Engine = (*Engine)(nil)
