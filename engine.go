package dbusconn

import "context"

// Engine is the connection engine's public contract. *Conn implements it;
// package dbusconntest provides an in-memory double with the same shape for
// testing handlers without a real bus daemon.
type Engine interface {
	Connect(ctx context.Context) error
	Close() error
	NextSerial() uint32
	Send(msg *Message) error
	SendRequest(ctx context.Context, msg *Message) (*Message, error)
	SendAndRouteResponse(msg *Message) error
	Pipeline() *Pipeline
	Subscribe(l Listener) (unsubscribe func())
	State() ConnectionState
}

var _ Engine = (*Conn)(nil)
