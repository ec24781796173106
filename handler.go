package dbusconn

// Handler is the unit of user extension inside a Pipeline. A Handler need
// not implement every capability; Capabilities returns only the ones it
// wants to intercept. Omitted capabilities get the default behaviour: pure
// propagation to the next handler toward the appropriate sentinel.
type Handler interface {
	Capabilities() HandlerCapabilities
}

// HandlerCapabilities is the subset of pipeline events a Handler wants to
// intercept. A nil field means "propagate unchanged". Each function is
// handed a *HandlerContext bound to its own position in the pipeline; it
// must call the matching Propagate* method to continue the flow, or not, to
// stop it there.
type HandlerCapabilities struct {
	InboundMessage     func(ctx *HandlerContext, msg *Message) error
	InboundFailure     func(ctx *HandlerContext, cause error) error
	ConnectionActive   func(ctx *HandlerContext) error
	ConnectionInactive func(ctx *HandlerContext, cause error) error
	UserEvent          func(ctx *HandlerContext, evt any) error
	OutboundMessage    func(ctx *HandlerContext, msg *Message) error
}

// HandlerAddedHook is implemented by handlers that want to know when they
// join a pipeline.
type HandlerAddedHook interface {
	OnHandlerAdded(ctx *HandlerContext)
}

// HandlerRemovedHook is implemented by handlers that want to know when they
// leave a pipeline.
type HandlerRemovedHook interface {
	OnHandlerRemoved(ctx *HandlerContext)
}

// FuncHandler adapts a HandlerCapabilities value directly into a Handler,
// for simple handlers that don't need lifecycle hooks.
type FuncHandler struct {
	Caps HandlerCapabilities
}

func (f FuncHandler) Capabilities() HandlerCapabilities { return f.Caps }
