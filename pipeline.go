package dbusconn

import (
	"sync"
)

// pipelineNode is one arena entry. prevID/nextID are -1 for an unlinked
// (removed) node — isRemoved == (prevID == -1 && nextID == -1). Indexing
// neighbours by id instead of pointer keeps the doubly-linked list free of
// reference cycles.
type pipelineNode struct {
	id      int
	name    string
	handler Handler
	caps    HandlerCapabilities
	prevID  int
	nextID  int
}

func (n *pipelineNode) isRemoved() bool { return n.prevID == -1 && n.nextID == -1 }

// Pipeline is the ordered, named chain of duplex Handlers living between
// the immovable head and tail sentinels.
type Pipeline struct {
	mu       sync.Mutex
	nodes    map[int]*pipelineNode
	byName   map[string]int
	nextID   int
	headID   int
	tailID   int

	// onOutboundToEngine is the head sentinel's behaviour: an outbound
	// message that reaches the head hands off to the connection engine for
	// encoding and transport write.
	onOutboundToEngine func(msg *Message) error
	// onInboundUnhandled is the tail sentinel's behaviour for an inbound
	// message nobody consumed.
	onInboundUnhandled func(msg *Message)
	// onFatal is invoked when a failure propagates off either sentinel,
	// i.e. the pipeline's error policy requires terminating the connection
	// ("a failure in an outbound handler terminates the
	// connection"; same for an inbound handler's own failure hook failing).
	onFatal func(cause error)
}

// ErrNameExists is returned by AddLast when name collides with an existing
// handler in the pipeline.
var ErrNameExists = errStr("name_exists")

// ErrHandlerRemoved is returned by a HandlerContext's Propagate* methods
// once its node has been removed from the pipeline.
var ErrHandlerRemoved = errStr("handler_removed")

// ErrSentinelImmovable is returned by Remove for "head" or "tail".
var ErrSentinelImmovable = errStr("sentinel cannot be removed")

const (
	headName = "head"
	tailName = "tail"
)

// NewPipeline builds an empty pipeline with only its head/tail sentinels.
func NewPipeline() *Pipeline {
	p := &Pipeline{
		nodes:  make(map[int]*pipelineNode),
		byName: make(map[string]int),
	}
	head := &pipelineNode{id: 0, name: headName, prevID: -2, nextID: 1}
	tail := &pipelineNode{id: 1, name: tailName, prevID: 0, nextID: -2}
	p.nodes[0] = head
	p.nodes[1] = tail
	p.byName[headName] = 0
	p.byName[tailName] = 1
	p.headID = 0
	p.tailID = 1
	p.nextID = 2
	return p
}

// AddLast appends a named handler immediately before the tail sentinel.
func (p *Pipeline) AddLast(name string, h Handler) (*HandlerContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byName[name]; exists {
		return nil, ErrNameExists
	}
	tail := p.nodes[p.tailID]
	prevID := tail.prevID

	id := p.nextID
	p.nextID++
	node := &pipelineNode{id: id, name: name, handler: h, caps: h.Capabilities(), prevID: prevID, nextID: p.tailID}
	p.nodes[id] = node
	p.byName[name] = id

	p.nodes[prevID].nextID = id
	tail.prevID = id

	ctx := &HandlerContext{pipeline: p, nodeID: id}
	if hook, ok := h.(HandlerAddedHook); ok {
		hook.OnHandlerAdded(ctx)
	}
	return ctx, nil
}

// Remove detaches the named handler. Removing "head" or "tail" fails.
func (p *Pipeline) Remove(name string) error {
	p.mu.Lock()
	id, exists := p.byName[name]
	if !exists {
		p.mu.Unlock()
		return newErrf(KindMessageInvalid, "pipeline: no handler named %q", name)
	}
	if id == p.headID || id == p.tailID {
		p.mu.Unlock()
		return ErrSentinelImmovable
	}
	node := p.nodes[id]
	prev := p.nodes[node.prevID]
	next := p.nodes[node.nextID]
	prev.nextID = node.nextID
	next.prevID = node.prevID
	node.prevID, node.nextID = -1, -1
	delete(p.byName, name)
	p.mu.Unlock()

	if hook, ok := node.handler.(HandlerRemovedHook); ok {
		hook.OnHandlerRemoved(&HandlerContext{pipeline: p, nodeID: id})
	}
	return nil
}

func (p *Pipeline) node(id int) (*pipelineNode, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[id]
	if !ok || n.isRemoved() {
		return nil, false
	}
	return n, true
}

// FireInboundMessage starts inbound propagation at the node right after the
// head sentinel.
func (p *Pipeline) FireInboundMessage(msg *Message) {
	p.deliverInbound(p.headID, msg)
}

// FireInboundFailure starts inbound-failure propagation (used when the
// engine itself — e.g. a codec error from the transport — needs to notify
// the pipeline without an associated message) at the node after head.
func (p *Pipeline) FireInboundFailure(cause error) {
	p.deliverInboundFailureFrom(p.nextInboundID(p.headID), cause)
}

// FireConnectionActive and FireConnectionInactive notify every handler, in
// order, that the connection became active/inactive. An active event always
// precedes application messages and an inactive event always follows the
// last one; the engine is responsible for sequencing the call correctly.
func (p *Pipeline) FireConnectionActive() {
	p.deliverConnActive(p.headID)
}

func (p *Pipeline) FireConnectionInactive(cause error) {
	p.deliverConnInactive(p.headID, cause)
}

func (p *Pipeline) FireUserEvent(evt any) {
	p.deliverUserEvent(p.headID, evt)
}

// FireOutboundMessage starts outbound propagation at the node right before
// the tail sentinel — the usual entry point for user code writing a
// message.
func (p *Pipeline) FireOutboundMessage(msg *Message) error {
	return p.deliverOutbound(p.tailID, msg)
}

func (p *Pipeline) nextInboundID(fromID int) int {
	n, ok := p.node(fromID)
	if !ok {
		return -1
	}
	return n.nextID
}

func (p *Pipeline) prevOutboundID(fromID int) int {
	n, ok := p.node(fromID)
	if !ok {
		return -1
	}
	return n.prevID
}

func (p *Pipeline) deliverInbound(fromID int, msg *Message) {
	nextID := p.nextInboundID(fromID)
	if nextID == p.tailID {
		p.onInboundUnhandled(msg)
		return
	}
	n, ok := p.node(nextID)
	if !ok {
		return
	}
	if n.caps.InboundMessage == nil {
		p.deliverInbound(nextID, msg)
		return
	}
	ctx := &HandlerContext{pipeline: p, nodeID: nextID}
	if err := n.caps.InboundMessage(ctx, msg); err != nil {
		p.deliverInboundFailureFrom(nextID, err)
	}
}

// deliverInboundFailureFrom reports cause to the handler at nodeID's own
// InboundFailure hook, not the next handler's. A failure raised by that
// hook itself is fatal to the connection.
func (p *Pipeline) deliverInboundFailureFrom(nodeID int, cause error) {
	n, ok := p.node(nodeID)
	if !ok || n.caps.InboundFailure == nil {
		// No hook (or node gone): per policy this is fatal, since nothing
		// downstream handled the failure.
		if p.onFatal != nil {
			p.onFatal(cause)
		}
		return
	}
	ctx := &HandlerContext{pipeline: p, nodeID: nodeID}
	if err := n.caps.InboundFailure(ctx, cause); err != nil {
		if p.onFatal != nil {
			p.onFatal(err)
		}
	}
}

func (p *Pipeline) deliverConnActive(fromID int) {
	nextID := p.nextInboundID(fromID)
	if nextID == p.tailID || nextID == -1 {
		return
	}
	n, ok := p.node(nextID)
	if !ok {
		return
	}
	if n.caps.ConnectionActive == nil {
		p.deliverConnActive(nextID)
		return
	}
	ctx := &HandlerContext{pipeline: p, nodeID: nextID}
	if err := n.caps.ConnectionActive(ctx); err != nil {
		p.deliverInboundFailureFrom(nextID, err)
	}
}

func (p *Pipeline) deliverConnInactive(fromID int, cause error) {
	nextID := p.nextInboundID(fromID)
	if nextID == p.tailID || nextID == -1 {
		return
	}
	n, ok := p.node(nextID)
	if !ok {
		return
	}
	if n.caps.ConnectionInactive == nil {
		p.deliverConnInactive(nextID, cause)
		return
	}
	ctx := &HandlerContext{pipeline: p, nodeID: nextID}
	if err := n.caps.ConnectionInactive(ctx, cause); err != nil {
		p.deliverInboundFailureFrom(nextID, err)
	}
}

func (p *Pipeline) deliverUserEvent(fromID int, evt any) {
	nextID := p.nextInboundID(fromID)
	if nextID == p.tailID || nextID == -1 {
		return
	}
	n, ok := p.node(nextID)
	if !ok {
		return
	}
	if n.caps.UserEvent == nil {
		p.deliverUserEvent(nextID, evt)
		return
	}
	ctx := &HandlerContext{pipeline: p, nodeID: nextID}
	if err := n.caps.UserEvent(ctx, evt); err != nil {
		p.deliverInboundFailureFrom(nextID, err)
	}
}

func (p *Pipeline) deliverOutbound(fromID int, msg *Message) error {
	prevID := p.prevOutboundID(fromID)
	if prevID == -1 {
		return ErrHandlerRemoved
	}
	if prevID == p.headID {
		if p.onOutboundToEngine == nil {
			return nil
		}
		if err := p.onOutboundToEngine(msg); err != nil {
			if p.onFatal != nil {
				p.onFatal(err)
			}
			return err
		}
		return nil
	}
	n, ok := p.node(prevID)
	if !ok {
		return ErrHandlerRemoved
	}
	if n.caps.OutboundMessage == nil {
		return p.deliverOutbound(prevID, msg)
	}
	ctx := &HandlerContext{pipeline: p, nodeID: prevID}
	if err := n.caps.OutboundMessage(ctx, msg); err != nil {
		if p.onFatal != nil {
			p.onFatal(err)
		}
		return err
	}
	return nil
}

// HandlerContext is bound to one pipeline node and offers the Propagate*
// methods a Handler calls to forward an event toward the next appropriate
// neighbour: inbound events move toward the tail, outbound
// events move toward the head.
type HandlerContext struct {
	pipeline *Pipeline
	nodeID   int
}

// Name returns this context's handler name.
func (c *HandlerContext) Name() string {
	if n, ok := c.pipeline.node(c.nodeID); ok {
		return n.name
	}
	return ""
}

func (c *HandlerContext) removed() bool {
	_, ok := c.pipeline.node(c.nodeID)
	return !ok
}

func (c *HandlerContext) PropagateInboundMessage(msg *Message) error {
	if c.removed() {
		return ErrHandlerRemoved
	}
	c.pipeline.deliverInbound(c.nodeID, msg)
	return nil
}

func (c *HandlerContext) PropagateInboundFailure(cause error) error {
	if c.removed() {
		return ErrHandlerRemoved
	}
	nextID := c.pipeline.nextInboundID(c.nodeID)
	if nextID == c.pipeline.tailID || nextID == -1 {
		return nil
	}
	c.pipeline.deliverInboundFailureFrom(nextID, cause)
	return nil
}

func (c *HandlerContext) PropagateConnectionActive() error {
	if c.removed() {
		return ErrHandlerRemoved
	}
	c.pipeline.deliverConnActive(c.nodeID)
	return nil
}

func (c *HandlerContext) PropagateConnectionInactive(cause error) error {
	if c.removed() {
		return ErrHandlerRemoved
	}
	c.pipeline.deliverConnInactive(c.nodeID, cause)
	return nil
}

func (c *HandlerContext) PropagateUserEvent(evt any) error {
	if c.removed() {
		return ErrHandlerRemoved
	}
	c.pipeline.deliverUserEvent(c.nodeID, evt)
	return nil
}

func (c *HandlerContext) PropagateOutboundMessage(msg *Message) error {
	if c.removed() {
		return ErrHandlerRemoved
	}
	return c.pipeline.deliverOutbound(c.nodeID, msg)
}
