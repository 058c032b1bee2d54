package wsrouter

import (
	"context"
	"fmt"
)

// Resource is a per-connection stateful handler. One instance is created for
// every path segment matched during a connection attempt and lives until the
// connection closes.
//
// Embed Base to pick up default implementations plus the state container,
// subroute registration and per-resource hooks.
type Resource interface {
	// OnConnect decides whether the connection is accepted. Returning
	// false (or an error) makes the router perform a close handshake
	// without invoking any further handler.
	OnConnect(ctx context.Context, req *Request, conn Conn, params Params) (bool, error)

	// OnDisconnect runs once, best-effort, when the connection ends for
	// any reason.
	OnDisconnect(ctx context.Context, conn Conn, closeCode int)

	// OnUnhandled is invoked for messages that fail decoding or resolve
	// to no handler.
	OnUnhandled(ctx context.Context, conn Conn, raw []byte) error
}

// Factory builds a resource for one connection attempt. The deps context
// merges the router's provided services, the route's static arguments, and
// the parent's child context when instantiating a nested segment.
type Factory func(deps Context) Resource

// handlerProvider is implemented by resources exposing an explicit message
// handler registry.
type handlerProvider interface {
	Handlers() *Registry
}

// hookProvider is implemented by resources carrying their own lifecycle
// hooks. Base provides it.
type hookProvider interface {
	ResourceHooks() *Hooks
}

// childContexter lets a parent pass context to the next nested resource.
type childContexter interface {
	GetChildContext() Context
}

// stateHolder is the state propagation surface the router uses when wiring
// a nested chain.
type stateHolder interface {
	State() State
	SetState(State)
}

// subrouter exposes the subroutes registered on a resource instance.
type subrouter interface {
	subroutes() []*Route
}

// Base provides the default resource behaviour: accept every connection,
// ignore disconnects and unhandled messages, share state with children, and
// no subroutes. Resources embed it and override what they need.
type Base struct {
	state State
	subs  []*Route
	hooks Hooks
}

// OnConnect accepts the connection.
func (b *Base) OnConnect(context.Context, *Request, Conn, Params) (bool, error) {
	return true, nil
}

// OnDisconnect does nothing.
func (b *Base) OnDisconnect(context.Context, Conn, int) {}

// OnUnhandled drops the message.
func (b *Base) OnUnhandled(context.Context, Conn, []byte) error {
	return nil
}

// GetChildContext returns the context forwarded to the next nested resource.
// The default shares nothing; override it to pass dependencies down. If the
// returned context contains a "state" entry holding a State, that value
// replaces the connection-scoped state handed to the child.
func (b *Base) GetChildContext() Context {
	return nil
}

// State returns the per-connection state container, creating the default
// map-backed one on first use.
func (b *Base) State() State {
	if b.state == nil {
		b.state = NewState()
	}
	return b.state
}

// SetState replaces the state container.
func (b *Base) SetState(s State) {
	b.state = s
}

// AddSubroute registers factory to handle the nested path below this
// resource. The path is relative: a resource mounted at "/parents/{pid}"
// with a subroute "child/{cid}" serves "/parents/1/child/2". Registering
// two subroutes with the same pattern shape fails with ErrDuplicateRoute.
func (b *Base) AddSubroute(path string, factory Factory, opts ...RouteOption) error {
	if factory == nil {
		return fmt.Errorf("wsrouter: subroute %q: factory must not be nil", path)
	}
	tpl, err := parseTemplate(path)
	if err != nil {
		return err
	}
	for _, existing := range b.subs {
		if existing.tpl.shape == tpl.shape {
			return fmt.Errorf("%w: subroute pattern %q already registered", ErrDuplicateRoute, path)
		}
	}
	route := &Route{tpl: tpl, factory: factory}
	for _, opt := range opts {
		opt(route)
	}
	b.subs = append(b.subs, route)
	return nil
}

// UseHook registers a lifecycle hook scoped to this resource and any
// descendants below it in a connection's chain.
func (b *Base) UseHook(event HookEvent, fn HookFunc) {
	b.hooks.Add(event, fn)
}

// ResourceHooks returns the resource-scoped hook collection.
func (b *Base) ResourceHooks() *Hooks {
	return &b.hooks
}

func (b *Base) subroutes() []*Route {
	return b.subs
}
