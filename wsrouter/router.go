package wsrouter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Router matches connection targets against registered routes, builds the
// resource chain for each connection, and drives the connection lifecycle:
// hooks, accept/reject, the receive loop, and disconnect.
//
// Registration (AddRoute, Provide, UseHook, Mount) must finish before the
// router starts serving connections; serving is safe from many goroutines.
type Router struct {
	mount    string
	routes   []*Route
	shapes   map[string]*Route
	named    map[string]*Route
	services Context
	hooks    Hooks
	envelope Envelope
	logger   *zap.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets the router's logger. The default discards everything.
func WithLogger(logger *zap.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithDefaultEnvelope sets the message envelope used for routes without
// their own override.
func WithDefaultEnvelope(env Envelope) RouterOption {
	return func(r *Router) {
		r.envelope = env
	}
}

// NewRouter returns a router with no routes.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		shapes:   make(map[string]*Route),
		named:    make(map[string]*Route),
		services: make(Context),
		envelope: DefaultEnvelope,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mount sets the path prefix this router is served under. Connection
// targets are resolved relative to it.
func (r *Router) Mount(prefix string) {
	r.mount = "/" + strings.Trim(prefix, "/")
}

// Provide registers a named dependency, handed to every resource factory
// through its deps context. Route statics and parent child contexts shadow
// provided values of the same name.
func (r *Router) Provide(name string, value any) {
	r.services[name] = value
}

// UseHook registers a global lifecycle hook. Global hooks run outside every
// resource's hooks: first for before events, last for after events.
func (r *Router) UseHook(event HookEvent, fn HookFunc) {
	r.hooks.Add(event, fn)
}

// AddRoute registers factory to handle connections for path. The path is
// relative to the router's mount point and may contain {name} parameters.
// Registering a pattern or name that collides with an existing route fails
// with ErrDuplicateRoute.
func (r *Router) AddRoute(path string, factory Factory, opts ...RouteOption) error {
	if factory == nil {
		return fmt.Errorf("wsrouter: route %q: factory must not be nil", path)
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("wsrouter: route path %q must start with /", path)
	}
	tpl, err := parseTemplate(path)
	if err != nil {
		return err
	}

	route := &Route{tpl: tpl, factory: factory}
	for _, opt := range opts {
		opt(route)
	}

	if existing, ok := r.shapes[tpl.shape]; ok {
		return fmt.Errorf("%w: pattern %q collides with %q", ErrDuplicateRoute, path, existing.tpl.template)
	}
	if route.name != "" {
		if _, ok := r.named[route.name]; ok {
			return fmt.Errorf("%w: name %q already registered", ErrDuplicateRoute, route.name)
		}
	}

	r.routes = append(r.routes, route)
	r.shapes[tpl.shape] = route
	if route.name != "" {
		r.named[route.name] = route
	}
	return nil
}

// URLFor reconstructs a concrete path for the named route. It fails with
// ErrUnknownRoute for an unregistered name and ErrMissingParameter when a
// required parameter is absent.
func (r *Router) URLFor(name string, params Params) (string, error) {
	route, ok := r.named[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRoute, name)
	}
	return route.tpl.build(params)
}

// MatchPath reports whether any top-level route matches a prefix of path.
// Transports use it to refuse obviously unroutable targets before the
// handshake; nested segments are only resolvable once the parent resources
// exist, so a true result does not guarantee the full chain resolves.
func (r *Router) MatchPath(path string) bool {
	segs, ok := r.relativeSegments(path)
	if !ok {
		return false
	}
	_, _, _, matched := matchRoutes(r.routes, segs)
	return matched
}

func (r *Router) relativeSegments(path string) ([]string, bool) {
	if r.mount != "" && r.mount != "/" {
		if !strings.HasPrefix(path, r.mount) {
			return nil, false
		}
		path = path[len(r.mount):]
	}
	return splitPath(path), true
}

// connectionChain is a fully resolved route chain for one connection
// attempt.
type connectionChain struct {
	resources []Resource
	params    Params
	envelope  Envelope
}

func (c *connectionChain) target() Resource {
	return c.resources[len(c.resources)-1]
}

// resolve matches req's path and instantiates the resource chain, threading
// child context, state and merged parameters from parent to child. No
// lifecycle method is invoked; a failure at any segment means no resource
// sees the connection.
func (r *Router) resolve(req *Request) (*connectionChain, error) {
	segs, ok := r.relativeSegments(req.Path)
	if !ok {
		return nil, fmt.Errorf("%w: %q is outside mount %q", ErrRouteNotFound, req.Path, r.mount)
	}

	route, params, rest, ok := matchRoutes(r.routes, segs)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRouteNotFound, req.Path)
	}

	env := r.envelope
	if route.envelope != nil {
		env = *route.envelope
	}

	resource := route.factory(mergeContexts(r.services, route.statics))
	chain := &connectionChain{
		resources: []Resource{resource},
		params:    params.clone(),
		envelope:  env,
	}

	parent := resource
	for len(rest) > 0 {
		sub, subParams, subRest, ok := r.matchSubroute(parent, rest)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrRouteNotFound, req.Path)
		}
		if sub.envelope != nil {
			chain.envelope = *sub.envelope
		}

		childCtx := Context(nil)
		if cc, ok := parent.(childContexter); ok {
			childCtx = cc.GetChildContext()
		}

		deps := mergeContexts(r.services, sub.statics, stripState(childCtx))
		for name, value := range subParams {
			// Path parameters are authoritative on collision.
			if _, clash := deps[name]; clash {
				r.logger.Debug("child context key shadowed by path parameter",
					zap.String("key", name))
			}
			deps[name] = value
		}

		child := sub.factory(deps)
		r.propagateState(parent, child, childCtx)

		for name, value := range subParams {
			chain.params[name] = value
		}
		chain.resources = append(chain.resources, child)
		parent = child
		rest = subRest
	}

	return chain, nil
}

func (r *Router) matchSubroute(parent Resource, rest []string) (*Route, Params, []string, bool) {
	sr, ok := parent.(subrouter)
	if !ok {
		return nil, nil, nil, false
	}
	return matchRoutes(sr.subroutes(), rest)
}

// stripState removes the reserved "state" entry from a child context; it
// configures state propagation rather than a dependency.
func stripState(ctx Context) Context {
	if _, ok := ctx["state"]; !ok {
		return ctx
	}
	out := make(Context, len(ctx)-1)
	for k, v := range ctx {
		if k != "state" {
			out[k] = v
		}
	}
	return out
}

// propagateState hands the parent's state container to the child, unless
// the parent's child context supplies a replacement under "state".
func (r *Router) propagateState(parent, child Resource, childCtx Context) {
	ch, ok := child.(stateHolder)
	if !ok {
		return
	}
	if replacement, ok := childCtx["state"].(State); ok {
		ch.SetState(replacement)
		return
	}
	if ph, ok := parent.(stateHolder); ok {
		ch.SetState(ph.State())
	}
}

// ServeConn resolves req, runs the connect lifecycle and then the receive
// loop until the connection ends. It returns nil for a clean disconnect, a
// rejection, or a recoverable stream of messages; it returns an error when
// resolution fails, a hook aborts the connect, or a handler fails.
func (r *Router) ServeConn(ctx context.Context, req *Request, conn Conn) error {
	chain, err := r.resolve(req)
	if err != nil {
		r.logger.Debug("connection target not routable",
			zap.String("path", req.Path), zap.Error(err))
		_ = conn.Close(ClosePolicyViolation)
		return err
	}

	accepted, err := r.connect(ctx, req, conn, chain)
	if err != nil {
		return err
	}
	if !accepted {
		return nil
	}

	hc := &hookChain{global: &r.hooks, chain: chain.resources}
	closeCode, loopErr := r.receiveLoop(ctx, req, conn, chain, hc)

	r.disconnect(ctx, req, conn, chain, hc, closeCode)
	_ = conn.Close(closeCode)
	return loopErr
}

// connect runs before_connect, OnConnect and after_connect. It reports
// whether the connection was accepted; on rejection or error the close
// handshake is already done.
func (r *Router) connect(ctx context.Context, req *Request, conn Conn, chain *connectionChain) (bool, error) {
	hc := &hookChain{global: &r.hooks, chain: chain.resources}
	hctx := &HookContext{
		Target:  chain.target(),
		Request: req,
		Conn:    conn,
		Params:  chain.params,
	}

	if err := hc.runBefore(ctx, BeforeConnect, hctx); err != nil {
		r.logger.Warn("connection rejected by before_connect hook",
			zap.String("path", req.Path), zap.Error(err))
		_ = conn.Close(ClosePolicyViolation)
		return false, err
	}

	accepted, err := chain.target().OnConnect(ctx, req, conn, chain.params)
	if err != nil {
		hctx.Err = err
		if aerr := hc.runAfter(ctx, AfterConnect, hctx); aerr != nil {
			hctx.Err = aerr
		}
		if hctx.Err != nil {
			_ = conn.Close(CloseInternalError)
			return false, hctx.Err
		}
		accepted = false
	}

	hctx.Accepted = accepted
	if err == nil {
		if aerr := hc.runAfter(ctx, AfterConnect, hctx); aerr != nil {
			_ = conn.Close(CloseInternalError)
			return false, aerr
		}
	}

	if !accepted {
		_ = conn.Close(ClosePolicyViolation)
		return false, nil
	}
	if err := conn.Accept(ctx); err != nil {
		return false, fmt.Errorf("wsrouter: accepting connection: %w", err)
	}
	return true, nil
}

// receiveLoop dispatches inbound messages sequentially until the connection
// ends or a handler fails. Messages for one connection never run
// concurrently; an in-flight handler always completes before the loop
// observes a disconnect.
func (r *Router) receiveLoop(ctx context.Context, req *Request, conn Conn, chain *connectionChain, hc *hookChain) (int, error) {
	target := chain.target()
	for {
		raw, err := conn.Receive(ctx)
		if err != nil {
			return receiveCloseCode(err)
		}

		mctx := &HookContext{
			Target:  target,
			Request: req,
			Conn:    conn,
			Params:  chain.params,
			Raw:     raw,
		}
		if herr := hc.runBefore(ctx, BeforeReceive, mctx); herr != nil {
			r.logger.Warn("message dropped by before_receive hook",
				zap.String("path", req.Path), zap.Error(herr))
			continue
		}

		mctx.Err = Dispatch(ctx, target, chain.envelope, conn, raw)
		if aerr := hc.runAfter(ctx, AfterReceive, mctx); aerr != nil {
			mctx.Err = aerr
		}

		switch {
		case mctx.Err == nil:
		case Recoverable(mctx.Err):
			r.logger.Debug("message not handled",
				zap.String("path", req.Path), zap.Error(mctx.Err))
		default:
			return CloseInternalError, mctx.Err
		}
	}
}

// disconnect runs the disconnect hooks and OnDisconnect leaf to root,
// best-effort: a failing hook is logged and never blocks teardown.
func (r *Router) disconnect(ctx context.Context, req *Request, conn Conn, chain *connectionChain, hc *hookChain, closeCode int) {
	dctx := &HookContext{
		Target:    chain.target(),
		Request:   req,
		Conn:      conn,
		Params:    chain.params,
		CloseCode: closeCode,
	}
	if err := hc.runBefore(ctx, BeforeDisconnect, dctx); err != nil {
		r.logger.Warn("before_disconnect hook failed",
			zap.String("path", req.Path), zap.Error(err))
	}
	for i := len(chain.resources) - 1; i >= 0; i-- {
		chain.resources[i].OnDisconnect(ctx, conn, closeCode)
	}
}

// receiveCloseCode maps a Receive error to the close code recorded for
// disconnect handling. Orderly closes and context cancellation end the loop
// without an error; anything else is surfaced to the caller.
func receiveCloseCode(err error) (int, error) {
	var ce *CloseError
	switch {
	case errors.As(err, &ce):
		return ce.Code, nil
	case errors.Is(err, io.EOF):
		return CloseNormalClosure, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Server-initiated shutdown: 1001 "going away" per RFC 6455.
		return 1001, nil
	default:
		return 1006, err
	}
}
