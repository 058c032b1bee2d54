package wsrouter

import (
	"context"
	"fmt"
)

// HookEvent names a lifecycle event hooks can attach to.
type HookEvent string

const (
	BeforeConnect    HookEvent = "before_connect"
	AfterConnect     HookEvent = "after_connect"
	BeforeReceive    HookEvent = "before_receive"
	AfterReceive     HookEvent = "after_receive"
	BeforeDisconnect HookEvent = "before_disconnect"
)

// HookFunc is a lifecycle hook callback. Returning an error from a before
// hook aborts the enclosing action; an error from an after hook replaces
// the surfacing error and skips the remaining after layers.
type HookFunc func(ctx context.Context, hc *HookContext) error

// HookContext is the mutable context threaded through one hook chain
// invocation. Fields are populated according to the event.
type HookContext struct {
	// Event is the lifecycle event being processed.
	Event HookEvent

	// Target is the innermost resource of the connection's chain.
	Target Resource

	// Resource is the owner of the hooks currently executing; nil while
	// global hooks run.
	Resource Resource

	// Request is set for connection events.
	Request *Request

	// Conn is the connection the event concerns.
	Conn Conn

	// Params are the merged path parameters for connection events.
	Params Params

	// Raw is the inbound message for receive events.
	Raw []byte

	// Accepted carries OnConnect's decision into after_connect hooks.
	Accepted bool

	// Err carries a core-action failure into after hooks. An after hook
	// may clear it to suppress the failure or replace it.
	Err error

	// CloseCode is set for disconnect events.
	CloseCode int
}

// Hooks is an ordered registry of lifecycle hooks for one scope: either the
// router (global hooks) or a resource and its descendants.
type Hooks struct {
	registry map[HookEvent][]HookFunc
}

// Add registers fn for event. Hooks run in registration order within their
// scope.
func (h *Hooks) Add(event HookEvent, fn HookFunc) {
	if fn == nil {
		panic(fmt.Sprintf("wsrouter: nil hook for event %s", event))
	}
	if h.registry == nil {
		h.registry = make(map[HookEvent][]HookFunc)
	}
	h.registry[event] = append(h.registry[event], fn)
}

func (h *Hooks) hooks(event HookEvent) []HookFunc {
	if h == nil {
		return nil
	}
	return h.registry[event]
}

// hookLayer is one layer of the onion: its owning resource (nil for the
// global layer) and the hooks registered there.
type hookLayer struct {
	owner Resource
	hooks []HookFunc
}

// hookChain evaluates the layered hook order for one connection's resource
// chain: global, then root to leaf for before events; leaf to root, then
// global for after events. The layer list is explicit and iterated flat, so
// deep chains cost no call-stack depth.
type hookChain struct {
	global *Hooks
	chain  []Resource
}

func (hc *hookChain) layers(event HookEvent) []hookLayer {
	layers := make([]hookLayer, 0, len(hc.chain)+1)
	layers = append(layers, hookLayer{hooks: hc.global.hooks(event)})
	for _, res := range hc.chain {
		var hooks []HookFunc
		if hp, ok := res.(hookProvider); ok {
			hooks = hp.ResourceHooks().hooks(event)
		}
		layers = append(layers, hookLayer{owner: res, hooks: hooks})
	}
	return layers
}

// runBefore executes event's hooks outside-in. The first hook error aborts
// the remainder of the chain and is returned wrapped in a *HookError; the
// triggering action must not run.
func (hc *hookChain) runBefore(ctx context.Context, event HookEvent, hctx *HookContext) error {
	hctx.Event = event
	for _, layer := range hc.layers(event) {
		hctx.Resource = layer.owner
		for _, fn := range layer.hooks {
			if err := fn(ctx, hctx); err != nil {
				hctx.Resource = nil
				return &HookError{Event: event, Err: err}
			}
		}
	}
	hctx.Resource = nil
	return nil
}

// runAfter executes event's hooks inside-out. Each hook observes hctx.Err
// and may clear or replace it; a hook's own error becomes a *HookError and
// skips the remaining layers.
func (hc *hookChain) runAfter(ctx context.Context, event HookEvent, hctx *HookContext) error {
	hctx.Event = event
	layers := hc.layers(event)
	for i := len(layers) - 1; i >= 0; i-- {
		hctx.Resource = layers[i].owner
		for _, fn := range layers[i].hooks {
			if err := fn(ctx, hctx); err != nil {
				hctx.Resource = nil
				return &HookError{Event: event, Err: err}
			}
		}
	}
	hctx.Resource = nil
	return nil
}
