// Package wsrouter routes long-lived, bidirectional connections to stateful
// resource objects and dispatches their inbound messages to typed handlers.
//
// A Router owns a table of compiled path templates. When a connection
// arrives, the matching route's factory builds a Resource for it; nested
// targets such as "/parents/42/child" traverse subroutes registered by the
// parent resource, threading path parameters, shared state and parent
// context down the chain. The router then drives the lifecycle: layered
// before/after hooks, the accept/reject decision, a strictly sequential
// receive loop, and best-effort disconnect handling.
//
// Inbound messages are tagged JSON objects. Dispatch resolves a handler for
// the tag in a fixed order: an explicit Registry entry, then a method named
// by convention (tag "sendMessage" resolves to OnSendMessage), then the
// resource's OnUnhandled catch-all. Payloads decode strictly by default;
// individual handlers can opt out with Lax.
//
// Minimal resource:
//
//	type EchoResource struct {
//	    wsrouter.Base
//	}
//
//	type EchoPayload struct {
//	    Text string `json:"text"`
//	}
//
//	func (r *EchoResource) OnEcho(ctx context.Context, conn wsrouter.Conn, p *EchoPayload) error {
//	    return conn.Send(ctx, []byte(p.Text))
//	}
//
//	router := wsrouter.NewRouter()
//	router.AddRoute("/echo", func(wsrouter.Context) wsrouter.Resource {
//	    return &EchoResource{}
//	})
//
// The transport is abstract: anything implementing Conn can be served. The
// gorillaws package provides an adapter over gorilla/websocket, and wstest
// provides a scripted in-memory implementation for tests.
package wsrouter
