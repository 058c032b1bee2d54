package wsrouter

import (
	"context"
	"fmt"
	"net/http"
)

// WebSocket close codes per RFC 6455, section 7.4.1.
const (
	CloseNormalClosure   = 1000
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// Conn is the transport boundary the router operates against. Implementations
// own the byte-level framing; the router only ever exchanges whole messages.
//
// Accept completes the handshake after OnConnect approves the connection.
// Transports whose handshake cannot be deferred (for example an HTTP upgrade
// that responds immediately) may implement Accept as a no-op.
type Conn interface {
	Accept(ctx context.Context) error
	Close(code int) error
	Send(ctx context.Context, message []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

// CloseError is returned from Conn.Receive when the peer performed an
// orderly close handshake. The router treats it as a clean disconnect.
type CloseError struct {
	Code int
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("wsrouter: connection closed with code %d", e.Code)
}

// Request carries the handshake metadata for a connection attempt.
type Request struct {
	// Path is the connection target, relative to the server root.
	Path string

	// Header holds the handshake request headers, if the transport has any.
	Header http.Header

	// RemoteAddr is the network address of the client, if known.
	RemoteAddr string

	// ConnectionID is the identifier the transport assigned to this
	// connection. Resources typically use it for room membership.
	ConnectionID string
}

// Params holds the path parameters matched for a connection attempt. For a
// nested resource chain the maps of every level are merged root to leaf,
// with a deeper level's parameter shadowing a same-named ancestor value.
type Params map[string]string

func (p Params) clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Context carries values handed to resource factories: router-provided
// dependencies, per-route statics, and the parent's child context when
// resolving a nested chain.
type Context map[string]any

// mergeContexts overlays the given contexts left to right into a new map.
// Later maps win on key collision. Nil maps are skipped.
func mergeContexts(contexts ...Context) Context {
	out := make(Context)
	for _, c := range contexts {
		for k, v := range c {
			out[k] = v
		}
	}
	return out
}
