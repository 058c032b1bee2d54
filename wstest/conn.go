// Package wstest provides an in-memory connection for testing resources,
// routers and room managers without a network transport.
package wstest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vitalvas/pachinko/wsrouter"
)

// ErrConnClosed is returned by Send and Receive after the server side
// closed the connection.
var ErrConnClosed = errors.New("wstest: connection closed")

// Conn is a scripted, in-memory implementation of wsrouter.Conn. Tests push
// inbound frames with Push and inspect outbound frames with Sent. It also
// satisfies the rooms package's Conn interface.
type Conn struct {
	mu        sync.Mutex
	accepted  bool
	closed    bool
	closeCode int
	sent      [][]byte

	// SendDelay makes every Send block for the given duration before
	// delivering, for exercising per-recipient broadcast timeouts.
	SendDelay time.Duration

	inbound    chan []byte
	done       chan struct{}
	peerCode   int
	peerClosed bool
}

// NewConn returns a connection ready to serve.
func NewConn() *Conn {
	return &Conn{
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

// Push queues an inbound frame for Receive. Frames pushed after ClosePeer
// are silently dropped.
func (c *Conn) Push(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peerClosed {
		return
	}
	c.inbound <- frame
}

// PushText queues an inbound text frame.
func (c *Conn) PushText(frame string) {
	c.Push([]byte(frame))
}

// ClosePeer simulates the client performing a close handshake with the
// given code. Pending pushed frames are still delivered first. Calling it
// again is a no-op.
func (c *Conn) ClosePeer(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peerClosed {
		return
	}
	c.peerClosed = true
	c.peerCode = code
	close(c.inbound)
}

// Accept records that the server completed the handshake.
func (c *Conn) Accept(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.accepted = true
	return nil
}

// Close records the server-side close. Only the first call's code is kept.
func (c *Conn) Close(code int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeCode = code
	close(c.done)
	return nil
}

// Send records an outbound frame. It honors ctx and SendDelay.
func (c *Conn) Send(ctx context.Context, message []byte) error {
	if c.SendDelay > 0 {
		timer := time.NewTimer(c.SendDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	frame := make([]byte, len(message))
	copy(frame, message)
	c.sent = append(c.sent, frame)
	return nil
}

// Receive returns the next pushed frame. After ClosePeer it returns a
// *wsrouter.CloseError with the peer's code; after a server-side Close it
// returns ErrConnClosed.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrConnClosed
	case frame, ok := <-c.inbound:
		if !ok {
			c.mu.Lock()
			code := c.peerCode
			c.mu.Unlock()
			if code == 0 {
				code = wsrouter.CloseNormalClosure
			}
			return nil, &wsrouter.CloseError{Code: code}
		}
		return frame, nil
	}
}

// Sent returns a copy of all recorded outbound frames.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentStrings returns the recorded outbound frames as strings.
func (c *Conn) SentStrings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, frame := range c.sent {
		out[i] = string(frame)
	}
	return out
}

// Accepted reports whether the server accepted the connection.
func (c *Conn) Accepted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accepted
}

// Closed reports whether the server closed the connection.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseCode returns the code from the first server-side Close.
func (c *Conn) CloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}
