package gorillaws

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vitalvas/pachinko/wsrouter"
)

// conn adapts a *websocket.Conn to the wsrouter.Conn interface. Writes are
// serialized because gorilla permits at most one concurrent writer.
type conn struct {
	ws  *websocket.Conn
	cfg Config

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(ws *websocket.Conn, cfg Config) *conn {
	c := &conn{
		ws:     ws,
		cfg:    cfg,
		closed: make(chan struct{}),
	}
	if cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(cfg.MaxMessageSize)
	}
	if cfg.PingInterval > 0 {
		wait := cfg.PongWait.std()
		_ = ws.SetReadDeadline(time.Now().Add(wait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wait))
		})
		go c.pingLoop()
	}
	return c
}

// Accept is a no-op: the HTTP upgrade already completed the handshake
// before the connection reached the router.
func (c *conn) Accept(ctx context.Context) error {
	return ctx.Err()
}

func (c *conn) Send(ctx context.Context, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout.std())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
		// Prefer the context error so callers can distinguish a
		// per-recipient timeout from a broken socket.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Receive blocks inside gorilla's ReadMessage, which takes no context: ctx
// is consulted between reads only. A cancellation during a blocked read is
// observed once the keepalive read deadline (PongWait) expires or the
// socket is closed.
func (c *conn) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return nil, &wsrouter.CloseError{Code: closeErr.Code}
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, io.EOF
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return data, nil
}

func (c *conn) Close(code int) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		message := websocket.FormatCloseMessage(code, "")
		deadline := time.Now().Add(c.cfg.WriteTimeout.std())

		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, message, deadline)
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval.std())
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout.std())
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, deadline)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
