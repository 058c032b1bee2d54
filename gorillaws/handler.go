package gorillaws

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vitalvas/pachinko/rooms"
	"github.com/vitalvas/pachinko/wsrouter"
)

// Handler is an http.Handler that upgrades requests to WebSocket
// connections and hands them to a router.
type Handler struct {
	router   *wsrouter.Router
	manager  *rooms.Manager
	logger   *zap.Logger
	cfg      Config
	upgrader websocket.Upgrader
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithManager registers every accepted connection with the given room
// manager for its lifetime, keyed by its connection ID.
func WithManager(m *rooms.Manager) HandlerOption {
	return func(h *Handler) {
		h.manager = m
	}
}

// WithLogger sets the handler logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithConfig replaces the default transport configuration.
func WithConfig(cfg Config) HandlerOption {
	return func(h *Handler) {
		h.cfg = cfg
	}
}

// WithCheckOrigin overrides the upgrader origin check. The default rejects
// cross-origin requests.
func WithCheckOrigin(fn func(*http.Request) bool) HandlerOption {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHandler builds a Handler serving the given router.
func NewHandler(router *wsrouter.Router, opts ...HandlerOption) *Handler {
	h := &Handler{
		router: router,
		logger: zap.NewNop(),
		cfg:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.upgrader.ReadBufferSize = h.cfg.ReadBufferSize
	h.upgrader.WriteBufferSize = h.cfg.WriteBufferSize
	h.upgrader.HandshakeTimeout = h.cfg.HandshakeTimeout.std()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.router.MatchPath(r.URL.Path) {
		http.NotFound(w, r)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Warn("websocket upgrade failed",
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		return
	}

	id := uuid.NewString()
	c := newConn(ws, h.cfg)
	defer c.Close(wsrouter.CloseNormalClosure)

	ctx := r.Context()

	if h.manager != nil {
		if err := h.manager.Add(ctx, id, c); err != nil {
			h.logger.Error("registering connection", zap.String("connection_id", id), zap.Error(err))
			_ = c.Close(wsrouter.CloseInternalError)
			return
		}
		// The request context is done by the time the deferred remove
		// runs, so detach it.
		defer func() {
			if err := h.manager.Remove(context.Background(), id); err != nil {
				h.logger.Warn("removing connection", zap.String("connection_id", id), zap.Error(err))
			}
		}()
	}

	req := &wsrouter.Request{
		Path:         r.URL.Path,
		Header:       r.Header,
		RemoteAddr:   r.RemoteAddr,
		ConnectionID: id,
	}

	if err := h.router.ServeConn(ctx, req, c); err != nil {
		h.logger.Warn("connection ended with error",
			zap.String("connection_id", id),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
}
