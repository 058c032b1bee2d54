package rooms

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const defaultFanout = 64

// Manager tracks live connections and their room membership, and fans
// messages out to rooms. It is safe for concurrent use: the backend guards
// its own maps, and broadcast reads a membership snapshot.
type Manager struct {
	backend Backend
	logger  *zap.Logger
	fanout  int64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithBackend substitutes the storage backend. The default is an in-process
// LocalBackend.
func WithBackend(b Backend) ManagerOption {
	return func(m *Manager) {
		m.backend = b
	}
}

// WithLogger sets the logger used for delivery failures. The default
// discards everything.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithFanout bounds the number of concurrent sends during one broadcast.
func WithFanout(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.fanout = int64(n)
		}
	}
}

// NewManager returns a manager over the given options.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		logger: zap.NewNop(),
		fanout: defaultFanout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.backend == nil {
		m.backend = NewLocalBackend()
	}
	return m
}

// Backend returns the manager's storage backend.
func (m *Manager) Backend() Backend {
	return m.backend
}

// Add registers a connection under id.
func (m *Manager) Add(ctx context.Context, id string, conn Conn) error {
	return m.backend.Add(ctx, id, conn)
}

// Remove deregisters the connection and evicts it from every room.
func (m *Manager) Remove(ctx context.Context, id string) error {
	return m.backend.Remove(ctx, id)
}

// Join adds the connection to room. Idempotent.
func (m *Manager) Join(ctx context.Context, id, room string) error {
	return m.backend.Join(ctx, id, room)
}

// Leave removes the connection from room. Idempotent.
func (m *Manager) Leave(ctx context.Context, id, room string) error {
	return m.backend.Leave(ctx, id, room)
}

// Send delivers message to a single connection. It fails with
// ErrConnectionClosed when id is unknown.
func (m *Manager) Send(ctx context.Context, id string, message []byte) error {
	conn, err := m.backend.Lookup(ctx, id)
	if err != nil {
		return err
	}
	return conn.Send(ctx, message)
}

type broadcastOptions struct {
	exclude map[string]struct{}
	timeout time.Duration
}

// BroadcastOption configures one broadcast.
type BroadcastOption func(*broadcastOptions)

// Exclude skips the given connection IDs.
func Exclude(ids ...string) BroadcastOption {
	return func(o *broadcastOptions) {
		if o.exclude == nil {
			o.exclude = make(map[string]struct{}, len(ids))
		}
		for _, id := range ids {
			o.exclude[id] = struct{}{}
		}
	}
}

// PerRecipientTimeout bounds each individual delivery. A recipient hitting
// the bound fails with ErrBroadcastTimeout without delaying the others.
func PerRecipientTimeout(d time.Duration) BroadcastOption {
	return func(o *broadcastOptions) {
		o.timeout = d
	}
}

// Broadcast sends message to every member of room. Each delivery runs in
// its own goroutine with its own failure boundary: a slow or broken
// recipient is reported in the returned slice (and logged) and never stalls
// delivery to the rest. When the backend spans processes, the message is
// also published for remote delivery.
func (m *Manager) Broadcast(ctx context.Context, room string, message []byte, opts ...BroadcastOption) []SendError {
	var o broadcastOptions
	for _, opt := range opts {
		opt(&o)
	}

	members, err := m.backend.Members(ctx, room)
	if err != nil {
		m.logger.Warn("room membership unavailable",
			zap.String("room", room), zap.Error(err))
		return []SendError{{Err: fmt.Errorf("rooms: listing members of %q: %w", room, err)}}
	}

	sem := semaphore.NewWeighted(m.fanout)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []SendError
	)
	report := func(id string, err error) {
		m.logger.Warn("broadcast delivery failed",
			zap.String("room", room), zap.String("conn", id), zap.Error(err))
		mu.Lock()
		failed = append(failed, SendError{ID: id, Err: err})
		mu.Unlock()
	}

	for _, id := range members {
		if _, skip := o.exclude[id]; skip {
			continue
		}
		conn, err := m.backend.Lookup(ctx, id)
		if err != nil {
			report(id, err)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			report(id, err)
			continue
		}
		wg.Add(1)
		go func(id string, conn Conn) {
			defer wg.Done()
			defer sem.Release(1)

			sctx := ctx
			if o.timeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, o.timeout)
				defer cancel()
			}
			if err := conn.Send(sctx, message); err != nil {
				if errors.Is(err, context.DeadlineExceeded) && sctx.Err() != nil && ctx.Err() == nil {
					err = fmt.Errorf("%w after %s: %v", ErrBroadcastTimeout, o.timeout, err)
				}
				report(id, err)
			}
		}(id, conn)
	}
	wg.Wait()

	if pub, ok := m.backend.(Publisher); ok {
		if err := pub.Publish(ctx, room, message); err != nil {
			m.logger.Warn("broadcast publish failed",
				zap.String("room", room), zap.Error(err))
		}
	}
	return failed
}

// Connections yields the connections currently in room. The membership is
// snapshotted when iteration starts, so concurrent joins and leaves do not
// affect an in-progress iteration; ranging again takes a fresh snapshot.
func (m *Manager) Connections(room string) iter.Seq2[string, Conn] {
	return func(yield func(string, Conn) bool) {
		ctx := context.Background()
		members, err := m.backend.Members(ctx, room)
		if err != nil {
			m.logger.Warn("room membership unavailable",
				zap.String("room", room), zap.Error(err))
			return
		}
		for _, id := range members {
			conn, err := m.backend.Lookup(ctx, id)
			if err != nil {
				continue
			}
			if !yield(id, conn) {
				return
			}
		}
	}
}

// RoomsWithPrefix returns the names of all rooms starting with prefix,
// sorted for deterministic output.
func (m *Manager) RoomsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	names, err := m.backend.Rooms(ctx, prefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
