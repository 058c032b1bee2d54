package rooms

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is returned when addressing a connection that
	// is unknown or already deregistered.
	ErrConnectionClosed = errors.New("rooms: connection closed")

	// ErrBroadcastTimeout marks a per-recipient delivery that exceeded
	// its timeout during a broadcast.
	ErrBroadcastTimeout = errors.New("rooms: broadcast send timed out")
)

// Conn is the sending side of a tracked connection. The concrete type is
// whatever the transport hands to Manager.Add.
type Conn interface {
	Send(ctx context.Context, message []byte) error
}

// SendError reports one failed delivery during a broadcast. Failures are
// isolated per recipient; a broadcast never fails as a whole.
type SendError struct {
	// ID is the recipient connection identifier.
	ID string
	// Err is the delivery failure. errors.Is(Err, ErrBroadcastTimeout)
	// reports a per-recipient timeout.
	Err error
}

func (e SendError) Error() string {
	return fmt.Sprintf("rooms: send to %q failed: %v", e.ID, e.Err)
}

func (e SendError) Unwrap() error { return e.Err }

// Backend is the storage interface behind a Manager. The in-process
// LocalBackend is the default; RedisBackend substitutes a distributed one
// without changing caller code.
//
// Members returns the connections deliverable from this process; a backend
// spanning processes reaches the rest through its Publisher side.
type Backend interface {
	Add(ctx context.Context, id string, conn Conn) error
	Remove(ctx context.Context, id string) error
	Lookup(ctx context.Context, id string) (Conn, error)
	Join(ctx context.Context, id, room string) error
	Leave(ctx context.Context, id, room string) error
	Members(ctx context.Context, room string) ([]string, error)
	Rooms(ctx context.Context, prefix string) ([]string, error)
}

// Publisher is implemented by backends that fan a broadcast out to other
// processes. Manager publishes after local delivery when available.
type Publisher interface {
	Publish(ctx context.Context, room string, message []byte) error
}
