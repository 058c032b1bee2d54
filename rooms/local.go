package rooms

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// LocalBackend tracks connections and room membership in process-local maps
// guarded by a read/write lock. Readers always see a consistent snapshot:
// Members copies the member set under the lock, so an in-progress iteration
// is unaffected by concurrent joins and leaves.
type LocalBackend struct {
	mu sync.RWMutex

	conns map[string]Conn
	// rooms maps a room name to its member connection IDs.
	rooms map[string]map[string]struct{}
	// joined is the reverse index used to evict a removed connection from
	// every room it belongs to.
	joined map[string]map[string]struct{}
}

// NewLocalBackend returns an empty in-process backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		conns:  make(map[string]Conn),
		rooms:  make(map[string]map[string]struct{}),
		joined: make(map[string]map[string]struct{}),
	}
}

// Add registers a connection under id, replacing any previous registration.
func (b *LocalBackend) Add(_ context.Context, id string, conn Conn) error {
	if conn == nil {
		return fmt.Errorf("rooms: nil conn for %q", id)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[id] = conn
	return nil
}

// Remove deregisters the connection and evicts it from every room. Removing
// an unknown connection is a no-op.
func (b *LocalBackend) Remove(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns, id)
	for room := range b.joined[id] {
		b.dropMember(room, id)
	}
	delete(b.joined, id)
	return nil
}

// dropMember removes id from room, deleting the room once empty. Callers
// hold the write lock.
func (b *LocalBackend) dropMember(room, id string) {
	members, ok := b.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(b.rooms, room)
	}
}

// Lookup returns the connection registered under id.
func (b *LocalBackend) Lookup(_ context.Context, id string) (Conn, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	conn, ok := b.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrConnectionClosed, id)
	}
	return conn, nil
}

// Join adds the connection to room. Joining twice is a no-op; joining with
// an unregistered connection fails with ErrConnectionClosed.
func (b *LocalBackend) Join(_ context.Context, id, room string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.conns[id]; !ok {
		return fmt.Errorf("%w: %q", ErrConnectionClosed, id)
	}
	members, ok := b.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		b.rooms[room] = members
	}
	members[id] = struct{}{}

	joined, ok := b.joined[id]
	if !ok {
		joined = make(map[string]struct{})
		b.joined[id] = joined
	}
	joined[room] = struct{}{}
	return nil
}

// Leave removes the connection from room. Leaving a room it is not in is a
// no-op.
func (b *LocalBackend) Leave(_ context.Context, id, room string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropMember(room, id)
	if joined, ok := b.joined[id]; ok {
		delete(joined, room)
	}
	return nil
}

// Members returns a snapshot of the room's member IDs. An unknown room
// yields an empty slice.
func (b *LocalBackend) Members(_ context.Context, room string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	members := b.rooms[room]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out, nil
}

// joinedRooms returns a snapshot of the rooms id is currently in.
func (b *LocalBackend) joinedRooms(id string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	joined := b.joined[id]
	out := make([]string, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	return out
}

// Rooms returns the names of all rooms starting with prefix.
func (b *LocalBackend) Rooms(_ context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []string
	for room := range b.rooms {
		if strings.HasPrefix(room, prefix) {
			out = append(out, room)
		}
	}
	return out, nil
}
