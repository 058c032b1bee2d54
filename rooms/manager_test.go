package rooms_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/pachinko/rooms"
	"github.com/vitalvas/pachinko/wstest"
)

func addConn(t *testing.T, m *rooms.Manager, id string, roomNames ...string) *wstest.Conn {
	t.Helper()
	ctx := context.Background()
	conn := wstest.NewConn()
	require.NoError(t, m.Add(ctx, id, conn))
	for _, room := range roomNames {
		require.NoError(t, m.Join(ctx, id, room))
	}
	return conn
}

func TestManagerSend(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to a known connection", func(t *testing.T) {
		m := rooms.NewManager()
		conn := addConn(t, m, "a")

		require.NoError(t, m.Send(ctx, "a", []byte("hello")))
		assert.Equal(t, []string{"hello"}, conn.SentStrings())
	})

	t.Run("unknown connection", func(t *testing.T) {
		m := rooms.NewManager()
		err := m.Send(ctx, "ghost", []byte("hello"))
		assert.ErrorIs(t, err, rooms.ErrConnectionClosed)
	})

	t.Run("removed connection", func(t *testing.T) {
		m := rooms.NewManager()
		addConn(t, m, "a")
		require.NoError(t, m.Remove(ctx, "a"))

		err := m.Send(ctx, "a", []byte("hello"))
		assert.ErrorIs(t, err, rooms.ErrConnectionClosed)
	})
}

func TestManagerBroadcast(t *testing.T) {
	ctx := context.Background()

	t.Run("reaches every member", func(t *testing.T) {
		m := rooms.NewManager()
		a := addConn(t, m, "a", "lobby")
		b := addConn(t, m, "b", "lobby")
		c := addConn(t, m, "c", "other")

		failed := m.Broadcast(ctx, "lobby", []byte("hi"))
		assert.Empty(t, failed)
		assert.Equal(t, []string{"hi"}, a.SentStrings())
		assert.Equal(t, []string{"hi"}, b.SentStrings())
		assert.Empty(t, c.SentStrings())
	})

	t.Run("empty room is a no-op", func(t *testing.T) {
		m := rooms.NewManager()
		assert.Empty(t, m.Broadcast(ctx, "nobody-home", []byte("hi")))
	})

	t.Run("excluded recipients are skipped", func(t *testing.T) {
		m := rooms.NewManager()
		a := addConn(t, m, "a", "lobby")
		b := addConn(t, m, "b", "lobby")

		failed := m.Broadcast(ctx, "lobby", []byte("hi"), rooms.Exclude("a"))
		assert.Empty(t, failed)
		assert.Empty(t, a.SentStrings())
		assert.Equal(t, []string{"hi"}, b.SentStrings())
	})

	t.Run("closed recipient is reported, not fatal", func(t *testing.T) {
		m := rooms.NewManager()
		a := addConn(t, m, "a", "lobby")
		b := addConn(t, m, "b", "lobby")
		require.NoError(t, a.Close(1000))

		failed := m.Broadcast(ctx, "lobby", []byte("hi"))
		require.Len(t, failed, 1)
		assert.Equal(t, "a", failed[0].ID)
		assert.Equal(t, []string{"hi"}, b.SentStrings())
	})

	t.Run("slow recipient times out without stalling the rest", func(t *testing.T) {
		m := rooms.NewManager()
		slow := addConn(t, m, "slow", "lobby")
		slow.SendDelay = 500 * time.Millisecond
		fast := addConn(t, m, "fast", "lobby")

		start := time.Now()
		failed := m.Broadcast(ctx, "lobby", []byte("hi"),
			rooms.PerRecipientTimeout(30*time.Millisecond))
		elapsed := time.Since(start)

		require.Len(t, failed, 1)
		assert.Equal(t, "slow", failed[0].ID)
		assert.ErrorIs(t, failed[0].Err, rooms.ErrBroadcastTimeout)
		assert.Equal(t, []string{"hi"}, fast.SentStrings())
		assert.Empty(t, slow.SentStrings())
		assert.Less(t, elapsed, 400*time.Millisecond)
	})
}

func TestManagerConnections(t *testing.T) {
	t.Run("yields current members", func(t *testing.T) {
		m := rooms.NewManager()
		addConn(t, m, "a", "lobby")
		addConn(t, m, "b", "lobby")

		seen := make(map[string]bool)
		for id, conn := range m.Connections("lobby") {
			require.NotNil(t, conn)
			seen[id] = true
		}
		assert.Equal(t, map[string]bool{"a": true, "b": true}, seen)
	})

	t.Run("empty room yields nothing", func(t *testing.T) {
		m := rooms.NewManager()
		count := 0
		for range m.Connections("empty") {
			count++
		}
		assert.Zero(t, count)
	})

	t.Run("membership is snapshotted at iteration start", func(t *testing.T) {
		m := rooms.NewManager()
		addConn(t, m, "a", "lobby")
		addConn(t, m, "b", "lobby")

		var seen []string
		for id := range m.Connections("lobby") {
			// Joining mid-iteration must not grow this pass.
			addConn(t, m, "late-"+id, "lobby")
			seen = append(seen, id)
		}
		assert.Len(t, seen, 2)

		// A fresh range sees the new members.
		count := 0
		for range m.Connections("lobby") {
			count++
		}
		assert.Equal(t, 4, count)
	})

	t.Run("early break stops iteration", func(t *testing.T) {
		m := rooms.NewManager()
		addConn(t, m, "a", "lobby")
		addConn(t, m, "b", "lobby")

		count := 0
		for range m.Connections("lobby") {
			count++
			break
		}
		assert.Equal(t, 1, count)
	})
}

func TestManagerMembership(t *testing.T) {
	ctx := context.Background()

	t.Run("join requires a registered connection", func(t *testing.T) {
		m := rooms.NewManager()
		assert.ErrorIs(t, m.Join(ctx, "ghost", "lobby"), rooms.ErrConnectionClosed)
	})

	t.Run("join and leave are idempotent", func(t *testing.T) {
		m := rooms.NewManager()
		conn := addConn(t, m, "a", "lobby")
		require.NoError(t, m.Join(ctx, "a", "lobby"))

		failed := m.Broadcast(ctx, "lobby", []byte("once"))
		assert.Empty(t, failed)
		assert.Equal(t, []string{"once"}, conn.SentStrings())

		require.NoError(t, m.Leave(ctx, "a", "lobby"))
		require.NoError(t, m.Leave(ctx, "a", "lobby"))
		assert.Empty(t, m.Broadcast(ctx, "lobby", []byte("twice")))
		assert.Equal(t, []string{"once"}, conn.SentStrings())
	})

	t.Run("remove evicts from every room", func(t *testing.T) {
		m := rooms.NewManager()
		conn := addConn(t, m, "a", "game:1", "game:2")
		require.NoError(t, m.Remove(ctx, "a"))

		assert.Empty(t, m.Broadcast(ctx, "game:1", []byte("x")))
		assert.Empty(t, m.Broadcast(ctx, "game:2", []byte("x")))
		assert.Empty(t, conn.SentStrings())

		names, err := m.RoomsWithPrefix(ctx, "game:")
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestRoomsWithPrefix(t *testing.T) {
	ctx := context.Background()
	m := rooms.NewManager()
	addConn(t, m, "a", "game:2", "game:1", "chat:general")

	t.Run("filters and sorts", func(t *testing.T) {
		names, err := m.RoomsWithPrefix(ctx, "game:")
		require.NoError(t, err)
		assert.Equal(t, []string{"game:1", "game:2"}, names)
	})

	t.Run("empty prefix lists all rooms", func(t *testing.T) {
		names, err := m.RoomsWithPrefix(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"chat:general", "game:1", "game:2"}, names)
	})

	t.Run("no match", func(t *testing.T) {
		names, err := m.RoomsWithPrefix(ctx, "zzz")
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}
