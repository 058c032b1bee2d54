package wsrouter

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopHandler(context.Context, Conn, json.RawMessage) error {
	return nil
}

func TestRegistryHandle(t *testing.T) {
	t.Run("duplicate tag panics", func(t *testing.T) {
		reg := NewRegistry()
		reg.Handle("ping", nopHandler)

		defer func() {
			recovered := recover()
			require.NotNil(t, recovered)
			dup, ok := recovered.(*DuplicateHandlerError)
			require.True(t, ok)
			assert.Equal(t, "ping", dup.Tag)
		}()
		reg.Handle("ping", nopHandler)
	})

	t.Run("nil handler panics", func(t *testing.T) {
		reg := NewRegistry()
		assert.Panics(t, func() {
			reg.Handle("ping", nil)
		})
	})

	t.Run("frozen registry panics", func(t *testing.T) {
		reg := NewRegistry()
		reg.Handle("ping", nopHandler)

		_, ok := reg.handler("ping")
		require.True(t, ok)

		assert.PanicsWithError(t, "wsrouter: handler registry is frozen: cannot register \"late\"", func() {
			reg.Handle("late", nopHandler)
		})
	})
}

func TestRegistryConcurrentLookup(t *testing.T) {
	// One registry is shared by every connection of a resource type, and
	// each connection dispatches on its own goroutine.
	reg := NewRegistry()
	reg.Handle("ping", nopHandler)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h, ok := reg.handler("ping")
				assert.True(t, ok)
				assert.NotNil(t, h)
			}
		}()
	}
	wg.Wait()
}

func TestRegistryInherit(t *testing.T) {
	parent := NewRegistry()
	parent.Handle("ping", nopHandler)

	child := Inherit(parent)
	assert.Equal(t, 1, child.Len())

	// Registering on the child must not leak into the parent, and the
	// parent is frozen by the snapshot.
	child.Handle("pong", nopHandler)
	assert.Equal(t, 1, parent.Len())
	assert.Equal(t, 2, child.Len())

	assert.Panics(t, func() {
		parent.Handle("pong", nopHandler)
	})

	t.Run("nil parent", func(t *testing.T) {
		reg := Inherit(nil)
		assert.Equal(t, 0, reg.Len())
	})
}

func TestOn(t *testing.T) {
	type payload struct {
		Text string `json:"text"`
	}

	t.Run("decodes typed payload", func(t *testing.T) {
		var got *payload
		h := On(func(_ context.Context, _ Conn, p *payload) error {
			got = p
			return nil
		})

		err := h(context.Background(), nil, json.RawMessage(`{"text":"hi"}`))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "hi", got.Text)
	})

	t.Run("strict by default", func(t *testing.T) {
		h := On(func(_ context.Context, _ Conn, _ *payload) error {
			t.Fatal("handler must not run on decode failure")
			return nil
		})

		err := h(context.Background(), nil, json.RawMessage(`{"text":"hi","extra":1}`))
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("lax accepts unknown fields", func(t *testing.T) {
		var got *payload
		h := On(func(_ context.Context, _ Conn, p *payload) error {
			got = p
			return nil
		}, Lax())

		err := h(context.Background(), nil, json.RawMessage(`{"text":"hi","extra":1}`))
		require.NoError(t, err)
		assert.Equal(t, "hi", got.Text)
	})

	t.Run("trailing data rejected", func(t *testing.T) {
		h := On(func(_ context.Context, _ Conn, _ *payload) error {
			return nil
		})

		err := h(context.Background(), nil, json.RawMessage(`{"text":"hi"} {}`))
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("missing payload passes nil", func(t *testing.T) {
		called := false
		h := On(func(_ context.Context, _ Conn, p *payload) error {
			called = true
			assert.Nil(t, p)
			return nil
		})

		require.NoError(t, h(context.Background(), nil, nil))
		require.NoError(t, h(context.Background(), nil, json.RawMessage(`null`)))
		assert.True(t, called)
	})
}

func TestCanonicalTag(t *testing.T) {
	cases := map[string]string{
		"sendMessage":       "send_message",
		"SendMessage":       "send_message",
		"send-message":      "send_message",
		"send_message":      "send_message",
		"send message":      "send_message",
		"HTTPStatus":        "http_status",
		"parseHTTPResponse": "parse_http_response",
		"v2Upgrade":         "v2_upgrade",
		"ping":              "ping",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, canonicalTag(in), "canonicalTag(%q)", in)
	}
}
