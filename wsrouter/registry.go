package wsrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"unicode"
)

// MessageHandler processes one decoded inbound message. The payload is the
// raw JSON of the envelope's payload field (or the whole message for inline
// envelopes); typed handlers built with On decode it before invocation.
//
// Returning a *ValidationError routes the message to OnUnhandled instead of
// failing the connection; any other error propagates as a handler failure.
type MessageHandler func(ctx context.Context, conn Conn, payload json.RawMessage) error

// Registry maps message tags to handlers for one resource type. A registry
// is built at program initialization, frozen on first use by the dispatcher,
// and shared by every instance of the resource type. Derived resource types
// get their own copy via Inherit, so registering on a derived registry never
// mutates the one it inherited from.
type Registry struct {
	entries map[string]MessageHandler
	// frozen flips exactly once, but lookups happen on every connection's
	// dispatch goroutine, so it must be an atomic.
	frozen atomic.Bool
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]MessageHandler)}
}

// Inherit returns a new registry seeded with a snapshot of parent's
// handlers. The parent is frozen so later mutation of either side cannot
// leak into the other.
func Inherit(parent *Registry) *Registry {
	r := NewRegistry()
	if parent != nil {
		parent.freeze()
		for tag, h := range parent.entries {
			r.entries[tag] = h
		}
	}
	return r
}

// Handle registers h for tag. Registering a duplicate tag, or registering on
// a registry already in service, panics: both are definition-time errors and
// must surface at startup, never at runtime.
func (r *Registry) Handle(tag string, h MessageHandler) {
	if r.frozen.Load() {
		panic(fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, tag))
	}
	if h == nil {
		panic(fmt.Errorf("wsrouter: nil handler for message tag %q", tag))
	}
	if _, exists := r.entries[tag]; exists {
		panic(&DuplicateHandlerError{Tag: tag})
	}
	r.entries[tag] = h
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	return len(r.entries)
}

func (r *Registry) freeze() {
	r.frozen.Store(true)
}

// handler returns the explicit handler for tag, freezing the registry on
// first lookup.
func (r *Registry) handler(tag string) (MessageHandler, bool) {
	r.freeze()
	h, ok := r.entries[tag]
	return h, ok
}

type handlerOptions struct {
	strict bool
}

// HandlerOption configures payload decoding for a typed handler.
type HandlerOption func(*handlerOptions)

// Lax disables the rejection of unknown payload fields for one handler.
// Strict decoding is the default.
func Lax() HandlerOption {
	return func(o *handlerOptions) {
		o.strict = false
	}
}

// On adapts a typed handler into a MessageHandler. The payload is decoded
// into T before invocation; decode failures become a *ValidationError and
// are recovered through OnUnhandled. A missing or null payload invokes fn
// with a nil pointer.
func On[T any](fn func(ctx context.Context, conn Conn, payload *T) error, opts ...HandlerOption) MessageHandler {
	o := handlerOptions{strict: true}
	for _, opt := range opts {
		opt(&o)
	}
	return func(ctx context.Context, conn Conn, raw json.RawMessage) error {
		if isEmptyPayload(raw) {
			return fn(ctx, conn, nil)
		}
		payload := new(T)
		if err := decodePayload(raw, payload, o.strict); err != nil {
			return &ValidationError{Err: err}
		}
		return fn(ctx, conn, payload)
	}
}

// Raw adapts a handler that wants the undecoded payload bytes.
func Raw(fn func(ctx context.Context, conn Conn, payload json.RawMessage) error) MessageHandler {
	return MessageHandler(fn)
}

func isEmptyPayload(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decodePayload decodes raw into v. Strict mode rejects unknown fields and
// trailing data.
func decodePayload(raw json.RawMessage, v any, strict bool) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return err
	}
	if strict && dec.More() {
		return errors.New("trailing data after payload")
	}
	return nil
}

// canonicalTag converts a message tag to its canonical lower-case,
// underscore-separated form, splitting at case transitions and
// non-alphanumeric boundaries. "sendMessage", "SendMessage", "send-message"
// and "send_message" all canonicalize to "send_message".
func canonicalTag(s string) string {
	runes := []rune(s)
	var b []rune
	var prev rune
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			if len(b) > 0 && prev != '_' {
				b = append(b, '_')
				prev = '_'
			}
			continue
		}
		if unicode.IsUpper(r) && len(b) > 0 && prev != '_' {
			boundary := unicode.IsLower(prev) || unicode.IsDigit(prev)
			if !boundary && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
				// Acronym followed by a capitalized word, as in
				// "HTTPStatus" -> "http_status".
				boundary = true
			}
			if boundary {
				b = append(b, '_')
			}
		}
		b = append(b, unicode.ToLower(r))
		prev = r
	}
	return string(b)
}
