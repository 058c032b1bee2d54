package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope describes the wire shape of inbound messages: an object carrying
// a discriminator tag and a payload. The field names are configuration, not
// protocol. An empty PayloadField means the whole message object is the
// payload (an inline tagged union).
type Envelope struct {
	TagField     string
	PayloadField string
}

// DefaultEnvelope is the {"type": ..., "payload": ...} shape.
var DefaultEnvelope = Envelope{TagField: "type", PayloadField: "payload"}

// Dispatch decodes raw against env and routes it to a handler on target.
// Resolution order:
//
//  1. decode the envelope; on failure, OnUnhandled runs and a
//     *ValidationError is returned
//  2. an explicitly registered handler for the tag is authoritative
//  3. otherwise a conventional OnXxx method matching the canonicalized tag
//  4. otherwise OnUnhandled runs and ErrNoHandler is returned
//
// A *ValidationError returned by the resolved handler (a payload decode
// failure) is likewise recovered through OnUnhandled. Any other handler
// error is returned as-is and is the caller's to act on.
func Dispatch(ctx context.Context, target Resource, env Envelope, conn Conn, raw []byte) error {
	if env.TagField == "" {
		env.TagField = DefaultEnvelope.TagField
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return unhandled(ctx, target, conn, raw, &ValidationError{Err: err})
	}

	tagRaw, ok := fields[env.TagField]
	if !ok {
		err := &ValidationError{Err: fmt.Errorf("missing %q field", env.TagField)}
		return unhandled(ctx, target, conn, raw, err)
	}
	var tag string
	if err := json.Unmarshal(tagRaw, &tag); err != nil {
		return unhandled(ctx, target, conn, raw, &ValidationError{Err: fmt.Errorf("invalid %q field: %w", env.TagField, err)})
	}

	payload := json.RawMessage(raw)
	if env.PayloadField != "" {
		payload = fields[env.PayloadField]
	}

	handler, ok := lookupHandler(target, tag)
	if !ok {
		return unhandled(ctx, target, conn, raw, fmt.Errorf("%w: tag %q", ErrNoHandler, tag))
	}

	err := handler(ctx, conn, payload)
	var verr *ValidationError
	if errors.As(err, &verr) {
		if verr.Tag == "" {
			verr.Tag = tag
		}
		return unhandled(ctx, target, conn, raw, err)
	}
	return err
}

// lookupHandler resolves the handler for tag: explicit registration first,
// then naming convention.
func lookupHandler(target Resource, tag string) (MessageHandler, bool) {
	if hp, ok := target.(handlerProvider); ok {
		if reg := hp.Handlers(); reg != nil {
			if h, ok := reg.handler(tag); ok {
				return h, true
			}
		}
	}
	return conventionalHandler(target, tag)
}

// unhandled routes raw to the resource's catch-all and reports cause to the
// caller. An error from OnUnhandled itself is joined so both remain
// observable.
func unhandled(ctx context.Context, target Resource, conn Conn, raw []byte, cause error) error {
	if err := target.OnUnhandled(ctx, conn, raw); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Recoverable reports whether a Dispatch error is one the connection loop
// should absorb rather than fail the connection on: decode failures and
// unroutable tags, both already recovered through OnUnhandled.
func Recoverable(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) || errors.Is(err, ErrNoHandler)
}
