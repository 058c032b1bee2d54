package wsrouter

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateRoute is returned when a route's path pattern or name
	// collides with one that is already registered.
	ErrDuplicateRoute = errors.New("wsrouter: duplicate route")

	// ErrUnknownRoute is returned by URLFor for an unregistered route name.
	ErrUnknownRoute = errors.New("wsrouter: unknown route name")

	// ErrMissingParameter is returned by URLFor when a required path
	// parameter is absent from the supplied params.
	ErrMissingParameter = errors.New("wsrouter: missing route parameter")

	// ErrRouteNotFound is returned when no route chain matches a
	// connection target.
	ErrRouteNotFound = errors.New("wsrouter: no matching route")

	// ErrNoHandler is returned by Dispatch when a message carries a valid
	// tag but neither an explicit handler nor a conventional method
	// resolves for it.
	ErrNoHandler = errors.New("wsrouter: no handler for message")

	// ErrRegistryFrozen is the panic value cause when registering a
	// handler on a registry that has already been put into service.
	ErrRegistryFrozen = errors.New("wsrouter: handler registry is frozen")
)

// DuplicateHandlerError is the panic value raised when two handlers are
// registered for the same message tag on one registry. Handler registration
// happens at program initialization, so a duplicate is a programming error
// and surfaces at startup rather than at runtime.
type DuplicateHandlerError struct {
	Tag string
}

func (e *DuplicateHandlerError) Error() string {
	return fmt.Sprintf("wsrouter: duplicate handler for message tag %q", e.Tag)
}

// ValidationError reports that a message or its payload failed to decode
// against the expected shape. Dispatch recovers it locally by invoking the
// resource's OnUnhandled; it never terminates the connection.
type ValidationError struct {
	Tag string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("wsrouter: message validation failed: %v", e.Err)
	}
	return fmt.Sprintf("wsrouter: payload validation failed for tag %q: %v", e.Tag, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// HookError wraps an error raised inside a lifecycle hook. A HookError from
// a before hook aborts the enclosing lifecycle action.
type HookError struct {
	Event HookEvent
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("wsrouter: hook failed during %s: %v", e.Event, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
