package wsrouter

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// Conventional dispatch resolves a handler by method name when no explicit
// registration exists: a message tagged "sendMessage" maps to a method named
// OnSendMessage. Candidate methods must have one of the signatures
//
//	func (r *R) OnX(ctx context.Context, conn Conn, payload *P) error
//	func (r *R) OnX(ctx context.Context, conn Conn, payload json.RawMessage) error
//
// where P is a struct. Typed payloads are decoded strictly. The tag-to-name
// table is built by reflection once per resource type and cached, so the
// per-message cost is a single map lookup.

type convMethod struct {
	index   int
	payload reflect.Type // pointer-to-struct type, nil for raw payloads
}

var convTables sync.Map // reflect.Type -> map[string]convMethod

var (
	ctxType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	connType = reflect.TypeOf((*Conn)(nil)).Elem()
	errType  = reflect.TypeOf((*error)(nil)).Elem()
	rawType  = reflect.TypeOf(json.RawMessage(nil))
)

// lifecycle methods and the resource surface are never dispatch targets.
var reservedMethods = map[string]bool{
	"OnConnect":    true,
	"OnDisconnect": true,
	"OnUnhandled":  true,
}

// conventionalHandler resolves a handler for tag on target by naming
// convention, or reports that none exists.
func conventionalHandler(target Resource, tag string) (MessageHandler, bool) {
	t := reflect.TypeOf(target)
	m, ok := conventionalTable(t)[canonicalTag(tag)]
	if !ok {
		return nil, false
	}
	method := reflect.ValueOf(target).Method(m.index)

	return func(ctx context.Context, conn Conn, raw json.RawMessage) error {
		args := make([]reflect.Value, 3)
		args[0] = reflect.ValueOf(ctx)
		if conn != nil {
			args[1] = reflect.ValueOf(conn)
		} else {
			args[1] = reflect.Zero(connType)
		}

		if m.payload == nil {
			args[2] = reflect.ValueOf(raw)
			if len(raw) == 0 {
				args[2] = reflect.Zero(rawType)
			}
		} else if isEmptyPayload(raw) {
			args[2] = reflect.Zero(m.payload)
		} else {
			payload := reflect.New(m.payload.Elem())
			if err := decodePayload(raw, payload.Interface(), true); err != nil {
				return &ValidationError{Err: err}
			}
			args[2] = payload
		}

		out := method.Call(args)
		if err := out[0].Interface(); err != nil {
			return err.(error)
		}
		return nil
	}, true
}

// conventionalTable returns the canonical-tag table for t, building and
// caching it on first use.
func conventionalTable(t reflect.Type) map[string]convMethod {
	if cached, ok := convTables.Load(t); ok {
		return cached.(map[string]convMethod)
	}

	table := make(map[string]convMethod)
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !strings.HasPrefix(m.Name, "On") || len(m.Name) == 2 || reservedMethods[m.Name] {
			continue
		}
		// m.Type includes the receiver at In(0).
		ft := m.Type
		if ft.NumIn() != 4 || ft.NumOut() != 1 {
			continue
		}
		if ft.In(1) != ctxType || ft.In(2) != connType || ft.Out(0) != errType {
			continue
		}
		var payload reflect.Type
		switch pt := ft.In(3); {
		case pt == rawType:
			payload = nil
		case pt.Kind() == reflect.Pointer && pt.Elem().Kind() == reflect.Struct:
			payload = pt
		default:
			continue
		}
		table[canonicalTag(m.Name[2:])] = convMethod{index: i, payload: payload}
	}

	actual, _ := convTables.LoadOrStore(t, table)
	return actual.(map[string]convMethod)
}
