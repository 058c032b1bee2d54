package wsrouter

// State is the per-connection key/value container shared along a resource
// chain. The default is an in-memory map created lazily on first access; a
// parent may substitute any other implementation (for example one backed by
// an external store) through its child context.
//
// A State is owned by a single connection's goroutine and needs no internal
// locking.
type State interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Len() int
}

// NewState returns the default map-backed State.
func NewState() State {
	return make(mapState)
}

type mapState map[string]any

func (s mapState) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

func (s mapState) Set(key string, value any) {
	s[key] = value
}

func (s mapState) Delete(key string) {
	delete(s, key)
}

func (s mapState) Len() int {
	return len(s)
}
