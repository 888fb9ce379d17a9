package bridge

import (
	"sync"

	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/source"
)

// IdentityMap records the one runtime value standing for each source
// reference value. Scalars have no identity and are never recorded.
type IdentityMap struct {
	mu  sync.RWMutex
	fwd map[source.Value]object.Object
	rev map[object.Object]source.Value
}

// NewIdentityMap returns an empty map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{
		fwd: map[source.Value]object.Object{},
		rev: map[object.Object]source.Value{},
	}
}

// Lookup returns the representative registered for v.
func (m *IdentityMap) Lookup(v source.Value) (object.Object, bool) {
	if !isRef(v) {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.fwd[v]
	return o, ok
}

// Source returns the source value o was converted from.
func (m *IdentityMap) Source(o object.Object) (source.Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.rev[o]
	return v, ok
}

// Register records o as the representative of v. The first registration
// wins; the representative actually stored is returned.
func (m *IdentityMap) Register(v source.Value, o object.Object) object.Object {
	if !isRef(v) {
		return o
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.fwd[v]; ok {
		return prev
	}
	m.fwd[v] = o
	if _, ok := m.rev[o]; !ok {
		m.rev[o] = v
	}
	return o
}

// Forget removes the registrations of vs, so their next conversion starts
// afresh.
func (m *IdentityMap) Forget(vs ...source.Value) {
	if len(vs) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vs {
		o, ok := m.fwd[v]
		if !ok {
			continue
		}
		delete(m.fwd, v)
		if m.rev[o] == v {
			delete(m.rev, o)
		}
	}
}

// Len returns the number of registered source values.
func (m *IdentityMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.fwd)
}

// isRef reports whether v has identity. Reference kinds are pointers.
func isRef(v source.Value) bool {
	switch v.(type) {
	case *source.ByteArray, *source.Tuple, *source.List, *source.Dict,
		*source.Set, *source.FrozenSet, *source.Cell, *source.Code,
		*source.Function, *source.Class, *source.Module, *source.Builtin,
		*source.StaticMethod, *source.ClassMethod, *source.Property,
		*source.Opaque:
		return true
	}
	return false
}
