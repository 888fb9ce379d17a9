package unit

import (
	"fmt"
	"sync"

	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/source"
	"golang.org/x/sync/singleflight"
)

// TypeTable maps source types to target type descriptors. It is seeded
// with the builtin types and extended as user classes are first seen.
// Entries are inserted once and never replaced, so concurrent resolutions
// of the same class converge on one descriptor.
type TypeTable struct {
	mu       sync.RWMutex
	builtins map[string]*object.Type
	classes  map[*source.Class]*object.Type
	group    singleflight.Group
}

// NewTypeTable returns a table seeded with the builtin and exception
// types.
func NewTypeTable() *TypeTable {
	t := &TypeTable{
		builtins: map[string]*object.Type{},
		classes:  map[*source.Class]*object.Type{},
	}
	for _, typ := range object.BuiltinTypes() {
		t.builtins[typ.Name()] = typ
	}
	for _, typ := range object.ExceptionTypes() {
		t.builtins[typ.Name()] = typ
	}
	t.builtins["NoneType"] = object.None.Type()
	t.builtins["EnvironmentError"] = object.OSErrorType
	t.builtins["IOError"] = object.OSErrorType
	return t
}

// Builtin returns the seeded type with the given name.
func (t *TypeTable) Builtin(name string) (*object.Type, bool) {
	typ, ok := t.builtins[name]
	return typ, ok
}

// Lookup returns the descriptor already resolved for cls.
func (t *TypeTable) Lookup(cls *source.Class) (*object.Type, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	typ, ok := t.classes[cls]
	return typ, ok
}

// Len returns the number of user classes resolved so far.
func (t *TypeTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.classes)
}

// Resolve returns the descriptor for cls, calling create the first time
// the class is seen. created is true only for the caller whose create ran;
// that caller is responsible for populating the namespace.
//
// create must not resolve cls itself. Recursive references from the class
// namespace are handled by populating it after Resolve returns.
func (t *TypeTable) Resolve(cls *source.Class, create func() (*object.Type, error)) (typ *object.Type, created bool, err error) {
	if typ, ok := t.Lookup(cls); ok {
		return typ, false, nil
	}
	v, err, _ := t.group.Do(fmt.Sprintf("%p", cls), func() (any, error) {
		if typ, ok := t.Lookup(cls); ok {
			return typ, nil
		}
		typ, err := create()
		if err != nil {
			return nil, err
		}
		created = true
		t.mu.Lock()
		defer t.mu.Unlock()
		if prev, ok := t.classes[cls]; ok {
			created = false
			return prev, nil
		}
		t.classes[cls] = typ
		return typ, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*object.Type), created, nil
}
