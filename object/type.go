package object

import (
	"context"
	"fmt"
	"strings"
)

// TypeFlags describe properties of a type descriptor.
type TypeFlags uint32

const (
	// TypeHeap marks types created at run time by a class statement.
	TypeHeap TypeFlags = 1 << iota
	// TypeBase marks types that may be used as a base class.
	TypeBase
	// TypeOpaque marks types whose behavior is provided by the host.
	TypeOpaque
	// TypeImmutable marks types whose namespace cannot be assigned to.
	TypeImmutable
)

// Type is a runtime type descriptor. It carries the type's namespace and
// its linearized method resolution order, which all attribute and operator
// lookups consult.
type Type struct {
	name     string
	qualname string
	module   string
	doc      string
	bases    []*Type
	mro      []*Type
	dict     *Dict
	flags    TypeFlags
	// solid is the nearest builtin base that determines the instance layout.
	solid *Type
	meta  *Type
	// host holds the host-side class for opaque types.
	host *Opaque
}

func newBuiltinType(name string, base *Type, flags TypeFlags) *Type {
	t := &Type{
		name:     name,
		qualname: name,
		module:   "builtins",
		dict:     NewDict(),
		flags:    flags | TypeImmutable,
	}
	t.solid = t
	if base != nil {
		t.bases = []*Type{base}
		t.mro = append([]*Type{t}, base.mro...)
	} else {
		t.mro = []*Type{t}
	}
	return t
}

// newSubtype creates a builtin type sharing its base's instance layout.
func newSubtype(name string, base *Type) *Type {
	t := newBuiltinType(name, base, TypeBase)
	t.solid = base.solid
	return t
}

func (t *Type) Type() *Type {
	if t.meta != nil {
		return t.meta
	}
	return TypeType
}

// Name returns the type's __name__.
func (t *Type) Name() string { return t.name }

// QualName returns the type's __qualname__.
func (t *Type) QualName() string { return t.qualname }

// Module returns the name of the module the type was defined in.
func (t *Type) Module() string { return t.module }

// Bases returns the direct base types.
func (t *Type) Bases() []*Type { return t.bases }

// MRO returns the method resolution order, starting with t itself.
func (t *Type) MRO() []*Type { return t.mro }

// Dict returns the type's own namespace.
func (t *Type) Dict() *Dict { return t.dict }

// Flags returns the type flags.
func (t *Type) Flags() TypeFlags { return t.flags }

// IsHeap reports whether the type was created by a class statement.
func (t *Type) IsHeap() bool { return t.flags&TypeHeap != 0 }

// Solid returns the builtin base that determines the instance layout.
func (t *Type) Solid() *Type { return t.solid }

// Host returns the host-side class of an opaque type.
func (t *Type) Host() *Opaque { return t.host }

// Lookup finds name along the method resolution order. It returns nil when
// no type in the MRO defines the name.
func (t *Type) Lookup(name string) Object {
	for _, base := range t.mro {
		if v := base.dict.GetStr(name); v != nil {
			return v
		}
	}
	return nil
}

// lookupWithOwner is Lookup that also reports the defining type.
func (t *Type) lookupWithOwner(name string) (Object, *Type) {
	for _, base := range t.mro {
		if v := base.dict.GetStr(name); v != nil {
			return v, base
		}
	}
	return nil, nil
}

// IsSubtype reports whether t is other or derives from it.
func (t *Type) IsSubtype(other *Type) bool {
	if t == other {
		return true
	}
	for _, base := range t.mro {
		if base == other {
			return true
		}
	}
	return false
}

// FullName returns the module-qualified name used in reprs, omitting the
// builtins module.
func (t *Type) FullName() string {
	if t.module == "" || t.module == "builtins" {
		return t.qualname
	}
	return t.module + "." + t.qualname
}

func (t *Type) String() string {
	return fmt.Sprintf("<class '%s'>", t.FullName())
}

// overrides reports whether t resolves name to something other than what
// base resolves it to.
func (t *Type) overrides(name string, base *Type) bool {
	v := t.Lookup(name)
	return v != nil && !sameAttr(v, base.Lookup(name))
}

// ClassSpec describes a class created by a class statement.
type ClassSpec struct {
	Name     string
	QualName string
	Module   string
	Bases    []*Type
	// Namespace is the dictionary populated by the class body.
	Namespace *Dict
	Meta      *Type
}

// NewClass creates a heap type from a populated class namespace. The MRO is
// computed with C3 linearization.
func NewClass(spec ClassSpec) (*Type, error) {
	bases := spec.Bases
	if len(bases) == 0 {
		bases = []*Type{ObjectType}
	}
	for i, b := range bases {
		if b.flags&TypeBase == 0 {
			return nil, TypeErrorf("type '%s' is not an acceptable base type", b.name)
		}
		for _, other := range bases[:i] {
			if other == b {
				return nil, TypeErrorf("duplicate base class %s", b.name)
			}
		}
	}
	t := &Type{
		name:     spec.Name,
		qualname: spec.QualName,
		module:   spec.Module,
		bases:    append([]*Type(nil), bases...),
		dict:     NewDict(),
		flags:    TypeHeap | TypeBase,
		meta:     spec.Meta,
	}
	if t.qualname == "" {
		t.qualname = t.name
	}
	mro, err := linearize(t, t.bases)
	if err != nil {
		return nil, err
	}
	t.mro = mro
	solid, err := solidBase(t.bases)
	if err != nil {
		return nil, err
	}
	t.solid = solid
	for _, b := range t.bases {
		if b.flags&TypeOpaque != 0 {
			t.flags |= TypeOpaque
			t.host = b.host
		}
	}
	if spec.Namespace != nil {
		for _, e := range spec.Namespace.entries() {
			t.dict.setEntry(e.key, e.hash, e.value)
		}
	}
	if s, ok := t.dict.GetStr("__qualname__").(*Str); ok {
		t.qualname = s.value
		t.dict.delStr("__qualname__")
	}
	if s, ok := t.dict.GetStr("__module__").(*Str); ok && t.module == "" {
		t.module = s.value
	}
	if t.dict.GetStr("__doc__") == nil {
		t.dict.SetStr("__doc__", None)
	}
	if d, ok := t.dict.GetStr("__doc__").(*Str); ok {
		t.doc = d.value
	}
	// __new__ is an implicit static method; __init_subclass__ and
	// __class_getitem__ are implicit class methods.
	if fn, ok := t.dict.GetStr("__new__").(*Function); ok {
		t.dict.SetStr("__new__", NewStaticMethod(fn))
	}
	for _, name := range []string{"__init_subclass__", "__class_getitem__"} {
		if fn, ok := t.dict.GetStr(name).(*Function); ok {
			t.dict.SetStr(name, NewClassMethod(fn))
		}
	}
	// Defining __eq__ without __hash__ makes instances unhashable.
	if t.dict.GetStr("__eq__") != nil && t.dict.GetStr("__hash__") == nil {
		t.dict.SetStr("__hash__", None)
	}
	return t, nil
}

// InitClass runs the class creation hooks of a freshly created class:
// __set_name__ on namespace entries, then the nearest __init_subclass__ of
// the bases with the class keyword arguments.
func InitClass(ctx context.Context, t *Type, kwargs *Dict) error {
	for _, e := range t.dict.entries() {
		hook := e.value.Type().Lookup("__set_name__")
		if hook == nil {
			continue
		}
		if _, err := callBound(ctx, hook, e.value, []Object{t, e.key}, nil); err != nil {
			return err
		}
	}
	var init Object
	var owner *Type
	for _, base := range t.mro[1:] {
		if v := base.dict.GetStr("__init_subclass__"); v != nil {
			init, owner = v, base
			break
		}
	}
	args, kwnames := []Object{}, []string(nil)
	if kwargs != nil {
		for _, e := range kwargs.entries() {
			k, _ := e.key.(*Str)
			if k == nil {
				return TypeErrorf("keywords must be strings")
			}
			args = append(args, e.value)
			kwnames = append(kwnames, k.value)
		}
	}
	if init == nil || owner == ObjectType {
		if len(kwnames) > 0 {
			return TypeErrorf("%s.__init_subclass__() takes no keyword arguments", t.name)
		}
		return nil
	}
	bound, err := descrGet(ctx, init, nil, t)
	if err != nil {
		return err
	}
	_, err = Call(ctx, bound, args, kwnames)
	return err
}

// linearize computes the C3 method resolution order of t.
func linearize(t *Type, bases []*Type) ([]*Type, error) {
	var seqs [][]*Type
	for _, b := range bases {
		seqs = append(seqs, append([]*Type(nil), b.mro...))
	}
	seqs = append(seqs, append([]*Type(nil), bases...))
	result := []*Type{t}
	for {
		live := seqs[:0]
		for _, s := range seqs {
			if len(s) > 0 {
				live = append(live, s)
			}
		}
		seqs = live
		if len(seqs) == 0 {
			return result, nil
		}
		var next *Type
		for _, s := range seqs {
			candidate := s[0]
			if !inTail(candidate, seqs) {
				next = candidate
				break
			}
		}
		if next == nil {
			names := make([]string, len(bases))
			for i, b := range bases {
				names[i] = b.name
			}
			return nil, TypeErrorf("Cannot create a consistent method resolution order (MRO) for bases %s",
				strings.Join(names, ", "))
		}
		result = append(result, next)
		for i, s := range seqs {
			if s[0] == next {
				seqs[i] = s[1:]
			}
		}
	}
}

func inTail(t *Type, seqs [][]*Type) bool {
	for _, s := range seqs {
		for _, other := range s[1:] {
			if other == t {
				return true
			}
		}
	}
	return false
}

func solidBase(bases []*Type) (*Type, error) {
	var winner *Type
	for _, b := range bases {
		s := b.solid
		switch {
		case winner == nil:
			winner = s
		case winner.IsSubtype(s):
		case s.IsSubtype(winner):
			winner = s
		default:
			return nil, TypeErrorf("multiple bases have instance lay-out conflict")
		}
	}
	return winner, nil
}

// Call instantiates the type: __new__ followed by __init__ when the new
// object is an instance of the type.
func (t *Type) Call(ctx context.Context, args []Object, kwnames []string) (Object, error) {
	if t == TypeType && len(args) == 1 && len(kwnames) == 0 {
		return args[0].Type(), nil
	}
	newFn := t.Lookup("__new__")
	if newFn == nil {
		return nil, TypeErrorf("cannot create '%s' instances", t.FullName())
	}
	newArgs := make([]Object, 0, len(args)+1)
	newArgs = append(newArgs, t)
	newArgs = append(newArgs, args...)
	callee, err := descrGet(ctx, newFn, nil, t)
	if err != nil {
		return nil, err
	}
	obj, err := Call(ctx, callee, newArgs, kwnames)
	if err != nil {
		return nil, err
	}
	if t == TypeType || !obj.Type().IsSubtype(t) {
		return obj, nil
	}
	initFn := obj.Type().Lookup("__init__")
	if initFn == nil {
		return obj, nil
	}
	res, err := callBound(ctx, initFn, obj, args, kwnames)
	if err != nil {
		return nil, err
	}
	if res != None {
		return nil, TypeErrorf("__init__() should return None, not '%s'", res.Type().name)
	}
	return obj, nil
}

func typeGetAttr(ctx context.Context, t *Type, name string) (Object, error) {
	meta := t.Type()
	metaAttr := meta.Lookup(name)
	if metaAttr != nil && isDataDescriptor(metaAttr) {
		return descrGet(ctx, metaAttr, t, meta)
	}
	if attr := t.Lookup(name); attr != nil {
		return descrGet(ctx, attr, nil, t)
	}
	if metaAttr != nil {
		return descrGet(ctx, metaAttr, t, meta)
	}
	if t.flags&TypeOpaque != 0 && t.host != nil {
		return opaqueGetAttr(ctx, t.host, name)
	}
	return nil, AttributeErrorf("type object '%s' has no attribute '%s'", t.qualname, name)
}

func typeSetAttr(ctx context.Context, t *Type, name string, value Object) error {
	if t.flags&TypeImmutable != 0 {
		return TypeErrorf("cannot set '%s' attribute of immutable type '%s'", name, t.name)
	}
	if attr := t.Type().Lookup(name); attr != nil {
		if dd, ok := attr.(DataDescriptor); ok {
			return dd.Set(ctx, t, value)
		}
	}
	if value == nil {
		if t.dict.GetStr(name) == nil {
			return AttributeErrorf("type object '%s' has no attribute '%s'", t.name, name)
		}
		t.dict.delStr(name)
		return nil
	}
	t.dict.SetStr(name, value)
	return nil
}

func typeRepr(t *Type) string {
	return t.String()
}

// NewOpaqueType creates a type standing for a host-side class that cannot
// be represented natively. Instances and attribute access route through
// the Host installed in the context.
func NewOpaqueType(name, module string, ref *Opaque) *Type {
	t := &Type{
		name:     name,
		qualname: name,
		module:   module,
		dict:     NewDict(),
		flags:    TypeOpaque | TypeBase,
		host:     ref,
	}
	t.bases = []*Type{ObjectType}
	t.mro = []*Type{t, ObjectType}
	t.solid = ObjectType
	return t
}
