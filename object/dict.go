package object

import (
	"context"
	"strings"
)

// Dict is an insertion-ordered mapping.
type Dict struct {
	t table
}

// NewDict returns an empty dict.
func NewDict() *Dict {
	return &Dict{}
}

func (d *Dict) Type() *Type { return DictType }

// Len returns the number of items.
func (d *Dict) Len() int { return d.t.used }

// GetStr returns the value stored under a string key, or nil.
func (d *Dict) GetStr(name string) Object {
	if d.t.used == 0 {
		return nil
	}
	if i := d.t.findStr(name, hashString(name)); i >= 0 {
		return d.t.entries[i].value
	}
	return nil
}

// SetStr stores a value under a string key.
func (d *Dict) SetStr(name string, value Object) {
	h := hashString(name)
	if i := d.t.findStr(name, h); i >= 0 {
		d.t.entries[i].value = value
		return
	}
	d.t.appendEntry(NewStr(name), h, value)
}

func (d *Dict) delStr(name string) bool {
	if i := d.t.findStr(name, hashString(name)); i >= 0 {
		d.t.removeAt(i)
		return true
	}
	return false
}

// DelStr removes a string key and reports whether it was present.
func (d *Dict) DelStr(name string) bool { return d.delStr(name) }

func (d *Dict) entries() []entry { return d.t.live() }

// setEntry stores a pre-hashed key known not to need user equality.
func (d *Dict) setEntry(key Object, h int64, value Object) {
	if s, ok := key.(*Str); ok {
		if i := d.t.findStr(s.value, h); i >= 0 {
			d.t.entries[i].value = value
			return
		}
	}
	d.t.appendEntry(key, h, value)
}

// Get looks a key up. It reports false when the key is absent.
func (d *Dict) Get(ctx context.Context, key Object) (Object, bool, error) {
	h, err := Hash(ctx, key)
	if err != nil {
		return nil, false, err
	}
	i, err := d.t.find(ctx, key, h)
	if err != nil || i < 0 {
		return nil, false, err
	}
	return d.t.entries[i].value, true, nil
}

// Set stores value under key.
func (d *Dict) Set(ctx context.Context, key, value Object) error {
	h, err := Hash(ctx, key)
	if err != nil {
		return err
	}
	return d.t.insert(ctx, key, h, value)
}

// Delete removes key, reporting whether it was present.
func (d *Dict) Delete(ctx context.Context, key Object) (bool, error) {
	h, err := Hash(ctx, key)
	if err != nil {
		return false, err
	}
	i, err := d.t.find(ctx, key, h)
	if err != nil || i < 0 {
		return false, err
	}
	d.t.removeAt(i)
	return true, nil
}

// Keys returns a snapshot of the keys in insertion order.
func (d *Dict) Keys() []Object {
	out := make([]Object, 0, d.t.used)
	for _, e := range d.t.entries {
		if e.key != nil {
			out = append(out, e.key)
		}
	}
	return out
}

// Items returns a snapshot of the (key, value) pairs in insertion order.
func (d *Dict) Items() [][2]Object {
	out := make([][2]Object, 0, d.t.used)
	for _, e := range d.t.entries {
		if e.key != nil {
			out = append(out, [2]Object{e.key, e.value})
		}
	}
	return out
}

// Copy returns a shallow copy.
func (d *Dict) Copy() *Dict {
	return &Dict{t: d.t.copy()}
}

// Clear removes all items.
func (d *Dict) Clear() { d.t.clear() }

func asDict(o Object) (*Dict, bool) { return exact[*Dict](o) }

// Update merges src into d with dict.update semantics.
func (d *Dict) Update(ctx context.Context, src Object) error {
	if other, ok := asDict(src); ok {
		for _, e := range other.t.live() {
			if err := d.t.insert(ctx, e.key, e.hash, e.value); err != nil {
				return err
			}
		}
		return nil
	}
	if keysFn, err := GetAttr(ctx, src, "keys"); err == nil {
		keys, err := Call(ctx, keysFn, nil, nil)
		if err != nil {
			return err
		}
		ks, err := ToSlice(ctx, keys)
		if err != nil {
			return err
		}
		for _, k := range ks {
			v, err := GetItem(ctx, src, k)
			if err != nil {
				return err
			}
			if err := d.Set(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	} else if !IsExceptionOf(err, AttributeErrorType) {
		return err
	}
	items, err := ToSlice(ctx, src)
	if err != nil {
		return err
	}
	for i, item := range items {
		pair, err := ToSlice(ctx, item)
		if err != nil {
			if IsExceptionOf(err, TypeErrorType) {
				return TypeErrorf("cannot convert dictionary update sequence element #%d to a sequence", i)
			}
			return err
		}
		if len(pair) != 2 {
			return ValueErrorf("dictionary update sequence element #%d has length %d; 2 is required", i, len(pair))
		}
		if err := d.Set(ctx, pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dict) updateKwargs(ctx context.Context, kw *Dict) error {
	if kw == nil {
		return nil
	}
	for _, e := range kw.t.live() {
		if err := d.t.insert(ctx, e.key, e.hash, e.value); err != nil {
			return err
		}
	}
	return nil
}

func dictEqual(ctx context.Context, a, b *Dict) (bool, error) {
	if a.t.used != b.t.used {
		return false, nil
	}
	for _, e := range a.t.live() {
		i, err := b.t.find(ctx, e.key, e.hash)
		if err != nil || i < 0 {
			return false, err
		}
		eq, err := Equal(ctx, e.value, b.t.entries[i].value)
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

func dictRepr(ctx context.Context, d *Dict) (string, error) {
	if d.t.used == 0 {
		return "{}", nil
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, e := range d.t.live() {
		if i > 0 {
			sb.WriteString(", ")
		}
		k, err := Repr(ctx, e.key)
		if err != nil {
			return "", err
		}
		v, err := Repr(ctx, e.value)
		if err != nil {
			return "", err
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(v)
	}
	sb.WriteByte('}')
	return sb.String(), nil
}

type dictViewKind uint8

const (
	viewKeys dictViewKind = iota
	viewValues
	viewItems
)

// DictView is a live view of a dict's keys, values or items.
type DictView struct {
	d    *Dict
	kind dictViewKind
}

func (v *DictView) Type() *Type {
	switch v.kind {
	case viewKeys:
		return DictKeysType
	case viewValues:
		return DictValuesType
	}
	return DictItemsType
}

// Dict returns the underlying mapping.
func (v *DictView) Dict() *Dict { return v.d }

func (v *DictView) iter() *DictIter {
	return &DictIter{it: newTableIter(&v.d.t, "dictionary"), kind: v.kind}
}

func (v *DictView) contains(ctx context.Context, x Object) (bool, error) {
	switch v.kind {
	case viewKeys:
		_, ok, err := v.d.Get(ctx, x)
		return ok, err
	case viewItems:
		t, ok := x.(*Tuple)
		if !ok || len(t.items) != 2 {
			return false, nil
		}
		val, ok, err := v.d.Get(ctx, t.items[0])
		if err != nil || !ok {
			return false, err
		}
		return Equal(ctx, val, t.items[1])
	}
	for _, e := range v.d.t.live() {
		eq, err := Equal(ctx, e.value, x)
		if err != nil || eq {
			return eq, err
		}
	}
	return false, nil
}

func (v *DictView) items() []Object {
	live := v.d.t.live()
	out := make([]Object, len(live))
	for i, e := range live {
		switch v.kind {
		case viewKeys:
			out[i] = e.key
		case viewValues:
			out[i] = e.value
		default:
			out[i] = NewTuple([]Object{e.key, e.value})
		}
	}
	return out
}

// DictIter iterates a dict in insertion order.
type DictIter struct {
	it   tableIter
	kind dictViewKind
}

func (it *DictIter) Type() *Type {
	switch it.kind {
	case viewKeys:
		return DictKeyIteratorType
	case viewValues:
		return DictValueIteratorType
	}
	return DictItemIteratorType
}

func (it *DictIter) Next(ctx context.Context) (Object, bool, error) {
	e, ok, err := it.it.next()
	if err != nil || !ok {
		return nil, false, err
	}
	switch it.kind {
	case viewKeys:
		return e.key, true, nil
	case viewValues:
		return e.value, true, nil
	}
	return NewTuple([]Object{e.key, e.value}), true, nil
}

// NewDictFromItems builds a dict from alternating keys and values.
func NewDictFromItems(ctx context.Context, kv ...Object) (*Dict, error) {
	d := NewDict()
	for i := 0; i+1 < len(kv); i += 2 {
		if err := d.Set(ctx, kv[i], kv[i+1]); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func init() {
	m := NewMethods[*Dict](DictType, asDict)
	newDict := m.New(nil, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		if cls == DictType {
			return NewDict(), nil
		}
		return newNativeInstance(cls, NewDict()), nil
	})
	newDict.variadic, newDict.kwargs = true, true
	m.Define("__init__").OptArg("iterable").Kwargs().Impl(func(d *Dict, ctx context.Context, args Args) (Object, error) {
		if args.Has(0) {
			if err := d.Update(ctx, args.Get(0)); err != nil {
				return nil, err
			}
		}
		if err := d.updateKwargs(ctx, args.Kwargs); err != nil {
			return nil, err
		}
		return None, nil
	})
	m.Define("keys").Impl(func(d *Dict, ctx context.Context, args Args) (Object, error) {
		return &DictView{d: d, kind: viewKeys}, nil
	})
	m.Define("values").Impl(func(d *Dict, ctx context.Context, args Args) (Object, error) {
		return &DictView{d: d, kind: viewValues}, nil
	})
	m.Define("items").Impl(func(d *Dict, ctx context.Context, args Args) (Object, error) {
		return &DictView{d: d, kind: viewItems}, nil
	})
	m.Define("get").Arg("key").OptArg("default").Impl(func(d *Dict, ctx context.Context, args Args) (Object, error) {
		v, ok, err := d.Get(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		if !ok {
			return args.Or(1, None), nil
		}
		return v, nil
	})
	m.Define("setdefault").Arg("key").OptArg("default").Impl(func(d *Dict, ctx context.Context, args Args) (Object, error) {
		v, ok, err := d.Get(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		if ok {
			return v, nil
		}
		def := args.Or(1, None)
		if err := d.Set(ctx, args.Get(0), def); err != nil {
			return nil, err
		}
		return def, nil
	})
	m.Define("pop").Arg("key").OptArg("default").Impl(func(d *Dict, ctx context.Context, args Args) (Object, error) {
		key := args.Get(0)
		h, err := Hash(ctx, key)
		if err != nil {
			return nil, err
		}
		i, err := d.t.find(ctx, key, h)
		if err != nil {
			return nil, err
		}
		if i < 0 {
			if args.Has(1) {
				return args.Get(1), nil
			}
			return nil, NewKeyError(key)
		}
		v := d.t.entries[i].value
		d.t.removeAt(i)
		return v, nil
	})
	m.Define("popitem").Impl(func(d *Dict, ctx context.Context, args Args) (Object, error) {
		i := d.t.last()
		if i < 0 {
			return nil, NewKeyError(NewStr("popitem(): dictionary is empty"))
		}
		e := d.t.entries[i]
		d.t.removeAt(i)
		return NewTuple([]Object{e.key, e.value}), nil
	})
	m.Define("update").OptArg("other").Kwargs().Impl(func(d *Dict, ctx context.Context, args Args) (Object, error) {
		if args.Has(0) {
			if err := d.Update(ctx, args.Get(0)); err != nil {
				return nil, err
			}
		}
		if err := d.updateKwargs(ctx, args.Kwargs); err != nil {
			return nil, err
		}
		return None, nil
	})
	m.Define("clear").Impl(func(d *Dict, ctx context.Context, args Args) (Object, error) {
		d.Clear()
		return None, nil
	})
	m.Define("copy").Impl(func(d *Dict, ctx context.Context, args Args) (Object, error) {
		return d.Copy(), nil
	})
	m.Define("__reversed__").Impl(func(d *Dict, ctx context.Context, args Args) (Object, error) {
		keys := d.Keys()
		rev := make([]Object, len(keys))
		for i, k := range keys {
			rev[len(keys)-1-i] = k
		}
		return NewSeqIter(rev, DictKeyIteratorType), nil
	})
	m.ClassMethod("fromkeys", []string{"iterable", "value"}, 1, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		obj, err := cls.Call(ctx, nil, nil)
		if err != nil {
			return nil, err
		}
		keys, err := ToSlice(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		value := args.Or(1, None)
		for _, k := range keys {
			if err := SetItem(ctx, obj, k, value); err != nil {
				return nil, err
			}
		}
		return obj, nil
	})

	for _, t := range []*Type{DictKeysType, DictValuesType, DictItemsType} {
		vm := NewMethods[*DictView](t, exact[*DictView])
		vm.Attr("mapping", func(v *DictView) Object { return &MappingProxy{d: v.d} })
	}
}

// MappingProxy is a read-only view of a namespace dict.
type MappingProxy struct {
	d *Dict
}

// NewMappingProxy wraps d.
func NewMappingProxy(d *Dict) *MappingProxy { return &MappingProxy{d: d} }

func (m *MappingProxy) Type() *Type { return MappingProxyType }

// Dict returns the wrapped dict.
func (m *MappingProxy) Dict() *Dict { return m.d }

func init() {
	m := NewMethods[*MappingProxy](MappingProxyType, exact[*MappingProxy])
	m.Define("keys").Impl(func(p *MappingProxy, ctx context.Context, args Args) (Object, error) {
		return &DictView{d: p.d, kind: viewKeys}, nil
	})
	m.Define("values").Impl(func(p *MappingProxy, ctx context.Context, args Args) (Object, error) {
		return &DictView{d: p.d, kind: viewValues}, nil
	})
	m.Define("items").Impl(func(p *MappingProxy, ctx context.Context, args Args) (Object, error) {
		return &DictView{d: p.d, kind: viewItems}, nil
	})
	m.Define("get").Arg("key").OptArg("default").Impl(func(p *MappingProxy, ctx context.Context, args Args) (Object, error) {
		v, ok, err := p.d.Get(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		if !ok {
			return args.Or(1, None), nil
		}
		return v, nil
	})
	m.Define("copy").Impl(func(p *MappingProxy, ctx context.Context, args Args) (Object, error) {
		return p.d.Copy(), nil
	})
}
