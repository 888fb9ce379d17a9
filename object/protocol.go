package object

import (
	"context"
	"fmt"
	"math"
	"strings"
)

type reprState struct {
	active map[Object]bool
}

// enterRepr marks o as being printed. It returns false when o is already
// on the repr stack, which means the container refers to itself.
func enterRepr(ctx context.Context, o Object) (context.Context, func(), bool) {
	st, ok := ctx.Value(reprKey).(*reprState)
	if !ok {
		st = &reprState{active: map[Object]bool{}}
		ctx = context.WithValue(ctx, reprKey, st)
	}
	if st.active[o] {
		return ctx, func() {}, false
	}
	st.active[o] = true
	return ctx, func() { delete(st.active, o) }, true
}

// Repr returns repr(o).
func Repr(ctx context.Context, o Object) (string, error) {
	switch v := o.(type) {
	case *NoneType:
		return "None", nil
	case *NotImplementedType:
		return "NotImplemented", nil
	case *EllipsisType:
		return "Ellipsis", nil
	case *Bool:
		if v.value {
			return "True", nil
		}
		return "False", nil
	case *Int:
		return v.Decimal()
	case *Float:
		return FormatFloatRepr(v.value), nil
	case *Complex:
		return v.String(), nil
	case *Str:
		return reprString(v.value), nil
	case *Bytes:
		return reprBytes("b", v.value), nil
	case *ByteArray:
		return "bytearray(" + reprBytes("b", v.value) + ")", nil
	case *Type:
		if v.meta == nil {
			return typeRepr(v), nil
		}
	case *List:
		return reprItems(ctx, v, "[", "]", v.items, "[...]")
	case *Tuple:
		if len(v.items) == 1 {
			return reprItems(ctx, v, "(", ",)", v.items, "(...)")
		}
		return reprItems(ctx, v, "(", ")", v.items, "(...)")
	case *Dict:
		ctx, leave, ok := enterRepr(ctx, v)
		if !ok {
			return "{...}", nil
		}
		defer leave()
		return dictRepr(ctx, v)
	case *Set:
		if v.t.used == 0 {
			return "set()", nil
		}
		ctx, leave, ok := enterRepr(ctx, v)
		if !ok {
			return "set(...)", nil
		}
		defer leave()
		return setRepr(ctx, v, &v.t)
	case *FrozenSet:
		if v.t.used == 0 {
			return "frozenset()", nil
		}
		s, err := setRepr(ctx, v, &v.t)
		if err != nil {
			return "", err
		}
		return "frozenset(" + s + ")", nil
	case *DictView:
		ctx, leave, ok := enterRepr(ctx, v)
		if !ok {
			return "...", nil
		}
		defer leave()
		s, err := reprItems(ctx, nil, "[", "]", v.items(), "")
		if err != nil {
			return "", err
		}
		return v.Type().name + "(" + s + ")", nil
	case *MappingProxy:
		s, err := Repr(ctx, v.d)
		if err != nil {
			return "", err
		}
		return "mappingproxy(" + s + ")", nil
	case *Slice:
		parts := make([]string, 3)
		for i, b := range []Object{v.Start, v.Stop, v.Step} {
			r, err := Repr(ctx, b)
			if err != nil {
				return "", err
			}
			parts[i] = r
		}
		return "slice(" + strings.Join(parts, ", ") + ")", nil
	case *Range:
		return v.String(), nil
	case *Exception:
		if fn := v.typ.Lookup("__repr__"); fn != nil && !isBuiltinOf(fn, BaseExceptionType) {
			break
		}
		return exceptionRepr(ctx, v)
	case *Function, *Builtin, *Module, *Cell, *Code, *Super, *Opaque, *Generator:
		return fmt.Sprint(v), nil
	case *BoundMethod:
		self, err := Repr(ctx, v.self)
		if err != nil {
			return "", err
		}
		if b, ok := v.fn.(*Builtin); ok {
			return fmt.Sprintf("<built-in method %s of %s>", b.name, self), nil
		}
		return fmt.Sprintf("<bound method %s of %s>", CallableName(v.fn), self), nil
	}
	r, ok, err := callSpecial(ctx, o, "__repr__")
	if err != nil {
		return "", err
	}
	if !ok {
		return defaultRepr(o), nil
	}
	s, isStr := asStr(r)
	if !isStr {
		return "", TypeErrorf("__repr__ returned non-string (type %s)", r.Type().name)
	}
	return s.value, nil
}

func isBuiltinOf(fn Object, t *Type) bool {
	b, ok := fn.(*Builtin)
	return ok && b.owner == t
}

func reprItems(ctx context.Context, self Object, open, close string, items []Object, recursive string) (string, error) {
	if self != nil {
		var leave func()
		var ok bool
		ctx, leave, ok = enterRepr(ctx, self)
		if !ok {
			return recursive, nil
		}
		defer leave()
	}
	var sb strings.Builder
	sb.WriteString(open)
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		r, err := Repr(ctx, item)
		if err != nil {
			return "", err
		}
		sb.WriteString(r)
	}
	sb.WriteString(close)
	return sb.String(), nil
}

// StrOf returns str(o).
func StrOf(ctx context.Context, o Object) (string, error) {
	switch v := o.(type) {
	case *Str:
		return v.value, nil
	case *Int, *Bool, *Float, *NoneType, *List, *Tuple, *Dict:
		return Repr(ctx, v)
	case *Exception:
		if fn := v.typ.Lookup("__str__"); fn == nil || isBuiltinOf(fn, BaseExceptionType) {
			return exceptionStr(ctx, v)
		}
	}
	r, ok, err := callSpecial(ctx, o, "__str__")
	if err != nil {
		return "", err
	}
	if !ok {
		return Repr(ctx, o)
	}
	s, isStr := asStr(r)
	if !isStr {
		return "", TypeErrorf("__str__ returned non-string (type %s)", r.Type().name)
	}
	return s.value, nil
}

// Truthy evaluates the truth value of o.
func Truthy(ctx context.Context, o Object) (bool, error) {
	switch v := o.(type) {
	case *Bool:
		return v.value, nil
	case *NoneType:
		return false, nil
	case *Int:
		return v.Sign() != 0, nil
	case *Float:
		return v.value != 0, nil
	case *Complex:
		return v.value != 0, nil
	case *Str:
		return len(v.value) > 0, nil
	case *Bytes:
		return len(v.value) > 0, nil
	case *ByteArray:
		return len(v.value) > 0, nil
	case *List:
		return len(v.items) > 0, nil
	case *Tuple:
		return len(v.items) > 0, nil
	case *Dict:
		return v.Len() > 0, nil
	case *Set:
		return v.t.used > 0, nil
	case *FrozenSet:
		return v.t.used > 0, nil
	case *Range:
		return v.length() > 0, nil
	case *DictView:
		return v.d.Len() > 0, nil
	case *Type, *Function, *Builtin, *BoundMethod, *Module:
		return true, nil
	}
	t := o.Type()
	if fn := t.Lookup("__bool__"); fn != nil {
		r, err := callBound(ctx, fn, o, nil, nil)
		if err != nil {
			return false, err
		}
		b, ok := r.(*Bool)
		if !ok {
			return false, TypeErrorf("__bool__ should return bool, returned %s", r.Type().name)
		}
		return b.value, nil
	}
	if t.Lookup("__len__") != nil {
		n, err := Len(ctx, o)
		return n > 0, err
	}
	return true, nil
}

// Len returns len(o).
func Len(ctx context.Context, o Object) (int, error) {
	switch v := o.(type) {
	case *Str:
		return v.Len(), nil
	case *Bytes:
		return len(v.value), nil
	case *ByteArray:
		return len(v.value), nil
	case *List:
		return len(v.items), nil
	case *Tuple:
		return len(v.items), nil
	case *Dict:
		return v.Len(), nil
	case *Set:
		return v.t.used, nil
	case *FrozenSet:
		return v.t.used, nil
	case *DictView:
		return v.d.Len(), nil
	case *MappingProxy:
		return v.d.Len(), nil
	case *Range:
		return int(v.length()), nil
	}
	fn := o.Type().Lookup("__len__")
	if fn == nil {
		return 0, TypeErrorf("object of type '%s' has no len()", o.Type().name)
	}
	r, err := callBound(ctx, fn, o, nil, nil)
	if err != nil {
		return 0, err
	}
	n, err := Index(ctx, r)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 {
		return 0, ValueErrorf("__len__() should return >= 0")
	}
	v, ok := n.Int64()
	if !ok || v > math.MaxInt {
		return 0, OverflowErrorf("cannot fit 'int' into an index-sized integer")
	}
	return int(v), nil
}

// Index converts o to an int through __index__.
func Index(ctx context.Context, o Object) (*Int, error) {
	if n, ok := asInt(o); ok {
		return n, nil
	}
	fn := o.Type().Lookup("__index__")
	if fn == nil {
		return nil, TypeErrorf("'%s' object cannot be interpreted as an integer", o.Type().name)
	}
	r, err := callBound(ctx, fn, o, nil, nil)
	if err != nil {
		return nil, err
	}
	n, ok := asInt(r)
	if !ok {
		return nil, TypeErrorf("__index__ returned non-int (type %s)", r.Type().name)
	}
	return n, nil
}

// IndexInt converts o to a Go int through __index__, raising
// OverflowError when it does not fit.
func IndexInt(ctx context.Context, o Object) (int, error) {
	n, err := Index(ctx, o)
	if err != nil {
		return 0, err
	}
	v, ok := n.Int64()
	if !ok || v < math.MinInt || v > math.MaxInt {
		return 0, OverflowErrorf("Python int too large to convert to C ssize_t")
	}
	return int(v), nil
}

func isIndexable(o Object) bool {
	if _, ok := asInt(o); ok {
		return true
	}
	return o.Type().Lookup("__index__") != nil
}

func indexError(what string) error {
	return IndexErrorf("%s index out of range", what)
}

// GetItem evaluates o[key].
func GetItem(ctx context.Context, o, key Object) (Object, error) {
	switch v := o.(type) {
	case *List:
		return seqGetItem(ctx, v.items, key, "list", func(items []Object) Object { return NewList(items) })
	case *Tuple:
		return seqGetItem(ctx, v.items, key, "tuple", func(items []Object) Object { return NewTuple(items) })
	case *Str:
		return strGetItem(ctx, v, key)
	case *Bytes:
		return bytesGetItem(ctx, v.value, key, "index", func(b []byte) Object { return NewBytes(b) })
	case *ByteArray:
		return bytesGetItem(ctx, v.value, key, "bytearray index", func(b []byte) Object { return NewByteArray(b) })
	case *Dict:
		val, ok, err := v.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, NewKeyError(key)
		}
		return val, nil
	case *MappingProxy:
		return GetItem(ctx, v.d, key)
	case *Range:
		return rangeGetItem(ctx, v, key)
	case *Type:
		if fn := v.Lookup("__class_getitem__"); fn != nil {
			bound, err := descrGet(ctx, fn, nil, v)
			if err != nil {
				return nil, err
			}
			return Call(ctx, bound, []Object{key}, nil)
		}
		if v.Type().Lookup("__getitem__") == nil {
			if !v.IsHeap() && v.flags&TypeBase != 0 {
				// Builtin generics subscript to themselves.
				return v, nil
			}
			return nil, TypeErrorf("type '%s' is not subscriptable", v.name)
		}
	}
	fn := o.Type().Lookup("__getitem__")
	if fn == nil {
		return nil, TypeErrorf("'%s' object is not subscriptable", o.Type().name)
	}
	return callBound(ctx, fn, o, []Object{key}, nil)
}

func seqGetItem(ctx context.Context, items []Object, key Object, what string, wrap func([]Object) Object) (Object, error) {
	if s, ok := key.(*Slice); ok {
		out, err := sliceItems(ctx, items, s)
		if err != nil {
			return nil, err
		}
		return wrap(out), nil
	}
	if !isIndexable(key) {
		return nil, TypeErrorf("%s indices must be integers or slices, not %s", what, key.Type().name)
	}
	i, err := IndexInt(ctx, key)
	if err != nil {
		if IsExceptionOf(err, OverflowErrorType) {
			return nil, IndexErrorf("cannot fit 'int' into an index-sized integer")
		}
		return nil, err
	}
	i, ok := normIndex(i, len(items))
	if !ok {
		return nil, indexError(what)
	}
	return items[i], nil
}

func strGetItem(ctx context.Context, s *Str, key Object) (Object, error) {
	if sl, ok := key.(*Slice); ok {
		start, stop, step, n, err := sl.Indices(ctx, s.Len())
		if err != nil {
			return nil, err
		}
		if step == 1 {
			if n <= 0 {
				return emptyStr, nil
			}
			return NewStr(s.Sub(start, stop)), nil
		}
		runes := s.Runes()
		out := make([]rune, n)
		for i, j := 0, start; i < n; i, j = i+1, j+step {
			out[i] = runes[j]
		}
		return newStrRunes(out), nil
	}
	if !isIndexable(key) {
		return nil, TypeErrorf("string indices must be integers, not '%s'", key.Type().name)
	}
	i, err := IndexInt(ctx, key)
	if err != nil {
		return nil, err
	}
	i, ok := normIndex(i, s.Len())
	if !ok {
		return nil, indexError("string")
	}
	return NewStr(s.At(i)), nil
}

func bytesGetItem(ctx context.Context, data []byte, key Object, what string, wrap func([]byte) Object) (Object, error) {
	if sl, ok := key.(*Slice); ok {
		start, _, step, n, err := sl.Indices(ctx, len(data))
		if err != nil {
			return nil, err
		}
		out := make([]byte, n)
		for i, j := 0, start; i < n; i, j = i+1, j+step {
			out[i] = data[j]
		}
		return wrap(out), nil
	}
	if !isIndexable(key) {
		return nil, TypeErrorf("byte indices must be integers or slices, not %s", key.Type().name)
	}
	i, err := IndexInt(ctx, key)
	if err != nil {
		return nil, err
	}
	i, ok := normIndex(i, len(data))
	if !ok {
		return nil, indexError(what)
	}
	return NewInt(int64(data[i])), nil
}

// SetItem evaluates o[key] = value.
func SetItem(ctx context.Context, o, key, value Object) error {
	switch v := o.(type) {
	case *List:
		if s, ok := key.(*Slice); ok {
			return listSetSlice(ctx, v, s, value)
		}
		if !isIndexable(key) {
			return TypeErrorf("list indices must be integers or slices, not %s", key.Type().name)
		}
		i, err := IndexInt(ctx, key)
		if err != nil {
			return err
		}
		i, ok := normIndex(i, len(v.items))
		if !ok {
			return IndexErrorf("list assignment index out of range")
		}
		v.items[i] = value
		return nil
	case *Dict:
		return v.Set(ctx, key, value)
	case *ByteArray:
		return byteArraySetItem(ctx, v, key, value)
	}
	fn := o.Type().Lookup("__setitem__")
	if fn == nil {
		return TypeErrorf("'%s' object does not support item assignment", o.Type().name)
	}
	_, err := callBound(ctx, fn, o, []Object{key, value}, nil)
	return err
}

func byteArraySetItem(ctx context.Context, b *ByteArray, key, value Object) error {
	if s, ok := key.(*Slice); ok {
		src, err := bytesFromValue(ctx, value)
		if err != nil {
			return err
		}
		items := make([]Object, len(b.value))
		for i, c := range b.value {
			items[i] = NewInt(int64(c))
		}
		l := NewList(items)
		vals := make([]Object, len(src))
		for i, c := range src {
			vals[i] = NewInt(int64(c))
		}
		if err := listSetSlice(ctx, l, s, NewList(vals)); err != nil {
			return err
		}
		out := make([]byte, len(l.items))
		for i, it := range l.items {
			n, _ := asInt(it)
			c, _ := n.Int64()
			out[i] = byte(c)
		}
		b.value = out
		return nil
	}
	i, err := IndexInt(ctx, key)
	if err != nil {
		return err
	}
	i, ok := normIndex(i, len(b.value))
	if !ok {
		return IndexErrorf("bytearray index out of range")
	}
	c, err := byteValue(ctx, value)
	if err != nil {
		return err
	}
	b.value[i] = c
	return nil
}

func bytesFromValue(ctx context.Context, o Object) ([]byte, error) {
	if data, ok := bytesLike(o); ok {
		return append([]byte(nil), data...), nil
	}
	items, err := ToSlice(ctx, o)
	if err != nil {
		return nil, TypeErrorf("can assign only bytes, buffers, or iterables of ints in range(0, 256)")
	}
	out := make([]byte, len(items))
	for i, it := range items {
		c, err := byteValue(ctx, it)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// DelItem evaluates del o[key].
func DelItem(ctx context.Context, o, key Object) error {
	switch v := o.(type) {
	case *List:
		if s, ok := key.(*Slice); ok {
			return listDelSlice(ctx, v, s)
		}
		if !isIndexable(key) {
			return TypeErrorf("list indices must be integers or slices, not %s", key.Type().name)
		}
		i, err := IndexInt(ctx, key)
		if err != nil {
			return err
		}
		i, ok := normIndex(i, len(v.items))
		if !ok {
			return IndexErrorf("list assignment index out of range")
		}
		v.items = append(v.items[:i], v.items[i+1:]...)
		return nil
	case *Dict:
		ok, err := v.Delete(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return NewKeyError(key)
		}
		return nil
	case *ByteArray:
		if s, ok := key.(*Slice); ok {
			start, _, step, n, err := s.Indices(ctx, len(v.value))
			if err != nil {
				return err
			}
			drop := make(map[int]bool, n)
			for i, j := 0, start; i < n; i, j = i+1, j+step {
				drop[j] = true
			}
			out := v.value[:0:0]
			for i, c := range v.value {
				if !drop[i] {
					out = append(out, c)
				}
			}
			v.value = out
			return nil
		}
		i, err := IndexInt(ctx, key)
		if err != nil {
			return err
		}
		i, ok := normIndex(i, len(v.value))
		if !ok {
			return IndexErrorf("bytearray index out of range")
		}
		v.value = append(v.value[:i], v.value[i+1:]...)
		return nil
	}
	fn := o.Type().Lookup("__delitem__")
	if fn == nil {
		return TypeErrorf("'%s' object does not support item deletion", o.Type().name)
	}
	_, err := callBound(ctx, fn, o, []Object{key}, nil)
	return err
}

// Contains evaluates x in container.
func Contains(ctx context.Context, container, x Object) (bool, error) {
	switch v := container.(type) {
	case *List:
		return seqContains(ctx, v.items, x)
	case *Tuple:
		return seqContains(ctx, v.items, x)
	case *Str:
		s, ok := asStr(x)
		if !ok {
			return false, TypeErrorf("'in <string>' requires string as left operand, not %s", x.Type().name)
		}
		return strings.Contains(v.value, s.value), nil
	case *Bytes, *ByteArray:
		data, _ := bytesLike(v)
		if sub, ok := bytesLike(x); ok {
			return strings.Contains(string(data), string(sub)), nil
		}
		if !isIndexable(x) {
			return false, TypeErrorf("a bytes-like object is required, not '%s'", x.Type().name)
		}
		c, err := byteValue(ctx, x)
		if err != nil {
			return false, err
		}
		return strings.IndexByte(string(data), c) >= 0, nil
	case *Dict:
		_, ok, err := v.Get(ctx, x)
		return ok, err
	case *Set:
		return v.Contains(ctx, x)
	case *FrozenSet:
		return v.Contains(ctx, x)
	case *DictView:
		return v.contains(ctx, x)
	case *MappingProxy:
		_, ok, err := v.d.Get(ctx, x)
		return ok, err
	case *Range:
		return rangeContains(ctx, v, x)
	}
	if fn := container.Type().Lookup("__contains__"); fn != nil {
		r, err := callBound(ctx, fn, container, []Object{x}, nil)
		if err != nil {
			return false, err
		}
		return Truthy(ctx, r)
	}
	it, err := Iter(ctx, container)
	if err != nil {
		if IsExceptionOf(err, TypeErrorType) {
			return false, TypeErrorf("argument of type '%s' is not iterable", container.Type().name)
		}
		return false, err
	}
	for {
		item, ok, err := Next(ctx, it)
		if err != nil || !ok {
			return false, err
		}
		eq, err := Equal(ctx, item, x)
		if err != nil || eq {
			return eq, err
		}
	}
}

// ToSlice collects the items of an iterable.
func ToSlice(ctx context.Context, o Object) ([]Object, error) {
	switch v := o.(type) {
	case *List:
		return append([]Object(nil), v.items...), nil
	case *Tuple:
		return v.items, nil
	case *DictView:
		return v.items(), nil
	case *Dict:
		return v.Keys(), nil
	case *Set:
		return v.Items(), nil
	case *FrozenSet:
		return v.Items(), nil
	}
	it, err := Iter(ctx, o)
	if err != nil {
		return nil, err
	}
	var out []Object
	for {
		item, ok, err := Next(ctx, it)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, item)
	}
}
