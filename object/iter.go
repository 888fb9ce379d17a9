package object

import "context"

// SeqIter iterates a fixed snapshot of items.
type SeqIter struct {
	items []Object
	i     int
	typ   *Type
}

// NewSeqIter iterates items, reporting typ as its type.
func NewSeqIter(items []Object, typ *Type) *SeqIter {
	return &SeqIter{items: items, typ: typ}
}

func (it *SeqIter) Type() *Type { return it.typ }

func (it *SeqIter) Next(ctx context.Context) (Object, bool, error) {
	if it.i >= len(it.items) {
		return nil, false, nil
	}
	v := it.items[it.i]
	it.i++
	return v, true, nil
}

// ListIter iterates a list, observing changes made during iteration.
type ListIter struct {
	l       *List
	i       int
	reverse bool
}

func (it *ListIter) Type() *Type {
	if it.reverse {
		return ListReverseIterType
	}
	return ListIteratorType
}

func (it *ListIter) Next(ctx context.Context) (Object, bool, error) {
	if it.l == nil {
		return nil, false, nil
	}
	if it.reverse {
		if it.i < 0 || it.i >= len(it.l.items) {
			it.l = nil
			return nil, false, nil
		}
		v := it.l.items[it.i]
		it.i--
		return v, true, nil
	}
	if it.i >= len(it.l.items) {
		it.l = nil
		return nil, false, nil
	}
	v := it.l.items[it.i]
	it.i++
	return v, true, nil
}

// StrIter iterates the code points of a str.
type StrIter struct {
	runes []rune
	i     int
}

func (it *StrIter) Type() *Type { return StrIteratorType }

func (it *StrIter) Next(ctx context.Context) (Object, bool, error) {
	if it.i >= len(it.runes) {
		return nil, false, nil
	}
	r := it.runes[it.i]
	it.i++
	return NewStr(string(r)), true, nil
}

// BytesIter iterates the bytes of a bytes or bytearray object.
type BytesIter struct {
	data func() []byte
	i    int
}

func (it *BytesIter) Type() *Type { return BytesIteratorType }

func (it *BytesIter) Next(ctx context.Context) (Object, bool, error) {
	data := it.data()
	if it.i >= len(data) {
		return nil, false, nil
	}
	c := data[it.i]
	it.i++
	return NewInt(int64(c)), true, nil
}

// GetItemIter iterates an object through __getitem__ with increasing
// indices until IndexError or StopIteration.
type GetItemIter struct {
	seq Object
	i   int64
}

func (it *GetItemIter) Type() *Type { return SeqIteratorType }

func (it *GetItemIter) Next(ctx context.Context) (Object, bool, error) {
	if it.seq == nil {
		return nil, false, nil
	}
	v, err := GetItem(ctx, it.seq, NewInt(it.i))
	if err != nil {
		if IsExceptionOf(err, IndexErrorType) || IsExceptionOf(err, StopIterationType) {
			it.seq = nil
			return nil, false, nil
		}
		return nil, false, err
	}
	it.i++
	return v, true, nil
}

// CallableIter calls a function until it returns the sentinel.
type CallableIter struct {
	fn       Object
	sentinel Object
}

// NewCallableIter implements iter(callable, sentinel).
func NewCallableIter(fn, sentinel Object) *CallableIter {
	return &CallableIter{fn: fn, sentinel: sentinel}
}

func (it *CallableIter) Type() *Type { return CallableIteratorType }

func (it *CallableIter) Next(ctx context.Context) (Object, bool, error) {
	if it.fn == nil {
		return nil, false, nil
	}
	v, err := Call(ctx, it.fn, nil, nil)
	if err != nil {
		if IsExceptionOf(err, StopIterationType) {
			it.fn = nil
			return nil, false, nil
		}
		return nil, false, err
	}
	eq, err := Equal(ctx, v, it.sentinel)
	if err != nil {
		return nil, false, err
	}
	if eq {
		it.fn = nil
		return nil, false, nil
	}
	return v, true, nil
}

// Iter returns an iterator over o.
func Iter(ctx context.Context, o Object) (Object, error) {
	switch v := o.(type) {
	case *List:
		return &ListIter{l: v}, nil
	case *Tuple:
		return NewSeqIter(v.items, TupleIteratorType), nil
	case *Str:
		return &StrIter{runes: v.Runes()}, nil
	case *Bytes:
		return &BytesIter{data: func() []byte { return v.value }}, nil
	case *ByteArray:
		return &BytesIter{data: func() []byte { return v.value }}, nil
	case *Range:
		return &RangeIter{next: v.start, step: v.step, remaining: v.length()}, nil
	case *Dict:
		return &DictIter{it: newTableIter(&v.t, "dictionary"), kind: viewKeys}, nil
	case *DictView:
		return v.iter(), nil
	case *Set:
		return newSetIter(&v.t), nil
	case *FrozenSet:
		return newSetIter(&v.t), nil
	case Iterator:
		return v, nil
	}
	t := o.Type()
	if fn := t.Lookup("__iter__"); fn != nil {
		if fn == Object(None) {
			return nil, TypeErrorf("'%s' object is not iterable", t.name)
		}
		it, err := callBound(ctx, fn, o, nil, nil)
		if err != nil {
			return nil, err
		}
		if !isIterator(it) {
			return nil, TypeErrorf("iter() returned non-iterator of type '%s'", it.Type().name)
		}
		return it, nil
	}
	if t.Lookup("__getitem__") != nil {
		return &GetItemIter{seq: o}, nil
	}
	return nil, TypeErrorf("'%s' object is not iterable", t.name)
}

func isIterator(o Object) bool {
	if _, ok := o.(Iterator); ok {
		return true
	}
	return o.Type().Lookup("__next__") != nil
}

// Next advances an iterator. ok is false once it is exhausted.
func Next(ctx context.Context, it Object) (Object, bool, error) {
	if n, ok := it.(Iterator); ok {
		return n.Next(ctx)
	}
	fn := it.Type().Lookup("__next__")
	if fn == nil {
		return nil, false, TypeErrorf("'%s' object is not an iterator", it.Type().name)
	}
	v, err := callBound(ctx, fn, it, nil, nil)
	if err != nil {
		if IsExceptionOf(err, StopIterationType) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

// Reversed implements reversed(o).
func Reversed(ctx context.Context, o Object) (Object, error) {
	switch v := o.(type) {
	case *List:
		return &ListIter{l: v, i: len(v.items) - 1, reverse: true}, nil
	case *Tuple:
		items := make([]Object, len(v.items))
		for i, item := range v.items {
			items[len(items)-1-i] = item
		}
		return NewSeqIter(items, ReversedType), nil
	case *Str:
		runes := v.Runes()
		items := make([]Object, len(runes))
		for i, r := range runes {
			items[len(items)-1-i] = NewStr(string(r))
		}
		return NewSeqIter(items, ReversedType), nil
	}
	if fn := o.Type().Lookup("__reversed__"); fn != nil {
		if fn == Object(None) {
			return nil, TypeErrorf("'%s' object is not reversible", o.Type().name)
		}
		return callBound(ctx, fn, o, nil, nil)
	}
	if o.Type().Lookup("__getitem__") == nil || o.Type().Lookup("__len__") == nil {
		return nil, TypeErrorf("'%s' object is not reversible", o.Type().name)
	}
	n, err := Len(ctx, o)
	if err != nil {
		return nil, err
	}
	return &reversedIter{seq: o, i: n - 1}, nil
}

type reversedIter struct {
	seq Object
	i   int
}

func (it *reversedIter) Type() *Type { return ReversedType }

func (it *reversedIter) Next(ctx context.Context) (Object, bool, error) {
	if it.i < 0 {
		return nil, false, nil
	}
	v, err := GetItem(ctx, it.seq, NewInt(int64(it.i)))
	if err != nil {
		if IsExceptionOf(err, IndexErrorType) || IsExceptionOf(err, StopIterationType) {
			it.i = -1
			return nil, false, nil
		}
		return nil, false, err
	}
	it.i--
	return v, true, nil
}

// Enumerate pairs items of an iterator with a counter.
type Enumerate struct {
	it Object
	n  *Int
}

func (e *Enumerate) Type() *Type { return EnumerateType }

func (e *Enumerate) Next(ctx context.Context) (Object, bool, error) {
	v, ok, err := Next(ctx, e.it)
	if err != nil || !ok {
		return nil, false, err
	}
	i := e.n
	e.n = intAdd(e.n, NewInt(1))
	return NewTuple([]Object{i, v}), true, nil
}

// Zip yields tuples drawing one item from each iterator.
type Zip struct {
	its    []Object
	strict bool
	done   bool
}

func (z *Zip) Type() *Type { return ZipType }

func (z *Zip) Next(ctx context.Context) (Object, bool, error) {
	if z.done || len(z.its) == 0 {
		return nil, false, nil
	}
	items := make([]Object, len(z.its))
	for i, it := range z.its {
		v, ok, err := Next(ctx, it)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			z.done = true
			if z.strict {
				return nil, false, z.checkStrict(ctx, i)
			}
			return nil, false, nil
		}
		items[i] = v
	}
	return NewTuple(items), true, nil
}

func (z *Zip) checkStrict(ctx context.Context, stopped int) error {
	plural := func(i int) string {
		if i == 1 {
			return " "
		}
		return "s 1-"
	}
	if stopped > 0 {
		return ValueErrorf("zip() argument %d is shorter than argument%s%d", stopped+1, plural(stopped), stopped)
	}
	for i, it := range z.its[1:] {
		_, ok, err := Next(ctx, it)
		if err != nil {
			return err
		}
		if ok {
			return ValueErrorf("zip() argument %d is longer than argument%s%d", i+2, plural(i+1), i+1)
		}
	}
	return nil
}

// Map applies a function to items drawn from iterators.
type Map struct {
	fn  Object
	its []Object
}

func (m *Map) Type() *Type { return MapType }

func (m *Map) Next(ctx context.Context) (Object, bool, error) {
	args := make([]Object, len(m.its))
	for i, it := range m.its {
		v, ok, err := Next(ctx, it)
		if err != nil || !ok {
			return nil, false, err
		}
		args[i] = v
	}
	v, err := Call(ctx, m.fn, args, nil)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Filter yields the items for which a predicate is true.
type Filter struct {
	fn Object
	it Object
}

func (f *Filter) Type() *Type { return FilterType }

func (f *Filter) Next(ctx context.Context) (Object, bool, error) {
	for {
		v, ok, err := Next(ctx, f.it)
		if err != nil || !ok {
			return nil, false, err
		}
		test := v
		if !IsNone(f.fn) {
			if test, err = Call(ctx, f.fn, []Object{v}, nil); err != nil {
				return nil, false, err
			}
		}
		t, err := Truthy(ctx, test)
		if err != nil {
			return nil, false, err
		}
		if t {
			return v, true, nil
		}
	}
}

func iterAll(ctx context.Context, objs []Object) ([]Object, error) {
	its := make([]Object, len(objs))
	for i, o := range objs {
		it, err := Iter(ctx, o)
		if err != nil {
			return nil, err
		}
		its[i] = it
	}
	return its, nil
}

// iterTypes lists the builtin iterator types sharing __iter__ and
// __next__.
func iterTypes() []*Type {
	return []*Type{
		SeqIteratorType, CallableIteratorType, ListIteratorType, ListReverseIterType,
		TupleIteratorType, StrIteratorType, BytesIteratorType, RangeIteratorType,
		SetIteratorType, DictKeyIteratorType, DictValueIteratorType, DictItemIteratorType,
		EnumerateType, ZipType, MapType, FilterType, ReversedType,
	}
}

func nativeIter(o Object) (Iterator, bool) {
	if it, ok := o.(Iterator); ok {
		return it, true
	}
	if inst, ok := o.(*Instance); ok && inst.native != nil {
		it, ok := inst.native.(Iterator)
		return it, ok
	}
	return nil, false
}

func init() {
	for _, t := range iterTypes() {
		m := NewMethods(t, nativeIter)
		m.Define("__iter__").Impl(func(it Iterator, ctx context.Context, args Args) (Object, error) {
			return it, nil
		})
		m.Define("__next__").Impl(func(it Iterator, ctx context.Context, args Args) (Object, error) {
			v, ok, err := it.Next(ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, NewStopIteration(nil)
			}
			return v, nil
		})
	}

	em := NewMethods(EnumerateType, exact[*Enumerate])
	em.New([]string{"iterable", "start"}, 1, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		it, err := Iter(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		start := NewInt(0)
		if args.Has(1) {
			n, ok := asInt(args.Get(1))
			if !ok {
				return nil, TypeErrorf("'%s' object cannot be interpreted as an integer", args.Get(1).Type().name)
			}
			start = n
		}
		return newNativeInstance(cls, &Enumerate{it: it, n: start}), nil
	})

	zm := NewMethods(ZipType, exact[*Zip])
	zipNew := zm.New(nil, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		its, err := iterAll(ctx, args.Rest)
		if err != nil {
			return nil, err
		}
		z := &Zip{its: its}
		if args.Kwargs != nil {
			for _, k := range args.Kwargs.Keys() {
				if ks := k.(*Str); ks.value != "strict" {
					return nil, TypeErrorf("zip() got an unexpected keyword argument '%s'", ks.value)
				}
			}
			strict, err := Truthy(ctx, args.Kwargs.GetStr("strict"))
			if err != nil {
				return nil, err
			}
			z.strict = strict
		}
		return newNativeInstance(cls, z), nil
	})
	zipNew.variadic, zipNew.kwargs = true, true

	mm := NewMethods(MapType, exact[*Map])
	mapNew := mm.New([]string{"func"}, 1, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		if len(args.Rest) == 0 {
			return nil, TypeErrorf("map() must have at least two arguments.")
		}
		its, err := iterAll(ctx, args.Rest)
		if err != nil {
			return nil, err
		}
		return newNativeInstance(cls, &Map{fn: args.Get(0), its: its}), nil
	})
	mapNew.variadic = true

	fm := NewMethods(FilterType, exact[*Filter])
	fm.New([]string{"function", "iterable"}, 2, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		it, err := Iter(ctx, args.Get(1))
		if err != nil {
			return nil, err
		}
		return newNativeInstance(cls, &Filter{fn: args.Get(0), it: it}), nil
	})

	rm := NewMethods(ReversedType, exact[Object])
	rm.New([]string{"sequence"}, 1, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		return Reversed(ctx, args.Get(0))
	})
}
