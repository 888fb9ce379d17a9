package object

import (
	"context"
	"slices"
	"sort"
)

// Tuple is an immutable sequence.
type Tuple struct {
	items []Object
}

var emptyTuple = &Tuple{items: []Object{}}

// NewTuple returns a tuple owning items.
func NewTuple(items []Object) *Tuple {
	if len(items) == 0 {
		return emptyTuple
	}
	return &Tuple{items: items}
}

func (t *Tuple) Type() *Type { return TupleType }

// Items returns the elements; they must not be modified.
func (t *Tuple) Items() []Object { return t.items }

// Len returns the number of elements.
func (t *Tuple) Len() int { return len(t.items) }

// List is a mutable sequence.
type List struct {
	items []Object
}

// NewList returns a list owning items.
func NewList(items []Object) *List {
	if items == nil {
		items = []Object{}
	}
	return &List{items: items}
}

func (l *List) Type() *Type { return ListType }

// Items returns the backing slice.
func (l *List) Items() []Object { return l.items }

// Len returns the number of elements.
func (l *List) Len() int { return len(l.items) }

// Append adds an item to the end of the list.
func (l *List) Append(o Object) { l.items = append(l.items, o) }

// SetItems replaces the contents of the list.
func (l *List) SetItems(items []Object) { l.items = items }

func asTuple(o Object) (*Tuple, bool) { return exact[*Tuple](o) }
func asList(o Object) (*List, bool)   { return exact[*List](o) }

func repeatItems(items []Object, n int) ([]Object, error) {
	if n <= 0 || len(items) == 0 {
		return []Object{}, nil
	}
	if len(items) > (1<<31)/n {
		return nil, MemoryErrorf("")
	}
	out := make([]Object, 0, len(items)*n)
	for i := 0; i < n; i++ {
		out = append(out, items...)
	}
	return out, nil
}

func concatItems(a, b []Object) []Object {
	out := make([]Object, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// seqEqual compares two sequences element-wise.
func seqEqual(ctx context.Context, a, b []Object) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	for i := range a {
		eq, err := Equal(ctx, a[i], b[i])
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

// seqCompare orders two sequences lexicographically.
func seqCompare(ctx context.Context, cop CompareOp, a, b []Object) (Object, error) {
	i := 0
	for ; i < len(a) && i < len(b); i++ {
		eq, err := Equal(ctx, a[i], b[i])
		if err != nil {
			return nil, err
		}
		if !eq {
			break
		}
	}
	if i >= len(a) || i >= len(b) {
		return NewBool(compareInts(cop, len(a), len(b))), nil
	}
	switch cop {
	case CmpEq:
		return False, nil
	case CmpNe:
		return True, nil
	}
	return RichCompare(ctx, cop, a[i], b[i])
}

func compareInts(cop CompareOp, a, b int) bool {
	switch cop {
	case CmpLt:
		return a < b
	case CmpLe:
		return a <= b
	case CmpEq:
		return a == b
	case CmpNe:
		return a != b
	case CmpGt:
		return a > b
	default:
		return a >= b
	}
}

func seqIndex(ctx context.Context, items []Object, args Args, what string) (Object, error) {
	lo, hi, err := clampRange(ctx, args.Get(1), args.Get(2), len(items))
	if err != nil {
		return nil, err
	}
	for i := lo; i < hi && i < len(items); i++ {
		eq, err := Equal(ctx, items[i], args.Get(0))
		if err != nil {
			return nil, err
		}
		if eq {
			return NewInt(int64(i)), nil
		}
	}
	return nil, ValueErrorf("%s", what)
}

func seqCount(ctx context.Context, items []Object, x Object) (Object, error) {
	n := 0
	for i := 0; i < len(items); i++ {
		eq, err := Equal(ctx, items[i], x)
		if err != nil {
			return nil, err
		}
		if eq {
			n++
		}
	}
	return NewInt(int64(n)), nil
}

func seqContains(ctx context.Context, items []Object, x Object) (bool, error) {
	for i := 0; i < len(items); i++ {
		eq, err := Equal(ctx, items[i], x)
		if err != nil || eq {
			return eq, err
		}
	}
	return false, nil
}

// listSetSlice implements l[s] = values.
func listSetSlice(ctx context.Context, l *List, s *Slice, value Object) error {
	var values []Object
	if value == Object(l) {
		values = slices.Clone(l.items)
	} else {
		var err error
		if values, err = ToSlice(ctx, value); err != nil {
			return TypeErrorf("must assign iterable to extended slice")
		}
	}
	start, stop, step, n, err := s.Indices(ctx, len(l.items))
	if err != nil {
		return err
	}
	if step == 1 {
		if stop < start {
			stop = start
		}
		out := make([]Object, 0, len(l.items)-(stop-start)+len(values))
		out = append(out, l.items[:start]...)
		out = append(out, values...)
		out = append(out, l.items[stop:]...)
		l.items = out
		return nil
	}
	if len(values) != n {
		return ValueErrorf("attempt to assign sequence of size %d to extended slice of size %d", len(values), n)
	}
	for i, j := 0, start; i < n; i, j = i+1, j+step {
		l.items[j] = values[i]
	}
	return nil
}

// listDelSlice implements del l[s].
func listDelSlice(ctx context.Context, l *List, s *Slice) error {
	start, _, step, n, err := s.Indices(ctx, len(l.items))
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	drop := make(map[int]bool, n)
	for i, j := 0, start; i < n; i, j = i+1, j+step {
		drop[j] = true
	}
	out := l.items[:0:0]
	for i, item := range l.items {
		if !drop[i] {
			out = append(out, item)
		}
	}
	l.items = out
	return nil
}

// SortObjects sorts items in place with the < operator, optionally keyed
// and reversed. The sort is stable.
func SortObjects(ctx context.Context, items []Object, key Object, reverse bool) error {
	keys := items
	if !IsNone(key) {
		keys = make([]Object, len(items))
		for i, item := range items {
			k, err := Call(ctx, key, []Object{item}, nil)
			if err != nil {
				return err
			}
			keys[i] = k
		}
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	var sortErr error
	less := func(a, b Object) bool {
		if sortErr != nil {
			return false
		}
		r, err := RichCompare(ctx, CmpLt, a, b)
		if err != nil {
			sortErr = err
			return false
		}
		t, err := Truthy(ctx, r)
		if err != nil {
			sortErr = err
		}
		return t
	}
	sort.SliceStable(idx, func(i, j int) bool {
		if reverse {
			return less(keys[idx[j]], keys[idx[i]])
		}
		return less(keys[idx[i]], keys[idx[j]])
	})
	if sortErr != nil {
		return sortErr
	}
	sorted := make([]Object, len(items))
	for i, j := range idx {
		sorted[i] = items[j]
	}
	copy(items, sorted)
	return nil
}

func init() {
	tm := NewMethods[*Tuple](TupleType, asTuple)
	tm.New([]string{"iterable"}, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		var t *Tuple
		switch src := args.Get(0).(type) {
		case nil:
			t = emptyTuple
		case *Tuple:
			t = src
		default:
			items, err := ToSlice(ctx, src)
			if err != nil {
				return nil, err
			}
			t = NewTuple(items)
		}
		if cls == TupleType {
			return t, nil
		}
		return newNativeInstance(cls, t), nil
	})
	tm.Define("count").Arg("value").Impl(func(t *Tuple, ctx context.Context, args Args) (Object, error) {
		return seqCount(ctx, t.items, args.Get(0))
	})
	tm.Define("index").Arg("value").OptArg("start", "stop").Impl(func(t *Tuple, ctx context.Context, args Args) (Object, error) {
		return seqIndex(ctx, t.items, args, "tuple.index(x): x not in tuple")
	})
	tm.Define("__getnewargs__").Impl(func(t *Tuple, ctx context.Context, args Args) (Object, error) {
		return NewTuple([]Object{NewTuple(slices.Clone(t.items))}), nil
	})

	lm := NewMethods[*List](ListType, asList)
	// list.__new__ ignores its arguments; __init__ consumes them.
	newList := lm.New(nil, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		if cls == ListType {
			return NewList(nil), nil
		}
		return newNativeInstance(cls, NewList(nil)), nil
	})
	newList.variadic, newList.kwargs = true, true
	lm.Define("__init__").OptArg("iterable").Impl(func(l *List, ctx context.Context, args Args) (Object, error) {
		if !args.Has(0) {
			l.items = l.items[:0]
			return None, nil
		}
		items, err := ToSlice(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		l.items = slices.Clone(items)
		return None, nil
	})
	lm.Define("append").Arg("object").Impl(func(l *List, ctx context.Context, args Args) (Object, error) {
		l.items = append(l.items, args.Get(0))
		return None, nil
	})
	lm.Define("extend").Arg("iterable").Impl(func(l *List, ctx context.Context, args Args) (Object, error) {
		if err := listExtend(ctx, l, args.Get(0)); err != nil {
			return nil, err
		}
		return None, nil
	})
	lm.Define("insert").Arg("index", "object").Impl(func(l *List, ctx context.Context, args Args) (Object, error) {
		i, err := IndexInt(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		n := len(l.items)
		if i < 0 {
			i += n
			if i < 0 {
				i = 0
			}
		} else if i > n {
			i = n
		}
		l.items = slices.Insert(l.items, i, args.Get(1))
		return None, nil
	})
	lm.Define("pop").OptArg("index").Impl(func(l *List, ctx context.Context, args Args) (Object, error) {
		if len(l.items) == 0 {
			return nil, IndexErrorf("pop from empty list")
		}
		i := len(l.items) - 1
		if args.Has(0) {
			n, err := IndexInt(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			var ok bool
			if i, ok = normIndex(n, len(l.items)); !ok {
				return nil, IndexErrorf("pop index out of range")
			}
		}
		v := l.items[i]
		l.items = slices.Delete(l.items, i, i+1)
		return v, nil
	})
	lm.Define("remove").Arg("value").Impl(func(l *List, ctx context.Context, args Args) (Object, error) {
		for i := 0; i < len(l.items); i++ {
			eq, err := Equal(ctx, l.items[i], args.Get(0))
			if err != nil {
				return nil, err
			}
			if eq {
				l.items = slices.Delete(l.items, i, i+1)
				return None, nil
			}
		}
		return nil, ValueErrorf("list.remove(x): x not in list")
	})
	lm.Define("clear").Impl(func(l *List, ctx context.Context, args Args) (Object, error) {
		l.items = []Object{}
		return None, nil
	})
	lm.Define("copy").Impl(func(l *List, ctx context.Context, args Args) (Object, error) {
		return NewList(slices.Clone(l.items)), nil
	})
	lm.Define("count").Arg("value").Impl(func(l *List, ctx context.Context, args Args) (Object, error) {
		return seqCount(ctx, l.items, args.Get(0))
	})
	lm.Define("index").Arg("value").OptArg("start", "stop").Impl(func(l *List, ctx context.Context, args Args) (Object, error) {
		return seqIndex(ctx, l.items, args, "list.index(x): x not in list")
	})
	lm.Define("reverse").Impl(func(l *List, ctx context.Context, args Args) (Object, error) {
		slices.Reverse(l.items)
		return None, nil
	})
	lm.Define("sort").OptArg("key", "reverse").Impl(func(l *List, ctx context.Context, args Args) (Object, error) {
		reverse := false
		if args.Has(1) {
			r, err := Truthy(ctx, args.Get(1))
			if err != nil {
				return nil, err
			}
			reverse = r
		}
		items := slices.Clone(l.items)
		if err := SortObjects(ctx, items, args.Or(0, None), reverse); err != nil {
			return nil, err
		}
		if len(l.items) != len(items) {
			return nil, ValueErrorf("list modified during sort")
		}
		l.items = items
		return None, nil
	})
}

func listExtend(ctx context.Context, l *List, src Object) error {
	if src == Object(l) {
		l.items = append(l.items, slices.Clone(l.items)...)
		return nil
	}
	items, err := ToSlice(ctx, src)
	if err != nil {
		return err
	}
	l.items = append(l.items, items...)
	return nil
}
