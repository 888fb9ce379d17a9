package object

import (
	"context"
	"strings"
)

// Set is a mutable, insertion-ordered set.
type Set struct {
	t table
}

// FrozenSet is an immutable set.
type FrozenSet struct {
	t table
}

// NewSet returns an empty set.
func NewSet() *Set { return &Set{} }

// NewFrozenSet returns an empty frozenset.
func NewFrozenSet() *FrozenSet { return &FrozenSet{} }

func (s *Set) Type() *Type       { return SetType }
func (s *FrozenSet) Type() *Type { return FrozenSetType }

// Len returns the number of elements.
func (s *Set) Len() int       { return s.t.used }
func (s *FrozenSet) Len() int { return s.t.used }

// Items returns the elements in insertion order.
func (s *Set) Items() []Object       { return tableKeys(&s.t) }
func (s *FrozenSet) Items() []Object { return tableKeys(&s.t) }

// Add inserts an element.
func (s *Set) Add(ctx context.Context, o Object) error { return tableAdd(ctx, &s.t, o) }

// Add inserts an element while the frozenset is being built.
func (s *FrozenSet) Add(ctx context.Context, o Object) error { return tableAdd(ctx, &s.t, o) }

// Contains reports membership.
func (s *Set) Contains(ctx context.Context, o Object) (bool, error) { return tableHas(ctx, &s.t, o) }

// Contains reports membership.
func (s *FrozenSet) Contains(ctx context.Context, o Object) (bool, error) {
	return tableHas(ctx, &s.t, o)
}

func tableKeys(t *table) []Object {
	out := make([]Object, 0, t.used)
	for _, e := range t.entries {
		if e.key != nil {
			out = append(out, e.key)
		}
	}
	return out
}

// setKey hashes a candidate element; a set probing for membership is
// treated as the equal frozenset.
func setKey(ctx context.Context, o Object) (Object, int64, error) {
	if s, ok := o.(*Set); ok {
		o = &FrozenSet{t: s.t.copy()}
	}
	h, err := Hash(ctx, o)
	return o, h, err
}

func tableAdd(ctx context.Context, t *table, o Object) error {
	h, err := Hash(ctx, o)
	if err != nil {
		return err
	}
	i, err := t.find(ctx, o, h)
	if err != nil || i >= 0 {
		return err
	}
	t.appendEntry(o, h, nil)
	return nil
}

func tableHas(ctx context.Context, t *table, o Object) (bool, error) {
	key, h, err := setKey(ctx, o)
	if err != nil {
		return false, err
	}
	i, err := t.find(ctx, key, h)
	return i >= 0, err
}

func tableDiscard(ctx context.Context, t *table, o Object) (bool, error) {
	key, h, err := setKey(ctx, o)
	if err != nil {
		return false, err
	}
	i, err := t.find(ctx, key, h)
	if err != nil || i < 0 {
		return false, err
	}
	t.removeAt(i)
	return true, nil
}

// setTable returns the table of a set, frozenset or dict keys view.
func setTable(o Object) (*table, bool) {
	switch v := o.(type) {
	case *Set:
		return &v.t, true
	case *FrozenSet:
		return &v.t, true
	case *DictView:
		if v.kind == viewKeys {
			return &v.d.t, true
		}
	case *Instance:
		return setTable(v.native)
	}
	return nil, false
}

// tableOf builds a table from any iterable, reusing set tables directly.
func tableOf(ctx context.Context, o Object) (*table, error) {
	if t, ok := setTable(o); ok {
		return t, nil
	}
	items, err := ToSlice(ctx, o)
	if err != nil {
		return nil, err
	}
	var t table
	for _, item := range items {
		if err := tableAdd(ctx, &t, item); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func tableUnion(ctx context.Context, a, b *table) (table, error) {
	out := a.copy()
	for _, e := range b.live() {
		i, err := out.find(ctx, e.key, e.hash)
		if err != nil {
			return out, err
		}
		if i < 0 {
			out.appendEntry(e.key, e.hash, nil)
		}
	}
	return out, nil
}

func tableIntersection(ctx context.Context, a, b *table) (table, error) {
	var out table
	for _, e := range a.live() {
		i, err := b.find(ctx, e.key, e.hash)
		if err != nil {
			return out, err
		}
		if i >= 0 {
			out.appendEntry(e.key, e.hash, nil)
		}
	}
	return out, nil
}

func tableDifference(ctx context.Context, a, b *table) (table, error) {
	var out table
	for _, e := range a.live() {
		i, err := b.find(ctx, e.key, e.hash)
		if err != nil {
			return out, err
		}
		if i < 0 {
			out.appendEntry(e.key, e.hash, nil)
		}
	}
	return out, nil
}

func tableSymDiff(ctx context.Context, a, b *table) (table, error) {
	out, err := tableDifference(ctx, a, b)
	if err != nil {
		return out, err
	}
	for _, e := range b.live() {
		i, err := a.find(ctx, e.key, e.hash)
		if err != nil {
			return out, err
		}
		if i < 0 {
			out.appendEntry(e.key, e.hash, nil)
		}
	}
	return out, nil
}

func tableSubset(ctx context.Context, a, b *table) (bool, error) {
	if a.used > b.used {
		return false, nil
	}
	for _, e := range a.live() {
		i, err := b.find(ctx, e.key, e.hash)
		if err != nil || i < 0 {
			return false, err
		}
	}
	return true, nil
}

// setOp applies a binary set operator to two set-like operands. It
// returns NotImplemented when either operand is not set-like.
func setOp(ctx context.Context, opname string, a, b Object) (Object, error) {
	ta, ok := setTable(a)
	if !ok {
		return NotImplemented, nil
	}
	tb, ok := setTable(b)
	if !ok {
		return NotImplemented, nil
	}
	var out table
	var err error
	switch opname {
	case "|":
		out, err = tableUnion(ctx, ta, tb)
	case "&":
		out, err = tableIntersection(ctx, ta, tb)
	case "-":
		out, err = tableDifference(ctx, ta, tb)
	case "^":
		out, err = tableSymDiff(ctx, ta, tb)
	default:
		return NotImplemented, nil
	}
	if err != nil {
		return nil, err
	}
	if _, ok := exact[*FrozenSet](a); ok {
		return &FrozenSet{t: out}, nil
	}
	return &Set{t: out}, nil
}

// setInplace implements |=, &=, -= and ^= on a mutable set.
func setInplace(ctx context.Context, opname string, s *Set, b Object) (Object, error) {
	tb, ok := setTable(b)
	if !ok {
		return NotImplemented, nil
	}
	var out table
	var err error
	switch opname {
	case "|":
		out, err = tableUnion(ctx, &s.t, tb)
	case "&":
		out, err = tableIntersection(ctx, &s.t, tb)
	case "-":
		out, err = tableDifference(ctx, &s.t, tb)
	case "^":
		out, err = tableSymDiff(ctx, &s.t, tb)
	default:
		return NotImplemented, nil
	}
	if err != nil {
		return nil, err
	}
	s.replace(out)
	return s, nil
}

func (s *Set) replace(t table) {
	gen := s.t.gen
	s.t = t
	s.t.gen = gen + 1
}

// setCompare implements the subset/superset comparisons.
func setCompare(ctx context.Context, cop CompareOp, a, b Object) (Object, error) {
	ta, ok := setTable(a)
	if !ok {
		return NotImplemented, nil
	}
	tb, ok := setTable(b)
	if !ok {
		return NotImplemented, nil
	}
	var r bool
	var err error
	switch cop {
	case CmpEq, CmpNe:
		r = ta.used == tb.used
		if r {
			r, err = tableSubset(ctx, ta, tb)
		}
		if cop == CmpNe {
			r = !r
		}
	case CmpLe:
		r, err = tableSubset(ctx, ta, tb)
	case CmpLt:
		r = ta.used < tb.used
		if r {
			r, err = tableSubset(ctx, ta, tb)
		}
	case CmpGe:
		r, err = tableSubset(ctx, tb, ta)
	case CmpGt:
		r = ta.used > tb.used
		if r {
			r, err = tableSubset(ctx, tb, ta)
		}
	}
	if err != nil {
		return nil, err
	}
	return NewBool(r), nil
}

func setRepr(ctx context.Context, o Object, t *table) (string, error) {
	name := o.Type().name
	frozen := o.Type().IsSubtype(FrozenSetType)
	if t.used == 0 {
		return name + "()", nil
	}
	var sb strings.Builder
	if frozen || o.Type() != SetType {
		sb.WriteString(name)
		sb.WriteByte('(')
	}
	sb.WriteByte('{')
	for i, e := range t.live() {
		if i > 0 {
			sb.WriteString(", ")
		}
		r, err := Repr(ctx, e.key)
		if err != nil {
			return "", err
		}
		sb.WriteString(r)
	}
	sb.WriteByte('}')
	if frozen || o.Type() != SetType {
		sb.WriteByte(')')
	}
	return sb.String(), nil
}

// SetIter iterates a set in insertion order.
type SetIter struct {
	it tableIter
}

func (it *SetIter) Type() *Type { return SetIteratorType }

func (it *SetIter) Next(ctx context.Context) (Object, bool, error) {
	e, ok, err := it.it.next()
	if err != nil || !ok {
		return nil, false, err
	}
	return e.key, true, nil
}

func newSetIter(t *table) *SetIter {
	return &SetIter{it: newTableIter(t, "Set")}
}

// defineSetQueries installs the non-mutating methods shared by set and
// frozenset.
func defineSetQueries[T Object](m *Methods[T], tab func(T) *table, wrap func(table) Object) {
	multi := func(name string, combine func(context.Context, *table, *table) (table, error)) {
		m.Define(name).Variadic().Impl(func(self T, ctx context.Context, args Args) (Object, error) {
			out := tab(self).copy()
			for _, other := range args.Rest {
				ot, err := tableOf(ctx, other)
				if err != nil {
					return nil, err
				}
				if out, err = combine(ctx, &out, ot); err != nil {
					return nil, err
				}
			}
			return wrap(out), nil
		})
	}
	multi("union", tableUnion)
	multi("intersection", tableIntersection)
	multi("difference", tableDifference)
	m.Define("symmetric_difference").Arg("other").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		ot, err := tableOf(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		out, err := tableSymDiff(ctx, tab(self), ot)
		if err != nil {
			return nil, err
		}
		return wrap(out), nil
	})
	m.Define("issubset").Arg("other").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		ot, err := tableOf(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		r, err := tableSubset(ctx, tab(self), ot)
		if err != nil {
			return nil, err
		}
		return NewBool(r), nil
	})
	m.Define("issuperset").Arg("other").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		ot, err := tableOf(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		r, err := tableSubset(ctx, ot, tab(self))
		if err != nil {
			return nil, err
		}
		return NewBool(r), nil
	})
	m.Define("isdisjoint").Arg("other").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		ot, err := tableOf(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		inter, err := tableIntersection(ctx, tab(self), ot)
		if err != nil {
			return nil, err
		}
		return NewBool(inter.used == 0), nil
	})
}

func init() {
	sm := NewMethods[*Set](SetType, exact[*Set])
	newSet := sm.New(nil, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		if cls == SetType {
			return NewSet(), nil
		}
		return newNativeInstance(cls, NewSet()), nil
	})
	newSet.variadic = true
	sm.Define("__init__").OptArg("iterable").Impl(func(s *Set, ctx context.Context, args Args) (Object, error) {
		var t table
		if args.Has(0) {
			items, err := ToSlice(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			for _, item := range items {
				if err := tableAdd(ctx, &t, item); err != nil {
					return nil, err
				}
			}
		}
		s.replace(t)
		return None, nil
	})
	defineSetQueries(sm, func(s *Set) *table { return &s.t }, func(t table) Object { return &Set{t: t} })
	sm.Define("add").Arg("elem").Impl(func(s *Set, ctx context.Context, args Args) (Object, error) {
		return None, s.Add(ctx, args.Get(0))
	})
	sm.Define("discard").Arg("elem").Impl(func(s *Set, ctx context.Context, args Args) (Object, error) {
		_, err := tableDiscard(ctx, &s.t, args.Get(0))
		if err != nil {
			return nil, err
		}
		return None, nil
	})
	sm.Define("remove").Arg("elem").Impl(func(s *Set, ctx context.Context, args Args) (Object, error) {
		ok, err := tableDiscard(ctx, &s.t, args.Get(0))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, NewKeyError(args.Get(0))
		}
		return None, nil
	})
	sm.Define("pop").Impl(func(s *Set, ctx context.Context, args Args) (Object, error) {
		for i, e := range s.t.entries {
			if e.key != nil {
				s.t.removeAt(i)
				return e.key, nil
			}
		}
		return nil, NewKeyError(NewStr("pop from an empty set"))
	})
	sm.Define("clear").Impl(func(s *Set, ctx context.Context, args Args) (Object, error) {
		s.t.clear()
		return None, nil
	})
	sm.Define("copy").Impl(func(s *Set, ctx context.Context, args Args) (Object, error) {
		return &Set{t: s.t.copy()}, nil
	})
	update := func(name string, combine func(context.Context, *table, *table) (table, error)) {
		sm.Define(name).Variadic().Impl(func(s *Set, ctx context.Context, args Args) (Object, error) {
			out := s.t.copy()
			for _, other := range args.Rest {
				ot, err := tableOf(ctx, other)
				if err != nil {
					return nil, err
				}
				if out, err = combine(ctx, &out, ot); err != nil {
					return nil, err
				}
			}
			s.replace(out)
			return None, nil
		})
	}
	update("update", tableUnion)
	update("intersection_update", tableIntersection)
	update("difference_update", tableDifference)
	update("symmetric_difference_update", tableSymDiff)

	fm := NewMethods[*FrozenSet](FrozenSetType, exact[*FrozenSet])
	fm.New([]string{"iterable"}, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		fs := NewFrozenSet()
		if args.Has(0) {
			if src, ok := args.Get(0).(*FrozenSet); ok && cls == FrozenSetType {
				return src, nil
			}
			items, err := ToSlice(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			for _, item := range items {
				if err := fs.Add(ctx, item); err != nil {
					return nil, err
				}
			}
		}
		if cls == FrozenSetType {
			return fs, nil
		}
		return newNativeInstance(cls, fs), nil
	})
	defineSetQueries(fm, func(s *FrozenSet) *table { return &s.t }, func(t table) Object { return &FrozenSet{t: t} })
	fm.Define("copy").Impl(func(s *FrozenSet, ctx context.Context, args Args) (Object, error) {
		return s, nil
	})
}
