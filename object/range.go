package object

import (
	"context"
	"fmt"
)

// Range is the immutable arithmetic sequence built by range().
type Range struct {
	start, stop, step int64
}

// NewRange creates a range. step must not be zero.
func NewRange(start, stop, step int64) *Range {
	return &Range{start: start, stop: stop, step: step}
}

func (r *Range) Type() *Type { return RangeType }

// Start returns the first value of the range.
func (r *Range) Start() int64 { return r.start }

// Stop returns the exclusive bound of the range.
func (r *Range) Stop() int64 { return r.stop }

// Step returns the stride of the range.
func (r *Range) Step() int64 { return r.step }

func (r *Range) length() int64 {
	switch {
	case r.step > 0 && r.start < r.stop:
		return (r.stop-r.start-1)/r.step + 1
	case r.step < 0 && r.start > r.stop:
		return (r.start-r.stop-1)/(-r.step) + 1
	}
	return 0
}

func (r *Range) at(i int64) int64 { return r.start + i*r.step }

func (r *Range) String() string {
	if r.step == 1 {
		return fmt.Sprintf("range(%d, %d)", r.start, r.stop)
	}
	return fmt.Sprintf("range(%d, %d, %d)", r.start, r.stop, r.step)
}

// rangeEqual compares ranges as sequences.
func rangeEqual(a, b *Range) bool {
	n := a.length()
	if n != b.length() {
		return false
	}
	if n == 0 {
		return true
	}
	if a.start != b.start {
		return false
	}
	return n == 1 || a.step == b.step
}

func rangeGetItem(ctx context.Context, r *Range, key Object) (Object, error) {
	n := r.length()
	if s, ok := key.(*Slice); ok {
		start, _, step, cnt, err := s.Indices(ctx, int(n))
		if err != nil {
			return nil, err
		}
		first := r.at(int64(start))
		nstep := r.step * int64(step)
		return NewRange(first, first+int64(cnt)*nstep, nstep), nil
	}
	if !isIndexable(key) {
		return nil, TypeErrorf("range indices must be integers or slices, not %s", key.Type().name)
	}
	i, err := IndexInt(ctx, key)
	if err != nil {
		return nil, err
	}
	idx, ok := normIndex(i, int(n))
	if !ok {
		return nil, IndexErrorf("range object index out of range")
	}
	return NewInt(r.at(int64(idx))), nil
}

func rangeContains(ctx context.Context, r *Range, x Object) (bool, error) {
	n, ok := x.(*Int)
	if !ok {
		if b, isBool := x.(*Bool); isBool {
			n = intFromBool(b)
		} else {
			items := rangeItems(r)
			return seqContains(ctx, items, x)
		}
	}
	v, fits := n.Int64()
	if !fits {
		return false, nil
	}
	if r.step > 0 {
		if v < r.start || v >= r.stop {
			return false, nil
		}
	} else if v > r.start || v <= r.stop {
		return false, nil
	}
	return (v-r.start)%r.step == 0, nil
}

func rangeItems(r *Range) []Object {
	n := r.length()
	out := make([]Object, n)
	for i := int64(0); i < n; i++ {
		out[i] = NewInt(r.at(i))
	}
	return out
}

func rangeArg(ctx context.Context, o Object) (int64, error) {
	n, err := Index(ctx, o)
	if err != nil {
		return 0, err
	}
	v, ok := n.Int64()
	if !ok {
		return 0, OverflowErrorf("Python int too large to convert to C ssize_t")
	}
	return v, nil
}

// RangeIter iterates a range.
type RangeIter struct {
	next, step, remaining int64
}

func (it *RangeIter) Type() *Type { return RangeIteratorType }

func (it *RangeIter) Next(ctx context.Context) (Object, bool, error) {
	if it.remaining <= 0 {
		return nil, false, nil
	}
	v := it.next
	it.next += it.step
	it.remaining--
	return NewInt(v), true, nil
}

func init() {
	m := NewMethods(RangeType, exact[*Range])
	m.New([]string{"start", "stop", "step"}, 1, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		if !args.Has(1) {
			stop, err := rangeArg(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			return NewRange(0, stop, 1), nil
		}
		start, err := rangeArg(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		stop, err := rangeArg(ctx, args.Get(1))
		if err != nil {
			return nil, err
		}
		step := int64(1)
		if args.Has(2) {
			if step, err = rangeArg(ctx, args.Get(2)); err != nil {
				return nil, err
			}
			if step == 0 {
				return nil, ValueErrorf("range() arg 3 must not be zero")
			}
		}
		return NewRange(start, stop, step), nil
	})
	m.Attr("start", func(r *Range) Object { return NewInt(r.start) })
	m.Attr("stop", func(r *Range) Object { return NewInt(r.stop) })
	m.Attr("step", func(r *Range) Object { return NewInt(r.step) })
	m.Define("count").Arg("value").Impl(func(r *Range, ctx context.Context, args Args) (Object, error) {
		ok, err := rangeContains(ctx, r, args.Get(0))
		if err != nil {
			return nil, err
		}
		if ok {
			return NewInt(1), nil
		}
		return NewInt(0), nil
	})
	m.Define("index").Arg("value").Impl(func(r *Range, ctx context.Context, args Args) (Object, error) {
		ok, err := rangeContains(ctx, r, args.Get(0))
		if err != nil {
			return nil, err
		}
		n, isInt := asInt(args.Get(0))
		if !ok || !isInt {
			s, err := Repr(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			return nil, ValueErrorf("%s is not in range", s)
		}
		v, _ := n.Int64()
		return NewInt((v - r.start) / r.step), nil
	})
	m.Define("__hash__").Impl(func(r *Range, ctx context.Context, args Args) (Object, error) {
		n := r.length()
		key := []Object{NewInt(n), None, None}
		if n > 0 {
			key[1] = NewInt(r.start)
		}
		if n > 1 {
			key[2] = NewInt(r.step)
		}
		h, err := hashTuple(ctx, key)
		if err != nil {
			return nil, err
		}
		return NewInt(h), nil
	})
	m.Define("__reversed__").Impl(func(r *Range, ctx context.Context, args Args) (Object, error) {
		n := r.length()
		return &RangeIter{next: r.at(n - 1), step: -r.step, remaining: n}, nil
	})
}
