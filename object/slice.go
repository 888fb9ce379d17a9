package object

import (
	"context"
	"math"
)

// Slice is the object built by a[start:stop:step].
type Slice struct {
	Start Object
	Stop  Object
	Step  Object
}

// NewSlice returns a slice; nil bounds become None.
func NewSlice(start, stop, step Object) *Slice {
	if start == nil {
		start = None
	}
	if stop == nil {
		stop = None
	}
	if step == nil {
		step = None
	}
	return &Slice{Start: start, Stop: stop, Step: step}
}

func (s *Slice) Type() *Type { return SliceType }

// sliceIndex converts a slice bound, clamping integers outside the
// platform range.
func sliceIndex(ctx context.Context, o Object) (int, error) {
	n, err := Index(ctx, o)
	if err != nil {
		return 0, TypeErrorf("slice indices must be integers or None or have an __index__ method")
	}
	if v, ok := n.Int64(); ok && v >= math.MinInt && v <= math.MaxInt {
		return int(v), nil
	}
	if n.Sign() < 0 {
		return math.MinInt, nil
	}
	return math.MaxInt, nil
}

// Unpack returns the raw start, stop and step with defaults applied.
func (s *Slice) Unpack(ctx context.Context) (int, int, int, error) {
	step := 1
	if !IsNone(s.Step) {
		v, err := sliceIndex(ctx, s.Step)
		if err != nil {
			return 0, 0, 0, err
		}
		if v == 0 {
			return 0, 0, 0, ValueErrorf("slice step cannot be zero")
		}
		step = v
		if step < -math.MaxInt {
			step = -math.MaxInt
		}
	}
	var start, stop int
	if IsNone(s.Start) {
		if step < 0 {
			start = math.MaxInt
		}
	} else {
		v, err := sliceIndex(ctx, s.Start)
		if err != nil {
			return 0, 0, 0, err
		}
		start = v
	}
	if IsNone(s.Stop) {
		if step < 0 {
			stop = math.MinInt
		} else {
			stop = math.MaxInt
		}
	} else {
		v, err := sliceIndex(ctx, s.Stop)
		if err != nil {
			return 0, 0, 0, err
		}
		stop = v
	}
	return start, stop, step, nil
}

// adjustIndices clamps start and stop to a sequence of the given length
// and returns the number of selected elements.
func adjustIndices(length int, start, stop *int, step int) int {
	adjust := func(p *int) {
		if *p < 0 {
			*p += length
			if *p < 0 {
				if step < 0 {
					*p = -1
				} else {
					*p = 0
				}
			}
		} else if *p >= length {
			if step < 0 {
				*p = length - 1
			} else {
				*p = length
			}
		}
	}
	adjust(start)
	adjust(stop)
	if step < 0 {
		if *stop < *start {
			return (*start-*stop-1)/(-step) + 1
		}
	} else if *start < *stop {
		return (*stop-*start-1)/step + 1
	}
	return 0
}

// Indices resolves the slice against a sequence length.
func (s *Slice) Indices(ctx context.Context, length int) (start, stop, step, n int, err error) {
	start, stop, step, err = s.Unpack(ctx)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	n = adjustIndices(length, &start, &stop, step)
	return start, stop, step, n, nil
}

// sliceItems selects the elements of items addressed by the slice.
func sliceItems(ctx context.Context, items []Object, s *Slice) ([]Object, error) {
	start, _, step, n, err := s.Indices(ctx, len(items))
	if err != nil {
		return nil, err
	}
	out := make([]Object, n)
	for i, j := 0, start; i < n; i, j = i+1, j+step {
		out[i] = items[j]
	}
	return out, nil
}

// normIndex resolves a possibly negative index against length n.
func normIndex(i, n int) (int, bool) {
	if i < 0 {
		i += n
	}
	return i, i >= 0 && i < n
}

func init() {
	m := NewMethods[*Slice](SliceType, exact[*Slice])
	m.New([]string{"start", "stop", "step"}, 1, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		if !args.Has(1) {
			return NewSlice(None, args.Get(0), None), nil
		}
		return NewSlice(args.Get(0), args.Get(1), args.Or(2, None)), nil
	})
	m.Attr("start", func(s *Slice) Object { return s.Start })
	m.Attr("stop", func(s *Slice) Object { return s.Stop })
	m.Attr("step", func(s *Slice) Object { return s.Step })
	m.Define("indices").Arg("len").Impl(func(s *Slice, ctx context.Context, args Args) (Object, error) {
		length, err := IndexInt(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		if length < 0 {
			return nil, ValueErrorf("length should not be negative")
		}
		start, stop, step, _, err := s.Indices(ctx, length)
		if err != nil {
			return nil, err
		}
		return NewTuple([]Object{NewInt(int64(start)), NewInt(int64(stop)), NewInt(int64(step))}), nil
	})
}
