package object

import (
	"context"
	"math"
	"math/big"

	"github.com/deepnoodle-ai/pyxlate/op"
)

// CompareOp identifies a rich comparison.
type CompareOp = op.CompareOpType

const (
	CmpLt = op.LessThan
	CmpLe = op.LessThanOrEqual
	CmpEq = op.Equal
	CmpNe = op.NotEqual
	CmpGt = op.GreaterThan
	CmpGe = op.GreaterThanOrEqual
)

// isNative reports whether o is a builtin value that the native operator
// tables handle directly.
func isNative(o Object) bool {
	switch o.(type) {
	case *Int, *Bool, *Float, *Complex, *Str, *Bytes, *ByteArray, *List,
		*Tuple, *Dict, *Set, *FrozenSet, *DictView, *NoneType, *Range:
		return true
	}
	return false
}

// unwrapNative returns the builtin value carried by an instance of a
// builtin subclass, or o itself.
func unwrapNative(o Object) Object {
	if inst, ok := o.(*Instance); ok && inst.native != nil {
		return inst.native
	}
	return o
}

func binaryDunders(bop op.BinaryOpType) (string, string) {
	d := bop.Dunder()
	return "__" + d + "__", "__r" + d + "__"
}

// sameAttr compares two attribute values by identity.
func sameAttr(a, b Object) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}

// binaryOp1 runs the operand dispatch of a binary operator and returns
// NotImplemented when neither operand supports it. A right operand whose
// type is a subtype that overrides the reflected method goes first.
func binaryOp1(ctx context.Context, bop op.BinaryOpType, a, b Object) (Object, error) {
	if isNative(a) && isNative(b) {
		return nativeBinary(ctx, bop, a, b)
	}
	name, rname := binaryDunders(bop)
	return binaryDispatch(ctx, a, b, name, rname)
}

// binaryDispatch tries a.name(b) and b.rname(a) in operator order.
func binaryDispatch(ctx context.Context, a, b Object, name, rname string) (Object, error) {
	ta, tb := a.Type(), b.Type()
	fa := ta.Lookup(name)
	var fb Object
	if ta != tb {
		fb = tb.Lookup(rname)
	}
	if fb != nil && tb.IsSubtype(ta) && !sameAttr(fb, ta.Lookup(rname)) {
		r, err := callBound(ctx, fb, b, []Object{a}, nil)
		if err != nil || r != NotImplemented {
			return r, err
		}
		fb = nil
	}
	if fa != nil {
		r, err := callBound(ctx, fa, a, []Object{b}, nil)
		if err != nil || r != NotImplemented {
			return r, err
		}
	}
	if fb != nil {
		r, err := callBound(ctx, fb, b, []Object{a}, nil)
		if err != nil || r != NotImplemented {
			return r, err
		}
	}
	return NotImplemented, nil
}

// BinaryOp evaluates a binary operator with full operand dispatch,
// including reflected methods of the right operand.
func BinaryOp(ctx context.Context, bop op.BinaryOpType, a, b Object) (Object, error) {
	if bop >= op.InplaceFlag {
		return InplaceOp(ctx, bop-op.InplaceFlag, a, b)
	}
	r, err := binaryOp1(ctx, bop, a, b)
	if err != nil {
		return nil, err
	}
	if r == NotImplemented {
		return nil, binaryTypeError(bop, a, b, "")
	}
	return r, nil
}

// InplaceOp evaluates an augmented assignment operator: __iop__ first,
// then the plain binary operator.
func InplaceOp(ctx context.Context, bop op.BinaryOpType, a, b Object) (Object, error) {
	switch v := a.(type) {
	case *List:
		switch bop {
		case op.Add:
			if err := listExtend(ctx, v, b); err != nil {
				if IsExceptionOf(err, TypeErrorType) {
					return nil, TypeErrorf("'%s' object is not iterable", b.Type().name)
				}
				return nil, err
			}
			return v, nil
		case op.Multiply:
			if n, ok := asInt(b); ok {
				c, err := repeatCount(n, len(v.items))
				if err != nil {
					return nil, err
				}
				items, err := repeatItems(v.items, c)
				if err != nil {
					return nil, err
				}
				v.items = items
				return v, nil
			}
		}
	case *Set:
		switch bop {
		case op.BitwiseOr, op.BitwiseAnd, op.Subtract, op.BitwiseXor:
			if r, err := setInplace(ctx, bop.String(), v, b); err != nil || r != NotImplemented {
				return r, err
			}
		}
	case *Dict:
		if bop == op.BitwiseOr {
			if err := v.Update(ctx, b); err != nil {
				return nil, err
			}
			return v, nil
		}
	case *ByteArray:
		switch bop {
		case op.Add:
			data, ok := bytesLike(b)
			if !ok {
				return nil, TypeErrorf("can't concat %s to bytearray", b.Type().name)
			}
			v.value = append(v.value, data...)
			return v, nil
		}
	}
	if !isNative(a) {
		name := "__i" + bop.Dunder() + "__"
		if fn := a.Type().Lookup(name); fn != nil {
			r, err := callBound(ctx, fn, a, []Object{b}, nil)
			if err != nil || r != NotImplemented {
				return r, err
			}
		}
	}
	r, err := binaryOp1(ctx, bop, a, b)
	if err != nil {
		return nil, err
	}
	if r == NotImplemented {
		return nil, binaryTypeError(bop, a, b, "=")
	}
	return r, nil
}

func binaryTypeError(bop op.BinaryOpType, a, b Object, suffix string) error {
	an, bn := a.Type().name, b.Type().name
	if suffix == "" {
		switch bop {
		case op.Add:
			switch unwrapNative(a).(type) {
			case *Str:
				return TypeErrorf("can only concatenate str (not \"%s\") to str", bn)
			case *List:
				return TypeErrorf("can only concatenate list (not \"%s\") to list", bn)
			case *Tuple:
				return TypeErrorf("can only concatenate tuple (not \"%s\") to tuple", bn)
			case *Bytes:
				return TypeErrorf("can't concat %s to bytes", bn)
			}
		case op.Multiply:
			if isSequence(a) && !isIntLike(b) {
				return TypeErrorf("can't multiply sequence by non-int of type '%s'", bn)
			}
			if isSequence(b) && !isIntLike(a) {
				return TypeErrorf("can't multiply sequence by non-int of type '%s'", an)
			}
		}
	}
	sym := bop.String()
	if bop == op.Power {
		if suffix == "" {
			return TypeErrorf("unsupported operand type(s) for ** or pow(): '%s' and '%s'", an, bn)
		}
	}
	return TypeErrorf("unsupported operand type(s) for %s%s: '%s' and '%s'", sym, suffix, an, bn)
}

func isSequence(o Object) bool {
	switch unwrapNative(o).(type) {
	case *Str, *List, *Tuple, *Bytes, *ByteArray:
		return true
	}
	return false
}

func isIntLike(o Object) bool {
	_, ok := asInt(o)
	return ok
}

// numLevel ranks numeric operands: 1 int, 2 float, 3 complex.
func numLevel(o Object) int {
	switch v := o.(type) {
	case *Int, *Bool:
		return 1
	case *Float:
		return 2
	case *Complex:
		return 3
	case *Instance:
		return numLevel(v.native)
	}
	return 0
}

// nativeBinary implements binary operators between builtin values. It
// returns NotImplemented for unsupported combinations.
func nativeBinary(ctx context.Context, bop op.BinaryOpType, a, b Object) (Object, error) {
	a, b = unwrapNative(a), unwrapNative(b)
	la, lb := numLevel(a), numLevel(b)
	if la > 0 && lb > 0 {
		switch max(la, lb) {
		case 1:
			return intBinary(bop, a, b)
		case 2:
			x, _, err := toFloat(a)
			if err != nil {
				return nil, err
			}
			y, _, err := toFloat(b)
			if err != nil {
				return nil, err
			}
			return floatBinary(bop, x, y)
		default:
			x, _, err := toComplex(a)
			if err != nil {
				return nil, err
			}
			y, _, err := toComplex(b)
			if err != nil {
				return nil, err
			}
			return complexBinary(bop, x, y)
		}
	}
	switch x := a.(type) {
	case *Str:
		switch bop {
		case op.Add:
			if y, ok := b.(*Str); ok {
				return strConcat(x, y), nil
			}
		case op.Multiply:
			if n, ok := asInt(b); ok {
				return strRepeat(x, n)
			}
		case op.Modulo:
			s, err := PercentFormat(ctx, x.value, b)
			if err != nil {
				return nil, err
			}
			return NewStr(s), nil
		}
	case *Bytes, *ByteArray:
		data, _ := bytesLike(x)
		wrap := func(v []byte) Object {
			if _, ok := x.(*ByteArray); ok {
				return NewByteArray(v)
			}
			return NewBytes(v)
		}
		switch bop {
		case op.Add:
			if y, ok := bytesLike(b); ok {
				out := make([]byte, 0, len(data)+len(y))
				return wrap(append(append(out, data...), y...)), nil
			}
		case op.Multiply:
			if n, ok := asInt(b); ok {
				c, err := repeatCount(n, len(data))
				if err != nil {
					return nil, err
				}
				out := make([]byte, 0, len(data)*c)
				for i := 0; i < c; i++ {
					out = append(out, data...)
				}
				return wrap(out), nil
			}
		case op.Modulo:
			s, err := PercentFormatBytes(ctx, data, b)
			if err != nil {
				return nil, err
			}
			return wrap(s), nil
		}
	case *List:
		switch bop {
		case op.Add:
			if y, ok := b.(*List); ok {
				return NewList(concatItems(x.items, y.items)), nil
			}
		case op.Multiply:
			if n, ok := asInt(b); ok {
				c, err := repeatCount(n, len(x.items))
				if err != nil {
					return nil, err
				}
				items, err := repeatItems(x.items, c)
				if err != nil {
					return nil, err
				}
				return NewList(items), nil
			}
		}
	case *Tuple:
		switch bop {
		case op.Add:
			if y, ok := b.(*Tuple); ok {
				return NewTuple(concatItems(x.items, y.items)), nil
			}
		case op.Multiply:
			if n, ok := asInt(b); ok {
				c, err := repeatCount(n, len(x.items))
				if err != nil {
					return nil, err
				}
				if c == 1 {
					return x, nil
				}
				items, err := repeatItems(x.items, c)
				if err != nil {
					return nil, err
				}
				return NewTuple(items), nil
			}
		}
	case *Set, *FrozenSet, *DictView:
		switch bop {
		case op.BitwiseOr, op.BitwiseAnd, op.Subtract, op.BitwiseXor:
			return setOp(ctx, bop.String(), x, b)
		}
	case *Dict:
		if bop == op.BitwiseOr {
			if y, ok := b.(*Dict); ok {
				out := x.Copy()
				if err := out.Update(ctx, y); err != nil {
					return nil, err
				}
				return out, nil
			}
		}
	}
	// int * sequence
	if bop == op.Multiply && numLevel(a) == 1 {
		switch b.(type) {
		case *Str, *Bytes, *ByteArray, *List, *Tuple:
			return nativeBinary(ctx, bop, b, a)
		}
	}
	return NotImplemented, nil
}

// repeatCount clamps a repetition count, rejecting results too large to
// allocate.
func repeatCount(n *Int, size int) (int, error) {
	if n.Sign() <= 0 || size == 0 {
		return 0, nil
	}
	v, ok := n.Int64()
	if !ok || v > math.MaxInt32 || int64(size)*v > 1<<31 {
		return 0, MemoryErrorf("")
	}
	return int(v), nil
}

func strConcat(a, b *Str) *Str {
	if len(a.value) == 0 {
		return b
	}
	if len(b.value) == 0 {
		return a
	}
	return NewStr(a.value + b.value)
}

func strRepeat(s *Str, n *Int) (Object, error) {
	c, err := repeatCount(n, len(s.value))
	if err != nil {
		return nil, err
	}
	if c == 1 {
		return s, nil
	}
	out := make([]byte, 0, len(s.value)*c)
	for i := 0; i < c; i++ {
		out = append(out, s.value...)
	}
	return NewStr(string(out)), nil
}

func intBinary(bop op.BinaryOpType, a, b Object) (Object, error) {
	if ba, ok := a.(*Bool); ok {
		if bb, ok := b.(*Bool); ok {
			switch bop {
			case op.BitwiseAnd:
				return NewBool(ba.value && bb.value), nil
			case op.BitwiseOr:
				return NewBool(ba.value || bb.value), nil
			case op.BitwiseXor:
				return NewBool(ba.value != bb.value), nil
			}
		}
	}
	x, _ := asInt(a)
	y, _ := asInt(b)
	switch bop {
	case op.Add:
		return intAdd(x, y), nil
	case op.Subtract:
		return intSub(x, y), nil
	case op.Multiply:
		return intMul(x, y), nil
	case op.FloorDiv:
		return intFloorDiv(x, y)
	case op.Modulo:
		return intMod(x, y)
	case op.TrueDiv:
		return intTrueDiv(x, y)
	case op.Power:
		return intPow(x, y)
	case op.LShift:
		return intShift(x, y, true)
	case op.RShift:
		return intShift(x, y, false)
	case op.BitwiseAnd:
		return intBitwise(x, y, "&"), nil
	case op.BitwiseOr:
		return intBitwise(x, y, "|"), nil
	case op.BitwiseXor:
		return intBitwise(x, y, "^"), nil
	}
	return NotImplemented, nil
}

func floatBinary(bop op.BinaryOpType, x, y float64) (Object, error) {
	switch bop {
	case op.Add:
		return NewFloat(x + y), nil
	case op.Subtract:
		return NewFloat(x - y), nil
	case op.Multiply:
		return NewFloat(x * y), nil
	case op.TrueDiv:
		return floatTrueDiv(x, y)
	case op.FloorDiv:
		return floatFloorDiv(x, y)
	case op.Modulo:
		return floatMod(x, y)
	case op.Power:
		return floatPow(x, y)
	}
	return NotImplemented, nil
}

func complexBinary(bop op.BinaryOpType, x, y complex128) (Object, error) {
	switch bop {
	case op.Add:
		return NewComplex(x + y), nil
	case op.Subtract:
		return NewComplex(x - y), nil
	case op.Multiply:
		return NewComplex(complexMul(x, y)), nil
	case op.TrueDiv:
		return complexDiv(x, y)
	case op.Power:
		return complexPow(x, y)
	}
	return NotImplemented, nil
}

// Negate evaluates -o.
func Negate(ctx context.Context, o Object) (Object, error) {
	switch v := o.(type) {
	case *Int:
		return intNeg(v), nil
	case *Bool:
		return intNeg(intFromBool(v)), nil
	case *Float:
		return NewFloat(-v.value), nil
	case *Complex:
		return NewComplex(-v.value), nil
	}
	return unaryDunder(ctx, o, "__neg__", "unary -")
}

// Positive evaluates +o.
func Positive(ctx context.Context, o Object) (Object, error) {
	switch v := o.(type) {
	case *Int, *Float, *Complex:
		return v, nil
	case *Bool:
		return intFromBool(v), nil
	}
	return unaryDunder(ctx, o, "__pos__", "unary +")
}

// Invert evaluates ~o.
func Invert(ctx context.Context, o Object) (Object, error) {
	switch v := o.(type) {
	case *Int:
		return intInvert(v), nil
	case *Bool:
		return intInvert(intFromBool(v)), nil
	}
	return unaryDunder(ctx, o, "__invert__", "unary ~")
}

// Not evaluates `not o`.
func Not(ctx context.Context, o Object) (Object, error) {
	t, err := Truthy(ctx, o)
	if err != nil {
		return nil, err
	}
	return NewBool(!t), nil
}

// Abs evaluates abs(o).
func Abs(ctx context.Context, o Object) (Object, error) {
	switch v := o.(type) {
	case *Int:
		return intAbs(v), nil
	case *Bool:
		return intFromBool(v), nil
	case *Float:
		return NewFloat(math.Abs(v.value)), nil
	case *Complex:
		return NewFloat(math.Hypot(real(v.value), imag(v.value))), nil
	}
	if fn := o.Type().Lookup("__abs__"); fn != nil {
		return callBound(ctx, fn, o, nil, nil)
	}
	return nil, TypeErrorf("bad operand type for abs(): '%s'", o.Type().name)
}

func unaryDunder(ctx context.Context, o Object, name, what string) (Object, error) {
	if fn := o.Type().Lookup(name); fn != nil {
		return callBound(ctx, fn, o, nil, nil)
	}
	return nil, TypeErrorf("bad operand type for %s: '%s'", what, o.Type().name)
}

// RichCompare evaluates a comparison operator with reflected dispatch.
// Equality falls back to identity; ordering comparisons between
// unrelated types raise TypeError.
func RichCompare(ctx context.Context, cop CompareOp, a, b Object) (Object, error) {
	if isNative(a) && isNative(b) {
		r, err := nativeCompare(ctx, cop, a, b)
		if err != nil || r != NotImplemented {
			return r, err
		}
	}
	ta, tb := a.Type(), b.Type()
	name := cop.Dunder()
	rname := cop.Swapped().Dunder()
	checkedReverse := false
	if ta != tb && tb.IsSubtype(ta) && tb.overrides(rname, ta) {
		checkedReverse = true
		if fn := tb.Lookup(rname); fn != nil {
			r, err := callBound(ctx, fn, b, []Object{a}, nil)
			if err != nil || r != NotImplemented {
				return r, err
			}
		}
	}
	if fn := ta.Lookup(name); fn != nil {
		r, err := callBound(ctx, fn, a, []Object{b}, nil)
		if err != nil || r != NotImplemented {
			return r, err
		}
	}
	if !checkedReverse {
		if fn := tb.Lookup(rname); fn != nil {
			r, err := callBound(ctx, fn, b, []Object{a}, nil)
			if err != nil || r != NotImplemented {
				return r, err
			}
		}
	}
	switch cop {
	case CmpEq:
		return NewBool(a == b), nil
	case CmpNe:
		return NewBool(a != b), nil
	}
	return nil, TypeErrorf("'%s' not supported between instances of '%s' and '%s'", cop.String(), ta.name, tb.name)
}

// Compare evaluates a comparison and converts the result to bool.
func Compare(ctx context.Context, cop CompareOp, a, b Object) (bool, error) {
	r, err := RichCompare(ctx, cop, a, b)
	if err != nil {
		return false, err
	}
	if bv, ok := r.(*Bool); ok {
		return bv.value, nil
	}
	return Truthy(ctx, r)
}

// Equal reports a == b, short-circuiting on identity as containers do.
func Equal(ctx context.Context, a, b Object) (bool, error) {
	if a == b {
		return true, nil
	}
	return Compare(ctx, CmpEq, a, b)
}

// nativeCompare implements comparisons between builtin values.
func nativeCompare(ctx context.Context, cop CompareOp, a, b Object) (Object, error) {
	a, b = unwrapNative(a), unwrapNative(b)
	la, lb := numLevel(a), numLevel(b)
	if la > 0 && lb > 0 {
		if la == 3 || lb == 3 {
			if cop != CmpEq && cop != CmpNe {
				return NotImplemented, nil
			}
			x, _, _ := toComplex(a)
			y, _, _ := toComplex(b)
			return NewBool((x == y) == (cop == CmpEq)), nil
		}
		c, ok := numCompare(a, b)
		if !ok {
			// NaN compares unequal to everything.
			return NewBool(cop == CmpNe), nil
		}
		return NewBool(compareInts(cop, c, 0)), nil
	}
	switch x := a.(type) {
	case *Str:
		if y, ok := b.(*Str); ok {
			return NewBool(compareInts(cop, compareStrings(x.value, y.value), 0)), nil
		}
	case *Bytes, *ByteArray:
		if y, ok := bytesLike(b); ok {
			xb, _ := bytesLike(x)
			return NewBool(compareInts(cop, compareStrings(string(xb), string(y)), 0)), nil
		}
	case *List:
		if y, ok := b.(*List); ok {
			return seqCompare(ctx, cop, x.items, y.items)
		}
	case *Tuple:
		if y, ok := b.(*Tuple); ok {
			return seqCompare(ctx, cop, x.items, y.items)
		}
	case *Dict:
		if y, ok := b.(*Dict); ok && (cop == CmpEq || cop == CmpNe) {
			eq, err := dictEqual(ctx, x, y)
			if err != nil {
				return nil, err
			}
			return NewBool(eq == (cop == CmpEq)), nil
		}
	case *Set, *FrozenSet:
		return setCompare(ctx, cop, x, b)
	case *DictView:
		if x.kind == viewValues {
			break
		}
		if x.kind == viewItems {
			xs, err := tableOf(ctx, x)
			if err != nil {
				return nil, err
			}
			if _, ok := setTable(b); !ok {
				if yv, ok := b.(*DictView); !ok || yv.kind != viewItems {
					return NotImplemented, nil
				}
			}
			ys, err := tableOf(ctx, b)
			if err != nil {
				return nil, err
			}
			return setCompare(ctx, cop, &FrozenSet{t: *xs}, &FrozenSet{t: *ys})
		}
		return setCompare(ctx, cop, x, b)
	case *Range:
		if y, ok := b.(*Range); ok && (cop == CmpEq || cop == CmpNe) {
			return NewBool(rangeEqual(x, y) == (cop == CmpEq)), nil
		}
	case *NoneType:
		if cop == CmpEq || cop == CmpNe {
			return NewBool((b == Object(None)) == (cop == CmpEq)), nil
		}
	}
	return NotImplemented, nil
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// numCompare orders two real numbers exactly, including ints beyond the
// float range. ok is false when either side is NaN.
func numCompare(a, b Object) (int, bool) {
	if x, ok := asInt(a); ok {
		if y, ok := asInt(b); ok {
			return x.Cmp(y), true
		}
		f, _ := asFloat(b)
		c, ok := compareIntFloat(x, f)
		return c, ok
	}
	f, _ := asFloat(a)
	if y, ok := asInt(b); ok {
		c, ok := compareIntFloat(y, f)
		return -c, ok
	}
	g, _ := asFloat(b)
	if math.IsNaN(f) || math.IsNaN(g) {
		return 0, false
	}
	switch {
	case f < g:
		return -1, true
	case f > g:
		return 1, true
	}
	return 0, true
}

func compareIntFloat(x *Int, f float64) (int, bool) {
	if math.IsNaN(f) {
		return 0, false
	}
	if math.IsInf(f, 1) {
		return -1, true
	}
	if math.IsInf(f, -1) {
		return 1, true
	}
	if v, ok := x.Int64(); ok && v > -(1<<53) && v < 1<<53 {
		xf := float64(v)
		switch {
		case xf < f:
			return -1, true
		case xf > f:
			return 1, true
		}
		return 0, true
	}
	fr := new(big.Rat).SetFloat64(f)
	xr := new(big.Rat).SetInt(x.bigRef())
	return xr.Cmp(fr), true
}
