package object

import (
	"context"

	"github.com/deepnoodle-ai/pyxlate/op"
)

// slotFunc implements a default special method. native is the builtin
// value behind self, which differs from self for instances of builtin
// subclasses.
type slotFunc func(ctx context.Context, self, native Object, args Args) (Object, error)

// addSlot installs a special method on t unless t already defines name.
func addSlot(t *Type, name string, params []string, required int, fn slotFunc) {
	if t.dict.GetStr(name) != nil {
		return
	}
	b := &Builtin{
		name:     name,
		module:   t.module,
		owner:    t,
		kind:     kindMethod,
		params:   params,
		required: required,
		slot:     true,
	}
	b.fn = func(ctx context.Context, self Object, args Args) (Object, error) {
		return fn(ctx, self, unwrapNative(self), args)
	}
	t.dict.SetStr(name, b)
}

var valueParam = []string{"value"}

func addRepr(types ...*Type) {
	for _, t := range types {
		addSlot(t, "__repr__", nil, 0, func(ctx context.Context, self, native Object, args Args) (Object, error) {
			s, err := Repr(ctx, native)
			if err != nil {
				return nil, err
			}
			return NewStr(s), nil
		})
	}
}

func addHash(types ...*Type) {
	for _, t := range types {
		addSlot(t, "__hash__", nil, 0, func(ctx context.Context, self, native Object, args Args) (Object, error) {
			h, err := Hash(ctx, native)
			if err != nil {
				return nil, err
			}
			return NewInt(h), nil
		})
	}
}

func addUnhashable(types ...*Type) {
	for _, t := range types {
		if t.dict.GetStr("__hash__") == nil {
			t.dict.SetStr("__hash__", None)
		}
	}
}

func addCompare(types ...*Type) {
	for _, t := range types {
		for _, cop := range []CompareOp{CmpLt, CmpLe, CmpEq, CmpNe, CmpGt, CmpGe} {
			addSlot(t, cop.Dunder(), valueParam, 1, func(ctx context.Context, self, native Object, args Args) (Object, error) {
				return nativeCompare(ctx, cop, native, args.Get(0))
			})
		}
	}
}

func addBinary(t *Type, ops ...op.BinaryOpType) {
	for _, bop := range ops {
		name, rname := binaryDunders(bop)
		addSlot(t, name, valueParam, 1, func(ctx context.Context, self, native Object, args Args) (Object, error) {
			return nativeBinary(ctx, bop, native, args.Get(0))
		})
		addSlot(t, rname, valueParam, 1, func(ctx context.Context, self, native Object, args Args) (Object, error) {
			return nativeBinary(ctx, bop, args.Get(0), native)
		})
	}
}

func addPow(t *Type) {
	params := []string{"value", "mod"}
	addSlot(t, "__pow__", params, 1, func(ctx context.Context, self, native Object, args Args) (Object, error) {
		if IsNone(args.Or(1, None)) {
			return nativeBinary(ctx, op.Power, native, args.Get(0))
		}
		return nativePowMod(native, args.Get(0), args.Get(1))
	})
	addSlot(t, "__rpow__", params, 1, func(ctx context.Context, self, native Object, args Args) (Object, error) {
		if IsNone(args.Or(1, None)) {
			return nativeBinary(ctx, op.Power, args.Get(0), native)
		}
		return nativePowMod(args.Get(0), native, args.Get(1))
	})
}

func addDivMod(t *Type) {
	addSlot(t, "__divmod__", valueParam, 1, func(ctx context.Context, self, native Object, args Args) (Object, error) {
		return nativeDivMod(native, args.Get(0))
	})
	addSlot(t, "__rdivmod__", valueParam, 1, func(ctx context.Context, self, native Object, args Args) (Object, error) {
		return nativeDivMod(args.Get(0), native)
	})
}

func addNumberSlots(t *Type) {
	unary := map[string]func(context.Context, Object) (Object, error){
		"__neg__": Negate,
		"__pos__": Positive,
		"__abs__": Abs,
	}
	if t == IntType {
		unary["__invert__"] = Invert
	}
	for name, fn := range unary {
		addSlot(t, name, nil, 0, func(ctx context.Context, self, native Object, args Args) (Object, error) {
			return fn(ctx, native)
		})
	}
	addSlot(t, "__bool__", nil, 0, func(ctx context.Context, self, native Object, args Args) (Object, error) {
		v, err := Truthy(ctx, native)
		if err != nil {
			return nil, err
		}
		return NewBool(v), nil
	})
}

func addFormat(types ...*Type) {
	for _, t := range types {
		addSlot(t, "__format__", []string{"format_spec"}, 1, func(ctx context.Context, self, native Object, args Args) (Object, error) {
			spec, err := argStr("__format__", args.Get(0))
			if err != nil {
				return nil, err
			}
			s, err := Format(ctx, native, spec)
			if err != nil {
				return nil, err
			}
			return NewStr(s), nil
		})
	}
}

func addContainer(types ...*Type) {
	for _, t := range types {
		addSlot(t, "__len__", nil, 0, func(ctx context.Context, self, native Object, args Args) (Object, error) {
			n, err := Len(ctx, native)
			if err != nil {
				return nil, err
			}
			return NewInt(int64(n)), nil
		})
		addSlot(t, "__iter__", nil, 0, func(ctx context.Context, self, native Object, args Args) (Object, error) {
			return Iter(ctx, native)
		})
		addSlot(t, "__contains__", []string{"key"}, 1, func(ctx context.Context, self, native Object, args Args) (Object, error) {
			ok, err := Contains(ctx, native, args.Get(0))
			if err != nil {
				return nil, err
			}
			return NewBool(ok), nil
		})
	}
}

func addSubscript(types ...*Type) {
	for _, t := range types {
		addSlot(t, "__getitem__", []string{"key"}, 1, func(ctx context.Context, self, native Object, args Args) (Object, error) {
			return GetItem(ctx, native, args.Get(0))
		})
	}
}

func addMutableSubscript(types ...*Type) {
	for _, t := range types {
		addSlot(t, "__setitem__", []string{"key", "value"}, 2, func(ctx context.Context, self, native Object, args Args) (Object, error) {
			return None, SetItem(ctx, native, args.Get(0), args.Get(1))
		})
		addSlot(t, "__delitem__", []string{"key"}, 1, func(ctx context.Context, self, native Object, args Args) (Object, error) {
			return None, DelItem(ctx, native, args.Get(0))
		})
	}
}

// dictGetItem honors __missing__ on dict subclasses.
func dictGetItem(ctx context.Context, self Object, d *Dict, key Object) (Object, error) {
	v, ok, err := d.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}
	if self != Object(d) {
		if fn := self.Type().Lookup("__missing__"); fn != nil {
			return callBound(ctx, fn, self, []Object{key}, nil)
		}
	}
	return nil, NewKeyError(key)
}

// inplace wraps a mutating operator so that it returns the receiver,
// keeping subclass instances bound to the target.
func inplace(fn func(ctx context.Context, native Object, other Object) (Object, error)) slotFunc {
	return func(ctx context.Context, self, native Object, args Args) (Object, error) {
		r, err := fn(ctx, native, args.Get(0))
		if err != nil || r == NotImplemented {
			return r, err
		}
		return self, nil
	}
}

func nativeDivMod(a, b Object) (Object, error) {
	a, b = unwrapNative(a), unwrapNative(b)
	la, lb := numLevel(a), numLevel(b)
	if la == 0 || lb == 0 || la == 3 || lb == 3 {
		return NotImplemented, nil
	}
	if max(la, lb) == 1 {
		x, _ := asInt(a)
		y, _ := asInt(b)
		if y.Sign() == 0 {
			return nil, ZeroDivisionErrorf("integer division or modulo by zero")
		}
		q, r := intDivMod(x, y)
		return NewTuple([]Object{q, r}), nil
	}
	x, _, err := toFloat(a)
	if err != nil {
		return nil, err
	}
	y, _, err := toFloat(b)
	if err != nil {
		return nil, err
	}
	if y == 0 {
		return nil, ZeroDivisionErrorf("division by zero")
	}
	q, r := floatDivMod(x, y)
	return NewTuple([]Object{NewFloat(q), NewFloat(r)}), nil
}

func nativePowMod(a, b, m Object) (Object, error) {
	x, okA := asInt(unwrapNative(a))
	y, okB := asInt(unwrapNative(b))
	z, okM := asInt(unwrapNative(m))
	if !okA || !okB || !okM {
		if numLevel(unwrapNative(a)) > 0 && numLevel(unwrapNative(b)) > 0 {
			return nil, TypeErrorf("pow() 3rd argument not allowed unless all arguments are integers")
		}
		return NotImplemented, nil
	}
	r, err := intPowMod(x, y, z)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// DivMod evaluates divmod(a, b).
func DivMod(ctx context.Context, a, b Object) (Object, error) {
	if isNative(a) && isNative(b) {
		r, err := nativeDivMod(a, b)
		if err != nil || r != NotImplemented {
			return r, err
		}
	} else {
		r, err := binaryDispatch(ctx, a, b, "__divmod__", "__rdivmod__")
		if err != nil || r != NotImplemented {
			return r, err
		}
	}
	return nil, TypeErrorf("unsupported operand type(s) for divmod(): '%s' and '%s'", a.Type().name, b.Type().name)
}

// PowMod evaluates pow(a, b, m).
func PowMod(ctx context.Context, a, b, m Object) (Object, error) {
	if isNative(a) && isNative(b) && isNative(m) {
		r, err := nativePowMod(a, b, m)
		if err != nil || r != NotImplemented {
			return r, err
		}
	} else if fn := a.Type().Lookup("__pow__"); fn != nil {
		r, err := callBound(ctx, fn, a, []Object{b, m}, nil)
		if err != nil || r != NotImplemented {
			return r, err
		}
	}
	return nil, TypeErrorf("unsupported operand type(s) for ** or pow(): '%s', '%s', '%s'",
		a.Type().name, b.Type().name, m.Type().name)
}

func init() {
	bitwise := []op.BinaryOpType{op.BitwiseAnd, op.BitwiseOr, op.Subtract, op.BitwiseXor}

	// Numbers.
	addPow(IntType)
	addPow(FloatType)
	addPow(ComplexType)
	addDivMod(IntType)
	addDivMod(FloatType)
	addBinary(IntType, op.Add, op.Subtract, op.Multiply, op.TrueDiv, op.FloorDiv, op.Modulo,
		op.LShift, op.RShift, op.BitwiseAnd, op.BitwiseOr, op.BitwiseXor)
	addBinary(FloatType, op.Add, op.Subtract, op.Multiply, op.TrueDiv, op.FloorDiv, op.Modulo)
	addBinary(ComplexType, op.Add, op.Subtract, op.Multiply, op.TrueDiv)
	for _, t := range []*Type{IntType, FloatType, ComplexType} {
		addNumberSlots(t)
	}
	addFormat(IntType, FloatType, ComplexType, StrType)

	// Sequences and strings.
	addBinary(StrType, op.Add, op.Multiply, op.Modulo)
	addBinary(BytesType, op.Add, op.Multiply, op.Modulo)
	addBinary(ByteArrayType, op.Add, op.Multiply, op.Modulo)
	addBinary(TupleType, op.Add, op.Multiply)
	addBinary(ListType, op.Add, op.Multiply)
	addSlot(StrType, "__str__", nil, 0, func(ctx context.Context, self, native Object, args Args) (Object, error) {
		return native, nil
	})
	addSlot(ListType, "__iadd__", valueParam, 1, inplace(func(ctx context.Context, native, other Object) (Object, error) {
		return InplaceOp(ctx, op.Add, native, other)
	}))
	addSlot(ListType, "__imul__", valueParam, 1, inplace(func(ctx context.Context, native, other Object) (Object, error) {
		if _, ok := asInt(other); !ok {
			return NotImplemented, nil
		}
		return InplaceOp(ctx, op.Multiply, native, other)
	}))
	addSlot(ByteArrayType, "__iadd__", valueParam, 1, inplace(func(ctx context.Context, native, other Object) (Object, error) {
		return InplaceOp(ctx, op.Add, native, other)
	}))
	addSlot(ListType, "__reversed__", nil, 0, func(ctx context.Context, self, native Object, args Args) (Object, error) {
		return Reversed(ctx, native)
	})

	// Sets and mappings.
	addBinary(SetType, bitwise...)
	addBinary(FrozenSetType, bitwise...)
	addBinary(DictKeysType, bitwise...)
	addBinary(DictItemsType, bitwise...)
	addBinary(DictType, op.BitwiseOr)
	for _, bop := range bitwise {
		addSlot(SetType, "__i"+bop.Dunder()+"__", valueParam, 1, inplace(func(ctx context.Context, native, other Object) (Object, error) {
			s, ok := native.(*Set)
			if !ok {
				return NotImplemented, nil
			}
			return setInplace(ctx, bop.String(), s, other)
		}))
	}
	addSlot(DictType, "__ior__", valueParam, 1, inplace(func(ctx context.Context, native, other Object) (Object, error) {
		return InplaceOp(ctx, op.BitwiseOr, native, other)
	}))
	addSlot(DictType, "__getitem__", []string{"key"}, 1, func(ctx context.Context, self, native Object, args Args) (Object, error) {
		d, ok := native.(*Dict)
		if !ok {
			return nil, TypeErrorf("descriptor '__getitem__' requires a 'dict' object but received a '%s'", self.Type().name)
		}
		return dictGetItem(ctx, self, d, args.Get(0))
	})

	containers := []*Type{
		StrType, BytesType, ByteArrayType, TupleType, ListType, DictType, SetType,
		FrozenSetType, RangeType, DictKeysType, DictValuesType, DictItemsType, MappingProxyType,
	}
	addContainer(containers...)
	addSubscript(StrType, BytesType, ByteArrayType, TupleType, ListType, RangeType, MappingProxyType)
	addMutableSubscript(ListType, DictType, ByteArrayType)

	values := []*Type{
		IntType, FloatType, ComplexType, StrType, BytesType, ByteArrayType, TupleType,
		ListType, DictType, SetType, FrozenSetType, RangeType, SliceType, NoneTypeType,
		DictKeysType, DictValuesType, DictItemsType,
	}
	addCompare(values...)
	addRepr(values...)
	addRepr(NotImplementedTypeType, EllipsisTypeType, MappingProxyType, FunctionType,
		BuiltinFunctionType, MethodDescriptorType, MethodType, CellType, CodeType, ModuleType,
		GeneratorType, CoroutineType, SuperType, OpaqueType)
	addHash(IntType, FloatType, ComplexType, StrType, BytesType, TupleType, FrozenSetType,
		NoneTypeType)
	addUnhashable(ListType, DictType, SetType, ByteArrayType, DictValuesType, DictKeysType, DictItemsType)
	addSlot(NoneTypeType, "__bool__", nil, 0, func(ctx context.Context, self, native Object, args Args) (Object, error) {
		return False, nil
	})
}
