package object

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"strconv"
	"strings"
)

func intLiteral(o Object) (string, bool) {
	if s, ok := asStr(o); ok {
		return s.value, true
	}
	if data, ok := bytesLike(o); ok {
		return string(data), true
	}
	return "", false
}

func intNew(ctx context.Context, args Args) (*Int, error) {
	x := args.Get(0)
	if x == nil {
		if args.Has(1) {
			return nil, TypeErrorf("int() missing string argument")
		}
		return NewInt(0), nil
	}
	if args.Has(1) {
		base, err := IndexInt(ctx, args.Get(1))
		if err != nil {
			return nil, err
		}
		if base != 0 && (base < 2 || base > 36) {
			return nil, ValueErrorf("int() base must be >= 2 and <= 36, or 0")
		}
		s, ok := intLiteral(x)
		if !ok {
			return nil, TypeErrorf("int() can't convert non-string with explicit base")
		}
		return ParseInt(s, base)
	}
	if n, ok := asInt(x); ok {
		return n, nil
	}
	if f, ok := asFloat(x); ok {
		return IntFromFloat(f)
	}
	if s, ok := intLiteral(x); ok {
		return ParseInt(s, 10)
	}
	for _, name := range []string{"__int__", "__index__"} {
		res, ok, err := callSpecial(ctx, x, name)
		if err != nil {
			return nil, err
		}
		if ok {
			n, isInt := asInt(res)
			if !isInt {
				return nil, TypeErrorf("%s returned non-int (type %s)", name, res.Type().name)
			}
			return n, nil
		}
	}
	res, ok, err := callSpecial(ctx, x, "__trunc__")
	if err != nil {
		return nil, err
	}
	if ok {
		return Index(ctx, res)
	}
	return nil, TypeErrorf("int() argument must be a string, a bytes-like object or a real number, not '%s'", x.Type().name)
}

func byteOrderArg(o Object) (bool, error) {
	if o == nil {
		return true, nil
	}
	s, ok := asStr(o)
	if !ok {
		return false, TypeErrorf("to_bytes() argument 'byteorder' must be str, not %s", o.Type().name)
	}
	switch s.value {
	case "big":
		return true, nil
	case "little":
		return false, nil
	}
	return false, ValueErrorf("byteorder must be either 'little' or 'big'")
}

func intToBytes(n *Int, length int, bigEndian, signed bool) ([]byte, error) {
	v := n.Big()
	if v.Sign() < 0 {
		if !signed {
			return nil, OverflowErrorf("can't convert negative int to unsigned")
		}
		limit := new(big.Int).Lsh(big.NewInt(1), uint(8*length))
		if new(big.Int).Neg(v).Cmp(new(big.Int).Rsh(limit, 1)) > 0 {
			return nil, OverflowErrorf("int too big to convert")
		}
		v.Add(v, limit)
	} else {
		bitsAvail := 8 * length
		if signed {
			bitsAvail--
		}
		if v.BitLen() > bitsAvail {
			return nil, OverflowErrorf("int too big to convert")
		}
	}
	out := make([]byte, length)
	v.FillBytes(out)
	if !bigEndian {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func intFromBytes(ctx context.Context, src Object, bigEndian, signed bool) (*Int, error) {
	data, ok := bytesLike(src)
	if !ok {
		items, err := ToSlice(ctx, src)
		if err != nil {
			return nil, err
		}
		data = make([]byte, len(items))
		for i, item := range items {
			v, err := IndexInt(ctx, item)
			if err != nil {
				return nil, err
			}
			if v < 0 || v > 255 {
				return nil, ValueErrorf("bytes must be in range(0, 256)")
			}
			data[i] = byte(v)
		}
	} else {
		data = append([]byte(nil), data...)
	}
	if !bigEndian {
		for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
			data[i], data[j] = data[j], data[i]
		}
	}
	v := new(big.Int).SetBytes(data)
	if signed && len(data) > 0 && data[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(8*len(data))))
	}
	return NewBigInt(v), nil
}

// intRound rounds n to a multiple of 10**-ndigits, ties to even.
func intRound(n *Int, ndigits int) *Int {
	if ndigits >= 0 {
		return n
	}
	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-ndigits)), nil)
	q, r := new(big.Int).DivMod(n.Big(), pow, new(big.Int))
	twice := new(big.Int).Lsh(r, 1)
	switch c := twice.Cmp(pow); {
	case c > 0, c == 0 && q.Bit(0) == 1:
		q.Add(q, big.NewInt(1))
	}
	return NewBigInt(q.Mul(q, pow))
}

func floatNew(ctx context.Context, x Object) (float64, error) {
	if x == nil {
		return 0, nil
	}
	if f, ok := asFloat(x); ok {
		return f, nil
	}
	if n, ok := asInt(x); ok {
		return n.Float()
	}
	if s, ok := asStr(x); ok {
		return ParseFloat(s.value)
	}
	if data, ok := bytesLike(x); ok {
		return ParseFloat(string(data))
	}
	res, ok, err := callSpecial(ctx, x, "__float__")
	if err != nil {
		return 0, err
	}
	if ok {
		f, isFloat := asFloat(res)
		if !isFloat {
			return 0, TypeErrorf("%s.__float__ returned non-float (type %s)", x.Type().name, res.Type().name)
		}
		return f, nil
	}
	if isIndexable(x) {
		n, err := Index(ctx, x)
		if err != nil {
			return 0, err
		}
		return n.Float()
	}
	return 0, TypeErrorf("float() argument must be a string or a real number, not '%s'", x.Type().name)
}

// floatHex formats v the way float.hex does.
func floatHex(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	sign := ""
	if math.Signbit(v) {
		sign = "-"
	}
	if v == 0 {
		return sign + "0x0.0p+0"
	}
	b := math.Float64bits(math.Abs(v))
	exp := int(b >> 52 & 0x7ff)
	mant := b & (1<<52 - 1)
	lead := 1
	if exp == 0 {
		lead, exp = 0, -1022
	} else {
		exp -= 1023
	}
	return fmt.Sprintf("%s0x%d.%013xp%+d", sign, lead, mant, exp)
}

// floatFromHex parses s the way float.fromhex does.
func floatFromHex(s string) (float64, error) {
	invalid := ValueErrorf("invalid hexadecimal floating-point string")
	t := strings.TrimSpace(s)
	neg := false
	if t != "" && (t[0] == '+' || t[0] == '-') {
		neg = t[0] == '-'
		t = t[1:]
	}
	switch strings.ToLower(t) {
	case "inf", "infinity":
		if neg {
			return math.Inf(-1), nil
		}
		return math.Inf(1), nil
	case "nan":
		return math.NaN(), nil
	}
	lower := strings.ToLower(t)
	if strings.HasPrefix(lower, "0x") {
		t = t[2:]
	}
	if t == "" || strings.ContainsAny(t, "_ ") {
		return 0, invalid
	}
	if !strings.ContainsAny(t, "pP") {
		t += "p0"
	}
	f, err := strconv.ParseFloat("0x"+t, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return 0, OverflowErrorf("hexadecimal value too large to represent as a float")
		}
		return 0, invalid
	}
	if neg {
		f = -f
	}
	return f, nil
}

func complexNew(ctx context.Context, re, im Object) (complex128, error) {
	if re == nil {
		re = NewInt(0)
	}
	if s, ok := asStr(re); ok {
		if im != nil {
			return 0, TypeErrorf("complex() can't take second arg if first is a string")
		}
		return ParseComplex(s.value)
	}
	if im != nil {
		if _, ok := asStr(im); ok {
			return 0, TypeErrorf("complex() second arg can't be a string")
		}
	}
	r, ok, err := toComplex(re)
	if err != nil {
		return 0, err
	}
	if !ok {
		res, has, err := callSpecial(ctx, re, "__complex__")
		if err != nil {
			return 0, err
		}
		switch {
		case has:
			c, isComplex := res.(*Complex)
			if !isComplex {
				return 0, TypeErrorf("__complex__ returned non-complex (type %s)", res.Type().name)
			}
			r = c.value
		case re.Type().Lookup("__float__") != nil || isIndexable(re):
			f, err := floatFromDunder(ctx, re)
			if err != nil {
				return 0, err
			}
			r = complex(f, 0)
		default:
			return 0, TypeErrorf("complex() first argument must be a string or a number, not '%s'", re.Type().name)
		}
	}
	if im == nil {
		return r, nil
	}
	i, ok, err := toComplex(im)
	if err != nil {
		return 0, err
	}
	if !ok {
		if im.Type().Lookup("__float__") == nil && !isIndexable(im) {
			return 0, TypeErrorf("complex() second argument must be a number, not '%s'", im.Type().name)
		}
		f, err := floatFromDunder(ctx, im)
		if err != nil {
			return 0, err
		}
		i = complex(f, 0)
	}
	return complex(real(r)-imag(i), imag(r)+real(i)), nil
}

func init() {
	im := NewMethods(IntType, asInt)
	im.New([]string{"x", "base"}, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		n, err := intNew(ctx, args)
		if err != nil {
			return nil, err
		}
		return newNativeInstance(cls, n), nil
	})
	self := func(n *Int, ctx context.Context, args Args) (Object, error) { return n, nil }
	im.Define("__int__").Impl(self)
	im.Define("__index__").Impl(self)
	im.Define("__trunc__").Impl(self)
	im.Define("__floor__").Impl(self)
	im.Define("__ceil__").Impl(self)
	im.Define("conjugate").Impl(self)
	im.Define("__float__").Impl(func(n *Int, ctx context.Context, args Args) (Object, error) {
		f, err := n.Float()
		if err != nil {
			return nil, err
		}
		return NewFloat(f), nil
	})
	im.Define("__round__").OptArg("ndigits").Impl(func(n *Int, ctx context.Context, args Args) (Object, error) {
		if IsNone(args.Or(0, None)) {
			return n, nil
		}
		nd, err := Index(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		v, ok := nd.Int64()
		if !ok {
			if nd.Sign() > 0 {
				return n, nil
			}
			return NewInt(0), nil
		}
		if v < -math.MaxInt32 {
			return NewInt(0), nil
		}
		return intRound(n, int(v)), nil
	})
	im.Define("__getnewargs__").Impl(func(n *Int, ctx context.Context, args Args) (Object, error) {
		return NewTuple([]Object{n}), nil
	})
	im.Define("bit_length").Impl(func(n *Int, ctx context.Context, args Args) (Object, error) {
		return NewInt(int64(intAbs(n).bigRef().BitLen())), nil
	})
	im.Define("bit_count").Impl(func(n *Int, ctx context.Context, args Args) (Object, error) {
		count := 0
		for _, w := range intAbs(n).bigRef().Bits() {
			count += bits.OnesCount(uint(w))
		}
		return NewInt(int64(count)), nil
	})
	im.Define("to_bytes").OptArg("length", "byteorder", "signed").Impl(func(n *Int, ctx context.Context, args Args) (Object, error) {
		length := 1
		if args.Has(0) {
			l, err := IndexInt(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			if l < 0 {
				return nil, ValueErrorf("length argument must be non-negative")
			}
			length = l
		}
		bigEndian, err := byteOrderArg(args.Get(1))
		if err != nil {
			return nil, err
		}
		signed, err := Truthy(ctx, args.Or(2, False))
		if err != nil {
			return nil, err
		}
		out, err := intToBytes(n, length, bigEndian, signed)
		if err != nil {
			return nil, err
		}
		return NewBytes(out), nil
	})
	im.ClassMethod("from_bytes", []string{"bytes", "byteorder", "signed"}, 1, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		bigEndian, err := byteOrderArg(args.Get(1))
		if err != nil {
			return nil, err
		}
		signed, err := Truthy(ctx, args.Or(2, False))
		if err != nil {
			return nil, err
		}
		n, err := intFromBytes(ctx, args.Get(0), bigEndian, signed)
		if err != nil {
			return nil, err
		}
		if cls == IntType {
			return n, nil
		}
		return Call(ctx, cls, []Object{n}, nil)
	})
	im.Define("as_integer_ratio").Impl(func(n *Int, ctx context.Context, args Args) (Object, error) {
		return NewTuple([]Object{n, NewInt(1)}), nil
	})
	im.Define("is_integer").Impl(func(n *Int, ctx context.Context, args Args) (Object, error) {
		return True, nil
	})
	im.Attr("real", func(n *Int) Object { return n })
	im.Attr("imag", func(n *Int) Object { return NewInt(0) })
	im.Attr("numerator", func(n *Int) Object { return n })
	im.Attr("denominator", func(n *Int) Object { return NewInt(1) })

	bm := NewMethods(BoolType, exact[*Bool])
	bm.New([]string{"o"}, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		if !args.Has(0) {
			return False, nil
		}
		v, err := Truthy(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		return NewBool(v), nil
	})

	fm := NewMethods(FloatType, exact[*Float])
	fm.New([]string{"x"}, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		f, err := floatNew(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		if x, ok := args.Get(0).(*Float); ok && cls == FloatType {
			return x, nil
		}
		return newNativeInstance(cls, NewFloat(f)), nil
	})
	fm.Define("__float__").Impl(func(f *Float, ctx context.Context, args Args) (Object, error) {
		return f, nil
	})
	fm.Define("conjugate").Impl(func(f *Float, ctx context.Context, args Args) (Object, error) {
		return f, nil
	})
	fm.Define("__int__").Impl(func(f *Float, ctx context.Context, args Args) (Object, error) {
		return IntFromFloat(f.value)
	})
	fm.Define("__trunc__").Impl(func(f *Float, ctx context.Context, args Args) (Object, error) {
		return IntFromFloat(f.value)
	})
	fm.Define("__floor__").Impl(func(f *Float, ctx context.Context, args Args) (Object, error) {
		return IntFromFloat(math.Floor(f.value))
	})
	fm.Define("__ceil__").Impl(func(f *Float, ctx context.Context, args Args) (Object, error) {
		return IntFromFloat(math.Ceil(f.value))
	})
	fm.Define("__round__").OptArg("ndigits").Impl(func(f *Float, ctx context.Context, args Args) (Object, error) {
		if IsNone(args.Or(0, None)) {
			return IntFromFloat(math.RoundToEven(f.value))
		}
		nd, err := Index(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		v, ok := nd.Int64()
		if !ok {
			if nd.Sign() > 0 {
				return f, nil
			}
			return NewFloat(math.Copysign(0, f.value)), nil
		}
		return NewFloat(roundHalfEven(f.value, v)), nil
	})
	fm.Define("__getnewargs__").Impl(func(f *Float, ctx context.Context, args Args) (Object, error) {
		return NewTuple([]Object{f}), nil
	})
	fm.Define("is_integer").Impl(func(f *Float, ctx context.Context, args Args) (Object, error) {
		v := f.value
		return NewBool(!math.IsInf(v, 0) && !math.IsNaN(v) && v == math.Trunc(v)), nil
	})
	fm.Define("as_integer_ratio").Impl(func(f *Float, ctx context.Context, args Args) (Object, error) {
		num, den, err := floatAsRatio(f.value)
		if err != nil {
			return nil, err
		}
		return NewTuple([]Object{num, den}), nil
	})
	fm.Define("hex").Impl(func(f *Float, ctx context.Context, args Args) (Object, error) {
		return NewStr(floatHex(f.value)), nil
	})
	fm.ClassMethod("fromhex", []string{"string"}, 1, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		s, err := argStr("fromhex", args.Get(0))
		if err != nil {
			return nil, err
		}
		v, err := floatFromHex(s)
		if err != nil {
			return nil, err
		}
		if cls == FloatType {
			return NewFloat(v), nil
		}
		return Call(ctx, cls, []Object{NewFloat(v)}, nil)
	})
	fm.Attr("real", func(f *Float) Object { return f })
	fm.Attr("imag", func(f *Float) Object { return NewFloat(0) })

	cm := NewMethods(ComplexType, exact[*Complex])
	cm.New([]string{"real", "imag"}, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		c, err := complexNew(ctx, args.Get(0), args.Get(1))
		if err != nil {
			return nil, err
		}
		return newNativeInstance(cls, NewComplex(c)), nil
	})
	cm.Define("conjugate").Impl(func(c *Complex, ctx context.Context, args Args) (Object, error) {
		return NewComplex(complex(real(c.value), -imag(c.value))), nil
	})
	cm.Define("__complex__").Impl(func(c *Complex, ctx context.Context, args Args) (Object, error) {
		return c, nil
	})
	cm.Define("__getnewargs__").Impl(func(c *Complex, ctx context.Context, args Args) (Object, error) {
		return NewTuple([]Object{NewFloat(real(c.value)), NewFloat(imag(c.value))}), nil
	})
	cm.Attr("real", func(c *Complex) Object { return NewFloat(real(c.value)) })
	cm.Attr("imag", func(c *Complex) Object { return NewFloat(imag(c.value)) })
}
