// Package math provides the math module to translated code.
package math

import (
	"context"
	"math"
	"math/big"

	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/op"
)

const name = "math"

func fn(n string) *object.FuncBuilder { return object.NewBuiltin(name, n) }

func domainError() error { return object.ValueErrorf("math domain error") }

func rangeError() error { return object.OverflowErrorf("math range error") }

// checked classifies the result of a libm call the way CPython does: NaN
// from a non-NaN argument is a domain error, an infinity from a finite
// argument is a range error (or a domain error at a pole).
func checked(x, r float64, poleIsDomain bool) (object.Object, error) {
	switch {
	case math.IsNaN(r) && !math.IsNaN(x):
		return nil, domainError()
	case math.IsInf(r, 0) && !math.IsInf(x, 0) && !math.IsNaN(x):
		if poleIsDomain {
			return nil, domainError()
		}
		return nil, rangeError()
	}
	return object.NewFloat(r), nil
}

func unary(n string, f func(float64) float64, poleIsDomain bool) *object.Builtin {
	return fn(n).Arg("x").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
		x, err := object.ToFloat(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		return checked(x, f(x), poleIsDomain)
	})
}

func floats(ctx context.Context, args object.Args) (float64, float64, error) {
	x, err := object.ToFloat(ctx, args.Get(0))
	if err != nil {
		return 0, 0, err
	}
	y, err := object.ToFloat(ctx, args.Get(1))
	return x, y, err
}

// Sqrt returns the square root of x.
func Sqrt(ctx context.Context, x object.Object) (object.Object, error) {
	f, err := object.ToFloat(ctx, x)
	if err != nil {
		return nil, err
	}
	if f < 0 {
		return nil, domainError()
	}
	return object.NewFloat(math.Sqrt(f)), nil
}

// rounding applies floor, ceil or trunc: ints are returned as is, other
// objects may define the special method, everything else goes through
// float.
func rounding(ctx context.Context, x object.Object, special string, f func(float64) float64) (object.Object, error) {
	switch v := x.(type) {
	case *object.Int:
		return v, nil
	case *object.Float:
		return object.IntFromFloat(f(v.Value()))
	}
	if res, ok, err := object.CallSpecial(ctx, x, special); ok || err != nil {
		return res, err
	}
	if special == "__trunc__" {
		return nil, object.TypeErrorf("type %s doesn't define __trunc__ method", x.Type().Name())
	}
	v, err := object.ToFloat(ctx, x)
	if err != nil {
		return nil, err
	}
	return object.IntFromFloat(f(v))
}

// Floor returns the largest integer not greater than x.
func Floor(ctx context.Context, x object.Object) (object.Object, error) {
	return rounding(ctx, x, "__floor__", math.Floor)
}

// Ceil returns the smallest integer not less than x.
func Ceil(ctx context.Context, x object.Object) (object.Object, error) {
	return rounding(ctx, x, "__ceil__", math.Ceil)
}

// logOf returns the natural logarithm of x, accepting ints beyond the
// float range.
func logOf(ctx context.Context, x object.Object) (float64, error) {
	if n, ok := x.(*object.Int); ok {
		if n.Sign() <= 0 {
			return 0, domainError()
		}
		if !n.IsBig() {
			v, _ := n.Int64()
			return object.Log(float64(v)), nil
		}
		b := n.Big()
		shift := b.BitLen() - 53
		b.Rsh(b, uint(shift))
		return math.Log(float64(b.Int64())) + float64(shift)*math.Ln2, nil
	}
	f, err := object.ToFloat(ctx, x)
	if err != nil {
		return 0, err
	}
	if f <= 0 || math.IsNaN(f) {
		if math.IsNaN(f) {
			return f, nil
		}
		return 0, domainError()
	}
	return object.Log(f), nil
}

// Log returns the logarithm of x to the given base, or the natural
// logarithm when base is nil.
func Log(ctx context.Context, x, base object.Object) (object.Object, error) {
	num, err := logOf(ctx, x)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return object.NewFloat(num), nil
	}
	den, err := logOf(ctx, base)
	if err != nil {
		return nil, err
	}
	if den == 0 {
		return nil, object.ZeroDivisionErrorf("float division by zero")
	}
	return object.NewFloat(num / den), nil
}

func logBase(n string, scale float64) *object.Builtin {
	return fn(n).Arg("x").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
		v, err := logOf(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		return object.NewFloat(v / scale), nil
	})
}

// Pow returns x raised to y as a float.
func Pow(ctx context.Context, x, y object.Object) (object.Object, error) {
	a, err := object.ToFloat(ctx, x)
	if err != nil {
		return nil, err
	}
	b, err := object.ToFloat(ctx, y)
	if err != nil {
		return nil, err
	}
	r := object.Pow(a, b)
	if math.IsInf(r, 0) && !math.IsInf(a, 0) && !math.IsInf(b, 0) {
		if a == 0 {
			return nil, domainError()
		}
		return nil, rangeError()
	}
	if math.IsNaN(r) && !math.IsNaN(a) && !math.IsNaN(b) {
		return nil, domainError()
	}
	return object.NewFloat(r), nil
}

// Factorial returns n! for a non-negative integer n.
func Factorial(ctx context.Context, x object.Object) (object.Object, error) {
	n, err := object.Index(ctx, x)
	if err != nil {
		return nil, err
	}
	if n.Sign() < 0 {
		return nil, object.ValueErrorf("factorial() not defined for negative values")
	}
	v, ok := n.Int64()
	if !ok {
		return nil, object.OverflowErrorf("factorial() argument should not exceed %d", int64(math.MaxInt64))
	}
	return object.NewBigInt(new(big.Int).MulRange(1, v)), nil
}

// Gcd returns the greatest common divisor of the arguments.
func Gcd(ctx context.Context, xs []object.Object) (object.Object, error) {
	acc := new(big.Int)
	for _, x := range xs {
		n, err := object.Index(ctx, x)
		if err != nil {
			return nil, err
		}
		acc.GCD(nil, nil, acc, n.Big())
	}
	return object.NewBigInt(acc), nil
}

// Lcm returns the least common multiple of the arguments.
func Lcm(ctx context.Context, xs []object.Object) (object.Object, error) {
	acc := big.NewInt(1)
	for _, x := range xs {
		n, err := object.Index(ctx, x)
		if err != nil {
			return nil, err
		}
		b := n.Big()
		b.Abs(b)
		if b.Sign() == 0 {
			acc.SetInt64(0)
			continue
		}
		if acc.Sign() == 0 {
			continue
		}
		g := new(big.Int).GCD(nil, nil, acc, b)
		acc.Mul(acc, b.Quo(b, g))
	}
	return object.NewBigInt(acc), nil
}

// Isqrt returns the integer square root of a non-negative integer.
func Isqrt(ctx context.Context, x object.Object) (object.Object, error) {
	n, err := object.Index(ctx, x)
	if err != nil {
		return nil, err
	}
	if n.Sign() < 0 {
		return nil, object.ValueErrorf("isqrt() argument must be nonnegative")
	}
	b := n.Big()
	return object.NewBigInt(b.Sqrt(b)), nil
}

func nonNegative(ctx context.Context, what string, x object.Object) (*big.Int, error) {
	n, err := object.Index(ctx, x)
	if err != nil {
		return nil, err
	}
	if n.Sign() < 0 {
		return nil, object.ValueErrorf("%s must be a non-negative integer", what)
	}
	return n.Big(), nil
}

// Comb returns the number of ways to choose k items from n.
func Comb(ctx context.Context, x, y object.Object) (object.Object, error) {
	n, err := nonNegative(ctx, "n", x)
	if err != nil {
		return nil, err
	}
	k, err := nonNegative(ctx, "k", y)
	if err != nil {
		return nil, err
	}
	if k.Cmp(n) > 0 {
		return object.NewInt(0), nil
	}
	if !n.IsInt64() {
		return nil, object.OverflowErrorf("n must not exceed %d", int64(math.MaxInt64))
	}
	return object.NewBigInt(new(big.Int).Binomial(n.Int64(), k.Int64())), nil
}

// Perm returns the number of ordered arrangements of k items from n. A
// nil k means n.
func Perm(ctx context.Context, x, y object.Object) (object.Object, error) {
	n, err := nonNegative(ctx, "n", x)
	if err != nil {
		return nil, err
	}
	k := n
	if y != nil && !object.IsNone(y) {
		if k, err = nonNegative(ctx, "k", y); err != nil {
			return nil, err
		}
	}
	if k.Cmp(n) > 0 {
		return object.NewInt(0), nil
	}
	if !n.IsInt64() {
		return nil, object.OverflowErrorf("n must not exceed %d", int64(math.MaxInt64))
	}
	lo := n.Int64() - k.Int64() + 1
	return object.NewBigInt(new(big.Int).MulRange(lo, n.Int64())), nil
}

// Fsum returns an accurate floating point sum of the values of an
// iterable, tracking exact partial sums.
func Fsum(ctx context.Context, iterable object.Object) (object.Object, error) {
	it, err := object.Iter(ctx, iterable)
	if err != nil {
		return nil, err
	}
	var partials []float64
	special, sawNaN := 0.0, false
	for {
		v, ok, err := object.Next(ctx, it)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		x, err := object.ToFloat(ctx, v)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(x) {
			sawNaN = true
			continue
		}
		if math.IsInf(x, 0) {
			special += x
			continue
		}
		i := 0
		for _, y := range partials {
			if math.Abs(x) < math.Abs(y) {
				x, y = y, x
			}
			hi := x + y
			lo := y - (hi - x)
			if lo != 0 {
				partials[i] = lo
				i++
			}
			x = hi
		}
		partials = append(partials[:i], x)
	}
	switch {
	case sawNaN:
		return object.NewFloat(math.NaN()), nil
	case math.IsNaN(special):
		return nil, object.ValueErrorf("-inf + inf in fsum")
	case special != 0:
		return object.NewFloat(special), nil
	}
	total := 0.0
	for i := len(partials) - 1; i >= 0; i-- {
		total += partials[i]
	}
	return object.NewFloat(total), nil
}

// Prod returns start times every value of iterable.
func Prod(ctx context.Context, iterable, start object.Object) (object.Object, error) {
	it, err := object.Iter(ctx, iterable)
	if err != nil {
		return nil, err
	}
	acc := start
	for {
		v, ok, err := object.Next(ctx, it)
		if err != nil {
			return nil, err
		}
		if !ok {
			return acc, nil
		}
		if acc, err = object.BinaryOp(ctx, op.Multiply, acc, v); err != nil {
			return nil, err
		}
	}
}

// IsClose reports whether a and b are within the relative or absolute
// tolerance of each other.
func IsClose(a, b, relTol, absTol float64) (bool, error) {
	if relTol < 0 || absTol < 0 {
		return false, object.ValueErrorf("tolerances must be non-negative")
	}
	if a == b {
		return true, nil
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false, nil
	}
	diff := math.Abs(b - a)
	return diff <= math.Abs(relTol*b) || diff <= math.Abs(relTol*a) || diff <= absTol, nil
}

func gamma(x float64) (object.Object, error) {
	if x == 0 || (x < 0 && x == math.Trunc(x)) || math.IsInf(x, -1) {
		return nil, domainError()
	}
	return checked(x, math.Gamma(x), false)
}

func lgamma(x float64) (object.Object, error) {
	if x <= 0 && x == math.Trunc(x) {
		return nil, domainError()
	}
	r, _ := math.Lgamma(x)
	return checked(x, r, false)
}

func ulp(x float64) float64 {
	switch {
	case math.IsNaN(x), math.IsInf(x, 0):
		return math.Abs(x)
	}
	x = math.Abs(x)
	if x == math.MaxFloat64 {
		return x - math.Nextafter(x, 0)
	}
	return math.Nextafter(x, math.Inf(1)) - x
}

func floatFn(n string, params []string, f func(float64, float64) (object.Object, error)) *object.Builtin {
	return fn(n).Arg(params...).Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
		x, y, err := floats(ctx, args)
		if err != nil {
			return nil, err
		}
		return f(x, y)
	})
}

func oneFloat(n string, f func(float64) (object.Object, error)) *object.Builtin {
	return fn(n).Arg("x").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
		x, err := object.ToFloat(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		return f(x)
	})
}

func functions() []*object.Builtin {
	return []*object.Builtin{
		fn("sqrt").Arg("x").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return Sqrt(ctx, args.Get(0))
		}),
		fn("floor").Arg("x").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return Floor(ctx, args.Get(0))
		}),
		fn("ceil").Arg("x").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return Ceil(ctx, args.Get(0))
		}),
		fn("trunc").Arg("x").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return rounding(ctx, args.Get(0), "__trunc__", math.Trunc)
		}),
		fn("log").Arg("x").OptArg("base").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return Log(ctx, args.Get(0), args.Get(1))
		}),
		logBase("log2", math.Ln2),
		logBase("log10", math.Ln10),
		fn("pow").Arg("x", "y").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return Pow(ctx, args.Get(0), args.Get(1))
		}),
		fn("factorial").Arg("n").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return Factorial(ctx, args.Get(0))
		}),
		fn("gcd").Variadic().Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return Gcd(ctx, args.Rest)
		}),
		fn("lcm").Variadic().Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return Lcm(ctx, args.Rest)
		}),
		fn("isqrt").Arg("n").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return Isqrt(ctx, args.Get(0))
		}),
		fn("comb").Arg("n", "k").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return Comb(ctx, args.Get(0), args.Get(1))
		}),
		fn("perm").Arg("n").OptArg("k").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return Perm(ctx, args.Get(0), args.Get(1))
		}),
		fn("fsum").Arg("seq").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return Fsum(ctx, args.Get(0))
		}),
		fn("prod").Arg("iterable").OptArg("start").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return Prod(ctx, args.Get(0), args.Or(1, object.NewInt(1)))
		}),
		fn("isclose").Arg("a", "b").OptArg("rel_tol", "abs_tol").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			a, b, err := floats(ctx, args)
			if err != nil {
				return nil, err
			}
			relTol, err := object.ToFloat(ctx, args.Or(2, object.NewFloat(1e-09)))
			if err != nil {
				return nil, err
			}
			absTol, err := object.ToFloat(ctx, args.Or(3, object.NewFloat(0)))
			if err != nil {
				return nil, err
			}
			ok, err := IsClose(a, b, relTol, absTol)
			if err != nil {
				return nil, err
			}
			return object.NewBool(ok), nil
		}),
		fn("hypot").Variadic().Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			acc := 0.0
			for _, v := range args.Rest {
				f, err := object.ToFloat(ctx, v)
				if err != nil {
					return nil, err
				}
				acc = object.Hypot(acc, f)
			}
			return object.NewFloat(acc), nil
		}),
		fn("ldexp").Arg("x", "i").Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			x, err := object.ToFloat(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			i, err := object.IndexInt(ctx, args.Get(1))
			if err != nil {
				return nil, err
			}
			return checked(x, math.Ldexp(x, i), false)
		}),
		oneFloat("frexp", func(x float64) (object.Object, error) {
			m, e := math.Frexp(x)
			return object.NewTuple([]object.Object{object.NewFloat(m), object.NewInt(int64(e))}), nil
		}),
		oneFloat("modf", func(x float64) (object.Object, error) {
			if math.IsInf(x, 0) {
				return object.NewTuple([]object.Object{object.NewFloat(math.Copysign(0, x)), object.NewFloat(x)}), nil
			}
			i, f := math.Modf(x)
			return object.NewTuple([]object.Object{object.NewFloat(f), object.NewFloat(i)}), nil
		}),
		oneFloat("isfinite", func(x float64) (object.Object, error) {
			return object.NewBool(!math.IsInf(x, 0) && !math.IsNaN(x)), nil
		}),
		oneFloat("isinf", func(x float64) (object.Object, error) { return object.NewBool(math.IsInf(x, 0)), nil }),
		oneFloat("isnan", func(x float64) (object.Object, error) { return object.NewBool(math.IsNaN(x)), nil }),
		oneFloat("gamma", gamma),
		oneFloat("lgamma", lgamma),
		oneFloat("ulp", func(x float64) (object.Object, error) { return object.NewFloat(ulp(x)), nil }),
		floatFn("atan2", []string{"y", "x"}, func(y, x float64) (object.Object, error) {
			return object.NewFloat(object.Atan2(y, x)), nil
		}),
		floatFn("copysign", []string{"x", "y"}, func(x, y float64) (object.Object, error) {
			return object.NewFloat(math.Copysign(x, y)), nil
		}),
		floatFn("fmod", []string{"x", "y"}, func(x, y float64) (object.Object, error) {
			if y == 0 || math.IsInf(x, 0) {
				return nil, domainError()
			}
			return object.NewFloat(math.Mod(x, y)), nil
		}),
		floatFn("remainder", []string{"x", "y"}, func(x, y float64) (object.Object, error) {
			if y == 0 || math.IsInf(x, 0) {
				return nil, domainError()
			}
			return object.NewFloat(math.Remainder(x, y)), nil
		}),
		floatFn("nextafter", []string{"x", "y"}, func(x, y float64) (object.Object, error) {
			return object.NewFloat(math.Nextafter(x, y)), nil
		}),
		unary("fabs", math.Abs, false),
		unary("exp", object.Exp, false),
		unary("exp2", math.Exp2, false),
		unary("expm1", math.Expm1, false),
		unary("log1p", math.Log1p, true),
		unary("cbrt", math.Cbrt, false),
		unary("sin", object.Sin, false),
		unary("cos", object.Cos, false),
		unary("tan", math.Tan, false),
		unary("asin", math.Asin, false),
		unary("acos", math.Acos, false),
		unary("atan", math.Atan, false),
		unary("sinh", math.Sinh, false),
		unary("cosh", math.Cosh, false),
		unary("tanh", math.Tanh, false),
		unary("asinh", math.Asinh, false),
		unary("acosh", math.Acosh, false),
		unary("atanh", math.Atanh, true),
		unary("erf", math.Erf, false),
		unary("erfc", math.Erfc, false),
		unary("degrees", func(x float64) float64 { return x * 180 / math.Pi }, false),
		unary("radians", func(x float64) float64 { return x * math.Pi / 180 }, false),
	}
}

// Module returns a fresh math module.
func Module() *object.Module {
	d := object.NewDict()
	d.SetStr("__name__", object.NewStr(name))
	d.SetStr("pi", object.NewFloat(math.Pi))
	d.SetStr("e", object.NewFloat(math.E))
	d.SetStr("tau", object.NewFloat(2*math.Pi))
	d.SetStr("inf", object.NewFloat(math.Inf(1)))
	d.SetStr("nan", object.NewFloat(math.NaN()))
	for _, b := range functions() {
		d.SetStr(b.Name(), b)
	}
	return object.NewModule(name, d)
}
