package object

import (
	"math"
	"math/big"
	"sync"
)

// The functions in this file return correctly rounded float64 results,
// matching the C library CPython is normally linked against. Each one
// evaluates in math/big at workPrec bits and rounds once.

const workPrec = 256

// reducePrec carries enough bits of pi/2 to reduce the largest float64
// argument and keep workPrec significant bits of the remainder.
const reducePrec = 1100 + 2*workPrec

var (
	libmOnce  sync.Once
	bigLn2    *big.Float
	bigHalfPi *big.Float
)

func loadLibmConstants() {
	libmOnce.Do(func() {
		bigLn2 = atanhSeries(inverse(3, workPrec+64), workPrec+64)
		bigLn2.SetMantExp(bigLn2, 1)

		// pi/2 = 8 atan(1/5) - 2 atan(1/239)
		a := atanSeries(inverse(5, reducePrec), reducePrec)
		a.SetMantExp(a, 3)
		b := atanSeries(inverse(239, reducePrec), reducePrec)
		b.SetMantExp(b, 1)
		bigHalfPi = a.Sub(a, b)
	})
}

func lmFloat(prec uint) *big.Float { return new(big.Float).SetPrec(prec) }

func lmInt(v int64, prec uint) *big.Float { return lmFloat(prec).SetInt64(v) }

func inverse(n int64, prec uint) *big.Float {
	return lmFloat(prec).Quo(lmInt(1, prec), lmInt(n, prec))
}

// negligible reports whether adding term to sum can no longer change it.
func negligible(term, sum *big.Float, prec uint) bool {
	if term.Sign() == 0 {
		return true
	}
	return sum.Sign() != 0 && term.MantExp(nil) < sum.MantExp(nil)-int(prec)-2
}

// atanhSeries sums z + z^3/3 + z^5/5 + ... for |z| < 1.
func atanhSeries(z *big.Float, prec uint) *big.Float {
	return oddSeries(z, prec, false)
}

// atanSeries sums z - z^3/3 + z^5/5 - ... for |z| <= 1.
func atanSeries(z *big.Float, prec uint) *big.Float {
	return oddSeries(z, prec, true)
}

func oddSeries(z *big.Float, prec uint, alternate bool) *big.Float {
	z2 := lmFloat(prec).Mul(z, z)
	if alternate {
		z2.Neg(z2)
	}
	pow := lmFloat(prec).Set(z)
	sum := lmFloat(prec).Set(z)
	t := lmFloat(prec)
	for k := int64(3); ; k += 2 {
		pow.Mul(pow, z2)
		t.Quo(pow, lmInt(k, prec))
		if negligible(t, sum, prec) {
			return sum
		}
		sum.Add(sum, t)
	}
}

// bigLog returns ln(x) for a finite x > 0.
func bigLog(x float64) *big.Float {
	loadLibmConstants()
	m, e := math.Frexp(x)
	if m < math.Sqrt2/2 {
		m *= 2
		e--
	}
	// ln(m) = 2 atanh((m-1)/(m+1)) with |(m-1)/(m+1)| < 0.18
	bm := lmFloat(workPrec).SetFloat64(m)
	num := lmFloat(workPrec).Sub(bm, lmInt(1, workPrec))
	den := lmFloat(workPrec).Add(bm, lmInt(1, workPrec))
	r := atanhSeries(num.Quo(num, den), workPrec)
	r.SetMantExp(r, 1)
	return r.Add(r, lmFloat(workPrec).Mul(bigLn2, lmInt(int64(e), workPrec)))
}

// bigExp rounds e**t to a float64.
func bigExp(t *big.Float) float64 {
	loadLibmConstants()
	if t.Sign() == 0 {
		return 1
	}
	tf, _ := t.Float64()
	switch {
	case tf > 710:
		return math.Inf(1)
	case tf < -746:
		return 0
	}
	// t = n*ln2 + r, then e**r = (e**(r/2^8))^(2^8).
	q, _ := lmFloat(workPrec).Quo(t, bigLn2).Float64()
	n := int64(math.Round(q))
	r := lmFloat(workPrec).Mul(bigLn2, lmInt(n, workPrec))
	r.Sub(t, r)
	const halvings = 8
	r.SetMantExp(r, -halvings)
	sum := lmInt(1, workPrec)
	term := lmInt(1, workPrec)
	for k := int64(1); ; k++ {
		term.Mul(term, r)
		term.Quo(term, lmInt(k, workPrec))
		if negligible(term, sum, workPrec) {
			break
		}
		sum.Add(sum, term)
	}
	for i := 0; i < halvings; i++ {
		sum.Mul(sum, sum)
	}
	sum.SetMantExp(sum, int(n))
	f, _ := sum.Float64()
	return f
}

// Exp returns e**x correctly rounded.
func Exp(x float64) float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return math.Exp(x)
	}
	return bigExp(lmFloat(workPrec).SetFloat64(x))
}

// Log returns the natural logarithm of x correctly rounded.
func Log(x float64) float64 {
	if x <= 0 || math.IsInf(x, 0) || math.IsNaN(x) || x == 1 {
		return math.Log(x)
	}
	f, _ := bigLog(x).Float64()
	return f
}

// Pow returns x**y correctly rounded. Special cases are those of
// math.Pow, which follows C99.
func Pow(x, y float64) float64 {
	switch {
	case x == 0 || y == 0 || x == 1:
		return math.Pow(x, y)
	case math.IsInf(x, 0) || math.IsInf(y, 0) || math.IsNaN(x) || math.IsNaN(y):
		return math.Pow(x, y)
	}
	neg := false
	if x < 0 {
		if y != math.Trunc(y) {
			return math.NaN()
		}
		neg = math.Mod(y, 2) != 0
		x = -x
	}
	var r float64
	if y == math.Trunc(y) && math.Abs(y) <= 1<<12 {
		r = powExact(x, int64(y))
	} else {
		t := bigLog(x)
		r = bigExp(t.Mul(t, lmFloat(workPrec).SetFloat64(y)))
	}
	if neg {
		r = -r
	}
	return r
}

// powExact raises x to n by repeated squaring without intermediate
// rounding.
func powExact(x float64, n int64) float64 {
	bx := new(big.Float).SetFloat64(x)
	m := n
	if m < 0 {
		m = -m
	}
	prec := uint(bx.MinPrec())*uint(m) + 64
	acc := lmInt(1, prec)
	base := lmFloat(prec).Set(bx)
	for m > 0 {
		if m&1 == 1 {
			acc.Mul(acc, base)
		}
		m >>= 1
		if m > 0 {
			base.Mul(base, base)
		}
	}
	if n < 0 {
		acc = lmFloat(2*workPrec).Quo(lmInt(1, 2*workPrec), acc)
	}
	f, _ := acc.Float64()
	return f
}

// Hypot returns sqrt(p*p + q*q) correctly rounded.
func Hypot(p, q float64) float64 {
	if p == 0 || q == 0 || math.IsInf(p, 0) || math.IsInf(q, 0) || math.IsNaN(p) || math.IsNaN(q) {
		return math.Hypot(p, q)
	}
	a := lmFloat(workPrec).SetFloat64(p)
	a.Mul(a, a)
	b := lmFloat(workPrec).SetFloat64(q)
	b.Mul(b, b)
	a.Add(a, b)
	f, _ := a.Sqrt(a).Float64()
	return f
}

// Atan2 returns the angle of the point (x, y) correctly rounded.
func Atan2(y, x float64) float64 {
	if x == 0 || y == 0 || math.IsInf(x, 0) || math.IsInf(y, 0) || math.IsNaN(x) || math.IsNaN(y) {
		return math.Atan2(y, x)
	}
	loadLibmConstants()
	halfPi := lmFloat(workPrec).Set(bigHalfPi)
	z := lmFloat(workPrec).Quo(lmFloat(workPrec).SetFloat64(math.Abs(y)), lmFloat(workPrec).SetFloat64(math.Abs(x)))
	var a *big.Float
	if z.Cmp(lmInt(1, workPrec)) > 0 {
		a = halfPi.Sub(halfPi, bigAtan(z.Quo(lmInt(1, workPrec), z)))
	} else {
		a = bigAtan(z)
	}
	if x < 0 {
		pi := lmFloat(workPrec).SetMantExp(bigHalfPi, 1)
		a = pi.Sub(pi, a)
	}
	if y < 0 {
		a.Neg(a)
	}
	f, _ := a.Float64()
	return f
}

// bigAtan returns atan(z) for 0 < z <= 1.
func bigAtan(z *big.Float) *big.Float {
	// atan(z) = 2 atan(z / (1 + sqrt(1 + z^2)))
	const halvings = 4
	one := lmInt(1, workPrec)
	w := lmFloat(workPrec).Set(z)
	for i := 0; i < halvings; i++ {
		s := lmFloat(workPrec).Mul(w, w)
		s.Add(s, one)
		s.Sqrt(s)
		s.Add(s, one)
		w.Quo(w, s)
	}
	r := atanSeries(w, workPrec)
	return r.SetMantExp(r, halvings)
}

// Sin returns the sine of x correctly rounded.
func Sin(x float64) float64 { return sincos(x, false) }

// Cos returns the cosine of x correctly rounded.
func Cos(x float64) float64 { return sincos(x, true) }

func sincos(x float64, cos bool) float64 {
	if x == 0 || math.IsInf(x, 0) || math.IsNaN(x) {
		if cos {
			return math.Cos(x)
		}
		return math.Sin(x)
	}
	loadLibmConstants()
	// x = k*(pi/2) + r with |r| <= pi/4
	bx := lmFloat(reducePrec).SetFloat64(x)
	q := lmFloat(reducePrec).Quo(bx, bigHalfPi)
	half := lmFloat(reducePrec).SetFloat64(0.5)
	if q.Sign() >= 0 {
		q.Add(q, half)
	} else {
		q.Sub(q, half)
	}
	k, _ := q.Int(nil)
	r := lmFloat(reducePrec).SetInt(k)
	r.Mul(r, bigHalfPi)
	r.Sub(bx, r)
	r.SetPrec(workPrec)

	quadrant := new(big.Int).And(k, big.NewInt(3)).Int64()
	if cos {
		quadrant++
	}
	var s *big.Float
	switch quadrant & 3 {
	case 0:
		s = trigSeries(r, false)
	case 1:
		s = trigSeries(r, true)
	case 2:
		s = trigSeries(r, false)
		s.Neg(s)
	default:
		s = trigSeries(r, true)
		s.Neg(s)
	}
	f, _ := s.Float64()
	return f
}

// trigSeries sums the Taylor series of cos(r) or sin(r).
func trigSeries(r *big.Float, cos bool) *big.Float {
	r2 := lmFloat(workPrec).Mul(r, r)
	r2.Neg(r2)
	term := lmFloat(workPrec).Set(r)
	n := int64(2)
	if cos {
		term.SetInt64(1)
		n = 1
	}
	sum := lmFloat(workPrec).Set(term)
	for ; ; n += 2 {
		term.Mul(term, r2)
		term.Quo(term, lmInt(n*(n+1), workPrec))
		if negligible(term, sum, workPrec) {
			return sum
		}
		sum.Add(sum, term)
	}
}
