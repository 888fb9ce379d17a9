package object

import (
	"context"
	"math"
	"math/big"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// Numeric hashes reduce values modulo the Mersenne prime 2**61-1 so that
// equal numbers of different types (1, 1.0, True) hash alike.
const (
	hashBits    = 61
	hashModulus = (1 << hashBits) - 1
	hashInf     = 314159
	hashImag    = 1000003
)

const (
	xxPrime1 uint64 = 11400714785074694791
	xxPrime2 uint64 = 14029467366897019727
	xxPrime5 uint64 = 2870177450012600261
)

var bigHashModulus = big.NewInt(hashModulus)

// Id returns the identity of an object, stable for the object's lifetime.
func Id(o Object) int64 {
	return int64(reflect.ValueOf(o).Pointer())
}

func identityHash(o Object) int64 {
	id := uint64(Id(o))
	// Low bits are always zero for aligned pointers.
	h := int64(id>>4 | id<<60)
	return fixHash(h)
}

func fixHash(h int64) int64 {
	if h == -1 {
		return -2
	}
	return h
}

func hashInt64(v int64) int64 {
	neg := v < 0
	var u uint64
	if neg {
		u = uint64(-v)
		if v == math.MinInt64 {
			u = 1 << 63
		}
	} else {
		u = uint64(v)
	}
	u %= hashModulus
	h := int64(u)
	if neg {
		h = -h
	}
	return fixHash(h)
}

func hashBigInt(b *big.Int) int64 {
	var r big.Int
	r.Abs(b)
	r.Mod(&r, bigHashModulus)
	h := r.Int64()
	if b.Sign() < 0 {
		h = -h
	}
	return fixHash(h)
}

func hashFloat(o Object, v float64) int64 {
	if math.IsInf(v, 0) {
		if v > 0 {
			return hashInf
		}
		return -hashInf
	}
	if math.IsNaN(v) {
		return identityHash(o)
	}
	m, e := math.Frexp(v)
	sign := int64(1)
	if m < 0 {
		sign = -1
		m = -m
	}
	var x uint64
	for m != 0 {
		x = ((x << 28) & hashModulus) | x>>(hashBits-28)
		m *= 268435456.0
		e -= 28
		y := uint64(m)
		m -= float64(y)
		x += y
		if x >= hashModulus {
			x -= hashModulus
		}
	}
	if e >= 0 {
		e %= hashBits
	} else {
		e = hashBits - 1 - ((-1 - e) % hashBits)
	}
	x = ((x << uint(e)) & hashModulus) | x>>uint(hashBits-e)
	return fixHash(int64(x) * sign)
}

func hashString(s string) int64 {
	return fixHash(int64(xxhash.Sum64String(s)))
}

func hashBytes(b []byte) int64 {
	return fixHash(int64(xxhash.Sum64(b)))
}

func hashTuple(ctx context.Context, items []Object) (int64, error) {
	acc := xxPrime5
	for _, item := range items {
		lane, err := Hash(ctx, item)
		if err != nil {
			return 0, err
		}
		acc += uint64(lane) * xxPrime2
		acc = acc<<31 | acc>>33
		acc *= xxPrime1
	}
	acc += uint64(len(items)) ^ (xxPrime5 ^ 3527539)
	if acc == math.MaxUint64 {
		return 1546275796, nil
	}
	return int64(acc), nil
}

func hashFrozenSet(s *FrozenSet) int64 {
	var h uint64
	for _, e := range s.t.live() {
		eh := uint64(e.hash)
		h ^= ((eh ^ 89869747) ^ (eh << 16)) * 3644798167
	}
	h ^= (uint64(s.t.used) + 1) * 1927868237
	h ^= (h >> 11) ^ (h >> 25)
	h = h*69069 + 907133923
	if int64(h) == -1 {
		return 590923713
	}
	return int64(h)
}

// Hash returns hash(o). Mutable containers and types that set __hash__ to
// None raise TypeError.
func Hash(ctx context.Context, o Object) (int64, error) {
	switch o := o.(type) {
	case *Int:
		if o.big == nil {
			return hashInt64(o.small), nil
		}
		return hashBigInt(o.big), nil
	case *Bool:
		if o.value {
			return 1, nil
		}
		return 0, nil
	case *Str:
		return hashString(o.value), nil
	case *Float:
		return hashFloat(o, o.value), nil
	case *Complex:
		re := hashFloat(o, real(o.value))
		im := hashFloat(o, imag(o.value))
		return fixHash(int64(uint64(re) + hashImag*uint64(im))), nil
	case *Bytes:
		return hashBytes(o.value), nil
	case *Tuple:
		return hashTuple(ctx, o.items)
	case *FrozenSet:
		return hashFrozenSet(o), nil
	case *NoneType, *NotImplementedType, *EllipsisType, *Type, *Function, *Builtin, *Module, *Cell, *Code:
		return identityHash(o), nil
	case *List, *Dict, *Set, *ByteArray:
		return 0, unhashable(o)
	case *Slice:
		return 0, unhashable(o)
	}
	t := o.Type()
	fn := t.Lookup("__hash__")
	if fn == nil || fn == Object(None) {
		return 0, unhashable(o)
	}
	if b, ok := fn.(*Builtin); ok && b.owner == ObjectType {
		return identityHash(o), nil
	}
	res, err := callBound(ctx, fn, o, nil, nil)
	if err != nil {
		return 0, err
	}
	switch r := res.(type) {
	case *Int:
		if r.big == nil {
			return hashInt64(r.small), nil
		}
		return hashBigInt(r.big), nil
	case *Bool:
		if r.value {
			return 1, nil
		}
		return 0, nil
	}
	return 0, TypeErrorf("__hash__ method should return an integer")
}

func unhashable(o Object) error {
	return TypeErrorf("unhashable type: '%s'", o.Type().name)
}
