package object

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Bytes is an immutable byte string.
type Bytes struct {
	value []byte
}

// NewBytes returns a Bytes wrapping b. The caller must not modify b.
func NewBytes(b []byte) *Bytes {
	return &Bytes{value: b}
}

func (b *Bytes) Type() *Type { return BytesType }

// Value returns the underlying bytes. They must not be modified.
func (b *Bytes) Value() []byte { return b.value }

// ByteArray is a mutable byte string.
type ByteArray struct {
	value []byte
}

// NewByteArray returns a ByteArray wrapping b.
func NewByteArray(b []byte) *ByteArray {
	return &ByteArray{value: b}
}

func (b *ByteArray) Type() *Type { return ByteArrayType }

// Value returns the underlying bytes.
func (b *ByteArray) Value() []byte { return b.value }

// bytesLike returns the contents of bytes-like objects.
func bytesLike(o Object) ([]byte, bool) {
	switch v := o.(type) {
	case *Bytes:
		return v.value, true
	case *ByteArray:
		return v.value, true
	case *Instance:
		return bytesLike(v.native)
	}
	return nil, false
}

func reprBytes(prefix string, b []byte) string {
	quote := byte('\'')
	if bytes.IndexByte(b, '\'') >= 0 && bytes.IndexByte(b, '"') < 0 {
		quote = '"'
	}
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteByte(quote)
	for _, c := range b {
		switch {
		case c == quote || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\t':
			sb.WriteString(`\t`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte(quote)
	return sb.String()
}

func normalizeEncoding(enc string) string {
	e := strings.ToLower(strings.ReplaceAll(enc, "_", "-"))
	switch e {
	case "utf8", "utf-8", "u8":
		return "utf-8"
	case "ascii", "us-ascii":
		return "ascii"
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1", "l1":
		return "latin-1"
	}
	return e
}

func decodeBytes(data []byte, encoding, errors string) (string, error) {
	enc := normalizeEncoding(encoding)
	var sb strings.Builder
	switch enc {
	case "utf-8":
		for i := 0; i < len(data); {
			r, size := utf8.DecodeRune(data[i:])
			if r == utf8.RuneError && size <= 1 {
				switch errors {
				case "ignore":
				case "replace":
					sb.WriteRune(utf8.RuneError)
				default:
					return "", NewException(UnicodeDecodeErrorType, NewStr(fmt.Sprintf(
						"'utf-8' codec can't decode byte 0x%02x in position %d: invalid start byte", data[i], i)))
				}
				i++
				continue
			}
			sb.WriteRune(r)
			i += size
		}
	case "ascii":
		for i, c := range data {
			if c >= 0x80 {
				switch errors {
				case "ignore":
					continue
				case "replace":
					sb.WriteRune(utf8.RuneError)
					continue
				}
				return "", NewException(UnicodeDecodeErrorType, NewStr(fmt.Sprintf(
					"'ascii' codec can't decode byte 0x%02x in position %d: ordinal not in range(128)", c, i)))
			}
			sb.WriteByte(c)
		}
	case "latin-1":
		for _, c := range data {
			sb.WriteRune(rune(c))
		}
	default:
		return "", LookupErrorf("unknown encoding: %s", encoding)
	}
	return sb.String(), nil
}

func encodeString(s, encoding, errors string) ([]byte, error) {
	enc := normalizeEncoding(encoding)
	switch enc {
	case "utf-8":
		return []byte(s), nil
	case "ascii", "latin-1":
		limit := rune(0x80)
		if enc == "latin-1" {
			limit = 0x100
		}
		out := make([]byte, 0, len(s))
		pos := 0
		for _, r := range s {
			if r >= limit {
				switch errors {
				case "ignore":
				case "replace":
					out = append(out, '?')
				default:
					rng := "range(128)"
					if enc == "latin-1" {
						rng = "range(256)"
					}
					return nil, NewException(UnicodeEncodeErrorType, NewStr(fmt.Sprintf(
						"'%s' codec can't encode character '\\u%04x' in position %d: ordinal not in %s", enc, r, pos, rng)))
				}
			} else {
				out = append(out, byte(r))
			}
			pos++
		}
		return out, nil
	}
	return nil, LookupErrorf("unknown encoding: %s", encoding)
}

// bytesFromObject implements the bytes(x) and bytearray(x) constructors.
func bytesFromObject(ctx context.Context, args Args, fname string) ([]byte, error) {
	src := args.Get(0)
	if args.Has(1) || args.Has(2) {
		s, ok := asStr(src)
		if !ok {
			return nil, TypeErrorf("encoding without a string argument")
		}
		enc, errs := "utf-8", "strict"
		if args.Has(1) {
			e, err := argStr(fname, args.Get(1))
			if err != nil {
				return nil, err
			}
			enc = e
		}
		if args.Has(2) {
			e, err := argStr(fname, args.Get(2))
			if err != nil {
				return nil, err
			}
			errs = e
		}
		return encodeString(s.value, enc, errs)
	}
	switch v := src.(type) {
	case nil:
		return nil, nil
	case *Str:
		return nil, TypeErrorf("string argument without an encoding")
	case *Bytes:
		return bytes.Clone(v.value), nil
	case *ByteArray:
		return bytes.Clone(v.value), nil
	case *Int, *Bool:
		n, err := IndexInt(ctx, v)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, ValueErrorf("negative count")
		}
		return make([]byte, n), nil
	}
	items, err := ToSlice(ctx, src)
	if err != nil {
		return nil, TypeErrorf("cannot convert '%s' object to %s", src.Type().name, fname)
	}
	out := make([]byte, len(items))
	for i, item := range items {
		c, err := byteValue(ctx, item)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func byteValue(ctx context.Context, o Object) (byte, error) {
	n, err := IndexInt(ctx, o)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 255 {
		return 0, ValueErrorf("byte must be in range(0, 256)")
	}
	return byte(n), nil
}

func bytesArg(o Object) ([]byte, error) {
	if b, ok := bytesLike(o); ok {
		return b, nil
	}
	return nil, TypeErrorf("a bytes-like object is required, not '%s'", o.Type().name)
}

// defineBytesMethods installs the read-only methods shared by bytes and
// bytearray. wrap builds a result of the receiver's type.
func defineBytesMethods[T Object](m *Methods[T], data func(T) []byte, wrap func([]byte) Object) {
	m.Define("decode").OptArg("encoding", "errors").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		enc, errs := "utf-8", "strict"
		if args.Has(0) {
			e, err := argStr("decode", args.Get(0))
			if err != nil {
				return nil, err
			}
			enc = e
		}
		if args.Has(1) {
			e, err := argStr("decode", args.Get(1))
			if err != nil {
				return nil, err
			}
			errs = e
		}
		s, err := decodeBytes(data(self), enc, errs)
		if err != nil {
			return nil, err
		}
		return NewStr(s), nil
	})
	m.Define("hex").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		return NewStr(hex.EncodeToString(data(self))), nil
	})
	m.Define("count").Arg("sub").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		sub, err := subBytes(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		return NewInt(int64(bytes.Count(data(self), sub))), nil
	})
	m.Define("find").Arg("sub").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		sub, err := subBytes(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		return NewInt(int64(bytes.Index(data(self), sub))), nil
	})
	m.Define("index").Arg("sub").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		sub, err := subBytes(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		i := bytes.Index(data(self), sub)
		if i < 0 {
			return nil, ValueErrorf("subsection not found")
		}
		return NewInt(int64(i)), nil
	})
	m.Define("startswith").Arg("prefix").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		p, err := bytesArg(args.Get(0))
		if err != nil {
			return nil, err
		}
		return NewBool(bytes.HasPrefix(data(self), p)), nil
	})
	m.Define("endswith").Arg("suffix").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		p, err := bytesArg(args.Get(0))
		if err != nil {
			return nil, err
		}
		return NewBool(bytes.HasSuffix(data(self), p)), nil
	})
	m.Define("join").Arg("iterable").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		items, err := ToSlice(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		parts := make([][]byte, len(items))
		for i, item := range items {
			b, ok := bytesLike(item)
			if !ok {
				return nil, TypeErrorf("sequence item %d: expected a bytes-like object, %s found", i, item.Type().name)
			}
			parts[i] = b
		}
		return wrap(bytes.Join(parts, data(self))), nil
	})
	m.Define("split").OptArg("sep", "maxsplit").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		var parts [][]byte
		n := -1
		if args.Has(1) {
			v, err := IndexInt(ctx, args.Get(1))
			if err != nil {
				return nil, err
			}
			n = splitN(v)
		}
		if IsNone(args.Get(0)) {
			fields := bytes.Fields(data(self))
			if n > 0 && len(fields) > n {
				fields = fields[:n]
			}
			parts = fields
		} else {
			sep, err := bytesArg(args.Get(0))
			if err != nil {
				return nil, err
			}
			if len(sep) == 0 {
				return nil, ValueErrorf("empty separator")
			}
			parts = bytes.SplitN(data(self), sep, n)
		}
		items := make([]Object, len(parts))
		for i, p := range parts {
			items[i] = wrap(bytes.Clone(p))
		}
		return NewList(items), nil
	})
	for _, def := range []struct {
		name        string
		left, right bool
	}{{"strip", true, true}, {"lstrip", true, false}, {"rstrip", false, true}} {
		def := def
		m.Define(def.name).OptArg("chars").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
			cut := " \t\n\r\v\f"
			if !IsNone(args.Get(0)) {
				c, err := bytesArg(args.Get(0))
				if err != nil {
					return nil, err
				}
				cut = string(c)
			}
			b := data(self)
			if def.left {
				b = bytes.TrimLeft(b, cut)
			}
			if def.right {
				b = bytes.TrimRight(b, cut)
			}
			return wrap(bytes.Clone(b)), nil
		})
	}
	m.Define("replace").Arg("old", "new").OptArg("count").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		old, err := bytesArg(args.Get(0))
		if err != nil {
			return nil, err
		}
		repl, err := bytesArg(args.Get(1))
		if err != nil {
			return nil, err
		}
		n := -1
		if args.Has(2) {
			if n, err = IndexInt(ctx, args.Get(2)); err != nil {
				return nil, err
			}
		}
		return wrap(bytes.Replace(data(self), old, repl, n)), nil
	})
	m.Define("upper").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		return wrap(bytes.ToUpper(data(self))), nil
	})
	m.Define("lower").Impl(func(self T, ctx context.Context, args Args) (Object, error) {
		return wrap(bytes.ToLower(data(self))), nil
	})
}

func subBytes(ctx context.Context, o Object) ([]byte, error) {
	if b, ok := bytesLike(o); ok {
		return b, nil
	}
	c, err := byteValue(ctx, o)
	if err != nil {
		return nil, TypeErrorf("argument should be integer or bytes-like object, not '%s'", o.Type().name)
	}
	return []byte{c}, nil
}

func init() {
	bm := NewMethods[*Bytes](BytesType, exact[*Bytes])
	bm.New([]string{"source", "encoding", "errors"}, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		if b, ok := args.Get(0).(*Bytes); ok && cls == BytesType && !args.Has(1) {
			return b, nil
		}
		data, err := bytesFromObject(ctx, args, "bytes")
		if err != nil {
			return nil, err
		}
		if cls == BytesType {
			return NewBytes(data), nil
		}
		return newNativeInstance(cls, NewBytes(data)), nil
	})
	bm.ClassMethod("fromhex", []string{"string"}, 1, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		s, err := argStr("fromhex", args.Get(0))
		if err != nil {
			return nil, err
		}
		b, err := hex.DecodeString(strings.Join(strings.Fields(s), ""))
		if err != nil {
			return nil, ValueErrorf("non-hexadecimal number found in fromhex() arg")
		}
		return NewBytes(b), nil
	})
	defineBytesMethods(bm, func(b *Bytes) []byte { return b.value }, func(b []byte) Object { return NewBytes(b) })

	am := NewMethods[*ByteArray](ByteArrayType, exact[*ByteArray])
	am.New([]string{"source", "encoding", "errors"}, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		data, err := bytesFromObject(ctx, args, "bytearray")
		if err != nil {
			return nil, err
		}
		if data == nil {
			data = []byte{}
		}
		if cls == ByteArrayType {
			return NewByteArray(data), nil
		}
		return newNativeInstance(cls, NewByteArray(data)), nil
	})
	defineBytesMethods(am, func(b *ByteArray) []byte { return b.value }, func(b []byte) Object { return NewByteArray(b) })
	am.Define("append").Arg("item").Impl(func(b *ByteArray, ctx context.Context, args Args) (Object, error) {
		c, err := byteValue(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		b.value = append(b.value, c)
		return None, nil
	})
	am.Define("extend").Arg("iterable").Impl(func(b *ByteArray, ctx context.Context, args Args) (Object, error) {
		data, err := bytesFromObject(ctx, Args{Values: []Object{args.Get(0)}}, "bytearray")
		if err != nil {
			return nil, err
		}
		b.value = append(b.value, data...)
		return None, nil
	})
	am.Define("pop").OptArg("index").Impl(func(b *ByteArray, ctx context.Context, args Args) (Object, error) {
		if len(b.value) == 0 {
			return nil, IndexErrorf("pop from empty bytearray")
		}
		i := len(b.value) - 1
		if args.Has(0) {
			n, err := IndexInt(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			if n < 0 {
				n += len(b.value)
			}
			if n < 0 || n >= len(b.value) {
				return nil, IndexErrorf("pop index out of range")
			}
			i = n
		}
		c := b.value[i]
		b.value = append(b.value[:i], b.value[i+1:]...)
		return NewInt(int64(c)), nil
	})
	am.Define("clear").Impl(func(b *ByteArray, ctx context.Context, args Args) (Object, error) {
		b.value = b.value[:0]
		return None, nil
	})
	am.Define("copy").Impl(func(b *ByteArray, ctx context.Context, args Args) (Object, error) {
		return NewByteArray(bytes.Clone(b.value)), nil
	})
}
