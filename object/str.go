package object

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Str is an immutable sequence of code points. Indexing is by code point;
// runes is populated only for strings containing non-ASCII characters.
type Str struct {
	value string
	runes []rune
}

var emptyStr = &Str{}

// NewStr returns a Str for s.
func NewStr(s string) *Str {
	if s == "" {
		return emptyStr
	}
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return &Str{value: s, runes: []rune(s)}
		}
	}
	return &Str{value: s}
}

func newStrRunes(r []rune) *Str {
	return NewStr(string(r))
}

func (s *Str) Type() *Type { return StrType }

// Value returns the Go string.
func (s *Str) Value() string { return s.value }

func (s *Str) String() string { return s.value }

// Len returns the number of code points.
func (s *Str) Len() int {
	if s.runes != nil {
		return len(s.runes)
	}
	return len(s.value)
}

// At returns the code point at index i as a string.
func (s *Str) At(i int) string {
	if s.runes != nil {
		return string(s.runes[i])
	}
	return s.value[i : i+1]
}

// Sub returns the code points in [i, j).
func (s *Str) Sub(i, j int) string {
	if s.runes != nil {
		return string(s.runes[i:j])
	}
	return s.value[i:j]
}

// Runes returns the code points.
func (s *Str) Runes() []rune {
	if s.runes != nil {
		return s.runes
	}
	return []rune(s.value)
}

// runeIndex converts a byte offset within the string to a code point index.
func (s *Str) runeIndex(byteOff int) int {
	if s.runes == nil || byteOff < 0 {
		return byteOff
	}
	return utf8.RuneCountInString(s.value[:byteOff])
}

// byteOffset converts a code point index to a byte offset.
func (s *Str) byteOffset(i int) int {
	if s.runes == nil {
		return i
	}
	off := 0
	for n := 0; n < i && off < len(s.value); n++ {
		_, size := utf8.DecodeRuneInString(s.value[off:])
		off += size
	}
	return off
}

// asStr converts str and str subclass instances.
func asStr(o Object) (*Str, bool) {
	return exact[*Str](o)
}

func argStr(fname string, o Object) (string, error) {
	if s, ok := asStr(o); ok {
		return s.value, nil
	}
	return "", TypeErrorf("%s() argument must be str, not %s", fname, o.Type().name)
}

// reprString quotes s the way repr(str) does.
func reprString(s string) string {
	quote := byte('\'')
	if strings.IndexByte(s, '\'') >= 0 && strings.IndexByte(s, '"') < 0 {
		quote = '"'
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(quote)
	for _, r := range s {
		switch {
		case r == rune(quote) || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r < 0x7f:
			b.WriteRune(r)
		case !unicode.IsPrint(r):
			switch {
			case r <= 0xff:
				fmt.Fprintf(&b, `\x%02x`, r)
			case r <= 0xffff:
				fmt.Fprintf(&b, `\u%04x`, r)
			default:
				fmt.Fprintf(&b, `\U%08x`, r)
			}
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(quote)
	return b.String()
}

// asciiRepr escapes every non-ASCII character, as ascii() does.
func asciiRepr(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r < 0x80:
			b.WriteRune(r)
		case r <= 0xff:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r <= 0xffff:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	return b.String()
}

// isSpace matches str.isspace.
func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f', 0x1c, 0x1d, 0x1e, 0x1f, 0x85:
		return true
	}
	return r > 0x7f && unicode.IsSpace(r)
}

// clampRange converts optional start/end arguments to code point bounds.
func clampRange(ctx context.Context, start, end Object, length int) (int, int, error) {
	lo, hi := 0, length
	if !IsNone(start) {
		n, err := IndexInt(ctx, start)
		if err != nil {
			return 0, 0, err
		}
		lo = n
		if lo < 0 {
			lo += length
			if lo < 0 {
				lo = 0
			}
		}
	}
	if !IsNone(end) {
		n, err := IndexInt(ctx, end)
		if err != nil {
			return 0, 0, err
		}
		hi = n
		if hi < 0 {
			hi += length
			if hi < 0 {
				hi = 0
			}
		} else if hi > length {
			hi = length
		}
	}
	return lo, hi, nil
}

func strFind(ctx context.Context, s *Str, args Args, reverse bool) (int, error) {
	sub, err := argStr("find", args.Get(0))
	if err != nil {
		return 0, err
	}
	lo, hi, err := clampRange(ctx, args.Get(1), args.Get(2), s.Len())
	if err != nil {
		return 0, err
	}
	if lo > hi || lo > s.Len() {
		return -1, nil
	}
	hay := s.Sub(lo, hi)
	var i int
	if reverse {
		i = strings.LastIndex(hay, sub)
	} else {
		i = strings.Index(hay, sub)
	}
	if i < 0 {
		return -1, nil
	}
	return lo + utf8.RuneCountInString(hay[:i]), nil
}

func strStripArg(fname string, o Object) (string, bool, error) {
	if IsNone(o) {
		return "", false, nil
	}
	chars, err := argStr(fname, o)
	return chars, true, err
}

func strStrip(s string, chars string, custom bool, left, right bool) string {
	pred := isSpace
	if custom {
		pred = func(r rune) bool { return strings.ContainsRune(chars, r) }
	}
	if left {
		s = strings.TrimLeftFunc(s, pred)
	}
	if right {
		s = strings.TrimRightFunc(s, pred)
	}
	return s
}

// splitWhitespace splits on runs of whitespace with at most maxsplit
// splits; remaining text keeps its leading whitespace stripped.
func splitWhitespace(s string, maxsplit int) []string {
	var out []string
	i := 0
	rs := []rune(s)
	for i < len(rs) {
		for i < len(rs) && isSpace(rs[i]) {
			i++
		}
		if i == len(rs) {
			break
		}
		if maxsplit >= 0 && len(out) == maxsplit {
			end := len(rs)
			for end > i && isSpace(rs[end-1]) {
				end--
			}
			out = append(out, string(rs[i:end]))
			return out
		}
		j := i
		for j < len(rs) && !isSpace(rs[j]) {
			j++
		}
		out = append(out, string(rs[i:j]))
		i = j
	}
	return out
}

func rsplitWhitespace(s string, maxsplit int) []string {
	rs := []rune(s)
	var out []string
	j := len(rs)
	for j > 0 {
		for j > 0 && isSpace(rs[j-1]) {
			j--
		}
		if j == 0 {
			break
		}
		if maxsplit >= 0 && len(out) == maxsplit {
			start := 0
			for start < j && isSpace(rs[start]) {
				start++
			}
			out = append(out, string(rs[start:j]))
			break
		}
		i := j
		for i > 0 && !isSpace(rs[i-1]) {
			i--
		}
		out = append(out, string(rs[i:j]))
		j = i
	}
	for a, b := 0, len(out)-1; a < b; a, b = a+1, b-1 {
		out[a], out[b] = out[b], out[a]
	}
	return out
}

func rsplitSep(s, sep string, maxsplit int) []string {
	if maxsplit < 0 {
		return strings.Split(s, sep)
	}
	var out []string
	for maxsplit > 0 {
		i := strings.LastIndex(s, sep)
		if i < 0 {
			break
		}
		out = append(out, s[i+len(sep):])
		s = s[:i]
		maxsplit--
	}
	out = append(out, s)
	for a, b := 0, len(out)-1; a < b; a, b = a+1, b-1 {
		out[a], out[b] = out[b], out[a]
	}
	return out
}

func strList(parts []string) *List {
	items := make([]Object, len(parts))
	for i, p := range parts {
		items[i] = NewStr(p)
	}
	return NewList(items)
}

func splitArgs(ctx context.Context, args Args) (string, bool, int, error) {
	maxsplit := -1
	if args.Has(1) {
		n, err := IndexInt(ctx, args.Get(1))
		if err != nil {
			return "", false, 0, err
		}
		maxsplit = n
	}
	if IsNone(args.Get(0)) {
		return "", false, maxsplit, nil
	}
	sep, err := argStr("split", args.Get(0))
	if err != nil {
		return "", false, 0, err
	}
	if sep == "" {
		return "", false, 0, ValueErrorf("empty separator")
	}
	return sep, true, maxsplit, nil
}

func splitLines(s string, keepends bool) []string {
	var out []string
	rs := []rune(s)
	start := 0
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		var eol int
		switch r {
		case '\r':
			eol = 1
			if i+1 < len(rs) && rs[i+1] == '\n' {
				eol = 2
			}
		case '\n', '\v', '\f', 0x1c, 0x1d, 0x1e, 0x85, 0x2028, 0x2029:
			eol = 1
		default:
			continue
		}
		end := i
		if keepends {
			end = i + eol
		}
		out = append(out, string(rs[start:end]))
		i += eol - 1
		start = i + 1
	}
	if start < len(rs) {
		out = append(out, string(rs[start:]))
	}
	return out
}

func padString(s string, width int, fill rune, align byte) string {
	n := utf8.RuneCountInString(s)
	if width <= n {
		return s
	}
	pad := width - n
	fs := string(fill)
	switch align {
	case '<':
		return s + strings.Repeat(fs, pad)
	case '>':
		return strings.Repeat(fs, pad) + s
	default:
		left := pad / 2
		if pad%2 == 1 && width%2 == 1 {
			left++
		}
		return strings.Repeat(fs, left) + s + strings.Repeat(fs, pad-left)
	}
}

func fillArg(fname string, o Object) (rune, error) {
	if IsNone(o) {
		return ' ', nil
	}
	s, err := argStr(fname, o)
	if err != nil {
		return 0, err
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, TypeErrorf("The fill character must be exactly one character long")
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func affixMatch(ctx context.Context, s *Str, args Args, fname string, suffix bool) (Object, error) {
	lo, hi, err := clampRange(ctx, args.Get(1), args.Get(2), s.Len())
	if err != nil {
		return nil, err
	}
	if lo > s.Len() {
		return False, nil
	}
	var hay string
	if lo <= hi {
		hay = s.Sub(lo, hi)
	} else {
		return False, nil
	}
	test := func(o Object) (bool, error) {
		a, ok := asStr(o)
		if !ok {
			return false, TypeErrorf("tuple for %s must only contain str, not %s", fname, o.Type().name)
		}
		if suffix {
			return strings.HasSuffix(hay, a.value), nil
		}
		return strings.HasPrefix(hay, a.value), nil
	}
	switch arg := args.Get(0).(type) {
	case *Tuple:
		for _, item := range arg.items {
			ok, err := test(item)
			if err != nil || ok {
				return NewBool(ok), err
			}
		}
		return False, nil
	default:
		if _, ok := asStr(arg); !ok {
			return nil, TypeErrorf("%s first arg must be str or a tuple of str, not %s", fname, arg.Type().name)
		}
		ok, err := test(arg)
		return NewBool(ok), err
	}
}

func allRunes(s string, pred func(rune) bool) Object {
	if s == "" {
		return False
	}
	for _, r := range s {
		if !pred(r) {
			return False
		}
	}
	return True
}

func isTitle(s string) bool {
	cased, prevCased := false, false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r) || unicode.IsTitle(r):
			if prevCased {
				return false
			}
			prevCased, cased = true, true
		case unicode.IsLower(r):
			if !prevCased {
				return false
			}
			prevCased, cased = true, true
		default:
			prevCased = false
		}
	}
	return cased
}

func titleCase(s string) string {
	var b strings.Builder
	prevCased := false
	for _, r := range s {
		cased := unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
		if prevCased {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(unicode.ToTitle(r))
		}
		prevCased = cased
	}
	return b.String()
}

func hasCased(s string, pred func(rune) bool, other func(rune) bool) bool {
	cased := false
	for _, r := range s {
		if other(r) {
			return false
		}
		if pred(r) {
			cased = true
		}
	}
	return cased
}

// IsIdentifier reports whether s is a valid identifier.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || unicode.Is(unicode.Nl, r) {
			continue
		}
		if i > 0 && (unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r) || unicode.Is(unicode.Pc, r)) {
			continue
		}
		return false
	}
	return true
}

func init() {
	m := NewMethods[*Str](StrType, asStr)

	m.New([]string{"object", "encoding", "errors"}, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		var s *Str
		switch {
		case !args.Has(0):
			s = emptyStr
		case args.Has(1) || args.Has(2):
			data, ok := bytesLike(args.Get(0))
			if !ok {
				return nil, TypeErrorf("decoding to str: need a bytes-like object, %s found", args.Get(0).Type().name)
			}
			enc := "utf-8"
			if args.Has(1) {
				e, err := argStr("str", args.Get(1))
				if err != nil {
					return nil, err
				}
				enc = e
			}
			errs := "strict"
			if args.Has(2) {
				e, err := argStr("str", args.Get(2))
				if err != nil {
					return nil, err
				}
				errs = e
			}
			v, err := decodeBytes(data, enc, errs)
			if err != nil {
				return nil, err
			}
			s = NewStr(v)
		default:
			v, err := StrOf(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			s = NewStr(v)
		}
		if cls == StrType {
			return s, nil
		}
		return newNativeInstance(cls, s), nil
	})

	m.Define("capitalize").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		rs := []rune(s.value)
		for i := range rs {
			if i == 0 {
				rs[i] = unicode.ToTitle(rs[i])
			} else {
				rs[i] = unicode.ToLower(rs[i])
			}
		}
		return newStrRunes(rs), nil
	})
	m.Define("casefold").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return NewStr(strings.ToLower(strings.ReplaceAll(s.value, "ß", "ss"))), nil
	})
	m.Define("center").Arg("width").OptArg("fillchar").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		w, err := IndexInt(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		fill, err := fillArg("center", args.Get(1))
		if err != nil {
			return nil, err
		}
		return NewStr(padString(s.value, w, fill, '^')), nil
	})
	m.Define("count").Arg("sub").OptArg("start", "end").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		sub, err := argStr("count", args.Get(0))
		if err != nil {
			return nil, err
		}
		lo, hi, err := clampRange(ctx, args.Get(1), args.Get(2), s.Len())
		if err != nil {
			return nil, err
		}
		if lo > hi || lo > s.Len() {
			return NewInt(0), nil
		}
		hay := s.Sub(lo, hi)
		if sub == "" {
			return NewInt(int64(utf8.RuneCountInString(hay) + 1)), nil
		}
		return NewInt(int64(strings.Count(hay, sub))), nil
	})
	m.Define("encode").OptArg("encoding", "errors").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		enc, errs := "utf-8", "strict"
		if args.Has(0) {
			e, err := argStr("encode", args.Get(0))
			if err != nil {
				return nil, err
			}
			enc = e
		}
		if args.Has(1) {
			e, err := argStr("encode", args.Get(1))
			if err != nil {
				return nil, err
			}
			errs = e
		}
		b, err := encodeString(s.value, enc, errs)
		if err != nil {
			return nil, err
		}
		return NewBytes(b), nil
	})
	m.Define("endswith").Arg("suffix").OptArg("start", "end").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return affixMatch(ctx, s, args, "endswith", true)
	})
	m.Define("startswith").Arg("prefix").OptArg("start", "end").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return affixMatch(ctx, s, args, "startswith", false)
	})
	m.Define("expandtabs").OptArg("tabsize").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		size := 8
		if args.Has(0) {
			n, err := IndexInt(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			size = n
		}
		var b strings.Builder
		col := 0
		for _, r := range s.value {
			switch r {
			case '\t':
				if size > 0 {
					n := size - col%size
					b.WriteString(strings.Repeat(" ", n))
					col += n
				}
			case '\n', '\r':
				b.WriteRune(r)
				col = 0
			default:
				b.WriteRune(r)
				col++
			}
		}
		return NewStr(b.String()), nil
	})
	m.Define("find").Arg("sub").OptArg("start", "end").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		i, err := strFind(ctx, s, args, false)
		if err != nil {
			return nil, err
		}
		return NewInt(int64(i)), nil
	})
	m.Define("rfind").Arg("sub").OptArg("start", "end").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		i, err := strFind(ctx, s, args, true)
		if err != nil {
			return nil, err
		}
		return NewInt(int64(i)), nil
	})
	m.Define("index").Arg("sub").OptArg("start", "end").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		i, err := strFind(ctx, s, args, false)
		if err != nil {
			return nil, err
		}
		if i < 0 {
			return nil, ValueErrorf("substring not found")
		}
		return NewInt(int64(i)), nil
	})
	m.Define("rindex").Arg("sub").OptArg("start", "end").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		i, err := strFind(ctx, s, args, true)
		if err != nil {
			return nil, err
		}
		if i < 0 {
			return nil, ValueErrorf("substring not found")
		}
		return NewInt(int64(i)), nil
	})
	m.Define("format").Variadic().Kwargs().Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		out, err := FormatString(ctx, s.value, args.Rest, args.Kwargs)
		if err != nil {
			return nil, err
		}
		return NewStr(out), nil
	})
	m.Define("format_map").Arg("mapping").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		out, err := formatStringMapping(ctx, s.value, nil, args.Get(0))
		if err != nil {
			return nil, err
		}
		return NewStr(out), nil
	})
	m.Define("isalnum").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return allRunes(s.value, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsNumber(r) }), nil
	})
	m.Define("isalpha").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return allRunes(s.value, unicode.IsLetter), nil
	})
	m.Define("isascii").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return NewBool(s.runes == nil), nil
	})
	m.Define("isdecimal").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return allRunes(s.value, func(r rune) bool { return unicode.Is(unicode.Nd, r) }), nil
	})
	m.Define("isdigit").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return allRunes(s.value, func(r rune) bool { return unicode.Is(unicode.Nd, r) || unicode.Is(unicode.No, r) && r < 0x2070 || r >= 0x2070 && r <= 0x2079 }), nil
	})
	m.Define("isnumeric").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return allRunes(s.value, unicode.IsNumber), nil
	})
	m.Define("isidentifier").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return NewBool(IsIdentifier(s.value)), nil
	})
	m.Define("islower").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return NewBool(hasCased(s.value, unicode.IsLower, func(r rune) bool { return unicode.IsUpper(r) || unicode.IsTitle(r) })), nil
	})
	m.Define("isupper").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return NewBool(hasCased(s.value, unicode.IsUpper, func(r rune) bool { return unicode.IsLower(r) || unicode.IsTitle(r) })), nil
	})
	m.Define("isprintable").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		for _, r := range s.value {
			if r != ' ' && !unicode.IsPrint(r) {
				return False, nil
			}
		}
		return True, nil
	})
	m.Define("isspace").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return allRunes(s.value, isSpace), nil
	})
	m.Define("istitle").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return NewBool(isTitle(s.value)), nil
	})
	m.Define("join").Arg("iterable").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		items, err := ToSlice(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(items))
		for i, item := range items {
			p, ok := asStr(item)
			if !ok {
				return nil, TypeErrorf("sequence item %d: expected str instance, %s found", i, item.Type().name)
			}
			parts[i] = p.value
		}
		return NewStr(strings.Join(parts, s.value)), nil
	})
	m.Define("ljust").Arg("width").OptArg("fillchar").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		w, err := IndexInt(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		fill, err := fillArg("ljust", args.Get(1))
		if err != nil {
			return nil, err
		}
		return NewStr(padString(s.value, w, fill, '<')), nil
	})
	m.Define("rjust").Arg("width").OptArg("fillchar").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		w, err := IndexInt(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		fill, err := fillArg("rjust", args.Get(1))
		if err != nil {
			return nil, err
		}
		return NewStr(padString(s.value, w, fill, '>')), nil
	})
	m.Define("lower").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return NewStr(strings.ToLower(s.value)), nil
	})
	m.Define("upper").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return NewStr(strings.ToUpper(s.value)), nil
	})
	m.Define("swapcase").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return NewStr(strings.Map(func(r rune) rune {
			switch {
			case unicode.IsUpper(r):
				return unicode.ToLower(r)
			case unicode.IsLower(r):
				return unicode.ToUpper(r)
			}
			return r
		}, s.value)), nil
	})
	m.Define("title").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return NewStr(titleCase(s.value)), nil
	})
	for _, def := range []struct {
		name        string
		left, right bool
	}{{"strip", true, true}, {"lstrip", true, false}, {"rstrip", false, true}} {
		def := def
		m.Define(def.name).OptArg("chars").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
			chars, custom, err := strStripArg(def.name, args.Get(0))
			if err != nil {
				return nil, err
			}
			return NewStr(strStrip(s.value, chars, custom, def.left, def.right)), nil
		})
	}
	m.Define("partition").Arg("sep").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		sep, err := argStr("partition", args.Get(0))
		if err != nil {
			return nil, err
		}
		if sep == "" {
			return nil, ValueErrorf("empty separator")
		}
		before, after, found := strings.Cut(s.value, sep)
		if !found {
			return NewTuple([]Object{s, emptyStr, emptyStr}), nil
		}
		return NewTuple([]Object{NewStr(before), NewStr(sep), NewStr(after)}), nil
	})
	m.Define("rpartition").Arg("sep").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		sep, err := argStr("rpartition", args.Get(0))
		if err != nil {
			return nil, err
		}
		if sep == "" {
			return nil, ValueErrorf("empty separator")
		}
		i := strings.LastIndex(s.value, sep)
		if i < 0 {
			return NewTuple([]Object{emptyStr, emptyStr, s}), nil
		}
		return NewTuple([]Object{NewStr(s.value[:i]), NewStr(sep), NewStr(s.value[i+len(sep):])}), nil
	})
	m.Define("removeprefix").Arg("prefix").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		p, err := argStr("removeprefix", args.Get(0))
		if err != nil {
			return nil, err
		}
		return NewStr(strings.TrimPrefix(s.value, p)), nil
	})
	m.Define("removesuffix").Arg("suffix").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		p, err := argStr("removesuffix", args.Get(0))
		if err != nil {
			return nil, err
		}
		return NewStr(strings.TrimSuffix(s.value, p)), nil
	})
	m.Define("replace").Arg("old", "new").OptArg("count").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		old, err := argStr("replace", args.Get(0))
		if err != nil {
			return nil, err
		}
		repl, err := argStr("replace", args.Get(1))
		if err != nil {
			return nil, err
		}
		n := -1
		if args.Has(2) {
			if n, err = IndexInt(ctx, args.Get(2)); err != nil {
				return nil, err
			}
		}
		return NewStr(strings.Replace(s.value, old, repl, n)), nil
	})
	m.Define("split").OptArg("sep", "maxsplit").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		sep, hasSep, maxsplit, err := splitArgs(ctx, args)
		if err != nil {
			return nil, err
		}
		if !hasSep {
			return strList(splitWhitespace(s.value, maxsplit)), nil
		}
		return strList(strings.SplitN(s.value, sep, splitN(maxsplit))), nil
	})
	m.Define("rsplit").OptArg("sep", "maxsplit").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		sep, hasSep, maxsplit, err := splitArgs(ctx, args)
		if err != nil {
			return nil, err
		}
		if !hasSep {
			return strList(rsplitWhitespace(s.value, maxsplit)), nil
		}
		return strList(rsplitSep(s.value, sep, maxsplit)), nil
	})
	m.Define("splitlines").OptArg("keepends").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		keep := false
		if args.Has(0) {
			k, err := Truthy(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			keep = k
		}
		return strList(splitLines(s.value, keep)), nil
	})
	m.Define("zfill").Arg("width").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		w, err := IndexInt(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		n := s.Len()
		if w <= n {
			return s, nil
		}
		v := s.value
		sign := ""
		if v != "" && (v[0] == '+' || v[0] == '-') {
			sign, v = v[:1], v[1:]
		}
		return NewStr(sign + strings.Repeat("0", w-n) + v), nil
	})
	m.Define("translate").Arg("table").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		var b strings.Builder
		for _, r := range s.value {
			v, err := GetItem(ctx, args.Get(0), NewInt(int64(r)))
			if err != nil {
				if IsExceptionOf(err, LookupErrorType) {
					b.WriteRune(r)
					continue
				}
				return nil, err
			}
			switch v := v.(type) {
			case *NoneType:
			case *Str:
				b.WriteString(v.value)
			case *Int:
				c, _ := v.Int64()
				b.WriteRune(rune(c))
			default:
				return nil, TypeErrorf("character mapping must return integer, None or str")
			}
		}
		return NewStr(b.String()), nil
	})
	m.Define("__getnewargs__").Impl(func(s *Str, ctx context.Context, args Args) (Object, error) {
		return NewTuple([]Object{NewStr(s.value)}), nil
	})
}

func splitN(maxsplit int) int {
	if maxsplit < 0 {
		return -1
	}
	return maxsplit + 1
}
