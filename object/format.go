package object

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// formatSpec is a parsed format specification, the part of a replacement
// field that follows the colon.
type formatSpec struct {
	fill      rune
	fillSet   bool
	align     byte
	sign      byte
	noNegZero bool
	alt       bool
	zero      bool
	width     int
	grouping  byte
	precision int
	kind      byte
}

func isAlignChar(r rune) bool {
	return r == '<' || r == '>' || r == '^' || r == '='
}

func parseFormatSpec(spec, typeName string) (*formatSpec, error) {
	fs := &formatSpec{fill: ' ', precision: -1}
	r := []rune(spec)
	i := 0
	switch {
	case len(r) >= 2 && isAlignChar(r[1]):
		fs.fill, fs.fillSet, fs.align = r[0], true, byte(r[1])
		i = 2
	case len(r) >= 1 && isAlignChar(r[0]):
		fs.align = byte(r[0])
		i = 1
	}
	if i < len(r) && (r[i] == '+' || r[i] == '-' || r[i] == ' ') {
		fs.sign = byte(r[i])
		i++
	}
	if i < len(r) && r[i] == 'z' {
		fs.noNegZero = true
		i++
	}
	if i < len(r) && r[i] == '#' {
		fs.alt = true
		i++
	}
	if i < len(r) && r[i] == '0' {
		fs.zero = true
		if !fs.fillSet {
			fs.fill = '0'
		}
		i++
	}
	width, next, err := specNumber(r, i)
	if err != nil {
		return nil, err
	}
	fs.width, i = width, next
	if i < len(r) && (r[i] == ',' || r[i] == '_') {
		fs.grouping = byte(r[i])
		i++
		if i < len(r) && (r[i] == ',' || r[i] == '_') {
			return nil, ValueErrorf("Cannot specify both ',' and '_'.")
		}
	}
	if i < len(r) && r[i] == '.' {
		i++
		if i >= len(r) || r[i] < '0' || r[i] > '9' {
			return nil, ValueErrorf("Format specifier missing precision")
		}
		fs.precision, i, err = specNumber(r, i)
		if err != nil {
			return nil, err
		}
	}
	if len(r)-i > 1 {
		return nil, ValueErrorf("Invalid format specifier '%s' for object of type '%s'", spec, typeName)
	}
	if i < len(r) {
		if r[i] >= utf8.RuneSelf {
			return nil, ValueErrorf("Unknown format code '\\x%x' for object of type '%s'", r[i], typeName)
		}
		fs.kind = byte(r[i])
	}
	if fs.grouping != 0 {
		switch fs.kind {
		case 0, 'd', 'e', 'E', 'f', 'F', 'g', 'G', '%':
		case 'b', 'o', 'x', 'X':
			if fs.grouping == ',' {
				return nil, ValueErrorf("Cannot specify ',' with '%c'.", fs.kind)
			}
		default:
			return nil, ValueErrorf("Cannot specify '%c' with '%c'.", fs.grouping, fs.kind)
		}
	}
	return fs, nil
}

func specNumber(r []rune, i int) (int, int, error) {
	n := 0
	for i < len(r) && r[i] >= '0' && r[i] <= '9' {
		n = n*10 + int(r[i]-'0')
		if n > math.MaxInt32 {
			return 0, i, ValueErrorf("Too many decimal digits in format string")
		}
		i++
	}
	return n, i, nil
}

// pad applies fill and alignment around prefix (sign and base marker)
// and body.
func (fs *formatSpec) pad(prefix, body string, defAlign byte) string {
	align := fs.align
	if align == 0 {
		align = defAlign
		if fs.zero && defAlign == '>' {
			align = '='
		}
	}
	n := utf8.RuneCountInString(prefix) + utf8.RuneCountInString(body)
	if fs.width <= n {
		return prefix + body
	}
	f := string(fs.fill)
	gap := fs.width - n
	switch align {
	case '<':
		return prefix + body + strings.Repeat(f, gap)
	case '=':
		return prefix + strings.Repeat(f, gap) + body
	case '^':
		left := gap / 2
		return strings.Repeat(f, left) + prefix + body + strings.Repeat(f, gap-left)
	}
	return strings.Repeat(f, gap) + prefix + body
}

// zeroGroupWidth is the width the grouped integer part must reach when
// zero padding applies to grouped digits, else 0.
func (fs *formatSpec) zeroGroupWidth(used int) int {
	if fs.zero && fs.align == 0 && fs.grouping != 0 {
		return fs.width - used
	}
	return 0
}

func insertSep(digits string, sep byte, every int) string {
	if len(digits) <= every {
		return digits
	}
	var b strings.Builder
	head := len(digits) % every
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += every {
		if b.Len() > 0 {
			b.WriteByte(sep)
		}
		b.WriteString(digits[i : i+every])
	}
	return b.String()
}

// groupInt inserts sep every n digits, zero-extending the digits until
// the grouped text is at least minWidth characters wide.
func groupInt(digits string, sep byte, every, minWidth int) string {
	if sep == 0 {
		return digits
	}
	out := insertSep(digits, sep, every)
	for len(out) < minWidth {
		digits = "0" + digits
		out = insertSep(digits, sep, every)
	}
	return out
}

func signText(neg bool, sign byte) string {
	switch {
	case neg:
		return "-"
	case sign == '+':
		return "+"
	case sign == ' ':
		return " "
	}
	return ""
}

func formatIntSpec(n *Int, fs *formatSpec, typeName string) (string, error) {
	switch fs.kind {
	case 'e', 'E', 'f', 'F', 'g', 'G', '%':
		f, err := n.Float()
		if err != nil {
			return "", err
		}
		return formatFloatSpec(f, fs, typeName)
	}
	if fs.precision >= 0 {
		return "", ValueErrorf("Precision not allowed in integer format specifier")
	}
	base, prefix := 10, ""
	switch fs.kind {
	case 0, 'd', 'n':
	case 'b':
		base, prefix = 2, "0b"
	case 'o':
		base, prefix = 8, "0o"
	case 'x':
		base, prefix = 16, "0x"
	case 'X':
		base, prefix = 16, "0X"
	case 'c':
		if fs.sign != 0 {
			return "", ValueErrorf("Sign not allowed with integer format specifier 'c'")
		}
		if fs.alt {
			return "", ValueErrorf("Alternate form (#) not allowed with integer format specifier 'c'")
		}
		v, ok := n.Int64()
		if !ok || v < 0 || v > utf8.MaxRune {
			return "", OverflowErrorf("%%c arg not in range(0x110000)")
		}
		return fs.pad("", string(rune(v)), '>'), nil
	default:
		return "", ValueErrorf("Unknown format code '%c' for object of type '%s'", fs.kind, typeName)
	}
	neg := n.Sign() < 0
	abs := intAbs(n)
	var digits string
	if base == 10 {
		d, err := abs.Decimal()
		if err != nil {
			return "", err
		}
		digits = d
	} else {
		digits = abs.bigRef().Text(base)
		if fs.kind == 'X' {
			digits = strings.ToUpper(digits)
		}
	}
	if !fs.alt {
		prefix = ""
	}
	sign := signText(neg, fs.sign)
	every := 3
	if base != 10 {
		every = 4
	}
	digits = groupInt(digits, fs.grouping, every, fs.zeroGroupWidth(len(sign)+len(prefix)))
	return fs.pad(sign+prefix, digits, '>'), nil
}

// formatG renders a non-negative finite value in the general format with
// prec significant digits.
func formatG(v float64, prec int, alt bool) string {
	if prec == 0 {
		prec = 1
	}
	s := strconv.FormatFloat(v, 'e', prec-1, 64)
	mant, expText, _ := strings.Cut(s, "e")
	exp, _ := strconv.Atoi(expText)
	if exp >= -4 && exp < prec {
		s = strconv.FormatFloat(v, 'f', prec-1-exp, 64)
		if !alt {
			return trimFraction(s)
		}
		if !strings.Contains(s, ".") {
			s += "."
		}
		return s
	}
	if !alt {
		mant = trimFraction(mant)
	} else if !strings.Contains(mant, ".") {
		mant += "."
	}
	return mant + "e" + expText
}

func trimFraction(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	return strings.TrimRight(strings.TrimRight(s, "0"), ".")
}

func formatE(v float64, prec int, alt bool) string {
	s := strconv.FormatFloat(v, 'e', prec, 64)
	if alt && prec == 0 {
		mant, exp, _ := strings.Cut(s, "e")
		return mant + ".e" + exp
	}
	return s
}

func formatF(v float64, prec int, alt bool) string {
	s := strconv.FormatFloat(v, 'f', prec, 64)
	if alt && prec == 0 {
		s += "."
	}
	return s
}

func nonFiniteText(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return "inf"
}

func isZeroText(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= '1' && s[i] <= '9' {
			return false
		}
	}
	return true
}

func formatFloatSpec(v float64, fs *formatSpec, typeName string) (string, error) {
	prec := fs.precision
	neg := math.Signbit(v) && !math.IsNaN(v)
	a := math.Abs(v)
	finite := !math.IsInf(a, 0) && !math.IsNaN(a)
	var body, suffix string
	switch fs.kind {
	case 0:
		switch {
		case !finite:
			body = nonFiniteText(a)
		case prec < 0:
			body = formatShortest(a, true)
		default:
			body = formatG(a, prec, fs.alt)
			if !strings.ContainsAny(body, ".e") {
				body += ".0"
			}
		}
	case 'e', 'E':
		if prec < 0 {
			prec = 6
		}
		if body = nonFiniteText(a); finite {
			body = formatE(a, prec, fs.alt)
		}
	case 'f', 'F':
		if prec < 0 {
			prec = 6
		}
		if body = nonFiniteText(a); finite {
			body = formatF(a, prec, fs.alt)
		}
	case 'g', 'G', 'n':
		if prec < 0 {
			prec = 6
		}
		if body = nonFiniteText(a); finite {
			body = formatG(a, prec, fs.alt)
		}
	case '%':
		if prec < 0 {
			prec = 6
		}
		if body = nonFiniteText(a); finite {
			body = formatF(a*100, prec, fs.alt)
		}
		suffix = "%"
	default:
		return "", ValueErrorf("Unknown format code '%c' for object of type '%s'", fs.kind, typeName)
	}
	if fs.kind == 'E' || fs.kind == 'F' || fs.kind == 'G' {
		body = strings.ToUpper(body)
	}
	if neg && fs.noNegZero && finite && isZeroText(body) {
		neg = false
	}
	sign := signText(neg, fs.sign)
	cut := len(body)
	for i := 0; i < len(body); i++ {
		if body[i] < '0' || body[i] > '9' {
			cut = i
			break
		}
	}
	intPart, rest := body[:cut], body[cut:]+suffix
	if finite {
		intPart = groupInt(intPart, fs.grouping, 3, fs.zeroGroupWidth(len(sign)+len(rest)))
	}
	return fs.pad(sign, intPart+rest, '>'), nil
}

func formatComplexSpec(c complex128, fs *formatSpec) (string, error) {
	if fs.kind == 0 && fs.precision < 0 {
		return fs.pad("", NewComplex(c).String(), '>'), nil
	}
	switch fs.kind {
	case 0, 'e', 'E', 'f', 'F', 'g', 'G', 'n':
	default:
		return "", ValueErrorf("Unknown format code '%c' for object of type 'complex'", fs.kind)
	}
	if fs.zero {
		return "", ValueErrorf("Zero padding is not allowed in complex format specifier")
	}
	if fs.align == '=' {
		return "", ValueErrorf("'=' alignment flag is not allowed in complex format specifier")
	}
	part := *fs
	part.width, part.align, part.fill, part.fillSet = 0, 0, ' ', false
	re, im := real(c), imag(c)
	imSpec := part
	imSpec.sign = '+'
	imText, err := formatFloatSpec(im, &imSpec, "complex")
	if err != nil {
		return "", err
	}
	if fs.kind == 0 && re == 0 && !math.Signbit(re) {
		return fs.pad("", strings.TrimPrefix(imText, "+")+"j", '>'), nil
	}
	reText, err := formatFloatSpec(re, &part, "complex")
	if err != nil {
		return "", err
	}
	body := reText + imText + "j"
	if fs.kind == 0 {
		body = "(" + body + ")"
	}
	return fs.pad("", body, '>'), nil
}

func formatStrSpec(s string, fs *formatSpec) (string, error) {
	if fs.kind != 0 && fs.kind != 's' {
		return "", ValueErrorf("Unknown format code '%c' for object of type 'str'", fs.kind)
	}
	switch {
	case fs.sign != 0:
		return "", ValueErrorf("Sign not allowed in string format specifier")
	case fs.alt:
		return "", ValueErrorf("Alternate form (#) not allowed in string format specifier")
	case fs.align == '=':
		return "", ValueErrorf("'=' alignment not allowed in string format specifier")
	case fs.grouping != 0:
		return "", ValueErrorf("Cannot specify '%c' with 's'.", fs.grouping)
	}
	if fs.precision >= 0 && utf8.RuneCountInString(s) > fs.precision {
		s = string([]rune(s)[:fs.precision])
	}
	return fs.pad("", s, '<'), nil
}

// Format implements format(value, spec).
func Format(ctx context.Context, value Object, spec string) (string, error) {
	switch v := value.(type) {
	case *Str:
		if spec == "" {
			return v.value, nil
		}
		fs, err := parseFormatSpec(spec, "str")
		if err != nil {
			return "", err
		}
		return formatStrSpec(v.value, fs)
	case *Bool:
		if spec == "" {
			if v.value {
				return "True", nil
			}
			return "False", nil
		}
		fs, err := parseFormatSpec(spec, "bool")
		if err != nil {
			return "", err
		}
		return formatIntSpec(intFromBool(v), fs, "bool")
	case *Int:
		if spec == "" {
			return v.Decimal()
		}
		fs, err := parseFormatSpec(spec, "int")
		if err != nil {
			return "", err
		}
		return formatIntSpec(v, fs, "int")
	case *Float:
		if spec == "" {
			return FormatFloatRepr(v.value), nil
		}
		fs, err := parseFormatSpec(spec, "float")
		if err != nil {
			return "", err
		}
		return formatFloatSpec(v.value, fs, "float")
	case *Complex:
		if spec == "" {
			return v.String(), nil
		}
		fs, err := parseFormatSpec(spec, "complex")
		if err != nil {
			return "", err
		}
		return formatComplexSpec(v.value, fs)
	}
	res, err := CallMethod(ctx, value, "__format__", NewStr(spec))
	if err != nil {
		return "", err
	}
	s, ok := asStr(res)
	if !ok {
		return "", TypeErrorf("__format__ must return a str, not %s", res.Type().name)
	}
	return s.value, nil
}

// Ascii implements ascii(o).
func Ascii(ctx context.Context, o Object) (string, error) {
	r, err := Repr(ctx, o)
	if err != nil {
		return "", err
	}
	return asciiRepr(r), nil
}

// fieldSource resolves replacement field names for str.format and
// str.format_map.
type fieldSource struct {
	args     []Object
	kwargs   *Dict
	mapping  Object
	auto     int
	manual   bool
	numbered bool
}

// FormatString implements str.format.
func FormatString(ctx context.Context, format string, args []Object, kwargs *Dict) (string, error) {
	src := &fieldSource{args: args, kwargs: kwargs}
	return src.render(ctx, format, 2)
}

func formatStringMapping(ctx context.Context, format string, args []Object, mapping Object) (string, error) {
	src := &fieldSource{args: args, mapping: mapping}
	return src.render(ctx, format, 2)
}

func (src *fieldSource) render(ctx context.Context, s string, depth int) (string, error) {
	if depth < 0 {
		return "", ValueErrorf("Max string recursion exceeded")
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		switch c := s[i]; c {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end, err := closingBrace(s, i)
			if err != nil {
				return "", err
			}
			out, err := src.replace(ctx, s[i+1:end], depth)
			if err != nil {
				return "", err
			}
			b.WriteString(out)
			i = end + 1
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", ValueErrorf("Single '}' encountered in format string")
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

func closingBrace(s string, open int) (int, error) {
	if open+1 >= len(s) {
		return 0, ValueErrorf("Single '{' encountered in format string")
	}
	depth := 0
	inBracket := false
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '[':
			if depth == 1 {
				inBracket = true
			}
		case ']':
			inBracket = false
		case '{':
			if !inBracket {
				depth++
			}
		case '}':
			if inBracket {
				continue
			}
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, ValueErrorf("expected '}' before end of string")
}

func (src *fieldSource) replace(ctx context.Context, field string, depth int) (string, error) {
	end := len(field)
	inBracket := false
scan:
	for i := 0; i < len(field); i++ {
		switch field[i] {
		case '[':
			inBracket = true
		case ']':
			inBracket = false
		case '!', ':':
			if !inBracket {
				end = i
				break scan
			}
		}
	}
	name, tail := field[:end], field[end:]
	var conv byte
	if strings.HasPrefix(tail, "!") {
		if len(tail) < 2 {
			return "", ValueErrorf("end of string while looking for conversion specifier")
		}
		conv = tail[1]
		tail = tail[2:]
		if tail != "" && tail[0] != ':' {
			return "", ValueErrorf("expected ':' after conversion specifier")
		}
	}
	spec := strings.TrimPrefix(tail, ":")
	if strings.Contains(spec, "{") {
		nested, err := src.render(ctx, spec, depth-1)
		if err != nil {
			return "", err
		}
		spec = nested
	}
	obj, err := src.resolve(ctx, name)
	if err != nil {
		return "", err
	}
	switch conv {
	case 0:
	case 'r', 's', 'a':
		var text string
		switch conv {
		case 'r':
			text, err = Repr(ctx, obj)
		case 's':
			text, err = StrOf(ctx, obj)
		default:
			text, err = Ascii(ctx, obj)
		}
		if err != nil {
			return "", err
		}
		obj = NewStr(text)
	default:
		return "", ValueErrorf("Unknown conversion specifier %c", conv)
	}
	return Format(ctx, obj, spec)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (src *fieldSource) resolve(ctx context.Context, name string) (Object, error) {
	k := strings.IndexAny(name, ".[")
	if k < 0 {
		k = len(name)
	}
	first, rest := name[:k], name[k:]
	var obj Object
	var err error
	switch {
	case first == "":
		if src.manual {
			return nil, ValueErrorf("cannot switch from manual field specification to automatic field numbering")
		}
		src.numbered = true
		obj, err = src.positional(src.auto)
		src.auto++
	case allDigits(first):
		if src.numbered {
			return nil, ValueErrorf("cannot switch from automatic field numbering to manual field specification")
		}
		src.manual = true
		idx, convErr := strconv.Atoi(first)
		if convErr != nil {
			return nil, ValueErrorf("Too many decimal digits in format string")
		}
		obj, err = src.positional(idx)
	default:
		obj, err = src.keyword(ctx, first)
	}
	if err != nil {
		return nil, err
	}
	for rest != "" {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			j := strings.IndexAny(rest, ".[")
			if j < 0 {
				j = len(rest)
			}
			if j == 0 {
				return nil, ValueErrorf("Empty attribute in format string")
			}
			if obj, err = GetAttr(ctx, obj, rest[:j]); err != nil {
				return nil, err
			}
			rest = rest[j:]
		case '[':
			j := strings.IndexByte(rest, ']')
			if j < 0 {
				return nil, ValueErrorf("Missing ']' in format string")
			}
			key := rest[1:j]
			if key == "" {
				return nil, ValueErrorf("Empty attribute in format string")
			}
			var kobj Object = NewStr(key)
			if allDigits(key) {
				if n, convErr := strconv.ParseInt(key, 10, 64); convErr == nil {
					kobj = NewInt(n)
				}
			}
			if obj, err = GetItem(ctx, obj, kobj); err != nil {
				return nil, err
			}
			rest = rest[j+1:]
			if rest != "" && rest[0] != '.' && rest[0] != '[' {
				return nil, ValueErrorf("Only '.' or '[' may follow ']' in format field specifier")
			}
		}
	}
	return obj, nil
}

func (src *fieldSource) positional(i int) (Object, error) {
	if src.mapping != nil && src.args == nil {
		return nil, ValueErrorf("Format string contains positional fields")
	}
	if i >= len(src.args) {
		return nil, IndexErrorf("Replacement index %d out of range for positional args tuple", i)
	}
	return src.args[i], nil
}

func (src *fieldSource) keyword(ctx context.Context, name string) (Object, error) {
	if src.mapping != nil {
		return GetItem(ctx, src.mapping, NewStr(name))
	}
	if src.kwargs != nil {
		if v := src.kwargs.GetStr(name); v != nil {
			return v, nil
		}
	}
	return nil, NewKeyError(NewStr(name))
}

// percentArgs walks the right operand of a printf-style format.
type percentArgs struct {
	items   []Object
	next    int
	mapping Object
}

func (p *percentArgs) take() (Object, error) {
	if p.next >= len(p.items) {
		return nil, TypeErrorf("not enough arguments for format string")
	}
	o := p.items[p.next]
	p.next++
	return o, nil
}

// PercentFormat implements str % args.
func PercentFormat(ctx context.Context, format string, args Object) (string, error) {
	return percentFormat(ctx, format, args, false)
}

// PercentFormatBytes implements bytes % args.
func PercentFormatBytes(ctx context.Context, data []byte, args Object) ([]byte, error) {
	s, err := percentFormat(ctx, string(data), args, true)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func newPercentArgs(args Object) *percentArgs {
	if t, ok := asTuple(args); ok {
		return &percentArgs{items: t.items}
	}
	p := &percentArgs{items: []Object{args}}
	_, isStr := asStr(args)
	_, isBytes := bytesLike(args)
	if !isStr && !isBytes {
		switch args.(type) {
		case *Dict, *MappingProxy:
			p.mapping = args
		default:
			if args.Type().Lookup("__getitem__") != nil {
				p.mapping = args
			}
		}
	}
	return p
}

func percentFormat(ctx context.Context, format string, args Object, bytesMode bool) (string, error) {
	pa := newPercentArgs(args)
	var out strings.Builder
	for i := 0; i < len(format); {
		c := format[i]
		if c != '%' {
			out.WriteByte(c)
			i++
			continue
		}
		i++
		if i >= len(format) {
			return "", ValueErrorf("incomplete format")
		}
		var arg Object
		if format[i] == '(' {
			if pa.mapping == nil {
				return "", TypeErrorf("format requires a mapping")
			}
			depth, j := 1, i+1
			for j < len(format) && depth > 0 {
				switch format[j] {
				case '(':
					depth++
				case ')':
					depth--
				}
				j++
			}
			if depth > 0 {
				return "", ValueErrorf("incomplete format key")
			}
			key := format[i+1 : j-1]
			var kobj Object = NewStr(key)
			if bytesMode {
				kobj = NewBytes([]byte(key))
			}
			v, err := GetItem(ctx, pa.mapping, kobj)
			if err != nil {
				return "", err
			}
			arg = v
			i = j
		}
		var left, plus, space, alt, zero bool
	flags:
		for i < len(format) {
			switch format[i] {
			case '-':
				left = true
			case '+':
				plus = true
			case ' ':
				space = true
			case '#':
				alt = true
			case '0':
				zero = true
			default:
				break flags
			}
			i++
		}
		width := 0
		if i < len(format) && format[i] == '*' {
			w, err := percentStar(ctx, pa)
			if err != nil {
				return "", err
			}
			if w < 0 {
				left, w = true, -w
			}
			width = w
			i++
		} else {
			for i < len(format) && isDigit(format[i]) {
				width = width*10 + int(format[i]-'0')
				i++
			}
		}
		prec := -1
		if i < len(format) && format[i] == '.' {
			i++
			prec = 0
			if i < len(format) && format[i] == '*' {
				p, err := percentStar(ctx, pa)
				if err != nil {
					return "", err
				}
				prec = max(p, 0)
				i++
			} else {
				for i < len(format) && isDigit(format[i]) {
					prec = prec*10 + int(format[i]-'0')
					i++
				}
			}
		}
		for i < len(format) && (format[i] == 'h' || format[i] == 'l' || format[i] == 'L') {
			i++
		}
		if i >= len(format) {
			return "", ValueErrorf("incomplete format")
		}
		convAt := i
		conv, size := utf8.DecodeRuneInString(format[i:])
		if bytesMode {
			conv, size = rune(format[i]), 1
		}
		i += size
		if conv == '%' {
			out.WriteByte('%')
			continue
		}
		if arg == nil {
			v, err := pa.take()
			if err != nil {
				return "", err
			}
			arg = v
		}
		var sign byte
		switch {
		case plus:
			sign = '+'
		case space:
			sign = ' '
		}
		piece, err := percentConvert(ctx, conv, arg, prec, alt, sign, bytesMode)
		if err != nil {
			if err == errBadConversion {
				if conv < utf8.RuneSelf && conv >= 0x20 {
					return "", ValueErrorf("unsupported format character '%c' (0x%x) at index %d", conv, conv, convAt)
				}
				return "", ValueErrorf("unsupported format character '\\x%x' (0x%x) at index %d", conv, conv, convAt)
			}
			return "", err
		}
		out.WriteString(piece.layout(width, left, zero, bytesMode))
	}
	if pa.mapping == nil && pa.next < len(pa.items) {
		if bytesMode {
			return "", TypeErrorf("not all arguments converted during bytes formatting")
		}
		return "", TypeErrorf("not all arguments converted during string formatting")
	}
	return out.String(), nil
}

func percentStar(ctx context.Context, pa *percentArgs) (int, error) {
	v, err := pa.take()
	if err != nil {
		return 0, err
	}
	n, ok := asInt(v)
	if !ok {
		return 0, TypeErrorf("* wants int")
	}
	w, fits := n.Int64()
	if !fits || w > math.MaxInt32 || w < -math.MaxInt32 {
		return 0, OverflowErrorf("Python int too large to convert to C int")
	}
	return int(w), nil
}

var errBadConversion = errors.New("unsupported format character")

// percentPiece is one converted directive before padding.
type percentPiece struct {
	prefix  string
	body    string
	numeric bool
}

func (p percentPiece) layout(width int, left, zero, bytesMode bool) string {
	n := len(p.prefix) + len(p.body)
	if !bytesMode {
		n = utf8.RuneCountInString(p.prefix) + utf8.RuneCountInString(p.body)
	}
	if width <= n {
		return p.prefix + p.body
	}
	gap := width - n
	switch {
	case left:
		return p.prefix + p.body + strings.Repeat(" ", gap)
	case zero && p.numeric:
		return p.prefix + strings.Repeat("0", gap) + p.body
	}
	return strings.Repeat(" ", gap) + p.prefix + p.body
}

func truncate(s string, prec int, bytesMode bool) string {
	if prec < 0 {
		return s
	}
	if bytesMode {
		if len(s) > prec {
			return s[:prec]
		}
		return s
	}
	if utf8.RuneCountInString(s) > prec {
		return string([]rune(s)[:prec])
	}
	return s
}

func percentConvert(ctx context.Context, conv rune, arg Object, prec int, alt bool, sign byte, bytesMode bool) (percentPiece, error) {
	switch conv {
	case 's', 'b':
		if !bytesMode {
			if conv == 'b' {
				return percentPiece{}, errBadConversion
			}
			s, err := StrOf(ctx, arg)
			if err != nil {
				return percentPiece{}, err
			}
			return percentPiece{body: truncate(s, prec, false)}, nil
		}
		data, err := percentBytesArg(ctx, arg)
		if err != nil {
			return percentPiece{}, err
		}
		return percentPiece{body: truncate(string(data), prec, true)}, nil
	case 'r', 'a':
		var s string
		var err error
		if conv == 'r' && !bytesMode {
			s, err = Repr(ctx, arg)
		} else {
			s, err = Ascii(ctx, arg)
		}
		if err != nil {
			return percentPiece{}, err
		}
		return percentPiece{body: truncate(s, prec, bytesMode)}, nil
	case 'd', 'i', 'u', 'o', 'x', 'X':
		n, err := percentInt(ctx, conv, arg)
		if err != nil {
			return percentPiece{}, err
		}
		base, marker := 10, ""
		switch conv {
		case 'o':
			base, marker = 8, "0o"
		case 'x':
			base, marker = 16, "0x"
		case 'X':
			base, marker = 16, "0X"
		}
		abs := intAbs(n)
		var digits string
		if base == 10 {
			if digits, err = abs.Decimal(); err != nil {
				return percentPiece{}, err
			}
		} else {
			digits = abs.bigRef().Text(base)
			if conv == 'X' {
				digits = strings.ToUpper(digits)
			}
		}
		if len(digits) < prec {
			digits = strings.Repeat("0", prec-len(digits)) + digits
		}
		if !alt {
			marker = ""
		}
		return percentPiece{prefix: signText(n.Sign() < 0, sign) + marker, body: digits, numeric: true}, nil
	case 'e', 'E', 'f', 'F', 'g', 'G':
		v, ok, err := toFloat(arg)
		if err != nil {
			return percentPiece{}, err
		}
		if !ok {
			f, callErr := floatFromDunder(ctx, arg)
			if callErr != nil {
				return percentPiece{}, callErr
			}
			v = f
		}
		if prec < 0 {
			prec = 6
		}
		neg := math.Signbit(v) && !math.IsNaN(v)
		a := math.Abs(v)
		if math.IsInf(a, 0) || math.IsNaN(a) {
			body := nonFiniteText(a)
			if conv == 'E' || conv == 'F' || conv == 'G' {
				body = strings.ToUpper(body)
			}
			return percentPiece{prefix: signText(neg, sign), body: body}, nil
		}
		var body string
		switch conv {
		case 'e', 'E':
			body = formatE(a, prec, alt)
		case 'f', 'F':
			body = formatF(a, prec, alt)
		default:
			body = formatG(a, prec, alt)
		}
		if conv == 'E' || conv == 'F' || conv == 'G' {
			body = strings.ToUpper(body)
		}
		return percentPiece{prefix: signText(neg, sign), body: body, numeric: true}, nil
	case 'c':
		return percentChar(arg, bytesMode)
	}
	return percentPiece{}, errBadConversion
}

func percentBytesArg(ctx context.Context, arg Object) ([]byte, error) {
	if data, ok := bytesLike(arg); ok {
		return data, nil
	}
	res, ok, err := callSpecial(ctx, arg, "__bytes__")
	if err != nil {
		return nil, err
	}
	if ok {
		if b, isBytes := res.(*Bytes); isBytes {
			return b.value, nil
		}
		return nil, TypeErrorf("__bytes__ returned non-bytes (type %s)", res.Type().name)
	}
	return nil, TypeErrorf("%%b requires a bytes-like object, or an object that implements __bytes__, not '%s'", arg.Type().name)
}

func percentInt(ctx context.Context, conv rune, arg Object) (*Int, error) {
	if n, ok := asInt(arg); ok {
		return n, nil
	}
	switch conv {
	case 'd', 'i', 'u':
		if f, ok := asFloat(arg); ok {
			return IntFromFloat(math.Trunc(f))
		}
		res, ok, err := callSpecial(ctx, arg, "__int__")
		if err != nil {
			return nil, err
		}
		if ok {
			if n, isInt := asInt(res); isInt {
				return n, nil
			}
			return nil, TypeErrorf("__int__ returned non-int (type %s)", res.Type().name)
		}
		if isIndexable(arg) {
			return Index(ctx, arg)
		}
		return nil, TypeErrorf("%%%c format: a real number is required, not %s", conv, arg.Type().name)
	}
	if isIndexable(arg) {
		return Index(ctx, arg)
	}
	return nil, TypeErrorf("%%%c format: an integer is required, not %s", conv, arg.Type().name)
}

func floatFromDunder(ctx context.Context, arg Object) (float64, error) {
	res, ok, err := callSpecial(ctx, arg, "__float__")
	if err != nil {
		return 0, err
	}
	if ok {
		if f, isFloat := asFloat(res); isFloat {
			return f, nil
		}
		return 0, TypeErrorf("%s.__float__ returned non-float (type %s)", arg.Type().name, res.Type().name)
	}
	if isIndexable(arg) {
		n, err := Index(ctx, arg)
		if err != nil {
			return 0, err
		}
		return n.Float()
	}
	return 0, TypeErrorf("must be real number, not %s", arg.Type().name)
}

func percentChar(arg Object, bytesMode bool) (percentPiece, error) {
	if bytesMode {
		if n, ok := asInt(arg); ok {
			v, fits := n.Int64()
			if !fits || v < 0 || v > 255 {
				return percentPiece{}, OverflowErrorf("%%c arg not in range(256)")
			}
			return percentPiece{body: string([]byte{byte(v)})}, nil
		}
		if data, ok := bytesLike(arg); ok && len(data) == 1 {
			return percentPiece{body: string(data)}, nil
		}
		return percentPiece{}, TypeErrorf("%%c requires an integer in range(256) or a single byte")
	}
	if n, ok := asInt(arg); ok {
		v, fits := n.Int64()
		if !fits || v < 0 || v > utf8.MaxRune {
			return percentPiece{}, OverflowErrorf("%%c arg not in range(0x110000)")
		}
		return percentPiece{body: string(rune(v))}, nil
	}
	if s, ok := asStr(arg); ok && utf8.RuneCountInString(s.value) == 1 {
		return percentPiece{body: s.value}, nil
	}
	return percentPiece{}, TypeErrorf("%%c requires int or char")
}
