package unit

import (
	"strconv"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true,
	"class": true, "continue": true, "def": true, "del": true, "elif": true,
	"else": true, "except": true, "finally": true, "for": true,
	"from": true, "global": true, "if": true, "import": true, "in": true,
	"is": true, "lambda": true, "nonlocal": true, "not": true, "or": true,
	"pass": true, "raise": true, "return": true, "try": true,
	"while": true, "with": true, "yield": true,
}

// IsIdentifier reports whether s is a valid identifier in NFKC form that is
// not a reserved word.
func IsIdentifier(s string) bool {
	if s == "" || keywords[s] || !norm.NFKC.IsNormalString(s) {
		return false
	}
	for i, r := range s {
		if !identRune(r, i == 0) {
			return false
		}
	}
	return true
}

func identRune(r rune, first bool) bool {
	if r == '_' || unicode.IsLetter(r) || unicode.Is(unicode.Nl, r) {
		return true
	}
	if first {
		return false
	}
	return unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) ||
		unicode.Is(unicode.Mc, r) || unicode.Is(unicode.Pc, r)
}

// Sanitize maps a name into the identifier grammar. Valid identifiers are
// returned unchanged. Otherwise the name is NFKC normalized, illegal
// characters become underscores, a leading digit gets an underscore prefix
// and reserved words get an underscore suffix. Compiler-generated names
// such as ".0" therefore become "_0".
func Sanitize(name string) string {
	if IsIdentifier(name) {
		return name
	}
	s := norm.NFKC.String(name)
	out := make([]rune, 0, len(s)+1)
	for i, r := range []rune(s) {
		switch {
		case identRune(r, i == 0):
			out = append(out, r)
		case i == 0 && unicode.IsDigit(r):
			out = append(out, '_', r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_"
	}
	res := string(out)
	if keywords[res] {
		res += "_"
	}
	return res
}

// SanitizeAll sanitizes a name table. Names that collide after
// sanitizing get a numeric suffix so the table stays injective.
func SanitizeAll(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if IsIdentifier(n) {
			seen[n] = true
		}
	}
	for i, n := range names {
		if IsIdentifier(n) {
			out[i] = n
			continue
		}
		s := Sanitize(n)
		for k := 1; seen[s]; k++ {
			s = Sanitize(n) + "_" + strconv.Itoa(k)
		}
		seen[s] = true
		out[i] = s
	}
	return out
}
