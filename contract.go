package pyxlate

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/cache"
	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/object"
)

// Contract is the calling shape a translated Unit implements. A nil
// parameter or return type accepts any value. With nil Params the arity is
// not checked either.
type Contract struct {
	Name   string
	Params []*object.Type
	Return *object.Type
	// Variadic allows extra positional arguments past Params.
	Variadic bool
}

// Any is the contract that checks nothing.
var Any = Contract{}

// Func returns a contract with fixed parameter types and a return type.
func Func(ret *object.Type, params ...*object.Type) Contract {
	if params == nil {
		params = []*object.Type{}
	}
	return Contract{Params: params, Return: ret}
}

func typeName(t *object.Type) string {
	if t == nil {
		return "Any"
	}
	return t.Name()
}

// String renders the contract like a signature, e.g. "(int, int) -> int".
func (c Contract) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	if c.Params == nil {
		b.WriteString("(...)")
	} else {
		parts := make([]string, len(c.Params), len(c.Params)+1)
		for i, p := range c.Params {
			parts[i] = typeName(p)
		}
		if c.Variadic {
			parts = append(parts, "*args")
		}
		b.WriteString("(" + strings.Join(parts, ", ") + ")")
	}
	b.WriteString(" -> ")
	b.WriteString(typeName(c.Return))
	return b.String()
}

// Fingerprint returns the cache key component identifying the contract.
// Types are identified by their descriptor, not only their name.
func (c Contract) Fingerprint() uint64 {
	parts := []string{c.Name, typeID(c.Return), fmt.Sprint(c.Params == nil, c.Variadic)}
	for _, p := range c.Params {
		parts = append(parts, typeID(p))
	}
	return cache.Fingerprint(parts...)
}

func typeID(t *object.Type) string {
	if t == nil {
		return ""
	}
	return fmt.Sprintf("%s.%s@%p", t.Module(), t.Name(), t)
}

// fits reports whether a function with signature sig and nDefaults
// positional defaults can be called the way the contract calls it.
func (c Contract) fits(sig bytecode.Signature, nDefaults int) error {
	if c.Params == nil {
		return nil
	}
	n := len(c.Params)
	required := sig.Positional - nDefaults
	if n < required {
		return errz.Newf(errz.ErrUnmodeled, "contract %s passes %d arguments, function requires %d", c, n, required)
	}
	if !sig.VarArgs && (n > sig.Positional || c.Variadic) {
		return errz.Newf(errz.ErrUnmodeled, "contract %s passes more arguments than the function accepts (%d)", c, sig.Positional)
	}
	return nil
}

func (c Contract) label() string {
	if c.Name != "" {
		return c.Name + "()"
	}
	return "unit"
}

func (c Contract) checkArgs(args []object.Object) error {
	if c.Params == nil {
		return nil
	}
	n := len(c.Params)
	if len(args) < n || (!c.Variadic && len(args) > n) {
		return object.TypeErrorf("%s takes %d arguments but %d were given", c.label(), n, len(args))
	}
	for i, p := range c.Params {
		if p != nil && !args[i].Type().IsSubtype(p) {
			return object.TypeErrorf("%s argument %d must be %s, not %s",
				c.label(), i+1, p.Name(), args[i].Type().Name())
		}
	}
	return nil
}

func (c Contract) checkReturn(result object.Object) error {
	if c.Return != nil && !result.Type().IsSubtype(c.Return) {
		return object.TypeErrorf("%s returned %s, expected %s",
			c.label(), result.Type().Name(), c.Return.Name())
	}
	return nil
}
