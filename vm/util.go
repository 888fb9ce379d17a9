package vm

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/pyxlate/object"
)

// bind assigns call arguments to the parameter slots of a new frame. The
// trailing len(kwnames) entries of args are keyword values.
func bind(fn *object.Function, c *code, locals []object.Object, args []object.Object, kwnames []string) error {
	sig := c.sig
	name := fn.QualName()
	npos := len(args) - len(kwnames)
	positional, kwvalues := args[:npos], args[npos:]

	n := min(npos, sig.Positional)
	copy(locals, positional[:n])

	if sig.VarArgs {
		rest := make([]object.Object, npos-n)
		copy(rest, positional[n:])
		locals[sig.VarArgsIndex()] = object.NewTuple(rest)
	}
	var kwargs *object.Dict
	if sig.VarKeywords {
		kwargs = object.NewDict()
		locals[sig.VarKeywordsIndex()] = kwargs
	}

	var posOnlyAsKw []string
	for i, kw := range kwnames {
		j := paramIndex(sig.Names, sig.PosOnly, sig.Positional+sig.KwOnly, kw)
		if j < 0 {
			if kwargs != nil {
				kwargs.SetStr(kw, kwvalues[i])
				continue
			}
			if paramIndex(sig.Names, 0, sig.PosOnly, kw) >= 0 {
				posOnlyAsKw = append(posOnlyAsKw, kw)
				continue
			}
			return object.TypeErrorf("%s() got an unexpected keyword argument '%s'", name, kw)
		}
		if locals[j] != nil {
			return object.TypeErrorf("%s() got multiple values for argument '%s'", name, kw)
		}
		locals[j] = kwvalues[i]
	}
	if len(posOnlyAsKw) > 0 {
		return object.TypeErrorf("%s() got some positional-only arguments passed as keyword arguments: '%s'",
			name, strings.Join(posOnlyAsKw, ", "))
	}

	if npos > sig.Positional && !sig.VarArgs {
		return tooManyPositional(fn, c, locals, npos)
	}

	defaults := fn.Defaults()
	if npos < sig.Positional {
		firstDefault := sig.Positional - len(defaults)
		var missing []string
		for i := npos; i < sig.Positional; i++ {
			if locals[i] != nil {
				continue
			}
			if i >= firstDefault {
				locals[i] = defaults[i-firstDefault]
				continue
			}
			missing = append(missing, sig.Names[i])
		}
		if len(missing) > 0 {
			return missingArguments(name, "positional", missing)
		}
	}

	if sig.KwOnly > 0 {
		kwdefaults := fn.KwDefaults()
		var missing []string
		for i := sig.Positional; i < sig.Positional+sig.KwOnly; i++ {
			if locals[i] != nil {
				continue
			}
			if kwdefaults != nil {
				if v := kwdefaults.GetStr(sig.Names[i]); v != nil {
					locals[i] = v
					continue
				}
			}
			missing = append(missing, sig.Names[i])
		}
		if len(missing) > 0 {
			return missingArguments(name, "keyword-only", missing)
		}
	}
	return nil
}

func paramIndex(names []string, from, to int, name string) int {
	for i := from; i < to && i < len(names); i++ {
		if names[i] == name {
			return i
		}
	}
	return -1
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func tooManyPositional(fn *object.Function, c *code, locals []object.Object, given int) error {
	sig := c.sig
	defcount := len(fn.Defaults())
	var takes string
	var pl string
	if defcount > 0 {
		takes = fmt.Sprintf("from %d to %d", sig.Positional-defcount, sig.Positional)
		pl = "s"
	} else {
		takes = fmt.Sprintf("%d", sig.Positional)
		pl = plural(sig.Positional)
	}
	kwonlyGiven := 0
	for i := sig.Positional; i < sig.Positional+sig.KwOnly; i++ {
		if locals[i] != nil {
			kwonlyGiven++
		}
	}
	var kwonly string
	if kwonlyGiven > 0 {
		kwonly = fmt.Sprintf(" positional argument%s (and %d keyword-only argument%s)", plural(given), kwonlyGiven, plural(kwonlyGiven))
	}
	verb := "were"
	if given == 1 && kwonlyGiven == 0 {
		verb = "was"
	}
	return object.TypeErrorf("%s() takes %s positional argument%s but %d%s %s given",
		fn.QualName(), takes, pl, given, kwonly, verb)
}

// missingArguments formats the names the way CPython does: 'a', 'a' and
// 'b', or 'a', 'b', and 'c'.
func missingArguments(name, kind string, missing []string) error {
	quoted := make([]string, len(missing))
	for i, m := range missing {
		quoted[i] = "'" + m + "'"
	}
	var list string
	switch len(quoted) {
	case 1:
		list = quoted[0]
	case 2:
		list = quoted[0] + " and " + quoted[1]
	default:
		list = strings.Join(quoted[:len(quoted)-1], ", ") + ", and " + quoted[len(quoted)-1]
	}
	return object.TypeErrorf("%s() missing %d required %s argument%s: %s",
		name, len(missing), kind, plural(len(missing)), list)
}
