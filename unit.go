package pyxlate

import (
	"context"

	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/source"
)

// Unit is a translated function, class or code object bound to the
// contract it was requested with. It is immutable and may be called
// concurrently.
type Unit struct {
	name     string
	contract Contract
	value    object.Object
	source   source.Value
	t        *Translator
}

// Name returns the qualified name of the translated unit.
func (u *Unit) Name() string { return u.name }

// Contract returns the contract the unit enforces.
func (u *Unit) Contract() Contract { return u.contract }

// Object returns the runtime value standing for the source unit.
func (u *Unit) Object() object.Object { return u.value }

// Source returns the source value the unit was translated from.
func (u *Unit) Source() source.Value { return u.source }

// Code returns the generated code, or nil for a class.
func (u *Unit) Code() *bytecode.Code {
	switch v := u.value.(type) {
	case *object.Function:
		return v.Code()
	case *object.Code:
		return v.Unwrap()
	}
	return nil
}

// Call invokes the unit with positional arguments.
func (u *Unit) Call(ctx context.Context, args ...object.Object) (object.Object, error) {
	return u.CallKw(ctx, args, nil)
}

// CallKw invokes the unit. The trailing len(kwnames) args are keyword
// argument values. The contract is checked against the positional
// arguments on entry and against the result on exit; violations raise
// TypeError. A code object unit runs its body in a fresh namespace.
func (u *Unit) CallKw(ctx context.Context, args []object.Object, kwnames []string) (object.Object, error) {
	npos := len(args) - len(kwnames)
	if npos < 0 {
		return nil, object.TypeErrorf("%d keyword names for %d arguments", len(kwnames), len(args))
	}
	if err := u.contract.checkArgs(args[:npos]); err != nil {
		return nil, err
	}
	var result object.Object
	var err error
	if code, ok := u.value.(*object.Code); ok {
		if len(args) > 0 {
			return nil, object.TypeErrorf("%s takes no arguments", u.name)
		}
		result, err = u.t.machine.RunCode(ctx, code.Unwrap(), nil)
	} else {
		result, err = u.t.machine.Call(ctx, u.value, args, kwnames)
	}
	if err != nil {
		return nil, err
	}
	if err := u.contract.checkReturn(result); err != nil {
		return nil, err
	}
	return result, nil
}

// Invoke converts source arguments, calls the unit, and extracts the
// result back into a source value.
func (u *Unit) Invoke(ctx context.Context, args ...source.Value) (source.Value, error) {
	in := make([]object.Object, len(args))
	for i, a := range args {
		o, err := u.t.conv.Convert(ctx, a)
		if err != nil {
			return nil, err
		}
		in[i] = o
	}
	result, err := u.Call(ctx, in...)
	if err != nil {
		return nil, err
	}
	return u.t.conv.Extract(ctx, result)
}
