package object

import "context"

// Call invokes a callable value. The trailing len(kwnames) entries of args
// are keyword argument values.
func Call(ctx context.Context, fn Object, args []Object, kwnames []string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t, ok := fn.(*Type); ok && t.meta != nil {
		if c := t.meta.Lookup("__call__"); c != nil && !isObjectSlot(c) {
			return callBound(ctx, c, t, args, kwnames)
		}
	}
	if c, ok := fn.(Callable); ok {
		return c.Call(ctx, args, kwnames)
	}
	call := fn.Type().Lookup("__call__")
	if call == nil {
		return nil, TypeErrorf("'%s' object is not callable", fn.Type().name)
	}
	return callBound(ctx, call, fn, args, kwnames)
}

// callBound calls a function found on a type with self as the receiver.
// Plain functions and method builtins are called directly with self
// prepended; anything else goes through the descriptor protocol first.
func callBound(ctx context.Context, fn Object, self Object, args []Object, kwnames []string) (Object, error) {
	switch f := fn.(type) {
	case *Function:
		return f.Call(ctx, prepend(self, args), kwnames)
	case *Builtin:
		if f.kind == kindMethod {
			return f.Call(ctx, prepend(self, args), kwnames)
		}
	}
	bound, err := descrGet(ctx, fn, self, self.Type())
	if err != nil {
		return nil, err
	}
	return Call(ctx, bound, args, kwnames)
}

// CallMethod looks up name on o and calls it.
func CallMethod(ctx context.Context, o Object, name string, args ...Object) (Object, error) {
	fn, unbound, err := LookupMethod(ctx, o, name)
	if err != nil {
		return nil, err
	}
	if unbound {
		return Call(ctx, fn, prepend(o, args), nil)
	}
	return Call(ctx, fn, args, nil)
}

// CallSpecial calls special method name as looked up on the type of o. ok
// is false when the type does not define it.
func CallSpecial(ctx context.Context, o Object, name string, args ...Object) (Object, bool, error) {
	return callSpecial(ctx, o, name, args...)
}

func callSpecial(ctx context.Context, o Object, name string, args ...Object) (Object, bool, error) {
	fn := o.Type().Lookup(name)
	if fn == nil || fn == Object(None) {
		return nil, false, nil
	}
	r, err := callBound(ctx, fn, o, args, nil)
	return r, true, err
}

func prepend(self Object, args []Object) []Object {
	out := make([]Object, 0, len(args)+1)
	out = append(out, self)
	return append(out, args...)
}

// CallKw calls fn with positional arguments and a keyword dict, as
// CALL_FUNCTION_EX does.
func CallKw(ctx context.Context, fn Object, args []Object, kwargs *Dict) (Object, error) {
	if kwargs == nil || kwargs.Len() == 0 {
		return Call(ctx, fn, args, nil)
	}
	full := make([]Object, 0, len(args)+kwargs.Len())
	full = append(full, args...)
	kwnames := make([]string, 0, kwargs.Len())
	for _, e := range kwargs.entries() {
		k, ok := e.key.(*Str)
		if !ok {
			return nil, TypeErrorf("keywords must be strings")
		}
		full = append(full, e.value)
		kwnames = append(kwnames, k.value)
	}
	return Call(ctx, fn, full, kwnames)
}

// CallableName returns a display name for a callable, used in argument
// error messages.
func CallableName(fn Object) string {
	switch f := fn.(type) {
	case *Function:
		return f.qualname
	case *Builtin:
		return f.name
	case *BoundMethod:
		return CallableName(f.fn)
	case *Type:
		return f.name
	}
	return fn.Type().name + " object"
}

// IsCallable reports whether o can be called.
func IsCallable(o Object) bool {
	if _, ok := o.(Callable); ok {
		return true
	}
	return o.Type().Lookup("__call__") != nil
}
