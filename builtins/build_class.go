package builtins

import (
	"context"

	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/object"
)

var buildClassFn = fn("__build_class__").Arg("func", "name").Variadic().Kwargs().
	Doc("Internal helper used by the class statement.").
	Impl(BuildClass)

// BuildClass runs a class statement: it picks the metaclass, prepares the
// namespace, executes the class body in it and calls the metaclass.
func BuildClass(ctx context.Context, args object.Args) (object.Object, error) {
	body, ok := args.Get(0).(*object.Function)
	if !ok {
		return nil, object.TypeErrorf("__build_class__: func must be a function")
	}
	name, ok := args.Get(1).(*object.Str)
	if !ok {
		return nil, object.TypeErrorf("__build_class__: name is not a string")
	}
	bases := append([]object.Object(nil), args.Rest...)

	var meta object.Object
	kwargs := object.NewDict()
	if args.Kwargs != nil {
		for _, kv := range args.Kwargs.Items() {
			if k := kv[0].(*object.Str); k.Value() == "metaclass" {
				meta = kv[1]
				continue
			}
			kwargs.SetStr(kv[0].(*object.Str).Value(), kv[1])
		}
	}
	if meta == nil {
		if len(bases) == 0 {
			meta = object.TypeType
		} else {
			meta = bases[0].Type()
		}
	}
	if mt, ok := meta.(*object.Type); ok {
		winner, err := calculateMeta(mt, bases)
		if err != nil {
			return nil, err
		}
		meta = winner
	}

	if body.Code().Has(bytecode.FlagOpaqueBody) {
		return opaqueClass(body, name.Value())
	}

	basesTuple := object.NewTuple(bases)
	ns := object.NewDict()
	if prepare, err := object.GetAttr(ctx, meta, "__prepare__"); err == nil {
		res, err := object.CallKw(ctx, prepare, []object.Object{name, basesTuple}, kwargs)
		if err != nil {
			return nil, err
		}
		d, ok := res.(*object.Dict)
		if !ok {
			return nil, object.TypeErrorf("%s.__prepare__() must return a mapping, not %s",
				metaName(meta), res.Type().Name())
		}
		ns = d
	} else if !object.IsExceptionOf(err, object.AttributeErrorType) {
		return nil, err
	}

	exec, ok := object.GetExecBody(ctx)
	if !ok {
		return nil, object.RuntimeErrorf("__build_class__: no interpreter available to run the class body")
	}
	if err := exec(ctx, body, ns); err != nil {
		return nil, err
	}
	return object.CallKw(ctx, meta, []object.Object{name, basesTuple, ns}, kwargs)
}

// calculateMeta returns the most derived metaclass among meta and the
// metaclasses of the bases.
func calculateMeta(meta *object.Type, bases []object.Object) (*object.Type, error) {
	winner := meta
	for _, b := range bases {
		bt := b.Type()
		if winner.IsSubtype(bt) {
			continue
		}
		if bt.IsSubtype(winner) {
			winner = bt
			continue
		}
		return nil, object.TypeErrorf("metaclass conflict: the metaclass of a derived class must be a (non-strict) subclass of the metaclasses of all its bases")
	}
	return winner, nil
}

func metaName(meta object.Object) string {
	if t, ok := meta.(*object.Type); ok {
		return t.Name()
	}
	return meta.Type().Name()
}

// opaqueClass builds the stand-in type for a class body that could not be
// translated. Instantiation and attribute access go to the host.
func opaqueClass(body *object.Function, name string) (object.Object, error) {
	code := body.Code()
	if code.ConstantCount() == 0 {
		return nil, object.SystemErrorf("opaque class body %s has no host reference", name)
	}
	ref, ok := code.ConstantAt(0).(*object.Opaque)
	if !ok {
		return nil, object.SystemErrorf("opaque class body %s has no host reference", name)
	}
	module := ""
	if g := body.Globals(); g != nil {
		if s, ok := g.GetStr("__name__").(*object.Str); ok {
			module = s.Value()
		}
	}
	return object.NewOpaqueType(name, module, ref), nil
}
