// Package builtins defines the builtins namespace that translated code
// resolves unqualified names against after its globals.
package builtins

import (
	"context"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/op"
)

const module = "builtins"

func fn(name string) *object.FuncBuilder {
	return object.NewBuiltin(module, name)
}

var (
	absFn = fn("abs").Arg("x").Doc("Return the absolute value of the argument.").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return object.Abs(ctx, args.Get(0))
		})

	allFn = fn("all").Arg("iterable").Doc("Return True if bool(x) is True for all values x in the iterable.").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return scan(ctx, args.Get(0), false)
		})

	anyFn = fn("any").Arg("iterable").Doc("Return True if bool(x) is True for any x in the iterable.").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return scan(ctx, args.Get(0), true)
		})

	asciiFn = fn("ascii").Arg("obj").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			s, err := object.Ascii(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			return object.NewStr(s), nil
		})

	binFn = fn("bin").Arg("number").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return radix(ctx, args.Get(0), "#b")
		})

	octFn = fn("oct").Arg("number").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return radix(ctx, args.Get(0), "#o")
		})

	hexFn = fn("hex").Arg("number").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return radix(ctx, args.Get(0), "#x")
		})

	callableFn = fn("callable").Arg("obj").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return object.NewBool(object.IsCallable(args.Get(0))), nil
		})

	chrFn = fn("chr").Arg("i").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			n, err := object.Index(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			v, ok := n.Int64()
			if !ok {
				return nil, object.OverflowErrorf("Python int too large to convert to C int")
			}
			if v < 0 || v > 0x10ffff {
				return nil, object.ValueErrorf("chr() arg not in range(0x110000)")
			}
			return object.NewStr(string(rune(v))), nil
		})

	ordFn = fn("ord").Arg("c").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			switch c := args.Get(0).(type) {
			case *object.Str:
				if c.Len() != 1 {
					return nil, object.TypeErrorf("ord() expected a character, but string of length %d found", c.Len())
				}
				return object.NewInt(int64(c.Runes()[0])), nil
			case *object.Bytes:
				if len(c.Value()) != 1 {
					return nil, object.TypeErrorf("ord() expected a character, but string of length %d found", len(c.Value()))
				}
				return object.NewInt(int64(c.Value()[0])), nil
			case *object.ByteArray:
				if len(c.Value()) != 1 {
					return nil, object.TypeErrorf("ord() expected a character, but string of length %d found", len(c.Value()))
				}
				return object.NewInt(int64(c.Value()[0])), nil
			}
			return nil, object.TypeErrorf("ord() expected string of length 1, but %s found", args.Get(0).Type().Name())
		})

	delattrFn = fn("delattr").Arg("obj", "name").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			name, err := attrName(args.Get(1))
			if err != nil {
				return nil, err
			}
			return object.None, object.DelAttr(ctx, args.Get(0), name)
		})

	getattrFn = fn("getattr").Arg("object", "name").OptArg("default").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			name, err := attrName(args.Get(1))
			if err != nil {
				return nil, err
			}
			v, err := object.GetAttr(ctx, args.Get(0), name)
			if err != nil && args.Has(2) && object.IsExceptionOf(err, object.AttributeErrorType) {
				return args.Get(2), nil
			}
			return v, err
		})

	hasattrFn = fn("hasattr").Arg("obj", "name").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			name, err := attrName(args.Get(1))
			if err != nil {
				return nil, err
			}
			ok, err := object.HasAttr(ctx, args.Get(0), name)
			if err != nil {
				return nil, err
			}
			return object.NewBool(ok), nil
		})

	setattrFn = fn("setattr").Arg("obj", "name", "value").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			name, err := attrName(args.Get(1))
			if err != nil {
				return nil, err
			}
			return object.None, object.SetAttr(ctx, args.Get(0), name, args.Get(2))
		})

	dirFn = fn("dir").OptArg("object").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			if !args.Has(0) {
				locals, err := frameLocals(ctx, "dir")
				if err != nil {
					return nil, err
				}
				keys, err := object.ToSlice(ctx, locals)
				if err != nil {
					return nil, err
				}
				keys = append([]object.Object(nil), keys...)
				if err := object.SortObjects(ctx, keys, object.None, false); err != nil {
					return nil, err
				}
				return object.NewList(keys), nil
			}
			if args.Get(0).Type().Lookup("__dir__") != nil {
				res, err := object.CallMethod(ctx, args.Get(0), "__dir__")
				if err != nil {
					return nil, err
				}
				items, err := object.ToSlice(ctx, res)
				if err != nil {
					return nil, err
				}
				items = append([]object.Object(nil), items...)
				if err := object.SortObjects(ctx, items, object.None, false); err != nil {
					return nil, err
				}
				return object.NewList(items), nil
			}
			names := object.Dir(ctx, args.Get(0))
			items := make([]object.Object, len(names))
			for i, n := range names {
				items[i] = object.NewStr(n)
			}
			return object.NewList(items), nil
		})

	divmodFn = fn("divmod").Arg("x", "y").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return object.DivMod(ctx, args.Get(0), args.Get(1))
		})

	formatFn = fn("format").Arg("value").OptArg("format_spec").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			spec := ""
			if args.Has(1) {
				s, ok := args.Get(1).(*object.Str)
				if !ok {
					return nil, object.TypeErrorf("format() argument 2 must be str, not %s", args.Get(1).Type().Name())
				}
				spec = s.Value()
			}
			s, err := object.Format(ctx, args.Get(0), spec)
			if err != nil {
				return nil, err
			}
			return object.NewStr(s), nil
		})

	globalsFn = fn("globals").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			f, ok := object.CurrentFrame(ctx)
			if !ok {
				return nil, object.SystemErrorf("globals(): no current frame")
			}
			return f.Globals(), nil
		})

	localsFn = fn("locals").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return frameLocals(ctx, "locals")
		})

	varsFn = fn("vars").OptArg("object").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			if !args.Has(0) {
				return frameLocals(ctx, "vars")
			}
			d, err := object.GetAttr(ctx, args.Get(0), "__dict__")
			if err != nil {
				if object.IsExceptionOf(err, object.AttributeErrorType) {
					return nil, object.TypeErrorf("vars() argument must have __dict__ attribute")
				}
				return nil, err
			}
			return d, nil
		})

	hashFn = fn("hash").Arg("obj").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			h, err := object.Hash(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			return object.NewInt(h), nil
		})

	idFn = fn("id").Arg("obj").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return object.NewInt(object.Id(args.Get(0))), nil
		})

	isinstanceFn = fn("isinstance").Arg("obj", "class_or_tuple").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			ok, err := IsInstance(ctx, args.Get(0), args.Get(1))
			if err != nil {
				return nil, err
			}
			return object.NewBool(ok), nil
		})

	issubclassFn = fn("issubclass").Arg("cls", "class_or_tuple").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			ok, err := IsSubclass(ctx, args.Get(0), args.Get(1))
			if err != nil {
				return nil, err
			}
			return object.NewBool(ok), nil
		})

	iterFn = fn("iter").Arg("object").OptArg("sentinel").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			if args.Has(1) {
				if !object.IsCallable(args.Get(0)) {
					return nil, object.TypeErrorf("iter(v, w): v must be callable")
				}
				return object.NewCallableIter(args.Get(0), args.Get(1)), nil
			}
			return object.Iter(ctx, args.Get(0))
		})

	nextFn = fn("next").Arg("iterator").OptArg("default").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			it := args.Get(0)
			if _, ok := it.(object.Iterator); !ok && it.Type().Lookup("__next__") == nil {
				return nil, object.TypeErrorf("'%s' object is not an iterator", it.Type().Name())
			}
			v, ok, err := object.Next(ctx, it)
			if err != nil {
				return nil, err
			}
			if !ok {
				if args.Has(1) {
					return args.Get(1), nil
				}
				return nil, object.NewException(object.StopIterationType)
			}
			return v, nil
		})

	lenFn = fn("len").Arg("obj").Doc("Return the number of items in a container.").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			n, err := object.Len(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			return object.NewInt(int64(n)), nil
		})

	maxFn = fn("max").Variadic().Kwargs().
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return extreme(ctx, "max", op.GreaterThan, args)
		})

	minFn = fn("min").Variadic().Kwargs().
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return extreme(ctx, "min", op.LessThan, args)
		})

	powFn = fn("pow").Arg("base", "exp").OptArg("mod").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			if object.IsNone(args.Or(2, object.None)) {
				return object.BinaryOp(ctx, op.Power, args.Get(0), args.Get(1))
			}
			return object.PowMod(ctx, args.Get(0), args.Get(1), args.Get(2))
		})

	printFn = fn("print").Variadic().Kwargs().
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			return object.None, Print(ctx, args)
		})

	reprFn = fn("repr").Arg("obj").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			s, err := object.Repr(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			return object.NewStr(s), nil
		})

	roundFn = fn("round").Arg("number").OptArg("ndigits").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			x := args.Get(0)
			if x.Type().Lookup("__round__") == nil {
				return nil, object.TypeErrorf("type %s doesn't define __round__ method", x.Type().Name())
			}
			if object.IsNone(args.Or(1, object.None)) {
				return object.CallMethod(ctx, x, "__round__")
			}
			return object.CallMethod(ctx, x, "__round__", args.Get(1))
		})

	sortedFn = fn("sorted").Arg("iterable").Kwargs().
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			key, reverse := object.Object(object.None), false
			if args.Kwargs != nil {
				for _, kv := range args.Kwargs.Items() {
					name := kv[0].(*object.Str).Value()
					switch name {
					case "key":
						key = kv[1]
					case "reverse":
						r, err := object.Truthy(ctx, kv[1])
						if err != nil {
							return nil, err
						}
						reverse = r
					default:
						return nil, object.TypeErrorf("sort() got an unexpected keyword argument '%s'", name)
					}
				}
			}
			items, err := object.ToSlice(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			items = append([]object.Object(nil), items...)
			if err := object.SortObjects(ctx, items, key, reverse); err != nil {
				return nil, err
			}
			return object.NewList(items), nil
		})

	sumFn = fn("sum").Arg("iterable").OptArg("start").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			total := args.Or(1, object.NewInt(0))
			switch total.(type) {
			case *object.Str:
				return nil, object.TypeErrorf("sum() can't sum strings [use ''.join(seq) instead]")
			case *object.Bytes:
				return nil, object.TypeErrorf("sum() can't sum bytes [use b''.join(seq) instead]")
			case *object.ByteArray:
				return nil, object.TypeErrorf("sum() can't sum bytearray [use b''.join(seq) instead]")
			}
			it, err := object.Iter(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			for {
				v, ok, err := object.Next(ctx, it)
				if err != nil {
					return nil, err
				}
				if !ok {
					return total, nil
				}
				if total, err = object.BinaryOp(ctx, op.Add, total, v); err != nil {
					return nil, err
				}
			}
		})

	importFn = fn("__import__").Arg("name").OptArg("globals", "locals", "fromlist", "level").
		Impl(func(ctx context.Context, args object.Args) (object.Object, error) {
			name, ok := args.Get(0).(*object.Str)
			if !ok {
				return nil, object.TypeErrorf("__import__() argument 1 must be str, not %s", args.Get(0).Type().Name())
			}
			globals, _ := args.Or(1, object.None).(*object.Dict)
			var fromlist []string
			if args.Has(3) && !object.IsNone(args.Get(3)) {
				items, err := object.ToSlice(ctx, args.Get(3))
				if err != nil {
					return nil, err
				}
				for _, item := range items {
					s, ok := item.(*object.Str)
					if !ok {
						return nil, object.TypeErrorf("Item in from list must be str, not %s", item.Type().Name())
					}
					fromlist = append(fromlist, s.Value())
				}
			}
			level := 0
			if args.Has(4) {
				n, err := object.IndexInt(ctx, args.Get(4))
				if err != nil {
					return nil, err
				}
				level = n
			}
			if level < 0 {
				return nil, object.ValueErrorf("level must be >= 0")
			}
			return object.Import(ctx, name.Value(), globals, fromlist, level)
		})
)

func scan(ctx context.Context, iterable object.Object, want bool) (object.Object, error) {
	it, err := object.Iter(ctx, iterable)
	if err != nil {
		return nil, err
	}
	for {
		v, ok, err := object.Next(ctx, it)
		if err != nil {
			return nil, err
		}
		if !ok {
			return object.NewBool(!want), nil
		}
		t, err := object.Truthy(ctx, v)
		if err != nil {
			return nil, err
		}
		if t == want {
			return object.NewBool(want), nil
		}
	}
}

func radix(ctx context.Context, o object.Object, spec string) (object.Object, error) {
	n, err := object.Index(ctx, o)
	if err != nil {
		return nil, err
	}
	s, err := object.Format(ctx, n, spec)
	if err != nil {
		return nil, err
	}
	return object.NewStr(s), nil
}

func attrName(o object.Object) (string, error) {
	s, ok := o.(*object.Str)
	if !ok {
		return "", object.TypeErrorf("attribute name must be string, not '%s'", o.Type().Name())
	}
	return s.Value(), nil
}

func frameLocals(ctx context.Context, fname string) (object.Object, error) {
	f, ok := object.CurrentFrame(ctx)
	if !ok {
		return nil, object.SystemErrorf("%s(): no current frame", fname)
	}
	return f.Locals(ctx)
}

// extreme implements min and max.
func extreme(ctx context.Context, name string, better op.CompareOpType, args object.Args) (object.Object, error) {
	var key, def object.Object
	if args.Kwargs != nil {
		for _, kv := range args.Kwargs.Items() {
			switch k := kv[0].(*object.Str).Value(); k {
			case "key":
				key = kv[1]
			case "default":
				def = kv[1]
			default:
				return nil, object.TypeErrorf("%s() got an unexpected keyword argument '%s'", name, k)
			}
		}
	}
	if key != nil && object.IsNone(key) {
		key = nil
	}
	var items []object.Object
	switch len(args.Rest) {
	case 0:
		return nil, object.TypeErrorf("%s expected at least 1 argument, got 0", name)
	case 1:
		var err error
		if items, err = object.ToSlice(ctx, args.Rest[0]); err != nil {
			return nil, err
		}
		if len(items) == 0 {
			if def != nil {
				return def, nil
			}
			return nil, object.ValueErrorf("%s() iterable argument is empty", name)
		}
	default:
		if def != nil {
			return nil, object.TypeErrorf("Cannot specify a default for %s() with multiple positional arguments", name)
		}
		items = args.Rest
	}
	var best, bestKey object.Object
	for _, item := range items {
		k := item
		if key != nil {
			var err error
			if k, err = object.Call(ctx, key, []object.Object{item}, nil); err != nil {
				return nil, err
			}
		}
		if best == nil {
			best, bestKey = item, k
			continue
		}
		gt, err := object.Compare(ctx, better, k, bestKey)
		if err != nil {
			return nil, err
		}
		if gt {
			best, bestKey = item, k
		}
	}
	return best, nil
}

// Print writes its arguments the way print() does.
func Print(ctx context.Context, args object.Args) error {
	sep, end := " ", "\n"
	var file object.Object = object.None
	flush := false
	if args.Kwargs != nil {
		for _, kv := range args.Kwargs.Items() {
			k := kv[0].(*object.Str).Value()
			switch k {
			case "sep", "end":
				v := "\n"
				if k == "sep" {
					v = " "
				}
				switch s := kv[1].(type) {
				case *object.NoneType:
				case *object.Str:
					v = s.Value()
				default:
					return object.TypeErrorf("%s must be None or a string, not %s", k, kv[1].Type().Name())
				}
				if k == "sep" {
					sep = v
				} else {
					end = v
				}
			case "file":
				file = kv[1]
			case "flush":
				f, err := object.Truthy(ctx, kv[1])
				if err != nil {
					return err
				}
				flush = f
			default:
				return object.TypeErrorf("'%s' is an invalid keyword argument for print()", k)
			}
		}
	}
	var b strings.Builder
	for i, v := range args.Rest {
		if i > 0 {
			b.WriteString(sep)
		}
		s, err := object.StrOf(ctx, v)
		if err != nil {
			return err
		}
		b.WriteString(s)
	}
	b.WriteString(end)
	if object.IsNone(file) {
		_, err := io.WriteString(object.GetStdout(ctx), b.String())
		return err
	}
	if _, err := object.CallMethod(ctx, file, "write", object.NewStr(b.String())); err != nil {
		return err
	}
	if flush {
		if _, err := object.CallMethod(ctx, file, "flush"); err != nil {
			return err
		}
	}
	return nil
}

// IsInstance implements isinstance(), honoring __instancecheck__ on
// metaclasses.
func IsInstance(ctx context.Context, o, cls object.Object) (bool, error) {
	switch c := cls.(type) {
	case *object.Tuple:
		for _, item := range c.Items() {
			ok, err := IsInstance(ctx, o, item)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case *object.Type:
		if o.Type().IsSubtype(c) {
			return true, nil
		}
		if meta := c.Type(); meta != object.TypeType {
			if check := meta.Lookup("__instancecheck__"); check != nil {
				r, err := object.Call(ctx, check, []object.Object{c, o}, nil)
				if err != nil {
					return false, err
				}
				return object.Truthy(ctx, r)
			}
		}
		return false, nil
	}
	return false, object.TypeErrorf("isinstance() arg 2 must be a type, a tuple of types, or a union")
}

// IsSubclass implements issubclass().
func IsSubclass(ctx context.Context, sub, cls object.Object) (bool, error) {
	st, ok := sub.(*object.Type)
	if !ok {
		return false, object.TypeErrorf("issubclass() arg 1 must be a class")
	}
	switch c := cls.(type) {
	case *object.Tuple:
		for _, item := range c.Items() {
			ok, err := IsSubclass(ctx, sub, item)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case *object.Type:
		if st.IsSubtype(c) {
			return true, nil
		}
		if meta := c.Type(); meta != object.TypeType {
			if check := meta.Lookup("__subclasscheck__"); check != nil {
				r, err := object.Call(ctx, check, []object.Object{c, st}, nil)
				if err != nil {
					return false, err
				}
				return object.Truthy(ctx, r)
			}
		}
		return false, nil
	}
	return false, object.TypeErrorf("issubclass() arg 2 must be a class, a tuple of classes, or a union")
}

// Builtins returns a fresh map of the builtins namespace.
func Builtins() map[string]object.Object {
	m := map[string]object.Object{
		"None":            object.None,
		"True":            object.True,
		"False":           object.False,
		"Ellipsis":        object.Ellipsis,
		"NotImplemented":  object.NotImplemented,
		"__debug__":       object.True,
		"__build_class__": buildClassFn,
		"__import__":      importFn,
	}
	for _, b := range []*object.Builtin{
		absFn, allFn, anyFn, asciiFn, binFn, callableFn, chrFn, delattrFn,
		dirFn, divmodFn, formatFn, getattrFn, globalsFn, hasattrFn, hashFn,
		hexFn, idFn, isinstanceFn, issubclassFn, iterFn, lenFn, localsFn,
		maxFn, minFn, nextFn, octFn, ordFn, powFn, printFn, reprFn, roundFn,
		setattrFn, sortedFn, sumFn, varsFn,
	} {
		m[b.Name()] = b
	}
	for _, t := range object.BuiltinTypes() {
		m[t.Name()] = t
	}
	for _, t := range object.ExceptionTypes() {
		m[t.Name()] = t
	}
	m["EnvironmentError"] = object.OSErrorType
	m["IOError"] = object.OSErrorType
	return m
}

// Module returns a new builtins module. Names are inserted in sorted
// order so that dir() and iteration are deterministic.
func Module() *object.Module {
	m := Builtins()
	d := object.NewDict()
	for _, name := range slices.Sorted(maps.Keys(m)) {
		d.SetStr(name, m[name])
	}
	return object.NewModule(module, d)
}
