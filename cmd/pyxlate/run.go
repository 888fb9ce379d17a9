package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"github.com/deepnoodle-ai/pyxlate"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/source"
	"github.com/spf13/cobra"
)

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <dump> [args...]",
		Short: "Translate a unit and call it",
		Long: `Translate a unit from a bytecode dump and call it with the given
arguments. Each argument is parsed as JSON; anything that is not valid JSON
is passed as a string.`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runRun,
	}
	cmd.Flags().String("func", "", "Unit to call")
	cmd.Flags().StringP("output", "o", "repr", "Output format (repr, json)")
	return cmd
}

func (a *app) runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	funcName, _ := cmd.Flags().GetString("func")
	format, _ := cmd.Flags().GetString("output")
	if format != "repr" && format != "json" {
		return fmt.Errorf("unknown output format: %s", format)
	}
	root, err := loadDump(cmd, args[0])
	if err != nil {
		return err
	}
	v, err := selectUnit(root, funcName)
	if err != nil {
		return err
	}
	t, err := a.translator(cmd)
	if err != nil {
		return err
	}
	u, err := t.Translate(ctx, v, pyxlate.Any)
	if err != nil {
		return err
	}
	callArgs := make([]object.Object, 0, len(args)-1)
	for _, arg := range args[1:] {
		sv, err := parseArg(arg)
		if err != nil {
			return err
		}
		o, err := t.Convert(ctx, sv)
		if err != nil {
			return err
		}
		callArgs = append(callArgs, o)
	}
	result, err := u.Call(ctx, callArgs...)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if format == "repr" {
		s, err := object.Repr(ctx, result)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, s)
		return nil
	}
	sv, err := t.Extract(ctx, result)
	if err != nil {
		return err
	}
	out, err := a.getOutputJSON(toJSON(sv))
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(out))
	return nil
}

// parseArg reads a command line argument as a JSON value, falling back to a
// plain string.
func parseArg(arg string) (source.Value, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(arg)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return source.Str(arg), nil
	}
	return fromJSON(v)
}

func fromJSON(v any) (source.Value, error) {
	switch v := v.(type) {
	case nil:
		return source.None, nil
	case bool:
		return source.Bool(v), nil
	case json.Number:
		if i, ok := new(big.Int).SetString(v.String(), 10); ok {
			return source.Int{V: i}, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return source.Float(f), nil
	case string:
		return source.Str(v), nil
	case []any:
		items := make([]source.Value, len(v))
		for i, item := range v {
			sv, err := fromJSON(item)
			if err != nil {
				return nil, err
			}
			items[i] = sv
		}
		return &source.List{Items: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := &source.Dict{}
		for _, k := range keys {
			sv, err := fromJSON(v[k])
			if err != nil {
				return nil, err
			}
			d.Set(source.Str(k), sv)
		}
		return d, nil
	}
	return nil, fmt.Errorf("unsupported JSON value %T", v)
}

// toJSON renders a source value as plain data for JSON output. Values with
// no JSON form are rendered by kind.
func toJSON(v source.Value) any {
	switch v := v.(type) {
	case *source.NoneType:
		return nil
	case source.Bool:
		return bool(v)
	case source.Int:
		if v.V.IsInt64() {
			return v.V.Int64()
		}
		return json.Number(v.V.String())
	case source.Float:
		return float64(v)
	case source.Str:
		return string(v)
	case source.Bytes:
		return []byte(v)
	case *source.Tuple:
		return listJSON(v.Items)
	case *source.List:
		return listJSON(v.Items)
	case *source.Set:
		return listJSON(v.Items)
	case *source.FrozenSet:
		return listJSON(v.Items)
	case *source.Dict:
		m := make(map[string]any, len(v.Keys))
		for i, k := range v.Keys {
			ks, ok := k.(source.Str)
			if !ok {
				pairs := make([]any, len(v.Keys))
				for j := range v.Keys {
					pairs[j] = []any{toJSON(v.Keys[j]), toJSON(v.Values[j])}
				}
				return pairs
			}
			m[string(ks)] = toJSON(v.Values[i])
		}
		return m
	}
	if name, ok := unitName(v); ok {
		return fmt.Sprintf("<%s %s>", v.Kind(), name)
	}
	return fmt.Sprintf("<%s>", v.Kind())
}

func listJSON(items []source.Value) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = toJSON(item)
	}
	return out
}
