package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/internal/pytest"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/source"
	"github.com/stretchr/testify/require"
)

// def f(x: int) -> int: return x + 1
func writeDump(t *testing.T) string {
	t.Helper()
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Op("LOAD_CONST", 1).
		Op("BINARY_OP", pyop.NbAdd).
		Op("RETURN_VALUE")
	code := a.Code(pytest.Spec{
		Name:     "f",
		ArgCount: 1,
		Flags:    pyop.CoOptimized | pyop.CoNewLocals,
		Consts:   []source.Value{source.None, source.NewInt(1)},
		VarNames: []string{"x"},
	})
	fn := &source.Function{Code: code, Name: "f", Module: "demo"}
	data, err := source.MarshalJSON(fn)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "f.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCallsUnit(t *testing.T) {
	path := writeDump(t)
	out, err := execute(t, "run", path, "41")
	require.NoError(t, err)
	require.Equal(t, "42\n", out)

	out, err = execute(t, "run", "-o", "json", path, "9223372036854775807")
	require.NoError(t, err)
	require.Equal(t, "9223372036854775808\n", out)
}

func TestRunUnknownUnit(t *testing.T) {
	_, err := execute(t, "run", "--func", "missing", writeDump(t), "1")
	require.EqualError(t, err, `unit "missing" not found`)
}

func TestDialectFlagNarrows(t *testing.T) {
	_, err := execute(t, "--dialect", "3.12", "run", writeDump(t), "1")
	require.Error(t, err)
	require.Contains(t, err.Error(), `unsupported bytecode dialect "3.11" (supported: 3.12)`)
}

func TestTranslateReportsOutcomes(t *testing.T) {
	out, err := execute(t, "translate", writeDump(t))
	require.NoError(t, err)
	require.Contains(t, out, `"unit": "f"`)
	require.Contains(t, out, `"ok": true`)
}

func TestDisPrintsStages(t *testing.T) {
	out, err := execute(t, "dis", writeDump(t))
	require.NoError(t, err)
	for _, s := range []string{"source", "blocks", "target", "BINARY_OP", "RETURN_VALUE"} {
		require.Contains(t, out, s)
	}

	_, err = execute(t, "dis", "--stage", "bogus", writeDump(t))
	require.EqualError(t, err, `unknown stage "bogus"`)
}

func TestConfigFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "pyxlate.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[translator]\nspecialize = false\n"), 0o644))
	out, err := execute(t, "--config", cfgPath, "run", writeDump(t), "1")
	require.NoError(t, err)
	require.Equal(t, "2\n", out)

	require.NoError(t, os.WriteFile(cfgPath, []byte("[translator]\nbogus = 1\n"), 0o644))
	_, err = execute(t, "--config", cfgPath, "run", writeDump(t), "1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown configuration key")
}

func TestParseArg(t *testing.T) {
	v, err := parseArg("12")
	require.NoError(t, err)
	require.Equal(t, "12", v.(source.Int).V.String())

	v, err = parseArg("1.5")
	require.NoError(t, err)
	require.Equal(t, source.Float(1.5), v)

	v, err = parseArg("hello")
	require.NoError(t, err)
	require.Equal(t, source.Str("hello"), v)

	v, err = parseArg(`{"b": [1, true], "a": null}`)
	require.NoError(t, err)
	d := v.(*source.Dict)
	require.Equal(t, []source.Value{source.Str("a"), source.Str("b")}, d.Keys)
	require.Equal(t, source.None, d.Values[0])
	require.Equal(t, map[string]any{"a": nil, "b": []any{int64(1), true}}, toJSON(d))
}
