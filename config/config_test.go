package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.True(t, cfg.Translator.Specialize)
	ds, err := cfg.DialectSet()
	require.NoError(t, err)
	require.Equal(t, pyop.Supported, ds)
	require.Contains(t, cfg.Translator.Deny, "os")
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[translator]
dialects = ["3.12"]
specialize = false

[log]
level = "debug"
`))
	require.NoError(t, err)
	require.False(t, cfg.Translator.Specialize)
	ds, err := cfg.DialectSet()
	require.NoError(t, err)
	require.Equal(t, []pyop.Dialect{pyop.Py312}, ds)
	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	require.Equal(t, zerolog.DebugLevel, lvl)

	// Untouched sections keep their defaults.
	require.Equal(t, Default().VM, cfg.VM)
	require.Equal(t, Default().Translator.Deny, cfg.Translator.Deny)
}

func TestParseRejectsBadSettings(t *testing.T) {
	_, err := Parse([]byte(`[translator]
dialects = ["3.10"]`))
	require.True(t, errors.Is(err, errz.UnsupportedVersion))
	require.Contains(t, err.Error(), "supported: 3.11-3.12")

	_, err = Parse([]byte(`[log]
level = "loud"`))
	require.Error(t, err)

	_, err = Parse([]byte(`[vm]
recursion_limit = 10`))
	require.ErrorContains(t, err, "unknown configuration key")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("[vm]\nrecursion-limit = 64\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 64, cfg.VM.RecursionLimit)
	require.Equal(t, path, cfg.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorContains(t, err, "cannot read")
}
