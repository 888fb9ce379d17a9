// Package config handles pyxlate.toml translator configuration.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/unit"
	"github.com/deepnoodle-ai/pyxlate/vm"
	"github.com/rs/zerolog"
)

// FileName is the conventional name of a configuration file.
const FileName = "pyxlate.toml"

// Config represents a pyxlate.toml file.
type Config struct {
	Translator Translator `toml:"translator"`
	VM         VM         `toml:"vm"`
	Log        Log        `toml:"log"`

	// Path is the file the configuration was loaded from (set at load time).
	Path string `toml:"-"`
}

// Translator configures the translation pipeline.
type Translator struct {
	// Dialects restricts the accepted source dialects, e.g. ["3.12"]. It
	// can only narrow the built-in range.
	Dialects []string `toml:"dialects"`
	// Deny lists modules whose objects stay host references.
	Deny []string `toml:"deny"`
	// Specialize enables type-guided specialized operations.
	Specialize bool `toml:"specialize"`
}

// VM configures the virtual machine that runs translated code.
type VM struct {
	RecursionLimit       int `toml:"recursion-limit"`
	ContextCheckInterval int `toml:"context-check-interval"`
}

// Log configures logging.
type Log struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	dialects := make([]string, len(pyop.Supported))
	for i, d := range pyop.Supported {
		dialects[i] = d.String()
	}
	return Config{
		Translator: Translator{
			Dialects:   dialects,
			Deny:       append([]string(nil), unit.DefaultDeny...),
			Specialize: true,
		},
		VM: VM{
			RecursionLimit:       vm.DefaultRecursionLimit,
			ContextCheckInterval: vm.DefaultContextCheckInterval,
		},
		Log: Log{Level: "warn"},
	}
}

// Parse overlays the TOML document data on the built-in configuration.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown configuration key %q", undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse error in %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Validate checks that every setting is usable.
func (c Config) Validate() error {
	if _, err := c.DialectSet(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.VM.RecursionLimit < 0 {
		return fmt.Errorf("vm.recursion-limit must not be negative")
	}
	if c.VM.ContextCheckInterval < 0 {
		return fmt.Errorf("vm.context-check-interval must not be negative")
	}
	return nil
}

// DialectSet returns the configured dialects. Versions outside the
// built-in range are rejected with an unsupported-version error.
func (c Config) DialectSet() ([]pyop.Dialect, error) {
	if len(c.Translator.Dialects) == 0 {
		return append([]pyop.Dialect(nil), pyop.Supported...), nil
	}
	out := make([]pyop.Dialect, 0, len(c.Translator.Dialects))
	for _, v := range c.Translator.Dialects {
		d, err := pyop.ParseDialect(v)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// LogLevel returns the configured log level.
func (c Config) LogLevel() (zerolog.Level, error) {
	if c.Log.Level == "" {
		return zerolog.WarnLevel, nil
	}
	return zerolog.ParseLevel(c.Log.Level)
}
