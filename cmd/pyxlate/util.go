package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/deepnoodle-ai/pyxlate"
	"github.com/deepnoodle-ai/pyxlate/config"
	"github.com/deepnoodle-ai/pyxlate/source"
	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
	"github.com/mattn/go-isatty"
	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var red = color.New(color.FgRed).SprintFunc()

func fatal(msg interface{}) {
	var s string
	switch msg := msg.(type) {
	case string:
		s = msg
	case error:
		s = msg.Error()
	default:
		s = fmt.Sprintf("%v", msg)
	}
	fmt.Fprintf(os.Stderr, "%s\n", red(s))
	os.Exit(1)
}

func isTerminalIO() bool {
	stdout := os.Stdout.Fd()
	return isatty.IsTerminal(stdout) || isatty.IsCygwinTerminal(stdout)
}

// Reads global flags from Viper and adjusts the environment accordingly.
func (a *app) processGlobalFlags() {
	if a.v.GetBool("no-color") || !isTerminalIO() {
		color.NoColor = true
	}
}

func (a *app) getOutputJSON(v any) ([]byte, error) {
	if a.v.GetBool("no-color") {
		return json.MarshalIndent(v, "", "  ")
	}
	return prettyjson.Marshal(v)
}

// configPath returns the configuration file to load, or "" when none
// exists. An explicit --config path must exist.
func (a *app) configPath() (string, error) {
	if path := a.v.GetString("config"); path != "" {
		return homedir.Expand(path)
	}
	candidates := []string{config.FileName, "~/." + config.FileName}
	for _, c := range candidates {
		path, err := homedir.Expand(c)
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

func (a *app) loadConfig() (config.Config, error) {
	cfg := config.Default()
	path, err := a.configPath()
	if err != nil {
		return cfg, err
	}
	if path != "" {
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if level := a.v.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if dialects := a.v.GetStringSlice("dialect"); len(dialects) > 0 {
		cfg.Translator.Dialects = dialects
	}
	if a.v.GetBool("no-specialize") {
		cfg.Translator.Specialize = false
	}
	return cfg, cfg.Validate()
}

func (a *app) logger(w io.Writer, cfg config.Config) (zerolog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return zerolog.Nop(), err
	}
	out := zerolog.ConsoleWriter{Out: w, NoColor: color.NoColor}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

func (a *app) translator(cmd *cobra.Command) (*pyxlate.Translator, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := a.logger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		log.Debug().Str("path", cfg.Path).Msg("configuration loaded")
	}
	return pyxlate.New(
		pyxlate.WithConfig(cfg),
		pyxlate.WithLogger(log),
		pyxlate.WithStdout(cmd.OutOrStdout()),
	)
}

// loadDump reads a JSON or CBOR dump from path, or from stdin when path
// is "-".
func loadDump(cmd *cobra.Command, path string) (source.Value, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty dump")
	}
	return source.Unmarshal(data)
}

// named is one translatable value found in a dump.
type named struct {
	name  string
	value source.Value
}

// units lists the translatable values of a dump. A module or dict root
// contributes its functions, classes and code objects in definition order.
func units(root source.Value) []named {
	var ns *source.Dict
	switch v := root.(type) {
	case *source.Module:
		ns = v.Dict
	case *source.Dict:
		ns = v
	default:
		if name, ok := unitName(root); ok {
			return []named{{name, root}}
		}
		return nil
	}
	if ns == nil {
		return nil
	}
	var out []named
	for i, k := range ns.Keys {
		key, ok := k.(source.Str)
		if !ok {
			continue
		}
		if _, ok := unitName(ns.Values[i]); ok {
			out = append(out, named{string(key), ns.Values[i]})
		}
	}
	return out
}

func unitName(v source.Value) (string, bool) {
	switch v := v.(type) {
	case *source.Function:
		if v.QualName != "" {
			return v.QualName, true
		}
		return v.Name, true
	case *source.Class:
		if v.QualName != "" {
			return v.QualName, true
		}
		return v.Name, true
	case *source.Code:
		if v.QualName != "" {
			return v.QualName, true
		}
		return v.Name, true
	}
	return "", false
}

// selectUnit picks the unit called name from a dump. An empty name selects
// the only unit.
func selectUnit(root source.Value, name string) (source.Value, error) {
	all := units(root)
	if name == "" {
		switch len(all) {
		case 0:
			return nil, errors.New("dump contains no translatable unit")
		case 1:
			return all[0].value, nil
		default:
			return nil, fmt.Errorf("dump contains %d units; select one by name", len(all))
		}
	}
	for _, n := range all {
		if n.name == name {
			return n.value, nil
		}
		if fn, ok := n.value.(*source.Function); ok && fn.Name == name {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("unit %q not found", name)
}
