package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// app carries the state shared by every command. Each root command gets its
// own viper instance so commands can be built repeatedly in tests.
type app struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:           "pyxlate",
		Short:         "Translate and run CPython bytecode dumps",
		Version:       version + " (" + commit + ", " + date + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.processGlobalFlags()
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Configuration file (default ./pyxlate.toml or ~/.pyxlate.toml)")
	flags.Bool("no-color", false, "Disable colored output")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.StringSlice("dialect", nil, "Accepted bytecode dialects, e.g. 3.12")
	flags.Bool("no-specialize", false, "Disable type-guided specialized operations")
	if err := a.v.BindPFlags(flags); err != nil {
		panic(err)
	}
	a.v.SetEnvPrefix("pyxlate")
	a.v.AutomaticEnv()
	// NO_COLOR is honored the same way as --no-color.
	if err := a.v.BindEnv("no-color", "PYXLATE_NO_COLOR", "NO_COLOR"); err != nil {
		panic(err)
	}

	root.AddCommand(a.disCmd(), a.translateCmd(), a.runCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fatal(err)
	}
}
