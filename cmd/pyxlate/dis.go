package main

import (
	"fmt"
	"io"

	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/cfg"
	"github.com/deepnoodle-ai/pyxlate/dis"
	"github.com/deepnoodle-ai/pyxlate/infer"
	"github.com/deepnoodle-ai/pyxlate/source"
	"github.com/deepnoodle-ai/pyxlate/unit"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var disStages = []string{"source", "blocks", "target"}

func (a *app) disCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dis <dump>",
		Short: "Disassemble a unit at each translation stage",
		Long: `Disassemble a unit from a bytecode dump. The source stage lists the
decoded instructions, the blocks stage the control flow graph with the
inferred stack kinds at each block entry, and the target stage the
generated code and its exception handlers.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runDis,
	}
	cmd.Flags().String("func", "", "Unit to disassemble")
	cmd.Flags().StringSlice("stage", disStages, "Stages to print (source, blocks, target)")
	return cmd
}

func (a *app) runDis(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	funcName, _ := cmd.Flags().GetString("func")
	stages, _ := cmd.Flags().GetStringSlice("stage")
	for _, s := range stages {
		if !contains(disStages, s) {
			return fmt.Errorf("unknown stage %q", s)
		}
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

	builder := t.Converter().Builder()
	var u *unit.Unit
	switch v := v.(type) {
	case *source.Function:
		u, err = builder.Function(ctx, v)
	case *source.Code:
		u, err = builder.Code(ctx, v, "")
	default:
		return fmt.Errorf("cannot disassemble a %s", v.Kind())
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if contains(stages, "source") {
		heading(w, "source")
		if err := dis.PrintSource(u.Instructions, w); err != nil {
			return err
		}
	}
	if contains(stages, "blocks") {
		g, err := cfg.Build(u)
		if err != nil {
			return err
		}
		heading(w, "blocks")
		if err := dis.PrintBlocks(g, infer.Analyze(g), w); err != nil {
			return err
		}
	}
	if contains(stages, "target") {
		code, err := t.Compile(ctx, u)
		if err != nil {
			return err
		}
		heading(w, "target")
		if err := printCode(code, w); err != nil {
			return err
		}
	}
	return nil
}

func printCode(code *bytecode.Code, w io.Writer) error {
	instructions, err := dis.Disassemble(code)
	if err != nil {
		return err
	}
	if err := dis.PrintHeader(code, w); err != nil {
		return err
	}
	if err := dis.Print(instructions, w); err != nil {
		return err
	}
	if code.HandlerCount() > 0 {
		fmt.Fprintln(w)
		if err := dis.PrintHandlers(code, w); err != nil {
			return err
		}
	}
	if code.SuspensionCount() > 0 {
		fmt.Fprintln(w)
		return dis.PrintSuspensions(code, w)
	}
	return nil
}

func heading(w io.Writer, s string) {
	fmt.Fprintf(w, "\n%s\n", color.New(color.Bold).Sprint(s))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
