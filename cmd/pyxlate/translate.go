package main

import (
	"fmt"

	"github.com/deepnoodle-ai/pyxlate"
	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/spf13/cobra"
)

// outcome reports the translation of one unit.
type outcome struct {
	Unit         string `json:"unit"`
	Kind         string `json:"kind"`
	OK           bool   `json:"ok"`
	ErrorKind    string `json:"error_kind,omitempty"`
	Error        string `json:"error,omitempty"`
	Instructions int    `json:"instructions,omitempty"`
	Handlers     int    `json:"handlers,omitempty"`
	Children     int    `json:"children,omitempty"`
}

func (a *app) translateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate <dump>",
		Short: "Translate every unit of a dump and report the outcome",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runTranslate,
	}
	cmd.Flags().Bool("strict", false, "Exit with an error if any unit fails to translate")
	return cmd
}

func (a *app) runTranslate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	strict, _ := cmd.Flags().GetBool("strict")
	root, err := loadDump(cmd, args[0])
	if err != nil {
		return err
	}
	t, err := a.translator(cmd)
	if err != nil {
		return err
	}
	var outcomes []outcome
	failed := 0
	for _, n := range units(root) {
		o := outcome{Unit: n.name, Kind: n.value.Kind().String()}
		u, err := t.Translate(ctx, n.value, pyxlate.Any)
		if err != nil {
			failed++
			o.Error = err.Error()
			if kind := errz.KindOf(err); kind != 0 {
				o.ErrorKind = kind.String()
			}
		} else {
			o.OK = true
			if code := u.Code(); code != nil {
				stats := code.Stats()
				o.Instructions = stats.InstructionCount
				o.Handlers = stats.HandlerCount
				o.Children = stats.ChildCount
			}
		}
		outcomes = append(outcomes, o)
	}
	out, err := a.getOutputJSON(outcomes)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if strict && failed > 0 {
		return fmt.Errorf("%d of %d units failed to translate", failed, len(outcomes))
	}
	return nil
}
