package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zhichaoleo/roboptim-core/internal/optimization/catalog"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
)

func newBackendsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the registered solver backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range solver.Backends() {
				marker := " "
				if name == a.cfg.Solver.Backend {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, name)
			}
			return nil
		},
	}
}

func newProblemsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "problems [name]",
		Short: "List the catalog problems or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				e, err := catalog.Lookup(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, e)
				}
				return describeProblem(out, e)
			}

			entries := catalog.All()
			if asJSON {
				return writeJSON(out, entries)
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDIM\tLEVEL\tCONSTRAINED\tDESCRIPTION")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%t\t%s\n", e.Name, e.Dimension, e.Level, e.Constrained, e.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func describeProblem(w io.Writer, e catalog.Entry) error {
	p, err := e.Problem()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %s\n", e.Name, e.Description)
	if e.Solution != nil {
		fmt.Fprintf(w, "Known solution: %v\n", e.Solution)
	}
	fmt.Fprintf(w, "Known value: %g\n", e.Value)
	fmt.Fprint(w, p)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
