package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhichaoleo/roboptim-core/internal/optimization/callback"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/catalog"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
	"github.com/zhichaoleo/roboptim-core/internal/server"
)

type solveOptions struct {
	backend       string
	start         []float64
	params        []string
	maxIterations int
	timeout       time.Duration
	maxValue      float64
	logEvery      int
	history       bool
	asJSON        bool
}

// solveOutput is what solve prints with --json.
type solveOutput struct {
	Problem   string              `json:"problem"`
	Backend   string              `json:"backend"`
	Status    string              `json:"status"`
	Elapsed   string              `json:"elapsed"`
	Reference float64             `json:"reference_value"`
	Minimum   *server.MinimumView `json:"minimum"`
	History   []*solver.State     `json:"history,omitempty"`
}

func newSolveCmd(a *app) *cobra.Command {
	o := &solveOptions{}
	cmd := &cobra.Command{
		Use:   "solve <problem>",
		Short: "Solve a catalog problem",
		Long: `Solves a catalog problem with the chosen backend and prints the outcome.
Parameters are passed as key=value, e.g. --param dummy.step=0.05.
Interrupting the command stops the solve at its next iteration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, a, o, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.backend, "backend", "", "Solver backend (default from SOLVER_BACKEND)")
	f.Float64SliceVar(&o.start, "start", nil, "Starting point overriding the catalog one")
	f.StringArrayVar(&o.params, "param", nil, "Solver parameter as key=value, repeatable")
	f.IntVar(&o.maxIterations, "max-iterations", 0, "Iteration limit (default from SOLVER_MAX_ITERATIONS)")
	f.DurationVar(&o.timeout, "timeout", 0, "Abort the solve after this duration")
	f.Float64Var(&o.maxValue, "max-value", 0, "Abort once the objective exceeds this value")
	f.IntVar(&o.logEvery, "log-every", 1, "Log every n-th iteration at debug level")
	f.BoolVar(&o.history, "history", false, "Print the iterations")
	f.BoolVar(&o.asJSON, "json", false, "Print JSON")
	return cmd
}

func runSolve(cmd *cobra.Command, a *app, o *solveOptions, name string) error {
	entry, err := catalog.Lookup(name)
	if err != nil {
		return err
	}
	p, err := entry.Problem()
	if err != nil {
		return err
	}
	if len(o.start) > 0 {
		if err := p.SetStartingPoint(o.start); err != nil {
			return err
		}
	}

	backend := o.backend
	if backend == "" {
		backend = a.cfg.Solver.Backend
	}

	params := solver.Parameters{}
	maxIterations := a.cfg.Solver.MaxIterations
	if o.maxIterations > 0 {
		maxIterations = o.maxIterations
	}
	_ = params.Set(solver.ParamMaxIterations, maxIterations, "")
	_ = params.Set(solver.ParamCacheCapacity, a.cfg.Solver.CacheCapacity, "")
	_ = params.Set(solver.ParamCacheTolerance, a.cfg.Solver.CacheTolerance, "")
	_ = params.Set(solver.ParamFiniteDifferenceStep, a.cfg.Solver.FDStep, "")
	if err := applyParams(params, o.params); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt)
	defer stop()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	logger := a.zap.With(zap.String("problem", name))
	opts := []solver.Option{
		solver.WithLogger(logger),
		solver.WithParameters(params),
		solver.WithObserver(callback.NewLogger(logger, o.logEvery), solver.Named("log")),
		solver.WithObserver(callback.Cancel(ctx), solver.Named("cancel")),
	}
	if cmd.Flags().Changed("max-value") {
		opts = append(opts, solver.WithObserver(callback.MaxValue(o.maxValue), solver.Named("max-value")))
	}
	var history *callback.History
	if o.history {
		history, err = callback.NewHistory(callback.WithLimit(a.cfg.Solver.HistoryLimit))
		if err != nil {
			return err
		}
		opts = append(opts, solver.WithObserver(history, solver.Named("history")))
	}

	s, err := solver.Create(backend, p, opts...)
	if err != nil {
		return err
	}

	started := time.Now()
	m := s.Solve()
	out := solveOutput{
		Problem:   name,
		Backend:   backend,
		Status:    solver.StatusOf(m).String(),
		Elapsed:   time.Since(started).Round(time.Microsecond).String(),
		Reference: entry.Value,
		Minimum:   server.NewMinimumView(m),
	}
	if history != nil {
		out.History = history.All()
	}

	w := cmd.OutOrStdout()
	if o.asJSON {
		err = writeJSON(w, out)
	} else {
		err = printOutcome(w, out)
	}
	if err != nil {
		return err
	}

	switch m := m.(type) {
	case *solver.SolverError:
		return m
	case solver.NoSolution, *solver.NoSolution:
		return fmt.Errorf("%s found no solution", backend)
	}
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printOutcome(w io.Writer, out solveOutput) error {
	fmt.Fprintf(w, "%s with %s: %s in %s\n", out.Problem, out.Backend, out.Status, out.Elapsed)
	if m := out.Minimum; m != nil {
		if m.X != nil {
			fmt.Fprintf(w, "  x:          %v\n", m.X)
		}
		if m.Value != nil {
			fmt.Fprintf(w, "  f(x):       %g (reference %g)\n", *m.Value, out.Reference)
		}
		if len(m.Constraints) > 0 {
			fmt.Fprintf(w, "  g(x):       %v\n", m.Constraints)
		}
		fmt.Fprintf(w, "  iterations: %d\n", m.Iterations)
		if m.Error != "" {
			fmt.Fprintf(w, "  error:      %s\n", m.Error)
		}
		for _, warning := range m.Warnings {
			fmt.Fprintf(w, "  warning:    %s\n", warning)
		}
	}
	if len(out.History) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ITERATION\tVALUE\tMAX VIOLATION\t")
	for _, st := range out.History {
		fmt.Fprintf(tw, "%d\t%.6g\t%.3g\t\n", st.Iteration, st.Value, st.MaxViolation())
	}
	return tw.Flush()
}
