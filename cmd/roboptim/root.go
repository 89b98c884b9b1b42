package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhichaoleo/roboptim-core/internal/config"
	"github.com/zhichaoleo/roboptim-core/internal/logging"
)

var version = "0.1.0"

// app holds what every subcommand shares once the root command ran its
// pre-run hook.
type app struct {
	logLevel  string
	logFormat string
	logOutput string

	cfg    *config.Config
	logger *logging.Logger
	zap    *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "roboptim",
		Short: "Solve nonlinear optimization problems from the problem catalog",
		Long: `roboptim runs the registered solver backends against the built-in
problem catalog. Solver defaults come from the SOLVER_* environment
variables also read by the server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, zl, err := logging.NewZap(&logging.Config{
				Level:  a.logLevel,
				Format: a.logFormat,
				Output: a.logOutput,
			})
			if err != nil {
				return err
			}
			a.cfg, a.logger, a.zap = cfg, logger, zl
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.zap != nil {
				_ = a.zap.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "Log format (json, text)")
	cmd.PersistentFlags().StringVar(&a.logOutput, "log-output", "stderr", "Log destination (stdout, stderr or a file path)")

	cmd.AddCommand(
		newBackendsCmd(a),
		newProblemsCmd(a),
		newSolveCmd(a),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("roboptim version %s\n", version)
		},
	}
}
