// Package callback provides ready-made observers for the solver callback
// chain.
package callback

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
)

// Func adapts a pair of functions to solver.SolveEndObserver. Either may be
// nil.
func Func(onIteration func(*solver.State) error, onEnd func(solver.Minimum) error) solver.SolveEndObserver {
	return funcObserver{onIteration: onIteration, onEnd: onEnd}
}

type funcObserver struct {
	onIteration func(*solver.State) error
	onEnd       func(solver.Minimum) error
}

func (f funcObserver) OnIterationEnd(state *solver.State) error {
	if f.onIteration == nil {
		return nil
	}
	return f.onIteration(state)
}

func (f funcObserver) OnSolveEnd(m solver.Minimum) error {
	if f.onEnd == nil {
		return nil
	}
	return f.onEnd(m)
}

// Cancel aborts the solve at the end of the first iteration after ctx is
// done.
func Cancel(ctx context.Context) solver.Observer {
	return solver.ObserverFunc(func(*solver.State) error {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", solver.ErrAbort, context.Cause(ctx))
		default:
			return nil
		}
	})
}

// MaxValue aborts once the objective exceeds limit, which usually means the
// iterates diverge.
func MaxValue(limit float64) solver.Observer {
	return solver.ObserverFunc(func(state *solver.State) error {
		if state.Value > limit {
			return fmt.Errorf("%w: objective %g exceeds %g at iteration %d", solver.ErrAbort, state.Value, limit, state.Iteration)
		}
		return nil
	})
}

// Logger logs iterations and the final outcome.
type Logger struct {
	logger *zap.Logger
	every  int
}

// NewLogger logs every n-th iteration at debug level; n below one means every
// iteration.
func NewLogger(logger *zap.Logger, every int) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if every < 1 {
		every = 1
	}
	return &Logger{logger: logger, every: every}
}

// OnIterationEnd logs state.
func (l *Logger) OnIterationEnd(state *solver.State) error {
	if state.Iteration%l.every != 0 {
		return nil
	}
	if ce := l.logger.Check(zap.DebugLevel, "iteration"); ce != nil {
		ce.Write(
			zap.Int("iteration", state.Iteration),
			zap.Float64("value", state.Value),
			zap.Float64s("x", state.X),
			zap.Float64("max_violation", state.MaxViolation()),
		)
	}
	return nil
}

// OnSolveEnd logs the outcome.
func (l *Logger) OnSolveEnd(m solver.Minimum) error {
	switch v := m.(type) {
	case *solver.Result:
		l.logger.Info("solution found", zap.Float64s("x", v.X), zap.Float64("value", v.Value), zap.Int("iterations", v.Iterations))
	case *solver.ResultWithWarnings:
		l.logger.Warn("solution found with warnings", zap.Float64s("x", v.X), zap.Float64("value", v.Value), zap.Int("warnings", len(v.Warnings)))
	case *solver.SolverError:
		l.logger.Error("solve failed", zap.Error(v))
	default:
		l.logger.Warn("no solution")
	}
	return nil
}
