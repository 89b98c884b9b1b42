// Package dummy provides two reference backends. "dummy" is a projected
// fixed-step gradient descent, slow but predictable, used to exercise the
// solver machinery end to end. "null" never solves anything and fails with
// the last reported iterate.
package dummy

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/zhichaoleo/roboptim-core/internal/optimization/backends"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/function"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/problem"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
)

// Registered backend names.
const (
	Name     = "dummy"
	NullName = "null"
)

// Parameters of the dummy backend.
const (
	ParamStep      = "dummy.step"
	ParamTolerance = "dummy.tolerance"

	DefaultStep      = 0.1
	DefaultTolerance = 1e-6
)

func init() {
	solver.MustRegister(Name, New)
	solver.MustRegister(NullName, NewNull)
}

// Descent is the dummy backend.
type Descent struct {
	problem   *problem.Problem
	objective function.Function
}

// New builds the dummy backend for p. Objectives without gradients are
// differentiated numerically when solving.
func New(p *problem.Problem) (solver.Backend, error) {
	return &Descent{problem: p, objective: p.Objective()}, nil
}

// DefaultParameters implements solver.ParameterDeclarer.
func (d *Descent) DefaultParameters() solver.Parameters {
	params := backends.CommonParameters()
	params[ParamStep] = solver.Parameter{Value: DefaultStep, Description: "gradient step length"}
	params[ParamTolerance] = solver.Parameter{Value: DefaultTolerance, Description: "projected gradient norm at which the descent stops"}
	return params
}

// Solve runs x ← P(x - step·s∘∇f(x)) from the starting point, where P
// projects onto the argument bounds and s is the argument scaling.
func (d *Descent) Solve(run *solver.Run) solver.Minimum {
	params := run.Parameters()
	step, err := params.Float(ParamStep, DefaultStep)
	if err != nil {
		return run.Fail("reading parameters", err)
	}
	tol, err := params.Float(ParamTolerance, DefaultTolerance)
	if err != nil {
		return run.Fail("reading parameters", err)
	}
	limit, err := run.MaxIterations()
	if err != nil {
		return run.Fail("reading parameters", err)
	}
	if step <= 0 || math.IsNaN(step) {
		return run.Fail("reading parameters", fmt.Errorf("%w: %s must be positive, got %g", solver.ErrInvalidParameter, ParamStep, step))
	}

	objective, err := backends.Differentiable(run, d.objective)
	if err != nil {
		return run.Fail("reading parameters", err)
	}
	f, err := backends.NewCache(run, objective)
	if err != nil {
		return run.Fail("creating evaluation cache", err)
	}
	bounds := d.problem.ArgumentBounds()
	scaling := d.problem.ArgumentScaling()

	x := d.problem.StartingPoint()
	backends.Project(x, bounds)
	next := make([]float64, len(x))
	grad := make([]float64, len(x))
	value := make([]float64, 1)

	converged := false
	for run.Iterations() < limit {
		if err := f.Gradient(grad, x, 0); err != nil {
			return run.Fail("evaluating gradient", err)
		}
		for i := range next {
			next[i] = bounds[i].Clamp(x[i] - step*scaling[i]*grad[i])
		}
		// Projected gradient: the step actually taken, per unit of step.
		if floats.Distance(next, x, 2)/step < tol {
			converged = true
			break
		}
		copy(x, next)

		if err := f.Evaluate(value, x); err != nil {
			return run.Fail("evaluating objective", err)
		}
		violation, err := d.problem.ConstraintViolation(x)
		if err != nil {
			return run.Fail("evaluating constraints", err)
		}
		if err := run.Iterate(x, value[0], violation); err != nil {
			return run.Fail("iteration interrupted", err)
		}
	}

	if err := f.Evaluate(value, x); err != nil {
		return run.Fail("evaluating objective", err)
	}
	result, err := run.Result(x, value[0])
	if err != nil {
		return run.Fail("evaluating constraints", err)
	}
	stats := f.Stats()
	run.Logger().Debug("descent finished", zap.Bool("converged", converged),
		zap.Uint64("cache_hits", stats.Hits), zap.Uint64("cache_misses", stats.Misses))

	if !converged {
		return run.Warn(result, fmt.Sprintf("maximum number of iterations reached (%d)", limit))
	}
	violation, err := d.problem.ConstraintViolation(x)
	if err != nil {
		return run.Fail("evaluating constraints", err)
	}
	if worst := floats.Max(append(violation, 0)); worst > tol {
		return run.Warn(result, fmt.Sprintf("constraints violated at the solution (max violation %g)", worst))
	}
	return result
}

// Null is the null backend.
type Null struct {
	objective function.Function
	start     []float64
}

// NewNull builds the null backend for p.
func NewNull(p *problem.Problem) (solver.Backend, error) {
	return &Null{objective: p.Objective(), start: p.StartingPoint()}, nil
}

// Solve reports the starting point as the only iterate and fails.
func (n *Null) Solve(run *solver.Run) solver.Minimum {
	value, err := function.ScalarValue(n.objective, n.start)
	if err != nil {
		return run.Fail("evaluating objective", err)
	}
	if err := run.Iterate(n.start, value, nil); err != nil {
		return run.Fail("iteration interrupted", err)
	}
	return run.Fail("the null solver never solves", nil)
}
