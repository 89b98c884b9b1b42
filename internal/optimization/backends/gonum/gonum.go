// Package gonum adapts the local minimizers of gonum.org/v1/gonum/optimize
// to the solver backend interface. The adapters handle unconstrained
// problems; argument bounds are enforced by clamping every point before it
// is evaluated.
package gonum

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/backends"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/cache"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/function"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/problem"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
)

// Parameters shared by the gonum backends.
const (
	ParamGradientThreshold  = "gonum.gradient-threshold"
	ParamFunctionTolerance  = "gonum.function-tolerance"
	ParamFunctionIterations = "gonum.function-iterations"

	DefaultGradientThreshold  = 1e-10
	DefaultFunctionTolerance  = 1e-12
	DefaultFunctionIterations = 100
)

type method struct {
	// level is the lowest objective level the method can work with without
	// finite differences.
	level function.Level
	new   func() optimize.Method
}

var methods = map[string]method{
	"gonum-bfgs": {
		level: function.Differentiable,
		new:   func() optimize.Method { return &optimize.BFGS{} },
	},
	"gonum-lbfgs": {
		level: function.Differentiable,
		new:   func() optimize.Method { return &optimize.LBFGS{} },
	},
	"gonum-gradient-descent": {
		level: function.Differentiable,
		new:   func() optimize.Method { return &optimize.GradientDescent{} },
	},
	"gonum-newton": {
		level: function.TwiceDifferentiable,
		new:   func() optimize.Method { return &optimize.Newton{} },
	},
	"gonum-nelder-mead": {
		level: function.ValueOnly,
		new:   func() optimize.Method { return &optimize.NelderMead{} },
	},
}

func init() {
	for _, name := range Names() {
		solver.MustRegister(name, Constructor(name))
	}
}

// Names returns the registered backend names, sorted.
func Names() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Constructor returns the constructor of the named backend, or nil.
func Constructor(name string) solver.Constructor {
	m, ok := methods[name]
	if !ok {
		return nil
	}
	return func(p *problem.Problem) (solver.Backend, error) {
		b, err := newBackend(name, m, p)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// Backend runs one gonum method.
type Backend struct {
	name      string
	method    method
	problem   *problem.Problem
	objective function.Function
}

func newBackend(name string, m method, p *problem.Problem) (*Backend, error) {
	const op = "gonum.New"
	if n := p.NumConstraints(); n > 0 {
		return nil, optimization.WrapErrorf(optimization.ErrUnsupportedOperation,
			"%s handles unconstrained problems only, got %d constraints", name, n).WithOperation(op)
	}
	f := p.Objective()
	if m.level == function.TwiceDifferentiable && f.Level() < function.TwiceDifferentiable {
		return nil, optimization.Unsupported(op, f.Name(), fmt.Sprintf("%s needs hessians, objective is %s", name, f.Level()))
	}
	return &Backend{name: name, method: m, problem: p, objective: f}, nil
}

// DefaultParameters implements solver.ParameterDeclarer.
func (b *Backend) DefaultParameters() solver.Parameters {
	params := backends.CommonParameters()
	params[ParamGradientThreshold] = solver.Parameter{Value: DefaultGradientThreshold, Description: "gradient norm at which the method stops"}
	params[ParamFunctionTolerance] = solver.Parameter{Value: DefaultFunctionTolerance, Description: "absolute objective change regarded as no progress"}
	params[ParamFunctionIterations] = solver.Parameter{Value: DefaultFunctionIterations, Description: "iterations without progress before the method stops"}
	return params
}

// Solve runs the method through optimize.Minimize. Every major iteration of
// the method is reported to the run.
func (b *Backend) Solve(run *solver.Run) solver.Minimum {
	settings, err := b.settings(run)
	if err != nil {
		return run.Fail("reading parameters", err)
	}
	objective := b.objective
	if b.method.level == function.Differentiable {
		if objective, err = backends.Differentiable(run, objective); err != nil {
			return run.Fail("reading parameters", err)
		}
	}
	f, err := backends.NewCache(run, objective)
	if err != nil {
		return run.Fail("creating evaluation cache", err)
	}

	e := &evaluator{f: f, bounds: b.problem.ArgumentBounds(), value: make([]float64, 1), x: make([]float64, f.InputSize())}
	rec := &recorder{run: run, e: e}
	settings.Recorder = rec

	start := b.problem.StartingPoint()
	backends.Project(start, e.bounds)
	result, err := optimize.Minimize(e.optimizeProblem(b.method.level), start, settings, b.method.new())

	stats := f.Stats()
	run.Logger().Debug("gonum method finished", zap.String("method", b.name), zap.Error(err),
		zap.Uint64("cache_hits", stats.Hits), zap.Uint64("cache_misses", stats.Misses))

	switch {
	case rec.abort != nil:
		return run.Fail("iteration interrupted", rec.abort)
	case e.err != nil:
		return run.Fail("evaluating objective", e.err)
	case result == nil:
		return run.Fail(fmt.Sprintf("%s failed", b.name), err)
	case result.Status == optimize.Failure:
		return run.Fail(fmt.Sprintf("%s failed", b.name), err)
	}

	x := append([]float64(nil), result.X...)
	backends.Project(x, e.bounds)
	if err := f.Evaluate(e.value, x); err != nil {
		return run.Fail("evaluating objective", err)
	}
	r, rerr := run.Result(x, e.value[0])
	if rerr != nil {
		return run.Fail("evaluating constraints", rerr)
	}
	if err != nil || result.Status.Early() {
		msg := fmt.Sprintf("%s stopped before convergence: %v", b.name, result.Status)
		if err != nil {
			msg = fmt.Sprintf("%s stopped before convergence: %v", b.name, err)
		}
		return run.Warn(r, msg)
	}
	return r
}

func (b *Backend) settings(run *solver.Run) (*optimize.Settings, error) {
	params := run.Parameters()
	limit, err := run.MaxIterations()
	if err != nil {
		return nil, err
	}
	grad, err := params.Float(ParamGradientThreshold, DefaultGradientThreshold)
	if err != nil {
		return nil, err
	}
	ftol, err := params.Float(ParamFunctionTolerance, DefaultFunctionTolerance)
	if err != nil {
		return nil, err
	}
	fiter, err := params.Int(ParamFunctionIterations, DefaultFunctionIterations)
	if err != nil {
		return nil, err
	}
	return &optimize.Settings{
		GradientThreshold: grad,
		MajorIterations:   limit,
		Converger: &optimize.FunctionConverge{
			Absolute:   ftol,
			Iterations: fiter,
		},
	}, nil
}

// evaluator routes the evaluations of a method through the cache. The
// optimize.Problem callbacks cannot fail, so the first error is kept and
// reported through Status.
type evaluator struct {
	f      *cache.Cache
	bounds []problem.Interval
	x      []float64
	value  []float64
	err    error
}

func (e *evaluator) clamp(x []float64) []float64 {
	copy(e.x, x)
	backends.Project(e.x, e.bounds)
	return e.x
}

func (e *evaluator) optimizeProblem(level function.Level) optimize.Problem {
	p := optimize.Problem{
		Func: func(x []float64) float64 {
			if err := e.f.Evaluate(e.value, e.clamp(x)); err != nil {
				e.fail(err)
			}
			return e.value[0]
		},
		Status: func() (optimize.Status, error) {
			if e.err != nil {
				return optimize.Failure, e.err
			}
			return optimize.NotTerminated, nil
		},
	}
	if level >= function.Differentiable {
		p.Grad = func(grad, x []float64) {
			if err := e.f.Gradient(grad, e.clamp(x), 0); err != nil {
				e.fail(err)
			}
		}
	}
	if level >= function.TwiceDifferentiable {
		p.Hess = func(hess *mat.SymDense, x []float64) {
			if err := e.f.Hessian(hess, e.clamp(x), 0); err != nil {
				e.fail(err)
			}
		}
	}
	return p
}

func (e *evaluator) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// recorder reports major iterations to the run.
type recorder struct {
	run   *solver.Run
	e     *evaluator
	abort error
}

func (r *recorder) Init() error { return nil }

func (r *recorder) Record(loc *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	if op&optimize.MajorIteration == 0 {
		return nil
	}
	x := r.e.clamp(loc.X)
	if err := r.run.Iterate(x, loc.F, nil); err != nil {
		r.abort = err
		return err
	}
	return nil
}
