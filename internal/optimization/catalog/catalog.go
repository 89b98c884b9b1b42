// Package catalog lists benchmark problems with known solutions. Most
// objectives come from gonum.org/v1/gonum/optimize/functions; hs071 is the
// constrained problem 71 of the Hock-Schittkowski collection.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/functions"

	"github.com/zhichaoleo/roboptim-core/internal/optimization/function"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/problem"
)

// ErrUnknownProblem reports a name that is not in the catalog.
var ErrUnknownProblem = errors.New("unknown problem")

// Entry describes one benchmark problem. Solution is a known minimizer, nil
// when only the optimal value is published.
type Entry struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Dimension   int            `json:"dimension"`
	Start       []float64      `json:"start"`
	Solution    []float64      `json:"solution,omitempty"`
	Value       float64        `json:"value"`
	Constrained bool           `json:"constrained"`
	Level       function.Level `json:"-"`

	build func() (*problem.Problem, error)
}

// Problem builds a fresh problem with the catalog starting point.
func (e Entry) Problem() (*problem.Problem, error) {
	p, err := e.build()
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", e.Name, err)
	}
	if err := p.SetStartingPoint(e.Start); err != nil {
		return nil, err
	}
	return p, nil
}

var entries = map[string]Entry{}

func register(e Entry) {
	if _, dup := entries[e.Name]; dup {
		panic("catalog: duplicate problem " + e.Name)
	}
	entries[e.Name] = e
}

// Lookup returns the named entry.
func Lookup(name string) (Entry, error) {
	e, ok := entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w %q (available: %s)", ErrUnknownProblem, name, strings.Join(Names(), ", "))
	}
	return e, nil
}

// Names returns the problem names, sorted.
func Names() []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every entry, sorted by name.
func All() []Entry {
	out := make([]Entry, 0, len(entries))
	for _, name := range Names() {
		out = append(out, entries[name])
	}
	return out
}

type gonumObjective struct {
	fn   func(x []float64) float64
	grad func(grad, x []float64)
	hess func(dst *mat.SymDense, x []float64)
}

func (g gonumObjective) function(name string, n int) (*function.Func, error) {
	fs := function.Funcs{
		Compute: func(dst, x []float64) { dst[0] = g.fn(x) },
	}
	if g.grad != nil {
		fs.Gradient = func(dst, x []float64, _ int) { g.grad(dst, x) }
	}
	if g.hess != nil {
		fs.Hessian = func(dst *mat.SymDense, x []float64, _ int) { g.hess(dst, x) }
	}
	return function.FromFuncs(name, n, 1, fs)
}

func unconstrained(e Entry, obj gonumObjective) Entry {
	e.Dimension = len(e.Start)
	switch {
	case obj.hess != nil:
		e.Level = function.TwiceDifferentiable
	case obj.grad != nil:
		e.Level = function.Differentiable
	default:
		e.Level = function.ValueOnly
	}
	e.build = func() (*problem.Problem, error) {
		f, err := obj.function(e.Name, e.Dimension)
		if err != nil {
			return nil, err
		}
		return problem.New(f)
	}
	return e
}

func init() {
	register(unconstrained(Entry{
		Name:        "sphere",
		Description: "sum of squares, the smoke test of every backend",
		Start:       []float64{3, 3, 3},
		Solution:    []float64{0, 0, 0},
	}, gonumObjective{
		fn: func(x []float64) float64 {
			var s float64
			for _, v := range x {
				s += v * v
			}
			return s
		},
		grad: func(grad, x []float64) {
			for i, v := range x {
				grad[i] = 2 * v
			}
		},
		hess: func(dst *mat.SymDense, x []float64) {
			for i := range x {
				dst.SetSym(i, i, 2)
			}
		},
	}))
	register(unconstrained(Entry{
		Name:        "rosenbrock",
		Description: "Rosenbrock's banana valley",
		Start:       []float64{-1.2, 1},
		Solution:    []float64{1, 1},
	}, gonumObjective{fn: functions.ExtendedRosenbrock{}.Func, grad: functions.ExtendedRosenbrock{}.Grad}))
	register(unconstrained(Entry{
		Name:        "beale",
		Description: "Beale's function",
		Start:       []float64{1, 1},
		Solution:    []float64{3, 0.5},
	}, gonumObjective{fn: functions.Beale{}.Func, grad: functions.Beale{}.Grad, hess: functions.Beale{}.Hess}))
	register(unconstrained(Entry{
		Name:        "wood",
		Description: "Wood's four-variable function",
		Start:       []float64{-3, -1, -3, -1},
		Solution:    []float64{1, 1, 1, 1},
	}, gonumObjective{fn: functions.Wood{}.Func, grad: functions.Wood{}.Grad, hess: functions.Wood{}.Hess}))
	register(unconstrained(Entry{
		Name:        "brown-badly-scaled",
		Description: "Brown's badly scaled function",
		Start:       []float64{1, 1},
		Solution:    []float64{1e6, 2e-6},
	}, gonumObjective{fn: functions.BrownBadlyScaled{}.Func, grad: functions.BrownBadlyScaled{}.Grad, hess: functions.BrownBadlyScaled{}.Hess}))
	register(unconstrained(Entry{
		Name:        "powell-badly-scaled",
		Description: "Powell's badly scaled function",
		Start:       []float64{0, 1},
		Solution:    []float64{1.09815932969975976e-05, 9.10614673986700218},
	}, gonumObjective{fn: functions.PowellBadlyScaled{}.Func, grad: functions.PowellBadlyScaled{}.Grad, hess: functions.PowellBadlyScaled{}.Hess}))
	register(unconstrained(Entry{
		Name:        "watson",
		Description: "Watson's function in six variables",
		Start:       make([]float64, 6),
		Value:       2.287670053552e-03,
	}, gonumObjective{fn: functions.Watson{}.Func, grad: functions.Watson{}.Grad, hess: functions.Watson{}.Hess}))
	register(unconstrained(Entry{
		Name:        "beale-value-only",
		Description: "Beale's function without derivatives",
		Start:       []float64{1, 1},
		Solution:    []float64{3, 0.5},
	}, gonumObjective{fn: functions.Beale{}.Func}))
	register(hs071())
}

// hs071 is
//
//	min  x0·x3·(x0+x1+x2) + x2
//	s.t. x0·x1·x2·x3 ≥ 25
//	     x0² + x1² + x2² + x3² = 40
//	     1 ≤ xi ≤ 5
func hs071() Entry {
	e := Entry{
		Name:        "hs071",
		Description: "Hock-Schittkowski problem 71, nonlinear constraints and bounds",
		Dimension:   4,
		Start:       []float64{1, 5, 5, 1},
		Solution:    []float64{1, 4.742999637, 3.821149984, 1.379408293},
		Value:       17.0140172891,
		Constrained: true,
		Level:       function.Differentiable,
	}
	e.build = func() (*problem.Problem, error) {
		objective, err := function.FromFuncs("hs071", 4, 1, function.Funcs{
			Compute: func(dst, x []float64) {
				dst[0] = x[0]*x[3]*(x[0]+x[1]+x[2]) + x[2]
			},
			Gradient: func(dst, x []float64, _ int) {
				dst[0] = x[3] * (2*x[0] + x[1] + x[2])
				dst[1] = x[0] * x[3]
				dst[2] = x[0]*x[3] + 1
				dst[3] = x[0] * (x[0] + x[1] + x[2])
			},
		})
		if err != nil {
			return nil, err
		}
		product, err := function.FromFuncs("product", 4, 1, function.Funcs{
			Compute: func(dst, x []float64) { dst[0] = x[0] * x[1] * x[2] * x[3] },
			Gradient: func(dst, x []float64, _ int) {
				dst[0] = x[1] * x[2] * x[3]
				dst[1] = x[0] * x[2] * x[3]
				dst[2] = x[0] * x[1] * x[3]
				dst[3] = x[0] * x[1] * x[2]
			},
		})
		if err != nil {
			return nil, err
		}
		norm, err := function.FromFuncs("squared norm", 4, 1, function.Funcs{
			Compute: func(dst, x []float64) {
				dst[0] = x[0]*x[0] + x[1]*x[1] + x[2]*x[2] + x[3]*x[3]
			},
			Gradient: func(dst, x []float64, _ int) {
				for i, v := range x {
					dst[i] = 2 * v
				}
			},
		})
		if err != nil {
			return nil, err
		}

		p, err := problem.New(objective)
		if err != nil {
			return nil, err
		}
		bounds := make([]problem.Interval, 4)
		for i := range bounds {
			bounds[i] = problem.Bounded(1, 5)
		}
		if err := p.SetArgumentBounds(bounds); err != nil {
			return nil, err
		}
		if err := p.SetArgumentNames([]string{"x0", "x1", "x2", "x3"}); err != nil {
			return nil, err
		}
		if _, err := p.AddConstraint(product, []problem.Interval{problem.LowerBounded(25)}, nil); err != nil {
			return nil, err
		}
		if _, err := p.AddConstraint(norm, []problem.Interval{problem.Equal(40)}, nil); err != nil {
			return nil, err
		}
		return p, nil
	}
	return e
}
