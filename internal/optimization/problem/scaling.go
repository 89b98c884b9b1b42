package problem

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/function"
)

// SuggestScaling samples the gradients of the objective and of every
// constraint output and returns, for each variable, the inverse of the
// largest absolute partial derivative seen. Variables whose derivatives stay
// zero or non-finite keep a scale of 1. The result can be passed to
// SetArgumentScaling.
//
// The starting point is always the first sample; the others are drawn
// uniformly within the argument bounds, one unit around the starting point
// on unbounded sides. Value-only functions are differentiated numerically.
func SuggestScaling(p *Problem, samples int) ([]float64, error) {
	const op = "problem.SuggestScaling"
	if samples < 1 {
		return nil, optimization.NewErrorf("samples must be positive, got %d", samples).WithOperation(op)
	}
	n := p.InputSize()
	start := p.StartingPoint()
	if len(start) != n {
		return nil, optimization.DimensionMismatch(op, "starting point", len(start), n)
	}
	if len(p.argumentBounds) != n {
		return nil, optimization.DimensionMismatch(op, "argument bounds", len(p.argumentBounds), n)
	}

	fs := []function.Function{p.objective}
	for _, c := range p.constraints {
		fs = append(fs, c.Function)
	}
	for i, f := range fs {
		if f.Level() >= function.Differentiable {
			continue
		}
		fd, err := function.FiniteDifference(f)
		if err != nil {
			return nil, optimization.WrapError(err, "differentiating").WithOperation(op)
		}
		fs[i] = fd
	}

	dists := make([]distuv.Uniform, n)
	for j, b := range p.argumentBounds {
		x := b.Clamp(start[j])
		lo, hi := b.Lower, b.Upper
		if math.IsInf(lo, -1) {
			lo = x - 1
		}
		if math.IsInf(hi, 1) {
			hi = x + 1
		}
		dists[j] = distuv.Uniform{Min: lo, Max: hi}
	}

	largest := make([]float64, n)
	x := append([]float64(nil), start...)
	grad := make([]float64, n)
	for s := 0; s < samples; s++ {
		if s > 0 {
			for j := range x {
				x[j] = dists[j].Rand()
			}
		}
		for _, f := range fs {
			for i := 0; i < f.OutputSize(); i++ {
				if err := f.Gradient(grad, x, i); err != nil {
					return nil, optimization.WrapErrorf(err, "gradient of %s at sample %d", f.Name(), s).WithOperation(op)
				}
				for j, g := range grad {
					if g = math.Abs(g); g > largest[j] && !math.IsInf(g, 1) {
						largest[j] = g
					}
				}
			}
		}
	}

	scaling := ones(n)
	for j, g := range largest {
		if g > 0 {
			scaling[j] = 1 / g
		}
	}
	return scaling, nil
}
