package function

import (
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
)

// SumOfSquares returns the scalar function Σ_k Σ_i f_k,i(x)² over every
// output of every input function. Its gradient is Σ 2·f_k,i(x)·∇f_k,i(x), so
// each input must be at least Differentiable. When every input is twice
// differentiable the result also provides the hessian
// Σ 2·(∇f_k,i ∇f_k,iᵀ + f_k,i ∇²f_k,i).
func SumOfSquares(fs ...Function) (*Func, error) {
	const op = "function.SumOfSquares"
	if len(fs) == 0 {
		return nil, optimization.NewError("at least one function is required").WithOperation(op)
	}

	n := fs[0].InputSize()
	level := TwiceDifferentiable
	names := make([]string, len(fs))
	for k, f := range fs {
		if f.Level() < Differentiable {
			return nil, optimization.Unsupported(op, f.Name(), "a sum of squares needs differentiable components, got "+f.Level().String())
		}
		if f.InputSize() != n {
			return nil, optimization.DimensionMismatch(op, f.Name()+" argument", f.InputSize(), n)
		}
		level = minLevel(level, f.Level())
		names[k] = f.Name()
	}

	s := &sumOfSquares{fs: fs, n: n}
	h := hooks{
		compute:  s.compute,
		gradient: s.gradient,
	}
	if level >= TwiceDifferentiable {
		h.hessian = s.hessian
	}
	return build("sum of squares("+strings.Join(names, ", ")+")", n, 1, h)
}

type sumOfSquares struct {
	fs []Function
	n  int
}

func (s *sumOfSquares) compute(dst, x []float64) error {
	if err := optimization.CheckAllocation("SumOfSquares.Evaluate"); err != nil {
		return err
	}
	for _, f := range s.fs {
		y := make([]float64, f.OutputSize())
		if err := f.Evaluate(y, x); err != nil {
			return err
		}
		dst[0] += floats.Dot(y, y)
	}
	return nil
}

func (s *sumOfSquares) gradient(dst, x []float64, _ int) error {
	if err := optimization.CheckAllocation("SumOfSquares.Gradient"); err != nil {
		return err
	}
	for _, f := range s.fs {
		y, jac, err := s.valueAndJacobian(f, x)
		if err != nil {
			return err
		}
		for i, yi := range y {
			floats.AddScaled(dst, 2*yi, jac.RawRowView(i))
		}
	}
	return nil
}

func (s *sumOfSquares) hessian(dst *mat.SymDense, x []float64, _ int) error {
	if err := optimization.CheckAllocation("SumOfSquares.Hessian"); err != nil {
		return err
	}
	component := mat.NewSymDense(s.n, nil)
	for _, f := range s.fs {
		y, jac, err := s.valueAndJacobian(f, x)
		if err != nil {
			return err
		}
		for i, yi := range y {
			if err := f.Hessian(component, x, i); err != nil {
				return err
			}
			g := jac.RawRowView(i)
			for a := 0; a < s.n; a++ {
				for b := a; b < s.n; b++ {
					dst.SetSym(a, b, dst.At(a, b)+2*(g[a]*g[b]+yi*component.At(a, b)))
				}
			}
		}
	}
	return nil
}

func (s *sumOfSquares) valueAndJacobian(f Function, x []float64) ([]float64, *mat.Dense, error) {
	y := make([]float64, f.OutputSize())
	if err := f.Evaluate(y, x); err != nil {
		return nil, nil, err
	}
	jac := mat.NewDense(f.OutputSize(), s.n, nil)
	if err := f.Jacobian(jac, x); err != nil {
		return nil, nil, err
	}
	return y, jac, nil
}
