package function

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
)

// Combinators keep the level of their input, capped at TwiceDifferentiable.

// Scale returns k·f.
func Scale(f Function, k float64) (*Func, error) {
	level := minLevel(f.Level(), TwiceDifferentiable)
	h := hooks{
		compute: func(dst, x []float64) error {
			if err := f.Evaluate(dst, x); err != nil {
				return err
			}
			floats.Scale(k, dst)
			return nil
		},
	}
	if level >= Differentiable {
		h.gradient = func(dst, x []float64, index int) error {
			if err := f.Gradient(dst, x, index); err != nil {
				return err
			}
			floats.Scale(k, dst)
			return nil
		}
		h.jacobian = func(dst *mat.Dense, x []float64) error {
			if err := f.Jacobian(dst, x); err != nil {
				return err
			}
			dst.Scale(k, dst)
			return nil
		}
	}
	if level >= TwiceDifferentiable {
		h.hessian = func(dst *mat.SymDense, x []float64, index int) error {
			if err := f.Hessian(dst, x, index); err != nil {
				return err
			}
			dst.ScaleSym(k, dst)
			return nil
		}
	}
	return build(fmt.Sprintf("%g * %s", k, f.Name()), f.InputSize(), f.OutputSize(), h)
}

// Select returns the outputs [start, start+size) of f.
func Select(f Function, start, size int) (*Func, error) {
	const op = "function.Select"
	m := f.OutputSize()
	if start < 0 || size < 1 || start+size > m {
		return nil, optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"selection [%d, %d) outside of [0, %d)", start, start+size, m).WithOperation(op).WithComponent(f.Name())
	}
	level := minLevel(f.Level(), TwiceDifferentiable)
	h := hooks{
		compute: func(dst, x []float64) error {
			if err := optimization.CheckAllocation("Select.Evaluate"); err != nil {
				return err
			}
			full := make([]float64, m)
			if err := f.Evaluate(full, x); err != nil {
				return err
			}
			copy(dst, full[start:start+size])
			return nil
		},
	}
	if level >= Differentiable {
		h.gradient = func(dst, x []float64, index int) error {
			return f.Gradient(dst, x, start+index)
		}
	}
	if level >= TwiceDifferentiable {
		h.hessian = func(dst *mat.SymDense, x []float64, index int) error {
			return f.Hessian(dst, x, start+index)
		}
	}
	return build(fmt.Sprintf("%s[%d:%d]", f.Name(), start, start+size), f.InputSize(), size, h)
}

// SelectByID returns the outputs of f whose mask entry is set, in order.
func SelectByID(f Function, mask []bool) (*Func, error) {
	const op = "function.SelectByID"
	m := f.OutputSize()
	if len(mask) != m {
		return nil, optimization.DimensionMismatch(op, "mask", len(mask), m).WithComponent(f.Name())
	}
	var ids []int
	for i, keep := range mask {
		if keep {
			ids = append(ids, i)
		}
	}
	if len(ids) == 0 {
		return nil, optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"mask selects no output").WithOperation(op).WithComponent(f.Name())
	}

	level := minLevel(f.Level(), TwiceDifferentiable)
	h := hooks{
		compute: func(dst, x []float64) error {
			if err := optimization.CheckAllocation("SelectByID.Evaluate"); err != nil {
				return err
			}
			full := make([]float64, m)
			if err := f.Evaluate(full, x); err != nil {
				return err
			}
			for k, id := range ids {
				dst[k] = full[id]
			}
			return nil
		},
	}
	if level >= Differentiable {
		h.gradient = func(dst, x []float64, index int) error {
			return f.Gradient(dst, x, ids[index])
		}
	}
	if level >= TwiceDifferentiable {
		h.hessian = func(dst *mat.SymDense, x []float64, index int) error {
			return f.Hessian(dst, x, ids[index])
		}
	}
	return build(fmt.Sprintf("%s%v", f.Name(), ids), f.InputSize(), len(ids), h)
}

// Split returns the single output index of f.
func Split(f Function, index int) (*Func, error) {
	return Select(f, index, 1)
}

// Sin returns the elementwise sine of the outputs of f.
func Sin(f Function) (*Func, error) {
	n, m := f.InputSize(), f.OutputSize()
	level := minLevel(f.Level(), TwiceDifferentiable)
	h := hooks{
		compute: func(dst, x []float64) error {
			if err := f.Evaluate(dst, x); err != nil {
				return err
			}
			for i, v := range dst {
				dst[i] = math.Sin(v)
			}
			return nil
		},
	}
	outputAt := func(x []float64, index int) (float64, error) {
		if err := optimization.CheckAllocation("Sin"); err != nil {
			return 0, err
		}
		y := make([]float64, m)
		if err := f.Evaluate(y, x); err != nil {
			return 0, err
		}
		return y[index], nil
	}
	if level >= Differentiable {
		h.gradient = func(dst, x []float64, index int) error {
			y, err := outputAt(x, index)
			if err != nil {
				return err
			}
			if err := f.Gradient(dst, x, index); err != nil {
				return err
			}
			floats.Scale(math.Cos(y), dst)
			return nil
		}
	}
	if level >= TwiceDifferentiable {
		h.hessian = func(dst *mat.SymDense, x []float64, index int) error {
			y, err := outputAt(x, index)
			if err != nil {
				return err
			}
			g := make([]float64, n)
			if err := f.Gradient(g, x, index); err != nil {
				return err
			}
			if err := f.Hessian(dst, x, index); err != nil {
				return err
			}
			dst.ScaleSym(math.Cos(y), dst)
			s := math.Sin(y)
			for a := 0; a < n; a++ {
				for b := a; b < n; b++ {
					dst.SetSym(a, b, dst.At(a, b)-s*g[a]*g[b])
				}
			}
			return nil
		}
	}
	return build("sin("+f.Name()+")", n, m, h)
}
