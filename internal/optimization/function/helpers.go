package function

import (
	"gonum.org/v1/gonum/mat"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
)

// Supports reports whether f declares every capability in c.
func Supports(f Function, c Capability) bool {
	return f.Level().Capabilities().Has(c)
}

// Value evaluates f at x into a freshly allocated slice.
func Value(f Function, x []float64) ([]float64, error) {
	if err := optimization.CheckAllocation("function.Value"); err != nil {
		return nil, err
	}
	dst := make([]float64, f.OutputSize())
	if err := f.Evaluate(dst, x); err != nil {
		return nil, err
	}
	return dst, nil
}

// ScalarValue evaluates a function with a single output.
func ScalarValue(f Function, x []float64) (float64, error) {
	if m := f.OutputSize(); m != 1 {
		return 0, optimization.DimensionMismatch("function.ScalarValue", "result", m, 1).WithComponent(f.Name())
	}
	v, err := Value(f, x)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// GradientOf returns the gradient of output index of f at x.
func GradientOf(f Function, x []float64, index int) ([]float64, error) {
	const op = "function.GradientOf"
	if !Supports(f, CanGradient) {
		return nil, optimization.Unsupported(op, f.Name(), "function is only "+f.Level().String())
	}
	if err := optimization.CheckAllocation(op); err != nil {
		return nil, err
	}
	dst := make([]float64, f.InputSize())
	if err := f.Gradient(dst, x, index); err != nil {
		return nil, err
	}
	return dst, nil
}

// JacobianOf returns the jacobian of f at x.
func JacobianOf(f Function, x []float64) (*mat.Dense, error) {
	const op = "function.JacobianOf"
	if !Supports(f, CanJacobian) {
		return nil, optimization.Unsupported(op, f.Name(), "function is only "+f.Level().String())
	}
	if err := optimization.CheckAllocation(op); err != nil {
		return nil, err
	}
	dst := mat.NewDense(f.OutputSize(), f.InputSize(), nil)
	if err := f.Jacobian(dst, x); err != nil {
		return nil, err
	}
	return dst, nil
}

// HessianOf returns the hessian of output index of f at x.
func HessianOf(f Function, x []float64, index int) (*mat.SymDense, error) {
	const op = "function.HessianOf"
	if !Supports(f, CanHessian) {
		return nil, optimization.Unsupported(op, f.Name(), "function is only "+f.Level().String())
	}
	if err := optimization.CheckAllocation(op); err != nil {
		return nil, err
	}
	dst := mat.NewSymDense(f.InputSize(), nil)
	if err := f.Hessian(dst, x, index); err != nil {
		return nil, err
	}
	return dst, nil
}
