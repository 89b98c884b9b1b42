package function

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
)

// Constant returns the function R^n -> R^len(values) that ignores its argument.
func Constant(n int, values []float64) (*Func, error) {
	c := append([]float64(nil), values...)
	h := hooks{
		compute: func(dst, _ []float64) error {
			copy(dst, c)
			return nil
		},
		gradient: func([]float64, []float64, int) error { return nil },
		hessian:  func(*mat.SymDense, []float64, int) error { return nil },
	}
	return build("constant", n, len(c), h)
}

// Linear returns x ↦ A·x + b. A nil b means zero.
func Linear(a mat.Matrix, b []float64) (*Func, error) {
	const op = "function.Linear"
	m, n := a.Dims()
	if b == nil {
		b = make([]float64, m)
	}
	if len(b) != m {
		return nil, optimization.DimensionMismatch(op, "offset", len(b), m)
	}
	A := mat.DenseCopyOf(a)
	offset := append([]float64(nil), b...)
	h := hooks{
		compute: func(dst, x []float64) error {
			for i := range dst {
				dst[i] = floats.Dot(A.RawRowView(i), x) + offset[i]
			}
			return nil
		},
		gradient: func(dst, _ []float64, index int) error {
			copy(dst, A.RawRowView(index))
			return nil
		},
		jacobian: func(dst *mat.Dense, _ []float64) error {
			dst.Copy(A)
			return nil
		},
		hessian: func(*mat.SymDense, []float64, int) error { return nil },
	}
	return build("linear", n, m, h)
}

// Quadratic returns the scalar x ↦ ½·xᵀAx + bᵀx + c. A nil b means zero.
func Quadratic(a mat.Symmetric, b []float64, c float64) (*Func, error) {
	const op = "function.Quadratic"
	n := a.SymmetricDim()
	if b == nil {
		b = make([]float64, n)
	}
	if len(b) != n {
		return nil, optimization.DimensionMismatch(op, "linear term", len(b), n)
	}
	A := mat.NewSymDense(n, nil)
	A.CopySym(a)
	lin := append([]float64(nil), b...)
	h := hooks{
		compute: func(dst, x []float64) error {
			var quad float64
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					quad += x[i] * A.At(i, j) * x[j]
				}
			}
			dst[0] = 0.5*quad + floats.Dot(lin, x) + c
			return nil
		},
		gradient: func(dst, x []float64, _ int) error {
			for i := 0; i < n; i++ {
				var s float64
				for j := 0; j < n; j++ {
					s += A.At(i, j) * x[j]
				}
				dst[i] = s + lin[i]
			}
			return nil
		},
		hessian: func(dst *mat.SymDense, _ []float64, _ int) error {
			dst.CopySym(A)
			return nil
		},
	}
	return build("quadratic", n, 1, h)
}

// Polynomial returns the n-times differentiable t ↦ Σ coeffs[k]·t^k.
func Polynomial(coeffs []float64) (*Func, error) {
	if len(coeffs) == 0 {
		return nil, optimization.DimensionMismatch("function.Polynomial", "coefficients", 0, 1)
	}
	c := append([]float64(nil), coeffs...)
	h := hooks{
		derivative: func(dst []float64, t float64, order int) error {
			// Horner on the order-th derivative coefficients.
			var v float64
			for k := len(c) - 1; k >= order; k-- {
				v = v*t + c[k]*fallingFactorial(k, order)
			}
			dst[0] = v
			return nil
		},
	}
	return build("polynomial", 1, 1, h)
}

// fallingFactorial returns k·(k-1)···(k-r+1).
func fallingFactorial(k, r int) float64 {
	p := 1.0
	for i := 0; i < r; i++ {
		p *= float64(k - i)
	}
	return p
}
