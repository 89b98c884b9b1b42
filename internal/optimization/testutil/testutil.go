// Package testutil holds helpers shared by the optimization tests.
package testutil

import (
	"math"
	"math/rand"
	"sync/atomic"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/zhichaoleo/roboptim-core/internal/optimization/function"
)

// AssertFloat64SlicesEqual checks if two float64 slices are approximately equal
func AssertFloat64SlicesEqual(t testing.TB, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// AssertMatEqual checks if two matrices are approximately equal
func AssertMatEqual(t testing.TB, got, want mat.Matrix, tol float64) {
	t.Helper()

	rg, cg := got.Dims()
	rw, cw := want.Dims()
	if rg != rw || cg != cw {
		t.Fatalf("matrix dimensions mismatch: got %dx%d, want %dx%d", rg, cg, rw, cw)
	}

	for i := 0; i < rg; i++ {
		for j := 0; j < cg; j++ {
			g := got.At(i, j)
			w := want.At(i, j)
			if math.Abs(g-w) > tol {
				t.Fatalf("at (%d,%d): got %v, want %v (tolerance %v)", i, j, g, w, tol)
			}
		}
	}
}

// RandomVector generates a random vector with values in [min, max]
func RandomVector(rng *rand.Rand, size int, min, max float64) []float64 {
	data := make([]float64, size)
	for i := range data {
		data[i] = min + rng.Float64()*(max-min)
	}
	return data
}

// Sphere returns x ↦ Σ x_i², twice differentiable.
func Sphere(t testing.TB, n int) *function.Func {
	t.Helper()
	f, err := function.FromFuncs("sphere", n, 1, function.Funcs{
		Compute: func(dst, x []float64) {
			for _, v := range x {
				dst[0] += v * v
			}
		},
		Gradient: func(dst, x []float64, _ int) {
			for i, v := range x {
				dst[i] = 2 * v
			}
		},
		Hessian: func(dst *mat.SymDense, x []float64, _ int) {
			for i := range x {
				dst.SetSym(i, i, 2)
			}
		},
	})
	if err != nil {
		t.Fatalf("building sphere: %v", err)
	}
	return f
}

// Counting wraps a function and counts the calls reaching it.
type Counting struct {
	function.Function

	evaluations atomic.Int64
	gradients   atomic.Int64
	jacobians   atomic.Int64
	hessians    atomic.Int64
}

// NewCounting wraps f.
func NewCounting(f function.Function) *Counting {
	return &Counting{Function: f}
}

func (c *Counting) Evaluate(dst, x []float64) error {
	c.evaluations.Add(1)
	return c.Function.Evaluate(dst, x)
}

func (c *Counting) Gradient(dst, x []float64, index int) error {
	c.gradients.Add(1)
	return c.Function.Gradient(dst, x, index)
}

func (c *Counting) Jacobian(dst *mat.Dense, x []float64) error {
	c.jacobians.Add(1)
	return c.Function.Jacobian(dst, x)
}

func (c *Counting) Hessian(dst *mat.SymDense, x []float64, index int) error {
	c.hessians.Add(1)
	return c.Function.Hessian(dst, x, index)
}

// Evaluations returns the number of Evaluate calls.
func (c *Counting) Evaluations() int { return int(c.evaluations.Load()) }

// Gradients returns the number of Gradient calls.
func (c *Counting) Gradients() int { return int(c.gradients.Load()) }

// Jacobians returns the number of Jacobian calls.
func (c *Counting) Jacobians() int { return int(c.jacobians.Load()) }

// Hessians returns the number of Hessian calls.
func (c *Counting) Hessians() int { return int(c.hessians.Load()) }

// Calls returns the total number of calls of any kind.
func (c *Counting) Calls() int {
	return c.Evaluations() + c.Gradients() + c.Jacobians() + c.Hessians()
}
