package function

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
)

// Rule selects a finite-difference formula.
type Rule int

const (
	// ForwardDifference costs n+1 evaluations per jacobian and has O(h)
	// truncation error.
	ForwardDifference Rule = iota
	// CentralDifference costs 2n evaluations per jacobian and has O(h²)
	// truncation error.
	CentralDifference
)

func (r Rule) formula() fd.Formula {
	if r == CentralDifference {
		return fd.Central
	}
	return fd.Forward
}

// DefaultGradientTolerance is the discrepancy CheckGradient accepts between
// an analytic gradient and its central-difference estimate, relative to the
// magnitude of the analytic component (absolute below one).
const DefaultGradientTolerance = 1e-4

// FiniteDifferenceOption configures FiniteDifference.
type FiniteDifferenceOption func(*fdOptions)

type fdOptions struct {
	rule Rule
	step float64
}

// WithRule selects the difference formula. The default is ForwardDifference.
func WithRule(r Rule) FiniteDifferenceOption {
	return func(o *fdOptions) { o.rule = r }
}

// WithStep overrides the formula's default step.
func WithStep(h float64) FiniteDifferenceOption {
	return func(o *fdOptions) { o.step = h }
}

// FiniteDifference lifts f to a differentiable function whose gradients and
// jacobian are estimated from values of f. The result follows the same
// contract as analytic derivatives: same call signatures and the same
// dimension checks. The only differences are accuracy (truncation and
// cancellation error, see Rule) and cost, since each derivative query runs
// several evaluations of f and allocates scratch space.
func FiniteDifference(f Function, opts ...FiniteDifferenceOption) (*Func, error) {
	o := fdOptions{rule: ForwardDifference}
	for _, opt := range opts {
		opt(&o)
	}
	formula := o.rule.formula()
	m := f.OutputSize()

	h := hooks{
		compute: f.Evaluate,
		gradient: func(dst, x []float64, index int) error {
			if err := optimization.CheckAllocation("FiniteDifference.Gradient"); err != nil {
				return err
			}
			y := make([]float64, m)
			var evalErr error
			fd.Gradient(dst, func(p []float64) float64 {
				if evalErr != nil {
					return math.NaN()
				}
				if err := f.Evaluate(y, p); err != nil {
					evalErr = err
					return math.NaN()
				}
				return y[index]
			}, x, &fd.Settings{Formula: formula, Step: o.step})
			return evalErr
		},
		jacobian: func(dst *mat.Dense, x []float64) error {
			if err := optimization.CheckAllocation("FiniteDifference.Jacobian"); err != nil {
				return err
			}
			var evalErr error
			fd.Jacobian(dst, func(y, p []float64) {
				if evalErr != nil {
					return
				}
				if err := f.Evaluate(y, p); err != nil {
					evalErr = err
				}
			}, x, &fd.JacobianSettings{Formula: formula, Step: o.step})
			return evalErr
		},
	}
	return build(f.Name()+" (finite differences)", f.InputSize(), m, h)
}

// GradientError reports a gradient component that disagrees with its
// finite-difference estimate.
type GradientError struct {
	Function    string
	Index       int
	Component   int
	Analytic    float64
	Approximate float64
}

func (e *GradientError) Error() string {
	return fmt.Sprintf("%s: gradient %d component %d: analytic %g, finite difference %g (|diff| %g)",
		e.Function, e.Index, e.Component, e.Analytic, e.Approximate, math.Abs(e.Analytic-e.Approximate))
}

// CheckGradient compares the gradient of output index at x with a
// central-difference estimate and returns a *GradientError for the first
// component whose discrepancy exceeds tol·max(1, |analytic|).
func CheckGradient(f Function, x []float64, index int, tol float64) error {
	analytic, err := GradientOf(f, x, index)
	if err != nil {
		return err
	}
	approx, err := FiniteDifference(f, WithRule(CentralDifference))
	if err != nil {
		return err
	}
	estimate, err := GradientOf(approx, x, index)
	if err != nil {
		return err
	}
	for j := range analytic {
		if math.Abs(analytic[j]-estimate[j]) > tol*math.Max(1, math.Abs(analytic[j])) {
			return &GradientError{
				Function:    f.Name(),
				Index:       index,
				Component:   j,
				Analytic:    analytic[j],
				Approximate: estimate[j],
			}
		}
	}
	return nil
}

// CheckJacobian runs CheckGradient on every output of f.
func CheckJacobian(f Function, x []float64, tol float64) error {
	for i := 0; i < f.OutputSize(); i++ {
		if err := CheckGradient(f, x, i, tol); err != nil {
			return err
		}
	}
	return nil
}
