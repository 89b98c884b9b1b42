// Package function defines the differentiable function model optimization
// problems are written against.
//
// A Function maps R^n to R^m and declares a differentiability Level. Every
// evaluation checks the argument and output sizes and fails with
// optimization.ErrDimensionMismatch on a mismatch; asking for a derivative above
// the declared level fails with optimization.ErrUnsupportedOperation. Functions
// are immutable once built and may be shared freely: the last holder keeps them
// alive.
package function

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
)

// Function is the contract shared by every function kind.
//
// Output buffers are zeroed before the implementation writes to them, and must
// have the exact size of the result: m for Evaluate, n for Gradient, m×n for
// Jacobian and n×n for Hessian. The index argument of Gradient and Hessian
// selects an output component.
type Function interface {
	Name() string
	InputSize() int
	OutputSize() int
	Level() Level

	Evaluate(dst, x []float64) error
	Gradient(dst, x []float64, index int) error
	Jacobian(dst *mat.Dense, x []float64) error
	Hessian(dst *mat.SymDense, x []float64, index int) error
}

// Derivable is implemented by functions that can also report derivatives of
// arbitrary order with respect to their single variable.
type Derivable interface {
	Function
	Derivative(dst []float64, t float64, order int) error
}

// Computer is the value hook every implementation passed to New provides.
type Computer interface {
	Compute(dst, x []float64)
}

// GradientComputer is an optional hook providing the gradient of one output.
type GradientComputer interface {
	ComputeGradient(dst, x []float64, index int)
}

// JacobianComputer is an optional hook providing the full jacobian.
type JacobianComputer interface {
	ComputeJacobian(dst *mat.Dense, x []float64)
}

// HessianComputer is an optional hook providing the hessian of one output.
type HessianComputer interface {
	ComputeHessian(dst *mat.SymDense, x []float64, index int)
}

// DerivativeComputer provides derivatives of a function of one variable;
// order zero is the value.
type DerivativeComputer interface {
	ComputeDerivative(dst []float64, t float64, order int)
}

// Funcs groups closures describing a function. Compute is required; nil
// derivative closures are simply not provided.
type Funcs struct {
	Compute  func(dst, x []float64)
	Gradient func(dst, x []float64, index int)
	Jacobian func(dst *mat.Dense, x []float64)
	Hessian  func(dst *mat.SymDense, x []float64, index int)
}

// hooks are the internal implementation slots of a Func. Combinators fill
// them directly so inner failures propagate.
type hooks struct {
	compute    func(dst, x []float64) error
	gradient   func(dst, x []float64, index int) error
	jacobian   func(dst *mat.Dense, x []float64) error
	hessian    func(dst *mat.SymDense, x []float64, index int) error
	derivative func(dst []float64, t float64, order int) error
}

// Option configures a function at construction.
type Option func(*options)

type options struct {
	level    Level
	levelSet bool
}

// WithLevel declares the differentiability level explicitly. It may be lower
// than what the implementation provides, which hides the extra derivatives,
// but never higher.
func WithLevel(l Level) Option {
	return func(o *options) {
		o.level = l
		o.levelSet = true
	}
}

// Func is the concrete Function built by New, FromFuncs and the combinators.
type Func struct {
	name  string
	n, m  int
	level Level
	hooks hooks
}

var (
	_ Function  = (*Func)(nil)
	_ Derivable = (*Func)(nil)
)

// New builds a function from impl, probing it for the optional derivative
// hooks. The level is inferred from the hooks found unless WithLevel says
// otherwise.
func New(name string, n, m int, impl Computer, opts ...Option) (*Func, error) {
	if impl == nil {
		return nil, optimization.NewError("nil implementation").WithOperation("function.New")
	}
	h := hooks{
		compute: func(dst, x []float64) error {
			impl.Compute(dst, x)
			return nil
		},
	}
	if g, ok := impl.(GradientComputer); ok {
		h.gradient = func(dst, x []float64, index int) error {
			g.ComputeGradient(dst, x, index)
			return nil
		}
	}
	if j, ok := impl.(JacobianComputer); ok {
		h.jacobian = func(dst *mat.Dense, x []float64) error {
			j.ComputeJacobian(dst, x)
			return nil
		}
	}
	if hc, ok := impl.(HessianComputer); ok {
		h.hessian = func(dst *mat.SymDense, x []float64, index int) error {
			hc.ComputeHessian(dst, x, index)
			return nil
		}
	}
	if d, ok := impl.(DerivativeComputer); ok {
		h.derivative = func(dst []float64, t float64, order int) error {
			d.ComputeDerivative(dst, t, order)
			return nil
		}
	}
	return build(name, n, m, h, opts...)
}

// FromFuncs builds a function from closures.
func FromFuncs(name string, n, m int, fs Funcs, opts ...Option) (*Func, error) {
	if fs.Compute == nil {
		return nil, optimization.NewError("Compute closure is required").WithOperation("function.FromFuncs")
	}
	h := hooks{
		compute: func(dst, x []float64) error {
			fs.Compute(dst, x)
			return nil
		},
	}
	if fs.Gradient != nil {
		h.gradient = func(dst, x []float64, index int) error {
			fs.Gradient(dst, x, index)
			return nil
		}
	}
	if fs.Jacobian != nil {
		h.jacobian = func(dst *mat.Dense, x []float64) error {
			fs.Jacobian(dst, x)
			return nil
		}
	}
	if fs.Hessian != nil {
		h.hessian = func(dst *mat.SymDense, x []float64, index int) error {
			fs.Hessian(dst, x, index)
			return nil
		}
	}
	return build(name, n, m, h, opts...)
}

// NewNTimes builds an n-times differentiable function of one variable with m
// outputs.
func NewNTimes(name string, m int, impl DerivativeComputer, opts ...Option) (*Func, error) {
	if impl == nil {
		return nil, optimization.NewError("nil implementation").WithOperation("function.NewNTimes")
	}
	h := hooks{
		derivative: func(dst []float64, t float64, order int) error {
			impl.ComputeDerivative(dst, t, order)
			return nil
		},
	}
	return build(name, 1, m, h, opts...)
}

// build infers the level, fills the derivable hooks and checks the declared
// level against what the hooks support.
func build(name string, n, m int, h hooks, opts ...Option) (*Func, error) {
	const op = "function.build"
	if n < 1 || m < 1 {
		return nil, optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"sizes must be positive, got %d -> %d", n, m).WithOperation(op).WithComponent(name)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	inferred := ValueOnly
	switch {
	case h.derivative != nil:
		if n != 1 {
			return nil, optimization.Unsupported(op, name, "n-times differentiable functions take exactly one variable")
		}
		inferred = NTimesDifferentiable
		fillFromDerivative(&h, m)
	case h.gradient != nil || h.jacobian != nil:
		inferred = Differentiable
		if h.hessian != nil {
			inferred = TwiceDifferentiable
		}
	}

	if h.compute == nil {
		return nil, optimization.NewError("value hook is required").WithOperation(op).WithComponent(name)
	}
	if h.gradient == nil && h.jacobian != nil {
		h.gradient = gradientFromJacobian(h.jacobian, n, m)
	}
	if h.jacobian == nil && h.gradient != nil {
		h.jacobian = jacobianFromGradient(h.gradient, m)
	}

	level := inferred
	if o.levelSet {
		if o.level > inferred {
			return nil, optimization.Unsupported(op, name,
				fmt.Sprintf("declared %s but the implementation is only %s", o.level, inferred))
		}
		level = o.level
	}

	return &Func{name: name, n: n, m: m, level: level, hooks: h}, nil
}

func fillFromDerivative(h *hooks, m int) {
	d := h.derivative
	if h.compute == nil {
		h.compute = func(dst, x []float64) error {
			return d(dst, x[0], 0)
		}
	}
	h.gradient = func(dst, x []float64, index int) error {
		if err := optimization.CheckAllocation("function.Gradient"); err != nil {
			return err
		}
		buf := make([]float64, m)
		if err := d(buf, x[0], 1); err != nil {
			return err
		}
		dst[0] = buf[index]
		return nil
	}
	h.jacobian = func(dst *mat.Dense, x []float64) error {
		if err := optimization.CheckAllocation("function.Jacobian"); err != nil {
			return err
		}
		buf := make([]float64, m)
		if err := d(buf, x[0], 1); err != nil {
			return err
		}
		dst.SetCol(0, buf)
		return nil
	}
	h.hessian = func(dst *mat.SymDense, x []float64, index int) error {
		if err := optimization.CheckAllocation("function.Hessian"); err != nil {
			return err
		}
		buf := make([]float64, m)
		if err := d(buf, x[0], 2); err != nil {
			return err
		}
		dst.SetSym(0, 0, buf[index])
		return nil
	}
}

func gradientFromJacobian(jac func(*mat.Dense, []float64) error, n, m int) func([]float64, []float64, int) error {
	return func(dst, x []float64, index int) error {
		if err := optimization.CheckAllocation("function.Gradient"); err != nil {
			return err
		}
		full := mat.NewDense(m, n, nil)
		if err := jac(full, x); err != nil {
			return err
		}
		copy(dst, full.RawRowView(index))
		return nil
	}
}

func jacobianFromGradient(grad func([]float64, []float64, int) error, m int) func(*mat.Dense, []float64) error {
	return func(dst *mat.Dense, x []float64) error {
		for i := 0; i < m; i++ {
			if err := grad(dst.RawRowView(i), x, i); err != nil {
				return err
			}
		}
		return nil
	}
}

// Name returns the function name.
func (f *Func) Name() string { return f.name }

// InputSize returns n.
func (f *Func) InputSize() int { return f.n }

// OutputSize returns m.
func (f *Func) OutputSize() int { return f.m }

// Level returns the declared differentiability level.
func (f *Func) Level() Level { return f.level }

func (f *Func) String() string {
	return fmt.Sprintf("%s (%d -> %d, %s)", f.name, f.n, f.m, f.level)
}

// Evaluate writes f(x) into dst.
func (f *Func) Evaluate(dst, x []float64) error {
	const op = "Evaluate"
	if err := f.checkArgument(op, x); err != nil {
		return err
	}
	if len(dst) != f.m {
		return f.mismatch(op, "result", len(dst), f.m)
	}
	zero(dst)
	return f.hooks.compute(dst, x)
}

// Gradient writes the gradient of output index at x into dst.
func (f *Func) Gradient(dst, x []float64, index int) error {
	const op = "Gradient"
	if f.level < Differentiable {
		return f.unsupported(op)
	}
	if err := f.checkArgument(op, x); err != nil {
		return err
	}
	if len(dst) != f.n {
		return f.mismatch(op, "gradient", len(dst), f.n)
	}
	if err := f.checkIndex(op, index); err != nil {
		return err
	}
	zero(dst)
	return f.hooks.gradient(dst, x, index)
}

// Jacobian writes the m×n jacobian at x into dst.
func (f *Func) Jacobian(dst *mat.Dense, x []float64) error {
	const op = "Jacobian"
	if f.level < Differentiable {
		return f.unsupported(op)
	}
	if err := f.checkArgument(op, x); err != nil {
		return err
	}
	if dst == nil || dst.IsEmpty() {
		return f.mismatch(op, "jacobian rows", 0, f.m)
	}
	r, c := dst.Dims()
	if r != f.m {
		return f.mismatch(op, "jacobian rows", r, f.m)
	}
	if c != f.n {
		return f.mismatch(op, "jacobian columns", c, f.n)
	}
	dst.Zero()
	return f.hooks.jacobian(dst, x)
}

// Hessian writes the n×n hessian of output index at x into dst.
func (f *Func) Hessian(dst *mat.SymDense, x []float64, index int) error {
	const op = "Hessian"
	if f.level < TwiceDifferentiable {
		return f.unsupported(op)
	}
	if err := f.checkArgument(op, x); err != nil {
		return err
	}
	if dst == nil || dst.IsEmpty() {
		return f.mismatch(op, "hessian", 0, f.n)
	}
	if d := dst.SymmetricDim(); d != f.n {
		return f.mismatch(op, "hessian", d, f.n)
	}
	if err := f.checkIndex(op, index); err != nil {
		return err
	}
	dst.Zero()
	return f.hooks.hessian(dst, x, index)
}

// Derivative writes the derivative of the given order at t into dst. Only
// n-times differentiable functions support it; order zero is the value.
func (f *Func) Derivative(dst []float64, t float64, order int) error {
	const op = "Derivative"
	if f.level < NTimesDifferentiable {
		return f.unsupported(op)
	}
	if order < 0 {
		return optimization.Unsupported(op, f.name, fmt.Sprintf("negative derivative order %d", order))
	}
	if len(dst) != f.m {
		return f.mismatch(op, "result", len(dst), f.m)
	}
	zero(dst)
	return f.hooks.derivative(dst, t, order)
}

func (f *Func) checkArgument(op string, x []float64) error {
	if len(x) != f.n {
		return f.mismatch(op, "argument", len(x), f.n)
	}
	return nil
}

func (f *Func) checkIndex(op string, index int) error {
	if index < 0 || index >= f.m {
		return optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"function index %d out of range [0, %d)", index, f.m).WithOperation(op).WithComponent(f.name)
	}
	return nil
}

func (f *Func) mismatch(op, what string, got, want int) error {
	return optimization.DimensionMismatch(op, what, got, want).WithComponent(f.name)
}

func (f *Func) unsupported(op string) error {
	return optimization.Unsupported(op, f.name, fmt.Sprintf("function is only %s", f.level))
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}
