// Package problem describes optimization problems: an objective, bounded
// constraints, argument bounds and scaling, and a starting point.
//
// A Problem is inert. It never solves, evaluates lazily only on request and
// never caches. Setters accept any sizes; Validate reports every violated
// invariant in one pass. Once a solver takes ownership the problem is frozen
// and every mutation fails with optimization.ErrProblemFrozen.
package problem

import (
	"fmt"
	"math"
	"strings"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/function"
)

// Interval is a closed interval. Infinite ends mean unbounded.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Unbounded returns (-∞, +∞).
func Unbounded() Interval {
	return Interval{Lower: math.Inf(-1), Upper: math.Inf(1)}
}

// Bounded returns [lower, upper].
func Bounded(lower, upper float64) Interval {
	return Interval{Lower: lower, Upper: upper}
}

// LowerBounded returns [lower, +∞).
func LowerBounded(lower float64) Interval {
	return Interval{Lower: lower, Upper: math.Inf(1)}
}

// UpperBounded returns (-∞, upper].
func UpperBounded(upper float64) Interval {
	return Interval{Lower: math.Inf(-1), Upper: upper}
}

// Equal returns [v, v].
func Equal(v float64) Interval {
	return Interval{Lower: v, Upper: v}
}

// Valid reports whether the interval is ordered and free of NaN.
func (i Interval) Valid() bool {
	return !math.IsNaN(i.Lower) && !math.IsNaN(i.Upper) && i.Lower <= i.Upper
}

// Contains reports whether v lies in the interval.
func (i Interval) Contains(v float64) bool {
	return v >= i.Lower && v <= i.Upper
}

// Violation returns the distance from v to the interval, zero inside it.
// NaN is infinitely far from every interval.
func (i Interval) Violation(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return math.Inf(1)
	case v < i.Lower:
		return i.Lower - v
	case v > i.Upper:
		return v - i.Upper
	}
	return 0
}

// Clamp projects v onto the interval.
func (i Interval) Clamp(v float64) float64 {
	return math.Min(math.Max(v, i.Lower), i.Upper)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%g, %g]", i.Lower, i.Upper)
}

// Constraint is a function whose outputs must stay within Bounds, one
// interval per output, each weighted by the matching entry of Scales.
type Constraint struct {
	Function function.Function
	Bounds   []Interval
	Scales   []float64
}

// Problem is a mutable optimization problem description.
type Problem struct {
	objective   function.Function
	constraints []Constraint

	argumentBounds  []Interval
	argumentScaling []float64
	argumentNames   []string
	startingPoint   []float64

	frozen bool
}

// New creates a problem minimizing objective. Argument bounds default to
// unbounded and argument scaling to all ones.
func New(objective function.Function) (*Problem, error) {
	if objective == nil {
		return nil, optimization.NewError("nil objective").WithOperation("problem.New")
	}
	n := objective.InputSize()
	p := &Problem{
		objective:       objective,
		argumentBounds:  make([]Interval, n),
		argumentScaling: ones(n),
	}
	for i := range p.argumentBounds {
		p.argumentBounds[i] = Unbounded()
	}
	return p, nil
}

// Objective returns the objective function.
func (p *Problem) Objective() function.Function { return p.objective }

// InputSize returns the number of optimization variables.
func (p *Problem) InputSize() int { return p.objective.InputSize() }

// AddConstraint appends a constraint and returns its index. A single
// interval is broadcast to every output of f; nil scales mean all ones.
func (p *Problem) AddConstraint(f function.Function, bounds []Interval, scales []float64) (int, error) {
	c, err := p.constraint("problem.AddConstraint", f, bounds, scales)
	if err != nil {
		return -1, err
	}
	p.constraints = append(p.constraints, c)
	return len(p.constraints) - 1, nil
}

// ReplaceConstraint swaps the constraint at index i.
func (p *Problem) ReplaceConstraint(i int, f function.Function, bounds []Interval, scales []float64) error {
	const op = "problem.ReplaceConstraint"
	if i < 0 || i >= len(p.constraints) {
		return optimization.NewErrorf("constraint index %d out of range [0, %d)", i, len(p.constraints)).WithOperation(op)
	}
	c, err := p.constraint(op, f, bounds, scales)
	if err != nil {
		return err
	}
	p.constraints[i] = c
	return nil
}

func (p *Problem) constraint(op string, f function.Function, bounds []Interval, scales []float64) (Constraint, error) {
	if err := p.checkMutable(op); err != nil {
		return Constraint{}, err
	}
	if f == nil {
		return Constraint{}, optimization.NewError("nil constraint function").WithOperation(op)
	}
	m := f.OutputSize()
	if len(bounds) == 1 && m > 1 {
		broadcast := make([]Interval, m)
		for i := range broadcast {
			broadcast[i] = bounds[0]
		}
		bounds = broadcast
	} else {
		bounds = append([]Interval(nil), bounds...)
	}
	if scales == nil {
		scales = ones(m)
	} else {
		scales = append([]float64(nil), scales...)
	}
	return Constraint{Function: f, Bounds: bounds, Scales: scales}, nil
}

// NumConstraints returns the number of constraints.
func (p *Problem) NumConstraints() int { return len(p.constraints) }

// Constraint returns the constraint at index i.
func (p *Problem) Constraint(i int) Constraint { return p.constraints[i] }

// Constraints returns a copy of the constraint list.
func (p *Problem) Constraints() []Constraint {
	return append([]Constraint(nil), p.constraints...)
}

// ConstraintOutputSize returns the total number of constraint outputs.
func (p *Problem) ConstraintOutputSize() int {
	var total int
	for _, c := range p.constraints {
		total += c.Function.OutputSize()
	}
	return total
}

// SetArgumentBounds replaces the per-variable bounds.
func (p *Problem) SetArgumentBounds(bounds []Interval) error {
	if err := p.checkMutable("problem.SetArgumentBounds"); err != nil {
		return err
	}
	p.argumentBounds = append([]Interval(nil), bounds...)
	return nil
}

// ArgumentBounds returns the per-variable bounds.
func (p *Problem) ArgumentBounds() []Interval {
	return append([]Interval(nil), p.argumentBounds...)
}

// SetArgumentScaling replaces the per-variable scaling.
func (p *Problem) SetArgumentScaling(scaling []float64) error {
	if err := p.checkMutable("problem.SetArgumentScaling"); err != nil {
		return err
	}
	p.argumentScaling = append([]float64(nil), scaling...)
	return nil
}

// ArgumentScaling returns the per-variable scaling.
func (p *Problem) ArgumentScaling() []float64 {
	return append([]float64(nil), p.argumentScaling...)
}

// SetStartingPoint sets the initial iterate.
func (p *Problem) SetStartingPoint(x []float64) error {
	if err := p.checkMutable("problem.SetStartingPoint"); err != nil {
		return err
	}
	p.startingPoint = append([]float64(nil), x...)
	return nil
}

// StartingPoint returns the initial iterate, or nil when unset.
func (p *Problem) StartingPoint() []float64 {
	if p.startingPoint == nil {
		return nil
	}
	return append([]float64(nil), p.startingPoint...)
}

// SetArgumentNames names the variables for reporting.
func (p *Problem) SetArgumentNames(names []string) error {
	if err := p.checkMutable("problem.SetArgumentNames"); err != nil {
		return err
	}
	p.argumentNames = append([]string(nil), names...)
	return nil
}

// ArgumentNames returns the variable names, or nil when unset.
func (p *Problem) ArgumentNames() []string {
	if p.argumentNames == nil {
		return nil
	}
	return append([]string(nil), p.argumentNames...)
}

// Freeze makes the problem read-only. It cannot be undone.
func (p *Problem) Freeze() { p.frozen = true }

// Frozen reports whether the problem rejects mutation.
func (p *Problem) Frozen() bool { return p.frozen }

func (p *Problem) checkMutable(op string) error {
	if p.frozen {
		return optimization.WrapError(optimization.ErrProblemFrozen, "problem is owned by a solver").WithOperation(op)
	}
	return nil
}

// ConstraintViolation evaluates every constraint at x and returns, for each
// constraint output in order, its scaled distance to the bounds. Constraints
// whose bounds or scales do not match their output size fail with
// optimization.ErrInvalidProblem.
func (p *Problem) ConstraintViolation(x []float64) ([]float64, error) {
	const op = "problem.ConstraintViolation"
	if err := optimization.CheckAllocation(op); err != nil {
		return nil, err
	}
	violation := make([]float64, 0, p.ConstraintOutputSize())
	for k, c := range p.constraints {
		m := c.Function.OutputSize()
		if len(c.Bounds) != m || len(c.Scales) != m {
			return nil, optimization.WrapErrorf(optimization.ErrInvalidProblem,
				"constraint %d has %d bounds and %d scales for %d outputs", k, len(c.Bounds), len(c.Scales), m).
				WithOperation(op).WithComponent(c.Function.Name())
		}
		y := make([]float64, m)
		if err := c.Function.Evaluate(y, x); err != nil {
			return nil, err
		}
		for i, v := range y {
			violation = append(violation, c.Scales[i]*c.Bounds[i].Violation(v))
		}
	}
	return violation, nil
}

// ConstraintValues evaluates every constraint at x and concatenates the
// outputs.
func (p *Problem) ConstraintValues(x []float64) ([]float64, error) {
	if err := optimization.CheckAllocation("problem.ConstraintValues"); err != nil {
		return nil, err
	}
	values := make([]float64, p.ConstraintOutputSize())
	offset := 0
	for _, c := range p.constraints {
		m := c.Function.OutputSize()
		if err := c.Function.Evaluate(values[offset:offset+m], x); err != nil {
			return nil, err
		}
		offset += m
	}
	return values, nil
}

func (p *Problem) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Problem:\n  Objective: %s (%d -> %d, %s)\n",
		p.objective.Name(), p.objective.InputSize(), p.objective.OutputSize(), p.objective.Level())
	fmt.Fprintf(&b, "  Arguments: %d\n", p.InputSize())
	for i, bound := range p.argumentBounds {
		name := fmt.Sprintf("x%d", i)
		if i < len(p.argumentNames) {
			name = p.argumentNames[i]
		}
		scale := math.NaN()
		if i < len(p.argumentScaling) {
			scale = p.argumentScaling[i]
		}
		fmt.Fprintf(&b, "    %s in %s, scale %g\n", name, bound, scale)
	}
	if len(p.constraints) > 0 {
		fmt.Fprintf(&b, "  Constraints: %d\n", len(p.constraints))
		for i, c := range p.constraints {
			fmt.Fprintf(&b, "    #%d %s in %v\n", i, c.Function.Name(), c.Bounds)
		}
	}
	if p.startingPoint != nil {
		fmt.Fprintf(&b, "  Starting point: %v\n", p.startingPoint)
	}
	return b.String()
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}
