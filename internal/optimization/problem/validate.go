package problem

import (
	"fmt"
	"math"

	"go.uber.org/multierr"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
)

// Validate checks every sizing and ordering invariant and returns all
// violations combined with multierr. Each violation wraps
// optimization.ErrInvalidProblem; use Violations to list them.
func (p *Problem) Validate() error {
	n := p.InputSize()
	var err error
	add := func(component, format string, args ...interface{}) {
		err = multierr.Append(err, optimization.WrapErrorf(optimization.ErrInvalidProblem, format, args...).
			WithOperation("problem.Validate").WithComponent(component))
	}

	if m := p.objective.OutputSize(); m != 1 {
		add("objective", "output size is %d, expected a scalar", m)
	}
	switch {
	case p.startingPoint == nil:
		add("starting point", "not set")
	case len(p.startingPoint) != n:
		add("starting point", "size %d, expected %d", len(p.startingPoint), n)
	}
	if len(p.argumentBounds) != n {
		add("argument bounds", "size %d, expected %d", len(p.argumentBounds), n)
	}
	if len(p.argumentScaling) != n {
		add("argument scaling", "size %d, expected %d", len(p.argumentScaling), n)
	}
	if p.argumentNames != nil && len(p.argumentNames) != n {
		add("argument names", "size %d, expected %d", len(p.argumentNames), n)
	}
	for i, b := range p.argumentBounds {
		if !b.Valid() {
			add("argument bounds", "bound %d %s is not an ordered interval", i, b)
		}
	}
	for i, s := range p.argumentScaling {
		if !positive(s) {
			add("argument scaling", "scale %d is %g, expected a positive finite value", i, s)
		}
	}

	for k, c := range p.constraints {
		component := fmt.Sprintf("constraint %d (%s)", k, c.Function.Name())
		m := c.Function.OutputSize()
		if c.Function.InputSize() != n {
			add(component, "input size %d, expected %d", c.Function.InputSize(), n)
		}
		if len(c.Bounds) != m {
			add(component, "%d bounds for %d outputs", len(c.Bounds), m)
		}
		if len(c.Scales) != m {
			add(component, "%d scales for %d outputs", len(c.Scales), m)
		}
		for i, b := range c.Bounds {
			if !b.Valid() {
				add(component, "bound %d %s is not an ordered interval", i, b)
			}
		}
		for i, s := range c.Scales {
			if !positive(s) {
				add(component, "scale %d is %g, expected a positive finite value", i, s)
			}
		}
	}
	return err
}

// Violations splits an error returned by Validate into its violations.
func Violations(err error) []error {
	return multierr.Errors(err)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
