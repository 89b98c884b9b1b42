package function

import "strings"

// Level is the highest derivative order a function guarantees to support.
type Level int

const (
	// ValueOnly functions can only be evaluated.
	ValueOnly Level = iota
	// Differentiable functions also provide gradients and a jacobian.
	Differentiable
	// TwiceDifferentiable functions also provide hessians.
	TwiceDifferentiable
	// NTimesDifferentiable functions of one variable provide derivatives of
	// any order.
	NTimesDifferentiable
)

var levelNames = map[Level]string{
	ValueOnly:            "value-only",
	Differentiable:       "differentiable",
	TwiceDifferentiable:  "twice-differentiable",
	NTimesDifferentiable: "n-times-differentiable",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "unknown-level"
}

// Capabilities returns the set of operations a function of this level supports.
func (l Level) Capabilities() Capability {
	c := CanValue
	if l >= Differentiable {
		c |= CanGradient | CanJacobian
	}
	if l >= TwiceDifferentiable {
		c |= CanHessian
	}
	if l >= NTimesDifferentiable {
		c |= CanDerivative
	}
	return c
}

// Capability is a set of supported function operations.
type Capability uint8

const (
	CanValue Capability = 1 << iota
	CanGradient
	CanJacobian
	CanHessian
	CanDerivative
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CanValue, "value"},
	{CanGradient, "gradient"},
	{CanJacobian, "jacobian"},
	{CanHessian, "hessian"},
	{CanDerivative, "derivative"},
}

// Has reports whether every capability in o is in c.
func (c Capability) Has(o Capability) bool {
	return c&o == o
}

func (c Capability) String() string {
	var parts []string
	for _, cn := range capabilityNames {
		if c.Has(cn.c) {
			parts = append(parts, cn.name)
		}
	}
	return strings.Join(parts, "|")
}

func minLevel(levels ...Level) Level {
	min := NTimesDifferentiable
	for _, l := range levels {
		if l < min {
			min = l
		}
	}
	return min
}
