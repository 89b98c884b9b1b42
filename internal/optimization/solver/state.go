package solver

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
)

// Status is the position of a solver in its life cycle.
type Status int

const (
	StatusCreated Status = iota
	StatusRunning
	StatusSolved
	StatusNoSolution
	StatusError
	StatusSolvedWithWarnings
)

var statusNames = map[Status]string{
	StatusCreated:            "created",
	StatusRunning:            "running",
	StatusSolved:             "solved",
	StatusNoSolution:         "no-solution",
	StatusError:              "error",
	StatusSolvedWithWarnings: "solved-with-warnings",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Terminal reports whether no further transition can happen without Reset.
func (s Status) Terminal() bool {
	return s >= StatusSolved
}

// StatusOf maps a minimum to the terminal status it produces.
func StatusOf(m Minimum) Status {
	switch m.(type) {
	case *Result:
		return StatusSolved
	case *ResultWithWarnings:
		return StatusSolvedWithWarnings
	case NoSolution, *NoSolution:
		return StatusNoSolution
	}
	return StatusError
}

// State describes the current iterate. Callbacks receive the live state and
// must not keep it; Snapshot returns a copy.
type State struct {
	Iteration           int            `json:"iteration"`
	X                   []float64      `json:"x"`
	Value               float64        `json:"value"`
	ConstraintViolation []float64      `json:"constraint_violation,omitempty"`
	Parameters          map[string]any `json:"parameters,omitempty"`
}

// Snapshot returns a deep copy of s.
func (s *State) Snapshot() (*State, error) {
	if err := optimization.CheckAllocation("State.Snapshot"); err != nil {
		return nil, err
	}
	out := &State{
		Iteration:           s.Iteration,
		X:                   append([]float64(nil), s.X...),
		Value:               s.Value,
		ConstraintViolation: append([]float64(nil), s.ConstraintViolation...),
	}
	if len(s.Parameters) > 0 {
		out.Parameters = make(map[string]any, len(s.Parameters))
		for k, v := range s.Parameters {
			if fs, ok := v.([]float64); ok {
				v = append([]float64(nil), fs...)
			}
			out.Parameters[k] = v
		}
	}
	return out, nil
}

// MaxViolation returns the largest constraint violation, zero without
// constraints.
func (s *State) MaxViolation() float64 {
	var worst float64
	for _, v := range s.ConstraintViolation {
		worst = math.Max(worst, v)
	}
	return worst
}

// ErrInvalidParameter reports a parameter of an unsupported or unexpected
// type.
var ErrInvalidParameter = errors.New("invalid parameter")

// Common parameter keys.
const (
	ParamMaxIterations = "max-iterations"
	// ParamCacheCapacity and ParamCacheTolerance configure the evaluation
	// cache of backends that memoize the objective.
	ParamCacheCapacity  = "cache-capacity"
	ParamCacheTolerance = "cache-tolerance"

	// ParamFiniteDifferenceStep is the step of the finite differences used
	// for objectives without gradients, zero for the formula default.
	ParamFiniteDifferenceStep = "fd-step"
)

// DefaultMaxIterations is the iteration limit when nobody sets one.
const DefaultMaxIterations = 3000

// Parameter is a named solver setting. Value is a float64, int, string, bool
// or []float64.
type Parameter struct {
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
}

// Parameters maps keys to settings.
type Parameters map[string]Parameter

// Set stores value under key after checking its type.
func (p Parameters) Set(key string, value any, description string) error {
	switch v := value.(type) {
	case float64, int, string, bool:
	case []float64:
		value = append([]float64(nil), v...)
	default:
		return fmt.Errorf("%w: %q has unsupported type %T", ErrInvalidParameter, key, value)
	}
	if description == "" {
		description = p[key].Description
	}
	p[key] = Parameter{Value: value, Description: description}
	return nil
}

// Clone returns a copy of p.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the sorted parameter keys.
func (p Parameters) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float returns the float parameter key, or def when unset. Integers are
// converted.
func (p Parameters) Float(key string, def float64) (float64, error) {
	param, ok := p[key]
	if !ok {
		return def, nil
	}
	switch v := param.Value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	}
	return def, typeError(key, param.Value, "float64")
}

// Int returns the integer parameter key, or def when unset. Integral floats
// are accepted since decoded JSON numbers are floats.
func (p Parameters) Int(key string, def int) (int, error) {
	param, ok := p[key]
	if !ok {
		return def, nil
	}
	switch v := param.Value.(type) {
	case int:
		return v, nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) <= math.MaxInt32 {
			return int(v), nil
		}
	}
	return def, typeError(key, param.Value, "int")
}

// String returns the string parameter key, or def when unset.
func (p Parameters) String(key string, def string) (string, error) {
	param, ok := p[key]
	if !ok {
		return def, nil
	}
	if v, ok := param.Value.(string); ok {
		return v, nil
	}
	return def, typeError(key, param.Value, "string")
}

// Bool returns the boolean parameter key, or def when unset.
func (p Parameters) Bool(key string, def bool) (bool, error) {
	param, ok := p[key]
	if !ok {
		return def, nil
	}
	if v, ok := param.Value.(bool); ok {
		return v, nil
	}
	return def, typeError(key, param.Value, "bool")
}

// Floats returns the vector parameter key, or def when unset.
func (p Parameters) Floats(key string, def []float64) ([]float64, error) {
	param, ok := p[key]
	if !ok {
		return def, nil
	}
	if v, ok := param.Value.([]float64); ok {
		return v, nil
	}
	return def, typeError(key, param.Value, "[]float64")
}

func typeError(key string, value any, want string) error {
	return fmt.Errorf("%w: %q is %T, expected %s", ErrInvalidParameter, key, value, want)
}
