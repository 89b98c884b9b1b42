package solver

import (
	"fmt"
	"strings"
)

// Minimum is the outcome of a solve: NoSolution, *Result,
// *ResultWithWarnings or *SolverError.
type Minimum interface {
	isMinimum()
}

// NoSolution reports that the backend finished without a usable point.
// Warnings holds the callback failures recorded during the solve.
type NoSolution struct {
	Warnings []SolverWarning
}

// Result is a point found by a backend.
type Result struct {
	// X is the solution.
	X []float64 `json:"x"`
	// Value is the objective value at X.
	Value float64 `json:"value"`
	// Constraints holds the constraint outputs at X, concatenated.
	Constraints []float64 `json:"constraints,omitempty"`
	// Lambda holds the multipliers when the backend reports them.
	Lambda []float64 `json:"lambda,omitempty"`
	// Iterations is the number of iterations reported before X was returned.
	Iterations int `json:"iterations"`
}

// ResultWithWarnings is a usable result the backend or a callback flagged
// as suspect.
type ResultWithWarnings struct {
	Result
	Warnings []SolverWarning `json:"warnings"`
}

// SolverWarning is a recoverable diagnostic attached to a result.
type SolverWarning struct {
	Message string
	// Result is the result the warning is attached to.
	Result *Result
	Err    error
}

func (w SolverWarning) Error() string {
	if w.Err != nil {
		return fmt.Sprintf("%s: %v", w.Message, w.Err)
	}
	return w.Message
}

func (w SolverWarning) Unwrap() error { return w.Err }

// SolverError is a failed solve. Result holds the last iterate when one was
// reported.
type SolverError struct {
	Message  string
	Result   *Result
	Err      error
	Warnings []SolverWarning
}

func (e *SolverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *SolverError) Unwrap() error { return e.Err }

func (NoSolution) isMinimum()          {}
func (*Result) isMinimum()             {}
func (*ResultWithWarnings) isMinimum() {}
func (*SolverError) isMinimum()        {}

func (n NoSolution) String() string {
	if len(n.Warnings) == 0 {
		return "no solution"
	}
	msgs := make([]string, len(n.Warnings))
	for i, w := range n.Warnings {
		msgs[i] = w.Error()
	}
	return fmt.Sprintf("no solution (warnings: %s)", strings.Join(msgs, "; "))
}

func (r *Result) String() string {
	return fmt.Sprintf("result: x = %v, f(x) = %g after %d iterations", r.X, r.Value, r.Iterations)
}

func (r *ResultWithWarnings) String() string {
	msgs := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		msgs[i] = w.Error()
	}
	return fmt.Sprintf("%s (warnings: %s)", r.Result.String(), strings.Join(msgs, "; "))
}

// ResultOf returns the point carried by m, if any.
func ResultOf(m Minimum) (*Result, bool) {
	switch v := m.(type) {
	case *Result:
		return v, true
	case *ResultWithWarnings:
		return &v.Result, true
	case *SolverError:
		return v.Result, v.Result != nil
	}
	return nil, false
}

// withWarnings folds callback failures into m.
func withWarnings(m Minimum, warnings []SolverWarning) Minimum {
	if len(warnings) == 0 {
		return m
	}
	switch v := m.(type) {
	case *Result:
		out := &ResultWithWarnings{Result: *v}
		out.Warnings = attach(warnings, &out.Result)
		return out
	case *ResultWithWarnings:
		v.Warnings = append(v.Warnings, attach(warnings, &v.Result)...)
		return v
	case *SolverError:
		v.Warnings = append(v.Warnings, attach(warnings, v.Result)...)
		return v
	case NoSolution:
		v.Warnings = append(append([]SolverWarning(nil), v.Warnings...), attach(warnings, nil)...)
		return v
	case *NoSolution:
		v.Warnings = append(v.Warnings, attach(warnings, nil)...)
		return v
	}
	return m
}

func attach(warnings []SolverWarning, r *Result) []SolverWarning {
	out := make([]SolverWarning, len(warnings))
	for i, w := range warnings {
		w.Result = r
		out[i] = w
	}
	return out
}
