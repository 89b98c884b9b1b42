// Package solver drives optimization backends.
//
// A Backend implements one algorithm. It is looked up by name in a Registry,
// which validates the problem and wraps the backend in a *Solver. The Solver
// owns the life cycle (created, running, then one terminal status), the
// parameters and the callback chain, and keeps the outcome of the single
// solve it performs.
package solver

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/problem"
)

// Backend is the algorithm behind a Solver. Solve reports every iteration
// through run.Iterate and stops as soon as Iterate returns an error.
type Backend interface {
	Solve(run *Run) Minimum
}

// ParameterDeclarer is implemented by backends that publish their parameters
// and defaults.
type ParameterDeclarer interface {
	DefaultParameters() Parameters
}

// Option configures a Solver at creation.
type Option func(*Solver) error

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Solver) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithParameters overrides parameters. Descriptions of known keys are kept.
func WithParameters(params Parameters) Option {
	return func(s *Solver) error {
		for _, k := range params.Keys() {
			p := params[k]
			if err := s.params.Set(k, p.Value, p.Description); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithObserver registers an observer on the callback chain.
func WithObserver(o Observer, opts ...CallbackOption) Option {
	return func(s *Solver) error {
		return s.callbacks.Register(o, opts...)
	}
}

// Solver runs a backend on a problem exactly once.
type Solver struct {
	id        uuid.UUID
	backend   string
	problem   *problem.Problem
	impl      Backend
	params    Parameters
	callbacks *Multiplexer
	logger    *zap.Logger

	mu      sync.Mutex
	status  Status
	minimum Minimum
	last    *State
}

func newSolver(name string, p *problem.Problem, impl Backend, opts ...Option) (*Solver, error) {
	s := &Solver{
		id:      uuid.New(),
		backend: name,
		problem: p,
		impl:    impl,
		params: Parameters{
			ParamMaxIterations: {Value: DefaultMaxIterations, Description: "maximum number of iterations"},
		},
		logger: zap.NewNop(),
	}
	if d, ok := impl.(ParameterDeclarer); ok {
		for k, v := range d.DefaultParameters() {
			s.params[k] = v
		}
	}
	s.callbacks = NewMultiplexer(nil)
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.Named("solver").With(
		zap.String("backend", name),
		zap.String("run", s.id.String()),
	)
	s.callbacks.logger = s.logger.Named("callbacks")
	return s, nil
}

// ID identifies the solver in logs.
func (s *Solver) ID() uuid.UUID { return s.id }

// Backend returns the registered backend name.
func (s *Solver) Backend() string { return s.backend }

// Problem returns the frozen problem.
func (s *Solver) Problem() *problem.Problem { return s.problem }

// Callbacks returns the callback chain.
func (s *Solver) Callbacks() *Multiplexer { return s.callbacks }

// Parameters returns a copy of the parameters.
func (s *Solver) Parameters() Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.Clone()
}

// SetParameter changes a parameter before solving.
func (s *Solver) SetParameter(key string, value any, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusCreated {
		return optimization.WrapError(optimization.ErrSolveStarted, "parameters are fixed once solving starts").WithOperation("Solver.SetParameter")
	}
	return s.params.Set(key, value, description)
}

// Status returns the current status.
func (s *Solver) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Minimum returns the outcome, or nil before Solve.
func (s *Solver) Minimum() Minimum {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minimum
}

// LastState returns a copy of the last reported state. It returns nil
// before the first iteration and while allocation is forbidden.
func (s *Solver) LastState() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	st, err := s.last.Snapshot()
	if err != nil {
		return nil
	}
	return st
}

// Reset returns a finished solver to the created status so it can solve
// again. The problem stays frozen.
func (s *Solver) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusRunning {
		return optimization.NewError("cannot reset a running solver").WithOperation("Solver.Reset")
	}
	s.status = StatusCreated
	s.minimum = nil
	s.last = nil
	s.callbacks.reset()
	return nil
}

// Solve runs the backend and returns its outcome. Later calls return the
// same outcome without running it again.
func (s *Solver) Solve() Minimum {
	s.mu.Lock()
	if s.status != StatusCreated {
		m := s.minimum
		s.mu.Unlock()
		return m
	}
	s.status = StatusRunning
	params := s.params.Clone()
	s.mu.Unlock()

	s.callbacks.start()
	run := newRun(s, params)
	s.logger.Info("solve started", zap.Int("variables", s.problem.InputSize()),
		zap.Int("constraints", s.problem.NumConstraints()), zap.Int("callbacks", s.callbacks.Len()))

	m := s.runBackend(run)
	if run.abort != nil {
		m = run.Fail("solve aborted", run.abort)
	}
	if err := s.callbacks.solveEnd(m); err != nil {
		m = run.Fail("solve aborted at completion", err)
	}
	m = withWarnings(m, s.callbacks.Warnings())
	status := StatusOf(m)

	var last *State
	if run.state.Iteration > 0 {
		last, _ = run.state.Snapshot()
	}

	s.mu.Lock()
	s.status = status
	s.minimum = m
	s.last = last
	s.mu.Unlock()

	fields := []zap.Field{zap.Stringer("status", status), zap.Int("iterations", run.state.Iteration)}
	if r, ok := ResultOf(m); ok {
		fields = append(fields, zap.Float64("value", r.Value))
	}
	if err, ok := m.(*SolverError); ok {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Info("solve finished", fields...)
	return m
}

func (s *Solver) runBackend(run *Run) (m Minimum) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("backend panicked", zap.Any("panic", p))
			m = run.Fail(fmt.Sprintf("backend %s panicked", s.backend), fmt.Errorf("%v", p))
		}
	}()
	m = s.impl.Solve(run)
	if m == nil {
		m = run.Fail(fmt.Sprintf("backend %s returned no outcome", s.backend), nil)
	}
	return m
}

// Run is the per-solve context handed to a Backend.
type Run struct {
	solver *Solver
	params Parameters
	state  State
	abort  error
}

func newRun(s *Solver, params Parameters) *Run {
	return &Run{
		solver: s,
		params: params,
		state: State{
			X:                   make([]float64, s.problem.InputSize()),
			ConstraintViolation: make([]float64, s.problem.ConstraintOutputSize()),
		},
	}
}

// ID identifies the solve.
func (r *Run) ID() uuid.UUID { return r.solver.id }

// Problem returns the problem being solved.
func (r *Run) Problem() *problem.Problem { return r.solver.problem }

// Parameters returns the parameters for this solve.
func (r *Run) Parameters() Parameters { return r.params }

// Logger returns the solver logger.
func (r *Run) Logger() *zap.Logger { return r.solver.logger }

// MaxIterations returns the iteration limit.
func (r *Run) MaxIterations() (int, error) {
	n, err := r.params.Int(ParamMaxIterations, DefaultMaxIterations)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidParameter, ParamMaxIterations, n)
	}
	return n, nil
}

// Iterations returns the number of iterations reported so far.
func (r *Run) Iterations() int { return r.state.Iteration }

// SetStateParameter attaches a backend-specific value to the state passed to
// callbacks.
func (r *Run) SetStateParameter(key string, value any) {
	if r.state.Parameters == nil {
		r.state.Parameters = make(map[string]any)
	}
	r.state.Parameters[key] = value
}

// Iterate reports a new iterate and runs the callback chain. A nil violation
// means no constraint is violated. A non-nil error means the solve must
// stop.
func (r *Run) Iterate(x []float64, value float64, violation []float64) error {
	if r.abort != nil {
		return r.abort
	}
	if len(x) != len(r.state.X) {
		return optimization.DimensionMismatch("Run.Iterate", "iterate", len(x), len(r.state.X))
	}
	if violation != nil && len(violation) != len(r.state.ConstraintViolation) {
		return optimization.DimensionMismatch("Run.Iterate", "constraint violation", len(violation), len(r.state.ConstraintViolation))
	}

	r.state.Iteration++
	copy(r.state.X, x)
	r.state.Value = value
	if violation == nil {
		for i := range r.state.ConstraintViolation {
			r.state.ConstraintViolation[i] = 0
		}
	} else {
		copy(r.state.ConstraintViolation, violation)
	}

	if ce := r.solver.logger.Check(zap.DebugLevel, "iteration"); ce != nil {
		ce.Write(zap.Int("iteration", r.state.Iteration), zap.Float64s("x", r.state.X), zap.Float64("value", value))
	}

	if err := r.solver.callbacks.iterationEnd(&r.state); err != nil {
		r.abort = err
		return err
	}
	return nil
}

// LastResult returns the last reported iterate as a result, or nil before
// the first iteration.
func (r *Run) LastResult() *Result {
	if r.state.Iteration == 0 {
		return nil
	}
	return &Result{
		X:          append([]float64(nil), r.state.X...),
		Value:      r.state.Value,
		Iterations: r.state.Iteration,
	}
}

// Result builds the outcome for x, filling constraint values and the
// iteration count.
func (r *Run) Result(x []float64, value float64) (*Result, error) {
	constraints, err := r.solver.problem.ConstraintValues(x)
	if err != nil {
		return nil, err
	}
	return &Result{
		X:           append([]float64(nil), x...),
		Value:       value,
		Constraints: constraints,
		Iterations:  r.state.Iteration,
	}, nil
}

// Fail builds a *SolverError carrying the last iterate.
func (r *Run) Fail(message string, err error) *SolverError {
	return &SolverError{Message: message, Result: r.LastResult(), Err: err}
}

// Warn wraps result with a warning.
func (r *Run) Warn(result *Result, message string) *ResultWithWarnings {
	out := &ResultWithWarnings{Result: *result}
	out.Warnings = []SolverWarning{{Message: message, Result: &out.Result}}
	return out
}
