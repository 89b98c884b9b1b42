package solver

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
)

// ErrAbort is returned by a callback to stop the solve. The solve ends with
// a *SolverError whatever the callback's registration options.
var ErrAbort = errors.New("solve aborted by callback")

// Observer is notified at the end of every iteration.
type Observer interface {
	OnIterationEnd(state *State) error
}

// SolveEndObserver is an Observer that also wants the final outcome.
type SolveEndObserver interface {
	Observer
	OnSolveEnd(m Minimum) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(state *State) error

// OnIterationEnd calls f.
func (f ObserverFunc) OnIterationEnd(state *State) error { return f(state) }

// CallbackOption configures a registration.
type CallbackOption func(*callback)

// Fatal makes any failure of the callback abort the solve.
func Fatal() CallbackOption {
	return func(c *callback) { c.fatal = true }
}

// RealTime runs the callback with the allocation guard active.
func RealTime() CallbackOption {
	return func(c *callback) { c.realTime = true }
}

// Named sets the name used in warnings and logs.
func Named(name string) CallbackOption {
	return func(c *callback) { c.name = name }
}

type callback struct {
	observer Observer
	name     string
	fatal    bool
	realTime bool
}

// Multiplexer notifies an ordered list of observers. Registration closes
// when solving starts. A failing observer never prevents the others from
// running; its failure is recorded as a warning.
type Multiplexer struct {
	logger *zap.Logger

	mu        sync.Mutex
	callbacks []*callback
	started   bool
	warnings  []SolverWarning
}

// NewMultiplexer returns an empty multiplexer.
func NewMultiplexer(logger *zap.Logger) *Multiplexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multiplexer{logger: logger}
}

// Register appends o to the chain.
func (m *Multiplexer) Register(o Observer, opts ...CallbackOption) error {
	const op = "Multiplexer.Register"
	if o == nil {
		return optimization.NewError("nil observer").WithOperation(op)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return optimization.WrapError(optimization.ErrSolveStarted, "callbacks must be registered before solving").WithOperation(op)
	}
	c := &callback{observer: o}
	for _, opt := range opts {
		opt(c)
	}
	if c.name == "" {
		c.name = fmt.Sprintf("#%d (%T)", len(m.callbacks), o)
	}
	m.callbacks = append(m.callbacks, c)
	return nil
}

// Len returns the number of registered observers.
func (m *Multiplexer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.callbacks)
}

// Warnings returns the failures recorded during the last solve.
func (m *Multiplexer) Warnings() []SolverWarning {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SolverWarning(nil), m.warnings...)
}

func (m *Multiplexer) start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	m.warnings = nil
}

func (m *Multiplexer) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	m.warnings = nil
}

// iterationEnd runs every observer on state and returns the first error
// that must abort the solve.
func (m *Multiplexer) iterationEnd(state *State) error {
	var abort error
	for _, c := range m.callbacks {
		err := m.invoke(c, func() error { return c.observer.OnIterationEnd(state) })
		if err == nil {
			continue
		}
		m.record(c, fmt.Sprintf("callback %s failed at iteration %d", c.name, state.Iteration), err)
		if abort == nil && (c.fatal || errors.Is(err, ErrAbort)) {
			abort = fmt.Errorf("callback %s: %w", c.name, err)
		}
	}
	return abort
}

// solveEnd notifies the observers that want the final outcome.
func (m *Multiplexer) solveEnd(result Minimum) error {
	var abort error
	for _, c := range m.callbacks {
		end, ok := c.observer.(SolveEndObserver)
		if !ok {
			continue
		}
		err := m.invoke(c, func() error { return end.OnSolveEnd(result) })
		if err == nil {
			continue
		}
		m.record(c, fmt.Sprintf("callback %s failed at solve end", c.name), err)
		if abort == nil && (c.fatal || errors.Is(err, ErrAbort)) {
			abort = fmt.Errorf("callback %s: %w", c.name, err)
		}
	}
	return abort
}

func (m *Multiplexer) invoke(c *callback, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	if c.realTime {
		return optimization.WithoutAllocation(fn)
	}
	return fn()
}

func (m *Multiplexer) record(c *callback, message string, err error) {
	m.logger.Warn("callback failed",
		zap.String("callback", c.name),
		zap.Bool("fatal", c.fatal),
		zap.Error(err),
	)
	m.mu.Lock()
	m.warnings = append(m.warnings, SolverWarning{Message: message, Err: err})
	m.mu.Unlock()
}
