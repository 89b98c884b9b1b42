package solver

import (
	"sort"
	"strings"
	"sync"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/problem"
)

// Constructor builds a backend for a validated problem. It may reject
// problems the backend cannot handle.
type Constructor func(p *problem.Problem) (Backend, error)

// Registry maps backend names to constructors.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Constructor)}
}

// Register adds a backend under name.
func (r *Registry) Register(name string, ctor Constructor) error {
	const op = "Registry.Register"
	if name == "" || ctor == nil {
		return optimization.NewError("backend name and constructor are required").WithOperation(op)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.backends[name]; dup {
		return optimization.WrapErrorf(optimization.ErrBackendAlreadyRegistered, "%q", name).WithOperation(op)
	}
	r.backends[name] = ctor
	return nil
}

// MustRegister is Register that panics on error, for use from init.
func (r *Registry) MustRegister(name string, ctor Constructor) {
	if err := r.Register(name, ctor); err != nil {
		panic(err)
	}
}

// Backends returns the registered names, sorted.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create validates p, builds the named backend and freezes p. It returns
// either a ready solver or an error, never both.
func (r *Registry) Create(name string, p *problem.Problem, opts ...Option) (*Solver, error) {
	const op = "solver.Create"
	r.mu.RLock()
	ctor, ok := r.backends[name]
	r.mu.RUnlock()
	if !ok {
		return nil, optimization.WrapErrorf(optimization.ErrUnknownBackend,
			"%q (registered: %s)", name, strings.Join(r.Backends(), ", ")).WithOperation(op)
	}
	if p == nil {
		return nil, optimization.NewError("nil problem").WithOperation(op)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	impl, err := ctor(p)
	if err != nil {
		return nil, optimization.WrapError(err, "creating backend").WithOperation(op).WithComponent(name)
	}
	s, err := newSolver(name, p, impl, opts...)
	if err != nil {
		return nil, optimization.WrapError(err, "configuring solver").WithOperation(op).WithComponent(name)
	}
	p.Freeze()
	return s, nil
}

// DefaultRegistry is the process-wide registry backends add themselves to.
var DefaultRegistry = NewRegistry()

// Register adds a backend to DefaultRegistry.
func Register(name string, ctor Constructor) error { return DefaultRegistry.Register(name, ctor) }

// MustRegister adds a backend to DefaultRegistry and panics on error.
func MustRegister(name string, ctor Constructor) { DefaultRegistry.MustRegister(name, ctor) }

// Create builds a solver from DefaultRegistry.
func Create(name string, p *problem.Problem, opts ...Option) (*Solver, error) {
	return DefaultRegistry.Create(name, p, opts...)
}

// Backends lists the backends of DefaultRegistry.
func Backends() []string { return DefaultRegistry.Backends() }
