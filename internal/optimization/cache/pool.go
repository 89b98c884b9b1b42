package cache

import (
	"gonum.org/v1/gonum/mat"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
)

// entry holds everything computed at one point. Buffers are allocated once
// with the shapes of the wrapped function and recycled through entryPool.
type entry struct {
	key []float64

	value    []float64
	hasValue bool

	// Row i of jacobian is the gradient of output i.
	jacobian    *mat.Dense
	hasGradient []bool

	hessians   []*mat.SymDense
	hasHessian []bool
}

func (e *entry) reset(key []float64) {
	copy(e.key, key)
	e.hasValue = false
	for i := range e.hasGradient {
		e.hasGradient[i] = false
	}
	for i := range e.hasHessian {
		e.hasHessian[i] = false
	}
}

func (e *entry) hasJacobian() bool {
	for _, ok := range e.hasGradient {
		if !ok {
			return false
		}
	}
	return len(e.hasGradient) > 0
}

// entryPool provides reusable entries to keep allocations out of the miss
// path once the cache is warm.
type entryPool struct {
	n, m         int
	derivs       bool
	secondDerivs bool
	free         []*entry
}

func newEntryPool(n, m int, derivs, secondDerivs bool, capacity int) *entryPool {
	return &entryPool{
		n:            n,
		m:            m,
		derivs:       derivs,
		secondDerivs: secondDerivs,
		free:         make([]*entry, 0, capacity),
	}
}

// get returns a pooled entry or allocates one. Allocation fails while the
// allocation guard is active.
func (p *entryPool) get() (*entry, error) {
	if len(p.free) > 0 {
		e := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		return e, nil
	}
	if err := optimization.CheckAllocation("cache.miss"); err != nil {
		return nil, err
	}
	return p.alloc(), nil
}

// put returns an entry to the pool.
func (p *entryPool) put(e *entry) {
	p.free = append(p.free, e)
}

// fill preallocates entries until the pool holds k of them.
func (p *entryPool) fill(k int) {
	for len(p.free) < k {
		p.free = append(p.free, p.alloc())
	}
}

func (p *entryPool) alloc() *entry {
	e := &entry{
		key:   make([]float64, p.n),
		value: make([]float64, p.m),
	}
	if p.derivs {
		e.jacobian = mat.NewDense(p.m, p.n, nil)
		e.hasGradient = make([]bool, p.m)
	}
	if p.secondDerivs {
		e.hessians = make([]*mat.SymDense, p.m)
		for i := range e.hessians {
			e.hessians[i] = mat.NewSymDense(p.n, nil)
		}
		e.hasHessian = make([]bool, p.m)
	}
	return e
}
