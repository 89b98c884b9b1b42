// Package cache memoizes function evaluations keyed by the input vector.
//
// A Cache wraps a function.Function and implements it with the same sizes and
// level, so it can be used anywhere the wrapped function can. It keeps the
// most recently used points up to a fixed capacity. Lookups on a known point
// never call the wrapped function again; each kind of result (value, gradient
// of one output, hessian of one output) is filled lazily the first time it is
// asked for.
//
// Every access runs inside one mutex region, so a Cache can be shared by
// concurrent evaluators.
package cache

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"gonum.org/v1/gonum/mat"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/function"
)

// DefaultCapacity is the number of points kept when WithCapacity is not given.
const DefaultCapacity = 10

// Option configures a Cache.
type Option func(*options)

type options struct {
	capacity  int
	tolerance float64
	prealloc  bool
}

// WithCapacity sets the number of points kept.
func WithCapacity(capacity int) Option {
	return func(o *options) { o.capacity = capacity }
}

// WithTolerance makes points that round to the same multiple of tol share
// an entry. Zero, the default, means exact equality.
func WithTolerance(tol float64) Option {
	return func(o *options) { o.tolerance = tol }
}

// WithPreallocation allocates every entry up front so that misses never
// allocate, even while the allocation guard is active.
func WithPreallocation() Option {
	return func(o *options) { o.prealloc = true }
}

// Stats are the cache counters. A hit is a request answered from a stored
// result; a miss is a request that reached the wrapped function.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Entry is a copy of everything the cache can provide at one point. Fields
// above the function's level are nil.
type Entry struct {
	X        []float64
	Value    []float64
	Jacobian *mat.Dense
	Hessians []*mat.SymDense
}

// Gradient returns the gradient of output i, or nil without derivatives.
func (e Entry) Gradient(i int) []float64 {
	if e.Jacobian == nil {
		return nil
	}
	return e.Jacobian.RawRowView(i)
}

// Cache is an LRU memoizing wrapper around a function.
type Cache struct {
	f         function.Function
	tolerance float64
	capacity  int

	mu      sync.Mutex
	lru     *simplelru.LRU[uint64, *entry]
	pool    *entryPool
	scratch []float64
	stats   Stats
}

var (
	_ function.Function  = (*Cache)(nil)
	_ function.Derivable = (*Cache)(nil)
)

// New wraps f in a cache.
func New(f function.Function, opts ...Option) (*Cache, error) {
	const op = "cache.New"
	o := options{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if f == nil {
		return nil, optimization.NewError("nil function").WithOperation(op)
	}
	if o.capacity < 1 {
		return nil, optimization.NewErrorf("capacity must be positive, got %d", o.capacity).WithOperation(op)
	}
	if o.tolerance < 0 || math.IsNaN(o.tolerance) {
		return nil, optimization.NewErrorf("tolerance must be non-negative, got %g", o.tolerance).WithOperation(op)
	}

	level := f.Level()
	c := &Cache{
		f:         f,
		tolerance: o.tolerance,
		capacity:  o.capacity,
		pool: newEntryPool(f.InputSize(), f.OutputSize(),
			level >= function.Differentiable, level >= function.TwiceDifferentiable, o.capacity+1),
		scratch: make([]float64, f.InputSize()),
	}
	lru, err := simplelru.NewLRU[uint64, *entry](o.capacity, func(_ uint64, e *entry) {
		c.pool.put(e)
	})
	if err != nil {
		return nil, optimization.WrapError(err, "creating LRU").WithOperation(op)
	}
	c.lru = lru
	if o.prealloc {
		// One spare takes the misses while the cache is full.
		c.pool.fill(o.capacity + 1)
	}
	return c, nil
}

// Function returns the wrapped function.
func (c *Cache) Function() function.Function { return c.f }

func (c *Cache) Name() string { return c.f.Name() }

func (c *Cache) InputSize() int { return c.f.InputSize() }

func (c *Cache) OutputSize() int { return c.f.OutputSize() }

// Level returns the level of the wrapped function.
func (c *Cache) Level() function.Level { return c.f.Level() }

// Capacity returns the maximum number of points kept.
func (c *Cache) Capacity() int { return c.capacity }

// Len returns the number of points currently stored.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns the stored points from least to most recently used.
func (c *Cache) Keys() [][]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	hashes := c.lru.Keys()
	keys := make([][]float64, 0, len(hashes))
	for _, h := range hashes {
		if e, ok := c.lru.Peek(h); ok {
			keys = append(keys, append([]float64(nil), e.key...))
		}
	}
	return keys
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Purge drops every entry. Counters are kept.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Evaluate writes f(x) into dst, from the cache when possible.
func (c *Cache) Evaluate(dst, x []float64) error {
	const op = "Evaluate"
	if err := c.checkArgument(op, x); err != nil {
		return err
	}
	if len(dst) != c.f.OutputSize() {
		return c.mismatch(op, "result", len(dst), c.f.OutputSize())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access(x, func(e *entry) error {
		if err := c.fillValue(e, x); err != nil {
			return err
		}
		copy(dst, e.value)
		return nil
	})
}

// Gradient writes the gradient of output index into dst.
func (c *Cache) Gradient(dst, x []float64, index int) error {
	const op = "Gradient"
	if c.f.Level() < function.Differentiable {
		return c.unsupported(op)
	}
	if err := c.checkArgument(op, x); err != nil {
		return err
	}
	if len(dst) != c.f.InputSize() {
		return c.mismatch(op, "gradient", len(dst), c.f.InputSize())
	}
	if err := c.checkIndex(op, index); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access(x, func(e *entry) error {
		if err := c.fillGradient(e, x, index); err != nil {
			return err
		}
		copy(dst, e.jacobian.RawRowView(index))
		return nil
	})
}

// Jacobian writes the jacobian into dst.
func (c *Cache) Jacobian(dst *mat.Dense, x []float64) error {
	const op = "Jacobian"
	if c.f.Level() < function.Differentiable {
		return c.unsupported(op)
	}
	if err := c.checkArgument(op, x); err != nil {
		return err
	}
	if dst == nil || dst.IsEmpty() {
		return c.mismatch(op, "jacobian rows", 0, c.f.OutputSize())
	}
	if r, cols := dst.Dims(); r != c.f.OutputSize() || cols != c.f.InputSize() {
		return optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"jacobian is %dx%d, expected %dx%d", r, cols, c.f.OutputSize(), c.f.InputSize()).WithOperation(op).WithComponent(c.Name())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access(x, func(e *entry) error {
		if err := c.fillJacobian(e, x); err != nil {
			return err
		}
		dst.Copy(e.jacobian)
		return nil
	})
}

// Hessian writes the hessian of output index into dst.
func (c *Cache) Hessian(dst *mat.SymDense, x []float64, index int) error {
	const op = "Hessian"
	if c.f.Level() < function.TwiceDifferentiable {
		return c.unsupported(op)
	}
	if err := c.checkArgument(op, x); err != nil {
		return err
	}
	if dst == nil || dst.IsEmpty() || dst.SymmetricDim() != c.f.InputSize() {
		var got int
		if dst != nil && !dst.IsEmpty() {
			got = dst.SymmetricDim()
		}
		return c.mismatch(op, "hessian", got, c.f.InputSize())
	}
	if err := c.checkIndex(op, index); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access(x, func(e *entry) error {
		if err := c.fillHessian(e, x, index); err != nil {
			return err
		}
		dst.CopySym(e.hessians[index])
		return nil
	})
}

// Derivative is forwarded to the wrapped function without caching.
func (c *Cache) Derivative(dst []float64, t float64, order int) error {
	d, ok := c.f.(function.Derivable)
	if !ok || c.f.Level() < function.NTimesDifferentiable {
		return c.unsupported("Derivative")
	}
	return d.Derivative(dst, t, order)
}

// GetOrCompute returns every result the function's level provides at x,
// computing only what is missing.
func (c *Cache) GetOrCompute(x []float64) (Entry, error) {
	const op = "GetOrCompute"
	if err := c.checkArgument(op, x); err != nil {
		return Entry{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var out Entry
	err := c.access(x, func(e *entry) error {
		if err := c.fillValue(e, x); err != nil {
			return err
		}
		level := c.f.Level()
		if level >= function.Differentiable {
			if err := c.fillJacobian(e, x); err != nil {
				return err
			}
		}
		if level >= function.TwiceDifferentiable {
			for i := range e.hessians {
				if err := c.fillHessian(e, x, i); err != nil {
					return err
				}
			}
		}

		if err := optimization.CheckAllocation("cache.GetOrCompute"); err != nil {
			return err
		}
		out = Entry{
			X:     append([]float64(nil), e.key...),
			Value: append([]float64(nil), e.value...),
		}
		if e.jacobian != nil {
			out.Jacobian = mat.DenseCopyOf(e.jacobian)
		}
		for _, h := range e.hessians {
			cp := mat.NewSymDense(h.SymmetricDim(), nil)
			cp.CopySym(h)
			out.Hessians = append(out.Hessians, cp)
		}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return out, nil
}

// access runs fill on the entry for x. A stored entry is promoted to most
// recently used. On a miss fill works on a spare entry, which is stored only
// if fill succeeds, so a failed evaluation never evicts a valid point.
// Callers hold c.mu.
func (c *Cache) access(x []float64, fill func(*entry) error) error {
	key := c.normalize(x)
	h := hash(key)
	if e, ok := c.lru.Get(h); ok && equal(e.key, key) {
		return fill(e)
	}

	e, err := c.pool.get()
	if err != nil {
		return err
	}
	e.reset(key)
	if err := fill(e); err != nil {
		c.pool.put(e)
		return err
	}
	c.store(h, e)
	return nil
}

// store inserts a filled entry, evicting the least recently used one past
// capacity. On a hash collision the newer point replaces the stored one.
func (c *Cache) store(h uint64, e *entry) {
	if _, ok := c.lru.Peek(h); ok {
		c.lru.Remove(h)
	} else if c.lru.Len() >= c.capacity {
		if _, _, ok := c.lru.RemoveOldest(); ok {
			c.stats.Evictions++
		}
	}
	c.lru.Add(h, e)
}

func (c *Cache) fillValue(e *entry, x []float64) error {
	if e.hasValue {
		c.stats.Hits++
		return nil
	}
	c.stats.Misses++
	if err := c.f.Evaluate(e.value, x); err != nil {
		return err
	}
	e.hasValue = true
	return nil
}

func (c *Cache) fillGradient(e *entry, x []float64, i int) error {
	if e.hasGradient[i] {
		c.stats.Hits++
		return nil
	}
	c.stats.Misses++
	if err := c.f.Gradient(e.jacobian.RawRowView(i), x, i); err != nil {
		return err
	}
	e.hasGradient[i] = true
	return nil
}

func (c *Cache) fillJacobian(e *entry, x []float64) error {
	if e.hasJacobian() {
		c.stats.Hits++
		return nil
	}
	c.stats.Misses++
	// Jacobian overwrites every row, including gradients already stored.
	for i := range e.hasGradient {
		e.hasGradient[i] = false
	}
	if err := c.f.Jacobian(e.jacobian, x); err != nil {
		return err
	}
	for i := range e.hasGradient {
		e.hasGradient[i] = true
	}
	return nil
}

func (c *Cache) fillHessian(e *entry, x []float64, i int) error {
	if e.hasHessian[i] {
		c.stats.Hits++
		return nil
	}
	c.stats.Misses++
	if err := c.f.Hessian(e.hessians[i], x, i); err != nil {
		return err
	}
	e.hasHessian[i] = true
	return nil
}

// normalize returns the lookup key for x in the scratch buffer. Callers hold
// c.mu.
func (c *Cache) normalize(x []float64) []float64 {
	copy(c.scratch, x)
	if c.tolerance > 0 {
		for i, v := range c.scratch {
			c.scratch[i] = math.Round(v/c.tolerance) * c.tolerance
		}
	}
	return c.scratch
}

func hash(key []float64) uint64 {
	var d xxhash.Digest
	d.Reset()
	var buf [8]byte
	for _, v := range key {
		// Fold -0 into +0 so that they share an entry.
		if v == 0 {
			v = 0
		}
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

func equal(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *Cache) checkArgument(op string, x []float64) error {
	if len(x) != c.f.InputSize() {
		return c.mismatch(op, "argument", len(x), c.f.InputSize())
	}
	return nil
}

func (c *Cache) checkIndex(op string, index int) error {
	if index < 0 || index >= c.f.OutputSize() {
		return optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"function index %d out of range [0, %d)", index, c.f.OutputSize()).WithOperation(op).WithComponent(c.Name())
	}
	return nil
}

func (c *Cache) mismatch(op, what string, got, want int) error {
	return optimization.DimensionMismatch(op, what, got, want).WithComponent(c.Name())
}

func (c *Cache) unsupported(op string) error {
	return optimization.Unsupported(op, c.Name(), "function is only "+c.f.Level().String())
}
