// Package backends holds the helpers shared by the solver backends. Each
// backend lives in a sub-package that registers itself with the default
// solver registry from init, so importing it for side effects is enough:
//
//	import _ "github.com/zhichaoleo/roboptim-core/internal/optimization/backends/dummy"
package backends

import (
	"fmt"
	"math"

	"github.com/zhichaoleo/roboptim-core/internal/optimization/cache"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/function"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/problem"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
)

// CommonParameters are the cache and finite-difference settings every
// backend declares.
func CommonParameters() solver.Parameters {
	return solver.Parameters{
		solver.ParamCacheCapacity:        {Value: cache.DefaultCapacity, Description: "evaluation cache capacity"},
		solver.ParamCacheTolerance:       {Value: 0.0, Description: "evaluation cache key tolerance, zero for exact keys"},
		solver.ParamFiniteDifferenceStep: {Value: 0.0, Description: "finite-difference step for objectives without gradients, zero for the default"},
	}
}

// NewCache wraps f in an evaluation cache configured from the run
// parameters.
func NewCache(run *solver.Run, f function.Function) (*cache.Cache, error) {
	params := run.Parameters()
	capacity, err := params.Int(solver.ParamCacheCapacity, cache.DefaultCapacity)
	if err != nil {
		return nil, err
	}
	tol, err := params.Float(solver.ParamCacheTolerance, 0)
	if err != nil {
		return nil, err
	}
	return cache.New(f, cache.WithCapacity(capacity), cache.WithTolerance(tol), cache.WithPreallocation())
}

// Differentiable returns f itself when it provides gradients, otherwise its
// forward finite-difference approximation with the run's step.
func Differentiable(run *solver.Run, f function.Function) (function.Function, error) {
	if f.Level() >= function.Differentiable {
		return f, nil
	}
	step, err := run.Parameters().Float(solver.ParamFiniteDifferenceStep, 0)
	if err != nil {
		return nil, err
	}
	if step < 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w: %s must be a finite non-negative step, got %g",
			solver.ErrInvalidParameter, solver.ParamFiniteDifferenceStep, step)
	}
	var opts []function.FiniteDifferenceOption
	if step > 0 {
		opts = append(opts, function.WithStep(step))
	}
	return function.FiniteDifference(f, opts...)
}

// Project clamps x onto bounds in place.
func Project(x []float64, bounds []problem.Interval) {
	for i := range x {
		x[i] = bounds[i].Clamp(x[i])
	}
}

// Bounded reports whether any bound is finite.
func Bounded(bounds []problem.Interval) bool {
	for _, b := range bounds {
		if b != problem.Unbounded() {
			return true
		}
	}
	return false
}
