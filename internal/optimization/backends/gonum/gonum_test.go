package gonum_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/backends/gonum"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/callback"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/catalog"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/problem"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/testutil"
)

func catalogProblem(t *testing.T, name string) (catalog.Entry, *problem.Problem) {
	t.Helper()
	e, err := catalog.Lookup(name)
	require.NoError(t, err)
	p, err := e.Problem()
	require.NoError(t, err)
	return e, p
}

func TestBackendsAreRegistered(t *testing.T) {
	assert.Subset(t, solver.Backends(), gonum.Names())
	assert.Nil(t, gonum.Constructor("gonum-simplex"))
}

func TestMethodsSolveCatalogProblems(t *testing.T) {
	tests := []struct {
		backend string
		problem string
		tol     float64
		params  solver.Parameters
	}{
		{backend: "gonum-bfgs", problem: "rosenbrock", tol: 1e-5},
		{backend: "gonum-lbfgs", problem: "rosenbrock", tol: 1e-5},
		{backend: "gonum-bfgs", problem: "wood", tol: 1e-4},
		{backend: "gonum-newton", problem: "beale", tol: 1e-5},
		{backend: "gonum-newton", problem: "sphere", tol: 1e-8},
		{backend: "gonum-gradient-descent", problem: "sphere", tol: 1e-5},
		{backend: "gonum-nelder-mead", problem: "beale-value-only", tol: 1e-3},
		// Value-only objectives are differentiated numerically, which limits
		// the reachable gradient norm.
		{
			backend: "gonum-bfgs", problem: "beale-value-only", tol: 1e-3,
			params: solver.Parameters{gonum.ParamGradientThreshold: {Value: 1e-5}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.backend+"/"+tt.problem, func(t *testing.T) {
			e, p := catalogProblem(t, tt.problem)
			h, err := callback.NewHistory()
			require.NoError(t, err)
			s, err := solver.Create(tt.backend, p, solver.WithObserver(h), solver.WithParameters(tt.params))
			require.NoError(t, err)

			m := s.Solve()
			r, ok := solver.ResultOf(m)
			require.True(t, ok, "got %T: %v", m, m)
			testutil.AssertFloat64SlicesEqual(t, r.X, e.Solution, tt.tol)
			assert.InDelta(t, e.Value, r.Value, tt.tol)

			assert.Equal(t, h.Len(), r.Iterations)
			if last, ok := h.Last(); ok {
				assert.Equal(t, r.Iterations, last.Iteration)
			}
		})
	}
}

func TestRejectsConstrainedProblems(t *testing.T) {
	_, p := catalogProblem(t, "hs071")
	s, err := solver.Create("gonum-bfgs", p)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, optimization.ErrUnsupportedOperation)
	assert.False(t, p.Frozen())
}

func TestNewtonNeedsHessians(t *testing.T) {
	_, p := catalogProblem(t, "rosenbrock")
	_, err := solver.Create("gonum-newton", p)
	assert.ErrorIs(t, err, optimization.ErrUnsupportedOperation)
}

func TestBoundsAreEnforced(t *testing.T) {
	_, p := catalogProblem(t, "sphere")
	require.NoError(t, p.SetArgumentBounds([]problem.Interval{
		problem.LowerBounded(1), problem.Unbounded(), problem.UpperBounded(-2),
	}))
	h, err := callback.NewHistory()
	require.NoError(t, err)
	s, err := solver.Create("gonum-nelder-mead", p, solver.WithObserver(h))
	require.NoError(t, err)

	m := s.Solve()
	r, ok := solver.ResultOf(m)
	require.True(t, ok, "got %T: %v", m, m)
	for _, st := range h.All() {
		assert.GreaterOrEqual(t, st.X[0], 1.0)
		assert.LessOrEqual(t, st.X[2], -2.0)
	}
	testutil.AssertFloat64SlicesEqual(t, r.X, []float64{1, 0, -2}, 1e-3)
}

func TestIterationLimitIsAWarning(t *testing.T) {
	_, p := catalogProblem(t, "rosenbrock")
	s, err := solver.Create("gonum-gradient-descent", p,
		solver.WithParameters(solver.Parameters{solver.ParamMaxIterations: {Value: 3}}))
	require.NoError(t, err)

	m := s.Solve()
	w, ok := m.(*solver.ResultWithWarnings)
	require.True(t, ok, "got %T: %v", m, m)
	assert.Positive(t, w.Iterations)
	assert.LessOrEqual(t, w.Iterations, 3)
	require.NotEmpty(t, w.Warnings)
	assert.Contains(t, w.Warnings[0].Message, "stopped before convergence")
}

func TestCancelStopsMinimize(t *testing.T) {
	_, p := catalogProblem(t, "rosenbrock")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := solver.Create("gonum-bfgs", p, solver.WithObserver(callback.Cancel(ctx)))
	require.NoError(t, err)

	m := s.Solve()
	e, ok := m.(*solver.SolverError)
	require.True(t, ok, "got %T", m)
	assert.ErrorIs(t, e, context.Canceled)
	require.NotNil(t, e.Result)
	assert.Equal(t, 1, e.Result.Iterations)
}
