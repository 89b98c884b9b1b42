package callback_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zhichaoleo/roboptim-core/internal/optimization/callback"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/problem"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/testutil"
)

// descent halves the iterate until the sphere value drops below 1e-6 and
// reports x[0] <= 1 as its constraint.
type descent struct{}

func (descent) Solve(run *solver.Run) solver.Minimum {
	limit, err := run.MaxIterations()
	if err != nil {
		return run.Fail("reading parameters", err)
	}
	x := run.Problem().StartingPoint()
	for i := 0; i < limit; i++ {
		for j := range x {
			x[j] /= 2
		}
		value := x[0]*x[0] + x[1]*x[1]
		violation := []float64{0}
		if x[0] > 1 {
			violation[0] = x[0] - 1
		}
		if err := run.Iterate(x, value, violation); err != nil {
			return run.Fail("stopped", err)
		}
		if value < 1e-6 {
			break
		}
	}
	r, err := run.Result(x, x[0]*x[0]+x[1]*x[1])
	if err != nil {
		return run.Fail("result", err)
	}
	return r
}

func newSolver(t *testing.T, opts ...solver.Option) *solver.Solver {
	t.Helper()
	f := testutil.Sphere(t, 2)
	p, err := problem.New(f)
	require.NoError(t, err)
	require.NoError(t, p.SetStartingPoint([]float64{8, 8}))
	// The constraint is only used for its output size; descent reports its
	// own violation.
	_, err = p.AddConstraint(f, []problem.Interval{problem.UpperBounded(1)}, nil)
	require.NoError(t, err)

	reg := solver.NewRegistry()
	reg.MustRegister("descent", func(*problem.Problem) (solver.Backend, error) { return descent{}, nil })
	s, err := reg.Create("descent", p, opts...)
	require.NoError(t, err)
	return s
}

func TestHistory(t *testing.T) {
	h, err := callback.NewHistory()
	require.NoError(t, err)
	s := newSolver(t, solver.WithObserver(h, solver.RealTime()))

	// Snapshots allocate, so a real-time history only records failures.
	m := s.Solve()
	w, ok := m.(*solver.ResultWithWarnings)
	require.True(t, ok, "got %T", m)
	assert.NotEmpty(t, w.Warnings)
	assert.Zero(t, h.Len())

	h, err = callback.NewHistory()
	require.NoError(t, err)
	s = newSolver(t, solver.WithObserver(h))
	m = s.Solve()
	r, ok := m.(*solver.Result)
	require.True(t, ok, "got %T", m)

	all := h.All()
	require.Len(t, all, r.Iterations)
	for i, st := range all {
		assert.Equal(t, i+1, st.Iteration)
	}
	first, ok := h.Get(1)
	require.True(t, ok)
	assert.Equal(t, []float64{4, 4}, first.X)
	assert.Equal(t, []float64{3}, first.ConstraintViolation)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, r.X, last.X)

	_, ok = h.Get(1000)
	assert.False(t, ok)
	assert.Len(t, h.Since(r.Iterations-1), 2)

	// x0 = 8 / 2^k is feasible once it drops to 1, from iteration 3 on.
	feasible := h.Feasible()
	require.NotEmpty(t, feasible)
	assert.Equal(t, 3, feasible[0].Iteration)
	assert.Len(t, feasible, r.Iterations-2)
	best, ok := h.Best()
	require.True(t, ok)
	assert.Equal(t, r.Iterations, best.Iteration)
}

func TestHistoryLimit(t *testing.T) {
	h, err := callback.NewHistory(callback.WithLimit(3))
	require.NoError(t, err)
	s := newSolver(t, solver.WithObserver(h))
	m := s.Solve()
	r, ok := solver.ResultOf(m)
	require.True(t, ok)

	all := h.All()
	require.Len(t, all, 3)
	assert.Equal(t, r.Iterations-2, all[0].Iteration)
	assert.Equal(t, r.Iterations, all[2].Iteration)
}

func TestCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopAt := 4
	s := newSolver(t,
		solver.WithObserver(callback.Func(func(st *solver.State) error {
			if st.Iteration == stopAt {
				cancel()
			}
			return nil
		}, nil)),
		solver.WithObserver(callback.Cancel(ctx)),
	)

	m := s.Solve()
	e, ok := m.(*solver.SolverError)
	require.True(t, ok, "got %T", m)
	assert.ErrorIs(t, e, solver.ErrAbort)
	assert.ErrorIs(t, e, context.Canceled)
	require.NotNil(t, e.Result)
	assert.Equal(t, stopAt, e.Result.Iterations)
	assert.Equal(t, solver.StatusError, s.Status())
}

func TestMaxValue(t *testing.T) {
	s := newSolver(t, solver.WithObserver(callback.MaxValue(10)))
	m := s.Solve()
	e, ok := m.(*solver.SolverError)
	require.True(t, ok, "got %T", m)
	assert.ErrorIs(t, e, solver.ErrAbort)
	assert.Equal(t, 1, e.Result.Iterations)
}

func TestFunc(t *testing.T) {
	var iterations int
	var outcome solver.Minimum
	s := newSolver(t, solver.WithObserver(callback.Func(
		func(*solver.State) error { iterations++; return nil },
		func(m solver.Minimum) error { outcome = m; return errors.New("report lost") },
	)))

	m := s.Solve()
	w, ok := m.(*solver.ResultWithWarnings)
	require.True(t, ok, "got %T", m)
	require.NotNil(t, outcome)
	assert.Equal(t, w.Iterations, iterations)
	assert.Contains(t, w.Warnings[0].Error(), "solve end")

	empty := callback.Func(nil, nil)
	assert.NoError(t, empty.OnIterationEnd(&solver.State{}))
	assert.NoError(t, empty.OnSolveEnd(solver.NoSolution{}))
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := newSolver(t, solver.WithObserver(callback.NewLogger(zap.New(core), 2)))
	m := s.Solve()
	r, ok := m.(*solver.Result)
	require.True(t, ok, "got %T", m)

	assert.Equal(t, r.Iterations/2, logs.FilterMessage("iteration").Len())
	found := logs.FilterMessage("solution found").All()
	require.Len(t, found, 1)
	assert.Equal(t, int64(r.Iterations), found[0].ContextMap()["iterations"])
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := callback.NewMetrics(reg)
	require.NoError(t, err)

	s := newSolver(t, solver.WithObserver(metrics.Observer("descent")))
	m := s.Solve()
	r, ok := m.(*solver.Result)
	require.True(t, ok, "got %T", m)

	count, err := promtest.GatherAndCount(reg, "roboptim_solver_iterations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, float64(r.Iterations), values["roboptim_solver_iterations_total"])
	assert.Equal(t, 1.0, values["roboptim_solver_solves_total"])
	assert.Equal(t, 0.0, values["roboptim_solver_max_constraint_violation"])
	assert.InDelta(t, r.Value, values["roboptim_solver_objective_value"], 1e-12)

	_, err = callback.NewMetrics(reg)
	assert.Error(t, err, "metrics register once per registry")
}
