package dummy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/zhichaoleo/roboptim-core/internal/optimization/backends/dummy"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/callback"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/function"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/problem"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/testutil"
)

func sphereProblem(t *testing.T, start ...float64) *problem.Problem {
	t.Helper()
	p, err := problem.New(testutil.Sphere(t, len(start)))
	require.NoError(t, err)
	require.NoError(t, p.SetStartingPoint(start))
	return p
}

func solve(t *testing.T, backend string, p *problem.Problem, opts ...solver.Option) (solver.Minimum, []*solver.State) {
	t.Helper()
	h, err := callback.NewHistory()
	require.NoError(t, err)
	s, err := solver.Create(backend, p, append(opts, solver.WithObserver(h))...)
	require.NoError(t, err)
	return s.Solve(), h.All()
}

func TestBackendsAreRegistered(t *testing.T) {
	assert.Subset(t, solver.Backends(), []string{dummy.Name, dummy.NullName})
}

func TestDescentOnSphere(t *testing.T) {
	m, states := solve(t, dummy.Name, sphereProblem(t, 3, 3))

	r, ok := m.(*solver.Result)
	require.True(t, ok, "got %T: %v", m, m)
	require.GreaterOrEqual(t, len(states), 3)

	testutil.AssertFloat64SlicesEqual(t, states[0].X, []float64{2.4, 2.4}, 1e-12)
	assert.InDelta(t, 11.52, states[0].Value, 1e-12)
	for i := 1; i < len(states); i++ {
		assert.Less(t, states[i].Value, states[i-1].Value, "iteration %d", states[i].Iteration)
	}
	testutil.AssertFloat64SlicesEqual(t, r.X, []float64{0, 0}, 1e-6)
	assert.Equal(t, len(states), r.Iterations)
	assert.Empty(t, r.Constraints)
}

func TestDescentProjectsOntoBounds(t *testing.T) {
	p := sphereProblem(t, 2, 2)
	require.NoError(t, p.SetArgumentBounds([]problem.Interval{problem.Bounded(1, 2), problem.Bounded(-1, 1)}))

	m, states := solve(t, dummy.Name, p)
	r, ok := m.(*solver.Result)
	require.True(t, ok, "got %T: %v", m, m)

	for _, s := range states {
		assert.GreaterOrEqual(t, s.X[0], 1.0)
		assert.LessOrEqual(t, s.X[1], 1.0)
	}
	testutil.AssertFloat64SlicesEqual(t, r.X, []float64{1, 0}, 1e-6)
}

func TestDescentScaling(t *testing.T) {
	p := sphereProblem(t, 3, 3)
	require.NoError(t, p.SetArgumentScaling([]float64{1, 0.5}))

	_, states := solve(t, dummy.Name, p)
	require.NotEmpty(t, states)
	testutil.AssertFloat64SlicesEqual(t, states[0].X, []float64{2.4, 2.7}, 1e-12)
}

func TestDescentIterationLimit(t *testing.T) {
	m, states := solve(t, dummy.Name, sphereProblem(t, 3, 3),
		solver.WithParameters(solver.Parameters{solver.ParamMaxIterations: {Value: 5}}))

	w, ok := m.(*solver.ResultWithWarnings)
	require.True(t, ok, "got %T: %v", m, m)
	assert.Len(t, states, 5)
	assert.Equal(t, 5, w.Iterations)
	require.Len(t, w.Warnings, 1)
	assert.Contains(t, w.Warnings[0].Message, "maximum number of iterations")
	assert.Equal(t, solver.StatusSolvedWithWarnings, solver.StatusOf(m))
}

func TestDescentReportsConstraintViolation(t *testing.T) {
	p := sphereProblem(t, 3, 3)
	x0, err := function.Linear(mat.NewDense(1, 2, []float64{1, 0}), nil)
	require.NoError(t, err)
	_, err = p.AddConstraint(x0, []problem.Interval{problem.LowerBounded(5)}, nil)
	require.NoError(t, err)

	m, states := solve(t, dummy.Name, p)
	w, ok := m.(*solver.ResultWithWarnings)
	require.True(t, ok, "got %T: %v", m, m)
	require.NotEmpty(t, states)
	assert.InDelta(t, 5-2.4, states[0].ConstraintViolation[0], 1e-12)
	assert.Contains(t, w.Warnings[0].Message, "constraints violated")
	require.Len(t, w.Constraints, 1)
	assert.InDelta(t, w.X[0], w.Constraints[0], 1e-12)
}

func shiftedSphere(t *testing.T) *problem.Problem {
	t.Helper()
	f, err := function.FromFuncs("shifted sphere", 2, 1, function.Funcs{
		Compute: func(dst, x []float64) {
			dst[0] = (x[0]-1)*(x[0]-1) + (x[1]+2)*(x[1]+2)
		},
	})
	require.NoError(t, err)
	require.Equal(t, function.ValueOnly, f.Level())
	p, err := problem.New(f)
	require.NoError(t, err)
	require.NoError(t, p.SetStartingPoint([]float64{0, 0}))
	return p
}

func TestDescentDifferentiatesValueOnlyObjectives(t *testing.T) {
	for name, step := range map[string]float64{"default step": 0, "explicit step": 1e-7} {
		t.Run(name, func(t *testing.T) {
			m, _ := solve(t, dummy.Name, shiftedSphere(t),
				solver.WithParameters(solver.Parameters{
					dummy.ParamTolerance:             {Value: 1e-4},
					solver.ParamFiniteDifferenceStep: {Value: step},
				}))
			r, ok := m.(*solver.Result)
			require.True(t, ok, "got %T: %v", m, m)
			testutil.AssertFloat64SlicesEqual(t, r.X, []float64{1, -2}, 1e-3)
		})
	}

	m, _ := solve(t, dummy.Name, shiftedSphere(t),
		solver.WithParameters(solver.Parameters{solver.ParamFiniteDifferenceStep: {Value: -1.0}}))
	e, ok := m.(*solver.SolverError)
	require.True(t, ok, "got %T", m)
	assert.ErrorIs(t, e, solver.ErrInvalidParameter)
}

func TestDescentRejectsInvalidStep(t *testing.T) {
	m, states := solve(t, dummy.Name, sphereProblem(t, 1, 1),
		solver.WithParameters(solver.Parameters{dummy.ParamStep: {Value: -1.0}}))

	e, ok := m.(*solver.SolverError)
	require.True(t, ok, "got %T", m)
	assert.ErrorIs(t, e, solver.ErrInvalidParameter)
	assert.Nil(t, e.Result)
	assert.Empty(t, states)
}

func TestDescentDeclaresParameters(t *testing.T) {
	s, err := solver.Create(dummy.Name, sphereProblem(t, 1, 1))
	require.NoError(t, err)
	params := s.Parameters()

	step, err := params.Float(dummy.ParamStep, 0)
	require.NoError(t, err)
	assert.Equal(t, dummy.DefaultStep, step)
	assert.Contains(t, params.Keys(), solver.ParamCacheCapacity)
	assert.Contains(t, params.Keys(), solver.ParamFiniteDifferenceStep)
	assert.NotEmpty(t, params[dummy.ParamTolerance].Description)
}

func TestNullAlwaysFails(t *testing.T) {
	m, states := solve(t, dummy.NullName, sphereProblem(t, 1, 2))

	e, ok := m.(*solver.SolverError)
	require.True(t, ok, "got %T", m)
	require.NotNil(t, e.Result)
	assert.Equal(t, []float64{1, 2}, e.Result.X)
	assert.Equal(t, 5.0, e.Result.Value)
	assert.Equal(t, 1, e.Result.Iterations)
	assert.Len(t, states, 1)
}
