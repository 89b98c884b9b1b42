package problem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/function"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/problem"
)

func TestSuggestScaling(t *testing.T) {
	objective, err := function.FromFuncs("stretched", 3, 1, function.Funcs{
		Compute: func(dst, x []float64) { dst[0] = 100*x[0]*x[0] + x[1]*x[1] },
		Gradient: func(dst, x []float64, _ int) {
			dst[0] = 200 * x[0]
			dst[1] = 2 * x[1]
		},
	})
	require.NoError(t, err)
	// Value-only, so its gradient is estimated.
	constraint, err := function.FromFuncs("slope", 3, 1, function.Funcs{
		Compute: func(dst, x []float64) { dst[0] = 4 * x[2] },
	})
	require.NoError(t, err)

	p, err := problem.New(objective)
	require.NoError(t, err)
	_, err = p.AddConstraint(constraint, []problem.Interval{problem.UpperBounded(1)}, nil)
	require.NoError(t, err)
	require.NoError(t, p.SetArgumentBounds([]problem.Interval{
		problem.Bounded(-1, 1), problem.Bounded(-1, 1), problem.Unbounded(),
	}))
	require.NoError(t, p.SetStartingPoint([]float64{1, 1, 0}))

	scaling, err := problem.SuggestScaling(p, 20)
	require.NoError(t, err)
	require.Len(t, scaling, 3)
	assert.InDelta(t, 1.0/200, scaling[0], 1e-12)
	assert.InDelta(t, 0.5, scaling[1], 1e-12)
	assert.InDelta(t, 0.25, scaling[2], 1e-6)

	require.NoError(t, p.SetArgumentScaling(scaling))
	assert.NoError(t, p.Validate())
}

func TestSuggestScalingKeepsFlatVariables(t *testing.T) {
	flat, err := function.Constant(2, []float64{7})
	require.NoError(t, err)
	p, err := problem.New(flat)
	require.NoError(t, err)
	require.NoError(t, p.SetStartingPoint([]float64{0, 0}))

	scaling, err := problem.SuggestScaling(p, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, scaling)
}

func TestSuggestScalingFailures(t *testing.T) {
	p := newProblem(t)
	_, err := problem.SuggestScaling(p, 0)
	assert.Error(t, err)

	noStart, err := problem.New(p.Objective())
	require.NoError(t, err)
	_, err = problem.SuggestScaling(noStart, 3)
	assert.ErrorIs(t, err, optimization.ErrDimensionMismatch)
}
