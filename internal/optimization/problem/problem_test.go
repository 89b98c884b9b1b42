package problem_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/function"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/problem"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/testutil"
)

func newProblem(t *testing.T) *problem.Problem {
	t.Helper()
	p, err := problem.New(testutil.Sphere(t, 2))
	require.NoError(t, err)
	require.NoError(t, p.SetStartingPoint([]float64{3, 3}))
	return p
}

func TestDefaults(t *testing.T) {
	p := newProblem(t)

	assert.Equal(t, 2, p.InputSize())
	assert.Equal(t, []float64{1, 1}, p.ArgumentScaling())
	for _, b := range p.ArgumentBounds() {
		assert.True(t, math.IsInf(b.Lower, -1))
		assert.True(t, math.IsInf(b.Upper, 1))
	}
	assert.Nil(t, p.ArgumentNames())
	assert.NoError(t, p.Validate())

	x := p.StartingPoint()
	x[0] = 42
	assert.Equal(t, []float64{3, 3}, p.StartingPoint(), "getters return copies")
}

func TestValidateReportsEveryViolation(t *testing.T) {
	p := newProblem(t)
	require.NoError(t, p.SetStartingPoint([]float64{1, 2, 3}))
	require.NoError(t, p.SetArgumentScaling([]float64{1}))

	err := p.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, optimization.ErrInvalidProblem)

	violations := problem.Violations(err)
	require.Len(t, violations, 2)
	assert.Contains(t, violations[0].Error(), "starting point")
	assert.Contains(t, violations[1].Error(), "argument scaling")
	for _, v := range violations {
		assert.ErrorIs(t, v, optimization.ErrInvalidProblem)
	}
}

func TestValidateConstraints(t *testing.T) {
	p := newProblem(t)

	lin, err := function.Linear(mat.NewDense(2, 3, nil), nil)
	require.NoError(t, err)
	_, err = p.AddConstraint(lin, []problem.Interval{problem.Bounded(1, 0), problem.Unbounded(), problem.Unbounded()}, []float64{1, -1})
	require.NoError(t, err)

	vector, err := function.Linear(mat.NewDense(1, 2, []float64{1, 1}), nil)
	require.NoError(t, err)
	require.NoError(t, p.SetArgumentBounds([]problem.Interval{problem.Bounded(0, 1), {Lower: math.NaN(), Upper: 1}}))
	require.NoError(t, p.SetArgumentScaling([]float64{0, 1}))

	objective, err := function.Linear(mat.NewDense(2, 2, nil), nil)
	require.NoError(t, err)
	q, err := problem.New(objective)
	require.NoError(t, err)
	_, err = q.AddConstraint(vector, nil, nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		problem  *problem.Problem
		expected []string
	}{
		{
			name:    "constraint sizes, ordering and scales",
			problem: p,
			expected: []string{
				"bound 1 [NaN, 1]",
				"scale 0 is 0",
				"input size 3",
				"3 bounds for 2 outputs",
				"bound 0 [1, 0]",
				"scale 1 is -1",
			},
		},
		{
			name:     "vector objective and missing start",
			problem:  q,
			expected: []string{"expected a scalar", "not set", "0 bounds for 1 outputs"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.problem.Validate()
			require.ErrorIs(t, err, optimization.ErrInvalidProblem)
			violations := problem.Violations(err)
			assert.Len(t, violations, len(tt.expected), "%v", violations)
			for _, want := range tt.expected {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestAddConstraintBroadcastsBounds(t *testing.T) {
	p := newProblem(t)
	lin, err := function.Linear(mat.NewDense(3, 2, []float64{1, 0, 0, 1, 1, 1}), nil)
	require.NoError(t, err)

	i, err := p.AddConstraint(lin, []problem.Interval{problem.LowerBounded(0)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	c := p.Constraint(0)
	assert.Len(t, c.Bounds, 3)
	assert.Equal(t, []float64{1, 1, 1}, c.Scales)
	assert.Equal(t, 3, p.ConstraintOutputSize())
	assert.NoError(t, p.Validate())

	split, err := function.Split(lin, 2)
	require.NoError(t, err)
	require.NoError(t, p.ReplaceConstraint(0, split, []problem.Interval{problem.Equal(1)}, []float64{2}))
	assert.Equal(t, 1, p.ConstraintOutputSize())
	assert.Error(t, p.ReplaceConstraint(3, split, nil, nil))

	_, err = p.AddConstraint(nil, nil, nil)
	assert.Error(t, err)
}

func TestConstraintViolation(t *testing.T) {
	p := newProblem(t)
	lin, err := function.Linear(mat.NewDense(2, 2, []float64{1, 0, 0, 1}), nil)
	require.NoError(t, err)
	_, err = p.AddConstraint(lin, []problem.Interval{problem.Bounded(0, 1), problem.UpperBounded(-1)}, []float64{1, 10})
	require.NoError(t, err)

	v, err := p.ConstraintViolation([]float64{2, 0})
	require.NoError(t, err)
	testutil.AssertFloat64SlicesEqual(t, v, []float64{1, 10}, 1e-12)

	values, err := p.ConstraintValues([]float64{0.5, -3})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -3}, values)

	v, err = p.ConstraintViolation([]float64{0.5, -3})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, v)

	_, err = p.ConstraintViolation([]float64{1})
	assert.ErrorIs(t, err, optimization.ErrDimensionMismatch)
}

func TestConstraintViolationRejectsMismatchedBounds(t *testing.T) {
	lin, err := function.Linear(mat.NewDense(2, 2, []float64{1, 0, 0, 1}), nil)
	require.NoError(t, err)

	tests := map[string]struct {
		bounds []problem.Interval
		scales []float64
	}{
		"missing bound": {bounds: nil},
		"extra bound":   {bounds: []problem.Interval{problem.Unbounded(), problem.Unbounded(), problem.Unbounded()}},
		"missing scale": {bounds: []problem.Interval{problem.Unbounded()}, scales: []float64{1}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			p := newProblem(t)
			_, err := p.AddConstraint(lin, tt.bounds, tt.scales)
			require.NoError(t, err)
			_, err = p.ConstraintViolation([]float64{0, 0})
			assert.ErrorIs(t, err, optimization.ErrInvalidProblem)
		})
	}
}

func TestFrozenProblemRejectsMutation(t *testing.T) {
	p := newProblem(t)
	p.Freeze()
	assert.True(t, p.Frozen())

	lin, err := function.Linear(mat.NewDense(1, 2, nil), nil)
	require.NoError(t, err)

	_, err = p.AddConstraint(lin, nil, nil)
	assert.ErrorIs(t, err, optimization.ErrProblemFrozen)
	assert.ErrorIs(t, p.SetStartingPoint([]float64{0, 0}), optimization.ErrProblemFrozen)
	assert.ErrorIs(t, p.SetArgumentScaling([]float64{2, 2}), optimization.ErrProblemFrozen)
	assert.ErrorIs(t, p.SetArgumentBounds(nil), optimization.ErrProblemFrozen)
	assert.ErrorIs(t, p.SetArgumentNames([]string{"a", "b"}), optimization.ErrProblemFrozen)
	assert.Equal(t, []float64{3, 3}, p.StartingPoint())
}

func TestInterval(t *testing.T) {
	i := problem.Bounded(-1, 2)
	assert.True(t, i.Contains(0))
	assert.False(t, i.Contains(3))
	assert.Equal(t, 1.0, i.Violation(3))
	assert.Equal(t, 0.5, i.Violation(-1.5))
	assert.Equal(t, 2.0, i.Clamp(5))
	assert.Equal(t, "[-1, 2]", i.String())
	assert.False(t, problem.Bounded(2, 1).Valid())
	assert.True(t, problem.Unbounded().Contains(math.MaxFloat64))

	// NaN is never feasible.
	assert.False(t, problem.Unbounded().Contains(math.NaN()))
	assert.True(t, math.IsInf(problem.Unbounded().Violation(math.NaN()), 1))
	assert.True(t, math.IsInf(i.Violation(math.NaN()), 1))
}

func TestString(t *testing.T) {
	p := newProblem(t)
	require.NoError(t, p.SetArgumentNames([]string{"a", "b"}))
	s := p.String()
	assert.Contains(t, s, "Objective: sphere")
	assert.Contains(t, s, "a in [-Inf, +Inf]")
	assert.Contains(t, s, "Starting point: [3 3]")
}
