package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/zhichaoleo/roboptim-core/internal/optimization/catalog"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/function"
)

func TestLookup(t *testing.T) {
	e, err := catalog.Lookup("rosenbrock")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Dimension)
	assert.Equal(t, function.Differentiable, e.Level)

	_, err = catalog.Lookup("himmelblau")
	assert.ErrorIs(t, err, catalog.ErrUnknownProblem)
	assert.Contains(t, err.Error(), "rosenbrock")

	assert.IsIncreasing(t, catalog.Names())
	assert.Len(t, catalog.All(), len(catalog.Names()))
}

func TestEntriesAreValid(t *testing.T) {
	for _, e := range catalog.All() {
		t.Run(e.Name, func(t *testing.T) {
			p, err := e.Problem()
			require.NoError(t, err)
			require.NoError(t, p.Validate())

			assert.Equal(t, e.Dimension, p.InputSize())
			assert.Equal(t, e.Level, p.Objective().Level())
			assert.Equal(t, e.Constrained, p.NumConstraints() > 0)
			assert.Equal(t, e.Start, p.StartingPoint())
			assert.NotEmpty(t, e.Description)

			if e.Level >= function.Differentiable {
				require.NoError(t, function.CheckJacobian(p.Objective(), e.Start, function.DefaultGradientTolerance))
				for _, c := range p.Constraints() {
					require.NoError(t, function.CheckJacobian(c.Function, e.Start, function.DefaultGradientTolerance))
				}
			}
		})
	}
}

func TestKnownSolutions(t *testing.T) {
	for _, e := range catalog.All() {
		if e.Solution == nil {
			continue
		}
		t.Run(e.Name, func(t *testing.T) {
			p, err := e.Problem()
			require.NoError(t, err)

			value, err := function.ScalarValue(p.Objective(), e.Solution)
			require.NoError(t, err)
			assert.InDelta(t, e.Value, value, 1e-6)

			violation, err := p.ConstraintViolation(e.Solution)
			require.NoError(t, err)
			if len(violation) > 0 {
				assert.Less(t, floats.Max(violation), 1e-6)
			}
			for i, b := range p.ArgumentBounds() {
				assert.True(t, b.Contains(e.Solution[i]), "x%d = %g outside %v", i, e.Solution[i], b)
			}
		})
	}
}

func TestProblemsAreIndependent(t *testing.T) {
	e, err := catalog.Lookup("hs071")
	require.NoError(t, err)
	a, err := e.Problem()
	require.NoError(t, err)
	b, err := e.Problem()
	require.NoError(t, err)

	a.Freeze()
	assert.False(t, b.Frozen())
	require.NoError(t, b.SetStartingPoint([]float64{2, 2, 2, 2}))
	assert.Equal(t, []float64{1, 5, 5, 1}, a.StartingPoint())
}
