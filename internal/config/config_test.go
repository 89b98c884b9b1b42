package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "gonum-bfgs", cfg.Solver.Backend)
	assert.Equal(t, 3000, cfg.Solver.MaxIterations)
	assert.Equal(t, 10, cfg.Solver.CacheCapacity)
	assert.Zero(t, cfg.Solver.CacheTolerance)
	assert.Zero(t, cfg.Solver.FDStep)
	assert.Equal(t, 1000, cfg.Solver.HistoryLimit)
	assert.Equal(t, 4, cfg.Jobs.MaxRunning)
	assert.Equal(t, time.Hour, cfg.Jobs.Retention)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SOLVER_BACKEND", "dummy")
	t.Setenv("SOLVER_MAX_ITERATIONS", "50")
	t.Setenv("SOLVER_CACHE_TOLERANCE", "1e-9")
	t.Setenv("SOLVER_FD_STEP", "1e-6")
	t.Setenv("JOBS_RETENTION", "5m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "dummy", cfg.Solver.Backend)
	assert.Equal(t, 50, cfg.Solver.MaxIterations)
	assert.Equal(t, 1e-9, cfg.Solver.CacheTolerance)
	assert.Equal(t, 1e-6, cfg.Solver.FDStep)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.Retention)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]struct {
		key, value string
	}{
		"unparsable":         {"SOLVER_MAX_ITERATIONS", "many"},
		"zero iterations":    {"SOLVER_MAX_ITERATIONS", "0"},
		"zero cache":         {"SOLVER_CACHE_CAPACITY", "0"},
		"negative tolerance": {"SOLVER_CACHE_TOLERANCE", "-1"},
		"negative step":      {"SOLVER_FD_STEP", "-1e-6"},
		"no workers":         {"JOBS_MAX_RUNNING", "0"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
