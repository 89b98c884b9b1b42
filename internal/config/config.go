package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config is the service configuration, read from the environment.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Solver struct {
		Backend        string  `env:"SOLVER_BACKEND" envDefault:"gonum-bfgs"`
		MaxIterations  int     `env:"SOLVER_MAX_ITERATIONS" envDefault:"3000"`
		CacheCapacity  int     `env:"SOLVER_CACHE_CAPACITY" envDefault:"10"`
		CacheTolerance float64 `env:"SOLVER_CACHE_TOLERANCE" envDefault:"0"`
		FDStep         float64 `env:"SOLVER_FD_STEP" envDefault:"0"`
		HistoryLimit   int     `env:"SOLVER_HISTORY_LIMIT" envDefault:"1000"`
	}
	Jobs struct {
		MaxRunning int           `env:"JOBS_MAX_RUNNING" envDefault:"4"`
		Retention  time.Duration `env:"JOBS_RETENTION" envDefault:"1h"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values env tags cannot express.
func (c *Config) Validate() error {
	switch {
	case c.Solver.MaxIterations < 1:
		return fmt.Errorf("SOLVER_MAX_ITERATIONS must be positive, got %d", c.Solver.MaxIterations)
	case c.Solver.CacheCapacity < 1:
		return fmt.Errorf("SOLVER_CACHE_CAPACITY must be positive, got %d", c.Solver.CacheCapacity)
	case c.Solver.CacheTolerance < 0:
		return fmt.Errorf("SOLVER_CACHE_TOLERANCE must not be negative, got %g", c.Solver.CacheTolerance)
	case c.Solver.FDStep < 0:
		return fmt.Errorf("SOLVER_FD_STEP must not be negative, got %g", c.Solver.FDStep)
	case c.Jobs.MaxRunning < 1:
		return fmt.Errorf("JOBS_MAX_RUNNING must be positive, got %d", c.Jobs.MaxRunning)
	}
	return nil
}
