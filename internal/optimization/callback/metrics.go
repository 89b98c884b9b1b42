package callback

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
)

// Metrics holds the solver metrics shared by every solve of a process.
type Metrics struct {
	iterations *prometheus.CounterVec
	value      *prometheus.GaugeVec
	violation  *prometheus.GaugeVec
	solves     *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roboptim",
			Subsystem: "solver",
			Name:      "iterations_total",
			Help:      "Iterations reported by solver backends.",
		}, []string{"backend"}),
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "roboptim",
			Subsystem: "solver",
			Name:      "objective_value",
			Help:      "Objective value at the last reported iterate.",
		}, []string{"backend"}),
		violation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "roboptim",
			Subsystem: "solver",
			Name:      "max_constraint_violation",
			Help:      "Largest constraint violation at the last reported iterate.",
		}, []string{"backend"}),
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roboptim",
			Subsystem: "solver",
			Name:      "solves_total",
			Help:      "Finished solves by outcome.",
		}, []string{"backend", "status"}),
	}
	for _, c := range []prometheus.Collector{m.iterations, m.value, m.violation, m.solves} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observer returns an observer feeding the metrics of one backend.
func (m *Metrics) Observer(backend string) solver.SolveEndObserver {
	return &metricsObserver{
		iterations: m.iterations.WithLabelValues(backend),
		value:      m.value.WithLabelValues(backend),
		violation:  m.violation.WithLabelValues(backend),
		solves:     m.solves,
		backend:    backend,
	}
}

type metricsObserver struct {
	iterations prometheus.Counter
	value      prometheus.Gauge
	violation  prometheus.Gauge
	solves     *prometheus.CounterVec
	backend    string
}

func (o *metricsObserver) OnIterationEnd(state *solver.State) error {
	o.iterations.Inc()
	o.value.Set(state.Value)
	o.violation.Set(state.MaxViolation())
	return nil
}

func (o *metricsObserver) OnSolveEnd(m solver.Minimum) error {
	o.solves.WithLabelValues(o.backend, solver.StatusOf(m).String()).Inc()
	return nil
}
