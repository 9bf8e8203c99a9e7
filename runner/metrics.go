package runner

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for scenario runs on a dedicated
// registry.
type Metrics struct {
	registry *prometheus.Registry

	SolutionRuns     *prometheus.CounterVec
	SolutionDuration *prometheus.HistogramVec
	Migrations       *prometheus.CounterVec
}

// NewMetrics creates Metrics with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		SolutionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scenario",
			Name:      "solutions_total",
			Help:      "Total number of solution runs by outcome",
		}, []string{"scenario", "status"}),
		SolutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scenario",
			Name:      "solution_duration_seconds",
			Help:      "Duration of solution runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scenario"}),
		Migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scenario",
			Name:      "migrations_total",
			Help:      "Total number of migrations processed by the lifecycle",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.SolutionRuns, m.SolutionDuration, m.Migrations)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteFile writes the current metrics in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observe(res Result) {
	status := "passed"
	if res.Err != nil {
		status = "failed"
	}
	m.SolutionRuns.WithLabelValues(res.Scenario, status).Inc()
	m.SolutionDuration.WithLabelValues(res.Scenario).Observe(res.Duration.Seconds())
	for _, o := range res.Outcomes {
		outcome := "enacted"
		if o.Skipped {
			outcome = "skipped"
		}
		m.Migrations.WithLabelValues(outcome).Inc()
	}
}
