// Package metrics collects per-run Prometheus metrics and exports them in
// the node exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/kamilpajak/smarttest/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "smarttest"
	// FileName is the textfile written into a results dir.
	FileName = "metrics.prom"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Metrics holds the collectors of one run. Each instance owns its
// registry.
type Metrics struct {
	registry *prometheus.Registry

	phaseDuration   *prometheus.HistogramVec
	phaseTotal      *prometheus.CounterVec
	testsTotal      *prometheus.CounterVec
	healingAttempts *prometheus.CounterVec
	runInfo         *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of run phases",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
		phaseTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "phase_total",
			Help:      "Count of run phases by outcome",
		}, []string{"phase", "outcome"}),
		testsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tests_total",
			Help:      "Count of executed tests by status",
		}, []string{"status"}),
		healingAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "healing_attempts_total",
			Help:      "Count of heuristic element resolution attempts",
		}, []string{"outcome"}),
		runInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "run_success",
			Help:      "1 when the run succeeded, 0 otherwise",
		}, []string{"suite", "mode", "run_id"}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePhase records one phase result.
func (m *Metrics) ObservePhase(phase models.Phase, res models.PhaseResult) {
	outcome := OutcomeFailure
	switch {
	case res.Skipped:
		outcome = OutcomeSkipped
	case res.Success:
		outcome = OutcomeSuccess
	}
	m.phaseDuration.WithLabelValues(string(phase)).Observe(res.Duration.Seconds())
	m.phaseTotal.WithLabelValues(string(phase), outcome).Inc()
}

// ObserveReport counts the tests of a report by status.
func (m *Metrics) ObserveReport(r *models.Report) {
	if r == nil {
		return
	}
	m.testsTotal.WithLabelValues(string(models.StatusPassed)).Add(float64(r.PassedTests))
	m.testsTotal.WithLabelValues(string(models.StatusFailed)).Add(float64(r.FailedTests))
	m.testsTotal.WithLabelValues(string(models.StatusSkipped)).Add(float64(r.SkippedTests))
}

// ObserveHealing counts heuristic resolution attempts.
func (m *Metrics) ObserveHealing(stats models.HealingStats) {
	m.healingAttempts.WithLabelValues("healed").Add(float64(stats.Healed))
	m.healingAttempts.WithLabelValues("failed").Add(float64(stats.Failed))
}

// ObserveRun records the final verdict of a run.
func (m *Metrics) ObserveRun(res *models.RunResult) {
	v := 0.0
	if res.Success {
		v = 1
	}
	m.runInfo.WithLabelValues(res.Suite, string(res.Mode), res.ID).Set(v)
}

// WriteTextfile writes every collected metric to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

