package metrics

import (
	gantrymetrics "github.com/gantry-ci/gantry/pkg/gantry/v1/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRegistryProvider owns the registry shared by the pipeline
// collectors and the end-of-run exporter. One provider exists per process,
// created in the entry point.
type PrometheusRegistryProvider struct {
	registry *prometheus.Registry
}

func NewPrometheusRegistryProvider() *PrometheusRegistryProvider {
	return &PrometheusRegistryProvider{registry: prometheus.NewRegistry()}
}

// Registry exposes the registry for collector registration and gathering.
func (p *PrometheusRegistryProvider) Registry() *prometheus.Registry {
	return p.registry
}

var _ gantrymetrics.RegistryProvider = (*PrometheusRegistryProvider)(nil)

// PipelineMetrics holds the collectors the run updates as phases, heal steps,
// and deploys complete. All collectors are registered once at engine creation.
type PipelineMetrics struct {
	// PhaseRuns counts phase completions by phase name and pass/fail status.
	PhaseRuns *prometheus.CounterVec
	// PhaseDuration observes wall-clock phase duration in seconds.
	PhaseDuration *prometheus.HistogramVec
	// HealSteps counts heal protocol step outcomes by step name and status.
	HealSteps *prometheus.CounterVec
	// Deploys counts provider deploy attempts by back-end and status.
	Deploys *prometheus.CounterVec
	// PolicyScore records the most recent governance score (0-100).
	PolicyScore prometheus.Gauge
	// SecretFindings counts critical secret-pattern findings across scans.
	SecretFindings prometheus.Counter
}

// NewPipelineMetrics creates and registers the pipeline collectors against
// the given registerer. It panics on duplicate registration, which indicates
// a wiring mistake that must be fixed.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		PhaseRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_phase_runs_total",
			Help: "Number of completed pipeline phases by phase and status.",
		}, []string{"phase", "status"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gantry_phase_duration_seconds",
			Help:    "Wall-clock duration of pipeline phases.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"phase"}),
		HealSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_heal_steps_total",
			Help: "Number of executed heal protocol steps by step and status.",
		}, []string{"step", "status"}),
		Deploys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_deploys_total",
			Help: "Number of provider deploy attempts by back-end and status.",
		}, []string{"provider", "status"}),
		PolicyScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gantry_policy_score",
			Help: "Most recent governance policy score (0-100).",
		}),
		SecretFindings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gantry_secret_findings_total",
			Help: "Critical secret-pattern findings reported by scans.",
		}),
	}
	reg.MustRegister(m.PhaseRuns, m.PhaseDuration, m.HealSteps, m.Deploys, m.PolicyScore, m.SecretFindings)
	return m
}
