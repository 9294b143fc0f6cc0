package events

import (
	"github.com/gantry-ci/gantry/internal/metrics"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/events"
	gantrylog "github.com/gantry-ci/gantry/pkg/gantry/v1/log"
)

// MetricsEventListener is a Bus decorator that translates lifecycle events
// into Prometheus collector updates before forwarding them downstream.
// Updates happen synchronously on the emitter's goroutine: by the time a
// phase's PhaseEnd emission returns, its counters are gathered-visible,
// which the end-of-run metrics export depends on.
type MetricsEventListener struct {
	next     events.Bus
	log      gantrylog.Logger
	pipeline *metrics.PipelineMetrics
}

// NewMetricsEventListener creates the decorator. next may be nil when no
// downstream consumer exists; a nil pipeline or logger panics, since that
// indicates a wiring mistake in the entry point.
func NewMetricsEventListener(next events.Bus, pipeline *metrics.PipelineMetrics, log gantrylog.Logger) *MetricsEventListener {
	if pipeline == nil || log == nil {
		panic("MetricsEventListener requires non-nil PipelineMetrics and Logger")
	}
	return &MetricsEventListener{
		next:     next,
		log:      log.With("component", "MetricsEventListener"),
		pipeline: pipeline,
	}
}

// Emit updates the matching collector, then forwards the event.
func (l *MetricsEventListener) Emit(event events.Event) {
	l.handleEvent(event)
	if l.next != nil {
		l.next.Emit(event)
	}
}

func (l *MetricsEventListener) handleEvent(event events.Event) {
	switch event.Type {
	case events.PhaseEnd:
		status := payloadString(event.Payload, "status")
		l.pipeline.PhaseRuns.WithLabelValues(event.Phase, status).Inc()
		if secs, ok := payloadFloat(event.Payload, "duration_seconds"); ok {
			l.pipeline.PhaseDuration.WithLabelValues(event.Phase).Observe(secs)
		}
	case events.HealStepEnd:
		l.pipeline.HealSteps.WithLabelValues(event.Step, payloadString(event.Payload, "status")).Inc()
	case events.DeployEnd:
		l.pipeline.Deploys.WithLabelValues(event.Provider, payloadString(event.Payload, "status")).Inc()
	case events.PolicyEvaluated:
		if score, ok := payloadFloat(event.Payload, "score"); ok {
			l.pipeline.PolicyScore.Set(score)
		}
	case events.SecretDetected:
		l.pipeline.SecretFindings.Inc()
	}
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return "unknown"
	}
	if s, ok := payload[key].(string); ok {
		return s
	}
	return "unknown"
}

func payloadFloat(payload map[string]interface{}, key string) (float64, bool) {
	if payload == nil {
		return 0, false
	}
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Ensure MetricsEventListener implements the public events.Bus interface.
var _ events.Bus = (*MetricsEventListener)(nil)
