package events_test

import (
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalevents "github.com/gantry-ci/gantry/internal/events"
	"github.com/gantry-ci/gantry/internal/logger"
	"github.com/gantry-ci/gantry/internal/metrics"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/events"
)

func newTestListener(t *testing.T, next events.Bus) (*internalevents.MetricsEventListener, *metrics.PipelineMetrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	pipeline := metrics.NewPipelineMetrics(reg)
	log := logger.NewLogger("error", "text", io.Discard)
	return internalevents.NewMetricsEventListener(next, pipeline, log), pipeline
}

// TestEmitUpdatesCollectorsSynchronously pins the contract the end-of-run
// export relies on: once Emit returns, the event's collector update is
// visible to a registry gather, with no goroutine to wait for.
func TestEmitUpdatesCollectorsSynchronously(t *testing.T) {
	bus, pipeline := newTestListener(t, nil)

	bus.Emit(events.Event{Type: events.PhaseEnd, Phase: "build", Payload: map[string]interface{}{
		"status":           "pass",
		"duration_seconds": 1.5,
	}})
	bus.Emit(events.Event{Type: events.PolicyEvaluated, Payload: map[string]interface{}{"score": 70.0}})
	bus.Emit(events.Event{Type: events.DeployEnd, Provider: "cluster", Payload: map[string]interface{}{"status": "fail"}})
	bus.Emit(events.Event{Type: events.HealStepEnd, Step: "normalize-ci", Payload: map[string]interface{}{"status": "pass"}})
	bus.Emit(events.Event{Type: events.SecretDetected})

	assert.Equal(t, 1.0, testutil.ToFloat64(pipeline.PhaseRuns.WithLabelValues("build", "pass")))
	assert.Equal(t, 70.0, testutil.ToFloat64(pipeline.PolicyScore))
	assert.Equal(t, 1.0, testutil.ToFloat64(pipeline.Deploys.WithLabelValues("cluster", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pipeline.HealSteps.WithLabelValues("normalize-ci", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pipeline.SecretFindings))
}

func TestEmitForwardsDownstream(t *testing.T) {
	log := logger.NewLogger("error", "text", io.Discard)
	downstream := internalevents.NewChannelEventBus(8, log)
	bus, _ := newTestListener(t, downstream)

	bus.Emit(events.Event{Type: events.RunStart, Phase: "full"})

	select {
	case ev := <-downstream.GetChannel():
		assert.Equal(t, events.RunStart, ev.Type)
		assert.Equal(t, "full", ev.Phase)
	default:
		t.Fatal("event was not forwarded to the downstream bus")
	}
}

func TestEmitWithoutDownstreamDoesNotPanic(t *testing.T) {
	bus, _ := newTestListener(t, nil)
	require.NotPanics(t, func() {
		bus.Emit(events.Event{Type: events.RunEnd, Phase: "heal"})
	})
}

func TestUnknownPayloadShapesAreTolerated(t *testing.T) {
	bus, pipeline := newTestListener(t, nil)

	// Missing payload and wrong-typed fields fall back to "unknown" labels
	// rather than panicking.
	bus.Emit(events.Event{Type: events.PhaseEnd, Phase: "test"})
	bus.Emit(events.Event{Type: events.PhaseEnd, Phase: "test", Payload: map[string]interface{}{"status": 12}})

	assert.Equal(t, 2.0, testutil.ToFloat64(pipeline.PhaseRuns.WithLabelValues("test", "unknown")))
}
