package events

import "time"

// EventType represents the type of a pipeline lifecycle event.
type EventType string

// Standard gantry event types.
const (
	RunStart        EventType = "RunStart"        // Boot sequence completed, phase dispatch begins
	RunEnd          EventType = "RunEnd"          // Run summary produced
	PhaseStart      EventType = "PhaseStart"      // A phase begins executing
	PhaseEnd        EventType = "PhaseEnd"        // A phase finished (pass or fail)
	HealStepStart   EventType = "HealStepStart"   // A heal protocol step begins
	HealStepEnd     EventType = "HealStepEnd"     // A heal protocol step finished
	DeployStart     EventType = "DeployStart"     // A provider back-end begins deploying
	DeployEnd       EventType = "DeployEnd"       // A provider back-end finished
	PolicyEvaluated EventType = "PolicyEvaluated" // A policy evaluation produced a score
	SecretDetected  EventType = "SecretDetected"  // The config secret assertion found a violation
)

// Event represents a significant occurrence within a pipeline run.
type Event struct {
	// Type categorizes the event.
	Type EventType `json:"type"`
	// Timestamp marks when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// Phase identifies the pipeline phase context, if applicable.
	Phase string `json:"phase,omitempty"`
	// Step identifies the heal protocol step context, if applicable.
	Step string `json:"step,omitempty"`
	// Provider identifies the deploy back-end context, if applicable.
	Provider string `json:"provider,omitempty"`
	// Payload contains event-specific data. Secret values MUST NOT be
	// included in the payload; secret key names may appear for auditing
	// (e.g. in a SecretDetected event).
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Bus defines the interface for publishing pipeline events.
// Implementations must be non-blocking, or handle blocking carefully, so
// that event emission never slows the strictly sequential pipeline core.
type Bus interface {
	Emit(event Event)
}
