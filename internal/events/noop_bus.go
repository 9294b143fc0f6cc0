package events

import "github.com/gantry-ci/gantry/pkg/gantry/v1/events"

// NoOpEventBus is a Bus implementation that discards all events. It is the
// fallback when no event handling is configured, so components emitting
// lifecycle events never need a nil check.
type NoOpEventBus struct{}

// NewNoOpEventBus creates a new instance of the NoOpEventBus.
func NewNoOpEventBus() events.Bus {
	return &NoOpEventBus{}
}

// Emit implements the events.Bus interface method. It does nothing.
func (n *NoOpEventBus) Emit(event events.Event) {
}

// Ensure NoOpEventBus implements the public events.Bus interface at compile time.
var _ events.Bus = (*NoOpEventBus)(nil)
