package events

import (
	"github.com/gantry-ci/gantry/pkg/gantry/v1/events"
	gantrylog "github.com/gantry-ci/gantry/pkg/gantry/v1/log"
)

// ChannelEventBus implements the public events.Bus interface using a buffered
// Go channel. It decouples the sequential pipeline core from listeners (the
// metrics listener, primarily) running in the same process. Emission is
// non-blocking: a full buffer drops the event rather than stalling a phase.
type ChannelEventBus struct {
	channel chan events.Event
	log     gantrylog.Logger
}

// NewChannelEventBus creates a ChannelEventBus with the given buffer size.
// A non-positive size falls back to a default. Panics on a nil logger.
func NewChannelEventBus(bufferSize int, log gantrylog.Logger) *ChannelEventBus {
	const defaultBufferSize = 100
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if log == nil {
		panic("ChannelEventBus requires a non-nil logger")
	}

	bus := &ChannelEventBus{
		channel: make(chan events.Event, bufferSize),
		log:     log.With("component", "ChannelEventBus"),
	}
	bus.log.Debugf("ChannelEventBus initialized with buffer size %d", bufferSize)
	return bus
}

// Emit sends an event onto the internal buffered channel without blocking.
// If the buffer is full the event is dropped and a warning logged.
func (c *ChannelEventBus) Emit(event events.Event) {
	select {
	case c.channel <- event:
		c.log.Debugf("Emitted event type '%s'", event.Type)
	default:
		c.log.Warnf("Event channel buffer full, dropping event type '%s'", event.Type)
	}
}

// GetChannel returns the underlying event channel for in-process consumers.
// Not part of the public events.Bus interface. The returned channel is
// read-only.
func (c *ChannelEventBus) GetChannel() <-chan events.Event {
	return c.channel
}

// Close closes the underlying event channel, signalling consumers that no
// more events will arrive.
func (c *ChannelEventBus) Close() {
	c.log.Debugf("Closing ChannelEventBus channel.")
	close(c.channel)
}

// Ensure ChannelEventBus implements the public events.Bus interface at compile time.
var _ events.Bus = (*ChannelEventBus)(nil)
