package pipeline

import (
	"github.com/google/uuid"

	"github.com/whitecathq/whitecat/internal/channel"
)

// Context is the mutable per-event bag that flows through the pipeline.
// A fresh Context is built for every dispatched event and discarded when
// the pipeline completes; it is never shared across events. Units of one
// dispatch run strictly sequentially, so Context needs no locking.
type Context struct {
	// ID correlates all log lines produced while processing one event.
	ID string
	// Event is the inbound message being processed.
	Event channel.InboundMessage

	halted bool
	values map[string]any
}

func newContext(event channel.InboundMessage) *Context {
	return &Context{
		ID:     uuid.NewString(),
		Event:  event,
		values: map[string]any{},
	}
}

// Halt stops the pipeline after the current unit returns.
func (c *Context) Halt() {
	c.halted = true
}

// Halted reports whether a unit has halted the pipeline.
func (c *Context) Halted() bool {
	return c.halted
}

// Set stores a shared annotation for later units.
func (c *Context) Set(key string, value any) {
	c.values[key] = value
}

// Get returns a shared annotation set by an earlier unit.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}
