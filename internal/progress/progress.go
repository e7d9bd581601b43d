// SPDX-License-Identifier: MPL-2.0

// Package progress records the step-by-step progress a script reports while
// it runs and mirrors each entry to a live sink as it is appended.
package progress

import (
	"sync"
	"time"
)

type (
	// Event is one progress report.
	Event struct {
		Step string         `json:"step"`
		Data map[string]any `json:"data,omitempty"`
		// Timestamp is wall-clock time in Unix milliseconds.
		Timestamp int64 `json:"timestamp"`
	}

	// Channel is an append-only, ordered log of progress events for one run.
	// Appends are serialized, so the recorded order is the order in which
	// Append calls took effect.
	Channel struct {
		sink  Sink
		clock func() time.Time

		mu     sync.Mutex
		events []Event
	}

	// Option configures a Channel.
	Option func(*Channel)
)

// WithClock overrides the time source used for event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *Channel) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New creates an empty Channel that mirrors every event to sink.
// A nil sink discards.
func New(sink Sink, opts ...Option) *Channel {
	if sink == nil {
		sink = Discard
	}
	c := &Channel{
		sink:   sink,
		clock:  time.Now,
		events: []Event{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append records a step and emits it to the sink before returning.
func (c *Channel) Append(step string, data map[string]any) Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev := Event{Step: step, Data: data, Timestamp: c.clock().UnixMilli()}
	c.events = append(c.events, ev)
	c.sink.Emit(ev)
	return ev
}

// Events returns a copy of the recorded events in append order.
// The result is never nil.
func (c *Channel) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Len returns the number of recorded events.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
