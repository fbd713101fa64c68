package consume

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/get-eventually/go-subscribe/message"
)

// Acknowledger receives the final verdict on a Context once all of its
// Handlers are done with it.
//
// A Subscription installs its Acknowledger on every Context it creates,
// to checkpoint the Event once acknowledged.
type Acknowledger interface {
	Ack(ctx context.Context, c *Context) error
	Nack(ctx context.Context, c *Context, err error) error
}

// Context is the mutable record of a single Event traversing a Pipeline.
//
// A Context is created once per inbound Event, it is mutated by Filters and
// Handlers as it moves through the Pipeline, and it is discarded after it has
// been acknowledged. It can be handed off between goroutines, but it must never
// be mutated by two of them at the same time.
type Context struct {
	MessageID   uuid.UUID
	MessageType string
	ContentType string

	// Stream is the name of the Event Stream the Event belongs to.
	Stream string
	// StreamPosition is the position of the Event in its own Stream.
	StreamPosition uint64
	// GlobalPosition is the position of the Event in the Event log,
	// the value that gets persisted as checkpoint.
	GlobalPosition uint64
	// SequenceNumber is assigned by the Subscription as the Event is received:
	// it is gapless and monotonic for the lifetime of a Subscription run.
	SequenceNumber uint64

	SubscriptionID string
	Message        message.Message
	Metadata       message.Metadata
	Created        time.Time

	// Items can be used by Filters to exchange data.
	Items Items
	// Results collects the outcome of every Handler.
	Results HandlingResults

	acker     Acknowledger
	delayed   atomic.Bool
	completed atomic.Bool
}

// WithAcknowledger sets the Acknowledger that will receive the verdict
// on this Context, and returns the Context itself.
func (c *Context) WithAcknowledger(acker Acknowledger) *Context {
	c.acker = acker
	return c
}

// DelayAck marks the Context as acknowledged asynchronously: the Filter
// calling it takes the responsibility of calling Complete once the rest of
// the Pipeline is done with the Context.
func (c *Context) DelayAck() { c.delayed.Store(true) }

// AckDelayed reports whether a Filter has taken ownership of the acknowledgment.
func (c *Context) AckDelayed() bool { return c.delayed.Load() }

// Completed reports whether the Context has already been acknowledged.
func (c *Context) Completed() bool { return c.completed.Load() }

// Complete acknowledges the Context based on its HandlingResults:
// failed Contexts are nacked, ignored and succeeded ones are acked,
// while pending Contexts are left untouched, waiting for a Deferred
// handler to complete them later.
//
// A Context is acknowledged at most once: subsequent calls are no-ops.
func (c *Context) Complete(ctx context.Context) error {
	decision := c.Results.Decision()
	if decision == DecisionPending {
		return nil
	}

	if !c.completed.CompareAndSwap(false, true) {
		return nil
	}

	if c.acker == nil {
		return nil
	}

	if decision == DecisionFailed {
		return c.acker.Nack(ctx, c, c.Results.Err())
	}

	return c.acker.Ack(ctx, c)
}

// Items is a bag of arbitrary values, used by Filters to exchange data
// about the Context they are processing.
//
// The zero value is ready to use.
type Items struct {
	values map[string]any
}

// Set stores the value under the specified key.
func (i *Items) Set(key string, value any) {
	if i.values == nil {
		i.values = make(map[string]any)
	}

	i.values[key] = value
}

// Get returns the value stored under the specified key, if any.
func (i *Items) Get(key string) (any, bool) {
	v, ok := i.values[key]
	return v, ok
}

// Delete removes the value stored under the specified key.
func (i *Items) Delete(key string) {
	delete(i.values, key)
}

// Item returns the Context item stored under the specified key,
// if present and of the requested type.
func Item[T any](c *Context, key string) (T, bool) {
	var zero T

	v, ok := c.Items.Get(key)
	if !ok {
		return zero, false
	}

	t, ok := v.(T)

	return t, ok
}
