package consume

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPipelineStarted is returned when trying to add a Filter to a Pipeline
// that is already processing Contexts.
var ErrPipelineStarted = errors.New("consume.Pipeline: filters cannot be added once the pipeline has started")

// Next is the rest of the Pipeline, as seen by a Filter.
type Next func(ctx context.Context, c *Context) error

// Filter is a single stage of a Pipeline.
//
// A Filter can call next to continue down the Pipeline, skip it to
// short-circuit the Context, or wrap it to add some cross-cutting behavior.
type Filter interface {
	Send(ctx context.Context, c *Context, next Next) error
}

// FilterFunc is a functional implementation of the Filter interface.
type FilterFunc func(ctx context.Context, c *Context, next Next) error

// Send implements the Filter interface.
func (fn FilterFunc) Send(ctx context.Context, c *Context, next Next) error {
	return fn(ctx, c, next)
}

// Closer is implemented by Filters owning resources that need to be
// released when the Pipeline is closed.
type Closer interface {
	Close(ctx context.Context) error
}

type node struct {
	filter Filter
	next   *node
}

func (n *node) send(ctx context.Context, c *Context) error {
	if n == nil {
		return nil
	}

	return n.filter.Send(ctx, c, n.next.send)
}

// Pipeline is an ordered chain of Filters each Context is sent through.
//
// Filters must be registered before the first call to Send.
// Use NewPipeline to create a new instance.
type Pipeline struct {
	mx      sync.Mutex
	filters []Filter
	head    *node
	started bool
	closed  bool
}

// NewPipeline returns a new Pipeline using the specified Filters,
// in the order provided.
func NewPipeline(filters ...Filter) *Pipeline {
	return &Pipeline{filters: filters}
}

// AddFilter appends a new Filter at the end of the Pipeline.
//
// Returns ErrPipelineStarted if the Pipeline has already been used.
// AddFilter must not be called concurrently with Send.
func (p *Pipeline) AddFilter(filter Filter) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.started {
		return ErrPipelineStarted
	}

	p.filters = append(p.filters, filter)

	return nil
}

func (p *Pipeline) chain() *node {
	p.mx.Lock()
	defer p.mx.Unlock()

	if !p.started {
		var head *node
		for i := len(p.filters) - 1; i >= 0; i-- {
			head = &node{filter: p.filters[i], next: head}
		}

		p.head = head
		p.started = true
	}

	p.closed = false

	return p.head
}

// Send drives the Context through all the Filters of the Pipeline.
//
// Send returns once the Context has been handed off by the last Filter to
// run synchronously: Filters running the rest of the Pipeline asynchronously
// mark the Context with DelayAck.
func (p *Pipeline) Send(ctx context.Context, c *Context) error {
	if err := p.chain().send(ctx, c); err != nil {
		return fmt.Errorf("consume.Pipeline: failed to send context: %w", err)
	}

	return nil
}

// Close closes all the Filters implementing Closer, in registration order,
// so that upstream Filters are drained before the downstream ones they feed.
//
// Every Filter is closed exactly once per Pipeline scope: calling Close
// again is a no-op until the Pipeline is used again by Send.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	var errs []error

	for _, filter := range p.filters {
		closer, ok := filter.(Closer)
		if !ok {
			continue
		}

		if err := closer.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", filter, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("consume.Pipeline: failed to close filters: %w", err)
	}

	return nil
}
