package concurrent

import (
	"context"
	"fmt"
	"sync"

	"github.com/get-eventually/go-subscribe/consume"
	"github.com/get-eventually/go-subscribe/logger"
)

// FailureHandlerName is the handler identity recorded on Contexts whose
// downstream processing returned an error inside the worker pool.
const FailureHandlerName = "concurrent"

var _ consume.Filter = new(Filter)

// Work is the unit of work sent to a Filter worker pool: a Context,
// and the rest of the Pipeline it has to go through.
type Work struct {
	Context *consume.Context
	Next    consume.Next
}

// Filter runs the rest of the Pipeline on a bounded pool of workers.
//
// Contexts sent through the Filter are acknowledged asynchronously, once
// the downstream Filters are done with them, so a Filter must be used
// with an acknowledging Subscription.
type Filter struct {
	concurrency int
	bufferSize  int
	logger      logger.Logger

	mx   sync.Mutex
	pool *Pool[Work]
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithLogger sets the Logger used by the Filter.
func WithLogger(l logger.Logger) FilterOption {
	return func(f *Filter) { f.logger = l }
}

// NewFilter returns a new Filter using the specified amount of workers,
// each one with a queue of bufferSize Contexts.
//
// The worker pool is started lazily on the first Context.
func NewFilter(concurrency, bufferSize int, opts ...FilterOption) (*Filter, error) {
	if concurrency <= 0 || bufferSize <= 0 {
		return nil, fmt.Errorf("concurrent.NewFilter: %w (concurrency: %d, buffer size: %d)",
			ErrInvalidConfiguration, concurrency, bufferSize)
	}

	f := &Filter{concurrency: concurrency, bufferSize: bufferSize}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Filter) currentPool() (*Pool[Work], error) {
	f.mx.Lock()
	defer f.mx.Unlock()

	if f.pool != nil {
		return f.pool, nil
	}

	pool, err := NewPool(f.concurrency, f.bufferSize, f.work, WithAbandonHandler(f.abandon))
	if err != nil {
		return nil, err
	}

	f.pool = pool

	return pool, nil
}

func (f *Filter) work(ctx context.Context, w Work) {
	if err := w.Next(ctx, w.Context); err != nil {
		w.Context.Results.Record(consume.Failure(FailureHandlerName, err))
	}

	if err := w.Context.Complete(ctx); err != nil {
		logger.Error(f.logger, "Failed to complete message",
			logger.With("sequenceNumber", w.Context.SequenceNumber),
			logger.Err(err),
		)
	}
}

func (f *Filter) abandon(_ context.Context, w Work, err error) {
	logger.Debug(f.logger, "Message abandoned before processing",
		logger.With("sequenceNumber", w.Context.SequenceNumber),
		logger.Err(err),
	)
}

// Send implements the consume.Filter interface.
func (f *Filter) Send(ctx context.Context, c *consume.Context, next consume.Next) error {
	pool, err := f.currentPool()
	if err != nil {
		return fmt.Errorf("concurrent.Filter: failed to start worker pool: %w", err)
	}

	c.DelayAck()

	if err := pool.Write(ctx, Work{Context: c, Next: next}); err != nil {
		return fmt.Errorf("concurrent.Filter: failed to enqueue context: %w", err)
	}

	return nil
}

// Close stops the worker pool, waiting for all the enqueued Contexts
// to be processed. The Filter can be used again after Close,
// in which case a new worker pool is started.
func (f *Filter) Close(ctx context.Context) error {
	f.mx.Lock()
	pool := f.pool
	f.pool = nil
	f.mx.Unlock()

	if pool == nil {
		return nil
	}

	if err := pool.StopAndDrain(ctx); err != nil {
		return fmt.Errorf("concurrent.Filter: %w", err)
	}

	return nil
}
