// Package concurrent provides a bounded worker pool and a consume.Filter
// using it to process Contexts in parallel.
package concurrent

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidConfiguration is returned by NewPool when the concurrency
	// or the buffer size are not positive.
	ErrInvalidConfiguration = errors.New("concurrent.Pool: concurrency and buffer size must be positive")

	// ErrPoolStopped is returned by Pool.Write once StopAndDrain has been called.
	ErrPoolStopped = errors.New("concurrent.Pool: pool has been stopped")

	// ErrWriteCanceled is returned by Pool.Write when the caller context
	// is done before the item could be enqueued.
	ErrWriteCanceled = errors.New("concurrent.Pool: write canceled")
)

// WorkFunc processes a single item taken from the Pool queue.
type WorkFunc[T any] func(ctx context.Context, item T)

// AbandonFunc is called for items that are dequeued after either their
// own context or the Pool context have been canceled.
type AbandonFunc[T any] func(ctx context.Context, item T, err error)

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithAbandonHandler sets the function called for abandoned items.
func WithAbandonHandler[T any](fn AbandonFunc[T]) Option[T] {
	return func(p *Pool[T]) { p.abandon = fn }
}

type entry[T any] struct {
	ctx  context.Context
	item T
}

// Pool is a fixed set of workers consuming items from a bounded queue.
//
// Producers calling Write block when the queue is full. Items are processed
// in FIFO order per worker, with no ordering guarantee across workers.
type Pool[T any] struct {
	work    WorkFunc[T]
	abandon AbandonFunc[T]
	queue   chan entry[T]

	ctx    context.Context
	cancel context.CancelFunc

	mx       sync.Mutex
	stopped  bool
	stopping chan struct{}
	writers  sync.WaitGroup
	workers  sync.WaitGroup
	drained  chan struct{}
}

// NewPool starts a Pool with the specified amount of workers, and a queue
// of concurrency * bufferSize items.
func NewPool[T any](concurrency, bufferSize int, work WorkFunc[T], opts ...Option[T]) (*Pool[T], error) {
	if concurrency <= 0 || bufferSize <= 0 || work == nil {
		return nil, fmt.Errorf("%w (concurrency: %d, buffer size: %d)", ErrInvalidConfiguration, concurrency, bufferSize)
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool[T]{
		work:     work,
		queue:    make(chan entry[T], concurrency*bufferSize),
		ctx:      ctx,
		cancel:   cancel,
		stopping: make(chan struct{}),
		drained:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.workers.Add(concurrency)

	for range concurrency {
		go p.run()
	}

	go func() {
		p.workers.Wait()
		close(p.drained)
	}()

	return p, nil
}

func (p *Pool[T]) run() {
	defer p.workers.Done()

	for e := range p.queue {
		p.process(e)
	}
}

func (p *Pool[T]) process(e entry[T]) {
	ctx, cancel := context.WithCancel(e.ctx)
	defer cancel()

	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	if err := ctx.Err(); err != nil {
		if p.abandon != nil {
			p.abandon(ctx, e.item, err)
		}

		return
	}

	p.work(ctx, e.item)
}

// Write enqueues a new item, blocking while the queue is full.
//
// The item context is used to unblock the caller, and is also passed to
// the WorkFunc once the item is dequeued.
func (p *Pool[T]) Write(ctx context.Context, item T) error {
	p.mx.Lock()
	if p.stopped {
		p.mx.Unlock()
		return ErrPoolStopped
	}

	p.writers.Add(1)
	p.mx.Unlock()

	defer p.writers.Done()

	select {
	case p.queue <- entry[T]{ctx: ctx, item: item}:
		return nil
	case <-p.stopping:
		return ErrPoolStopped
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrWriteCanceled, ctx.Err())
	}
}

// StopAndDrain stops accepting new items, and waits for the workers
// to process all the items already enqueued.
//
// If the context is done before the queue is drained, the Pool context is
// canceled, so that the remaining items are abandoned, and the context
// error is returned. Calling StopAndDrain more than once is safe.
func (p *Pool[T]) StopAndDrain(ctx context.Context) error {
	p.mx.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopping)

		// Writers blocked on a full queue are released by the stopping
		// channel, so it's safe to close the queue once they're gone.
		p.writers.Wait()
		close(p.queue)
	}
	p.mx.Unlock()

	select {
	case <-p.drained:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-p.drained

		return fmt.Errorf("concurrent.Pool: failed to drain: %w", ctx.Err())
	}
}
