package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/get-eventually/go-subscribe/logger"
)

// Default values used by a Committer.
const (
	DefaultCommitInterval      = 1 * time.Second
	DefaultBatchSize           = 10
	DefaultFirstSequenceNumber = 1
)

// CommitterOption configures a Committer.
type CommitterOption func(*Committer)

// WithCommitInterval sets the interval between two periodic flushes.
func WithCommitInterval(interval time.Duration) CommitterOption {
	return func(c *Committer) { c.interval = interval }
}

// WithBatchSize sets the amount of buffered positions that triggers
// an immediate flush.
func WithBatchSize(size int) CommitterOption {
	return func(c *Committer) { c.batchSize = size }
}

// WithFirstSequenceNumber sets the first sequence number the Committer expects.
func WithFirstSequenceNumber(seq uint64) CommitterOption {
	return func(c *Committer) { c.first = seq }
}

// WithLogger sets the Logger used by the Committer.
func WithLogger(l logger.Logger) CommitterOption {
	return func(c *Committer) { c.logger = l }
}

// WithObserver sets the Observer notified on every Checkpoint write.
func WithObserver(observer Observer) CommitterOption {
	return func(c *Committer) { c.observer = observer }
}

// WithClock sets the function used to measure the Store write duration.
func WithClock(clock func() time.Time) CommitterOption {
	return func(c *Committer) { c.clock = clock }
}

// Committer collects the positions of acknowledged Events, and periodically
// persists the highest one that is safe to resume from to a Store.
//
// A position is safe when all the positions before it have been
// acknowledged too: positions following a gap stay buffered until the gap
// is filled.
type Committer struct {
	store     Store
	interval  time.Duration
	batchSize int
	first     uint64
	logger    logger.Logger
	observer  Observer
	clock     func() time.Time

	mx       sync.Mutex
	sequence *CommitPositionSequence

	flushMx    sync.Mutex
	lastStored Checkpoint

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewCommitter returns a new Committer writing Checkpoints to the Store,
// starting from the specified Checkpoint.
//
// The Committer starts a goroutine flushing the buffered positions
// periodically: use Close to stop it.
func NewCommitter(store Store, start Checkpoint, opts ...CommitterOption) (*Committer, error) {
	c := &Committer{
		store:      store,
		interval:   DefaultCommitInterval,
		batchSize:  DefaultBatchSize,
		first:      DefaultFirstSequenceNumber,
		clock:      time.Now,
		lastStored: start,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.interval <= 0 || c.batchSize <= 0 {
		return nil, fmt.Errorf("checkpoint.NewCommitter: %w (interval: %s, batch size: %d)",
			ErrInvalidConfiguration, c.interval, c.batchSize)
	}

	if store == nil {
		return nil, fmt.Errorf("checkpoint.NewCommitter: %w: nil store", ErrInvalidConfiguration)
	}

	c.sequence = NewCommitPositionSequence(c.first)

	go c.run()

	return c, nil
}

func (c *Committer) run() {
	defer close(c.done)

	// Close interrupts a periodic write still in progress.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick flushes the safe position, bounding the Store write to a commit interval.
func (c *Committer) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.interval)
	defer cancel()

	_ = c.Flush(ctx, false)
}

// Commit records the position of an acknowledged Event.
//
// Committing the same sequence number twice, or one that has already been
// flushed, has no effect. Store failures are never returned: the positions
// are kept, and the write retried on the next flush.
func (c *Committer) Commit(ctx context.Context, p CommitPosition) error {
	c.mx.Lock()
	c.sequence.Add(p)
	full := c.sequence.Len() >= c.batchSize
	c.mx.Unlock()

	if full {
		return c.Flush(ctx, false)
	}

	return nil
}

// Flush persists the highest safe position, if it advances the last
// persisted Checkpoint.
//
// Store failures are logged, and the positions kept for the next flush.
// The error returned is only ever a context error.
func (c *Committer) Flush(ctx context.Context, force bool) error {
	c.flushMx.Lock()
	defer c.flushMx.Unlock()

	c.mx.Lock()
	safe, ok := c.sequence.FirstBeforeGap()
	c.mx.Unlock()

	if !ok {
		return nil
	}

	cp := At(c.lastStored.SubscriptionID, safe.StorePosition)

	if cp.Advances(c.lastStored) {
		start := c.clock()
		stored, err := c.store.StoreCheckpoint(ctx, cp, force)
		duration := c.clock().Sub(start)

		if c.observer != nil {
			c.observer.CheckpointStored(ctx, cp, duration, err)
		}

		if err != nil {
			logger.Error(c.logger, "Failed to store checkpoint, will retry",
				logger.With("checkpoint", cp.String()),
				logger.Err(err),
			)

			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("checkpoint.Committer: failed to flush: %w", ctxErr)
			}

			return nil
		}

		logger.Debug(c.logger, "Checkpoint stored",
			logger.With("checkpoint", stored.String()),
			logger.With("sequenceNumber", safe.SequenceNumber),
		)

		if stored.Advances(c.lastStored) {
			c.lastStored = stored
		}
	}

	c.mx.Lock()
	c.sequence.RemoveUpTo(safe.SequenceNumber)
	c.mx.Unlock()

	return nil
}

// LastStored returns the last Checkpoint persisted by the Committer,
// or the starting one if nothing has been persisted yet.
func (c *Committer) LastStored() Checkpoint {
	c.flushMx.Lock()
	defer c.flushMx.Unlock()

	return c.lastStored
}

// Close stops the periodic flush, and flushes the remaining safe position.
//
// A periodic flush still in progress is canceled. The last flush is
// performed even if the provided context is canceled, so that no
// acknowledged position is lost on shutdown.
func (c *Committer) Close(ctx context.Context) error {
	c.closeOnce.Do(func() { close(c.stop) })
	<-c.done

	if err := c.Flush(context.WithoutCancel(ctx), true); err != nil {
		return fmt.Errorf("checkpoint.Committer: failed to close: %w", err)
	}

	return nil
}
