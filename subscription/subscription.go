package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/get-eventually/go-subscribe/checkpoint"
	"github.com/get-eventually/go-subscribe/consume"
	"github.com/get-eventually/go-subscribe/event"
	"github.com/get-eventually/go-subscribe/logger"
)

// ErrHandlerFailed is the cause of a Subscription run dropped because
// of a Handler failure, when Config.FailOnError is enabled.
var ErrHandlerFailed = errors.New("subscription: handler failed")

// Reader reads Events from an Event log.
//
// Read should be implemented as a synchronous method, sending Events on
// the provided channel starting from the position following the Checkpoint,
// and returning only when either the Event log fails, or when the context
// is explicitly canceled. The channel must be closed when Read returns.
type Reader interface {
	Read(ctx context.Context, from checkpoint.Checkpoint, events chan<- event.Persisted) error
}

// Observer is notified when a Subscription run is dropped, and when
// a new run is started after it.
type Observer interface {
	SubscriptionDropped(ctx context.Context, subscriptionID string, err error)
	SubscriptionResubscribed(ctx context.Context, subscriptionID string, attempt int)
}

// Subscription reads Events with a Reader, sends each one of them through
// the Pipeline, and checkpoints the position of the acknowledged Events
// on the Store.
//
// Each Event gets a sequence number, starting from 1 on every run: the
// Checkpoint is only moved forward when all the Events with a lower
// sequence number have been acknowledged, so that Handlers can complete
// Events out of order without losing any of them on restart.
type Subscription struct {
	ID       string
	Reader   Reader
	Pipeline *consume.Pipeline

	// Store persists the Subscription Checkpoints.
	// Defaults to checkpoint.NopStore if nil.
	Store checkpoint.Store

	// Config contains the runtime options of the Subscription.
	// DefaultConfig is used if left empty.
	Config Config

	Logger             logger.Logger
	Observer           Observer
	MessageObserver    consume.Observer
	CheckpointObserver checkpoint.Observer
}

func (s *Subscription) config() Config {
	if s.Config == (Config{}) {
		return DefaultConfig()
	}

	return s.Config
}

func (s *Subscription) validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing subscription id", ErrInvalidConfig)
	}

	if s.Reader == nil {
		return fmt.Errorf("%w: missing reader", ErrInvalidConfig)
	}

	if s.Pipeline == nil {
		return fmt.Errorf("%w: missing pipeline", ErrInvalidConfig)
	}

	return s.config().Validate()
}

func (s *Subscription) store() checkpoint.Store {
	if s.Store == nil {
		return checkpoint.NopStore{}
	}

	return s.Store
}

// Run runs the Subscription until the context is canceled.
//
// When a run is dropped, because of a Reader or Store failure or a Handler
// failure with Config.FailOnError enabled, the Subscription resubscribes
// from the last persisted Checkpoint after an exponential backoff delay,
// unless Config.Resubscribe is disabled, in which case the error is returned.
func (s *Subscription) Run(ctx context.Context) error {
	if err := s.validate(); err != nil {
		return err
	}

	config := s.config()
	l := logger.Named(s.Logger, logger.With("subscriptionId", s.ID))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.ResubscribeDelay
	b.MaxInterval = config.MaxResubscribeDelay
	b.MaxElapsedTime = 0 // Don't stop the backoff!

	for attempt := 1; ; attempt++ {
		received, err := s.runOnce(ctx, config, l)
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Info(l, "Subscription stopped")
			return ctxErr
		}

		if err == nil {
			logger.Info(l, "Subscription reader completed")
			return nil
		}

		logger.Error(l, "Subscription dropped", logger.Err(err))

		if s.Observer != nil {
			s.Observer.SubscriptionDropped(ctx, s.ID, err)
		}

		if !config.Resubscribe {
			return fmt.Errorf("subscription.Subscription: %s dropped: %w", s.ID, err)
		}

		if received > 0 {
			b.Reset()
		}

		delay := b.NextBackOff()
		logger.Info(l, "Resubscribing", logger.With("delay", delay), logger.With("attempt", attempt))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if s.Observer != nil {
			s.Observer.SubscriptionResubscribed(ctx, s.ID, attempt)
		}
	}
}

func (s *Subscription) runOnce(ctx context.Context, config Config, l logger.Logger) (uint64, error) {
	store := s.store()

	start, err := store.GetLastCheckpoint(ctx, s.ID)
	if err != nil {
		return 0, fmt.Errorf("subscription.Subscription: failed to load checkpoint: %w", err)
	}

	opts := []checkpoint.CommitterOption{
		checkpoint.WithCommitInterval(config.CommitInterval),
		checkpoint.WithBatchSize(config.CommitBatchSize),
		checkpoint.WithLogger(l),
	}

	if s.CheckpointObserver != nil {
		opts = append(opts, checkpoint.WithObserver(s.CheckpointObserver))
	}

	committer, err := checkpoint.NewCommitter(store, start, opts...)
	if err != nil {
		return 0, fmt.Errorf("subscription.Subscription: failed to create committer: %w", err)
	}

	logger.Info(l, "Subscription started", logger.With("checkpoint", start.String()))

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r := &run{
		subscription: s,
		config:       config,
		logger:       l,
		committer:    committer,
		cancel:       cancel,
	}

	events := make(chan event.Persisted, config.BufferSize)
	group, groupCtx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		if err := s.Reader.Read(groupCtx, start, events); err != nil {
			return fmt.Errorf("subscription.Subscription: reader failed: %w", err)
		}

		return nil
	})

	group.Go(func() error { return r.consume(groupCtx, events) })

	err = group.Wait()

	// Contexts enqueued on the Pipeline observe the cancellation, if any,
	// so draining does not wait for them to be processed.
	if closeErr := s.Pipeline.Close(context.WithoutCancel(runCtx)); closeErr != nil {
		logger.Error(l, "Failed to close pipeline", logger.Err(closeErr))
	}

	if closeErr := committer.Close(runCtx); closeErr != nil {
		logger.Error(l, "Failed to close committer", logger.Err(closeErr))
	}

	if cause := context.Cause(runCtx); cause != nil && ctx.Err() == nil {
		return r.seq, cause
	}

	return r.seq, err
}

var _ consume.Acknowledger = new(run)

// run is the state of a single Subscription run.
type run struct {
	subscription *Subscription
	config       Config
	logger       logger.Logger
	committer    *checkpoint.Committer
	cancel       context.CancelCauseFunc

	// seq is only accessed by the consume loop.
	seq uint64
}

func (r *run) consume(ctx context.Context, events <-chan event.Persisted) error {
	s := r.subscription

	for evt := range events {
		r.seq++
		c := r.newContext(evt)

		if s.MessageObserver != nil {
			s.MessageObserver.MessageReceived(ctx, c)
		}

		if err := s.Pipeline.Send(ctx, c); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			return fmt.Errorf("subscription.Subscription: failed to process message %d: %w", c.SequenceNumber, err)
		}

		if c.AckDelayed() {
			continue
		}

		if err := c.Complete(ctx); err != nil {
			return fmt.Errorf("subscription.Subscription: failed to complete message %d: %w", c.SequenceNumber, err)
		}
	}

	if ctx.Err() != nil {
		return nil
	}

	// The Reader completed: the Contexts still queued in the Pipeline
	// must be processed before the run context gets canceled.
	if err := s.Pipeline.Close(ctx); err != nil {
		return fmt.Errorf("subscription.Subscription: failed to drain pipeline: %w", err)
	}

	return nil
}

func (r *run) newContext(evt event.Persisted) *consume.Context {
	c := &consume.Context{
		MessageID:      evt.ID,
		ContentType:    evt.Metadata[event.ContentTypeKey],
		Stream:         string(evt.StreamID),
		StreamPosition: uint64(evt.Version),
		GlobalPosition: evt.GlobalPosition,
		SequenceNumber: r.seq,
		SubscriptionID: r.subscription.ID,
		Message:        evt.Message,
		Metadata:       evt.Metadata,
		Created:        evt.RecordedAt,
	}

	if evt.Message != nil {
		c.MessageType = evt.Message.Name()
	}

	return c.WithAcknowledger(r)
}

func (r *run) commit(ctx context.Context, c *consume.Context) error {
	err := r.committer.Commit(ctx, checkpoint.CommitPosition{
		SequenceNumber: c.SequenceNumber,
		StorePosition:  c.GlobalPosition,
		Timestamp:      time.Now(),
	})
	if err != nil {
		return fmt.Errorf("subscription.Subscription: failed to commit position: %w", err)
	}

	return nil
}

// Ack implements the consume.Acknowledger interface.
func (r *run) Ack(ctx context.Context, c *consume.Context) error {
	return r.commit(ctx, c)
}

// Nack implements the consume.Acknowledger interface.
//
// Failures caused by the run shutting down are not acknowledged, so that
// the Event is received again on the next run.
func (r *run) Nack(ctx context.Context, c *consume.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Debug(r.logger, "Message processing interrupted",
			logger.With("sequenceNumber", c.SequenceNumber),
			logger.Err(err),
		)

		return nil
	}

	if r.config.FailOnError {
		r.cancel(fmt.Errorf("%w: message %d (%s): %w", ErrHandlerFailed, c.SequenceNumber, c.MessageType, err))
		return nil
	}

	logger.Error(r.logger, "Message failed to process, skipping",
		logger.With("sequenceNumber", c.SequenceNumber),
		logger.With("globalPosition", c.GlobalPosition),
		logger.With("messageType", c.MessageType),
		logger.Err(err),
	)

	return r.commit(ctx, c)
}
