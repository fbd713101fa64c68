package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/get-eventually/go-subscribe/checkpoint"
	"github.com/get-eventually/go-subscribe/event"
	"github.com/get-eventually/go-subscribe/logger"
)

// Default values used by a CatchUp reader.
const (
	DefaultPullInterval    = 100 * time.Millisecond
	DefaultMaxPullInterval = 1 * time.Second
	DefaultReadBufferSize  = 48
)

var _ Reader = new(CatchUp)

// CatchUp is a Reader that "pulls" new Events from an Event log
// periodically, starting from the Checkpoint provided.
//
// When no new Events are found, the interval between two pulls grows
// exponentially, up to MaxInterval.
type CatchUp struct {
	Log    event.GlobalStreamer
	Logger logger.Logger

	// PullEvery is the minimum interval between each streaming call to the Event log.
	//
	// Defaults to DefaultPullInterval if unspecified or negative value
	// has been provided.
	PullEvery time.Duration

	// MaxInterval is the maximum interval between each streaming call to the Event log.
	// Use this value to ensure a specific eventual consistency window.
	//
	// Defaults to DefaultMaxPullInterval if unspecified or negative value
	// has been provided.
	MaxInterval time.Duration

	// BufferSize is the size of the buffered channel used to receive Events
	// from the Event log.
	//
	// Defaults to DefaultReadBufferSize if unspecified or a negative
	// value has been provided.
	BufferSize int
}

// Read sends Events on the provided channel, starting from the position
// following the Checkpoint, until the context is canceled or the Event log fails.
func (r *CatchUp) Read(ctx context.Context, from checkpoint.Checkpoint, events chan<- event.Persisted) error {
	defer close(events)

	next := from.Next()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.pullEvery()
	b.MaxInterval = r.maxInterval()
	b.MaxElapsedTime = 0 // Don't stop the backoff!

	logger.Debug(r.Logger, "Catch-up reader is starting up",
		logger.With("checkpoint", from.String()),
		logger.With("initialPullInterval", b.InitialInterval),
		logger.With("maxPullInterval", b.MaxInterval),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			last, err := r.catchUp(ctx, events, next)
			if err != nil {
				return fmt.Errorf("subscription.CatchUp: failed while streaming: %w", err)
			}

			if last >= next {
				logger.Debug(r.Logger, "Caught up with the event log",
					logger.With("globalPosition", last),
				)

				next = last + 1
				b.Reset()
			}

			timer.Reset(b.NextBackOff())
		}
	}
}

func (r *CatchUp) catchUp(ctx context.Context, events chan<- event.Persisted, from uint64) (uint64, error) {
	es := make(chan event.Persisted, r.bufferSize())

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return r.Log.StreamAll(ctx, es, from)
	})

	var last uint64

	for evt := range es {
		select {
		case events <- evt:
			last = evt.GlobalPosition
		case <-ctx.Done():
			// Drain the stream to unblock the streaming goroutine.
			for range es {
			}

			return last, ctx.Err()
		}
	}

	return last, group.Wait()
}

func (r *CatchUp) pullEvery() time.Duration {
	if r.PullEvery <= 0 {
		return DefaultPullInterval
	}

	return r.PullEvery
}

func (r *CatchUp) maxInterval() time.Duration {
	if r.MaxInterval <= 0 {
		return DefaultMaxPullInterval
	}

	return r.MaxInterval
}

func (r *CatchUp) bufferSize() int {
	if r.BufferSize <= 0 {
		return DefaultReadBufferSize
	}

	return r.BufferSize
}
