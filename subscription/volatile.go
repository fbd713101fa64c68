package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/get-eventually/go-subscribe/checkpoint"
	"github.com/get-eventually/go-subscribe/event"
	"github.com/get-eventually/go-subscribe/logger"
)

var _ Reader = new(Volatile)

// Volatile is a Reader that ignores the Checkpoint of the Subscription,
// and only reads the Events appended to the log after it has started.
//
// Use this Reader type for volatile processes, such as projecting
// realtime metrics, or when you're only interested in newer events
// committed to the Event log.
type Volatile struct {
	Log interface {
		event.GlobalStreamer
		event.LatestPositionGetter
	}
	Logger logger.Logger

	// PullEvery, MaxInterval and BufferSize are used by the underlying
	// CatchUp reader, see CatchUp for the defaults.
	PullEvery   time.Duration
	MaxInterval time.Duration
	BufferSize  int
}

// Read starts reading from the latest position of the Event log.
func (v *Volatile) Read(ctx context.Context, from checkpoint.Checkpoint, events chan<- event.Persisted) error {
	latest, err := v.Log.LatestPosition(ctx)
	if err != nil {
		close(events)
		return fmt.Errorf("subscription.Volatile: failed to get latest position from event log: %w", err)
	}

	start := checkpoint.Empty(from.SubscriptionID)
	if latest > 0 {
		start = checkpoint.At(from.SubscriptionID, latest)
	}

	reader := &CatchUp{
		Log:         v.Log,
		Logger:      v.Logger,
		PullEvery:   v.PullEvery,
		MaxInterval: v.MaxInterval,
		BufferSize:  v.BufferSize,
	}

	if err := reader.Read(ctx, start, events); err != nil {
		return fmt.Errorf("subscription.Volatile: internal catch-up reader exited with error: %w", err)
	}

	return nil
}
