// Package checkpoint contains the types used to record, and persist, the
// progress of a Subscription, so that it might survive application restarts
// without reprocessing the whole Event log.
//
// Handlers can complete Events out of order: the Committer keeps track of
// all the acknowledged positions, and only persists the highest one that
// has no unacknowledged position before it.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrInvalidConfiguration is returned by NewCommitter when the commit
// interval or the batch size are not positive.
var ErrInvalidConfiguration = errors.New("checkpoint: invalid configuration")

// ErrPositionOutOfRange is returned by Stores persisting positions as signed
// 64-bit integers when a position does not fit in one.
var ErrPositionOutOfRange = errors.New("checkpoint: position out of int64 range")

// Checkpoint is the last processed position of a Subscription.
type Checkpoint struct {
	SubscriptionID string

	// Position is the global position of the last Event processed,
	// nil if the Subscription has not processed any Event yet.
	Position *uint64
}

// Empty returns a Checkpoint with no position, used to read the Event log
// from the beginning.
func Empty(subscriptionID string) Checkpoint {
	return Checkpoint{SubscriptionID: subscriptionID}
}

// At returns a Checkpoint at the specified position.
func At(subscriptionID string, position uint64) Checkpoint {
	return Checkpoint{SubscriptionID: subscriptionID, Position: &position}
}

// IsEmpty returns true if the Checkpoint has no position.
func (cp Checkpoint) IsEmpty() bool { return cp.Position == nil }

// Next returns the first global position a Subscription resuming from
// this Checkpoint should read.
func (cp Checkpoint) Next() uint64 {
	if cp.Position == nil {
		return 0
	}

	return *cp.Position + 1
}

// Advances returns true if the Checkpoint position is strictly greater
// than the other Checkpoint one. An empty Checkpoint never advances.
func (cp Checkpoint) Advances(other Checkpoint) bool {
	if cp.Position == nil {
		return false
	}

	return other.Position == nil || *cp.Position > *other.Position
}

// Int64Position returns the position as a signed 64-bit integer,
// or nil if the Checkpoint is empty.
func (cp Checkpoint) Int64Position() (*int64, error) {
	if cp.Position == nil {
		return nil, nil
	}

	if *cp.Position > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %s", ErrPositionOutOfRange, cp)
	}

	position := int64(*cp.Position)

	return &position, nil
}

func (cp Checkpoint) String() string {
	if cp.Position == nil {
		return fmt.Sprintf("%s@<none>", cp.SubscriptionID)
	}

	return fmt.Sprintf("%s@%d", cp.SubscriptionID, *cp.Position)
}

// Store persists Subscription Checkpoints.
//
// Implementations must never move a persisted Checkpoint backwards.
type Store interface {
	// GetLastCheckpoint returns the last Checkpoint persisted for the
	// Subscription, or an empty one if none has been persisted yet.
	GetLastCheckpoint(ctx context.Context, subscriptionID string) (Checkpoint, error)

	// StoreCheckpoint persists the Checkpoint, returning the one actually
	// persisted. Force asks the Store to skip any internal write batching,
	// and it is used for the last write of a Subscription run.
	StoreCheckpoint(ctx context.Context, cp Checkpoint, force bool) (Checkpoint, error)
}

// Observer is notified every time a Checkpoint gets persisted.
type Observer interface {
	CheckpointStored(ctx context.Context, cp Checkpoint, duration time.Duration, err error)
}

var (
	_ Store = NopStore{}
	_ Store = new(InMemoryStore)
)

// NopStore is a Store that does not persist anything, and always returns
// an empty Checkpoint.
type NopStore struct{}

// GetLastCheckpoint implements the Store interface.
func (NopStore) GetLastCheckpoint(_ context.Context, subscriptionID string) (Checkpoint, error) {
	return Empty(subscriptionID), nil
}

// StoreCheckpoint implements the Store interface.
func (NopStore) StoreCheckpoint(_ context.Context, cp Checkpoint, _ bool) (Checkpoint, error) {
	return cp, nil
}

// InMemoryStore is a thread-safe Store keeping Checkpoints in memory.
type InMemoryStore struct {
	mx          sync.RWMutex
	checkpoints map[string]uint64
}

// NewInMemoryStore returns a new empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{checkpoints: make(map[string]uint64)}
}

// GetLastCheckpoint implements the Store interface.
func (s *InMemoryStore) GetLastCheckpoint(ctx context.Context, subscriptionID string) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint.InMemoryStore: context error: %w", err)
	}

	s.mx.RLock()
	defer s.mx.RUnlock()

	position, ok := s.checkpoints[subscriptionID]
	if !ok {
		return Empty(subscriptionID), nil
	}

	return At(subscriptionID, position), nil
}

// StoreCheckpoint implements the Store interface.
func (s *InMemoryStore) StoreCheckpoint(ctx context.Context, cp Checkpoint, _ bool) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint.InMemoryStore: context error: %w", err)
	}

	s.mx.Lock()
	defer s.mx.Unlock()

	current, ok := s.checkpoints[cp.SubscriptionID]

	if cp.Position == nil || (ok && current >= *cp.Position) {
		if !ok {
			return Empty(cp.SubscriptionID), nil
		}

		return At(cp.SubscriptionID, current), nil
	}

	s.checkpoints[cp.SubscriptionID] = *cp.Position

	return cp, nil
}
