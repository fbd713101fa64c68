package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/get-eventually/go-subscribe/version"
)

// Interface implementation assertion.
var _ Store = new(InMemoryStore)

// InMemoryStore is a thread-safe, in-memory event.Store implementation.
type InMemoryStore struct {
	mx       sync.RWMutex
	events   []Persisted
	versions map[StreamID]version.Version

	// Clock returns the time used as Persisted.RecordedAt.
	// Defaults to time.Now if nil.
	Clock func() time.Time
}

// NewInMemoryStore creates a new event.InMemoryStore instance.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		versions: make(map[StreamID]version.Version),
	}
}

func contextErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("event.InMemoryStore: context error, %w", err)
	}

	return nil
}

func (es *InMemoryStore) now() time.Time {
	if es.Clock == nil {
		return time.Now()
	}

	return es.Clock()
}

// StreamAll streams committed events in the Event log onto the provided stream,
// from the specified global position in `from`.
//
// The events are snapshotted before being sent, so that slow readers
// do not block concurrent appends.
//
// This method fails only when the context is canceled.
func (es *InMemoryStore) StreamAll(ctx context.Context, stream StreamWrite, from uint64) error {
	defer close(stream)

	es.mx.RLock()
	var events []Persisted
	if from == 0 {
		from = 1
	}

	if from <= uint64(len(es.events)) {
		events = make([]Persisted, len(es.events)-int(from-1))
		copy(events, es.events[from-1:])
	}
	es.mx.RUnlock()

	for _, evt := range events {
		select {
		case stream <- evt:
		case <-ctx.Done():
			return contextErr(ctx)
		}
	}

	return nil
}

// LatestPosition returns the global position of the last Event appended.
func (es *InMemoryStore) LatestPosition(ctx context.Context) (uint64, error) {
	if err := contextErr(ctx); err != nil {
		return 0, err
	}

	es.mx.RLock()
	defer es.mx.RUnlock()

	return uint64(len(es.events)), nil
}

// Append inserts the specified Domain Events into the Event Stream specified
// by the current instance, returning the new version of the Event Stream.
//
// `version.CheckExact` can be specified to enable an Optimistic Concurrency check
// on append, by using the expected version of the Event Stream prior
// to appending the new Events.
//
// Alternatively, `version.Any` can be used if no Optimistic Concurrency check
// should be carried out.
//
// An instance of `version.ConflictError` will be returned if the optimistic locking
// version check fails against the current version of the Event Stream.
func (es *InMemoryStore) Append(
	_ context.Context,
	id StreamID,
	expected version.Check,
	events ...Envelope,
) (version.Version, error) {
	es.mx.Lock()
	defer es.mx.Unlock()

	currentVersion := es.versions[id]

	if v, ok := expected.(version.CheckExact); ok && version.Version(v) != currentVersion {
		return 0, fmt.Errorf("event.InMemoryStore: failed to append events, %w", version.ConflictError{
			Expected: version.Version(v),
			Actual:   currentVersion,
		})
	}

	recordedAt := es.now()

	for i, evt := range events {
		if evt.ID == uuid.Nil {
			evt.ID = uuid.New()
		}

		es.events = append(es.events, Persisted{
			Envelope:       evt,
			StreamID:       id,
			Version:        currentVersion + version.Version(i) + 1,
			GlobalPosition: uint64(len(es.events)) + 1,
			RecordedAt:     recordedAt,
		})
	}

	newVersion := currentVersion + version.Version(len(events))
	es.versions[id] = newVersion

	return newVersion, nil
}
