package event

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/get-eventually/go-subscribe/version"
)

// Stream represents a stream of persisted Domain Events coming from some
// stream-able source of data, like an Event log.
type Stream = chan Persisted

// StreamWrite provides write-only access to an event.Stream object.
type StreamWrite chan<- Persisted

// StreamRead provides read-only access to an event.Stream object.
type StreamRead <-chan Persisted

// SliceToStream converts a slice of event.Persisted domain events to an event.Stream type.
//
// The channel returned by the function contains all the original slice elements
// and is already closed.
func SliceToStream(events []Persisted) Stream {
	ch := make(chan Persisted, len(events))
	defer close(ch)

	for _, event := range events {
		ch <- event
	}

	return ch
}

// StreamToSlice synchronously exhausts an EventStream to an event.Persisted slice,
// and returns an error if the EventStream origin, passed here as a closure,
// fails with an error.
func StreamToSlice(ctx context.Context, f func(ctx context.Context, stream StreamWrite) error) ([]Persisted, error) {
	ch := make(chan Persisted, 1)
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error { return f(ctx, ch) })

	var events []Persisted
	for event := range ch {
		events = append(events, event)
	}

	return events, group.Wait()
}

// GlobalStreamer is an Event log trait used to stream all the Events
// in the log, in global order, starting from a specific global position.
type GlobalStreamer interface {
	// StreamAll sends all the Events with a global position greater or equal
	// than the one specified on the provided stream, closing it when done.
	StreamAll(ctx context.Context, stream StreamWrite, from uint64) error
}

// LatestPositionGetter returns the global position of the latest Event
// persisted in the Event log, or zero if the log is empty.
type LatestPositionGetter interface {
	LatestPosition(ctx context.Context) (uint64, error)
}

// Appender is an Event log trait used to append new Domain Events in the Event Stream.
type Appender interface {
	Append(ctx context.Context, id StreamID, expected version.Check, events ...Envelope) (version.Version, error)
}

// Store represents an Event log that can be appended to, and followed
// by Subscriptions.
type Store interface {
	Appender
	GlobalStreamer
	LatestPositionGetter
}
