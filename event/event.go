// Package event contains the Event log abstractions a Subscription reads from,
// and an in-memory Event log implementation useful for tests and examples.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/get-eventually/go-subscribe/message"
	"github.com/get-eventually/go-subscribe/version"
)

// ContentTypeKey is the Metadata key used to carry the content type
// of the serialized Event payload, if known.
const ContentTypeKey = "content-type"

// Event is a Message representing some Domain information that has happened
// in the past, which is of vital information to the Domain itself.
//
// Event type names should be phrased in the past tense, to enforce the notion
// of "information happened in the past".
type Event message.Message

// StreamID is the unique identifier of an Event Stream.
type StreamID string

// Envelope bundles an Event with its identity and optional Metadata.
type Envelope struct {
	// ID is the unique identifier of the Event.
	// Event logs assign a new identifier on append if none has been specified.
	ID       uuid.UUID
	Message  Event
	Metadata message.Metadata
}

// Persisted represents a Domain Event that has been persisted into the Event log.
type Persisted struct {
	Envelope

	StreamID StreamID
	Version  version.Version

	// GlobalPosition is the position of the Event in the whole Event log.
	// Positions start from 1 and are strictly increasing.
	GlobalPosition uint64

	RecordedAt time.Time
}
