// Package internal contains test fixtures shared by the packages of this module.
package internal

import (
	"github.com/get-eventually/go-subscribe/event"
)

// IntPayload is an integer event payload used in tests.
type IntPayload int64

// Name is the payload name of the IntPayload type.
func (IntPayload) Name() string { return "int_payload" }

// IntEnvelopes returns n envelopes carrying IntPayload values from 1 to n.
func IntEnvelopes(n int) []event.Envelope {
	envelopes := make([]event.Envelope, 0, n)
	for i := 1; i <= n; i++ {
		envelopes = append(envelopes, event.Envelope{Message: IntPayload(i)})
	}

	return envelopes
}
