package version

import "fmt"

// Any is a Check that skips the optimistic concurrency check on append.
var Any = CheckAny{}

// Check represents the optimistic concurrency check performed when
// appending new Events to an Event Stream.
//
// This is a sealed interface: use Any or CheckExact.
type Check interface {
	isVersionCheck()
}

// CheckAny disables the version check.
type CheckAny struct{}

func (CheckAny) isVersionCheck() {}

// CheckExact asserts the Event Stream is exactly at the specified version
// before appending.
type CheckExact Version

func (CheckExact) isVersionCheck() {}

// ConflictError is returned by an Event log when appending
// some events using an expected Event Stream version that does not match
// the current state of the Event Stream.
type ConflictError struct {
	Expected Version
	Actual   Version
}

func (err ConflictError) Error() string {
	return fmt.Sprintf(
		"version: conflict detected; expected stream version: %d, actual: %d",
		err.Expected,
		err.Actual,
	)
}
