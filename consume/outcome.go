package consume

import (
	"errors"
	"fmt"
	"sync"
)

// ErrHandlerFailed is used as the failure cause when a Handler reports
// a Failed status without returning an error.
var ErrHandlerFailed = errors.New("consume: handler reported a failure")

// Status is the verdict of a single Handler on a Context.
type Status int

// Status values a Handler can report.
const (
	// Succeeded means the Handler processed the Event.
	Succeeded Status = iota + 1
	// Ignored means the Handler is not interested in the Event.
	Ignored
	// Failed means the Handler could not process the Event.
	Failed
	// Deferred means the Handler will report its verdict later,
	// calling Context.Complete once done.
	Deferred
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Ignored:
		return "ignored"
	case Failed:
		return "failed"
	case Deferred:
		return "deferred"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the handling outcome recorded by a single Handler.
type Result struct {
	Handler string
	Status  Status
	Err     error
}

// Success returns a Succeeded Result for the named handler.
func Success(handler string) Result { return Result{Handler: handler, Status: Succeeded} }

// Ignore returns an Ignored Result for the named handler.
func Ignore(handler string) Result { return Result{Handler: handler, Status: Ignored} }

// Defer returns a Deferred Result for the named handler.
func Defer(handler string) Result { return Result{Handler: handler, Status: Deferred} }

// Failure returns a Failed Result for the named handler.
// A nil error is replaced by ErrHandlerFailed.
func Failure(handler string, err error) Result {
	if err == nil {
		err = ErrHandlerFailed
	}

	return Result{Handler: handler, Status: Failed, Err: err}
}

// Decision is the overall outcome of all the Results recorded on a Context.
type Decision int

// Decision values, see HandlingResults.Decision.
const (
	DecisionPending Decision = iota
	DecisionIgnored
	DecisionFailed
	DecisionSucceeded
)

func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionIgnored:
		return "ignored"
	case DecisionFailed:
		return "failed"
	case DecisionSucceeded:
		return "succeeded"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// HandlingResults aggregates the verdicts of all the Handlers that
// processed a Context.
//
// The zero value is ready to use. It must not be copied after first use.
type HandlingResults struct {
	mx      sync.Mutex
	results []Result
}

// Record appends a new Result.
func (r *HandlingResults) Record(result Result) {
	r.mx.Lock()
	defer r.mx.Unlock()

	r.results = append(r.results, result)
}

// All returns a copy of the recorded Results.
func (r *HandlingResults) All() []Result {
	r.mx.Lock()
	defer r.mx.Unlock()

	return append([]Result(nil), r.results...)
}

// Decision computes the overall outcome:
//   - any Failed result makes the Context failed, regardless of the other results;
//   - no results, or only Deferred ones, make the Context pending;
//   - only Ignored results make the Context ignored;
//   - anything else is a success.
func (r *HandlingResults) Decision() Decision {
	r.mx.Lock()
	defer r.mx.Unlock()

	if len(r.results) == 0 {
		return DecisionPending
	}

	var ignored, deferred int

	for _, result := range r.results {
		switch result.Status {
		case Failed:
			return DecisionFailed
		case Ignored:
			ignored++
		case Deferred:
			deferred++
		}
	}

	switch len(r.results) {
	case deferred:
		return DecisionPending
	case ignored:
		return DecisionIgnored
	default:
		return DecisionSucceeded
	}
}

// IsIgnored returns true if every recorded Result is Ignored,
// and at least one has been recorded.
func (r *HandlingResults) IsIgnored() bool { return r.Decision() == DecisionIgnored }

// HasFailed returns true if any recorded Result is Failed.
func (r *HandlingResults) HasFailed() bool { return r.Decision() == DecisionFailed }

// IsPending returns true if no Result has been recorded yet,
// or if all the recorded Results are Deferred.
func (r *HandlingResults) IsPending() bool { return r.Decision() == DecisionPending }

// Err returns the errors of all the Failed results joined together,
// or nil if no Result has failed.
func (r *HandlingResults) Err() error {
	r.mx.Lock()
	defer r.mx.Unlock()

	var errs []error

	for _, result := range r.results {
		if result.Status == Failed {
			errs = append(errs, fmt.Errorf("handler %q: %w", result.Handler, result.Err))
		}
	}

	return errors.Join(errs...)
}
