package consume

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/get-eventually/go-subscribe/logger"
)

// NoHandlerName is the handler identity recorded on Contexts sent
// to a HandlersFilter with no Handlers registered.
const NoHandlerName = "no-handler"

// Handler processes the Events received by a Subscription.
type Handler interface {
	// Name is the identity of the Handler, used to tag its Results.
	Name() string

	// Handle processes the Context and reports its verdict.
	// A non-nil error always results in a Failed verdict.
	Handle(ctx context.Context, c *Context) (Status, error)
}

// HandlerFunc is a functional Handler implementation, use NewHandlerFunc
// to give it a name.
type HandlerFunc func(ctx context.Context, c *Context) (Status, error)

type namedHandler struct {
	name string
	fn   HandlerFunc
}

func (h namedHandler) Name() string { return h.name }

func (h namedHandler) Handle(ctx context.Context, c *Context) (Status, error) {
	return h.fn(ctx, c)
}

// NewHandlerFunc returns a Handler with the specified name, using
// the provided function to handle Contexts.
func NewHandlerFunc(name string, fn HandlerFunc) Handler {
	return namedHandler{name: name, fn: fn}
}

// Observer is notified of the Contexts received by a Subscription,
// and of the verdict of each Handler on them.
type Observer interface {
	MessageReceived(ctx context.Context, c *Context)
	MessageHandled(ctx context.Context, c *Context, result Result)
}

// HandlersOption configures a HandlersFilter.
type HandlersOption func(*HandlersFilter)

// WithConcurrentHandlers runs all the Handlers of a HandlersFilter
// concurrently, instead of one after the other in registration order.
func WithConcurrentHandlers() HandlersOption {
	return func(f *HandlersFilter) { f.concurrent = true }
}

// WithHandlersObserver sets the Observer notified of every Handler verdict.
func WithHandlersObserver(observer Observer) HandlersOption {
	return func(f *HandlersFilter) { f.observer = observer }
}

// WithHandlersLogger sets the Logger used to report Handler failures.
func WithHandlersLogger(l logger.Logger) HandlersOption {
	return func(f *HandlersFilter) { f.logger = l }
}

// HandlersFilter is the terminal stage of a Pipeline: it invokes all the
// registered Handlers on the Context, and records their verdicts on it.
type HandlersFilter struct {
	handlers   []Handler
	concurrent bool
	observer   Observer
	logger     logger.Logger
}

// NewHandlersFilter returns a HandlersFilter invoking the specified Handlers.
func NewHandlersFilter(handlers []Handler, opts ...HandlersOption) *HandlersFilter {
	f := &HandlersFilter{handlers: handlers}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Send implements the Filter interface.
func (f *HandlersFilter) Send(ctx context.Context, c *Context, next Next) error {
	switch {
	case len(f.handlers) == 0:
		f.record(ctx, c, Ignore(NoHandlerName))

	case f.concurrent && len(f.handlers) > 1:
		var group errgroup.Group

		for _, h := range f.handlers {
			group.Go(func() error {
				f.handle(ctx, c, h)
				return nil
			})
		}

		_ = group.Wait()

	default:
		for _, h := range f.handlers {
			f.handle(ctx, c, h)
		}
	}

	return next(ctx, c)
}

func (f *HandlersFilter) handle(ctx context.Context, c *Context, h Handler) {
	name := h.Name()

	result := func() (result Result) {
		defer func() {
			if r := recover(); r != nil {
				result = Failure(name, fmt.Errorf("consume.HandlersFilter: handler panicked: %v", r))
			}
		}()

		status, err := h.Handle(ctx, c)
		if err != nil {
			return Failure(name, err)
		}

		switch status {
		case Ignored:
			return Ignore(name)
		case Deferred:
			return Defer(name)
		case Failed:
			return Failure(name, nil)
		default:
			return Success(name)
		}
	}()

	if result.Status == Failed {
		logger.Error(f.logger, "handler failed to process message",
			logger.With("handler", name),
			logger.With("messageType", c.MessageType),
			logger.With("stream", c.Stream),
			logger.With("sequenceNumber", c.SequenceNumber),
			logger.Err(result.Err),
		)
	}

	f.record(ctx, c, result)
}

func (f *HandlersFilter) record(ctx context.Context, c *Context, result Result) {
	c.Results.Record(result)

	if f.observer != nil {
		f.observer.MessageHandled(ctx, c, result)
	}
}

// MessageFilterName is the handler identity recorded on Contexts
// short-circuited by a MessageFilter.
const MessageFilterName = "message-filter"

// MessageFilter is a Filter that only lets through the Contexts for which
// the predicate returns true. Other Contexts are marked as Ignored and
// do not reach the rest of the Pipeline.
type MessageFilter func(c *Context) bool

// Send implements the Filter interface.
func (f MessageFilter) Send(ctx context.Context, c *Context, next Next) error {
	if !f(c) {
		c.Results.Record(Ignore(MessageFilterName))
		return nil
	}

	return next(ctx, c)
}
