// Package consume contains the building blocks used to process the Events
// received by a Subscription: the per-event consume Context, the handling
// outcome tracker, and the Pipeline of Filters every Context is sent through.
//
// A Pipeline is a singly linked chain of Filters. Each Filter receives the
// Context and the rest of the chain as an opaque continuation, and decides
// whether to call it, skip it, or wrap it:
//
//	pipeline := consume.NewPipeline(
//		consume.MessageFilter(func(c *consume.Context) bool { return c.MessageType != "ignored" }),
//		consume.NewHandlersFilter([]consume.Handler{projection}),
//	)
//
// Filters owning resources (e.g. the worker pools in the concurrent and
// partition packages) implement Closer, and are closed exactly once when the
// Pipeline is closed.
package consume
