package oteleventually

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/get-eventually/go-subscribe/consume"
)

func messageAttributes(c *consume.Context) []attribute.KeyValue {
	return []attribute.KeyValue{
		SubscriptionIDAttribute.String(c.SubscriptionID),
		MessageIDAttribute.String(c.MessageID.String()),
		MessageTypeAttribute.String(c.MessageType),
		StreamAttribute.String(c.Stream),
		StreamPositionAttribute.Int64(int64(c.StreamPosition)),
		GlobalPositionAttribute.Int64(int64(c.GlobalPosition)),
		SequenceNumberAttribute.Int64(int64(c.SequenceNumber)),
	}
}

var _ consume.Filter = new(TracingFilter)

// TracingFilter is a consume.Filter that starts a new span for every
// Context sent through the Pipeline.
//
// The span context is passed down to the rest of the Pipeline, so spans
// started by Handlers are children of it, even when the Context is handed
// off to a different goroutine by a downstream Filter.
//
// TracingFilter should be the first Filter in the Pipeline.
type TracingFilter struct {
	config config
	tracer trace.Tracer
}

// NewTracingFilter returns a new TracingFilter using the configured trace.TracerProvider.
func NewTracingFilter(options ...Option) *TracingFilter {
	cfg := newConfig(options...)

	return &TracingFilter{config: cfg, tracer: cfg.tracer()}
}

// Send implements the consume.Filter interface.
func (f *TracingFilter) Send(ctx context.Context, c *consume.Context, next consume.Next) (err error) {
	ctx, span := f.tracer.Start(ctx, "consume.Pipeline.Send",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(f.config.with(messageAttributes(c)...)...),
	)

	defer func() {
		span.SetAttributes(AckDelayedAttribute.Bool(c.AckDelayed()))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
	}()

	err = next(ctx, c)

	return
}

type instrumentedHandler struct {
	consume.Handler

	config config
	tracer trace.Tracer
}

// InstrumentHandler wraps a consume.Handler to record a span for every
// call to Handle, annotated with the reported status.
//
// The wrapped Handler keeps the same name.
func InstrumentHandler(h consume.Handler, options ...Option) consume.Handler {
	cfg := newConfig(options...)

	return instrumentedHandler{
		Handler: h,
		config:  cfg,
		tracer:  cfg.tracer(),
	}
}

func (h instrumentedHandler) Handle(ctx context.Context, c *consume.Context) (status consume.Status, err error) {
	attributes := h.config.with(append(messageAttributes(c), HandlerNameAttribute.String(h.Name()))...)

	ctx, span := h.tracer.Start(ctx, "consume.Handler.Handle", trace.WithAttributes(attributes...))

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			status = consume.Failed
		}

		span.SetAttributes(HandlerStatusAttribute.String(status.String()))
		span.End()
	}()

	status, err = h.Handler.Handle(ctx, c)

	return
}
