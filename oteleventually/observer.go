package oteleventually

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/get-eventually/go-subscribe/checkpoint"
	"github.com/get-eventually/go-subscribe/consume"
	"github.com/get-eventually/go-subscribe/subscription"
)

var (
	_ consume.Observer      = new(Observer)
	_ checkpoint.Observer   = new(Observer)
	_ subscription.Observer = new(Observer)
)

// Observer records Subscription metrics using OpenTelemetry.
//
// The same Observer can be used for all the observer fields
// of a subscription.Subscription.
//
// Use NewObserver for constructing a new instance of this type.
type Observer struct {
	config config

	received           metric.Int64Counter
	handled            metric.Int64Counter
	lag                metric.Int64Histogram
	checkpointDuration metric.Int64Histogram
	checkpointPosition metric.Int64Gauge
	dropped            metric.Int64Counter
	resubscribed       metric.Int64Counter
}

func (o *Observer) registerMetrics(meter metric.Meter) error {
	var err error

	wrapErr := func(err error) error {
		return fmt.Errorf("oteleventually.Observer: failed to register metric: %w", err)
	}

	if o.received, err = meter.Int64Counter(
		"eventually.subscription.messages.received",
		metric.WithDescription("Number of messages received by a subscription."),
	); err != nil {
		return wrapErr(err)
	}

	if o.handled, err = meter.Int64Counter(
		"eventually.subscription.messages.handled",
		metric.WithDescription("Number of handler results recorded, by handler and status."),
	); err != nil {
		return wrapErr(err)
	}

	if o.lag, err = meter.Int64Histogram(
		"eventually.subscription.messages.lag.milliseconds",
		metric.WithUnit("ms"),
		metric.WithDescription("Time in milliseconds between the recording of an event and its reception."),
	); err != nil {
		return wrapErr(err)
	}

	if o.checkpointDuration, err = meter.Int64Histogram(
		"eventually.subscription.checkpoint.store.duration.milliseconds",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration in milliseconds of checkpoint.Store.StoreCheckpoint operations performed."),
	); err != nil {
		return wrapErr(err)
	}

	if o.checkpointPosition, err = meter.Int64Gauge(
		"eventually.subscription.checkpoint.position",
		metric.WithDescription("Last global position checkpointed by a subscription."),
	); err != nil {
		return wrapErr(err)
	}

	if o.dropped, err = meter.Int64Counter(
		"eventually.subscription.dropped",
		metric.WithDescription("Number of subscription runs dropped because of an error."),
	); err != nil {
		return wrapErr(err)
	}

	if o.resubscribed, err = meter.Int64Counter(
		"eventually.subscription.resubscribed",
		metric.WithDescription("Number of subscription runs restarted after being dropped."),
	); err != nil {
		return wrapErr(err)
	}

	return nil
}

// NewObserver returns a new Observer, registering its metrics on the
// configured metric.MeterProvider.
//
// An error is returned if metrics could not be registered.
func NewObserver(options ...Option) (*Observer, error) {
	o := &Observer{config: newConfig(options...)}

	if err := o.registerMetrics(o.config.meter()); err != nil {
		return nil, err
	}

	return o, nil
}

// MessageReceived implements the consume.Observer interface.
func (o *Observer) MessageReceived(ctx context.Context, c *consume.Context) {
	attributes := metric.WithAttributes(o.config.with(
		SubscriptionIDAttribute.String(c.SubscriptionID),
		MessageTypeAttribute.String(c.MessageType),
	)...)

	o.received.Add(ctx, 1, attributes)

	if !c.Created.IsZero() {
		o.lag.Record(ctx, time.Since(c.Created).Milliseconds(), attributes)
	}
}

// MessageHandled implements the consume.Observer interface.
func (o *Observer) MessageHandled(ctx context.Context, c *consume.Context, result consume.Result) {
	o.handled.Add(ctx, 1, metric.WithAttributes(o.config.with(
		SubscriptionIDAttribute.String(c.SubscriptionID),
		MessageTypeAttribute.String(c.MessageType),
		HandlerNameAttribute.String(result.Handler),
		HandlerStatusAttribute.String(result.Status.String()),
	)...))
}

// CheckpointStored implements the checkpoint.Observer interface.
func (o *Observer) CheckpointStored(ctx context.Context, cp checkpoint.Checkpoint, duration time.Duration, err error) {
	subscriptionID := SubscriptionIDAttribute.String(cp.SubscriptionID)

	o.checkpointDuration.Record(ctx, duration.Milliseconds(), metric.WithAttributes(o.config.with(
		subscriptionID,
		ErrorAttribute.Bool(err != nil),
	)...))

	if err == nil && cp.Position != nil {
		o.checkpointPosition.Record(ctx, int64(*cp.Position), metric.WithAttributes(o.config.with(subscriptionID)...))
	}
}

// SubscriptionDropped implements the subscription.Observer interface.
func (o *Observer) SubscriptionDropped(ctx context.Context, subscriptionID string, _ error) {
	o.dropped.Add(ctx, 1, metric.WithAttributes(o.config.with(SubscriptionIDAttribute.String(subscriptionID))...))
}

// SubscriptionResubscribed implements the subscription.Observer interface.
func (o *Observer) SubscriptionResubscribed(ctx context.Context, subscriptionID string, attempt int) {
	o.resubscribed.Add(ctx, 1, metric.WithAttributes(o.config.with(
		SubscriptionIDAttribute.String(subscriptionID),
		ResubscribeAttemptAttribute.Int(attempt),
	)...))
}
