// Package oteleventually provides OpenTelemetry instrumentation for
// Subscriptions: metrics through Observer, and traces through
// TracingFilter and InstrumentHandler.
package oteleventually

import "go.opentelemetry.io/otel/attribute"

// Attribute keys used by the instrumentation.
const (
	// ErrorAttribute is used with a metric when an error is recorded.
	ErrorAttribute attribute.Key = "error"

	SubscriptionIDAttribute     attribute.Key = "subscription.id"
	ResubscribeAttemptAttribute attribute.Key = "subscription.resubscribe_attempt"
	MessageTypeAttribute        attribute.Key = "message.type"
	MessageIDAttribute          attribute.Key = "message.id"
	StreamAttribute             attribute.Key = "message.stream"
	StreamPositionAttribute     attribute.Key = "message.stream_position"
	GlobalPositionAttribute     attribute.Key = "message.global_position"
	SequenceNumberAttribute     attribute.Key = "message.sequence_number"
	HandlerNameAttribute        attribute.Key = "handler.name"
	HandlerStatusAttribute      attribute.Key = "handler.status"
	AckDelayedAttribute         attribute.Key = "pipeline.ack_delayed"
)
