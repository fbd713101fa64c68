package oteleventually

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/get-eventually/go-subscribe/oteleventually"

type config struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	attributes     []attribute.KeyValue
}

// Option configures the instrumentation components of this package.
type Option func(*config)

// WithMeterProvider sets the metric.MeterProvider used to register metrics.
// The global one is used by default.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *config) { c.meterProvider = provider }
}

// WithTracerProvider sets the trace.TracerProvider used to start spans.
// The global one is used by default.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *config) { c.tracerProvider = provider }
}

// WithAttributes adds attributes to every metric recorded and span started,
// e.g. the name of the service running the Subscription.
func WithAttributes(attributes ...attribute.KeyValue) Option {
	return func(c *config) { c.attributes = append(c.attributes, attributes...) }
}

func newConfig(options ...Option) config {
	c := config{
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}

	for _, opt := range options {
		opt(&c)
	}

	return c
}

func (c config) meter() metric.Meter {
	return c.meterProvider.Meter(instrumentationName)
}

func (c config) tracer() trace.Tracer {
	return c.tracerProvider.Tracer(instrumentationName)
}

// with returns the configured attributes followed by the specified ones.
func (c config) with(attributes ...attribute.KeyValue) []attribute.KeyValue {
	if len(c.attributes) == 0 {
		return attributes
	}

	return append(append(make([]attribute.KeyValue, 0, len(c.attributes)+len(attributes)), c.attributes...), attributes...)
}
