package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/get-eventually/go-subscribe/consume"
	"github.com/get-eventually/go-subscribe/consume/concurrent"
	"github.com/get-eventually/go-subscribe/consume/partition"
	"github.com/get-eventually/go-subscribe/logger"
)

// ErrInvalidConfig is returned when a Subscription has been misconfigured.
var ErrInvalidConfig = errors.New("subscription: invalid configuration")

// Config contains the runtime options of a Subscription.
//
// Use ParseConfig to read it from the environment, or DefaultConfig.
type Config struct {
	// CommitInterval is the interval between two periodic checkpoint writes.
	CommitInterval time.Duration `envconfig:"COMMIT_INTERVAL" default:"1s"`
	// CommitBatchSize is the amount of acknowledged Events triggering
	// an immediate checkpoint write.
	CommitBatchSize int `envconfig:"COMMIT_BATCH_SIZE" default:"10"`
	// BufferSize is the size of the channel between the Reader and the Pipeline.
	BufferSize int `envconfig:"BUFFER_SIZE" default:"48"`

	ConcurrencyLimit  int `envconfig:"CONCURRENCY_LIMIT" default:"1"`
	ConcurrencyBuffer int `envconfig:"CONCURRENCY_BUFFER" default:"10"`
	// PartitionCount enables partitioned processing when greater than zero.
	PartitionCount int `envconfig:"PARTITION_COUNT" default:"0"`

	// FailOnError drops the Subscription run when a Handler fails,
	// instead of logging the failure and moving on.
	FailOnError bool `envconfig:"FAIL_ON_ERROR" default:"false"`

	Resubscribe         bool          `envconfig:"RESUBSCRIBE" default:"true"`
	ResubscribeDelay    time.Duration `envconfig:"RESUBSCRIBE_DELAY" default:"1s"`
	MaxResubscribeDelay time.Duration `envconfig:"MAX_RESUBSCRIBE_DELAY" default:"30s"`
}

// DefaultConfig returns the Config used when none has been specified.
func DefaultConfig() Config {
	return Config{
		CommitInterval:      1 * time.Second,
		CommitBatchSize:     10,
		BufferSize:          DefaultReadBufferSize,
		ConcurrencyLimit:    1,
		ConcurrencyBuffer:   10,
		Resubscribe:         true,
		ResubscribeDelay:    1 * time.Second,
		MaxResubscribeDelay: 30 * time.Second,
	}
}

// ParseConfig reads the Config from the environment variables
// with the specified prefix, e.g. PROJECTOR_COMMIT_INTERVAL.
func ParseConfig(prefix string) (Config, error) {
	var config Config

	if err := envconfig.Process(prefix, &config); err != nil {
		return Config{}, fmt.Errorf("subscription: failed to parse config from env: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate returns ErrInvalidConfig if any of the values is out of range.
func (c Config) Validate() error {
	var errs []error

	if c.CommitInterval <= 0 {
		errs = append(errs, fmt.Errorf("commit interval must be positive, got %s", c.CommitInterval))
	}

	if c.CommitBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("commit batch size must be positive, got %d", c.CommitBatchSize))
	}

	if c.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("buffer size must be positive, got %d", c.BufferSize))
	}

	if c.ConcurrencyLimit <= 0 {
		errs = append(errs, fmt.Errorf("concurrency limit must be positive, got %d", c.ConcurrencyLimit))
	}

	if c.ConcurrencyBuffer <= 0 {
		errs = append(errs, fmt.Errorf("concurrency buffer must be positive, got %d", c.ConcurrencyBuffer))
	}

	if c.PartitionCount < 0 {
		errs = append(errs, fmt.Errorf("partition count must not be negative, got %d", c.PartitionCount))
	}

	if c.Resubscribe && (c.ResubscribeDelay <= 0 || c.MaxResubscribeDelay < c.ResubscribeDelay) {
		errs = append(errs, fmt.Errorf("resubscribe delays must be positive and ordered, got %s and %s",
			c.ResubscribeDelay, c.MaxResubscribeDelay))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// NewPipeline builds a Pipeline ending with the specified HandlersFilter,
// following the concurrency settings of the Config: partitioned when
// PartitionCount is set, concurrent when ConcurrencyLimit is greater than one,
// sequential otherwise.
//
// The additional Filters are run before the concurrency stage,
// on the Subscription goroutine.
func (c Config) NewPipeline(
	l logger.Logger,
	handlers *consume.HandlersFilter,
	filters ...consume.Filter,
) (*consume.Pipeline, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	pipeline := consume.NewPipeline(filters...)

	switch {
	case c.PartitionCount > 0:
		filter, err := partition.NewFilter(c.PartitionCount,
			partition.WithBufferSize(c.ConcurrencyBuffer),
			partition.WithLogger(l),
		)
		if err != nil {
			return nil, fmt.Errorf("subscription: failed to create partition filter: %w", err)
		}

		_ = pipeline.AddFilter(filter)

	case c.ConcurrencyLimit > 1:
		filter, err := concurrent.NewFilter(c.ConcurrencyLimit, c.ConcurrencyBuffer, concurrent.WithLogger(l))
		if err != nil {
			return nil, fmt.Errorf("subscription: failed to create concurrent filter: %w", err)
		}

		_ = pipeline.AddFilter(filter)
	}

	_ = pipeline.AddFilter(handlers)

	return pipeline, nil
}
