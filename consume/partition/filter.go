// Package partition provides a consume.Filter that routes Contexts to
// a fixed set of sequential worker pools, based on a partition key.
//
// Contexts sharing the same partition key are processed one at a time,
// in the order they have been sent, while Contexts of different partitions
// are processed concurrently.
package partition

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/get-eventually/go-subscribe/consume"
	"github.com/get-eventually/go-subscribe/consume/concurrent"
	"github.com/get-eventually/go-subscribe/logger"
)

// Context item keys set by the Filter on every Context it routes.
const (
	KeyItem   = "partition.key"
	IndexItem = "partition.index"
)

// DefaultBufferSize is the queue size of each partition worker pool,
// unless configured otherwise with WithBufferSize.
const DefaultBufferSize = 10

// ErrInvalidPartitionCount is returned by NewFilter when the partition
// count is not positive.
var ErrInvalidPartitionCount = errors.New("partition.Filter: partition count must be positive")

// Partitioner extracts the partition key from a Context.
type Partitioner func(c *consume.Context) string

// ByStream is the default Partitioner, using the Event Stream name as key.
func ByStream(c *consume.Context) string { return c.Stream }

// Option configures a Filter.
type Option func(*Filter)

// WithPartitioner sets the function used to extract the partition key.
func WithPartitioner(partitioner Partitioner) Option {
	return func(f *Filter) { f.partitioner = partitioner }
}

// WithHash sets the function used to hash partition keys.
func WithHash(hash Hash) Option {
	return func(f *Filter) { f.hash = hash }
}

// WithBufferSize sets the queue size of each partition worker pool.
func WithBufferSize(size int) Option {
	return func(f *Filter) { f.bufferSize = size }
}

// WithLogger sets the Logger used by the Filter.
func WithLogger(l logger.Logger) Option {
	return func(f *Filter) { f.logger = l }
}

var _ consume.Filter = new(Filter)

// Filter routes each Context to one of its partitions, computed as
// hash(partitionKey) % partitionCount.
type Filter struct {
	count       int
	partitioner Partitioner
	hash        Hash
	bufferSize  int
	logger      logger.Logger

	mx    sync.Mutex
	pools []*concurrent.Filter
}

// NewFilter returns a new Filter using the specified amount of partitions.
func NewFilter(partitionCount int, opts ...Option) (*Filter, error) {
	if partitionCount <= 0 {
		return nil, fmt.Errorf("%w (count: %d)", ErrInvalidPartitionCount, partitionCount)
	}

	f := &Filter{
		count:       partitionCount,
		partitioner: ByStream,
		hash:        Murmur3,
		bufferSize:  DefaultBufferSize,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.bufferSize <= 0 {
		return nil, fmt.Errorf("partition.NewFilter: %w", concurrent.ErrInvalidConfiguration)
	}

	return f, nil
}

// Index returns the partition assigned to the specified key.
func (f *Filter) Index(key string) int {
	return int(f.hash(key) % uint64(f.count))
}

func (f *Filter) partition(index int) (*concurrent.Filter, error) {
	f.mx.Lock()
	defer f.mx.Unlock()

	if f.pools == nil {
		f.pools = make([]*concurrent.Filter, f.count)
	}

	if f.pools[index] == nil {
		pool, err := concurrent.NewFilter(1, f.bufferSize,
			concurrent.WithLogger(logger.Named(f.logger, logger.With("partition", index))),
		)
		if err != nil {
			return nil, err
		}

		f.pools[index] = pool
	}

	return f.pools[index], nil
}

// Send implements the consume.Filter interface.
func (f *Filter) Send(ctx context.Context, c *consume.Context, next consume.Next) error {
	key := f.partitioner(c)
	index := f.Index(key)

	c.Items.Set(KeyItem, key)
	c.Items.Set(IndexItem, index)

	pool, err := f.partition(index)
	if err != nil {
		return fmt.Errorf("partition.Filter: failed to start partition %d: %w", index, err)
	}

	if err := pool.Send(ctx, c, next); err != nil {
		return fmt.Errorf("partition.Filter: partition %d: %w", index, err)
	}

	return nil
}

// Close stops and drains all the partitions concurrently.
//
// A partition failing to drain does not prevent the others from being
// stopped: all the errors are returned together.
func (f *Filter) Close(ctx context.Context) error {
	f.mx.Lock()
	pools := f.pools
	f.pools = nil
	f.mx.Unlock()

	errs := make([]error, len(pools))

	var group errgroup.Group

	for i, pool := range pools {
		if pool == nil {
			continue
		}

		group.Go(func() error {
			if err := pool.Close(ctx); err != nil {
				errs[i] = fmt.Errorf("partition %d: %w", i, err)
			}

			return nil
		})
	}

	_ = group.Wait()

	if err := errors.Join(errs...); err != nil {
		logger.Error(f.logger, "Failed to drain some partitions", logger.Err(err))
		return fmt.Errorf("partition.Filter: failed to close: %w", err)
	}

	return nil
}
