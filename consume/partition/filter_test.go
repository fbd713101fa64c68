package partition_test

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-subscribe/consume"
	"github.com/get-eventually/go-subscribe/consume/partition"
)

func TestNewFilter(t *testing.T) {
	_, err := partition.NewFilter(0)
	assert.ErrorIs(t, err, partition.ErrInvalidPartitionCount)

	_, err = partition.NewFilter(-3)
	assert.ErrorIs(t, err, partition.ErrInvalidPartitionCount)
}

func TestFilter_Index(t *testing.T) {
	filter, err := partition.NewFilter(25)
	require.NoError(t, err)

	cfg := &quick.Config{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	err = quick.Check(func(key string) bool {
		index := filter.Index(key)
		return index >= 0 && index < 25 && index == filter.Index(key)
	}, cfg)
	assert.NoError(t, err)

	assert.Equal(t, partition.Murmur3("order-45"), partition.Murmur3("order-45"))
}

type noopAcker struct{}

func (noopAcker) Ack(context.Context, *consume.Context) error        { return nil }
func (noopAcker) Nack(context.Context, *consume.Context, error) error { return nil }

func TestFilter_Ordering(t *testing.T) {
	ctx := context.Background()

	hashes := map[string]partition.Hash{
		"murmur3":  partition.Murmur3,
		"constant": func(string) uint64 { return 42 },
		"length":   func(key string) uint64 { return uint64(len(key)) },
	}

	for _, count := range []int{1, 3, 8} {
		for hashName, hash := range hashes {
			t.Run(fmt.Sprintf("%d partitions with %s hash", count, hashName), func(t *testing.T) {
				filter, err := partition.NewFilter(count, partition.WithHash(hash), partition.WithBufferSize(2))
				require.NoError(t, err)

				var (
					mx       sync.Mutex
					received = make(map[string][]uint64)
				)

				pipeline := consume.NewPipeline(
					filter,
					consume.NewHandlersFilter([]consume.Handler{
						consume.NewHandlerFunc("recorder", func(_ context.Context, c *consume.Context) (consume.Status, error) {
							// Yield to the scheduler to shake up the interleaving between partitions.
							time.Sleep(time.Duration(rand.Intn(50)) * time.Microsecond)

							mx.Lock()
							defer mx.Unlock()

							received[c.Stream] = append(received[c.Stream], c.SequenceNumber)

							return consume.Succeeded, nil
						}),
					}),
				)

				streams := []string{"a", "bb", "ccc", "dddd", "order-1", "order-2", "order-33"}

				for seq := uint64(1); seq <= 300; seq++ {
					c := (&consume.Context{
						SequenceNumber: seq,
						Stream:         streams[rand.Intn(len(streams))],
					}).WithAcknowledger(noopAcker{})

					require.NoError(t, pipeline.Send(ctx, c))

					key, ok := consume.Item[string](c, partition.KeyItem)
					assert.True(t, ok)
					assert.Equal(t, c.Stream, key)

					index, ok := consume.Item[int](c, partition.IndexItem)
					assert.True(t, ok)
					assert.Equal(t, filter.Index(c.Stream), index)
				}

				require.NoError(t, pipeline.Close(ctx))

				total := 0

				for stream, seqs := range received {
					assert.True(t, slices.IsSorted(seqs), "stream %s received out of order: %v", stream, seqs)
					total += len(seqs)
				}

				assert.Equal(t, 300, total)
			})
		}
	}
}

func TestFilter_WithPartitioner(t *testing.T) {
	ctx := context.Background()

	filter, err := partition.NewFilter(4, partition.WithPartitioner(func(c *consume.Context) string {
		return c.MessageType
	}))
	require.NoError(t, err)

	pipeline := consume.NewPipeline(filter)

	c := (&consume.Context{Stream: "stream", MessageType: "type"}).WithAcknowledger(noopAcker{})
	require.NoError(t, pipeline.Send(ctx, c))
	require.NoError(t, pipeline.Close(ctx))

	key, ok := consume.Item[string](c, partition.KeyItem)
	assert.True(t, ok)
	assert.Equal(t, "type", key)
}
