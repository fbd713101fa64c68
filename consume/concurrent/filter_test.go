package concurrent_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-subscribe/consume"
	"github.com/get-eventually/go-subscribe/consume/concurrent"
	"github.com/get-eventually/go-subscribe/logger"
)

type acker struct {
	mx     sync.Mutex
	acked  map[uint64]struct{}
	nacked map[uint64]error
}

func newAcker() *acker {
	return &acker{acked: make(map[uint64]struct{}), nacked: make(map[uint64]error)}
}

func (a *acker) Ack(_ context.Context, c *consume.Context) error {
	a.mx.Lock()
	defer a.mx.Unlock()

	a.acked[c.SequenceNumber] = struct{}{}

	return nil
}

func (a *acker) Nack(_ context.Context, c *consume.Context, err error) error {
	a.mx.Lock()
	defer a.mx.Unlock()

	a.nacked[c.SequenceNumber] = err

	return nil
}

func TestNewFilter(t *testing.T) {
	_, err := concurrent.NewFilter(0, 1)
	assert.ErrorIs(t, err, concurrent.ErrInvalidConfiguration)

	_, err = concurrent.NewFilter(1, -1)
	assert.ErrorIs(t, err, concurrent.ErrInvalidConfiguration)
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	filter, err := concurrent.NewFilter(4, 10, concurrent.WithLogger(logger.NewTest(t)))
	require.NoError(t, err)

	var inFlight, maxInFlight atomic.Int64

	pipeline := consume.NewPipeline(
		filter,
		consume.FilterFunc(func(ctx context.Context, c *consume.Context, next consume.Next) error {
			if c.SequenceNumber%10 == 0 {
				return errBoom
			}

			return next(ctx, c)
		}),
		consume.NewHandlersFilter([]consume.Handler{
			consume.NewHandlerFunc("tracker", func(context.Context, *consume.Context) (consume.Status, error) {
				current := inFlight.Add(1)
				defer inFlight.Add(-1)

				for {
					old := maxInFlight.Load()
					if current <= old || maxInFlight.CompareAndSwap(old, current) {
						break
					}
				}

				return consume.Succeeded, nil
			}),
		}),
	)

	a := newAcker()

	for seq := uint64(1); seq <= 50; seq++ {
		c := (&consume.Context{SequenceNumber: seq}).WithAcknowledger(a)
		require.NoError(t, pipeline.Send(ctx, c))
		assert.True(t, c.AckDelayed())
	}

	require.NoError(t, pipeline.Close(ctx))

	assert.Len(t, a.acked, 45)
	assert.Len(t, a.nacked, 5)

	for seq, err := range a.nacked {
		assert.Zero(t, seq%10)
		assert.ErrorIs(t, err, errBoom)
	}

	assert.LessOrEqual(t, maxInFlight.Load(), int64(4))

	t.Run("the filter can be used again after being closed", func(t *testing.T) {
		c := (&consume.Context{SequenceNumber: 51}).WithAcknowledger(a)
		require.NoError(t, pipeline.Send(ctx, c))
		require.NoError(t, pipeline.Close(ctx))

		assert.Contains(t, a.acked, uint64(51))
	})
}
