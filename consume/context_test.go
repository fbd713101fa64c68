package consume_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-subscribe/consume"
)

type recordingAcker struct {
	mx    sync.Mutex
	acked []uint64
	nacks []error
}

func (a *recordingAcker) Ack(_ context.Context, c *consume.Context) error {
	a.mx.Lock()
	defer a.mx.Unlock()

	a.acked = append(a.acked, c.SequenceNumber)

	return nil
}

func (a *recordingAcker) Nack(_ context.Context, _ *consume.Context, err error) error {
	a.mx.Lock()
	defer a.mx.Unlock()

	a.nacks = append(a.nacks, err)

	return nil
}

func (a *recordingAcker) Acked() []uint64 {
	a.mx.Lock()
	defer a.mx.Unlock()

	return append([]uint64(nil), a.acked...)
}

func (a *recordingAcker) Nacked() []error {
	a.mx.Lock()
	defer a.mx.Unlock()

	return append([]error(nil), a.nacks...)
}

func TestContext_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeded contexts are acked exactly once", func(t *testing.T) {
		acker := new(recordingAcker)
		c := (&consume.Context{SequenceNumber: 1}).WithAcknowledger(acker)
		c.Results.Record(consume.Success("handler"))

		require.NoError(t, c.Complete(ctx))
		require.NoError(t, c.Complete(ctx))

		assert.Equal(t, []uint64{1}, acker.Acked())
		assert.True(t, c.Completed())
	})

	t.Run("ignored contexts are acked", func(t *testing.T) {
		acker := new(recordingAcker)
		c := (&consume.Context{SequenceNumber: 2}).WithAcknowledger(acker)
		c.Results.Record(consume.Ignore("handler"))

		require.NoError(t, c.Complete(ctx))
		assert.Equal(t, []uint64{2}, acker.Acked())
	})

	t.Run("failed contexts are nacked with the handler error", func(t *testing.T) {
		errBoom := errors.New("boom")
		acker := new(recordingAcker)
		c := (&consume.Context{SequenceNumber: 3}).WithAcknowledger(acker)
		c.Results.Record(consume.Failure("handler", errBoom))

		require.NoError(t, c.Complete(ctx))
		assert.Empty(t, acker.Acked())
		require.Len(t, acker.Nacked(), 1)
		assert.ErrorIs(t, acker.Nacked()[0], errBoom)
	})

	t.Run("pending contexts are completed later by the deferring handler", func(t *testing.T) {
		acker := new(recordingAcker)
		c := (&consume.Context{SequenceNumber: 4}).WithAcknowledger(acker)
		c.Results.Record(consume.Defer("handler"))

		require.NoError(t, c.Complete(ctx))
		assert.Empty(t, acker.Acked())
		assert.False(t, c.Completed())

		c.Results.Record(consume.Success("handler"))
		require.NoError(t, c.Complete(ctx))
		assert.Equal(t, []uint64{4}, acker.Acked())
	})
}

func TestItems(t *testing.T) {
	c := new(consume.Context)

	_, ok := consume.Item[string](c, "missing")
	assert.False(t, ok)

	c.Items.Set("key", "value")

	v, ok := consume.Item[string](c, "key")
	assert.True(t, ok)
	assert.Equal(t, "value", v)

	_, ok = consume.Item[int](c, "key")
	assert.False(t, ok, "wrong type should not be returned")

	c.Items.Delete("key")
	_, ok = c.Items.Get("key")
	assert.False(t, ok)
}
