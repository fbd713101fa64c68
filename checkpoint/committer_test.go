package checkpoint_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-subscribe/checkpoint"
	"github.com/get-eventually/go-subscribe/logger"
)

var errStoreUnavailable = errors.New("store unavailable")

type recordingStore struct {
	checkpoint.Store

	mx       sync.Mutex
	writes   []uint64
	forced   []bool
	failures int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Store: checkpoint.NewInMemoryStore()}
}

func (s *recordingStore) StoreCheckpoint(ctx context.Context, cp checkpoint.Checkpoint, force bool) (checkpoint.Checkpoint, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.failures > 0 {
		s.failures--
		return checkpoint.Checkpoint{}, errStoreUnavailable
	}

	s.writes = append(s.writes, *cp.Position)
	s.forced = append(s.forced, force)

	return s.Store.StoreCheckpoint(ctx, cp, force)
}

func (s *recordingStore) Writes() []uint64 {
	s.mx.Lock()
	defer s.mx.Unlock()

	return append([]uint64(nil), s.writes...)
}

func (s *recordingStore) FailNext(n int) {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.failures = n
}

type recordingObserver struct {
	mx     sync.Mutex
	stored []checkpoint.Checkpoint
	errs   []error
}

func (o *recordingObserver) CheckpointStored(_ context.Context, cp checkpoint.Checkpoint, _ time.Duration, err error) {
	o.mx.Lock()
	defer o.mx.Unlock()

	o.stored = append(o.stored, cp)
	o.errs = append(o.errs, err)
}

// hangingStore blocks its first write until the context is done.
type hangingStore struct {
	checkpoint.Store

	once    sync.Once
	entered chan struct{}
	aborted chan error
}

func newHangingStore() *hangingStore {
	return &hangingStore{
		Store:   checkpoint.NewInMemoryStore(),
		entered: make(chan struct{}),
		aborted: make(chan error, 1),
	}
}

func (s *hangingStore) StoreCheckpoint(ctx context.Context, cp checkpoint.Checkpoint, force bool) (checkpoint.Checkpoint, error) {
	hang := false
	s.once.Do(func() { hang = true })

	if hang {
		close(s.entered)
		<-ctx.Done()
		s.aborted <- ctx.Err()

		return checkpoint.Checkpoint{}, ctx.Err()
	}

	return s.Store.StoreCheckpoint(ctx, cp, force)
}

const subscriptionID = "test-subscription"

func commit(t *testing.T, c *checkpoint.Committer, seqs ...uint64) {
	t.Helper()

	for _, seq := range seqs {
		require.NoError(t, c.Commit(context.Background(), position(seq)))
	}
}

func TestNewCommitter(t *testing.T) {
	start := checkpoint.Empty(subscriptionID)

	_, err := checkpoint.NewCommitter(checkpoint.NopStore{}, start, checkpoint.WithCommitInterval(0))
	assert.ErrorIs(t, err, checkpoint.ErrInvalidConfiguration)

	_, err = checkpoint.NewCommitter(checkpoint.NopStore{}, start, checkpoint.WithBatchSize(-1))
	assert.ErrorIs(t, err, checkpoint.ErrInvalidConfiguration)

	_, err = checkpoint.NewCommitter(nil, start)
	assert.ErrorIs(t, err, checkpoint.ErrInvalidConfiguration)
}

func TestCommitter(t *testing.T) {
	ctx := context.Background()
	start := checkpoint.Empty(subscriptionID)

	t.Run("reaching the batch size flushes the safe position", func(t *testing.T) {
		store := newRecordingStore()
		c, err := checkpoint.NewCommitter(store, start,
			checkpoint.WithCommitInterval(time.Hour),
			checkpoint.WithBatchSize(3),
		)
		require.NoError(t, err)

		commit(t, c, 2, 1)
		assert.Empty(t, store.Writes())

		commit(t, c, 3)
		assert.Equal(t, []uint64{30}, store.Writes())
		assert.Equal(t, checkpoint.At(subscriptionID, 30), c.LastStored())

		require.NoError(t, c.Close(ctx))
		assert.Equal(t, []uint64{30}, store.Writes(), "nothing left to flush")
	})

	t.Run("positions after a gap are kept until the gap is filled", func(t *testing.T) {
		store := newRecordingStore()
		c, err := checkpoint.NewCommitter(store, start,
			checkpoint.WithCommitInterval(time.Hour),
			checkpoint.WithBatchSize(3),
		)
		require.NoError(t, err)

		commit(t, c, 1, 2, 4)
		assert.Equal(t, []uint64{20}, store.Writes())

		commit(t, c, 5)
		assert.Equal(t, []uint64{20}, store.Writes())

		commit(t, c, 3)
		assert.Equal(t, []uint64{20, 50}, store.Writes())

		require.NoError(t, c.Close(ctx))
	})

	t.Run("committing the same position twice is idempotent", func(t *testing.T) {
		store := newRecordingStore()
		c, err := checkpoint.NewCommitter(store, start,
			checkpoint.WithCommitInterval(time.Hour),
			checkpoint.WithBatchSize(2),
		)
		require.NoError(t, err)

		commit(t, c, 1, 1, 2, 2, 1)
		require.NoError(t, c.Flush(ctx, false))
		require.NoError(t, c.Close(ctx))

		assert.Equal(t, []uint64{20}, store.Writes())
	})

	t.Run("persisted positions never move backwards", func(t *testing.T) {
		store := newRecordingStore()
		_, err := store.StoreCheckpoint(ctx, checkpoint.At(subscriptionID, 35), false)
		require.NoError(t, err)

		c, err := checkpoint.NewCommitter(store, checkpoint.At(subscriptionID, 35),
			checkpoint.WithCommitInterval(time.Hour),
			checkpoint.WithBatchSize(1),
		)
		require.NoError(t, err)

		commit(t, c, 1, 2, 3, 4, 5)
		require.NoError(t, c.Close(ctx))

		assert.Equal(t, []uint64{35, 40, 50}, store.Writes())
	})

	t.Run("store failures are retried on the next flush", func(t *testing.T) {
		store := newRecordingStore()
		store.FailNext(2)

		observer := new(recordingObserver)
		l := logger.NewTest(t)

		c, err := checkpoint.NewCommitter(store, start,
			checkpoint.WithCommitInterval(time.Hour),
			checkpoint.WithBatchSize(1),
			checkpoint.WithObserver(observer),
			checkpoint.WithLogger(l),
		)
		require.NoError(t, err)

		commit(t, c, 1, 2)
		assert.Empty(t, store.Writes())
		assert.Equal(t, 2, l.Count("error"))

		commit(t, c, 3)
		assert.Equal(t, []uint64{30}, store.Writes())

		require.NoError(t, c.Close(ctx))

		require.Len(t, observer.errs, 3)
		assert.ErrorIs(t, observer.errs[0], errStoreUnavailable)
		assert.ErrorIs(t, observer.errs[1], errStoreUnavailable)
		assert.NoError(t, observer.errs[2])
	})

	t.Run("the periodic flush persists the safe position", func(t *testing.T) {
		store := newRecordingStore()
		c, err := checkpoint.NewCommitter(store, start,
			checkpoint.WithCommitInterval(10*time.Millisecond),
			checkpoint.WithBatchSize(100),
		)
		require.NoError(t, err)

		commit(t, c, 1, 2)

		assert.Eventually(t, func() bool {
			cp := c.LastStored()
			return cp.Position != nil && *cp.Position == 20
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, c.Close(ctx))
	})

	t.Run("close flushes even with a canceled context", func(t *testing.T) {
		store := newRecordingStore()
		c, err := checkpoint.NewCommitter(store, start,
			checkpoint.WithCommitInterval(time.Hour),
			checkpoint.WithBatchSize(100),
		)
		require.NoError(t, err)

		commit(t, c, 1, 2, 3)

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		require.NoError(t, c.Close(canceled))
		assert.Equal(t, []uint64{30}, store.Writes())
		assert.Equal(t, []bool{true}, store.forced)
	})

	t.Run("a periodic write is bounded by the commit interval", func(t *testing.T) {
		store := newHangingStore()
		c, err := checkpoint.NewCommitter(store, start,
			checkpoint.WithCommitInterval(20*time.Millisecond),
			checkpoint.WithBatchSize(100),
		)
		require.NoError(t, err)

		commit(t, c, 1)
		<-store.entered

		select {
		case err := <-store.aborted:
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		case <-time.After(time.Second):
			require.FailNow(t, "the periodic write was never interrupted")
		}

		require.NoError(t, c.Close(ctx))
		assert.Equal(t, checkpoint.At(subscriptionID, 10), c.LastStored())
	})

	t.Run("close does not hang on a periodic write in progress", func(t *testing.T) {
		store := newHangingStore()
		c, err := checkpoint.NewCommitter(store, start,
			checkpoint.WithCommitInterval(200*time.Millisecond),
			checkpoint.WithBatchSize(100),
		)
		require.NoError(t, err)

		commit(t, c, 1, 2)
		<-store.entered

		closed := make(chan error, 1)
		go func() { closed <- c.Close(ctx) }()

		select {
		case err := <-closed:
			require.NoError(t, err)
		case <-time.After(time.Second):
			require.FailNow(t, "close is blocked by the store")
		}

		assert.ErrorIs(t, <-store.aborted, context.Canceled)
		assert.Equal(t, checkpoint.At(subscriptionID, 20), c.LastStored())
	})
}

func TestCommitter_ConcurrentCommits(t *testing.T) {
	const (
		total   = 1000
		writers = 8
		missing = 701
	)

	ctx := context.Background()
	store := newRecordingStore()

	c, err := checkpoint.NewCommitter(store, checkpoint.Empty(subscriptionID),
		checkpoint.WithCommitInterval(time.Millisecond),
		checkpoint.WithBatchSize(5),
	)
	require.NoError(t, err)

	seqs := make(chan uint64, total)
	for _, i := range rand.Perm(total) {
		if seq := uint64(i + 1); seq != missing {
			seqs <- seq
		}
	}
	close(seqs)

	var wg sync.WaitGroup

	for range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for seq := range seqs {
				assert.NoError(t, c.Commit(ctx, position(seq)))
			}
		}()
	}

	wg.Wait()
	require.NoError(t, c.Close(ctx))

	assert.Equal(t, checkpoint.At(subscriptionID, position(missing-1).StorePosition), c.LastStored())

	writes := store.Writes()
	require.NotEmpty(t, writes)
	assert.IsNonDecreasing(t, writes, "persisted positions never move backwards")
	assert.LessOrEqual(t, writes[len(writes)-1], position(missing-1).StorePosition)
}

func TestCommitter_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()

	c, err := checkpoint.NewCommitter(store, checkpoint.Empty(subscriptionID),
		checkpoint.WithCommitInterval(1000*time.Millisecond),
		checkpoint.WithBatchSize(10),
	)
	require.NoError(t, err)

	for seq := uint64(1); seq < 1000; seq++ {
		if seq%10 == 0 {
			continue
		}

		commit(t, c, seq)
	}

	require.NoError(t, c.Close(ctx))

	assert.Equal(t, checkpoint.At(subscriptionID, position(9).StorePosition), c.LastStored())

	stored, err := store.GetLastCheckpoint(ctx, subscriptionID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.At(subscriptionID, 90), stored)
}
