package checkpoint_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-subscribe/checkpoint"
)

func position(seq uint64) checkpoint.CommitPosition {
	return checkpoint.CommitPosition{SequenceNumber: seq, StorePosition: seq * 10}
}

func TestCommitPositionSequence_FirstBeforeGap(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		n := 1 + rnd.Intn(100)
		omitted := make(map[uint64]bool)

		for i := 0; i < rnd.Intn(5); i++ {
			omitted[uint64(rnd.Intn(n))] = true
		}

		sequence := checkpoint.NewCommitPositionSequence(0)

		for _, i := range rnd.Perm(n) {
			if !omitted[uint64(i)] {
				sequence.Add(position(uint64(i)))
			}
		}

		var expected uint64
		for expected < uint64(n) && !omitted[expected] {
			expected++
		}

		safe, ok := sequence.FirstBeforeGap()
		if expected == 0 {
			assert.False(t, ok, "run %d: zero is missing, nothing is safe", run)
			continue
		}

		require.True(t, ok, "run %d", run)
		assert.Equal(t, expected-1, safe.SequenceNumber, "run %d", run)
		assert.Equal(t, (expected-1)*10, safe.StorePosition, "run %d", run)
	}
}

func TestCommitPositionSequence_Add(t *testing.T) {
	sequence := checkpoint.NewCommitPositionSequence(1)

	assert.True(t, sequence.Add(position(2)))
	assert.False(t, sequence.Add(position(2)), "duplicates are discarded")
	assert.False(t, sequence.Add(position(0)), "positions before the first one are discarded")

	_, ok := sequence.FirstBeforeGap()
	assert.False(t, ok, "the first expected position is missing")

	assert.True(t, sequence.Add(position(1)))
	assert.True(t, sequence.Add(position(4)))

	safe, ok := sequence.FirstBeforeGap()
	require.True(t, ok)
	assert.Equal(t, uint64(2), safe.SequenceNumber)
}

func TestCommitPositionSequence_RemoveUpTo(t *testing.T) {
	sequence := checkpoint.NewCommitPositionSequence(1)

	for _, seq := range []uint64{1, 2, 3, 5, 6} {
		sequence.Add(position(seq))
	}

	sequence.RemoveUpTo(3)
	assert.Equal(t, 2, sequence.Len())
	assert.Equal(t, uint64(4), sequence.Next())

	assert.False(t, sequence.Add(position(2)), "flushed positions are discarded")

	_, ok := sequence.FirstBeforeGap()
	assert.False(t, ok, "sequence number 4 is still missing")

	sequence.Add(position(4))

	safe, ok := sequence.FirstBeforeGap()
	require.True(t, ok)
	assert.Equal(t, uint64(6), safe.SequenceNumber)
}
