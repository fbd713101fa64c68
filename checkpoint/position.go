package checkpoint

import (
	"slices"
	"time"
)

// CommitPosition is the position of an acknowledged Event, as tracked
// by the Committer.
type CommitPosition struct {
	// SequenceNumber is the gapless, per-run sequence number assigned by
	// the Subscription: it is used to detect gaps.
	SequenceNumber uint64
	// StorePosition is the global position of the Event in the log:
	// it is the value that gets persisted.
	StorePosition uint64
	Timestamp     time.Time
}

// CommitPositionSequence is an ordered set of CommitPositions, sorted
// by sequence number.
//
// The sequence knows which sequence number is expected next: positions
// lower than that have already been flushed, and are discarded.
// A CommitPositionSequence is not thread-safe.
type CommitPositionSequence struct {
	next    uint64
	entries []CommitPosition
}

// NewCommitPositionSequence returns an empty sequence expecting
// the specified sequence number as the first one.
func NewCommitPositionSequence(first uint64) *CommitPositionSequence {
	return &CommitPositionSequence{next: first}
}

// Len returns the number of buffered positions.
func (s *CommitPositionSequence) Len() int { return len(s.entries) }

// Next returns the sequence number the sequence is waiting for.
func (s *CommitPositionSequence) Next() uint64 { return s.next }

func (s *CommitPositionSequence) search(seq uint64) (int, bool) {
	return slices.BinarySearchFunc(s.entries, seq, func(p CommitPosition, seq uint64) int {
		switch {
		case p.SequenceNumber < seq:
			return -1
		case p.SequenceNumber > seq:
			return 1
		default:
			return 0
		}
	})
}

// Add inserts the position in the sequence, returning false if the position
// has been discarded, either because already flushed or already present.
func (s *CommitPositionSequence) Add(p CommitPosition) bool {
	if p.SequenceNumber < s.next {
		return false
	}

	i, found := s.search(p.SequenceNumber)
	if found {
		return false
	}

	s.entries = slices.Insert(s.entries, i, p)

	return true
}

// FirstBeforeGap returns the last position of the contiguous run starting
// at the expected sequence number: it is the highest position that is safe
// to checkpoint.
//
// Returns false if the expected sequence number has not been added yet.
func (s *CommitPositionSequence) FirstBeforeGap() (CommitPosition, bool) {
	if len(s.entries) == 0 || s.entries[0].SequenceNumber != s.next {
		return CommitPosition{}, false
	}

	last := 0
	for last+1 < len(s.entries) && s.entries[last+1].SequenceNumber == s.entries[last].SequenceNumber+1 {
		last++
	}

	return s.entries[last], true
}

// RemoveUpTo drops all the positions with a sequence number lower or equal
// than the one specified, which becomes the last flushed one.
func (s *CommitPositionSequence) RemoveUpTo(seq uint64) {
	i, found := s.search(seq)
	if found {
		i++
	}

	s.entries = slices.Delete(s.entries, 0, i)

	if seq+1 > s.next {
		s.next = seq + 1
	}
}
