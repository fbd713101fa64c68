package consume_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/get-eventually/go-subscribe/consume"
)

func TestHandlingResults_Decision(t *testing.T) {
	errBoom := errors.New("boom")

	testCases := []struct {
		name     string
		results  []consume.Result
		expected consume.Decision
	}{
		{
			name:     "no results is pending",
			expected: consume.DecisionPending,
		},
		{
			name:     "only deferred results is pending",
			results:  []consume.Result{consume.Defer("a"), consume.Defer("b")},
			expected: consume.DecisionPending,
		},
		{
			name:     "succeeded and ignored is a success",
			results:  []consume.Result{consume.Success("a"), consume.Ignore("b")},
			expected: consume.DecisionSucceeded,
		},
		{
			name:     "failed and ignored is a failure",
			results:  []consume.Result{consume.Failure("a", errBoom), consume.Ignore("b")},
			expected: consume.DecisionFailed,
		},
		{
			name:     "only ignored is ignored",
			results:  []consume.Result{consume.Ignore("a"), consume.Ignore("b")},
			expected: consume.DecisionIgnored,
		},
		{
			name:     "failed dominates succeeded",
			results:  []consume.Result{consume.Failure("a", errBoom), consume.Success("b")},
			expected: consume.DecisionFailed,
		},
		{
			name:     "failed dominates regardless of its position",
			results:  []consume.Result{consume.Success("a"), consume.Ignore("b"), consume.Failure("c", errBoom)},
			expected: consume.DecisionFailed,
		},
		{
			name:     "deferred and succeeded is a success",
			results:  []consume.Result{consume.Defer("a"), consume.Success("b")},
			expected: consume.DecisionSucceeded,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var results consume.HandlingResults
			for _, r := range tc.results {
				results.Record(r)
			}

			assert.Equal(t, tc.expected, results.Decision())

			// The predicates are mutually exclusive.
			predicates := 0
			for _, p := range []bool{results.IsPending(), results.IsIgnored(), results.HasFailed()} {
				if p {
					predicates++
				}
			}

			assert.LessOrEqual(t, predicates, 1)
			assert.Equal(t, tc.expected == consume.DecisionFailed, results.HasFailed())
			assert.Equal(t, tc.expected == consume.DecisionIgnored, results.IsIgnored())
			assert.Equal(t, tc.expected == consume.DecisionPending, results.IsPending())
		})
	}
}

func TestHandlingResults_Err(t *testing.T) {
	errBoom := errors.New("boom")

	var results consume.HandlingResults
	assert.NoError(t, results.Err())

	results.Record(consume.Success("a"))
	results.Record(consume.Failure("b", errBoom))
	results.Record(consume.Failure("c", nil))

	err := results.Err()
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, err, consume.ErrHandlerFailed)
	assert.Len(t, results.All(), 3)
}
