package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// BatchSuite tests the concurrent batch combinator.
type BatchSuite struct {
	suite.Suite
}

func TestBatchSuite(t *testing.T) {
	suite.Run(t, new(BatchSuite))
}

func items(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *BatchSuite) TestBatch_GoodScenarios_ResultsInInputOrder() {
	results, err := forEachBatch(context.Background(), items(10), batchOptions[string]{Size: 3},
		func(ctx context.Context, item int) (string, error) {
			return strconv.Itoa(item), nil
		})

	s.Require().NoError(err)
	s.Require().Len(results, 10)
	for i, r := range results {
		s.Equal(strconv.Itoa(i), r)
	}
}

func (s *BatchSuite) TestBatch_GoodScenarios_ConcurrencyBoundedByBatchSize() {
	var (
		mu      sync.Mutex
		active  int
		highest int
	)

	_, err := forEachBatch(context.Background(), items(12), batchOptions[int]{Size: 4},
		func(ctx context.Context, item int) (int, error) {
			mu.Lock()
			active++
			if active > highest {
				highest = active
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return item, nil
		})

	s.Require().NoError(err)
	s.LessOrEqual(highest, 4)
}

func (s *BatchSuite) TestBatch_GoodScenarios_DelayBetweenBatchesOnly() {
	var slept []time.Duration

	_, err := forEachBatch(context.Background(), items(7), batchOptions[int]{
		Size:  3,
		Delay: time.Second,
		sleep: func(d time.Duration) { slept = append(slept, d) },
	}, func(ctx context.Context, item int) (int, error) {
		return item, nil
	})

	s.Require().NoError(err)
	s.Equal([]time.Duration{time.Second, time.Second}, slept, "three batches, two gaps, none after the last")
}

func (s *BatchSuite) TestBatch_GoodScenarios_SkipDelayConsultsFinishedBatch() {
	var slept int

	_, err := forEachBatch(context.Background(), items(9), batchOptions[int]{
		Size:  3,
		Delay: time.Second,
		sleep: func(time.Duration) { slept++ },
		SkipDelay: func(batch []int) bool {
			// Skip after the batch containing item 0, sleep otherwise.
			for _, r := range batch {
				if r == 0 {
					return true
				}
			}
			return false
		},
	}, func(ctx context.Context, item int) (int, error) {
		return item, nil
	})

	s.Require().NoError(err)
	s.Equal(1, slept)
}

func (s *BatchSuite) TestBatch_GoodScenarios_ZeroSizeRunsOneBatch() {
	var slept int

	results, err := forEachBatch(context.Background(), items(5), batchOptions[int]{
		Delay: time.Second,
		sleep: func(time.Duration) { slept++ },
	}, func(ctx context.Context, item int) (int, error) {
		return item * 2, nil
	})

	s.Require().NoError(err)
	s.Equal([]int{0, 2, 4, 6, 8}, results)
	s.Zero(slept)
}

// =============================================================================
// BAD SCENARIOS - Edge cases and error conditions
// =============================================================================

func (s *BatchSuite) TestBatch_BadScenarios_FirstErrorAborts() {
	var calls int32
	var mu sync.Mutex
	boom := errors.New("boom")

	results, err := forEachBatch(context.Background(), items(10), batchOptions[int]{Size: 2},
		func(ctx context.Context, item int) (int, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			if item == 3 {
				return 0, boom
			}
			return item, nil
		})

	s.ErrorIs(err, boom)
	s.Nil(results)
	mu.Lock()
	defer mu.Unlock()
	s.LessOrEqual(int(calls), 4, "later batches never start")
}

func (s *BatchSuite) TestBatch_BadScenarios_CanceledContextStopsNextBatch() {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32

	_, err := forEachBatch(ctx, items(6), batchOptions[int]{Size: 3},
		func(ctx context.Context, item int) (int, error) {
			atomic.AddInt32(&calls, 1)
			if item == 2 {
				cancel()
			}
			return item, nil
		})

	s.ErrorIs(err, context.Canceled)
	s.EqualValues(3, atomic.LoadInt32(&calls), "the second batch never starts")
}

func (s *BatchSuite) TestBatch_BadScenarios_EmptyInput() {
	results, err := forEachBatch(context.Background(), nil, batchOptions[int]{Size: 3},
		func(ctx context.Context, item int) (int, error) {
			s.Fail("fn must not run for empty input")
			return 0, nil
		})

	s.NoError(err)
	s.Nil(results)
}
