package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-task-orchestrator/core"
)

func sum(values []int) (int, error) {
	total := 0
	for _, v := range values {
		total += v
	}
	return total, nil
}

type outcomeMetrics struct {
	core.NilMetrics
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *outcomeMetrics) RecordAggregation(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

func TestAggregate_Sum(t *testing.T) {
	a := New[int]()
	for _, v := range []int{1, 2, 3} {
		a.AddResult("job", v)
	}

	got, err := Aggregate(a, "job", sum)
	require.NoError(t, err)
	assert.Equal(t, 6, got)

	// Aggregation does not consume results
	assert.Len(t, a.GetResults("job"), 3)
}

func TestAggregate_Errors(t *testing.T) {
	metrics := &outcomeMetrics{}
	a := New[int](WithMetrics(metrics))
	a.AddResult("job", 1)

	_, err := Aggregate(a, "missing", sum)
	require.ErrorIs(t, err, core.ErrNoResults)

	cause := errors.New("bad input")
	_, err = Aggregate(a, "job", func([]int) (int, error) { return 0, cause })
	var aggErr *core.AggregationError
	require.ErrorAs(t, err, &aggErr)
	assert.Equal(t, "job", aggErr.TaskID)
	assert.ErrorIs(t, err, cause)

	_, err = Aggregate[int, int](a, "job", nil)
	assert.ErrorIs(t, err, core.ErrValidation)

	assert.Equal(t, map[string]int{"empty": 1, "error": 1}, metrics.outcomes)
	assert.EqualValues(t, 1, a.Stats().Failures)
}

func TestAggregate_ReducerPanicIsContained(t *testing.T) {
	a := New[int]()
	a.AddResult("job", 1)

	_, err := Aggregate(a, "job", func(values []int) (int, error) {
		var m map[string]int
		m["boom"] = values[0]
		return 0, nil
	})
	require.ErrorIs(t, err, core.ErrReducerPanicked)
	var aggErr *core.AggregationError
	assert.ErrorAs(t, err, &aggErr)
}

func TestAggregate_ClearedBucket(t *testing.T) {
	a := New[int]()
	a.AddResult("job", 4)
	a.ClearResults("job")

	_, err := Aggregate(a, "job", sum)
	assert.ErrorIs(t, err, core.ErrNoResults)
}

// TestParallelAggregate_IsolatesFailures mirrors a three-job fan-in
// Given: A=[1,2], B=[] (missing) and C=[5] whose reducer fails
// When: ParallelAggregate runs over all three
// Then: Only A is in the result map
func TestParallelAggregate_IsolatesFailures(t *testing.T) {
	a := New[int]()
	a.AddResult("A", 1)
	a.AddResult("A", 2)
	a.AddResult("C", 5)

	reduce := func(values []int) (int, error) {
		if len(values) == 1 && values[0] == 5 {
			return 0, errors.New("C is poisoned")
		}
		return sum(values)
	}

	got := ParallelAggregate(context.Background(), a, []string{"A", "B", "C"}, reduce, 2)
	assert.Equal(t, map[string]int{"A": 3}, got)

	results, failures := ParallelAggregateDetailed(context.Background(), a, []string{"A", "B", "C"}, reduce, 2)
	assert.Equal(t, map[string]int{"A": 3}, results)
	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures["B"], core.ErrNoResults)
	var aggErr *core.AggregationError
	assert.ErrorAs(t, failures["C"], &aggErr)
}

func TestParallelAggregate_PanicDoesNotAffectOthers(t *testing.T) {
	a := New[int]()
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("job-%d", i)
		a.AddResult(ids[i], i)
	}

	got := ParallelAggregate(context.Background(), a, ids, func(values []int) (int, error) {
		if values[0] == 7 {
			panic("seven")
		}
		return values[0] * 10, nil
	}, 3)

	assert.Len(t, got, 9)
	assert.NotContains(t, got, "job-7")
	assert.Equal(t, 90, got["job-9"])
}

func TestParallelAggregate_RespectsMaxWorkers(t *testing.T) {
	a := New[int]()
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("job-%d", i)
		a.AddResult(ids[i], 1)
	}

	var running, peak atomic.Int32
	reduce := func(values []int) (int, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return sum(values)
	}

	got := ParallelAggregate(context.Background(), a, ids, reduce, 3)
	assert.Len(t, got, 20)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestParallelAggregate_DefaultWorkersAndDuplicates(t *testing.T) {
	a := New[int]()
	a.AddResult("job", 2)

	var calls atomic.Int32
	got := ParallelAggregate(context.Background(), a, []string{"job", "job", "job"}, func(values []int) (int, error) {
		calls.Add(1)
		return sum(values)
	}, 0)

	assert.Equal(t, map[string]int{"job": 2}, got)
	assert.EqualValues(t, 1, calls.Load())
}

func TestParallelAggregate_EmptyInput(t *testing.T) {
	a := New[int]()
	got := ParallelAggregate(context.Background(), a, nil, sum, 2)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParallelAggregate_CanceledContext(t *testing.T) {
	a := New[int]()
	a.AddResult("A", 1)
	a.AddResult("B", 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, failures := ParallelAggregateDetailed(ctx, a, []string{"A", "B"}, sum, 2)
	assert.Empty(t, results)
	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures["A"], context.Canceled)
}
