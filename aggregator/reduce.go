package aggregator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-task-orchestrator/core"
)

// Reducer folds the ordered results of one task into a single value.
type Reducer[V, R any] func(values []V) (R, error)

// Aggregate applies reduce to a snapshot of taskID's results.
//
// It returns an error wrapping core.ErrNoResults when the bucket is missing or
// empty, and a *core.AggregationError when reduce returns an error or panics.
// It never panics itself.
func Aggregate[V, R any](a *ResultAggregator[V], taskID string, reduce Reducer[V, R]) (R, error) {
	var zero R
	if reduce == nil {
		return zero, core.NewValidationError("reducer", "must not be nil")
	}

	values := a.GetResults(taskID)
	if len(values) == 0 {
		a.metrics.RecordAggregation("empty")
		a.logger.Warn("no results found", core.F("task_id", taskID))
		return zero, fmt.Errorf("aggregate %q: %w", taskID, core.ErrNoResults)
	}

	out, err := safeReduce(reduce, values)
	if err != nil {
		aggErr := &core.AggregationError{TaskID: taskID, Err: err}
		a.failures.Add(1)
		a.metrics.RecordAggregation("error")
		a.logger.Error("aggregation failed", core.F("task_id", taskID), core.F("error", aggErr))
		return zero, aggErr
	}

	a.aggregations.Add(1)
	a.metrics.RecordAggregation("ok")
	a.logger.Debug("results aggregated", core.F("task_id", taskID), core.F("count", len(values)))
	return out, nil
}

func safeReduce[V, R any](reduce Reducer[V, R], values []V) (out R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", core.ErrReducerPanicked, r)
		}
	}()
	return reduce(values)
}

// ParallelAggregate runs Aggregate for every id in taskIDs with at most
// maxWorkers running at once (DefaultMaxWorkers when maxWorkers <= 0).
// Ids that fail or have no results are absent from the returned map; each
// failure is logged and never affects other ids.
func ParallelAggregate[V, R any](ctx context.Context, a *ResultAggregator[V], taskIDs []string, reduce Reducer[V, R], maxWorkers int) map[string]R {
	results, _ := ParallelAggregateDetailed(ctx, a, taskIDs, reduce, maxWorkers)
	return results
}

// ParallelAggregateDetailed is ParallelAggregate that also returns the error
// of every id missing from the result map. Duplicate ids are aggregated once.
// Once ctx is done no further aggregation starts; ids not started get ctx.Err().
func ParallelAggregateDetailed[V, R any](ctx context.Context, a *ResultAggregator[V], taskIDs []string, reduce Reducer[V, R], maxWorkers int) (map[string]R, map[string]error) {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}

	var (
		mu       sync.Mutex
		results  = make(map[string]R, len(taskIDs))
		failures = make(map[string]error)
		seen     = make(map[string]struct{}, len(taskIDs))
	)

	g := &errgroup.Group{}
	g.SetLimit(maxWorkers)

	for _, id := range taskIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if err := ctx.Err(); err != nil {
			mu.Lock()
			failures[id] = err
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				failures[id] = err
				mu.Unlock()
				return nil
			}

			out, err := Aggregate(a, id, reduce)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[id] = err
				return nil
			}
			results[id] = out
			return nil
		})
	}
	// Workers never return errors: failures are isolated per id.
	_ = g.Wait()

	if len(failures) > 0 {
		a.logger.Warn("parallel aggregation finished with failures",
			core.F("requested", len(seen)),
			core.F("succeeded", len(results)),
			core.F("failed", len(failures)),
		)
	}
	return results, failures
}
