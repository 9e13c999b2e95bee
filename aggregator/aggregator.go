// Package aggregator collects results contributed for a task id and reduces them.
package aggregator

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Swind/go-task-orchestrator/core"
)

// DefaultMaxWorkers bounds ParallelAggregate when no limit is given.
const DefaultMaxWorkers = 5

type bucket[V any] struct {
	mu     sync.Mutex
	values []V
}

func (b *bucket[V]) append(v V) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = append(b.values, v)
	return len(b.values)
}

func (b *bucket[V]) snapshot() []V {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]V, len(b.values))
	copy(out, b.values)
	return out
}

func (b *bucket[V]) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.values)
}

// ResultAggregator maps task ids to append-only result buckets.
// The map and every bucket have their own locks; no lock is held while a
// reducer runs.
type ResultAggregator[V any] struct {
	mu      sync.RWMutex
	buckets map[string]*bucket[V]

	aggregations atomic.Uint64
	failures     atomic.Uint64

	logger  core.Logger
	metrics core.Metrics
}

// Option configures a ResultAggregator.
type Option func(*options)

type options struct {
	logger  core.Logger
	metrics core.Metrics
}

// WithLogger sets the logger. Defaults to core.NoOpLogger.
func WithLogger(l core.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to core.NilMetrics.
func WithMetrics(m core.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates an empty ResultAggregator.
func New[V any](opts ...Option) *ResultAggregator[V] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = core.NewNoOpLogger()
	}
	if o.metrics == nil {
		o.metrics = &core.NilMetrics{}
	}
	return &ResultAggregator[V]{
		buckets: make(map[string]*bucket[V]),
		logger:  o.logger,
		metrics: o.metrics,
	}
}

// AddResult appends value to the bucket of taskID, creating it if needed.
func (a *ResultAggregator[V]) AddResult(taskID string, value V) {
	b := a.bucketFor(taskID)
	n := b.append(value)
	a.logger.Debug("result added", core.F("task_id", taskID), core.F("count", n))
}

func (a *ResultAggregator[V]) bucketFor(taskID string) *bucket[V] {
	a.mu.RLock()
	b, ok := a.buckets[taskID]
	a.mu.RUnlock()
	if ok {
		return b
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok = a.buckets[taskID]; ok {
		return b
	}
	b = &bucket[V]{}
	a.buckets[taskID] = b
	return b
}

func (a *ResultAggregator[V]) lookup(taskID string) (*bucket[V], bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.buckets[taskID]
	return b, ok
}

// GetResults returns a copy of the results of taskID, empty if unknown.
func (a *ResultAggregator[V]) GetResults(taskID string) []V {
	b, ok := a.lookup(taskID)
	if !ok {
		return []V{}
	}
	return b.snapshot()
}

// ClearResults removes the bucket of taskID and reports whether it existed.
func (a *ResultAggregator[V]) ClearResults(taskID string) bool {
	a.mu.Lock()
	_, ok := a.buckets[taskID]
	delete(a.buckets, taskID)
	a.mu.Unlock()

	if ok {
		a.logger.Info("results cleared", core.F("task_id", taskID))
	}
	return ok
}

// TaskIDs returns the ids of all existing buckets in sorted order.
func (a *ResultAggregator[V]) TaskIDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.buckets))
	for id := range a.buckets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Stats returns current observability data for this aggregator.
func (a *ResultAggregator[V]) Stats() core.AggregatorStats {
	a.mu.RLock()
	buckets := make([]*bucket[V], 0, len(a.buckets))
	for _, b := range a.buckets {
		buckets = append(buckets, b)
	}
	a.mu.RUnlock()

	stats := core.AggregatorStats{
		Buckets:      len(buckets),
		Aggregations: a.aggregations.Load(),
		Failures:     a.failures.Load(),
	}
	for _, b := range buckets {
		stats.Results += b.len()
	}
	return stats
}
