package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	TaskID        TaskID
	Name          string
	SchedulerName string
	Priority      TaskPriority
	Sequence      uint64
	WorkerID      int
	QueuedFor     time.Duration
	StartedAt     time.Time
	FinishedAt    time.Time
	Duration      time.Duration
	Err           error
	Panicked      bool
}

// PoolStats represents runtime observability state for a scheduler and its worker pool.
type PoolStats struct {
	ID       string
	Workers  int
	Queued   int
	Active   int
	Executed uint64
	Failed   uint64
	Rejected uint64
	Running  bool
}

// ServiceTypeStats describes one service type of a load balancer.
type ServiceTypeStats struct {
	Instances   int
	TotalWeight float64
}

// BalancerStats represents a snapshot of a load balancer registry.
type BalancerStats struct {
	Types      int
	Instances  int
	Selections uint64
	Misses     uint64
	PerType    map[string]ServiceTypeStats
}

// AggregatorStats represents a snapshot of a result aggregator.
type AggregatorStats struct {
	Buckets      int
	Results      int
	Aggregations uint64
	Failures     uint64
}
