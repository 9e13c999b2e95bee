package core

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// TaskScheduler is the work source shared by the workers of a pool.
// It owns the priority queue, the idle-worker wakeup signal, counters and the
// failure/rejection handlers. Workers call GetWork and then Execute.
type TaskScheduler struct {
	name         string
	queue        TaskQueue
	signal       chan struct{}
	workerCount  int
	pollInterval time.Duration

	metricActive   atomic.Int32 // Executing in Worker
	metricExecuted atomic.Uint64
	metricFailed   atomic.Uint64
	metricRejected atomic.Uint64

	// Handlers and Metrics
	logger              Logger
	errorHandler        TaskErrorHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler

	history *executionHistory

	// Lifecycle
	closed atomic.Bool
}

func NewTaskScheduler(workerCount int) *TaskScheduler {
	return NewTaskSchedulerWithConfig(workerCount, DefaultTaskSchedulerConfig())
}

func NewTaskSchedulerWithConfig(workerCount int, config *TaskSchedulerConfig) *TaskScheduler {
	if workerCount < 1 {
		workerCount = 1
	}
	cfg := config.withDefaults()

	return &TaskScheduler{
		name:                cfg.Name,
		queue:               NewPriorityTaskQueue(),
		signal:              make(chan struct{}, workerCount*2),
		workerCount:         workerCount,
		pollInterval:        cfg.PollInterval,
		logger:              cfg.Logger,
		errorHandler:        cfg.TaskErrorHandler,
		metrics:             cfg.Metrics,
		rejectedTaskHandler: cfg.RejectedTaskHandler,
		history:             newExecutionHistory(cfg.HistorySize),
	}
}

// Submit enqueues task. It never blocks on capacity.
func (s *TaskScheduler) Submit(task Task, traits TaskTraits) (TaskItem, error) {
	if task == nil {
		return TaskItem{}, NewValidationError("task", "must not be nil")
	}
	if s.closed.Load() {
		s.metricRejected.Add(1)
		s.rejectedTaskHandler.HandleRejectedTask(s.name, traits, "stopped")
		s.metrics.RecordTaskRejected(s.name, "stopped")
		return TaskItem{}, ErrSchedulerStopped
	}

	item := s.queue.Push(task, traits)
	s.metrics.RecordQueueDepth(s.name, s.queue.Len())
	s.logger.Debug("task submitted",
		F("scheduler", s.name),
		F("task_id", item.ID.String()),
		F("task", traits.Name),
		F("priority", int(traits.Priority)),
		F("sequence", item.Sequence),
	)

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full, but task is already queued.
		// Idle workers also re-check on every poll interval.
	}
	return item, nil
}

// GetWork (Called by Worker)
// It blocks until a task is available or stopCh is closed. Idle waits are
// bounded by the poll interval so a dropped wakeup never strands a task.
func (s *TaskScheduler) GetWork(stopCh <-chan struct{}) (TaskItem, bool) {
	for {
		select {
		case <-stopCh:
			return TaskItem{}, false
		default:
		}

		if item, ok := s.queue.Pop(); ok {
			s.metrics.RecordQueueDepth(s.name, s.queue.Len())
			return item, true
		}

		timer := time.NewTimer(s.pollInterval)
		select {
		case <-s.signal:
		case <-timer.C:
		case <-stopCh:
			timer.Stop()
			return TaskItem{}, false
		}
		timer.Stop()
	}
}

// Execute runs item to completion on the calling goroutine. Errors and panics
// are recovered, reported and recorded; nothing is propagated or retried.
func (s *TaskScheduler) Execute(ctx context.Context, workerID int, item TaskItem) {
	s.metricActive.Add(1)
	defer s.metricActive.Add(-1)

	name := ResolveTaskName(item.Task, item.Traits.Name)
	startedAt := time.Now()

	var execErr *TaskExecutionError
	func() {
		defer func() {
			if r := recover(); r != nil {
				execErr = &TaskExecutionError{
					TaskID:   item.ID,
					Name:     name,
					Priority: item.Traits.Priority,
					Panic:    r,
					Stack:    debug.Stack(),
				}
			}
		}()
		if err := item.Task(ctx); err != nil {
			execErr = &TaskExecutionError{
				TaskID:   item.ID,
				Name:     name,
				Priority: item.Traits.Priority,
				Err:      err,
			}
		}
	}()

	finishedAt := time.Now()
	duration := finishedAt.Sub(startedAt)
	s.metricExecuted.Add(1)
	s.metrics.RecordTaskDuration(s.name, item.Traits.Priority, duration)

	record := TaskExecutionRecord{
		TaskID:        item.ID,
		Name:          name,
		SchedulerName: s.name,
		Priority:      item.Traits.Priority,
		Sequence:      item.Sequence,
		WorkerID:      workerID,
		QueuedFor:     startedAt.Sub(item.EnqueuedAt),
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		Duration:      duration,
	}

	if execErr != nil {
		s.metricFailed.Add(1)
		kind := "error"
		if execErr.Panic != nil {
			kind = "panic"
			record.Panicked = true
		}
		record.Err = execErr
		s.metrics.RecordTaskFailure(s.name, kind)
		s.errorHandler.HandleTaskError(ctx, s.name, workerID, execErr)
	} else {
		s.logger.Debug("task finished",
			F("scheduler", s.name),
			F("worker", workerID),
			F("task_id", item.ID.String()),
			F("task", name),
			F("duration", duration),
		)
	}
	s.history.Add(record)
}

// Close stops accepting submissions. Queued tasks are left in place.
func (s *TaskScheduler) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.logger.Info("scheduler closed",
			F("scheduler", s.name),
			F("queued", s.queue.Len()),
		)
	}
}

func (s *TaskScheduler) IsClosed() bool { return s.closed.Load() }

// Clear atomically drops all queued tasks and returns how many were removed.
func (s *TaskScheduler) Clear() int {
	n := s.queue.Clear()
	s.metrics.RecordQueueDepth(s.name, s.queue.Len())
	s.logger.Info("task queue cleared", F("scheduler", s.name), F("removed", n))
	return n
}

// Drain atomically removes and returns all queued tasks in dequeue order.
func (s *TaskScheduler) Drain() []TaskItem {
	items := s.queue.Drain()
	s.metrics.RecordQueueDepth(s.name, s.queue.Len())
	s.logger.Info("task queue drained", F("scheduler", s.name), F("removed", len(items)))
	return items
}

// Metrics
func (s *TaskScheduler) Name() string              { return s.name }
func (s *TaskScheduler) WorkerCount() int          { return s.workerCount }
func (s *TaskScheduler) QueuedTaskCount() int      { return s.queue.Len() }
func (s *TaskScheduler) ActiveTaskCount() int      { return int(s.metricActive.Load()) }
func (s *TaskScheduler) ExecutedTaskCount() uint64 { return s.metricExecuted.Load() }
func (s *TaskScheduler) FailedTaskCount() uint64   { return s.metricFailed.Load() }
func (s *TaskScheduler) RejectedTaskCount() uint64 { return s.metricRejected.Load() }

// RecentTasks returns completed task execution records in newest-first order.
func (s *TaskScheduler) RecentTasks(limit int) []TaskExecutionRecord {
	return s.history.Recent(limit)
}

// LastTask returns the most recent execution record.
func (s *TaskScheduler) LastTask() (TaskExecutionRecord, bool) {
	return s.history.Last()
}

// GetLogger returns the logger for this scheduler
func (s *TaskScheduler) GetLogger() Logger {
	return s.logger
}
