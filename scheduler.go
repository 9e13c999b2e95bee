package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Swind/go-task-orchestrator/core"
)

const gracefulPollInterval = 50 * time.Millisecond

// Scheduler composes a priority task queue with a fixed worker pool.
//
// A Scheduler moves from stopped to running exactly once: after Stop it
// rejects Start and Submit, and a new Scheduler must be constructed.
type Scheduler struct {
	ts *core.TaskScheduler

	mu        sync.Mutex
	pool      *WorkerPool
	stopped   bool
	stopWatch func() bool
}

// NewScheduler creates a stopped Scheduler. A nil config uses the defaults.
func NewScheduler(config *core.TaskSchedulerConfig) *Scheduler {
	return &Scheduler{
		ts: core.NewTaskSchedulerWithConfig(core.DefaultWorkerCount, config),
	}
}

// Name returns the scheduler name used in logs and metrics.
func (s *Scheduler) Name() string {
	return s.ts.Name()
}

// Start spawns workerCount workers. Cancelling ctx is equivalent to calling
// Stop; it does not cancel tasks that are already executing.
func (s *Scheduler) Start(ctx context.Context, workerCount int) error {
	if workerCount < 1 {
		return core.NewValidationError("workerCount", fmt.Sprintf("must be at least 1, got %d", workerCount))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return core.ErrSchedulerStopped
	}
	if s.pool != nil {
		return core.ErrSchedulerRunning
	}

	s.pool = NewWorkerPool(s.ts.Name(), workerCount, s.ts)
	s.pool.Start(ctx)
	s.stopWatch = context.AfterFunc(ctx, s.Stop)
	return nil
}

// Submit enqueues task with the given traits and returns its id.
// The error is a *core.ValidationError for a nil task or
// core.ErrSchedulerStopped after Stop.
func (s *Scheduler) Submit(task core.Task, traits core.TaskTraits) (core.TaskID, error) {
	item, err := s.ts.Submit(task, traits)
	if err != nil {
		return core.TaskID{}, err
	}
	return item.ID, nil
}

// SubmitWithPriority is Submit with an unnamed task.
func (s *Scheduler) SubmitWithPriority(task core.Task, priority core.TaskPriority) (core.TaskID, error) {
	return s.Submit(task, core.TraitsWithPriority(priority))
}

// SubmitNamed is Submit with a name used in logs and execution records.
func (s *Scheduler) SubmitNamed(name string, priority core.TaskPriority, task core.Task) (core.TaskID, error) {
	return s.Submit(task, core.TaskTraits{Priority: priority, Name: name})
}

// Stop stops accepting submissions, waits for in-flight tasks and for every
// worker to exit. Tasks still queued are left untouched; use Drain or
// ClearQueue to dispose of them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	pool := s.pool
	stopWatch := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}
	s.ts.Close()
	if pool != nil {
		pool.Stop()
	}
}

// StopGraceful stops accepting submissions and waits until the queue is empty
// and no task is running, then stops the workers. If timeout expires first it
// stops the workers anyway and returns an error; remaining tasks stay queued.
func (s *Scheduler) StopGraceful(timeout time.Duration) error {
	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()

	s.ts.Close()
	if pool == nil || !pool.IsRunning() {
		// Not running, nothing to wait for
		s.Stop()
		return nil
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(gracefulPollInterval)
	defer ticker.Stop()

	for {
		if s.ts.QueuedTaskCount() == 0 && s.ts.ActiveTaskCount() == 0 {
			s.Stop()
			return nil
		}
		select {
		case <-deadline:
			s.Stop()
			return fmt.Errorf("graceful stop timeout after %v, %d task(s) still queued", timeout, s.ts.QueuedTaskCount())
		case <-ticker.C:
		}
	}
}

// ClearQueue atomically drops all queued tasks and returns how many were removed.
// Tasks already claimed by a worker are unaffected.
func (s *Scheduler) ClearQueue() int {
	return s.ts.Clear()
}

// Drain atomically removes all queued tasks and returns them in dequeue order.
func (s *Scheduler) Drain() []core.TaskItem {
	return s.ts.Drain()
}

// QueueSize is an advisory snapshot of the number of queued tasks.
func (s *Scheduler) QueueSize() int {
	return s.ts.QueuedTaskCount()
}

// ActiveTaskCount returns the number of tasks currently executing.
func (s *Scheduler) ActiveTaskCount() int {
	return s.ts.ActiveTaskCount()
}

// WorkerCount returns the number of workers, or 0 before Start.
func (s *Scheduler) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return 0
	}
	return s.pool.WorkerCount()
}

// IsRunning reports whether workers are running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()
	return pool != nil && pool.IsRunning()
}

// Stats returns current observability data for this scheduler.
func (s *Scheduler) Stats() core.PoolStats {
	return core.PoolStats{
		ID:       s.ts.Name(),
		Workers:  s.WorkerCount(),
		Queued:   s.ts.QueuedTaskCount(),
		Active:   s.ts.ActiveTaskCount(),
		Executed: s.ts.ExecutedTaskCount(),
		Failed:   s.ts.FailedTaskCount(),
		Rejected: s.ts.RejectedTaskCount(),
		Running:  s.IsRunning(),
	}
}

// RecentTasks returns completed task execution records in newest-first order.
func (s *Scheduler) RecentTasks(limit int) []core.TaskExecutionRecord {
	return s.ts.RecentTasks(limit)
}
