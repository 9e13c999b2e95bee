package orchestrator

import (
	"context"
	"sync"

	"github.com/Swind/go-task-orchestrator/core"
)

// WorkerPool manages a fixed set of worker goroutines.
// Each worker pulls tasks from the TaskScheduler and runs them to completion.
type WorkerPool struct {
	id        string
	workers   int
	scheduler *core.TaskScheduler
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex
}

// NewWorkerPool creates a WorkerPool draining scheduler with the given number of workers.
func NewWorkerPool(id string, workers int, scheduler *core.TaskScheduler) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		id:        id,
		workers:   workers,
		scheduler: scheduler,
	}
}

// Start starts all worker goroutines. Tasks receive a context carrying ctx's
// values that is never cancelled; only Stop ends the workers.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.runningMu.Lock()
	defer wp.runningMu.Unlock()

	if wp.running {
		return // Already running
	}

	wp.ctx, wp.cancel = context.WithCancel(context.WithoutCancel(ctx))
	wp.running = true

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.workerLoop(i, wp.ctx)
	}

	wp.scheduler.GetLogger().Info("worker pool started",
		core.F("pool", wp.id),
		core.F("workers", wp.workers),
	)
}

// Stop raises the stop signal and blocks until every worker has exited.
// In-flight tasks finish first; queued tasks are not touched.
func (wp *WorkerPool) Stop() {
	wp.runningMu.Lock()
	if !wp.running {
		wp.runningMu.Unlock()
		return
	}
	cancel := wp.cancel
	wp.runningMu.Unlock()

	if cancel != nil {
		cancel()
	}
	wp.Join()

	wp.runningMu.Lock()
	wp.running = false
	wp.runningMu.Unlock()

	wp.scheduler.GetLogger().Info("worker pool stopped",
		core.F("pool", wp.id),
		core.F("queued", wp.scheduler.QueuedTaskCount()),
	)
}

// ID returns the ID of the worker pool
func (wp *WorkerPool) ID() string {
	return wp.id
}

// IsRunning returns whether the worker pool is running
func (wp *WorkerPool) IsRunning() bool {
	wp.runningMu.RLock()
	defer wp.runningMu.RUnlock()
	return wp.running
}

// workerLoop is the main loop for each worker
func (wp *WorkerPool) workerLoop(id int, ctx context.Context) {
	defer wp.wg.Done()
	stopCh := ctx.Done()
	taskCtx := context.WithoutCancel(ctx)

	for {
		item, ok := wp.scheduler.GetWork(stopCh)
		if !ok {
			// Stop requested
			return
		}
		wp.scheduler.Execute(taskCtx, id, item)
	}
}

// Join waits for all worker goroutines to finish
func (wp *WorkerPool) Join() {
	wp.wg.Wait()
}

// WorkerCount returns the number of workers
func (wp *WorkerPool) WorkerCount() int {
	return wp.workers
}
