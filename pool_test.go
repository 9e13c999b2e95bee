package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Swind/go-task-orchestrator/core"
)

func newTestTaskScheduler(workers int) *core.TaskScheduler {
	return core.NewTaskSchedulerWithConfig(workers, &core.TaskSchedulerConfig{
		Name:         "test",
		PollInterval: 20 * time.Millisecond,
	})
}

func TestWorkerPool_Lifecycle(t *testing.T) {
	pool := NewWorkerPool("test-pool", 2, newTestTaskScheduler(2))

	if pool.ID() != "test-pool" {
		t.Errorf("expected ID 'test-pool', got %s", pool.ID())
	}

	if pool.IsRunning() {
		t.Error("pool should not be running initially")
	}

	pool.Start(context.Background())
	pool.Start(context.Background())

	if !pool.IsRunning() {
		t.Error("pool should be running after Start()")
	}

	if pool.WorkerCount() != 2 {
		t.Errorf("expected 2 workers, got %d", pool.WorkerCount())
	}

	pool.Stop()
	pool.Stop()

	if pool.IsRunning() {
		t.Error("pool should not be running after Stop()")
	}
}

func TestWorkerPool_TaskExecution(t *testing.T) {
	ts := newTestTaskScheduler(4)
	pool := NewWorkerPool("exec-pool", 4, ts)
	pool.Start(context.Background())
	defer pool.Stop()

	var counter int32
	var wg sync.WaitGroup
	taskCount := 10

	wg.Add(taskCount)

	task := func(ctx context.Context) error {
		defer wg.Done()
		atomic.AddInt32(&counter, 1)
		time.Sleep(10 * time.Millisecond) // Simulate work
		return nil
	}

	for i := 0; i < taskCount; i++ {
		if _, err := ts.Submit(task, core.DefaultTaskTraits()); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	wg.Wait()

	if val := atomic.LoadInt32(&counter); val != int32(taskCount) {
		t.Errorf("expected %d executed tasks, got %d", taskCount, val)
	}
}

func TestWorkerPool_Metrics(t *testing.T) {
	ts := newTestTaskScheduler(1)
	pool := NewWorkerPool("metrics-pool", 1, ts) // Single worker to force queuing
	pool.Start(context.Background())
	defer pool.Stop()

	// 1. Block the worker
	blockCh := make(chan struct{})
	started := make(chan struct{})

	_, _ = ts.Submit(func(ctx context.Context) error {
		close(started)
		<-blockCh
		return nil
	}, core.DefaultTaskTraits())

	<-started

	if active := ts.ActiveTaskCount(); active != 1 {
		t.Errorf("expected 1 active task, got %d", active)
	}

	// 2. Queue more tasks
	var done sync.WaitGroup
	done.Add(2)
	for range 2 {
		_, _ = ts.Submit(func(ctx context.Context) error {
			done.Done()
			return nil
		}, core.DefaultTaskTraits())
	}

	if queued := ts.QueuedTaskCount(); queued != 2 {
		t.Errorf("expected 2 queued tasks, got %d", queued)
	}

	// 3. Unblock
	close(blockCh)
	done.Wait()

	assertEventually(t, time.Second, func() bool {
		return ts.ActiveTaskCount() == 0 && ts.QueuedTaskCount() == 0
	})
}

func TestWorkerPool_StopLeavesQueuedTasks(t *testing.T) {
	ts := newTestTaskScheduler(1)
	pool := NewWorkerPool("stop-pool", 1, ts)
	pool.Start(context.Background())

	blockCh := make(chan struct{})
	started := make(chan struct{})
	_, _ = ts.Submit(func(ctx context.Context) error {
		close(started)
		<-blockCh
		return nil
	}, core.DefaultTaskTraits())
	<-started

	for range 3 {
		_, _ = ts.Submit(func(ctx context.Context) error { return nil }, core.DefaultTaskTraits())
	}

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	// Stop must wait for the in-flight task
	select {
	case <-stopped:
		t.Fatal("Stop returned while a task was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(blockCh)
	<-stopped

	if queued := ts.QueuedTaskCount(); queued != 3 {
		t.Errorf("expected 3 queued tasks after Stop, got %d", queued)
	}
	if executed := ts.ExecutedTaskCount(); executed != 1 {
		t.Errorf("expected 1 executed task, got %d", executed)
	}
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
