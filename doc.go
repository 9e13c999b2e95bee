// Package orchestrator provides an in-process task orchestration core for Go.
//
// It is made of three independent pieces that callers compose:
//
//   - Scheduler: a priority task queue drained by a fixed pool of worker goroutines.
//   - balancer.LoadBalancer: weighted-random selection among registered backend instances.
//   - aggregator.ResultAggregator: thread-safe per-task result buckets with single and
//     bounded fan-out reduction.
//
// # Quick Start
//
//	sched := orchestrator.NewScheduler(nil)
//	if err := sched.Start(context.Background(), 4); err != nil {
//		return err
//	}
//	defer sched.Stop()
//
//	sched.SubmitWithPriority(func(ctx context.Context) error {
//		// Your code here
//		return nil
//	}, orchestrator.TaskPriorityDefault)
//
// # Ordering
//
// Lower priority values run first. Tasks with equal priority run in submission
// order: every task carries a sequence number assigned under the queue lock.
//
// # Failures
//
// A task that returns an error or panics is recovered inside the worker, reported
// to the configured core.TaskErrorHandler and core.Metrics, and discarded. Tasks
// are never retried and the submitter never observes the failure.
//
// # Lifecycle
//
// Stop waits for in-flight tasks and worker exit but leaves queued tasks in place;
// call Drain or ClearQueue to dispose of them. A stopped Scheduler cannot be
// restarted.
//
// There are no package-level instances: every Scheduler, LoadBalancer and
// ResultAggregator is constructed and injected by the caller.
package orchestrator
