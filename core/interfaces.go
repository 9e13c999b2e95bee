package core

import (
	"context"
	"time"
)

// =============================================================================
// TaskErrorHandler: Interface for handling failed tasks
// =============================================================================

// TaskErrorHandler is called when a task returns an error or panics.
// The failed task is not retried; the handler is the only place the failure
// becomes visible outside the scheduler.
//
// Implementations should be thread-safe as they may be called concurrently.
type TaskErrorHandler interface {
	// HandleTaskError is called once per failed execution.
	//
	// Parameters:
	// - ctx: The context the task ran with
	// - schedulerName: The name of the scheduler that owned the task
	// - workerID: The ID of the worker that executed the task
	// - err: The recovered failure
	HandleTaskError(ctx context.Context, schedulerName string, workerID int, err *TaskExecutionError)
}

// LoggingTaskErrorHandler logs task failures through a Logger.
type LoggingTaskErrorHandler struct {
	Logger Logger
}

// HandleTaskError logs the failure at error level.
func (h *LoggingTaskErrorHandler) HandleTaskError(ctx context.Context, schedulerName string, workerID int, err *TaskExecutionError) {
	logger := h.Logger
	if logger == nil {
		return
	}
	fields := []Field{
		F("scheduler", schedulerName),
		F("worker", workerID),
		F("task_id", err.TaskID.String()),
		F("task", err.Name),
		F("priority", int(err.Priority)),
		F("error", err),
	}
	if err.Stack != nil {
		fields = append(fields, F("stack", string(err.Stack)))
	}
	logger.Error("task execution failed", fields...)
}

// TaskErrorHandlerFunc adapts a function to TaskErrorHandler.
type TaskErrorHandlerFunc func(ctx context.Context, schedulerName string, workerID int, err *TaskExecutionError)

func (f TaskErrorHandlerFunc) HandleTaskError(ctx context.Context, schedulerName string, workerID int, err *TaskExecutionError) {
	f(ctx, schedulerName, workerID, err)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting orchestration metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(schedulerName string, priority TaskPriority, duration time.Duration)

	// RecordTaskFailure records a failed execution. kind is "error" or "panic".
	RecordTaskFailure(schedulerName string, kind string)

	// RecordQueueDepth records the current queue depth.
	RecordQueueDepth(schedulerName string, depth int)

	// RecordTaskRejected records that a task was rejected (e.g., after stop).
	RecordTaskRejected(schedulerName string, reason string)

	// RecordServiceSelection records a successful or failed backend selection.
	RecordServiceSelection(serviceType string, ok bool)

	// RecordAggregation records an aggregation outcome: "ok", "empty" or "error".
	RecordAggregation(outcome string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(schedulerName string, priority TaskPriority, duration time.Duration) {
}
func (m *NilMetrics) RecordTaskFailure(schedulerName string, kind string)    {}
func (m *NilMetrics) RecordQueueDepth(schedulerName string, depth int)       {}
func (m *NilMetrics) RecordTaskRejected(schedulerName string, reason string) {}
func (m *NilMetrics) RecordServiceSelection(serviceType string, ok bool)     {}
func (m *NilMetrics) RecordAggregation(outcome string)                       {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a submission is refused because the
// scheduler was stopped.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(schedulerName string, traits TaskTraits, reason string)
}

// LoggingRejectedTaskHandler logs rejected tasks at warn level.
type LoggingRejectedTaskHandler struct {
	Logger Logger
}

func (h *LoggingRejectedTaskHandler) HandleRejectedTask(schedulerName string, traits TaskTraits, reason string) {
	if h.Logger == nil {
		return
	}
	h.Logger.Warn("task rejected",
		F("scheduler", schedulerName),
		F("task", traits.Name),
		F("priority", int(traits.Priority)),
		F("reason", reason),
	)
}

// =============================================================================
// TaskSchedulerConfig: Configuration for TaskScheduler
// =============================================================================

const (
	// DefaultPollInterval bounds how long an idle worker waits before re-checking the queue.
	DefaultPollInterval = time.Second

	// DefaultWorkerCount matches the pool size used when none is configured.
	DefaultWorkerCount = 10
)

// TaskSchedulerConfig holds configuration options for TaskScheduler.
// All handlers are optional; if not provided, default implementations will be used.
type TaskSchedulerConfig struct {
	// Name labels logs and metrics. Defaults to "scheduler".
	Name string

	// Logger defaults to NoOpLogger.
	Logger Logger

	// TaskErrorHandler defaults to LoggingTaskErrorHandler over Logger.
	TaskErrorHandler TaskErrorHandler

	// Metrics defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler defaults to LoggingRejectedTaskHandler over Logger.
	RejectedTaskHandler RejectedTaskHandler

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// HistorySize is the number of execution records kept. Defaults to 100.
	HistorySize int
}

// DefaultTaskSchedulerConfig returns a config with default settings.
// The error and rejection handlers are left nil so they are bound to
// whatever Logger the caller sets before the scheduler is built.
func DefaultTaskSchedulerConfig() *TaskSchedulerConfig {
	return &TaskSchedulerConfig{
		Name:         "scheduler",
		Logger:       NewNoOpLogger(),
		Metrics:      &NilMetrics{},
		PollInterval: DefaultPollInterval,
		HistorySize:  defaultTaskHistoryCapacity,
	}
}

func (c *TaskSchedulerConfig) withDefaults() TaskSchedulerConfig {
	var out TaskSchedulerConfig
	if c != nil {
		out = *c
	}
	if out.Name == "" {
		out.Name = "scheduler"
	}
	if out.Logger == nil {
		out.Logger = NewNoOpLogger()
	}
	if out.TaskErrorHandler == nil {
		out.TaskErrorHandler = &LoggingTaskErrorHandler{Logger: out.Logger}
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.RejectedTaskHandler == nil {
		out.RejectedTaskHandler = &LoggingRejectedTaskHandler{Logger: out.Logger}
	}
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	if out.HistorySize <= 0 {
		out.HistorySize = defaultTaskHistoryCapacity
	}
	return out
}
