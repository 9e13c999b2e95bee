package orchestrator

import "github.com/Swind/go-task-orchestrator/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the orchestrator package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// TaskID identifies a submitted task
type TaskID = core.TaskID

// TaskTraits defines task attributes (priority, name)
type TaskTraits = core.TaskTraits

// TaskPriority orders queued tasks; lower values run first
type TaskPriority = core.TaskPriority

// TaskItem is a queued task as returned by Drain
type TaskItem = core.TaskItem

// SchedulerConfig configures handlers, metrics and logging of a Scheduler
type SchedulerConfig = core.TaskSchedulerConfig

// Priority constants
const (
	TaskPriorityCritical   TaskPriority = core.TaskPriorityCritical
	TaskPriorityDefault    TaskPriority = core.TaskPriorityDefault
	TaskPriorityBackground TaskPriority = core.TaskPriorityBackground
)

// Convenience functions for creating TaskTraits and configs
var (
	DefaultTaskTraits      = core.DefaultTaskTraits
	TraitsWithPriority     = core.TraitsWithPriority
	DefaultSchedulerConfig = core.DefaultTaskSchedulerConfig
)

// Errors
var (
	ErrValidation         = core.ErrValidation
	ErrNoServiceAvailable = core.ErrNoServiceAvailable
	ErrNoResults          = core.ErrNoResults
	ErrSchedulerStopped   = core.ErrSchedulerStopped
	ErrSchedulerRunning   = core.ErrSchedulerRunning
)
