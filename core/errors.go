package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("orchestrator: validation failed")

	// ErrNoServiceAvailable is returned when selecting from an unknown or empty service type.
	ErrNoServiceAvailable = errors.New("orchestrator: no service available")

	// ErrNoResults is returned when aggregating a missing or empty result bucket.
	ErrNoResults = errors.New("orchestrator: no results")

	// ErrSchedulerStopped is returned by Submit and Start once the scheduler was stopped.
	ErrSchedulerStopped = errors.New("orchestrator: scheduler stopped")

	// ErrSchedulerRunning is returned by Start when workers are already running.
	ErrSchedulerRunning = errors.New("orchestrator: scheduler already running")

	// ErrTaskPanicked is matched by a TaskExecutionError caused by a panic.
	ErrTaskPanicked = errors.New("orchestrator: task panicked")

	// ErrReducerPanicked is matched by an AggregationError caused by a panic.
	ErrReducerPanicked = errors.New("orchestrator: reducer panicked")
)

// ValidationError reports a rejected argument at an API boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TaskExecutionError describes a failed task execution. It is recovered inside
// the worker loop and only reported to handlers, never to the submitter.
type TaskExecutionError struct {
	TaskID   TaskID
	Name     string
	Priority TaskPriority
	Err      error

	// Panic and Stack are set when the task panicked instead of returning an error.
	Panic any
	Stack []byte
}

func (e *TaskExecutionError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("task %s (%s) panicked: %v", e.Name, e.TaskID, e.Panic)
	}
	return fmt.Sprintf("task %s (%s) failed: %v", e.Name, e.TaskID, e.Err)
}

func (e *TaskExecutionError) Unwrap() error {
	if e.Panic != nil {
		return ErrTaskPanicked
	}
	return e.Err
}

// AggregationError reports a reducer failure for a single task id.
type AggregationError struct {
	TaskID string
	Err    error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %q: %v", e.TaskID, e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}
