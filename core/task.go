package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task is the unit of work (Closure).
// Arguments are bound by the closure; a returned error or a panic marks the
// execution as failed.
type Task func(ctx context.Context) error

// TaskID uniquely identifies a submitted task.
type TaskID uuid.UUID

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// =============================================================================
// TaskTraits: Define task attributes (priority, name)
// =============================================================================

// TaskPriority orders queued tasks. Lower values are more urgent.
type TaskPriority int

const (
	// TaskPriorityCritical runs ahead of everything with a larger value.
	TaskPriorityCritical TaskPriority = -10

	// TaskPriorityDefault is used when no priority is given.
	TaskPriorityDefault TaskPriority = 0

	// TaskPriorityBackground yields to default work.
	TaskPriorityBackground TaskPriority = 10
)

type TaskTraits struct {
	Priority TaskPriority
	Name     string
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Priority: TaskPriorityDefault}
}

func TraitsWithPriority(p TaskPriority) TaskTraits {
	return TaskTraits{Priority: p}
}

// TaskItem is a queued task. It is immutable once enqueued.
type TaskItem struct {
	ID         TaskID
	Task       Task
	Traits     TaskTraits
	Sequence   uint64
	EnqueuedAt time.Time
}
