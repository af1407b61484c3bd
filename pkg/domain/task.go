package domain

import "time"

// TaskID is a process-unique handle for a scheduled task. Zero is returned
// only when scheduling fails.
type TaskID uint64

// InvalidTaskID is the sentinel for scheduling failures.
const InvalidTaskID TaskID = 0

// TaskStatus is the scheduler-visible state of a task.
type TaskStatus int32

// Task states. Queued, Waiting and Suspended precede execution; Completed,
// Failed and Cancelled are terminal.
const (
	TaskQueued TaskStatus = iota
	TaskWaiting
	TaskSuspended
	TaskExecuting
	TaskCompleted
	TaskFailed
	TaskCancelled
)

// Terminal reports whether the status is one a task never leaves.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// String returns the status name used in logs and metrics labels.
func (s TaskStatus) String() string {
	switch s {
	case TaskQueued:
		return "queued"
	case TaskWaiting:
		return "waiting"
	case TaskSuspended:
		return "suspended"
	case TaskExecuting:
		return "executing"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TaskPriority orders tasks within the scheduler queues. Higher runs first.
type TaskPriority int32

// Standard task priorities.
const (
	PriorityLow      TaskPriority = 0
	PriorityNormal   TaskPriority = 10
	PriorityHigh     TaskPriority = 20
	PriorityCritical TaskPriority = 30
)

// TaskHints are advisory optimization flags the scheduler uses to pick a
// worker with matching specialization when one is free. They never affect
// correctness.
type TaskHints uint32

// Advisory task hints.
const (
	HintNone TaskHints = 0
	// HintCacheLocal prefers the worker that last ran a task of the same kind.
	HintCacheLocal TaskHints = 1 << iota
	// HintNUMAAware prefers a worker on the configured memory domain.
	HintNUMAAware
	// HintSIMD prefers workers tagged for wide vector work.
	HintSIMD
)

// TaskDependency names a prerequisite task. Only required dependencies
// gate readiness; optional dependencies are advisory and never block.
type TaskDependency struct {
	TaskID   TaskID
	Optional bool
}

// TaskConfig carries everything the scheduler needs beyond the work
// function itself.
type TaskConfig struct {
	Priority     TaskPriority
	Kind         string
	Hints        TaskHints
	Dependencies []TaskDependency

	// MaxRetries reschedules a failed task up to this many times.
	MaxRetries int
	// RetryPriorityBoost is added to Priority on each retry.
	RetryPriorityBoost TaskPriority
	// RetryDelay spaces automatic retries. Zero retries immediately.
	RetryDelay time.Duration

	// NUMADomain pins the task to a memory domain when HintNUMAAware is
	// set. Negative means no preference.
	NUMADomain int
}

// DefaultTaskConfig returns the configuration used when the caller passes a
// zero value.
func DefaultTaskConfig() TaskConfig {
	return TaskConfig{Priority: PriorityNormal, NUMADomain: -1}
}
