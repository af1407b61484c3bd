// Package sched runs units of work on a fixed worker pool with priority
// ordering, dependency-aware release, cooperative cancellation, bounded
// retry, and advisory NUMA placement.
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

// Work is a unit of schedulable work. The context is cancelled when the
// task is cancelled mid-flight or the scheduler shuts down; work that
// honors it observes the cancellation signal cooperatively.
type Work func(ctx context.Context) error

// Callback receives a task's terminal outcome. Err is nil for Completed,
// context.Canceled for a task cancelled while executing, and the work's
// final error for Failed.
type Callback func(id domain.TaskID, status domain.TaskStatus, err error)

// task is the scheduler's record of one submission. Fields past the
// immutable header are guarded by the scheduler mutex.
type task struct {
	id   domain.TaskID
	work Work
	cfg  domain.TaskConfig
	desc string
	cb   Callback

	seq      uint64
	priority domain.TaskPriority

	status    domain.TaskStatus
	attempts  int
	cancelled bool
	err       error

	// pendingDeps holds required dependencies not yet completed.
	pendingDeps map[domain.TaskID]struct{}

	cancelExec context.CancelFunc

	enqueuedAt time.Time

	// done is closed exactly once when the task reaches a terminal state.
	done     chan struct{}
	doneOnce sync.Once
}

func (t *task) finish(status domain.TaskStatus, err error) {
	t.status = status
	t.err = err
	t.doneOnce.Do(func() { close(t.done) })
}

// Outcome reports a task's terminal state after done is closed.
func (t *task) outcome() (domain.TaskStatus, error) {
	return t.status, t.err
}
