package locking

import (
	"log/slog"
	"sync"
	"time"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

// LockContext records the hierarchy levels a caller currently holds. Every
// goroutine that takes hierarchical locks owns exactly one context and
// passes it explicitly; there is no hidden per-thread state. A context must
// never be shared across goroutines.
type LockContext struct {
	held []domain.LockLevel
}

// NewLockContext returns an empty context.
func NewLockContext() *LockContext {
	return &LockContext{}
}

// Highest returns the deepest level currently held, or LockLevelNone.
func (c *LockContext) Highest() domain.LockLevel {
	if len(c.held) == 0 {
		return domain.LockLevelNone
	}
	return c.held[len(c.held)-1]
}

// Depth returns the number of hierarchy locks currently held.
func (c *LockContext) Depth() int { return len(c.held) }

func (c *LockContext) push(l domain.LockLevel) { c.held = append(c.held, l) }

func (c *LockContext) pop(l domain.LockLevel) {
	for i := len(c.held) - 1; i >= 0; i-- {
		if c.held[i] == l {
			c.held = append(c.held[:i], c.held[i+1:]...)
			return
		}
	}
}

// HierarchicalLock pairs a mutex with a hierarchy level. Acquisition
// validates, against the caller's context, that the requested level is
// strictly deeper than anything already held. A violation refuses the
// acquisition and returns HierarchyViolationError; proceeding anyway would
// reintroduce the deadlock the ordering exists to prevent.
type HierarchicalLock struct {
	mu     sync.Mutex
	level  domain.LockLevel
	logger *slog.Logger
}

// NewHierarchicalLock builds a lock at the given level. A nil logger falls
// back to slog.Default.
func NewHierarchicalLock(level domain.LockLevel, logger *slog.Logger) *HierarchicalLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &HierarchicalLock{level: level, logger: logger}
}

// Level returns the lock's hierarchy level.
func (l *HierarchicalLock) Level() domain.LockLevel { return l.level }

func (l *HierarchicalLock) validate(ctx *LockContext) error {
	if held := ctx.Highest(); held >= l.level {
		err := domain.HierarchyViolationError{Held: held, Requested: l.level}
		l.logger.Error("refusing lock acquisition",
			"held_level", held.String(),
			"requested_level", l.level.String())
		return err
	}
	return nil
}

// Acquire takes the lock after validating the hierarchy ordering.
func (l *HierarchicalLock) Acquire(ctx *LockContext) error {
	if err := l.validate(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	ctx.push(l.level)
	return nil
}

// AcquireTimeout takes the lock, giving up after d. The bool result is
// false only on timeout; ordering violations are reported as errors.
func (l *HierarchicalLock) AcquireTimeout(ctx *LockContext, d time.Duration) (bool, error) {
	if err := l.validate(ctx); err != nil {
		return false, err
	}
	deadline := time.Now().Add(d)
	for !l.mu.TryLock() {
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(time.Microsecond * 50)
	}
	ctx.push(l.level)
	return true, nil
}

// Release drops the lock and removes its level from the context.
func (l *HierarchicalLock) Release(ctx *LockContext) {
	ctx.pop(l.level)
	l.mu.Unlock()
}
