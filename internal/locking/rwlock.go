package locking

import (
	"runtime"
	"sync/atomic"
	"time"
)

// RWLock is a reader-writer lock with bounded acquisition, upgrade and
// downgrade. Multiple readers or one writer may hold it. Writer starvation
// is avoided by a writer-pending count that turns new readers away once a
// writer is waiting; readers already inside drain normally.
//
// The state word holds the reader count, or rwWriter when a writer owns the
// lock.
type RWLock struct {
	state          atomic.Int32
	writersWaiting atomic.Int32
}

const rwWriter int32 = -1

// RLock acquires shared access, waiting up to timeout. It returns false
// when the deadline elapses.
func (l *RWLock) RLock(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for spins := 0; ; spins++ {
		if l.TryRLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		if spins%spinYieldEvery == spinYieldEvery-1 {
			runtime.Gosched()
		}
	}
}

// TryRLock attempts one shared acquisition. It fails while a writer holds
// the lock or is waiting for it.
func (l *RWLock) TryRLock() bool {
	if l.writersWaiting.Load() > 0 {
		return false
	}
	s := l.state.Load()
	return s >= 0 && l.state.CompareAndSwap(s, s+1)
}

// RUnlock releases shared access.
func (l *RWLock) RUnlock() {
	l.state.Add(-1)
}

// Lock acquires exclusive access, waiting up to timeout. It returns false
// when the deadline elapses.
func (l *RWLock) Lock(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	l.writersWaiting.Add(1)
	defer l.writersWaiting.Add(-1)
	for spins := 0; ; spins++ {
		if l.state.CompareAndSwap(0, rwWriter) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		if spins%spinYieldEvery == spinYieldEvery-1 {
			runtime.Gosched()
		}
	}
}

// TryLock attempts one exclusive acquisition.
func (l *RWLock) TryLock() bool {
	return l.state.CompareAndSwap(0, rwWriter)
}

// Unlock releases exclusive access.
func (l *RWLock) Unlock() {
	l.state.Store(0)
}

// TryUpgrade converts a held read lock into a write lock without releasing.
// It succeeds only when the caller is the sole reader; on failure the read
// lock is still held.
func (l *RWLock) TryUpgrade() bool {
	return l.state.CompareAndSwap(1, rwWriter)
}

// Downgrade converts a held write lock into a read lock without releasing,
// letting other readers in immediately.
func (l *RWLock) Downgrade() {
	l.state.Store(1)
}
