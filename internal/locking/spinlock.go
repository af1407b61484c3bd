// Package locking supplies the synchronization primitives the mining
// runtime is built on: spin, reader-writer, hierarchical, zone-table and
// hybrid locks, wait-free counters, and NUMA topology detection. Each
// primitive is tuned for a specific contention profile; all bounded entry
// points return false on timeout instead of blocking forever.
package locking

import (
	"runtime"
	"sync/atomic"
	"time"
)

// spinYieldEvery bounds busy spinning before the goroutine yields.
const spinYieldEvery = 16

// SpinLock is a test-and-set lock with cooperative yield backoff, intended
// for very short critical sections. It is not reentrant and makes no
// fairness guarantee.
type SpinLock struct {
	state atomic.Int32
}

// Lock acquires the lock, spinning until it succeeds.
func (l *SpinLock) Lock() {
	for spins := 0; !l.TryLock(); spins++ {
		if spins%spinYieldEvery == spinYieldEvery-1 {
			runtime.Gosched()
		}
	}
}

// TryLock attempts a single acquisition without spinning.
func (l *SpinLock) TryLock() bool {
	return l.state.CompareAndSwap(0, 1)
}

// LockTimeout acquires the lock, giving up after d. It returns false when
// the deadline elapses; the caller must treat that as "cannot proceed now".
func (l *SpinLock) LockTimeout(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for spins := 0; ; spins++ {
		if l.TryLock() {
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

// Unlock releases the lock. Unlocking an unheld lock is a programming error
// and leaves the lock unheld.
func (l *SpinLock) Unlock() {
	l.state.Store(0)
}
