package locking

import (
	"sync"
	"sync/atomic"
)

// DefaultContentionThreshold is the failed-spin count at which a HybridLock
// stops spinning and parks on its mutex instead.
const DefaultContentionThreshold = 64

// hybridSpinAttempts bounds the optimistic spin phase per acquisition.
const hybridSpinAttempts = 8

// HybridLock starts life as a spin lock and degrades to a blocking mutex
// once observed contention crosses the threshold, so heavy contention stops
// burning CPU. The contention counter decays on uncontended acquisitions,
// letting the lock return to spinning when pressure subsides.
type HybridLock struct {
	mu         sync.Mutex
	contention atomic.Int64
	threshold  int64
}

// NewHybridLock builds a lock with the given promotion threshold;
// non-positive thresholds use DefaultContentionThreshold.
func NewHybridLock(threshold int64) *HybridLock {
	if threshold <= 0 {
		threshold = DefaultContentionThreshold
	}
	return &HybridLock{threshold: threshold}
}

// Lock acquires the lock, spinning briefly while contention is low.
func (l *HybridLock) Lock() {
	if l.contention.Load() < l.threshold {
		for i := 0; i < hybridSpinAttempts; i++ {
			if l.mu.TryLock() {
				if i == 0 {
					l.decay()
				}
				return
			}
		}
		l.contention.Add(int64(hybridSpinAttempts))
	}
	l.mu.Lock()
}

// TryLock attempts a single acquisition.
func (l *HybridLock) TryLock() bool {
	return l.mu.TryLock()
}

// Unlock releases the lock.
func (l *HybridLock) Unlock() {
	l.mu.Unlock()
}

// Contention returns the current contention counter, readable for adaptive
// tuning.
func (l *HybridLock) Contention() int64 {
	return l.contention.Load()
}

func (l *HybridLock) decay() {
	if c := l.contention.Load(); c > 0 {
		l.contention.CompareAndSwap(c, c-1)
	}
}
