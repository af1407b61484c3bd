package locking

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

func TestSpinLockMutualExclusion(t *testing.T) {
	var lock SpinLock
	const goroutines, iterations = 8, 2000

	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				lock.Lock()
				counter++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	if counter != goroutines*iterations {
		t.Fatalf("counter = %d, want %d", counter, goroutines*iterations)
	}
}

func TestSpinLockTimeout(t *testing.T) {
	var lock SpinLock
	lock.Lock()
	if lock.LockTimeout(5 * time.Millisecond) {
		t.Fatal("acquired a held lock within timeout")
	}
	lock.Unlock()
	if !lock.LockTimeout(5 * time.Millisecond) {
		t.Fatal("failed to acquire a free lock")
	}
}

func TestRWLockConcurrentReaders(t *testing.T) {
	var lock RWLock
	const readers = 6

	var wg sync.WaitGroup
	entered := make(chan struct{}, readers)
	release := make(chan struct{})
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !lock.RLock(time.Second) {
				t.Error("reader timed out")
				return
			}
			entered <- struct{}{}
			<-release
			lock.RUnlock()
		}()
	}
	for i := 0; i < readers; i++ {
		select {
		case <-entered:
		case <-time.After(time.Second):
			t.Fatalf("only %d of %d readers entered", i, readers)
		}
	}
	close(release)
	wg.Wait()
}

func TestRWLockWriterExcludesReaders(t *testing.T) {
	var lock RWLock
	if !lock.Lock(time.Second) {
		t.Fatal("writer could not acquire free lock")
	}
	if lock.RLock(5 * time.Millisecond) {
		t.Fatal("reader entered while writer held the lock")
	}
	lock.Unlock()
	if !lock.RLock(time.Second) {
		t.Fatal("reader blocked after writer released")
	}
	lock.RUnlock()
}

func TestRWLockWriterPendingBlocksNewReaders(t *testing.T) {
	var lock RWLock
	if !lock.RLock(time.Second) {
		t.Fatal("initial reader failed")
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if !lock.Lock(time.Second) {
			t.Error("writer timed out")
			return
		}
		lock.Unlock()
	}()

	// Give the writer time to register as pending, then verify a new
	// reader is turned away while the writer waits.
	deadline := time.Now().Add(time.Second)
	for lock.writersWaiting.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("writer never became pending")
		}
		time.Sleep(time.Millisecond)
	}
	if lock.TryRLock() {
		t.Fatal("new reader admitted while writer pending")
	}
	lock.RUnlock()
	<-writerDone
}

func TestRWLockUpgradeDowngrade(t *testing.T) {
	var lock RWLock
	if !lock.RLock(time.Second) {
		t.Fatal("read lock failed")
	}
	if !lock.TryUpgrade() {
		t.Fatal("sole reader could not upgrade")
	}
	if lock.TryRLock() {
		t.Fatal("reader entered during upgraded write lock")
	}
	lock.Downgrade()
	if !lock.TryRLock() {
		t.Fatal("reader blocked after downgrade")
	}
	lock.RUnlock()
	lock.RUnlock()
}

func TestRWLockUpgradeFailsWithMultipleReaders(t *testing.T) {
	var lock RWLock
	if !lock.RLock(time.Second) || !lock.RLock(time.Second) {
		t.Fatal("read locks failed")
	}
	if lock.TryUpgrade() {
		t.Fatal("upgrade succeeded with a second reader inside")
	}
	lock.RUnlock()
	lock.RUnlock()
}

func TestHierarchicalLockOrdering(t *testing.T) {
	service := NewHierarchicalLock(domain.LockLevelService, nil)
	material := NewHierarchicalLock(domain.LockLevelMaterial, nil)
	ctx := NewLockContext()

	if err := service.Acquire(ctx); err != nil {
		t.Fatalf("service acquire: %v", err)
	}
	if err := material.Acquire(ctx); err != nil {
		t.Fatalf("descending acquire: %v", err)
	}
	if got := ctx.Highest(); got != domain.LockLevelMaterial {
		t.Fatalf("highest = %v, want material", got)
	}
	material.Release(ctx)
	service.Release(ctx)
	if ctx.Depth() != 0 {
		t.Fatalf("depth = %d after full release", ctx.Depth())
	}
}

func TestHierarchicalLockViolationRefused(t *testing.T) {
	material := NewHierarchicalLock(domain.LockLevelMaterial, nil)
	zone := NewHierarchicalLock(domain.LockLevelZone, nil)
	ctx := NewLockContext()

	if err := material.Acquire(ctx); err != nil {
		t.Fatalf("material acquire: %v", err)
	}
	err := zone.Acquire(ctx)
	var hv domain.HierarchyViolationError
	if !errors.As(err, &hv) {
		t.Fatalf("err = %v, want HierarchyViolationError", err)
	}
	if hv.Held != domain.LockLevelMaterial || hv.Requested != domain.LockLevelZone {
		t.Fatalf("violation = %+v", hv)
	}
	// The refused lock must still be free for a clean context.
	other := NewLockContext()
	if err := zone.Acquire(other); err != nil {
		t.Fatalf("refused lock left unavailable: %v", err)
	}
	zone.Release(other)
	material.Release(ctx)
}

func TestHierarchicalLockSameLevelRefused(t *testing.T) {
	a := NewHierarchicalLock(domain.LockLevelZone, nil)
	b := NewHierarchicalLock(domain.LockLevelZone, nil)
	ctx := NewLockContext()
	if err := a.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := b.Acquire(ctx); err == nil {
		t.Fatal("same-level acquire permitted")
	}
	a.Release(ctx)
}

func TestHybridLockPromotesUnderContention(t *testing.T) {
	lock := NewHybridLock(4)

	lock.Lock()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock.Lock()
			lock.Unlock()
		}()
	}
	// Let the contenders exhaust their spin phase against the held lock.
	deadline := time.Now().Add(time.Second)
	for lock.Contention() < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("contention = %d, never crossed threshold", lock.Contention())
		}
		time.Sleep(time.Millisecond)
	}
	lock.Unlock()
	wg.Wait()
}

func TestCounterConcurrentIncrements(t *testing.T) {
	var c Counter
	const goroutines, iterations = 16, 1000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				c.Increment()
			}
		}()
	}
	wg.Wait()
	if got := c.Load(); got != goroutines*iterations {
		t.Fatalf("counter = %d, want %d", got, goroutines*iterations)
	}
}

func TestCounterCompareExchange(t *testing.T) {
	var c Counter
	c.Store(7)
	if c.CompareExchange(3, 9) {
		t.Fatal("CAS succeeded with wrong expected value")
	}
	if !c.CompareExchange(7, 9) {
		t.Fatal("CAS failed with correct expected value")
	}
	if got := c.Load(); got != 9 {
		t.Fatalf("value = %d, want 9", got)
	}
}
