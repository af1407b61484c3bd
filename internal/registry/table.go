// Package registry provides the thread-safe versioned type catalogs:
// the generic versioned table, the material registry with inheritance and
// relationships, the zone-kind registry, and the NUMA-aware read cache.
package registry

import (
	"sync/atomic"
	"time"

	"github.com/AgenticGames/miningspice/internal/locking"
)

// tableLockTimeout bounds every table lock acquisition. The critical
// sections are map operations; hitting this means something is badly
// wedged, and callers observe an ordinary miss.
const tableLockTimeout = 5 * time.Second

// VersionedTable maps IDs to shared records behind a reader-writer lock,
// with one atomic version counter bumped on every structural mutation. A
// reader that captures the version around a lookup can detect whether a
// writer interleaved, which is what lets the NUMA cache skip locking
// entirely on its fast path.
type VersionedTable[T any] struct {
	lock    locking.RWLock
	version atomic.Uint64
	items   map[uint32]T
}

// NewVersionedTable returns an empty table at version zero.
func NewVersionedTable[T any]() *VersionedTable[T] {
	return &VersionedTable[T]{items: make(map[uint32]T)}
}

// Version returns the current global version without locking.
func (t *VersionedTable[T]) Version() uint64 { return t.version.Load() }

// Get returns the record for id. The bool is false for missing records
// and for lock timeouts alike.
func (t *VersionedTable[T]) Get(id uint32) (T, bool) {
	v, _, ok := t.GetVersioned(id)
	return v, ok
}

// GetVersioned returns the record together with the table version it was
// read at. Writers are excluded for the duration of the lookup, so the
// returned version is exact.
func (t *VersionedTable[T]) GetVersioned(id uint32) (T, uint64, bool) {
	var zero T
	if !t.lock.RLock(tableLockTimeout) {
		return zero, 0, false
	}
	defer t.lock.RUnlock()
	v, ok := t.items[id]
	if !ok {
		return zero, t.version.Load(), false
	}
	return v, t.version.Load(), true
}

// Put inserts or replaces a record and bumps the version. It returns
// false only on lock timeout.
func (t *VersionedTable[T]) Put(id uint32, v T) bool {
	if !t.lock.Lock(tableLockTimeout) {
		return false
	}
	defer t.lock.Unlock()
	t.items[id] = v
	t.version.Add(1)
	return true
}

// Delete removes a record, bumping the version when something was
// actually removed.
func (t *VersionedTable[T]) Delete(id uint32) bool {
	if !t.lock.Lock(tableLockTimeout) {
		return false
	}
	defer t.lock.Unlock()
	if _, ok := t.items[id]; !ok {
		return false
	}
	delete(t.items, id)
	t.version.Add(1)
	return true
}

// Len returns the record count.
func (t *VersionedTable[T]) Len() int {
	if !t.lock.RLock(tableLockTimeout) {
		return 0
	}
	defer t.lock.RUnlock()
	return len(t.items)
}

// Range calls fn for each record until it returns false. The table lock
// is held shared for the whole walk; fn must not mutate the table.
func (t *VersionedTable[T]) Range(fn func(id uint32, v T) bool) {
	if !t.lock.RLock(tableLockTimeout) {
		return
	}
	defer t.lock.RUnlock()
	for id, v := range t.items {
		if !fn(id, v) {
			return
		}
	}
}

// Clear drops every record and bumps the version once.
func (t *VersionedTable[T]) Clear() {
	if !t.lock.Lock(tableLockTimeout) {
		return
	}
	defer t.lock.Unlock()
	t.items = make(map[uint32]T)
	t.version.Add(1)
}
