package locking

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

// ZoneLockTable holds one exclusive spin lock and owner slot per zone.
// Multi-zone acquisition always proceeds in ascending zone-ID order, which
// gives every caller the same total order and makes circular waits
// impossible.
//
// Slots are created on first use and live for the table's lifetime; the
// zone ID space is sparse and only touched zones pay for a slot.
type ZoneLockTable struct {
	slots sync.Map // domain.ZoneID -> *zoneSlot

	// onAcquire, when set, observes each successful single-zone
	// acquisition in order. Test instrumentation only.
	onAcquire func(domain.ZoneID)
}

type zoneSlot struct {
	lock  SpinLock
	owner atomic.Uint64
}

// NewZoneLockTable returns an empty table.
func NewZoneLockTable() *ZoneLockTable {
	return &ZoneLockTable{}
}

// SetAcquireHook installs an observer for acquisition order. Must be set
// before the table is shared.
func (t *ZoneLockTable) SetAcquireHook(fn func(domain.ZoneID)) { t.onAcquire = fn }

func (t *ZoneLockTable) slot(zone domain.ZoneID) *zoneSlot {
	if s, ok := t.slots.Load(zone); ok {
		return s.(*zoneSlot)
	}
	s, _ := t.slots.LoadOrStore(zone, &zoneSlot{})
	return s.(*zoneSlot)
}

// Lock acquires one zone for the given owner, spinning until it succeeds.
func (t *ZoneLockTable) Lock(owner uint64, zone domain.ZoneID) {
	s := t.slot(zone)
	s.lock.Lock()
	s.owner.Store(owner)
	if t.onAcquire != nil {
		t.onAcquire(zone)
	}
}

// TryLock attempts one acquisition without spinning.
func (t *ZoneLockTable) TryLock(owner uint64, zone domain.ZoneID) bool {
	s := t.slot(zone)
	if !s.lock.TryLock() {
		return false
	}
	s.owner.Store(owner)
	if t.onAcquire != nil {
		t.onAcquire(zone)
	}
	return true
}

// Unlock releases one zone. Releasing a zone the owner does not hold is a
// programming error and is ignored.
func (t *ZoneLockTable) Unlock(owner uint64, zone domain.ZoneID) {
	s := t.slot(zone)
	if s.owner.Load() != owner {
		return
	}
	s.owner.Store(0)
	s.lock.Unlock()
}

// Owner reports the current owner of a zone lock, zero when unheld.
func (t *ZoneLockTable) Owner(zone domain.ZoneID) uint64 {
	return t.slot(zone).owner.Load()
}

// sortedUnique returns the zones sorted ascending with duplicates removed,
// without mutating the input.
func sortedUnique(zones []domain.ZoneID) []domain.ZoneID {
	out := append([]domain.ZoneID(nil), zones...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, z := range out {
		if i == 0 || z != out[n-1] {
			out[n] = z
			n++
		}
	}
	return out[:n]
}

// LockMultipleZones acquires every listed zone in a single ascending-ID
// ordered batch, spinning as needed. Duplicate IDs are collapsed.
func (t *ZoneLockTable) LockMultipleZones(owner uint64, zones []domain.ZoneID) {
	for _, z := range sortedUnique(zones) {
		t.Lock(owner, z)
	}
}

// LockMultipleZonesTimeout acquires the batch within d, or releases
// everything it had taken and returns false.
func (t *ZoneLockTable) LockMultipleZonesTimeout(owner uint64, zones []domain.ZoneID, d time.Duration) bool {
	deadline := time.Now().Add(d)
	ordered := sortedUnique(zones)
	for i, z := range ordered {
		remaining := time.Until(deadline)
		if remaining <= 0 || !t.slot(z).lock.LockTimeout(remaining) {
			for j := i - 1; j >= 0; j-- {
				t.Unlock(owner, ordered[j])
			}
			return false
		}
		t.slot(z).owner.Store(owner)
		if t.onAcquire != nil {
			t.onAcquire(z)
		}
	}
	return true
}

// UnlockMultipleZones releases a batch in descending order.
func (t *ZoneLockTable) UnlockMultipleZones(owner uint64, zones []domain.ZoneID) {
	ordered := sortedUnique(zones)
	for i := len(ordered) - 1; i >= 0; i-- {
		t.Unlock(owner, ordered[i])
	}
}
