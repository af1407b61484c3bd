// Package txn implements zone-based optimistic concurrency: transactions
// snapshot resource versions lock-free, buffer their writes, and commit
// only after validating that no conflicting write landed in between.
package txn

import (
	"sync"
	"sync/atomic"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

// VersionTable tracks a monotonic version per zone and material resource.
// Reads are wait-free; writers bump versions only while holding the
// resource's commit lock.
type VersionTable struct {
	m sync.Map // domain.ResourceRef -> *atomic.Uint64
}

// NewVersionTable returns an empty table. Unwritten resources read as
// version zero.
func NewVersionTable() *VersionTable {
	return &VersionTable{}
}

func (t *VersionTable) slot(ref domain.ResourceRef) *atomic.Uint64 {
	if v, ok := t.m.Load(ref); ok {
		return v.(*atomic.Uint64)
	}
	v, _ := t.m.LoadOrStore(ref, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

// Version returns the current version of a resource.
func (t *VersionTable) Version(ref domain.ResourceRef) uint64 {
	if v, ok := t.m.Load(ref); ok {
		return v.(*atomic.Uint64).Load()
	}
	return 0
}

// Bump increments a resource's version and returns the new value. Callers
// must hold the resource's commit lock.
func (t *VersionTable) Bump(ref domain.ResourceRef) uint64 {
	return t.slot(ref).Add(1)
}
