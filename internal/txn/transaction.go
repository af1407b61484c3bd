package txn

import (
	"sort"

	"github.com/google/uuid"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

// Transaction is one optimistic unit of work. It is owned by the invoking
// task and must never be shared across goroutines. Reads record
// (resource, version-at-read) pairs; writes are buffered as apply
// functions and become visible only inside Commit.
type Transaction struct {
	trace    uuid.UUID
	cfg      domain.TxnConfig
	mgr      *Manager
	attempts int

	readSet map[domain.ResourceRef]uint64
	writes  []stagedWrite
	staged  map[domain.ResourceRef]struct{}
}

type stagedWrite struct {
	ref   domain.ResourceRef
	apply func()
}

// Trace returns the transaction's trace ID used in logs.
func (tx *Transaction) Trace() uuid.UUID { return tx.trace }

// Attempt returns the 1-based attempt number of the current execution.
func (tx *Transaction) Attempt() int { return tx.attempts }

// snapshot records the current version of every named resource into the
// read-set. No locks are held; this is the optimistic fast phase.
func (tx *Transaction) snapshot(zones []domain.ZoneID, materials []domain.TypeID) {
	tx.readSet = make(map[domain.ResourceRef]uint64, len(zones)+len(materials))
	for _, z := range zones {
		ref := domain.ZoneRef(z)
		tx.readSet[ref] = tx.mgr.versions.Version(ref)
	}
	for _, m := range materials {
		ref := domain.MaterialRef(m)
		tx.readSet[ref] = tx.mgr.versions.Version(ref)
	}
}

// ReadVersion returns the version snapshotted for a resource, recording it
// first when the transaction had not read it yet.
func (tx *Transaction) ReadVersion(ref domain.ResourceRef) uint64 {
	if v, ok := tx.readSet[ref]; ok {
		return v
	}
	v := tx.mgr.versions.Version(ref)
	tx.readSet[ref] = v
	return v
}

// StageWrite buffers a write against a resource. The apply function runs
// during Commit while the resource's lock is held; it must not block. A
// nil apply stages a pure version bump.
func (tx *Transaction) StageWrite(ref domain.ResourceRef, apply func()) {
	tx.writes = append(tx.writes, stagedWrite{ref: ref, apply: apply})
	if tx.staged == nil {
		tx.staged = make(map[domain.ResourceRef]struct{})
	}
	tx.staged[ref] = struct{}{}
}

// Validate re-reads every entry in the read-set and returns the resources
// whose version moved since the snapshot. An empty result means the
// transaction may commit.
func (tx *Transaction) Validate() []domain.ResourceRef {
	var conflicts []domain.ResourceRef
	for ref, seen := range tx.readSet {
		if tx.mgr.versions.Version(ref) != seen {
			conflicts = append(conflicts, ref)
		}
	}
	return conflicts
}

// readZones returns the snapshot's zones sorted ascending, the order every
// multi-zone acquisition uses.
func (tx *Transaction) readZones() []domain.ZoneID {
	var zones []domain.ZoneID
	for ref := range tx.readSet {
		if ref.Kind == domain.ResourceZone {
			zones = append(zones, ref.Zone)
		}
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i] < zones[j] })
	return zones
}

// stagedRefs returns the write-set resources split by kind, each sorted
// ascending for deterministic lock order.
func (tx *Transaction) stagedRefs() (zones []domain.ZoneID, materials []domain.TypeID) {
	for ref := range tx.staged {
		switch ref.Kind {
		case domain.ResourceZone:
			zones = append(zones, ref.Zone)
		case domain.ResourceMaterial:
			materials = append(materials, ref.Material)
		}
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i] < zones[j] })
	sort.Slice(materials, func(i, j int) bool { return materials[i] < materials[j] })
	return zones, materials
}

// reset clears buffered writes before a retry re-executes from the top.
func (tx *Transaction) reset() {
	tx.writes = nil
	tx.staged = nil
	tx.readSet = nil
}
