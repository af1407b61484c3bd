// Package hibernate evicts idle zones out of hot memory: zone images are
// compressed, written to the snapshot store, and recorded in a durable
// catalog so they can be located and restored after a process restart.
package hibernate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

// CatalogEntry records one hibernated zone: where its image lives and
// what is needed to restore it.
type CatalogEntry struct {
	Kind          string
	Zone          domain.ZoneID
	Key           string
	Codec         string
	Driver        string
	RawSize       int64
	StoredSize    int64
	ETag          string
	SchemaVersion uint32
	HibernatedAt  time.Time
}

// Catalog is the durable index of hibernated zones. Implementations are
// safe for concurrent use. Record replaces any previous entry for the
// same (kind, zone).
type Catalog interface {
	Record(ctx context.Context, entry CatalogEntry) error
	Lookup(ctx context.Context, kind string, zone domain.ZoneID) (CatalogEntry, bool, error)
	Remove(ctx context.Context, kind string, zone domain.ZoneID) (bool, error)
	ListKind(ctx context.Context, kind string) ([]CatalogEntry, error)
	Close() error
}

type memKey struct {
	kind string
	zone domain.ZoneID
}

// MemoryCatalog implements Catalog in process memory, for tests.
type MemoryCatalog struct {
	mu      sync.RWMutex
	entries map[memKey]CatalogEntry
}

// NewMemoryCatalog returns an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{entries: make(map[memKey]CatalogEntry)}
}

func (c *MemoryCatalog) Record(_ context.Context, entry CatalogEntry) error {
	c.mu.Lock()
	c.entries[memKey{entry.Kind, entry.Zone}] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryCatalog) Lookup(_ context.Context, kind string, zone domain.ZoneID) (CatalogEntry, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[memKey{kind, zone}]
	c.mu.RUnlock()
	return entry, ok, nil
}

func (c *MemoryCatalog) Remove(_ context.Context, kind string, zone domain.ZoneID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := memKey{kind, zone}
	if _, ok := c.entries[k]; !ok {
		return false, nil
	}
	delete(c.entries, k)
	return true, nil
}

func (c *MemoryCatalog) ListKind(_ context.Context, kind string) ([]CatalogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []CatalogEntry
	for k, v := range c.entries {
		if k.kind == kind {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Zone < out[j].Zone })
	return out, nil
}

func (c *MemoryCatalog) Close() error { return nil }
