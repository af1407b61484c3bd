package registry

import (
	"sync"
	"sync/atomic"

	"github.com/AgenticGames/miningspice/internal/locking"
	"github.com/AgenticGames/miningspice/pkg/domain"
)

// DomainCache holds one read cache of type records per hardware memory
// domain. An entry is valid only while its captured version equals the
// authoritative table's global version; anything else falls back to the
// locked lookup and repopulates. The cache is an injected collaborator,
// not hidden static state.
type DomainCache struct {
	topo    *locking.Topology
	domains []*domainShard
}

type domainShard struct {
	mu      sync.RWMutex
	entries map[domain.TypeID]*cacheEntry
}

type cacheEntry struct {
	record   *domain.TypeRecord
	version  uint64
	accesses atomic.Uint64
}

// NewDomainCache builds a cache shard per detected domain.
func NewDomainCache(topo *locking.Topology) *DomainCache {
	if topo == nil {
		topo = locking.DetectTopology()
	}
	shards := make([]*domainShard, topo.DomainCount())
	for i := range shards {
		shards[i] = &domainShard{entries: make(map[domain.TypeID]*cacheEntry)}
	}
	return &DomainCache{topo: topo, domains: shards}
}

// Topology returns the topology the cache was built for.
func (c *DomainCache) Topology() *locking.Topology { return c.topo }

func (c *DomainCache) shard(domainID int) *domainShard {
	if domainID < 0 || domainID >= len(c.domains) {
		domainID = 0
	}
	return c.domains[domainID]
}

// Get returns the domain-local copy of a record when its version still
// matches current. A hit also records an access sample for placement.
// Callers own the returned record; the cached one is never handed out.
func (c *DomainCache) Get(domainID int, id domain.TypeID, current uint64) (*domain.TypeRecord, bool) {
	s := c.shard(domainID)
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || e.version != current {
		return nil, false
	}
	e.accesses.Add(1)
	return e.record.Clone(), true
}

// Put repopulates the domain's entry after an authoritative lookup.
func (c *DomainCache) Put(domainID int, id domain.TypeID, rec *domain.TypeRecord, version uint64) {
	s := c.shard(domainID)
	s.mu.Lock()
	prev := s.entries[id]
	e := &cacheEntry{record: rec, version: version}
	if prev != nil {
		e.accesses.Store(prev.accesses.Load() + 1)
	} else {
		e.accesses.Store(1)
	}
	s.entries[id] = e
	s.mu.Unlock()
}

// Invalidate drops every cached entry; used by Clear and shutdown.
func (c *DomainCache) Invalidate() {
	for _, s := range c.domains {
		s.mu.Lock()
		s.entries = make(map[domain.TypeID]*cacheEntry)
		s.mu.Unlock()
	}
}

// HottestDomain reports which domain reads a type most, along with its
// access count. Used by the placement optimizer to migrate hot types
// toward their dominant readers.
func (c *DomainCache) HottestDomain(id domain.TypeID) (domainID int, accesses uint64) {
	domainID = -1
	for i, s := range c.domains {
		s.mu.RLock()
		e, ok := s.entries[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		if n := e.accesses.Load(); n > accesses {
			accesses, domainID = n, i
		}
	}
	return domainID, accesses
}

// Prewarm copies a record into the given domain's shard ahead of demand,
// the migration step of placement optimization.
func (c *DomainCache) Prewarm(domainID int, id domain.TypeID, rec *domain.TypeRecord, version uint64) {
	c.Put(domainID, id, rec, version)
}
