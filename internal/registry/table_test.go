package registry

import (
	"sync"
	"testing"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

func TestVersionedTableVersioning(t *testing.T) {
	tbl := NewVersionedTable[string]()
	if tbl.Version() != 0 {
		t.Fatalf("fresh version = %d", tbl.Version())
	}
	tbl.Put(1, "granite")
	v1 := tbl.Version()
	if v1 == 0 {
		t.Fatal("put did not bump the version")
	}
	if _, ok := tbl.Get(1); !ok {
		t.Fatal("get")
	}
	// Reads never move the version.
	if tbl.Version() != v1 {
		t.Fatal("read bumped the version")
	}

	got, v, ok := tbl.GetVersioned(1)
	if !ok || got != "granite" || v != v1 {
		t.Fatalf("GetVersioned = %q %d %v", got, v, ok)
	}

	tbl.Delete(1)
	if tbl.Version() == v1 {
		t.Fatal("delete did not bump the version")
	}
	if _, ok := tbl.Get(1); ok {
		t.Fatal("deleted entry still readable")
	}
}

func TestVersionedTableConcurrentReaders(t *testing.T) {
	tbl := NewVersionedTable[int]()
	for i := uint32(0); i < 100; i++ {
		tbl.Put(i, int(i))
	}
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := uint32(0); i < 100; i++ {
				if v, ok := tbl.Get(i); !ok || v != int(i) {
					t.Errorf("get %d = %d %v", i, v, ok)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestDomainCacheVersionValidation(t *testing.T) {
	cache := NewDomainCache(nil)
	rec := &domain.TypeRecord{ID: 1, Name: "granite"}

	if _, ok := cache.Get(0, 1, 1); ok {
		t.Fatal("empty cache hit")
	}
	cache.Put(0, 1, rec, 1)
	if got, ok := cache.Get(0, 1, 1); !ok || got.Name != "granite" {
		t.Fatalf("hit = %v %v", got, ok)
	}
	// A later global version makes the entry stale.
	if _, ok := cache.Get(0, 1, 2); ok {
		t.Fatal("stale entry served")
	}

	cache.Put(0, 1, rec, 2)
	if dom, n := cache.HottestDomain(1); dom != 0 || n == 0 {
		t.Fatalf("hottest = %d %d", dom, n)
	}
	cache.Invalidate()
	if _, ok := cache.Get(0, 1, 2); ok {
		t.Fatal("invalidated entry served")
	}
}
