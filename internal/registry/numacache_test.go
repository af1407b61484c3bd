package registry

import (
	"testing"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

func TestDomainCacheHitReturnsIndependentCopy(t *testing.T) {
	c := NewDomainCache(nil)
	rec := &domain.TypeRecord{
		ID:         domain.TypeID(1),
		Name:       "granite",
		Properties: map[string]domain.Property{"density": {Name: "density", Kind: domain.PropertyFloat, Float: 2.7}},
	}
	c.Put(0, rec.ID, rec, 7)

	first, ok := c.Get(0, rec.ID, 7)
	if !ok {
		t.Fatal("expected hit")
	}
	first.Name = "mud"
	first.Properties["density"] = domain.Property{Name: "density", Kind: domain.PropertyFloat, Float: 0.1}

	second, ok := c.Get(0, rec.ID, 7)
	if !ok {
		t.Fatal("expected second hit")
	}
	if second.Name != "granite" {
		t.Fatalf("cached record poisoned: name = %q", second.Name)
	}
	if got := second.Properties["density"].Float; got != 2.7 {
		t.Fatalf("cached record poisoned: density = %v", got)
	}
}

func TestDomainCacheStaleVersionMisses(t *testing.T) {
	c := NewDomainCache(nil)
	rec := &domain.TypeRecord{ID: domain.TypeID(1), Name: "granite", Properties: map[string]domain.Property{}}
	c.Put(0, rec.ID, rec, 3)

	if _, ok := c.Get(0, rec.ID, 4); ok {
		t.Fatal("stale entry served")
	}
	if _, ok := c.Get(0, rec.ID, 3); !ok {
		t.Fatal("current entry missed")
	}
}
