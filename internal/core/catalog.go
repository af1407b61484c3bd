package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AgenticGames/miningspice/internal/compress"
	"github.com/AgenticGames/miningspice/internal/registry"
	"github.com/AgenticGames/miningspice/pkg/domain"
	"github.com/AgenticGames/miningspice/pkg/pluginapi"
)

// PluginCatalog accumulates plugin declarations until installation.
// Plugins declare in any order; Install resolves parent edges and
// registers parents ahead of children.
type PluginCatalog struct {
	mu            sync.Mutex
	types         []pluginapi.TypeDecl
	relationships []pluginapi.RelationshipDecl
	zoneKinds     []pluginapi.ZoneKindDecl
	compression   map[string]domain.CompressionProfile
}

// NewPluginCatalog constructs an empty catalog.
func NewPluginCatalog() *PluginCatalog {
	return &PluginCatalog{compression: make(map[string]domain.CompressionProfile)}
}

func (c *PluginCatalog) DeclareType(decl pluginapi.TypeDecl) {
	c.mu.Lock()
	c.types = append(c.types, decl)
	c.mu.Unlock()
}

func (c *PluginCatalog) DeclareRelationship(decl pluginapi.RelationshipDecl) {
	c.mu.Lock()
	c.relationships = append(c.relationships, decl)
	c.mu.Unlock()
}

func (c *PluginCatalog) DeclareZoneKind(decl pluginapi.ZoneKindDecl) {
	c.mu.Lock()
	c.zoneKinds = append(c.zoneKinds, decl)
	c.mu.Unlock()
}

func (c *PluginCatalog) DeclareCompression(typeName string, profile domain.CompressionProfile) {
	c.mu.Lock()
	c.compression[typeName] = profile
	c.mu.Unlock()
}

// typeOrder sorts declarations so every parent precedes its children.
// Unknown parents (neither declared nor already registered) surface as
// errors at registration time, not here.
func typeOrder(decls []pluginapi.TypeDecl) []pluginapi.TypeDecl {
	byName := make(map[string]int, len(decls))
	for i, d := range decls {
		byName[d.Name] = i
	}
	var ordered []pluginapi.TypeDecl
	visited := make(map[string]bool, len(decls))
	var visit func(i int)
	visit = func(i int) {
		d := decls[i]
		if visited[d.Name] {
			return
		}
		visited[d.Name] = true
		if parent, ok := byName[d.Parent]; ok && d.Parent != d.Name {
			visit(parent)
		}
		ordered = append(ordered, d)
	}
	idx := make([]int, len(decls))
	for i := range decls {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return decls[idx[a]].Name < decls[idx[b]].Name })
	for _, i := range idx {
		visit(i)
	}
	return ordered
}

// Install registers the accumulated declarations into the registries and
// compression policy, then clears the catalog.
func (c *PluginCatalog) Install(materials *registry.MaterialRegistry, zones *registry.ZoneKindRegistry, policy *compress.Policy) error {
	c.mu.Lock()
	types := c.types
	relationships := c.relationships
	zoneKinds := c.zoneKinds
	compression := c.compression
	c.types = nil
	c.relationships = nil
	c.zoneKinds = nil
	c.compression = make(map[string]domain.CompressionProfile)
	c.mu.Unlock()

	ids := make(map[string]domain.TypeID, len(types))
	for _, decl := range typeOrder(types) {
		id := materials.RegisterType(decl.Name, decl.Priority, decl.Parent)
		if id == domain.InvalidTypeID {
			return fmt.Errorf("install type %q: registration failed", decl.Name)
		}
		ids[decl.Name] = id
		if decl.Capabilities != domain.CapabilityNone {
			materials.SetCapabilities(id, decl.Capabilities)
		}
		if decl.Hardness != 0 || decl.Resistance != 0 || decl.Value != 0 {
			rec, _ := materials.GetTypeInfo(id)
			h, r, v := rec.Hardness, rec.Resistance, rec.Value
			if decl.Hardness != 0 {
				h = decl.Hardness
			}
			if decl.Resistance != 0 {
				r = decl.Resistance
			}
			if decl.Value != 0 {
				v = decl.Value
			}
			materials.SetBaselines(id, h, r, v)
		}
		for _, p := range decl.Properties {
			if !materials.SetProperty(id, p) {
				return fmt.Errorf("install type %q: property %q rejected", decl.Name, p.Name)
			}
		}
		if decl.InheritFromParent && decl.Parent != "" {
			parentID, ok := ids[decl.Parent]
			if !ok {
				parentID, ok = materials.GetTypeID(decl.Parent)
			}
			if ok {
				materials.InheritPropertiesFromParent(id, parentID, false)
			}
		}
	}

	for _, rel := range relationships {
		relID := materials.RegisterRelationship(rel.Source, rel.Target, rel.Score, rel.CanBlend, rel.Bidirectional)
		if relID == domain.InvalidRelationshipID {
			return fmt.Errorf("install relationship %s->%s: registration failed", rel.Source, rel.Target)
		}
	}

	for name, profile := range compression {
		id, ok := materials.GetTypeID(name)
		if !ok {
			return fmt.Errorf("compression profile for undeclared type %q", name)
		}
		if err := policy.RegisterTypeCompression(id, profile); err != nil {
			return fmt.Errorf("install compression for %q: %w", name, err)
		}
	}

	for _, kind := range zoneKinds {
		if id := zones.RegisterKind(kind.Name, kind.Span, kind.Txn, kind.Hibernatable); id == domain.InvalidTypeID {
			return fmt.Errorf("install zone kind %q: registration failed", kind.Name)
		}
	}
	return nil
}
