// Package stone is the reference material plugin: the base rock family
// every world ships with.
package stone

import (
	"github.com/AgenticGames/miningspice/pkg/domain"
	"github.com/AgenticGames/miningspice/pkg/pluginapi"
)

// Plugin declares the stone material family.
type Plugin struct{}

// New constructs a stone plugin instance.
func New() Plugin { return Plugin{} }

// Name returns the plugin identifier.
func (Plugin) Name() string { return "stone" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "1.0.0" }

// Register declares the rock types, their inheritance, and their blend
// relationships.
func (Plugin) Register(catalog pluginapi.Catalog) error {
	catalog.DeclareType(pluginapi.TypeDecl{
		Name:         "stone",
		Priority:     0,
		Capabilities: domain.CapabilityMineable | domain.CapabilityDestructible,
		Hardness:     3.0,
		Resistance:   2.5,
		Value:        1.0,
		Properties: []domain.Property{
			{Name: "density", Kind: domain.PropertyFloat, Float: 2.6, Inheritable: true},
			{Name: "porous", Kind: domain.PropertyBool, Bool: false, Inheritable: true},
		},
	})
	catalog.DeclareType(pluginapi.TypeDecl{
		Name:              "granite",
		Parent:            "stone",
		Priority:          10,
		InheritFromParent: true,
		Capabilities:      domain.CapabilityResource,
		Hardness:          6.0,
		Value:             2.0,
		Properties: []domain.Property{
			{Name: "density", Kind: domain.PropertyFloat, Float: 2.75, Inheritable: true},
			{Name: "grain", Kind: domain.PropertyString, String: "coarse"},
		},
	})
	catalog.DeclareType(pluginapi.TypeDecl{
		Name:              "basalt",
		Parent:            "stone",
		Priority:          10,
		InheritFromParent: true,
		Hardness:          5.0,
		Properties: []domain.Property{
			{Name: "density", Kind: domain.PropertyFloat, Float: 3.0, Inheritable: true},
		},
	})
	catalog.DeclareType(pluginapi.TypeDecl{
		Name:              "obsidian",
		Parent:            "basalt",
		Priority:          20,
		InheritFromParent: true,
		Capabilities:      domain.CapabilityEmissive | domain.CapabilityResource,
		Hardness:          8.0,
		Resistance:        6.0,
		Value:             8.0,
		Properties: []domain.Property{
			{Name: "glassy", Kind: domain.PropertyBool, Bool: true},
		},
	})
	catalog.DeclareType(pluginapi.TypeDecl{
		Name:              "marble",
		Parent:            "stone",
		Priority:          15,
		InheritFromParent: true,
		Capabilities:      domain.CapabilityResource,
		Hardness:          4.0,
		Value:             5.0,
	})
	catalog.DeclareType(pluginapi.TypeDecl{
		Name:              "quartz",
		Parent:            "stone",
		Priority:          25,
		InheritFromParent: true,
		Capabilities:      domain.CapabilityEmissive | domain.CapabilityResource,
		Hardness:          7.0,
		Value:             6.0,
	})

	catalog.DeclareRelationship(pluginapi.RelationshipDecl{
		Source: "granite", Target: "basalt", Score: 0.8, CanBlend: true, Bidirectional: true,
	})
	catalog.DeclareRelationship(pluginapi.RelationshipDecl{
		Source: "basalt", Target: "obsidian", Score: 0.9, CanBlend: true,
	})
	catalog.DeclareRelationship(pluginapi.RelationshipDecl{
		Source: "granite", Target: "marble", Score: 0.5, CanBlend: false, Bidirectional: true,
	})
	catalog.DeclareRelationship(pluginapi.RelationshipDecl{
		Source: "marble", Target: "quartz", Score: 0.7, CanBlend: true,
	})

	// Obsidian fields are large and repetitive; trade CPU for ratio.
	catalog.DeclareCompression("obsidian", domain.CompressionProfile{Codec: "zstd", Level: 4})

	catalog.DeclareZoneKind(pluginapi.ZoneKindDecl{
		Name:         "bedrock",
		Span:         4,
		Hibernatable: true,
		Txn:          domain.DefaultTxnConfig(),
	})
	return nil
}
