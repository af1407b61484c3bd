// Package pluginapi is the stable contract between the engine and
// content plugins. Plugins declare material types, relationships, zone
// kinds, and compression profiles into a Catalog; the engine installs
// the accumulated declarations into its registries during startup.
package pluginapi

import (
	"github.com/AgenticGames/miningspice/pkg/domain"
)

// TypeDecl declares a material type. Parent, when set, names another
// declared (or already registered) type; declaration order inside a
// plugin does not matter.
type TypeDecl struct {
	Name     string
	Parent   string
	Priority int32
	// InheritFromParent copies the parent's inheritable properties onto
	// this type after registration.
	InheritFromParent bool
	Capabilities      domain.CapabilityFlags
	// Hardness, Resistance, and Value override the defaults when
	// non-zero.
	Hardness   float64
	Resistance float64
	Value      float64
	Properties []domain.Property
}

// RelationshipDecl declares a directed compatibility edge between two
// declared type names.
type RelationshipDecl struct {
	Source        string
	Target        string
	Score         float64
	CanBlend      bool
	Bidirectional bool
}

// ZoneKindDecl declares a zone kind with its transaction defaults.
type ZoneKindDecl struct {
	Name         string
	Span         float64
	Hibernatable bool
	Txn          domain.TxnConfig
}

// Catalog accumulates plugin declarations. Implementations defer
// validation to installation time so plugins can declare in any order.
type Catalog interface {
	DeclareType(decl TypeDecl)
	DeclareRelationship(decl RelationshipDecl)
	DeclareZoneKind(decl ZoneKindDecl)
	// DeclareCompression attaches a compression profile to a declared
	// type name.
	DeclareCompression(typeName string, profile domain.CompressionProfile)
}

// Plugin is implemented by content packages.
type Plugin interface {
	Name() string
	Version() string
	Register(Catalog) error
}

// Version is the plugin API contract version.
const Version = "v1"
