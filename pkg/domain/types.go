// Package domain defines the core value types shared across the mining
// runtime: registered type records, relationships, zones, lock hierarchy
// levels, and the task and transaction configuration surface.
package domain

import "time"

// TypeID identifies a registered type record. Zero is reserved and always
// invalid; every successful registration returns a strictly positive ID.
type TypeID uint32

// InvalidTypeID is the sentinel returned by registration and lookup
// failures.
const InvalidTypeID TypeID = 0

// RelationshipID identifies a registered relationship record. Zero is
// reserved invalid, matching TypeID semantics.
type RelationshipID uint32

// InvalidRelationshipID is the sentinel for relationship failures.
const InvalidRelationshipID RelationshipID = 0

// CapabilityFlags is a bitmask of behaviors a registered type supports.
type CapabilityFlags uint32

// Capability bits usable on material and zone-kind records.
const (
	// CapabilityNone is the default empty mask.
	CapabilityNone CapabilityFlags = 0
	// CapabilityMineable marks a type whose voxels may be removed by tools.
	CapabilityMineable CapabilityFlags = 1 << iota
	// CapabilityBlendable marks a type that participates in boundary blends.
	CapabilityBlendable
	// CapabilityFluid marks a type simulated as a fluid.
	CapabilityFluid
	// CapabilityEmissive marks a type contributing light.
	CapabilityEmissive
	// CapabilityDestructible marks a type with fracture behavior.
	CapabilityDestructible
	// CapabilityResource marks a type yielding harvestable resources.
	CapabilityResource
)

// Union returns the bitwise union of the two masks.
func (c CapabilityFlags) Union(other CapabilityFlags) CapabilityFlags { return c | other }

// Has reports whether every bit of want is present in the mask.
func (c CapabilityFlags) Has(want CapabilityFlags) bool { return c&want == want }

// PropertyKind enumerates the value kinds a type property may carry.
type PropertyKind uint8

// Supported property value kinds.
const (
	PropertyBool PropertyKind = iota
	PropertyInt
	PropertyFloat
	PropertyString
)

// Property is a named typed value attached to a type record. Inheritable
// properties are copied to children by InheritPropertiesFromParent.
type Property struct {
	Name        string
	Kind        PropertyKind
	Bool        bool
	Int         int64
	Float       float64
	String      string
	Inheritable bool
}

// Baseline scalar multiplier defaults. A child only receives the parent's
// multiplier for fields still holding these values.
const (
	DefaultHardness   = 1.0
	DefaultResistance = 1.0
	DefaultValue      = 0.0
)

// TypeRecord is a registered material or zone-kind type. Records are owned
// exclusively by their registry and referenced by ID everywhere else; they
// are mutated in place under the registry lock and never removed except by
// Clear or shutdown.
type TypeRecord struct {
	ID       TypeID
	Name     string
	ParentID TypeID // zero when the type is a root
	Priority int32

	// SchemaVersion increments monotonically via SetTypeVersion.
	SchemaVersion uint32

	Capabilities CapabilityFlags

	// Baseline scalar multipliers consumed by mining gameplay.
	Hardness   float64
	Resistance float64
	Value      float64

	// Properties is keyed by property name.
	Properties map[string]Property

	// RelatedTypeIDs are explicitly declared dependencies consumed by
	// dependency-ordered parallel initialization, in addition to ParentID.
	RelatedTypeIDs []TypeID

	// MemoryChannel is the per-type channel slot allocated by the memory
	// manager collaborator, or negative when none was allocated.
	MemoryChannel int32

	RegisteredAt time.Time
}

// HasMemoryChannel reports whether a memory channel was allocated for the
// type.
func (r *TypeRecord) HasMemoryChannel() bool { return r.MemoryChannel >= 0 }

// Clone returns a deep copy safe to hand to callers outside the registry
// lock.
func (r *TypeRecord) Clone() *TypeRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Properties != nil {
		cp.Properties = make(map[string]Property, len(r.Properties))
		for k, v := range r.Properties {
			cp.Properties[k] = v
		}
	}
	cp.RelatedTypeIDs = append([]TypeID(nil), r.RelatedTypeIDs...)
	return &cp
}

// Relationship is a directed edge between two registered types with a
// compatibility score in [0,1]. Bidirectional relationships are stored once
// and indexed from both endpoints.
type Relationship struct {
	ID            RelationshipID
	SourceID      TypeID
	TargetID      TypeID
	Score         float64
	CanBlend      bool
	Bidirectional bool
	SchemaVersion uint32
}

// ClampScore returns s limited to the valid compatibility range [0,1].
func ClampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
