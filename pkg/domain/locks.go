package domain

// LockLevel is an ordered tag attached to every lock protecting shared
// runtime state. A caller may only acquire a lock whose level is strictly
// greater than the highest level it currently holds; the ordering makes
// circular waits impossible when respected.
type LockLevel int32

// Lock hierarchy levels, shallowest first.
const (
	// LockLevelNone is the state of a caller holding no hierarchy locks.
	LockLevelNone LockLevel = iota
	// LockLevelService guards service locator and lifecycle state.
	LockLevelService
	// LockLevelZone guards zone lock tables and zone-kind state.
	LockLevelZone
	// LockLevelMaterial guards material registry state.
	LockLevelMaterial
	// LockLevelSVO guards sparse voxel octree node state.
	LockLevelSVO
	// LockLevelSDF guards signed distance field mirror state.
	LockLevelSDF
)

// String returns the level name used in hierarchy violation logs.
func (l LockLevel) String() string {
	switch l {
	case LockLevelNone:
		return "none"
	case LockLevelService:
		return "service"
	case LockLevelZone:
		return "zone"
	case LockLevelMaterial:
		return "material"
	case LockLevelSVO:
		return "svo"
	case LockLevelSDF:
		return "sdf"
	default:
		return "unknown"
	}
}
