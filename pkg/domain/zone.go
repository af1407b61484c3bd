package domain

// ZoneID identifies a fixed-size spatial partition used as the unit of
// transactional locking.
type ZoneID int64

// DefaultZoneSpan is the edge length of a zone in world units. Valid spans
// are between MinZoneSpan and MaxZoneSpan; configuration outside that range
// is clamped.
const (
	DefaultZoneSpan = 4.0
	MinZoneSpan     = 2.0
	MaxZoneSpan     = 4.0
)

// ZoneCoord is an integer zone grid coordinate.
type ZoneCoord struct {
	X, Y, Z int32
}

// zone IDs pack the three signed 21-bit grid coordinates into one int64,
// leaving the top bit clear so IDs stay positive for in-range coordinates.
const zoneCoordBits = 21

// ID returns the packed zone identifier for the coordinate.
func (c ZoneCoord) ID() ZoneID {
	const mask = (1 << zoneCoordBits) - 1
	x := int64(c.X) & mask
	y := int64(c.Y) & mask
	z := int64(c.Z) & mask
	return ZoneID(x<<(2*zoneCoordBits) | y<<zoneCoordBits | z)
}

// Coord unpacks a zone identifier back into its grid coordinate.
func (id ZoneID) Coord() ZoneCoord {
	const mask = (1 << zoneCoordBits) - 1
	sext := func(v int64) int32 {
		if v&(1<<(zoneCoordBits-1)) != 0 {
			v |= ^int64(mask)
		}
		return int32(v)
	}
	v := int64(id)
	return ZoneCoord{
		X: sext(v >> (2 * zoneCoordBits) & mask),
		Y: sext(v >> zoneCoordBits & mask),
		Z: sext(v & mask),
	}
}

// ZoneForPosition maps a world-space position to the zone containing it for
// the given span. Spans outside the valid range are clamped.
func ZoneForPosition(x, y, z, span float64) ZoneID {
	if span < MinZoneSpan {
		span = MinZoneSpan
	} else if span > MaxZoneSpan {
		span = MaxZoneSpan
	}
	floor := func(v float64) int32 {
		q := v / span
		i := int32(q)
		if q < 0 && float64(i) != q {
			i--
		}
		return i
	}
	return ZoneCoord{X: floor(x), Y: floor(y), Z: floor(z)}.ID()
}

// RegionKey names a hibernation region: a contiguous block of zones managed
// as one snapshot unit.
type RegionKey string
