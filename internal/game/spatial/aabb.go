// Package spatial provides the sweep-and-prune broad phase used by the
// simulation: a fixed-capacity edge list projected on the X axis, kept
// sorted by insertion sort, and a single-pass sweep reporting overlapping
// pairs through a synchronous callback.
//
// All storage is preallocated at construction time and the active set holds
// integer indices into the edge list (not pointers), so a sweep never
// allocates and reentrant removals stay visible to the scan.
package spatial

import "math"

// Vec2 is a point in screen space. Coordinates are unsigned and bounded by
// the playfield (320x224 on the reference hardware).
type Vec2 struct {
	X, Y uint16
}

// AABB is an axis-aligned bounding box. Min must not exceed Max on either axis.
type AABB struct {
	Min Vec2
	Max Vec2
}

// NewAABB builds a box from its top-left corner and size. The far corner is
// clamped to math.MaxUint16 so Max never wraps below Min.
func NewAABB(x, y, w, h uint16) AABB {
	return AABB{
		Min: Vec2{X: x, Y: y},
		Max: Vec2{X: clampAdd(x, w), Y: clampAdd(y, h)},
	}
}

func clampAdd(a, b uint16) uint16 {
	if b > math.MaxUint16-a {
		return math.MaxUint16
	}
	return a + b
}

// Width returns the extent on X.
func (b AABB) Width() uint16 { return b.Max.X - b.Min.X }

// Height returns the extent on Y.
func (b AABB) Height() uint16 { return b.Max.Y - b.Min.Y }

// OverlapsX reports whether the X projections overlap. Boxes that only touch
// (equal coordinate) do not overlap.
func (b AABB) OverlapsX(o AABB) bool {
	return b.Min.X < o.Max.X && b.Max.X > o.Min.X
}

// OverlapsY reports whether the Y projections overlap, open interval.
func (b AABB) OverlapsY(o AABB) bool {
	return b.Min.Y < o.Max.Y && b.Max.Y > o.Min.Y
}

// Overlaps is the classic open-interval AABB test on both axes.
func Overlaps(a, b AABB) bool {
	return a.OverlapsX(b) && a.OverlapsY(b)
}

// Kind is the collidability attribute of an entity.
type Kind uint8

const (
	// KindStatic entities never collide with each other; they are only
	// reported when paired with a KindCollidable entity.
	KindStatic Kind = iota
	// KindCollidable entities are reported against anything they overlap.
	KindCollidable
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindCollidable:
		return "collidable"
	default:
		return "unknown"
	}
}

// Entity is anything tracked by the broad phase. The caller owns its
// lifetime and must keep Bounds current before every sweep.
//
// Identity is Go interface equality, so implementations must be comparable;
// in practice a pointer to the caller's entity struct.
type Entity interface {
	Bounds() AABB
	Kind() Kind
}

// CollisionHandler is invoked synchronously for every confirmed pair. It may
// call Remove on either argument but must not call Insert.
type CollisionHandler func(a, b Entity)

// ShouldReport applies the collidability filter: static-vs-static pairs are
// never reported.
func ShouldReport(a, b Entity) bool {
	return a.Kind() == KindCollidable || b.Kind() == KindCollidable
}
