package math

import "github.com/chewxy/math32"

// AABB is an axis-aligned bounding box. An empty box has Min > Max.
type AABB struct {
	Min Vec3
	Max Vec3
}

func NewAABB(min, max Vec3) AABB {
	return AABB{Min: min, Max: max}
}

// NewAABBEmpty returns the identity element of Union.
func NewAABBEmpty() AABB {
	inf := math32.Inf(1)
	return AABB{
		Min: NewVec3Splat(inf),
		Max: NewVec3Splat(-inf),
	}
}

// NewAABBFromPoints returns the tightest box containing every point.
func NewAABBFromPoints(points []Vec3) AABB {
	b := NewAABBEmpty()
	for _, p := range points {
		b = b.Extend(p)
	}
	return b
}

func (b AABB) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

func (b AABB) Extend(p Vec3) AABB {
	return AABB{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

func (b AABB) Union(other AABB) AABB {
	return AABB{Min: b.Min.Min(other.Min), Max: b.Max.Max(other.Max)}
}

func (b AABB) Center() Vec3 {
	return b.Min.Add(b.Max).MulScalar(0.5)
}

func (b AABB) Extent() Vec3 {
	return b.Max.Sub(b.Min)
}

// LargestAxis returns 0, 1 or 2 for the axis with the biggest extent. Ties prefer the lower axis.
func (b AABB) LargestAxis() int {
	e := b.Extent()
	axis := 0
	if e.Y > e.Axis(axis) {
		axis = 1
	}
	if e.Z > e.Axis(axis) {
		axis = 2
	}
	return axis
}

func (b AABB) Corners() [8]Vec3 {
	return [8]Vec3{
		{b.Min.X, b.Min.Y, b.Min.Z},
		{b.Max.X, b.Min.Y, b.Min.Z},
		{b.Min.X, b.Max.Y, b.Min.Z},
		{b.Max.X, b.Max.Y, b.Min.Z},
		{b.Min.X, b.Min.Y, b.Max.Z},
		{b.Max.X, b.Min.Y, b.Max.Z},
		{b.Min.X, b.Max.Y, b.Max.Z},
		{b.Max.X, b.Max.Y, b.Max.Z},
	}
}

// Transform returns the box around the 8 transformed corners.
func (b AABB) Transform(m Mat4) AABB {
	out := NewAABBEmpty()
	for _, c := range b.Corners() {
		out = out.Extend(c.Transform(m))
	}
	return out
}

func (b AABB) Compare(other AABB, tolerance float32) bool {
	return b.Min.Compare(other.Min, tolerance) && b.Max.Compare(other.Max, tolerance)
}
