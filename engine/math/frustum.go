package math

// Plane stores a normal and distance so that Normal.Dot(p) + Distance >= 0 is the inside.
type Plane struct {
	Normal   Vec3
	Distance float32
}

func (p Plane) SignedDistance(point Vec3) float32 {
	return p.Normal.Dot(point) + p.Distance
}

func (p Plane) normalized() Plane {
	l := p.Normal.Length()
	if l == 0 {
		return p
	}
	return Plane{Normal: p.Normal.MulScalar(1 / l), Distance: p.Distance / l}
}

const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

type Frustum struct {
	Planes [6]Plane
}

/**
 * @brief Extracts the six clip planes of a view-projection matrix.
 * Clip space follows the matrices built by NewMat4Perspective, -w <= z <= w.
 *
 * @param m The combined view * projection matrix.
 * @return The frustum with normalized, inward facing planes.
 */
func NewFrustumFromMatrix(m Mat4) Frustum {
	col := func(c int) Vec4 {
		return Vec4{m.Data[c], m.Data[4+c], m.Data[8+c], m.Data[12+c]}
	}
	plane := func(a, b Vec4, sign float32) Plane {
		return Plane{
			Normal:   Vec3{a.X + sign*b.X, a.Y + sign*b.Y, a.Z + sign*b.Z},
			Distance: a.W + sign*b.W,
		}.normalized()
	}
	w := col(3)
	x, y, z := col(0), col(1), col(2)

	f := Frustum{}
	f.Planes[FrustumLeft] = plane(w, x, 1)
	f.Planes[FrustumRight] = plane(w, x, -1)
	f.Planes[FrustumBottom] = plane(w, y, 1)
	f.Planes[FrustumTop] = plane(w, y, -1)
	f.Planes[FrustumNear] = plane(w, z, 1)
	f.Planes[FrustumFar] = plane(w, z, -1)
	return f
}

// IntersectsAABB reports false only when the box lies fully outside one plane.
func (f Frustum) IntersectsAABB(b AABB) bool {
	for _, p := range f.Planes {
		// the corner furthest along the plane normal
		positive := Vec3{b.Min.X, b.Min.Y, b.Min.Z}
		if p.Normal.X >= 0 {
			positive.X = b.Max.X
		}
		if p.Normal.Y >= 0 {
			positive.Y = b.Max.Y
		}
		if p.Normal.Z >= 0 {
			positive.Z = b.Max.Z
		}
		if p.SignedDistance(positive) < 0 {
			return false
		}
	}
	return true
}
