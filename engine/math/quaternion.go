package math

import "github.com/chewxy/math32"

/** @brief A quaternion, used to represent rotational orientation. */
type Quaternion Vec4

func NewQuatIdentity() Quaternion {
	return Quaternion{0, 0, 0, 1.0}
}

/**
 * @brief Creates a quaternion from the given axis and angle.
 *
 * @param axis The axis of rotation. It is expected to be normalized.
 * @param angle The angle of rotation in radians.
 * @return A new unit quaternion.
 */
func NewQuatFromAxisAngle(axis Vec3, angle float32) Quaternion {
	half := 0.5 * angle
	s := math32.Sin(half)
	return Quaternion{s * axis.X, s * axis.Y, s * axis.Z, math32.Cos(half)}.Normalize()
}

// NewQuatFromEuler builds the rotation x, then y, then z (radians).
func NewQuatFromEuler(x, y, z float32) Quaternion {
	qx := NewQuatFromAxisAngle(Vec3{1, 0, 0}, x)
	qy := NewQuatFromAxisAngle(Vec3{0, 1, 0}, y)
	qz := NewQuatFromAxisAngle(Vec3{0, 0, 1}, z)
	return qz.Mul(qy).Mul(qx)
}

func (q Quaternion) Length() float32 {
	return math32.Sqrt(q.Dot(q))
}

func (q Quaternion) Normalize() Quaternion {
	l := q.Length()
	if l == 0 {
		return NewQuatIdentity()
	}
	return Quaternion{q.X / l, q.Y / l, q.Z / l, q.W / l}
}

func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{-q.X, -q.Y, -q.Z, q.W}
}

// Mul returns the Hamilton product q*other, which rotates by other first, then q.
func (q Quaternion) Mul(other Quaternion) Quaternion {
	return Quaternion{
		X: q.W*other.X + q.X*other.W + q.Y*other.Z - q.Z*other.Y,
		Y: q.W*other.Y - q.X*other.Z + q.Y*other.W + q.Z*other.X,
		Z: q.W*other.Z + q.X*other.Y - q.Y*other.X + q.Z*other.W,
		W: q.W*other.W - q.X*other.X - q.Y*other.Y - q.Z*other.Z,
	}
}

func (q Quaternion) Dot(other Quaternion) float32 {
	return q.X*other.X + q.Y*other.Y + q.Z*other.Z + q.W*other.W
}

/**
 * @brief Creates a row-major rotation matrix from the given quaternion.
 *
 * @return A rotation matrix.
 */
func (q Quaternion) ToMat4() Mat4 {
	n := q.Normalize()
	out := NewMat4Identity()

	out.Data[0] = 1.0 - 2.0*(n.Y*n.Y+n.Z*n.Z)
	out.Data[1] = 2.0 * (n.X*n.Y + n.Z*n.W)
	out.Data[2] = 2.0 * (n.X*n.Z - n.Y*n.W)

	out.Data[4] = 2.0 * (n.X*n.Y - n.Z*n.W)
	out.Data[5] = 1.0 - 2.0*(n.X*n.X+n.Z*n.Z)
	out.Data[6] = 2.0 * (n.Y*n.Z + n.X*n.W)

	out.Data[8] = 2.0 * (n.X*n.Z + n.Y*n.W)
	out.Data[9] = 2.0 * (n.Y*n.Z - n.X*n.W)
	out.Data[10] = 1.0 - 2.0*(n.X*n.X+n.Y*n.Y)

	return out
}

/**
 * @brief Calculates spherical linear interpolation of a given percentage
 * between two quaternions.
 */
func (q Quaternion) Slerp(other Quaternion, percentage float32) Quaternion {
	v0 := q.Normalize()
	v1 := other.Normalize()

	dot := v0.Dot(v1)
	// take the shorter path
	if dot < 0.0 {
		v1 = Quaternion{-v1.X, -v1.Y, -v1.Z, -v1.W}
		dot = -dot
	}

	const dotThreshold = float32(0.9995)
	if dot > dotThreshold {
		return Quaternion{
			v0.X + (v1.X-v0.X)*percentage,
			v0.Y + (v1.Y-v0.Y)*percentage,
			v0.Z + (v1.Z-v0.Z)*percentage,
			v0.W + (v1.W-v0.W)*percentage,
		}.Normalize()
	}

	theta0 := math32.Acos(dot)
	theta := theta0 * percentage
	sinTheta := math32.Sin(theta)
	sinTheta0 := math32.Sin(theta0)

	s0 := math32.Cos(theta) - dot*sinTheta/sinTheta0
	s1 := sinTheta / sinTheta0

	return Quaternion{
		v0.X*s0 + v1.X*s1,
		v0.Y*s0 + v1.Y*s1,
		v0.Z*s0 + v1.Z*s1,
		v0.W*s0 + v1.W*s1,
	}
}
