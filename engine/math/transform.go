package math

// Transform is a local translation, rotation and scale.
type Transform struct {
	Position Vec3
	Rotation Quaternion
	Scale    Vec3
}

func NewTransform() Transform {
	return Transform{
		Rotation: NewQuatIdentity(),
		Scale:    NewVec3One(),
	}
}

func NewTransformFromPosition(position Vec3) Transform {
	t := NewTransform()
	t.Position = position
	return t
}

func NewTransformFromPositionRotationScale(position Vec3, rotation Quaternion, scale Vec3) Transform {
	return Transform{
		Position: position,
		Rotation: rotation,
		Scale:    scale,
	}
}

// Local returns scale, then rotation, then translation as one matrix.
func (t Transform) Local() Mat4 {
	r := t.Rotation.ToMat4()
	tr := r.Mul(NewMat4Translation(t.Position))
	s := NewMat4Scale(t.Scale)
	return s.Mul(tr)
}
