package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const eps = 1e-4

func TestMat4InverseRoundTrip(t *testing.T) {
	tr := NewTransformFromPositionRotationScale(
		NewVec3(1, -2, 3),
		NewQuatFromAxisAngle(NewVec3Up(), DegToRad(30)),
		NewVec3(2, 2, 2),
	)
	m := tr.Local()
	assert.True(t, m.Mul(m.Inverse()).Compare(NewMat4Identity(), eps))
}

func TestTransformAppliesScaleRotationTranslation(t *testing.T) {
	tr := NewTransformFromPositionRotationScale(
		NewVec3(10, 0, 0),
		NewQuatFromAxisAngle(NewVec3(0, 0, 1), DegToRad(90)),
		NewVec3(2, 2, 2),
	)
	// x axis scaled to 2, rotated onto +y, then moved by +10 on x
	p := NewVec3(1, 0, 0).Transform(tr.Local())
	assert.True(t, p.Compare(NewVec3(10, 2, 0), eps), "%v", p)
}

func TestQuaternionMatchesEulerMatrix(t *testing.T) {
	q := NewQuatFromEuler(0.3, -0.7, 1.1)
	m := NewMat4EulerXYZ(0.3, -0.7, 1.1)
	assert.True(t, q.ToMat4().Compare(m, eps))
}

func TestAABBTransformUsesAllCorners(t *testing.T) {
	b := NewAABB(NewVec3(-1, -1, -1), NewVec3(1, 1, 1))
	rot := NewQuatFromAxisAngle(NewVec3Up(), DegToRad(45)).ToMat4()
	w := b.Transform(rot.Mul(NewMat4Translation(NewVec3(5, 0, 0))))

	r := float32(1.41421356)
	assert.InDelta(t, 5-r, w.Min.X, eps)
	assert.InDelta(t, 5+r, w.Max.X, eps)
	assert.InDelta(t, -1, w.Min.Y, eps)
	assert.InDelta(t, 1, w.Max.Y, eps)
}

func TestAABBEmptyAndLargestAxis(t *testing.T) {
	e := NewAABBEmpty()
	assert.True(t, e.IsEmpty())

	b := e.Union(NewAABB(NewVec3(0, 0, 0), NewVec3(1, 5, 2)))
	assert.False(t, b.IsEmpty())
	assert.Equal(t, 1, b.LargestAxis())
	assert.Equal(t, NewVec3(0.5, 2.5, 1), b.Center())

	// ties prefer the lower axis
	assert.Equal(t, 0, NewAABB(NewVec3Zero(), NewVec3One()).LargestAxis())
}

func TestFrustumCullsBoxesBehindCamera(t *testing.T) {
	view := NewMat4Identity() // camera at the origin looking down -Z
	proj := NewMat4Perspective(DegToRad(60), 1, 0.1, 100)
	f := NewFrustumFromMatrix(view.Mul(proj))

	inFront := NewAABB(NewVec3(-1, -1, -11), NewVec3(1, 1, -9))
	behind := NewAABB(NewVec3(-1, -1, 9), NewVec3(1, 1, 11))
	farAway := NewAABB(NewVec3(-1, -1, -300), NewVec3(1, 1, -200))
	offToSide := NewAABB(NewVec3(50, -1, -11), NewVec3(52, 1, -9))
	straddling := NewAABB(NewVec3(-1, -1, -1), NewVec3(1, 1, 1))

	assert.True(t, f.IntersectsAABB(inFront))
	assert.False(t, f.IntersectsAABB(behind))
	assert.False(t, f.IntersectsAABB(farAway))
	assert.False(t, f.IntersectsAABB(offToSide))
	assert.True(t, f.IntersectsAABB(straddling))
}

func TestGeometryGenerateNormalsAndTangents(t *testing.T) {
	verts := []Vertex3D{
		{Position: NewVec3(0, 0, 0), Texcoord: NewVec2(0, 0)},
		{Position: NewVec3(1, 0, 0), Texcoord: NewVec2(1, 0)},
		{Position: NewVec3(0, 1, 0), Texcoord: NewVec2(0, 1)},
	}
	idx := []uint32{0, 1, 2}
	GeometryGenerateNormals(verts, idx)
	GeometryGenerateTangents(verts, idx)

	for _, v := range verts {
		assert.True(t, v.Normal.Compare(NewVec3(0, 0, 1), eps))
		assert.True(t, v.Tangent.Compare(NewVec3(1, 0, 0), eps))
	}
}

func TestClampAndDivideRoundUp(t *testing.T) {
	assert.Equal(t, 5, Clamp(7, 0, 5))
	assert.Equal(t, float32(-1), Clamp(float32(-3), -1, 1))
	assert.Equal(t, uint32(2), DivideRoundUp(uint32(65), 64))
	assert.Equal(t, uint32(1), DivideRoundUp(uint32(64), 64))
	assert.Equal(t, uint32(0), DivideRoundUp(uint32(0), 64))
}
