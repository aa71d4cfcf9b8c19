package gpuscene

import (
	"golang.org/x/image/math/f32"

	"github.com/spaghettifunk/maple/engine/math"
	"github.com/spaghettifunk/maple/engine/scene"
)

// GPU side records. Field order and padding follow std430.

// InstanceData is one entry of the instance storage buffer, 192 bytes.
type InstanceData struct {
	ModelMatrix     f32.Mat4
	PrevModelMatrix f32.Mat4
	AABBLocalMin    f32.Vec3
	IndexCount      uint32
	AABBLocalMax    f32.Vec3
	IndexOffset     uint32
	VertexCount     uint32
	VertexOffset    uint32
	InstanceID      uint32
	MaterialID      uint32
	IsAreaLight     uint32
	IsThin          uint32
	IsUpdate        uint32
	_               uint32
}

// MaterialData is one entry of the material storage buffer, 48 bytes.
// A texture index of -1 means no texture.
type MaterialData struct {
	BaseColor    f32.Vec4
	Metallic     float32
	Roughness    float32
	BaseColorTex int32
	NormalTex    int32
	MaterialTex  int32
	_            [3]int32
}

// CameraData is the camera storage buffer read by the culling shader, 304 bytes.
type CameraData struct {
	View           f32.Mat4
	Projection     f32.Mat4
	ViewProjection f32.Mat4
	Position       f32.Vec4
	// left, right, bottom, top, near, far. xyz is the inward normal, w the distance.
	FrustumPlanes [6]f32.Vec4
}

func toMat4(m math.Mat4) f32.Mat4 {
	return f32.Mat4(m.Data)
}

func toVec3(v math.Vec3) f32.Vec3 {
	return f32.Vec3{v.X, v.Y, v.Z}
}

// FromMat4 converts a packed matrix back to the engine type.
func FromMat4(m f32.Mat4) math.Mat4 {
	return math.Mat4{Data: [16]float32(m)}
}

func FromVec3(v f32.Vec3) math.Vec3 {
	return math.NewVec3(v[0], v[1], v[2])
}

func NewCameraData(cam *scene.Camera) CameraData {
	pos := cam.Position()
	cd := CameraData{
		View:           toMat4(cam.View()),
		Projection:     toMat4(cam.Projection()),
		ViewProjection: toMat4(cam.ViewProjection()),
		Position:       f32.Vec4{pos.X, pos.Y, pos.Z, 1},
	}
	f := cam.Frustum()
	for i, p := range f.Planes {
		cd.FrustumPlanes[i] = f32.Vec4{p.Normal.X, p.Normal.Y, p.Normal.Z, p.Distance}
	}
	return cd
}

// Frustum rebuilds the frustum from the packed planes.
func (cd *CameraData) Frustum() math.Frustum {
	var f math.Frustum
	for i, p := range cd.FrustumPlanes {
		f.Planes[i] = math.Plane{Normal: math.NewVec3(p[0], p[1], p[2]), Distance: p[3]}
	}
	return f
}
