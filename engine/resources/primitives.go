package resources

import (
	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/math"
)

type cubeFace struct {
	normal, u, v math.Vec3
}

// each face spans u and v from its center along normal
var cubeFaces = [6]cubeFace{
	{normal: math.NewVec3(0, 0, 1), u: math.NewVec3(1, 0, 0), v: math.NewVec3(0, 1, 0)},   // front
	{normal: math.NewVec3(0, 0, -1), u: math.NewVec3(-1, 0, 0), v: math.NewVec3(0, 1, 0)}, // back
	{normal: math.NewVec3(-1, 0, 0), u: math.NewVec3(0, 0, 1), v: math.NewVec3(0, 1, 0)},  // left
	{normal: math.NewVec3(1, 0, 0), u: math.NewVec3(0, 0, -1), v: math.NewVec3(0, 1, 0)},  // right
	{normal: math.NewVec3(0, -1, 0), u: math.NewVec3(1, 0, 0), v: math.NewVec3(0, 0, 1)},  // bottom
	{normal: math.NewVec3(0, 1, 0), u: math.NewVec3(1, 0, 0), v: math.NewVec3(0, 0, -1)},  // top
}

// GenerateCube builds a box centered on the origin with 4 vertices per face.
func GenerateCube(name string, width, height, depth float32) (*MeshResource, error) {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if height == 0 {
		core.LogWarn("Height must be nonzero. Defaulting to one.")
		height = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1.0
	}
	half := math.NewVec3(width*0.5, height*0.5, depth*0.5)

	vertices := make([]math.Vertex3D, 0, 4*6)
	indices := make([]uint32, 0, 6*6)
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	for _, f := range cubeFaces {
		base := uint32(len(vertices))
		for _, c := range corners {
			p := f.normal.Add(f.u.MulScalar(c[0])).Add(f.v.MulScalar(c[1])).Mul(half)
			vertices = append(vertices, math.Vertex3D{
				Position: p,
				Texcoord: math.NewVec2((c[0]+1)*0.5, (c[1]+1)*0.5),
				Normal:   f.normal,
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	math.GeometryGenerateTangents(vertices, indices)

	return NewMeshResource(name, vertices, indices, false)
}

// GeneratePlane builds a segmented plane on XZ facing +Y. The texture tiles tileX by tileY times.
func GeneratePlane(name string, width, depth float32, xSegments, zSegments uint32, tileX, tileY float32) (*MeshResource, error) {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1.0
	}
	if xSegments < 1 {
		core.LogWarn("xSegments must be a positive number. Defaulting to one.")
		xSegments = 1
	}
	if zSegments < 1 {
		core.LogWarn("zSegments must be a positive number. Defaulting to one.")
		zSegments = 1
	}
	if tileX == 0 {
		tileX = 1.0
	}
	if tileY == 0 {
		tileY = 1.0
	}

	// shared grid vertices, (xSegments+1) per row
	vertices := make([]math.Vertex3D, 0, (xSegments+1)*(zSegments+1))
	for z := uint32(0); z <= zSegments; z++ {
		for x := uint32(0); x <= xSegments; x++ {
			fx := float32(x) / float32(xSegments)
			fz := float32(z) / float32(zSegments)
			vertices = append(vertices, math.Vertex3D{
				Position: math.NewVec3((fx-0.5)*width, 0, (fz-0.5)*depth),
				Texcoord: math.NewVec2(fx*tileX, fz*tileY),
				Normal:   math.NewVec3Up(),
			})
		}
	}

	row := xSegments + 1
	indices := make([]uint32, 0, xSegments*zSegments*6)
	for z := uint32(0); z < zSegments; z++ {
		for x := uint32(0); x < xSegments; x++ {
			i0 := z*row + x
			i1 := i0 + 1
			i2 := i0 + row
			i3 := i2 + 1
			// counter clockwise seen from +Y
			indices = append(indices, i0, i2, i1, i1, i2, i3)
		}
	}
	math.GeometryGenerateTangents(vertices, indices)

	return NewMeshResource(name, vertices, indices, true)
}
