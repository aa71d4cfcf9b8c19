package resources

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/math"
	"github.com/spaghettifunk/maple/engine/renderer/headless"
)

func TestNewMeshResourceValidatesIndices(t *testing.T) {
	vertices := []math.Vertex3D{
		{Position: math.NewVec3(-1, 0, 0)},
		{Position: math.NewVec3(1, 0, 2)},
		{Position: math.NewVec3(0, 3, 0)},
	}

	m, err := NewMeshResource("tri", vertices, []uint32{0, 1, 2}, false)
	require.NoError(t, err)
	assert.True(t, m.Bounds.Compare(math.NewAABB(math.NewVec3(-1, 0, 0), math.NewVec3(1, 3, 2)), 1e-6))
	assert.Equal(t, uint32(3), m.VertexCount())
	assert.Equal(t, uint32(3), m.IndexCount())

	_, err = NewMeshResource("partial", vertices, []uint32{0, 1}, false)
	assert.ErrorIs(t, err, core.ErrInvalidMesh)

	_, err = NewMeshResource("out of range", vertices, []uint32{0, 1, 3}, false)
	assert.ErrorIs(t, err, core.ErrInvalidMesh)

	_, err = NewMeshResource("empty", nil, nil, false)
	assert.ErrorIs(t, err, core.ErrInvalidMesh)
}

func TestGeneratedPrimitives(t *testing.T) {
	cube, err := GenerateCube("cube", 2, 4, 6)
	require.NoError(t, err)
	assert.Len(t, cube.Vertices, 24)
	assert.Len(t, cube.Indices, 36)
	assert.True(t, cube.Bounds.Compare(math.NewAABB(math.NewVec3(-1, -2, -3), math.NewVec3(1, 2, 3)), 1e-5))

	// every triangle winds toward its face normal
	for i := 0; i < len(cube.Indices); i += 3 {
		a := cube.Vertices[cube.Indices[i]]
		b := cube.Vertices[cube.Indices[i+1]]
		c := cube.Vertices[cube.Indices[i+2]]
		n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position))
		assert.Greater(t, n.Dot(a.Normal), float32(0))
		assert.InDelta(t, 1.0, a.Tangent.Length(), 1e-4)
	}

	plane, err := GeneratePlane("ground", 10, 10, 2, 3, 1, 1)
	require.NoError(t, err)
	assert.Len(t, plane.Vertices, 3*4)
	assert.Len(t, plane.Indices, 2*3*6)
	assert.True(t, plane.IsThin)
	for i := 0; i < len(plane.Indices); i += 3 {
		a := plane.Vertices[plane.Indices[i]].Position
		b := plane.Vertices[plane.Indices[i+1]].Position
		c := plane.Vertices[plane.Indices[i+2]].Position
		assert.Greater(t, b.Sub(a).Cross(c.Sub(a)).Y, float32(0))
	}
}

func TestCacheModelIndex(t *testing.T) {
	c := NewCache()
	a, err := GenerateCube("a", 1, 1, 1)
	require.NoError(t, err)
	b, err := GenerateCube("b", 1, 1, 1)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), c.AddMesh(a))
	assert.Equal(t, uint32(1), c.AddMesh(b))
	assert.Equal(t, uint32(0), c.AddMesh(a))
	assert.Equal(t, []*MeshResource{a, b}, c.Models())

	idx, ok := c.ModelIndex(b)
	assert.True(t, ok)
	assert.Equal(t, uint32(1), idx)

	found, ok := c.FindMesh(a.ID)
	assert.True(t, ok)
	assert.Same(t, a, found)
}

func TestCacheUploadsMaterialImages(t *testing.T) {
	dev := headless.NewDevice(headless.DefaultOptions())
	c := NewCache()

	albedo, err := NewImage("albedo", 2, 2, make([]byte, 16))
	require.NoError(t, err)
	mat := NewMaterial("painted")
	mat.BaseColorTexture = albedo
	c.AddMaterial(mat)
	c.AddMaterial(mat)

	assert.Len(t, c.Materials(), 1)
	_, ok := c.FindImage(albedo.ID)
	assert.True(t, ok)

	require.NoError(t, c.UploadImages(dev))
	require.NotNil(t, albedo.Handle)
	assert.Equal(t, "albedo", albedo.Handle.Name())

	handle := albedo.Handle
	require.NoError(t, c.UploadImages(dev))
	assert.Same(t, handle, albedo.Handle)

	c.Destroy()
	assert.Nil(t, albedo.Handle)
}

func TestCacheUploadErrorKeepsImageNameVerbatim(t *testing.T) {
	var logs bytes.Buffer
	core.SetLogOutput(&logs)
	defer core.SetLogOutput(io.Discard)

	img, err := NewImage("100%_albedo", 1, 1, make([]byte, 4))
	require.NoError(t, err)
	img.Pixels = img.Pixels[:3]
	c := NewCache()
	mat := NewMaterial("broken")
	mat.BaseColorTexture = img
	c.AddMaterial(mat)

	assert.Error(t, c.UploadImages(headless.NewDevice(headless.DefaultOptions())))
	assert.Contains(t, logs.String(), "could not upload image '100%_albedo'")
	assert.NotContains(t, logs.String(), "%!")
}

func TestLookupTextures(t *testing.T) {
	brdf, err := GenerateBRDFLUT(16)
	require.NoError(t, err)
	assert.Equal(t, LookupBRDF, brdf.Name)
	assert.Len(t, brdf.Pixels, 16*16*4)

	n1, err := GenerateBlueNoise(8, 7)
	require.NoError(t, err)
	n2, err := GenerateBlueNoise(8, 7)
	require.NoError(t, err)
	assert.Equal(t, n1.Pixels, n2.Pixels)

	_, err = NewImage("bad", 4, 4, make([]byte, 3))
	assert.Error(t, err)
}
