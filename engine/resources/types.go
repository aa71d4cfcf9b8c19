package resources

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/math"
	"github.com/spaghettifunk/maple/engine/renderer/device"
)

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Image resource type. */
	ResourceTypeImage ResourceType = iota
	/** @brief Material resource type. */
	ResourceTypeMaterial
	/** @brief Mesh resource type. */
	ResourceTypeMesh
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeImage:
		return "image"
	case ResourceTypeMaterial:
		return "material"
	case ResourceTypeMesh:
		return "mesh"
	}
	return "unknown"
}

/**
 * @brief Immutable triangle mesh shared by every instance that draws it.
 * Instances reference it by pointer, the pointer is the mesh identity.
 */
type MeshResource struct {
	ID       uuid.UUID
	Name     string
	Vertices []math.Vertex3D
	Indices  []uint32
	// Local space bounds of every vertex.
	Bounds math.AABB
	// Thin geometry (leaves, cloth) is shaded from both sides.
	IsThin bool
}

// NewMeshResource validates the triangle list and computes the local bounds.
func NewMeshResource(name string, vertices []math.Vertex3D, indices []uint32, isThin bool) (*MeshResource, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return nil, fmt.Errorf("%w: mesh '%s' has no geometry", core.ErrInvalidMesh, name)
	}
	if len(indices)%3 != 0 {
		return nil, fmt.Errorf("%w: mesh '%s' index count %d is not a multiple of 3", core.ErrInvalidMesh, name, len(indices))
	}
	for i, idx := range indices {
		if int(idx) >= len(vertices) {
			return nil, fmt.Errorf("%w: mesh '%s' index %d references vertex %d of %d", core.ErrInvalidMesh, name, i, idx, len(vertices))
		}
	}
	bounds := math.NewAABBEmpty()
	for _, v := range vertices {
		bounds = bounds.Extend(v.Position)
	}
	return &MeshResource{
		ID:       uuid.New(),
		Name:     name,
		Vertices: vertices,
		Indices:  indices,
		Bounds:   bounds,
		IsThin:   isThin,
	}, nil
}

func (m *MeshResource) VertexCount() uint32 {
	return uint32(len(m.Vertices))
}

func (m *MeshResource) IndexCount() uint32 {
	return uint32(len(m.Indices))
}

// Image is a 2D RGBA8 texture. Handle is set once it lives on the device.
type Image struct {
	ID     uuid.UUID
	Name   string
	Width  uint32
	Height uint32
	Pixels []byte
	Handle device.Image
}

func NewImage(name string, width, height uint32, pixels []byte) (*Image, error) {
	if uint64(len(pixels)) != uint64(width)*uint64(height)*4 {
		return nil, fmt.Errorf("image '%s': expected %d RGBA8 bytes, got %d", name, width*height*4, len(pixels))
	}
	return &Image{
		ID:     uuid.New(),
		Name:   name,
		Width:  width,
		Height: height,
		Pixels: pixels,
	}, nil
}

// Upload creates the device image if it does not exist yet.
func (i *Image) Upload(dev device.Device) error {
	if i.Handle != nil {
		return nil
	}
	h, err := dev.CreateImage(i.Name, i.Width, i.Height, i.Pixels)
	if err != nil {
		return err
	}
	i.Handle = h
	return nil
}

/**
 * @brief Material parameters with up to three optional textures.
 * Two materials are never merged, even with identical values.
 */
type Material struct {
	ID        uuid.UUID
	Name      string
	BaseColor math.Vec4
	Metallic  float32
	Roughness float32

	BaseColorTexture *Image
	NormalTexture    *Image
	// Packed occlusion, roughness, metallic.
	MaterialTexture *Image
}

func NewMaterial(name string) *Material {
	return &Material{
		ID:        uuid.New(),
		Name:      name,
		BaseColor: math.NewVec4(1, 1, 1, 1),
		Metallic:  0,
		Roughness: 1,
	}
}

// Textures returns the three texture slots in shader order, nil when empty.
func (m *Material) Textures() [3]*Image {
	return [3]*Image{m.BaseColorTexture, m.NormalTexture, m.MaterialTexture}
}
