package device

type ASKind int

const (
	ASKindBottomLevel ASKind = iota
	ASKindTopLevel
)

type AccelerationStructure interface {
	Kind() ASKind
	Destroy()
}

// BLASGeometry is one triangle mesh inside shared vertex and index buffers.
type BLASGeometry struct {
	VertexBuffer Buffer
	VertexStride uint32
	// First vertex of the mesh in the vertex buffer.
	VertexOffset uint32
	VertexCount  uint32
	IndexBuffer  Buffer
	// First index of the mesh in the index buffer.
	IndexOffset uint32
	IndexCount  uint32
}

type ASInstanceFlags uint32

const (
	ASInstanceTriangleFacingCullDisable ASInstanceFlags = 1 << iota
	ASInstanceForceOpaque
)

// ASInstance mirrors VkAccelerationStructureInstanceKHR.
type ASInstance struct {
	// Row-major 3x4 object to world transform.
	Transform [12]float32
	// Only the low 24 bits are used.
	CustomIndex uint32
	Mask        uint8
	Flags       ASInstanceFlags
	BLAS        AccelerationStructure
}

type ASBuilder interface {
	BuildBLAS(stream CommandStream, geometry BLASGeometry) (AccelerationStructure, error)
	// BuildTLAS creates a new top level structure, or refits existing when update is set.
	BuildTLAS(stream CommandStream, instances []ASInstance, existing AccelerationStructure, update bool) (AccelerationStructure, error)
}
