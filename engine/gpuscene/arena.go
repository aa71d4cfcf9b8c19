package gpuscene

import (
	"github.com/spaghettifunk/maple/engine/math"
	"github.com/spaghettifunk/maple/engine/resources"
)

// ArenaOffset locates a mesh inside the shared vertex and index arrays.
type ArenaOffset struct {
	VertexOffset uint32
	IndexOffset  uint32
}

/**
 * @brief Append only store of the vertices and indices of every distinct mesh
 * in the scene. A mesh is stored once, keyed by its pointer, and every
 * instance drawing it shares the same offsets.
 *
 * Not safe for concurrent use. Appends happen on the frame thread during
 * scene start and mesh swaps only.
 */
type Arena struct {
	vertices []math.Vertex3D
	indices  []uint32
	offsets  map[*resources.MeshResource]ArenaOffset
	order    []*resources.MeshResource
}

func NewArena() *Arena {
	return &Arena{
		offsets: make(map[*resources.MeshResource]ArenaOffset),
	}
}

// Append returns the offsets of m, copying its data to the tail the first time it is seen.
func (a *Arena) Append(m *resources.MeshResource) ArenaOffset {
	if off, ok := a.offsets[m]; ok {
		return off
	}
	off := ArenaOffset{
		VertexOffset: uint32(len(a.vertices)),
		IndexOffset:  uint32(len(a.indices)),
	}
	a.vertices = append(a.vertices, m.Vertices...)
	a.indices = append(a.indices, m.Indices...)
	a.offsets[m] = off
	a.order = append(a.order, m)
	return off
}

func (a *Arena) Offset(m *resources.MeshResource) (ArenaOffset, bool) {
	off, ok := a.offsets[m]
	return off, ok
}

func (a *Arena) Vertices() []math.Vertex3D {
	return a.vertices
}

func (a *Arena) Indices() []uint32 {
	return a.indices
}

// Len is the number of distinct meshes stored.
func (a *Arena) Len() int {
	return len(a.order)
}

// Meshes returns the stored meshes in append order.
func (a *Arena) Meshes() []*resources.MeshResource {
	return a.order
}

func (a *Arena) Reset() {
	a.vertices = nil
	a.indices = nil
	a.order = nil
	a.offsets = make(map[*resources.MeshResource]ArenaOffset)
}
