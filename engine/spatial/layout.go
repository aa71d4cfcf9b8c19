package spatial

import (
	"unsafe"

	"golang.org/x/image/math/f32"

	"github.com/spaghettifunk/maple/engine/gpuscene"
	"github.com/spaghettifunk/maple/engine/math"
)

// InvalidNode terminates a traversal and marks internal nodes in InstanceID.
const InvalidNode uint32 = 0xFFFFFFFF

// BVHNode is the packed std430 node the shaders walk without a stack.
// After a hit the walk continues at index+1, after a miss it jumps to Next.
type BVHNode struct {
	Min        f32.Vec3
	InstanceID uint32
	Max        f32.Vec3
	Next       uint32
}

const BVHNodeSize = uint32(unsafe.Sizeof(BVHNode{}))

func (n BVHNode) IsLeaf() bool {
	return n.InstanceID != InvalidNode
}

func (n BVHNode) Bounds() math.AABB {
	return math.NewAABB(gpuscene.FromVec3(n.Min), gpuscene.FromVec3(n.Max))
}

// Leaf is one instance fed to the builder, bounds in world space.
type Leaf struct {
	Bounds     math.AABB
	InstanceID uint32
}
