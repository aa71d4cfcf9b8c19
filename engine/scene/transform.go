package scene

import (
	"fmt"

	"github.com/spaghettifunk/maple/engine/math"
)

// TransformHandle addresses a node of a TransformArena.
type TransformHandle uint32

const InvalidTransform TransformHandle = 0xFFFFFFFF

type transformNode struct {
	local     math.Transform
	parent    TransformHandle
	children  []TransformHandle
	world     math.Mat4
	prevWorld math.Mat4
	// local changed since the last Update
	dirty bool
	// world changed during the last Update
	changed bool
	live    bool
}

// TransformArena stores the transform hierarchy as index linked nodes.
// World matrices are only valid after Update.
type TransformArena struct {
	nodes []transformNode
	free  []TransformHandle
}

func NewTransformArena() *TransformArena {
	return &TransformArena{}
}

func (ta *TransformArena) Create(local math.Transform, parent TransformHandle) TransformHandle {
	node := transformNode{
		local:     local,
		parent:    InvalidTransform,
		world:     math.NewMat4Identity(),
		prevWorld: math.NewMat4Identity(),
		dirty:     true,
		live:      true,
	}
	var h TransformHandle
	if n := len(ta.free); n > 0 {
		h = ta.free[n-1]
		ta.free = ta.free[:n-1]
		ta.nodes[h] = node
	} else {
		h = TransformHandle(len(ta.nodes))
		ta.nodes = append(ta.nodes, node)
	}
	if parent != InvalidTransform {
		// a fresh node cannot form a cycle
		_ = ta.SetParent(h, parent)
	}
	return h
}

func (ta *TransformArena) valid(h TransformHandle) bool {
	return int(h) < len(ta.nodes) && ta.nodes[h].live
}

// Destroy frees the node. Its children become roots.
func (ta *TransformArena) Destroy(h TransformHandle) {
	if !ta.valid(h) {
		return
	}
	n := &ta.nodes[h]
	for _, c := range n.children {
		ta.nodes[c].parent = InvalidTransform
		ta.nodes[c].dirty = true
	}
	ta.detach(h)
	*n = transformNode{parent: InvalidTransform}
	ta.free = append(ta.free, h)
}

func (ta *TransformArena) detach(h TransformHandle) {
	p := ta.nodes[h].parent
	if p == InvalidTransform {
		return
	}
	siblings := ta.nodes[p].children
	for i, c := range siblings {
		if c == h {
			ta.nodes[p].children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	ta.nodes[h].parent = InvalidTransform
}

// SetParent re-links h under parent. InvalidTransform makes h a root.
func (ta *TransformArena) SetParent(h, parent TransformHandle) error {
	if !ta.valid(h) {
		return fmt.Errorf("invalid transform handle %d", h)
	}
	if parent != InvalidTransform {
		if !ta.valid(parent) {
			return fmt.Errorf("invalid parent transform handle %d", parent)
		}
		for p := parent; p != InvalidTransform; p = ta.nodes[p].parent {
			if p == h {
				return fmt.Errorf("transform %d cannot be parented to its descendant %d", h, parent)
			}
		}
	}
	ta.detach(h)
	ta.nodes[h].parent = parent
	if parent != InvalidTransform {
		ta.nodes[parent].children = append(ta.nodes[parent].children, h)
	}
	ta.nodes[h].dirty = true
	return nil
}

func (ta *TransformArena) Parent(h TransformHandle) TransformHandle {
	if !ta.valid(h) {
		return InvalidTransform
	}
	return ta.nodes[h].parent
}

func (ta *TransformArena) Children(h TransformHandle) []TransformHandle {
	if !ta.valid(h) {
		return nil
	}
	return ta.nodes[h].children
}

func (ta *TransformArena) Local(h TransformHandle) math.Transform {
	return ta.nodes[h].local
}

func (ta *TransformArena) SetLocal(h TransformHandle, local math.Transform) {
	ta.nodes[h].local = local
	ta.nodes[h].dirty = true
}

func (ta *TransformArena) SetPosition(h TransformHandle, position math.Vec3) {
	ta.nodes[h].local.Position = position
	ta.nodes[h].dirty = true
}

func (ta *TransformArena) SetRotation(h TransformHandle, rotation math.Quaternion) {
	ta.nodes[h].local.Rotation = rotation
	ta.nodes[h].dirty = true
}

func (ta *TransformArena) SetScale(h TransformHandle, scale math.Vec3) {
	ta.nodes[h].local.Scale = scale
	ta.nodes[h].dirty = true
}

func (ta *TransformArena) World(h TransformHandle) math.Mat4 {
	return ta.nodes[h].world
}

// PrevWorld is the world matrix before the last Update.
func (ta *TransformArena) PrevWorld(h TransformHandle) math.Mat4 {
	return ta.nodes[h].prevWorld
}

// Changed reports whether the world matrix of h changed during the last Update.
func (ta *TransformArena) Changed(h TransformHandle) bool {
	return ta.nodes[h].changed
}

// Update recomputes world matrices top-down. A changed node marks its whole subtree changed.
func (ta *TransformArena) Update() {
	for i := range ta.nodes {
		n := &ta.nodes[i]
		if n.live && n.parent == InvalidTransform {
			ta.update(TransformHandle(i), math.NewMat4Identity(), false)
		}
	}
}

func (ta *TransformArena) update(h TransformHandle, parentWorld math.Mat4, parentChanged bool) {
	n := &ta.nodes[h]
	n.prevWorld = n.world
	n.changed = n.dirty || parentChanged
	n.dirty = false
	if n.changed {
		n.world = n.local.Local().Mul(parentWorld)
	}
	world, changed := n.world, n.changed
	for _, c := range n.children {
		ta.update(c, world, changed)
	}
}

func (ta *TransformArena) Len() int {
	return len(ta.nodes) - len(ta.free)
}
