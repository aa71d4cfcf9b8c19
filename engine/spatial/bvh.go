package spatial

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/image/math/f32"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/math"
)

type buildNode struct {
	bounds     math.AABB
	instanceID uint32
	left       uint32
	right      uint32
	parent     uint32
	next       uint32
	visit      uint32
}

type bvhBuilder struct {
	leaves   []Leaf
	nodes    []buildNode
	visited  uint32
	maxDepth int
}

// BuildBVH builds a median split hierarchy over leaves and returns it packed in
// depth-first order. The input slice is not modified.
func BuildBVH(leaves []Leaf) []BVHNode {
	if len(leaves) == 0 {
		return nil
	}
	begin := time.Now()

	b := &bvhBuilder{
		leaves: append([]Leaf(nil), leaves...),
		nodes:  make([]buildNode, 0, 2*len(leaves)-1),
	}
	root := b.build(0, len(b.leaves), 1)
	b.nodes[root].parent = InvalidNode
	b.assignVisitOrder(root, InvalidNode)
	packed := b.pack()

	core.LogDebug("BVH built: %d leaves, %d nodes, depth %d in %s",
		len(leaves), len(packed), b.maxDepth, time.Since(begin))
	return packed
}

func (b *bvhBuilder) build(start, end, depth int) uint32 {
	if depth > b.maxDepth {
		b.maxDepth = depth
	}
	if end-start == 1 {
		b.nodes = append(b.nodes, buildNode{
			bounds:     b.leaves[start].Bounds,
			instanceID: b.leaves[start].InstanceID,
			left:       InvalidNode,
			right:      InvalidNode,
		})
		return uint32(len(b.nodes) - 1)
	}

	bounds := math.NewAABBEmpty()
	for _, l := range b.leaves[start:end] {
		bounds = bounds.Union(l.Bounds)
	}
	axis := bounds.LargestAxis()
	split := b.split(start, end, axis)

	idx := uint32(len(b.nodes))
	b.nodes = append(b.nodes, buildNode{bounds: bounds, instanceID: InvalidNode})
	left := b.build(start, split, depth+1)
	right := b.build(split, end, depth+1)
	b.nodes[idx].left = left
	b.nodes[idx].right = right
	b.nodes[left].parent = idx
	b.nodes[right].parent = idx
	return idx
}

// split sorts [start, end) along axis and returns the first index past start whose
// center is not below the median center. Both halves are never empty.
func (b *bvhBuilder) split(start, end, axis int) int {
	rng := b.leaves[start:end]
	sort.SliceStable(rng, func(i, j int) bool {
		return center(rng[i], axis) < center(rng[j], axis)
	})
	median := center(b.leaves[start+(end-start)/2], axis)
	for i := start + 1; i < end; i++ {
		if center(b.leaves[i], axis) >= median {
			return i
		}
	}
	return end - 1
}

func center(l Leaf, axis int) float32 {
	return l.Bounds.Center().Axis(axis)
}

// The left child skips to its sibling, the right child inherits the parent's skip.
func (b *bvhBuilder) assignVisitOrder(node, next uint32) {
	n := &b.nodes[node]
	n.visit = b.visited
	n.next = next
	b.visited++
	if n.instanceID != InvalidNode {
		return
	}
	left, right := n.left, n.right
	b.assignVisitOrder(left, right)
	b.assignVisitOrder(right, next)
}

func (b *bvhBuilder) pack() []BVHNode {
	out := make([]BVHNode, len(b.nodes))
	for _, n := range b.nodes {
		next := InvalidNode
		if n.next != InvalidNode {
			next = b.nodes[n.next].visit
		}
		out[n.visit] = BVHNode{
			Min:        vec3(n.bounds.Min),
			InstanceID: n.instanceID,
			Max:        vec3(n.bounds.Max),
			Next:       next,
		}
	}
	return out
}

func vec3(v math.Vec3) f32.Vec3 {
	return f32.Vec3{v.X, v.Y, v.Z}
}

// Validate walks nodes the way the shaders do and reports the first broken link.
// Every leaf must be reached exactly once, the walk must end on InvalidNode, and
// every internal node must bound exactly its two children.
func Validate(nodes []BVHNode) error {
	if len(nodes) == 0 {
		return nil
	}
	if nodes[0].Next != InvalidNode {
		return fmt.Errorf("%w: root skips to %d", core.ErrInvalidBVH, nodes[0].Next)
	}

	leaves := 0
	for _, n := range nodes {
		if n.IsLeaf() {
			leaves++
		}
	}

	seen := make(map[uint32]struct{}, leaves)
	steps := 0
	for i := uint32(0); i != InvalidNode; {
		if int(i) >= len(nodes) {
			return fmt.Errorf("%w: link to %d past %d nodes", core.ErrInvalidBVH, i, len(nodes))
		}
		steps++
		if steps > len(nodes) {
			return fmt.Errorf("%w: traversal does not terminate", core.ErrInvalidBVH)
		}
		n := nodes[i]
		if n.IsLeaf() {
			if _, dup := seen[n.InstanceID]; dup {
				return fmt.Errorf("%w: instance %d reached twice", core.ErrInvalidBVH, n.InstanceID)
			}
			seen[n.InstanceID] = struct{}{}
			i = n.Next
			continue
		}
		if err := checkChildren(nodes, i); err != nil {
			return err
		}
		i++
	}
	if len(seen) != leaves {
		return fmt.Errorf("%w: reached %d of %d leaves", core.ErrInvalidBVH, len(seen), leaves)
	}
	if steps != len(nodes) {
		return fmt.Errorf("%w: reached %d of %d nodes", core.ErrInvalidBVH, steps, len(nodes))
	}
	return nil
}

// In visit order the left child follows its parent and skips to the right child.
func checkChildren(nodes []BVHNode, i uint32) error {
	left := i + 1
	if int(left) >= len(nodes) {
		return fmt.Errorf("%w: internal node %d has no children", core.ErrInvalidBVH, i)
	}
	right := nodes[left].Next
	if right == InvalidNode || int(right) >= len(nodes) {
		return fmt.Errorf("%w: internal node %d has no right child", core.ErrInvalidBVH, i)
	}
	if nodes[right].Next != nodes[i].Next {
		return fmt.Errorf("%w: right child %d skips to %d, parent %d skips to %d",
			core.ErrInvalidBVH, right, nodes[right].Next, i, nodes[i].Next)
	}
	union := nodes[left].Bounds().Union(nodes[right].Bounds())
	if !union.Compare(nodes[i].Bounds(), 1e-6) {
		return fmt.Errorf("%w: node %d does not bound its children", core.ErrInvalidBVH, i)
	}
	return nil
}
