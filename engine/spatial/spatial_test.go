package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/gpuscene"
	"github.com/spaghettifunk/maple/engine/math"
	"github.com/spaghettifunk/maple/engine/renderer/device"
	"github.com/spaghettifunk/maple/engine/renderer/headless"
	"github.com/spaghettifunk/maple/engine/resources"
	"github.com/spaghettifunk/maple/engine/scene"
)

func box(x, y, z, half float32) math.AABB {
	c := math.NewVec3(x, y, z)
	h := math.NewVec3Splat(half)
	return math.NewAABB(c.Sub(h), c.Add(h))
}

// leafOrder follows every hit, the order in which a full traversal reaches the leaves.
func leafOrder(nodes []BVHNode) []uint32 {
	var ids []uint32
	for i := uint32(0); i != InvalidNode && int(i) < len(nodes); {
		if nodes[i].IsLeaf() {
			ids = append(ids, nodes[i].InstanceID)
			i = nodes[i].Next
			continue
		}
		i++
	}
	return ids
}

func TestBVHOverBoxesAlongX(t *testing.T) {
	leaves := make([]Leaf, 5)
	for i := range leaves {
		leaves[i] = Leaf{Bounds: box(float32(i)*3, 0, 0, 0.5), InstanceID: uint32(i)}
	}
	nodes := BuildBVH(leaves)
	require.Len(t, nodes, 9)
	require.NoError(t, Validate(nodes))

	root := nodes[0]
	assert.False(t, root.IsLeaf())
	assert.Equal(t, InvalidNode, root.Next)
	assert.True(t, root.Bounds().Compare(math.NewAABB(math.NewVec3(-0.5, -0.5, -0.5), math.NewVec3(12.5, 0.5, 0.5)), 1e-6))

	// the left subtree sits between the root and its sibling
	right := nodes[1].Next
	leftLeaves := 0
	for _, n := range nodes[1:right] {
		if n.IsLeaf() {
			leftLeaves++
		}
	}
	assert.Contains(t, []int{2, 3}, leftLeaves)
	assert.Equal(t, []uint32{0, 1, 2, 3, 4}, leafOrder(nodes))
}

func TestBVHSingleLeafAndEmpty(t *testing.T) {
	assert.Nil(t, BuildBVH(nil))
	assert.NoError(t, Validate(nil))

	nodes := BuildBVH([]Leaf{{Bounds: box(1, 2, 3, 1), InstanceID: 7}})
	require.Len(t, nodes, 1)
	assert.Equal(t, uint32(7), nodes[0].InstanceID)
	assert.Equal(t, InvalidNode, nodes[0].Next)
	assert.NoError(t, Validate(nodes))
}

func TestBVHDoesNotModifyInput(t *testing.T) {
	leaves := []Leaf{
		{Bounds: box(9, 0, 0, 1), InstanceID: 0},
		{Bounds: box(3, 0, 0, 1), InstanceID: 1},
		{Bounds: box(6, 0, 0, 1), InstanceID: 2},
	}
	before := append([]Leaf(nil), leaves...)
	BuildBVH(leaves)
	assert.Equal(t, before, leaves)
}

func TestBVHRandomScenes(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(300)
		leaves := make([]Leaf, n)
		for i := range leaves {
			leaves[i] = Leaf{
				Bounds:     box(rng.Float32()*100-50, rng.Float32()*20, rng.Float32()*100-50, 0.1+rng.Float32()*3),
				InstanceID: uint32(i),
			}
		}
		nodes := BuildBVH(leaves)
		require.Len(t, nodes, 2*n-1, "round %d", round)
		require.NoError(t, Validate(nodes), "round %d", round)
		assert.Len(t, leafOrder(nodes), n)
	}
}

func TestBVHIdenticalBoxesNeverProduceEmptyHalves(t *testing.T) {
	leaves := make([]Leaf, 17)
	for i := range leaves {
		leaves[i] = Leaf{Bounds: box(1, 1, 1, 1), InstanceID: uint32(i)}
	}
	b := &bvhBuilder{leaves: leaves}
	for start := 0; start < 15; start++ {
		split := b.split(start, 17, 0)
		assert.Greater(t, split, start)
		assert.Less(t, split, 17)
	}
	require.NoError(t, Validate(BuildBVH(leaves)))
}

func TestValidateRejectsBrokenLinks(t *testing.T) {
	leaves := []Leaf{
		{Bounds: box(0, 0, 0, 1), InstanceID: 0},
		{Bounds: box(5, 0, 0, 1), InstanceID: 1},
		{Bounds: box(10, 0, 0, 1), InstanceID: 2},
	}
	fresh := func() []BVHNode { return BuildBVH(leaves) }

	cycle := fresh()
	last := len(cycle) - 1
	cycle[last].Next = 0
	assert.ErrorIs(t, Validate(cycle), core.ErrInvalidBVH)

	shrunk := fresh()
	shrunk[0].Max[0] = 3
	assert.ErrorIs(t, Validate(shrunk), core.ErrInvalidBVH)

	dup := fresh()
	for i := range dup {
		if dup[i].IsLeaf() {
			dup[i].InstanceID = 0
		}
	}
	assert.ErrorIs(t, Validate(dup), core.ErrInvalidBVH)
}

type fixture struct {
	dev      *headless.Device
	scene    *scene.Scene
	gpuScene *gpuscene.Scene
	cache    *resources.Cache
	entities []*scene.Entity
	cube     *resources.MeshResource
	plane    *resources.MeshResource
}

func newFixture(t *testing.T, rayTracing bool) *fixture {
	t.Helper()
	cube, err := resources.GenerateCube("cube", 1, 1, 1)
	require.NoError(t, err)
	plane, err := resources.GeneratePlane("plane", 4, 4, 1, 1, 1, 1)
	require.NoError(t, err)
	mat := resources.NewMaterial("m")

	f := &fixture{
		scene: scene.NewScene("spatial"),
		cache: resources.NewCache(),
		cube:  cube,
		plane: plane,
	}
	f.cache.AddMesh(cube)
	f.cache.AddMesh(plane)
	f.cache.AddMaterial(mat)
	for i := 0; i < 4; i++ {
		model := cube
		if i == 3 {
			model = plane
		}
		e := f.scene.CreateEntity("e", math.NewTransformFromPosition(math.NewVec3(float32(i)*3, 0, 0)))
		e.Add(scene.NewMeshComponent(model, mat))
		f.entities = append(f.entities, e)
	}
	f.scene.Update(0)

	opts := headless.DefaultOptions()
	opts.RayTracing = rayTracing
	f.dev = headless.NewDevice(opts)
	f.gpuScene = gpuscene.NewScene(f.dev, core.DefaultConfig().GPUScene)
	require.NoError(t, f.gpuScene.Start(f.scene))
	return f
}

func (f *fixture) move(t *testing.T, i int, pos math.Vec3) {
	t.Helper()
	f.scene.Transforms().SetPosition(f.entities[i].Transform(), pos)
	f.scene.Update(0.016)
	require.NoError(t, f.gpuScene.Update())
}

func TestNewIndexFallsBackWithoutRayTracing(t *testing.T) {
	f := newFixture(t, false)
	cfg := core.SpatialConfig{Backend: core.SpatialBackendHardware}
	assert.Equal(t, KindBVH, NewIndex(f.dev, cfg, nil).Kind())

	f = newFixture(t, true)
	assert.Equal(t, KindHardware, NewIndex(f.dev, cfg, nil).Kind())
	assert.Equal(t, "hardware", KindHardware.String())
}

func TestBVHIndexUploadsNodes(t *testing.T) {
	f := newFixture(t, false)
	bus := core.NewEventBus()
	rebuilt := 0
	bus.Register(core.EventSpatialRebuilt, t, func(_ core.EventCode, _ interface{}, payload interface{}) bool {
		rebuilt = payload.(int)
		return true
	})

	idx := NewIndex(f.dev, core.SpatialConfig{Backend: core.SpatialBackendBVH}, bus)
	require.NoError(t, idx.Start(f.gpuScene, f.cache))
	bvh := idx.(*BVHIndex)
	require.Len(t, bvh.Nodes(), 7)
	assert.Equal(t, 7, rebuilt)

	hb, ok := idx.Buffer().(*headless.Buffer)
	require.True(t, ok)
	assert.Equal(t, bvh.Nodes(), device.FromBytes[BVHNode](hb.Bytes()))
	assert.Equal(t, uint64(7*BVHNodeSize), hb.Size())

	// rebuilds are disabled, moving an instance keeps the stale hierarchy
	before := append([]BVHNode(nil), bvh.Nodes()...)
	f.move(t, 0, math.NewVec3(-20, 0, 0))
	require.NoError(t, idx.Update(f.gpuScene))
	assert.Equal(t, before, bvh.Nodes())

	idx.Destroy()
	assert.Nil(t, idx.Buffer())
}

func TestBVHIndexRebuildsOnChange(t *testing.T) {
	f := newFixture(t, false)
	idx := NewIndex(f.dev, core.SpatialConfig{Backend: core.SpatialBackendBVH, RebuildOnUpdate: true}, nil)
	require.NoError(t, idx.Start(f.gpuScene, f.cache))
	buf := idx.Buffer()

	f.move(t, 0, math.NewVec3(-20, 0, 0))
	require.NoError(t, idx.Update(f.gpuScene))
	nodes := idx.(*BVHIndex).Nodes()
	require.NoError(t, Validate(nodes))
	assert.Equal(t, float32(-20.5), nodes[0].Min[0])
	// same node count, the buffer is rewritten in place
	assert.Same(t, buf, idx.Buffer())
}

func TestHardwareIndexBuildsPerModelStructures(t *testing.T) {
	f := newFixture(t, true)
	idx := NewIndex(f.dev, core.SpatialConfig{Backend: core.SpatialBackendHardware}, nil)
	require.NoError(t, idx.Start(f.gpuScene, f.cache))
	hw := idx.(*HardwareIndex)
	assert.Nil(t, hw.Buffer())

	require.Len(t, hw.BottomLevels(), 2)
	for i, m := range f.cache.Models() {
		as, ok := hw.BottomLevels()[i].(*headless.AccelerationStructure)
		require.True(t, ok)
		geom := as.Geometry()
		off, found := f.gpuScene.Arena().Offset(m)
		require.True(t, found)
		assert.Equal(t, off.IndexOffset, geom.IndexOffset)
		assert.Equal(t, m.IndexCount(), geom.IndexCount)
		assert.Equal(t, uint32(44), geom.VertexStride)
		assert.Same(t, f.gpuScene.VertexBuffer(), geom.VertexBuffer)
	}

	tlas, ok := hw.TopLevel().(*headless.AccelerationStructure)
	require.True(t, ok)
	records := tlas.Instances()
	require.Len(t, records, 4)
	for i, r := range records {
		assert.Equal(t, uint32(i), r.CustomIndex)
		assert.Equal(t, uint8(0xFF), r.Mask)
		assert.Equal(t, device.ASInstanceTriangleFacingCullDisable, r.Flags)
		// translation ends every row
		assert.Equal(t, float32(i)*3, r.Transform[3])
		assert.Zero(t, r.Transform[7])
		assert.Equal(t, float32(1), r.Transform[0])
	}
	assert.Same(t, hw.BottomLevels()[1], records[3].BLAS)

	full, updates := tlas.Builds()
	assert.Equal(t, 1, full)
	assert.Zero(t, updates)
}

func TestHardwareIndexRefitsOnMove(t *testing.T) {
	f := newFixture(t, true)
	idx := NewIndex(f.dev, core.SpatialConfig{Backend: core.SpatialBackendHardware}, nil)
	require.NoError(t, idx.Start(f.gpuScene, f.cache))
	hw := idx.(*HardwareIndex)
	tlas := hw.TopLevel()

	f.move(t, 2, math.NewVec3(0, 5, 0))
	require.NoError(t, idx.Update(f.gpuScene))
	assert.Same(t, tlas, hw.TopLevel())
	full, updates := tlas.(*headless.AccelerationStructure).Builds()
	assert.Equal(t, 1, full)
	assert.Equal(t, 1, updates)
	assert.Equal(t, float32(5), hw.Instances()[2].Transform[7])
}

func TestHardwareIndexRebuildsAfterMeshSwap(t *testing.T) {
	f := newFixture(t, true)
	idx := NewIndex(f.dev, core.SpatialConfig{Backend: core.SpatialBackendHardware}, nil)
	require.NoError(t, idx.Start(f.gpuScene, f.cache))
	hw := idx.(*HardwareIndex)
	oldTLAS := hw.TopLevel()

	sphereish, err := resources.GenerateCube("tall", 1, 4, 1)
	require.NoError(t, err)
	mesh, ok := scene.Get[*scene.MeshComponent](f.entities[1])
	require.True(t, ok)
	mesh.SetModel(sphereish)
	f.scene.Update(0.016)
	require.NoError(t, f.gpuScene.Update())
	require.Equal(t, gpuscene.AllChanged, f.gpuScene.UpdateStatus())

	require.NoError(t, idx.Update(f.gpuScene))
	assert.NotSame(t, oldTLAS, hw.TopLevel())
	require.Len(t, hw.BottomLevels(), 3)
	modelIdx, ok := f.cache.ModelIndex(sphereish)
	require.True(t, ok)
	assert.Same(t, hw.BottomLevels()[modelIdx], hw.Instances()[1].BLAS)
}

func TestHardwareIndexUpdateBeforeStart(t *testing.T) {
	f := newFixture(t, true)
	idx := NewIndex(f.dev, core.SpatialConfig{Backend: core.SpatialBackendHardware}, nil)
	assert.Error(t, idx.Update(f.gpuScene))
}
