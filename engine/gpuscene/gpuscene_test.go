package gpuscene

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/math"
	"github.com/spaghettifunk/maple/engine/renderer/device"
	"github.com/spaghettifunk/maple/engine/renderer/headless"
	"github.com/spaghettifunk/maple/engine/resources"
	"github.com/spaghettifunk/maple/engine/scene"
)

type fixture struct {
	dev      *headless.Device
	scene    *scene.Scene
	gpu      *Scene
	cube     *resources.MeshResource
	material *resources.Material
	entities []*scene.Entity
}

// newFixture builds a scene of n cubes sharing one mesh and one material, spaced along X.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	cube, err := resources.GenerateCube("cube", 1, 1, 1)
	require.NoError(t, err)

	f := &fixture{
		dev:      headless.NewDevice(headless.DefaultOptions()),
		scene:    scene.NewScene("test"),
		cube:     cube,
		material: resources.NewMaterial("shared"),
	}
	for i := 0; i < n; i++ {
		e := f.scene.CreateEntity("cube", math.NewTransformFromPosition(math.NewVec3(float32(i)*3, 0, 0)))
		e.Add(scene.NewMeshComponent(cube, f.material))
		f.entities = append(f.entities, e)
	}
	f.scene.Update(0)
	f.gpu = NewScene(f.dev, core.DefaultConfig().GPUScene)
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.gpu.Start(f.scene))
}

func (f *fixture) frame(t *testing.T) {
	t.Helper()
	f.scene.Update(0.016)
	require.NoError(t, f.gpu.Update())
}

func readBuffer[T any](t *testing.T, b device.Buffer) []T {
	t.Helper()
	hb, ok := b.(*headless.Buffer)
	require.True(t, ok)
	return device.FromBytes[T](hb.Bytes())
}

func TestRecordSizes(t *testing.T) {
	assert.Equal(t, uintptr(192), unsafe.Sizeof(InstanceData{}))
	assert.Equal(t, uintptr(48), unsafe.Sizeof(MaterialData{}))
	assert.Equal(t, uintptr(304), unsafe.Sizeof(CameraData{}))
	assert.Equal(t, uintptr(44), unsafe.Sizeof(math.Vertex3D{}))
	assert.Equal(t, uint32(20), device.DrawIndexedIndirectCommandSize)
}

func TestArenaDeduplicatesByIdentity(t *testing.T) {
	a, err := resources.GenerateCube("a", 1, 1, 1)
	require.NoError(t, err)
	b, err := resources.GenerateCube("b", 1, 1, 1)
	require.NoError(t, err)

	arena := NewArena()
	first := arena.Append(a)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, arena.Append(a))
	}
	second := arena.Append(b)

	assert.Equal(t, 2, arena.Len())
	assert.Equal(t, ArenaOffset{VertexOffset: 24, IndexOffset: 36}, second)
	assert.Len(t, arena.Vertices(), len(a.Vertices)+len(b.Vertices))
	assert.Len(t, arena.Indices(), len(a.Indices)+len(b.Indices))

	arena.Reset()
	assert.Zero(t, arena.Len())
	_, ok := arena.Offset(a)
	assert.False(t, ok)
}

func TestMaterialTableIdentityAndBindless(t *testing.T) {
	img := func(name string) *resources.Image {
		i, err := resources.NewImage(name, 1, 1, make([]byte, 4))
		require.NoError(t, err)
		return i
	}
	albedo, normal, extra := img("albedo"), img("normal"), img("extra")

	table := NewMaterialTable(2)
	m1 := resources.NewMaterial("m")
	m1.BaseColorTexture = albedo
	m1.NormalTexture = normal
	m2 := resources.NewMaterial("m")
	m2.BaseColorTexture = albedo

	id1, err := table.Append(m1)
	require.NoError(t, err)
	id2, err := table.Append(m2)
	require.NoError(t, err)
	again, err := table.Append(m1)
	require.NoError(t, err)

	// equal values, distinct objects
	assert.Equal(t, uint32(0), id1)
	assert.Equal(t, uint32(1), id2)
	assert.Equal(t, id1, again)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []*resources.Image{albedo, normal}, table.Images())
	assert.Equal(t, int32(0), table.Data()[1].BaseColorTex)
	assert.Equal(t, int32(-1), table.Data()[1].MaterialTex)

	var logs bytes.Buffer
	core.SetLogOutput(&logs)
	defer core.SetLogOutput(&bytes.Buffer{})

	m3 := resources.NewMaterial("overflow")
	m3.BaseColorTexture = extra
	id3, err := table.Append(m3)
	assert.ErrorIs(t, err, core.ErrBindlessCapacityExceeded)
	assert.Equal(t, uint32(2), id3)
	assert.Equal(t, int32(-1), table.Data()[2].BaseColorTex)
	assert.Contains(t, logs.String(), "overflow")
}

func TestStartSharedMeshAndMaterial(t *testing.T) {
	f := newFixture(t, 3)
	f.start(t)

	assert.Equal(t, AllChanged, f.gpu.UpdateStatus())
	assert.Equal(t, 1, f.gpu.Arena().Len())
	assert.Len(t, f.gpu.Arena().Vertices(), len(f.cube.Vertices))
	assert.Len(t, f.gpu.Arena().Indices(), len(f.cube.Indices))
	assert.Equal(t, uint32(3), f.gpu.InstanceCount())

	instances := readBuffer[InstanceData](t, f.gpu.InstanceDataBuffer())
	require.Len(t, instances, 3)
	for i, d := range instances {
		assert.Equal(t, uint32(i), d.InstanceID)
		assert.Zero(t, d.MaterialID)
		assert.Equal(t, uint32(36), d.IndexCount)
		assert.Equal(t, d.ModelMatrix, d.PrevModelMatrix)
	}
	assert.Len(t, readBuffer[MaterialData](t, f.gpu.MaterialDataBuffer()), 1)

	vertices := readBuffer[math.Vertex3D](t, f.gpu.VertexBuffer())
	assert.Equal(t, f.cube.Vertices, vertices)
	assert.Equal(t, f.cube.Indices, readBuffer[uint32](t, f.gpu.IndexBuffer()))

	all := readBuffer[device.DrawIndexedIndirectCommand](t, f.gpu.IndirectCommandBuffer(false))
	culled := readBuffer[device.DrawIndexedIndirectCommand](t, f.gpu.IndirectCommandBuffer(true))
	assert.Equal(t, all, culled)
	for i, cmd := range all {
		assert.Equal(t, uint32(i), cmd.FirstInstance)
		assert.Equal(t, uint32(1), cmd.InstanceCount)
	}
}

func TestUpdateWithoutChangesDoesNothing(t *testing.T) {
	f := newFixture(t, 3)
	f.start(t)
	flushes := f.dev.Flushes()
	vb := f.gpu.VertexBuffer()

	f.frame(t)
	assert.Equal(t, NoneChanged, f.gpu.UpdateStatus())
	assert.Equal(t, flushes, f.dev.Flushes())
	assert.Same(t, vb, f.gpu.VertexBuffer())
}

func TestUpdateMovedInstance(t *testing.T) {
	f := newFixture(t, 3)
	f.start(t)
	vb, ib := f.gpu.VertexBuffer(), f.gpu.IndexBuffer()
	instanceBuf := f.gpu.InstanceDataBuffer()
	commands := append([]device.DrawIndexedIndirectCommand(nil), f.gpu.DrawCommands()...)

	f.scene.Transforms().SetPosition(f.entities[1].Transform(), math.NewVec3(0, 10, 0))
	f.frame(t)

	assert.Equal(t, InstanceChanged, f.gpu.UpdateStatus())
	assert.Same(t, vb, f.gpu.VertexBuffer())
	assert.Same(t, ib, f.gpu.IndexBuffer())
	// rewritten in place
	assert.Same(t, instanceBuf, f.gpu.InstanceDataBuffer())
	assert.Equal(t, commands, f.gpu.DrawCommands())
	assert.Equal(t, commands, readBuffer[device.DrawIndexedIndirectCommand](t, f.gpu.IndirectCommandBuffer(false)))

	instances := readBuffer[InstanceData](t, f.gpu.InstanceDataBuffer())
	moved := FromMat4(instances[1].ModelMatrix).Position()
	prev := FromMat4(instances[1].PrevModelMatrix).Position()
	assert.True(t, moved.Compare(math.NewVec3(0, 10, 0), 1e-6))
	assert.True(t, prev.Compare(math.NewVec3(3, 0, 0), 1e-6))
	assert.Equal(t, StatusMatrixChanged, f.gpu.Instances()[1].Status())
	assert.Equal(t, StatusNone, f.gpu.Instances()[0].Status())
}

func TestUpdateSwappedModel(t *testing.T) {
	f := newFixture(t, 3)
	f.start(t)
	vb := f.gpu.VertexBuffer()
	instanceBuf := f.gpu.InstanceDataBuffer()
	materialBuf := f.gpu.MaterialDataBuffer()
	vertices, indices := len(f.gpu.Arena().Vertices()), len(f.gpu.Arena().Indices())

	plane, err := resources.GeneratePlane("plane", 2, 2, 2, 2, 1, 1)
	require.NoError(t, err)
	mc, _ := scene.Get[*scene.MeshComponent](f.entities[2])
	mc.SetModel(plane)

	// another instance moving in the same frame does not lower the status
	f.scene.Transforms().SetPosition(f.entities[0].Transform(), math.NewVec3(0, 1, 0))
	f.frame(t)

	assert.Equal(t, AllChanged, f.gpu.UpdateStatus())
	assert.Equal(t, StatusModelChanged, f.gpu.Instances()[2].Status())
	assert.Equal(t, vertices+len(plane.Vertices), len(f.gpu.Arena().Vertices()))
	assert.Equal(t, indices+len(plane.Indices), len(f.gpu.Arena().Indices()))
	assert.Equal(t, uint32(3), f.gpu.InstanceCount())

	assert.NotSame(t, vb, f.gpu.VertexBuffer())
	assert.NotSame(t, instanceBuf, f.gpu.InstanceDataBuffer())
	assert.NotSame(t, materialBuf, f.gpu.MaterialDataBuffer())

	all := readBuffer[device.DrawIndexedIndirectCommand](t, f.gpu.IndirectCommandBuffer(false))
	culled := readBuffer[device.DrawIndexedIndirectCommand](t, f.gpu.IndirectCommandBuffer(true))
	require.Len(t, all, 3)
	require.Len(t, culled, 3)
	assert.Equal(t, plane.IndexCount(), all[2].IndexCount)
	assert.Equal(t, uint32(indices), all[2].FirstIndex)
	assert.Equal(t, int32(vertices), all[2].VertexOffset)
	assert.Equal(t, uint32(2), all[2].FirstInstance)
	// untouched instances keep their offsets
	assert.Zero(t, all[0].FirstIndex)

	instances := readBuffer[InstanceData](t, f.gpu.InstanceDataBuffer())
	assert.Equal(t, uint32(1), instances[2].IsThin)
	assert.Equal(t, plane.VertexCount(), instances[2].VertexCount)

	// swapping back reuses the stored copy
	mc.SetModel(f.cube)
	f.frame(t)
	assert.Equal(t, 2, f.gpu.Arena().Len())
	assert.Zero(t, f.gpu.DrawCommands()[2].FirstIndex)
}

func TestStartSkipsInvalidEntitiesAndSetsFlags(t *testing.T) {
	f := newFixture(t, 2)
	var logs bytes.Buffer
	core.SetLogOutput(&logs)
	defer core.SetLogOutput(&bytes.Buffer{})

	noMaterial := f.scene.CreateEntity("no material", math.NewTransform())
	noMaterial.Add(scene.NewMeshComponent(f.cube, nil))

	lamp := f.scene.CreateEntity("lamp", math.NewTransform())
	lamp.Add(scene.NewMeshComponent(f.cube, f.material))
	lamp.Add(scene.NewLight(scene.LightTypeArea))

	rig := f.scene.CreateEntity("rig", math.NewTransform())
	rig.Add(scene.NewAnimationController(nil))
	require.NoError(t, f.scene.SetParent(lamp, rig))
	f.scene.Update(0)

	f.start(t)
	assert.Equal(t, uint32(3), f.gpu.InstanceCount())
	assert.Contains(t, logs.String(), "no material")

	instances := readBuffer[InstanceData](t, f.gpu.InstanceDataBuffer())
	assert.Equal(t, uint32(1), instances[2].IsAreaLight)
	assert.Equal(t, uint32(1), instances[2].IsUpdate)
	assert.Zero(t, instances[0].IsUpdate)
}

func TestInstanceIDsSurviveRebuild(t *testing.T) {
	f := newFixture(t, 4)
	f.start(t)
	ids := make([]uint32, 0, 4)
	for _, inst := range f.gpu.Instances() {
		ids = append(ids, inst.InstanceID())
		assert.Equal(t, inst.InstanceID(), inst.DrawCommand().FirstInstance)
	}

	f.start(t)
	for i, inst := range f.gpu.Instances() {
		assert.Equal(t, ids[i], inst.InstanceID())
	}
	// vertex, index, instance, material and both command buffers
	assert.Equal(t, 6, f.dev.LiveBuffers())
}

func TestRebuildKeepsInstanceIDsAsSlots(t *testing.T) {
	f := newFixture(t, 3)
	f.start(t)

	mc, ok := scene.Get[*scene.MeshComponent](f.entities[1])
	require.True(t, ok)
	mc.SetMaterial(nil)
	f.start(t)

	assert.Equal(t, uint32(2), f.gpu.InstanceCount())
	assert.Equal(t, uint32(3), f.gpu.SlotCount())
	instances := readBuffer[InstanceData](t, f.gpu.InstanceDataBuffer())
	commands := readBuffer[device.DrawIndexedIndirectCommand](t, f.gpu.IndirectCommandBuffer(false))
	require.Len(t, instances, 3)
	require.Len(t, commands, 3)

	ids := []uint32{}
	for _, inst := range f.gpu.Instances() {
		id := inst.InstanceID()
		ids = append(ids, id)
		assert.Equal(t, id, commands[id].FirstInstance)
		assert.Equal(t, id, instances[id].InstanceID)
		assert.Equal(t, uint32(36), commands[id].IndexCount)
	}
	assert.Equal(t, []uint32{0, 2}, ids)
	for _, cmd := range commands {
		if cmd.IndexCount > 0 {
			assert.Less(t, cmd.FirstInstance, uint32(len(instances)))
		}
	}
	assert.Equal(t, device.DrawIndexedIndirectCommand{}, commands[1])
	assert.Equal(t, InstanceData{}, instances[1])

	// moves land in the slot of their id
	f.scene.Transforms().SetPosition(f.entities[2].Transform(), math.NewVec3(0, 5, 0))
	f.frame(t)
	instances = readBuffer[InstanceData](t, f.gpu.InstanceDataBuffer())
	assert.True(t, FromMat4(instances[2].ModelMatrix).Position().Compare(math.NewVec3(0, 5, 0), 1e-6))
	assert.Equal(t, InstanceData{}, instances[1])

	// the released id is taken again once the entity is drawable
	mc.SetMaterial(f.material)
	f.start(t)
	assert.Equal(t, uint32(3), f.gpu.InstanceCount())
	assert.Equal(t, uint32(3), f.gpu.SlotCount())
	assert.Equal(t, uint32(1), f.scene.InstanceID(f.entities[1]))
}

// drawFrame submits one frame drawing every instance.
func (f *fixture) drawFrame(t *testing.T) {
	t.Helper()
	stream, err := f.dev.BeginFrame()
	require.NoError(t, err)
	require.True(t, f.gpu.CmdRenderIndirect(stream, false))
	require.NoError(t, f.dev.EndFrame(stream))
}

func (f *fixture) swapModel(t *testing.T, e *scene.Entity) {
	t.Helper()
	plane, err := resources.GeneratePlane("plane", 1, 1, 1, 1, 1, 1)
	require.NoError(t, err)
	mc, ok := scene.Get[*scene.MeshComponent](e)
	require.True(t, ok)
	mc.SetModel(plane)
}

func TestModelSwapAfterWaitFrame(t *testing.T) {
	f := newFixture(t, 3)
	f.start(t)

	f.drawFrame(t)
	f.scene.Transforms().SetPosition(f.entities[0].Transform(), math.NewVec3(0, 1, 0))
	require.NoError(t, f.dev.WaitFrame())
	f.frame(t)
	assert.Equal(t, InstanceChanged, f.gpu.UpdateStatus())

	f.drawFrame(t)
	f.swapModel(t, f.entities[2])
	require.NoError(t, f.dev.WaitFrame())
	f.frame(t)
	assert.Equal(t, AllChanged, f.gpu.UpdateStatus())
	assert.Empty(t, f.dev.Violations())
}

func TestModelSwapDuringFrameInFlightIsDetected(t *testing.T) {
	f := newFixture(t, 3)
	f.start(t)
	var logs bytes.Buffer
	core.SetLogOutput(&logs)
	defer core.SetLogOutput(&bytes.Buffer{})

	f.drawFrame(t)
	f.swapModel(t, f.entities[2])
	f.frame(t)

	// vertex, index and draw command buffers of the submitted frame
	assert.Len(t, f.dev.Violations(), 3)
	for _, err := range f.dev.Violations() {
		assert.ErrorIs(t, err, core.ErrSyncHazard)
	}
}

func TestEmptySceneDrawsNothing(t *testing.T) {
	f := newFixture(t, 0)
	f.start(t)
	require.NoError(t, f.gpu.Update())

	stream, err := f.dev.BeginFrame()
	require.NoError(t, err)
	assert.False(t, f.gpu.CmdRenderIndirect(stream, false))
	require.NoError(t, f.dev.EndFrame(stream))
	assert.Nil(t, f.gpu.IndirectCommandBuffer(true))
}

func TestCmdRenderIndirectDrawsEveryInstance(t *testing.T) {
	f := newFixture(t, 3)
	f.start(t)
	metrics := core.NewMetrics()
	f.gpu.SetMetrics(metrics)

	stream, err := f.dev.BeginFrame()
	require.NoError(t, err)
	assert.True(t, f.gpu.CmdRenderIndirect(stream, false))
	require.NoError(t, f.dev.EndFrame(stream))

	stats := f.dev.LastStats()
	assert.Equal(t, uint32(1), stats.IndirectDraws)
	assert.Equal(t, uint32(3), stats.DrawCommands)
	assert.Equal(t, uint64(3*36), stats.DrawnIndices)
	_, _, draws := metrics.Frame()
	assert.Equal(t, uint32(1), draws)
}

func TestPushDescriptorsSkipsUndeclaredBindings(t *testing.T) {
	f := newFixture(t, 2)
	img, err := resources.NewImage("albedo", 1, 1, make([]byte, 4))
	require.NoError(t, err)
	f.material.BaseColorTexture = img
	f.start(t)

	p, err := f.dev.CreateGraphicsPipeline(device.GraphicsPipelineConfig{
		Name: "gbuffer",
		Bindings: []device.BindingDesc{
			{Name: BindingInstanceData, Binding: 0, Type: device.DescriptorTypeStorageBuffer, Stages: device.ShaderStageVertex},
			{Name: BindingDrawCommands, Binding: 1, Type: device.DescriptorTypeStorageBuffer, Stages: device.ShaderStageVertex},
			{Name: BindingImageSamplers, Binding: 2, Type: device.DescriptorTypeCombinedImageSampler, Stages: device.ShaderStageFragment, Count: 16},
		},
	})
	require.NoError(t, err)
	b := device.NewBindings(p)
	require.NoError(t, f.gpu.PushDescriptors(b, true))

	buf, ok := b.Buffer(BindingDrawCommands)
	require.True(t, ok)
	assert.Same(t, f.gpu.IndirectCommandBuffer(true), buf)
	images, ok := b.Images(BindingImageSamplers)
	require.True(t, ok)
	assert.Len(t, images, 1)
	assert.NoError(t, b.Complete())
}

func TestRemoveInstanceNotSupported(t *testing.T) {
	f := newFixture(t, 1)
	f.start(t)
	assert.ErrorIs(t, f.gpu.RemoveInstance(0), core.ErrNotSupported)
	f.gpu.Shutdown()
	assert.Zero(t, f.dev.LiveBuffers())
}
