package gpuscene

import (
	"fmt"
	"sort"
	"time"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/renderer/device"
	"github.com/spaghettifunk/maple/engine/scene"
)

// UpdateStatus summarizes which device buffers the last update rewrote.
type UpdateStatus uint8

const (
	NoneChanged UpdateStatus = iota
	// instance and material data rewritten in place
	InstanceChanged
	// every buffer reallocated
	AllChanged
)

func (s UpdateStatus) String() string {
	switch s {
	case NoneChanged:
		return "none changed"
	case InstanceChanged:
		return "instance changed"
	case AllChanged:
		return "all changed"
	}
	return "unknown"
}

// Binding names shared with the shaders.
const (
	BindingInstanceData  = "instanceDatas"
	BindingMaterialData  = "materialDatas"
	BindingDrawCommands  = "drawCommandBuffer"
	BindingImageSamplers = "imageSamplers"
	BindingVertices      = "vertexBuffer"
	BindingIndices       = "indexBuffer"
)

/**
 * @brief Device resident copy of every mesh instance of a scene.
 *
 * Owns the vertex and index arena buffers, the instance and material storage
 * buffers, and two indirect command buffers: one drawing every instance and
 * one rewritten by the culling pass every frame. Instance data and commands
 * are indexed by instance id.
 */
type Scene struct {
	dev     device.Device
	cfg     core.GPUSceneConfig
	metrics *core.Metrics

	scene     *scene.Scene
	arena     *Arena
	materials *MaterialTable
	instances []*Instance

	instanceDatas []InstanceData
	drawAll       []device.DrawIndexedIndirectCommand

	geometryUsage  device.BufferUsage
	vertexBuffer   device.Buffer
	indexBuffer    device.Buffer
	instanceBuffer *device.HostBuffer
	materialBuffer *device.HostBuffer
	drawAllBuffer  *device.HostBuffer
	drawCullBuffer *device.HostBuffer

	updateStatus UpdateStatus
}

func NewScene(dev device.Device, cfg core.GPUSceneConfig) *Scene {
	capacity := cfg.MaxBindlessImages
	if limit := dev.Limits().MaxBindlessImages; limit > 0 && limit < capacity {
		core.LogWarn("bindless image capacity limited by the device to %d (configured %d)", limit, capacity)
		capacity = limit
	}
	usage := device.BufferUsageStorage
	if _, ok := dev.AccelerationStructures(); ok {
		usage |= device.BufferUsageAccelerationStructureInput | device.BufferUsageDeviceAddress
	}
	return &Scene{
		dev:           dev,
		cfg:           cfg,
		arena:         NewArena(),
		materials:     NewMaterialTable(capacity),
		geometryUsage: usage,
	}
}

// SetMetrics enables upload and draw accounting.
func (gs *Scene) SetMetrics(m *core.Metrics) {
	gs.metrics = m
}

// SetCullingEnabled applies a reloaded configuration.
func (gs *Scene) SetCullingEnabled(enabled bool) {
	gs.cfg.CullingEnabled = enabled
}

func (gs *Scene) CullingEnabled() bool {
	return gs.cfg.CullingEnabled
}

/**
 * @brief Builds the arena, the material table and one instance per mesh
 * entity, then uploads every buffer. Calling it again rebuilds from scratch.
 *
 * Entities missing a model or a material are logged and skipped. A scene
 * without instances is logged and leaves the buffers empty.
 *
 * @param s The scene. Its transforms must be up to date.
 * @return An error only if a device buffer could not be created.
 */
func (gs *Scene) Start(s *scene.Scene) error {
	gs.releaseBuffers()
	gs.scene = s
	gs.arena.Reset()
	gs.materials.Reset()
	gs.instances = nil

	entities := s.MeshEntities()
	materialIDs := make(map[*scene.Entity]uint32, len(entities))
	for _, e := range entities {
		mc, _ := scene.Get[*scene.MeshComponent](e)
		if mc.Model() == nil {
			core.LogError("entity '%s': %s, skipping instance", e.Name, core.ErrMissingMesh)
			s.ReleaseInstanceID(e)
			continue
		}
		if mc.Material() == nil {
			core.LogError("entity '%s': %s, skipping instance", e.Name, core.ErrMissingMaterial)
			s.ReleaseInstanceID(e)
			continue
		}
		// a dropped texture keeps the material with an empty slot
		id, _ := gs.materials.Append(mc.Material())
		materialIDs[e] = id
	}

	for _, e := range entities {
		materialID, ok := materialIDs[e]
		if !ok {
			continue
		}
		inst, err := newInstance(s, e, s.InstanceID(e), materialID, gs.arena)
		if err != nil {
			core.LogError("%s", err)
			s.ReleaseInstanceID(e)
			continue
		}
		gs.instances = append(gs.instances, inst)
	}
	sort.Slice(gs.instances, func(a, b int) bool {
		return gs.instances[a].InstanceID() < gs.instances[b].InstanceID()
	})

	if len(gs.instances) == 0 {
		core.LogWarn("scene '%s': %s, nothing will be drawn", s.Name, core.ErrNoInstances)
		gs.instanceDatas = nil
		gs.drawAll = nil
		gs.updateStatus = NoneChanged
		return nil
	}

	// the instance id is the slot in every per instance buffer, ids released
	// by skipped entities stay as empty slots with a zero draw command
	slots := gs.instances[len(gs.instances)-1].InstanceID() + 1
	if holes := int(slots) - len(gs.instances); holes > 0 {
		core.LogDebug("gpu scene: %d empty instance slots", holes)
	}
	gs.instanceDatas = make([]InstanceData, slots)
	gs.drawAll = make([]device.DrawIndexedIndirectCommand, slots)
	for _, inst := range gs.instances {
		gs.instanceDatas[inst.InstanceID()] = inst.Data()
		gs.drawAll[inst.InstanceID()] = inst.DrawCommand()
	}

	if err := gs.materials.UploadImages(gs.dev); err != nil {
		core.LogError("%s", err)
		return err
	}
	if err := gs.uploadAll(); err != nil {
		return err
	}
	gs.updateStatus = AllChanged
	core.LogInfo("gpu scene started: %d instances, %d meshes, %d materials, %d images",
		len(gs.instances), gs.arena.Len(), gs.materials.Len(), len(gs.materials.Images()))
	return nil
}

/**
 * @brief Synchronizes the device buffers with the scene for this frame.
 *
 * A model change anywhere reallocates and uploads every buffer. Matrix
 * changes only rewrite the instance and material buffers in place. Without
 * changes no device work is done.
 */
func (gs *Scene) Update() error {
	if len(gs.instances) == 0 {
		gs.updateStatus = NoneChanged
		return nil
	}
	var start time.Time
	if gs.cfg.DebugTimings {
		start = time.Now()
	}

	frameStatus := StatusNone
	for _, inst := range gs.instances {
		status := inst.Update()
		if status > frameStatus {
			frameStatus = status
		}
		slot := inst.InstanceID()
		switch status {
		case StatusModelChanged:
			gs.drawAll[slot] = inst.DrawCommand()
			fallthrough
		case StatusMatrixChanged:
			gs.instanceDatas[slot] = inst.Data()
		}
	}

	switch frameStatus {
	case StatusModelChanged:
		// the whole arena is uploaded again, not only the appended range
		if err := gs.uploadAll(); err != nil {
			return err
		}
		gs.updateStatus = AllChanged
	case StatusMatrixChanged:
		if err := gs.updateHostBuffer(gs.instanceBuffer, device.AsBytes(gs.instanceDatas)); err != nil {
			return err
		}
		if err := gs.updateHostBuffer(gs.materialBuffer, device.AsBytes(gs.materials.Data())); err != nil {
			return err
		}
		gs.updateStatus = InstanceChanged
	default:
		gs.updateStatus = NoneChanged
	}

	if gs.cfg.DebugTimings {
		core.LogDebug("gpu scene update (%s): %.3fms", gs.updateStatus, float64(time.Since(start).Microseconds())/1000.0)
	}
	return nil
}

func (gs *Scene) updateHostBuffer(hb *device.HostBuffer, data []byte) error {
	if _, err := hb.Update(data); err != nil {
		return fmt.Errorf("could not update gpu scene buffer: %w", err)
	}
	gs.addUpload(uint64(len(data)))
	return nil
}

func (gs *Scene) addUpload(bytes uint64) {
	if gs.metrics != nil {
		gs.metrics.AddUpload(bytes)
	}
}

// uploadAll reallocates every buffer from the CPU side arrays.
func (gs *Scene) uploadAll() error {
	gs.releaseBuffers()

	vertices := device.AsBytes(gs.arena.Vertices())
	vb, err := device.UploadDeviceLocal(gs.dev, vertices, device.BufferUsageVertex|gs.geometryUsage)
	if err != nil {
		return fmt.Errorf("vertex arena: %w", err)
	}
	gs.vertexBuffer = vb

	indices := device.AsBytes(gs.arena.Indices())
	ib, err := device.UploadDeviceLocal(gs.dev, indices, device.BufferUsageIndex|gs.geometryUsage)
	if err != nil {
		return fmt.Errorf("index arena: %w", err)
	}
	gs.indexBuffer = ib

	instances := device.AsBytes(gs.instanceDatas)
	if gs.instanceBuffer, err = device.NewStorageBuffer(gs.dev, instances); err != nil {
		return fmt.Errorf("instance data: %w", err)
	}
	materials := device.AsBytes(gs.materials.Data())
	if gs.materialBuffer, err = device.NewStorageBuffer(gs.dev, materials); err != nil {
		return fmt.Errorf("material data: %w", err)
	}
	if gs.drawAllBuffer, err = device.NewIndirectBuffer(gs.dev, gs.drawAll); err != nil {
		return fmt.Errorf("draw all commands: %w", err)
	}
	// overwritten by culling, starts out drawing everything
	if gs.drawCullBuffer, err = device.NewIndirectBuffer(gs.dev, gs.drawAll); err != nil {
		return fmt.Errorf("culled draw commands: %w", err)
	}

	commands := device.AsBytes(gs.drawAll)
	gs.addUpload(uint64(len(vertices) + len(indices) + len(instances) + len(materials) + 2*len(commands)))
	return nil
}

func (gs *Scene) releaseBuffers() {
	if gs.vertexBuffer != nil {
		gs.vertexBuffer.Destroy()
		gs.vertexBuffer = nil
	}
	if gs.indexBuffer != nil {
		gs.indexBuffer.Destroy()
		gs.indexBuffer = nil
	}
	for _, hb := range []**device.HostBuffer{&gs.instanceBuffer, &gs.materialBuffer, &gs.drawAllBuffer, &gs.drawCullBuffer} {
		if *hb != nil {
			(*hb).Destroy()
			*hb = nil
		}
	}
}

/**
 * @brief Pushes the scene buffers into b. Bindings the pipeline does not
 * declare are skipped.
 *
 * @param b The bindings of the consuming pipeline.
 * @param useCulled Selects the culled draw command buffer.
 */
func (gs *Scene) PushDescriptors(b *device.Bindings, useCulled bool) error {
	if len(gs.instances) == 0 {
		return fmt.Errorf("cannot push gpu scene descriptors: %w", core.ErrNoInstances)
	}
	buffers := []struct {
		name string
		buf  device.Buffer
	}{
		{BindingInstanceData, gs.instanceBuffer.Buffer()},
		{BindingMaterialData, gs.materialBuffer.Buffer()},
		{BindingDrawCommands, gs.IndirectCommandBuffer(useCulled)},
		{BindingVertices, gs.vertexBuffer},
		{BindingIndices, gs.indexBuffer},
	}
	for _, e := range buffers {
		if _, ok := b.Desc(e.name); !ok {
			continue
		}
		if err := b.PushBuffer(e.name, e.buf); err != nil {
			return err
		}
	}
	if _, ok := b.Desc(BindingImageSamplers); ok {
		images, ok := gs.materials.DeviceImages()
		if !ok {
			return fmt.Errorf("bindless images are not uploaded")
		}
		if err := b.PushImages(BindingImageSamplers, images); err != nil {
			return err
		}
	}
	return nil
}

/**
 * @brief Records one indexed indirect draw covering every instance.
 *
 * @param stream The frame command stream.
 * @param useCulled Draws the culled command buffer instead of the full one.
 * @return false when there is no geometry to draw.
 */
func (gs *Scene) CmdRenderIndirect(stream device.CommandStream, useCulled bool) bool {
	if gs.vertexBuffer == nil || gs.indexBuffer == nil {
		return false
	}
	commands := gs.drawAllBuffer
	if useCulled {
		commands = gs.drawCullBuffer
	}
	stream.BindVertexBuffer(gs.vertexBuffer)
	stream.BindIndexBuffer(gs.indexBuffer)
	stream.DrawIndexedIndirect(commands.Buffer(), 0, commands.Count(), device.DrawIndexedIndirectCommandSize)
	if gs.metrics != nil {
		gs.metrics.AddIndirectDraw()
	}
	return true
}

// RemoveInstance is not supported, a scene rebuild through Start is the removal path.
func (gs *Scene) RemoveInstance(instanceID uint32) error {
	return fmt.Errorf("remove instance %d: %w", instanceID, core.ErrNotSupported)
}

func (gs *Scene) VertexBuffer() device.Buffer {
	return gs.vertexBuffer
}

func (gs *Scene) IndexBuffer() device.Buffer {
	return gs.indexBuffer
}

func (gs *Scene) InstanceDataBuffer() device.Buffer {
	if gs.instanceBuffer == nil {
		return nil
	}
	return gs.instanceBuffer.Buffer()
}

func (gs *Scene) MaterialDataBuffer() device.Buffer {
	if gs.materialBuffer == nil {
		return nil
	}
	return gs.materialBuffer.Buffer()
}

func (gs *Scene) IndirectCommandBuffer(useCulled bool) device.Buffer {
	hb := gs.drawAllBuffer
	if useCulled {
		hb = gs.drawCullBuffer
	}
	if hb == nil {
		return nil
	}
	return hb.Buffer()
}

// InstanceCount is the number of live instances.
func (gs *Scene) InstanceCount() uint32 {
	return uint32(len(gs.instances))
}

// SlotCount is the length of the instance data and draw command buffers: the
// highest instance id plus one.
func (gs *Scene) SlotCount() uint32 {
	return uint32(len(gs.drawAll))
}

func (gs *Scene) UpdateStatus() UpdateStatus {
	return gs.updateStatus
}

func (gs *Scene) Instances() []*Instance {
	return gs.instances
}

// DrawCommands returns the CPU copy of the draw all commands, indexed by instance id.
func (gs *Scene) DrawCommands() []device.DrawIndexedIndirectCommand {
	return gs.drawAll
}

func (gs *Scene) Materials() *MaterialTable {
	return gs.materials
}

func (gs *Scene) Arena() *Arena {
	return gs.arena
}

// Source is the scene the instances were built from.
func (gs *Scene) Source() *scene.Scene {
	return gs.scene
}

func (gs *Scene) Shutdown() {
	gs.releaseBuffers()
	gs.instances = nil
	gs.instanceDatas = nil
	gs.drawAll = nil
}
