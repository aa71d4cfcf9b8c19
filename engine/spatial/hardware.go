package spatial

import (
	"fmt"
	"unsafe"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/gpuscene"
	"github.com/spaghettifunk/maple/engine/math"
	"github.com/spaghettifunk/maple/engine/renderer/device"
	"github.com/spaghettifunk/maple/engine/resources"
)

const (
	instanceMask uint8 = 0xFF
	vertexStride       = uint32(unsafe.Sizeof(math.Vertex3D{}))
)

// HardwareIndex builds one bottom level structure per model of the cache and a top
// level structure over every instance. The bottom levels point into the geometry
// arena of the GPU scene, so they are rebuilt whenever the arena is re-uploaded.
type HardwareIndex struct {
	device  device.Device
	builder device.ASBuilder
	events  *core.EventBus
	cache   *resources.Cache

	geometry  device.Buffer
	blas      []device.AccelerationStructure
	tlas      device.AccelerationStructure
	instances []device.ASInstance
}

func newHardwareIndex(dev device.Device, builder device.ASBuilder, events *core.EventBus) *HardwareIndex {
	return &HardwareIndex{
		device:  dev,
		builder: builder,
		events:  events,
	}
}

func (h *HardwareIndex) Kind() Kind {
	return KindHardware
}

func (h *HardwareIndex) Start(gs *gpuscene.Scene, cache *resources.Cache) error {
	h.Destroy()
	h.cache = cache
	if gs.InstanceCount() == 0 {
		return nil
	}
	return h.rebuild(gs)
}

// Update refits the top level structure with the current transforms. A re-uploaded
// arena invalidates the bottom levels and triggers a full build instead.
func (h *HardwareIndex) Update(gs *gpuscene.Scene) error {
	if h.cache == nil {
		return fmt.Errorf("hardware spatial index updated before Start")
	}
	if gs.InstanceCount() == 0 {
		return nil
	}
	if gs.VertexBuffer() != h.geometry || h.tlas == nil || len(h.instances) != int(gs.InstanceCount()) {
		return h.rebuild(gs)
	}
	return h.buildTLAS(gs, true)
}

func (h *HardwareIndex) rebuild(gs *gpuscene.Scene) error {
	if err := h.buildBLAS(gs); err != nil {
		return err
	}
	if h.tlas != nil {
		h.tlas.Destroy()
		h.tlas = nil
	}
	if err := h.buildTLAS(gs, false); err != nil {
		return err
	}
	fireRebuilt(h.events, h, len(h.blas)+1)
	return nil
}

func (h *HardwareIndex) buildBLAS(gs *gpuscene.Scene) error {
	h.destroyBLAS()
	// a swapped mesh may not be known to the cache yet
	for _, inst := range gs.Instances() {
		h.cache.AddMesh(inst.Model())
	}

	models := h.cache.Models()
	h.blas = make([]device.AccelerationStructure, len(models))
	err := h.device.SubmitIdle(func(stream device.CommandStream) error {
		for i, m := range models {
			off, ok := gs.Arena().Offset(m)
			if !ok {
				core.LogDebug("model '%s' is not used by any instance, no bottom level structure built", m.Name)
				continue
			}
			as, err := h.builder.BuildBLAS(stream, device.BLASGeometry{
				VertexBuffer: gs.VertexBuffer(),
				VertexStride: vertexStride,
				VertexOffset: off.VertexOffset,
				VertexCount:  m.VertexCount(),
				IndexBuffer:  gs.IndexBuffer(),
				IndexOffset:  off.IndexOffset,
				IndexCount:   m.IndexCount(),
			})
			if err != nil {
				return fmt.Errorf("model '%s': %w", m.Name, err)
			}
			h.blas[i] = as
		}
		return nil
	})
	if err != nil {
		core.LogError("failed to build bottom level acceleration structures: %s", err)
		h.destroyBLAS()
		return err
	}
	h.geometry = gs.VertexBuffer()
	return nil
}

func (h *HardwareIndex) buildTLAS(gs *gpuscene.Scene, update bool) error {
	instances := gs.Instances()
	records := make([]device.ASInstance, 0, len(instances))
	for _, inst := range instances {
		idx, ok := h.cache.ModelIndex(inst.Model())
		if !ok || int(idx) >= len(h.blas) || h.blas[idx] == nil {
			core.LogError("instance %d has no bottom level structure", inst.InstanceID())
			continue
		}
		records = append(records, device.ASInstance{
			Transform:   instanceTransform(inst.WorldMatrix()),
			CustomIndex: inst.InstanceID(),
			Mask:        instanceMask,
			Flags:       device.ASInstanceTriangleFacingCullDisable,
			BLAS:        h.blas[idx],
		})
	}
	if update && len(records) != len(h.instances) {
		update = false
	}

	err := h.device.SubmitIdle(func(stream device.CommandStream) error {
		as, err := h.builder.BuildTLAS(stream, records, h.tlas, update)
		if err != nil {
			return err
		}
		h.tlas = as
		return nil
	})
	if err != nil {
		core.LogError("failed to build top level acceleration structure: %s", err)
		return err
	}
	h.instances = records
	return nil
}

// instanceTransform returns the row-major 3x4 object to world matrix.
func instanceTransform(m math.Mat4) [12]float32 {
	var t [12]float32
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			t[row*4+col] = m.Data[col*4+row]
		}
	}
	return t
}

func (h *HardwareIndex) TopLevel() device.AccelerationStructure {
	return h.tlas
}

func (h *HardwareIndex) BottomLevels() []device.AccelerationStructure {
	return h.blas
}

func (h *HardwareIndex) Instances() []device.ASInstance {
	return h.instances
}

// Buffer returns nil, the top level structure is bound directly.
func (h *HardwareIndex) Buffer() device.Buffer {
	return nil
}

func (h *HardwareIndex) destroyBLAS() {
	for _, as := range h.blas {
		if as != nil {
			as.Destroy()
		}
	}
	h.blas = nil
	h.geometry = nil
}

func (h *HardwareIndex) Destroy() {
	h.destroyBLAS()
	if h.tlas != nil {
		h.tlas.Destroy()
		h.tlas = nil
	}
	h.instances = nil
}
