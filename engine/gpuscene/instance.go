package gpuscene

import (
	"fmt"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/math"
	"github.com/spaghettifunk/maple/engine/renderer/device"
	"github.com/spaghettifunk/maple/engine/resources"
	"github.com/spaghettifunk/maple/engine/scene"
)

// Status is what changed for an instance this frame. The order is meaningful,
// a frame reports the highest status of all its instances.
type Status uint8

const (
	StatusNone Status = iota
	StatusMatrixChanged
	StatusModelChanged
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusMatrixChanged:
		return "matrix changed"
	case StatusModelChanged:
		return "model changed"
	}
	return "unknown"
}

// Instance is the GPU view of one mesh carrying entity.
type Instance struct {
	scene  *scene.Scene
	entity *scene.Entity
	mesh   *scene.MeshComponent
	arena  *Arena
	model  *resources.MeshResource
	status Status
	data   InstanceData
}

func newInstance(s *scene.Scene, e *scene.Entity, instanceID, materialID uint32, arena *Arena) (*Instance, error) {
	mesh, ok := scene.Get[*scene.MeshComponent](e)
	if !ok || mesh.Model() == nil {
		return nil, fmt.Errorf("entity '%s': %w", e.Name, core.ErrMissingMesh)
	}
	inst := &Instance{
		scene:  s,
		entity: e,
		mesh:   mesh,
		arena:  arena,
		status: StatusModelChanged,
	}
	inst.data.InstanceID = instanceID
	inst.data.MaterialID = materialID
	world := toMat4(s.WorldMatrix(e))
	inst.data.ModelMatrix = world
	// no history on the first frame
	inst.data.PrevModelMatrix = world

	for p := e; p != nil; p = s.ParentEntity(p) {
		if scene.Has[*scene.AnimationController](p) {
			inst.data.IsUpdate = 1
			break
		}
	}
	if l, ok := scene.Get[*scene.Light](e); ok && l.Type == scene.LightTypeArea {
		inst.data.IsAreaLight = 1
	}
	inst.setModel(mesh.Model())
	return inst, nil
}

func (i *Instance) setModel(m *resources.MeshResource) {
	i.model = m
	off := i.arena.Append(m)
	i.data.VertexOffset = off.VertexOffset
	i.data.IndexOffset = off.IndexOffset
	i.data.VertexCount = m.VertexCount()
	i.data.IndexCount = m.IndexCount()
	i.data.AABBLocalMin = toVec3(m.Bounds.Min)
	i.data.AABBLocalMax = toVec3(m.Bounds.Max)
	i.data.IsThin = 0
	if m.IsThin {
		i.data.IsThin = 1
	}
}

/**
 * @brief Re-derives the instance from its entity.
 * A transform change refreshes both matrices. A mesh swap appends the new
 * model to the arena and refreshes offsets, counts and bounds.
 *
 * @return The status of the instance for this frame.
 */
func (i *Instance) Update() Status {
	i.status = StatusNone

	if i.scene.TransformChanged(i.entity) {
		i.status = StatusMatrixChanged
		i.data.ModelMatrix = toMat4(i.scene.WorldMatrix(i.entity))
		i.data.PrevModelMatrix = toMat4(i.scene.PrevWorldMatrix(i.entity))
	}

	if i.mesh.Status() == scene.MeshStatusAlter {
		if m := i.mesh.Model(); m == nil {
			core.LogError("entity '%s': %s, keeping the previous model", i.entity.Name, core.ErrMissingMesh)
		} else if m != i.model {
			i.setModel(m)
		}
		i.status = StatusModelChanged
	}
	return i.status
}

func (i *Instance) Status() Status {
	return i.status
}

func (i *Instance) Data() InstanceData {
	return i.data
}

func (i *Instance) InstanceID() uint32 {
	return i.data.InstanceID
}

func (i *Instance) MaterialID() uint32 {
	return i.data.MaterialID
}

func (i *Instance) Entity() *scene.Entity {
	return i.entity
}

func (i *Instance) Model() *resources.MeshResource {
	return i.model
}

// DrawCommand draws the whole mesh once, FirstInstance carries the instance id.
func (i *Instance) DrawCommand() device.DrawIndexedIndirectCommand {
	return device.DrawIndexedIndirectCommand{
		IndexCount:    i.data.IndexCount,
		InstanceCount: 1,
		FirstIndex:    i.data.IndexOffset,
		VertexOffset:  int32(i.data.VertexOffset),
		FirstInstance: i.data.InstanceID,
	}
}

// WorldBounds is the local AABB transformed by the current model matrix.
func (i *Instance) WorldBounds() math.AABB {
	return i.model.Bounds.Transform(FromMat4(i.data.ModelMatrix))
}

// WorldMatrix is the current model matrix.
func (i *Instance) WorldMatrix() math.Mat4 {
	return FromMat4(i.data.ModelMatrix)
}
