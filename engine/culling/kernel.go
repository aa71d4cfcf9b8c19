package culling

import (
	"fmt"

	"github.com/spaghettifunk/maple/engine/gpuscene"
	"github.com/spaghettifunk/maple/engine/math"
	"github.com/spaghettifunk/maple/engine/renderer/device"
)

// Kernel is the host implementation of culling.comp for devices without compute shaders.
func Kernel(inv device.Invocation) error {
	if len(inv.PushConstants) < 4 {
		return fmt.Errorf("culling: missing instance count push constant")
	}
	count := device.FromBytes[uint32](inv.PushConstants)[0]

	instanceBuf, ok := inv.Bindings.Buffer(gpuscene.BindingInstanceData)
	if !ok {
		return fmt.Errorf("culling: '%s' not bound", gpuscene.BindingInstanceData)
	}
	commandBuf, ok := inv.Bindings.Buffer(gpuscene.BindingDrawCommands)
	if !ok {
		return fmt.Errorf("culling: '%s' not bound", gpuscene.BindingDrawCommands)
	}
	cameraBuf, ok := inv.Bindings.Buffer(BindingCamera)
	if !ok {
		return fmt.Errorf("culling: '%s' not bound", BindingCamera)
	}

	instanceBytes, err := instanceBuf.Map()
	if err != nil {
		return err
	}
	defer instanceBuf.Unmap()
	cameraBytes, err := cameraBuf.Map()
	if err != nil {
		return err
	}
	defer cameraBuf.Unmap()
	commandBytes, err := commandBuf.Map()
	if err != nil {
		return err
	}
	defer commandBuf.Unmap()

	instances := device.FromBytes[gpuscene.InstanceData](instanceBytes)
	commands := device.FromBytes[device.DrawIndexedIndirectCommand](commandBytes)
	cameras := device.FromBytes[gpuscene.CameraData](cameraBytes)
	if len(cameras) == 0 {
		return fmt.Errorf("culling: camera buffer too small")
	}
	frustum := cameras[0].Frustum()

	invocations := inv.GroupCount[0] * WorkGroupSize
	for id := uint32(0); id < invocations; id++ {
		if id >= count || int(id) >= len(instances) || int(id) >= len(commands) {
			break
		}
		d := &instances[id]
		if d.IndexCount == 0 {
			// empty slot
			commands[id] = device.DrawIndexedIndirectCommand{}
			continue
		}
		local := math.NewAABB(gpuscene.FromVec3(d.AABBLocalMin), gpuscene.FromVec3(d.AABBLocalMax))
		if frustum.IntersectsAABB(local.Transform(gpuscene.FromMat4(d.ModelMatrix))) {
			commands[id] = device.DrawIndexedIndirectCommand{
				IndexCount:    d.IndexCount,
				InstanceCount: 1,
				FirstIndex:    d.IndexOffset,
				VertexOffset:  int32(d.VertexOffset),
				FirstInstance: d.InstanceID,
			}
		} else {
			commands[id] = device.DrawIndexedIndirectCommand{}
		}
	}
	return commandBuf.Flush()
}
