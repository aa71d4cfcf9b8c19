package culling

import (
	"fmt"
	"path/filepath"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/gpuscene"
	"github.com/spaghettifunk/maple/engine/math"
	"github.com/spaghettifunk/maple/engine/renderer/device"
	"github.com/spaghettifunk/maple/engine/scene"
)

const (
	PipelineName = "culling"
	ShaderFile   = "culling.comp.spv"
	// local_size_x of the shader
	WorkGroupSize uint32 = 64

	BindingCamera = "camera"
)

// Layout of the culling pipeline. The push constant block holds the instance slot count.
var Layout = []device.BindingDesc{
	{Name: gpuscene.BindingInstanceData, Binding: 0, Type: device.DescriptorTypeStorageBuffer, Stages: device.ShaderStageCompute},
	{Name: gpuscene.BindingDrawCommands, Binding: 1, Type: device.DescriptorTypeStorageBuffer, Stages: device.ShaderStageCompute, Writable: true},
	{Name: BindingCamera, Binding: 2, Type: device.DescriptorTypeStorageBuffer, Stages: device.ShaderStageCompute},
}

/**
 * @brief GPU driven frustum culling. One invocation per instance rewrites
 * the culled indirect command buffer: visible instances get their full
 * command, culled ones a zeroed command. The buffer is never resized.
 */
type Pass struct {
	dev      device.Device
	pipeline device.Pipeline
	camera   *device.HostBuffer
	metrics  *core.Metrics
}

func NewPass(dev device.Device, shaderDir string) (*Pass, error) {
	if reg, ok := dev.(device.KernelRegistry); ok {
		reg.RegisterKernel(PipelineName, Kernel)
	}
	p, err := dev.CreateComputePipeline(device.ComputePipelineConfig{
		Name:             PipelineName,
		ShaderPath:       filepath.Join(shaderDir, ShaderFile),
		Bindings:         Layout,
		PushConstantSize: 4,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create culling pipeline: %w", err)
	}
	var empty gpuscene.CameraData
	camera, err := device.NewStorageBuffer(dev, device.ValueBytes(&empty))
	if err != nil {
		p.Destroy()
		return nil, err
	}
	return &Pass{
		dev:      dev,
		pipeline: p,
		camera:   camera,
	}, nil
}

func (p *Pass) SetMetrics(m *core.Metrics) {
	p.metrics = m
}

/**
 * @brief Records the culling dispatch followed by the barrier that makes its
 * writes visible to indirect draws.
 *
 * @param stream The frame command stream.
 * @param gs The gpu scene providing the instance and command buffers.
 * @param cam The camera to cull against.
 * @return An error if the descriptors could not be bound. Nothing is recorded then.
 */
func (p *Pass) Record(stream device.CommandStream, gs *gpuscene.Scene, cam *scene.Camera) error {
	if gs.InstanceCount() == 0 {
		return nil
	}
	count := gs.SlotCount()

	cd := gpuscene.NewCameraData(cam)
	if _, err := p.camera.Update(device.ValueBytes(&cd)); err != nil {
		return err
	}

	bindings := device.NewBindings(p.pipeline)
	if err := gs.PushDescriptors(bindings, true); err != nil {
		return err
	}
	if err := bindings.PushBuffer(BindingCamera, p.camera.Buffer()); err != nil {
		return err
	}

	stream.BindPipeline(p.pipeline)
	if err := stream.BindDescriptors(p.pipeline, bindings); err != nil {
		return err
	}
	stream.PushConstants(p.pipeline, 0, device.ValueBytes(&count))
	stream.Dispatch(math.DivideRoundUp(count, WorkGroupSize), 1, 1)
	stream.PipelineBarrier(device.BarrierComputeToIndirect)

	if p.metrics != nil {
		p.metrics.AddDispatch()
	}
	return nil
}

func (p *Pass) Pipeline() device.Pipeline {
	return p.pipeline
}

func (p *Pass) Destroy() {
	p.camera.Destroy()
	p.pipeline.Destroy()
}
