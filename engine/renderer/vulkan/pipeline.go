package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/renderer/device"
)

// VulkanPipeline holds a pipeline, its layout and the set 0 descriptor layout.
type VulkanPipeline struct {
	context   *VulkanContext
	name      string
	bindPoint device.BindPoint
	layout    []device.BindingDesc
	// resolved descriptor count per binding, runtime sized arrays use the bindless limit
	counts     []uint32
	pushSize   uint32
	pushStages vk.ShaderStageFlags

	Handle         vk.Pipeline
	PipelineLayout vk.PipelineLayout
	SetLayout      vk.DescriptorSetLayout
}

var _ device.Pipeline = (*VulkanPipeline)(nil)

func NewComputePipeline(context *VulkanContext, cfg device.ComputePipelineConfig, limits device.Limits) (*VulkanPipeline, error) {
	if err := device.ValidateLayout(cfg.Bindings); err != nil {
		return nil, err
	}
	if cfg.PushConstantSize > limits.MaxPushConstantSize {
		return nil, fmt.Errorf("pipeline '%s': push constants of %d bytes exceed the limit of %d", cfg.Name, cfg.PushConstantSize, limits.MaxPushConstantSize)
	}

	pipeline := &VulkanPipeline{
		context:    context,
		name:       cfg.Name,
		bindPoint:  device.BindPointCompute,
		layout:     append([]device.BindingDesc(nil), cfg.Bindings...),
		pushSize:   cfg.PushConstantSize,
		pushStages: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
	}
	pipeline.counts = make([]uint32, len(pipeline.layout))
	for i, desc := range pipeline.layout {
		pipeline.counts[i] = descriptorCount(desc, limits)
	}

	if err := pipeline.createLayout(); err != nil {
		pipeline.Destroy()
		return nil, err
	}

	stage, err := NewShaderStage(context, cfg.ShaderPath, vk.ShaderStageComputeBit)
	if err != nil {
		pipeline.Destroy()
		return nil, err
	}
	// modules are not needed once the pipeline is built
	defer stage.Destroy(context)

	createInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              stage.ShaderStageCreateInfo,
		Layout:             pipeline.PipelineLayout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := lockPool.SafeCall(PipelineManagement, func() error {
		res := vk.CreateComputePipelines(context.Device.LogicalDevice, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{createInfo}, context.Allocator, pipelines)
		if res != vk.Success {
			return vulkanError("vkCreateComputePipelines", res)
		}
		return nil
	}); err != nil {
		pipeline.Destroy()
		return nil, err
	}
	pipeline.Handle = pipelines[0]

	core.LogDebug("Compute pipeline '%s' created.", cfg.Name)
	return pipeline, nil
}

func descriptorCount(desc device.BindingDesc, limits device.Limits) uint32 {
	switch {
	case desc.Type != device.DescriptorTypeCombinedImageSampler:
		return 1
	case desc.Count == 0:
		return limits.MaxBindlessImages
	default:
		return desc.Count
	}
}

func (p *VulkanPipeline) createLayout() error {
	setLayout, err := newDescriptorSetLayout(p.context, p.layout, p.counts)
	if err != nil {
		return err
	}
	p.SetLayout = setLayout

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{p.SetLayout},
	}
	if p.pushSize > 0 {
		layoutInfo.PushConstantRangeCount = 1
		layoutInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: p.pushStages,
			Offset:     0,
			Size:       p.pushSize,
		}}
	}

	return lockPool.SafeCall(PipelineManagement, func() error {
		var pipelineLayout vk.PipelineLayout
		if res := vk.CreatePipelineLayout(p.context.Device.LogicalDevice, &layoutInfo, p.context.Allocator, &pipelineLayout); res != vk.Success {
			return vulkanError("vkCreatePipelineLayout", res)
		}
		p.PipelineLayout = pipelineLayout
		return nil
	})
}

func (p *VulkanPipeline) Name() string {
	return p.name
}

func (p *VulkanPipeline) BindPoint() device.BindPoint {
	return p.bindPoint
}

func (p *VulkanPipeline) Layout() []device.BindingDesc {
	return p.layout
}

func (p *VulkanPipeline) PushConstantSize() uint32 {
	return p.pushSize
}

func (p *VulkanPipeline) Destroy() {
	_ = lockPool.SafeCall(PipelineManagement, func() error {
		logical := p.context.Device.LogicalDevice
		if p.Handle != nil {
			vk.DestroyPipeline(logical, p.Handle, p.context.Allocator)
			p.Handle = nil
		}
		if p.PipelineLayout != nil {
			vk.DestroyPipelineLayout(logical, p.PipelineLayout, p.context.Allocator)
			p.PipelineLayout = nil
		}
		if p.SetLayout != nil {
			vk.DestroyDescriptorSetLayout(logical, p.SetLayout, p.context.Allocator)
			p.SetLayout = nil
		}
		return nil
	})
}
