package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/maple/engine/renderer/device"
)

// Sets a single stream may allocate before its pool is exhausted.
const VULKAN_MAX_DESCRIPTOR_SETS uint32 = 64

// newDescriptorSetLayout builds the set 0 layout of a pipeline. counts holds the
// resolved array size of every binding.
func newDescriptorSetLayout(context *VulkanContext, layout []device.BindingDesc, counts []uint32) (vk.DescriptorSetLayout, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(layout))
	for i, desc := range layout {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         desc.Binding,
			DescriptorType:  descriptorType(desc.Type),
			DescriptorCount: counts[i],
			StageFlags:      shaderStageFlags(desc.Stages),
		}
	}
	var setLayout vk.DescriptorSetLayout
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &createInfo, context.Allocator, &setLayout); res != vk.Success {
		return nil, vulkanError("vkCreateDescriptorSetLayout", res)
	}
	return setLayout, nil
}

// VulkanDescriptorAllocator hands out descriptor sets for one command stream.
// The pool is created on first use and destroyed with the stream.
type VulkanDescriptorAllocator struct {
	context       *VulkanContext
	maxImageCount uint32
	pool          vk.DescriptorPool
	allocated     uint32
}

func newDescriptorAllocator(context *VulkanContext, maxImageCount uint32) *VulkanDescriptorAllocator {
	return &VulkanDescriptorAllocator{
		context:       context,
		maxImageCount: maxImageCount,
	}
}

func (a *VulkanDescriptorAllocator) createPool() error {
	sizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: 8 * VULKAN_MAX_DESCRIPTOR_SETS},
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 2 * VULKAN_MAX_DESCRIPTOR_SETS},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: a.maxImageCount * 2},
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       VULKAN_MAX_DESCRIPTOR_SETS,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(a.context.Device.LogicalDevice, &createInfo, a.context.Allocator, &pool); res != vk.Success {
		return vulkanError("vkCreateDescriptorPool", res)
	}
	a.pool = pool
	return nil
}

// Write allocates a set for the pipeline and fills it from the pushed bindings.
// Image arrays shorter than the layout are padded with fallback.
func (a *VulkanDescriptorAllocator) Write(p *VulkanPipeline, b *device.Bindings, fallback *VulkanImage) (vk.DescriptorSet, error) {
	if a.pool == nil {
		if err := a.createPool(); err != nil {
			return nil, err
		}
	}
	if a.allocated == VULKAN_MAX_DESCRIPTOR_SETS {
		return nil, fmt.Errorf("descriptor pool exhausted after %d sets", a.allocated)
	}

	sets := make([]vk.DescriptorSet, 1)
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     a.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{p.SetLayout},
	}
	if res := vk.AllocateDescriptorSets(a.context.Device.LogicalDevice, &allocInfo, &sets[0]); res != vk.Success {
		return nil, vulkanError("vkAllocateDescriptorSets", res)
	}
	a.allocated++
	set := sets[0]

	writes := make([]vk.WriteDescriptorSet, 0, len(p.layout))
	for i, desc := range p.layout {
		write := vk.WriteDescriptorSet{
			SType:          vk.StructureTypeWriteDescriptorSet,
			DstSet:         set,
			DstBinding:     desc.Binding,
			DescriptorType: descriptorType(desc.Type),
		}
		if desc.Type == device.DescriptorTypeCombinedImageSampler {
			images, _ := b.Images(desc.Name)
			infos, err := imageInfos(images, p.counts[i], fallback)
			if err != nil {
				return nil, fmt.Errorf("binding '%s': %w", desc.Name, err)
			}
			write.DescriptorCount = uint32(len(infos))
			write.PImageInfo = infos
		} else {
			buf, ok := b.Buffer(desc.Name)
			if !ok {
				return nil, fmt.Errorf("binding '%s' has no buffer", desc.Name)
			}
			vb, ok := buf.(*Buffer)
			if !ok {
				return nil, fmt.Errorf("binding '%s': %T does not belong to the vulkan device", desc.Name, buf)
			}
			write.DescriptorCount = 1
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: vb.Handle,
				Offset: 0,
				Range:  vk.DeviceSize(vk.WholeSize),
			}}
		}
		writes = append(writes, write)
	}

	err := lockPool.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(a.context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
		return nil
	})
	return set, err
}

func imageInfos(images []device.Image, count uint32, fallback *VulkanImage) ([]vk.DescriptorImageInfo, error) {
	infos := make([]vk.DescriptorImageInfo, count)
	for i := range infos {
		img := fallback
		if i < len(images) {
			vi, ok := images[i].(*VulkanImage)
			if !ok {
				return nil, fmt.Errorf("%T does not belong to the vulkan device", images[i])
			}
			img = vi
		}
		infos[i] = vk.DescriptorImageInfo{
			Sampler:     img.Sampler,
			ImageView:   img.View,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}
	}
	return infos, nil
}

func (a *VulkanDescriptorAllocator) Destroy() {
	if a.pool != nil {
		vk.DestroyDescriptorPool(a.context.Device.LogicalDevice, a.pool, a.context.Allocator)
		a.pool = nil
	}
	a.allocated = 0
}
