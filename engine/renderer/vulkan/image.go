package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/maple/engine/renderer/device"
)

// VulkanImage is a sampled RGBA8 texture with its own view and sampler.
type VulkanImage struct {
	context *VulkanContext
	name    string
	Handle  vk.Image
	Memory  vk.DeviceMemory
	View    vk.ImageView
	Sampler vk.Sampler
	width   uint32
	height  uint32
}

var _ device.Image = (*VulkanImage)(nil)

const imageFormat = vk.FormatR8g8b8a8Unorm

func NewImage(context *VulkanContext, name string, width, height uint32, pixels []byte) (*VulkanImage, error) {
	if uint64(len(pixels)) != uint64(width)*uint64(height)*4 {
		return nil, fmt.Errorf("image '%s': expected %d bytes of RGBA8, got %d", name, width*height*4, len(pixels))
	}
	img := &VulkanImage{
		context: context,
		name:    name,
		width:   width,
		height:  height,
	}
	if err := img.create(); err != nil {
		img.Destroy()
		return nil, err
	}
	if err := img.upload(pixels); err != nil {
		img.Destroy()
		return nil, err
	}
	if err := img.createView(); err != nil {
		img.Destroy()
		return nil, err
	}
	if err := img.createSampler(); err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}

func (img *VulkanImage) Name() string {
	return img.name
}

func (img *VulkanImage) Width() uint32 {
	return img.width
}

func (img *VulkanImage) Height() uint32 {
	return img.height
}

func (img *VulkanImage) create() error {
	logical := img.context.Device.LogicalDevice
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    imageFormat,
		Extent: vk.Extent3D{
			Width:  img.width,
			Height: img.height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var handle vk.Image
	if res := vk.CreateImage(logical, &imageInfo, img.context.Allocator, &handle); res != vk.Success {
		return vulkanError("vkCreateImage", res)
	}
	img.Handle = handle

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(logical, img.Handle, &memReqs)
	memReqs.Deref()

	memoryIndex := img.context.FindMemoryIndex(memReqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if memoryIndex < 0 {
		return fmt.Errorf("image '%s': no device local memory type", img.name)
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(logical, &allocInfo, img.context.Allocator, &memory); res != vk.Success {
		return vulkanError("vkAllocateMemory", res)
	}
	img.Memory = memory
	if res := vk.BindImageMemory(logical, img.Handle, img.Memory, 0); res != vk.Success {
		return vulkanError("vkBindImageMemory", res)
	}
	return nil
}

// upload copies pixels through a staging buffer and leaves the image shader readable.
func (img *VulkanImage) upload(pixels []byte) error {
	staging, err := NewBuffer(img.context, uint64(len(pixels)), device.BufferUsageTransferSrc, device.MemoryPropertyHostShared)
	if err != nil {
		return err
	}
	defer staging.Destroy()

	dst, err := staging.Map()
	if err != nil {
		return err
	}
	copy(dst, pixels)
	staging.Unmap()

	cb, err := AllocateAndBeginSingleUse(img.context, img.context.Device.CommandPool)
	if err != nil {
		return err
	}
	img.transition(cb, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{
			Width:  img.width,
			Height: img.height,
			Depth:  1,
		},
	}
	vk.CmdCopyBufferToImage(cb.Handle, staging.Handle, img.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
	img.transition(cb, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	return cb.EndSingleUse(img.context, img.context.Device.CommandPool)
}

func (img *VulkanImage) transition(cb *VulkanCommandBuffer, oldLayout, newLayout vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var srcStage, dstStage vk.PipelineStageFlagBits
	if oldLayout == vk.ImageLayoutUndefined {
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageTopOfPipeBit
		dstStage = vk.PipelineStageTransferBit
	} else {
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage = vk.PipelineStageTransferBit
		dstStage = vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit
	}
	vk.CmdPipelineBarrier(cb.Handle,
		vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage), vk.DependencyFlags(0),
		0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (img *VulkanImage) createView() error {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: vk.ImageViewType2d,
		Format:   imageFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(img.context.Device.LogicalDevice, &viewInfo, img.context.Allocator, &view); res != vk.Success {
		return vulkanError("vkCreateImageView", res)
	}
	img.View = view
	return nil
}

func (img *VulkanImage) createSampler() error {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}
	if img.context.Device.Features.SamplerAnisotropy == vk.True {
		samplerInfo.AnisotropyEnable = vk.True
		samplerInfo.MaxAnisotropy = img.context.Device.Properties.Limits.MaxSamplerAnisotropy
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(img.context.Device.LogicalDevice, &samplerInfo, img.context.Allocator, &sampler); res != vk.Success {
		return vulkanError("vkCreateSampler", res)
	}
	img.Sampler = sampler
	return nil
}

func (img *VulkanImage) Destroy() {
	logical := img.context.Device.LogicalDevice
	if img.Sampler != nil {
		vk.DestroySampler(logical, img.Sampler, img.context.Allocator)
		img.Sampler = nil
	}
	if img.View != nil {
		vk.DestroyImageView(logical, img.View, img.context.Allocator)
		img.View = nil
	}
	if img.Memory != nil {
		vk.FreeMemory(logical, img.Memory, img.context.Allocator)
		img.Memory = nil
	}
	if img.Handle != nil {
		vk.DestroyImage(logical, img.Handle, img.context.Allocator)
		img.Handle = nil
	}
}
