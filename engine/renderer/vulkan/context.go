package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/maple/engine/core"
)

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	// only set when validation is enabled
	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	// Per frame recording state. Frames are not pipelined, the fence is waited on before reuse.
	FrameCommandBuffer *VulkanCommandBuffer
	FrameFence         *VulkanFence
	CurrentFrame       uint64
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that has every
// requested property, or -1.
func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	memoryProperties := vc.Device.Memory
	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (memoryProperties.MemoryTypes[i].PropertyFlags&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}
