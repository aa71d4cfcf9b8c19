package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/renderer/device"
)

var (
	ErrNotHostVisible = errors.New("buffer memory is not host visible")
	ErrAlreadyMapped  = errors.New("buffer is already mapped")
	ErrNotMapped      = errors.New("buffer is not mapped")
)

// Buffer owns a VkBuffer bound to its own allocation.
type Buffer struct {
	context *VulkanContext
	Handle  vk.Buffer
	Memory  vk.DeviceMemory
	size    uint64
	usage   device.BufferUsage
	props   device.MemoryProperty
	mapped  []byte
}

var _ device.Buffer = (*Buffer)(nil)

func NewBuffer(context *VulkanContext, size uint64, usage device.BufferUsage, props device.MemoryProperty) (*Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: zero sized buffer", core.ErrBufferAllocation)
	}
	logical := context.Device.LogicalDevice

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       bufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(logical, &createInfo, context.Allocator, &handle); res != vk.Success {
		return nil, fmt.Errorf("%w: %w", core.ErrBufferAllocation, vulkanError("vkCreateBuffer", res))
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(logical, handle, &memReqs)
	memReqs.Deref()

	memoryIndex := context.FindMemoryIndex(memReqs.MemoryTypeBits, memoryPropertyFlags(props))
	if memoryIndex < 0 {
		vk.DestroyBuffer(logical, handle, context.Allocator)
		return nil, fmt.Errorf("%w: no memory type for properties %#x", core.ErrBufferAllocation, props)
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(logical, &allocInfo, context.Allocator, &memory); res != vk.Success {
		vk.DestroyBuffer(logical, handle, context.Allocator)
		return nil, fmt.Errorf("%w: %w", core.ErrBufferAllocation, vulkanError("vkAllocateMemory", res))
	}
	if res := vk.BindBufferMemory(logical, handle, memory, 0); res != vk.Success {
		vk.FreeMemory(logical, memory, context.Allocator)
		vk.DestroyBuffer(logical, handle, context.Allocator)
		return nil, fmt.Errorf("%w: %w", core.ErrBufferAllocation, vulkanError("vkBindBufferMemory", res))
	}

	return &Buffer{
		context: context,
		Handle:  handle,
		Memory:  memory,
		size:    size,
		usage:   usage,
		props:   props,
	}, nil
}

func (b *Buffer) Size() uint64 {
	return b.size
}

func (b *Buffer) Usage() device.BufferUsage {
	return b.usage
}

func (b *Buffer) Map() ([]byte, error) {
	switch {
	case b.props&device.MemoryPropertyHostVisible == 0:
		return nil, ErrNotHostVisible
	case b.mapped != nil:
		return nil, ErrAlreadyMapped
	}
	var ptr unsafe.Pointer
	if res := vk.MapMemory(b.context.Device.LogicalDevice, b.Memory, 0, vk.DeviceSize(b.size), 0, &ptr); res != vk.Success {
		return nil, vulkanError("vkMapMemory", res)
	}
	b.mapped = unsafe.Slice((*byte)(ptr), b.size)
	return b.mapped, nil
}

// Flush is a no-op on coherent memory.
func (b *Buffer) Flush() error {
	if b.mapped == nil {
		return ErrNotMapped
	}
	if b.props&device.MemoryPropertyHostCoherent != 0 {
		return nil
	}
	ranges := []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: b.Memory,
		Offset: 0,
		Size:   vk.DeviceSize(vk.WholeSize),
	}}
	if res := vk.FlushMappedMemoryRanges(b.context.Device.LogicalDevice, 1, ranges); res != vk.Success {
		return vulkanError("vkFlushMappedMemoryRanges", res)
	}
	return nil
}

func (b *Buffer) Unmap() {
	if b.mapped == nil {
		return
	}
	vk.UnmapMemory(b.context.Device.LogicalDevice, b.Memory)
	b.mapped = nil
}

func (b *Buffer) Destroy() {
	if b.Handle == nil {
		return
	}
	b.Unmap()
	logical := b.context.Device.LogicalDevice
	vk.DestroyBuffer(logical, b.Handle, b.context.Allocator)
	vk.FreeMemory(logical, b.Memory, b.context.Allocator)
	b.Handle = nil
	b.Memory = nil
}

func (b *Buffer) String() string {
	return fmt.Sprintf("buffer(%d bytes)", b.size)
}
