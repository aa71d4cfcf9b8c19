package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/renderer/device"
)

func VulkanResultString(result vk.Result) string {
	switch result {
	case vk.Success:
		return "VK_SUCCESS"
	case vk.NotReady:
		return "VK_NOT_READY"
	case vk.Timeout:
		return "VK_TIMEOUT"
	case vk.Incomplete:
		return "VK_INCOMPLETE"
	case vk.ErrorOutOfHostMemory:
		return "VK_ERROR_OUT_OF_HOST_MEMORY"
	case vk.ErrorOutOfDeviceMemory:
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY"
	case vk.ErrorInitializationFailed:
		return "VK_ERROR_INITIALIZATION_FAILED"
	case vk.ErrorDeviceLost:
		return "VK_ERROR_DEVICE_LOST"
	case vk.ErrorMemoryMapFailed:
		return "VK_ERROR_MEMORY_MAP_FAILED"
	case vk.ErrorLayerNotPresent:
		return "VK_ERROR_LAYER_NOT_PRESENT"
	case vk.ErrorExtensionNotPresent:
		return "VK_ERROR_EXTENSION_NOT_PRESENT"
	case vk.ErrorFeatureNotPresent:
		return "VK_ERROR_FEATURE_NOT_PRESENT"
	case vk.ErrorIncompatibleDriver:
		return "VK_ERROR_INCOMPATIBLE_DRIVER"
	case vk.ErrorTooManyObjects:
		return "VK_ERROR_TOO_MANY_OBJECTS"
	case vk.ErrorFormatNotSupported:
		return "VK_ERROR_FORMAT_NOT_SUPPORTED"
	case vk.ErrorFragmentedPool:
		return "VK_ERROR_FRAGMENTED_POOL"
	case vk.ErrorOutOfPoolMemory:
		return "VK_ERROR_OUT_OF_POOL_MEMORY"
	case vk.ErrorInvalidShaderNv:
		return "VK_ERROR_INVALID_SHADER_NV"
	default:
		return fmt.Sprintf("VkResult(%d)", result)
	}
}

// vulkanError wraps a failed call. A lost device maps to core.ErrDeviceLost.
func vulkanError(call string, result vk.Result) error {
	if result == vk.ErrorDeviceLost {
		return fmt.Errorf("%s: %w", call, core.ErrDeviceLost)
	}
	err := fmt.Errorf("%s failed with %s", call, VulkanResultString(result))
	core.LogError("%s", err)
	return err
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	for i := range list {
		list[i] = VulkanSafeString(list[i])
	}
	return list
}

func bufferUsageFlags(u device.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if u&device.BufferUsageTransferSrc != 0 {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if u&device.BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	if u&device.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if u&device.BufferUsageStorage != 0 {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if u&device.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if u&device.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if u&device.BufferUsageIndirect != 0 {
		flags |= vk.BufferUsageIndirectBufferBit
	}
	// device address and acceleration structure input need extensions this backend does not enable
	return vk.BufferUsageFlags(flags)
}

func memoryPropertyFlags(p device.MemoryProperty) vk.MemoryPropertyFlags {
	var flags vk.MemoryPropertyFlagBits
	if p&device.MemoryPropertyDeviceLocal != 0 {
		flags |= vk.MemoryPropertyDeviceLocalBit
	}
	if p&device.MemoryPropertyHostVisible != 0 {
		flags |= vk.MemoryPropertyHostVisibleBit
	}
	if p&device.MemoryPropertyHostCoherent != 0 {
		flags |= vk.MemoryPropertyHostCoherentBit
	}
	return vk.MemoryPropertyFlags(flags)
}

func accessFlags(a device.AccessFlags) vk.AccessFlags {
	var flags vk.AccessFlagBits
	if a&device.AccessIndirectCommandRead != 0 {
		flags |= vk.AccessIndirectCommandReadBit
	}
	if a&device.AccessIndexRead != 0 {
		flags |= vk.AccessIndexReadBit
	}
	if a&device.AccessVertexAttributeRead != 0 {
		flags |= vk.AccessVertexAttributeReadBit
	}
	if a&device.AccessUniformRead != 0 {
		flags |= vk.AccessUniformReadBit
	}
	if a&device.AccessShaderRead != 0 {
		flags |= vk.AccessShaderReadBit
	}
	if a&device.AccessShaderWrite != 0 {
		flags |= vk.AccessShaderWriteBit
	}
	if a&device.AccessTransferRead != 0 {
		flags |= vk.AccessTransferReadBit
	}
	if a&device.AccessTransferWrite != 0 {
		flags |= vk.AccessTransferWriteBit
	}
	if a&device.AccessHostWrite != 0 {
		flags |= vk.AccessHostWriteBit
	}
	return vk.AccessFlags(flags)
}

func pipelineStageFlags(s device.PipelineStage) vk.PipelineStageFlags {
	if s&device.PipelineStageAllCommands != 0 {
		return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
	var flags vk.PipelineStageFlagBits
	if s&device.PipelineStageTopOfPipe != 0 {
		flags |= vk.PipelineStageTopOfPipeBit
	}
	if s&device.PipelineStageDrawIndirect != 0 {
		flags |= vk.PipelineStageDrawIndirectBit
	}
	if s&device.PipelineStageVertexInput != 0 {
		flags |= vk.PipelineStageVertexInputBit
	}
	if s&device.PipelineStageVertexShader != 0 {
		flags |= vk.PipelineStageVertexShaderBit
	}
	if s&device.PipelineStageFragmentShader != 0 {
		flags |= vk.PipelineStageFragmentShaderBit
	}
	if s&device.PipelineStageComputeShader != 0 {
		flags |= vk.PipelineStageComputeShaderBit
	}
	if s&device.PipelineStageTransfer != 0 {
		flags |= vk.PipelineStageTransferBit
	}
	if s&device.PipelineStageBottomOfPipe != 0 {
		flags |= vk.PipelineStageBottomOfPipeBit
	}
	if flags == 0 {
		flags = vk.PipelineStageTopOfPipeBit
	}
	return vk.PipelineStageFlags(flags)
}

func shaderStageFlags(s device.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlagBits
	if s&device.ShaderStageVertex != 0 {
		flags |= vk.ShaderStageVertexBit
	}
	if s&device.ShaderStageFragment != 0 {
		flags |= vk.ShaderStageFragmentBit
	}
	if s&device.ShaderStageCompute != 0 {
		flags |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(flags)
}

func descriptorType(t device.DescriptorType) vk.DescriptorType {
	switch t {
	case device.DescriptorTypeUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case device.DescriptorTypeCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	default:
		return vk.DescriptorTypeStorageBuffer
	}
}

func bindPoint(p device.BindPoint) vk.PipelineBindPoint {
	if p == device.BindPointCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}
