package device

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
	BufferUsageIndirect
	BufferUsageDeviceAddress
	BufferUsageAccelerationStructureInput
)

type MemoryProperty uint32

const (
	MemoryPropertyDeviceLocal MemoryProperty = 1 << iota
	MemoryPropertyHostVisible
	MemoryPropertyHostCoherent
)

// Host visible memory that needs no explicit flush.
const MemoryPropertyHostShared = MemoryPropertyHostVisible | MemoryPropertyHostCoherent

type AccessFlags uint32

const (
	AccessIndirectCommandRead AccessFlags = 1 << iota
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessShaderRead
	AccessShaderWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostWrite
	AccessAccelerationStructureRead
	AccessAccelerationStructureWrite
)

type PipelineStage uint32

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageDrawIndirect
	PipelineStageVertexInput
	PipelineStageVertexShader
	PipelineStageFragmentShader
	PipelineStageComputeShader
	PipelineStageTransfer
	PipelineStageAccelerationStructureBuild
	PipelineStageBottomOfPipe
	PipelineStageAllCommands
)

// Covers reports whether every stage in other is part of s. AllCommands covers everything.
func (s PipelineStage) Covers(other PipelineStage) bool {
	if s&PipelineStageAllCommands != 0 {
		return true
	}
	return s&other == other
}

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
	ShaderStageAll = ShaderStageVertex | ShaderStageFragment | ShaderStageCompute
)

type BindPoint int

const (
	BindPointGraphics BindPoint = iota
	BindPointCompute
)

type DescriptorType int

const (
	DescriptorTypeStorageBuffer DescriptorType = iota
	DescriptorTypeUniformBuffer
	DescriptorTypeCombinedImageSampler
)
