package device

import "unsafe"

// Barrier is a global memory barrier between two pipeline stages.
type Barrier struct {
	SrcAccess AccessFlags
	DstAccess AccessFlags
	SrcStage  PipelineStage
	DstStage  PipelineStage
}

var (
	// Culling output consumed by indirect draws.
	BarrierComputeToIndirect = Barrier{
		SrcAccess: AccessShaderWrite,
		DstAccess: AccessIndirectCommandRead,
		SrcStage:  PipelineStageComputeShader,
		DstStage:  PipelineStageDrawIndirect,
	}
	// Uploaded geometry consumed by the input assembler.
	BarrierTransferToVertexInput = Barrier{
		SrcAccess: AccessTransferWrite,
		DstAccess: AccessVertexAttributeRead | AccessIndexRead,
		SrcStage:  PipelineStageTransfer,
		DstStage:  PipelineStageVertexInput,
	}
	// Uploaded storage data consumed by any shader.
	BarrierTransferToShaderRead = Barrier{
		SrcAccess: AccessTransferWrite,
		DstAccess: AccessShaderRead,
		SrcStage:  PipelineStageTransfer,
		DstStage:  PipelineStageComputeShader | PipelineStageVertexShader | PipelineStageFragmentShader,
	}
	BarrierTransferToASBuild = Barrier{
		SrcAccess: AccessTransferWrite,
		DstAccess: AccessAccelerationStructureRead,
		SrcStage:  PipelineStageTransfer,
		DstStage:  PipelineStageAccelerationStructureBuild,
	}
)

// DrawIndexedIndirectCommand matches VkDrawIndexedIndirectCommand.
type DrawIndexedIndirectCommand struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

const DrawIndexedIndirectCommandSize = uint32(unsafe.Sizeof(DrawIndexedIndirectCommand{}))

// CommandStream records work for the device. Nothing runs until the stream is submitted.
type CommandStream interface {
	PipelineBarrier(b Barrier)
	CopyBuffer(src, dst Buffer, size uint64)
	BindPipeline(p Pipeline)
	BindDescriptors(p Pipeline, b *Bindings) error
	PushConstants(p Pipeline, offset uint32, data []byte)
	Dispatch(x, y, z uint32)
	BindVertexBuffer(b Buffer)
	BindIndexBuffer(b Buffer)
	DrawIndexedIndirect(b Buffer, offset uint64, drawCount, stride uint32)
	Draw(vertexCount, instanceCount uint32)
}

type Limits struct {
	MaxBindlessImages        uint32
	MaxComputeWorkGroupCount uint32
	MaxPushConstantSize      uint32
	RayTracing               bool
}

type Device interface {
	Name() string
	Limits() Limits
	CreateBuffer(size uint64, usage BufferUsage, props MemoryProperty) (Buffer, error)
	// CreateImage uploads RGBA8 pixels into a sampled image.
	CreateImage(name string, width, height uint32, pixels []byte) (Image, error)
	CreateComputePipeline(cfg ComputePipelineConfig) (Pipeline, error)
	CreateGraphicsPipeline(cfg GraphicsPipelineConfig) (Pipeline, error)
	// SubmitIdle records, submits and waits. Used for one-shot setup transfers.
	SubmitIdle(record func(CommandStream) error) error
	// WaitFrame blocks until the last submitted frame finished on the device.
	// Buffers that frame reads may only be written or destroyed after it.
	// BeginFrame waits as well.
	WaitFrame() error
	BeginFrame() (CommandStream, error)
	EndFrame(stream CommandStream) error
	AccelerationStructures() (ASBuilder, bool)
	WaitIdle() error
	Shutdown() error
}
