package device

import (
	"fmt"

	"github.com/spaghettifunk/maple/engine/core"
)

// WriteMapped copies data into a host visible buffer with map, copy, flush, unmap.
func WriteMapped(buf Buffer, data []byte) error {
	dst, err := buf.Map()
	if err != nil {
		return err
	}
	copy(dst, data)
	if err := buf.Flush(); err != nil {
		buf.Unmap()
		return err
	}
	buf.Unmap()
	return nil
}

// HostBuffer is a host visible buffer that is rewritten in place while its size does not change.
type HostBuffer struct {
	dev   Device
	buf   Buffer
	usage BufferUsage
}

func NewHostBuffer(dev Device, data []byte, usage BufferUsage) (*HostBuffer, error) {
	hb := &HostBuffer{
		dev:   dev,
		usage: usage,
	}
	if _, err := hb.Update(data); err != nil {
		return nil, err
	}
	return hb, nil
}

// NewStorageBuffer creates a host visible storage buffer holding data.
func NewStorageBuffer(dev Device, data []byte) (*HostBuffer, error) {
	return NewHostBuffer(dev, data, BufferUsageStorage|BufferUsageTransferDst)
}

// NewIndirectBuffer creates a buffer usable both as a storage target and as indirect draw arguments.
func NewIndirectBuffer(dev Device, cmds []DrawIndexedIndirectCommand) (*HostBuffer, error) {
	return NewHostBuffer(dev, AsBytes(cmds), BufferUsageStorage|BufferUsageIndirect|BufferUsageTransferDst)
}

/**
 * @brief Writes data into the buffer. When the size is unchanged the existing allocation
 * is mapped and overwritten, otherwise the buffer is destroyed and allocated again.
 *
 * @param data The new content.
 * @return true if the underlying buffer was reallocated.
 */
func (hb *HostBuffer) Update(data []byte) (bool, error) {
	if len(data) == 0 {
		return false, fmt.Errorf("%w: cannot create an empty buffer", core.ErrBufferAllocation)
	}
	reallocated := false
	if hb.buf == nil || hb.buf.Size() != uint64(len(data)) {
		if hb.buf != nil {
			hb.buf.Destroy()
			hb.buf = nil
		}
		buf, err := hb.dev.CreateBuffer(uint64(len(data)), hb.usage, MemoryPropertyHostVisible)
		if err != nil {
			return false, fmt.Errorf("%w: %w", core.ErrBufferAllocation, err)
		}
		hb.buf = buf
		reallocated = true
	}
	if err := WriteMapped(hb.buf, data); err != nil {
		return reallocated, err
	}
	return reallocated, nil
}

func (hb *HostBuffer) Buffer() Buffer {
	return hb.buf
}

func (hb *HostBuffer) Size() uint64 {
	if hb == nil || hb.buf == nil {
		return 0
	}
	return hb.buf.Size()
}

// Count returns the number of indirect commands the buffer holds.
func (hb *HostBuffer) Count() uint32 {
	return uint32(hb.Size() / uint64(DrawIndexedIndirectCommandSize))
}

func (hb *HostBuffer) Destroy() {
	if hb.buf != nil {
		hb.buf.Destroy()
		hb.buf = nil
	}
}

/**
 * @brief Creates a device local buffer filled with data through a staging buffer.
 * The copy is recorded, submitted and waited on, then the staging buffer is released.
 *
 * @param dev The device.
 * @param data The bytes to upload.
 * @param usage The usage of the destination buffer. TransferDst is added.
 * @return The device local buffer.
 */
func UploadDeviceLocal(dev Device, data []byte, usage BufferUsage) (Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: cannot upload an empty buffer", core.ErrBufferAllocation)
	}
	size := uint64(len(data))

	staging, err := dev.CreateBuffer(size, BufferUsageTransferSrc, MemoryPropertyHostShared)
	if err != nil {
		return nil, fmt.Errorf("%w: staging buffer: %w", core.ErrBufferAllocation, err)
	}
	defer staging.Destroy()

	if err := WriteMapped(staging, data); err != nil {
		return nil, err
	}

	dst, err := dev.CreateBuffer(size, usage|BufferUsageTransferDst, MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrBufferAllocation, err)
	}

	barrier := uploadBarrier(usage)
	if err := dev.SubmitIdle(func(cs CommandStream) error {
		cs.CopyBuffer(staging, dst, size)
		cs.PipelineBarrier(barrier)
		return nil
	}); err != nil {
		dst.Destroy()
		return nil, err
	}
	return dst, nil
}

// uploadBarrier makes a transfer write visible to every consumer the usage implies.
func uploadBarrier(usage BufferUsage) Barrier {
	b := Barrier{
		SrcAccess: AccessTransferWrite,
		SrcStage:  PipelineStageTransfer,
	}
	if usage&(BufferUsageVertex|BufferUsageIndex) != 0 {
		b.DstAccess |= BarrierTransferToVertexInput.DstAccess
		b.DstStage |= BarrierTransferToVertexInput.DstStage
	}
	if usage&BufferUsageAccelerationStructureInput != 0 {
		b.DstAccess |= BarrierTransferToASBuild.DstAccess
		b.DstStage |= BarrierTransferToASBuild.DstStage
	}
	if usage&(BufferUsageStorage|BufferUsageUniform) != 0 || b.DstAccess == 0 {
		b.DstAccess |= BarrierTransferToShaderRead.DstAccess
		b.DstStage |= BarrierTransferToShaderRead.DstStage
	}
	return b
}
