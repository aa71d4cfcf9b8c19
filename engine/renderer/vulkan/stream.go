package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/renderer/device"
)

// Stream records straight into a command buffer. The first recording error is kept
// and returned on submit.
type Stream struct {
	context     *VulkanContext
	cb          *VulkanCommandBuffer
	descriptors *VulkanDescriptorAllocator
	fallback    *VulkanImage
	bound       *VulkanPipeline
	err         error
}

var _ device.CommandStream = (*Stream)(nil)

func (s *Stream) fail(err error) {
	if s.err == nil {
		s.err = err
		core.LogError("%s", err)
	}
}

func (s *Stream) buffer(b device.Buffer) (*Buffer, bool) {
	vb, ok := b.(*Buffer)
	if !ok || vb.Handle == nil {
		s.fail(fmt.Errorf("%T is not a live vulkan buffer", b))
		return nil, false
	}
	return vb, true
}

func (s *Stream) pipeline(p device.Pipeline) (*VulkanPipeline, bool) {
	vp, ok := p.(*VulkanPipeline)
	if !ok || vp.Handle == nil {
		s.fail(fmt.Errorf("%w: %T is not a live vulkan pipeline", core.ErrPipelineNotReady, p))
		return nil, false
	}
	return vp, true
}

func (s *Stream) PipelineBarrier(b device.Barrier) {
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: accessFlags(b.SrcAccess),
		DstAccessMask: accessFlags(b.DstAccess),
	}
	vk.CmdPipelineBarrier(s.cb.Handle,
		pipelineStageFlags(b.SrcStage), pipelineStageFlags(b.DstStage), vk.DependencyFlags(0),
		1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
}

func (s *Stream) CopyBuffer(src, dst device.Buffer, size uint64) {
	vs, ok := s.buffer(src)
	if !ok {
		return
	}
	vd, ok := s.buffer(dst)
	if !ok {
		return
	}
	if size > vs.size || size > vd.size {
		s.fail(fmt.Errorf("copy of %d bytes overflows %s -> %s", size, vs, vd))
		return
	}
	vk.CmdCopyBuffer(s.cb.Handle, vs.Handle, vd.Handle, 1, []vk.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}})
}

func (s *Stream) BindPipeline(p device.Pipeline) {
	vp, ok := s.pipeline(p)
	if !ok {
		return
	}
	vk.CmdBindPipeline(s.cb.Handle, bindPoint(vp.bindPoint), vp.Handle)
	s.bound = vp
}

func (s *Stream) BindDescriptors(p device.Pipeline, b *device.Bindings) error {
	vp, ok := s.pipeline(p)
	if !ok {
		return s.err
	}
	if err := b.Complete(); err != nil {
		return err
	}
	set, err := s.descriptors.Write(vp, b, s.fallback)
	if err != nil {
		return err
	}
	vk.CmdBindDescriptorSets(s.cb.Handle, bindPoint(vp.bindPoint), vp.PipelineLayout, 0, 1, []vk.DescriptorSet{set}, 0, nil)
	return nil
}

func (s *Stream) PushConstants(p device.Pipeline, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vp, ok := s.pipeline(p)
	if !ok {
		return
	}
	if offset+uint32(len(data)) > vp.pushSize {
		s.fail(fmt.Errorf("push constants [%d, %d) exceed the %d bytes of '%s'", offset, offset+uint32(len(data)), vp.pushSize, vp.name))
		return
	}
	vk.CmdPushConstants(s.cb.Handle, vp.PipelineLayout, vp.pushStages, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (s *Stream) Dispatch(x, y, z uint32) {
	if s.bound == nil || s.bound.bindPoint != device.BindPointCompute {
		s.fail(fmt.Errorf("%w: dispatch without a bound compute pipeline", core.ErrPipelineNotReady))
		return
	}
	vk.CmdDispatch(s.cb.Handle, x, y, z)
}

func (s *Stream) BindVertexBuffer(b device.Buffer) {
	vb, ok := s.buffer(b)
	if !ok {
		return
	}
	vk.CmdBindVertexBuffers(s.cb.Handle, 0, 1, []vk.Buffer{vb.Handle}, []vk.DeviceSize{0})
}

func (s *Stream) BindIndexBuffer(b device.Buffer) {
	vb, ok := s.buffer(b)
	if !ok {
		return
	}
	vk.CmdBindIndexBuffer(s.cb.Handle, vb.Handle, 0, vk.IndexTypeUint32)
}

func (s *Stream) DrawIndexedIndirect(b device.Buffer, offset uint64, drawCount, stride uint32) {
	vb, ok := s.buffer(b)
	if !ok {
		return
	}
	if vb.usage&device.BufferUsageIndirect == 0 {
		s.fail(fmt.Errorf("%s is not an indirect buffer", vb))
		return
	}
	vk.CmdDrawIndexedIndirect(s.cb.Handle, vb.Handle, vk.DeviceSize(offset), drawCount, stride)
}

func (s *Stream) Draw(vertexCount, instanceCount uint32) {
	vk.CmdDraw(s.cb.Handle, vertexCount, instanceCount, 0, 0)
}

// release frees what the stream allocated. Only valid once the GPU finished with it.
func (s *Stream) release() {
	s.descriptors.Destroy()
}
