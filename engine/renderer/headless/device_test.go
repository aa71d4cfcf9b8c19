package headless

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/renderer/device"
)

var writerLayout = []device.BindingDesc{
	{Name: "input", Binding: 0, Type: device.DescriptorTypeStorageBuffer, Stages: device.ShaderStageCompute},
	{Name: "output", Binding: 1, Type: device.DescriptorTypeStorageBuffer, Stages: device.ShaderStageCompute, Writable: true},
}

// doubleKernel writes input[i]*2 into output[i] as little endian uint32.
func doubleKernel(inv device.Invocation) error {
	in, _ := inv.Bindings.Buffer("input")
	out, _ := inv.Bindings.Buffer("output")
	src := in.(*Buffer).Bytes()
	dst := out.(*Buffer).Bytes()
	for i := 0; i+4 <= len(src) && i+4 <= len(dst); i += 4 {
		binary.LittleEndian.PutUint32(dst[i:], binary.LittleEndian.Uint32(src[i:])*2)
	}
	return nil
}

func newWriterSetup(t *testing.T) (*Device, device.Pipeline, *device.Bindings, device.Buffer) {
	t.Helper()
	dev := NewDevice(DefaultOptions())
	dev.RegisterKernel("double", doubleKernel)

	p, err := dev.CreateComputePipeline(device.ComputePipelineConfig{Name: "double", Bindings: writerLayout})
	require.NoError(t, err)

	in, err := device.NewStorageBuffer(dev, device.AsBytes([]uint32{1, 2, 3, 4, 5}))
	require.NoError(t, err)

	cmds := make([]device.DrawIndexedIndirectCommand, 1)
	out, err := device.NewIndirectBuffer(dev, cmds)
	require.NoError(t, err)

	b := device.NewBindings(p)
	require.NoError(t, b.PushBuffer("input", in.Buffer()))
	require.NoError(t, b.PushBuffer("output", out.Buffer()))
	return dev, p, b, out.Buffer()
}

func TestDispatchRunsRegisteredKernel(t *testing.T) {
	dev, p, b, out := newWriterSetup(t)

	require.NoError(t, dev.SubmitIdle(func(cs device.CommandStream) error {
		cs.BindPipeline(p)
		if err := cs.BindDescriptors(p, b); err != nil {
			return err
		}
		cs.Dispatch(1, 1, 1)
		return nil
	}))

	got := device.FromBytes[uint32](out.(*Buffer).Bytes())
	assert.Equal(t, []uint32{2, 4, 6, 8, 10}, got)
	assert.Equal(t, uint32(1), dev.LastStats().Dispatches)
}

func TestIndirectDrawWithoutBarrierIsRejected(t *testing.T) {
	dev, p, b, out := newWriterSetup(t)

	record := func(withBarrier bool) func(device.CommandStream) error {
		return func(cs device.CommandStream) error {
			cs.BindPipeline(p)
			if err := cs.BindDescriptors(p, b); err != nil {
				return err
			}
			cs.Dispatch(1, 1, 1)
			if withBarrier {
				cs.PipelineBarrier(device.BarrierComputeToIndirect)
			}
			cs.DrawIndexedIndirect(out, 0, 1, device.DrawIndexedIndirectCommandSize)
			return nil
		}
	}

	err := dev.SubmitIdle(record(false))
	assert.ErrorIs(t, err, core.ErrSyncHazard)

	require.NoError(t, dev.SubmitIdle(record(true)))
	stats := dev.LastStats()
	assert.Equal(t, uint32(1), stats.Barriers)
	assert.Equal(t, uint32(1), stats.IndirectDraws)
	// doubled {1,2,...} gives indexCount 2 and instanceCount 4
	assert.Equal(t, uint32(1), stats.DrawCommands)
	assert.Equal(t, uint32(4), stats.DrawnInstances)
}

func TestBarrierMustCoverTheWriter(t *testing.T) {
	dev, p, b, out := newWriterSetup(t)

	err := dev.SubmitIdle(func(cs device.CommandStream) error {
		cs.BindPipeline(p)
		if err := cs.BindDescriptors(p, b); err != nil {
			return err
		}
		cs.Dispatch(1, 1, 1)
		// wrong source stage
		cs.PipelineBarrier(device.Barrier{
			SrcAccess: device.AccessShaderWrite,
			DstAccess: device.AccessIndirectCommandRead,
			SrcStage:  device.PipelineStageTransfer,
			DstStage:  device.PipelineStageDrawIndirect,
		})
		cs.DrawIndexedIndirect(out, 0, 1, device.DrawIndexedIndirectCommandSize)
		return nil
	})
	assert.ErrorIs(t, err, core.ErrSyncHazard)
}

func TestVertexReadAfterCopyNeedsBarrier(t *testing.T) {
	dev := NewDevice(DefaultOptions())
	staging, err := dev.CreateBuffer(64, device.BufferUsageTransferSrc, device.MemoryPropertyHostShared)
	require.NoError(t, err)
	vertices, err := dev.CreateBuffer(64, device.BufferUsageVertex|device.BufferUsageTransferDst, device.MemoryPropertyDeviceLocal)
	require.NoError(t, err)
	indirect, err := device.NewIndirectBuffer(dev, []device.DrawIndexedIndirectCommand{{IndexCount: 3, InstanceCount: 1}})
	require.NoError(t, err)

	draw := func(barrier bool) error {
		return dev.SubmitIdle(func(cs device.CommandStream) error {
			cs.CopyBuffer(staging, vertices, 64)
			if barrier {
				cs.PipelineBarrier(device.BarrierTransferToVertexInput)
			}
			cs.BindVertexBuffer(vertices)
			cs.DrawIndexedIndirect(indirect.Buffer(), 0, 1, device.DrawIndexedIndirectCommandSize)
			return nil
		})
	}
	assert.ErrorIs(t, draw(false), core.ErrSyncHazard)
	assert.NoError(t, draw(true))
}

func TestDeviceLocalBuffersCannotBeMapped(t *testing.T) {
	dev := NewDevice(DefaultOptions())
	buf, err := dev.CreateBuffer(16, device.BufferUsageStorage, device.MemoryPropertyDeviceLocal)
	require.NoError(t, err)
	_, err = buf.Map()
	assert.ErrorIs(t, err, ErrNotHostVisible)

	_, err = dev.CreateBuffer(0, device.BufferUsageStorage, device.MemoryPropertyHostVisible)
	assert.ErrorIs(t, err, core.ErrBufferAllocation)
}

func TestDispatchWithoutKernelFails(t *testing.T) {
	dev := NewDevice(DefaultOptions())
	p, err := dev.CreateComputePipeline(device.ComputePipelineConfig{Name: "unknown"})
	require.NoError(t, err)
	err = dev.SubmitIdle(func(cs device.CommandStream) error {
		cs.BindPipeline(p)
		if err := cs.BindDescriptors(p, device.NewBindings(p)); err != nil {
			return err
		}
		cs.Dispatch(1, 1, 1)
		return nil
	})
	assert.ErrorIs(t, err, core.ErrPipelineNotReady)
}

func TestPushConstantsBeyondRangeFail(t *testing.T) {
	dev := NewDevice(DefaultOptions())
	p, err := dev.CreateComputePipeline(device.ComputePipelineConfig{Name: "small", PushConstantSize: 4})
	require.NoError(t, err)
	err = dev.SubmitIdle(func(cs device.CommandStream) error {
		cs.PushConstants(p, 0, make([]byte, 8))
		return nil
	})
	assert.Error(t, err)
}

func TestDuplicateBindingIsRejected(t *testing.T) {
	dev := NewDevice(DefaultOptions())
	_, err := dev.CreateComputePipeline(device.ComputePipelineConfig{
		Name: "dup",
		Bindings: []device.BindingDesc{
			{Name: "a", Binding: 0},
			{Name: "a", Binding: 1},
		},
	})
	assert.ErrorIs(t, err, core.ErrDuplicateBinding)
}

func TestAccelerationStructuresNeedRayTracing(t *testing.T) {
	_, ok := NewDevice(DefaultOptions()).AccelerationStructures()
	assert.False(t, ok)

	dev := NewDevice(Options{MaxBindlessImages: 8, RayTracing: true})
	builder, ok := dev.AccelerationStructures()
	require.True(t, ok)

	vb, err := dev.CreateBuffer(44*3, device.BufferUsageVertex|device.BufferUsageAccelerationStructureInput, device.MemoryPropertyDeviceLocal)
	require.NoError(t, err)
	ib, err := dev.CreateBuffer(12, device.BufferUsageIndex|device.BufferUsageAccelerationStructureInput, device.MemoryPropertyDeviceLocal)
	require.NoError(t, err)

	var blas, tlas device.AccelerationStructure
	require.NoError(t, dev.SubmitIdle(func(cs device.CommandStream) error {
		var err error
		blas, err = builder.BuildBLAS(cs, device.BLASGeometry{VertexBuffer: vb, VertexStride: 44, VertexCount: 3, IndexBuffer: ib, IndexCount: 3})
		if err != nil {
			return err
		}
		tlas, err = builder.BuildTLAS(cs, []device.ASInstance{{CustomIndex: 7, Mask: 0xFF, BLAS: blas}}, nil, false)
		return err
	}))
	require.NoError(t, dev.SubmitIdle(func(cs device.CommandStream) error {
		_, err := builder.BuildTLAS(cs, []device.ASInstance{{CustomIndex: 7, Mask: 0xFF, BLAS: blas}}, tlas, true)
		return err
	}))

	full, updates := tlas.(*AccelerationStructure).Builds()
	assert.Equal(t, 1, full)
	assert.Equal(t, 1, updates)
	assert.Equal(t, uint32(7), tlas.(*AccelerationStructure).Instances()[0].CustomIndex)
}

func TestFrameBuffersStayInFlightUntilWaitFrame(t *testing.T) {
	dev, p, b, out := newWriterSetup(t)
	in, ok := b.Buffer("input")
	require.True(t, ok)
	spare, err := dev.CreateBuffer(16, device.BufferUsageStorage, device.MemoryPropertyHostVisible)
	require.NoError(t, err)

	stream, err := dev.BeginFrame()
	require.NoError(t, err)
	stream.BindPipeline(p)
	require.NoError(t, stream.BindDescriptors(p, b))
	stream.Dispatch(1, 1, 1)
	stream.PipelineBarrier(device.BarrierComputeToIndirect)
	stream.DrawIndexedIndirect(out, 0, 1, device.DrawIndexedIndirectCommandSize)
	require.NoError(t, dev.EndFrame(stream))

	// the frame never touched spare
	require.NoError(t, device.WriteMapped(spare, make([]byte, 16)))

	_, err = in.Map()
	assert.ErrorIs(t, err, core.ErrSyncHazard)
	out.Destroy()
	assert.Len(t, dev.Violations(), 2)

	require.NoError(t, dev.WaitFrame())
	require.NoError(t, device.WriteMapped(in, make([]byte, 20)))
	in.Destroy()
	assert.Len(t, dev.Violations(), 2)
}

func TestBeginFrameRetiresThePreviousFrame(t *testing.T) {
	dev, p, b, _ := newWriterSetup(t)
	in, _ := b.Buffer("input")

	record := func(cs device.CommandStream) {
		cs.BindPipeline(p)
		require.NoError(t, cs.BindDescriptors(p, b))
		cs.Dispatch(1, 1, 1)
	}
	stream, err := dev.BeginFrame()
	require.NoError(t, err)
	record(stream)
	require.NoError(t, dev.EndFrame(stream))

	// writes recorded into the next frame come after the previous one retired
	stream, err = dev.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, device.WriteMapped(in, make([]byte, 20)))
	record(stream)
	require.NoError(t, dev.EndFrame(stream))

	require.NoError(t, dev.WaitIdle())
	in.Destroy()
	assert.Empty(t, dev.Violations())
}
