package device_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/renderer/device"
	"github.com/spaghettifunk/maple/engine/renderer/headless"
)

func TestHostBufferRewritesInPlaceWhenSizeMatches(t *testing.T) {
	dev := headless.NewDevice(headless.DefaultOptions())

	hb, err := device.NewStorageBuffer(dev, device.AsBytes([]float32{1, 2, 3}))
	require.NoError(t, err)
	first := hb.Buffer()

	reallocated, err := hb.Update(device.AsBytes([]float32{4, 5, 6}))
	require.NoError(t, err)
	assert.False(t, reallocated)
	assert.Same(t, first, hb.Buffer())
	assert.Equal(t, []float32{4, 5, 6}, device.FromBytes[float32](hb.Buffer().(*headless.Buffer).Bytes()))

	reallocated, err = hb.Update(device.AsBytes([]float32{7, 8, 9, 10}))
	require.NoError(t, err)
	assert.True(t, reallocated)
	assert.NotSame(t, first, hb.Buffer())
	assert.True(t, first.(*headless.Buffer).Destroyed())
	assert.Equal(t, 1, dev.LiveBuffers())

	_, err = hb.Update(nil)
	assert.ErrorIs(t, err, core.ErrBufferAllocation)
}

func TestIndirectBufferCount(t *testing.T) {
	dev := headless.NewDevice(headless.DefaultOptions())
	ib, err := device.NewIndirectBuffer(dev, make([]device.DrawIndexedIndirectCommand, 7))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), ib.Count())
	assert.Equal(t, uint64(7*20), ib.Size())
	assert.NotZero(t, ib.Buffer().Usage()&device.BufferUsageIndirect)
}

func TestUploadDeviceLocalGoesThroughStaging(t *testing.T) {
	dev := headless.NewDevice(headless.DefaultOptions())
	data := device.AsBytes([]uint32{0, 1, 2, 2, 1, 3})

	buf, err := device.UploadDeviceLocal(dev, data, device.BufferUsageIndex)
	require.NoError(t, err)

	_, err = buf.Map()
	assert.ErrorIs(t, err, headless.ErrNotHostVisible)
	assert.Equal(t, data, buf.(*headless.Buffer).Bytes())

	stats := dev.LastStats()
	assert.Equal(t, uint32(1), stats.Copies)
	assert.Equal(t, uint32(1), stats.Barriers)
	// the staging buffer is released once the copy completed
	assert.Equal(t, 1, dev.LiveBuffers())
}

func TestBindingsRejectUnknownNamesAndOverflow(t *testing.T) {
	dev := headless.NewDevice(headless.DefaultOptions())
	p, err := dev.CreateGraphicsPipeline(device.GraphicsPipelineConfig{
		Name: "gbuffer",
		Bindings: []device.BindingDesc{
			{Name: "instanceDatas", Binding: 0, Type: device.DescriptorTypeStorageBuffer},
			{Name: "ImageSamplers", Binding: 1, Type: device.DescriptorTypeCombinedImageSampler, Count: 2},
		},
	})
	require.NoError(t, err)
	b := device.NewBindings(p)

	buf, err := dev.CreateBuffer(4, device.BufferUsageStorage, device.MemoryPropertyHostVisible)
	require.NoError(t, err)
	assert.ErrorIs(t, b.PushBuffer("missing", buf), core.ErrUnknownBinding)
	assert.Error(t, b.Complete())
	require.NoError(t, b.PushBuffer("instanceDatas", buf))
	assert.NoError(t, b.Complete())

	img, err := dev.CreateImage("white", 1, 1, []byte{255, 255, 255, 255})
	require.NoError(t, err)
	assert.NoError(t, b.PushImages("ImageSamplers", []device.Image{img, img}))
	assert.ErrorIs(t, b.PushImages("ImageSamplers", []device.Image{img, img, img}), core.ErrBindlessCapacityExceeded)
	assert.Error(t, b.PushImages("instanceDatas", nil))
}

func TestAsBytesViewsMemory(t *testing.T) {
	cmds := []device.DrawIndexedIndirectCommand{{IndexCount: 36, InstanceCount: 1, FirstIndex: 6, VertexOffset: -2, FirstInstance: 9}}
	raw := device.AsBytes(cmds)
	require.Len(t, raw, 20)
	back := device.FromBytes[device.DrawIndexedIndirectCommand](raw)
	assert.Equal(t, cmds, back)
	assert.Nil(t, device.AsBytes([]uint32(nil)))
}
