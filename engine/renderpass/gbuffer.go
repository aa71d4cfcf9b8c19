package renderpass

import (
	"fmt"
	"path/filepath"
	"unsafe"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/culling"
	"github.com/spaghettifunk/maple/engine/gpuscene"
	"github.com/spaghettifunk/maple/engine/math"
	"github.com/spaghettifunk/maple/engine/renderer/device"
)

const (
	GBufferPipelineName = "gbuffer"
	GBufferVertexShader = "gbuffer.vert.spv"
	GBufferFragShader   = "gbuffer.frag.spv"

	BindingCamera = "camera"
)

// Attachment names, in the order the lighting pass samples them.
var GBufferAttachments = []string{"gbufferAlbedo", "gbufferNormal", "gbufferMaterial"}

var GBufferLayout = []device.BindingDesc{
	{Name: gpuscene.BindingInstanceData, Binding: 0, Type: device.DescriptorTypeStorageBuffer, Stages: device.ShaderStageVertex | device.ShaderStageFragment},
	{Name: gpuscene.BindingMaterialData, Binding: 1, Type: device.DescriptorTypeStorageBuffer, Stages: device.ShaderStageFragment},
	{Name: BindingCamera, Binding: 2, Type: device.DescriptorTypeStorageBuffer, Stages: device.ShaderStageVertex},
	{Name: gpuscene.BindingImageSamplers, Binding: 3, Type: device.DescriptorTypeCombinedImageSampler, Stages: device.ShaderStageFragment},
}

/**
 * @brief Rasterizes every instance of the gpu scene into the GBuffer with a
 * single indirect draw. When culling is enabled the compute pass runs first
 * and the culled command buffer is drawn.
 */
type GBufferPass struct {
	device      device.Device
	pipeline    device.Pipeline
	gpuScene    *gpuscene.Scene
	culling     *culling.Pass
	camera      *device.HostBuffer
	attachments []device.Image
}

func NewGBufferPass(dev device.Device, shaderDir string, width, height uint32, gs *gpuscene.Scene, cull *culling.Pass) (*GBufferPass, error) {
	p, err := dev.CreateGraphicsPipeline(device.GraphicsPipelineConfig{
		Name:               GBufferPipelineName,
		VertexShaderPath:   filepath.Join(shaderDir, GBufferVertexShader),
		FragmentShaderPath: filepath.Join(shaderDir, GBufferFragShader),
		VertexStride:       uint32(unsafe.Sizeof(math.Vertex3D{})),
		Bindings:           GBufferLayout,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create gbuffer pipeline: %w", err)
	}
	var empty gpuscene.CameraData
	camera, err := device.NewStorageBuffer(dev, device.ValueBytes(&empty))
	if err != nil {
		p.Destroy()
		return nil, err
	}
	pass := &GBufferPass{
		device:   dev,
		pipeline: p,
		gpuScene: gs,
		culling:  cull,
		camera:   camera,
	}
	blank := make([]byte, int(width)*int(height)*4)
	for _, name := range GBufferAttachments {
		img, err := dev.CreateImage(name, width, height, blank)
		if err != nil {
			pass.Destroy()
			return nil, fmt.Errorf("could not create attachment '%s': %w", name, err)
		}
		pass.attachments = append(pass.attachments, img)
	}
	return pass, nil
}

// PreRender records the culling dispatch. Without culling or a camera nothing is recorded.
func (p *GBufferPass) PreRender(stream device.CommandStream) error {
	if p.culling == nil || !p.gpuScene.CullingEnabled() || p.gpuScene.InstanceCount() == 0 {
		return nil
	}
	cam, err := p.gpuScene.Source().Camera()
	if err != nil {
		core.LogDebug("gbuffer pass: %s, culling skipped", err)
		return nil
	}
	return p.culling.Record(stream, p.gpuScene, cam)
}

/**
 * @brief Binds the scene and draws it.
 * @return false if nothing was drawn this frame.
 */
func (p *GBufferPass) Render(stream device.CommandStream) bool {
	if p.pipeline == nil {
		core.LogError("gbuffer pass: %s", core.ErrPipelineNotReady)
		return false
	}
	if p.gpuScene.InstanceCount() == 0 {
		return false
	}
	cam, err := p.gpuScene.Source().Camera()
	if err != nil {
		core.LogWarn("gbuffer pass: %s", err)
		return false
	}
	cd := gpuscene.NewCameraData(cam)
	if _, err := p.camera.Update(device.ValueBytes(&cd)); err != nil {
		core.LogError("gbuffer pass: camera upload failed: %s", err)
		return false
	}

	useCulled := p.culling != nil && p.gpuScene.CullingEnabled()
	bindings := device.NewBindings(p.pipeline)
	if err := p.gpuScene.PushDescriptors(bindings, useCulled); err != nil {
		core.LogError("gbuffer pass: %s", err)
		return false
	}
	if err := bindings.PushBuffer(BindingCamera, p.camera.Buffer()); err != nil {
		core.LogError("gbuffer pass: %s", err)
		return false
	}
	stream.BindPipeline(p.pipeline)
	if err := stream.BindDescriptors(p.pipeline, bindings); err != nil {
		core.LogError("gbuffer pass: %s", err)
		return false
	}
	return p.gpuScene.CmdRenderIndirect(stream, useCulled)
}

func (p *GBufferPass) Attachments() []device.Image {
	return p.attachments
}

func (p *GBufferPass) CameraBuffer() device.Buffer {
	return p.camera.Buffer()
}

func (p *GBufferPass) Destroy() {
	for _, img := range p.attachments {
		img.Destroy()
	}
	p.attachments = nil
	p.camera.Destroy()
	p.pipeline.Destroy()
}
