package renderpass

import (
	"fmt"
	"path/filepath"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/renderer/device"
	"github.com/spaghettifunk/maple/engine/systems"
)

const (
	DeferredPipelineName = "deferred"
	DeferredVertexShader = "deferred.vert.spv"
	DeferredFragShader   = "deferred.frag.spv"

	BindingGBuffer = "gbuffer"
	BindingLookups = "lookupTextures"
)

var DeferredLayout = []device.BindingDesc{
	{Name: BindingGBuffer, Binding: 0, Type: device.DescriptorTypeCombinedImageSampler, Count: 3, Stages: device.ShaderStageFragment},
	{Name: BindingLookups, Binding: 1, Type: device.DescriptorTypeCombinedImageSampler, Count: 4, Stages: device.ShaderStageFragment},
	{Name: BindingCamera, Binding: 2, Type: device.DescriptorTypeStorageBuffer, Stages: device.ShaderStageFragment},
}

// DeferredPass lights the GBuffer with a fullscreen triangle. It waits for the
// lookup textures without blocking, the draw is skipped until all of them exist.
type DeferredPass struct {
	pipeline device.Pipeline
	gbuffer  *GBufferPass
	lookups  *systems.PrecomputedSet
	waiting  bool
}

func NewDeferredPass(dev device.Device, shaderDir string, gbuffer *GBufferPass, lookups *systems.PrecomputedSet) (*DeferredPass, error) {
	p, err := dev.CreateGraphicsPipeline(device.GraphicsPipelineConfig{
		Name:               DeferredPipelineName,
		VertexShaderPath:   filepath.Join(shaderDir, DeferredVertexShader),
		FragmentShaderPath: filepath.Join(shaderDir, DeferredFragShader),
		Bindings:           DeferredLayout,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create deferred pipeline: %w", err)
	}
	return &DeferredPass{
		pipeline: p,
		gbuffer:  gbuffer,
		lookups:  lookups,
	}, nil
}

func (p *DeferredPass) lookupImages() ([]device.Image, bool) {
	names := p.lookups.Names()
	images := make([]device.Image, 0, len(names))
	for _, name := range names {
		img, ok := p.lookups.Get(name)
		if !ok {
			return nil, false
		}
		images = append(images, img.Handle)
	}
	return images, true
}

// Render returns false while the lookup textures are still being generated.
func (p *DeferredPass) Render(stream device.CommandStream) bool {
	lookups, ok := p.lookupImages()
	if !ok {
		if !p.waiting {
			core.LogDebug("deferred pass: lookup textures not ready, lighting skipped")
			p.waiting = true
		}
		return false
	}
	p.waiting = false

	bindings := device.NewBindings(p.pipeline)
	if err := bindings.PushImages(BindingGBuffer, p.gbuffer.Attachments()); err != nil {
		core.LogError("deferred pass: %s", err)
		return false
	}
	if err := bindings.PushImages(BindingLookups, lookups); err != nil {
		core.LogError("deferred pass: %s", err)
		return false
	}
	if err := bindings.PushBuffer(BindingCamera, p.gbuffer.CameraBuffer()); err != nil {
		core.LogError("deferred pass: %s", err)
		return false
	}
	stream.BindPipeline(p.pipeline)
	if err := stream.BindDescriptors(p.pipeline, bindings); err != nil {
		core.LogError("deferred pass: %s", err)
		return false
	}
	// fullscreen triangle generated from gl_VertexIndex
	stream.Draw(3, 1)
	return true
}

func (p *DeferredPass) Destroy() {
	p.pipeline.Destroy()
}
