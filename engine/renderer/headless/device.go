package headless

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/renderer/device"
)

type Options struct {
	MaxBindlessImages uint32
	RayTracing        bool
}

func DefaultOptions() Options {
	return Options{
		MaxBindlessImages: 1024,
	}
}

// Stats counts what the last submitted stream did.
type Stats struct {
	Barriers       uint32
	Copies         uint32
	CopiedBytes    uint64
	Dispatches     uint32
	IndirectDraws  uint32
	DrawCommands   uint32
	DrawnInstances uint32
	DrawnIndices   uint64
	Draws          uint32
	ASBuilds       uint32
}

// Device is a CPU implementation of device.Device. Compute dispatches run kernels
// registered by pipeline name, draws are only counted.
type Device struct {
	mu      sync.Mutex
	opts    Options
	kernels map[string]device.Kernel

	nextID      uint64
	live        map[*Buffer]struct{}
	// buffers read by the last frame until WaitFrame
	inFlight    map[*Buffer]struct{}
	violations  []error
	flushes     uint64
	submissions uint64
	last        Stats
	inFrame     bool
	shutdown    bool
}

var (
	_ device.Device         = (*Device)(nil)
	_ device.KernelRegistry = (*Device)(nil)
)

func NewDevice(opts Options) *Device {
	return &Device{
		opts:     opts,
		kernels:  make(map[string]device.Kernel),
		live:     make(map[*Buffer]struct{}),
		inFlight: make(map[*Buffer]struct{}),
	}
}

func (d *Device) Name() string {
	return "headless"
}

func (d *Device) Limits() device.Limits {
	return device.Limits{
		MaxBindlessImages:        d.opts.MaxBindlessImages,
		MaxComputeWorkGroupCount: 65535,
		MaxPushConstantSize:      128,
		RayTracing:               d.opts.RayTracing,
	}
}

func (d *Device) RegisterKernel(pipelineName string, k device.Kernel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernels[pipelineName] = k
}

func (d *Device) CreateBuffer(size uint64, usage device.BufferUsage, props device.MemoryProperty) (device.Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: zero sized buffer", core.ErrBufferAllocation)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdown {
		return nil, core.ErrDeviceLost
	}
	d.nextID++
	b := &Buffer{
		dev:   d,
		id:    d.nextID,
		size:  size,
		usage: usage,
		props: props,
		data:  make([]byte, size),
	}
	d.live[b] = struct{}{}
	return b, nil
}

func (d *Device) release(b *Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inFlight[b]; ok {
		err := fmt.Errorf("%w: %s destroyed while the last frame reads it", core.ErrSyncHazard, b)
		core.LogError("%s", err)
		d.violations = append(d.violations, err)
		delete(d.inFlight, b)
	}
	delete(d.live, b)
}

// checkHostAccess fails if the last frame still reads b.
func (d *Device) checkHostAccess(b *Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inFlight[b]; !ok {
		return nil
	}
	err := fmt.Errorf("%w: %s mapped while the last frame reads it", core.ErrSyncHazard, b)
	d.violations = append(d.violations, err)
	return err
}

func (d *Device) countFlush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushes++
}

func (d *Device) CreateImage(name string, width, height uint32, pixels []byte) (device.Image, error) {
	if uint64(len(pixels)) != uint64(width)*uint64(height)*4 {
		return nil, fmt.Errorf("image '%s': expected %d bytes of RGBA8, got %d", name, width*height*4, len(pixels))
	}
	return &Image{
		name:   name,
		width:  width,
		height: height,
		pixels: append([]byte(nil), pixels...),
	}, nil
}

func (d *Device) CreateComputePipeline(cfg device.ComputePipelineConfig) (device.Pipeline, error) {
	if err := device.ValidateLayout(cfg.Bindings); err != nil {
		return nil, err
	}
	return &Pipeline{
		name:      cfg.Name,
		bindPoint: device.BindPointCompute,
		layout:    append([]device.BindingDesc(nil), cfg.Bindings...),
		pushSize:  cfg.PushConstantSize,
	}, nil
}

func (d *Device) CreateGraphicsPipeline(cfg device.GraphicsPipelineConfig) (device.Pipeline, error) {
	if err := device.ValidateLayout(cfg.Bindings); err != nil {
		return nil, err
	}
	return &Pipeline{
		name:      cfg.Name,
		bindPoint: device.BindPointGraphics,
		layout:    append([]device.BindingDesc(nil), cfg.Bindings...),
		pushSize:  cfg.PushConstantSize,
	}, nil
}

func (d *Device) SubmitIdle(record func(device.CommandStream) error) error {
	s := &Stream{dev: d}
	if err := record(s); err != nil {
		return err
	}
	return d.submit(s)
}

// WaitFrame retires the last frame. Frames execute on submit, so only the
// in flight bookkeeping is cleared.
func (d *Device) WaitFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.inFlight)
	return nil
}

func (d *Device) BeginFrame() (device.CommandStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFrame {
		return nil, fmt.Errorf("frame already begun")
	}
	clear(d.inFlight)
	d.inFrame = true
	return &Stream{dev: d}, nil
}

// EndFrame executes the stream. Every buffer it references stays in flight
// until the next WaitFrame or BeginFrame.
func (d *Device) EndFrame(stream device.CommandStream) error {
	d.mu.Lock()
	d.inFrame = false
	d.mu.Unlock()

	s, ok := stream.(*Stream)
	if !ok {
		return fmt.Errorf("stream %T does not belong to the headless device", stream)
	}
	if err := d.submit(s); err != nil {
		return err
	}
	referenced := s.buffers()
	d.mu.Lock()
	for _, b := range referenced {
		d.inFlight[b] = struct{}{}
	}
	d.mu.Unlock()
	return nil
}

func (d *Device) AccelerationStructures() (device.ASBuilder, bool) {
	if !d.opts.RayTracing {
		return nil, false
	}
	return &asBuilder{dev: d}, true
}

func (d *Device) WaitIdle() error {
	return d.WaitFrame()
}

func (d *Device) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.live) > 0 {
		core.LogWarn("headless device shut down with %d live buffers", len(d.live))
	}
	d.shutdown = true
	return nil
}

// LastStats returns the counters of the most recent submission.
func (d *Device) LastStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

func (d *Device) Submissions() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submissions
}

// Violations returns every host write or destroy of a buffer the last frame
// was still reading.
func (d *Device) Violations() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.violations...)
}

func (d *Device) Flushes() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushes
}

// submit validates the whole stream, then executes it in order.
func (d *Device) submit(s *Stream) error {
	if s.err != nil {
		return s.err
	}
	if err := validate(s.commands); err != nil {
		core.LogError("%s", err)
		return err
	}

	stats := Stats{}
	var (
		pipeline *Pipeline
		bindings = make(map[*Pipeline]*device.Bindings)
		push     = make(map[*Pipeline][]byte)
	)
	for i, c := range s.commands {
		switch c.op {
		case opBarrier:
			stats.Barriers++
		case opCopy:
			if err := copyBuffer(c.src, c.dst, c.size); err != nil {
				return fmt.Errorf("command %d: %w", i, err)
			}
			stats.Copies++
			stats.CopiedBytes += c.size
		case opBindPipeline:
			pipeline = c.pipeline
		case opBindDescriptors:
			bindings[c.pipeline] = c.bindings
		case opPushConstants:
			buf := push[c.pipeline]
			if need := int(c.offset) + len(c.data); len(buf) < need {
				buf = append(buf, make([]byte, need-len(buf))...)
			}
			copy(buf[c.offset:], c.data)
			push[c.pipeline] = buf
		case opDispatch:
			if err := d.dispatch(pipeline, bindings[pipeline], push[pipeline], c.counts); err != nil {
				return fmt.Errorf("command %d: %w", i, err)
			}
			stats.Dispatches++
		case opDrawIndexedIndirect:
			n, inst, idx, err := readIndirect(c.src, c.offset, c.counts[0], c.stride)
			if err != nil {
				return fmt.Errorf("command %d: %w", i, err)
			}
			stats.IndirectDraws++
			stats.DrawCommands += n
			stats.DrawnInstances += inst
			stats.DrawnIndices += idx
		case opDraw:
			stats.Draws++
		case opBuildAS:
			c.as.builds++
			if c.as.kind == device.ASKindTopLevel {
				c.as.instances = c.asInstances
				if c.counts[1] == 1 {
					c.as.builds--
					c.as.updates++
				}
			}
			stats.ASBuilds++
		}
	}

	d.mu.Lock()
	d.last = stats
	d.submissions++
	d.mu.Unlock()
	return nil
}

func (d *Device) dispatch(p *Pipeline, b *device.Bindings, push []byte, groups [3]uint32) error {
	if p == nil || p.bindPoint != device.BindPointCompute {
		return fmt.Errorf("%w: dispatch without a bound compute pipeline", core.ErrPipelineNotReady)
	}
	if b == nil {
		return fmt.Errorf("%w: dispatch of '%s' without descriptors", core.ErrPipelineNotReady, p.name)
	}
	d.mu.Lock()
	k, ok := d.kernels[p.name]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no kernel registered for '%s'", core.ErrPipelineNotReady, p.name)
	}
	return k(device.Invocation{
		Pipeline:      p,
		Bindings:      b,
		PushConstants: push,
		GroupCount:    groups,
	})
}

func copyBuffer(src, dst *Buffer, size uint64) error {
	switch {
	case src.destroyed || dst.destroyed:
		return ErrDestroyed
	case src.usage&device.BufferUsageTransferSrc == 0:
		return fmt.Errorf("%s is not a transfer source", src)
	case dst.usage&device.BufferUsageTransferDst == 0:
		return fmt.Errorf("%s is not a transfer destination", dst)
	case size > src.size || size > dst.size:
		return fmt.Errorf("copy of %d bytes overflows %s -> %s", size, src, dst)
	}
	copy(dst.data[:size], src.data[:size])
	return nil
}

// readIndirect sums the non-empty draws of an indirect buffer.
func readIndirect(b *Buffer, offset uint64, drawCount, stride uint32) (uint32, uint32, uint64, error) {
	if b.usage&device.BufferUsageIndirect == 0 {
		return 0, 0, 0, fmt.Errorf("%s is not an indirect buffer", b)
	}
	if stride < device.DrawIndexedIndirectCommandSize {
		return 0, 0, 0, fmt.Errorf("indirect stride %d is smaller than a command", stride)
	}
	end := offset + uint64(drawCount-1)*uint64(stride) + uint64(device.DrawIndexedIndirectCommandSize)
	if drawCount > 0 && end > b.size {
		return 0, 0, 0, fmt.Errorf("indirect draw of %d commands overflows %s", drawCount, b)
	}
	var (
		commands, instances uint32
		indices             uint64
	)
	for i := uint32(0); i < drawCount; i++ {
		at := offset + uint64(i)*uint64(stride)
		indexCount := binary.LittleEndian.Uint32(b.data[at:])
		instanceCount := binary.LittleEndian.Uint32(b.data[at+4:])
		if indexCount == 0 || instanceCount == 0 {
			continue
		}
		commands++
		instances += instanceCount
		indices += uint64(indexCount) * uint64(instanceCount)
	}
	return commands, instances, indices, nil
}
