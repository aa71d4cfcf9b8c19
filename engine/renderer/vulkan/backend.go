package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/renderer/device"
)

type Options struct {
	ApplicationName string
	Validation      bool
	// Upper bound of runtime sized image arrays. The device limit wins when lower.
	MaxBindlessImages uint32
	// vkGetInstanceProcAddr from the platform layer. Nil loads the system Vulkan library.
	GetInstanceProcAddr unsafe.Pointer
}

// Device is an offscreen Vulkan implementation of device.Device. Frames are recorded
// into one command buffer and fenced, the CPU never runs more than a frame ahead.
type Device struct {
	context  *VulkanContext
	opts     Options
	limits   device.Limits
	fallback *VulkanImage

	// stream of the last submitted frame, released once its fence signals
	previous *Stream
	inFrame  bool
	shutdown bool
}

var _ device.Device = (*Device)(nil)

func New(opts Options) (*Device, error) {
	d := &Device{
		opts: opts,
		context: &VulkanContext{
			Allocator: nil,
		},
	}
	if err := d.initialize(); err != nil {
		_ = d.Shutdown()
		return nil, err
	}
	core.LogInfo("Vulkan device initialized successfully.")
	return d, nil
}

func (d *Device) initialize() error {
	if d.opts.GetInstanceProcAddr != nil {
		vk.SetGetInstanceProcAddr(d.opts.GetInstanceProcAddr)
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return fmt.Errorf("%w: vulkan loader: %w", core.ErrNotSupported, err)
	}
	if err := vk.Init(); err != nil {
		return fmt.Errorf("%w: vulkan init: %w", core.ErrNotSupported, err)
	}

	if err := d.createInstance(); err != nil {
		return err
	}
	if d.opts.Validation {
		if err := d.createDebugCallback(); err != nil {
			// validation output is optional
			core.LogWarn("debug report callback unavailable: %s", err)
		}
	}
	if err := DeviceCreate(d.context); err != nil {
		return err
	}

	limits := d.context.Device.Properties.Limits
	d.limits = device.Limits{
		MaxBindlessImages:        d.opts.MaxBindlessImages,
		MaxComputeWorkGroupCount: limits.MaxComputeWorkGroupCount[0],
		MaxPushConstantSize:      limits.MaxPushConstantsSize,
	}
	if maxImages := limits.MaxPerStageDescriptorSampledImages; d.limits.MaxBindlessImages == 0 || maxImages < d.limits.MaxBindlessImages {
		d.limits.MaxBindlessImages = maxImages
	}

	cb, err := NewVulkanCommandBuffer(d.context, d.context.Device.CommandPool)
	if err != nil {
		return err
	}
	d.context.FrameCommandBuffer = cb

	// signaled, the first frame has nothing to wait for
	fence, err := NewFence(d.context, true)
	if err != nil {
		return err
	}
	d.context.FrameFence = fence

	fallback, err := NewImage(d.context, "fallback", 1, 1, []byte{255, 255, 255, 255})
	if err != nil {
		return err
	}
	d.fallback = fallback
	return nil
}

func (d *Device) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(d.opts.ApplicationName),
		PEngineName:        VulkanSafeString("Maple"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := []string{}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, "VK_KHR_portability_enumeration", "VK_KHR_get_physical_device_properties2")
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	layers := []string{}
	if d.opts.Validation {
		if hasInstanceLayer("VK_LAYER_KHRONOS_validation") {
			layers = append(layers, "VK_LAYER_KHRONOS_validation")
			extensions = append(extensions, vk.ExtDebugReportExtensionName)
		} else {
			core.LogWarn("Validation requested but VK_LAYER_KHRONOS_validation is missing.")
			d.opts.Validation = false
		}
	}
	for _, e := range extensions {
		core.LogDebug("Required extension: %s", e)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, d.context.Allocator, &instance); res != vk.Success {
		return vulkanError("vkCreateInstance", res)
	}
	d.context.Instance = instance
	if err := vk.InitInstance(d.context.Instance); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func hasInstanceLayer(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (d *Device) createDebugCallback() error {
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}
	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(d.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
		return err
	}
	d.context.debugMessenger = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.False
}

func (d *Device) Name() string {
	return "vulkan:" + d.context.Device.Name
}

func (d *Device) Limits() device.Limits {
	return d.limits
}

func (d *Device) CreateBuffer(size uint64, usage device.BufferUsage, props device.MemoryProperty) (device.Buffer, error) {
	if d.shutdown {
		return nil, core.ErrDeviceLost
	}
	return NewBuffer(d.context, size, usage, props)
}

func (d *Device) CreateImage(name string, width, height uint32, pixels []byte) (device.Image, error) {
	if d.shutdown {
		return nil, core.ErrDeviceLost
	}
	return NewImage(d.context, name, width, height, pixels)
}

func (d *Device) CreateComputePipeline(cfg device.ComputePipelineConfig) (device.Pipeline, error) {
	return NewComputePipeline(d.context, cfg, d.limits)
}

// CreateGraphicsPipeline is not available offscreen, there is no render pass to draw into.
func (d *Device) CreateGraphicsPipeline(cfg device.GraphicsPipelineConfig) (device.Pipeline, error) {
	return nil, fmt.Errorf("%w: graphics pipeline '%s' on the offscreen vulkan device", core.ErrNotSupported, cfg.Name)
}

func (d *Device) newStream(cb *VulkanCommandBuffer) *Stream {
	return &Stream{
		context:     d.context,
		cb:          cb,
		descriptors: newDescriptorAllocator(d.context, d.limits.MaxBindlessImages),
		fallback:    d.fallback,
	}
}

func (d *Device) SubmitIdle(record func(device.CommandStream) error) error {
	cb, err := AllocateAndBeginSingleUse(d.context, d.context.Device.CommandPool)
	if err != nil {
		return err
	}
	s := d.newStream(cb)
	defer s.release()

	if err := record(s); err != nil {
		cb.Free(d.context, d.context.Device.CommandPool)
		return err
	}
	if s.err != nil {
		cb.Free(d.context, d.context.Device.CommandPool)
		return s.err
	}
	return cb.EndSingleUse(d.context, d.context.Device.CommandPool)
}

func (d *Device) WaitFrame() error {
	if err := d.context.FrameFence.Wait(d.context, ^uint64(0)); err != nil {
		return err
	}
	if d.previous != nil {
		d.previous.release()
		d.previous = nil
	}
	return nil
}

func (d *Device) BeginFrame() (device.CommandStream, error) {
	if d.inFrame {
		return nil, fmt.Errorf("frame already begun")
	}
	if err := d.WaitFrame(); err != nil {
		return nil, err
	}

	cb := d.context.FrameCommandBuffer
	if err := cb.Reset(); err != nil {
		return nil, err
	}
	if err := cb.Begin(true); err != nil {
		return nil, err
	}
	d.inFrame = true
	d.context.CurrentFrame++
	return d.newStream(cb), nil
}

func (d *Device) EndFrame(stream device.CommandStream) error {
	d.inFrame = false
	s, ok := stream.(*Stream)
	if !ok {
		return fmt.Errorf("stream %T does not belong to the vulkan device", stream)
	}
	if err := s.cb.End(); err != nil {
		s.release()
		return err
	}
	if s.err != nil {
		s.release()
		return s.err
	}
	// the fence stays signaled when nothing gets submitted
	if err := d.context.FrameFence.Reset(d.context); err != nil {
		s.release()
		return err
	}
	if err := s.cb.Submit(d.context, d.context.FrameFence); err != nil {
		s.release()
		return err
	}
	d.previous = s
	return nil
}

// AccelerationStructures is unavailable, the ray tracing extensions are not enabled.
func (d *Device) AccelerationStructures() (device.ASBuilder, bool) {
	return nil, false
}

func (d *Device) WaitIdle() error {
	if d.context.Device == nil || d.context.Device.LogicalDevice == nil {
		return nil
	}
	if res := vk.DeviceWaitIdle(d.context.Device.LogicalDevice); res != vk.Success {
		return vulkanError("vkDeviceWaitIdle", res)
	}
	return nil
}

// Shutdown destroys everything in the opposite order of creation.
func (d *Device) Shutdown() error {
	if d.shutdown {
		return nil
	}
	d.shutdown = true
	err := d.WaitIdle()

	if d.context.Device != nil && d.context.Device.LogicalDevice != nil {
		if d.previous != nil {
			d.previous.release()
			d.previous = nil
		}
		if d.fallback != nil {
			d.fallback.Destroy()
			d.fallback = nil
		}
		if d.context.FrameFence != nil {
			d.context.FrameFence.Destroy(d.context)
			d.context.FrameFence = nil
		}
		if d.context.FrameCommandBuffer != nil {
			d.context.FrameCommandBuffer.Free(d.context, d.context.Device.CommandPool)
			d.context.FrameCommandBuffer = nil
		}
	}
	DeviceDestroy(d.context)

	if d.context.Instance != nil {
		if d.context.debugMessenger != nil {
			vk.DestroyDebugReportCallback(d.context.Instance, d.context.debugMessenger, d.context.Allocator)
			d.context.debugMessenger = nil
		}
		vk.DestroyInstance(d.context.Instance, d.context.Allocator)
		d.context.Instance = nil
	}
	core.LogInfo("Vulkan device shut down.")
	return err
}
