package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/maple/engine/core"
)

func init() {
	// GLFW calls must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the GLFW library. The renderer is offscreen, so no window is
// created: GLFW is only used to locate the Vulkan loader.
type Platform struct {
	started   bool
	startTime float64
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize glfw: %w", err)
	}
	p.started = true
	p.startTime = glfw.GetTime()
	if !glfw.VulkanSupported() {
		core.LogWarn("glfw could not find a vulkan loader")
	}
	return nil
}

// GetInstanceProcAddr returns the vkGetInstanceProcAddr resolved by GLFW, or nil
// if the platform is not started or no loader was found.
func (p *Platform) GetInstanceProcAddr() unsafe.Pointer {
	if !p.started || !glfw.VulkanSupported() {
		return nil
	}
	return glfw.GetVulkanGetInstanceProcAddress()
}

// Uptime in seconds since Startup.
func (p *Platform) Uptime() float64 {
	if !p.started {
		return 0
	}
	return glfw.GetTime() - p.startTime
}

func (p *Platform) Shutdown() {
	if p.started {
		glfw.Terminate()
		p.started = false
	}
}
