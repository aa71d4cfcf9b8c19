package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/culling"
	"github.com/spaghettifunk/maple/engine/gpuscene"
	"github.com/spaghettifunk/maple/engine/platform"
	"github.com/spaghettifunk/maple/engine/renderer/device"
	"github.com/spaghettifunk/maple/engine/renderer/headless"
	"github.com/spaghettifunk/maple/engine/renderer/vulkan"
	"github.com/spaghettifunk/maple/engine/renderpass"
	"github.com/spaghettifunk/maple/engine/resources"
	"github.com/spaghettifunk/maple/engine/scene"
	"github.com/spaghettifunk/maple/engine/spatial"
	"github.com/spaghettifunk/maple/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageBooting:
		return "booting"
	case EngineStageBootComplete:
		return "boot complete"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	}
	return "unknown"
}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	cfg          *core.EngineConfig
	configPath   string
	isRunning    atomic.Bool

	platform *platform.Platform
	device   device.Device
	events   *core.EventBus
	jobs     *systems.JobSystem
	lookups  *systems.PrecomputedSet
	watcher  *core.ConfigWatcher
	metrics  *core.Metrics
	clock    *core.Clock
	lastTime float64
	frame    uint64

	cache    *resources.Cache
	scene    *scene.Scene
	gpuScene *gpuscene.Scene
	culling  *culling.Pass
	gbuffer  *renderpass.GBufferPass
	deferred *renderpass.DeferredPass
	spatial  spatial.Index
}

// New prepares an engine for g. When configPath is not empty the file is
// watched and its reloadable settings are applied while running.
func New(g *Game, cfg *core.EngineConfig, configPath string) (*Engine, error) {
	if g == nil {
		return nil, errors.New("engine needs a game instance")
	}
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		cfg:          cfg,
		configPath:   configPath,
		platform:     platform.New(),
		events:       core.NewEventBus(),
		metrics:      core.NewMetrics(),
		clock:        core.NewClock(),
	}, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine cannot initialize from stage '%s'", e.currentStage)
	}
	e.currentStage = EngineStageBooting
	if e.gameInstance.FnBoot != nil {
		if err := e.gameInstance.FnBoot(e.cfg); err != nil {
			return err
		}
		if err := e.cfg.Validate(); err != nil {
			return err
		}
	}
	core.SetLogLevel(e.cfg.Log.Level)
	e.currentStage = EngineStageBootComplete

	e.currentStage = EngineStageInitializing
	dev, err := e.createDevice()
	if err != nil {
		core.LogError("failed to create the '%s' device: %s", e.cfg.Renderer.Backend, err)
		return err
	}
	e.device = dev
	core.LogInfo("Using device '%s'.", dev.Name())

	jobs, err := systems.NewJobSystem(e.cfg.Jobs.Workers, e.cfg.Jobs.QueueSize)
	if err != nil {
		return err
	}
	e.jobs = jobs
	e.lookups = systems.NewPrecomputedSet(jobs, dev)

	if e.configPath != "" {
		watcher, err := core.NewConfigWatcher(e.configPath)
		if err != nil {
			// hot reload is optional
			core.LogWarn("config file %s will not be watched: %s", e.configPath, err)
		} else {
			e.watcher = watcher
		}
	}

	e.events.Register(core.EventApplicationQuit, e, e.onEvent)

	e.cache = resources.NewCache()
	e.scene = scene.NewScene(e.cfg.Application.Name)
	e.gameInstance.Scene = e.scene
	e.gameInstance.Resources = e.cache
	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}

	if err := e.startScene(); err != nil {
		return err
	}
	if err := e.createPasses(); err != nil {
		return err
	}

	e.spatial = spatial.NewIndex(dev, e.cfg.Spatial, e.events)
	if err := e.spatial.Start(e.gpuScene, e.cache); err != nil {
		core.LogError("failed to build the '%s' spatial index: %s", e.spatial.Kind(), err)
		return err
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) createDevice() (device.Device, error) {
	switch e.cfg.Renderer.Backend {
	case core.RendererBackendVulkan:
		if err := e.platform.Startup(); err != nil {
			return nil, err
		}
		dev, err := vulkan.New(vulkan.Options{
			ApplicationName:     e.cfg.Application.Name,
			Validation:          e.cfg.Renderer.Validation,
			MaxBindlessImages:   e.cfg.GPUScene.MaxBindlessImages,
			GetInstanceProcAddr: e.platform.GetInstanceProcAddr(),
		})
		if err != nil {
			return nil, err
		}
		return dev, nil
	default:
		opts := headless.DefaultOptions()
		opts.MaxBindlessImages = e.cfg.GPUScene.MaxBindlessImages
		opts.RayTracing = e.cfg.Spatial.Backend == core.SpatialBackendHardware
		return headless.NewDevice(opts), nil
	}
}

// startScene uploads the resources and builds the gpu scene. Transforms must be
// resolved first, so the scene is updated once before the gpu scene starts.
func (e *Engine) startScene() error {
	if err := e.cache.UploadImages(e.device); err != nil {
		return err
	}
	e.scene.Update(0)
	e.gpuScene = gpuscene.NewScene(e.device, e.cfg.GPUScene)
	e.gpuScene.SetMetrics(e.metrics)
	if err := e.gpuScene.Start(e.scene); err != nil {
		core.LogError("failed to start the gpu scene: %s", err)
		return err
	}
	return nil
}

// createPasses builds the culling pass and the raster passes. Devices without
// graphics pipelines run the culling pass alone.
func (e *Engine) createPasses() error {
	shaderDir := e.cfg.Renderer.ShaderDir
	cull, err := culling.NewPass(e.device, shaderDir)
	if err != nil {
		return err
	}
	cull.SetMetrics(e.metrics)
	e.culling = cull

	gbuffer, err := renderpass.NewGBufferPass(e.device, shaderDir, e.cfg.Renderer.Width, e.cfg.Renderer.Height, e.gpuScene, cull)
	if errors.Is(err, core.ErrNotSupported) {
		core.LogWarn("device '%s' cannot rasterize, only the culling pass runs", e.device.Name())
		return nil
	}
	if err != nil {
		return err
	}
	e.gbuffer = gbuffer

	deferred, err := renderpass.NewDeferredPass(e.device, shaderDir, gbuffer, e.lookups)
	if err != nil {
		return err
	}
	e.deferred = deferred
	return nil
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine cannot run from stage '%s'", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := time.Now()

		if err := e.runFrame(delta); err != nil {
			core.LogError("frame %d failed, shutting down: %s", e.frame, err)
			e.isRunning.Store(false)
			return err
		}

		uploaded, dispatches, draws := e.metrics.Frame()
		core.LogDebug("frame %d: %d bytes uploaded, %d dispatches, %d indirect draws", e.frame, uploaded, dispatches, draws)
		e.metrics.Update(time.Since(frameStartTime).Seconds())

		e.lastTime = currentTime
		e.frame++
		if frames := e.cfg.Application.Frames; frames > 0 && e.frame >= frames {
			e.isRunning.Store(false)
		}
	}
	core.LogInfo("Stopped after %d frames (%.1f fps).", e.frame, e.metrics.FPS())
	return nil
}

func (e *Engine) runFrame(delta float64) error {
	// the previous frame reads the scene buffers until its fence signals
	if err := e.device.WaitFrame(); err != nil {
		return err
	}
	e.reloadConfig()

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta); err != nil {
			return fmt.Errorf("game update: %w", err)
		}
	}

	e.scene.Update(delta)
	if err := e.gpuScene.Update(); err != nil {
		return err
	}
	if e.gpuScene.UpdateStatus() == gpuscene.AllChanged {
		e.events.Fire(core.EventSceneRebuilt, e, e.frame)
	}
	if err := e.spatial.Update(e.gpuScene); err != nil {
		return err
	}
	e.jobs.Update()

	stream, err := e.device.BeginFrame()
	if err != nil {
		return err
	}
	e.record(stream)
	return e.device.EndFrame(stream)
}

// record never fails the frame: a pass that cannot record skips its draw.
func (e *Engine) record(stream device.CommandStream) {
	if e.gbuffer == nil {
		if !e.gpuScene.CullingEnabled() || e.gpuScene.InstanceCount() == 0 {
			return
		}
		cam, err := e.scene.Camera()
		if err != nil {
			core.LogDebug("culling skipped: %s", err)
			return
		}
		if err := e.culling.Record(stream, e.gpuScene, cam); err != nil {
			core.LogError("culling pass: %s", err)
		}
		return
	}

	if err := e.gbuffer.PreRender(stream); err != nil {
		core.LogError("gbuffer pre-render: %s", err)
	}
	if !e.gbuffer.Render(stream) {
		return
	}
	e.deferred.Render(stream)
}

func (e *Engine) reloadConfig() {
	if e.watcher == nil {
		return
	}
	cfg, ok := e.watcher.Poll()
	if !ok {
		return
	}
	if cfg.Renderer != e.cfg.Renderer || cfg.Spatial != e.cfg.Spatial || cfg.Jobs != e.cfg.Jobs {
		core.LogWarn("renderer, spatial and jobs settings only apply after a restart")
	}
	e.cfg.Log = cfg.Log
	e.cfg.GPUScene.CullingEnabled = cfg.GPUScene.CullingEnabled
	e.cfg.GPUScene.DebugTimings = cfg.GPUScene.DebugTimings
	core.SetLogLevel(e.cfg.Log.Level)
	e.gpuScene.SetCullingEnabled(e.cfg.GPUScene.CullingEnabled)
	core.LogInfo("Configuration reloaded (culling enabled: %t).", e.cfg.GPUScene.CullingEnabled)
	e.events.Fire(core.EventConfigReloaded, e, e.cfg)
}

// Stop ends the run loop after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown || e.currentStage == EngineStageUninitialized {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.device != nil {
		errs = append(errs, e.device.WaitIdle())
	}
	if e.spatial != nil {
		e.spatial.Destroy()
	}
	if e.deferred != nil {
		e.deferred.Destroy()
	}
	if e.gbuffer != nil {
		e.gbuffer.Destroy()
	}
	if e.culling != nil {
		e.culling.Destroy()
	}
	if e.gpuScene != nil {
		e.gpuScene.Shutdown()
	}
	if e.jobs != nil {
		errs = append(errs, e.jobs.Shutdown())
	}
	if e.lookups != nil {
		e.lookups.Destroy()
	}
	if e.cache != nil {
		e.cache.Destroy()
	}
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	e.events.Unregister(core.EventApplicationQuit, e)
	if e.device != nil {
		errs = append(errs, e.device.Shutdown())
	}
	e.platform.Shutdown()
	return errors.Join(errs...)
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// Frame is the number of frames completed so far.
func (e *Engine) Frame() uint64 {
	return e.frame
}

func (e *Engine) Events() *core.EventBus {
	return e.events
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

func (e *Engine) GPUScene() *gpuscene.Scene {
	return e.gpuScene
}

func (e *Engine) Spatial() spatial.Index {
	return e.spatial
}

func (e *Engine) Device() device.Device {
	return e.device
}

func (e *Engine) onEvent(code core.EventCode, _ interface{}, _ interface{}) bool {
	switch code {
	case core.EventApplicationQuit:
		core.LogInfo("EventApplicationQuit received, shutting down.")
		e.Stop()
		return true
	}
	return false
}
