package core

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type RendererBackend string

const (
	RendererBackendHeadless RendererBackend = "headless"
	RendererBackendVulkan   RendererBackend = "vulkan"
)

type SpatialBackend string

const (
	SpatialBackendBVH      SpatialBackend = "bvh"
	SpatialBackendHardware SpatialBackend = "hardware"
)

type ApplicationConfig struct {
	Name string `toml:"name"`
	// Frames to run before stopping. 0 runs until shutdown.
	Frames uint64 `toml:"frames"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type RendererConfig struct {
	Backend    RendererBackend `toml:"backend"`
	Validation bool            `toml:"validation"`
	ShaderDir  string          `toml:"shader_dir"`
	// Extent of the window and of the GBuffer attachments.
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type GPUSceneConfig struct {
	// Upper bound of the bindless image array. The device limit wins when lower.
	MaxBindlessImages uint32 `toml:"max_bindless_images"`
	CullingEnabled    bool   `toml:"culling_enabled"`
	DebugTimings      bool   `toml:"debug_timings"`
}

type SpatialConfig struct {
	Backend         SpatialBackend `toml:"backend"`
	RebuildOnUpdate bool           `toml:"rebuild_on_update"`
}

type JobsConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

type EngineConfig struct {
	Application ApplicationConfig `toml:"application"`
	Log         LogConfig         `toml:"log"`
	Renderer    RendererConfig    `toml:"renderer"`
	GPUScene    GPUSceneConfig    `toml:"gpuscene"`
	Spatial     SpatialConfig     `toml:"spatial"`
	Jobs        JobsConfig        `toml:"jobs"`
}

// DefaultConfig returns the configuration used for every key missing from the file.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Application: ApplicationConfig{
			Name: "Maple",
		},
		Log: LogConfig{
			Level: "info",
		},
		Renderer: RendererConfig{
			Backend:   RendererBackendHeadless,
			ShaderDir: "assets/shaders",
			Width:     1280,
			Height:    720,
		},
		GPUScene: GPUSceneConfig{
			MaxBindlessImages: 1024,
			CullingEnabled:    true,
		},
		Spatial: SpatialConfig{
			Backend: SpatialBackendBVH,
		},
		Jobs: JobsConfig{
			Workers:   4,
			QueueSize: 64,
		},
	}
}

// ParseConfig decodes TOML on top of the defaults and validates the result.
func ParseConfig(data []byte) (*EngineConfig, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file %s: %w", path, err)
	}
	return ParseConfig(data)
}

func (c *EngineConfig) Validate() error {
	switch c.Renderer.Backend {
	case RendererBackendHeadless, RendererBackendVulkan:
	default:
		return fmt.Errorf("%w: unknown renderer backend '%s'", ErrInvalidConfig, c.Renderer.Backend)
	}
	switch c.Spatial.Backend {
	case SpatialBackendBVH, SpatialBackendHardware:
	default:
		return fmt.Errorf("%w: unknown spatial backend '%s'", ErrInvalidConfig, c.Spatial.Backend)
	}
	if c.Renderer.Width == 0 || c.Renderer.Height == 0 {
		return fmt.Errorf("%w: renderer extent %dx%d", ErrInvalidConfig, c.Renderer.Width, c.Renderer.Height)
	}
	if c.GPUScene.MaxBindlessImages == 0 {
		return fmt.Errorf("%w: max_bindless_images must be greater than 0", ErrInvalidConfig)
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrNoWorkers)
	}
	if c.Jobs.QueueSize < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrNegativeChannelSize)
	}
	if strings.TrimSpace(c.Renderer.ShaderDir) == "" {
		return fmt.Errorf("%w: shader_dir cannot be empty", ErrInvalidConfig)
	}
	return nil
}
