package engine

import (
	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/resources"
	"github.com/spaghettifunk/maple/engine/scene"
)

// Game is driven by the engine. Scene and Resources are assigned before
// FnInitialize runs, the game fills them.
type Game struct {
	Name      string
	State     interface{}
	Scene     *scene.Scene
	Resources *resources.Cache

	FnBoot       Boot
	FnInitialize Initialize
	FnUpdate     Update
	FnShutdown   Shutdown
}

// Boot runs before any subsystem exists and may adjust the configuration.
type Boot func(cfg *core.EngineConfig) error
type Initialize func() error
type Update func(deltaTime float64) error
type Shutdown func() error
