package testbed

import (
	"fmt"

	"github.com/chewxy/math32"
	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/maple/engine"
	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/math"
	"github.com/spaghettifunk/maple/engine/resources"
	"github.com/spaghettifunk/maple/engine/scene"
)

const (
	gridSize       = 8
	gridSpacing    = 3.0
	movingCount    = 4
	swapPeriodSecs = 2.0
	layoutSeed     = 42
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	WorldCamera *scene.Camera

	cube      *resources.MeshResource
	plane     *resources.MeshResource
	materials []*resources.Material

	moving       []*scene.Entity
	swapTarget   *scene.Entity
	elapsed      float64
	nextSwap     float64
	swappedModel bool
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Name:  "Maple Testbed",
			State: &gameState{nextSwap: swapPeriodSecs},
		},
	}

	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Boot(cfg *core.EngineConfig) error {
	core.LogInfo("booting testbed...")
	if cfg.Application.Name == "" {
		cfg.Application.Name = g.Name
	}
	return nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.Scene == nil || g.Resources == nil {
		return fmt.Errorf("the engine did not provide a scene and a resource cache")
	}
	state := g.State.(*gameState)

	cube, err := resources.GenerateCube("test_cube", 1.0, 1.0, 1.0)
	if err != nil {
		return err
	}
	plane, err := resources.GeneratePlane("test_plane", 1.0, 1.0, 2, 2, 1.0, 1.0)
	if err != nil {
		return err
	}
	state.cube, state.plane = cube, plane
	g.Resources.AddMesh(cube)
	g.Resources.AddMesh(plane)

	checker, err := checkerImage("checker", 16)
	if err != nil {
		return err
	}
	textured := resources.NewMaterial("test_material_textured")
	textured.BaseColorTexture = checker
	red := resources.NewMaterial("test_material_red")
	red.BaseColor = math.NewVec4(0.8, 0.1, 0.1, 1.0)
	metal := resources.NewMaterial("test_material_metal")
	metal.Metallic = 1.0
	metal.Roughness = 0.3
	state.materials = []*resources.Material{textured, red, metal}
	for _, m := range state.materials {
		g.Resources.AddMaterial(m)
	}

	// a grid of cubes sharing one mesh and three materials, spread around a root
	rng := rand.New(rand.NewSource(layoutSeed))
	root := g.Scene.CreateEntity("root", math.NewTransform())
	root.Add(scene.NewAnimationController(func(elapsed float64, local math.Transform) math.Transform {
		local.Rotation = math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), float32(0.1*elapsed))
		return local
	}))
	for x := 0; x < gridSize; x++ {
		for z := 0; z < gridSize; z++ {
			pos := math.NewVec3(
				(float32(x)-gridSize/2)*gridSpacing,
				rng.Float32()*2-1,
				-(float32(z)+1)*gridSpacing,
			)
			e := g.Scene.CreateEntity(fmt.Sprintf("cube_%d_%d", x, z), math.NewTransformFromPosition(pos))
			e.Add(scene.NewMeshComponent(cube, state.materials[rng.Intn(len(state.materials))]))
			if err := g.Scene.SetParent(e, root); err != nil {
				return err
			}
			if len(state.moving) < movingCount && rng.Intn(4) == 0 {
				state.moving = append(state.moving, e)
			}
		}
	}

	floor := g.Scene.CreateEntity("floor", math.NewTransformFromPositionRotationScale(
		math.NewVec3(0, -2, -gridSize*gridSpacing/2),
		math.NewQuatIdentity(),
		math.NewVec3(gridSize*gridSpacing, 1, gridSize*gridSpacing),
	))
	floor.Add(scene.NewMeshComponent(plane, metal))
	floor.Add(scene.NewFlags("static"))
	state.swapTarget = g.Scene.CreateEntity("swapper", math.NewTransformFromPosition(math.NewVec3(0, 3, -6)))
	state.swapTarget.Add(scene.NewMeshComponent(cube, red))

	state.WorldCamera = scene.NewCamera("world", math.DegToRad(60), 16.0/9.0, 0.1, 1000.0)
	state.WorldCamera.SetPosition(math.NewVec3(0, 5.0, 9.5))
	state.WorldCamera.Pitch(math.DegToRad(-15))
	g.Scene.SetCamera(state.WorldCamera)

	core.LogInfo("testbed scene: %d entities, %d moving", len(g.Scene.Entities()), len(state.moving))
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	state.elapsed += deltaTime

	// bob a few instances up and down, only their matrices change
	for i, e := range state.moving {
		local := g.Scene.Transforms().Local(e.Transform())
		local.Position.Y = math32.Sin(float32(state.elapsed) + float32(i))
		g.Scene.Transforms().SetLocal(e.Transform(), local)
	}

	// periodically swap the model of one entity, which rebuilds the gpu scene
	if state.elapsed >= state.nextSwap {
		state.nextSwap += swapPeriodSecs
		mesh, ok := scene.Get[*scene.MeshComponent](state.swapTarget)
		if !ok {
			return fmt.Errorf("entity '%s' lost its mesh", state.swapTarget.Name)
		}
		if state.swappedModel {
			mesh.SetModel(state.cube)
		} else {
			mesh.SetModel(state.plane)
		}
		state.swappedModel = !state.swappedModel
		core.LogDebug("swapped the model of '%s'", state.swapTarget.Name)
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	return nil
}

// checkerImage builds a two-tone RGBA8 texture.
func checkerImage(name string, size uint32) (*resources.Image, error) {
	pixels := make([]byte, 0, size*size*4)
	for y := uint32(0); y < size; y++ {
		for x := uint32(0); x < size; x++ {
			v := byte(64)
			if (x/4+y/4)%2 == 0 {
				v = 224
			}
			pixels = append(pixels, v, v, v, 255)
		}
	}
	return resources.NewImage(name, size, size, pixels)
}
