package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/math"
	"github.com/spaghettifunk/maple/engine/resources"
)

func TestTransformArenaPropagatesChanges(t *testing.T) {
	ta := NewTransformArena()
	root := ta.Create(math.NewTransformFromPosition(math.NewVec3(1, 0, 0)), InvalidTransform)
	child := ta.Create(math.NewTransformFromPosition(math.NewVec3(0, 2, 0)), root)
	other := ta.Create(math.NewTransform(), InvalidTransform)

	ta.Update()
	assert.True(t, ta.World(child).Position().Compare(math.NewVec3(1, 2, 0), 1e-6))
	assert.True(t, ta.Changed(child))

	ta.Update()
	assert.False(t, ta.Changed(root))
	assert.False(t, ta.Changed(child))
	assert.Equal(t, ta.World(child), ta.PrevWorld(child))

	ta.SetPosition(root, math.NewVec3(5, 0, 0))
	ta.Update()
	assert.True(t, ta.Changed(root))
	assert.True(t, ta.Changed(child))
	assert.False(t, ta.Changed(other))
	assert.True(t, ta.World(child).Position().Compare(math.NewVec3(5, 2, 0), 1e-6))
	assert.True(t, ta.PrevWorld(child).Position().Compare(math.NewVec3(1, 2, 0), 1e-6))
}

func TestTransformArenaRejectsCycles(t *testing.T) {
	ta := NewTransformArena()
	a := ta.Create(math.NewTransform(), InvalidTransform)
	b := ta.Create(math.NewTransform(), a)
	c := ta.Create(math.NewTransform(), b)

	assert.Error(t, ta.SetParent(a, c))
	assert.Equal(t, []TransformHandle{b}, ta.Children(a))

	ta.Destroy(b)
	assert.Equal(t, InvalidTransform, ta.Parent(c))
	assert.Empty(t, ta.Children(a))
	assert.Equal(t, 2, ta.Len())

	// freed slot is reused
	assert.Equal(t, b, ta.Create(math.NewTransform(), InvalidTransform))
}

func TestComponentLookupByKind(t *testing.T) {
	s := NewScene("test")
	e := s.CreateEntity("lamp", math.NewTransform())

	_, ok := Get[*Light](e)
	assert.False(t, ok)

	e.Add(NewLight(LightTypeArea))
	e.Add(NewFlags("static"))
	l, ok := Get[*Light](e)
	require.True(t, ok)
	assert.Equal(t, LightTypeArea, l.Type)
	assert.True(t, Has[*Flags](e))
	assert.True(t, e.HasFlag("static"))
	assert.False(t, e.HasFlag("dynamic"))

	e.Remove(ComponentKindLight)
	assert.False(t, Has[*Light](e))
}

func TestSceneMeshStatusLatchesPerUpdate(t *testing.T) {
	cube, err := resources.GenerateCube("cube", 1, 1, 1)
	require.NoError(t, err)
	plane, err := resources.GeneratePlane("plane", 1, 1, 1, 1, 1, 1)
	require.NoError(t, err)

	s := NewScene("test")
	e := s.CreateEntity("box", math.NewTransform())
	mc := NewMeshComponent(cube, resources.NewMaterial("m"))
	e.Add(mc)
	s.Update(0.016)
	assert.Equal(t, MeshStatusNone, mc.Status())

	mc.SetModel(plane)
	s.Update(0.016)
	assert.Equal(t, MeshStatusAlter, mc.Status())
	assert.Same(t, plane, mc.Model())

	s.Update(0.016)
	assert.Equal(t, MeshStatusNone, mc.Status())
}

func TestSceneInstanceIDsAreStable(t *testing.T) {
	s := NewScene("test")
	cube, err := resources.GenerateCube("cube", 1, 1, 1)
	require.NoError(t, err)
	mat := resources.NewMaterial("m")

	a := s.CreateEntity("a", math.NewTransform())
	s.CreateEntity("empty", math.NewTransform())
	b := s.CreateEntity("b", math.NewTransform())
	a.Add(NewMeshComponent(cube, mat))
	b.Add(NewMeshComponent(cube, mat))

	meshes := s.MeshEntities()
	require.Len(t, meshes, 2)
	assert.Same(t, a, meshes[0])
	assert.Same(t, b, meshes[1])

	assert.Equal(t, uint32(0), s.InstanceID(b))
	assert.Equal(t, uint32(1), s.InstanceID(a))
	assert.Equal(t, uint32(0), s.InstanceID(b))

	// a released id is handed out again before the pool grows
	s.ReleaseInstanceID(b)
	s.ReleaseInstanceID(b)
	c := s.CreateEntity("c", math.NewTransform())
	assert.Equal(t, uint32(0), s.InstanceID(c))
	assert.Equal(t, uint32(2), s.InstanceID(b))
	assert.Equal(t, uint32(1), s.InstanceID(a))
}

func TestSceneHierarchyAndAnimation(t *testing.T) {
	s := NewScene("test")
	parent := s.CreateEntity("parent", math.NewTransform())
	child := s.CreateEntity("child", math.NewTransformFromPosition(math.NewVec3(0, 1, 0)))
	require.NoError(t, s.SetParent(child, parent))
	assert.Same(t, parent, s.ParentEntity(child))
	assert.Equal(t, []EntityID{child.ID}, parent.Children())

	parent.Add(NewAnimationController(func(elapsed float64, local math.Transform) math.Transform {
		local.Position = math.NewVec3(float32(elapsed), 0, 0)
		return local
	}))

	s.Update(1)
	s.Update(1)
	assert.True(t, s.TransformChanged(child))
	assert.True(t, s.WorldMatrix(child).Position().Compare(math.NewVec3(2, 1, 0), 1e-5))
	assert.True(t, s.PrevWorldMatrix(child).Position().Compare(math.NewVec3(1, 1, 0), 1e-5))

	require.NoError(t, s.SetParent(child, nil))
	assert.Nil(t, s.ParentEntity(child))
	assert.Empty(t, parent.Children())
}

func TestSceneCamera(t *testing.T) {
	s := NewScene("test")
	_, err := s.Camera()
	assert.ErrorIs(t, err, core.ErrMissingCamera)

	cam := NewCamera("main", math.DegToRad(60), 1, 0.1, 100)
	cam.SetPosition(math.NewVec3(0, 0, 10))
	s.SetCamera(cam)
	got, err := s.Camera()
	require.NoError(t, err)

	assert.True(t, got.Forward().Compare(math.NewVec3(0, 0, -1), 1e-5))
	f := got.Frustum()
	assert.True(t, f.IntersectsAABB(math.NewAABB(math.NewVec3(-1, -1, -1), math.NewVec3(1, 1, 1))))
	assert.False(t, f.IntersectsAABB(math.NewAABB(math.NewVec3(-1, -1, 20), math.NewVec3(1, 1, 22))))

	cam.MoveForward(5)
	assert.True(t, cam.Position().Compare(math.NewVec3(0, 0, 5), 1e-5))
}
