package scene

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/math"
)

// Scene owns the entities, their transforms and the active camera.
// It is mutated from the frame thread only.
type Scene struct {
	Name string

	transforms  *TransformArena
	entities    []*Entity
	camera      *Camera
	instanceIDs *core.IDPool
	assigned    map[EntityID]uint32
	elapsed     float64
}

func NewScene(name string) *Scene {
	return &Scene{
		Name:        name,
		transforms:  NewTransformArena(),
		instanceIDs: core.NewIDPool(64),
		assigned:    make(map[EntityID]uint32),
	}
}

func (s *Scene) CreateEntity(name string, local math.Transform) *Entity {
	e := &Entity{
		ID:         EntityID(len(s.entities)),
		UUID:       uuid.New(),
		Name:       name,
		parent:     InvalidEntity,
		transform:  s.transforms.Create(local, InvalidTransform),
		components: make(map[ComponentKind]Component),
	}
	s.entities = append(s.entities, e)
	return e
}

func (s *Scene) Entity(id EntityID) (*Entity, bool) {
	if int(id) >= len(s.entities) {
		return nil, false
	}
	return s.entities[id], true
}

func (s *Scene) Entities() []*Entity {
	return s.entities
}

// SetParent links child under parent, nil makes child a root.
func (s *Scene) SetParent(child, parent *Entity) error {
	parentID, parentTransform := InvalidEntity, InvalidTransform
	if parent != nil {
		parentID, parentTransform = parent.ID, parent.transform
	}
	if err := s.transforms.SetParent(child.transform, parentTransform); err != nil {
		return err
	}
	if child.parent != InvalidEntity {
		old := s.entities[child.parent]
		for i, c := range old.children {
			if c == child.ID {
				old.children = append(old.children[:i], old.children[i+1:]...)
				break
			}
		}
	}
	child.parent = parentID
	if parent != nil {
		parent.children = append(parent.children, child.ID)
	}
	return nil
}

// ParentEntity returns the parent of e, or nil for roots.
func (s *Scene) ParentEntity(e *Entity) *Entity {
	if e.parent == InvalidEntity {
		return nil
	}
	return s.entities[e.parent]
}

// MeshEntities returns every entity with a MeshComponent, in creation order.
func (s *Scene) MeshEntities() []*Entity {
	var out []*Entity
	for _, e := range s.entities {
		if Has[*MeshComponent](e) {
			out = append(out, e)
		}
	}
	return out
}

// InstanceID returns the dense instance id of e, assigning one on first use.
func (s *Scene) InstanceID(e *Entity) uint32 {
	if id, ok := s.assigned[e.ID]; ok {
		return id
	}
	id := s.instanceIDs.Acquire(e)
	s.assigned[e.ID] = id
	return id
}

// ReleaseInstanceID returns the instance id of e to the pool. The next
// InstanceID call on e assigns the lowest free id.
func (s *Scene) ReleaseInstanceID(e *Entity) {
	id, ok := s.assigned[e.ID]
	if !ok {
		return
	}
	delete(s.assigned, e.ID)
	_ = s.instanceIDs.Release(id)
}

func (s *Scene) SetCamera(c *Camera) {
	s.camera = c
}

func (s *Scene) Camera() (*Camera, error) {
	if s.camera == nil {
		return nil, fmt.Errorf("scene '%s': %w", s.Name, core.ErrMissingCamera)
	}
	return s.camera, nil
}

func (s *Scene) Transforms() *TransformArena {
	return s.transforms
}

func (s *Scene) WorldMatrix(e *Entity) math.Mat4 {
	return s.transforms.World(e.transform)
}

func (s *Scene) PrevWorldMatrix(e *Entity) math.Mat4 {
	return s.transforms.PrevWorld(e.transform)
}

func (s *Scene) TransformChanged(e *Entity) bool {
	return s.transforms.Changed(e.transform)
}

// Update advances animations, recomputes world matrices and latches the mesh
// status of every mesh component for this frame.
func (s *Scene) Update(deltaTime float64) {
	s.elapsed += deltaTime
	for _, e := range s.entities {
		if a, ok := Get[*AnimationController](e); ok && a.Playing && a.Animate != nil {
			a.elapsed += deltaTime
			s.transforms.SetLocal(e.transform, a.Animate(a.elapsed, s.transforms.Local(e.transform)))
		}
	}
	s.transforms.Update()
	for _, e := range s.entities {
		if m, ok := Get[*MeshComponent](e); ok {
			m.tick()
		}
	}
}

// Elapsed is the scene time in seconds.
func (s *Scene) Elapsed() float64 {
	return s.elapsed
}
