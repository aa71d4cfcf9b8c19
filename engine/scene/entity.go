package scene

import (
	"github.com/google/uuid"
)

type EntityID uint32

const InvalidEntity EntityID = 0xFFFFFFFF

type Entity struct {
	ID        EntityID
	UUID      uuid.UUID
	Name      string
	parent    EntityID
	children  []EntityID
	transform TransformHandle
	// one component per kind
	components map[ComponentKind]Component
}

func (e *Entity) Parent() EntityID { return e.parent }

func (e *Entity) Children() []EntityID { return e.children }

func (e *Entity) Transform() TransformHandle { return e.transform }

// Add attaches c and returns the component it replaced, if any.
func (e *Entity) Add(c Component) Component {
	prev := e.components[c.Kind()]
	e.components[c.Kind()] = c
	return prev
}

func (e *Entity) Remove(kind ComponentKind) {
	delete(e.components, kind)
}

// Get returns the component of type T attached to e.
func Get[T Component](e *Entity) (T, bool) {
	var zero T
	c, ok := e.components[zero.Kind()]
	if !ok {
		return zero, false
	}
	t, ok := c.(T)
	return t, ok
}

func Has[T Component](e *Entity) bool {
	_, ok := Get[T](e)
	return ok
}

// HasFlag reports whether e carries a Flags component containing name.
func (e *Entity) HasFlag(name string) bool {
	f, ok := Get[*Flags](e)
	return ok && f.Has(name)
}
