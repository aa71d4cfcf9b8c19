package scene

import (
	"github.com/spaghettifunk/maple/engine/math"
	"github.com/spaghettifunk/maple/engine/resources"
)

// ComponentKind is the static key of a component type.
type ComponentKind uint8

const (
	ComponentKindMesh ComponentKind = iota
	ComponentKindLight
	ComponentKindAnimation
	ComponentKindFlags
)

// Component is implemented by pointer types. Kind must not read the receiver,
// it is called on nil values to find the key of a type.
type Component interface {
	Kind() ComponentKind
}

type MeshStatus uint8

const (
	MeshStatusNone MeshStatus = iota
	// the model was replaced since the previous scene update
	MeshStatusAlter
)

// MeshComponent binds a model and a material to an entity.
type MeshComponent struct {
	model    *resources.MeshResource
	material *resources.Material
	status   MeshStatus
	pending  bool
}

func NewMeshComponent(model *resources.MeshResource, material *resources.Material) *MeshComponent {
	return &MeshComponent{model: model, material: material}
}

func (*MeshComponent) Kind() ComponentKind { return ComponentKindMesh }

func (m *MeshComponent) Model() *resources.MeshResource { return m.model }

func (m *MeshComponent) Material() *resources.Material { return m.material }

// SetModel swaps the model. The next scene update reports MeshStatusAlter.
func (m *MeshComponent) SetModel(model *resources.MeshResource) {
	if model == m.model {
		return
	}
	m.model = model
	m.pending = true
}

func (m *MeshComponent) SetMaterial(material *resources.Material) {
	m.material = material
}

func (m *MeshComponent) Status() MeshStatus { return m.status }

func (m *MeshComponent) tick() {
	m.status = MeshStatusNone
	if m.pending {
		m.status = MeshStatusAlter
	}
	m.pending = false
}

type LightType uint8

const (
	LightTypeDirectional LightType = iota
	LightTypePoint
	LightTypeSpot
	LightTypeArea
)

type Light struct {
	Type      LightType
	Color     math.Vec3
	Intensity float32
	Direction math.Vec3
	// area lights only, local space quad corners
	Points  [4]math.Vec3
	TwoSide bool
}

func NewLight(lightType LightType) *Light {
	return &Light{
		Type:      lightType,
		Color:     math.NewVec3One(),
		Intensity: 1,
		Direction: math.NewVec3(0, -1, 0),
	}
}

func (*Light) Kind() ComponentKind { return ComponentKindLight }

// AnimationFunc returns the local transform at the given time in seconds.
type AnimationFunc func(elapsed float64, local math.Transform) math.Transform

// AnimationController drives the local transform of its entity every scene update.
// Instances under an animated entity are flagged for per-frame refits.
type AnimationController struct {
	Playing bool
	Animate AnimationFunc
	elapsed float64
}

func NewAnimationController(fn AnimationFunc) *AnimationController {
	return &AnimationController{Playing: fn != nil, Animate: fn}
}

func (*AnimationController) Kind() ComponentKind { return ComponentKindAnimation }

// Flags carries string tags, e.g. "static" or "no_shadow".
type Flags struct {
	set map[string]struct{}
}

func NewFlags(names ...string) *Flags {
	f := &Flags{set: make(map[string]struct{}, len(names))}
	for _, n := range names {
		f.set[n] = struct{}{}
	}
	return f
}

func (*Flags) Kind() ComponentKind { return ComponentKindFlags }

func (f *Flags) Has(name string) bool {
	_, ok := f.set[name]
	return ok
}

func (f *Flags) Set(name string) {
	f.set[name] = struct{}{}
}

func (f *Flags) Clear(name string) {
	delete(f.set, name)
}
