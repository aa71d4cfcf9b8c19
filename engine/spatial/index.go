package spatial

import (
	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/gpuscene"
	"github.com/spaghettifunk/maple/engine/renderer/device"
	"github.com/spaghettifunk/maple/engine/resources"
)

type Kind uint8

const (
	KindBVH Kind = iota
	KindHardware
)

func (k Kind) String() string {
	switch k {
	case KindBVH:
		return string(core.SpatialBackendBVH)
	case KindHardware:
		return string(core.SpatialBackendHardware)
	}
	return "unknown"
}

// Index accelerates spatial queries over the instances of a GPU scene.
type Index interface {
	// Start builds the structure from scratch. The GPU scene must be started.
	Start(gs *gpuscene.Scene, cache *resources.Cache) error
	// Update follows the changes the GPU scene reported this frame.
	Update(gs *gpuscene.Scene) error
	Kind() Kind
	// Buffer is the packed node buffer, nil for backends that do not expose one.
	Buffer() device.Buffer
	Destroy()
}

// NewIndex picks the backend named by cfg. The hardware backend needs ray tracing
// support on dev, without it the BVH is used instead.
func NewIndex(dev device.Device, cfg core.SpatialConfig, events *core.EventBus) Index {
	if cfg.Backend == core.SpatialBackendHardware {
		if builder, ok := dev.AccelerationStructures(); ok {
			return newHardwareIndex(dev, builder, events)
		}
		core.LogWarn("device '%s' has no acceleration structure support, falling back to the BVH", dev.Name())
	}
	return newBVHIndex(dev, cfg.RebuildOnUpdate, events)
}

func leavesOf(gs *gpuscene.Scene) []Leaf {
	instances := gs.Instances()
	leaves := make([]Leaf, len(instances))
	for i, inst := range instances {
		leaves[i] = Leaf{Bounds: inst.WorldBounds(), InstanceID: inst.InstanceID()}
	}
	return leaves
}

func fireRebuilt(events *core.EventBus, sender interface{}, nodes int) {
	if events != nil {
		events.Fire(core.EventSpatialRebuilt, sender, nodes)
	}
}
