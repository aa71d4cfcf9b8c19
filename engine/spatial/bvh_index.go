package spatial

import (
	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/gpuscene"
	"github.com/spaghettifunk/maple/engine/renderer/device"
	"github.com/spaghettifunk/maple/engine/resources"
)

// BVHIndex keeps the software hierarchy in a host visible storage buffer.
type BVHIndex struct {
	device          device.Device
	events          *core.EventBus
	rebuildOnUpdate bool
	nodes           []BVHNode
	buffer          *device.HostBuffer
}

func newBVHIndex(dev device.Device, rebuildOnUpdate bool, events *core.EventBus) *BVHIndex {
	return &BVHIndex{
		device:          dev,
		events:          events,
		rebuildOnUpdate: rebuildOnUpdate,
	}
}

func (b *BVHIndex) Kind() Kind {
	return KindBVH
}

func (b *BVHIndex) Start(gs *gpuscene.Scene, _ *resources.Cache) error {
	b.release()
	return b.rebuild(gs)
}

// Update rebuilds the whole hierarchy when any instance changed and rebuilds are enabled.
func (b *BVHIndex) Update(gs *gpuscene.Scene) error {
	if !b.rebuildOnUpdate || gs.UpdateStatus() == gpuscene.NoneChanged {
		return nil
	}
	return b.rebuild(gs)
}

func (b *BVHIndex) rebuild(gs *gpuscene.Scene) error {
	b.nodes = BuildBVH(leavesOf(gs))
	if len(b.nodes) == 0 {
		b.release()
		return nil
	}
	data := device.AsBytes(b.nodes)
	if b.buffer != nil {
		if _, err := b.buffer.Update(data); err != nil {
			return err
		}
	} else {
		hb, err := device.NewStorageBuffer(b.device, data)
		if err != nil {
			core.LogError("failed to upload BVH nodes: %s", err)
			return err
		}
		b.buffer = hb
	}
	fireRebuilt(b.events, b, len(b.nodes))
	return nil
}

func (b *BVHIndex) Nodes() []BVHNode {
	return b.nodes
}

func (b *BVHIndex) Buffer() device.Buffer {
	if b.buffer == nil {
		return nil
	}
	return b.buffer.Buffer()
}

func (b *BVHIndex) release() {
	if b.buffer != nil {
		b.buffer.Destroy()
		b.buffer = nil
	}
}

func (b *BVHIndex) Destroy() {
	b.release()
	b.nodes = nil
}
