package headless

import (
	"fmt"

	"github.com/spaghettifunk/maple/engine/renderer/device"
)

// AccelerationStructure records what it was built from.
type AccelerationStructure struct {
	kind      device.ASKind
	geometry  device.BLASGeometry
	instances []device.ASInstance
	builds    int
	updates   int
	destroyed bool
}

func (a *AccelerationStructure) Kind() device.ASKind {
	return a.kind
}

func (a *AccelerationStructure) Destroy() {
	a.destroyed = true
}

func (a *AccelerationStructure) Geometry() device.BLASGeometry {
	return a.geometry
}

func (a *AccelerationStructure) Instances() []device.ASInstance {
	return a.instances
}

// Builds returns how many full builds and update-mode refits were executed.
func (a *AccelerationStructure) Builds() (int, int) {
	return a.builds, a.updates
}

type asBuilder struct {
	dev *Device
}

func (ab *asBuilder) BuildBLAS(stream device.CommandStream, geometry device.BLASGeometry) (device.AccelerationStructure, error) {
	s, ok := stream.(*Stream)
	if !ok {
		return nil, fmt.Errorf("stream %T does not belong to the headless device", stream)
	}
	if geometry.IndexCount == 0 || geometry.IndexCount%3 != 0 {
		return nil, fmt.Errorf("bottom level structure needs whole triangles, got %d indices", geometry.IndexCount)
	}
	as := &AccelerationStructure{kind: device.ASKindBottomLevel, geometry: geometry}
	s.commands = append(s.commands, command{
		op:     opBuildAS,
		as:     as,
		inputs: []*Buffer{s.buffer(geometry.VertexBuffer), s.buffer(geometry.IndexBuffer)},
	})
	return as, nil
}

func (ab *asBuilder) BuildTLAS(stream device.CommandStream, instances []device.ASInstance, existing device.AccelerationStructure, update bool) (device.AccelerationStructure, error) {
	s, ok := stream.(*Stream)
	if !ok {
		return nil, fmt.Errorf("stream %T does not belong to the headless device", stream)
	}
	var as *AccelerationStructure
	if update {
		prev, ok := existing.(*AccelerationStructure)
		if !ok || prev == nil || prev.kind != device.ASKindTopLevel {
			return nil, fmt.Errorf("update mode needs an existing top level structure")
		}
		if len(prev.instances) != len(instances) {
			return nil, fmt.Errorf("update mode cannot change the instance count (%d -> %d)", len(prev.instances), len(instances))
		}
		as = prev
	} else {
		as = &AccelerationStructure{kind: device.ASKindTopLevel}
	}
	for _, inst := range instances {
		if inst.BLAS == nil || inst.BLAS.Kind() != device.ASKindBottomLevel {
			return nil, fmt.Errorf("instance %d does not reference a bottom level structure", inst.CustomIndex)
		}
	}
	s.commands = append(s.commands, command{
		op:          opBuildAS,
		as:          as,
		asInstances: append([]device.ASInstance(nil), instances...),
		counts:      [3]uint32{uint32(len(instances)), boolToUint(update)},
	})
	return as, nil
}

func boolToUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
