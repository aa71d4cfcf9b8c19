package gpuscene

import (
	"errors"
	"fmt"

	"golang.org/x/image/math/f32"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/renderer/device"
	"github.com/spaghettifunk/maple/engine/resources"
)

/**
 * @brief Append only table of material records plus the bindless image list
 * they index. Materials and images are deduplicated by pointer: two materials
 * with equal values are still two records.
 */
type MaterialTable struct {
	materials []*resources.Material
	ids       map[*resources.Material]uint32
	data      []MaterialData
	images    []*resources.Image
	imageIDs  map[*resources.Image]int32
	// bindless array capacity
	capacity uint32
}

func NewMaterialTable(capacity uint32) *MaterialTable {
	return &MaterialTable{
		ids:      make(map[*resources.Material]uint32),
		imageIDs: make(map[*resources.Image]int32),
		capacity: capacity,
	}
}

/**
 * @brief Registers m and the images it references.
 *
 * When the bindless array is full the texture slot is set to -1, the error is
 * logged and returned, and the material is still registered.
 *
 * @param m The material.
 * @return The material index and ErrBindlessCapacityExceeded if a texture was dropped.
 */
func (t *MaterialTable) Append(m *resources.Material) (uint32, error) {
	if id, ok := t.ids[m]; ok {
		return id, nil
	}

	md := MaterialData{
		BaseColor:    f32.Vec4{m.BaseColor.X, m.BaseColor.Y, m.BaseColor.Z, m.BaseColor.W},
		Metallic:     m.Metallic,
		Roughness:    m.Roughness,
		BaseColorTex: -1,
		NormalTex:    -1,
		MaterialTex:  -1,
	}
	var errs []error
	slots := [3]*int32{&md.BaseColorTex, &md.NormalTex, &md.MaterialTex}
	for i, img := range m.Textures() {
		if img == nil {
			continue
		}
		idx, err := t.image(img)
		if err != nil {
			core.LogError("material '%s': %s", m.Name, err)
			errs = append(errs, err)
			continue
		}
		*slots[i] = idx
	}

	id := uint32(len(t.materials))
	t.materials = append(t.materials, m)
	t.data = append(t.data, md)
	t.ids[m] = id
	return id, errors.Join(errs...)
}

func (t *MaterialTable) image(img *resources.Image) (int32, error) {
	if idx, ok := t.imageIDs[img]; ok {
		return idx, nil
	}
	if uint32(len(t.images)) >= t.capacity {
		return -1, fmt.Errorf("%w: image '%s' does not fit %d slots", core.ErrBindlessCapacityExceeded, img.Name, t.capacity)
	}
	idx := int32(len(t.images))
	t.images = append(t.images, img)
	t.imageIDs[img] = idx
	return idx, nil
}

func (t *MaterialTable) ID(m *resources.Material) (uint32, bool) {
	id, ok := t.ids[m]
	return id, ok
}

func (t *MaterialTable) Images() []*resources.Image {
	return t.images
}

func (t *MaterialTable) Data() []MaterialData {
	return t.data
}

func (t *MaterialTable) Len() int {
	return len(t.materials)
}

// UploadImages creates the device image of every registered image that has none yet.
func (t *MaterialTable) UploadImages(dev device.Device) error {
	for _, img := range t.images {
		if err := img.Upload(dev); err != nil {
			return fmt.Errorf("could not upload image '%s': %w", img.Name, err)
		}
	}
	return nil
}

// DeviceImages returns the device handles in bindless order, or false if an image was never uploaded.
func (t *MaterialTable) DeviceImages() ([]device.Image, bool) {
	out := make([]device.Image, 0, len(t.images))
	for _, img := range t.images {
		if img.Handle == nil {
			return nil, false
		}
		out = append(out, img.Handle)
	}
	return out, true
}

func (t *MaterialTable) Reset() {
	t.materials = nil
	t.data = nil
	t.images = nil
	t.ids = make(map[*resources.Material]uint32)
	t.imageIDs = make(map[*resources.Image]int32)
}
