package resources

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/renderer/device"
)

// Cache owns every imported resource for the lifetime of a scene.
type Cache struct {
	meshes    map[uuid.UUID]*MeshResource
	models    []*MeshResource
	modelIdx  map[*MeshResource]uint32
	materials map[uuid.UUID]*Material
	matOrder  []*Material
	images    map[uuid.UUID]*Image
	imgOrder  []*Image
}

func NewCache() *Cache {
	return &Cache{
		meshes:    make(map[uuid.UUID]*MeshResource),
		modelIdx:  make(map[*MeshResource]uint32),
		materials: make(map[uuid.UUID]*Material),
		images:    make(map[uuid.UUID]*Image),
	}
}

// AddMesh registers m and returns its dense model index. Adding it again returns the same index.
func (c *Cache) AddMesh(m *MeshResource) uint32 {
	if idx, ok := c.modelIdx[m]; ok {
		return idx
	}
	idx := uint32(len(c.models))
	c.models = append(c.models, m)
	c.modelIdx[m] = idx
	c.meshes[m.ID] = m
	return idx
}

func (c *Cache) FindMesh(id uuid.UUID) (*MeshResource, bool) {
	m, ok := c.meshes[id]
	return m, ok
}

// Models returns every mesh in insertion order. The position is the model index.
func (c *Cache) Models() []*MeshResource {
	return c.models
}

func (c *Cache) ModelIndex(m *MeshResource) (uint32, bool) {
	idx, ok := c.modelIdx[m]
	return idx, ok
}

// AddMaterial registers the material and its textures.
func (c *Cache) AddMaterial(m *Material) {
	if _, ok := c.materials[m.ID]; ok {
		return
	}
	c.materials[m.ID] = m
	c.matOrder = append(c.matOrder, m)
	for _, img := range m.Textures() {
		if img != nil {
			c.AddImage(img)
		}
	}
}

func (c *Cache) FindMaterial(id uuid.UUID) (*Material, bool) {
	m, ok := c.materials[id]
	return m, ok
}

func (c *Cache) Materials() []*Material {
	return c.matOrder
}

func (c *Cache) AddImage(img *Image) {
	if _, ok := c.images[img.ID]; ok {
		return
	}
	c.images[img.ID] = img
	c.imgOrder = append(c.imgOrder, img)
}

func (c *Cache) FindImage(id uuid.UUID) (*Image, bool) {
	img, ok := c.images[id]
	return img, ok
}

// UploadImages creates a device image for every image that has none.
func (c *Cache) UploadImages(dev device.Device) error {
	for _, img := range c.imgOrder {
		if err := img.Upload(dev); err != nil {
			err = fmt.Errorf("could not upload image '%s': %w", img.Name, err)
			core.LogError("%s", err)
			return err
		}
	}
	return nil
}

// Destroy releases every device image.
func (c *Cache) Destroy() {
	for _, img := range c.imgOrder {
		if img.Handle != nil {
			img.Handle.Destroy()
			img.Handle = nil
		}
	}
}
