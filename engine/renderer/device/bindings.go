package device

import (
	"fmt"

	"github.com/spaghettifunk/maple/engine/core"
)

func duplicateBinding(name string) error {
	return fmt.Errorf("%w: '%s'", core.ErrDuplicateBinding, name)
}

// Bindings collects the resources pushed for one pipeline layout before they are bound.
type Bindings struct {
	layout  map[string]BindingDesc
	buffers map[string]Buffer
	images  map[string][]Image
}

func NewBindings(p Pipeline) *Bindings {
	b := &Bindings{
		layout:  make(map[string]BindingDesc),
		buffers: make(map[string]Buffer),
		images:  make(map[string][]Image),
	}
	for _, desc := range p.Layout() {
		b.layout[desc.Name] = desc
	}
	return b
}

func (b *Bindings) PushBuffer(name string, buf Buffer) error {
	desc, ok := b.layout[name]
	if !ok {
		return fmt.Errorf("%w: '%s'", core.ErrUnknownBinding, name)
	}
	if desc.Type == DescriptorTypeCombinedImageSampler {
		return fmt.Errorf("binding '%s' expects images, got a buffer", name)
	}
	if buf == nil {
		return fmt.Errorf("binding '%s' pushed a nil buffer", name)
	}
	b.buffers[name] = buf
	return nil
}

func (b *Bindings) PushImages(name string, images []Image) error {
	desc, ok := b.layout[name]
	if !ok {
		return fmt.Errorf("%w: '%s'", core.ErrUnknownBinding, name)
	}
	if desc.Type != DescriptorTypeCombinedImageSampler {
		return fmt.Errorf("binding '%s' expects a buffer, got images", name)
	}
	if desc.Count > 0 && uint32(len(images)) > desc.Count {
		return fmt.Errorf("%w: binding '%s' holds %d images, got %d", core.ErrBindlessCapacityExceeded, name, desc.Count, len(images))
	}
	b.images[name] = images
	return nil
}

func (b *Bindings) Buffer(name string) (Buffer, bool) {
	buf, ok := b.buffers[name]
	return buf, ok
}

func (b *Bindings) Images(name string) ([]Image, bool) {
	imgs, ok := b.images[name]
	return imgs, ok
}

func (b *Bindings) Desc(name string) (BindingDesc, bool) {
	d, ok := b.layout[name]
	return d, ok
}

// Complete fails when a buffer binding of the layout has nothing pushed.
// Image arrays may stay empty.
func (b *Bindings) Complete() error {
	for name, desc := range b.layout {
		if desc.Type == DescriptorTypeCombinedImageSampler {
			continue
		}
		if _, ok := b.buffers[name]; !ok {
			return fmt.Errorf("binding '%s' has no buffer", name)
		}
	}
	return nil
}

// WritableBuffers returns the pushed buffers declared as shader writable.
func (b *Bindings) WritableBuffers() []Buffer {
	out := make([]Buffer, 0, 1)
	for name, buf := range b.buffers {
		if b.layout[name].Writable {
			out = append(out, buf)
		}
	}
	return out
}

// Clone returns a snapshot that later pushes do not affect.
func (b *Bindings) Clone() *Bindings {
	c := &Bindings{
		layout:  b.layout,
		buffers: make(map[string]Buffer, len(b.buffers)),
		images:  make(map[string][]Image, len(b.images)),
	}
	for k, v := range b.buffers {
		c.buffers[k] = v
	}
	for k, v := range b.images {
		c.images[k] = append([]Image(nil), v...)
	}
	return c
}
