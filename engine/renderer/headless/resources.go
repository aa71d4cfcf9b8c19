package headless

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/maple/engine/renderer/device"
)

var (
	ErrNotHostVisible = errors.New("buffer memory is not host visible")
	ErrAlreadyMapped  = errors.New("buffer is already mapped")
	ErrNotMapped      = errors.New("buffer is not mapped")
	ErrDestroyed      = errors.New("resource was destroyed")
)

// Buffer keeps its content in host memory. Device local buffers can only be written by copies.
type Buffer struct {
	dev       *Device
	id        uint64
	size      uint64
	usage     device.BufferUsage
	props     device.MemoryProperty
	data      []byte
	mapped    bool
	destroyed bool
}

func (b *Buffer) Size() uint64 {
	return b.size
}

func (b *Buffer) Usage() device.BufferUsage {
	return b.usage
}

func (b *Buffer) Map() ([]byte, error) {
	switch {
	case b.destroyed:
		return nil, ErrDestroyed
	case b.props&device.MemoryPropertyHostVisible == 0:
		return nil, ErrNotHostVisible
	case b.mapped:
		return nil, ErrAlreadyMapped
	}
	if err := b.dev.checkHostAccess(b); err != nil {
		return nil, err
	}
	b.mapped = true
	return b.data, nil
}

func (b *Buffer) Flush() error {
	if !b.mapped {
		return ErrNotMapped
	}
	b.dev.countFlush()
	return nil
}

func (b *Buffer) Unmap() {
	b.mapped = false
}

func (b *Buffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.data = nil
	b.dev.release(b)
}

// Bytes exposes the buffer content regardless of memory type, for inspection.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) ID() uint64 {
	return b.id
}

func (b *Buffer) Destroyed() bool {
	return b.destroyed
}

func (b *Buffer) String() string {
	return fmt.Sprintf("buffer#%d(%d bytes)", b.id, b.size)
}

type Image struct {
	name   string
	width  uint32
	height uint32
	pixels []byte
}

func (i *Image) Name() string {
	return i.name
}

func (i *Image) Width() uint32 {
	return i.width
}

func (i *Image) Height() uint32 {
	return i.height
}

func (i *Image) Pixels() []byte {
	return i.pixels
}

func (i *Image) Destroy() {
	i.pixels = nil
}

type Pipeline struct {
	name      string
	bindPoint device.BindPoint
	layout    []device.BindingDesc
	pushSize  uint32
}

func (p *Pipeline) Name() string {
	return p.name
}

func (p *Pipeline) BindPoint() device.BindPoint {
	return p.bindPoint
}

func (p *Pipeline) Layout() []device.BindingDesc {
	return p.layout
}

func (p *Pipeline) PushConstantSize() uint32 {
	return p.pushSize
}

func (p *Pipeline) Destroy() {}
