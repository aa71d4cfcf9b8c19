package headless

import (
	"fmt"

	"github.com/spaghettifunk/maple/engine/renderer/device"
)

type opcode int

const (
	opBarrier opcode = iota
	opCopy
	opBindPipeline
	opBindDescriptors
	opPushConstants
	opDispatch
	opBindVertex
	opBindIndex
	opDrawIndexedIndirect
	opDraw
	opBuildAS
)

func (o opcode) String() string {
	return [...]string{
		"barrier", "copy", "bind pipeline", "bind descriptors", "push constants",
		"dispatch", "bind vertex buffer", "bind index buffer", "draw indexed indirect",
		"draw", "build acceleration structure",
	}[o]
}

type command struct {
	op       opcode
	barrier  device.Barrier
	src, dst *Buffer
	size     uint64
	pipeline *Pipeline
	bindings *device.Bindings
	offset   uint64
	data     []byte
	counts   [3]uint32
	stride   uint32
	as       *AccelerationStructure
	inputs   []*Buffer

	asInstances []device.ASInstance
}

// Stream records commands. It is executed in order when submitted.
type Stream struct {
	dev      *Device
	commands []command
	// first recording error, reported on submit
	err error
}

var _ device.CommandStream = (*Stream)(nil)

func (s *Stream) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *Stream) buffer(b device.Buffer) *Buffer {
	if b == nil {
		s.fail(fmt.Errorf("nil buffer recorded"))
		return nil
	}
	hb, ok := b.(*Buffer)
	if !ok {
		s.fail(fmt.Errorf("buffer %T does not belong to the headless device", b))
		return nil
	}
	return hb
}

func (s *Stream) pipeline(p device.Pipeline) *Pipeline {
	hp, ok := p.(*Pipeline)
	if !ok {
		s.fail(fmt.Errorf("pipeline %T does not belong to the headless device", p))
		return nil
	}
	return hp
}

func (s *Stream) PipelineBarrier(b device.Barrier) {
	s.commands = append(s.commands, command{op: opBarrier, barrier: b})
}

func (s *Stream) CopyBuffer(src, dst device.Buffer, size uint64) {
	s.commands = append(s.commands, command{op: opCopy, src: s.buffer(src), dst: s.buffer(dst), size: size})
}

func (s *Stream) BindPipeline(p device.Pipeline) {
	s.commands = append(s.commands, command{op: opBindPipeline, pipeline: s.pipeline(p)})
}

func (s *Stream) BindDescriptors(p device.Pipeline, b *device.Bindings) error {
	if err := b.Complete(); err != nil {
		return err
	}
	s.commands = append(s.commands, command{op: opBindDescriptors, pipeline: s.pipeline(p), bindings: b.Clone()})
	return nil
}

func (s *Stream) PushConstants(p device.Pipeline, offset uint32, data []byte) {
	hp := s.pipeline(p)
	if hp != nil && offset+uint32(len(data)) > hp.pushSize {
		s.fail(fmt.Errorf("push constants [%d, %d) exceed the %d bytes of pipeline '%s'", offset, offset+uint32(len(data)), hp.pushSize, hp.name))
	}
	s.commands = append(s.commands, command{
		op:       opPushConstants,
		pipeline: hp,
		offset:   uint64(offset),
		data:     append([]byte(nil), data...),
	})
}

func (s *Stream) Dispatch(x, y, z uint32) {
	s.commands = append(s.commands, command{op: opDispatch, counts: [3]uint32{x, y, z}})
}

func (s *Stream) BindVertexBuffer(b device.Buffer) {
	s.commands = append(s.commands, command{op: opBindVertex, src: s.buffer(b)})
}

func (s *Stream) BindIndexBuffer(b device.Buffer) {
	s.commands = append(s.commands, command{op: opBindIndex, src: s.buffer(b)})
}

func (s *Stream) DrawIndexedIndirect(b device.Buffer, offset uint64, drawCount, stride uint32) {
	s.commands = append(s.commands, command{
		op:     opDrawIndexedIndirect,
		src:    s.buffer(b),
		offset: offset,
		counts: [3]uint32{drawCount},
		stride: stride,
	})
}

func (s *Stream) Draw(vertexCount, instanceCount uint32) {
	s.commands = append(s.commands, command{op: opDraw, counts: [3]uint32{vertexCount, instanceCount}})
}

// buffers lists every buffer the recorded commands read or write.
func (s *Stream) buffers() []*Buffer {
	seen := make(map[*Buffer]struct{})
	var out []*Buffer
	add := func(b *Buffer) {
		if b == nil {
			return
		}
		if _, ok := seen[b]; ok {
			return
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	for _, c := range s.commands {
		add(c.src)
		add(c.dst)
		for _, in := range c.inputs {
			add(in)
		}
		if c.op != opBindDescriptors || c.pipeline == nil || c.bindings == nil {
			continue
		}
		for _, desc := range c.pipeline.layout {
			if buf, ok := c.bindings.Buffer(desc.Name); ok {
				if hb, ok := buf.(*Buffer); ok {
					add(hb)
				}
			}
		}
	}
	return out
}

// Len returns the number of recorded commands.
func (s *Stream) Len() int {
	return len(s.commands)
}
