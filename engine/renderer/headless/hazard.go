package headless

import (
	"fmt"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/renderer/device"
)

// writeState tracks one device write within a stream and what barriers made it visible to.
type writeState struct {
	access       device.AccessFlags
	stage        device.PipelineStage
	visibleTo    device.AccessFlags
	visibleStage device.PipelineStage
}

type hazardTracker struct {
	writes map[*Buffer]*writeState

	pipeline *Pipeline
	bindings map[*Pipeline]*device.Bindings
	vertex   *Buffer
	index    *Buffer
}

func newHazardTracker() *hazardTracker {
	return &hazardTracker{
		writes:   make(map[*Buffer]*writeState),
		bindings: make(map[*Pipeline]*device.Bindings),
	}
}

func (h *hazardTracker) write(b *Buffer, access device.AccessFlags, stage device.PipelineStage) {
	h.writes[b] = &writeState{access: access, stage: stage}
}

// consume fails if b was written in this stream and no barrier made the write visible to access at stage.
func (h *hazardTracker) consume(i int, op opcode, b *Buffer, access device.AccessFlags, stage device.PipelineStage) error {
	w, ok := h.writes[b]
	if !ok {
		return nil
	}
	if w.visibleTo&access == access && w.visibleStage.Covers(stage) {
		return nil
	}
	return fmt.Errorf("%w: command %d (%s) reads %s", core.ErrSyncHazard, i, op, b)
}

func (h *hazardTracker) barrier(b device.Barrier) {
	for _, w := range h.writes {
		if b.SrcAccess&w.access != 0 && b.SrcStage.Covers(w.stage) {
			w.visibleTo |= b.DstAccess
			w.visibleStage |= b.DstStage
		}
	}
}

// validate walks the recorded commands without executing them.
func validate(cmds []command) error {
	h := newHazardTracker()
	for i, c := range cmds {
		switch c.op {
		case opBarrier:
			h.barrier(c.barrier)
		case opCopy:
			if err := h.consume(i, c.op, c.src, device.AccessTransferRead, device.PipelineStageTransfer); err != nil {
				return err
			}
			h.write(c.dst, device.AccessTransferWrite, device.PipelineStageTransfer)
		case opBindPipeline:
			h.pipeline = c.pipeline
		case opBindDescriptors:
			h.bindings[c.pipeline] = c.bindings
		case opDispatch:
			b := h.bindings[h.pipeline]
			if b == nil {
				continue
			}
			for _, desc := range h.pipeline.layout {
				buf, ok := b.Buffer(desc.Name)
				if !ok {
					continue
				}
				hb, ok := buf.(*Buffer)
				if !ok {
					continue
				}
				if desc.Writable {
					h.write(hb, device.AccessShaderWrite, device.PipelineStageComputeShader)
					continue
				}
				if err := h.consume(i, c.op, hb, device.AccessShaderRead, device.PipelineStageComputeShader); err != nil {
					return err
				}
			}
		case opBindVertex:
			h.vertex = c.src
		case opBindIndex:
			h.index = c.src
		case opDrawIndexedIndirect:
			if err := h.consume(i, c.op, c.src, device.AccessIndirectCommandRead, device.PipelineStageDrawIndirect); err != nil {
				return err
			}
			if h.vertex != nil {
				if err := h.consume(i, c.op, h.vertex, device.AccessVertexAttributeRead, device.PipelineStageVertexInput); err != nil {
					return err
				}
			}
			if h.index != nil {
				if err := h.consume(i, c.op, h.index, device.AccessIndexRead, device.PipelineStageVertexInput); err != nil {
					return err
				}
			}
		case opBuildAS:
			for _, in := range c.inputs {
				if err := h.consume(i, c.op, in, device.AccessAccelerationStructureRead, device.PipelineStageAccelerationStructureBuild); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
