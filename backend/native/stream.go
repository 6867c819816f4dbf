// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph"
)

// stream records one framegraph command stream into a lazily created
// command encoder.
type stream struct {
	t     *Target
	label string
	enc   hal.CommandEncoder
	pass  hal.RenderPassEncoder
}

func newStream(t *Target, label string) *stream {
	return &stream{t: t, label: label}
}

func (s *stream) encoder() (hal.CommandEncoder, error) {
	if s.enc != nil {
		return s.enc, nil
	}
	enc, err := s.t.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: s.label + "_encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(s.label); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	s.enc = enc
	return enc, nil
}

// finish ends encoding and returns the command buffer, or nil if nothing
// was recorded.
func (s *stream) finish() (hal.CommandBuffer, error) {
	if s.enc == nil {
		return nil, nil
	}
	if s.pass != nil {
		return nil, fmt.Errorf("%w: finishing %s", ErrPassOpen, s.label)
	}
	cb, err := s.enc.EndEncoding()
	s.enc = nil
	if err != nil {
		return nil, fmt.Errorf("native: end encoding: %w", err)
	}
	return cb, nil
}

// PipelineBarrier implements framegraph.CommandStream. Buffer and texture
// transitions are issued as usage transitions; the stage and access masks
// are derived by the HAL from the usages.
func (s *stream) PipelineBarrier(b framegraph.Barrier) error {
	if s.pass != nil {
		return ErrPassOpen
	}
	var bufs []hal.BufferBarrier
	var texs []hal.TextureBarrier
	for _, tr := range b.Transitions {
		if tr.Resource.Kind == framegraph.KindBuffer {
			buf, err := s.t.buffer(tr.Resource)
			if err != nil {
				return err
			}
			bufs = append(bufs, hal.BufferBarrier{
				Buffer: buf,
				Usage: hal.BufferUsageTransition{
					OldUsage: tr.From.BufferUsage(),
					NewUsage: tr.To.BufferUsage(),
				},
			})
			continue
		}
		bt, err := s.t.texture(tr.Resource)
		if err != nil {
			return err
		}
		texs = append(texs, hal.TextureBarrier{
			Texture: bt.tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: tr.From.TextureUsage(),
				NewUsage: tr.To.TextureUsage(),
			},
		})
	}

	enc, err := s.encoder()
	if err != nil {
		return err
	}
	if len(bufs) > 0 {
		enc.TransitionBuffers(bufs)
	}
	if len(texs) > 0 {
		enc.TransitionTextures(texs)
	}
	return nil
}

// BeginRenderPass implements framegraph.CommandStream.
func (s *stream) BeginRenderPass(stage framegraph.StageRef, atts []framegraph.Attachment) error {
	if s.pass != nil {
		return ErrPassOpen
	}
	desc := &hal.RenderPassDescriptor{Label: stage.Label}
	for _, a := range atts {
		bt, err := s.t.texture(a.Resource)
		if err != nil {
			return err
		}
		if a.Resource.Kind == framegraph.KindDepthImage {
			desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
				View:            bt.view,
				DepthLoadOp:     a.Load,
				DepthStoreOp:    a.Store,
				DepthClearValue: a.ClearDepth,
			}
			continue
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       bt.view,
			LoadOp:     a.Load,
			StoreOp:    a.Store,
			ClearValue: a.Clear,
		})
	}
	enc, err := s.encoder()
	if err != nil {
		return err
	}
	s.pass = enc.BeginRenderPass(desc)
	return nil
}

// EndRenderPass implements framegraph.CommandStream.
func (s *stream) EndRenderPass() error {
	if s.pass == nil {
		return ErrNoPass
	}
	s.pass.End()
	s.pass = nil
	return nil
}

// Draw implements framegraph.CommandStream. A zero Draw.Pipeline uses the
// stage's pipeline.
func (s *stream) Draw(stage framegraph.StageRef, d framegraph.Draw) error {
	if s.pass == nil {
		return ErrNoPass
	}
	id := d.Pipeline
	if id == 0 {
		id = stage.Pipeline
	}
	p, err := s.t.renderPipeline(id)
	if err != nil {
		return err
	}
	s.pass.SetPipeline(p.pipeline)
	for i, g := range p.groups {
		s.pass.SetBindGroup(uint32(i), g, nil)
	}
	s.pass.Draw(d.VertexCount, d.InstanceCount, d.FirstVertex, d.FirstInstance)
	return nil
}

// computePass opens a compute pass with the stage's pipeline bound.
func (s *stream) computePass(stage framegraph.StageRef) (hal.ComputePassEncoder, error) {
	if s.pass != nil {
		return nil, ErrPassOpen
	}
	p, err := s.t.computePipeline(stage.Pipeline)
	if err != nil {
		return nil, err
	}
	enc, err := s.encoder()
	if err != nil {
		return nil, err
	}
	pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: stage.Label})
	pass.SetPipeline(p.pipeline)
	for i, g := range p.groups {
		pass.SetBindGroup(uint32(i), g, nil)
	}
	return pass, nil
}

// Dispatch implements framegraph.CommandStream.
func (s *stream) Dispatch(stage framegraph.StageRef, x, y, z uint32) error {
	pass, err := s.computePass(stage)
	if err != nil {
		return err
	}
	pass.Dispatch(x, y, z)
	pass.End()
	return nil
}

// DispatchIndirect implements framegraph.CommandStream.
func (s *stream) DispatchIndirect(stage framegraph.StageRef, buffer framegraph.ResourceID, offset uint64) error {
	buf, err := s.t.buffer(buffer)
	if err != nil {
		return err
	}
	pass, err := s.computePass(stage)
	if err != nil {
		return err
	}
	pass.DispatchIndirect(buf, offset)
	pass.End()
	return nil
}
