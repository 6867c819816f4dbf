// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
)

// StageKind selects the variant of a Stage.
type StageKind uint8

const (
	// StageCompute is a single compute dispatch.
	StageCompute StageKind = iota
	// StageRenderPass is a render pass with an ordered list of draws.
	StageRenderPass
)

// String returns the kind name.
func (k StageKind) String() string {
	switch k {
	case StageCompute:
		return "Compute"
	case StageRenderPass:
		return "RenderPass"
	default:
		return "Unknown"
	}
}

// PipelineID is an opaque pipeline handle passed through to the command
// target. The scheduler never interprets it.
type PipelineID uint64

// Dispatch describes how a compute stage is launched.
type Dispatch struct {
	Indirect bool

	// X, Y, Z are workgroup counts for a direct dispatch.
	X, Y, Z uint32

	// Buffer and Offset locate the arguments of an indirect dispatch.
	Buffer ResourceID
	Offset uint64
}

// Direct returns a direct dispatch of x*y*z workgroups.
func Direct(x, y, z uint32) Dispatch {
	return Dispatch{X: x, Y: y, Z: z}
}

// Indirect returns a dispatch reading its workgroup counts from buffer at
// offset.
func Indirect(buffer ResourceID, offset uint64) Dispatch {
	return Dispatch{Indirect: true, Buffer: buffer, Offset: offset}
}

// Draw is one non-indexed draw call inside a render pass.
type Draw struct {
	Pipeline      PipelineID
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// Attachment binds an image to a render pass.
type Attachment struct {
	Resource ResourceID
	Load     gputypes.LoadOp
	Store    gputypes.StoreOp

	// Clear is used for color attachments loaded with LoadOpClear.
	Clear gputypes.Color
	// ClearDepth is used for depth attachments loaded with LoadOpClear.
	ClearDepth float32
}

// ColorTarget returns a color attachment that is cleared and stored.
func ColorTarget(r ResourceID, clear gputypes.Color) Attachment {
	return Attachment{Resource: r, Load: gputypes.LoadOpClear, Store: gputypes.StoreOpStore, Clear: clear}
}

// DepthTarget returns a depth attachment cleared to depth and stored.
func DepthTarget(r ResourceID, depth float32) Attachment {
	return Attachment{Resource: r, Load: gputypes.LoadOpClear, Store: gputypes.StoreOpStore, ClearDepth: depth}
}

// LoadTarget returns an attachment whose previous contents are kept.
func LoadTarget(r ResourceID) Attachment {
	return Attachment{Resource: r, Load: gputypes.LoadOpLoad, Store: gputypes.StoreOpStore}
}

// attachmentState returns the write state an attachment implies.
func (a Attachment) attachmentState() ResourceState {
	if a.Resource.Kind == KindDepthImage {
		return StateDepthAttachment
	}
	return StateColorAttachment
}

// Use is one declared access: a resource and the state the stage needs it in.
type Use struct {
	Resource ResourceID
	State    ResourceState
}

// Stage is an immutable unit of GPU work plus the resources it reads and
// writes. Build stages with Compute or RenderPass and the fluent methods,
// each of which returns a modified copy.
type Stage struct {
	Label    string
	Kind     StageKind
	Pipeline PipelineID

	// Dispatch is set for compute stages.
	Dispatch Dispatch

	// Attachments and Draws are set for render pass stages.
	Attachments []Attachment
	Draws       []Draw

	Reads  []Use
	Writes []Use

	// Cost is an optional relative cost hint used to judge parallel section
	// balance. Zero means "estimate from the dispatch or draws".
	Cost float64
}

// Compute returns a compute stage. An indirect dispatch declares an
// IndirectRead of its argument buffer.
func Compute(label string, d Dispatch) Stage {
	s := Stage{Label: label, Kind: StageCompute, Dispatch: d}
	if d.Indirect {
		s.Reads = []Use{{Resource: d.Buffer, State: StateIndirectRead}}
	}
	return s
}

// RenderPass returns a render pass stage over the given attachments. Each
// attachment is declared as a write in its attachment state.
func RenderPass(label string, attachments ...Attachment) Stage {
	s := Stage{Label: label, Kind: StageRenderPass, Attachments: slices.Clone(attachments)}
	for _, a := range attachments {
		s.Writes = append(s.Writes, Use{Resource: a.Resource, State: a.attachmentState()})
	}
	return s
}

func (s Stage) clone() Stage {
	s.Attachments = slices.Clone(s.Attachments)
	s.Draws = slices.Clone(s.Draws)
	s.Reads = slices.Clone(s.Reads)
	s.Writes = slices.Clone(s.Writes)
	return s
}

// Read returns a copy of s that also reads r in state.
func (s Stage) Read(r ResourceID, state ResourceState) Stage {
	s = s.clone()
	s.Reads = append(s.Reads, Use{Resource: r, State: state})
	return s
}

// Write returns a copy of s that also writes r in state.
func (s Stage) Write(r ResourceID, state ResourceState) Stage {
	s = s.clone()
	s.Writes = append(s.Writes, Use{Resource: r, State: state})
	return s
}

// ReadWrite returns a copy of s that reads and writes r from a compute
// shader (read-modify-write).
func (s Stage) ReadWrite(r ResourceID) Stage {
	return s.Read(r, StateComputeRead).Write(r, StateComputeWrite)
}

// Draw returns a copy of s with d appended to its draws.
func (s Stage) Draw(d Draw) Stage {
	s = s.clone()
	s.Draws = append(s.Draws, d)
	return s
}

// WithPipeline returns a copy of s bound to pipeline p.
func (s Stage) WithPipeline(p PipelineID) Stage {
	s = s.clone()
	s.Pipeline = p
	return s
}

// WithCost returns a copy of s carrying a relative cost hint.
func (s Stage) WithCost(c float64) Stage {
	s = s.clone()
	s.Cost = c
	return s
}

// String returns a one-line description of the stage.
func (s Stage) String() string {
	switch s.Kind {
	case StageCompute:
		if s.Dispatch.Indirect {
			return fmt.Sprintf("%s %q indirect(%s+%d)", s.Kind, s.Label, s.Dispatch.Buffer, s.Dispatch.Offset)
		}
		return fmt.Sprintf("%s %q dispatch(%d,%d,%d)", s.Kind, s.Label, s.Dispatch.X, s.Dispatch.Y, s.Dispatch.Z)
	default:
		return fmt.Sprintf("%s %q attachments=%d draws=%d", s.Kind, s.Label, len(s.Attachments), len(s.Draws))
	}
}

// estimatedCost returns the cost hint, or a workload estimate: workgroups
// for direct dispatches, vertices times instances for draws. Indirect
// dispatches count as one unit since their size is only known on the GPU.
func (s Stage) estimatedCost() float64 {
	if s.Cost > 0 {
		return s.Cost
	}
	switch s.Kind {
	case StageCompute:
		if s.Dispatch.Indirect {
			return 1
		}
		return float64(s.Dispatch.X) * float64(s.Dispatch.Y) * float64(s.Dispatch.Z)
	default:
		var c float64
		for _, d := range s.Draws {
			inst := d.InstanceCount
			if inst == 0 {
				inst = 1
			}
			c += float64(d.VertexCount) * float64(inst)
		}
		return c
	}
}

// sameAttachments reports whether next can continue a pass opened by prev:
// identical attachment images in the same order, and next keeps contents.
func sameAttachments(prev, next []Attachment) bool {
	if len(prev) != len(next) || len(prev) == 0 {
		return false
	}
	for i := range prev {
		if prev[i].Resource != next[i].Resource || next[i].Load != gputypes.LoadOpLoad {
			return false
		}
	}
	return true
}
