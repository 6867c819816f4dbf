// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"strings"

	"github.com/gogpu/gputypes"
)

// StageMask is a set of GPU pipeline stages, the execution scope of one side
// of a barrier.
type StageMask uint32

// Pipeline stage bits.
const (
	StageNone              StageMask = 0
	StageTopOfPipe         StageMask = 1 << 0
	StageDrawIndirect      StageMask = 1 << 1
	StageVertexInput       StageMask = 1 << 2
	StageVertexShader      StageMask = 1 << 3
	StageFragmentShader    StageMask = 1 << 4
	StageEarlyFragmentTest StageMask = 1 << 5
	StageLateFragmentTest  StageMask = 1 << 6
	StageColorOutput       StageMask = 1 << 7
	StageComputeShader     StageMask = 1 << 8
	StageTransfer          StageMask = 1 << 9
)

var stageMaskNames = []struct {
	bit  StageMask
	name string
}{
	{StageTopOfPipe, "top"},
	{StageDrawIndirect, "indirect"},
	{StageVertexInput, "vertex-input"},
	{StageVertexShader, "vertex"},
	{StageFragmentShader, "fragment"},
	{StageEarlyFragmentTest, "early-fragment-tests"},
	{StageLateFragmentTest, "late-fragment-tests"},
	{StageColorOutput, "color-output"},
	{StageComputeShader, "compute"},
	{StageTransfer, "transfer"},
}

// String lists the set stage bits separated by '|'.
func (m StageMask) String() string {
	if m == StageNone {
		return "none"
	}
	var parts []string
	for _, n := range stageMaskNames {
		if m&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// AccessMask is a set of memory access types, the memory scope of one side of
// a barrier.
type AccessMask uint32

// Access bits.
const (
	AccessNone                AccessMask = 0
	AccessIndirectRead        AccessMask = 1 << 0
	AccessVertexAttributeRead AccessMask = 1 << 1
	AccessShaderRead          AccessMask = 1 << 2
	AccessShaderWrite         AccessMask = 1 << 3
	AccessColorRead           AccessMask = 1 << 4
	AccessColorWrite          AccessMask = 1 << 5
	AccessDepthRead           AccessMask = 1 << 6
	AccessDepthWrite          AccessMask = 1 << 7
	AccessTransferRead        AccessMask = 1 << 8
	AccessTransferWrite       AccessMask = 1 << 9
)

// accessWriteBits are the access bits that produce data other accesses may
// need made available.
const accessWriteBits = AccessShaderWrite | AccessColorWrite | AccessDepthWrite | AccessTransferWrite

var accessMaskNames = []struct {
	bit  AccessMask
	name string
}{
	{AccessIndirectRead, "indirect-read"},
	{AccessVertexAttributeRead, "vertex-attribute-read"},
	{AccessShaderRead, "shader-read"},
	{AccessShaderWrite, "shader-write"},
	{AccessColorRead, "color-read"},
	{AccessColorWrite, "color-write"},
	{AccessDepthRead, "depth-read"},
	{AccessDepthWrite, "depth-write"},
	{AccessTransferRead, "transfer-read"},
	{AccessTransferWrite, "transfer-write"},
}

// String lists the set access bits separated by '|'.
func (m AccessMask) String() string {
	if m == AccessNone {
		return "none"
	}
	var parts []string
	for _, n := range accessMaskNames {
		if m&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ImageLayout is the memory organization an image must be in for a use.
// Buffers always report LayoutUndefined.
type ImageLayout uint8

// Image layouts.
const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutShaderReadOnly
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutTransferSrc
	LayoutTransferDst
)

var layoutNames = [...]string{
	LayoutUndefined:       "Undefined",
	LayoutGeneral:         "General",
	LayoutShaderReadOnly:  "ShaderReadOnly",
	LayoutColorAttachment: "ColorAttachment",
	LayoutDepthAttachment: "DepthAttachment",
	LayoutTransferSrc:     "TransferSrc",
	LayoutTransferDst:     "TransferDst",
}

// String returns the layout name.
func (l ImageLayout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return "Unknown"
}

// stateUsage is one row of the per-state usage table.
type stateUsage struct {
	stages StageMask
	access AccessMask
	layout ImageLayout
	write  bool

	// kinds lists the resource kinds the state is legal for.
	kinds [3]bool

	buffer  gputypes.BufferUsage
	texture gputypes.TextureUsage
}

var (
	anyKind    = [3]bool{true, true, true}
	imageOnly  = [3]bool{KindColorImage: true, KindDepthImage: true}
	colorOnly  = [3]bool{KindColorImage: true}
	depthOnly  = [3]bool{KindDepthImage: true}
	bufferOnly = [3]bool{KindBuffer: true}
)

// stateTable describes how each state touches memory.
var stateTable = [stateCount]stateUsage{
	StateUndefined: {
		stages: StageTopOfPipe,
		layout: LayoutUndefined,
		kinds:  anyKind,
	},
	StateComputeRead: {
		stages:  StageComputeShader,
		access:  AccessShaderRead,
		layout:  LayoutShaderReadOnly,
		kinds:   anyKind,
		buffer:  gputypes.BufferUsageStorage,
		texture: gputypes.TextureUsageTextureBinding,
	},
	StateComputeWrite: {
		stages:  StageComputeShader,
		access:  AccessShaderWrite,
		layout:  LayoutGeneral,
		write:   true,
		kinds:   [3]bool{KindBuffer: true, KindColorImage: true},
		buffer:  gputypes.BufferUsageStorage,
		texture: gputypes.TextureUsageStorageBinding,
	},
	StateColorAttachment: {
		stages:  StageColorOutput,
		access:  AccessColorRead | AccessColorWrite,
		layout:  LayoutColorAttachment,
		write:   true,
		kinds:   colorOnly,
		texture: gputypes.TextureUsageRenderAttachment,
	},
	StateDepthAttachment: {
		stages:  StageEarlyFragmentTest | StageLateFragmentTest,
		access:  AccessDepthRead | AccessDepthWrite,
		layout:  LayoutDepthAttachment,
		write:   true,
		kinds:   depthOnly,
		texture: gputypes.TextureUsageRenderAttachment,
	},
	StateFragmentRead: {
		stages:  StageFragmentShader,
		access:  AccessShaderRead,
		layout:  LayoutShaderReadOnly,
		kinds:   anyKind,
		buffer:  gputypes.BufferUsageStorage | gputypes.BufferUsageUniform,
		texture: gputypes.TextureUsageTextureBinding,
	},
	StateVertexRead: {
		stages:  StageVertexInput | StageVertexShader,
		access:  AccessVertexAttributeRead | AccessShaderRead,
		layout:  LayoutShaderReadOnly,
		kinds:   anyKind,
		buffer:  gputypes.BufferUsageVertex,
		texture: gputypes.TextureUsageTextureBinding,
	},
	StateTransferSrc: {
		stages:  StageTransfer,
		access:  AccessTransferRead,
		layout:  LayoutTransferSrc,
		kinds:   anyKind,
		buffer:  gputypes.BufferUsageCopySrc,
		texture: gputypes.TextureUsageCopySrc,
	},
	StateTransferDst: {
		stages:  StageTransfer,
		access:  AccessTransferWrite,
		layout:  LayoutTransferDst,
		write:   true,
		kinds:   anyKind,
		buffer:  gputypes.BufferUsageCopyDst,
		texture: gputypes.TextureUsageCopyDst,
	},
	StateIndirectRead: {
		stages: StageDrawIndirect,
		access: AccessIndirectRead,
		kinds:  bufferOnly,
		buffer: gputypes.BufferUsageIndirect,
	},
}

// ValidFor reports whether a resource of the given kind may be put in state s.
func (s ResourceState) ValidFor(kind ResourceKind) bool {
	return s.valid() && int(kind) < len(stateTable[s].kinds) && stateTable[s].kinds[kind]
}

// Layout returns the image layout required by the state.
func (s ResourceState) Layout() ImageLayout {
	if !s.valid() {
		return LayoutUndefined
	}
	return stateTable[s].layout
}

// BufferUsage returns the WebGPU buffer usage the state corresponds to.
func (s ResourceState) BufferUsage() gputypes.BufferUsage {
	if !s.valid() {
		return 0
	}
	return stateTable[s].buffer
}

// TextureUsage returns the WebGPU texture usage the state corresponds to.
func (s ResourceState) TextureUsage() gputypes.TextureUsage {
	if !s.valid() {
		return 0
	}
	return stateTable[s].texture
}

// transitionKey indexes the transition table.
type transitionKey struct {
	from, to ResourceState
}

// transitionRule is the synchronization one transition requires. Source
// scope first, destination second.
type transitionRule struct {
	srcStages StageMask
	dstStages StageMask
	srcAccess AccessMask
	dstAccess AccessMask
}

// transitionTable lists every transition the planner knows how to
// synchronize. A pair missing from the table is a build error: nothing may
// become Undefined, and attachment states of different image kinds never
// follow each other.
var transitionTable = func() map[transitionKey]transitionRule {
	allowed := map[ResourceState][]ResourceState{
		StateUndefined: {
			StateComputeRead, StateComputeWrite, StateColorAttachment, StateDepthAttachment,
			StateFragmentRead, StateVertexRead, StateTransferSrc, StateTransferDst, StateIndirectRead,
		},
		StateComputeRead: {
			StateComputeRead, StateComputeWrite, StateColorAttachment, StateDepthAttachment,
			StateFragmentRead, StateVertexRead, StateTransferSrc, StateTransferDst, StateIndirectRead,
		},
		StateComputeWrite: {
			StateComputeRead, StateComputeWrite, StateColorAttachment,
			StateFragmentRead, StateVertexRead, StateTransferSrc, StateTransferDst, StateIndirectRead,
		},
		StateColorAttachment: {
			StateComputeRead, StateComputeWrite, StateColorAttachment,
			StateFragmentRead, StateVertexRead, StateTransferSrc, StateTransferDst,
		},
		StateDepthAttachment: {
			StateComputeRead, StateDepthAttachment,
			StateFragmentRead, StateVertexRead, StateTransferSrc, StateTransferDst,
		},
		StateFragmentRead: {
			StateComputeRead, StateComputeWrite, StateColorAttachment, StateDepthAttachment,
			StateFragmentRead, StateVertexRead, StateTransferSrc, StateTransferDst, StateIndirectRead,
		},
		StateVertexRead: {
			StateComputeRead, StateComputeWrite, StateColorAttachment, StateDepthAttachment,
			StateFragmentRead, StateVertexRead, StateTransferSrc, StateTransferDst, StateIndirectRead,
		},
		StateTransferSrc: {
			StateComputeRead, StateComputeWrite, StateColorAttachment, StateDepthAttachment,
			StateFragmentRead, StateVertexRead, StateTransferSrc, StateTransferDst, StateIndirectRead,
		},
		StateTransferDst: {
			StateComputeRead, StateComputeWrite, StateColorAttachment, StateDepthAttachment,
			StateFragmentRead, StateVertexRead, StateTransferSrc, StateTransferDst, StateIndirectRead,
		},
		StateIndirectRead: {
			StateComputeRead, StateComputeWrite, StateFragmentRead, StateVertexRead,
			StateTransferSrc, StateTransferDst, StateIndirectRead,
		},
	}

	table := make(map[transitionKey]transitionRule)
	for from, tos := range allowed {
		src := stateTable[from]
		for _, to := range tos {
			dst := stateTable[to]
			table[transitionKey{from, to}] = transitionRule{
				srcStages: src.stages,
				dstStages: dst.stages,
				// Only writes need to be made available; a read-before-write
				// hazard is an execution dependency alone.
				srcAccess: src.access & accessWriteBits,
				dstAccess: dst.access,
			}
		}
	}
	return table
}()

// lookupTransition returns the rule for from -> to.
func lookupTransition(from, to ResourceState) (transitionRule, bool) {
	r, ok := transitionTable[transitionKey{from, to}]
	return r, ok
}
