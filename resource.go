// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import "fmt"

// ResourceKind distinguishes the three families of GPU resources the
// scheduler tracks. Buffers never carry an image layout.
type ResourceKind uint8

const (
	// KindBuffer is a linear GPU buffer.
	KindBuffer ResourceKind = iota

	// KindColorImage is a color texture (storage, sampled or color attachment).
	KindColorImage

	// KindDepthImage is a depth/stencil texture.
	KindDepthImage
)

// String returns the kind name.
func (k ResourceKind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindColorImage:
		return "color-image"
	case KindDepthImage:
		return "depth-image"
	default:
		return "Unknown"
	}
}

// IsImage reports whether resources of this kind have an image layout.
func (k ResourceKind) IsImage() bool {
	return k == KindColorImage || k == KindDepthImage
}

// ResourceID is a type-erased handle to a GPU resource owned by the
// command-submission collaborator. Index is an opaque slot in that
// collaborator's arena; the scheduler never dereferences it.
//
// ResourceID is comparable and is used directly as a map key.
type ResourceID struct {
	Kind  ResourceKind
	Index uint32
}

// Buffer returns the handle of buffer slot i.
func Buffer(i uint32) ResourceID { return ResourceID{Kind: KindBuffer, Index: i} }

// ColorImage returns the handle of color image slot i.
func ColorImage(i uint32) ResourceID { return ResourceID{Kind: KindColorImage, Index: i} }

// DepthImage returns the handle of depth image slot i.
func DepthImage(i uint32) ResourceID { return ResourceID{Kind: KindDepthImage, Index: i} }

// String formats the handle as "kind#index".
func (r ResourceID) String() string {
	return fmt.Sprintf("%s#%d", r.Kind, r.Index)
}

// less orders handles by kind, then index. Used wherever output must be
// deterministic regardless of map iteration order.
func (r ResourceID) less(o ResourceID) bool {
	if r.Kind != o.Kind {
		return r.Kind < o.Kind
	}
	return r.Index < o.Index
}

// ResourceState is the synchronization state of a resource at a point in the
// committed execution order. Each state names both how the resource is about
// to be used and, for images, the layout it must be in.
type ResourceState uint8

const (
	// StateUndefined means the contents are not meaningful. It is the state
	// of newly created resources and is never a transition target.
	StateUndefined ResourceState = iota

	// StateComputeRead is a read from a compute shader.
	StateComputeRead

	// StateComputeWrite is a storage write from a compute shader.
	StateComputeWrite

	// StateColorAttachment is use as a render pass color attachment.
	StateColorAttachment

	// StateDepthAttachment is use as a render pass depth/stencil attachment.
	StateDepthAttachment

	// StateFragmentRead is a read from a fragment shader.
	StateFragmentRead

	// StateVertexRead is a vertex-stage read (vertex buffer or vertex shader).
	StateVertexRead

	// StateTransferSrc is the source of a copy.
	StateTransferSrc

	// StateTransferDst is the destination of a copy.
	StateTransferDst

	// StateIndirectRead is a read of indirect dispatch or draw arguments.
	StateIndirectRead

	stateCount
)

var stateNames = [...]string{
	StateUndefined:       "Undefined",
	StateComputeRead:     "ComputeRead",
	StateComputeWrite:    "ComputeWrite",
	StateColorAttachment: "ColorAttachment",
	StateDepthAttachment: "DepthAttachment",
	StateFragmentRead:    "FragmentRead",
	StateVertexRead:      "VertexRead",
	StateTransferSrc:     "TransferSrc",
	StateTransferDst:     "TransferDst",
	StateIndirectRead:    "IndirectRead",
}

// String returns the state name.
func (s ResourceState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// ParseResourceState converts a state name as printed by String back into a
// ResourceState. Used by configuration and graph description loaders.
func ParseResourceState(name string) (ResourceState, error) {
	for i, n := range stateNames {
		if n == name {
			return ResourceState(i), nil
		}
	}
	return StateUndefined, fmt.Errorf("framegraph: unknown resource state %q", name)
}

// IsWrite reports whether the state modifies resource contents.
func (s ResourceState) IsWrite() bool {
	return s.valid() && stateTable[s].write
}

// IsRead reports whether the state only reads resource contents.
func (s ResourceState) IsRead() bool {
	return s != StateUndefined && s.valid() && !stateTable[s].write
}

func (s ResourceState) valid() bool { return s < stateCount }

// stateSet is a bit set of ResourceState values.
type stateSet uint16

func (s stateSet) has(st ResourceState) bool { return s&(1<<st) != 0 }

func (s stateSet) with(st ResourceState) stateSet { return s | 1<<st }

// each calls fn for every state in the set, in ascending order.
func (s stateSet) each(fn func(ResourceState)) {
	for st := ResourceState(0); st < stateCount; st++ {
		if s.has(st) {
			fn(st)
		}
	}
}

// track is the synchronization bookkeeping kept per resource: the last write
// state, every read state used since that write, and the state of the most
// recent use. The image layout always follows current.
type track struct {
	current ResourceState
	write   ResourceState
	readers stateSet
	// initialized is set once the resource has content: written by a
	// committed frame or imported as externally initialized.
	initialized bool
}

// layout returns the image layout implied by the current state.
func (t track) layout() ImageLayout { return stateTable[t.current].layout }

// apply returns the tracking state after a use in state to.
func (t track) apply(to ResourceState) track {
	next := t
	next.current = to
	switch {
	case to.IsWrite():
		next.write = to
		next.readers = 0
		next.initialized = true
	case stateTable[to].layout != stateTable[t.current].layout:
		// A layout transition is itself a write of the image memory,
		// which waits on every earlier reader.
		next.readers = stateSet(0).with(to)
	default:
		next.readers = t.readers.with(to)
	}
	return next
}

// needsBarrier reports whether moving a resource of the given kind from t to
// state to requires any synchronization at all.
func (t track) needsBarrier(kind ResourceKind, to ResourceState) bool {
	layoutChange := kind.IsImage() && stateTable[to].layout != t.layout()
	if to.IsWrite() {
		if t.write == StateUndefined && t.readers == 0 {
			// Nothing to wait for; only a layout may need changing.
			return layoutChange
		}
		return true
	}
	if layoutChange {
		return true
	}
	if t.readers.has(to) || t.write == StateUndefined {
		return false
	}
	return true
}
