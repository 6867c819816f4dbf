// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shaderaccess

import (
	"errors"
	"fmt"

	"github.com/gogpu/framegraph"
)

var (
	// ErrUnboundSlot is returned when a resource binding has no resource.
	ErrUnboundSlot = errors.New("shaderaccess: slot not bound")

	// ErrKindMismatch is returned when a buffer binding is given an image
	// or the reverse.
	ErrKindMismatch = errors.New("shaderaccess: resource kind does not match binding")

	// ErrUnsupportedAccess is returned for shader writes the stage kind has
	// no state for, such as storage writes from a render pass.
	ErrUnsupportedAccess = errors.New("shaderaccess: unsupported access for stage kind")
)

// Apply adds the accesses of m's bindings to s, using bind to find the
// resource at each slot. Samplers are skipped.
//
// Compute stages get ComputeRead, ComputeWrite or both. Render pass reads
// are FragmentRead when the module has a fragment entry point and
// VertexRead otherwise; render passes cannot write through bindings.
func Apply(m *Module, s framegraph.Stage, bind map[Slot]framegraph.ResourceID) (framegraph.Stage, error) {
	for _, b := range m.Bindings {
		if b.Class == ClassSampler {
			continue
		}
		id, ok := bind[b.Slot]
		if !ok {
			return s, fmt.Errorf("%w: %s (%s) in stage %q", ErrUnboundSlot, b.Slot, b.Name, s.Label)
		}
		if (b.Class == ClassBuffer) != (id.Kind == framegraph.KindBuffer) {
			return s, fmt.Errorf("%w: %s (%s) bound to %s", ErrKindMismatch, b.Slot, b.Name, id)
		}

		switch s.Kind {
		case framegraph.StageCompute:
			switch b.Access {
			case AccessRead:
				s = s.Read(id, framegraph.StateComputeRead)
			case AccessWrite:
				s = s.Write(id, framegraph.StateComputeWrite)
			case AccessReadWrite:
				s = s.ReadWrite(id)
			}
		case framegraph.StageRenderPass:
			if b.Access != AccessRead {
				return s, fmt.Errorf("%w: %s %s in render pass %q", ErrUnsupportedAccess, b.Access, b.Name, s.Label)
			}
			state := framegraph.StateVertexRead
			if m.HasStage(ShaderFragment) {
				state = framegraph.StateFragmentRead
			}
			s = s.Read(id, state)
		}
	}
	return s, nil
}
