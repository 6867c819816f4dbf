// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shaderaccess derives stage access declarations from WGSL
// resource bindings.
//
// Reflect lowers a module to naga IR, validates it, and lists its bindings
// with the access each one allows: var<storage, read> and sampled textures
// are reads, var<storage, read_write> is a read-modify-write, write-only
// storage textures are writes. Apply then turns the bindings of a module
// into Read/Write/ReadWrite declarations on a framegraph.Stage, given the
// resource bound to each slot.
package shaderaccess

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// ErrInvalidShader wraps compilation errors from Reflect and Parse.
var ErrInvalidShader = errors.New("shaderaccess: invalid shader")

// Slot is a bind group slot.
type Slot struct {
	Group   uint32
	Binding uint32
}

func (s Slot) String() string { return fmt.Sprintf("@group(%d) @binding(%d)", s.Group, s.Binding) }

// Access is what a shader may do to a bound resource.
type Access uint8

const (
	// AccessNone is the access of samplers.
	AccessNone Access = iota
	// AccessRead covers uniforms, read-only storage and sampled textures.
	AccessRead
	// AccessWrite is a write-only storage texture.
	AccessWrite
	// AccessReadWrite covers read_write storage buffers and textures.
	AccessReadWrite
)

var accessNames = [...]string{
	AccessNone:      "none",
	AccessRead:      "read",
	AccessWrite:     "write",
	AccessReadWrite: "read_write",
}

func (a Access) String() string {
	if int(a) < len(accessNames) {
		return accessNames[a]
	}
	return "unknown"
}

// Class is the kind of resource a binding expects.
type Class uint8

const (
	// ClassBuffer is a uniform or storage buffer.
	ClassBuffer Class = iota
	// ClassTexture is a sampled, depth or storage texture.
	ClassTexture
	// ClassSampler is a sampler; it needs no resource.
	ClassSampler
)

// Binding is one module-scope resource variable.
type Binding struct {
	Slot   Slot
	Name   string
	Class  Class
	Access Access
}

// ShaderStage is the pipeline stage of an entry point.
type ShaderStage uint8

const (
	// ShaderCompute is a @compute entry point.
	ShaderCompute ShaderStage = iota
	// ShaderVertex is a @vertex entry point.
	ShaderVertex
	// ShaderFragment is a @fragment entry point.
	ShaderFragment
)

// EntryPoint is a shader entry function.
type EntryPoint struct {
	Name  string
	Stage ShaderStage
}

// Module is the reflected interface of a WGSL module.
type Module struct {
	Bindings    []Binding
	EntryPoints []EntryPoint
}

// Reflect lowers src to naga IR, validates it, and returns its bindings
// and entry points.
func Reflect(src string) (*Module, error) {
	mod, err := lower(src)
	if err != nil {
		return nil, err
	}
	errs, err := naga.Validate(mod)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidShader, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidShader, &errs[0])
	}
	return fromIR(mod)
}

// Parse lowers src to naga IR without validating it and returns its
// bindings and entry points.
func Parse(src string) (*Module, error) {
	mod, err := lower(src)
	if err != nil {
		return nil, err
	}
	return fromIR(mod)
}

func lower(src string) (*ir.Module, error) {
	ast, err := naga.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidShader, err)
	}
	mod, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidShader, err)
	}
	return mod, nil
}

// fromIR collects the bound globals of mod, sorted by slot, and its
// compute, vertex and fragment entry points.
func fromIR(mod *ir.Module) (*Module, error) {
	m := &Module{}
	seen := make(map[Slot]string)
	for _, g := range mod.GlobalVariables {
		if g.Binding == nil {
			continue
		}
		slot := Slot{Group: g.Binding.Group, Binding: g.Binding.Binding}
		if prev, dup := seen[slot]; dup {
			return nil, fmt.Errorf("shaderaccess: %s bound to both %s and %s", slot, prev, g.Name)
		}
		seen[slot] = g.Name

		b := Binding{Slot: slot, Name: g.Name}
		if err := classify(&b, mod, g); err != nil {
			return nil, err
		}
		m.Bindings = append(m.Bindings, b)
	}
	slices.SortFunc(m.Bindings, func(a, b Binding) int {
		if c := cmp.Compare(a.Slot.Group, b.Slot.Group); c != 0 {
			return c
		}
		return cmp.Compare(a.Slot.Binding, b.Slot.Binding)
	})

	for _, e := range mod.EntryPoints {
		ep := EntryPoint{Name: e.Name}
		switch e.Stage {
		case ir.StageCompute:
			ep.Stage = ShaderCompute
		case ir.StageVertex:
			ep.Stage = ShaderVertex
		case ir.StageFragment:
			ep.Stage = ShaderFragment
		default:
			continue
		}
		m.EntryPoints = append(m.EntryPoints, ep)
	}
	return m, nil
}

// classify sets the class and access of b from the address space of g
// and, for handles, from its resolved type.
func classify(b *Binding, mod *ir.Module, g ir.GlobalVariable) error {
	switch g.Space {
	case ir.SpaceUniform:
		b.Class, b.Access = ClassBuffer, AccessRead
		return nil
	case ir.SpaceStorage:
		b.Class, b.Access = ClassBuffer, AccessRead
		if g.Access == ir.StorageReadWrite {
			b.Access = AccessReadWrite
		}
		return nil
	case ir.SpaceHandle:
	default:
		return fmt.Errorf("shaderaccess: %s: unsupported address space %d", b.Name, g.Space)
	}

	inner, err := typeInner(mod, g.Type)
	if err != nil {
		return fmt.Errorf("shaderaccess: %s: %w", b.Name, err)
	}
	if arr, ok := inner.(ir.BindingArrayType); ok {
		if inner, err = typeInner(mod, arr.Base); err != nil {
			return fmt.Errorf("shaderaccess: %s: %w", b.Name, err)
		}
	}
	switch t := inner.(type) {
	case ir.SamplerType:
		b.Class, b.Access = ClassSampler, AccessNone
	case ir.ImageType:
		b.Class, b.Access = ClassTexture, AccessRead
		if t.Class == ir.ImageClassStorage {
			switch t.StorageAccess {
			case ir.StorageAccessWrite:
				b.Access = AccessWrite
			case ir.StorageAccessReadWrite, ir.StorageAccessAtomic:
				b.Access = AccessReadWrite
			}
		}
	default:
		return fmt.Errorf("shaderaccess: %s: unsupported binding type %T", b.Name, inner)
	}
	return nil
}

func typeInner(mod *ir.Module, h ir.TypeHandle) (ir.TypeInner, error) {
	if int(h) >= len(mod.Types) {
		return nil, fmt.Errorf("type handle %d out of range", h)
	}
	return mod.Types[h].Inner, nil
}

// Binding returns the binding at slot.
func (m *Module) Binding(slot Slot) (Binding, bool) {
	for _, b := range m.Bindings {
		if b.Slot == slot {
			return b, true
		}
	}
	return Binding{}, false
}

// HasStage reports whether the module has an entry point for stage.
func (m *Module) HasStage(stage ShaderStage) bool {
	for _, e := range m.EntryPoints {
		if e.Stage == stage {
			return true
		}
	}
	return false
}
