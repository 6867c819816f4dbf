// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package graphfile loads frame graphs described in YAML.
//
//	resources:
//	  - {name: particles_a, kind: buffer, import: ComputeWrite}
//	  - {name: particles_b, kind: buffer}
//	  - {name: hdr, kind: color}
//	stages:
//	  - compute: cull
//	    dispatch: [64, 1, 1]
//	    shader: cull.wgsl
//	    bind:
//	      - {group: 0, binding: 0, res: particles_a}
//	  - parallel: frame
//	    double_buffer: [particles_a, particles_b]
//	    graphics:
//	      - render: draw
//	        attachments: [{target: hdr, load: clear}]
//	        reads: [{res: $read, state: VertexRead}]
//	        draws: [{vertices: 6, instances: 4096}]
//	    compute:
//	      - compute: simulate
//	        dispatch: [256, 1, 1]
//	        reads: [{res: $read, state: ComputeRead}]
//	        writes: [{res: $write, state: ComputeWrite}]
//
// Inside a section with double_buffer, $read and $write name the copy the
// frame reads and the copy it writes.
package graphfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gogpu/gputypes"
	yaml "go.yaml.in/yaml/v3"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/shaderaccess"
)

// File is the decoded form of a graph description.
type File struct {
	Resources []Resource `yaml:"resources"`
	Stages    []Step     `yaml:"stages"`
}

// Resource declares a named resource.
type Resource struct {
	Name string `yaml:"name"`
	// Kind is buffer, color or depth.
	Kind string `yaml:"kind"`
	// Import is the state of externally initialized content, if any.
	Import string `yaml:"import,omitempty"`
	// External requires the resource to be written or imported before it
	// is read.
	External bool `yaml:"external,omitempty"`
}

// Step is a stage or a parallel section.
type Step struct {
	Compute  string `yaml:"compute,omitempty"`
	Render   string `yaml:"render,omitempty"`
	Parallel string `yaml:"-"`

	Dispatch []uint32  `yaml:"dispatch,omitempty"`
	Indirect *Indirect `yaml:"indirect,omitempty"`

	Attachments []Attachment `yaml:"attachments,omitempty"`
	Draws       []Draw       `yaml:"draws,omitempty"`

	Reads     []Access `yaml:"reads,omitempty"`
	Writes    []Access `yaml:"writes,omitempty"`
	ReadWrite []string `yaml:"read_write,omitempty"`

	Shader string    `yaml:"shader,omitempty"`
	Bind   []Binding `yaml:"bind,omitempty"`

	Pipeline uint64  `yaml:"pipeline,omitempty"`
	Cost     float64 `yaml:"cost,omitempty"`

	// Set for parallel steps only, whose "compute" key holds ComputeLane.
	DoubleBuffer []string `yaml:"-"`
	Graphics     []Step   `yaml:"-"`
	ComputeLane  []Step   `yaml:"-"`
}

// UnmarshalYAML lets a parallel step use "compute:" for its compute
// sub-section while a plain step uses it for the stage label.
func (s *Step) UnmarshalYAML(n *yaml.Node) error {
	type plain Step
	if n.Kind == yaml.MappingNode && isParallel(n) {
		var p struct {
			Parallel     string   `yaml:"parallel"`
			DoubleBuffer []string `yaml:"double_buffer"`
			Graphics     []Step   `yaml:"graphics"`
			Compute      []Step   `yaml:"compute"`
		}
		if err := decodeStrict(n, &p); err != nil {
			return err
		}
		*s = Step{Parallel: p.Parallel, DoubleBuffer: p.DoubleBuffer, Graphics: p.Graphics, ComputeLane: p.Compute}
		return nil
	}
	var p plain
	if err := decodeStrict(n, &p); err != nil {
		return err
	}
	*s = Step(p)
	return nil
}

func isParallel(n *yaml.Node) bool {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "parallel" {
			return true
		}
	}
	return false
}

// decodeStrict re-encodes n and decodes it with unknown fields rejected,
// since Node.Decode ignores the decoder's setting.
func decodeStrict(n *yaml.Node, v any) error {
	raw, err := yaml.Marshal(n)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(v)
}

// Indirect locates the arguments of an indirect dispatch.
type Indirect struct {
	Buffer string `yaml:"buffer"`
	Offset uint64 `yaml:"offset,omitempty"`
}

// Attachment binds a render target.
type Attachment struct {
	Target string `yaml:"target"`
	// Load is clear (default) or load.
	Load  string     `yaml:"load,omitempty"`
	Clear [4]float64 `yaml:"clear,omitempty"`
	Depth float32    `yaml:"depth,omitempty"`
}

// Draw is one draw call.
type Draw struct {
	Vertices  uint32 `yaml:"vertices"`
	Instances uint32 `yaml:"instances,omitempty"`
	Pipeline  uint64 `yaml:"pipeline,omitempty"`
}

// Access is a declared read or write.
type Access struct {
	Res   string `yaml:"res"`
	State string `yaml:"state"`
}

// Binding maps a shader slot to a resource.
type Binding struct {
	Group   uint32 `yaml:"group"`
	Binding uint32 `yaml:"binding"`
	Res     string `yaml:"res"`
}

// Decode reads a graph description. Unknown fields are rejected.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("graphfile: empty document")
		}
		return nil, fmt.Errorf("graphfile: %w", err)
	}
	return &f, nil
}

// Graph is a loaded description ready to build.
type Graph struct {
	file  *File
	dir   string
	names map[string]framegraph.ResourceID
	order []string
}

// Load reads and resolves the description at path. Shader paths are
// relative to its directory.
func Load(path string) (*Graph, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	f, err := Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return New(f, filepath.Dir(path))
}

// New resolves the resource names of f. dir is the base for shader paths.
func New(f *File, dir string) (*Graph, error) {
	g := &Graph{file: f, dir: dir, names: make(map[string]framegraph.ResourceID)}
	var next [3]uint32
	for _, r := range f.Resources {
		if r.Name == "" || r.Name[0] == '$' {
			return nil, fmt.Errorf("graphfile: invalid resource name %q", r.Name)
		}
		if _, dup := g.names[r.Name]; dup {
			return nil, fmt.Errorf("graphfile: resource %q declared twice", r.Name)
		}
		var kind framegraph.ResourceKind
		switch r.Kind {
		case "buffer":
			kind = framegraph.KindBuffer
		case "color":
			kind = framegraph.KindColorImage
		case "depth":
			kind = framegraph.KindDepthImage
		default:
			return nil, fmt.Errorf("graphfile: resource %q: unknown kind %q", r.Name, r.Kind)
		}
		g.names[r.Name] = framegraph.ResourceID{Kind: kind, Index: next[kind]}
		next[kind]++
		g.order = append(g.order, r.Name)
	}
	return g, nil
}

// Resource returns the handle assigned to name.
func (g *Graph) Resource(name string) (framegraph.ResourceID, bool) {
	id, ok := g.names[name]
	return id, ok
}

// Names returns the declared resource names in declaration order.
func (g *Graph) Names() []string { return append([]string(nil), g.order...) }

// Name returns the declared name of id, or its handle string.
func (g *Graph) Name(id framegraph.ResourceID) string {
	for n, v := range g.names {
		if v == id {
			return n
		}
	}
	return id.String()
}

// Build adds the description to a new builder and builds it for frame,
// which selects the copies of double-buffered sections.
func (g *Graph) Build(reg *framegraph.Registry, frame uint64, opts ...framegraph.BuildOption) (*framegraph.Graph, error) {
	b := framegraph.NewBuilder(reg, opts...)
	for _, r := range g.file.Resources {
		id := g.names[r.Name]
		if r.Import != "" {
			st, err := framegraph.ParseResourceState(r.Import)
			if err != nil {
				return nil, fmt.Errorf("graphfile: resource %q: %w", r.Name, err)
			}
			b.Import(id, st)
		}
		if r.External {
			b.RequireExternal(id)
		}
	}
	for i, step := range g.file.Stages {
		if step.Parallel != "" {
			if err := g.section(b, step, frame); err != nil {
				return nil, fmt.Errorf("graphfile: stages[%d]: %w", i, err)
			}
			continue
		}
		s, err := g.stage(step, nil)
		if err != nil {
			return nil, fmt.Errorf("graphfile: stages[%d]: %w", i, err)
		}
		b.AddStage(s)
	}
	return b.Build()
}

func (g *Graph) section(b *framegraph.Builder, step Step, frame uint64) error {
	var vars map[string]framegraph.ResourceID
	if len(step.DoubleBuffer) > 0 {
		if len(step.DoubleBuffer) != 2 {
			return fmt.Errorf("section %q: double_buffer needs two resources", step.Parallel)
		}
		a, err := g.lookup(step.DoubleBuffer[0], nil)
		if err != nil {
			return err
		}
		c, err := g.lookup(step.DoubleBuffer[1], nil)
		if err != nil {
			return err
		}
		db := framegraph.NewDoubleBuffer(a, c)
		vars = map[string]framegraph.ResourceID{"$read": db.Read(frame), "$write": db.Write(frame)}
	}

	p := b.BeginParallel(step.Parallel)
	for _, lane := range []struct {
		steps []Step
		add   func(...framegraph.Stage) *framegraph.ParallelBuilder
	}{
		{step.Graphics, p.Graphics},
		{step.ComputeLane, p.Compute},
	} {
		for _, st := range lane.steps {
			if st.Parallel != "" {
				return fmt.Errorf("section %q: nested parallel section %q", step.Parallel, st.Parallel)
			}
			s, err := g.stage(st, vars)
			if err != nil {
				return fmt.Errorf("section %q: %w", step.Parallel, err)
			}
			lane.add(s)
		}
	}
	b.EndParallel(p)
	return nil
}

func (g *Graph) lookup(name string, vars map[string]framegraph.ResourceID) (framegraph.ResourceID, error) {
	if id, ok := vars[name]; ok {
		return id, nil
	}
	if id, ok := g.names[name]; ok {
		return id, nil
	}
	return framegraph.ResourceID{}, fmt.Errorf("unknown resource %q", name)
}

func (g *Graph) stage(step Step, vars map[string]framegraph.ResourceID) (framegraph.Stage, error) {
	var s framegraph.Stage
	switch {
	case step.Compute != "" && step.Render != "":
		return s, fmt.Errorf("stage is both compute %q and render %q", step.Compute, step.Render)
	case step.Compute != "":
		d, err := g.dispatch(step, vars)
		if err != nil {
			return s, fmt.Errorf("compute %q: %w", step.Compute, err)
		}
		s = framegraph.Compute(step.Compute, d)
	case step.Render != "":
		atts := make([]framegraph.Attachment, 0, len(step.Attachments))
		for _, a := range step.Attachments {
			att, err := g.attachment(a, vars)
			if err != nil {
				return s, fmt.Errorf("render %q: %w", step.Render, err)
			}
			atts = append(atts, att)
		}
		s = framegraph.RenderPass(step.Render, atts...)
		for _, d := range step.Draws {
			s = s.Draw(framegraph.Draw{
				Pipeline:      framegraph.PipelineID(d.Pipeline),
				VertexCount:   d.Vertices,
				InstanceCount: d.Instances,
			})
		}
	default:
		return s, errors.New("stage needs compute, render or parallel")
	}

	for _, list := range []struct {
		uses  []Access
		apply func(framegraph.Stage, framegraph.ResourceID, framegraph.ResourceState) framegraph.Stage
	}{
		{step.Reads, framegraph.Stage.Read},
		{step.Writes, framegraph.Stage.Write},
	} {
		for _, u := range list.uses {
			id, err := g.lookup(u.Res, vars)
			if err != nil {
				return s, fmt.Errorf("%s: %w", s.Label, err)
			}
			st, err := framegraph.ParseResourceState(u.State)
			if err != nil {
				return s, fmt.Errorf("%s: %w", s.Label, err)
			}
			s = list.apply(s, id, st)
		}
	}
	for _, name := range step.ReadWrite {
		id, err := g.lookup(name, vars)
		if err != nil {
			return s, fmt.Errorf("%s: %w", s.Label, err)
		}
		s = s.ReadWrite(id)
	}

	if step.Shader != "" {
		var err error
		if s, err = g.applyShader(s, step, vars); err != nil {
			return s, fmt.Errorf("%s: %w", s.Label, err)
		}
	}
	if step.Pipeline != 0 {
		s = s.WithPipeline(framegraph.PipelineID(step.Pipeline))
	}
	if step.Cost > 0 {
		s = s.WithCost(step.Cost)
	}
	return s, nil
}

func (g *Graph) dispatch(step Step, vars map[string]framegraph.ResourceID) (framegraph.Dispatch, error) {
	if step.Indirect != nil {
		if len(step.Dispatch) > 0 {
			return framegraph.Dispatch{}, errors.New("both dispatch and indirect")
		}
		buf, err := g.lookup(step.Indirect.Buffer, vars)
		if err != nil {
			return framegraph.Dispatch{}, err
		}
		return framegraph.Indirect(buf, step.Indirect.Offset), nil
	}
	dims := [3]uint32{1, 1, 1}
	if len(step.Dispatch) == 0 || len(step.Dispatch) > 3 {
		return framegraph.Dispatch{}, fmt.Errorf("dispatch needs 1 to 3 workgroup counts, got %d", len(step.Dispatch))
	}
	copy(dims[:], step.Dispatch)
	return framegraph.Direct(dims[0], dims[1], dims[2]), nil
}

func (g *Graph) attachment(a Attachment, vars map[string]framegraph.ResourceID) (framegraph.Attachment, error) {
	id, err := g.lookup(a.Target, vars)
	if err != nil {
		return framegraph.Attachment{}, err
	}
	switch a.Load {
	case "", "clear":
		if id.Kind == framegraph.KindDepthImage {
			return framegraph.DepthTarget(id, a.Depth), nil
		}
		c := gputypes.Color{R: a.Clear[0], G: a.Clear[1], B: a.Clear[2], A: a.Clear[3]}
		return framegraph.ColorTarget(id, c), nil
	case "load":
		return framegraph.LoadTarget(id), nil
	}
	return framegraph.Attachment{}, fmt.Errorf("attachment %q: unknown load %q", a.Target, a.Load)
}

func (g *Graph) applyShader(s framegraph.Stage, step Step, vars map[string]framegraph.ResourceID) (framegraph.Stage, error) {
	path := step.Shader
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.dir, path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	m, err := shaderaccess.Reflect(string(src))
	if err != nil {
		return s, fmt.Errorf("%s: %w", step.Shader, err)
	}
	bind := make(map[shaderaccess.Slot]framegraph.ResourceID, len(step.Bind))
	for _, b := range step.Bind {
		id, err := g.lookup(b.Res, vars)
		if err != nil {
			return s, err
		}
		bind[shaderaccess.Slot{Group: b.Group, Binding: b.Binding}] = id
	}
	return shaderaccess.Apply(m, s, bind)
}
