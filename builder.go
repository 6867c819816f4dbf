// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"maps"
	"slices"
)

// Builder assembles a Graph from stages and parallel sections.
//
// Misuse (a nested section, a stage added while a section is open, an
// empty sub-section) is recorded and returned by Build; later calls are
// ignored. Builder is not safe for concurrent use.
//
//	b := framegraph.NewBuilder(reg)
//	b.AddStage(framegraph.Compute("cull", framegraph.Direct(64, 1, 1)).
//	    Write(drawArgs, framegraph.StateComputeWrite))
//	p := b.BeginParallel("frame")
//	p.Graphics(shade)
//	p.Compute(simulate)
//	b.EndParallel(p)
//	g, err := b.Build()
type Builder struct {
	reg  *Registry
	opts buildOptions

	stages    []Stage
	lanes     []Lane
	sectionOf []int
	sections  []Section

	open     *ParallelBuilder
	imports  map[ResourceID]ResourceState
	external map[ResourceID]bool

	err error
}

// NewBuilder returns a Builder whose graph starts from the committed state
// of reg. A nil reg means every resource starts Undefined.
func NewBuilder(reg *Registry, opts ...BuildOption) *Builder {
	o := defaultBuildOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Builder{
		reg:      reg,
		opts:     o,
		imports:  make(map[ResourceID]ResourceState),
		external: make(map[ResourceID]bool),
	}
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Err returns the first recorded misuse, if any.
func (b *Builder) Err() error { return b.err }

// AddStage appends stages to the main sequence.
func (b *Builder) AddStage(stages ...Stage) *Builder {
	if b.open != nil {
		b.fail(newValidationError(ErrUnclosedParallel).in(len(b.sections)).
			withDetail("AddStage called inside section %q", b.open.label))
		return b
	}
	for _, s := range stages {
		b.push(s, LaneMain, -1)
	}
	return b
}

func (b *Builder) push(s Stage, lane Lane, section int) {
	b.stages = append(b.stages, s.clone())
	b.lanes = append(b.lanes, lane)
	b.sectionOf = append(b.sectionOf, section)
}

// Import declares that id holds external content in state when this graph
// first sees it. A committed registry state takes precedence.
func (b *Builder) Import(id ResourceID, state ResourceState) *Builder {
	if !state.valid() || (state != StateUndefined && !state.ValidFor(id.Kind)) {
		b.fail(newValidationError(ErrInvalidState).on(id).withDetail("cannot import in state %s", state))
		return b
	}
	b.imports[id] = state
	return b
}

// RequireExternal declares that the given resources must carry external
// content before the graph reads them. Reading one that was neither
// written nor imported fails with ErrMissingExternalInit.
func (b *Builder) RequireExternal(ids ...ResourceID) *Builder {
	for _, id := range ids {
		b.external[id] = true
	}
	return b
}

// BeginParallel opens a parallel section. The returned ParallelBuilder
// collects the graphics and compute sub-sections; close it with
// EndParallel.
func (b *Builder) BeginParallel(label string) *ParallelBuilder {
	p := &ParallelBuilder{label: label}
	if b.open != nil {
		b.fail(newValidationError(ErrNestedParallel).in(len(b.sections)).
			withDetail("%q opened inside %q", label, b.open.label))
		return p
	}
	b.open = p
	return p
}

// EndParallel closes the open section p and appends it to the graph.
func (b *Builder) EndParallel(p *ParallelBuilder) *Builder {
	if p == nil || p != b.open {
		b.fail(newValidationError(ErrUnclosedParallel).withDetail("EndParallel with a section that is not open"))
		return b
	}
	b.open = nil
	idx := len(b.sections)
	if len(p.graphics) == 0 || len(p.compute) == 0 {
		b.fail(newValidationError(ErrEmptySection).in(idx).
			withDetail("section %q has %d graphics and %d compute stages", p.label, len(p.graphics), len(p.compute)))
		return b
	}
	sec := Section{Label: p.label}
	sec.Graphics.Start = len(b.stages)
	for _, s := range p.graphics {
		b.push(s, LaneGraphics, idx)
	}
	sec.Graphics.End = len(b.stages)
	sec.Compute.Start = len(b.stages)
	for _, s := range p.compute {
		b.push(s, LaneCompute, idx)
	}
	sec.Compute.End = len(b.stages)
	b.sections = append(b.sections, sec)
	return b
}

// SimulationSection adds the cross-frame simulation pattern as a parallel
// section: simulate runs on the compute sub-section reading buf.Read(frame)
// and writing buf.Write(frame); render runs on the graphics sub-section.
// simulate and render receive the buffer handles for this frame.
func (b *Builder) SimulationSection(label string, frame uint64, buf DoubleBuffer,
	simulate func(read, write ResourceID) []Stage, render func(read ResourceID) []Stage,
) *Builder {
	p := b.BeginParallel(label)
	p.Graphics(render(buf.Read(frame))...)
	p.Compute(simulate(buf.Read(frame), buf.Write(frame))...)
	return b.EndParallel(p)
}

// Build analyzes, validates and plans the graph.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.open != nil {
		return nil, newValidationError(ErrUnclosedParallel).in(len(b.sections)).
			withDetail("section %q was never ended", b.open.label)
	}

	g := &Graph{
		stages:    b.stages,
		lanes:     b.lanes,
		sectionOf: b.sectionOf,
		sections:  b.sections,
		imports:   maps.Clone(b.imports),
		external:  maps.Clone(b.external),
		opts:      b.opts,
	}
	g.touched = touchedResources(g.stages, g.imports)
	g.shape = g.shapeFingerprint()
	g.entry = g.entryFrom(b.reg)

	p, err := g.planFor(g.entry)
	if err != nil {
		return nil, err
	}
	g.planned = p
	g.decision = b.opts.policy.Decide(b.opts.device)

	slogger().Debug("framegraph: built",
		"stages", len(g.stages),
		"sections", len(g.sections),
		"edges", len(p.analysis.Edges),
		"barriers", p.plan.BarrierCount(),
		"merged", p.plan.Merged,
		"warnings", len(p.warnings),
		"parallel", g.decision.Parallel)
	return g, nil
}

// ParallelBuilder collects the two sub-sections of one parallel section. It
// has no BeginParallel, so sections cannot nest.
type ParallelBuilder struct {
	label    string
	graphics []Stage
	compute  []Stage
}

// Graphics appends stages to the graphics sub-section.
func (p *ParallelBuilder) Graphics(stages ...Stage) *ParallelBuilder {
	p.graphics = append(p.graphics, stages...)
	return p
}

// Compute appends stages to the compute sub-section.
func (p *ParallelBuilder) Compute(stages ...Stage) *ParallelBuilder {
	p.compute = append(p.compute, stages...)
	return p
}

// touchedResources returns every resource the stages use or the graph
// imports, sorted.
func touchedResources(stages []Stage, imports map[ResourceID]ResourceState) []ResourceID {
	seen := make(map[ResourceID]bool)
	for _, s := range stages {
		for _, u := range s.Reads {
			seen[u.Resource] = true
		}
		for _, u := range s.Writes {
			seen[u.Resource] = true
		}
	}
	for id := range imports {
		seen[id] = true
	}
	ids := slices.Collect(maps.Keys(seen))
	sortResources(ids)
	return ids
}
