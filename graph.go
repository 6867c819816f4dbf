// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"encoding/binary"
	"math"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/internal/cache"
)

// Lane identifies the command stream a stage is recorded on.
type Lane uint8

const (
	// LaneMain is the primary stream, outside any parallel section.
	LaneMain Lane = iota
	// LaneGraphics is the graphics sub-section of a parallel section.
	LaneGraphics
	// LaneCompute is the compute sub-section of a parallel section.
	LaneCompute
)

// String returns the lane name.
func (l Lane) String() string {
	switch l {
	case LaneMain:
		return "main"
	case LaneGraphics:
		return "graphics"
	case LaneCompute:
		return "compute"
	default:
		return "Unknown"
	}
}

// Span is a half-open range [Start, End) of global stage indices.
type Span struct {
	Start, End int
}

// Len returns the number of stages in the span.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether stage i is in the span.
func (s Span) Contains(i int) bool { return i >= s.Start && i < s.End }

// Section is a parallel section. Its stages are numbered contiguously:
// the graphics sub-section first, then the compute sub-section.
type Section struct {
	Label    string
	Graphics Span
	Compute  Span
}

// planned is the result of analyzing, validating and planning a graph from
// one entry state.
type planned struct {
	analysis *Analysis
	plan     *Plan
	warnings []Warning
	final    Snapshot
}

// localPlans bounds the per-graph memory of entry states seen by the
// executor. A static graph converges to one entry state after a frame or
// two.
const localPlans = 4

// Graph is a validated and planned stage sequence. It is immutable and may
// be executed any number of times.
type Graph struct {
	stages    []Stage
	lanes     []Lane
	sectionOf []int
	sections  []Section
	imports   map[ResourceID]ResourceState
	external  map[ResourceID]bool
	opts      buildOptions

	touched  []ResourceID
	shape    uint64
	entry    Snapshot
	planned  *planned
	decision Decision

	localOnce sync.Once
	local     *cache.Cache[uint64, *planned]
}

// Len returns the number of stages.
func (g *Graph) Len() int { return len(g.stages) }

// Stage returns stage i.
func (g *Graph) Stage(i int) Stage { return g.stages[i].clone() }

// Stages returns all stages in committed order.
func (g *Graph) Stages() []Stage {
	out := make([]Stage, len(g.stages))
	for i := range g.stages {
		out[i] = g.stages[i].clone()
	}
	return out
}

// Lane returns the lane stage i is recorded on.
func (g *Graph) Lane(i int) Lane { return g.lanes[i] }

// SectionOf returns the parallel section containing stage i, or -1.
func (g *Graph) SectionOf(i int) int { return g.sectionOf[i] }

// Sections returns the parallel sections in order.
func (g *Graph) Sections() []Section { return slices.Clone(g.sections) }

// Resources returns every resource the graph touches, sorted.
func (g *Graph) Resources() []ResourceID { return slices.Clone(g.touched) }

// Edges returns the dependency edges of the build-time plan.
func (g *Graph) Edges() []Edge { return slices.Clone(g.planned.analysis.Edges) }

// Plan returns the build-time plan.
func (g *Graph) Plan() *Plan { return g.planned.plan }

// Warnings returns the advisory warnings found at build time.
func (g *Graph) Warnings() []Warning { return slices.Clone(g.planned.warnings) }

// Decision returns the capability policy decision made at build time.
func (g *Graph) Decision() Decision { return g.decision }

// Entry returns the state snapshot the graph was planned from.
func (g *Graph) Entry() Snapshot { return g.entry }

// Final returns the resource states after a frame of the build-time plan.
func (g *Graph) Final() Snapshot { return g.planned.final }

// entryFrom returns the entry state for the graph's resources: the
// committed registry state, or the graph's import for resources the
// registry has never seen.
func (g *Graph) entryFrom(reg *Registry) Snapshot {
	s := reg.snapshotOf(g.touched)
	for id, st := range g.imports {
		if _, ok := s.tracks[id]; !ok {
			s.tracks[id] = importedTrack(st)
		}
	}
	return s
}

type planKey struct {
	shape, entry uint64
}

// planFor returns the analysis and plan for the given entry state, from the
// shared plan cache or the graph-local one when possible.
func (g *Graph) planFor(entry Snapshot) (*planned, error) {
	efp := entry.fingerprint(g.touched)
	if g.opts.cache != nil {
		if p, ok := g.opts.cache.get(planKey{g.shape, efp}); ok {
			return p, nil
		}
	} else if g.planned != nil {
		g.localOnce.Do(func() { g.local = cache.New[uint64, *planned](localPlans) })
		if p, ok := g.local.Get(efp); ok {
			return p, nil
		}
	}

	a := analyze(g, entry)
	warnings, err := validate(g, a)
	if err != nil {
		return nil, err
	}
	plan, err := buildPlan(g, a)
	if err != nil {
		return nil, err
	}
	p := &planned{analysis: a, plan: plan, warnings: warnings, final: a.final}

	switch {
	case g.opts.cache != nil:
		g.opts.cache.put(planKey{g.shape, efp}, p)
	case g.local != nil:
		g.local.Set(efp, p)
	}
	return p, nil
}

// hasher writes fixed-width values into an xxhash digest.
type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newHasher() *hasher { return &hasher{d: xxhash.New()} }

func (h *hasher) u8(v uint8) {
	h.buf[0] = v
	_, _ = h.d.Write(h.buf[:1])
}

func (h *hasher) u32(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[:4], v)
	_, _ = h.d.Write(h.buf[:4])
}

func (h *hasher) u64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:8], v)
	_, _ = h.d.Write(h.buf[:8])
}

func (h *hasher) f64(v float64) { h.u64(math.Float64bits(v)) }

func (h *hasher) str(s string) {
	h.u32(uint32(len(s)))
	_, _ = h.d.WriteString(s)
}

func (h *hasher) res(id ResourceID) {
	h.u8(uint8(id.Kind))
	h.u32(id.Index)
}

func (h *hasher) sum() uint64 { return h.d.Sum64() }

// shapeFingerprint hashes every input of analysis and validation except the
// entry state.
func (g *Graph) shapeFingerprint() uint64 {
	h := newHasher()
	h.u32(uint32(len(g.stages)))
	for i := range g.stages {
		s := &g.stages[i]
		h.u8(uint8(g.lanes[i]))
		h.u32(uint32(int32(g.sectionOf[i])))
		h.str(s.Label)
		h.u8(uint8(s.Kind))
		h.u64(uint64(s.Pipeline))
		h.f64(s.estimatedCost())
		if s.Dispatch.Indirect {
			h.u8(1)
			h.res(s.Dispatch.Buffer)
		} else {
			h.u8(0)
		}
		h.u32(uint32(len(s.Attachments)))
		for _, a := range s.Attachments {
			h.res(a.Resource)
			h.u8(loadCode(a.Load))
			h.u8(storeCode(a.Store))
		}
		for _, list := range [][]Use{s.Reads, s.Writes} {
			h.u32(uint32(len(list)))
			for _, u := range list {
				h.res(u.Resource)
				h.u8(uint8(u.State))
			}
		}
	}
	h.u32(uint32(len(g.sections)))
	for _, sec := range g.sections {
		h.str(sec.Label)
	}
	ext := make([]ResourceID, 0, len(g.external))
	for id := range g.external {
		ext = append(ext, id)
	}
	sortResources(ext)
	h.u32(uint32(len(ext)))
	for _, id := range ext {
		h.res(id)
	}
	h.u8(uint8(g.opts.unwritten))
	h.f64(g.opts.imbalanceWarn)
	h.f64(g.opts.imbalanceLimit)
	return h.sum()
}

func loadCode(op gputypes.LoadOp) uint8 {
	switch op {
	case gputypes.LoadOpClear:
		return 1
	case gputypes.LoadOpLoad:
		return 2
	}
	return 0
}

func storeCode(op gputypes.StoreOp) uint8 {
	switch op {
	case gputypes.StoreOpStore:
		return 1
	case gputypes.StoreOpDiscard:
		return 2
	}
	return 0
}
