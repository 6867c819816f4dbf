// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"fmt"
	"strings"
)

// Transition is the state change of one resource covered by a barrier.
// OldLayout and NewLayout are LayoutUndefined for buffers; for images they
// differ only when the barrier performs a layout transition.
type Transition struct {
	Resource  ResourceID
	From      ResourceState
	To        ResourceState
	OldLayout ImageLayout
	NewLayout ImageLayout
}

// LayoutChange reports whether the transition changes an image layout.
func (t Transition) LayoutChange() bool {
	return t.Resource.Kind.IsImage() && t.OldLayout != t.NewLayout
}

// Barrier is one synchronization directive emitted before a stage. It is
// never modified after planning.
type Barrier struct {
	SrcStages StageMask
	DstStages StageMask
	SrcAccess AccessMask
	DstAccess AccessMask

	// ClosePassBefore is set when a render pass is open on the stream when
	// the barrier is reached. The pass is ended first.
	ClosePassBefore bool

	// Transitions lists the resources the barrier covers, in resource order
	// within each merged group.
	Transitions []Transition
}

// HasLayoutTransition reports whether any covered image changes layout.
func (b *Barrier) HasLayoutTransition() bool {
	for _, t := range b.Transitions {
		if t.LayoutChange() {
			return true
		}
	}
	return false
}

// Resources returns the covered resources.
func (b *Barrier) Resources() []ResourceID {
	ids := make([]ResourceID, len(b.Transitions))
	for i, t := range b.Transitions {
		ids[i] = t.Resource
	}
	return ids
}

// String formats the barrier on one line.
func (b *Barrier) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "barrier %s -> %s access %s -> %s", b.SrcStages, b.DstStages, b.SrcAccess, b.DstAccess)
	if b.ClosePassBefore {
		sb.WriteString(" close-pass")
	}
	for _, t := range b.Transitions {
		fmt.Fprintf(&sb, " [%s %s->%s", t.Resource, t.From, t.To)
		if t.LayoutChange() {
			fmt.Fprintf(&sb, " %s->%s", t.OldLayout, t.NewLayout)
		}
		sb.WriteString("]")
	}
	return sb.String()
}

func (b *Barrier) mergeKey() barrierKey {
	return barrierKey{b.SrcStages, b.DstStages, b.SrcAccess, b.DstAccess, b.ClosePassBefore}
}

type barrierKey struct {
	srcStages, dstStages StageMask
	srcAccess, dstAccess AccessMask
	closePass            bool
}

// Boundary is everything emitted on a stream immediately before a stage or
// a section entry.
type Boundary struct {
	// ClosePass ends the render pass open on the stream.
	ClosePass bool

	// ContinuePass records a render pass stage into the pass left open by
	// the previous stage on the same stream instead of beginning a new one.
	ContinuePass bool

	Barriers []Barrier
}

// SectionPlan is the plan of one parallel section.
type SectionPlan struct {
	Graphics Span
	Compute  Span

	// Entry is emitted on the primary stream before the section forks.
	Entry Boundary

	// CloseGraphics and CloseCompute end a render pass left open at the end
	// of the sub-section.
	CloseGraphics bool
	CloseCompute  bool
}

// Plan is the ordered synchronization plan of a graph. The barriers guarding
// the first stage after a section are the section's join barriers.
type Plan struct {
	// Stages holds the boundary before each stage, by global index.
	Stages   []Boundary
	Sections []SectionPlan

	// CloseMain ends a render pass left open after the last stage.
	CloseMain bool

	// Merged counts barriers folded into an earlier barrier at the same
	// boundary.
	Merged int
}

// BarrierCount returns the number of barriers in the plan.
func (p *Plan) BarrierCount() int {
	n := 0
	for _, b := range p.Stages {
		n += len(b.Barriers)
	}
	for _, s := range p.Sections {
		n += len(s.Entry.Barriers)
	}
	return n
}

// Fingerprint returns a hash of the plan's full contents. Planning the same
// graph from the same state always yields the same fingerprint.
func (p *Plan) Fingerprint() uint64 {
	h := newHasher()
	boundary := func(b *Boundary) {
		flags := uint8(0)
		if b.ClosePass {
			flags |= 1
		}
		if b.ContinuePass {
			flags |= 2
		}
		h.u8(flags)
		h.u32(uint32(len(b.Barriers)))
		for i := range b.Barriers {
			br := &b.Barriers[i]
			h.u32(uint32(br.SrcStages))
			h.u32(uint32(br.DstStages))
			h.u32(uint32(br.SrcAccess))
			h.u32(uint32(br.DstAccess))
			if br.ClosePassBefore {
				h.u8(1)
			} else {
				h.u8(0)
			}
			h.u32(uint32(len(br.Transitions)))
			for _, t := range br.Transitions {
				h.res(t.Resource)
				h.u8(uint8(t.From))
				h.u8(uint8(t.To))
				h.u8(uint8(t.OldLayout))
				h.u8(uint8(t.NewLayout))
			}
		}
	}
	h.u32(uint32(len(p.Stages)))
	for i := range p.Stages {
		boundary(&p.Stages[i])
	}
	h.u32(uint32(len(p.Sections)))
	for i := range p.Sections {
		s := &p.Sections[i]
		boundary(&s.Entry)
		flags := uint8(0)
		if s.CloseGraphics {
			flags |= 1
		}
		if s.CloseCompute {
			flags |= 2
		}
		h.u8(flags)
	}
	if p.CloseMain {
		h.u8(1)
	} else {
		h.u8(0)
	}
	return h.sum()
}

// passState tracks the render pass open on one stream during planning.
type passState struct {
	open  bool
	stage int
}

// planner converts the analysis' transitions into barriers.
type planner struct {
	g    *Graph
	a    *Analysis
	plan *Plan
}

// buildPlan walks the graph in committed order, deciding render pass
// boundaries per stream and emitting merged barriers at every boundary.
func buildPlan(g *Graph, a *Analysis) (*Plan, error) {
	pl := &planner{
		g: g,
		a: a,
		plan: &Plan{
			Stages:   make([]Boundary, len(g.stages)),
			Sections: make([]SectionPlan, len(g.sections)),
		},
	}
	var main passState
	for i := 0; i < len(g.stages); {
		if sec := g.sectionOf[i]; sec >= 0 {
			if err := pl.section(sec, &main); err != nil {
				return nil, err
			}
			i = g.sections[sec].Compute.End
			continue
		}
		if err := pl.stage(i, &main); err != nil {
			return nil, err
		}
		i++
	}
	pl.plan.CloseMain = main.open
	return pl.plan, nil
}

func (pl *planner) section(sec int, main *passState) error {
	s := pl.g.sections[sec]
	sp := &pl.plan.Sections[sec]
	sp.Graphics, sp.Compute = s.Graphics, s.Compute
	sp.Entry.ClosePass = main.open
	bars, err := pl.barriers(s.Graphics.Start, pl.a.entry[sec], main.open)
	if err != nil {
		return err
	}
	sp.Entry.Barriers = bars
	main.open = false

	var gp, cp passState
	for i := s.Graphics.Start; i < s.Graphics.End; i++ {
		if err := pl.stage(i, &gp); err != nil {
			return err
		}
	}
	for i := s.Compute.Start; i < s.Compute.End; i++ {
		if err := pl.stage(i, &cp); err != nil {
			return err
		}
	}
	sp.CloseGraphics = gp.open
	sp.CloseCompute = cp.open
	return nil
}

func (pl *planner) stage(i int, ps *passState) error {
	s := &pl.g.stages[i]
	trs := pl.a.barriers[i]
	b := &pl.plan.Stages[i]

	if ps.open && s.Kind == StageRenderPass && sameAttachments(pl.g.stages[ps.stage].Attachments, s.Attachments) {
		if rest := withoutAttachmentHolds(trs, s.Attachments); len(rest) == 0 {
			b.ContinuePass = true
			ps.stage = i
			return nil
		}
	}

	b.ClosePass = ps.open
	bars, err := pl.barriers(i, trs, ps.open)
	if err != nil {
		return err
	}
	b.Barriers = bars
	ps.open = s.Kind == StageRenderPass
	ps.stage = i
	return nil
}

// withoutAttachmentHolds drops transitions that keep an attachment of a
// continuing pass in the same attachment state. Attachment writes inside one
// pass are ordered by the pass itself.
func withoutAttachmentHolds(trs []transition, atts []Attachment) []transition {
	var rest []transition
	for _, tr := range trs {
		held := false
		for _, at := range atts {
			if at.Resource == tr.res && tr.from.current == tr.to && tr.to == at.attachmentState() {
				held = true
				break
			}
		}
		if !held {
			rest = append(rest, tr)
		}
	}
	return rest
}

// barriers converts the transitions at one boundary and merges those that
// share masks. Order of first appearance is kept.
func (pl *planner) barriers(stage int, trs []transition, closePass bool) ([]Barrier, error) {
	var out []Barrier
	index := make(map[barrierKey]int, len(trs))
	for _, tr := range trs {
		b, err := pl.barrier(stage, tr)
		if err != nil {
			return nil, err
		}
		b.ClosePassBefore = closePass
		k := b.mergeKey()
		if j, ok := index[k]; ok {
			out[j].Transitions = append(out[j].Transitions, b.Transitions...)
			pl.plan.Merged++
			continue
		}
		index[k] = len(out)
		out = append(out, b)
	}
	return out, nil
}

// barrier computes the synchronization for one transition. A write or a
// layout change waits on every reader since the last write, or on the last
// write when there were none; a read waits on the last write only.
func (pl *planner) barrier(stage int, tr transition) (Barrier, error) {
	t, to := tr.from, tr.to
	layoutChange := tr.res.Kind.IsImage() && t.layout() != to.Layout()

	var src stateSet
	if (to.IsWrite() || layoutChange) && t.readers != 0 {
		src = t.readers
	} else {
		src = src.with(t.write)
	}

	b := Barrier{}
	var err error
	src.each(func(from ResourceState) {
		if err != nil {
			return
		}
		rule, ok := lookupTransition(from, to)
		if !ok {
			e := newValidationError(ErrUnknownTransition).at(stage, pl.g.stages[stage].Label).on(tr.res)
			e.From, e.To = from, to
			err = e
			return
		}
		b.SrcStages |= rule.srcStages
		b.SrcAccess |= rule.srcAccess
		b.DstStages = rule.dstStages
		b.DstAccess = rule.dstAccess
	})
	if err != nil {
		return Barrier{}, err
	}
	if tr.rmw {
		b.DstAccess |= AccessShaderRead
	}

	x := Transition{Resource: tr.res, From: t.current, To: to}
	if tr.res.Kind.IsImage() {
		x.OldLayout, x.NewLayout = t.layout(), to.Layout()
	}
	b.Transitions = []Transition{x}
	return b, nil
}

// String dumps the plan, one boundary per line group.
func (p *Plan) String() string {
	var sb strings.Builder
	boundary := func(name string, b *Boundary) {
		if !b.ClosePass && !b.ContinuePass && len(b.Barriers) == 0 {
			return
		}
		fmt.Fprintf(&sb, "%s:", name)
		if b.ClosePass {
			sb.WriteString(" close-pass")
		}
		if b.ContinuePass {
			sb.WriteString(" continue-pass")
		}
		sb.WriteString("\n")
		for i := range b.Barriers {
			fmt.Fprintf(&sb, "  %s\n", b.Barriers[i].String())
		}
	}
	sec := 0
	for i := range p.Stages {
		if sec < len(p.Sections) && p.Sections[sec].Graphics.Start == i {
			boundary(fmt.Sprintf("section %d entry", sec), &p.Sections[sec].Entry)
			sec++
		}
		boundary(fmt.Sprintf("stage %d", i), &p.Stages[i])
	}
	if p.CloseMain {
		sb.WriteString("end: close-pass\n")
	}
	return sb.String()
}
