// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"maps"
	"slices"
)

// Edge is a dependency: Consumer uses Resource, whose most recent prior
// writer is Producer. Producer < Consumer always holds.
type Edge struct {
	Producer int
	Consumer int
	Resource ResourceID
}

// use is one normalized access of a stage. A compute read-modify-write is a
// single use in StateComputeWrite with rmw set.
type use struct {
	res   ResourceID
	state ResourceState
	write bool
	rmw   bool
}

// reads reports whether the use depends on existing contents.
func (u use) reads() bool { return !u.write || u.rmw }

// transition is one resource state change that needs synchronization.
type transition struct {
	res  ResourceID
	from track
	to   ResourceState
	rmw  bool
}

// unwrittenRead is a read of a resource with no writer in the graph and no
// content at entry.
type unwrittenRead struct {
	stage int
	res   ResourceID
}

// laneUse summarizes how one sub-section uses a resource.
type laneUse struct {
	first  int // first stage using it
	writer int // first stage writing it, or -1
	states stateSet
}

// sectionAccess holds the per-lane usage of one parallel section.
type sectionAccess struct {
	graphics map[ResourceID]laneUse
	compute  map[ResourceID]laneUse
}

// Analysis is the result of the dependency pass over a graph: edges, the
// state transitions each stage boundary needs, and the final state of every
// resource.
type Analysis struct {
	// Edges lists every dependency in consumer order.
	Edges []Edge

	uses      [][]use
	barriers  [][]transition // per stage
	entry     [][]transition // per section, shared reads at section entry
	unwritten []unwrittenRead
	malformed []*ValidationError
	access    []sectionAccess
	final     Snapshot
}

// LastWriter returns the producer of the edge from stage consumer on res,
// or -1 if the stage's use of res has no prior writer.
func (a *Analysis) LastWriter(consumer int, res ResourceID) int {
	i, ok := slices.BinarySearchFunc(a.Edges, consumer, func(e Edge, c int) int { return e.Consumer - c })
	if !ok {
		return -1
	}
	for ; i < len(a.Edges) && a.Edges[i].Consumer == consumer; i++ {
		if a.Edges[i].Resource == res {
			return a.Edges[i].Producer
		}
	}
	return -1
}

// laneState is the tracking state of one command stream. Sub-section lanes
// overlay the main lane and record only what they change, so entering and
// joining a section costs no more than the section's own accesses.
type laneState struct {
	parent  *laneState
	tracks  map[ResourceID]track
	writers map[ResourceID]int
}

func newLaneState(parent *laneState, tracks map[ResourceID]track) *laneState {
	if tracks == nil {
		tracks = make(map[ResourceID]track)
	}
	return &laneState{parent: parent, tracks: tracks, writers: make(map[ResourceID]int)}
}

func (l *laneState) track(id ResourceID) track {
	for s := l; s != nil; s = s.parent {
		if t, ok := s.tracks[id]; ok {
			return t
		}
	}
	return track{}
}

func (l *laneState) writer(id ResourceID) (int, bool) {
	for s := l; s != nil; s = s.parent {
		if w, ok := s.writers[id]; ok {
			return w, true
		}
	}
	return 0, false
}

// analyze runs the single forward dependency pass. It never fails: problems
// are recorded for the validator to report in its own order.
func analyze(g *Graph, entry Snapshot) *Analysis {
	n := len(g.stages)
	a := &Analysis{
		uses:     make([][]use, n),
		barriers: make([][]transition, n),
		entry:    make([][]transition, len(g.sections)),
		access:   make([]sectionAccess, len(g.sections)),
	}
	for i := range g.stages {
		a.uses[i] = a.normalize(i, &g.stages[i])
	}

	main := newLaneState(nil, maps.Clone(entry.tracks))
	for i := 0; i < n; {
		if sec := g.sectionOf[i]; sec >= 0 {
			a.section(g, sec, main)
			i = g.sections[sec].Compute.End
			continue
		}
		a.step(i, main)
		i++
	}
	a.final = Snapshot{tracks: main.tracks}
	return a
}

// step applies the uses of stage i to lane l.
func (a *Analysis) step(i int, l *laneState) {
	for _, u := range a.uses[i] {
		t := l.track(u.res)
		if w, ok := l.writer(u.res); ok {
			e := Edge{Producer: w, Consumer: i, Resource: u.res}
			if len(a.Edges) == 0 || a.Edges[len(a.Edges)-1] != e {
				a.Edges = append(a.Edges, e)
			}
		} else if u.reads() && !t.initialized {
			a.unwritten = append(a.unwritten, unwrittenRead{stage: i, res: u.res})
		}
		if t.needsBarrier(u.res.Kind, u.state) {
			a.barriers[i] = append(a.barriers[i], transition{res: u.res, from: t, to: u.state, rmw: u.rmw})
		}
		l.tracks[u.res] = t.apply(u.state)
		if u.write {
			l.writers[u.res] = i
		}
	}
}

// section analyzes parallel section sec. Resources read by both lanes are
// moved into every state either lane needs at section entry, so neither
// lane synchronizes them again. Written shared resources are conflicts and
// are left to the validator.
func (a *Analysis) section(g *Graph, sec int, main *laneState) {
	s := g.sections[sec]
	acc := sectionAccess{
		graphics: a.laneAccess(s.Graphics),
		compute:  a.laneAccess(s.Compute),
	}
	a.access[sec] = acc

	for _, id := range sharedResources(acc) {
		gu, cu := acc.graphics[id], acc.compute[id]
		states := gu.states | cu.states
		if gu.writer >= 0 || cu.writer >= 0 || !singleLayout(id.Kind, states) {
			continue
		}
		t := main.track(id)
		states.each(func(st ResourceState) {
			if t.needsBarrier(id.Kind, st) {
				a.entry[sec] = append(a.entry[sec], transition{res: id, from: t, to: st})
			}
			t = t.apply(st)
		})
		main.tracks[id] = t
	}

	gl := newLaneState(main, nil)
	for i := s.Graphics.Start; i < s.Graphics.End; i++ {
		a.step(i, gl)
	}
	cl := newLaneState(main, nil)
	for i := s.Compute.Start; i < s.Compute.End; i++ {
		a.step(i, cl)
	}

	// Join: both lanes' effects become visible to the main lane.
	for id, t := range gl.tracks {
		main.tracks[id] = t
	}
	for id, t := range cl.tracks {
		if gt, ok := gl.tracks[id]; ok && t.write == gt.write {
			t.readers |= gt.readers
		}
		main.tracks[id] = t
	}
	for id, w := range gl.writers {
		main.writers[id] = w
	}
	for id, w := range cl.writers {
		main.writers[id] = w
	}
}

// laneAccess summarizes the uses of the stages in span.
func (a *Analysis) laneAccess(span Span) map[ResourceID]laneUse {
	m := make(map[ResourceID]laneUse)
	for i := span.Start; i < span.End; i++ {
		for _, u := range a.uses[i] {
			lu, ok := m[u.res]
			if !ok {
				lu = laneUse{first: i, writer: -1}
			}
			lu.states = lu.states.with(u.state)
			if u.write && lu.writer < 0 {
				lu.writer = i
			}
			m[u.res] = lu
		}
	}
	return m
}

// sharedResources returns the resources both lanes use, sorted.
func sharedResources(acc sectionAccess) []ResourceID {
	small, large := acc.graphics, acc.compute
	if len(small) > len(large) {
		small, large = large, small
	}
	var ids []ResourceID
	for id := range small {
		if _, ok := large[id]; ok {
			ids = append(ids, id)
		}
	}
	sortResources(ids)
	return ids
}

// singleLayout reports whether all states agree on the image layout.
func singleLayout(kind ResourceKind, states stateSet) bool {
	if !kind.IsImage() {
		return true
	}
	layout, first, ok := LayoutUndefined, true, true
	states.each(func(st ResourceState) {
		switch {
		case first:
			layout, first = st.Layout(), false
		case st.Layout() != layout:
			ok = false
		}
	})
	return ok
}

// normalize validates the declared accesses of stage i and merges them into
// uses sorted by resource. Malformed accesses are recorded and dropped.
func (a *Analysis) normalize(i int, s *Stage) []use {
	bad := func(kind error, format string, args ...any) {
		a.malformed = append(a.malformed, newValidationError(kind).at(i, s.Label).withDetail(format, args...))
	}

	if s.Kind == StageRenderPass && len(s.Attachments) == 0 {
		bad(ErrInvalidState, "render pass has no attachments")
	}
	if s.Kind == StageCompute && (len(s.Attachments) > 0 || len(s.Draws) > 0) {
		bad(ErrInvalidState, "compute stage has attachments or draws")
	}
	seen := make(map[ResourceID]bool, len(s.Attachments))
	for _, at := range s.Attachments {
		if seen[at.Resource] {
			a.malformed = append(a.malformed, newValidationError(ErrAliasedAccess).at(i, s.Label).
				on(at.Resource).withDetail("attached twice"))
		}
		seen[at.Resource] = true
	}

	raw := make([]use, 0, len(s.Reads)+len(s.Writes))
	check := func(u Use, write bool) {
		st := u.State
		switch {
		case !st.valid() || st == StateUndefined || st.IsWrite() != write:
			verb := "read"
			if write {
				verb = "write"
			}
			bad(ErrInvalidState, "%s declared as a %s", st, verb)
		case !st.ValidFor(u.Resource.Kind):
			a.malformed = append(a.malformed, newValidationError(ErrInvalidState).at(i, s.Label).
				on(u.Resource).withDetail("%s is not valid for a %s", st, u.Resource.Kind))
		case (st == StateComputeRead || st == StateComputeWrite) && s.Kind != StageCompute:
			a.malformed = append(a.malformed, newValidationError(ErrInvalidState).at(i, s.Label).
				on(u.Resource).withDetail("%s outside a compute stage", st))
		case (st == StateColorAttachment || st == StateDepthAttachment) && !seen[u.Resource]:
			a.malformed = append(a.malformed, newValidationError(ErrInvalidState).at(i, s.Label).
				on(u.Resource).withDetail("%s on a resource that is not an attachment", st))
		default:
			raw = append(raw, use{res: u.Resource, state: st, write: write})
		}
	}
	for _, u := range s.Reads {
		check(u, false)
	}
	for _, u := range s.Writes {
		check(u, true)
	}

	slices.SortFunc(raw, func(x, y use) int {
		switch {
		case x.res.less(y.res):
			return -1
		case y.res.less(x.res):
			return 1
		}
		return int(x.state) - int(y.state)
	})
	raw = slices.Compact(raw)

	out := raw[:0]
	for lo := 0; lo < len(raw); {
		hi := lo + 1
		for hi < len(raw) && raw[hi].res == raw[lo].res {
			hi++
		}
		out = append(out, a.merge(i, s, raw[lo:hi])...)
		lo = hi
	}
	return out
}

// merge combines the uses of one resource within one stage.
func (a *Analysis) merge(i int, s *Stage, group []use) []use {
	if len(group) == 1 {
		return group
	}
	var reads, writes stateSet
	var nw int
	for _, u := range group {
		if u.write {
			writes = writes.with(u.state)
			nw++
		} else {
			reads = reads.with(u.state)
		}
	}
	id := group[0].res
	aliased := func(detail string) []use {
		a.malformed = append(a.malformed, newValidationError(ErrAliasedAccess).at(i, s.Label).on(id).withDetail("%s", detail))
		return nil
	}
	switch {
	case nw > 1:
		return aliased("written in more than one state")
	case nw == 1 && reads != 0:
		if writes.has(StateComputeWrite) && reads == stateSet(0).with(StateComputeRead) {
			return []use{{res: id, state: StateComputeWrite, write: true, rmw: true}}
		}
		return aliased("read and written in one stage")
	case !singleLayout(id.Kind, reads):
		return aliased("read in incompatible image layouts")
	}
	return group
}
