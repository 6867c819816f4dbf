// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"sync/atomic"
)

// StageRef identifies the stage a command belongs to.
type StageRef struct {
	Index    int
	Label    string
	Pipeline PipelineID
}

// CommandStream receives the ordered commands of one stream. Implementations
// translate them into GPU API calls; any error is treated as fatal for the
// frame.
type CommandStream interface {
	PipelineBarrier(b Barrier) error
	BeginRenderPass(stage StageRef, attachments []Attachment) error
	EndRenderPass() error
	Dispatch(stage StageRef, x, y, z uint32) error
	DispatchIndirect(stage StageRef, buffer ResourceID, offset uint64) error
	Draw(stage StageRef, d Draw) error
}

// CommandTarget is the primary command stream plus the ability to fork two
// independent streams for a parallel section.
//
// Commands recorded on either forked stream before Join must complete, as
// observed by the primary stream, before the primary stream's first command
// after Join executes.
type CommandTarget interface {
	CommandStream

	// BeginParallel returns the graphics and compute streams of a section.
	BeginParallel(section int, label string) (graphics, compute CommandStream, err error)

	// Join waits, on the primary stream, for both streams of the section.
	Join(section int) error
}

// Executor replays planned graphs against a command target and owns the
// only path by which resource state advances in the registry.
type Executor struct {
	reg      *Registry
	profiler *Profiler
	frame    atomic.Uint64
}

// NewExecutor returns an executor committing to reg. A nil reg gets a
// private registry.
func NewExecutor(reg *Registry, opts ...ExecutorOption) *Executor {
	if reg == nil {
		reg = NewRegistry()
	}
	e := &Executor{reg: reg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the executor commits to.
func (e *Executor) Registry() *Registry { return e.reg }

// Frame returns the number of frames executed.
func (e *Executor) Frame() uint64 { return e.frame.Load() }

// Execute records one frame of g on target.
//
// If the committed state of g's resources no longer matches the state g
// was planned from (a previous frame or another graph moved them), g is
// re-planned from the committed state first; that can fail with a
// validation error, in which case nothing is recorded.
//
// A command error abandons the frame and is returned as a *FrameError
// wrapping it. The registry is advanced as if the frame had completed in
// both cases.
func (e *Executor) Execute(g *Graph, target CommandTarget) error {
	p := g.planned
	if live := g.entryFrom(e.reg); !live.equalOn(g.entry, g.touched) {
		var err error
		if p, err = g.planFor(live); err != nil {
			return err
		}
		slogger().Debug("framegraph: re-planned from committed state", "barriers", p.plan.BarrierCount())
	}

	frame := e.frame.Add(1) - 1
	if e.profiler != nil {
		e.profiler.BeginFrame(frame)
	}

	r := replay{g: g, plan: p.plan, target: target, parallel: g.decision.Parallel, profiler: e.profiler}
	err := r.run()
	e.reg.Commit(p.final)

	if e.profiler != nil {
		e.profiler.EndFrame()
	}
	if err != nil {
		slogger().Warn("framegraph: frame abandoned", "frame", frame, "err", err)
		return err
	}
	return nil
}

// replay walks one plan.
type replay struct {
	g        *Graph
	plan     *Plan
	target   CommandTarget
	parallel bool
	profiler *Profiler
}

func (r *replay) run() error {
	for i := 0; i < len(r.g.stages); {
		if sec := r.g.sectionOf[i]; sec >= 0 {
			if err := r.section(sec); err != nil {
				return err
			}
			i = r.g.sections[sec].Compute.End
			continue
		}
		if err := r.stage(r.target, i); err != nil {
			return err
		}
		i++
	}
	if r.plan.CloseMain {
		if err := r.target.EndRenderPass(); err != nil {
			return &FrameError{Stage: NoStage, Err: err}
		}
	}
	return nil
}

// boundary emits a pass close and barriers; stage is used for error context.
func (r *replay) boundary(s CommandStream, b *Boundary, stage int) error {
	if b.ClosePass {
		if err := s.EndRenderPass(); err != nil {
			return r.fail(stage, err)
		}
	}
	for i := range b.Barriers {
		if err := s.PipelineBarrier(b.Barriers[i]); err != nil {
			return r.fail(stage, err)
		}
	}
	return nil
}

func (r *replay) fail(stage int, err error) error {
	fe := &FrameError{Stage: stage, Err: err}
	if stage != NoStage {
		fe.Label = r.g.stages[stage].Label
	}
	return fe
}

func (r *replay) stage(s CommandStream, i int) error {
	b := &r.plan.Stages[i]
	if err := r.boundary(s, b, i); err != nil {
		return err
	}
	st := &r.g.stages[i]
	ref := StageRef{Index: i, Label: st.Label, Pipeline: st.Pipeline}

	var err error
	switch st.Kind {
	case StageCompute:
		d := st.Dispatch
		if d.Indirect {
			err = s.DispatchIndirect(ref, d.Buffer, d.Offset)
		} else {
			err = s.Dispatch(ref, d.X, d.Y, d.Z)
		}
	case StageRenderPass:
		if !b.ContinuePass {
			err = s.BeginRenderPass(ref, st.Attachments)
		}
		for _, d := range st.Draws {
			if err != nil {
				break
			}
			err = s.Draw(ref, d)
		}
	}
	if err != nil {
		return r.fail(i, err)
	}
	return nil
}

func (r *replay) lane(s CommandStream, span Span, closePass bool) error {
	for i := span.Start; i < span.End; i++ {
		if err := r.stage(s, i); err != nil {
			return err
		}
	}
	if closePass {
		if err := s.EndRenderPass(); err != nil {
			return r.fail(span.End-1, err)
		}
	}
	return nil
}

func (r *replay) section(sec int) error {
	s := r.g.sections[sec]
	sp := &r.plan.Sections[sec]
	if err := r.boundary(r.target, &sp.Entry, NoStage); err != nil {
		return err
	}

	if !r.parallel {
		if err := r.lane(r.target, s.Graphics, sp.CloseGraphics); err != nil {
			return err
		}
		if err := r.lane(r.target, s.Compute, sp.CloseCompute); err != nil {
			return err
		}
		r.sample(sec, false)
		return nil
	}

	gs, cs, err := r.target.BeginParallel(sec, s.Label)
	if err != nil {
		return r.fail(NoStage, err)
	}
	if err := r.lane(gs, s.Graphics, sp.CloseGraphics); err != nil {
		return err
	}
	if err := r.lane(cs, s.Compute, sp.CloseCompute); err != nil {
		return err
	}
	if err := r.target.Join(sec); err != nil {
		return r.fail(NoStage, err)
	}
	r.sample(sec, true)
	return nil
}

// sample forwards the target's timing of section sec to the profiler. A
// sample only counts as parallel when the section was forked and the
// target reports that the streams overlapped.
func (r *replay) sample(sec int, parallel bool) {
	if r.profiler == nil {
		return
	}
	timer, ok := r.target.(SectionTimer)
	if !ok {
		return
	}
	if s, ok := timer.SectionTiming(sec); ok {
		s.Section = sec
		s.Label = r.g.sections[sec].Label
		s.Parallel = s.Parallel && parallel
		r.profiler.Record(s)
	}
}
