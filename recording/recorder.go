// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package recording

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/framegraph"
)

// Errors reported for command sequences a GPU API would reject.
var (
	ErrPassOpen     = errors.New("render pass open")
	ErrNoPass       = errors.New("no render pass open")
	ErrSectionOpen  = errors.New("parallel section open")
	ErrNoSection    = errors.New("parallel section not open")
	ErrStreamClosed = errors.New("stream used outside its section")
)

// Recorder captures commands as Entries. It implements
// framegraph.CommandTarget and framegraph.SectionTimer.
//
// Recorder is safe for concurrent use; the streams returned by
// BeginParallel may be driven from different goroutines.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	open    [3]bool
	section int

	failAfter int
	failErr   error

	timings map[int]framegraph.SectionSample
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		entries:   make([]Entry, 0, 64),
		section:   -1,
		failAfter: -1,
	}
}

// FailAfter makes every command after the first n fail with err. A negative
// n disables fault injection.
func (r *Recorder) FailAfter(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAfter, r.failErr = n, err
}

// SetTiming sets the sample returned by SectionTiming for section.
func (r *Recorder) SetTiming(section int, s framegraph.SectionSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timings == nil {
		r.timings = make(map[int]framegraph.SectionSample)
	}
	r.timings[section] = s
}

// SectionTiming implements framegraph.SectionTimer.
func (r *Recorder) SectionTiming(section int) (framegraph.SectionSample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.timings[section]
	return s, ok
}

// Reset drops all recorded commands and pass state. Fault injection and
// timings are kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
	r.open = [3]bool{}
	r.section = -1
}

// Len returns the number of recorded commands.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Commands returns a copy of the recorded entries.
func (r *Recorder) Commands() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns how many commands of type t were recorded.
func (r *Recorder) Count(t CommandType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Command.Type() == t {
			n++
		}
	}
	return n
}

// Barriers returns the recorded barriers in order, across all streams.
func (r *Recorder) Barriers() []framegraph.Barrier {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []framegraph.Barrier
	for _, e := range r.entries {
		if c, ok := e.Command.(BarrierCommand); ok {
			out = append(out, c.Barrier)
		}
	}
	return out
}

// OnStream returns the commands recorded on stream s.
func (r *Recorder) OnStream(s Stream) []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Command
	for _, e := range r.entries {
		if e.Stream == s {
			out = append(out, e.Command)
		}
	}
	return out
}

// String dumps the recording, one command per line.
func (r *Recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sb strings.Builder
	for _, e := range r.entries {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// record appends c after check accepts it. check runs under the lock and
// may update pass state.
func (r *Recorder) record(s Stream, c Command, check func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAfter >= 0 && len(r.entries) >= r.failAfter {
		return r.failErr
	}
	if s != StreamMain && r.section < 0 {
		return fmt.Errorf("recording: %s on %s stream: %w", c.Type(), s, ErrStreamClosed)
	}
	if s == StreamMain && r.section >= 0 && c.Type() != CmdJoin {
		return fmt.Errorf("recording: %s on main stream: %w", c.Type(), ErrSectionOpen)
	}
	if check != nil {
		if err := check(); err != nil {
			return fmt.Errorf("recording: %s on %s stream: %w", c.Type(), s, err)
		}
	}
	r.entries = append(r.entries, Entry{Stream: s, Command: c})
	return nil
}

func (r *Recorder) outsidePass(s Stream) func() error {
	return func() error {
		if r.open[s] {
			return ErrPassOpen
		}
		return nil
	}
}

func (r *Recorder) insidePass(s Stream) func() error {
	return func() error {
		if !r.open[s] {
			return ErrNoPass
		}
		return nil
	}
}

func (r *Recorder) barrier(s Stream, b framegraph.Barrier) error {
	b.Transitions = append([]framegraph.Transition(nil), b.Transitions...)
	return r.record(s, BarrierCommand{Barrier: b}, r.outsidePass(s))
}

func (r *Recorder) beginRenderPass(s Stream, stage framegraph.StageRef, atts []framegraph.Attachment) error {
	c := BeginRenderPassCommand{Stage: stage, Attachments: append([]framegraph.Attachment(nil), atts...)}
	return r.record(s, c, func() error {
		if r.open[s] {
			return ErrPassOpen
		}
		r.open[s] = true
		return nil
	})
}

func (r *Recorder) endRenderPass(s Stream) error {
	return r.record(s, EndRenderPassCommand{}, func() error {
		if !r.open[s] {
			return ErrNoPass
		}
		r.open[s] = false
		return nil
	})
}

func (r *Recorder) dispatch(s Stream, stage framegraph.StageRef, x, y, z uint32) error {
	return r.record(s, DispatchCommand{Stage: stage, X: x, Y: y, Z: z}, r.outsidePass(s))
}

func (r *Recorder) dispatchIndirect(s Stream, stage framegraph.StageRef, buf framegraph.ResourceID, off uint64) error {
	return r.record(s, DispatchIndirectCommand{Stage: stage, Buffer: buf, Offset: off}, r.outsidePass(s))
}

func (r *Recorder) draw(s Stream, stage framegraph.StageRef, d framegraph.Draw) error {
	return r.record(s, DrawCommand{Stage: stage, Draw: d}, r.insidePass(s))
}

// PipelineBarrier implements framegraph.CommandStream.
func (r *Recorder) PipelineBarrier(b framegraph.Barrier) error { return r.barrier(StreamMain, b) }

// BeginRenderPass implements framegraph.CommandStream.
func (r *Recorder) BeginRenderPass(stage framegraph.StageRef, atts []framegraph.Attachment) error {
	return r.beginRenderPass(StreamMain, stage, atts)
}

// EndRenderPass implements framegraph.CommandStream.
func (r *Recorder) EndRenderPass() error { return r.endRenderPass(StreamMain) }

// Dispatch implements framegraph.CommandStream.
func (r *Recorder) Dispatch(stage framegraph.StageRef, x, y, z uint32) error {
	return r.dispatch(StreamMain, stage, x, y, z)
}

// DispatchIndirect implements framegraph.CommandStream.
func (r *Recorder) DispatchIndirect(stage framegraph.StageRef, buf framegraph.ResourceID, off uint64) error {
	return r.dispatchIndirect(StreamMain, stage, buf, off)
}

// Draw implements framegraph.CommandStream.
func (r *Recorder) Draw(stage framegraph.StageRef, d framegraph.Draw) error {
	return r.draw(StreamMain, stage, d)
}

// BeginParallel implements framegraph.CommandTarget.
func (r *Recorder) BeginParallel(section int, label string) (framegraph.CommandStream, framegraph.CommandStream, error) {
	err := r.record(StreamMain, BeginParallelCommand{Section: section, Label: label}, func() error {
		if r.open[StreamMain] {
			return ErrPassOpen
		}
		r.section = section
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &stream{r: r, s: StreamGraphics}, &stream{r: r, s: StreamCompute}, nil
}

// Join implements framegraph.CommandTarget.
func (r *Recorder) Join(section int) error {
	return r.record(StreamMain, JoinCommand{Section: section}, func() error {
		if r.section != section {
			return ErrNoSection
		}
		if r.open[StreamGraphics] || r.open[StreamCompute] {
			return ErrPassOpen
		}
		r.section = -1
		return nil
	})
}

// stream is one forked stream of a parallel section.
type stream struct {
	r *Recorder
	s Stream
}

func (st *stream) PipelineBarrier(b framegraph.Barrier) error { return st.r.barrier(st.s, b) }

func (st *stream) BeginRenderPass(stage framegraph.StageRef, atts []framegraph.Attachment) error {
	return st.r.beginRenderPass(st.s, stage, atts)
}

func (st *stream) EndRenderPass() error { return st.r.endRenderPass(st.s) }

func (st *stream) Dispatch(stage framegraph.StageRef, x, y, z uint32) error {
	return st.r.dispatch(st.s, stage, x, y, z)
}

func (st *stream) DispatchIndirect(stage framegraph.StageRef, buf framegraph.ResourceID, off uint64) error {
	return st.r.dispatchIndirect(st.s, stage, buf, off)
}

func (st *stream) Draw(stage framegraph.StageRef, d framegraph.Draw) error {
	return st.r.draw(st.s, stage, d)
}
