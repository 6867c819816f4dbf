// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package recording

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph"
)

func ref(i int, label string) framegraph.StageRef {
	return framegraph.StageRef{Index: i, Label: label}
}

func TestCommandTypeString(t *testing.T) {
	tests := []struct {
		c    CommandType
		want string
	}{
		{CmdBarrier, "Barrier"},
		{CmdBeginParallel, "BeginParallel"},
		{CmdDispatchIndirect, "DispatchIndirect"},
		{CmdDraw, "Draw"},
		{CommandType(200), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("CommandType(%d).String() = %q, want %q", tt.c, got, tt.want)
		}
	}
}

func TestRecorderPassDiscipline(t *testing.T) {
	rec := NewRecorder()
	hdr := framegraph.ColorImage(0)

	if err := rec.Draw(ref(0, "draw"), framegraph.Draw{VertexCount: 3}); !errors.Is(err, ErrNoPass) {
		t.Errorf("Draw outside pass: err = %v, want ErrNoPass", err)
	}
	if err := rec.EndRenderPass(); !errors.Is(err, ErrNoPass) {
		t.Errorf("EndRenderPass without pass: err = %v, want ErrNoPass", err)
	}
	if err := rec.BeginRenderPass(ref(0, "draw"), []framegraph.Attachment{framegraph.LoadTarget(hdr)}); err != nil {
		t.Fatalf("BeginRenderPass: %v", err)
	}
	if err := rec.BeginRenderPass(ref(1, "again"), nil); !errors.Is(err, ErrPassOpen) {
		t.Errorf("nested BeginRenderPass: err = %v, want ErrPassOpen", err)
	}
	if err := rec.Dispatch(ref(1, "sim"), 1, 1, 1); !errors.Is(err, ErrPassOpen) {
		t.Errorf("Dispatch inside pass: err = %v, want ErrPassOpen", err)
	}
	if err := rec.PipelineBarrier(framegraph.Barrier{}); !errors.Is(err, ErrPassOpen) {
		t.Errorf("barrier inside pass: err = %v, want ErrPassOpen", err)
	}
	if err := rec.Draw(ref(0, "draw"), framegraph.Draw{VertexCount: 3}); err != nil {
		t.Errorf("Draw: %v", err)
	}
	if err := rec.EndRenderPass(); err != nil {
		t.Errorf("EndRenderPass: %v", err)
	}

	// Rejected commands are not recorded.
	if got := rec.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
}

func TestRecorderParallelStreams(t *testing.T) {
	rec := NewRecorder()
	g, c, err := rec.BeginParallel(0, "sim")
	if err != nil {
		t.Fatalf("BeginParallel: %v", err)
	}
	if _, _, err := rec.BeginParallel(1, "nested"); !errors.Is(err, ErrSectionOpen) {
		t.Errorf("nested BeginParallel: err = %v, want ErrSectionOpen", err)
	}
	if err := rec.Dispatch(ref(0, "main"), 1, 1, 1); !errors.Is(err, ErrSectionOpen) {
		t.Errorf("main stream inside section: err = %v, want ErrSectionOpen", err)
	}
	if err := c.Dispatch(ref(1, "simulate"), 8, 1, 1); err != nil {
		t.Fatalf("compute Dispatch: %v", err)
	}
	if err := g.BeginRenderPass(ref(0, "draw"), nil); err != nil {
		t.Fatalf("graphics BeginRenderPass: %v", err)
	}
	if err := rec.Join(0); !errors.Is(err, ErrPassOpen) {
		t.Errorf("Join with open pass: err = %v, want ErrPassOpen", err)
	}
	if err := g.EndRenderPass(); err != nil {
		t.Fatalf("graphics EndRenderPass: %v", err)
	}
	if err := rec.Join(1); !errors.Is(err, ErrNoSection) {
		t.Errorf("Join(1): err = %v, want ErrNoSection", err)
	}
	if err := rec.Join(0); err != nil {
		t.Fatalf("Join(0): %v", err)
	}
	if err := c.Dispatch(ref(1, "late"), 1, 1, 1); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("stream after Join: err = %v, want ErrStreamClosed", err)
	}

	if got := len(rec.OnStream(StreamCompute)); got != 1 {
		t.Errorf("compute stream commands = %d, want 1", got)
	}
	if got := len(rec.OnStream(StreamGraphics)); got != 2 {
		t.Errorf("graphics stream commands = %d, want 2", got)
	}
	if got := len(rec.OnStream(StreamMain)); got != 2 {
		t.Errorf("main stream commands = %d, want 2", got)
	}
}

func TestRecorderFailAfter(t *testing.T) {
	errLost := errors.New("device lost")
	rec := NewRecorder()
	rec.FailAfter(2, errLost)

	for i := 0; i < 2; i++ {
		if err := rec.Dispatch(ref(i, "ok"), 1, 1, 1); err != nil {
			t.Fatalf("Dispatch %d: %v", i, err)
		}
	}
	if err := rec.Dispatch(ref(2, "fail"), 1, 1, 1); !errors.Is(err, errLost) {
		t.Errorf("third Dispatch: err = %v, want %v", err, errLost)
	}

	rec.FailAfter(-1, nil)
	if err := rec.Dispatch(ref(3, "ok"), 1, 1, 1); err != nil {
		t.Errorf("Dispatch after disabling faults: %v", err)
	}
}

func TestRecorderBarrierCopiesTransitions(t *testing.T) {
	rec := NewRecorder()
	trs := []framegraph.Transition{{Resource: framegraph.Buffer(0), From: framegraph.StateComputeWrite, To: framegraph.StateComputeRead}}
	if err := rec.PipelineBarrier(framegraph.Barrier{Transitions: trs}); err != nil {
		t.Fatal(err)
	}
	trs[0].Resource = framegraph.Buffer(9)

	got := rec.Barriers()
	if len(got) != 1 || got[0].Transitions[0].Resource != framegraph.Buffer(0) {
		t.Errorf("recorded barrier changed with caller slice: %+v", got)
	}
}

func TestRecorderSectionTiming(t *testing.T) {
	rec := NewRecorder()
	if _, ok := rec.SectionTiming(0); ok {
		t.Error("SectionTiming reported a sample before SetTiming")
	}
	rec.SetTiming(0, framegraph.SectionSample{Graphics: 3, Compute: 5})
	s, ok := rec.SectionTiming(0)
	if !ok || s.Compute != 5 {
		t.Errorf("SectionTiming(0) = %+v, %v", s, ok)
	}
}

// simpleGraph builds a compute stage writing a buffer that a render pass
// then reads as vertex input.
func simpleGraph(t *testing.T, reg *framegraph.Registry) *framegraph.Graph {
	t.Helper()
	particles := framegraph.Buffer(0)
	hdr := framegraph.ColorImage(0)
	g, err := framegraph.NewBuilder(reg).
		AddStage(
			framegraph.Compute("simulate", framegraph.Direct(64, 1, 1)).
				Write(particles, framegraph.StateComputeWrite),
			framegraph.RenderPass("draw", framegraph.ColorTarget(hdr, gputypes.Color{A: 1})).
				Read(particles, framegraph.StateVertexRead).
				Draw(framegraph.Draw{VertexCount: 6, InstanceCount: 64}),
		).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestRecorderExecute(t *testing.T) {
	reg := framegraph.NewRegistry()
	g := simpleGraph(t, reg)
	rec := NewRecorder()
	if err := framegraph.NewExecutor(reg).Execute(g, rec); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	for _, tt := range []struct {
		c    CommandType
		want int
	}{
		{CmdDispatch, 1},
		{CmdBeginRenderPass, 1},
		{CmdDraw, 1},
		{CmdEndRenderPass, 1},
	} {
		if got := rec.Count(tt.c); got != tt.want {
			t.Errorf("Count(%s) = %d, want %d", tt.c, got, tt.want)
		}
	}
	if rec.Count(CmdBarrier) == 0 {
		t.Error("no barrier between simulate and draw")
	}
	cmds := rec.Commands()
	if last := cmds[len(cmds)-1].Command.Type(); last != CmdEndRenderPass {
		t.Errorf("last command = %s, want EndRenderPass", last)
	}
	if s := rec.String(); !strings.Contains(s, `dispatch 0 "simulate" (64,1,1)`) {
		t.Errorf("dump missing dispatch line:\n%s", s)
	}
}

func TestRecorderExecuteFailure(t *testing.T) {
	errLost := errors.New("device lost")
	reg := framegraph.NewRegistry()
	g := simpleGraph(t, reg)
	rec := NewRecorder()
	rec.FailAfter(1, errLost)

	err := framegraph.NewExecutor(reg).Execute(g, rec)
	if !errors.Is(err, errLost) {
		t.Fatalf("Execute: err = %v, want %v", err, errLost)
	}
	var fe *framegraph.FrameError
	if !errors.As(err, &fe) {
		t.Fatalf("Execute: err = %T, want *framegraph.FrameError", err)
	}
	if fe.Label != "draw" {
		t.Errorf("FrameError.Label = %q, want draw", fe.Label)
	}
}

func TestPlayback(t *testing.T) {
	reg := framegraph.NewRegistry()
	g := simpleGraph(t, reg)
	src := NewRecorder()
	if err := framegraph.NewExecutor(reg).Execute(g, src); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	dst := NewRecorder()
	if err := src.Playback(dst); err != nil {
		t.Fatalf("Playback: %v", err)
	}
	if src.String() != dst.String() {
		t.Errorf("playback differs:\nsrc:\n%s\ndst:\n%s", src, dst)
	}
}
