// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph"
)

var (
	bufA = framegraph.Buffer(0)
	bufB = framegraph.Buffer(1)
	hdr  = framegraph.ColorImage(0)
)

func dispatch(label string) framegraph.Stage {
	return framegraph.Compute(label, framegraph.Direct(1, 1, 1))
}

func draw(label string) framegraph.Stage {
	return framegraph.RenderPass(label, framegraph.ColorTarget(hdr, gputypes.Color{})).
		Draw(framegraph.Draw{VertexCount: 3})
}

func validationError(t *testing.T, err error, kind error) *framegraph.ValidationError {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("err = %v, want %v", err, kind)
	}
	var ve *framegraph.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err %T is not a *ValidationError", err)
	}
	return ve
}

func TestUnwrittenRead(t *testing.T) {
	stages := []framegraph.Stage{
		dispatch("consume").Read(bufA, framegraph.StateComputeRead).Write(bufB, framegraph.StateComputeWrite),
	}

	_, err := framegraph.NewBuilder(nil).AddStage(stages...).Build()
	ve := validationError(t, err, framegraph.ErrUnwrittenRead)
	if ve.Stage != 0 || ve.StageLabel != "consume" || !ve.HasResource || ve.Resource != bufA {
		t.Errorf("error = %+v", ve)
	}

	g, err := framegraph.NewBuilder(nil, framegraph.WithUnwrittenReads(framegraph.UndefinedUnwritten)).
		AddStage(stages...).Build()
	if err != nil {
		t.Fatalf("UndefinedUnwritten: %v", err)
	}
	if n := g.Plan().BarrierCount(); n != 0 {
		t.Errorf("undefined buffer read needs %d barriers, want 0", n)
	}

	reg := framegraph.NewRegistry()
	if err := reg.Import(bufA, framegraph.StateTransferDst); err != nil {
		t.Fatal(err)
	}
	if _, err := framegraph.NewBuilder(reg).AddStage(stages...).Build(); err != nil {
		t.Errorf("imported resource: %v", err)
	}
}

func TestMissingExternalInit(t *testing.T) {
	read := dispatch("upload-consumer").Read(bufA, framegraph.StateComputeRead).Write(bufB, framegraph.StateComputeWrite)

	_, err := framegraph.NewBuilder(nil, framegraph.WithUnwrittenReads(framegraph.UndefinedUnwritten)).
		RequireExternal(bufA).AddStage(read).Build()
	validationError(t, err, framegraph.ErrMissingExternalInit)

	_, err = framegraph.NewBuilder(nil).
		RequireExternal(bufA).Import(bufA, framegraph.StateTransferDst).AddStage(read).Build()
	if err != nil {
		t.Errorf("imported external resource: %v", err)
	}
}

func TestMalformedStages(t *testing.T) {
	tests := []struct {
		name  string
		stage framegraph.Stage
		kind  error
	}{
		{"depth state on buffer", dispatch("s").Write(bufA, framegraph.StateDepthAttachment), framegraph.ErrInvalidState},
		{"read declared with write state", dispatch("s").Read(bufA, framegraph.StateComputeWrite), framegraph.ErrInvalidState},
		{"write declared with read state", dispatch("s").Write(bufA, framegraph.StateComputeRead), framegraph.ErrInvalidState},
		{"undefined target", dispatch("s").Read(bufA, framegraph.StateUndefined), framegraph.ErrInvalidState},
		{"compute state in render pass", draw("s").Read(bufA, framegraph.StateComputeRead), framegraph.ErrInvalidState},
		{"attachment state without attachment", draw("s").Write(framegraph.ColorImage(1), framegraph.StateColorAttachment), framegraph.ErrInvalidState},
		{"render pass without attachments", framegraph.RenderPass("s"), framegraph.ErrInvalidState},
		{"read and write", dispatch("s").Read(bufA, framegraph.StateComputeRead).Write(bufA, framegraph.StateTransferDst), framegraph.ErrAliasedAccess},
		{"two writes", dispatch("s").Write(bufA, framegraph.StateComputeWrite).Write(bufA, framegraph.StateTransferDst), framegraph.ErrAliasedAccess},
		{"attached twice", framegraph.RenderPass("s", framegraph.ColorTarget(hdr, gputypes.Color{}), framegraph.LoadTarget(hdr)), framegraph.ErrAliasedAccess},
		{"image read in two layouts", draw("s").Read(framegraph.ColorImage(1), framegraph.StateFragmentRead).
			Read(framegraph.ColorImage(1), framegraph.StateTransferSrc), framegraph.ErrAliasedAccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := framegraph.NewBuilder(nil, framegraph.WithUnwrittenReads(framegraph.UndefinedUnwritten)).
				AddStage(tt.stage).Build()
			if ve := validationError(t, err, tt.kind); ve.Stage != 0 {
				t.Errorf("Stage = %d, want 0", ve.Stage)
			}
		})
	}
}

func TestReadModifyWriteIsNotAliased(t *testing.T) {
	g := mustBuild(t, framegraph.NewBuilder(nil).
		Import(bufA, framegraph.StateComputeWrite).
		AddStage(dispatch("integrate").ReadWrite(bufA), dispatch("integrate").ReadWrite(bufA)))
	bs := g.Plan().Stages[1].Barriers
	if len(bs) != 1 {
		t.Fatalf("barriers = %v, want 1", bs)
	}
	if want := framegraph.AccessShaderRead | framegraph.AccessShaderWrite; bs[0].DstAccess != want {
		t.Errorf("DstAccess = %s, want %s", bs[0].DstAccess, want)
	}
}

func TestInvalidImport(t *testing.T) {
	_, err := framegraph.NewBuilder(nil).Import(bufA, framegraph.StateColorAttachment).AddStage(dispatch("s")).Build()
	validationError(t, err, framegraph.ErrInvalidState)

	if err := framegraph.NewRegistry().Import(hdr, framegraph.StateDepthAttachment); !errors.Is(err, framegraph.ErrInvalidState) {
		t.Errorf("Registry.Import = %v, want ErrInvalidState", err)
	}
}

func TestBuilderMisuse(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *framegraph.Builder)
		kind  error
	}{
		{"missing compute", func(b *framegraph.Builder) {
			p := b.BeginParallel("frame")
			p.Graphics(draw("draw"))
			b.EndParallel(p)
		}, framegraph.ErrEmptySection},
		{"missing graphics", func(b *framegraph.Builder) {
			p := b.BeginParallel("frame")
			p.Compute(dispatch("sim"))
			b.EndParallel(p)
		}, framegraph.ErrEmptySection},
		{"nested", func(b *framegraph.Builder) {
			b.BeginParallel("outer")
			b.BeginParallel("inner")
		}, framegraph.ErrNestedParallel},
		{"never ended", func(b *framegraph.Builder) {
			b.BeginParallel("frame").Graphics(draw("draw")).Compute(dispatch("sim"))
		}, framegraph.ErrUnclosedParallel},
		{"stage inside section", func(b *framegraph.Builder) {
			b.BeginParallel("frame")
			b.AddStage(dispatch("sim"))
		}, framegraph.ErrUnclosedParallel},
		{"end without begin", func(b *framegraph.Builder) {
			b.EndParallel(nil)
		}, framegraph.ErrUnclosedParallel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := framegraph.NewBuilder(nil)
			tt.build(b)
			_, err := b.Build()
			validationError(t, err, tt.kind)
		})
	}
}

func TestBuilderKeepsFirstError(t *testing.T) {
	b := framegraph.NewBuilder(nil)
	b.BeginParallel("outer")
	b.BeginParallel("inner")
	b.EndParallel(nil)
	if !errors.Is(b.Err(), framegraph.ErrNestedParallel) {
		t.Errorf("Err() = %v, want ErrNestedParallel", b.Err())
	}
}

// balanceGraph builds one section with explicit costs on each side.
func balanceGraph(graphics, compute float64, opts ...framegraph.BuildOption) (*framegraph.Graph, error) {
	b := framegraph.NewBuilder(nil, opts...)
	p := b.BeginParallel("frame")
	p.Graphics(draw("draw").WithCost(graphics))
	p.Compute(dispatch("sim").Write(bufA, framegraph.StateComputeWrite).WithCost(compute))
	b.EndParallel(p)
	return b.Build()
}

func TestSectionBalance(t *testing.T) {
	g, err := balanceGraph(1, 10)
	if err != nil {
		t.Fatal(err)
	}
	ws := g.Warnings()
	if len(ws) != 1 {
		t.Fatalf("warnings = %v, want one imbalance", ws)
	}
	w := ws[0]
	if w.Kind != framegraph.WarnImbalance || w.Label != "frame" || w.Graphics != 1 || w.Compute != 10 || w.Ratio != 10 {
		t.Errorf("warning = %+v", w)
	}

	if g, err := balanceGraph(1, 10, framegraph.WithImbalanceWarn(0)); err != nil || len(g.Warnings()) != 0 {
		t.Errorf("disabled warning: %v, %v", err, g.Warnings())
	}
	if g, err := balanceGraph(3, 10); err != nil || len(g.Warnings()) != 0 {
		t.Errorf("ratio below default: %v, %v", err, g.Warnings())
	}

	_, err = balanceGraph(1, 10, framegraph.WithImbalanceLimit(2))
	if ve := validationError(t, err, framegraph.ErrUnbalancedSection); ve.Section != 0 {
		t.Errorf("Section = %d, want 0", ve.Section)
	}
}

func TestSectionBalanceEstimatesCost(t *testing.T) {
	b := framegraph.NewBuilder(nil)
	p := b.BeginParallel("frame")
	p.Graphics(framegraph.RenderPass("draw", framegraph.ColorTarget(hdr, gputypes.Color{})).
		Draw(framegraph.Draw{VertexCount: 6, InstanceCount: 2}))
	p.Compute(framegraph.Compute("sim", framegraph.Direct(8, 8, 1)).Write(bufA, framegraph.StateComputeWrite))
	b.EndParallel(p)
	g := mustBuild(t, b)

	ws := g.Warnings()
	if len(ws) != 1 || ws[0].Graphics != 12 || ws[0].Compute != 64 {
		t.Fatalf("warnings = %v, want graphics 12 compute 64", ws)
	}
	if math.Abs(ws[0].Ratio-64.0/12.0) > 1e-9 {
		t.Errorf("Ratio = %g", ws[0].Ratio)
	}
}

func TestCrossSectionImageLayouts(t *testing.T) {
	src := framegraph.ColorImage(1)
	b := framegraph.NewBuilder(nil).Import(src, framegraph.StateTransferDst)
	p := b.BeginParallel("frame")
	p.Graphics(draw("draw").Read(src, framegraph.StateFragmentRead))
	p.Compute(dispatch("copy").Read(src, framegraph.StateTransferSrc).Write(bufA, framegraph.StateComputeWrite))
	b.EndParallel(p)

	_, err := b.Build()
	ve := validationError(t, err, framegraph.ErrCrossSectionConflict)
	if ve.Resource != src || !strings.Contains(ve.Detail, "layouts") {
		t.Errorf("error = %v", ve)
	}
}

func TestValidationOrder(t *testing.T) {
	// Both an unwritten read and a cross-section write race: the unwritten
	// read is reported.
	b := framegraph.NewBuilder(nil)
	p := b.BeginParallel("racy")
	p.Graphics(draw("draw").Read(bufA, framegraph.StateVertexRead))
	p.Compute(dispatch("fill").Write(bufA, framegraph.StateComputeWrite))
	b.EndParallel(p)
	_, err := b.Build()
	validationError(t, err, framegraph.ErrUnwrittenRead)

	// A malformed stage is reported before either.
	b = framegraph.NewBuilder(nil)
	p = b.BeginParallel("racy")
	p.Graphics(draw("draw").Read(bufA, framegraph.StateVertexRead))
	p.Compute(dispatch("fill").Write(bufA, framegraph.StateComputeWrite).Read(bufB, framegraph.StateColorAttachment))
	b.EndParallel(p)
	_, err = b.Build()
	validationError(t, err, framegraph.ErrInvalidState)
}

func TestValidationErrorMessage(t *testing.T) {
	b := framegraph.NewBuilder(nil).Import(bufA, framegraph.StateTransferDst)
	p := b.BeginParallel("racy")
	p.Graphics(draw("draw").Read(bufA, framegraph.StateVertexRead))
	p.Compute(dispatch("fill").Write(bufA, framegraph.StateComputeWrite))
	b.EndParallel(p)
	_, err := b.Build()

	want := "framegraph: cross-section conflict: stage 0 (draw) and stage 1 (fill), resource buffer#0, section 0"
	if err == nil || err.Error() != want {
		t.Errorf("Error() = %v\nwant      %s", err, want)
	}
}

func TestSameSectionWritesAreOrdered(t *testing.T) {
	b := framegraph.NewBuilder(nil)
	p := b.BeginParallel("frame")
	p.Graphics(draw("draw"))
	p.Compute(
		dispatch("clear").Write(bufA, framegraph.StateComputeWrite),
		dispatch("accumulate").Write(bufA, framegraph.StateComputeWrite),
	)
	b.EndParallel(p)
	g := mustBuild(t, b)

	span := g.Sections()[0].Compute
	if span.Len() != 2 {
		t.Fatalf("compute sub-section has %d stages, want 2", span.Len())
	}
	want := framegraph.Edge{Producer: span.Start, Consumer: span.Start + 1, Resource: bufA}
	found := false
	for _, e := range g.Edges() {
		if e == want {
			found = true
		}
	}
	if !found {
		t.Errorf("edges = %v, want %v", g.Edges(), want)
	}
	if ws := g.Warnings(); len(ws) != 0 {
		t.Errorf("warnings = %v", ws)
	}
}
