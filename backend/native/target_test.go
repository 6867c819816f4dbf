// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/framegraph"
)

// createNoopDevice creates a noop device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

func newTestTarget(t *testing.T, opts ...Option) *Target {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	tgt, err := New(device, queue, opts...)
	if err != nil {
		cleanup()
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := tgt.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
		cleanup()
	})
	return tgt
}

func TestVendorFromName(t *testing.T) {
	tests := []struct {
		name string
		want uint32
	}{
		{"NVIDIA GeForce RTX 4070", framegraph.VendorNVIDIA},
		{"AMD Radeon RX 7900 XTX", framegraph.VendorAMD},
		{"Radeon Pro W6800", framegraph.VendorAMD},
		{"Intel(R) UHD Graphics 630", framegraph.VendorIntel},
		{"Apple M2", framegraph.VendorApple},
		{"Mali-G78", framegraph.VendorARM},
		{"Adreno (TM) 740", framegraph.VendorQualcomm},
		{"llvmpipe (LLVM 17.0.6, 256 bits)", 0},
	}
	for _, tt := range tests {
		if got := VendorFromName(tt.name); got != tt.want {
			t.Errorf("VendorFromName(%q) = %#x, want %#x", tt.name, got, tt.want)
		}
	}
}

func TestNewFromProviderWithoutHAL(t *testing.T) {
	if _, err := NewFromProvider(nil); !errors.Is(err, ErrNoHAL) {
		t.Errorf("NewFromProvider(nil): err = %v, want ErrNoHAL", err)
	}
}

func TestTargetExecutesRenderPasses(t *testing.T) {
	tgt := newTestTarget(t)
	hdr := framegraph.ColorImage(0)
	ldr := framegraph.ColorImage(1)
	for _, id := range []framegraph.ResourceID{hdr, ldr} {
		if _, err := tgt.CreateTexture(id, 64, 64, gputypes.TextureFormatBGRA8Unorm); err != nil {
			t.Fatalf("CreateTexture(%s): %v", id, err)
		}
	}

	reg := framegraph.NewRegistry()
	g, err := framegraph.NewBuilder(reg).
		AddStage(
			framegraph.RenderPass("scene", framegraph.ColorTarget(hdr, gputypes.Color{A: 1})),
			framegraph.RenderPass("tonemap", framegraph.ColorTarget(ldr, gputypes.Color{})).
				Read(hdr, framegraph.StateFragmentRead),
		).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	exec := framegraph.NewExecutor(reg)
	for frame := 0; frame < 2; frame++ {
		if err := exec.Execute(g, tgt); err != nil {
			t.Fatalf("frame %d: Execute: %v", frame, err)
		}
		if err := tgt.Submit(); err != nil {
			t.Fatalf("frame %d: Submit: %v", frame, err)
		}
		if err := tgt.WaitIdle(); err != nil {
			t.Fatalf("frame %d: WaitIdle: %v", frame, err)
		}
	}
	if got := reg.State(hdr); got != framegraph.StateFragmentRead {
		t.Errorf("committed state of %s = %s, want FragmentRead", hdr, got)
	}
}

func TestTargetUnboundResource(t *testing.T) {
	tgt := newTestTarget(t)
	reg := framegraph.NewRegistry()
	g, err := framegraph.NewBuilder(reg).
		AddStage(framegraph.RenderPass("scene", framegraph.ColorTarget(framegraph.ColorImage(7), gputypes.Color{}))).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	err = framegraph.NewExecutor(reg).Execute(g, tgt)
	if !errors.Is(err, ErrUnboundResource) {
		t.Errorf("Execute: err = %v, want ErrUnboundResource", err)
	}
}

func TestTargetPassDiscipline(t *testing.T) {
	tgt := newTestTarget(t)
	img := framegraph.ColorImage(0)
	if _, err := tgt.CreateTexture(img, 8, 8, gputypes.TextureFormatBGRA8Unorm); err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	ref := framegraph.StageRef{Index: 0, Label: "pass"}

	if err := tgt.EndRenderPass(); !errors.Is(err, ErrNoPass) {
		t.Errorf("EndRenderPass without pass: err = %v, want ErrNoPass", err)
	}
	if err := tgt.Draw(ref, framegraph.Draw{VertexCount: 3}); !errors.Is(err, ErrNoPass) {
		t.Errorf("Draw without pass: err = %v, want ErrNoPass", err)
	}
	if err := tgt.BeginRenderPass(ref, []framegraph.Attachment{framegraph.LoadTarget(img)}); err != nil {
		t.Fatalf("BeginRenderPass: %v", err)
	}
	if err := tgt.PipelineBarrier(framegraph.Barrier{}); !errors.Is(err, ErrPassOpen) {
		t.Errorf("barrier inside pass: err = %v, want ErrPassOpen", err)
	}
	if err := tgt.Dispatch(ref, 1, 1, 1); !errors.Is(err, ErrPassOpen) {
		t.Errorf("Dispatch inside pass: err = %v, want ErrPassOpen", err)
	}
	if err := tgt.Draw(ref, framegraph.Draw{VertexCount: 3}); !errors.Is(err, ErrUnboundPipeline) {
		t.Errorf("Draw with unbound pipeline: err = %v, want ErrUnboundPipeline", err)
	}
	if err := tgt.Submit(); !errors.Is(err, ErrPassOpen) {
		t.Errorf("Submit with open pass: err = %v, want ErrPassOpen", err)
	}
	if err := tgt.EndRenderPass(); err != nil {
		t.Errorf("EndRenderPass: %v", err)
	}
}

func TestTargetDispatchUnboundPipeline(t *testing.T) {
	tgt := newTestTarget(t)
	ref := framegraph.StageRef{Index: 0, Label: "simulate", Pipeline: 42}
	if err := tgt.Dispatch(ref, 1, 1, 1); !errors.Is(err, ErrUnboundPipeline) {
		t.Errorf("Dispatch: err = %v, want ErrUnboundPipeline", err)
	}
	if err := tgt.DispatchIndirect(ref, framegraph.Buffer(3), 0); !errors.Is(err, ErrUnboundResource) {
		t.Errorf("DispatchIndirect: err = %v, want ErrUnboundResource", err)
	}
}

func TestTargetParallelSection(t *testing.T) {
	tgt := newTestTarget(t, WithSectionTiming())
	img := framegraph.ColorImage(0)
	if _, err := tgt.CreateTexture(img, 8, 8, gputypes.TextureFormatBGRA8Unorm); err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}

	gs, cs, err := tgt.BeginParallel(0, "frame")
	if err != nil {
		t.Fatalf("BeginParallel: %v", err)
	}
	if cs == nil {
		t.Fatal("BeginParallel returned nil compute stream")
	}
	ref := framegraph.StageRef{Index: 0, Label: "draw"}
	if err := gs.BeginRenderPass(ref, []framegraph.Attachment{framegraph.ColorTarget(img, gputypes.Color{})}); err != nil {
		t.Fatalf("BeginRenderPass: %v", err)
	}
	if err := gs.EndRenderPass(); err != nil {
		t.Fatalf("EndRenderPass: %v", err)
	}
	if err := tgt.Join(0); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := tgt.Join(0); !errors.Is(err, ErrNoSection) {
		t.Errorf("second Join: err = %v, want ErrNoSection", err)
	}
	if _, ok := tgt.SectionTiming(0); !ok {
		t.Error("no timing recorded with WithSectionTiming")
	}
}

func TestTargetSectionTimingIsSequential(t *testing.T) {
	tgt := newTestTarget(t, WithSectionTiming())
	db := framegraph.NewDoubleBuffer(framegraph.Buffer(0), framegraph.Buffer(1))
	hdr := framegraph.ColorImage(0)
	for _, id := range db.Buffers {
		if _, err := tgt.CreateBuffer(id, 1024); err != nil {
			t.Fatalf("CreateBuffer(%s): %v", id, err)
		}
	}
	if _, err := tgt.CreateTexture(hdr, 64, 64, gputypes.TextureFormatBGRA8Unorm); err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	cp, err := tgt.Device().CreateComputePipeline(&hal.ComputePipelineDescriptor{})
	if err != nil {
		t.Fatalf("CreateComputePipeline: %v", err)
	}
	rp, err := tgt.Device().CreateRenderPipeline(&hal.RenderPipelineDescriptor{})
	if err != nil {
		t.Fatalf("CreateRenderPipeline: %v", err)
	}
	tgt.BindComputePipeline(0, cp)
	tgt.BindRenderPipeline(0, rp)

	reg := framegraph.NewRegistry()
	b := framegraph.NewBuilder(reg, framegraph.WithPolicy(framegraph.Policy{Override: framegraph.Yes}, tgt.Info())).
		Import(db.Buffers[0], framegraph.StateComputeWrite)
	b.SimulationSection("frame", 0, db,
		func(read, write framegraph.ResourceID) []framegraph.Stage {
			return []framegraph.Stage{framegraph.Compute("simulate", framegraph.Direct(64, 1, 1)).
				Read(read, framegraph.StateComputeRead).
				Write(write, framegraph.StateComputeWrite)}
		},
		func(read framegraph.ResourceID) []framegraph.Stage {
			return []framegraph.Stage{framegraph.RenderPass("draw", framegraph.ColorTarget(hdr, gputypes.Color{})).
				Read(read, framegraph.StateVertexRead).
				Draw(framegraph.Draw{VertexCount: 6, InstanceCount: 16})}
		})
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	prof := framegraph.NewProfiler(nil)
	exec := framegraph.NewExecutor(reg, framegraph.WithProfiler(prof))
	if err := exec.Execute(g, tgt); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := tgt.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}

	samples := prof.Samples()
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	s := samples[0]
	if s.Parallel {
		t.Errorf("sample = %+v, want sequential", s)
	}
	if s.Graphics < 0 || s.Compute < 0 || s.SyncWait < 0 {
		t.Errorf("negative duration in %+v", s)
	}
	if got, want := s.Wall(), s.Graphics+s.Compute+s.SyncWait; got != want {
		t.Errorf("Wall() = %v, want %v", got, want)
	}
	if sp := s.Speedup(); sp > 1 {
		t.Errorf("Speedup() = %v, want <= 1 on a single queue", sp)
	}
	if v := prof.Verdict(); v != framegraph.Unknown {
		t.Errorf("Verdict() = %s, want Unknown", v)
	}
	if _, ok := tgt.SectionTiming(0); ok {
		t.Error("SectionTiming returned a sample the executor already consumed")
	}
}
