// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native implements framegraph.CommandTarget on top of the
// gogpu/wgpu HAL.
//
// A Target records each stream into its own hal.CommandEncoder. Barriers
// become TransitionBuffers/TransitionTextures calls with the usages of the
// resource states involved, compute stages become one compute pass per
// dispatch, and render passes map directly onto hal render passes.
//
// Parallel sections fork two encoders. The main stream's pending work is
// submitted at BeginParallel, and both section command buffers are
// submitted together at Join, so everything recorded on the main stream
// afterwards is ordered after them on the queue. The target owns a single
// queue, so the two streams never overlap on the device; section timing
// reports them as sequential.
//
// Resources and pipelines are bound by ID before execution:
//
//	t, err := native.NewFromProvider(provider)
//	if err != nil {
//	    return err
//	}
//	defer t.Close()
//
//	t.BindBuffer(particles, particleBuf)
//	t.BindTexture(hdr, hdrTex, hdrView)
//	t.BindComputePipeline(simPipelineID, simPipeline, simBindGroup)
//
//	if err := exec.Execute(g, t); err != nil {
//	    return err
//	}
//	return t.Submit()
package native
