// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package framegraph schedules GPU work described as a graph of stages.
//
// # Overview
//
// A stage is a compute dispatch or a render pass, annotated with the
// resources it reads and writes and the state it needs each one in. The
// scheduler orders nothing on its own: stages run in declaration order. Its
// job is synchronization. From the declarations it derives the dependency
// edges between stages and the minimal set of memory barriers and image
// layout transitions, merges compatible barriers, decides where render
// passes must be closed, and rejects graphs that cannot be synchronized
// correctly.
//
// # Quick Start
//
//	reg := framegraph.NewRegistry()
//	particles := framegraph.Buffer(0)
//	hdr := framegraph.ColorImage(0)
//
//	b := framegraph.NewBuilder(reg)
//	b.AddStage(
//	    framegraph.Compute("simulate", framegraph.Direct(256, 1, 1)).
//	        Write(particles, framegraph.StateComputeWrite),
//	    framegraph.RenderPass("draw", framegraph.ColorTarget(hdr, gputypes.Color{})).
//	        Read(particles, framegraph.StateVertexRead).
//	        Draw(framegraph.Draw{VertexCount: 6, InstanceCount: 4096}),
//	)
//	g, err := b.Build()
//	if err != nil {
//	    return err // *ValidationError, test with errors.Is
//	}
//
//	exec := framegraph.NewExecutor(reg)
//	err = exec.Execute(g, target) // target implements CommandTarget
//
// # Parallel sections
//
// BeginParallel opens a section with a graphics and a compute sub-section
// that may run on separate hardware queues, joined once at the end. No
// resource may be written by one sub-section and used by the other. Whether
// a section really runs in parallel is decided once per build by a Policy
// (override, then measured A/B result, then vendor table, else sequential);
// the sequential fallback records both sub-sections on the primary stream
// with the same barriers.
//
// DoubleBuffer and Builder.SimulationSection implement the cross-frame
// pattern in which the simulation of frame N+1 overlaps rendering of frame
// N.
//
// # Static and rebuilt graphs
//
// A Graph may be built once and executed every frame. The Registry holds
// the committed state of every resource; when it differs from the state a
// graph was planned from, Execute re-plans before recording. Graphs rebuilt
// every frame can share a PlanCache.
//
// # Packages
//
//   - recording: a CommandTarget that records calls, for tests and tools
//   - backend/native: a CommandTarget over gogpu/wgpu hal
//   - observe: Observer implementations (zerolog, sqlite)
//   - shaderaccess: stage access declarations from WGSL bindings
//   - cmd/fgplan: plan and validate graphs described in YAML
package framegraph
