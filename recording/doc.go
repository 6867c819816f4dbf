// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package recording provides a framegraph.CommandTarget that records
// commands instead of issuing GPU calls.
//
// Commands are captured as typed structs, tagged with the stream they were
// recorded on, so tests and tools can inspect exactly what an executor
// emitted. The Recorder also enforces render pass discipline: barriers and
// dispatches inside an open pass, draws outside one, and unbalanced
// Begin/EndRenderPass calls are reported as errors.
//
// # Example
//
//	rec := recording.NewRecorder()
//	exec := framegraph.NewExecutor(reg)
//	if err := exec.Execute(g, rec); err != nil {
//	    return err
//	}
//	fmt.Print(rec)
//
// Fault injection for executor tests:
//
//	rec.FailAfter(3, errDeviceLost) // the fourth command fails
package recording
