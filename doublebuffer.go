// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

// DoubleBuffer is the two copies of simulation state used by the cross-frame
// simulation pattern. In frame N the simulation reads the copy the previous
// frame wrote and writes the other one, so the reader and writer are always
// distinct resources. Simulated state reaches the screen one frame late.
type DoubleBuffer struct {
	Buffers [2]ResourceID
}

// NewDoubleBuffer returns a double buffer over a and b.
func NewDoubleBuffer(a, b ResourceID) DoubleBuffer {
	return DoubleBuffer{Buffers: [2]ResourceID{a, b}}
}

// Read returns the copy frame reads: Buffers[frame mod 2].
func (d DoubleBuffer) Read(frame uint64) ResourceID { return d.Buffers[frame%2] }

// Write returns the copy frame writes: Buffers[(frame+1) mod 2].
func (d DoubleBuffer) Write(frame uint64) ResourceID { return d.Buffers[(frame+1)%2] }
