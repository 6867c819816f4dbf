// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package recording

import (
	"fmt"

	"github.com/gogpu/framegraph"
)

// Playback replays the recorded commands to target in order. Graphics and
// compute commands go to the streams target returns from BeginParallel.
// Playback stops at the first error.
func (r *Recorder) Playback(target framegraph.CommandTarget) error {
	var streams [3]framegraph.CommandStream
	streams[StreamMain] = target
	for i, e := range r.Commands() {
		s := streams[e.Stream]
		if s == nil {
			return fmt.Errorf("recording: playback command %d: %w", i, ErrStreamClosed)
		}
		var err error
		switch c := e.Command.(type) {
		case BarrierCommand:
			err = s.PipelineBarrier(c.Barrier)
		case BeginRenderPassCommand:
			err = s.BeginRenderPass(c.Stage, c.Attachments)
		case EndRenderPassCommand:
			err = s.EndRenderPass()
		case DispatchCommand:
			err = s.Dispatch(c.Stage, c.X, c.Y, c.Z)
		case DispatchIndirectCommand:
			err = s.DispatchIndirect(c.Stage, c.Buffer, c.Offset)
		case DrawCommand:
			err = s.Draw(c.Stage, c.Draw)
		case BeginParallelCommand:
			streams[StreamGraphics], streams[StreamCompute], err = target.BeginParallel(c.Section, c.Label)
		case JoinCommand:
			err = target.Join(c.Section)
			streams[StreamGraphics], streams[StreamCompute] = nil, nil
		default:
			err = fmt.Errorf("unknown command %v", e.Command.Type())
		}
		if err != nil {
			return fmt.Errorf("recording: playback command %d (%s): %w", i, e.Command.Type(), err)
		}
	}
	return nil
}
