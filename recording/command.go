// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package recording

import (
	"fmt"

	"github.com/gogpu/framegraph"
)

// CommandType identifies the type of a command.
type CommandType uint8

const (
	// Synchronization commands
	CmdBarrier       CommandType = iota // Pipeline barrier
	CmdBeginParallel                    // Fork graphics and compute streams
	CmdJoin                             // Wait for both streams of a section

	// Pass commands
	CmdBeginRenderPass // Open a render pass
	CmdEndRenderPass   // Close the open render pass

	// Work commands
	CmdDispatch         // Direct compute dispatch
	CmdDispatchIndirect // Indirect compute dispatch
	CmdDraw             // Draw inside a render pass
)

// commandTypeNames maps CommandType values to their string representation.
var commandTypeNames = [...]string{
	CmdBarrier:          "Barrier",
	CmdBeginParallel:    "BeginParallel",
	CmdJoin:             "Join",
	CmdBeginRenderPass:  "BeginRenderPass",
	CmdEndRenderPass:    "EndRenderPass",
	CmdDispatch:         "Dispatch",
	CmdDispatchIndirect: "DispatchIndirect",
	CmdDraw:             "Draw",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// Stream identifies the stream a command was recorded on.
type Stream uint8

const (
	StreamMain Stream = iota
	StreamGraphics
	StreamCompute
)

// String returns the stream name.
func (s Stream) String() string {
	switch s {
	case StreamMain:
		return "main"
	case StreamGraphics:
		return "graphics"
	case StreamCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// Command is the interface implemented by all command types.
type Command interface {
	// Type returns the CommandType for this command.
	Type() CommandType
}

// Entry is one recorded command with the stream it was recorded on.
type Entry struct {
	Stream  Stream
	Command Command
}

// String formats the entry on one line.
func (e Entry) String() string {
	return fmt.Sprintf("%-8s %v", e.Stream, e.Command)
}

// --------------------------------------------------------------------------
// Synchronization Commands
// --------------------------------------------------------------------------

// BarrierCommand records a pipeline barrier.
type BarrierCommand struct {
	Barrier framegraph.Barrier
}

// Type implements Command.
func (BarrierCommand) Type() CommandType { return CmdBarrier }

func (c BarrierCommand) String() string { return c.Barrier.String() }

// BeginParallelCommand records the fork of a parallel section.
type BeginParallelCommand struct {
	Section int
	Label   string
}

// Type implements Command.
func (BeginParallelCommand) Type() CommandType { return CmdBeginParallel }

func (c BeginParallelCommand) String() string {
	return fmt.Sprintf("begin-parallel %d %q", c.Section, c.Label)
}

// JoinCommand records the join of a parallel section.
type JoinCommand struct {
	Section int
}

// Type implements Command.
func (JoinCommand) Type() CommandType { return CmdJoin }

func (c JoinCommand) String() string { return fmt.Sprintf("join %d", c.Section) }

// --------------------------------------------------------------------------
// Pass Commands
// --------------------------------------------------------------------------

// BeginRenderPassCommand records the opening of a render pass.
type BeginRenderPassCommand struct {
	Stage       framegraph.StageRef
	Attachments []framegraph.Attachment
}

// Type implements Command.
func (BeginRenderPassCommand) Type() CommandType { return CmdBeginRenderPass }

func (c BeginRenderPassCommand) String() string {
	s := fmt.Sprintf("begin-pass %d %q", c.Stage.Index, c.Stage.Label)
	for _, a := range c.Attachments {
		s += " " + a.Resource.String()
	}
	return s
}

// EndRenderPassCommand records the closing of a render pass.
type EndRenderPassCommand struct{}

// Type implements Command.
func (EndRenderPassCommand) Type() CommandType { return CmdEndRenderPass }

func (EndRenderPassCommand) String() string { return "end-pass" }

// --------------------------------------------------------------------------
// Work Commands
// --------------------------------------------------------------------------

// DispatchCommand records a direct dispatch.
type DispatchCommand struct {
	Stage   framegraph.StageRef
	X, Y, Z uint32
}

// Type implements Command.
func (DispatchCommand) Type() CommandType { return CmdDispatch }

func (c DispatchCommand) String() string {
	return fmt.Sprintf("dispatch %d %q (%d,%d,%d)", c.Stage.Index, c.Stage.Label, c.X, c.Y, c.Z)
}

// DispatchIndirectCommand records an indirect dispatch.
type DispatchIndirectCommand struct {
	Stage  framegraph.StageRef
	Buffer framegraph.ResourceID
	Offset uint64
}

// Type implements Command.
func (DispatchIndirectCommand) Type() CommandType { return CmdDispatchIndirect }

func (c DispatchIndirectCommand) String() string {
	return fmt.Sprintf("dispatch-indirect %d %q %s+%d", c.Stage.Index, c.Stage.Label, c.Buffer, c.Offset)
}

// DrawCommand records a draw.
type DrawCommand struct {
	Stage framegraph.StageRef
	Draw  framegraph.Draw
}

// Type implements Command.
func (DrawCommand) Type() CommandType { return CmdDraw }

func (c DrawCommand) String() string {
	return fmt.Sprintf("draw %d %q v=%d i=%d", c.Stage.Index, c.Stage.Label, c.Draw.VertexCount, c.Draw.InstanceCount)
}
