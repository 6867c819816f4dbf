// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import "errors"

// Package errors for the native target.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrNoHAL is returned when a device provider does not expose HAL types.
	ErrNoHAL = errors.New("native: provider does not expose HAL device and queue")

	// ErrUnboundResource is returned when a command references a resource
	// with no GPU object bound to it.
	ErrUnboundResource = errors.New("native: resource not bound")

	// ErrUnboundPipeline is returned when a dispatch or draw names a
	// pipeline that was never bound.
	ErrUnboundPipeline = errors.New("native: pipeline not bound")

	// ErrPassOpen is returned for commands that are illegal inside a render
	// pass, and when a stream is finished with a pass still open.
	ErrPassOpen = errors.New("native: render pass open")

	// ErrNoPass is returned for draws and EndRenderPass outside a pass.
	ErrNoPass = errors.New("native: no render pass open")

	// ErrNoSection is returned by Join for a section that was not begun.
	ErrNoSection = errors.New("native: parallel section not open")

	// ErrTimeout is returned when submitted work does not complete in time.
	ErrTimeout = errors.New("native: GPU wait timed out")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("native: target closed")
)
