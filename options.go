// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

// UnwrittenReads selects how a read of a resource with no writer and no
// external content is treated.
type UnwrittenReads uint8

const (
	// RejectUnwritten fails the build with ErrUnwrittenRead.
	RejectUnwritten UnwrittenReads = iota

	// UndefinedUnwritten accepts the read and treats the resource as
	// Undefined: only a layout transition, no wait.
	UndefinedUnwritten
)

// String returns the policy name.
func (u UnwrittenReads) String() string {
	switch u {
	case RejectUnwritten:
		return "reject"
	case UndefinedUnwritten:
		return "undefined"
	default:
		return "Unknown"
	}
}

// DefaultImbalanceWarn is the sub-section cost ratio above which a parallel
// section draws an advisory warning.
const DefaultImbalanceWarn = 4.0

// BuildOption configures a Builder.
//
// Example:
//
//	b := framegraph.NewBuilder(reg,
//	    framegraph.WithUnwrittenReads(framegraph.UndefinedUnwritten),
//	    framegraph.WithImbalanceLimit(16),
//	)
type BuildOption func(*buildOptions)

// buildOptions holds optional configuration for graph builds.
type buildOptions struct {
	unwritten      UnwrittenReads
	imbalanceWarn  float64
	imbalanceLimit float64
	policy         Policy
	device         DeviceInfo
	cache          *PlanCache
}

func defaultBuildOptions() buildOptions {
	return buildOptions{
		unwritten:     RejectUnwritten,
		imbalanceWarn: DefaultImbalanceWarn,
	}
}

// WithUnwrittenReads sets the unwritten-read policy. The default is
// RejectUnwritten.
func WithUnwrittenReads(u UnwrittenReads) BuildOption {
	return func(o *buildOptions) {
		o.unwritten = u
	}
}

// WithImbalanceWarn sets the cost ratio between the sub-sections of a
// parallel section above which an advisory Warning is produced. Zero or
// negative disables the warning.
func WithImbalanceWarn(ratio float64) BuildOption {
	return func(o *buildOptions) {
		o.imbalanceWarn = ratio
	}
}

// WithImbalanceLimit sets the cost ratio above which the build fails with
// ErrUnbalancedSection. Zero (the default) disables the hard limit.
func WithImbalanceLimit(ratio float64) BuildOption {
	return func(o *buildOptions) {
		o.imbalanceLimit = ratio
	}
}

// WithPolicy sets the capability policy consulted once per build to decide
// whether parallel sections run on separate streams, and the device it is
// evaluated for. Without it every section runs sequentially.
func WithPolicy(p Policy, dev DeviceInfo) BuildOption {
	return func(o *buildOptions) {
		o.policy = p
		o.device = dev
	}
}

// WithPlanCache reuses analysis and planning results across builds with an
// identical stage shape and entry state. Without it every build recomputes.
func WithPlanCache(c *PlanCache) BuildOption {
	return func(o *buildOptions) {
		o.cache = c
	}
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithProfiler attaches a parallel section profiler. Timings are collected
// from targets implementing SectionTimer.
func WithProfiler(p *Profiler) ExecutorOption {
	return func(e *Executor) {
		e.profiler = p
	}
}
