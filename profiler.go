// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"slices"
	"sync"
	"time"
)

// SectionSample is the timing of one parallel section in one frame.
type SectionSample struct {
	Frame   uint64
	Section int
	Label   string

	// Parallel is set when the section's streams overlapped on the device.
	Parallel bool

	Graphics time.Duration
	Compute  time.Duration
	SyncWait time.Duration
}

// Wall returns the section's elapsed time: the longer sub-section plus the
// join wait when parallel, their sum otherwise.
func (s SectionSample) Wall() time.Duration {
	if s.Parallel {
		return max(s.Graphics, s.Compute) + s.SyncWait
	}
	return s.Graphics + s.Compute + s.SyncWait
}

// Speedup returns the back-to-back time divided by the wall time. Values
// below 1 mean the parallel run was slower.
func (s SectionSample) Speedup() float64 {
	w := s.Wall()
	if w <= 0 {
		return 1
	}
	return float64(s.Graphics+s.Compute) / float64(w)
}

// Imbalance returns the ratio of the longer sub-section to the shorter.
func (s SectionSample) Imbalance() float64 {
	return imbalance(float64(s.Graphics), float64(s.Compute))
}

// Observer receives profiling output. Implementations decide what to keep;
// the profiler itself holds only the current frame.
type Observer interface {
	ObserveSection(SectionSample)
	Warn(Warning)
}

// SectionTimer is implemented by command targets that can time parallel
// sections. Timing may lag by a frame or more while GPU queries resolve.
//
// A sample's Parallel field reports whether the two streams actually
// overlapped on the device; SyncWait is the time spent at the join beyond
// the lanes themselves.
type SectionTimer interface {
	SectionTiming(section int) (SectionSample, bool)
}

// ProfilerOption configures a Profiler.
type ProfilerOption func(*Profiler)

// WithImbalanceRatio sets the measured ratio above which an imbalance
// warning is emitted. The default is DefaultImbalanceWarn.
func WithImbalanceRatio(r float64) ProfilerOption {
	return func(p *Profiler) { p.warnRatio = r }
}

// WithSpeedupMargin sets the margin used by Verdict.
func WithSpeedupMargin(m float64) ProfilerOption {
	return func(p *Profiler) { p.margin = m }
}

// Profiler collects parallel section timings for the current frame and
// reports imbalance and negative speedup. It is safe for concurrent use.
type Profiler struct {
	obs       Observer
	warnRatio float64
	margin    float64

	mu      sync.Mutex
	frame   uint64
	samples []SectionSample
	last    []SectionSample
}

// NewProfiler returns a profiler reporting to obs. A nil obs only keeps the
// samples.
func NewProfiler(obs Observer, opts ...ProfilerOption) *Profiler {
	p := &Profiler{obs: obs, warnRatio: DefaultImbalanceWarn, margin: 0.05}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BeginFrame starts collecting samples for frame, dropping the previous
// frame's.
func (p *Profiler) BeginFrame(frame uint64) {
	p.mu.Lock()
	p.frame = frame
	p.samples = p.samples[:0]
	p.mu.Unlock()
}

// Record adds a sample to the current frame.
func (p *Profiler) Record(s SectionSample) {
	p.mu.Lock()
	s.Frame = p.frame
	p.samples = append(p.samples, s)
	p.mu.Unlock()
}

// EndFrame emits the frame's samples and warnings to the observer and
// returns the warnings.
func (p *Profiler) EndFrame() []Warning {
	p.mu.Lock()
	samples := slices.Clone(p.samples)
	p.last = samples
	p.mu.Unlock()

	var warnings []Warning
	for _, s := range samples {
		if p.obs != nil {
			p.obs.ObserveSection(s)
		}
		g, c := float64(s.Graphics), float64(s.Compute)
		if r := s.Imbalance(); p.warnRatio > 0 && r > p.warnRatio {
			warnings = append(warnings, Warning{
				Kind: WarnImbalance, Section: s.Section, Label: s.Label,
				Graphics: g, Compute: c, Ratio: r,
			})
		}
		if sp := s.Speedup(); s.Parallel && sp < 1 {
			warnings = append(warnings, Warning{
				Kind: WarnNegativeSpeedup, Section: s.Section, Label: s.Label,
				Graphics: g, Compute: c, Ratio: sp,
			})
		}
	}
	for _, w := range warnings {
		slogger().Warn("framegraph: "+w.Kind.String(), "section", w.Section, "label", w.Label, "ratio", w.Ratio)
		if p.obs != nil {
			p.obs.Warn(w)
		}
	}
	return warnings
}

// Samples returns the samples of the last completed frame.
func (p *Profiler) Samples() []SectionSample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.last)
}

// Verdict derives a measured policy signal from the last completed frame:
// No if any parallel section ran slower than back to back, Yes if every
// parallel section beat it by more than the margin, Unknown otherwise.
func (p *Profiler) Verdict() Tristate {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := Unknown
	for _, s := range p.last {
		if !s.Parallel {
			continue
		}
		sp := s.Speedup()
		switch {
		case sp < 1:
			return No
		case sp > 1+p.margin:
			v = Yes
		default:
			return Unknown
		}
	}
	return v
}
