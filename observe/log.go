// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package observe

import (
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/gogpu/framegraph"
)

// DefaultWarnRate is the number of warnings per second LogObserver writes
// before dropping.
const DefaultWarnRate = 1

// LogOption configures a LogObserver.
type LogOption func(*LogObserver)

// WithWarnRate sets the sustained warning rate per second, with a burst of
// the same size. Zero or less disables the limit.
func WithWarnRate(perSec int) LogOption {
	return func(o *LogObserver) {
		if perSec <= 0 {
			o.limiter = nil
			return
		}
		o.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	}
}

// LogObserver logs profiler output. Samples are logged at debug level,
// warnings at warn level subject to a rate limit.
type LogObserver struct {
	log     zerolog.Logger
	limiter *rate.Limiter
	dropped atomic.Uint64
}

// NewLogObserver returns an observer writing to l.
func NewLogObserver(l zerolog.Logger, opts ...LogOption) *LogObserver {
	o := &LogObserver{
		log:     l.With().Str("component", "framegraph").Logger(),
		limiter: rate.NewLimiter(rate.Limit(DefaultWarnRate), DefaultWarnRate),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ObserveSection implements framegraph.Observer.
func (o *LogObserver) ObserveSection(s framegraph.SectionSample) {
	o.log.Debug().
		Uint64("frame", s.Frame).
		Int("section", s.Section).
		Str("label", s.Label).
		Bool("parallel", s.Parallel).
		Dur("graphics", s.Graphics).
		Dur("compute", s.Compute).
		Dur("sync_wait", s.SyncWait).
		Float64("speedup", s.Speedup()).
		Msg("parallel section")
}

// Warn implements framegraph.Observer.
func (o *LogObserver) Warn(w framegraph.Warning) {
	if o.limiter != nil && !o.limiter.Allow() {
		o.dropped.Add(1)
		return
	}
	e := o.log.Warn().
		Str("kind", w.Kind.String()).
		Int("section", w.Section).
		Str("label", w.Label).
		Float64("graphics", w.Graphics).
		Float64("compute", w.Compute).
		Float64("ratio", w.Ratio)
	if n := o.dropped.Swap(0); n > 0 {
		e = e.Uint64("dropped", n)
	}
	e.Msg("parallel section " + w.Kind.String())
}

// Dropped returns the number of warnings suppressed by the rate limit since
// the last one written.
func (o *LogObserver) Dropped() uint64 { return o.dropped.Load() }
