// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package observe

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gogpu/framegraph"
)

func imbalanceWarning(label string) framegraph.Warning {
	return framegraph.Warning{Kind: framegraph.WarnImbalance, Section: 0, Label: label, Graphics: 10, Compute: 1, Ratio: 10}
}

func TestLogObserverWritesSamples(t *testing.T) {
	var buf bytes.Buffer
	o := NewLogObserver(zerolog.New(&buf))
	o.ObserveSection(framegraph.SectionSample{Frame: 7, Label: "sim", Parallel: true, Graphics: 2 * time.Millisecond, Compute: time.Millisecond})

	out := buf.String()
	for _, want := range []string{`"label":"sim"`, `"frame":7`, `"parallel":true`, `"component":"framegraph"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestLogObserverRateLimitsWarnings(t *testing.T) {
	var buf bytes.Buffer
	o := NewLogObserver(zerolog.New(&buf), WithWarnRate(1))
	for i := 0; i < 5; i++ {
		o.Warn(imbalanceWarning("sim"))
	}
	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Errorf("wrote %d warnings, want 1:\n%s", got, buf.String())
	}
	if got := o.Dropped(); got != 4 {
		t.Errorf("Dropped() = %d, want 4", got)
	}
}

func TestLogObserverUnlimited(t *testing.T) {
	var buf bytes.Buffer
	o := NewLogObserver(zerolog.New(&buf), WithWarnRate(0))
	for i := 0; i < 5; i++ {
		o.Warn(imbalanceWarning("sim"))
	}
	if got := strings.Count(buf.String(), "\n"); got != 5 {
		t.Errorf("wrote %d warnings, want 5", got)
	}
}

type countingObserver struct {
	samples, warnings int
}

func (c *countingObserver) ObserveSection(framegraph.SectionSample) { c.samples++ }
func (c *countingObserver) Warn(framegraph.Warning)                { c.warnings++ }

func TestMulti(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	m := Multi(a, nil, b)
	m.ObserveSection(framegraph.SectionSample{})
	m.Warn(framegraph.Warning{})
	m.Warn(framegraph.Warning{})
	for i, c := range []*countingObserver{a, b} {
		if c.samples != 1 || c.warnings != 2 {
			t.Errorf("observer %d saw %d samples, %d warnings; want 1, 2", i, c.samples, c.warnings)
		}
	}
}

func openTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "profile", "fg.db"), opts...)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenStoreRequiresPath(t *testing.T) {
	if _, err := OpenStore("  "); err == nil {
		t.Error("OpenStore with blank path succeeded")
	}
}

func TestStoreSamplesAndSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ms := time.Millisecond
	for i := 0; i < 3; i++ {
		s.ObserveSection(framegraph.SectionSample{Frame: uint64(i), Label: "sim", Graphics: 4 * ms, Compute: 4 * ms})
	}
	for i := 3; i < 5; i++ {
		s.ObserveSection(framegraph.SectionSample{Frame: uint64(i), Label: "sim", Parallel: true, Graphics: 4 * ms, Compute: 4 * ms, SyncWait: ms})
	}
	s.ObserveSection(framegraph.SectionSample{Frame: 5, Label: "other", Graphics: ms})
	if s.Errors() != 0 {
		t.Fatalf("Errors() = %d", s.Errors())
	}

	got, err := s.Samples(ctx, "sim", 10)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("Samples(sim) returned %d, want 5", len(got))
	}
	if got[0].Frame != 4 || !got[0].Parallel || got[0].SyncWait != ms {
		t.Errorf("newest sample = %+v", got[0])
	}
	all, err := s.Samples(ctx, "", 10)
	if err != nil || len(all) != 6 {
		t.Errorf("Samples(all) = %d, %v; want 6", len(all), err)
	}

	sum, err := s.Summarize(ctx, "sim")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	want := Summary{Label: "sim", Sequential: 3, Parallel: 2, SequentialWall: 8 * ms, ParallelWall: 5 * ms}
	if sum != want {
		t.Errorf("Summarize = %+v, want %+v", sum, want)
	}
	if v := sum.Verdict(0.05); v != framegraph.Yes {
		t.Errorf("Verdict = %s, want Yes", v)
	}
}

func TestStoreWarnings(t *testing.T) {
	s := openTestStore(t)
	s.Warn(imbalanceWarning("a"))
	s.Warn(framegraph.Warning{Kind: framegraph.WarnNegativeSpeedup, Label: "b", Ratio: 0.8})

	got, err := s.Warnings(context.Background(), 10)
	if err != nil {
		t.Fatalf("Warnings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Warnings returned %d, want 2", len(got))
	}
	if got[0].Kind != framegraph.WarnNegativeSpeedup || got[0].Label != "b" || got[0].Ratio != 0.8 {
		t.Errorf("newest warning = %+v", got[0])
	}
	if got[1].Kind != framegraph.WarnImbalance {
		t.Errorf("oldest warning kind = %s, want imbalance", got[1].Kind)
	}
}

func TestStoreRetention(t *testing.T) {
	s := openTestStore(t, WithRetention(2, 1))
	for i := 0; i < 5; i++ {
		s.ObserveSection(framegraph.SectionSample{Frame: uint64(i), Label: "sim"})
	}
	got, err := s.Samples(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(got) != 2 || got[0].Frame != 4 || got[1].Frame != 3 {
		t.Errorf("kept %+v, want frames 4 and 3", got)
	}
}

func TestProfilerFeedsStore(t *testing.T) {
	s := openTestStore(t)
	p := framegraph.NewProfiler(Multi(s, NewLogObserver(zerolog.Nop())))
	p.BeginFrame(9)
	p.Record(framegraph.SectionSample{Label: "sim", Parallel: true, Graphics: 10 * time.Millisecond, Compute: time.Millisecond})
	warnings := p.EndFrame()
	if len(warnings) == 0 {
		t.Fatal("expected an imbalance warning")
	}

	stored, err := s.Warnings(context.Background(), 10)
	if err != nil || len(stored) != len(warnings) {
		t.Errorf("stored %d warnings (%v), want %d", len(stored), err, len(warnings))
	}
	samples, err := s.Samples(context.Background(), "sim", 1)
	if err != nil || len(samples) != 1 || samples[0].Frame != 9 {
		t.Errorf("stored samples = %+v, %v", samples, err)
	}
}
