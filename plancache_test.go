// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func chainBuilder(reg *Registry, opts ...BuildOption) *Builder {
	return NewBuilder(reg, opts...).AddStage(
		Compute("fill", Direct(16, 1, 1)).Write(Buffer(0), StateComputeWrite),
		Compute("reduce", Direct(1, 1, 1)).Read(Buffer(0), StateComputeRead).Write(Buffer(1), StateComputeWrite),
	)
}

func TestPlanCacheSharesPlans(t *testing.T) {
	pc := NewPlanCache(8)
	g1, err := chainBuilder(nil, WithPlanCache(pc)).Build()
	if err != nil {
		t.Fatal(err)
	}
	g2, err := chainBuilder(nil, WithPlanCache(pc)).Build()
	if err != nil {
		t.Fatal(err)
	}

	if g1.Plan() != g2.Plan() {
		t.Error("identical builds did not share the cached plan")
	}
	if s := pc.Stats(); s.Len != 1 || s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Stats() = %+v, want 1 entry, 1 hit, 1 miss", s)
	}

	fresh, err := chainBuilder(nil).Build()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(fresh.Plan(), g2.Plan()); diff != "" {
		t.Errorf("cached plan differs from a fresh build (-fresh +cached):\n%s", diff)
	}
}

func TestPlanCacheKeysOnEntryState(t *testing.T) {
	pc := NewPlanCache(8)
	reg := NewRegistry()
	g0, err := chainBuilder(reg, WithPlanCache(pc)).Build()
	if err != nil {
		t.Fatal(err)
	}
	reg.Commit(g0.Final())

	g1, err := chainBuilder(reg, WithPlanCache(pc)).Build()
	if err != nil {
		t.Fatal(err)
	}
	if g0.Plan() == g1.Plan() || g0.Plan().Fingerprint() == g1.Plan().Fingerprint() {
		t.Error("different entry states shared a plan")
	}
	if s := pc.Stats(); s.Len != 2 || s.Hits != 0 {
		t.Errorf("Stats() = %+v, want 2 entries and no hits", s)
	}
}

func TestPlanCacheKeysOnShape(t *testing.T) {
	pc := NewPlanCache(8)
	if _, err := chainBuilder(nil, WithPlanCache(pc)).Build(); err != nil {
		t.Fatal(err)
	}
	relabeled := NewBuilder(nil, WithPlanCache(pc)).AddStage(
		Compute("fill", Direct(32, 1, 1)).Write(Buffer(0), StateComputeWrite),
		Compute("reduce", Direct(1, 1, 1)).Read(Buffer(0), StateComputeRead).Write(Buffer(1), StateComputeWrite),
	)
	if _, err := relabeled.Build(); err != nil {
		t.Fatal(err)
	}
	if s := pc.Stats(); s.Hits != 0 || s.Len != 2 {
		t.Errorf("Stats() = %+v, a different dispatch must not hit", s)
	}

	pc.Clear()
	if s := pc.Stats(); s.Len != 0 || s.Misses != 2 {
		t.Errorf("after Clear: %+v", s)
	}
}

func TestExecutorReusesLocalPlans(t *testing.T) {
	reg := NewRegistry()
	g, err := chainBuilder(reg).Build()
	if err != nil {
		t.Fatal(err)
	}
	exec := NewExecutor(reg)
	for range 3 {
		if err := exec.Execute(g, discardTarget{}); err != nil {
			t.Fatal(err)
		}
	}
	if g.local == nil {
		t.Fatal("no graph-local plans after re-planning")
	}
	if s := g.local.Stats(); s.Len != 1 || s.Hits != 1 {
		t.Errorf("local plan cache = %+v, want one plan hit once", s)
	}
}
