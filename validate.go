// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"fmt"
	"math"
)

// WarningKind classifies advisory warnings.
type WarningKind uint8

const (
	// WarnImbalance reports sub-sections of a parallel section whose costs
	// differ by more than the advisory ratio.
	WarnImbalance WarningKind = iota

	// WarnNegativeSpeedup reports a parallel section that ran slower than its
	// sub-sections would have run back to back.
	WarnNegativeSpeedup
)

// String returns the warning kind name.
func (k WarningKind) String() string {
	switch k {
	case WarnImbalance:
		return "imbalance"
	case WarnNegativeSpeedup:
		return "negative-speedup"
	default:
		return "Unknown"
	}
}

// Warning is an advisory finding. Warnings never block execution.
type Warning struct {
	Kind    WarningKind
	Section int
	Label   string

	// Graphics and Compute are the compared costs: estimated workload at
	// build time, measured nanoseconds from the profiler.
	Graphics float64
	Compute  float64

	// Ratio is max/min of the costs for imbalance, or measured speedup for
	// WarnNegativeSpeedup.
	Ratio float64
}

// String formats the warning for logs.
func (w Warning) String() string {
	return fmt.Sprintf("%s: section %d (%s) graphics=%g compute=%g ratio=%.2f",
		w.Kind, w.Section, w.Label, w.Graphics, w.Compute, w.Ratio)
}

// validate checks an analysis. Malformed stages are reported first, then,
// in order: reads with no writer, same-section write races, cross-section
// races, section balance. Every check is linear in the number of accesses.
func validate(g *Graph, a *Analysis) ([]Warning, error) {
	if len(a.malformed) > 0 {
		return nil, a.malformed[0]
	}
	if err := checkUnwritten(g, a); err != nil {
		return nil, err
	}
	if err := checkSameSection(g, a); err != nil {
		return nil, err
	}
	if err := checkCrossSection(g, a); err != nil {
		return nil, err
	}
	return checkBalance(g)
}

func checkUnwritten(g *Graph, a *Analysis) error {
	for _, r := range a.unwritten {
		var kind error
		switch {
		case g.external[r.res]:
			kind = ErrMissingExternalInit
		case g.opts.unwritten == RejectUnwritten:
			kind = ErrUnwrittenRead
		default:
			continue
		}
		return newValidationError(kind).at(r.stage, g.stages[r.stage].Label).on(r.res).in(g.sectionOf[r.stage])
	}
	return nil
}

// checkSameSection verifies that within each sub-section every write to a
// resource already written in that sub-section is ordered after the earlier
// write by a dependency edge.
//
// Stages of one sub-section run in declaration order on a single lane, and
// Analysis.step links every access to the lane's last writer, so a graph
// built by the Builder always satisfies this. The check guards that
// invariant against changes to the analysis: ErrSameSectionConflict is
// never a user error.
func checkSameSection(g *Graph, a *Analysis) error {
	if len(g.sections) == 0 {
		return nil
	}
	edges := make(map[Edge]struct{}, len(a.Edges))
	for _, e := range a.Edges {
		edges[e] = struct{}{}
	}
	for si, sec := range g.sections {
		for _, span := range [...]Span{sec.Graphics, sec.Compute} {
			last := make(map[ResourceID]int)
			for i := span.Start; i < span.End; i++ {
				for _, u := range a.uses[i] {
					if !u.write {
						continue
					}
					if p, ok := last[u.res]; ok {
						if _, ok := edges[Edge{Producer: p, Consumer: i, Resource: u.res}]; !ok {
							return newValidationError(ErrSameSectionConflict).
								at(p, g.stages[p].Label).and(i, g.stages[i].Label).on(u.res).in(si)
						}
					}
					last[u.res] = i
				}
			}
		}
	}
	return nil
}

// checkCrossSection rejects any resource written by one sub-section and used
// by the other, and shared images read in different layouts.
func checkCrossSection(g *Graph, a *Analysis) error {
	for si, acc := range a.access {
		for _, id := range sharedResources(acc) {
			gu, cu := acc.graphics[id], acc.compute[id]
			if gu.writer < 0 && cu.writer < 0 {
				if !singleLayout(id.Kind, gu.states|cu.states) {
					return newValidationError(ErrCrossSectionConflict).
						at(gu.first, g.stages[gu.first].Label).and(cu.first, g.stages[cu.first].Label).
						on(id).in(si).withDetail("read in incompatible image layouts")
				}
				continue
			}
			gs, cs := gu.first, cu.first
			if gu.writer >= 0 {
				gs = gu.writer
			}
			if cu.writer >= 0 {
				cs = cu.writer
			}
			return newValidationError(ErrCrossSectionConflict).
				at(gs, g.stages[gs].Label).and(cs, g.stages[cs].Label).on(id).in(si)
		}
	}
	return nil
}

// sectionCost returns the estimated cost of the stages in span.
func sectionCost(g *Graph, span Span) float64 {
	var c float64
	for i := span.Start; i < span.End; i++ {
		c += g.stages[i].estimatedCost()
	}
	return c
}

// imbalance returns max/min of two costs; +Inf when exactly one is zero.
func imbalance(x, y float64) float64 {
	lo, hi := math.Min(x, y), math.Max(x, y)
	switch {
	case hi == 0:
		return 1
	case lo == 0:
		return math.Inf(1)
	}
	return hi / lo
}

func checkBalance(g *Graph) ([]Warning, error) {
	var warnings []Warning
	for si, sec := range g.sections {
		gc, cc := sectionCost(g, sec.Graphics), sectionCost(g, sec.Compute)
		ratio := imbalance(gc, cc)
		if limit := g.opts.imbalanceLimit; limit > 0 && ratio > limit {
			return nil, newValidationError(ErrUnbalancedSection).in(si).
				withDetail("%q cost ratio %.2f exceeds %.2f (graphics %g, compute %g)", sec.Label, ratio, limit, gc, cc)
		}
		if warn := g.opts.imbalanceWarn; warn > 0 && ratio > warn {
			warnings = append(warnings, Warning{
				Kind: WarnImbalance, Section: si, Label: sec.Label,
				Graphics: gc, Compute: cc, Ratio: ratio,
			})
		}
	}
	return warnings, nil
}
