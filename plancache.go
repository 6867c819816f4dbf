// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"github.com/gogpu/framegraph/internal/cache"
)

// PlanCache shares analysis and planning results between builds of graphs
// with the same stage shape and entry state, typically successive frames of
// a graph rebuilt every frame. Results are identical to a fresh build.
//
// PlanCache is safe for concurrent use.
type PlanCache struct {
	c *cache.Cache[planKey, *planned]
}

// NewPlanCache returns a cache holding about size plans. Size 0 means
// unlimited.
func NewPlanCache(size int) *PlanCache {
	return &PlanCache{c: cache.New[planKey, *planned](size)}
}

func (pc *PlanCache) get(k planKey) (*planned, bool) {
	p, ok := pc.c.Get(k)
	if ok {
		slogger().Debug("framegraph: plan cache hit", "shape", k.shape, "entry", k.entry)
	}
	return p, ok
}

func (pc *PlanCache) put(k planKey, p *planned) { pc.c.Set(k, p) }

// PlanCacheStats reports plan cache usage.
type PlanCacheStats struct {
	Len    int
	Hits   uint64
	Misses uint64
}

// Stats returns cache statistics.
func (pc *PlanCache) Stats() PlanCacheStats {
	s := pc.c.Stats()
	return PlanCacheStats{Len: s.Len, Hits: s.Hits, Misses: s.Misses}
}

// Clear drops every cached plan.
func (pc *PlanCache) Clear() { pc.c.Clear() }
