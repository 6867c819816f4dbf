// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache provides the bounded LRU used to keep barrier plans across
// graph builds.
//
//	c := cache.New[uint64, *plan](64)
//	c.Set(key, p)
//	p, ok := c.Get(key)
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
