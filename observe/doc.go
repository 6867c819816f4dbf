// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package observe provides framegraph.Observer implementations.
//
// LogObserver writes section samples and warnings as zerolog events, rate
// limiting warnings so a persistently imbalanced section cannot flood the
// log at frame rate. Store persists samples and warnings to SQLite and
// aggregates them into the measured signal of the capability policy.
// Multi fans out to several observers.
//
//	store, err := observe.OpenStore("profile.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	obs := observe.Multi(observe.NewLogObserver(zerolog.New(os.Stderr)), store)
//	exec := framegraph.NewExecutor(reg, framegraph.WithProfiler(framegraph.NewProfiler(obs)))
package observe
