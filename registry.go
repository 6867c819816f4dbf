// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"encoding/binary"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Registry holds the committed synchronization state of every resource the
// scheduler has seen. It is pure bookkeeping and never touches the GPU.
//
// Graph builds take a private Snapshot; only the Executor commits back, once
// a frame has been submitted. Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tracks map[ResourceID]track
}

// NewRegistry returns an empty registry. Unknown resources are Undefined.
func NewRegistry() *Registry {
	return &Registry{tracks: make(map[ResourceID]track)}
}

// Import declares that id already holds meaningful content, produced outside
// any graph, and is currently in state. A read of an imported resource is
// never an unwritten read.
func (r *Registry) Import(id ResourceID, state ResourceState) error {
	if !state.valid() || (state != StateUndefined && !state.ValidFor(id.Kind)) {
		return newValidationError(ErrInvalidState).on(id).withDetail("cannot import in state %s", state)
	}
	r.mu.Lock()
	r.tracks[id] = importedTrack(state)
	r.mu.Unlock()
	return nil
}

// Release forgets id. Its next use starts from Undefined.
func (r *Registry) Release(id ResourceID) {
	r.mu.Lock()
	delete(r.tracks, id)
	r.mu.Unlock()
}

// State returns the committed state of id.
func (r *Registry) State(id ResourceID) ResourceState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tracks[id].current
}

// Initialized reports whether id holds content from a committed frame or an
// import.
func (r *Registry) Initialized(id ResourceID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tracks[id].initialized
}

// Len returns the number of tracked resources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tracks)
}

// Snapshot returns a private copy of the committed state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{tracks: make(map[ResourceID]track, len(r.tracks))}
	for id, t := range r.tracks {
		s.tracks[id] = t
	}
	return s
}

// snapshotOf copies only the given resources.
func (r *Registry) snapshotOf(ids []ResourceID) Snapshot {
	s := Snapshot{tracks: make(map[ResourceID]track, len(ids))}
	if r == nil {
		return s
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		if t, ok := r.tracks[id]; ok {
			s.tracks[id] = t
		}
	}
	return s
}

// Commit merges the final states of a frame back into the registry.
func (r *Registry) Commit(final Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range final.tracks {
		r.tracks[id] = t
	}
}

func importedTrack(state ResourceState) track {
	t := track{current: state, initialized: true}
	switch {
	case state.IsWrite():
		t.write = state
	case state != StateUndefined:
		t.readers = stateSet(0).with(state)
	}
	return t
}

// Snapshot is an immutable copy of per-resource synchronization state.
type Snapshot struct {
	tracks map[ResourceID]track
}

// State returns the state of id in the snapshot.
func (s Snapshot) State(id ResourceID) ResourceState { return s.tracks[id].current }

// Initialized reports whether id has content in the snapshot.
func (s Snapshot) Initialized(id ResourceID) bool { return s.tracks[id].initialized }

// Len returns the number of resources in the snapshot.
func (s Snapshot) Len() int { return len(s.tracks) }

// Resources returns the snapshot's resources in deterministic order.
func (s Snapshot) Resources() []ResourceID {
	ids := make([]ResourceID, 0, len(s.tracks))
	for id := range s.tracks {
		ids = append(ids, id)
	}
	sortResources(ids)
	return ids
}

// lookup returns the track of id, Undefined if absent.
func (s Snapshot) lookup(id ResourceID) track { return s.tracks[id] }

// equalOn reports whether s and o agree on every resource in ids.
func (s Snapshot) equalOn(o Snapshot, ids []ResourceID) bool {
	for _, id := range ids {
		if s.tracks[id] != o.tracks[id] {
			return false
		}
	}
	return true
}

// fingerprint hashes the tracks of ids, which must be sorted.
func (s Snapshot) fingerprint(ids []ResourceID) uint64 {
	d := xxhash.New()
	var buf [12]byte
	for _, id := range ids {
		t := s.tracks[id]
		buf[0] = byte(id.Kind)
		binary.LittleEndian.PutUint32(buf[1:5], id.Index)
		buf[5] = byte(t.current)
		buf[6] = byte(t.write)
		binary.LittleEndian.PutUint16(buf[7:9], uint16(t.readers))
		buf[9] = 0
		if t.initialized {
			buf[9] = 1
		}
		_, _ = d.Write(buf[:10])
	}
	return d.Sum64()
}

func sortResources(ids []ResourceID) {
	slices.SortFunc(ids, func(a, b ResourceID) int {
		switch {
		case a.less(b):
			return -1
		case b.less(a):
			return 1
		}
		return 0
	})
}
