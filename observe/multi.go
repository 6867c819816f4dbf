// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package observe

import "github.com/gogpu/framegraph"

type multi []framegraph.Observer

// Multi returns an observer forwarding to every non-nil obs in order.
func Multi(obs ...framegraph.Observer) framegraph.Observer {
	m := make(multi, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multi) ObserveSection(s framegraph.SectionSample) {
	for _, o := range m {
		o.ObserveSection(s)
	}
}

func (m multi) Warn(w framegraph.Warning) {
	for _, o := range m {
		o.Warn(w)
	}
}
