// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
)

// Tristate is a yes/no answer that may be unknown.
type Tristate int8

const (
	// Unknown defers to the next source.
	Unknown Tristate = iota
	// Yes means true parallel execution is beneficial.
	Yes
	// No means parallel sections should run sequentially.
	No
)

// String returns the tristate name.
func (t Tristate) String() string {
	switch t {
	case Unknown:
		return "unknown"
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "Unknown"
	}
}

// ParseTristate parses "yes", "no", "unknown" or "" (unknown).
func ParseTristate(s string) (Tristate, error) {
	switch s {
	case "", "unknown", "auto":
		return Unknown, nil
	case "yes", "true", "on":
		return Yes, nil
	case "no", "false", "off":
		return No, nil
	}
	return Unknown, fmt.Errorf("framegraph: invalid tristate %q", s)
}

// PCI vendor IDs used by the default vendor table.
const (
	VendorAMD      uint32 = 0x1002
	VendorNVIDIA   uint32 = 0x10DE
	VendorIntel    uint32 = 0x8086
	VendorApple    uint32 = 0x106B
	VendorARM      uint32 = 0x13B5
	VendorQualcomm uint32 = 0x5143
)

// DeviceInfo identifies the device a policy is evaluated for.
type DeviceInfo struct {
	Name     string
	VendorID uint32
	DeviceID uint32
	Type     gputypes.DeviceType
}

// VendorTable maps PCI vendor IDs to a static answer.
type VendorTable map[uint32]Tristate

// DefaultVendorTable returns the built-in table: vendors whose discrete
// parts expose an independent compute queue answer Yes, tile-based and
// shared-queue vendors answer No.
func DefaultVendorTable() VendorTable {
	return VendorTable{
		VendorAMD:      Yes,
		VendorNVIDIA:   Yes,
		VendorIntel:    No,
		VendorApple:    No,
		VendorARM:      No,
		VendorQualcomm: No,
	}
}

// Lookup returns the table's answer for dev. Integrated devices answer No
// whatever their vendor.
func (t VendorTable) Lookup(dev DeviceInfo) Tristate {
	if dev.Type == gputypes.DeviceTypeIntegratedGPU {
		return No
	}
	return t[dev.VendorID]
}

// DecisionSource names the signal a Decision came from.
type DecisionSource uint8

const (
	// SourceFallback is the default used when no other signal applies.
	SourceFallback DecisionSource = iota
	// SourceTable is the per-vendor table entry for the device.
	SourceTable
	// SourceMeasured is the profiler's verdict from previous frames.
	SourceMeasured
	// SourceOverride is Policy.Override.
	SourceOverride
)

// String returns the source name.
func (s DecisionSource) String() string {
	switch s {
	case SourceFallback:
		return "fallback"
	case SourceTable:
		return "table"
	case SourceMeasured:
		return "measured"
	case SourceOverride:
		return "override"
	default:
		return "Unknown"
	}
}

// Decision is whether parallel sections run on separate streams.
type Decision struct {
	Parallel bool
	Source   DecisionSource
}

// Policy composes the three capability signals. Precedence is
// Override > Measured > Table; when all are Unknown the sections run
// sequentially.
type Policy struct {
	Override Tristate
	Measured Tristate
	Table    VendorTable
}

// Decide evaluates the policy for dev.
func (p Policy) Decide(dev DeviceInfo) Decision {
	d := p.decide(dev)
	slogger().Info("framegraph: parallel policy",
		"device", dev.Name,
		"vendor", fmt.Sprintf("0x%04X", dev.VendorID),
		"parallel", d.Parallel,
		"source", d.Source.String())
	return d
}

func (p Policy) decide(dev DeviceInfo) Decision {
	for _, c := range []struct {
		v   Tristate
		src DecisionSource
	}{
		{p.Override, SourceOverride},
		{p.Measured, SourceMeasured},
		{p.Table.Lookup(dev), SourceTable},
	} {
		if c.v != Unknown {
			return Decision{Parallel: c.v == Yes, Source: c.src}
		}
	}
	return Decision{Source: SourceFallback}
}

// MeasureSpeedup turns an A/B sample into a measured signal: Yes when the
// parallel run beats the sequential one by more than margin (a fraction of
// the sequential time), No when it is slower, Unknown in between or when
// either sample is missing.
func MeasureSpeedup(sequential, parallel time.Duration, margin float64) Tristate {
	if sequential <= 0 || parallel <= 0 {
		return Unknown
	}
	switch {
	case float64(parallel) < float64(sequential)*(1-margin):
		return Yes
	case parallel > sequential:
		return No
	}
	return Unknown
}
