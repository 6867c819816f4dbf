// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"errors"
	"fmt"
	"strings"
)

// Build-time errors. Every *ValidationError unwraps to exactly one of these,
// so callers test with errors.Is.
var (
	// ErrUnwrittenRead is returned when a stage reads a resource that no
	// earlier stage wrote and that was not imported as externally initialized.
	ErrUnwrittenRead = errors.New("framegraph: read of resource with no prior writer")

	// ErrMissingExternalInit is the configuration form of ErrUnwrittenRead:
	// the graph requires external content but the import flag is missing.
	ErrMissingExternalInit = errors.New("framegraph: resource requires external initialization")

	// ErrSameSectionConflict is returned when two stages of one sub-section
	// write the same resource with no dependency edge between them. Graphs
	// built by the Builder always order such writes; this error means the
	// dependency analysis is inconsistent.
	ErrSameSectionConflict = errors.New("framegraph: same-section write conflict")

	// ErrCrossSectionConflict is returned when a resource is written by one
	// sub-section of a parallel section and used by the other.
	ErrCrossSectionConflict = errors.New("framegraph: cross-section conflict")

	// ErrUnknownTransition is returned when the transition table has no entry
	// for a required state change.
	ErrUnknownTransition = errors.New("framegraph: unknown state transition")

	// ErrUnbalancedSection is returned when a parallel section's sub-sections
	// differ in cost beyond the hard limit.
	ErrUnbalancedSection = errors.New("framegraph: unbalanced parallel section")

	// ErrEmptySection is returned when a parallel section lacks a graphics or
	// a compute sub-section.
	ErrEmptySection = errors.New("framegraph: parallel section requires both sub-sections")

	// ErrNestedParallel is returned when a parallel section is opened while
	// another is open.
	ErrNestedParallel = errors.New("framegraph: nested parallel section")

	// ErrUnclosedParallel is returned when a stage is added to the outer
	// builder, or Build is called, while a parallel section is open.
	ErrUnclosedParallel = errors.New("framegraph: parallel section not closed")

	// ErrAliasedAccess is returned when one stage declares conflicting
	// accesses to the same resource.
	ErrAliasedAccess = errors.New("framegraph: aliased access within stage")

	// ErrInvalidState is returned when a state is not legal for a resource
	// kind, or a stage is malformed.
	ErrInvalidState = errors.New("framegraph: invalid resource state")
)

// NoStage marks an unused stage index in a ValidationError.
const NoStage = -1

// ValidationError describes a rejected graph with enough context to act on.
type ValidationError struct {
	// Kind is the sentinel the error unwraps to.
	Kind error

	// Stage is the offending stage (global index), or NoStage.
	Stage int
	// Other is the second stage of a conflict, or NoStage.
	Other int
	// StageLabel and OtherLabel are the labels of Stage and Other.
	StageLabel string
	OtherLabel string

	// Resource is the resource involved, if any.
	Resource    ResourceID
	HasResource bool

	// From and To are set for transition errors.
	From, To ResourceState

	// Section is the parallel section index, or -1.
	Section int

	// Detail is free-form additional context.
	Detail string
}

// Error implements error.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Stage != NoStage {
		fmt.Fprintf(&b, ": stage %d", e.Stage)
		if e.StageLabel != "" {
			fmt.Fprintf(&b, " (%s)", e.StageLabel)
		}
	}
	if e.Other != NoStage {
		fmt.Fprintf(&b, " and stage %d", e.Other)
		if e.OtherLabel != "" {
			fmt.Fprintf(&b, " (%s)", e.OtherLabel)
		}
	}
	if e.HasResource {
		fmt.Fprintf(&b, ", resource %s", e.Resource)
	}
	if e.Kind == ErrUnknownTransition {
		fmt.Fprintf(&b, ", %s -> %s", e.From, e.To)
	}
	if e.Section >= 0 {
		fmt.Fprintf(&b, ", section %d", e.Section)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Unwrap returns the sentinel kind.
func (e *ValidationError) Unwrap() error { return e.Kind }

func newValidationError(kind error) *ValidationError {
	return &ValidationError{Kind: kind, Stage: NoStage, Other: NoStage, Section: -1}
}

func (e *ValidationError) at(stage int, label string) *ValidationError {
	e.Stage, e.StageLabel = stage, label
	return e
}

func (e *ValidationError) and(stage int, label string) *ValidationError {
	e.Other, e.OtherLabel = stage, label
	return e
}

func (e *ValidationError) on(r ResourceID) *ValidationError {
	e.Resource, e.HasResource = r, true
	return e
}

func (e *ValidationError) in(section int) *ValidationError {
	e.Section = section
	return e
}

func (e *ValidationError) withDetail(format string, args ...any) *ValidationError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// FrameError reports a command submission failure. The frame is abandoned;
// the registry has already been advanced as if the frame completed.
type FrameError struct {
	// Stage is the global index of the stage being recorded, or NoStage for
	// failures at a parallel section boundary.
	Stage int
	Label string
	Err   error
}

// Error implements error.
func (e *FrameError) Error() string {
	if e.Stage == NoStage {
		return fmt.Sprintf("framegraph: command submission failed: %v", e.Err)
	}
	return fmt.Sprintf("framegraph: command submission failed at stage %d (%s): %v", e.Stage, e.Label, e.Err)
}

// Unwrap returns the collaborator's error unchanged.
func (e *FrameError) Unwrap() error { return e.Err }
