// Package handler implements the capability handlers the engine dispatches
// to after intent routing: modify (live field changes), analyze (metric
// questions), scenario (hypothetical branches), and document (report
// generation). A handler never mutates the live state directly - a modify
// returns a fully-validated delta and the engine commits it.
package handler

import (
	"context"
	"fmt"

	"github.com/collectiq/copilot/internal/intent"
	"github.com/collectiq/copilot/internal/memory"
	"github.com/collectiq/copilot/internal/model"
)

// Args carries one turn's inputs to a handler. State and Memory are the
// session's live instances; only the engine's per-session worker holds them.
type Args struct {
	RequestID string
	Intent    intent.Classification
	State     *model.State
	Memory    *memory.ThreadMemory
}

// FactKind tags the facts a handler produces for narrative composition.
type FactKind string

const (
	// FactFieldChanged records a numeric input moving from Before to After
	FactFieldChanged FactKind = "field_changed"

	// FactModeChanged records a categorical input moving from FromMode to ToMode
	FactModeChanged FactKind = "mode_changed"

	// FactMetricObserved records a current metric value (After)
	FactMetricObserved FactKind = "metric_observed"

	// FactMetricShifted records a metric moving from Before to After as a
	// consequence of changes in the same turn
	FactMetricShifted FactKind = "metric_shifted"

	// FactDocumentRendered records a generated document; Detail holds the kind
	FactDocumentRendered FactKind = "document_rendered"
)

// Fact is one composable statement about what a handler did or observed.
// Narrative text is built from facts downstream; handlers never format
// user-facing prose themselves.
type Fact struct {
	Kind     FactKind
	Field    string // field or metric identifier
	Before   float64
	After    float64
	FromMode string // mode changes only
	ToMode   string // mode changes only
	Detail   string // scenario label, document kind, free annotation
}

// Result is a handler's outcome for one turn. Delta is nil unless the turn
// should mutate the live state; ArtifactID is empty unless a document was
// generated. Facts always describe what happened.
type Result struct {
	Delta      *model.Delta
	ArtifactID string
	Facts      []Fact
	Scenario   string // label of a hypothetical this turn defined, if any
}

// Handler is one capability. Name is the stable identifier recorded in the
// turn trail.
type Handler interface {
	Name() string
	Handle(ctx context.Context, args Args) (*Result, error)
}

// StaleContextError rejects a request whose client-known version has fallen
// too far behind the live state. The turn runs no handler; the caller is told
// to resynchronize.
type StaleContextError struct {
	RequestedVersion int64
	CurrentVersion   int64
	Window           int64
}

func (e *StaleContextError) Error() string {
	return fmt.Sprintf("request context is stale: client at version %d, state at %d (window %d)",
		e.RequestedVersion, e.CurrentVersion, e.Window)
}

// CheckStale validates a client-reported version against the live version.
// requested < 0 means the client did not report a version and is exempt.
func CheckStale(requested, current, window int64) error {
	if requested < 0 {
		return nil
	}
	if current-requested > window {
		return &StaleContextError{
			RequestedVersion: requested,
			CurrentVersion:   current,
			Window:           window,
		}
	}
	return nil
}
