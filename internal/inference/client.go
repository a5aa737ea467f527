// Package inference isolates the external language-model call behind a
// narrow, function-shaped interface. The call is treated as non-deterministic
// and non-idempotent: callers apply a bounded timeout and retry at most once,
// and only on transport failures. The deterministic core (routing tie-breaks,
// validation, delta application) never touches this package in tests - a
// fake Client stands in.
package inference

import (
	"context"
	"fmt"
)

// FieldChange is one requested change to a numeric model field, as extracted
// by the model. Op is one of "set", "increase", "decrease"; Percent marks
// Value as a relative percentage rather than an absolute amount.
type FieldChange struct {
	Field   string  `json:"field"`
	Op      string  `json:"op"`
	Value   float64 `json:"value"`
	Percent bool    `json:"percent,omitempty"`
}

// Request carries the utterance plus the conversational context the model
// needs: a summary of the live calculator state, the last few turns, and the
// most recent applied changes.
type Request struct {
	Utterance     string
	StateSummary  string   // compact JSON of current inputs and metrics
	RecentTurns   []string // brief summaries of prior turns, oldest first
	RecentChanges []string // recently applied changes, newest first
}

// Result is the structured classification returned by the model. Categories
// holds every category the model found plausible; ties are broken
// deterministically by the router, never by the model.
type Result struct {
	Categories        []string           `json:"categories"`
	FieldChanges      []FieldChange      `json:"field_changes,omitempty"`
	BucketRef         string             `json:"bucket_ref,omitempty"`   // bucket name, or "this"/"current" deixis
	ScenarioRef       string             `json:"scenario_ref,omitempty"` // scenario label, or "previous" deixis
	ScenarioOverrides map[string]float64 `json:"scenario_overrides,omitempty"`
	StrategyMode      string             `json:"strategy_mode,omitempty"`
	MetricRef         string             `json:"metric_ref,omitempty"`    // metric an analysis question targets
	DocumentKind      string             `json:"document_kind,omitempty"` // requested document type
}

// Client is the inference collaborator: prompt+context in, structured intent
// out. Implementations must respect ctx cancellation and deadlines.
type Client interface {
	Classify(ctx context.Context, req *Request) (*Result, error)
}

// TransientError wraps a transport-level failure (timeout, connection reset)
// that is eligible for the single retry. Semantic failures - the model
// answered, but unusably - are not transient and must not be retried.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient inference failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
