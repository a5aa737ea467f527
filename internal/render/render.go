// Package render isolates document generation behind a collaborator
// interface. Rendering failures abort only the document step of a turn:
// the session state is never mutated by a document request, so a failed
// render leaves nothing to roll back.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/collectiq/copilot/pkg/statehub"
)

// Document kinds the built-in renderer knows how to produce.
const (
	KindROIReport = "roi_report"
	KindStateJSON = "state_json"
)

// Renderer produces a document payload from a state snapshot.
// Implementations must respect ctx cancellation and deadlines.
type Renderer interface {
	Render(ctx context.Context, kind string, snap *statehub.Snapshot) ([]byte, error)
}

// Failure wraps any error from the rendering collaborator so callers can
// distinguish a failed document step from a failed turn.
type Failure struct {
	Kind string
	Err  error
}

func (e *Failure) Error() string {
	return fmt.Sprintf("failed to render %s: %v", e.Kind, e.Err)
}

func (e *Failure) Unwrap() error {
	return e.Err
}

// ReportRenderer is the built-in renderer: a plain-text ROI report and a raw
// JSON state dump. It renders locally and ignores the context beyond an
// initial cancellation check.
type ReportRenderer struct {
	labeler func(field string) string
}

// NewReportRenderer creates a ReportRenderer. labeler maps internal field
// identifiers to display labels; nil means identifiers are used as-is.
func NewReportRenderer(labeler func(string) string) *ReportRenderer {
	if labeler == nil {
		labeler = func(s string) string { return s }
	}
	return &ReportRenderer{labeler: labeler}
}

// Render produces the requested document kind. Unknown kinds and context
// cancellation are returned as *Failure.
func (r *ReportRenderer) Render(ctx context.Context, kind string, snap *statehub.Snapshot) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Failure{Kind: kind, Err: err}
	}

	switch kind {
	case KindROIReport, "":
		return r.roiReport(snap), nil
	case KindStateJSON:
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return nil, &Failure{Kind: kind, Err: err}
		}
		return data, nil
	}
	return nil, &Failure{Kind: kind, Err: fmt.Errorf("unsupported document kind")}
}

// roiReport formats the full calculator state as a plain-text report.
func (r *ReportRenderer) roiReport(snap *statehub.Snapshot) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "Collections ROI Report\n")
	fmt.Fprintf(&b, "Generated: %s\n", time.UnixMilli(snap.UpdatedAtMs).UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "State version: %d\n\n", snap.Version)

	b.WriteString("Configuration\n")
	for _, name := range sortedKeys(snap.Modes) {
		fmt.Fprintf(&b, "  %-28s %s\n", r.labeler(name), snap.Modes[name])
	}
	b.WriteString("\nInputs\n")
	for _, name := range sortedKeys(snap.Inputs) {
		fmt.Fprintf(&b, "  %-28s %.2f\n", r.labeler(name), snap.Inputs[name])
	}
	b.WriteString("\nMetrics\n")
	for _, name := range sortedKeys(snap.Derived) {
		fmt.Fprintf(&b, "  %-28s %.2f\n", r.labeler(name), snap.Derived[name])
	}

	return []byte(b.String())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
