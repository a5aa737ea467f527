// Package compose builds the narrative channel of a response from handler
// facts. The two output channels stay strictly separated: the narrative is
// prose built over display labels and never leaks internal field
// identifiers, and the delta is the machine channel and never carries prose.
package compose

import (
	"errors"
	"fmt"
	"strings"

	"github.com/collectiq/copilot/internal/handler"
	"github.com/collectiq/copilot/internal/intent"
	"github.com/collectiq/copilot/internal/model"
	"github.com/collectiq/copilot/internal/render"
)

// percentMetrics render with a % suffix.
var percentMetrics = map[string]bool{
	model.MetricROI:             true,
	model.MetricPeakUtilization: true,
	model.FieldCommissionRate:   true,
	model.FieldRecoveryRate:     true,
}

// Narrative renders a handler result as user-facing prose.
func Narrative(res *handler.Result) string {
	if res == nil || len(res.Facts) == 0 {
		return "Done."
	}

	var sentences []string
	if res.Scenario != "" {
		sentences = append(sentences, fmt.Sprintf("Evaluated the %q scenario without changing your live numbers.", res.Scenario))
	}

	var shifts []string
	var observed []string
	var drivers []string
	for _, f := range res.Facts {
		switch f.Kind {
		case handler.FactFieldChanged:
			if res.Scenario != "" {
				sentences = append(sentences, fmt.Sprintf("Assumed %s at %s (was %s).",
					model.Label(f.Field), formatValue(f.Field, f.After), formatValue(f.Field, f.Before)))
			} else {
				sentences = append(sentences, fmt.Sprintf("Set %s to %s (was %s).",
					model.Label(f.Field), formatValue(f.Field, f.After), formatValue(f.Field, f.Before)))
			}
		case handler.FactModeChanged:
			sentences = append(sentences, fmt.Sprintf("Switched %s to %s (was %s).",
				model.Label(f.Field), modeLabel(f.Field, f.ToMode), modeLabel(f.Field, f.FromMode)))
		case handler.FactMetricShifted:
			shifts = append(shifts, fmt.Sprintf("%s %s -> %s",
				model.Label(f.Field), formatValue(f.Field, f.Before), formatValue(f.Field, f.After)))
		case handler.FactMetricObserved:
			line := fmt.Sprintf("%s is %s", model.Label(f.Field), formatValue(f.Field, f.After))
			if f.Detail == "driver" {
				drivers = append(drivers, line)
			} else {
				observed = append(observed, line)
			}
		case handler.FactDocumentRendered:
			sentences = append(sentences, fmt.Sprintf("Generated your %s (%d bytes); fetch it with the attached handle.",
				documentLabel(f.Detail), int64(f.After)))
		}
	}

	if len(observed) > 0 {
		sentences = append(sentences, "Currently: "+strings.Join(observed, ", ")+".")
	}
	if len(drivers) > 0 {
		sentences = append(sentences, "Driven by: "+strings.Join(drivers, ", ")+".")
	}
	if len(shifts) > 0 {
		sentences = append(sentences, "Impact: "+strings.Join(shifts, "; ")+".")
	}

	return strings.Join(sentences, " ")
}

// Clarification renders an unroutable utterance's response. reason is the
// router's internal diagnostic and is logged, not shown.
func Clarification(reason string) string {
	if reason == intent.ReasonInferenceUnavailable {
		return "I could not reach the language model just now. Please try again in a moment."
	}
	return "I did not catch what you want to do. You can change a number, ask about a metric, try a what-if, or request a report."
}

// ErrorNarrative maps a handler failure to user-facing prose. The machine
// channel stays empty on every error path; detail travels here only.
func ErrorNarrative(err error) string {
	var oor *model.OutOfRangeError
	if errors.As(err, &oor) {
		return fmt.Sprintf("I cannot set %s to %s; the allowed range is %s to %s. Nothing was changed.",
			model.Label(oor.Field), formatValue(oor.Field, oor.Value),
			formatValue(oor.Field, oor.Min), formatValue(oor.Field, oor.Max))
	}

	var inv *model.InvalidFieldError
	if errors.As(err, &inv) {
		return fmt.Sprintf("I do not know a field called %q, so nothing was changed.", inv.Field)
	}

	var stale *handler.StaleContextError
	if errors.As(err, &stale) {
		return "Your view of the numbers is out of date. Please refresh and try again."
	}

	var renderErr *render.Failure
	if errors.As(err, &renderErr) {
		return "I could not generate the document. Your numbers are unchanged; please try again."
	}

	return "Something went wrong handling that request. Nothing was changed."
}

// AlertMessage renders a proactive alert suggestion.
func AlertMessage(metric string, value, threshold float64, direction string) string {
	relation := "risen above"
	if direction == "below" {
		relation = "fallen below"
	}
	msg := fmt.Sprintf("%s has %s %s (now %s).",
		model.Label(metric), relation,
		formatValue(metric, threshold), formatValue(metric, value))

	switch metric {
	case model.MetricPeakUtilization:
		msg += " Your team is over capacity; consider adding agents or switching to the augmentation strategy."
	case model.MetricROI:
		msg += " The operation is running at a loss; consider reviewing cost or recovery assumptions."
	}
	return msg
}

// formatValue renders a numeric value for prose, with a % suffix on rate
// metrics and trailing zeros trimmed elsewhere.
func formatValue(field string, v float64) string {
	if percentMetrics[field] {
		return fmt.Sprintf("%.1f%%", v)
	}
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

// modeLabel renders a categorical value for prose.
func modeLabel(field, value string) string {
	if field == model.FieldActiveBucket {
		return model.BucketLabel(value)
	}
	return value
}

// documentLabel renders a document kind for prose.
func documentLabel(kind string) string {
	switch kind {
	case render.KindROIReport:
		return "ROI report"
	case render.KindStateJSON:
		return "state export"
	}
	return "document"
}
