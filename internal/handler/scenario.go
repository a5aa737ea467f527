package handler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/collectiq/copilot/internal/config"
	"github.com/collectiq/copilot/internal/model"
)

// Scenario evaluates a hypothetical on a branch of the live state. The
// branch shares nothing with the live state and is discarded after the
// comparison: a scenario never changes the live numbers and never bumps the
// version.
type Scenario struct {
	ranges map[string]config.FieldRange
}

// NewScenario creates the scenario handler with the configured legal ranges.
func NewScenario(ranges map[string]config.FieldRange) *Scenario {
	return &Scenario{ranges: ranges}
}

func (h *Scenario) Name() string { return "scenario" }

// Handle applies the substituted values to a branch, recomputes, and reports
// each key metric as a live-versus-branch shift. The scenario is labeled so
// later turns can refer back to it.
func (h *Scenario) Handle(_ context.Context, args Args) (*Result, error) {
	delta := &model.Delta{
		Fields: make(map[string]float64),
		Modes:  make(map[string]string),
	}
	for field, value := range args.Intent.Overrides {
		if !model.IsNumericInput(field) {
			return nil, &model.InvalidFieldError{Field: field}
		}
		if r, ok := h.ranges[field]; ok && (value < r.Min || value > r.Max) {
			return nil, &model.OutOfRangeError{Field: field, Value: value, Min: r.Min, Max: r.Max}
		}
		delta.Fields[field] = value
	}
	if bucket := args.Intent.Bucket; bucket != "" {
		delta.Modes[model.FieldActiveBucket] = bucket
	}
	if mode := args.Intent.StrategyMode; mode != "" {
		delta.Modes[model.FieldStrategyMode] = mode
	}
	if delta.Empty() {
		return nil, fmt.Errorf("hypothetical with nothing substituted")
	}

	branch := args.State.Branch()
	if err := branch.Apply(delta); err != nil {
		return nil, err
	}

	label := args.Intent.Scenario
	if label == "" {
		label = scenarioLabel(delta)
	}

	facts := []Fact{}
	for field, value := range delta.Fields {
		prior, _ := args.State.Input(field)
		facts = append(facts, Fact{
			Kind:   FactFieldChanged,
			Field:  field,
			Before: prior,
			After:  value,
			Detail: label,
		})
	}
	for field, value := range delta.Modes {
		prior, _ := args.State.Mode(field)
		facts = append(facts, Fact{
			Kind:     FactModeChanged,
			Field:    field,
			FromMode: prior,
			ToMode:   value,
			Detail:   label,
		})
	}
	sort.Slice(facts, func(i, j int) bool { return facts[i].Field < facts[j].Field })

	for _, metric := range keyMetrics {
		before, _ := args.State.Metric(metric)
		after, _ := branch.Metric(metric)
		facts = append(facts, Fact{
			Kind:   FactMetricShifted,
			Field:  metric,
			Before: before,
			After:  after,
			Detail: label,
		})
	}

	return &Result{Facts: facts, Scenario: label}, nil
}

// scenarioLabel derives a stable label from what the scenario substitutes.
// Built over display labels - the label surfaces on the narrative channel.
func scenarioLabel(delta *model.Delta) string {
	parts := make([]string, 0, len(delta.Fields)+len(delta.Modes))
	for field, value := range delta.Fields {
		parts = append(parts, fmt.Sprintf("%s %g", model.Label(field), value))
	}
	for field, value := range delta.Modes {
		if field == model.FieldActiveBucket {
			parts = append(parts, model.BucketLabel(value))
		} else {
			parts = append(parts, value)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
