package handler

import (
	"context"
	"fmt"

	"github.com/collectiq/copilot/internal/config"
	"github.com/collectiq/copilot/internal/intent"
	"github.com/collectiq/copilot/internal/model"
)

// keyMetrics are the derived metrics worth narrating when they shift.
var keyMetrics = []string{
	model.MetricProfit,
	model.MetricROI,
	model.MetricPeakUtilization,
}

// Modify turns requested field changes into a fully-validated delta. The
// delta is all-or-nothing: one invalid change rejects the whole request and
// nothing reaches the live state.
type Modify struct {
	ranges map[string]config.FieldRange
}

// NewModify creates the modify handler with the configured legal ranges.
func NewModify(ranges map[string]config.FieldRange) *Modify {
	return &Modify{ranges: ranges}
}

func (h *Modify) Name() string { return "modify" }

// Handle validates every requested change against the current state and the
// configured ranges, then returns the delta plus facts describing the field
// movements and the resulting metric shifts. The live state is untouched;
// the engine commits the delta.
func (h *Modify) Handle(_ context.Context, args Args) (*Result, error) {
	delta := &model.Delta{
		Fields: make(map[string]float64),
		Modes:  make(map[string]string),
	}
	var facts []Fact

	for _, fc := range args.Intent.FieldChanges {
		if !model.IsNumericInput(fc.Field) {
			return nil, &model.InvalidFieldError{Field: fc.Field}
		}
		current, _ := args.State.Input(fc.Field)
		if staged, ok := delta.Fields[fc.Field]; ok {
			current = staged
		}

		next, err := applyOp(fc.Op, current, fc.Value, fc.Percent)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fc.Field, err)
		}
		if r, ok := h.ranges[fc.Field]; ok && (next < r.Min || next > r.Max) {
			return nil, &model.OutOfRangeError{Field: fc.Field, Value: next, Min: r.Min, Max: r.Max}
		}

		delta.Fields[fc.Field] = next
		facts = append(facts, Fact{
			Kind:   FactFieldChanged,
			Field:  fc.Field,
			Before: current,
			After:  next,
		})
	}

	if bucket := args.Intent.Bucket; bucket != "" {
		prior, _ := args.State.Mode(model.FieldActiveBucket)
		if bucket != prior {
			delta.Modes[model.FieldActiveBucket] = bucket
			facts = append(facts, Fact{
				Kind:     FactModeChanged,
				Field:    model.FieldActiveBucket,
				FromMode: prior,
				ToMode:   bucket,
			})
		}
	}
	if mode := args.Intent.StrategyMode; mode != "" {
		prior, _ := args.State.Mode(model.FieldStrategyMode)
		if mode != prior {
			delta.Modes[model.FieldStrategyMode] = mode
			facts = append(facts, Fact{
				Kind:     FactModeChanged,
				Field:    model.FieldStrategyMode,
				FromMode: prior,
				ToMode:   mode,
			})
		}
	}

	if delta.Empty() {
		return nil, fmt.Errorf("no effective change requested")
	}

	// Preview the committed result on a branch so the narrative can report
	// the metric impact without touching the live state.
	preview := args.State.Branch()
	if err := preview.Apply(delta); err != nil {
		return nil, err
	}
	for _, metric := range keyMetrics {
		before, _ := args.State.Metric(metric)
		after, _ := preview.Metric(metric)
		if before != after {
			facts = append(facts, Fact{
				Kind:   FactMetricShifted,
				Field:  metric,
				Before: before,
				After:  after,
			})
		}
	}

	return &Result{Delta: delta, Facts: facts}, nil
}

// applyOp computes the absolute target value for one field change.
func applyOp(op intent.Operator, current, value float64, percent bool) (float64, error) {
	amount := value
	if percent {
		amount = current * value / 100
	}
	switch op {
	case intent.OpSet:
		if percent {
			return 0, fmt.Errorf("cannot set to a percentage")
		}
		return value, nil
	case intent.OpIncrease:
		return current + amount, nil
	case intent.OpDecrease:
		return current - amount, nil
	}
	return 0, fmt.Errorf("unknown operation %q", op)
}
