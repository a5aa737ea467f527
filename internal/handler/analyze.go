package handler

import (
	"context"

	"github.com/collectiq/copilot/internal/model"
)

// metricDrivers maps each derived metric to the inputs that feed it, in the
// order they matter for an explanation.
var metricDrivers = map[string][]string{
	model.MetricTotalCost:       {model.FieldAgentCount, model.FieldAvgAgentSalary, model.FieldMonthlyRent},
	model.MetricRecoveredAmount: {model.FieldAccountsAssigned, model.FieldAvgAccountBalance, model.FieldRecoveryRate},
	model.MetricRevenue:         {model.FieldCommissionRate, model.FieldRecoveryRate, model.FieldAccountsAssigned},
	model.MetricProfit:          {model.FieldCommissionRate, model.FieldRecoveryRate, model.FieldAgentCount, model.FieldAvgAgentSalary},
	model.MetricROI:             {model.FieldCommissionRate, model.FieldRecoveryRate, model.FieldAgentCount, model.FieldAvgAgentSalary},
	model.MetricPeakUtilization: {model.FieldAccountsAssigned, model.FieldAgentCount, model.FieldAccountsPerAgent},
	model.MetricCostPerAccount:  {model.FieldAgentCount, model.FieldAvgAgentSalary, model.FieldMonthlyRent, model.FieldAccountsAssigned},
}

// overviewMetrics is what an unscoped "how are we doing" question reports.
var overviewMetrics = []string{
	model.MetricProfit,
	model.MetricROI,
	model.MetricRecoveredAmount,
	model.MetricPeakUtilization,
}

// Analyze answers metric questions from the live state. It is a pure read:
// no delta, no version change, no side effects.
type Analyze struct{}

// NewAnalyze creates the analyze handler.
func NewAnalyze() *Analyze {
	return &Analyze{}
}

func (h *Analyze) Name() string { return "analyze" }

// Handle reports the questioned metric and the input values that drive it.
// A question with no recognizable metric gets the overview.
func (h *Analyze) Handle(_ context.Context, args Args) (*Result, error) {
	metric := args.Intent.Metric
	if !model.IsDerived(metric) {
		metric = ""
	}

	var facts []Fact
	if metric == "" {
		for _, m := range overviewMetrics {
			value, _ := args.State.Metric(m)
			facts = append(facts, Fact{Kind: FactMetricObserved, Field: m, After: value})
		}
		return &Result{Facts: facts}, nil
	}

	value, _ := args.State.Metric(metric)
	facts = append(facts, Fact{Kind: FactMetricObserved, Field: metric, After: value})
	for _, driver := range metricDrivers[metric] {
		v, _ := args.State.Input(driver)
		facts = append(facts, Fact{
			Kind:   FactMetricObserved,
			Field:  driver,
			After:  v,
			Detail: "driver",
		})
	}

	return &Result{Facts: facts}, nil
}
