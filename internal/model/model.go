// Package model implements the versioned financial ModelState for one
// session: the collections-ROI calculator inputs and the derived metrics
// recomputed from them. Derived fields are always recomputed transactionally
// with any input mutation; every mutation increments a monotonic version
// counter. A State is owned exclusively by one session and is not safe for
// concurrent mutation - the engine serializes access per session.
package model

import (
	"fmt"
	"math"

	"github.com/collectiq/copilot/pkg/statehub"
)

// Numeric input fields.
const (
	FieldAgentCount        = "agentCount"
	FieldMonthlyRent       = "monthlyRent"
	FieldAvgAgentSalary    = "avgAgentSalary"
	FieldCommissionRate    = "commissionRate"
	FieldAccountsAssigned  = "accountsAssigned"
	FieldAvgAccountBalance = "avgAccountBalance"
	FieldRecoveryRate      = "recoveryRate"
	FieldAccountsPerAgent  = "accountsPerAgent"
)

// Categorical input fields.
const (
	FieldActiveBucket = "activeBucket"
	FieldStrategyMode = "strategyMode"
)

// Debt bucket identifiers.
const (
	BucketEarly   = "b_x" // pre-delinquency outreach
	BucketOne     = "b_1" // 30-60 days past due
	BucketTwo     = "b_2" // 60-90 days past due
	BucketNPA     = "npa" // non-performing accounts
)

// Strategy modes. Augmentation raises effective per-agent capacity by a
// fixed factor (AI assistance handles part of each agent's account load).
const (
	ModeDisplacement = "displacement"
	ModeAugmentation = "augmentation"
)

// augmentationCapacityBoost is the effective-capacity multiplier applied to
// accountsPerAgent when strategyMode is augmentation.
const augmentationCapacityBoost = 1.35

// Derived metric fields, recomputed from inputs by the fixed formula set.
const (
	MetricTotalCost       = "totalCost"
	MetricRecoveredAmount = "recoveredAmount"
	MetricRevenue         = "revenue"
	MetricProfit          = "profit"
	MetricROI             = "roi"
	MetricPeakUtilization = "peakUtilization"
	MetricCostPerAccount  = "costPerAccount"
)

// fieldLabels maps internal field identifiers to the human-readable labels
// used on the narrative channel. The narrative never carries the raw
// identifiers on the left of this table.
var fieldLabels = map[string]string{
	FieldAgentCount:        "agent count",
	FieldMonthlyRent:       "monthly rent",
	FieldAvgAgentSalary:    "average agent salary",
	FieldCommissionRate:    "commission rate",
	FieldAccountsAssigned:  "assigned accounts",
	FieldAvgAccountBalance: "average account balance",
	FieldRecoveryRate:      "recovery rate",
	FieldAccountsPerAgent:  "accounts per agent",
	FieldActiveBucket:      "active bucket",
	FieldStrategyMode:      "strategy mode",
	MetricTotalCost:        "total operating cost",
	MetricRecoveredAmount:  "recovered amount",
	MetricRevenue:          "commission revenue",
	MetricProfit:           "profit",
	MetricROI:              "return on investment",
	MetricPeakUtilization:  "peak utilization",
	MetricCostPerAccount:   "cost per account",
}

// bucketLabels maps bucket identifiers to display names.
var bucketLabels = map[string]string{
	BucketEarly: "Bucket X",
	BucketOne:   "Bucket 1",
	BucketTwo:   "Bucket 2",
	BucketNPA:   "NPA",
}

// Label returns the human-readable label for a field or metric identifier.
// Unknown identifiers fall back to themselves so narratives degrade readably.
func Label(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	return field
}

// BucketLabel returns the display name for a bucket identifier.
func BucketLabel(bucket string) string {
	if label, ok := bucketLabels[bucket]; ok {
		return label
	}
	return bucket
}

// IsNumericInput reports whether name is a mutable numeric input field.
func IsNumericInput(name string) bool {
	switch name {
	case FieldAgentCount, FieldMonthlyRent, FieldAvgAgentSalary,
		FieldCommissionRate, FieldAccountsAssigned, FieldAvgAccountBalance,
		FieldRecoveryRate, FieldAccountsPerAgent:
		return true
	}
	return false
}

// IsMode reports whether name is a categorical input field.
func IsMode(name string) bool {
	return name == FieldActiveBucket || name == FieldStrategyMode
}

// IsDerived reports whether name is a derived metric field.
func IsDerived(name string) bool {
	switch name {
	case MetricTotalCost, MetricRecoveredAmount, MetricRevenue, MetricProfit,
		MetricROI, MetricPeakUtilization, MetricCostPerAccount:
		return true
	}
	return false
}

// ValidMode reports whether value is a legal setting for the given
// categorical field.
func ValidMode(field, value string) bool {
	switch field {
	case FieldActiveBucket:
		_, ok := bucketLabels[value]
		return ok
	case FieldStrategyMode:
		return value == ModeDisplacement || value == ModeAugmentation
	}
	return false
}

// State is the live financial model for one session: inputs plus derived
// metrics, with a monotonic version counter.
type State struct {
	sessionID string
	version   int64
	inputs    map[string]float64
	modes     map[string]string
	derived   map[string]float64
}

// New creates a State seeded with the default calculator configuration at
// version 0.
func New(sessionID string) *State {
	inputs := map[string]float64{
		FieldAgentCount:        40,
		FieldMonthlyRent:       12000,
		FieldAvgAgentSalary:    3500,
		FieldCommissionRate:    25,
		FieldAccountsAssigned:  33000,
		FieldAvgAccountBalance: 850,
		FieldRecoveryRate:      12,
		FieldAccountsPerAgent:  900,
	}
	modes := map[string]string{
		FieldActiveBucket: BucketEarly,
		FieldStrategyMode: ModeDisplacement,
	}
	return &State{
		sessionID: sessionID,
		version:   0,
		inputs:    inputs,
		modes:     modes,
		derived:   Recompute(inputs, modes),
	}
}

// FromSnapshot reconstructs a State from a persisted snapshot, recomputing
// derived metrics from the stored inputs. A snapshot whose stored derived
// values disagree with the recomputation is rejected as corrupt.
func FromSnapshot(snap *statehub.Snapshot) (*State, error) {
	inputs := make(map[string]float64, len(snap.Inputs))
	for name, value := range snap.Inputs {
		if !IsNumericInput(name) {
			return nil, &InvalidFieldError{Field: name}
		}
		inputs[name] = value
	}
	modes := make(map[string]string, len(snap.Modes))
	for name, value := range snap.Modes {
		if !IsMode(name) {
			return nil, &InvalidFieldError{Field: name}
		}
		if !ValidMode(name, value) {
			return nil, fmt.Errorf("invalid %s value %q in snapshot", name, value)
		}
		modes[name] = value
	}

	derived := Recompute(inputs, modes)
	if len(snap.Derived) > 0 && !metricsEqual(derived, snap.Derived) {
		return nil, &InvariantError{
			Reason: fmt.Sprintf("snapshot derived metrics drifted from inputs at version %d", snap.Version),
		}
	}

	return &State{
		sessionID: snap.SessionID,
		version:   snap.Version,
		inputs:    inputs,
		modes:     modes,
		derived:   derived,
	}, nil
}

// Snapshot returns the persistable form of the state.
func (s *State) Snapshot() *statehub.Snapshot {
	return &statehub.Snapshot{
		SessionID: s.sessionID,
		Version:   s.version,
		Inputs:    s.Inputs(),
		Modes:     s.Modes(),
		Derived:   s.Derived(),
	}
}

// SessionID returns the owning session's ID.
func (s *State) SessionID() string {
	return s.sessionID
}

// Version returns the current monotonic version counter.
func (s *State) Version() int64 {
	return s.version
}

// Input returns a numeric input value.
func (s *State) Input(name string) (float64, bool) {
	v, ok := s.inputs[name]
	return v, ok
}

// Mode returns a categorical input value.
func (s *State) Mode(name string) (string, bool) {
	v, ok := s.modes[name]
	return v, ok
}

// Metric returns a derived metric value.
func (s *State) Metric(name string) (float64, bool) {
	v, ok := s.derived[name]
	return v, ok
}

// Inputs returns a copy of all numeric inputs.
func (s *State) Inputs() map[string]float64 {
	out := make(map[string]float64, len(s.inputs))
	for k, v := range s.inputs {
		out[k] = v
	}
	return out
}

// Modes returns a copy of all categorical inputs.
func (s *State) Modes() map[string]string {
	out := make(map[string]string, len(s.modes))
	for k, v := range s.modes {
		out[k] = v
	}
	return out
}

// Derived returns a copy of all derived metrics.
func (s *State) Derived() map[string]float64 {
	out := make(map[string]float64, len(s.derived))
	for k, v := range s.derived {
		out[k] = v
	}
	return out
}

// Branch returns a copy-on-write snapshot of the state for hypothetical
// evaluation. The branch shares nothing with the live state; mutations to it
// never become observable through the original.
func (s *State) Branch() *State {
	return &State{
		sessionID: s.sessionID,
		version:   s.version,
		inputs:    s.Inputs(),
		modes:     s.Modes(),
		derived:   s.Derived(),
	}
}

// Apply commits a fully-validated delta as one atomic step: the new input
// set and the recomputed derived metrics become observable together, and the
// version increments exactly once. On any validation failure the state is
// left untouched. The staged maps are verified by an independent recompute
// before the swap; a mismatch is an InvariantError and the caller must treat
// the session as suspect.
func (s *State) Apply(d *Delta) error {
	if d == nil || d.Empty() {
		return fmt.Errorf("cannot apply empty delta")
	}

	// Stage everything before anything becomes observable
	inputs := s.Inputs()
	modes := s.Modes()
	for name, value := range d.Fields {
		if !IsNumericInput(name) {
			return &InvalidFieldError{Field: name}
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("field %s: value must be finite", name)
		}
		inputs[name] = value
	}
	for name, value := range d.Modes {
		if !IsMode(name) {
			return &InvalidFieldError{Field: name}
		}
		if !ValidMode(name, value) {
			return fmt.Errorf("invalid %s value %q", name, value)
		}
		modes[name] = value
	}

	derived := Recompute(inputs, modes)
	if !metricsEqual(derived, Recompute(inputs, modes)) {
		return &InvariantError{Reason: "derived-field recomputation is not deterministic"}
	}

	// Commit
	s.inputs = inputs
	s.modes = modes
	s.derived = derived
	s.version++

	return nil
}

// Recompute evaluates the fixed formula set over a full input set. It is a
// pure function: the stored derived metrics of any reachable State equal
// Recompute over its stored inputs.
func Recompute(inputs map[string]float64, modes map[string]string) map[string]float64 {
	agentCount := inputs[FieldAgentCount]
	accounts := inputs[FieldAccountsAssigned]

	totalCost := agentCount*inputs[FieldAvgAgentSalary] + inputs[FieldMonthlyRent]
	recovered := accounts * inputs[FieldAvgAccountBalance] * inputs[FieldRecoveryRate] / 100
	revenue := recovered * inputs[FieldCommissionRate] / 100
	profit := revenue - totalCost

	roi := 0.0
	if totalCost > 0 {
		roi = profit / totalCost * 100
	}

	capacity := agentCount * inputs[FieldAccountsPerAgent]
	if modes[FieldStrategyMode] == ModeAugmentation {
		capacity *= augmentationCapacityBoost
	}
	peakUtilization := 0.0
	if capacity > 0 {
		peakUtilization = accounts / capacity * 100
	}

	costPerAccount := 0.0
	if accounts > 0 {
		costPerAccount = totalCost / accounts
	}

	return map[string]float64{
		MetricTotalCost:       totalCost,
		MetricRecoveredAmount: recovered,
		MetricRevenue:         revenue,
		MetricProfit:          profit,
		MetricROI:             roi,
		MetricPeakUtilization: peakUtilization,
		MetricCostPerAccount:  costPerAccount,
	}
}

// metricsEqual compares two derived metric sets for exact equality.
func metricsEqual(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || va != vb {
			return false
		}
	}
	return true
}
