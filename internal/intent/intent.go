// Package intent classifies incoming utterances into the closed set of
// capability categories and extracts structured arguments. The external
// inference call proposes categories and raw arguments; everything after
// that - tie-breaking, reference resolution, required-argument checks - is
// deterministic and testable without the model.
package intent

// Category is one of the fixed capability categories. The set is closed so
// dispatch stays exhaustive and statically checkable.
type Category string

const (
	CategoryModify   Category = "modify"
	CategoryAnalyze  Category = "analyze"
	CategoryScenario Category = "scenario"
	CategoryDocument Category = "document"
	CategoryUnknown  Category = "unknown"
)

// categoryPriority breaks ties between equally plausible categories: an
// explicit instruction to change a number outranks a hypothetical, which
// outranks a question, which outranks a document request. Higher wins.
var categoryPriority = map[Category]int{
	CategoryModify:   4,
	CategoryScenario: 3,
	CategoryAnalyze:  2,
	CategoryDocument: 1,
	CategoryUnknown:  0,
}

// Validate-style check used when normalizing model output.
func validCategory(c Category) bool {
	switch c {
	case CategoryModify, CategoryAnalyze, CategoryScenario, CategoryDocument:
		return true
	}
	return false
}

// Operator describes how a field change is expressed.
type Operator string

const (
	// OpSet assigns an absolute value ("set agent count to 50")
	OpSet Operator = "set"

	// OpIncrease raises the current value by an amount or percentage
	OpIncrease Operator = "increase"

	// OpDecrease lowers the current value by an amount or percentage
	OpDecrease Operator = "decrease"
)

// FieldChange is one requested change to a numeric field. Percent marks
// Value as relative ("reduce rent by 10%") rather than absolute.
type FieldChange struct {
	Field   string
	Op      Operator
	Value   float64
	Percent bool
}

// ReasonInferenceUnavailable marks a classification that degraded to
// Unknown because the language model could not be reached. The composer
// matches on it to suggest a retry instead of a generic clarification.
const ReasonInferenceUnavailable = "inference unavailable"

// Classification is the router's result for one utterance. CategoryUnknown
// is terminal for the turn: no handler runs and Reason carries the
// diagnostic used to build the clarification response.
type Classification struct {
	Category Category
	Reason   string // why classification degraded, set only for Unknown

	// Arguments, populated per category
	FieldChanges []FieldChange      // Modify
	Bucket       string             // Scenario/Analyze: resolved bucket id, "" if unresolved
	Scenario     string             // Scenario: label of the hypothetical
	Overrides    map[string]float64 // Scenario: substituted field values
	StrategyMode string             // Scenario: proposed strategy mode
	Metric       string             // Analyze: metric under question
	DocumentKind string             // Document: requested document type
}
