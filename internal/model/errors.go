package model

import "fmt"

// InvalidFieldError indicates a request referenced a field that does not
// exist in the model. Recovered at the handler boundary and surfaced as an
// ordinary response - no mutation occurs.
type InvalidFieldError struct {
	Field string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("unknown model field: %q", e.Field)
}

// OutOfRangeError indicates a requested change would push a field outside
// its configured legal range. No delta is produced.
type OutOfRangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("field %s: value %g outside legal range [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

// InvariantError indicates the model's internal consistency was violated
// (derived-field recomputation mismatch, corrupt snapshot). Fatal to the
// session: it must not be swallowed, and the session's state must be
// reconstructed from the last known-good snapshot rather than continued.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("model invariant violated: %s", e.Reason)
}
