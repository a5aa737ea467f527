package model

// Delta is an atomic, fully-validated set of field changes. It is computed
// completely before being staged, then applied as one step or discarded
// entirely - never partially.
type Delta struct {
	Fields map[string]float64 // numeric input -> new absolute value
	Modes  map[string]string  // categorical input -> new value
}

// Empty reports whether the delta changes nothing.
func (d *Delta) Empty() bool {
	return len(d.Fields) == 0 && len(d.Modes) == 0
}

// Inverse returns the delta that undoes this one when applied after it:
// every touched field is mapped back to its value in prior. Fields unknown
// to prior are skipped; callers build inverses against the exact pre-apply
// state.
func (d *Delta) Inverse(prior *State) *Delta {
	inv := &Delta{
		Fields: make(map[string]float64, len(d.Fields)),
		Modes:  make(map[string]string, len(d.Modes)),
	}
	for name := range d.Fields {
		if v, ok := prior.Input(name); ok {
			inv.Fields[name] = v
		}
	}
	for name := range d.Modes {
		if v, ok := prior.Mode(name); ok {
			inv.Modes[name] = v
		}
	}
	return inv
}
