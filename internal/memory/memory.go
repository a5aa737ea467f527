// Package memory implements ThreadMemory, the "golden thread" of a session:
// an append-only, ordered log of conversation turns plus the entities each
// turn introduced (buckets, scenarios). Reference resolution walks the log
// backward from the latest turn, so a reference always binds to the most
// recent turn that defines the entity - never a future one. The log grows
// for the session's lifetime and is discarded only at session teardown.
package memory

import "time"

// EntityKind tags the kind of entity a turn introduced.
type EntityKind string

const (
	// EntityBucket is a debt bucket mentioned or selected in a turn
	EntityBucket EntityKind = "bucket"

	// EntityScenario is a named hypothetical branch evaluated in a turn
	EntityScenario EntityKind = "scenario"
)

// Entity is a named thing a turn introduced, resolvable by later turns.
type Entity struct {
	Kind EntityKind // what sort of entity this is
	Name string     // canonical identifier, e.g. "b_1" or a scenario label
}

// Change records one applied field change, kept as conversational context
// ("the last few things the user did") for the inference prompt.
type Change struct {
	Field string
	From  float64
	To    float64
}

// Turn is one completed request/response cycle.
type Turn struct {
	ID        string    // UUID of the originating request
	Utterance string    // raw user input
	Category  string    // resolved intent category
	Handler   string    // which capability handler ran (diagnostics trail)
	Version   int64     // ModelState version when the turn started
	Entities  []Entity  // entities this turn introduced
	Changes   []Change  // field changes this turn applied
	At        time.Time // completion time
}

// ThreadMemory is the ordered turn history for one session. It is owned by
// the session's worker goroutine and is not safe for concurrent use.
type ThreadMemory struct {
	turns []Turn
}

// New creates an empty ThreadMemory.
func New() *ThreadMemory {
	return &ThreadMemory{}
}

// Append adds a completed turn to the end of the log.
func (m *ThreadMemory) Append(turn Turn) {
	m.turns = append(m.turns, turn)
}

// Len returns the number of recorded turns.
func (m *ThreadMemory) Len() int {
	return len(m.turns)
}

// Last returns the most recent n turns, oldest first. Returns all turns if
// fewer than n exist.
func (m *ThreadMemory) Last(n int) []Turn {
	if n <= 0 {
		return nil
	}
	start := len(m.turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(m.turns)-start)
	copy(out, m.turns[start:])
	return out
}

// Resolve finds the most recently defined entity of the given kind by
// walking the turn log backward from the latest turn. Resolution is strictly
// causal: an entity is only visible to turns at or after the one that
// defined it. Returns false if no turn defines such an entity.
func (m *ThreadMemory) Resolve(kind EntityKind) (Entity, bool) {
	for i := len(m.turns) - 1; i >= 0; i-- {
		entities := m.turns[i].Entities
		for j := len(entities) - 1; j >= 0; j-- {
			if entities[j].Kind == kind {
				return entities[j], true
			}
		}
	}
	return Entity{}, false
}

// ResolveNamed finds the most recent entity of the given kind with the given
// name, walking backward. Used for references like "the churn scenario".
func (m *ThreadMemory) ResolveNamed(kind EntityKind, name string) (Entity, bool) {
	for i := len(m.turns) - 1; i >= 0; i-- {
		entities := m.turns[i].Entities
		for j := len(entities) - 1; j >= 0; j-- {
			if entities[j].Kind == kind && entities[j].Name == name {
				return entities[j], true
			}
		}
	}
	return Entity{}, false
}

// RecentChanges returns up to n of the most recently applied field changes,
// newest first, walking backward through the turn log.
func (m *ThreadMemory) RecentChanges(n int) []Change {
	if n <= 0 {
		return nil
	}
	var out []Change
	for i := len(m.turns) - 1; i >= 0 && len(out) < n; i-- {
		changes := m.turns[i].Changes
		for j := len(changes) - 1; j >= 0 && len(out) < n; j-- {
			out = append(out, changes[j])
		}
	}
	return out
}
