package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/collectiq/copilot/internal/inference"
	"github.com/collectiq/copilot/internal/memory"
	"github.com/collectiq/copilot/internal/model"
)

// contextTurns and contextChanges bound how much thread history rides along
// with each inference call.
const (
	contextTurns   = 5
	contextChanges = 5
)

// Router classifies utterances. It is a pure function of its inputs plus one
// external inference call; the inference call is retried at most once, and
// only on transport failure.
type Router struct {
	client inference.Client
	log    *zap.Logger
}

// NewRouter creates a router over the given inference collaborator.
func NewRouter(client inference.Client, log *zap.Logger) *Router {
	return &Router{client: client, log: log}
}

// Classify routes one utterance. Inference failures degrade to
// CategoryUnknown with a diagnostic reason; they never propagate as errors.
func (r *Router) Classify(ctx context.Context, utterance string, mem *memory.ThreadMemory, state *model.State) Classification {
	req := r.buildRequest(utterance, mem, state)

	result, err := r.client.Classify(ctx, req)
	if err != nil {
		var transient *inference.TransientError
		if errors.As(err, &transient) {
			r.log.Warn("inference call failed, retrying once",
				zap.String("session_id", state.SessionID()),
				zap.Error(err))
			result, err = r.client.Classify(ctx, req)
		}
	}
	if err != nil {
		r.log.Warn("classification unavailable",
			zap.String("session_id", state.SessionID()),
			zap.Error(err))
		return Classification{
			Category: CategoryUnknown,
			Reason:   ReasonInferenceUnavailable,
		}
	}

	return r.normalize(result, mem, state)
}

// buildRequest assembles the inference request context from the thread
// memory and the live state.
func (r *Router) buildRequest(utterance string, mem *memory.ThreadMemory, state *model.State) *inference.Request {
	summary, err := json.Marshal(map[string]any{
		"version": state.Version(),
		"inputs":  state.Inputs(),
		"modes":   state.Modes(),
		"metrics": state.Derived(),
	})
	if err != nil {
		// Maps of primitives always marshal; guard anyway
		summary = []byte("{}")
	}

	var turns []string
	for _, turn := range mem.Last(contextTurns) {
		turns = append(turns, fmt.Sprintf("user: %s (intent: %s)", turn.Utterance, turn.Category))
	}

	var changes []string
	for _, change := range mem.RecentChanges(contextChanges) {
		changes = append(changes, fmt.Sprintf("%s: %g -> %g", change.Field, change.From, change.To))
	}

	return &inference.Request{
		Utterance:     utterance,
		StateSummary:  string(summary),
		RecentTurns:   turns,
		RecentChanges: changes,
	}
}

// normalize turns a raw inference result into a deterministic
// Classification: tie-break by fixed priority, resolve references against
// the thread memory, and downgrade to Unknown when a required argument is
// missing.
func (r *Router) normalize(result *inference.Result, mem *memory.ThreadMemory, state *model.State) Classification {
	category := pickCategory(result.Categories)
	if category == CategoryUnknown {
		return Classification{
			Category: CategoryUnknown,
			Reason:   "no recognizable capability category",
		}
	}

	c := Classification{Category: category}

	for _, fc := range result.FieldChanges {
		op := Operator(fc.Op)
		if op != OpSet && op != OpIncrease && op != OpDecrease {
			continue
		}
		c.FieldChanges = append(c.FieldChanges, FieldChange{
			Field:   fc.Field,
			Op:      op,
			Value:   fc.Value,
			Percent: fc.Percent,
		})
	}

	c.Bucket = resolveBucket(result.BucketRef, mem, state)
	c.Scenario = resolveScenario(result.ScenarioRef, mem)
	if len(result.ScenarioOverrides) > 0 {
		c.Overrides = result.ScenarioOverrides
	}
	if result.StrategyMode == model.ModeDisplacement || result.StrategyMode == model.ModeAugmentation {
		c.StrategyMode = result.StrategyMode
	}
	c.Metric = result.MetricRef
	c.DocumentKind = result.DocumentKind

	// Required-argument checks: a missing argument downgrades to Unknown
	// only when the category cannot proceed without it.
	switch category {
	case CategoryModify:
		if len(c.FieldChanges) == 0 {
			return Classification{
				Category: CategoryUnknown,
				Reason:   "change request without a usable field change",
			}
		}
	case CategoryScenario:
		if len(c.Overrides) == 0 && c.StrategyMode == "" {
			return Classification{
				Category: CategoryUnknown,
				Reason:   "hypothetical without any substituted values",
			}
		}
	}

	return c
}

// pickCategory returns the highest-priority valid category from the model's
// candidates. Ties are impossible by construction: the priority order is
// total over the closed category set.
func pickCategory(candidates []string) Category {
	best := CategoryUnknown
	for _, raw := range candidates {
		c := Category(strings.ToLower(strings.TrimSpace(raw)))
		if !validCategory(c) {
			continue
		}
		if categoryPriority[c] > categoryPriority[best] {
			best = c
		}
	}
	return best
}

// resolveBucket canonicalizes a bucket reference. Deictic references ("this
// bucket") resolve by walking the thread memory backward; if no turn defined
// a bucket, the session's active bucket stands in. An unrecognized explicit
// name stays unresolved.
func resolveBucket(ref string, mem *memory.ThreadMemory, state *model.State) string {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return ""
	}

	switch ref {
	case "this", "current", "active", "it":
		if entity, ok := mem.Resolve(memory.EntityBucket); ok {
			return entity.Name
		}
		if bucket, ok := state.Mode(model.FieldActiveBucket); ok {
			return bucket
		}
		return ""
	}

	return canonicalBucket(ref)
}

// canonicalBucket maps the ways users name buckets onto bucket ids.
func canonicalBucket(ref string) string {
	normalized := strings.NewReplacer("bucket", "", " ", "", "_", "", "-", "").Replace(ref)
	switch normalized {
	case "x", "bx":
		return model.BucketEarly
	case "1", "b1", "one":
		return model.BucketOne
	case "2", "b2", "two":
		return model.BucketTwo
	case "npa":
		return model.BucketNPA
	}
	return ""
}

// resolveScenario resolves a scenario reference. Deixis ("the previous
// scenario") binds to the most recently defined scenario entity; explicit
// labels pass through.
func resolveScenario(ref string, mem *memory.ThreadMemory) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	switch strings.ToLower(ref) {
	case "previous", "last", "that", "this":
		if entity, ok := mem.Resolve(memory.EntityScenario); ok {
			return entity.Name
		}
		return ""
	}

	return ref
}
