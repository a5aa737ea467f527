package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/collectiq/copilot/internal/compose"
	"github.com/collectiq/copilot/internal/handler"
	"github.com/collectiq/copilot/internal/intent"
	"github.com/collectiq/copilot/internal/memory"
	"github.com/collectiq/copilot/internal/model"
	"github.com/collectiq/copilot/internal/monitor"
	"github.com/collectiq/copilot/pkg/statehub"
)

// handleTurn runs the full pipeline for one chat request. The returned bool
// is true only on an invariant violation, which is fatal to the session.
//
// Cancellation is honored up to the point a handler produces a delta; from
// first observable effect to last (apply, monitor, persist, publish) the
// commit runs to completion.
func (e *Engine) handleTurn(ctx context.Context, req *statehub.ChatRequest, state *model.State, mem *memory.ThreadMemory, mon *monitor.Monitor) bool {
	if ctx.Err() != nil {
		// Shutting down before any effect: the request is simply dropped
		return false
	}

	startVersion := state.Version()
	log := e.log.With(
		zap.String("session_id", req.SessionID),
		zap.String("request_id", req.RequestID))

	if err := handler.CheckStale(req.ClientVersion, startVersion, *e.cfg.Router.StaleWindow); err != nil {
		log.Info("rejecting stale request",
			zap.Int64("client_version", req.ClientVersion),
			zap.Int64("version", startVersion))
		e.publishResponse(ctx, &statehub.ChatResponse{
			RequestID: req.RequestID,
			SessionID: req.SessionID,
			Narrative: compose.ErrorNarrative(err),
			Version:   startVersion,
		})
		return false
	}

	c := e.router.Classify(ctx, req.Utterance, mem, state)
	log.Info("utterance classified", zap.String("category", string(c.Category)))

	if c.Category == intent.CategoryUnknown {
		log.Debug("clarifying", zap.String("reason", c.Reason))
		e.publishResponse(ctx, &statehub.ChatResponse{
			RequestID: req.RequestID,
			SessionID: req.SessionID,
			Narrative: compose.Clarification(c.Reason),
			Version:   startVersion,
		})
		e.appendTurn(mem, req, c, "clarify", startVersion, nil)
		return false
	}

	h := e.handlers[c.Category]
	res, err := h.Handle(ctx, handler.Args{
		RequestID: req.RequestID,
		Intent:    c,
		State:     state,
		Memory:    mem,
	})
	if err != nil {
		var invariant *model.InvariantError
		fatal := errors.As(err, &invariant)
		log.Warn("handler failed",
			zap.String("handler", h.Name()),
			zap.Bool("fatal", fatal),
			zap.Error(err))
		e.publishResponse(ctx, &statehub.ChatResponse{
			RequestID: req.RequestID,
			SessionID: req.SessionID,
			Narrative: compose.ErrorNarrative(err),
			Version:   startVersion,
		})
		e.appendTurn(mem, req, c, h.Name(), startVersion, nil)
		return fatal
	}

	if res.Delta != nil {
		// From here the commit is uninterruptible
		commitCtx := context.WithoutCancel(ctx)
		if err := e.commit(commitCtx, state, mon, res.Delta); err != nil {
			var invariant *model.InvariantError
			fatal := errors.As(err, &invariant)
			log.Error("commit failed", zap.Bool("fatal", fatal), zap.Error(err))
			e.publishResponse(commitCtx, &statehub.ChatResponse{
				RequestID: req.RequestID,
				SessionID: req.SessionID,
				Narrative: compose.ErrorNarrative(err),
				Version:   state.Version(),
			})
			e.appendTurn(mem, req, c, h.Name(), startVersion, nil)
			return fatal
		}
		ctx = commitCtx
	}

	if res.ArtifactID != "" {
		if err := e.artifacts.MarkDelivered(ctx, res.ArtifactID); err != nil {
			log.Warn("failed to mark artifact delivered",
				zap.String("artifact_id", res.ArtifactID),
				zap.Error(err))
		}
	}

	resp := &statehub.ChatResponse{
		RequestID:  req.RequestID,
		SessionID:  req.SessionID,
		Narrative:  compose.Narrative(res),
		ArtifactID: res.ArtifactID,
		Version:    state.Version(),
	}
	if res.Delta != nil {
		resp.Delta = res.Delta.Fields
		resp.ModeDelta = res.Delta.Modes
	}
	e.publishResponse(ctx, resp)

	e.appendTurn(mem, req, c, h.Name(), startVersion, res)
	return false
}

// handleStateUpdate applies a client-pushed full state through the same
// serialized commit path as a chat turn, so the monitor sees every mutation
// regardless of origin. No response is published.
func (e *Engine) handleStateUpdate(ctx context.Context, update *statehub.StateUpdate, state *model.State, mon *monitor.Monitor) bool {
	delta := &model.Delta{
		Fields: make(map[string]float64),
		Modes:  make(map[string]string),
	}
	for name, value := range update.Inputs {
		if current, ok := state.Input(name); !ok || current != value {
			delta.Fields[name] = value
		}
	}
	for name, value := range update.Modes {
		if current, ok := state.Mode(name); !ok || current != value {
			delta.Modes[name] = value
		}
	}
	if delta.Empty() {
		return false
	}

	err := e.commit(context.WithoutCancel(ctx), state, mon, delta)
	if err == nil {
		return false
	}

	var invariant *model.InvariantError
	fatal := errors.As(err, &invariant)
	e.log.Warn("rejected pushed state update",
		zap.String("session_id", update.SessionID),
		zap.Bool("fatal", fatal),
		zap.Error(err))
	return fatal
}

// commit is the uninterruptible mutation unit: apply the delta, run the
// monitor on the committed metrics, persist the snapshot, then push the
// snapshot and any alerts on the sync channel. Publish failures never roll
// back the committed state.
func (e *Engine) commit(ctx context.Context, state *model.State, mon *monitor.Monitor, delta *model.Delta) error {
	if err := state.Apply(delta); err != nil {
		return err
	}

	alerts := mon.Evaluate(state.Derived(), state.Version())

	snap := state.Snapshot()
	snap.UpdatedAtMs = time.Now().UnixMilli()
	if err := e.hub.SaveSnapshot(ctx, snap); err != nil {
		e.log.Error("failed to persist snapshot",
			zap.String("session_id", state.SessionID()),
			zap.Int64("version", state.Version()),
			zap.Error(err))
	}

	if err := e.hub.PublishSync(ctx, state.SessionID(), &statehub.SyncEvent{
		Type:     statehub.SyncEventSnapshot,
		Snapshot: snap,
	}); err != nil {
		e.log.Warn("failed to publish snapshot sync", zap.Error(err))
	}

	for _, a := range alerts {
		e.publishAlert(ctx, state.SessionID(), a)
	}

	return nil
}

// publishAlert pushes one proactive alert. Fire-and-forget: a delivery
// failure is logged and the alert is gone.
func (e *Engine) publishAlert(ctx context.Context, sessionID string, a monitor.Alert) {
	e.log.Info("proactive alert",
		zap.String("session_id", sessionID),
		zap.String("metric", a.Metric),
		zap.Float64("value", a.Value),
		zap.Int64("version", a.Version))

	err := e.hub.PublishSync(ctx, sessionID, &statehub.SyncEvent{
		Type: statehub.SyncEventAlert,
		Alert: &statehub.AlertEvent{
			Metric:    a.Metric,
			Threshold: a.Threshold,
			Direction: a.Direction,
			Value:     a.Value,
			Version:   a.Version,
			Message:   compose.AlertMessage(a.Metric, a.Value, a.Threshold, a.Direction),
		},
	})
	if err != nil {
		e.log.Warn("failed to publish alert",
			zap.String("metric", a.Metric),
			zap.Error(err))
	}
}

// appendTurn records a completed turn on the golden thread, including the
// entities it introduced and the changes it applied.
func (e *Engine) appendTurn(mem *memory.ThreadMemory, req *statehub.ChatRequest, c intent.Classification, handlerName string, startVersion int64, res *handler.Result) {
	turn := memory.Turn{
		ID:        req.RequestID,
		Utterance: req.Utterance,
		Category:  string(c.Category),
		Handler:   handlerName,
		Version:   startVersion,
		At:        time.Now(),
	}

	if c.Bucket != "" {
		turn.Entities = append(turn.Entities, memory.Entity{Kind: memory.EntityBucket, Name: c.Bucket})
	}
	if res != nil {
		if res.Scenario != "" {
			turn.Entities = append(turn.Entities, memory.Entity{Kind: memory.EntityScenario, Name: res.Scenario})
		}
		if res.Delta != nil {
			for _, f := range res.Facts {
				if f.Kind == handler.FactFieldChanged {
					turn.Changes = append(turn.Changes, memory.Change{
						Field: f.Field,
						From:  f.Before,
						To:    f.After,
					})
				}
			}
		}
	}

	mem.Append(turn)
}
