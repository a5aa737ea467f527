// Package engine implements the orchestration core: it consumes chat
// requests and client-pushed state updates from the hub, serializes all work
// for a session through one worker goroutine, and runs the turn pipeline
// (stale check, intent routing, capability dispatch, atomic commit, proactive
// monitoring, response publication). Different sessions run fully in
// parallel; within a session, requests complete strictly in arrival order.
package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/collectiq/copilot/internal/artifact"
	"github.com/collectiq/copilot/internal/config"
	"github.com/collectiq/copilot/internal/handler"
	"github.com/collectiq/copilot/internal/inference"
	"github.com/collectiq/copilot/internal/intent"
	"github.com/collectiq/copilot/internal/memory"
	"github.com/collectiq/copilot/internal/model"
	"github.com/collectiq/copilot/internal/monitor"
	"github.com/collectiq/copilot/internal/render"
	"github.com/collectiq/copilot/pkg/statehub"
)

// work is one queued unit for a session worker: exactly one of req or update
// is set.
type work struct {
	req    *statehub.ChatRequest
	update *statehub.StateUpdate
}

// session is the dispatch-side view of one live session. The worker owns the
// state, memory, and monitor; the engine only holds the queue.
type session struct {
	id     string
	queue  chan work
	cancel context.CancelFunc
}

// Engine consumes hub traffic and drives per-session workers.
type Engine struct {
	hub       *statehub.Client
	router    *intent.Router
	handlers  map[intent.Category]handler.Handler
	artifacts *artifact.Registry
	cfg       *config.Config
	log       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

// New wires an Engine from its collaborators. The inference client is the
// only non-deterministic dependency; tests pass a fake.
func New(hub *statehub.Client, infer inference.Client, renderer render.Renderer, artifacts *artifact.Registry, cfg *config.Config, log *zap.Logger) *Engine {
	return &Engine{
		hub:    hub,
		router: intent.NewRouter(infer, log),
		handlers: map[intent.Category]handler.Handler{
			intent.CategoryModify:   handler.NewModify(cfg.Model.Ranges),
			intent.CategoryAnalyze:  handler.NewAnalyze(),
			intent.CategoryScenario: handler.NewScenario(cfg.Model.Ranges),
			intent.CategoryDocument: handler.NewDocument(renderer, artifacts, cfg.Render.Timeout.Std()),
		},
		artifacts: artifacts,
		cfg:       cfg,
		log:       log,
		sessions:  make(map[string]*session),
	}
}

// Run consumes requests and state updates until ctx is cancelled, then waits
// for all session workers to drain.
func (e *Engine) Run(ctx context.Context) error {
	reqSub, err := e.hub.SubscribeRequests(ctx)
	if err != nil {
		return err
	}
	defer reqSub.Close()

	updSub, err := e.hub.SubscribeStateUpdates(ctx)
	if err != nil {
		return err
	}
	defer updSub.Close()

	e.log.Info("engine started")

	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopping, draining sessions")
			e.wg.Wait()
			return nil

		case req, ok := <-reqSub.Events():
			if !ok {
				e.wg.Wait()
				return nil
			}
			e.dispatch(ctx, req.SessionID, work{req: req})

		case update, ok := <-updSub.Events():
			if !ok {
				e.wg.Wait()
				return nil
			}
			e.dispatch(ctx, update.SessionID, work{update: update})

		case err := <-reqSub.Errors():
			e.log.Warn("malformed chat request skipped", zap.Error(err))

		case err := <-updSub.Errors():
			e.log.Warn("malformed state update skipped", zap.Error(err))
		}
	}
}

// dispatch enqueues work for a session, creating its worker on first
// contact. A full queue rejects the request immediately rather than
// interleaving it.
func (e *Engine) dispatch(ctx context.Context, sessionID string, w work) {
	if sessionID == "" {
		e.log.Warn("dropping work without session ID")
		return
	}

	s := e.getOrCreateSession(ctx, sessionID)

	select {
	case s.queue <- w:
	default:
		e.log.Warn("session queue full, rejecting",
			zap.String("session_id", sessionID))
		if w.req != nil {
			e.publishResponse(ctx, &statehub.ChatResponse{
				RequestID: w.req.RequestID,
				SessionID: sessionID,
				Narrative: "This session is processing earlier requests. Please try again shortly.",
			})
		}
	}
}

func (e *Engine) getOrCreateSession(ctx context.Context, sessionID string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.sessions[sessionID]; ok {
		return s
	}

	workerCtx, cancel := context.WithCancel(ctx)
	s := &session{
		id:     sessionID,
		queue:  make(chan work, *e.cfg.Engine.QueueDepth),
		cancel: cancel,
	}
	e.sessions[sessionID] = s

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		e.runSession(workerCtx, s)
	}()

	return s
}

// removeSession tears a session down. Its next request rebuilds state from
// the last committed snapshot.
func (e *Engine) removeSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[sessionID]; ok {
		s.cancel()
		delete(e.sessions, sessionID)
	}
}

// runSession is the per-session worker loop. It exclusively owns the
// session's state, thread memory, and monitor; nothing else may touch them.
func (e *Engine) runSession(ctx context.Context, s *session) {
	state := e.loadState(ctx, s.id)
	mem := memory.New()
	mon := monitor.New(e.cfg.Monitor.Metrics, e.log)

	e.log.Info("session worker started",
		zap.String("session_id", s.id),
		zap.Int64("version", state.Version()))

	for {
		select {
		case <-ctx.Done():
			return
		case w := <-s.queue:
			var fatal bool
			if w.req != nil {
				fatal = e.handleTurn(ctx, w.req, state, mem, mon)
			} else if w.update != nil {
				fatal = e.handleStateUpdate(ctx, w.update, state, mon)
			}
			if fatal {
				e.log.Error("session invariant violated, tearing down",
					zap.String("session_id", s.id))
				e.removeSession(s.id)
				return
			}
		}
	}
}

// loadState restores a session's state from its last committed snapshot. A
// missing or corrupt snapshot falls back to the default calculator state.
func (e *Engine) loadState(ctx context.Context, sessionID string) *model.State {
	snap, err := e.hub.LoadSnapshot(ctx, sessionID)
	if err != nil {
		if !statehub.IsNotFound(err) {
			e.log.Warn("failed to load session snapshot, starting fresh",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
		return model.New(sessionID)
	}

	state, err := model.FromSnapshot(snap)
	if err != nil {
		e.log.Error("rejecting corrupt session snapshot, starting fresh",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return model.New(sessionID)
	}
	return state
}

func (e *Engine) publishResponse(ctx context.Context, resp *statehub.ChatResponse) {
	if err := e.hub.PublishResponse(ctx, resp); err != nil {
		e.log.Warn("failed to publish response",
			zap.String("request_id", resp.RequestID),
			zap.Error(err))
	}
}
