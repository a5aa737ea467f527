package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/collectiq/copilot/internal/artifact"
	"github.com/collectiq/copilot/internal/render"
)

// Document renders a report from the current state and registers it as an
// artifact. The response carries only the artifact handle; the payload stays
// in the registry until fetched or expired. A rendering failure aborts the
// turn with nothing to roll back - documents never mutate state.
type Document struct {
	renderer  render.Renderer
	artifacts *artifact.Registry
	timeout   time.Duration
}

// NewDocument creates the document handler. timeout bounds the rendering
// collaborator call.
func NewDocument(renderer render.Renderer, artifacts *artifact.Registry, timeout time.Duration) *Document {
	return &Document{renderer: renderer, artifacts: artifacts, timeout: timeout}
}

func (h *Document) Name() string { return "document" }

// Handle renders the requested document kind and stores it. The artifact is
// resolvable before its handle appears in any result.
func (h *Document) Handle(ctx context.Context, args Args) (*Result, error) {
	kind := args.Intent.DocumentKind
	if kind == "" {
		kind = render.KindROIReport
	}

	renderCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	payload, err := h.renderer.Render(renderCtx, kind, args.State.Snapshot())
	if err != nil {
		return nil, err
	}

	artifactID, err := h.artifacts.Create(ctx, args.State.SessionID(), args.RequestID, kind, payload)
	if err != nil {
		return nil, fmt.Errorf("document rendered but could not be stored: %w", err)
	}

	return &Result{
		ArtifactID: artifactID,
		Facts: []Fact{{
			Kind:   FactDocumentRendered,
			Detail: kind,
			After:  float64(len(payload)),
		}},
	}, nil
}
