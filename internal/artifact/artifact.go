// Package artifact tracks generated documents from creation to delivery.
// Payloads are stored out-of-band under a TTL; responses carry only the
// artifact handle. The registry is bounded per session by both age and
// count, oldest evicted first.
package artifact

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/collectiq/copilot/pkg/statehub"
)

// Registry stores artifacts through the hub with the configured retention
// bounds applied on every put.
type Registry struct {
	hub           *statehub.Client
	ttl           time.Duration
	maxPerSession int64
}

// NewRegistry creates a Registry with the given retention bounds.
func NewRegistry(hub *statehub.Client, ttl time.Duration, maxPerSession int64) *Registry {
	return &Registry{hub: hub, ttl: ttl, maxPerSession: maxPerSession}
}

// Create stores a new artifact and returns its handle. The record becomes
// resolvable before the handle is ever returned to a caller.
func (r *Registry) Create(ctx context.Context, sessionID, requestID, kind string, payload []byte) (string, error) {
	rec := &statehub.ArtifactRecord{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		RequestID:   requestID,
		Kind:        kind,
		SizeBytes:   int64(len(payload)),
		CreatedAtMs: time.Now().UnixMilli(),
	}
	if err := r.hub.PutArtifact(ctx, rec, payload, r.ttl, r.maxPerSession); err != nil {
		return "", fmt.Errorf("failed to store artifact: %w", err)
	}
	return rec.ID, nil
}

// Resolve fetches an artifact's record and payload by handle. An expired or
// evicted artifact resolves to statehub.IsNotFound.
func (r *Registry) Resolve(ctx context.Context, artifactID string) (*statehub.ArtifactRecord, []byte, error) {
	rec, err := r.hub.GetArtifactRecord(ctx, artifactID)
	if err != nil {
		return nil, nil, err
	}
	payload, err := r.hub.GetArtifactPayload(ctx, artifactID)
	if err != nil {
		return nil, nil, err
	}
	return rec, payload, nil
}

// MarkDelivered flags an artifact as referenced by a response.
func (r *Registry) MarkDelivered(ctx context.Context, artifactID string) error {
	return r.hub.MarkArtifactDelivered(ctx, artifactID)
}

// List returns a session's live artifact records, newest first.
func (r *Registry) List(ctx context.Context, sessionID string) ([]*statehub.ArtifactRecord, error) {
	return r.hub.ListArtifacts(ctx, sessionID)
}
