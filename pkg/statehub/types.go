package statehub

import (
	"fmt"

	"github.com/google/uuid"
)

// Snapshot is the durable unit of a session: the full ModelState at a given
// version. Inputs and Modes are the user-settable fields; Derived is the
// recomputed metric set. Snapshots are written after every committed mutation
// and are the recovery point when a session must be rebuilt.
type Snapshot struct {
	SessionID   string             `json:"session_id"`   // UUID of the owning session
	Version     int64              `json:"version"`      // Monotonic ModelState version
	Inputs      map[string]float64 `json:"inputs"`       // Numeric input fields
	Modes       map[string]string  `json:"modes"`        // Categorical input fields
	Derived     map[string]float64 `json:"derived"`      // Derived metric fields
	UpdatedAtMs int64              `json:"updated_at_ms"` // Unix timestamp in milliseconds of the commit
}

// ChatRequest is the inbound surface consumed from the transport layer.
// ClientVersion is the ModelState version the client believes is current;
// the engine rejects requests that fall outside the configured stale window.
// A client that does not track versions sends -1 and is exempt.
type ChatRequest struct {
	RequestID     string `json:"request_id"`     // UUID - unique per request
	SessionID     string `json:"session_id"`     // UUID of the target session
	Utterance     string `json:"utterance"`      // Raw natural-language input
	ClientVersion int64  `json:"client_version"` // ModelState version known to the client
}

// ChatResponse is the reply to a single ChatRequest. The delta and artifact
// fields are absent (nil/empty) on any error path - error detail travels only
// on the narrative channel.
type ChatResponse struct {
	RequestID  string             `json:"request_id"`
	SessionID  string             `json:"session_id"`
	Narrative  string             `json:"narrative"`             // Human-readable channel
	Delta      map[string]float64 `json:"delta,omitempty"`       // Machine-applicable field changes
	ModeDelta  map[string]string  `json:"mode_delta,omitempty"`  // Categorical field changes
	ArtifactID string             `json:"artifact_id,omitempty"` // Handle of a generated document
	Version    int64              `json:"version"`               // ModelState version after the turn
}

// StateUpdate is a client-pushed full calculator state, delivered without a
// matching chat request. The engine applies it through the same serialized
// mutation path so the proactive monitor runs on it.
type StateUpdate struct {
	SessionID string             `json:"session_id"`
	Inputs    map[string]float64 `json:"inputs"`
	Modes     map[string]string  `json:"modes,omitempty"`
}

// AlertEvent is the wire form of a proactive alert pushed on the sync channel.
type AlertEvent struct {
	Metric    string  `json:"metric"`    // Derived metric name
	Threshold float64 `json:"threshold"` // Configured threshold that was crossed
	Direction string  `json:"direction"` // "above" or "below"
	Value     float64 `json:"value"`     // Metric value at detection
	Version   int64   `json:"version"`   // ModelState version at detection
	Message   string  `json:"message"`   // Human-readable suggestion
}

// SyncEvent is one message on a session's out-of-band sync channel.
// Exactly one of Alert or Snapshot is set, matching Type.
type SyncEvent struct {
	Type     SyncEventType `json:"type"`
	Alert    *AlertEvent   `json:"alert,omitempty"`
	Snapshot *Snapshot     `json:"snapshot,omitempty"`
}

// SyncEventType discriminates messages on the sync channel.
type SyncEventType string

const (
	// SyncEventAlert carries a proactive threshold alert
	SyncEventAlert SyncEventType = "alert"

	// SyncEventSnapshot carries a full ModelState snapshot after a mutation
	SyncEventSnapshot SyncEventType = "snapshot"
)

// ArtifactRecord tracks a generated document from creation to delivery.
// The payload is stored separately under a TTL; the record itself lives in a
// per-session index trimmed to a configured maximum.
type ArtifactRecord struct {
	ID          string `json:"id"`            // UUID of the artifact
	SessionID   string `json:"session_id"`    // Owning session
	RequestID   string `json:"request_id"`    // Originating chat request
	Kind        string `json:"kind"`          // Document kind, e.g. "roi_report"
	SizeBytes   int64  `json:"size_bytes"`    // Payload size
	Delivered   bool   `json:"delivered"`     // Set once referenced in a response
	CreatedAtMs int64  `json:"created_at_ms"` // Unix timestamp in milliseconds
}

// Validate checks if the Snapshot has valid field values.
func (s *Snapshot) Validate() error {
	if !isValidUUID(s.SessionID) {
		return fmt.Errorf("invalid session ID: not a valid UUID")
	}
	if s.Version < 0 {
		return fmt.Errorf("invalid version: must be >= 0, got %d", s.Version)
	}
	if len(s.Inputs) == 0 {
		return fmt.Errorf("snapshot inputs cannot be empty")
	}
	return nil
}

// Validate checks if the ChatRequest has valid field values.
func (r *ChatRequest) Validate() error {
	if !isValidUUID(r.RequestID) {
		return fmt.Errorf("invalid request ID: not a valid UUID")
	}
	if !isValidUUID(r.SessionID) {
		return fmt.Errorf("invalid session ID: not a valid UUID")
	}
	if r.Utterance == "" {
		return fmt.Errorf("utterance cannot be empty")
	}
	if r.ClientVersion < -1 {
		return fmt.Errorf("invalid client version: must be >= -1, got %d", r.ClientVersion)
	}
	return nil
}

// Validate checks if the SyncEventType is a valid enum value.
func (t SyncEventType) Validate() error {
	switch t {
	case SyncEventAlert, SyncEventSnapshot:
		return nil
	default:
		return fmt.Errorf("unknown sync event type: %q", t)
	}
}

// Validate checks if the ArtifactRecord has valid field values.
func (a *ArtifactRecord) Validate() error {
	if !isValidUUID(a.ID) {
		return fmt.Errorf("invalid artifact ID: not a valid UUID")
	}
	if !isValidUUID(a.SessionID) {
		return fmt.Errorf("invalid session ID: not a valid UUID")
	}
	if !isValidUUID(a.RequestID) {
		return fmt.Errorf("invalid request ID: not a valid UUID")
	}
	if a.Kind == "" {
		return fmt.Errorf("artifact kind cannot be empty")
	}
	return nil
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
