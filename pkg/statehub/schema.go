package statehub

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name to
// enable multiple copilot instances to safely coexist on a single Redis
// server.
//
// Key pattern: copilot:{instance_name}:{entity}:{id}
// Channel pattern: copilot:{instance_name}:{event_type}

// SessionStateKey returns the Redis key for a session's persisted snapshot.
// Pattern: copilot:{instance_name}:session:{session_id}:state
func SessionStateKey(instanceName, sessionID string) string {
	return fmt.Sprintf("copilot:%s:session:%s:state", instanceName, sessionID)
}

// ArtifactKey returns the Redis key for an artifact record.
// Pattern: copilot:{instance_name}:artifact:{artifact_id}
func ArtifactKey(instanceName, artifactID string) string {
	return fmt.Sprintf("copilot:%s:artifact:%s", instanceName, artifactID)
}

// ArtifactPayloadKey returns the Redis key for an artifact's binary payload.
// Payloads are stored separately from records so they can expire on their own.
// Pattern: copilot:{instance_name}:artifact:{artifact_id}:payload
func ArtifactPayloadKey(instanceName, artifactID string) string {
	return fmt.Sprintf("copilot:%s:artifact:%s:payload", instanceName, artifactID)
}

// SessionArtifactsKey returns the Redis key for a session's artifact index.
// Stored as a ZSET scored by creation time so the oldest entries can be
// trimmed when the per-session cap is exceeded.
// Pattern: copilot:{instance_name}:session:{session_id}:artifacts
func SessionArtifactsKey(instanceName, sessionID string) string {
	return fmt.Sprintf("copilot:%s:session:%s:artifacts", instanceName, sessionID)
}

// RequestChannel returns the Pub/Sub channel for inbound chat requests.
// The transport layer publishes ChatRequest JSON here; the engine consumes.
// Pattern: copilot:{instance_name}:requests
func RequestChannel(instanceName string) string {
	return fmt.Sprintf("copilot:%s:requests", instanceName)
}

// ResponseChannel returns the Pub/Sub channel for a single request's response.
// Pattern: copilot:{instance_name}:response:{request_id}
func ResponseChannel(instanceName, requestID string) string {
	return fmt.Sprintf("copilot:%s:response:%s", instanceName, requestID)
}

// SyncChannel returns the session-scoped out-of-band push channel.
// Alert records and ModelState snapshots are pushed here without a matching
// request; delivery to the end client is the transport collaborator's concern.
// Pattern: copilot:{instance_name}:session:{session_id}:sync
func SyncChannel(instanceName, sessionID string) string {
	return fmt.Sprintf("copilot:%s:session:%s:sync", instanceName, sessionID)
}

// StateUpdateChannel returns the Pub/Sub channel for client-pushed full state
// updates (the visual client mirroring its calculator into the engine).
// Pattern: copilot:{instance_name}:state_updates
func StateUpdateChannel(instanceName string) string {
	return fmt.Sprintf("copilot:%s:state_updates", instanceName)
}
