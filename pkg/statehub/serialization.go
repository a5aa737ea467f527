package statehub

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Map-valued fields
// (inputs, modes, derived) are JSON-encoded into single hash fields. This
// keeps scalar fields individually queryable while allowing the field sets
// to evolve without schema migrations.

// SnapshotToHash converts a Snapshot to a Redis hash format.
func SnapshotToHash(s *Snapshot) (map[string]interface{}, error) {
	inputsJSON, err := json.Marshal(s.Inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inputs: %w", err)
	}
	modesJSON, err := json.Marshal(s.Modes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal modes: %w", err)
	}
	derivedJSON, err := json.Marshal(s.Derived)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal derived: %w", err)
	}

	return map[string]interface{}{
		"session_id":    s.SessionID,
		"version":       s.Version,
		"inputs":        string(inputsJSON),
		"modes":         string(modesJSON),
		"derived":       string(derivedJSON),
		"updated_at_ms": s.UpdatedAtMs,
	}, nil
}

// HashToSnapshot converts a Redis hash back to a Snapshot.
func HashToSnapshot(hash map[string]string) (*Snapshot, error) {
	version, err := strconv.ParseInt(hash["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version field: %w", err)
	}

	var updatedAtMs int64
	if raw := hash["updated_at_ms"]; raw != "" {
		updatedAtMs, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid updated_at_ms field: %w", err)
		}
	}

	inputs := map[string]float64{}
	if raw := hash["inputs"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
		}
	}

	modes := map[string]string{}
	if raw := hash["modes"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &modes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal modes: %w", err)
		}
	}

	derived := map[string]float64{}
	if raw := hash["derived"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &derived); err != nil {
			return nil, fmt.Errorf("failed to unmarshal derived: %w", err)
		}
	}

	return &Snapshot{
		SessionID:   hash["session_id"],
		Version:     version,
		Inputs:      inputs,
		Modes:       modes,
		Derived:     derived,
		UpdatedAtMs: updatedAtMs,
	}, nil
}

// ArtifactRecordToHash converts an ArtifactRecord to a Redis hash format.
func ArtifactRecordToHash(a *ArtifactRecord) map[string]interface{} {
	return map[string]interface{}{
		"id":            a.ID,
		"session_id":    a.SessionID,
		"request_id":    a.RequestID,
		"kind":          a.Kind,
		"size_bytes":    a.SizeBytes,
		"delivered":     strconv.FormatBool(a.Delivered),
		"created_at_ms": a.CreatedAtMs,
	}
}

// HashToArtifactRecord converts a Redis hash back to an ArtifactRecord.
func HashToArtifactRecord(hash map[string]string) (*ArtifactRecord, error) {
	sizeBytes, err := strconv.ParseInt(hash["size_bytes"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid size_bytes field: %w", err)
	}

	createdAtMs, err := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at_ms field: %w", err)
	}

	delivered, err := strconv.ParseBool(hash["delivered"])
	if err != nil {
		return nil, fmt.Errorf("invalid delivered field: %w", err)
	}

	return &ArtifactRecord{
		ID:          hash["id"],
		SessionID:   hash["session_id"],
		RequestID:   hash["request_id"],
		Kind:        hash["kind"],
		SizeBytes:   sizeBytes,
		Delivered:   delivered,
		CreatedAtMs: createdAtMs,
	}, nil
}
