package blackboard

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis values
//
// Snapshots are stored as Redis hashes, one field per public attribute, so a
// partial write is detectable field by field. Ballots are JSON values in a
// per-tick hash keyed by rank; the tick's outcome is a single JSON value.

// snapshotFields lists every field a snapshot hash must carry.
var snapshotFields = []string{"id", "name", "unit_cost", "capacity"}

// SnapshotToHash converts a ProducerSnapshot to a Redis hash format.
func SnapshotToHash(s *ProducerSnapshot) map[string]interface{} {
	return map[string]interface{}{
		"id":        s.ID.String(),
		"name":      s.Name,
		"unit_cost": strconv.FormatFloat(s.UnitCost, 'g', -1, 64),
		"capacity":  strconv.FormatFloat(s.Capacity, 'g', -1, 64),
	}
}

// HashToSnapshot converts a Redis hash to a ProducerSnapshot.
// A hash with missing fields or unparsable values wraps ErrMalformedSnapshot.
func HashToSnapshot(hash map[string]string) (*ProducerSnapshot, error) {
	for _, field := range snapshotFields {
		if _, ok := hash[field]; !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrMalformedSnapshot, field)
		}
	}

	id, err := ParseAgentID(hash["id"])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	unitCost, err := strconv.ParseFloat(hash["unit_cost"], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid unit_cost field: %v", ErrMalformedSnapshot, err)
	}

	capacity, err := strconv.ParseFloat(hash["capacity"], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid capacity field: %v", ErrMalformedSnapshot, err)
	}

	snapshot := &ProducerSnapshot{
		ID:       id,
		Name:     hash["name"],
		UnitCost: unitCost,
		Capacity: capacity,
	}

	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	return snapshot, nil
}

// EncodeBallot converts a Ballot to its stored JSON form.
func EncodeBallot(b *Ballot) (string, error) {
	if err := b.Validate(); err != nil {
		return "", fmt.Errorf("invalid ballot: %w", err)
	}
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ballot: %w", err)
	}
	return string(data), nil
}

// DecodeBallot parses a stored Ballot.
func DecodeBallot(raw string) (*Ballot, error) {
	var b Ballot
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ballot: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ballot: %w", err)
	}
	return &b, nil
}

// EncodeOutcome converts a DeliveryOutcome to its stored JSON form.
func EncodeOutcome(o *DeliveryOutcome) (string, error) {
	if err := o.Status.Validate(); err != nil {
		return "", fmt.Errorf("invalid delivery outcome: %w", err)
	}
	data, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("failed to marshal delivery outcome: %w", err)
	}
	return string(data), nil
}

// DecodeOutcome parses a stored DeliveryOutcome.
func DecodeOutcome(raw string) (*DeliveryOutcome, error) {
	var o DeliveryOutcome
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal delivery outcome: %w", err)
	}
	if err := o.Status.Validate(); err != nil {
		return nil, fmt.Errorf("invalid delivery outcome: %w", err)
	}
	return &o, nil
}
