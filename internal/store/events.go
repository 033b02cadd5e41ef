package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EventRecord is one persisted entry in a trajectory's audit trail,
// mirroring the shape of internal/storage/sqlite/schema.go's events table
// (actor-less here, since every event in this domain is machine-emitted).
type EventRecord struct {
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// AppendEvent records one trajectory lifecycle event (§6 Outputs) to the
// audit trail.
func (s *Store) AppendEvent(ctx context.Context, trajectoryID, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trajectory_events (trajectory_id, event_type, payload)
		VALUES (?, ?, ?)
	`, trajectoryID, eventType, string(data))
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Events returns the most recent events for a trajectory, newest first.
func (s *Store) Events(ctx context.Context, trajectoryID string, limit int) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, payload, created_at FROM trajectory_events
		WHERE trajectory_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, trajectoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var payload string
		if err := rows.Scan(&rec.Type, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.Payload = json.RawMessage(payload)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating events: %w", err)
	}
	return out, nil
}
