package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventRow is one persisted entry of the loop event log.
type EventRow struct {
	ID        int64     `json:"id"`
	LoopID    string    `json:"loop_id"`
	Iteration *int      `json:"iteration,omitempty"`
	EventType string    `json:"event_type"`
	Data      string    `json:"data,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EncodeEventData renders an arbitrary payload as the JSON text stored in
// the data column. Nil payloads encode as the empty string.
func EncodeEventData(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// SaveEvents appends a batch of rows to the event log inside one
// transaction. The IDs on the passed rows are not filled in.
func (s *Store) SaveEvents(rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	ctx := context.Background()
	tx, err := s.driver.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	defer tx.Rollback()

	for _, r := range rows {
		created := r.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		var iteration any
		if r.Iteration != nil {
			iteration = *r.Iteration
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO event_log (loop_id, iteration, event_type, data, source, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.LoopID, iteration, r.EventType, r.Data,
			r.Source, created.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("save events: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	return nil
}

// ListEvents returns the newest events for a loop, most recent first.
// A limit of zero or less means no limit.
func (s *Store) ListEvents(loopID string, limit int) ([]EventRow, error) {
	query := `
		SELECT id, loop_id, iteration, event_type, data, source, created_at
		FROM event_log WHERE loop_id = ?
		ORDER BY id DESC
	`
	args := []any{loopID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var iteration sql.NullInt64
		var data, source sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.LoopID, &iteration, &e.EventType,
			&data, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if iteration.Valid {
			n := int(iteration.Int64)
			e.Iteration = &n
		}
		e.Data = data.String
		e.Source = source.String
		e.CreatedAt = parseTimestamp(createdAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// DeleteLoopEvents removes the event log of a loop.
func (s *Store) DeleteLoopEvents(loopID string) error {
	_, err := s.Exec("DELETE FROM event_log WHERE loop_id = ?", loopID)
	if err != nil {
		return fmt.Errorf("delete loop events: %w", err)
	}
	return nil
}
