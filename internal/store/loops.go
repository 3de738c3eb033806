package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gyrelabs/gyre/internal/loop"
)

// LoopRow is the queryable mirror of a loop record. Record files remain
// the source of truth; rows exist for listings and foreign keys.
type LoopRow struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	Branch       string     `json:"branch"`
	BaseBranch   string     `json:"base_branch,omitempty"`
	Model        string     `json:"model,omitempty"`
	Iteration    int        `json:"iteration"`
	ReviewCycles int        `json:"review_cycles"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`
}

// RowFromLoop flattens a record into its mirror row.
func RowFromLoop(l *loop.Loop) *LoopRow {
	row := &LoopRow{
		ID:          l.ID,
		Name:        l.Name,
		Status:      string(l.Status),
		Branch:      l.Branch,
		BaseBranch:  l.BaseBranch,
		Model:       l.Model,
		Iteration:   l.Iteration,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
		StartedAt:   l.StartedAt,
		FinalizedAt: l.FinalizedAt,
	}
	if l.Review != nil {
		row.ReviewCycles = l.Review.ReviewCycles
	}
	return row
}

// SaveLoop inserts or updates a loop mirror row.
func (s *Store) SaveLoop(row *LoopRow) error {
	_, err := s.Exec(`
		INSERT INTO loops (id, name, status, branch, base_branch, model, iteration, review_cycles, created_at, updated_at, started_at, finalized_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			branch = excluded.branch,
			base_branch = excluded.base_branch,
			model = excluded.model,
			iteration = excluded.iteration,
			review_cycles = excluded.review_cycles,
			updated_at = excluded.updated_at,
			started_at = excluded.started_at,
			finalized_at = excluded.finalized_at
	`, row.ID, row.Name, row.Status, row.Branch, row.BaseBranch, row.Model,
		row.Iteration, row.ReviewCycles,
		row.CreatedAt.Format(time.RFC3339), row.UpdatedAt.Format(time.RFC3339),
		formatNullableTime(row.StartedAt), formatNullableTime(row.FinalizedAt))
	if err != nil {
		return fmt.Errorf("save loop %s: %w", row.ID, err)
	}
	return nil
}

// GetLoop retrieves a mirror row by ID. Returns nil when absent.
func (s *Store) GetLoop(id string) (*LoopRow, error) {
	row := s.QueryRow(`
		SELECT id, name, status, branch, base_branch, model, iteration, review_cycles, created_at, updated_at, started_at, finalized_at
		FROM loops WHERE id = ?
	`, id)

	r, err := scanLoopRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get loop %s: %w", id, err)
	}
	return r, nil
}

// ListLoops returns all mirror rows, newest first.
func (s *Store) ListLoops() ([]LoopRow, error) {
	rows, err := s.Query(`
		SELECT id, name, status, branch, base_branch, model, iteration, review_cycles, created_at, updated_at, started_at, finalized_at
		FROM loops ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list loops: %w", err)
	}
	defer rows.Close()

	var result []LoopRow
	for rows.Next() {
		r, err := scanLoopRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan loop row: %w", err)
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loops: %w", err)
	}
	return result, nil
}

// DeleteLoop removes a mirror row. Review comments cascade with it.
func (s *Store) DeleteLoop(id string) error {
	_, err := s.Exec("DELETE FROM loops WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete loop %s: %w", id, err)
	}
	return nil
}

func scanLoopRow(scan func(dest ...any) error) (*LoopRow, error) {
	var r LoopRow
	var createdAt, updatedAt string
	var startedAt, finalizedAt sql.NullString

	if err := scan(&r.ID, &r.Name, &r.Status, &r.Branch, &r.BaseBranch,
		&r.Model, &r.Iteration, &r.ReviewCycles, &createdAt, &updatedAt,
		&startedAt, &finalizedAt); err != nil {
		return nil, err
	}

	r.CreatedAt = parseTimestamp(createdAt)
	r.UpdatedAt = parseTimestamp(updatedAt)
	if startedAt.Valid {
		t := parseTimestamp(startedAt.String)
		r.StartedAt = &t
	}
	if finalizedAt.Valid {
		t := parseTimestamp(finalizedAt.String)
		r.FinalizedAt = &t
	}
	return &r, nil
}

// parseTimestamp tries the formats timestamps are stored in.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

// formatNullableTime formats a time pointer for storage.
func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
