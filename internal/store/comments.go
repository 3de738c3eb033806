package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// CommentStatus is the lifecycle of a review comment.
type CommentStatus string

const (
	// CommentPending marks comments not yet addressed by a review cycle.
	CommentPending CommentStatus = "pending"
	// CommentAddressed marks comments whose cycle ran back to a terminal
	// status.
	CommentAddressed CommentStatus = "addressed"
)

// ReviewComment is one entry in the append-only reviewer feedback log,
// keyed by (loop, review cycle).
type ReviewComment struct {
	ID          string        `json:"id"`
	LoopID      string        `json:"loop_id"`
	ReviewCycle int           `json:"review_cycle"`
	Content     string        `json:"comment_text"`
	Status      CommentStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	AddressedAt *time.Time    `json:"addressed_at,omitempty"`
}

// CreateReviewComment appends a comment to the log.
func (s *Store) CreateReviewComment(c *ReviewComment) error {
	if c.ID == "" {
		c.ID = generateCommentID()
	}
	if c.Status == "" {
		c.Status = CommentPending
	}
	if c.ReviewCycle == 0 {
		c.ReviewCycle = 1
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.Exec(`
		INSERT INTO review_comments (id, loop_id, review_cycle, content, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.LoopID, c.ReviewCycle, c.Content, c.Status, c.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("create review comment: %w", err)
	}
	return nil
}

// GetReviewComment retrieves one comment by ID. Returns nil when absent.
func (s *Store) GetReviewComment(id string) (*ReviewComment, error) {
	row := s.QueryRow(`
		SELECT id, loop_id, review_cycle, content, status, created_at, addressed_at
		FROM review_comments WHERE id = ?
	`, id)

	c, err := scanReviewComment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get review comment: %w", err)
	}
	return c, nil
}

// ListReviewComments returns comments for a loop, oldest first. An empty
// status lists all of them.
func (s *Store) ListReviewComments(loopID string, status CommentStatus) ([]ReviewComment, error) {
	query := `
		SELECT id, loop_id, review_cycle, content, status, created_at, addressed_at
		FROM review_comments WHERE loop_id = ?
	`
	args := []any{loopID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY review_cycle, created_at"

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list review comments: %w", err)
	}
	defer rows.Close()

	var comments []ReviewComment
	for rows.Next() {
		c, err := scanReviewComment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan review comment: %w", err)
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review comments: %w", err)
	}
	return comments, nil
}

// ListReviewCommentsByCycle returns the comments of one review cycle.
func (s *Store) ListReviewCommentsByCycle(loopID string, cycle int) ([]ReviewComment, error) {
	rows, err := s.Query(`
		SELECT id, loop_id, review_cycle, content, status, created_at, addressed_at
		FROM review_comments WHERE loop_id = ? AND review_cycle = ?
		ORDER BY created_at
	`, loopID, cycle)
	if err != nil {
		return nil, fmt.Errorf("list review comments by cycle: %w", err)
	}
	defer rows.Close()

	var comments []ReviewComment
	for rows.Next() {
		c, err := scanReviewComment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan review comment: %w", err)
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review comments: %w", err)
	}
	return comments, nil
}

// MarkCycleAddressed flips every pending comment of a cycle to addressed
// in one statement, stamping the given time. Returns the number flipped.
func (s *Store) MarkCycleAddressed(loopID string, cycle int, at time.Time) (int64, error) {
	res, err := s.Exec(`
		UPDATE review_comments SET status = ?, addressed_at = ?
		WHERE loop_id = ? AND review_cycle = ? AND status = ?
	`, CommentAddressed, at.Format(time.RFC3339), loopID, cycle, CommentPending)
	if err != nil {
		return 0, fmt.Errorf("mark cycle addressed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark cycle addressed: %w", err)
	}
	return n, nil
}

// CountPendingComments returns the number of unaddressed comments for a
// loop.
func (s *Store) CountPendingComments(loopID string) (int, error) {
	var count int
	err := s.QueryRow(
		"SELECT COUNT(*) FROM review_comments WHERE loop_id = ? AND status = ?",
		loopID, CommentPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending comments: %w", err)
	}
	return count, nil
}

// LatestReviewCycle returns the highest cycle number recorded for a loop,
// zero when the log is empty.
func (s *Store) LatestReviewCycle(loopID string) (int, error) {
	var cycle int
	err := s.QueryRow(
		"SELECT COALESCE(MAX(review_cycle), 0) FROM review_comments WHERE loop_id = ?",
		loopID).Scan(&cycle)
	if err != nil {
		return 0, fmt.Errorf("latest review cycle: %w", err)
	}
	return cycle, nil
}

// DeleteLoopComments removes every comment belonging to a loop.
func (s *Store) DeleteLoopComments(loopID string) error {
	_, err := s.Exec("DELETE FROM review_comments WHERE loop_id = ?", loopID)
	if err != nil {
		return fmt.Errorf("delete loop comments: %w", err)
	}
	return nil
}

func scanReviewComment(scan func(dest ...any) error) (*ReviewComment, error) {
	var c ReviewComment
	var createdAt string
	var addressedAt sql.NullString

	if err := scan(&c.ID, &c.LoopID, &c.ReviewCycle, &c.Content, &c.Status,
		&createdAt, &addressedAt); err != nil {
		return nil, err
	}

	c.CreatedAt = parseTimestamp(createdAt)
	if addressedAt.Valid {
		t := parseTimestamp(addressedAt.String)
		c.AddressedAt = &t
	}
	return &c, nil
}

// generateCommentID generates a unique review comment ID.
func generateCommentID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "RC-" + hex.EncodeToString(b)[:8]
}
