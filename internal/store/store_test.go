package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gyrelabs/gyre/internal/loop"
)

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "gyre.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}

	// Verify pragmas are set
	var journalMode string
	if err := s.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}
}

func TestOpen_CreatesParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, ".gyre", "nested", "gyre.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.Close()
}

func TestOpen_Migrates(t *testing.T) {
	s := openTestStore(t)

	tables := []string{"loops", "review_comments", "event_log"}
	for _, table := range tables {
		var name string
		err := s.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}

	// Running migrations again is a no-op
	if err := s.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

func TestSaveLoop_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	started := now.Add(time.Minute)
	row := &LoopRow{
		ID:           "LOOP-001",
		Name:         "Fix flaky tests",
		Status:       string(loop.StatusRunning),
		Branch:       "gyre/LOOP-001",
		BaseBranch:   "main",
		Model:        "sonnet",
		Iteration:    3,
		ReviewCycles: 0,
		CreatedAt:    now,
		UpdatedAt:    now,
		StartedAt:    &started,
	}

	if err := s.SaveLoop(row); err != nil {
		t.Fatalf("SaveLoop failed: %v", err)
	}

	got, err := s.GetLoop("LOOP-001")
	if err != nil {
		t.Fatalf("GetLoop failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetLoop returned nil for existing loop")
	}
	if got.Name != row.Name {
		t.Errorf("Name = %q, want %q", got.Name, row.Name)
	}
	if got.Status != row.Status {
		t.Errorf("Status = %q, want %q", got.Status, row.Status)
	}
	if got.Iteration != 3 {
		t.Errorf("Iteration = %d, want 3", got.Iteration)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.FinalizedAt != nil {
		t.Errorf("FinalizedAt = %v, want nil", got.FinalizedAt)
	}
}

func TestSaveLoop_Upsert(t *testing.T) {
	s := openTestStore(t)

	row := testLoopRow("LOOP-001")
	if err := s.SaveLoop(row); err != nil {
		t.Fatalf("SaveLoop failed: %v", err)
	}

	row.Status = string(loop.StatusCompleted)
	row.Iteration = 7
	if err := s.SaveLoop(row); err != nil {
		t.Fatalf("second SaveLoop failed: %v", err)
	}

	got, err := s.GetLoop("LOOP-001")
	if err != nil {
		t.Fatalf("GetLoop failed: %v", err)
	}
	if got.Status != string(loop.StatusCompleted) {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.Iteration != 7 {
		t.Errorf("Iteration = %d, want 7", got.Iteration)
	}

	var count int
	if err := s.QueryRow("SELECT COUNT(*) FROM loops").Scan(&count); err != nil {
		t.Fatalf("count loops: %v", err)
	}
	if count != 1 {
		t.Errorf("loop count = %d, want 1", count)
	}
}

func TestGetLoop_Missing(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetLoop("LOOP-999")
	if err != nil {
		t.Fatalf("GetLoop failed: %v", err)
	}
	if got != nil {
		t.Errorf("GetLoop = %+v, want nil", got)
	}
}

func TestListLoops_NewestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"LOOP-001", "LOOP-002", "LOOP-003"} {
		row := testLoopRow(id)
		row.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		row.UpdatedAt = row.CreatedAt
		if err := s.SaveLoop(row); err != nil {
			t.Fatalf("SaveLoop %s failed: %v", id, err)
		}
	}

	rows, err := s.ListLoops()
	if err != nil {
		t.Fatalf("ListLoops failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("ListLoops returned %d rows, want 3", len(rows))
	}
	if rows[0].ID != "LOOP-003" || rows[2].ID != "LOOP-001" {
		t.Errorf("order = %s, %s, %s; want newest first", rows[0].ID, rows[1].ID, rows[2].ID)
	}
}

func TestDeleteLoop_CascadesComments(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveLoop(testLoopRow("LOOP-001")); err != nil {
		t.Fatalf("SaveLoop failed: %v", err)
	}
	c := &ReviewComment{LoopID: "LOOP-001", Content: "rename this"}
	if err := s.CreateReviewComment(c); err != nil {
		t.Fatalf("CreateReviewComment failed: %v", err)
	}

	if err := s.DeleteLoop("LOOP-001"); err != nil {
		t.Fatalf("DeleteLoop failed: %v", err)
	}

	var count int
	if err := s.QueryRow("SELECT COUNT(*) FROM review_comments").Scan(&count); err != nil {
		t.Fatalf("count comments: %v", err)
	}
	if count != 0 {
		t.Errorf("comments after cascade = %d, want 0", count)
	}
}

func TestRowFromLoop(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := loop.New("LOOP-004", "Add retry budget", loop.StatusIdle, now)
	l.Status = loop.StatusPushed
	l.Review = loop.NewReviewState(loop.ActionPush, true)
	l.Review.ReviewCycles = 2

	row := RowFromLoop(l)
	if row.ID != "LOOP-004" {
		t.Errorf("ID = %q, want LOOP-004", row.ID)
	}
	if row.Status != string(loop.StatusPushed) {
		t.Errorf("Status = %q, want pushed", row.Status)
	}
	if row.ReviewCycles != 2 {
		t.Errorf("ReviewCycles = %d, want 2", row.ReviewCycles)
	}
	if row.Branch != "gyre/LOOP-004" {
		t.Errorf("Branch = %q, want gyre/LOOP-004", row.Branch)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testLoopRow(id string) *LoopRow {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &LoopRow{
		ID:         id,
		Name:       "loop " + id,
		Status:     string(loop.StatusRunning),
		Branch:     "gyre/" + id,
		BaseBranch: "main",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
