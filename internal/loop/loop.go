package loop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gyrelabs/gyre/internal/util"
)

const (
	// GyreDir is the gyre state directory inside a project.
	GyreDir = ".gyre"
	// LoopsDir is the subdirectory holding one directory per loop.
	LoopsDir = "loops"
	// PlanDir is the per-loop scratch folder used during planning.
	PlanDir = "plan"
)

// ErrorDetail records why a loop failed. Set only while status == failed.
type ErrorDetail struct {
	Message   string    `yaml:"message" json:"message"`
	Iteration int       `yaml:"iteration" json:"iteration"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
}

// Loop is the aggregate root for one coding-agent session. The record is
// created once and mutated in place by the lifecycle machine for its entire
// life; deletion is logical (status deleted) until an explicit purge removes
// the files.
type Loop struct {
	// ID is the unique identifier (e.g., LOOP-001).
	ID string

	// Name is a short human-readable label; review-cycle branch names are
	// derived from it.
	Name string

	// Prompt is the instruction the agent iterates on.
	Prompt string

	// Model is the model reference used for iterations. Empty means the
	// configured default.
	Model string

	// BaseBranch is the branch the working branch was cut from and will
	// reconcile against during finalization.
	BaseBranch string

	// Branch is the git working branch for this loop (e.g., gyre/LOOP-001).
	Branch string

	// Status is the current lifecycle state.
	Status Status

	// Iteration counts completed agent turns.
	Iteration int

	// MaxIterations overrides the configured ceiling when > 0.
	MaxIterations int

	// Review persists from the first time the loop reaches merged or
	// pushed, through every later review cycle, and after deletion.
	Review *ReviewState

	// Pending holds the one-shot prompt/model override queue.
	Pending *PendingUpdate

	// Tracker is the consecutive-error failsafe state. Nil after any
	// successful iteration.
	Tracker *ErrorTracker

	// Error is set only while status == failed.
	Error *ErrorDetail

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	FinalizedAt *time.Time

	// activity is the tagged phase payload: planning and syncing state are
	// variants of one field, so the record can never hold both.
	activity Activity
}

// New creates a loop record in the given entry status. Callers pass
// StatusDraft for editable drafts and StatusIdle for ready-to-run loops.
func New(id, name string, entry Status, now time.Time) *Loop {
	if !IsEntry(entry) {
		entry = StatusIdle
	}
	return &Loop{
		ID:        id,
		Name:      name,
		Status:    entry,
		Branch:    "gyre/" + id,
		CreatedAt: now,
		UpdatedAt: now,
		activity:  NoActivity{},
	}
}

// Activity returns the current phase payload variant.
func (l *Loop) Activity() Activity {
	if l.activity == nil {
		return NoActivity{}
	}
	return l.activity
}

// Planning returns the plan state while the loop is planning.
func (l *Loop) Planning() (*PlanState, bool) {
	a, ok := l.Activity().(PlanningActivity)
	if !ok {
		return nil, false
	}
	return a.Plan, true
}

// Syncing returns the sync state while finalization is reconciling
// branches.
func (l *Loop) Syncing() (*SyncState, bool) {
	a, ok := l.Activity().(SyncingActivity)
	if !ok {
		return nil, false
	}
	return a.Sync, true
}

// BeginPlanning installs a fresh plan gate, replacing any prior phase
// payload.
func (l *Loop) BeginPlanning() *PlanState {
	p := NewPlanState()
	l.activity = PlanningActivity{Plan: p}
	return p
}

// BeginSync opens a synchronization session, replacing any prior phase
// payload. The loop's current status is captured as the session origin, so
// callers begin the sync before moving the status to resolving_conflicts.
func (l *Loop) BeginSync(action CompletionAction, baseBranch string, autoPush bool) *SyncState {
	s := NewSyncState(action, l.Status, baseBranch, autoPush)
	l.activity = SyncingActivity{Sync: s}
	return s
}

// EndActivity discards the current phase payload.
func (l *Loop) EndActivity() {
	l.activity = NoActivity{}
}

// IsAddressable returns true when reviewer feedback can still be submitted.
func (l *Loop) IsAddressable() bool {
	return IsFinalized(l.Status) && l.Review != nil && l.Review.Addressable
}

// EffectiveMaxIterations resolves the iteration ceiling: the per-loop
// override wins, otherwise the configured default. Zero means unbounded.
func (l *Loop) EffectiveMaxIterations(configured int) int {
	if l.MaxIterations > 0 {
		return l.MaxIterations
	}
	return configured
}

// loopFile is the serialized shape of a record. The activity variant maps
// to the optional plan/sync fields; at most one may be present.
type loopFile struct {
	ID            string         `yaml:"id" json:"id"`
	Name          string         `yaml:"name" json:"name"`
	Prompt        string         `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Model         string         `yaml:"model,omitempty" json:"model,omitempty"`
	BaseBranch    string         `yaml:"base_branch,omitempty" json:"base_branch,omitempty"`
	Branch        string         `yaml:"branch" json:"branch"`
	Status        Status         `yaml:"status" json:"status"`
	Iteration     int            `yaml:"iteration" json:"iteration"`
	MaxIterations int            `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	Plan          *PlanState     `yaml:"plan,omitempty" json:"plan,omitempty"`
	Sync          *SyncState     `yaml:"sync,omitempty" json:"sync,omitempty"`
	Review        *ReviewState   `yaml:"review,omitempty" json:"review,omitempty"`
	Pending       *PendingUpdate `yaml:"pending,omitempty" json:"pending,omitempty"`
	Tracker       *ErrorTracker  `yaml:"error_tracker,omitempty" json:"error_tracker,omitempty"`
	Error         *ErrorDetail   `yaml:"error,omitempty" json:"error,omitempty"`
	CreatedAt     time.Time      `yaml:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `yaml:"updated_at" json:"updated_at"`
	StartedAt     *time.Time     `yaml:"started_at,omitempty" json:"started_at,omitempty"`
	FinalizedAt   *time.Time     `yaml:"finalized_at,omitempty" json:"finalized_at,omitempty"`
}

func (l *Loop) toFile() *loopFile {
	f := &loopFile{
		ID:            l.ID,
		Name:          l.Name,
		Prompt:        l.Prompt,
		Model:         l.Model,
		BaseBranch:    l.BaseBranch,
		Branch:        l.Branch,
		Status:        l.Status,
		Iteration:     l.Iteration,
		MaxIterations: l.MaxIterations,
		Review:        l.Review,
		Pending:       l.Pending,
		Tracker:       l.Tracker,
		Error:         l.Error,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
		StartedAt:     l.StartedAt,
		FinalizedAt:   l.FinalizedAt,
	}
	switch a := l.Activity().(type) {
	case PlanningActivity:
		f.Plan = a.Plan
	case SyncingActivity:
		f.Sync = a.Sync
	}
	return f
}

func (l *Loop) fromFile(f *loopFile) error {
	if f.Plan != nil && f.Sync != nil {
		return fmt.Errorf("loop %s: plan and sync state both present", f.ID)
	}
	l.ID = f.ID
	l.Name = f.Name
	l.Prompt = f.Prompt
	l.Model = f.Model
	l.BaseBranch = f.BaseBranch
	l.Branch = f.Branch
	l.Status = f.Status
	l.Iteration = f.Iteration
	l.MaxIterations = f.MaxIterations
	l.Review = f.Review
	l.Pending = f.Pending
	l.Tracker = f.Tracker
	l.Error = f.Error
	l.CreatedAt = f.CreatedAt
	l.UpdatedAt = f.UpdatedAt
	l.StartedAt = f.StartedAt
	l.FinalizedAt = f.FinalizedAt
	switch {
	case f.Plan != nil:
		l.activity = PlanningActivity{Plan: f.Plan}
	case f.Sync != nil:
		l.activity = SyncingActivity{Sync: f.Sync}
	default:
		l.activity = NoActivity{}
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (l *Loop) MarshalYAML() (any, error) {
	return l.toFile(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Loop) UnmarshalYAML(value *yaml.Node) error {
	var f loopFile
	if err := value.Decode(&f); err != nil {
		return err
	}
	return l.fromFile(&f)
}

// MarshalJSON implements json.Marshaler for event and API payloads.
func (l *Loop) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.toFile())
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Loop) UnmarshalJSON(data []byte) error {
	var f loopFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	return l.fromFile(&f)
}

// DirIn returns the directory path for a loop in a specific project.
func DirIn(projectDir, id string) string {
	return filepath.Join(projectDir, GyreDir, LoopsDir, id)
}

// PlanDirIn returns the planning scratch folder for a loop.
func PlanDirIn(projectDir, id string) string {
	return filepath.Join(DirIn(projectDir, id), PlanDir)
}

// LoadFrom loads a loop from a specific project directory.
func LoadFrom(projectDir, id string) (*Loop, error) {
	path := filepath.Join(DirIn(projectDir, id), "loop.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("loop %s not found", id)
		}
		return nil, fmt.Errorf("read loop %s: %w", id, err)
	}

	var l Loop
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse loop %s: %w", id, err)
	}
	return &l, nil
}

// SaveTo persists the loop into a project directory using atomic writes.
func (l *Loop) SaveTo(projectDir string) error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal loop: %w", err)
	}

	path := filepath.Join(DirIn(projectDir, l.ID), "loop.yaml")
	if err := util.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write loop: %w", err)
	}
	return nil
}

// ExistsIn returns true if a loop record exists in the project.
func ExistsIn(projectDir, id string) bool {
	_, err := os.Stat(filepath.Join(DirIn(projectDir, id), "loop.yaml"))
	return err == nil
}

// LoadAllFrom loads every loop record under a project directory, newest
// first. Unreadable entries are skipped.
func LoadAllFrom(projectDir string) ([]*Loop, error) {
	loopsDir := filepath.Join(projectDir, GyreDir, LoopsDir)
	entries, err := os.ReadDir(loopsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read loops directory: %w", err)
	}

	var loops []*Loop
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(loopsDir, entry.Name(), "loop.yaml"))
		if err != nil {
			continue
		}
		var l Loop
		if err := yaml.Unmarshal(data, &l); err != nil {
			continue
		}
		loops = append(loops, &l)
	}

	sort.Slice(loops, func(i, j int) bool {
		return loops[i].CreatedAt.After(loops[j].CreatedAt)
	})
	return loops, nil
}

// PurgeIn removes a loop's files permanently. Only logically deleted
// records may be purged.
func PurgeIn(projectDir, id string) error {
	l, err := LoadFrom(projectDir, id)
	if err != nil {
		return err
	}
	if l.Status != StatusDeleted {
		return fmt.Errorf("cannot purge loop %s in status %s", id, l.Status)
	}
	return os.RemoveAll(DirIn(projectDir, id))
}

var loopIDPattern = regexp.MustCompile(`^LOOP-(\d+)$`)

// NextIDIn generates the next loop ID (LOOP-001, LOOP-002, ...) for a
// project directory.
func NextIDIn(projectDir string) (string, error) {
	loopsDir := filepath.Join(projectDir, GyreDir, LoopsDir)
	entries, err := os.ReadDir(loopsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "LOOP-001", nil
		}
		return "", fmt.Errorf("read loops directory: %w", err)
	}

	maxNum := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		matches := loopIDPattern.FindStringSubmatch(entry.Name())
		if len(matches) == 2 {
			num, _ := strconv.Atoi(matches[1])
			if num > maxNum {
				maxNum = num
			}
		}
	}
	return fmt.Sprintf("LOOP-%03d", maxNum+1), nil
}
