// Package lifecycle implements the guarded state machine that owns every
// loop record. All mutations for one record are serialized behind a
// per-record mutex; guards read the freshly loaded record under that lock,
// so a status checked by a guard can never be stale when the mutation
// lands. Records are independent and transition in parallel.
package lifecycle

import (
	"fmt"
	"log/slog"
	"sync"

	gyreerr "github.com/gyrelabs/gyre/internal/errors"
	"github.com/gyrelabs/gyre/internal/events"
	"github.com/gyrelabs/gyre/internal/loop"
	"github.com/gyrelabs/gyre/internal/store"
)

// Options tunes machine behavior. Zero values fall back to defaults via
// DefaultOptions, except MaxIterations where zero means unbounded.
type Options struct {
	// MaxConsecutiveErrors is the failsafe ceiling: this many identical
	// iteration errors in a row force the loop to failed.
	MaxConsecutiveErrors int

	// MaxIterations is the default iteration ceiling. Per-loop overrides
	// win; zero disables the ceiling.
	MaxIterations int

	// BranchPrefix prefixes every working and review-cycle branch name.
	BranchPrefix string
}

// DefaultOptions returns the default machine configuration.
func DefaultOptions() *Options {
	return &Options{
		MaxConsecutiveErrors: 10,
		MaxIterations:        30,
		BranchPrefix:         "gyre/",
	}
}

// WorkingCopy reports the state of the project's git working tree. The
// start guard uses it to refuse runs on top of uncommitted changes.
type WorkingCopy interface {
	// DirtyFiles lists paths with uncommitted changes. Empty means clean.
	DirtyFiles() ([]string, error)
}

// Machine is the single writer of loop records. Loop files under root are
// the source of truth; the store mirror and event stream are best-effort
// side channels that never block or fail a transition.
type Machine struct {
	root      string
	store     *store.Store
	events    *events.PublishHelper
	workspace WorkingCopy
	clock     Clock
	opts      *Options
	logger    *slog.Logger

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	createMu sync.Mutex
}

// New creates a lifecycle machine rooted at a project directory. The store
// and workspace may be nil: a nil store disables the DB mirror and the
// review-comment log, a nil workspace skips the dirty-tree start guard.
func New(root string, st *store.Store, publisher events.Publisher, workspace WorkingCopy, opts *Options, logger *slog.Logger) *Machine {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.BranchPrefix == "" {
		opts.BranchPrefix = "gyre/"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Machine{
		root:      root,
		store:     st,
		events:    events.NewPublishHelper(publisher),
		workspace: workspace,
		clock:     SystemClock{},
		opts:      opts,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Root returns the project directory the machine operates on.
func (m *Machine) Root() string {
	return m.root
}

// Store returns the DB mirror, nil when the machine runs without one.
func (m *Machine) Store() *store.Store {
	return m.store
}

func (m *Machine) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// withLoop runs fn against the record for id under its mutex, then stamps
// UpdatedAt, persists, and mirrors. fn returning an error aborts without
// writing anything, which is what keeps rejected transitions free of
// partial application.
func (m *Machine) withLoop(id string, fn func(l *loop.Loop) error) (*loop.Loop, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if !loop.ExistsIn(m.root, id) {
		return nil, gyreerr.ErrLoopNotFound(id)
	}
	l, err := loop.LoadFrom(m.root, id)
	if err != nil {
		return nil, err
	}

	if err := fn(l); err != nil {
		return nil, err
	}

	l.UpdatedAt = m.clock.Now().UTC()
	if err := l.SaveTo(m.root); err != nil {
		return nil, err
	}
	m.mirror(l)
	return l, nil
}

// mirror upserts the record into the DB. Mirror failures are logged and
// swallowed: the YAML file already holds the truth.
func (m *Machine) mirror(l *loop.Loop) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveLoop(store.RowFromLoop(l)); err != nil {
		m.logger.Warn("loop mirror write failed", "loop", l.ID, "error", err)
	}
}

func (m *Machine) reject(l *loop.Loop, action string) error {
	return gyreerr.RejectTransition(l.ID, action, string(l.Status))
}

// CreateRequest carries the fields settable at loop creation.
type CreateRequest struct {
	Name          string
	Prompt        string
	Model         string
	BaseBranch    string
	MaxIterations int

	// Draft creates the loop editable instead of ready-to-run.
	Draft bool
}

// Create allocates the next loop ID and writes a new record in its entry
// status.
func (m *Machine) Create(req CreateRequest) (*loop.Loop, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("loop name is required")
	}

	// ID allocation scans the loops directory, so creations serialize
	// against each other rather than per record.
	m.createMu.Lock()
	defer m.createMu.Unlock()

	id, err := loop.NextIDIn(m.root)
	if err != nil {
		return nil, err
	}

	entry := loop.StatusIdle
	if req.Draft {
		entry = loop.StatusDraft
	}

	l := loop.New(id, req.Name, entry, m.clock.Now().UTC())
	l.Prompt = req.Prompt
	l.Model = req.Model
	l.BaseBranch = req.BaseBranch
	l.MaxIterations = req.MaxIterations
	l.Branch = m.opts.BranchPrefix + id

	if err := l.SaveTo(m.root); err != nil {
		return nil, err
	}
	m.mirror(l)
	m.events.Transition("create", "", l.Status, l)

	m.logger.Info("loop created", "loop", id, "name", req.Name, "status", l.Status)
	return l, nil
}

// Get loads a single record. Loop files are written atomically, so reads
// do not take the record lock.
func (m *Machine) Get(id string) (*loop.Loop, error) {
	if !loop.ExistsIn(m.root, id) {
		return nil, gyreerr.ErrLoopNotFound(id)
	}
	return loop.LoadFrom(m.root, id)
}

// List returns every record in the project, newest first.
func (m *Machine) List() ([]*loop.Loop, error) {
	return loop.LoadAllFrom(m.root)
}
