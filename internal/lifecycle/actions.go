package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"

	gyreerr "github.com/gyrelabs/gyre/internal/errors"
	"github.com/gyrelabs/gyre/internal/loop"
)

// DraftUpdate carries the fields updateDraft may change. Nil fields are
// left alone.
type DraftUpdate struct {
	Name          *string
	Prompt        *string
	Model         *string
	BaseBranch    *string
	MaxIterations *int
}

// UpdateDraft mutates an unstarted draft's configuration.
func (m *Machine) UpdateDraft(id string, upd DraftUpdate) (*loop.Loop, error) {
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if l.Status != loop.StatusDraft {
			return m.reject(l, "updateDraft")
		}
		if upd.Name != nil {
			if *upd.Name == "" {
				return fmt.Errorf("loop name cannot be empty")
			}
			l.Name = *upd.Name
		}
		if upd.Prompt != nil {
			l.Prompt = *upd.Prompt
		}
		if upd.Model != nil {
			l.Model = *upd.Model
		}
		if upd.BaseBranch != nil {
			l.BaseBranch = *upd.BaseBranch
		}
		if upd.MaxIterations != nil {
			l.MaxIterations = *upd.MaxIterations
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("updateDraft", loop.StatusDraft, loop.StatusDraft, l)
	return l, nil
}

// StartOptions tunes the start action.
type StartOptions struct {
	// PlanMode routes a draft into planning instead of starting the run.
	PlanMode bool

	// AllowDirty skips the uncommitted-changes guard after the user has
	// explicitly resolved to run anyway.
	AllowDirty bool
}

// Start promotes an entry-status loop into its run. With PlanMode the loop
// enters planning behind the plan gate; otherwise it moves to starting.
// A dirty working tree rejects the start with UncommittedChangesError and
// the record untouched.
func (m *Machine) Start(id string, opts StartOptions) (*loop.Loop, error) {
	var from loop.Status
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if !loop.IsEntry(l.Status) {
			return m.reject(l, "start")
		}
		if opts.PlanMode && l.Status != loop.StatusDraft {
			return m.reject(l, "start")
		}
		if m.workspace != nil && !opts.AllowDirty {
			files, err := m.workspace.DirtyFiles()
			if err != nil {
				return fmt.Errorf("check working tree: %w", err)
			}
			if len(files) > 0 {
				return gyreerr.ErrUncommittedChanges(files)
			}
		}

		from = l.Status
		if opts.PlanMode {
			l.BeginPlanning()
			l.Status = loop.StatusPlanning
			return nil
		}
		m.enterStarting(l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("start", from, l.Status, l)
	m.logger.Info("loop started", "loop", id, "status", l.Status)
	return l, nil
}

// enterStarting moves a record into starting for a fresh run. The
// iteration counter resets per run; StartedAt keeps the first start.
func (m *Machine) enterStarting(l *loop.Loop) {
	l.Status = loop.StatusStarting
	l.Iteration = 0
	l.Error = nil
	l.Tracker = nil
	if l.StartedAt == nil {
		now := m.clock.Now().UTC()
		l.StartedAt = &now
	}
}

// SendPlanFeedback records one round of user feedback against the plan.
// The text is written into the loop's plan folder for the planning session
// to pick up; readiness is untouched.
func (m *Machine) SendPlanFeedback(id, text string) (*loop.Loop, error) {
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		p, ok := l.Planning()
		if !ok || l.Status != loop.StatusPlanning {
			return m.reject(l, "sendPlanFeedback")
		}
		p.RecordFeedback()
		if text != "" {
			dir := loop.PlanDirIn(m.root, l.ID)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create plan folder: %w", err)
			}
			name := fmt.Sprintf("feedback-%03d.md", p.FeedbackRounds)
			if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644); err != nil {
				return fmt.Errorf("write plan feedback: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("sendPlanFeedback", loop.StatusPlanning, loop.StatusPlanning, l)
	return l, nil
}

// ClearPlanFolder wipes the loop's planning scratch folder. The
// PlanState guard makes the wipe fire at most once per planning session;
// later calls return without touching the folder.
func (m *Machine) ClearPlanFolder(id string) (*loop.Loop, error) {
	return m.withLoop(id, func(l *loop.Loop) error {
		p, ok := l.Planning()
		if !ok || l.Status != loop.StatusPlanning {
			return m.reject(l, "clearPlanFolder")
		}
		if !p.ClaimFolderClear() {
			return nil
		}
		dir := loop.PlanDirIn(m.root, l.ID)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clear plan folder: %w", err)
		}
		return os.MkdirAll(dir, 0o755)
	})
}

// PlanReady marks the plan generated. Set only from the external
// plan-generation-complete signal, never inferred by the machine.
func (m *Machine) PlanReady(id string) (*loop.Loop, error) {
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		p, ok := l.Planning()
		if !ok || l.Status != loop.StatusPlanning {
			return m.reject(l, "planReady")
		}
		p.MarkReady()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("planReady", loop.StatusPlanning, loop.StatusPlanning, l)
	return l, nil
}

// AcceptPlan moves a plan-ready loop into starting and discards the plan
// state.
func (m *Machine) AcceptPlan(id string) (*loop.Loop, error) {
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		p, ok := l.Planning()
		if !ok || l.Status != loop.StatusPlanning {
			return m.reject(l, "acceptPlan")
		}
		if !p.IsPlanReady {
			return m.reject(l, "acceptPlan")
		}
		l.EndActivity()
		m.enterStarting(l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("acceptPlan", loop.StatusPlanning, loop.StatusStarting, l)
	m.logger.Info("plan accepted", "loop", id)
	return l, nil
}

// DiscardPlan abandons a planning loop. The record moves to deleted and
// becomes purge-eligible.
func (m *Machine) DiscardPlan(id string) (*loop.Loop, error) {
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if l.Status != loop.StatusPlanning {
			return m.reject(l, "discardPlan")
		}
		l.EndActivity()
		l.Status = loop.StatusDeleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("discardPlan", loop.StatusPlanning, loop.StatusDeleted, l)
	return l, nil
}

// SetPending queues one-shot prompt/model overrides for the next
// iteration. Legal while the loop is active or finalized-but-addressable;
// each non-nil field replaces any previously queued value.
func (m *Machine) SetPending(id string, prompt, model *string) (*loop.Loop, error) {
	var from loop.Status
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if !loop.IsActive(l.Status) && !l.IsAddressable() {
			return m.reject(l, "setPending")
		}
		if prompt == nil && model == nil {
			return fmt.Errorf("nothing to queue: prompt or model required")
		}
		from = l.Status
		if prompt != nil {
			l.QueuePrompt(*prompt)
		}
		if model != nil {
			l.QueueModel(*model)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("setPending", from, from, l)
	return l, nil
}

// ClearPending drops any queued update. Idempotent, legal in any status.
func (m *Machine) ClearPending(id string) (*loop.Loop, error) {
	var from loop.Status
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		from = l.Status
		l.ClearPending()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("clearPending", from, from, l)
	return l, nil
}

// Delete logically removes a loop from any non-terminal status. Any plan
// or sync activity is discarded; ReviewState survives so a later purge
// decision still sees the review history.
func (m *Machine) Delete(id string) (*loop.Loop, error) {
	var from loop.Status
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if loop.IsTerminal(l.Status) {
			return m.reject(l, "delete")
		}
		from = l.Status
		l.EndActivity()
		l.Status = loop.StatusDeleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("delete", from, loop.StatusDeleted, l)
	m.logger.Info("loop deleted", "loop", id, "from", from)
	return l, nil
}

// Purge permanently removes a deleted loop: record files, DB mirror, and
// with it the comment and event rows. Irreversible.
func (m *Machine) Purge(id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if !loop.ExistsIn(m.root, id) {
		return gyreerr.ErrLoopNotFound(id)
	}
	l, err := loop.LoadFrom(m.root, id)
	if err != nil {
		return err
	}
	if l.Status != loop.StatusDeleted {
		return gyreerr.RejectTransition(id, "purge", string(l.Status))
	}

	if err := loop.PurgeIn(m.root, id); err != nil {
		return err
	}
	if m.store != nil {
		// Comment rows cascade from the loops row; the event log keeps no
		// foreign key and is cleared explicitly.
		if err := m.store.DeleteLoopEvents(id); err != nil {
			m.logger.Warn("purge event log failed", "loop", id, "error", err)
		}
		if err := m.store.DeleteLoop(id); err != nil {
			m.logger.Warn("purge mirror delete failed", "loop", id, "error", err)
		}
	}

	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()

	m.logger.Info("loop purged", "loop", id)
	return nil
}
