package lifecycle

import (
	"fmt"
	"strings"

	"github.com/gyrelabs/gyre/internal/loop"
	"github.com/gyrelabs/gyre/internal/store"
	"github.com/gyrelabs/gyre/internal/util"
)

// Accept finalizes an outcome-status loop by merging its working branch
// into the base branch. The record moves to resolving_conflicts while the
// sync engine reconciles; autoPush pushes the base branch once the merge
// lands.
func (m *Machine) Accept(id string, autoPush bool) (*loop.Loop, error) {
	return m.beginFinalize(id, "accept", loop.ActionMerge, autoPush)
}

// Push finalizes an outcome-status loop by pushing its working branch for
// external review. The push itself happens after the sync resolves.
func (m *Machine) Push(id string) (*loop.Loop, error) {
	return m.beginFinalize(id, "push", loop.ActionPush, true)
}

func (m *Machine) beginFinalize(id, action string, act loop.CompletionAction, autoPush bool) (*loop.Loop, error) {
	var from loop.Status
	var s *loop.SyncState
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if !loop.IsOutcome(l.Status) {
			return m.reject(l, action)
		}
		if l.BaseBranch == "" {
			return fmt.Errorf("loop %s has no base branch configured", id)
		}
		from = l.Status
		s = l.BeginSync(act, l.BaseBranch, autoPush)
		l.Status = loop.StatusResolvingConflicts
		l.Error = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition(action, from, loop.StatusResolvingConflicts, l)
	m.events.Sync(id, s, nil)
	m.logger.Info("finalization started", "loop", id, "action", act, "base", s.BaseBranch)
	return l, nil
}

// UpdateBranch re-syncs a pushed loop's branch with its base and queues a
// re-push. The record traverses resolving_conflicts and lands back on
// pushed when the session finishes.
func (m *Machine) UpdateBranch(id string) (*loop.Loop, error) {
	var s *loop.SyncState
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if l.Status != loop.StatusPushed {
			return m.reject(l, "updateBranch")
		}
		if l.BaseBranch == "" {
			return fmt.Errorf("loop %s has no base branch configured", id)
		}
		s = l.BeginSync(loop.ActionPush, l.BaseBranch, true)
		l.Status = loop.StatusResolvingConflicts
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("updateBranch", loop.StatusPushed, loop.StatusResolvingConflicts, l)
	m.events.Sync(id, s, nil)
	return l, nil
}

// MarkMerged accepts the resync of a merged loop: the engine re-pulls the
// base branch and deletes the working branch. Status and ReviewState are
// untouched.
func (m *Machine) MarkMerged(id string) (*loop.Loop, error) {
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if l.Status != loop.StatusMerged {
			return m.reject(l, "markMerged")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("markMerged", loop.StatusMerged, loop.StatusMerged, l)
	return l, nil
}

// SyncConflictsDetected parks the sync session on conflicts. The record
// stays readable but accepts nothing except resolution or abandonment
// until SyncConflictsResolved.
func (m *Machine) SyncConflictsDetected(id string, files []string) (*loop.Loop, error) {
	var s *loop.SyncState
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		sy, ok := l.Syncing()
		if !ok || l.Status != loop.StatusResolvingConflicts {
			return m.reject(l, "syncConflicts")
		}
		sy.Status = loop.SyncConflicts
		s = sy
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Sync(id, s, files)
	m.logger.Warn("sync conflicts", "loop", id, "phase", s.Phase, "files", len(files))
	return l, nil
}

// SyncConflictsResolved records that the conflicted merge was completed
// by hand. The interrupted phase counts as done and the session advances.
func (m *Machine) SyncConflictsResolved(id string) (*loop.Loop, error) {
	var s *loop.SyncState
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		sy, ok := l.Syncing()
		if !ok || l.Status != loop.StatusResolvingConflicts {
			return m.reject(l, "syncResolved")
		}
		if sy.Status != loop.SyncConflicts {
			return m.reject(l, "syncResolved")
		}
		advanceSyncPhase(sy)
		s = sy
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Sync(id, s, nil)
	return l, nil
}

// SyncPhaseDone advances a conflict-free sync session: working_branch to
// base_branch, then base_branch to clean.
func (m *Machine) SyncPhaseDone(id string) (*loop.Loop, error) {
	var s *loop.SyncState
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		sy, ok := l.Syncing()
		if !ok || l.Status != loop.StatusResolvingConflicts {
			return m.reject(l, "syncPhase")
		}
		if sy.Status != loop.SyncSyncing {
			return m.reject(l, "syncPhase")
		}
		advanceSyncPhase(sy)
		s = sy
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Sync(id, s, nil)
	return l, nil
}

func advanceSyncPhase(s *loop.SyncState) {
	switch s.Phase {
	case loop.PhaseWorkingBranch:
		s.Phase = loop.PhaseBaseBranch
		s.Status = loop.SyncSyncing
	case loop.PhaseBaseBranch:
		s.Phase = loop.PhaseAbsent
		s.Status = loop.SyncClean
	}
}

// FinishSync completes a clean session. The record lands on the session's
// target status, the sync state is discarded, ReviewState is created on
// first finalization, and the pending comments of the cycle being
// addressed flip to addressed in bulk.
func (m *Machine) FinishSync(id string) (*loop.Loop, error) {
	var from, target loop.Status
	var cycle int
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		s, ok := l.Syncing()
		if !ok || l.Status != loop.StatusResolvingConflicts {
			return m.reject(l, "finalize")
		}
		if s.Status != loop.SyncClean {
			return m.reject(l, "finalize")
		}
		from = l.Status
		s.Status = loop.SyncResolved
		target = s.TargetStatus()
		action := s.Action

		l.EndActivity()
		l.Status = target
		if l.Review == nil {
			l.Review = loop.NewReviewState(action, true)
		}
		if l.FinalizedAt == nil {
			now := m.clock.Now().UTC()
			l.FinalizedAt = &now
		}
		cycle = l.Review.ReviewCycles
		return nil
	})
	if err != nil {
		return nil, err
	}

	if m.store != nil && cycle >= 1 {
		n, err := m.store.MarkCycleAddressed(id, cycle, m.clock.Now().UTC())
		if err != nil {
			m.logger.Warn("comment flip failed", "loop", id, "cycle", cycle, "error", err)
		} else if n > 0 {
			pending, _ := m.store.CountPendingComments(id)
			m.events.Comment(id, cycle, pending)
		}
	}

	m.events.Transition("finalize", from, target, l)
	m.logger.Info("loop finalized", "loop", id, "status", target)
	return l, nil
}

// AbandonSync drops a resolving_conflicts session and restores the status
// the sync was entered from. Used by the engine on unrecoverable git
// errors; Stop covers the user-initiated path.
func (m *Machine) AbandonSync(id string) (*loop.Loop, error) {
	var from, to loop.Status
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		s, ok := l.Syncing()
		if !ok || l.Status != loop.StatusResolvingConflicts {
			return m.reject(l, "abandonSync")
		}
		from = l.Status
		to = s.Origin
		l.Status = to
		l.EndActivity()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("abandonSync", from, to, l)
	m.logger.Info("sync abandoned", "loop", id, "restored", to)
	return l, nil
}

// AddressComments submits reviewer feedback against a finalized loop and
// re-runs it. The review cycle increments exactly once, the comment is
// appended to the log keyed by the new cycle, and the loop re-enters
// starting. On the merge path the returned branch name is the proposed
// working branch for the cycle; the caller confirms it with
// ConfirmReviewBranch once the branch exists. Push-path cycles reuse the
// existing branch and return an empty name.
func (m *Machine) AddressComments(id, text string) (*loop.Loop, string, error) {
	if text == "" {
		return nil, "", fmt.Errorf("comment text is required")
	}
	var from loop.Status
	var proposed string
	var cycle, pending int
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if !l.IsAddressable() {
			return m.reject(l, "addressComments")
		}
		from = l.Status
		cycle = l.Review.ReviewCycles + 1

		if m.store != nil {
			c := &store.ReviewComment{
				LoopID:      id,
				ReviewCycle: cycle,
				Content:     text,
				CreatedAt:   m.clock.Now().UTC(),
			}
			if err := m.store.CreateReviewComment(c); err != nil {
				return fmt.Errorf("record review comment: %w", err)
			}
			pending, _ = m.store.CountPendingComments(id)
		}

		l.Review.ReviewCycles = cycle
		if l.Review.CompletionAction == loop.ActionMerge {
			proposed = m.reviewBranchName(l, cycle)
		}
		m.enterStarting(l)
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if m.store != nil {
		m.events.Comment(id, cycle, pending)
	}
	m.events.Transition("addressComments", from, loop.StatusStarting, l)
	m.logger.Info("review cycle opened", "loop", id, "cycle", cycle, "branch", proposed)
	return l, proposed, nil
}

// ConfirmReviewBranch commits a proposed review-cycle branch after the
// branch was actually created. Re-confirming the same name is a no-op, so
// retried confirmations never duplicate entries.
func (m *Machine) ConfirmReviewBranch(id, branch string) (*loop.Loop, error) {
	if branch == "" {
		return nil, fmt.Errorf("branch name is required")
	}
	return m.withLoop(id, func(l *loop.Loop) error {
		if l.Review == nil || l.Review.CompletionAction != loop.ActionMerge {
			return m.reject(l, "confirmReviewBranch")
		}
		for _, b := range l.Review.ReviewBranches {
			if b == branch {
				l.Branch = branch
				return nil
			}
		}
		l.Review.ReviewBranches = append(l.Review.ReviewBranches, branch)
		l.Branch = branch
		return nil
	})
}

// reviewBranchName derives the deterministic branch for a merge-path
// review cycle. Unique per cycle because the cycle number is part of the
// name.
func (m *Machine) reviewBranchName(l *loop.Loop, cycle int) string {
	slug := util.Slugify(l.Name)
	if slug == "" {
		slug = strings.ToLower(l.ID)
	}
	return fmt.Sprintf("%s%s-rev%d", m.opts.BranchPrefix, slug, cycle)
}
