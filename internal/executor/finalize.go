package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gyrelabs/gyre/internal/git"
	"github.com/gyrelabs/gyre/internal/hosting"
	"github.com/gyrelabs/gyre/internal/lifecycle"
	"github.com/gyrelabs/gyre/internal/loop"
)

// DefaultRemote is the remote the sync engine reconciles against.
const DefaultRemote = "origin"

// Finalizer runs the git side of a resolving_conflicts session. Phase
// working_branch pulls remote changes into the working branch; phase
// base_branch reconciles the working branch with the base: the merge path
// merges the work into base, the push path brings base into the working
// branch so the pushed branch is current. Either phase conflicting parks
// the session until resolution; a clean session finishes onto the
// machine's target status, with the captured auto-push honored once.
type Finalizer struct {
	machine  *lifecycle.Machine
	repo     *git.Git
	provider hosting.Provider
	agent    Agent
	logger   *slog.Logger

	remote       string
	commitPrefix string
}

// FinalizerOption configures a Finalizer.
type FinalizerOption func(*Finalizer)

// WithFinalizerProvider enables hosted-provider integration: a PR on
// push finalization, remote branch cleanup on merged resync.
func WithFinalizerProvider(p hosting.Provider) FinalizerOption {
	return func(f *Finalizer) { f.provider = p }
}

// WithFinalizerAgent enables agent-assisted conflict resolution.
func WithFinalizerAgent(a Agent) FinalizerOption {
	return func(f *Finalizer) { f.agent = a }
}

// WithFinalizerLogger sets the logger.
func WithFinalizerLogger(l *slog.Logger) FinalizerOption {
	return func(f *Finalizer) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithFinalizerRemote overrides the remote name.
func WithFinalizerRemote(remote string) FinalizerOption {
	return func(f *Finalizer) { f.remote = remote }
}

// WithFinalizerCommitPrefix sets the prefix for engine-created commits.
func WithFinalizerCommitPrefix(prefix string) FinalizerOption {
	return func(f *Finalizer) { f.commitPrefix = prefix }
}

// NewFinalizer creates a sync engine over the given machine and repo.
func NewFinalizer(machine *lifecycle.Machine, repo *git.Git, opts ...FinalizerOption) *Finalizer {
	f := &Finalizer{
		machine: machine,
		repo:    repo,
		logger:  slog.Default(),
		remote:  DefaultRemote,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Finalize drives a resolving_conflicts session until it finishes, parks
// on conflicts, or is taken away (stopped, abandoned). The returned
// record reflects where the session landed; conflicted sessions return
// with the record still on resolving_conflicts.
func (f *Finalizer) Finalize(ctx context.Context, id string) (*loop.Loop, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l, err := f.machine.Get(id)
		if err != nil {
			return nil, err
		}
		s, ok := l.Syncing()
		if !ok || l.Status != loop.StatusResolvingConflicts {
			// Session finished or was taken away under us.
			return l, nil
		}
		if s.InConflict() {
			return l, nil
		}

		switch {
		case s.Status == loop.SyncClean:
			return f.complete(ctx, id, l, s)

		case s.Phase == loop.PhaseWorkingBranch:
			conflicted, err := f.syncWorkingBranch(id, l)
			if err != nil {
				return f.abandon(id, err)
			}
			if conflicted {
				continue
			}
			if _, err := f.machine.SyncPhaseDone(id); err != nil {
				return nil, err
			}

		case s.Phase == loop.PhaseBaseBranch:
			conflicted, err := f.syncBaseBranch(id, l, s)
			if err != nil {
				return f.abandon(id, err)
			}
			if conflicted {
				continue
			}
			if _, err := f.machine.SyncPhaseDone(id); err != nil {
				return nil, err
			}

		default:
			return f.abandon(id, fmt.Errorf("sync session in unexpected phase %q", s.Phase))
		}
	}
}

// syncWorkingBranch pulls remote changes into the working branch. No
// remote counterpart means the phase is trivially done.
func (f *Finalizer) syncWorkingBranch(id string, l *loop.Loop) (conflicted bool, err error) {
	if err := f.repo.Checkout(l.Branch); err != nil {
		return false, fmt.Errorf("checkout %s: %w", l.Branch, err)
	}
	if !f.repo.HasRemote(f.remote) {
		return false, nil
	}
	exists, err := f.repo.RemoteBranchExists(f.remote, l.Branch)
	if err != nil || !exists {
		return false, nil
	}
	if err := f.repo.Pull(f.remote, l.Branch); err != nil {
		if errors.Is(err, git.ErrMergeConflict) {
			return true, f.parkOnConflicts(id)
		}
		return false, fmt.Errorf("pull %s: %w", l.Branch, err)
	}
	f.logger.Debug("working branch synced", "loop", id, "branch", l.Branch)
	return false, nil
}

// syncBaseBranch reconciles working branch and base. Merge sessions land
// the work in base; push sessions bring base into the working branch.
func (f *Finalizer) syncBaseBranch(id string, l *loop.Loop, s *loop.SyncState) (conflicted bool, err error) {
	if s.Action == loop.ActionMerge {
		if err := f.repo.Checkout(s.BaseBranch); err != nil {
			return false, fmt.Errorf("checkout %s: %w", s.BaseBranch, err)
		}
		if f.repo.HasRemote(f.remote) {
			if err := f.repo.Pull(f.remote, s.BaseBranch); err != nil && !errors.Is(err, git.ErrMergeConflict) {
				return false, fmt.Errorf("pull %s: %w", s.BaseBranch, err)
			}
		}
		if err := f.repo.Merge(l.Branch, true); err != nil {
			if errors.Is(err, git.ErrMergeConflict) {
				return true, f.parkOnConflicts(id)
			}
			return false, fmt.Errorf("merge %s into %s: %w", l.Branch, s.BaseBranch, err)
		}
		f.logger.Info("working branch merged", "loop", id, "branch", l.Branch, "base", s.BaseBranch)
		return false, nil
	}

	if err := f.repo.Checkout(l.Branch); err != nil {
		return false, fmt.Errorf("checkout %s: %w", l.Branch, err)
	}
	if f.repo.HasRemote(f.remote) {
		if err := f.repo.Fetch(f.remote); err != nil {
			return false, fmt.Errorf("fetch %s: %w", f.remote, err)
		}
	}
	base := s.BaseBranch
	if f.repo.HasRemote(f.remote) {
		if exists, _ := f.repo.RemoteBranchExists(f.remote, base); exists {
			base = f.remote + "/" + base
		}
	}
	if err := f.repo.Merge(base, false); err != nil {
		if errors.Is(err, git.ErrMergeConflict) {
			return true, f.parkOnConflicts(id)
		}
		return false, fmt.Errorf("merge %s into %s: %w", base, l.Branch, err)
	}
	f.logger.Info("working branch updated from base", "loop", id, "branch", l.Branch, "base", s.BaseBranch)
	return false, nil
}

// parkOnConflicts records the conflicted files and parks the session.
func (f *Finalizer) parkOnConflicts(id string) error {
	files, err := f.repo.ConflictedFiles()
	if err != nil {
		f.logger.Warn("list conflicted files", "loop", id, "error", err)
	}
	_, err = f.machine.SyncConflictsDetected(id, files)
	return err
}

// complete finishes a clean session and honors the captured auto-push.
func (f *Finalizer) complete(ctx context.Context, id string, l *loop.Loop, s *loop.SyncState) (*loop.Loop, error) {
	action := s.Action
	autoPush := s.AutoPushOnComplete
	baseBranch := s.BaseBranch
	branch := l.Branch

	final, err := f.machine.FinishSync(id)
	if err != nil {
		return nil, err
	}

	if autoPush && f.repo.HasRemote(f.remote) {
		target := branch
		if action == loop.ActionMerge {
			target = baseBranch
		}
		if err := f.repo.PushWithForceFallback(f.remote, target, true, f.logger); err != nil {
			f.logger.Error("post-sync push failed", "loop", id, "branch", target, "error", err)
		}
	}

	if action == loop.ActionPush && f.provider != nil {
		f.ensurePR(ctx, final, baseBranch)
	}

	return final, nil
}

// abandon drops the session on an unrecoverable git error and restores
// the origin status. Half-done merges are aborted first.
func (f *Finalizer) abandon(id string, cause error) (*loop.Loop, error) {
	if in, err := f.repo.MergeInProgress(); err == nil && in {
		if err := f.repo.MergeAbort(); err != nil {
			f.logger.Warn("merge abort failed", "loop", id, "error", err)
		}
	}
	l, err := f.machine.AbandonSync(id)
	if err != nil {
		f.logger.Error("abandon sync", "loop", id, "error", err)
		return nil, cause
	}
	f.logger.Error("sync abandoned on git error", "loop", id, "error", cause)
	return l, cause
}

// ensurePR opens a pull request for a pushed loop if one is not already
// open for its branch.
func (f *Finalizer) ensurePR(ctx context.Context, l *loop.Loop, baseBranch string) {
	if _, err := f.provider.FindPRByBranch(ctx, l.Branch); err == nil {
		return
	} else if !errors.Is(err, hosting.ErrNoPRFound) {
		f.logger.Warn("look up pull request", "loop", l.ID, "branch", l.Branch, "error", err)
		return
	}

	body := l.Prompt
	if len(body) > 2000 {
		body = body[:2000] + "\n..."
	}
	pr, err := f.provider.CreatePR(ctx, hosting.PRCreateOptions{
		Title: fmt.Sprintf("%s: %s", l.ID, l.Name),
		Body:  body,
		Head:  l.Branch,
		Base:  baseBranch,
	})
	if err != nil {
		f.logger.Warn("create pull request", "loop", l.ID, "branch", l.Branch, "error", err)
		return
	}
	f.logger.Info("pull request opened", "loop", l.ID, "pr", pr.Number, "url", pr.HTMLURL)
}

// Abort stops a conflicted session on the user's behalf: any in-progress
// merge is aborted and the record restored to the status the session was
// entered from. ReviewState survives.
func (f *Finalizer) Abort(id string) (*loop.Loop, error) {
	if in, err := f.repo.MergeInProgress(); err == nil && in {
		if err := f.repo.MergeAbort(); err != nil {
			f.logger.Warn("merge abort failed", "loop", id, "error", err)
		}
	}
	return f.machine.Stop(id)
}

// ResolveConflicts completes a conflicted session. With an agent
// configured the agent is asked to resolve the conflicted files first;
// without one the working tree is expected to be resolved already. The
// resolution is committed, the machine advances past the interrupted
// phase, and the session is driven on.
func (f *Finalizer) ResolveConflicts(ctx context.Context, id string) (*loop.Loop, error) {
	l, err := f.machine.Get(id)
	if err != nil {
		return nil, err
	}
	s, ok := l.Syncing()
	if !ok || !s.InConflict() {
		return l, nil
	}

	files, err := f.repo.ConflictedFiles()
	if err != nil {
		return nil, fmt.Errorf("list conflicted files: %w", err)
	}
	if len(files) > 0 && f.agent != nil {
		if err := f.resolveWithAgent(ctx, l, files); err != nil {
			return nil, err
		}
	}

	// Staging clears resolved paths from the unmerged list; whatever is
	// still listed was not actually resolved.
	if err := f.repo.StageAll(); err != nil {
		return nil, fmt.Errorf("stage resolution: %w", err)
	}
	if remaining, err := f.repo.ConflictedFiles(); err == nil && len(remaining) > 0 {
		return nil, fmt.Errorf("%d files still conflicted: %w", len(remaining), git.ErrMergeConflict)
	}
	msg := strings.TrimSpace(fmt.Sprintf("%s %s resolve sync conflicts", f.commitPrefix, id))
	if err := f.repo.Commit(msg); err != nil && !errors.Is(err, git.ErrNothingToCommit) {
		return nil, fmt.Errorf("commit resolution: %w", err)
	}

	if _, err := f.machine.SyncConflictsResolved(id); err != nil {
		return nil, err
	}
	return f.Finalize(ctx, id)
}

// resolveWithAgent runs one agent turn against the conflicted files.
func (f *Finalizer) resolveWithAgent(ctx context.Context, l *loop.Loop, files []string) error {
	prompt := fmt.Sprintf(
		"Resolve the merge conflicts in the following files, keeping the intent of both sides:\n%s\n\n"+
			"Edit each file to remove the conflict markers and leave the resolved content. Do not commit.",
		strings.Join(files, "\n"))

	turn, err := f.agent.Run(ctx, TurnRequest{Prompt: prompt, Model: l.Model})
	if err != nil {
		return fmt.Errorf("agent conflict resolution: %w", err)
	}
	if turn.IsError {
		return fmt.Errorf("agent conflict resolution: %s", turn.ErrorText)
	}
	f.logger.Info("agent resolved conflicts", "loop", l.ID, "files", len(files))
	return nil
}

// Resync performs the markMerged engine work for a merged loop: accept
// the resync on the machine, re-pull the base branch, and delete the
// working branch locally and remotely. ReviewState survives untouched.
func (f *Finalizer) Resync(ctx context.Context, id string) (*loop.Loop, error) {
	l, err := f.machine.MarkMerged(id)
	if err != nil {
		return nil, err
	}

	if err := f.repo.Checkout(l.BaseBranch); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", l.BaseBranch, err)
	}
	if f.repo.HasRemote(f.remote) {
		if err := f.repo.Pull(f.remote, l.BaseBranch); err != nil {
			// The authoritative merge already happened on the remote, so a
			// conflicted refresh is abandoned rather than parked.
			if errors.Is(err, git.ErrMergeConflict) {
				_ = f.repo.MergeAbort()
			}
			f.logger.Warn("pull base branch", "loop", id, "error", err)
		}
	}

	if l.Branch != "" && l.Branch != l.BaseBranch {
		if err := f.repo.DeleteBranch(l.Branch, true); err != nil && !errors.Is(err, git.ErrBranchNotFound) {
			f.logger.Warn("delete working branch", "loop", id, "branch", l.Branch, "error", err)
		}
		f.deleteRemoteBranch(ctx, id, l.Branch)
	}

	f.logger.Info("merged loop resynced", "loop", id, "base", l.BaseBranch)
	return l, nil
}

func (f *Finalizer) deleteRemoteBranch(ctx context.Context, id, branch string) {
	if f.provider != nil {
		if err := f.provider.DeleteBranch(ctx, branch); err != nil {
			f.logger.Warn("delete remote branch", "loop", id, "branch", branch, "error", err)
		}
		return
	}
	if !f.repo.HasRemote(f.remote) {
		return
	}
	if exists, _ := f.repo.RemoteBranchExists(f.remote, branch); !exists {
		return
	}
	if err := f.repo.DeleteRemoteBranch(f.remote, branch); err != nil {
		f.logger.Warn("delete remote branch", "loop", id, "branch", branch, "error", err)
	}
}

// OpenReviewCycle submits reviewer feedback and prepares the next cycle's
// working branch. Merge-path cycles cut the proposed branch from base and
// confirm it with the machine; push-path cycles reuse the branch.
func (f *Finalizer) OpenReviewCycle(id, text string) (*loop.Loop, error) {
	l, proposed, err := f.machine.AddressComments(id, text)
	if err != nil {
		return nil, err
	}
	if proposed == "" {
		return l, nil
	}

	if err := f.repo.EnsureBranchExists(proposed, l.BaseBranch); err != nil {
		return nil, fmt.Errorf("create review branch %s: %w", proposed, err)
	}
	if err := f.repo.Checkout(proposed); err != nil {
		return nil, fmt.Errorf("checkout review branch %s: %w", proposed, err)
	}
	confirmed, err := f.machine.ConfirmReviewBranch(id, proposed)
	if err != nil {
		return nil, err
	}
	f.logger.Info("review branch ready", "loop", id, "branch", proposed)
	return confirmed, nil
}
