package lifecycle

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gyrelabs/gyre/internal/loop"
	"github.com/gyrelabs/gyre/internal/store"
)

// driveFinalized runs a fresh loop to completed and through a clean
// finalization session.
func driveFinalized(t *testing.T, m *Machine, action loop.CompletionAction) *loop.Loop {
	t.Helper()
	l := mustStatus(t, m, loop.StatusCompleted)

	var err error
	if action == loop.ActionPush {
		_, err = m.Push(l.ID)
	} else {
		_, err = m.Accept(l.ID, false)
	}
	if err != nil {
		t.Fatalf("begin finalize: %v", err)
	}
	if _, err := m.SyncPhaseDone(l.ID); err != nil {
		t.Fatalf("working_branch phase: %v", err)
	}
	if _, err := m.SyncPhaseDone(l.ID); err != nil {
		t.Fatalf("base_branch phase: %v", err)
	}
	final, err := m.FinishSync(l.ID)
	if err != nil {
		t.Fatalf("FinishSync() error = %v", err)
	}
	return final
}

func TestAccept(t *testing.T) {
	m, _ := newTestMachine(t)
	l := mustStatus(t, m, loop.StatusCompleted)

	updated, err := m.Accept(l.ID, true)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if updated.Status != loop.StatusResolvingConflicts {
		t.Fatalf("Status = %s, want resolving_conflicts", updated.Status)
	}
	s, ok := updated.Syncing()
	if !ok {
		t.Fatal("SyncState missing after accept")
	}
	if s.Status != loop.SyncSyncing || s.Phase != loop.PhaseWorkingBranch {
		t.Errorf("SyncState = %+v, want syncing/working_branch", s)
	}
	if s.Action != loop.ActionMerge || s.Origin != loop.StatusCompleted {
		t.Errorf("SyncState = %+v, want merge action with completed origin", s)
	}
	if s.BaseBranch != "main" || !s.AutoPushOnComplete {
		t.Errorf("SyncState = %+v, want main base with auto push", s)
	}
}

func TestAccept_RejectedWhenActive(t *testing.T) {
	m, _ := newTestMachine(t)
	l := mustStatus(t, m, loop.StatusRunning)

	_, err := m.Accept(l.ID, false)
	assertRejected(t, err, "accept")
}

func TestAccept_LegalFromEveryOutcome(t *testing.T) {
	m, _ := newTestMachine(t)

	for _, target := range []loop.Status{loop.StatusCompleted, loop.StatusStopped, loop.StatusFailed} {
		l := mustStatus(t, m, target)
		updated, err := m.Accept(l.ID, false)
		if err != nil {
			t.Fatalf("Accept() from %s error = %v", target, err)
		}
		s, _ := updated.Syncing()
		if s.Origin != target {
			t.Errorf("Origin = %s, want %s", s.Origin, target)
		}
		if target == loop.StatusFailed && updated.Error != nil {
			t.Error("Error detail must clear when leaving failed")
		}
	}
}

// completed → push → resolving_conflicts{syncing} → clean → pushed with a
// fresh push-path ReviewState.
func TestPushFinalizesClean(t *testing.T) {
	m, _ := newTestMachine(t)

	final := driveFinalized(t, m, loop.ActionPush)
	if final.Status != loop.StatusPushed {
		t.Fatalf("Status = %s, want pushed", final.Status)
	}
	if _, ok := final.Syncing(); ok {
		t.Error("SyncState still present after finalization")
	}
	r := final.Review
	if r == nil {
		t.Fatal("ReviewState missing after finalization")
	}
	if r.CompletionAction != loop.ActionPush || r.ReviewCycles != 0 || len(r.ReviewBranches) != 0 {
		t.Errorf("ReviewState = %+v, want push action with zero cycles", r)
	}
	if !r.Addressable {
		t.Error("ReviewState not addressable")
	}
	if final.FinalizedAt == nil {
		t.Error("FinalizedAt not set")
	}
}

func TestAcceptFinalizesToMerged(t *testing.T) {
	m, _ := newTestMachine(t)

	final := driveFinalized(t, m, loop.ActionMerge)
	if final.Status != loop.StatusMerged {
		t.Fatalf("Status = %s, want merged", final.Status)
	}
	if final.Review.CompletionAction != loop.ActionMerge {
		t.Errorf("CompletionAction = %s, want merge", final.Review.CompletionAction)
	}
}

func TestSyncPhases(t *testing.T) {
	m, _ := newTestMachine(t)
	l := mustStatus(t, m, loop.StatusCompleted)
	if _, err := m.Accept(l.ID, false); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	updated, err := m.SyncPhaseDone(l.ID)
	if err != nil {
		t.Fatalf("SyncPhaseDone() error = %v", err)
	}
	s, _ := updated.Syncing()
	if s.Phase != loop.PhaseBaseBranch || s.Status != loop.SyncSyncing {
		t.Errorf("after phase one: %+v, want base_branch/syncing", s)
	}

	updated, err = m.SyncPhaseDone(l.ID)
	if err != nil {
		t.Fatalf("SyncPhaseDone() error = %v", err)
	}
	s, _ = updated.Syncing()
	if s.Phase != loop.PhaseAbsent || s.Status != loop.SyncClean {
		t.Errorf("after phase two: %+v, want absent/clean", s)
	}
}

func TestFinishSync_RequiresClean(t *testing.T) {
	m, _ := newTestMachine(t)
	l := mustStatus(t, m, loop.StatusCompleted)
	if _, err := m.Accept(l.ID, false); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	_, err := m.FinishSync(l.ID)
	assertRejected(t, err, "finalize")
}

func TestSyncConflicts(t *testing.T) {
	m, _ := newTestMachine(t)
	l := mustStatus(t, m, loop.StatusCompleted)
	if _, err := m.Accept(l.ID, false); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	updated, err := m.SyncConflictsDetected(l.ID, []string{"main.go"})
	if err != nil {
		t.Fatalf("SyncConflictsDetected() error = %v", err)
	}
	s, _ := updated.Syncing()
	if !s.InConflict() {
		t.Fatalf("SyncState = %+v, want conflicts", s)
	}

	// While conflicted, only resolution is accepted.
	if _, err := m.SyncPhaseDone(l.ID); err == nil {
		t.Error("SyncPhaseDone() accepted during conflicts")
	}
	if _, err := m.FinishSync(l.ID); err == nil {
		t.Error("FinishSync() accepted during conflicts")
	}

	// Resolution completes the interrupted phase.
	updated, err = m.SyncConflictsResolved(l.ID)
	if err != nil {
		t.Fatalf("SyncConflictsResolved() error = %v", err)
	}
	s, _ = updated.Syncing()
	if s.Phase != loop.PhaseBaseBranch || s.Status != loop.SyncSyncing {
		t.Errorf("after resolution: %+v, want base_branch/syncing", s)
	}
}

func TestStop_AbandonsSync(t *testing.T) {
	m, _ := newTestMachine(t)
	l := mustStatus(t, m, loop.StatusCompleted)
	if _, err := m.Accept(l.ID, false); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if _, err := m.SyncConflictsDetected(l.ID, []string{"main.go"}); err != nil {
		t.Fatalf("SyncConflictsDetected() error = %v", err)
	}

	stopped, err := m.Stop(l.ID)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if stopped.Status != loop.StatusCompleted {
		t.Errorf("Status = %s, want the sync origin completed", stopped.Status)
	}
	if _, ok := stopped.Syncing(); ok {
		t.Error("SyncState survived the abandon")
	}

	// The loop can be finalized again from scratch.
	if _, err := m.Accept(l.ID, false); err != nil {
		t.Errorf("Accept() after abandon error = %v", err)
	}
}

func TestAbandonSync_PreservesReview(t *testing.T) {
	m, _ := newTestMachine(t)
	final := driveFinalized(t, m, loop.ActionPush)

	if _, err := m.UpdateBranch(final.ID); err != nil {
		t.Fatalf("UpdateBranch() error = %v", err)
	}
	restored, err := m.AbandonSync(final.ID)
	if err != nil {
		t.Fatalf("AbandonSync() error = %v", err)
	}
	if restored.Status != loop.StatusPushed {
		t.Errorf("Status = %s, want pushed restored", restored.Status)
	}
	if restored.Review == nil || restored.Review.CompletionAction != loop.ActionPush {
		t.Errorf("ReviewState corrupted by abandon: %+v", restored.Review)
	}
}

// pushed loop with addressable review: addressComments bumps the cycle,
// returns no branch proposal, and re-enters starting.
func TestAddressComments_PushPath(t *testing.T) {
	m, _ := newTestMachine(t)
	final := driveFinalized(t, m, loop.ActionPush)

	updated, proposed, err := m.AddressComments(final.ID, "fix X")
	if err != nil {
		t.Fatalf("AddressComments() error = %v", err)
	}
	if proposed != "" {
		t.Errorf("proposed branch = %q, want none on the push path", proposed)
	}
	if updated.Status != loop.StatusStarting {
		t.Errorf("Status = %s, want starting", updated.Status)
	}
	if updated.Review.ReviewCycles != 1 {
		t.Errorf("ReviewCycles = %d, want 1", updated.Review.ReviewCycles)
	}
	if len(updated.Review.ReviewBranches) != 0 {
		t.Errorf("ReviewBranches = %v, want empty", updated.Review.ReviewBranches)
	}
	if updated.Iteration != 0 {
		t.Errorf("Iteration = %d, want reset for the addressing run", updated.Iteration)
	}
}

// merged loop on its second cycle: exactly one deterministic branch name
// is proposed and committed only via confirmation.
func TestAddressComments_MergePath(t *testing.T) {
	m, _ := newTestMachine(t)
	final := driveFinalized(t, m, loop.ActionMerge)

	updated, proposed, err := m.AddressComments(final.ID, "fix Y")
	if err != nil {
		t.Fatalf("AddressComments() error = %v", err)
	}
	if proposed != "gyre/crash-fix-rev1" {
		t.Errorf("proposed branch = %q, want gyre/crash-fix-rev1", proposed)
	}
	if len(updated.Review.ReviewBranches) != 0 {
		t.Errorf("ReviewBranches = %v, want empty before confirmation", updated.Review.ReviewBranches)
	}

	confirmed, err := m.ConfirmReviewBranch(final.ID, proposed)
	if err != nil {
		t.Fatalf("ConfirmReviewBranch() error = %v", err)
	}
	if len(confirmed.Review.ReviewBranches) != 1 || confirmed.Review.ReviewBranches[0] != proposed {
		t.Errorf("ReviewBranches = %v, want [%s]", confirmed.Review.ReviewBranches, proposed)
	}
	if confirmed.Branch != proposed {
		t.Errorf("Branch = %q, want the review branch", confirmed.Branch)
	}

	// Re-confirming is a no-op.
	again, err := m.ConfirmReviewBranch(final.ID, proposed)
	if err != nil {
		t.Fatalf("ConfirmReviewBranch() repeat error = %v", err)
	}
	if len(again.Review.ReviewBranches) != 1 {
		t.Errorf("ReviewBranches = %v after repeat confirm", again.Review.ReviewBranches)
	}
}

func TestAddressComments_NotAddressable(t *testing.T) {
	m, _ := newTestMachine(t)
	final := driveFinalized(t, m, loop.ActionPush)

	// Revoke addressability directly on the record.
	final.Review.Addressable = false
	if err := final.SaveTo(m.root); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	_, _, err := m.AddressComments(final.ID, "fix X")
	assertRejected(t, err, "addressComments")

	got, _ := m.Get(final.ID)
	if got.Review.ReviewCycles != 0 {
		t.Errorf("ReviewCycles = %d, want untouched", got.Review.ReviewCycles)
	}
}

func TestUpdateBranch(t *testing.T) {
	m, clk := newTestMachine(t)
	final := driveFinalized(t, m, loop.ActionPush)
	firstFinalized := *final.FinalizedAt
	clk.Advance(time.Hour)

	updated, err := m.UpdateBranch(final.ID)
	if err != nil {
		t.Fatalf("UpdateBranch() error = %v", err)
	}
	if updated.Status != loop.StatusResolvingConflicts {
		t.Fatalf("Status = %s, want resolving_conflicts", updated.Status)
	}
	s, _ := updated.Syncing()
	if s.Origin != loop.StatusPushed || s.TargetStatus() != loop.StatusPushed {
		t.Errorf("SyncState = %+v, want pushed origin and target", s)
	}

	if _, err := m.SyncPhaseDone(final.ID); err != nil {
		t.Fatalf("SyncPhaseDone() error = %v", err)
	}
	if _, err := m.SyncPhaseDone(final.ID); err != nil {
		t.Fatalf("SyncPhaseDone() error = %v", err)
	}
	done, err := m.FinishSync(final.ID)
	if err != nil {
		t.Fatalf("FinishSync() error = %v", err)
	}
	if done.Status != loop.StatusPushed {
		t.Errorf("Status = %s, want pushed after update", done.Status)
	}
	if !done.FinalizedAt.Equal(firstFinalized) {
		t.Errorf("FinalizedAt = %v, want first finalization kept", done.FinalizedAt)
	}
}

func TestUpdateBranch_RejectedWhenMerged(t *testing.T) {
	m, _ := newTestMachine(t)
	final := driveFinalized(t, m, loop.ActionMerge)

	_, err := m.UpdateBranch(final.ID)
	assertRejected(t, err, "updateBranch")
}

func TestMarkMerged(t *testing.T) {
	m, _ := newTestMachine(t)
	final := driveFinalized(t, m, loop.ActionMerge)

	updated, err := m.MarkMerged(final.ID)
	if err != nil {
		t.Fatalf("MarkMerged() error = %v", err)
	}
	if updated.Status != loop.StatusMerged {
		t.Errorf("Status = %s, want merged unchanged", updated.Status)
	}
	if updated.Review.ReviewCycles != 0 {
		t.Errorf("ReviewState touched by resync: %+v", updated.Review)
	}
}

func TestMarkMerged_RejectedWhenPushed(t *testing.T) {
	m, _ := newTestMachine(t)
	final := driveFinalized(t, m, loop.ActionPush)

	_, err := m.MarkMerged(final.ID)
	assertRejected(t, err, "markMerged")
}

// A full review cycle against a real store: the comment lands pending,
// the addressing run re-finalizes, and the cycle's comments flip to
// addressed in bulk.
func TestReviewCycleFlipsComments(t *testing.T) {
	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := New(t.TempDir(), st, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.clock = newFakeClock()

	final := driveFinalized(t, m, loop.ActionPush)

	if _, _, err := m.AddressComments(final.ID, "tighten the retry budget"); err != nil {
		t.Fatalf("AddressComments() error = %v", err)
	}
	pending, err := st.ListReviewComments(final.ID, store.CommentPending)
	if err != nil {
		t.Fatalf("ListReviewComments() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ReviewCycle != 1 {
		t.Fatalf("pending comments = %+v, want one in cycle 1", pending)
	}

	// Addressing run completes and re-finalizes.
	if _, err := m.MarkRunning(final.ID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if _, err := m.MarkCompleted(final.ID); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if _, err := m.Push(final.ID); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if _, err := m.SyncPhaseDone(final.ID); err != nil {
		t.Fatalf("SyncPhaseDone() error = %v", err)
	}
	if _, err := m.SyncPhaseDone(final.ID); err != nil {
		t.Fatalf("SyncPhaseDone() error = %v", err)
	}
	if _, err := m.FinishSync(final.ID); err != nil {
		t.Fatalf("FinishSync() error = %v", err)
	}

	addressed, err := st.ListReviewComments(final.ID, store.CommentAddressed)
	if err != nil {
		t.Fatalf("ListReviewComments() error = %v", err)
	}
	if len(addressed) != 1 {
		t.Fatalf("addressed comments = %+v, want one", addressed)
	}
	if addressed[0].AddressedAt == nil {
		t.Error("AddressedAt not stamped")
	}

	count, err := st.CountPendingComments(final.ID)
	if err != nil {
		t.Fatalf("CountPendingComments() error = %v", err)
	}
	if count != 0 {
		t.Errorf("pending count = %d, want 0", count)
	}
}

// The DB mirror follows every transition.
func TestStoreMirror(t *testing.T) {
	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := New(t.TempDir(), st, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.clock = newFakeClock()

	l := mustCreate(t, m, CreateRequest{Name: "mirrored", Prompt: "p", BaseBranch: "main"})
	row, err := st.GetLoop(l.ID)
	if err != nil || row == nil {
		t.Fatalf("GetLoop() = %v, %v", row, err)
	}
	if row.Status != string(loop.StatusIdle) {
		t.Errorf("mirror status = %q, want idle", row.Status)
	}

	if _, err := m.Start(l.ID, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	row, _ = st.GetLoop(l.ID)
	if row.Status != string(loop.StatusStarting) {
		t.Errorf("mirror status = %q, want starting", row.Status)
	}

	if err := st.SaveEvents([]store.EventRow{{LoopID: l.ID, EventType: "status_change"}}); err != nil {
		t.Fatalf("SaveEvents() error = %v", err)
	}

	if _, err := m.Delete(l.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := m.Purge(l.ID); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	row, err = st.GetLoop(l.ID)
	if err != nil {
		t.Fatalf("GetLoop() after purge error = %v", err)
	}
	if row != nil {
		t.Errorf("mirror row survived purge: %+v", row)
	}
	events, err := st.ListEvents(l.ID, 0)
	if err != nil {
		t.Fatalf("ListEvents() after purge error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("event log survived purge: %+v", events)
	}
}
