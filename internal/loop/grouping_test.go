package loop

import (
	"fmt"
	"testing"
	"time"
)

func loopWithStatus(id string, s Status) *Loop {
	l := New(id, id, StatusIdle, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	l.Status = s
	return l
}

func TestGroupOf(t *testing.T) {
	planningReady := loopWithStatus("LOOP-002", StatusPlanning)
	planningReady.BeginPlanning().MarkReady()

	planningNotReady := loopWithStatus("LOOP-003", StatusPlanning)
	planningNotReady.BeginPlanning()

	addressable := loopWithStatus("LOOP-005", StatusPushed)
	addressable.Review = NewReviewState(ActionPush, true)

	notAddressable := loopWithStatus("LOOP-006", StatusMerged)
	notAddressable.Review = NewReviewState(ActionMerge, false)

	tests := []struct {
		name string
		l    *Loop
		want Group
	}{
		{"running", loopWithStatus("LOOP-001", StatusRunning), GroupActive},
		{"waiting", loopWithStatus("LOOP-001", StatusWaiting), GroupActive},
		{"starting", loopWithStatus("LOOP-001", StatusStarting), GroupActive},
		{"plan ready", planningReady, GroupNeedsReview},
		{"plan not ready", planningNotReady, GroupPlanning},
		{"completed", loopWithStatus("LOOP-004", StatusCompleted), GroupCompleted},
		{"pushed addressable", addressable, GroupAwaitingFeedback},
		{"merged not addressable", notAddressable, GroupArchived},
		{"deleted", loopWithStatus("LOOP-007", StatusDeleted), GroupArchived},
		{"draft", loopWithStatus("LOOP-008", StatusDraft), GroupDraft},
		{"idle", loopWithStatus("LOOP-009", StatusIdle), GroupOther},
		{"stopped", loopWithStatus("LOOP-010", StatusStopped), GroupOther},
		{"failed", loopWithStatus("LOOP-011", StatusFailed), GroupOther},
		{"resolving conflicts", loopWithStatus("LOOP-012", StatusResolvingConflicts), GroupOther},
	}

	for _, tt := range tests {
		if got := GroupOf(tt.l); got != tt.want {
			t.Errorf("%s: GroupOf = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestPartitionCoversEveryRecordOnce(t *testing.T) {
	var loops []*Loop
	for i, s := range ValidStatuses() {
		l := loopWithStatus(fmt.Sprintf("LOOP-%03d", i+1), s)
		if s == StatusPlanning {
			l.BeginPlanning()
		}
		if IsFinalized(s) {
			l.Review = NewReviewState(ActionMerge, true)
		}
		loops = append(loops, l)
	}

	groups := Partition(loops)

	if len(groups) != len(GroupOrder()) {
		t.Errorf("Partition returned %d buckets, want %d", len(groups), len(GroupOrder()))
	}

	total := 0
	for _, g := range GroupOrder() {
		total += len(groups[g])
	}
	if total != len(loops) {
		t.Errorf("buckets hold %d records, want %d (each exactly once)", total, len(loops))
	}
}

func TestPartitionEmptyBucketsPresent(t *testing.T) {
	groups := Partition(nil)
	for _, g := range GroupOrder() {
		if _, ok := groups[g]; !ok {
			t.Errorf("bucket %s missing from empty partition", g)
		}
	}
}

func TestGroupCounts(t *testing.T) {
	loops := []*Loop{
		loopWithStatus("LOOP-001", StatusRunning),
		loopWithStatus("LOOP-002", StatusRunning),
		loopWithStatus("LOOP-003", StatusDraft),
	}

	counts := GroupCounts(loops)
	if counts[GroupActive] != 2 {
		t.Errorf("active count = %d, want 2", counts[GroupActive])
	}
	if counts[GroupDraft] != 1 {
		t.Errorf("draft count = %d, want 1", counts[GroupDraft])
	}
	if counts[GroupCompleted] != 0 {
		t.Errorf("completed count = %d, want 0", counts[GroupCompleted])
	}
}

func TestGroupingPrecedence(t *testing.T) {
	// A deleted loop that once finalized with addressable review must land
	// in archived, not awaitingFeedback: deletion revokes addressability.
	l := loopWithStatus("LOOP-001", StatusDeleted)
	l.Review = NewReviewState(ActionPush, true)

	if got := GroupOf(l); got != GroupArchived {
		t.Errorf("deleted loop grouped as %s, want archived", got)
	}
}
