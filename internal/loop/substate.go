package loop

// PlanState tracks the plan-review gate while a loop is planning. It is
// created on start(planMode) and discarded when the loop leaves planning,
// so feedback rounds never leak between planning sessions.
type PlanState struct {
	// Active is true for the lifetime of the planning session.
	Active bool `yaml:"active" json:"active"`

	// FeedbackRounds counts user feedback messages sent against the draft
	// plan. It never decrements.
	FeedbackRounds int `yaml:"feedback_rounds" json:"feedback_rounds"`

	// PlanningFolderCleared guards the scratch-folder wipe so it fires at
	// most once per planning session, even across retries.
	PlanningFolderCleared bool `yaml:"planning_folder_cleared" json:"planning_folder_cleared"`

	// IsPlanReady is set only by the plan-generation-complete signal. It is
	// the single gate for accepting the plan.
	IsPlanReady bool `yaml:"is_plan_ready" json:"is_plan_ready"`
}

// NewPlanState opens a fresh planning session with every gate unset.
func NewPlanState() *PlanState {
	return &PlanState{Active: true}
}

// RecordFeedback counts one round of user feedback against the plan.
func (p *PlanState) RecordFeedback() {
	p.FeedbackRounds++
}

// MarkReady records the external plan-generation-complete signal.
func (p *PlanState) MarkReady() {
	p.IsPlanReady = true
}

// ClaimFolderClear returns true exactly once per PlanState. Callers wipe
// the scratch folder only when it returns true.
func (p *PlanState) ClaimFolderClear() bool {
	if p.PlanningFolderCleared {
		return false
	}
	p.PlanningFolderCleared = true
	return true
}

// CompletionAction is how a finalized loop's work was integrated.
type CompletionAction string

const (
	ActionPush  CompletionAction = "push"
	ActionMerge CompletionAction = "merge"
)

// ReviewState tracks post-finalization review cycles. It is created the
// first time a loop reaches merged or pushed and persists for the rest of
// the record's life, including after deletion.
type ReviewState struct {
	// Addressable is decided once at creation. When false, addressComments
	// is always rejected.
	Addressable bool `yaml:"addressable" json:"addressable"`

	// CompletionAction records whether the loop merged into the base branch
	// or pushed its own branch. It decides review-cycle branch handling.
	CompletionAction CompletionAction `yaml:"completion_action" json:"completion_action"`

	// ReviewCycles counts accepted addressComments calls.
	ReviewCycles int `yaml:"review_cycles" json:"review_cycles"`

	// ReviewBranches lists the branches created for merge-path review
	// cycles, in cycle order. Push-path cycles append nothing.
	ReviewBranches []string `yaml:"review_branches,omitempty" json:"review_branches,omitempty"`
}

// NewReviewState builds the review record created at first finalization.
func NewReviewState(action CompletionAction, addressable bool) *ReviewState {
	return &ReviewState{
		Addressable:      addressable,
		CompletionAction: action,
	}
}

// SyncStatus is the progress of a branch synchronization session.
type SyncStatus string

const (
	SyncSyncing   SyncStatus = "syncing"
	SyncClean     SyncStatus = "clean"
	SyncConflicts SyncStatus = "conflicts"
	SyncResolved  SyncStatus = "resolved"
)

// SyncPhase names which branch a synchronization session is reconciling.
type SyncPhase string

const (
	PhaseWorkingBranch SyncPhase = "working_branch" // pull remote into working branch
	PhaseBaseBranch    SyncPhase = "base_branch"    // merge working branch into base
	PhaseAbsent        SyncPhase = "absent"
)

// SyncState tracks the two-phase reconciliation of a loop's working branch
// with its base branch during finalization. Transient: created when the
// sync starts, discarded when finalization completes or is abandoned.
type SyncState struct {
	Status SyncStatus `yaml:"status" json:"status"`

	// BaseBranch is the branch the working branch reconciles against.
	BaseBranch string `yaml:"base_branch" json:"base_branch"`

	// AutoPushOnComplete is captured at sync start and honored exactly
	// once after the sync resolves.
	AutoPushOnComplete bool `yaml:"auto_push_on_complete" json:"auto_push_on_complete"`

	// Phase is the reconciliation step currently in flight.
	Phase SyncPhase `yaml:"phase" json:"phase"`

	// Action decides the status a successful session lands in: merge
	// finalizes to merged, push to pushed.
	Action CompletionAction `yaml:"action" json:"action"`

	// Origin is the status the session was entered from. Abandoning the
	// session restores it unchanged.
	Origin Status `yaml:"origin" json:"origin"`
}

// NewSyncState opens a synchronization session against the given base.
func NewSyncState(action CompletionAction, origin Status, baseBranch string, autoPush bool) *SyncState {
	return &SyncState{
		Status:             SyncSyncing,
		BaseBranch:         baseBranch,
		AutoPushOnComplete: autoPush,
		Phase:              PhaseWorkingBranch,
		Action:             action,
		Origin:             origin,
	}
}

// InConflict returns true while the session waits on conflict resolution.
func (s *SyncState) InConflict() bool {
	return s.Status == SyncConflicts
}

// TargetStatus is the status a successful session finalizes into.
func (s *SyncState) TargetStatus() Status {
	if s.Action == ActionPush {
		return StatusPushed
	}
	return StatusMerged
}

// Activity is the phase payload attached to a loop record. Exactly one
// variant is held at a time, so the type system rules out a record carrying
// plan and sync state together.
type Activity interface {
	isActivity()
}

// NoActivity is the variant for statuses with no phase payload.
type NoActivity struct{}

// PlanningActivity carries the plan gate while the loop is planning.
type PlanningActivity struct {
	Plan *PlanState
}

// SyncingActivity carries branch-sync progress during finalization.
type SyncingActivity struct {
	Sync *SyncState
}

func (NoActivity) isActivity()       {}
func (PlanningActivity) isActivity() {}
func (SyncingActivity) isActivity()  {}
