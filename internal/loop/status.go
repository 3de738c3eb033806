// Package loop provides the loop record model for gyre.
package loop

// Status represents the current lifecycle state of a loop.
type Status string

const (
	StatusIdle     Status = "idle"  // created ready-to-run, never started
	StatusDraft    Status = "draft" // created editable, promoted via start
	StatusPlanning Status = "planning"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusWaiting  Status = "waiting"
	StatusCompleted     Status = "completed"      // stop pattern seen in agent output
	StatusStopped       Status = "stopped"        // user-initiated stop
	StatusFailed        Status = "failed"         // unrecoverable error or failsafe trip
	StatusMaxIterations Status = "max_iterations" // iteration ceiling reached
	StatusResolvingConflicts Status = "resolving_conflicts"
	StatusMerged             Status = "merged"
	StatusPushed             Status = "pushed"
	StatusDeleted            Status = "deleted"
)

// ValidStatuses returns all valid status values.
func ValidStatuses() []Status {
	return []Status{
		StatusIdle, StatusDraft, StatusPlanning, StatusStarting,
		StatusRunning, StatusWaiting, StatusCompleted, StatusStopped,
		StatusFailed, StatusMaxIterations, StatusResolvingConflicts,
		StatusMerged, StatusPushed, StatusDeleted,
	}
}

// IsValidStatus returns true if the status is a valid status value.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusIdle, StatusDraft, StatusPlanning, StatusStarting,
		StatusRunning, StatusWaiting, StatusCompleted, StatusStopped,
		StatusFailed, StatusMaxIterations, StatusResolvingConflicts,
		StatusMerged, StatusPushed, StatusDeleted:
		return true
	default:
		return false
	}
}

// IsActive returns true while a loop has a live iteration session.
func IsActive(s Status) bool {
	return s == StatusStarting || s == StatusRunning || s == StatusWaiting
}

// IsEntry returns true for the two creation statuses. Entry statuses are
// never re-entered once left.
func IsEntry(s Status) bool {
	return s == StatusIdle || s == StatusDraft
}

// IsOutcome returns true for the statuses a run can end in. Outcome
// statuses are where finalization (accept/push) becomes legal.
func IsOutcome(s Status) bool {
	return s == StatusCompleted || s == StatusStopped ||
		s == StatusFailed || s == StatusMaxIterations
}

// IsFinalized returns true once a loop's work has been merged or pushed.
func IsFinalized(s Status) bool {
	return s == StatusMerged || s == StatusPushed
}

// IsTerminal returns true for statuses the top-level machine never leaves.
// Merged and pushed loops can still cycle internally through review rounds.
func IsTerminal(s Status) bool {
	return IsFinalized(s) || s == StatusDeleted
}
