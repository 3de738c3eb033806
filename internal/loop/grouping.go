package loop

// Group is a display bucket for summary views. Buckets are disjoint: every
// record lands in exactly one.
type Group string

const (
	GroupActive           Group = "active"
	GroupNeedsReview      Group = "needs_review"
	GroupPlanning         Group = "planning"
	GroupCompleted        Group = "completed"
	GroupAwaitingFeedback Group = "awaiting_feedback"
	GroupArchived         Group = "archived"
	GroupDraft            Group = "draft"
	GroupOther            Group = "other"
)

// GroupOrder returns the buckets in display order. The order doubles as
// predicate precedence for GroupOf.
func GroupOrder() []Group {
	return []Group{
		GroupActive, GroupNeedsReview, GroupPlanning, GroupCompleted,
		GroupAwaitingFeedback, GroupArchived, GroupDraft, GroupOther,
	}
}

// GroupOf classifies a single record. Predicates are evaluated in
// GroupOrder precedence; plan readiness is derived once and reused so the
// needs-review and planning buckets cannot disagree about the same record.
func GroupOf(l *Loop) Group {
	planReady := false
	if p, ok := l.Planning(); ok {
		planReady = p.IsPlanReady
	}

	switch {
	case IsActive(l.Status):
		return GroupActive
	case l.Status == StatusPlanning && planReady:
		return GroupNeedsReview
	case l.Status == StatusPlanning:
		return GroupPlanning
	case l.Status == StatusCompleted:
		return GroupCompleted
	case IsFinalized(l.Status) && l.Review != nil && l.Review.Addressable:
		return GroupAwaitingFeedback
	case l.Status == StatusDeleted || IsFinalized(l.Status):
		return GroupArchived
	case l.Status == StatusDraft:
		return GroupDraft
	default:
		return GroupOther
	}
}

// Partition splits records into their buckets, preserving input order
// within each bucket. Every bucket key is present even when empty.
func Partition(loops []*Loop) map[Group][]*Loop {
	groups := make(map[Group][]*Loop, len(GroupOrder()))
	for _, g := range GroupOrder() {
		groups[g] = []*Loop{}
	}
	for _, l := range loops {
		g := GroupOf(l)
		groups[g] = append(groups[g], l)
	}
	return groups
}

// GroupCounts returns the bucket sizes for a set of records.
func GroupCounts(loops []*Loop) map[Group]int {
	counts := make(map[Group]int, len(GroupOrder()))
	for _, g := range GroupOrder() {
		counts[g] = 0
	}
	for _, l := range loops {
		counts[GroupOf(l)]++
	}
	return counts
}
