// Package cli implements the gyre command-line interface.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gyrelabs/gyre/internal/loop"
)

// Helper functions

func statusIcon(status loop.Status) string {
	switch status {
	case loop.StatusIdle:
		return "⚪"
	case loop.StatusDraft:
		return "📝"
	case loop.StatusPlanning:
		return "📋"
	case loop.StatusStarting:
		return "🔄"
	case loop.StatusRunning:
		return "⏳"
	case loop.StatusWaiting:
		return "⏸️"
	case loop.StatusCompleted:
		return "✅"
	case loop.StatusStopped:
		return "⏹️"
	case loop.StatusFailed:
		return "❌"
	case loop.StatusMaxIterations:
		return "🔁"
	case loop.StatusResolvingConflicts:
		return "🚫"
	case loop.StatusMerged:
		return "🔀"
	case loop.StatusPushed:
		return "⬆️"
	case loop.StatusDeleted:
		return "🗑️"
	default:
		return "❓"
	}
}

func groupTitle(g loop.Group) string {
	switch g {
	case loop.GroupActive:
		return "Active"
	case loop.GroupNeedsReview:
		return "Needs Review"
	case loop.GroupPlanning:
		return "Planning"
	case loop.GroupCompleted:
		return "Completed"
	case loop.GroupAwaitingFeedback:
		return "Awaiting Feedback"
	case loop.GroupArchived:
		return "Archived"
	case loop.GroupDraft:
		return "Drafts"
	default:
		return "Other"
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// formatAge renders a duration since t in the coarsest sensible unit.
func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// confirm asks a y/N question on stdin. Returns true only on an explicit yes.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	var answer string
	fmt.Scanln(&answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
