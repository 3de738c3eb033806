// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gyrelabs/gyre/internal/loop"
)

// newShowCmd creates the show command
func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <loop-id>",
		Short: "Show loop details",
		Long: `Show the full state of a loop: configuration, lifecycle status,
planning or sync session, queued overrides, and last error.

Example:
  gyre show LOOP-001
  gyre show LOOP-001 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			l, err := svc.machine.Get(args[0])
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(l)
			}

			renderLoopDetails(os.Stdout, l)

			// Conflict state lives in the working tree, not the record.
			if sync, ok := l.Syncing(); ok && sync.InConflict() && svc.repo != nil {
				if files, err := svc.repo.ConflictedFiles(); err == nil && len(files) > 0 {
					fmt.Println("\n   Conflicted files:")
					for _, f := range files {
						fmt.Printf("      %s\n", f)
					}
					fmt.Printf("\n   Resolve by hand or run: gyre resolve %s\n", l.ID)
				}
			}
			return nil
		},
	}
}

// renderLoopDetails prints the human-readable loop record.
func renderLoopDetails(out io.Writer, l *loop.Loop) {
	fmt.Fprintf(out, "%s %s — %s\n", statusIcon(l.Status), l.ID, l.Name)
	fmt.Fprintf(out, "   Status:  %s\n", l.Status)
	fmt.Fprintf(out, "   Branch:  %s (base %s)\n", l.Branch, l.BaseBranch)
	if l.Model != "" {
		fmt.Fprintf(out, "   Model:   %s\n", l.Model)
	}
	fmt.Fprintf(out, "   Iterations: %d", l.Iteration)
	if l.MaxIterations > 0 {
		fmt.Fprintf(out, " (max %d)", l.MaxIterations)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "   Created: %s\n", formatAge(l.CreatedAt))
	if l.StartedAt != nil {
		fmt.Fprintf(out, "   Started: %s\n", formatAge(*l.StartedAt))
	}
	if l.FinalizedAt != nil {
		fmt.Fprintf(out, "   Finalized: %s\n", formatAge(*l.FinalizedAt))
	}

	if p, ok := l.Planning(); ok {
		fmt.Fprintln(out, "\n   Planning session:")
		ready := "draft in progress"
		if p.IsPlanReady {
			ready = "ready for review"
		}
		fmt.Fprintf(out, "      Plan:     %s\n", ready)
		fmt.Fprintf(out, "      Feedback: %d round(s)\n", p.FeedbackRounds)
	}

	if s, ok := l.Syncing(); ok {
		fmt.Fprintln(out, "\n   Sync session:")
		fmt.Fprintf(out, "      Action: %s onto %s\n", s.Action, s.BaseBranch)
		fmt.Fprintf(out, "      Phase:  %s (%s)\n", s.Phase, s.Status)
	}

	if r := l.Review; r != nil {
		fmt.Fprintln(out, "\n   Review:")
		fmt.Fprintf(out, "      Completed via: %s\n", r.CompletionAction)
		fmt.Fprintf(out, "      Cycles: %d\n", r.ReviewCycles)
		if len(r.ReviewBranches) > 0 {
			fmt.Fprintf(out, "      Branches: %s\n", strings.Join(r.ReviewBranches, ", "))
		}
	}

	if !l.Pending.IsEmpty() {
		fmt.Fprintln(out, "\n   Pending for next iteration:")
		if l.Pending.Prompt != nil {
			fmt.Fprintf(out, "      Prompt: %s\n", truncate(*l.Pending.Prompt, 60))
		}
		if l.Pending.Model != nil {
			fmt.Fprintf(out, "      Model:  %s\n", *l.Pending.Model)
		}
	}

	if l.Error != nil {
		fmt.Fprintf(out, "\n   Last error (iteration %d): %s\n", l.Error.Iteration, l.Error.Message)
	}
	if l.Tracker != nil && l.Tracker.Count > 0 {
		fmt.Fprintf(out, "   Consecutive errors: %d\n", l.Tracker.Count)
	}
}
