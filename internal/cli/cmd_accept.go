// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyrelabs/gyre/internal/loop"
)

// newAcceptCmd creates the accept command
func newAcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <loop-id>",
		Short: "Accept a finished loop and merge it",
		Long: `Accept a finished loop: reconcile its working branch with the base
branch and merge. With --auto-push the base branch is pushed to origin
once the merge lands.

Conflicts park the loop instead of failing it; resolve them by hand or
with 'gyre resolve'.

Example:
  gyre accept LOOP-001
  gyre accept LOOP-001 --auto-push`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			autoPush, _ := cmd.Flags().GetBool("auto-push")

			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]
			if _, err := svc.machine.Accept(id, autoPush); err != nil {
				return err
			}

			return runFinalize(svc, id)
		},
	}
	cmd.Flags().Bool("auto-push", false, "push the base branch after merging")
	return cmd
}

// runFinalize drives an opened sync session to its end and reports the
// outcome.
func runFinalize(svc *services, id string) error {
	finalizer, err := svc.newFinalizer()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	l, err := finalizer.Finalize(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case l.Status == loop.StatusMerged:
		fmt.Printf("🔀 %s merged into %s\n", l.ID, l.BaseBranch)
	case l.Status == loop.StatusPushed:
		fmt.Printf("⬆️  %s pushed as %s\n", l.ID, l.Branch)
	case l.Status == loop.StatusResolvingConflicts:
		printConflictGuidance(svc, l)
	default:
		fmt.Printf("%s %s is now %s\n", statusIcon(l.Status), l.ID, l.Status)
		if l.Error != nil {
			fmt.Printf("   %s\n", l.Error.Message)
		}
	}
	return nil
}

// printConflictGuidance lists the conflicted files and the ways out.
func printConflictGuidance(svc *services, l *loop.Loop) {
	fmt.Printf("🚫 %s has merge conflicts\n", l.ID)
	if svc.repo != nil {
		if files, err := svc.repo.ConflictedFiles(); err == nil {
			for _, f := range files {
				fmt.Printf("   %s\n", f)
			}
		}
	}
	fmt.Println("\nWays out:")
	fmt.Printf("  gyre resolve %s   - Let the agent resolve and continue\n", l.ID)
	fmt.Printf("  gyre stop %s      - Abort the merge and restore the loop\n", l.ID)
	fmt.Println("  or resolve by hand, commit, and rerun the finalization")
}
