// Package cli implements the gyre command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

// newUpdateBranchCmd creates the update-branch command
func newUpdateBranchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-branch <loop-id>",
		Short: "Refresh a pushed loop's branch against its base",
		Long: `Re-run branch reconciliation for a pushed loop whose base branch has
moved, then push the refreshed branch. Keeps an open pull request
mergeable without a new review cycle.

Example:
  gyre update-branch LOOP-001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]
			if _, err := svc.machine.UpdateBranch(id); err != nil {
				return err
			}

			return runFinalize(svc, id)
		},
	}
}
