// Package cli implements the gyre command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

// newPushCmd creates the push command
func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <loop-id>",
		Short: "Push a finished loop's branch for review",
		Long: `Push a finished loop: reconcile its working branch with the base
branch, push the branch to origin, and open a pull request when a
hosted provider is configured.

Example:
  gyre push LOOP-001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]
			if _, err := svc.machine.Push(id); err != nil {
				return err
			}

			return runFinalize(svc, id)
		},
	}
}
