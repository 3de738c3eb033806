// Package cli implements the gyre command-line interface.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyrelabs/gyre/internal/loop"
)

// newMergedCmd creates the merged command
func newMergedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merged <loop-id>",
		Short: "Record that a pushed loop's PR merged",
		Long: `Record that a pushed loop's pull request was merged on the hosted
provider. Pulls the refreshed base branch and deletes the working
branch locally and, per config, on the remote.

Example:
  gyre merged LOOP-001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]

			var l *loop.Loop
			if finalizer, ferr := svc.newFinalizer(); ferr == nil {
				l, err = finalizer.Resync(context.Background(), id)
			} else {
				l, err = svc.machine.MarkMerged(id)
			}
			if err != nil {
				return err
			}

			fmt.Printf("🔀 %s recorded as merged", l.ID)
			if l.BaseBranch != "" {
				fmt.Printf(" into %s", l.BaseBranch)
			}
			fmt.Println()
			return nil
		},
	}
}
