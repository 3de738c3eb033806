// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyrelabs/gyre/internal/loop"
)

// newStopCmd creates the stop command
func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <loop-id>",
		Short: "Stop an active loop",
		Long: `Stop an active loop. A running agent session observes the stop at its
next iteration boundary. Stopping a loop parked on merge conflicts
aborts the merge and restores the pre-sync status.

Example:
  gyre stop LOOP-001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]

			l, err := svc.machine.Get(id)
			if err != nil {
				return err
			}

			// A conflicted sync session needs the merge cleaned up too.
			if l.Status == loop.StatusResolvingConflicts {
				if finalizer, ferr := svc.newFinalizer(); ferr == nil {
					l, err = finalizer.Abort(id)
				} else {
					l, err = svc.machine.Stop(id)
				}
			} else {
				l, err = svc.machine.Stop(id)
			}
			if err != nil {
				return err
			}

			fmt.Printf("%s %s is now %s\n", statusIcon(l.Status), l.ID, l.Status)
			return nil
		},
	}
}
