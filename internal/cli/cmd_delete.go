// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newDeleteCmd creates the delete command
func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <loop-id>",
		Short: "Soft-delete a loop",
		Long: `Soft-delete a loop. The record and its history survive under the
deleted status until purged; merged, pushed, or already-deleted loops
are refused.

Example:
  gyre delete LOOP-001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			l, err := svc.machine.Delete(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("🗑️  %s deleted\n", l.ID)
			fmt.Printf("Remove it for good with: gyre purge %s\n", l.ID)
			return nil
		},
	}
}

// newPurgeCmd creates the purge command
func newPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge <loop-id>",
		Short: "Permanently remove a deleted loop",
		Long: `Permanently remove a deleted loop: its record, plan folder, and event
history. Only loops already in the deleted status can be purged. This
cannot be undone.

Example:
  gyre purge LOOP-001
  gyre purge LOOP-001 --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]
			if !force && !confirm(fmt.Sprintf("Permanently remove %s and its history?", id)) {
				fmt.Println("Aborted.")
				return nil
			}

			if err := svc.machine.Purge(id); err != nil {
				return err
			}

			fmt.Printf("%s purged\n", id)
			return nil
		},
	}
	cmd.Flags().BoolP("force", "f", false, "skip the confirmation prompt")
	return cmd
}
