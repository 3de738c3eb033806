// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gyrelabs/gyre/internal/loop"
)

// newStatusCmd creates the status command
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show loops grouped by lifecycle stage",
		Long: `Show a project overview: every loop partitioned into display groups
(active, needs review, planning, completed, awaiting feedback, archived,
drafts) in fixed order.

Example:
  gyre status
  gyre status --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			loops, err := svc.machine.List()
			if err != nil {
				return fmt.Errorf("list loops: %w", err)
			}

			groups := loop.Partition(loops)

			if jsonOut {
				return printJSON(map[string]any{
					"order":  loop.GroupOrder(),
					"groups": groups,
					"counts": loop.GroupCounts(loops),
				})
			}

			if len(loops) == 0 {
				fmt.Println("No loops found. Create one with: gyre new \"Your loop\"")
				return nil
			}

			for _, g := range loop.GroupOrder() {
				members := groups[g]
				if len(members) == 0 {
					continue
				}
				fmt.Printf("%s (%d)\n", groupTitle(g), len(members))
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				for _, l := range members {
					fmt.Fprintf(w, "   %s\t%s %s\t%s\n",
						l.ID, statusIcon(l.Status), l.Status, truncate(l.Name, 48))
				}
				w.Flush()
				fmt.Println()
			}
			return nil
		},
	}
}
