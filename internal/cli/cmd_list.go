// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gyrelabs/gyre/internal/loop"
)

// newListCmd creates the list command
func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List loops",
		Long: `List all loops in the current project.

Example:
  gyre list
  gyre list --status running
  gyre list --group needs_review`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			status, _ := cmd.Flags().GetString("status")
			group, _ := cmd.Flags().GetString("group")

			if status != "" && !loop.IsValidStatus(loop.Status(status)) {
				return fmt.Errorf("unknown status: %s", status)
			}

			loops, err := svc.machine.List()
			if err != nil {
				return fmt.Errorf("list loops: %w", err)
			}

			filtered := loops[:0:0]
			for _, l := range loops {
				if status != "" && l.Status != loop.Status(status) {
					continue
				}
				if group != "" && loop.GroupOf(l) != loop.Group(group) {
					continue
				}
				filtered = append(filtered, l)
			}

			if jsonOut {
				return printJSON(filtered)
			}

			if len(filtered) == 0 {
				fmt.Println("No loops found. Create one with: gyre new \"Your loop\"")
				return nil
			}

			renderLoopTable(os.Stdout, filtered)
			return nil
		},
	}
	cmd.Flags().String("status", "", "filter by status")
	cmd.Flags().String("group", "", "filter by display group")
	return cmd
}

// renderLoopTable prints loops in table format.
func renderLoopTable(out io.Writer, loops []*loop.Loop) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tITER\tBRANCH\tNAME")
	fmt.Fprintln(w, "──\t──────\t────\t──────\t────")

	for _, l := range loops {
		branch := l.Branch
		if branch == "" {
			branch = "-"
		}
		name := truncate(l.Name, 40)
		fmt.Fprintf(w, "%s\t%s %s\t%d\t%s\t%s\n",
			l.ID, statusIcon(l.Status), l.Status, l.Iteration, branch, name)
	}

	w.Flush()
}
