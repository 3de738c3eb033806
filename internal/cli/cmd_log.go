// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newLogCmd creates the log command
func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log <loop-id>",
		Short: "Show a loop's recent events",
		Long: `Show the most recent events recorded for a loop: transitions,
iterations, sync progress, and errors, newest first.

Example:
  gyre log LOOP-001
  gyre log LOOP-001 --limit 200`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]
			limit, _ := cmd.Flags().GetInt("limit")

			if _, err := svc.machine.Get(id); err != nil {
				return err
			}

			evts, err := svc.store.ListEvents(id, limit)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}

			if jsonOut {
				return printJSON(evts)
			}

			if len(evts) == 0 {
				fmt.Printf("No events recorded for %s\n", id)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tITER\tDETAIL")
			fmt.Fprintln(w, "────\t────\t────\t──────")
			for _, e := range evts {
				iter := "-"
				if e.Iteration != nil {
					iter = fmt.Sprintf("%d", *e.Iteration)
				}
				detail := e.Data
				if detail == "" {
					detail = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					e.CreatedAt.Local().Format("01-02 15:04:05"), e.EventType, iter, truncate(detail, 70))
			}
			w.Flush()
			return nil
		},
	}
	cmd.Flags().Int("limit", 100, "maximum events to show")
	return cmd
}
