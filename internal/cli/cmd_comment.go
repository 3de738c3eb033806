// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gyrelabs/gyre/internal/events"
	"github.com/gyrelabs/gyre/internal/store"
)

func newCommentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Review comments against finalized loops",
		Long: `Send reviewer feedback to a finalized loop and inspect the comment log.

Commands:
  add     Send feedback and run a review cycle
  list    List a loop's review comments`,
	}

	cmd.AddCommand(newCommentAddCmd())
	cmd.AddCommand(newCommentListCmd())

	return cmd
}

func newCommentAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <loop-id> <text>",
		Short: "Send feedback and run a review cycle",
		Long: `Send reviewer feedback to a merged or pushed loop and run the review
cycle that addresses it. Merge-path loops get a fresh review branch per
cycle; push-path loops continue on their original branch.

Example:
  gyre comment add LOOP-001 "Rename the helper and add a test for nil input"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub := events.NewCLIPublisher(os.Stdout, events.WithStreamMode(!quiet))
			svc, err := openServices(pub)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]
			text := strings.Join(args[1:], " ")

			if finalizer, ferr := svc.newFinalizer(); ferr == nil {
				if _, err := finalizer.OpenReviewCycle(id, text); err != nil {
					return err
				}
			} else {
				l, branch, err := svc.machine.AddressComments(id, text)
				if err != nil {
					return err
				}
				if branch != "" {
					if _, err := svc.machine.ConfirmReviewBranch(l.ID, branch); err != nil {
						return err
					}
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			res, err := svc.newRunner().Run(ctx, id)
			if err != nil {
				return err
			}
			printRunResult(id, res)
			return nil
		},
	}
}

func newCommentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <loop-id>",
		Short: "List a loop's review comments",
		Long: `List the append-only review comment log for a loop.

Example:
  gyre comment list LOOP-001
  gyre comment list LOOP-001 --cycle 2
  gyre comment list LOOP-001 --status pending`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]
			cycleFlag, _ := cmd.Flags().GetString("cycle")
			status, _ := cmd.Flags().GetString("status")

			reviews := svc.newReviews()

			var comments []store.ReviewComment
			if cycleFlag != "" {
				cycle, err := strconv.Atoi(cycleFlag)
				if err != nil || cycle < 1 {
					return fmt.Errorf("invalid cycle: %s", cycleFlag)
				}
				comments, err = reviews.ListCycle(id, cycle)
				if err != nil {
					return err
				}
			} else {
				comments, err = reviews.List(id, store.CommentStatus(status))
				if err != nil {
					return err
				}
			}

			if jsonOut {
				return printJSON(comments)
			}

			if len(comments) == 0 {
				fmt.Printf("No review comments for %s\n", id)
				return nil
			}

			stats, err := reviews.GetStats(id)
			if err == nil {
				fmt.Printf("%d comment(s), %d pending, latest cycle %d\n\n",
					stats.Total, stats.Pending, stats.LatestCycle)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CYCLE\tSTATUS\tAGE\tCOMMENT")
			fmt.Fprintln(w, "─────\t──────\t───\t───────")
			for _, c := range comments {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
					c.ReviewCycle, c.Status, formatAge(c.CreatedAt), truncate(c.Content, 60))
			}
			w.Flush()
			return nil
		},
	}
	cmd.Flags().String("cycle", "", "only comments from this review cycle")
	cmd.Flags().String("status", "", "filter by status (pending, addressed)")
	return cmd
}
