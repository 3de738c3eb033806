// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/gyrelabs/gyre/internal/events"
	"github.com/gyrelabs/gyre/internal/executor"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Review and steer a loop's plan",
		Long: `Work with the plan gate of a loop in planning.

Commands:
  show      Print the drafted plan
  feedback  Send feedback and redraft the plan
  accept    Accept the plan and run the loop
  discard   Abandon the planning session`,
	}

	cmd.AddCommand(newPlanShowCmd())
	cmd.AddCommand(newPlanFeedbackCmd())
	cmd.AddCommand(newPlanAcceptCmd())
	cmd.AddCommand(newPlanDiscardCmd())

	return cmd
}

func newPlanShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <loop-id>",
		Short: "Print the drafted plan",
		Args:  cobra.ExactArgs(1),
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

			content, err := executor.ReadPlan(svc.machine.Root(), id)
			if err != nil {
				return fmt.Errorf("read plan: %w", err)
			}

			if jsonOut {
				resp := map[string]any{"loop_id": id, "content": content}
				if p, ok := l.Planning(); ok {
					resp["plan"] = p
				}
				return printJSON(resp)
			}

			if content == "" {
				fmt.Printf("No plan drafted yet for %s. Run: gyre start %s --plan\n", id, id)
				return nil
			}

			if p, ok := l.Planning(); ok {
				state := "draft in progress"
				if p.IsPlanReady {
					state = "ready for review"
				}
				fmt.Printf("📋 Plan for %s (%s, %d feedback round(s))\n\n", id, state, p.FeedbackRounds)
			} else {
				fmt.Printf("📋 Plan for %s (planning session closed)\n\n", id)
			}

			// Long plans go through a pager when we're on a terminal.
			const pagerThreshold = 50
			if strings.Count(content, "\n")+1 > pagerThreshold && isatty.IsTerminal(os.Stdout.Fd()) {
				if showWithPager(content) {
					return nil
				}
			}

			fmt.Print(content)
			if !strings.HasSuffix(content, "\n") {
				fmt.Println()
			}
			return nil
		},
	}
}

// showWithPager attempts to display content using the system pager (less).
// Returns true if successful, false if pager is not available.
func showWithPager(content string) bool {
	pagerPath, err := exec.LookPath("less")
	if err != nil {
		pagerPath, err = exec.LookPath("more")
		if err != nil {
			return false
		}
	}

	cmd := exec.Command(pagerPath)
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run() == nil
}

func newPlanFeedbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <loop-id> <text>",
		Short: "Send feedback and redraft the plan",
		Long: `Record feedback against the drafted plan and run a revision turn.
Feedback is accepted at any point during planning, even while a draft
is still being generated.

Example:
  gyre plan feedback LOOP-001 "Split step 2 into migrations and code"`,
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

			if _, err := svc.machine.SendPlanFeedback(id, text); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			return runPlanTurn(ctx, svc.newRunner(), id)
		},
	}
}

func newPlanAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <loop-id>",
		Short: "Accept the plan and run the loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub := events.NewCLIPublisher(os.Stdout, events.WithStreamMode(!quiet))
			svc, err := openServices(pub)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]
			if _, err := svc.machine.AcceptPlan(id); err != nil {
				return err
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

func newPlanDiscardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard <loop-id>",
		Short: "Abandon the planning session",
		Long: `Abandon the planning session. The loop moves to deleted and becomes
purge-eligible; the plan folder is kept until the purge.

Example:
  gyre plan discard LOOP-001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]
			l, err := svc.machine.DiscardPlan(id)
			if err != nil {
				return err
			}

			fmt.Printf("%s %s plan discarded, loop is now %s\n", statusIcon(l.Status), l.ID, l.Status)
			fmt.Printf("Remove it for good with: gyre purge %s\n", l.ID)
			return nil
		},
	}
}
