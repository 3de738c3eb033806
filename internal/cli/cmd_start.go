// Package cli implements the gyre command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	gyreerrors "github.com/gyrelabs/gyre/internal/errors"
	"github.com/gyrelabs/gyre/internal/events"
	"github.com/gyrelabs/gyre/internal/executor"
	"github.com/gyrelabs/gyre/internal/lifecycle"
	"github.com/gyrelabs/gyre/internal/loop"
)

// newStartCmd creates the start command
func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <loop-id>",
		Short: "Run a loop",
		Long: `Run a loop in the foreground until it completes, fails, or hits its
iteration ceiling. Agent output streams to the terminal; Ctrl+C stops
the loop cleanly at the next safe point.

With --plan the loop enters planning instead: the agent drafts a plan
for review, and no code runs until the plan is accepted.

Example:
  gyre start LOOP-001
  gyre start LOOP-001 --plan
  gyre start LOOP-001 --allow-dirty`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			planMode, _ := cmd.Flags().GetBool("plan")
			allowDirty, _ := cmd.Flags().GetBool("allow-dirty")

			pub := events.NewCLIPublisher(os.Stdout, events.WithStreamMode(!quiet))
			svc, err := openServices(pub)
			if err != nil {
				return err
			}
			defer svc.Close()

			l, err := svc.machine.Start(id, lifecycle.StartOptions{
				PlanMode:   planMode,
				AllowDirty: allowDirty,
			})
			if err != nil {
				var dirty *gyreerrors.UncommittedChangesError
				if errors.As(err, &dirty) {
					fmt.Fprintln(os.Stderr, dirty.Message)
					for _, f := range dirty.ChangedFiles {
						fmt.Fprintf(os.Stderr, "   %s\n", f)
					}
					fmt.Fprintln(os.Stderr, "\nCommit or stash, or rerun with --allow-dirty.")
					return fmt.Errorf("working tree is dirty")
				}
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			runner := svc.newRunner()

			if l.Status == loop.StatusPlanning {
				return runPlanTurn(ctx, runner, id)
			}

			res, err := runner.Run(ctx, id)
			if err != nil {
				return err
			}
			printRunResult(id, res)
			return nil
		},
	}
	cmd.Flags().Bool("plan", false, "draft a plan for review instead of running")
	cmd.Flags().Bool("allow-dirty", false, "start even with uncommitted changes")
	return cmd
}

// signalContext returns a context cancelled on SIGINT/SIGTERM. A second
// signal forces immediate exit.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n⚠️  Interrupt received, stopping at next safe point...")
		cancel()

		<-sigCh
		fmt.Println("\n🛑 Forcing exit")
		os.Exit(1)
	}()

	return ctx, cancel
}

// runPlanTurn generates the plan draft and reports where to review it.
func runPlanTurn(ctx context.Context, runner *executor.Runner, id string) error {
	fmt.Printf("Drafting plan for %s...\n", id)
	l, err := runner.RunPlan(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("\n📋 Plan ready for %s\n", l.ID)
	fmt.Println("\nNext steps:")
	fmt.Printf("  gyre plan show %s                 - Review the plan\n", id)
	fmt.Printf("  gyre plan feedback %s \"...\"       - Request changes\n", id)
	fmt.Printf("  gyre plan accept %s               - Accept and run\n", id)
	return nil
}

// printRunResult summarizes a finished run.
func printRunResult(id string, res *executor.RunResult) {
	fmt.Println()
	switch res.Status {
	case loop.StatusCompleted:
		fmt.Printf("✅ %s completed", id)
	case loop.StatusStopped:
		fmt.Printf("⏹️  %s stopped", id)
	case loop.StatusMaxIterations:
		fmt.Printf("🔁 %s hit its iteration ceiling", id)
	case loop.StatusFailed:
		fmt.Printf("❌ %s failed", id)
	default:
		fmt.Printf("%s ended in %s", id, res.Status)
	}
	fmt.Printf(" after %d iteration(s) in %s", res.Iterations, res.Elapsed.Round(time.Second))
	if res.TotalCostUSD > 0 {
		fmt.Printf(" ($%.2f)", res.TotalCostUSD)
	}
	fmt.Println()

	if res.Status == loop.StatusCompleted {
		fmt.Println("\nNext steps:")
		fmt.Printf("  gyre accept %s   - Merge into the base branch\n", id)
		fmt.Printf("  gyre push %s     - Push the branch for review\n", id)
	}
}
