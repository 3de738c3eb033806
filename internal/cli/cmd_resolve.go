// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	gyreerrors "github.com/gyrelabs/gyre/internal/errors"
	"github.com/gyrelabs/gyre/internal/events"
	"github.com/gyrelabs/gyre/internal/loop"
)

// newResolveCmd creates the resolve command
func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <loop-id>",
		Short: "Resolve a loop's merge conflicts and continue",
		Long: `Resume a loop parked on merge conflicts. Files already resolved by
hand are committed as-is; remaining conflicts are handed to the agent.
The finalization continues once the tree is clean.

Example:
  gyre resolve LOOP-001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub := events.NewCLIPublisher(os.Stdout, events.WithStreamMode(!quiet))
			svc, err := openServices(pub)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]
			l, err := svc.machine.Get(id)
			if err != nil {
				return err
			}
			sync, ok := l.Syncing()
			if !ok || !sync.InConflict() {
				return gyreerrors.RejectTransition(id, "resolveConflicts", string(l.Status))
			}

			finalizer, err := svc.newFinalizer()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			fmt.Printf("Resolving conflicts for %s...\n", id)
			l, err = finalizer.ResolveConflicts(ctx, id)
			if err != nil {
				return err
			}

			switch l.Status {
			case loop.StatusMerged:
				fmt.Printf("🔀 %s merged into %s\n", l.ID, l.BaseBranch)
			case loop.StatusPushed:
				fmt.Printf("⬆️  %s pushed as %s\n", l.ID, l.Branch)
			case loop.StatusResolvingConflicts:
				printConflictGuidance(svc, l)
			default:
				fmt.Printf("%s %s is now %s\n", statusIcon(l.Status), l.ID, l.Status)
			}
			return nil
		},
	}
}
