// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newPendingCmd creates the pending command
func newPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending <loop-id>",
		Short: "Queue a prompt or model for the next iteration",
		Long: `Queue a one-shot prompt or model override to be consumed at the start
of the next iteration. Setting a new override replaces the queued one;
the loop's stored prompt and model are untouched.

Without flags, shows the currently queued override.

Example:
  gyre pending LOOP-001 --prompt "Focus on the failing integration test"
  gyre pending LOOP-001 --model claude-sonnet-4-5
  gyre pending LOOP-001 --clear
  gyre pending LOOP-001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]
			prompt, _ := cmd.Flags().GetString("prompt")
			model, _ := cmd.Flags().GetString("model")
			clear, _ := cmd.Flags().GetBool("clear")

			if clear {
				l, err := svc.machine.ClearPending(id)
				if err != nil {
					return err
				}
				fmt.Printf("Pending override cleared for %s\n", l.ID)
				return nil
			}

			if prompt == "" && model == "" {
				l, err := svc.machine.Get(id)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(l.Pending)
				}
				if l.Pending.IsEmpty() {
					fmt.Printf("Nothing queued for %s\n", l.ID)
					return nil
				}
				fmt.Printf("Queued for %s:\n", l.ID)
				if l.Pending.Prompt != nil {
					fmt.Printf("   Prompt: %s\n", *l.Pending.Prompt)
				}
				if l.Pending.Model != nil {
					fmt.Printf("   Model:  %s\n", *l.Pending.Model)
				}
				return nil
			}

			var promptPtr, modelPtr *string
			if prompt != "" {
				promptPtr = &prompt
			}
			if model != "" {
				modelPtr = &model
			}

			l, err := svc.machine.SetPending(id, promptPtr, modelPtr)
			if err != nil {
				return err
			}

			fmt.Printf("Queued for %s's next iteration:\n", l.ID)
			if promptPtr != nil {
				fmt.Printf("   Prompt: %s\n", truncate(prompt, 60))
			}
			if modelPtr != nil {
				fmt.Printf("   Model:  %s\n", model)
			}
			return nil
		},
	}
	cmd.Flags().String("prompt", "", "prompt override for the next iteration")
	cmd.Flags().String("model", "", "model override for the next iteration")
	cmd.Flags().Bool("clear", false, "drop the queued override")
	return cmd
}
