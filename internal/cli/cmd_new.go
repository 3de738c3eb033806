// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyrelabs/gyre/internal/lifecycle"
)

// newNewCmd creates the new loop command
func newNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a new loop",
		Long: `Create a new loop to be run by gyre.

The prompt is the instruction the agent iterates on until it reports the
completion promise. Without --prompt the name doubles as the prompt.

Use --draft to create the loop editable instead of ready-to-run:
  gyre new "Add dark mode" --draft
  gyre show LOOP-001
  gyre start LOOP-001 --plan

Example:
  gyre new "Fix authentication timeout bug"
  gyre new "Migrate sessions table" --prompt "Write a migration that..."
  gyre new "Refactor parser" --base develop --max-iterations 10
  gyre new "Spike: streaming API" --model claude-sonnet-4-5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			name := args[0]
			prompt, _ := cmd.Flags().GetString("prompt")
			model, _ := cmd.Flags().GetString("model")
			base, _ := cmd.Flags().GetString("base")
			maxIterations, _ := cmd.Flags().GetInt("max-iterations")
			draft, _ := cmd.Flags().GetBool("draft")

			if prompt == "" {
				prompt = name
			}
			if base == "" {
				base = svc.cfg.BaseBranch
			}

			l, err := svc.machine.Create(lifecycle.CreateRequest{
				Name:          name,
				Prompt:        prompt,
				Model:         model,
				BaseBranch:    base,
				MaxIterations: maxIterations,
				Draft:         draft,
			})
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(l)
			}

			fmt.Printf("Loop created: %s\n", l.ID)
			fmt.Printf("   Name:   %s\n", l.Name)
			fmt.Printf("   Status: %s\n", l.Status)
			fmt.Printf("   Base:   %s\n", l.BaseBranch)
			if l.Model != "" {
				fmt.Printf("   Model:  %s\n", l.Model)
			}
			if l.MaxIterations > 0 {
				fmt.Printf("   Max iterations: %d\n", l.MaxIterations)
			}

			fmt.Println("\nNext steps:")
			fmt.Printf("  gyre start %s          - Run the loop\n", l.ID)
			fmt.Printf("  gyre start %s --plan   - Draft a plan first\n", l.ID)
			fmt.Printf("  gyre show %s           - View loop details\n", l.ID)
			return nil
		},
	}
	cmd.Flags().StringP("prompt", "p", "", "agent instruction (defaults to the name)")
	cmd.Flags().StringP("model", "m", "", "model override for this loop")
	cmd.Flags().StringP("base", "b", "", "base branch to cut the working branch from")
	cmd.Flags().IntP("max-iterations", "n", 0, "iteration ceiling override (0 uses config)")
	cmd.Flags().Bool("draft", false, "create as an editable draft")
	return cmd
}
