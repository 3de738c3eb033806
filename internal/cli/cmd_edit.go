package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gyrelabs/gyre/internal/lifecycle"
)

// newEditCmd creates the edit command for modifying draft properties.
func newEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <loop-id>",
		Short: "Edit a draft loop's configuration",
		Long: `Edit a draft loop before it starts.

Modifiable properties:
  --name            Update the loop name
  --prompt          Update the agent prompt (or -p)
  --model           Pin a model (empty string restores the configured default)
  --base            Change the base branch (or -b)
  --max-iterations  Change the iteration ceiling (or -n)

Only drafts are editable. Once a loop has started, queue changes for the
next iteration with: gyre pending <loop-id> --prompt "..."

Example:
  gyre edit LOOP-001 --name "Better name"
  gyre edit LOOP-001 -p "Focus on the parser first" -n 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]
			var upd lifecycle.DraftUpdate
			var changes []string

			if cmd.Flags().Changed("name") {
				v, _ := cmd.Flags().GetString("name")
				upd.Name = &v
				changes = append(changes, "name")
			}
			if cmd.Flags().Changed("prompt") {
				v, _ := cmd.Flags().GetString("prompt")
				upd.Prompt = &v
				changes = append(changes, "prompt")
			}
			if cmd.Flags().Changed("model") {
				v, _ := cmd.Flags().GetString("model")
				upd.Model = &v
				changes = append(changes, "model")
			}
			if cmd.Flags().Changed("base") {
				v, _ := cmd.Flags().GetString("base")
				upd.BaseBranch = &v
				changes = append(changes, "base branch")
			}
			if cmd.Flags().Changed("max-iterations") {
				v, _ := cmd.Flags().GetInt("max-iterations")
				upd.MaxIterations = &v
				changes = append(changes, "iteration ceiling")
			}

			if len(changes) == 0 {
				fmt.Println("Nothing to change. See: gyre edit --help")
				return nil
			}

			l, err := svc.machine.UpdateDraft(id, upd)
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(l)
			}
			fmt.Printf("📝 %s updated (%s)\n", l.ID, strings.Join(changes, ", "))
			fmt.Printf("Start it with: gyre start %s\n", l.ID)
			return nil
		},
	}

	cmd.Flags().String("name", "", "New loop name")
	cmd.Flags().StringP("prompt", "p", "", "New agent prompt")
	cmd.Flags().String("model", "", "Model override (empty restores default)")
	cmd.Flags().StringP("base", "b", "", "New base branch")
	cmd.Flags().IntP("max-iterations", "n", 0, "New iteration ceiling (0 = unbounded)")

	return cmd
}
