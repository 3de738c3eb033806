// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gyrelabs/gyre/internal/config"
)

// newConfigCmd creates the config command
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Show the effective configuration after layering defaults, system,
user, and project files, and GYRE_* environment variables.

With --sources, each setting is annotated with the layer it came from.

Example:
  gyre config
  gyre config --sources`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.RequireInit(); err != nil {
				return err
			}

			tc, err := config.LoadWithSources()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			showSources, _ := cmd.Flags().GetBool("sources")

			if jsonOut {
				return printJSON(tc.Config)
			}

			if showSources {
				paths := make([]string, 0, len(tc.Sources))
				for p := range tc.Sources {
					paths = append(paths, p)
				}
				sort.Strings(paths)

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SETTING\tSOURCE")
				fmt.Fprintln(w, "───────\t──────")
				for _, p := range paths {
					fmt.Fprintf(w, "%s\t%s\n", p, tc.GetTrackedSource(p))
				}
				w.Flush()
				return nil
			}

			data, err := yaml.Marshal(tc.Config)
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			os.Stdout.Write(data)
			return nil
		},
	}
	cmd.Flags().Bool("sources", false, "annotate each setting with its source layer")
	return cmd
}
