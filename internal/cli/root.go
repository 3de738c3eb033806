// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	jsonOut bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gyre",
	Short: "Iterative coding-agent loop runner",
	Long: `gyre runs coding agents in supervised loops until the work is done.

Features:
  • Iterative agent sessions with a completion promise
  • Optional plan gate with feedback rounds before any code runs
  • Git branch per loop, merge or push finalization with PR creation
  • Review cycles against merged or pushed work
  • Full visibility via the API server and WebSocket events

Quick start:
  gyre init                     Initialize gyre in current repository
  gyre new "Fix login bug"      Create a new loop
  gyre start LOOP-001           Run the loop
  gyre status                   Show loops grouped by lifecycle stage`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		PrintError(err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .gyre/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	// Add subcommands
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newNewCmd())
	rootCmd.AddCommand(newEditCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newPendingCmd())
	rootCmd.AddCommand(newAcceptCmd())
	rootCmd.AddCommand(newPushCmd())
	rootCmd.AddCommand(newUpdateBranchCmd())
	rootCmd.AddCommand(newMergedCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newCommentCmd())
	rootCmd.AddCommand(newLogCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newPurgeCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in .gyre directory
		viper.AddConfigPath(".gyre")
		viper.AddConfigPath("$HOME/.gyre")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("GYRE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
