// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/gyrelabs/gyre/internal/config"
	"github.com/gyrelabs/gyre/internal/loop"
)

// newInitCmd creates the init command
func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize gyre in current repository",
		Long: `Initialize gyre in the current directory.

The wizard walks through project setup:
  • Default model for agent iterations
  • Base branch completed loops reconcile against
  • Iteration ceiling
  • Hosted-git provider for pull requests

Examples:
  gyre init           # Interactive wizard
  gyre init --yes     # Non-interactive with defaults
  gyre init --force   # Reinitialize existing project`,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			nonInteractive, _ := cmd.Flags().GetBool("yes")

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}

			// Check if already initialized
			if !force && config.IsInitialized() {
				return fmt.Errorf("gyre already initialized. Use --force to reinitialize")
			}

			// Non-interactive mode: write defaults and go. The wizard
			// needs a terminal, so a pipe gets the same treatment.
			if nonInteractive || !isatty.IsTerminal(os.Stdout.Fd()) {
				return runInstantInit(cwd)
			}

			// Interactive mode: run wizard
			return runWizardInit(cwd)
		},
	}

	cmd.Flags().Bool("force", false, "Overwrite existing configuration")
	cmd.Flags().BoolP("yes", "y", false, "Non-interactive mode with defaults")

	return cmd
}

// runInstantInit initializes with built-in defaults (for --yes or CI).
func runInstantInit(projectPath string) error {
	cfg := config.Default()
	if branch := detectDefaultBranch(projectPath); branch != "" {
		cfg.BaseBranch = branch
	}

	if err := initializeProject(projectPath, cfg); err != nil {
		return err
	}

	printInitResult(cfg)
	return nil
}

// runWizardInit runs the interactive wizard-based init
func runWizardInit(projectPath string) error {
	w, state := buildInitWizard(projectPath)

	fmt.Println()
	fmt.Println("  ╭─────────────────────────────────────╮")
	fmt.Println("  │       gyre project setup            │")
	fmt.Println("  ╰─────────────────────────────────────╯")
	fmt.Println()

	if err := w.Run(); err != nil {
		return fmt.Errorf("wizard cancelled: %w", err)
	}

	// Extract results from wizard state
	extractWizardResults(w.State(), state)

	fmt.Println("\nInitializing project...")

	cfg := config.Default()
	applyWizardConfig(cfg, state)

	if err := initializeProject(projectPath, cfg); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	printInitResult(cfg)
	return nil
}

// initializeProject creates the state directory, writes the config, and
// keeps runtime artifacts out of version control.
func initializeProject(projectPath string, cfg *config.Config) error {
	loopsDir := filepath.Join(projectPath, loop.GyreDir, loop.LoopsDir)
	if err := os.MkdirAll(loopsDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", loopsDir, err)
	}

	configPath := filepath.Join(projectPath, loop.GyreDir, config.ConfigFileName)
	if err := cfg.SaveTo(configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if err := updateGitignore(projectPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not update .gitignore: %v\n", err)
	}

	return nil
}

// updateGitignore keeps the mirror database and loop state out of git.
// The config file stays trackable.
func updateGitignore(projectPath string) error {
	entries := []string{".gyre/gyre.db*", ".gyre/loops/"}

	path := filepath.Join(projectPath, ".gitignore")
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	var missing []string
	for _, e := range entries {
		if !containsLine(string(existing), e) {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	var b strings.Builder
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n# gyre runtime state\n")
	for _, e := range missing {
		b.WriteString(e + "\n")
	}
	_, err = f.WriteString(b.String())
	return err
}

// containsLine reports whether content has line as a full line.
func containsLine(content, line string) bool {
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}

// detectDefaultBranch reads .git/HEAD for the checked-out branch.
func detectDefaultBranch(projectPath string) string {
	data, err := os.ReadFile(filepath.Join(projectPath, ".git", "HEAD"))
	if err != nil {
		return ""
	}
	content := strings.TrimSpace(string(data))
	if branch, ok := strings.CutPrefix(content, "ref: refs/heads/"); ok {
		return branch
	}
	return ""
}

// applyWizardConfig copies the wizard answers onto the config.
func applyWizardConfig(cfg *config.Config, state *InitWizardState) {
	if state.Model != "" {
		cfg.Model = state.Model
	}
	if state.BaseBranch != "" {
		cfg.BaseBranch = state.BaseBranch
	}
	if state.MaxIterations > 0 {
		cfg.MaxIterations = state.MaxIterations
	}
	if state.HostingProvider != "" {
		cfg.Hosting.Provider = state.HostingProvider
	}
	cfg.Hosting.CreatePR = state.CreatePR
}

// printInitResult summarizes what was set up.
func printInitResult(cfg *config.Config) {
	fmt.Println("\n✅ gyre initialized")
	fmt.Printf("   Config:     %s\n", filepath.Join(loop.GyreDir, config.ConfigFileName))
	fmt.Printf("   Model:      %s\n", cfg.Model)
	fmt.Printf("   Base:       %s\n", cfg.BaseBranch)
	fmt.Printf("   Iterations: max %d\n", cfg.MaxIterations)
	fmt.Printf("   Hosting:    %s\n", cfg.Hosting.Provider)

	fmt.Println("\nNext steps:")
	fmt.Println("  gyre new \"Your first loop\"    - Create a loop")
	fmt.Println("  gyre serve                    - Start the API server")
}

// maxIterationsValidator accepts a blank answer or a positive integer.
func maxIterationsValidator(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}
