package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gyrelabs/gyre/internal/config"
	"github.com/gyrelabs/gyre/internal/wizard"
)

// InitWizardState holds the collected configuration from the wizard.
type InitWizardState struct {
	Model           string
	BaseBranch      string
	MaxIterations   int
	HostingProvider string
	CreatePR        bool
}

// buildInitWizard creates the wizard with all init steps.
func buildInitWizard(projectPath string) (*wizard.Wizard, *InitWizardState) {
	state := &InitWizardState{CreatePR: true}

	steps := []wizard.Step{
		buildModelStep(),
		buildBaseBranchStep(projectPath),
		buildMaxIterationsStep(),
		buildHostingStep(),
		buildCreatePRStep(),
		buildSummaryStep(),
	}

	w := wizard.New(steps...).WithState(wizard.State{
		"init_state": state,
	})

	return w, state
}

// Step 1: Default model
func buildModelStep() wizard.Step {
	return wizard.NewSelectStep("model", "Default Model", []wizard.SelectOption{
		{Value: config.Default().Model, Label: "Opus (Recommended)", Description: "Most capable, higher cost"},
		{Value: "claude-sonnet-4-5", Label: "Sonnet", Description: "Good balance of capability and cost"},
		{Value: "", Label: "Agent default", Description: "Whatever the agent command defaults to"},
	}).WithDescription("Model used for loop iterations unless a loop pins its own")
}

// Step 2: Base branch
func buildBaseBranchStep(projectPath string) wizard.Step {
	detected := detectDefaultBranch(projectPath)
	if detected == "" {
		detected = "main"
	}

	var options []wizard.SelectOption
	options = append(options, wizard.SelectOption{
		Value: detected,
		Label: detected + " (detected)",
	})
	for _, b := range []string{"main", "master", "develop"} {
		if b != detected {
			options = append(options, wizard.SelectOption{Value: b, Label: b})
		}
	}

	return wizard.NewSelectStep("base_branch", "Base Branch", options).
		WithDescription("Where should completed loops merge to?").
		WithStateKey("base_branch")
}

// Step 3: Iteration ceiling
func buildMaxIterationsStep() wizard.Step {
	return wizard.NewInputStep("max_iterations", "Iteration Ceiling").
		WithDescription("Most iterations a loop may run before parking (blank keeps 30)").
		WithPlaceholder("30").
		WithValidate(maxIterationsValidator)
}

// Step 4: Hosted-git provider
func buildHostingStep() wizard.Step {
	return wizard.NewSelectStep("hosting_provider", "Hosted-Git Provider", []wizard.SelectOption{
		{Value: "auto", Label: "Auto-detect (Recommended)", Description: "Resolve GitHub or GitLab from the origin URL"},
		{Value: "github", Label: "GitHub", Description: "Pull requests via GITHUB_TOKEN"},
		{Value: "gitlab", Label: "GitLab", Description: "Merge requests via GITLAB_TOKEN"},
		{Value: "none", Label: "None", Description: "Skip PR creation entirely"},
	}).WithDescription("Used to open pull requests for pushed loops")
}

// Step 5: PR creation
func buildCreatePRStep() wizard.Step {
	return wizard.NewConfirmStep("create_pr", "Open PRs Automatically?").
		WithDescription("Open a pull request whenever a loop's branch is pushed").
		WithDefault(true).
		WithSkipFunc(func(s wizard.State) bool {
			provider, _ := s["hosting_provider"].(string)
			return provider == "none"
		})
}

// Step 6: Summary
func buildSummaryStep() wizard.Step {
	return wizard.NewDisplayStep("summary", "Configuration Summary", func(s wizard.State) string {
		var b strings.Builder

		b.WriteString("The following will be configured:\n\n")

		if model, ok := s["model"].(string); ok {
			if model == "" {
				model = "agent default"
			}
			b.WriteString(fmt.Sprintf("  Model: %s\n", model))
		}
		if branch, ok := s["base_branch"].(string); ok {
			b.WriteString(fmt.Sprintf("  Base Branch: %s\n", branch))
		}
		if iter, ok := s["max_iterations"].(string); ok && strings.TrimSpace(iter) != "" {
			b.WriteString(fmt.Sprintf("  Iteration Ceiling: %s\n", strings.TrimSpace(iter)))
		}
		if provider, ok := s["hosting_provider"].(string); ok {
			b.WriteString(fmt.Sprintf("  Hosting: %s\n", provider))
			if create, ok := s["create_pr"].(bool); ok && create && provider != "none" {
				b.WriteString("  Pull Requests: opened automatically\n")
			}
		}

		b.WriteString("\nPress enter to proceed with initialization.")

		return b.String()
	})
}

// extractWizardResults extracts the wizard state into the InitWizardState struct.
func extractWizardResults(wizardState wizard.State, state *InitWizardState) {
	if v, ok := wizardState["model"].(string); ok {
		state.Model = v
	}
	if v, ok := wizardState["base_branch"].(string); ok {
		state.BaseBranch = v
	}
	if v, ok := wizardState["max_iterations"].(string); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			state.MaxIterations = n
		}
	}
	if v, ok := wizardState["hosting_provider"].(string); ok {
		state.HostingProvider = v
	}
	if v, ok := wizardState["create_pr"].(bool); ok {
		state.CreatePR = v
	}
}
