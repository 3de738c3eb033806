package cli

import (
	"testing"

	"github.com/gyrelabs/gyre/internal/wizard"
)

func TestBuildInitWizard(t *testing.T) {
	w, state := buildInitWizard(t.TempDir())

	if w == nil {
		t.Fatal("wizard is nil")
	}
	if state == nil {
		t.Fatal("state is nil")
	}
	// PR creation defaults on; the confirm step is skipped when hosting
	// is disabled, so the seed value must already be true.
	if !state.CreatePR {
		t.Error("CreatePR seed is false")
	}
	if got := w.State()["init_state"]; got != state {
		t.Error("wizard state not wired to the init state")
	}
}

func TestExtractWizardResults(t *testing.T) {
	state := &InitWizardState{CreatePR: true}
	extractWizardResults(wizard.State{
		"model":            "claude-sonnet-4-5",
		"base_branch":      "develop",
		"max_iterations":   " 15 ",
		"hosting_provider": "github",
		"create_pr":        false,
	}, state)

	if state.Model != "claude-sonnet-4-5" {
		t.Errorf("Model = %q", state.Model)
	}
	if state.BaseBranch != "develop" {
		t.Errorf("BaseBranch = %q", state.BaseBranch)
	}
	if state.MaxIterations != 15 {
		t.Errorf("MaxIterations = %d", state.MaxIterations)
	}
	if state.HostingProvider != "github" {
		t.Errorf("HostingProvider = %q", state.HostingProvider)
	}
	if state.CreatePR {
		t.Error("CreatePR not extracted as false")
	}
}

func TestExtractWizardResultsPartialState(t *testing.T) {
	// A skipped confirm step leaves no create_pr key; the seed survives.
	state := &InitWizardState{CreatePR: true}
	extractWizardResults(wizard.State{
		"model":            "",
		"hosting_provider": "none",
	}, state)

	if !state.CreatePR {
		t.Error("missing create_pr key overwrote the seed")
	}
	if state.MaxIterations != 0 {
		t.Errorf("MaxIterations = %d without an answer", state.MaxIterations)
	}
	if state.HostingProvider != "none" {
		t.Errorf("HostingProvider = %q", state.HostingProvider)
	}
}

func TestExtractWizardResultsRejectsBadIterationInput(t *testing.T) {
	state := &InitWizardState{}
	extractWizardResults(wizard.State{"max_iterations": "plenty"}, state)
	if state.MaxIterations != 0 {
		t.Errorf("non-numeric answer parsed to %d", state.MaxIterations)
	}
}

func TestCreatePRStepSkippedWithoutProvider(t *testing.T) {
	step := buildCreatePRStep()

	if step.Skip(wizard.State{"hosting_provider": "github"}) {
		t.Error("step skipped with a provider selected")
	}
	if !step.Skip(wizard.State{"hosting_provider": "none"}) {
		t.Error("step not skipped with hosting disabled")
	}
}
