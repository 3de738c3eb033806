package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gyreerrors "github.com/gyrelabs/gyre/internal/errors"
	"github.com/gyrelabs/gyre/internal/loop"
	"github.com/gyrelabs/gyre/internal/util"
)

// PlanFile is the name of the generated plan inside the loop's plan
// folder.
const PlanFile = "plan.md"

// RunPlan generates (or regenerates) the plan for a loop in planning.
// The agent runs one read-only turn; the final output is written to the
// plan folder and the plan-generation-complete signal is sent to the
// machine. Reviewer feedback recorded so far is appended to the prompt so
// a regeneration sees it.
func (r *Runner) RunPlan(ctx context.Context, id string) (*loop.Loop, error) {
	l, err := r.machine.Get(id)
	if err != nil {
		return nil, err
	}
	if _, ok := l.Planning(); !ok || l.Status != loop.StatusPlanning {
		return nil, gyreerrors.RejectTransition(id, "generatePlan", string(l.Status))
	}

	dir := loop.PlanDirIn(r.machine.Root(), id)
	prompt := planPrompt(l.Prompt, dir)

	turn, err := r.runTurn(ctx, id, 0, TurnRequest{
		Prompt:   prompt,
		Model:    l.Model,
		PlanMode: true,
	})
	if err != nil {
		return nil, err
	}
	if turn.IsError {
		msg := turn.ErrorText
		if msg == "" {
			msg = "agent reported a failed run"
		}
		return nil, fmt.Errorf("generate plan: %s", msg)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plan folder: %w", err)
	}
	if err := util.AtomicWriteFile(filepath.Join(dir, PlanFile), []byte(turn.Output), 0o644); err != nil {
		return nil, fmt.Errorf("write plan: %w", err)
	}

	r.logger.Info("plan generated", "loop", id, "bytes", len(turn.Output))
	return r.machine.PlanReady(id)
}

// ReadPlan returns the generated plan text, or empty when none exists.
func ReadPlan(root, id string) (string, error) {
	data, err := os.ReadFile(filepath.Join(loop.PlanDirIn(root, id), PlanFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// planPrompt builds the plan-generation prompt: the loop prompt followed
// by every feedback round recorded in the plan folder, oldest first.
func planPrompt(base, dir string) string {
	matches, err := filepath.Glob(filepath.Join(dir, "feedback-*.md"))
	if err != nil || len(matches) == 0 {
		return base
	}
	sort.Strings(matches)

	var b strings.Builder
	b.WriteString(base)
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil || len(data) == 0 {
			continue
		}
		b.WriteString("\n\nReviewer feedback:\n")
		b.Write(data)
	}
	return b.String()
}
