package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	gyreerrors "github.com/gyrelabs/gyre/internal/errors"
	"github.com/gyrelabs/gyre/internal/events"
	"github.com/gyrelabs/gyre/internal/git"
	"github.com/gyrelabs/gyre/internal/lifecycle"
	"github.com/gyrelabs/gyre/internal/loop"
)

// DefaultCompletionPromise is the literal the agent emits to declare the
// work finished.
const DefaultCompletionPromise = "LOOP_COMPLETE"

// Runner drives the iteration loop for one record: it connects the agent
// to the lifecycle machine, feeding each turn's outcome back as a success
// or an error, until the completion promise appears in the output, the
// iteration ceiling is reached, the failsafe trips, or the run is stopped.
type Runner struct {
	machine *lifecycle.Machine
	agent   Agent
	repo    *git.Git
	events  *events.PublishHelper
	logger  *slog.Logger

	completionPromise string
	activityTimeout   time.Duration
	commitPrefix      string
	defaultModel      string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerRepo enables branch setup and the per-iteration commit of
// whatever the agent left in the working tree.
func WithRunnerRepo(repo *git.Git) RunnerOption {
	return func(r *Runner) { r.repo = repo }
}

// WithRunnerEvents sets the publisher for output and heartbeat events.
func WithRunnerEvents(p events.Publisher) RunnerOption {
	return func(r *Runner) { r.events = events.NewPublishHelper(p) }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCompletionPromise overrides the stop pattern matched against agent
// output. Empty disables promise detection.
func WithCompletionPromise(promise string) RunnerOption {
	return func(r *Runner) { r.completionPromise = promise }
}

// WithActivityTimeout sets the stall window: a turn with no output for
// this long is canceled and counted as an iteration error. Zero disables
// the watchdog.
func WithActivityTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.activityTimeout = d }
}

// WithCommitPrefix sets the prefix for per-iteration commit messages.
func WithCommitPrefix(prefix string) RunnerOption {
	return func(r *Runner) { r.commitPrefix = prefix }
}

// WithDefaultModel sets the model used for turns whose record does not
// pin one.
func WithDefaultModel(model string) RunnerOption {
	return func(r *Runner) { r.defaultModel = model }
}

// NewRunner creates an iteration runner over the given machine and agent.
func NewRunner(machine *lifecycle.Machine, agent Agent, opts ...RunnerOption) *Runner {
	r := &Runner{
		machine:           machine,
		agent:             agent,
		logger:            slog.Default(),
		completionPromise: DefaultCompletionPromise,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.events == nil {
		r.events = events.NewPublishHelper(nil)
	}
	return r
}

// RunResult summarizes a finished run.
type RunResult struct {
	// Status is the record's status when the run ended.
	Status loop.Status

	// Iterations is the number of agent turns opened.
	Iterations int

	// TotalCostUSD sums the reported cost of every turn.
	TotalCostUSD float64

	// Elapsed is wall-clock time for the whole run.
	Elapsed time.Duration
}

// Run executes the iteration loop for a record in starting until it
// reaches an outcome status. Canceling the context stops the loop; the
// record lands in stopped and ctx.Err() is returned.
func (r *Runner) Run(ctx context.Context, id string) (*RunResult, error) {
	l, err := r.machine.Get(id)
	if err != nil {
		return nil, err
	}
	if l.Status != loop.StatusStarting {
		return nil, gyreerrors.RejectTransition(id, "run", string(l.Status))
	}

	if r.repo != nil {
		if err := r.prepareBranch(l); err != nil {
			if _, ferr := r.machine.Fail(id, fmt.Sprintf("prepare branch %s: %v", l.Branch, err)); ferr != nil {
				r.logger.Error("fail after branch setup error", "loop", id, "error", ferr)
			}
			return nil, err
		}
	}

	if _, err := r.machine.MarkRunning(id); err != nil {
		return nil, err
	}

	started := time.Now()
	res := &RunResult{}
	sessionID := ""

	for {
		if ctx.Err() != nil {
			return r.finishStopped(id, res, started, ctx.Err())
		}

		input, err := r.machine.BeginIteration(id)
		if err != nil {
			if halted, hres := r.externalHalt(id, res, started, err); halted {
				return hres, nil
			}
			return nil, err
		}
		if input == nil {
			// Ceiling reached; the machine already moved the record.
			res.Status = loop.StatusMaxIterations
			res.Elapsed = time.Since(started)
			return res, nil
		}
		res.Iterations = input.Iteration

		turn, err := r.runTurn(ctx, id, input.Iteration, TurnRequest{
			Prompt:    input.Prompt + r.promiseInstruction(),
			Model:     input.Model,
			SessionID: sessionID,
		})
		if err != nil {
			if ctx.Err() != nil {
				return r.finishStopped(id, res, started, ctx.Err())
			}
			if done, dres, derr := r.recordError(id, res, started, err.Error()); done {
				return dres, derr
			}
			continue
		}

		if turn.SessionID != "" {
			sessionID = turn.SessionID
		}
		res.TotalCostUSD += turn.CostUSD

		if turn.IsError {
			msg := turn.ErrorText
			if msg == "" {
				msg = "agent reported a failed run"
			}
			if done, dres, derr := r.recordError(id, res, started, msg); done {
				return dres, derr
			}
			continue
		}

		if _, err := r.machine.RecordIterationSuccess(id); err != nil {
			if halted, hres := r.externalHalt(id, res, started, err); halted {
				return hres, nil
			}
			return nil, err
		}

		if r.repo != nil {
			r.commitIteration(id, input.Iteration)
		}

		if r.promiseMet(turn.Output) {
			final, err := r.machine.MarkCompleted(id)
			if err != nil {
				if halted, hres := r.externalHalt(id, res, started, err); halted {
					return hres, nil
				}
				return nil, err
			}
			res.Status = final.Status
			res.Elapsed = time.Since(started)
			r.logger.Info("completion promise seen", "loop", id, "iteration", input.Iteration)
			return res, nil
		}

		if _, err := r.machine.MarkWaiting(id); err != nil {
			if halted, hres := r.externalHalt(id, res, started, err); halted {
				return hres, nil
			}
			return nil, err
		}
	}
}

// runTurn executes one agent turn under the activity watchdog. A stall
// cancels the turn and surfaces as an agent-timeout error.
func (r *Runner) runTurn(ctx context.Context, id string, iteration int, req TurnRequest) (*TurnResult, error) {
	if req.Model == "" {
		req.Model = r.defaultModel
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stalled atomic.Bool
	tracker := NewActivityTracker(
		WithStallTimeout(r.activityTimeout),
		WithHeartbeatCallback(func(iteration int) {
			r.events.Heartbeat(id, iteration)
		}),
		WithStallCallback(func(idle time.Duration) {
			r.logger.Warn("agent stalled", "loop", id, "iteration", iteration, "idle", idle)
			stalled.Store(true)
			cancel()
		}),
	)
	tracker.Start(turnCtx)
	defer tracker.Stop()
	tracker.BeginTurn(iteration)
	defer tracker.EndTurn()

	req.OnOutput = func(text string) {
		tracker.RecordChunk()
		r.events.Output(id, iteration, text)
	}

	turn, err := r.agent.Run(turnCtx, req)
	if err != nil {
		if stalled.Load() {
			return nil, gyreerrors.ErrAgentTimeout(int(r.activityTimeout.Seconds()))
		}
		return nil, err
	}
	return turn, nil
}

// recordError feeds one iteration error into the failsafe tracker. When
// the failsafe trips the run is over; otherwise the record is parked in
// waiting and the loop continues.
func (r *Runner) recordError(id string, res *RunResult, started time.Time, message string) (bool, *RunResult, error) {
	l, tripped, err := r.machine.RecordIterationError(id, message)
	if err != nil {
		if halted, hres := r.externalHalt(id, res, started, err); halted {
			return true, hres, nil
		}
		return true, nil, err
	}
	if tripped {
		res.Status = l.Status
		res.Elapsed = time.Since(started)
		return true, res, nil
	}
	if _, err := r.machine.MarkWaiting(id); err != nil {
		if halted, hres := r.externalHalt(id, res, started, err); halted {
			return true, hres, nil
		}
		return true, nil, err
	}
	return false, nil, nil
}

// externalHalt detects the record being moved out of the active statuses
// by someone else (stop, fail) between our machine calls. The run result
// then reports where the record landed.
func (r *Runner) externalHalt(id string, res *RunResult, started time.Time, cause error) (bool, *RunResult) {
	var tr *gyreerrors.TransitionError
	if !errors.As(cause, &tr) {
		return false, nil
	}
	l, err := r.machine.Get(id)
	if err != nil || loop.IsActive(l.Status) {
		return false, nil
	}
	res.Status = l.Status
	res.Elapsed = time.Since(started)
	r.logger.Info("run halted externally", "loop", id, "status", l.Status)
	return true, res
}

// finishStopped lands a canceled run in stopped.
func (r *Runner) finishStopped(id string, res *RunResult, started time.Time, cause error) (*RunResult, error) {
	l, err := r.machine.Stop(id)
	if err != nil {
		// Already out of the active statuses; report where it sits.
		if cur, gerr := r.machine.Get(id); gerr == nil {
			res.Status = cur.Status
		}
	} else {
		res.Status = l.Status
	}
	res.Elapsed = time.Since(started)
	return res, cause
}

// prepareBranch makes sure the working branch exists and is checked out.
func (r *Runner) prepareBranch(l *loop.Loop) error {
	if l.Branch == "" {
		return nil
	}
	if err := r.repo.EnsureBranchExists(l.Branch, l.BaseBranch); err != nil {
		return err
	}
	current, err := r.repo.CurrentBranch()
	if err != nil {
		return err
	}
	if current != l.Branch {
		return r.repo.Checkout(l.Branch)
	}
	return nil
}

// commitIteration stages and commits whatever the turn left behind. A
// clean tree is not an error.
func (r *Runner) commitIteration(id string, iteration int) {
	if err := r.repo.StageAll(); err != nil {
		r.logger.Warn("stage iteration output", "loop", id, "error", err)
		return
	}
	msg := fmt.Sprintf("%s %s iteration %d", r.commitPrefix, id, iteration)
	if r.commitPrefix == "" {
		msg = fmt.Sprintf("%s iteration %d", id, iteration)
	}
	if err := r.repo.Commit(msg); err != nil && !errors.Is(err, git.ErrNothingToCommit) {
		r.logger.Warn("commit iteration output", "loop", id, "error", err)
	}
}

// promiseMet reports whether the completion promise appears in the output.
func (r *Runner) promiseMet(output string) bool {
	if r.completionPromise == "" {
		return false
	}
	return strings.Contains(output, r.completionPromise)
}

// promiseInstruction is appended to every iteration prompt so the agent
// knows the stop pattern. The stored record prompt stays clean; plan
// turns skip it because plan completion is signaled by the machine.
func (r *Runner) promiseInstruction() string {
	if r.completionPromise == "" {
		return ""
	}
	return fmt.Sprintf("\n\nWhen the task is fully done and verified, output the single line %s. "+
		"Never output it while work remains.", r.completionPromise)
}
