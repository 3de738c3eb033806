package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gyreerrors "github.com/gyrelabs/gyre/internal/errors"
	"github.com/gyrelabs/gyre/internal/lifecycle"
	"github.com/gyrelabs/gyre/internal/loop"
)

// scriptedTurn is one canned agent response.
type scriptedTurn struct {
	output    string
	isError   bool
	errorText string
	err       error
	onRun     func()
}

// scriptedAgent returns canned turns in order and records the requests it
// saw. Past the end of the script it repeats the last turn.
type scriptedAgent struct {
	mu       sync.Mutex
	turns    []scriptedTurn
	requests []TurnRequest
	calls    int
}

func (a *scriptedAgent) Run(_ context.Context, req TurnRequest) (*TurnResult, error) {
	a.mu.Lock()
	i := a.calls
	a.calls++
	a.requests = append(a.requests, req)
	a.mu.Unlock()

	turn := scriptedTurn{}
	if len(a.turns) > 0 {
		if i >= len(a.turns) {
			i = len(a.turns) - 1
		}
		turn = a.turns[i]
	}
	if turn.onRun != nil {
		turn.onRun()
	}
	if turn.err != nil {
		return nil, turn.err
	}
	if req.OnOutput != nil && turn.output != "" {
		req.OnOutput(turn.output)
	}
	return &TurnResult{
		Output:    turn.output,
		SessionID: "sess-1",
		NumTurns:  1,
		CostUSD:   0.01,
		IsError:   turn.isError,
		ErrorText: turn.errorText,
	}, nil
}

func (a *scriptedAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *scriptedAgent) Requests() []TurnRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TurnRequest, len(a.requests))
	copy(out, a.requests)
	return out
}

// blockingAgent holds every turn open until the context is canceled.
type blockingAgent struct {
	started chan struct{}
}

func (a *blockingAgent) Run(ctx context.Context, _ TurnRequest) (*TurnResult, error) {
	if a.started != nil {
		select {
		case a.started <- struct{}{}:
		default:
		}
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRunnerFixture(t *testing.T, opts *lifecycle.Options, agent Agent, ropts ...RunnerOption) (*lifecycle.Machine, *Runner, string) {
	t.Helper()
	m := lifecycle.New(t.TempDir(), nil, nil, nil, opts, discardLogger())
	l, err := m.Create(lifecycle.CreateRequest{Name: "crash fix", Prompt: "fix it", BaseBranch: "main"})
	require.NoError(t, err)
	_, err = m.Start(l.ID, lifecycle.StartOptions{})
	require.NoError(t, err)

	ropts = append([]RunnerOption{WithRunnerLogger(discardLogger())}, ropts...)
	return m, NewRunner(m, agent, ropts...), l.ID
}

func TestRunnerRun_CompletesOnPromise(t *testing.T) {
	agent := &scriptedAgent{turns: []scriptedTurn{
		{output: "still working on it"},
		{output: "all done\nLOOP_COMPLETE"},
	}}
	m, r, id := newRunnerFixture(t, nil, agent)

	res, err := r.Run(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusCompleted, res.Status)
	assert.Equal(t, 2, res.Iterations)

	l, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusCompleted, l.Status)
	assert.Equal(t, 2, l.Iteration)
	assert.Nil(t, l.Tracker)
}

func TestRunnerRun_SessionResumed(t *testing.T) {
	agent := &scriptedAgent{turns: []scriptedTurn{
		{output: "first"},
		{output: "LOOP_COMPLETE"},
	}}
	_, r, id := newRunnerFixture(t, nil, agent)

	_, err := r.Run(context.Background(), id)
	require.NoError(t, err)

	reqs := agent.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].SessionID)
	assert.Equal(t, "sess-1", reqs[1].SessionID)
}

func TestRunnerRun_MaxIterations(t *testing.T) {
	agent := &scriptedAgent{turns: []scriptedTurn{{output: "no promise here"}}}
	m, r, id := newRunnerFixture(t, &lifecycle.Options{MaxIterations: 2}, agent)

	res, err := r.Run(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusMaxIterations, res.Status)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 2, agent.Calls())

	l, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusMaxIterations, l.Status)
}

func TestRunnerRun_FailsafeTrips(t *testing.T) {
	agent := &scriptedAgent{turns: []scriptedTurn{
		{isError: true, errorText: "connection refused"},
	}}
	m, r, id := newRunnerFixture(t, &lifecycle.Options{MaxConsecutiveErrors: 3}, agent)

	res, err := r.Run(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusFailed, res.Status)
	assert.Equal(t, 3, agent.Calls())

	l, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusFailed, l.Status)
	require.NotNil(t, l.Error)
	assert.Contains(t, l.Error.Message, "failsafe tripped after 3")
	assert.Contains(t, l.Error.Message, "connection refused")
}

func TestRunnerRun_SuccessResetsTracker(t *testing.T) {
	agent := &scriptedAgent{turns: []scriptedTurn{
		{isError: true, errorText: "flaky"},
		{isError: true, errorText: "flaky"},
		{output: "recovered\nLOOP_COMPLETE"},
	}}
	m, r, id := newRunnerFixture(t, &lifecycle.Options{MaxConsecutiveErrors: 3}, agent)

	res, err := r.Run(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusCompleted, res.Status)

	l, err := m.Get(id)
	require.NoError(t, err)
	assert.Nil(t, l.Tracker)
	assert.Nil(t, l.Error)
}

func TestRunnerRun_PendingOverrideConsumed(t *testing.T) {
	newPrompt := "ship the hotfix instead"
	agent := &scriptedAgent{turns: []scriptedTurn{
		{output: "first"},
		{output: "LOOP_COMPLETE"},
	}}
	m, r, id := newRunnerFixture(t, nil, agent)
	agent.turns[0].onRun = func() {
		_, err := m.SetPending(id, &newPrompt, nil)
		require.NoError(t, err)
	}

	_, err := r.Run(context.Background(), id)
	require.NoError(t, err)

	reqs := agent.Requests()
	require.Len(t, reqs, 2)
	assert.True(t, strings.HasPrefix(reqs[0].Prompt, "fix it"))
	assert.True(t, strings.HasPrefix(reqs[1].Prompt, newPrompt))
	// Every turn carries the stop-pattern instruction.
	assert.Contains(t, reqs[0].Prompt, "LOOP_COMPLETE")

	l, err := m.Get(id)
	require.NoError(t, err)
	assert.Nil(t, l.Pending)
	assert.Equal(t, newPrompt, l.Prompt)
}

func TestRunnerRun_CanceledLandsStopped(t *testing.T) {
	agent := &blockingAgent{started: make(chan struct{}, 1)}
	m, r, id := newRunnerFixture(t, nil, agent)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var res *RunResult
	var runErr error
	go func() {
		res, runErr = r.Run(ctx, id)
		close(done)
	}()

	<-agent.started
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	require.ErrorIs(t, runErr, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, loop.StatusStopped, res.Status)

	l, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusStopped, l.Status)
}

func TestRunnerRun_ActivityTimeoutFeedsFailsafe(t *testing.T) {
	agent := &blockingAgent{}
	m, r, id := newRunnerFixture(t, &lifecycle.Options{MaxConsecutiveErrors: 1}, agent,
		WithActivityTimeout(50*time.Millisecond))

	res, err := r.Run(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusFailed, res.Status)

	l, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusFailed, l.Status)
	require.NotNil(t, l.Error)
	assert.Contains(t, l.Error.Message, "failsafe tripped")
}

func TestRunnerRun_RequiresStarting(t *testing.T) {
	m := lifecycle.New(t.TempDir(), nil, nil, nil, nil, discardLogger())
	l, err := m.Create(lifecycle.CreateRequest{Name: "idle one", Prompt: "p", BaseBranch: "main"})
	require.NoError(t, err)

	r := NewRunner(m, &scriptedAgent{}, WithRunnerLogger(discardLogger()))
	_, err = r.Run(context.Background(), l.ID)

	var tr *gyreerrors.TransitionError
	require.ErrorAs(t, err, &tr)
	assert.Equal(t, "run", tr.Action)
}

func TestRunnerRun_ExternalStopBetweenIterations(t *testing.T) {
	agent := &scriptedAgent{turns: []scriptedTurn{{output: "first"}}}
	m, r, id := newRunnerFixture(t, nil, agent)

	// Stop lands while the turn is in flight; the runner notices on its
	// next machine call and reports where the record ended up.
	agent.turns[0].onRun = func() {
		_, err := m.Stop(id)
		require.NoError(t, err)
	}

	res, err := r.Run(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusStopped, res.Status)
	assert.Equal(t, 1, agent.Calls())
}

func TestRunnerRun_AgentFailureMessageTracked(t *testing.T) {
	agent := &scriptedAgent{turns: []scriptedTurn{
		{err: errors.New("spawn agent: executable not found")},
	}}
	m, r, id := newRunnerFixture(t, &lifecycle.Options{MaxConsecutiveErrors: 2}, agent)

	res, err := r.Run(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusFailed, res.Status)

	l, err := m.Get(id)
	require.NoError(t, err)
	require.NotNil(t, l.Error)
	assert.Contains(t, l.Error.Message, "executable not found")
}

func TestRunPlan_WritesPlanAndMarksReady(t *testing.T) {
	m := lifecycle.New(t.TempDir(), nil, nil, nil, nil, discardLogger())
	l, err := m.Create(lifecycle.CreateRequest{Name: "plan me", Prompt: "refactor storage", BaseBranch: "main", Draft: true})
	require.NoError(t, err)
	_, err = m.Start(l.ID, lifecycle.StartOptions{PlanMode: true})
	require.NoError(t, err)

	agent := &scriptedAgent{turns: []scriptedTurn{{output: "# Plan\n1. do the thing"}}}
	r := NewRunner(m, agent, WithRunnerLogger(discardLogger()))

	got, err := r.RunPlan(context.Background(), l.ID)
	require.NoError(t, err)

	p, ok := got.Planning()
	require.True(t, ok)
	assert.True(t, p.IsPlanReady)

	reqs := agent.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].PlanMode)

	text, err := ReadPlan(m.Root(), l.ID)
	require.NoError(t, err)
	assert.Contains(t, text, "do the thing")
}

func TestRunPlan_FeedbackAppendedToPrompt(t *testing.T) {
	m := lifecycle.New(t.TempDir(), nil, nil, nil, nil, discardLogger())
	l, err := m.Create(lifecycle.CreateRequest{Name: "plan me", Prompt: "refactor storage", BaseBranch: "main", Draft: true})
	require.NoError(t, err)
	_, err = m.Start(l.ID, lifecycle.StartOptions{PlanMode: true})
	require.NoError(t, err)
	_, err = m.SendPlanFeedback(l.ID, "split phase 2 in two")
	require.NoError(t, err)

	agent := &scriptedAgent{turns: []scriptedTurn{{output: "revised plan"}}}
	r := NewRunner(m, agent, WithRunnerLogger(discardLogger()))

	_, err = r.RunPlan(context.Background(), l.ID)
	require.NoError(t, err)

	reqs := agent.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Prompt, "refactor storage")
	assert.Contains(t, reqs[0].Prompt, "split phase 2 in two")
}

func TestRunPlan_RejectsOutsidePlanning(t *testing.T) {
	m := lifecycle.New(t.TempDir(), nil, nil, nil, nil, discardLogger())
	l, err := m.Create(lifecycle.CreateRequest{Name: "no plan", Prompt: "p", BaseBranch: "main"})
	require.NoError(t, err)

	r := NewRunner(m, &scriptedAgent{}, WithRunnerLogger(discardLogger()))
	_, err = r.RunPlan(context.Background(), l.ID)

	var tr *gyreerrors.TransitionError
	require.ErrorAs(t, err, &tr)
}

func TestReadPlan_MissingIsEmpty(t *testing.T) {
	text, err := ReadPlan(t.TempDir(), "LOOP-001")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestReadPlan_ReturnsContents(t *testing.T) {
	root := t.TempDir()
	dir := loop.PlanDirIn(root, "LOOP-001")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, PlanFile), []byte("the plan"), 0o644))

	text, err := ReadPlan(root, "LOOP-001")
	require.NoError(t, err)
	assert.Equal(t, "the plan", text)
}
