package executor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	gyreerr "github.com/gyrelabs/gyre/internal/errors"
	"github.com/gyrelabs/gyre/internal/util"
)

// Agent runs one iteration turn against the coding agent and returns the
// final response. Implementations must honor context cancellation: a
// canceled turn returns ctx.Err(), not a partial result.
type Agent interface {
	Run(ctx context.Context, req TurnRequest) (*TurnResult, error)
}

// TurnRequest is the input for a single agent turn.
type TurnRequest struct {
	// Prompt is the full instruction for the turn, fed on stdin.
	Prompt string

	// Model overrides the agent's default model when non-empty.
	Model string

	// SessionID resumes an earlier session when non-empty.
	SessionID string

	// PlanMode runs the turn read-only so the agent can draft a plan
	// without touching the working tree.
	PlanMode bool

	// OnOutput receives assistant text as it streams. Optional.
	OnOutput func(text string)
}

// TurnResult is the outcome of a completed agent turn.
type TurnResult struct {
	// Output is the agent's final response text.
	Output string

	// SessionID identifies the agent session for resumption.
	SessionID string

	// NumTurns is how many internal assistant turns the run took.
	NumTurns int

	// CostUSD is the reported cost of the turn.
	CostUSD float64

	// Usage is the reported token consumption.
	Usage TokenUsage

	// Duration is wall-clock time for the turn.
	Duration time.Duration

	// IsError is set when the agent itself reported a failed run.
	IsError bool

	// ErrorText carries the agent's failure description when IsError.
	ErrorText string

	// sawResult marks that the closing result record arrived intact.
	sawResult bool
}

// TokenUsage is the token consumption reported for a turn.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// maxStreamLine bounds a single stream record; tool results can be large.
const maxStreamLine = 10 * 1024 * 1024

// SubprocessAgent invokes the agent CLI as a child process and reads its
// line-delimited JSON stream. The default invocation matches the claude
// CLI; Command, Args, and the permission flag come from configuration so
// compatible agents can be substituted.
type SubprocessAgent struct {
	command         string
	extraArgs       []string
	workdir         string
	skipPermissions bool
	logger          *slog.Logger
}

// SubprocessAgentOption configures a SubprocessAgent.
type SubprocessAgentOption func(*SubprocessAgent)

// WithAgentCommand sets the agent binary.
func WithAgentCommand(command string) SubprocessAgentOption {
	return func(a *SubprocessAgent) {
		if command != "" {
			a.command = command
		}
	}
}

// WithAgentArgs appends extra arguments to every invocation.
func WithAgentArgs(args []string) SubprocessAgentOption {
	return func(a *SubprocessAgent) { a.extraArgs = args }
}

// WithAgentWorkdir sets the working directory for agent processes.
func WithAgentWorkdir(dir string) SubprocessAgentOption {
	return func(a *SubprocessAgent) { a.workdir = dir }
}

// WithAgentSkipPermissions passes the agent's permission-bypass flag on
// non-plan turns.
func WithAgentSkipPermissions(skip bool) SubprocessAgentOption {
	return func(a *SubprocessAgent) { a.skipPermissions = skip }
}

// WithAgentLogger sets the logger.
func WithAgentLogger(l *slog.Logger) SubprocessAgentOption {
	return func(a *SubprocessAgent) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewSubprocessAgent creates a subprocess-backed agent.
func NewSubprocessAgent(opts ...SubprocessAgentOption) *SubprocessAgent {
	a := &SubprocessAgent{
		command: "claude",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

var _ Agent = (*SubprocessAgent)(nil)

// Run executes one agent turn. The prompt goes in on stdin and the
// response is assembled from the process's JSON stream.
func (a *SubprocessAgent) Run(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if _, err := exec.LookPath(a.command); err != nil {
		return nil, gyreerr.ErrAgentUnavailable(a.command, err)
	}

	args := a.buildArgs(req)
	a.logger.Debug("agent turn starting", "command", a.command, "model", req.Model, "resume", req.SessionID != "")

	cmd := exec.CommandContext(ctx, a.command, args...)
	cmd.Dir = a.workdir
	cmd.Stdin = strings.NewReader(req.Prompt)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agent stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, gyreerr.ErrAgentUnavailable(a.command, err)
	}

	start := time.Now()
	res := &TurnResult{}
	scanErr := consumeStream(stdout, req.OnOutput, res)
	waitErr := cmd.Wait()
	res.Duration = time.Since(start)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if waitErr != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("agent exited: %w: %s", waitErr, util.Truncate(msg, 500))
		}
		return nil, fmt.Errorf("agent exited: %w", waitErr)
	}
	if scanErr != nil {
		return nil, fmt.Errorf("read agent stream: %w", scanErr)
	}
	if !res.sawResult {
		return nil, fmt.Errorf("agent stream ended without a result record")
	}
	if res.IsError {
		msg := res.ErrorText
		if msg == "" {
			msg = "agent reported an error"
		}
		return res, fmt.Errorf("agent error: %s", util.Truncate(msg, 500))
	}

	a.logger.Debug("agent turn finished",
		"turns", res.NumTurns,
		"cost_usd", res.CostUSD,
		"duration", res.Duration,
	)
	return res, nil
}

// buildArgs assembles the CLI invocation for one turn.
func (a *SubprocessAgent) buildArgs(req TurnRequest) []string {
	args := []string{"-p", "--output-format", "stream-json", "--verbose"}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}
	if req.PlanMode {
		args = append(args, "--permission-mode", "plan")
	} else if a.skipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	return append(args, a.extraArgs...)
}

// consumeStream reads line-delimited JSON records from the agent,
// forwarding assistant text to onOutput and folding the closing result
// record into res. Non-JSON lines are skipped.
func consumeStream(r io.Reader, onOutput func(string), res *TurnResult) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !gjson.Valid(line) {
			continue
		}
		handleStreamLine(line, onOutput, res)
	}
	return sc.Err()
}

func handleStreamLine(line string, onOutput func(string), res *TurnResult) {
	switch gjson.Get(line, "type").String() {
	case "system":
		if sid := gjson.Get(line, "session_id").String(); sid != "" {
			res.SessionID = sid
		}

	case "assistant":
		if onOutput == nil {
			return
		}
		gjson.Get(line, "message.content").ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "text" {
				if text := block.Get("text").String(); text != "" {
					onOutput(text)
				}
			}
			return true
		})

	case "result":
		res.sawResult = true
		res.Output = gjson.Get(line, "result").String()
		if sid := gjson.Get(line, "session_id").String(); sid != "" {
			res.SessionID = sid
		}
		res.IsError = gjson.Get(line, "is_error").Bool()
		res.NumTurns = int(gjson.Get(line, "num_turns").Int())
		res.CostUSD = gjson.Get(line, "total_cost_usd").Float()
		res.Usage.InputTokens = int(gjson.Get(line, "usage.input_tokens").Int())
		res.Usage.OutputTokens = int(gjson.Get(line, "usage.output_tokens").Int())
		if res.IsError && res.ErrorText == "" {
			if res.Output != "" {
				res.ErrorText = res.Output
			} else {
				res.ErrorText = gjson.Get(line, "subtype").String()
			}
		}
	}
}
