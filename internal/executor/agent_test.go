package executor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeStream_AssistantAndResult(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"system","subtype":"init","session_id":"sess-42"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"working on it"},{"type":"tool_use","name":"bash"}]}}`,
		`not json at all`,
		``,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"done"}]}}`,
		`{"type":"result","result":"done\nLOOP_COMPLETE","session_id":"sess-42","is_error":false,"num_turns":7,"total_cost_usd":0.42,"usage":{"input_tokens":1200,"output_tokens":300}}`,
	}, "\n")

	var chunks []string
	res := &TurnResult{}
	err := consumeStream(strings.NewReader(stream), func(text string) {
		chunks = append(chunks, text)
	}, res)
	require.NoError(t, err)

	assert.Equal(t, []string{"working on it", "done"}, chunks)
	assert.True(t, res.sawResult)
	assert.Equal(t, "done\nLOOP_COMPLETE", res.Output)
	assert.Equal(t, "sess-42", res.SessionID)
	assert.False(t, res.IsError)
	assert.Equal(t, 7, res.NumTurns)
	assert.InDelta(t, 0.42, res.CostUSD, 1e-9)
	assert.Equal(t, 1200, res.Usage.InputTokens)
	assert.Equal(t, 300, res.Usage.OutputTokens)
}

func TestConsumeStream_ErrorResult(t *testing.T) {
	stream := `{"type":"result","result":"","subtype":"error_during_execution","is_error":true}`

	res := &TurnResult{}
	err := consumeStream(strings.NewReader(stream), nil, res)
	require.NoError(t, err)

	assert.True(t, res.sawResult)
	assert.True(t, res.IsError)
	assert.Equal(t, "error_during_execution", res.ErrorText)
}

func TestConsumeStream_ErrorTextFromResult(t *testing.T) {
	stream := `{"type":"result","result":"rate limit exceeded","is_error":true}`

	res := &TurnResult{}
	err := consumeStream(strings.NewReader(stream), nil, res)
	require.NoError(t, err)
	assert.Equal(t, "rate limit exceeded", res.ErrorText)
}

func TestConsumeStream_NoResultRecord(t *testing.T) {
	stream := `{"type":"assistant","message":{"content":[{"type":"text","text":"partial"}]}}`

	res := &TurnResult{}
	err := consumeStream(strings.NewReader(stream), nil, res)
	require.NoError(t, err)
	assert.False(t, res.sawResult)
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		req  TurnRequest
		skip bool
		want []string
	}{
		{
			name: "defaults",
			req:  TurnRequest{},
			want: []string{"-p", "--output-format", "stream-json", "--verbose"},
		},
		{
			name: "model and resume",
			req:  TurnRequest{Model: "opus", SessionID: "sess-1"},
			want: []string{"-p", "--output-format", "stream-json", "--verbose", "--model", "opus", "--resume", "sess-1"},
		},
		{
			name: "plan mode wins over skip permissions",
			req:  TurnRequest{PlanMode: true},
			skip: true,
			want: []string{"-p", "--output-format", "stream-json", "--verbose", "--permission-mode", "plan"},
		},
		{
			name: "skip permissions",
			req:  TurnRequest{},
			skip: true,
			want: []string{"-p", "--output-format", "stream-json", "--verbose", "--dangerously-skip-permissions"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewSubprocessAgent(WithAgentSkipPermissions(tt.skip))
			assert.Equal(t, tt.want, a.buildArgs(tt.req))
		})
	}
}

func TestBuildArgs_ExtraArgsAppended(t *testing.T) {
	a := NewSubprocessAgent(WithAgentArgs([]string{"--add-dir", "/tmp"}))
	got := a.buildArgs(TurnRequest{})
	assert.Equal(t, []string{"--add-dir", "/tmp"}, got[len(got)-2:])
}
