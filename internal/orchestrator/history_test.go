package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurora/api/schemas"
)

func TestReplayHistoryPlainTurns(t *testing.T) {
	turns := []schemas.ConversationTurn{
		{Query: "what is this repo?", Response: "A CLI tool.", Timestamp: time.Now()},
		{Query: "who wrote it?", Response: "The platform team.", Timestamp: time.Now()},
	}

	history := ReplayHistory(turns)
	require.Len(t, history, 4)
	assert.Equal(t, schemas.RoleUser, history[0].Role)
	assert.Equal(t, "what is this repo?", history[0].Parts[0].Text)
	assert.Equal(t, schemas.RoleModel, history[1].Role)
	assert.Equal(t, "A CLI tool.", history[1].Parts[0].Text)
	assert.Equal(t, "who wrote it?", history[2].Parts[0].Text)
}

func TestReplayHistoryExpandsToolCalls(t *testing.T) {
	turns := []schemas.ConversationTurn{{
		Query:    "read main.py",
		Response: "It starts the server.",
		ToolCalls: []schemas.ToolCall{
			{Name: "read_file", Args: map[string]any{"file_path": "main.py"}, Result: "print('hi')"},
		},
	}}

	history := ReplayHistory(turns)
	require.Len(t, history, 4)

	assert.Equal(t, schemas.RoleUser, history[0].Role)

	call := history[1]
	assert.Equal(t, schemas.RoleModel, call.Role)
	require.NotNil(t, call.Parts[0].FunctionCall)
	assert.Equal(t, "read_file", call.Parts[0].FunctionCall.Name)
	assert.Equal(t, "main.py", call.Parts[0].FunctionCall.Args["file_path"])

	result := history[2]
	assert.Equal(t, schemas.RoleUser, result.Role)
	require.NotNil(t, result.Parts[0].FunctionResponse)
	assert.Equal(t, "print('hi')", result.Parts[0].FunctionResponse.Response["result"])

	assert.Equal(t, "It starts the server.", history[3].Parts[0].Text)
}

func TestReplayHistoryBatchesToolCallsPerTurn(t *testing.T) {
	turns := []schemas.ConversationTurn{{
		Query:    "inspect the repo",
		Response: "Done.",
		ToolCalls: []schemas.ToolCall{
			{Name: "list_files", Args: map[string]any{}, Result: "[]"},
			{Name: "read_file", Args: map[string]any{"file_path": "main.py"}, Result: "print('hi')"},
		},
	}}

	history := ReplayHistory(turns)
	// All of a turn's calls share one model turn and one result turn, the
	// same shape the model was sent live.
	require.Len(t, history, 4)

	calls := history[1]
	assert.Equal(t, schemas.RoleModel, calls.Role)
	require.Len(t, calls.Parts, 2)
	assert.Equal(t, "list_files", calls.Parts[0].FunctionCall.Name)
	assert.Equal(t, "read_file", calls.Parts[1].FunctionCall.Name)

	results := history[2]
	assert.Equal(t, schemas.RoleUser, results.Role)
	require.Len(t, results.Parts, 2)
	assert.Equal(t, "[]", results.Parts[0].FunctionResponse.Response["result"])
	assert.Equal(t, "print('hi')", results.Parts[1].FunctionResponse.Response["result"])
}

func TestReplayHistoryDropsToolEchoAnswers(t *testing.T) {
	turns := []schemas.ConversationTurn{{
		Query:    "list files",
		Response: "✅ `list_files`",
		ToolCalls: []schemas.ToolCall{
			{Name: "list_files", Args: map[string]any{}, Result: "[]"},
		},
	}}

	history := ReplayHistory(turns)
	// user + functionCall + functionResponse, no redundant text turn.
	require.Len(t, history, 3)
	for _, content := range history {
		for _, part := range content.Parts {
			assert.NotContains(t, part.Text, "✅")
		}
	}
}

func TestReplayHistoryDropsEchoWithLeadingWhitespace(t *testing.T) {
	turns := []schemas.ConversationTurn{{
		Query:    "list files",
		Response: "  ✅ `list_files`\n",
		ToolCalls: []schemas.ToolCall{
			{Name: "list_files", Args: map[string]any{}, Result: "[]"},
		},
	}}

	history := ReplayHistory(turns)
	require.Len(t, history, 3)
}

func TestReplayHistoryKeepsEchoLookalikeForOtherTool(t *testing.T) {
	turns := []schemas.ConversationTurn{{
		Query:    "q",
		Response: "✅ `other_tool` finished",
		ToolCalls: []schemas.ToolCall{
			{Name: "list_files", Args: map[string]any{}, Result: "[]"},
		},
	}}

	history := ReplayHistory(turns)
	// The text names a tool this turn never called, so it is a real answer.
	require.Len(t, history, 4)
	assert.Equal(t, "✅ `other_tool` finished", history[3].Parts[0].Text)
}

func TestReplayHistorySkipsMalformedRows(t *testing.T) {
	turns := []schemas.ConversationTurn{
		{Query: "", Response: ""},
		{Query: "real", Response: "answer", ToolCalls: []schemas.ToolCall{{Name: ""}}},
	}

	history := ReplayHistory(turns)
	require.Len(t, history, 2)
	assert.Equal(t, "real", history[0].Parts[0].Text)
	assert.Equal(t, "answer", history[1].Parts[0].Text)
}

func TestReplayHistoryEmpty(t *testing.T) {
	assert.Empty(t, ReplayHistory(nil))
}
