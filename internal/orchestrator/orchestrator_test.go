// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"aurora/api/schemas"
	"aurora/internal/config"
	"aurora/internal/llmclient"
	"aurora/internal/scanner"
	"aurora/internal/tools"
	"aurora/internal/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedModel replays a fixed sequence of responses and records every
// history it was sent.
type scriptedModel struct {
	responses []*schemas.ModelResponse
	errs      []error
	calls     int
	histories [][]schemas.Content
}

func (m *scriptedModel) SendTurn(ctx context.Context, history []schemas.Content) (*schemas.ModelResponse, error) {
	snapshot := make([]schemas.Content, len(history))
	copy(snapshot, history)
	m.histories = append(m.histories, snapshot)

	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return &schemas.ModelResponse{Text: "fallback"}, nil
}

// memoryStore records appended turns in memory.
type memoryStore struct {
	turns []schemas.ConversationTurn
	err   error
}

func (s *memoryStore) Append(ctx context.Context, turn schemas.ConversationTurn) error {
	if s.err != nil {
		return s.err
	}
	s.turns = append(s.turns, turn)
	return nil
}

func (s *memoryStore) Load(ctx context.Context, id string) ([]schemas.ConversationTurn, error) {
	return s.turns, nil
}

func (s *memoryStore) Conversations(ctx context.Context, repoPath string) ([]schemas.ConversationSummary, error) {
	return nil, nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error { return nil }

type fakeGraphs struct{}

func (fakeGraphs) Load(root string) (*schemas.Graph, error) {
	return &schemas.Graph{}, nil
}

func newTestSession(t *testing.T, model schemas.ChatModel, ts schemas.TranscriptStore, maxRounds int) *Session {
	t.Helper()
	logger := zap.NewNop()
	registry := tools.NewRegistry(
		scanner.New(config.IngestionConfig{}, logger), fakeGraphs{}, 0, logger)
	return NewSession(
		config.ChatConfig{MaxToolRounds: maxRounds},
		workspace.New(t.TempDir()), model, registry, ts, logger)
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func lastEvent(t *testing.T, events []Event) Event {
	t.Helper()
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

func TestRunTurnPlainAnswer(t *testing.T) {
	model := &scriptedModel{responses: []*schemas.ModelResponse{{Text: "The answer."}}}
	store := &memoryStore{}
	s := newTestSession(t, model, store, 8)

	events := collect(t, s.RunTurn(context.Background(), "question?"))

	final := lastEvent(t, events)
	assert.Equal(t, EventFinal, final.Kind)
	assert.Equal(t, "The answer.", final.Message)

	// The turn was persisted with the session's workspace.
	require.Len(t, store.turns, 1)
	assert.Equal(t, s.ID(), store.turns[0].ConversationID)
	assert.Equal(t, "question?", store.turns[0].Query)
	assert.Equal(t, "The answer.", store.turns[0].Response)
	assert.Equal(t, s.Workspace().Root(), store.turns[0].RepoPath)
	assert.Empty(t, store.turns[0].ToolCalls)

	// History: user turn then model answer.
	require.Len(t, s.History(), 2)
	assert.Equal(t, schemas.RoleUser, s.History()[0].Role)
	assert.Equal(t, schemas.RoleModel, s.History()[1].Role)
}

func TestRunTurnExecutesToolsThenAnswers(t *testing.T) {
	model := &scriptedModel{responses: []*schemas.ModelResponse{
		{FunctionCalls: []schemas.FunctionCall{{Name: tools.NameListFiles, Args: map[string]any{}}}},
		{Text: "Found them."},
	}}
	store := &memoryStore{}
	s := newTestSession(t, model, store, 8)

	events := collect(t, s.RunTurn(context.Background(), "list the files"))

	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventWorking, EventToolStart, EventToolOK, EventWorking, EventFinal}, kinds)

	require.Len(t, store.turns, 1)
	require.Len(t, store.turns[0].ToolCalls, 1)
	assert.Equal(t, tools.NameListFiles, store.turns[0].ToolCalls[0].Name)
	assert.NotEmpty(t, store.turns[0].ToolCalls[0].Result)

	// Second model call saw the functionCall/functionResponse pair.
	require.Len(t, model.histories, 2)
	second := model.histories[1]
	require.Len(t, second, 3)
	require.NotNil(t, second[1].Parts[0].FunctionCall)
	require.NotNil(t, second[2].Parts[0].FunctionResponse)
	assert.Equal(t, tools.NameListFiles, second[2].Parts[0].FunctionResponse.Name)
}

func TestRunTurnToolFailureContinuesTurn(t *testing.T) {
	model := &scriptedModel{responses: []*schemas.ModelResponse{
		{FunctionCalls: []schemas.FunctionCall{{Name: "bogus_tool", Args: map[string]any{}}}},
		{Text: "Recovered."},
	}}
	s := newTestSession(t, model, &memoryStore{}, 8)

	events := collect(t, s.RunTurn(context.Background(), "go"))

	sawFailure := false
	for _, ev := range events {
		if ev.Kind == EventToolFailed {
			sawFailure = true
			assert.Equal(t, "bogus_tool", ev.Tool)
		}
	}
	assert.True(t, sawFailure)
	assert.Equal(t, EventFinal, lastEvent(t, events).Kind)
	assert.Equal(t, "Recovered.", lastEvent(t, events).Message)
}

func TestRunTurnAppendsCitations(t *testing.T) {
	model := &scriptedModel{responses: []*schemas.ModelResponse{
		{Text: "See the auth module.", CitationTitles: []string{"auth.py", "main.py", "auth.py"}},
	}}
	store := &memoryStore{}
	s := newTestSession(t, model, store, 8)

	events := collect(t, s.RunTurn(context.Background(), "where is login?"))

	final := lastEvent(t, events)
	assert.Equal(t, EventFinal, final.Kind)
	assert.Contains(t, final.Message, "**Sources:**")
	assert.Contains(t, final.Message, "- `auth.py`")
	assert.Contains(t, final.Message, "- `main.py`")
	// Deduplicated: one bullet per title.
	assert.Equal(t, 1, countOccurrences(final.Message, "- `auth.py`"))

	// The persisted response includes the sources block.
	require.Len(t, store.turns, 1)
	assert.Contains(t, store.turns[0].Response, "**Sources:**")
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}

func TestRunTurnBoundedToolRounds(t *testing.T) {
	// The model asks for tools forever; the loop must force an answer after
	// the round budget.
	var responses []*schemas.ModelResponse
	for i := 0; i < 10; i++ {
		responses = append(responses, &schemas.ModelResponse{
			FunctionCalls: []schemas.FunctionCall{{Name: tools.NameListFiles, Args: map[string]any{}}},
		})
	}
	model := &scriptedModel{responses: responses}
	s := newTestSession(t, model, &memoryStore{}, 2)

	events := collect(t, s.RunTurn(context.Background(), "loop forever"))

	final := lastEvent(t, events)
	assert.Equal(t, EventFinal, final.Kind)
	// 2 tool rounds, then one forced-answer call.
	assert.Equal(t, 4, model.calls)
	assert.NotEmpty(t, final.Message)
}

func TestRunTurnQuotaFailure(t *testing.T) {
	model := &scriptedModel{errs: []error{fmt.Errorf("giving up: %w", llmclient.ErrRateLimited)}}
	store := &memoryStore{}
	s := newTestSession(t, model, store, 8)

	events := collect(t, s.RunTurn(context.Background(), "hi"))

	final := lastEvent(t, events)
	assert.Equal(t, EventFailed, final.Kind)
	assert.Contains(t, final.Message, "quota")
	// Failed turns are not persisted and leave no history behind.
	assert.Empty(t, store.turns)
	assert.Empty(t, s.History())
}

func TestRunTurnGenericFailure(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("boom")}}
	store := &memoryStore{}
	s := newTestSession(t, model, store, 8)

	events := collect(t, s.RunTurn(context.Background(), "hi"))

	final := lastEvent(t, events)
	assert.Equal(t, EventFailed, final.Kind)
	assert.NotContains(t, final.Message, "quota")
	assert.Empty(t, store.turns)
}

func TestRunTurnFailureMidToolLoopRollsBackHistory(t *testing.T) {
	model := &scriptedModel{
		responses: []*schemas.ModelResponse{
			{FunctionCalls: []schemas.FunctionCall{{Name: tools.NameListFiles, Args: map[string]any{}}}},
		},
		errs: []error{nil, errors.New("boom")},
	}
	s := newTestSession(t, model, &memoryStore{}, 8)

	events := collect(t, s.RunTurn(context.Background(), "hi"))
	assert.Equal(t, EventFailed, lastEvent(t, events).Kind)
	assert.Empty(t, s.History(), "failed turn must not leave partial history")
}

func TestRunTurnSkipsPersistingEmptyAnswerWithoutTools(t *testing.T) {
	model := &scriptedModel{responses: []*schemas.ModelResponse{{Text: "   "}}}
	store := &memoryStore{}
	s := newTestSession(t, model, store, 8)

	collect(t, s.RunTurn(context.Background(), "hi"))
	assert.Empty(t, store.turns)
}

func TestResumeAdoptsConversation(t *testing.T) {
	model := &scriptedModel{responses: []*schemas.ModelResponse{{Text: "continued"}}}
	store := &memoryStore{}
	s := newTestSession(t, model, store, 8)

	prior := []schemas.Content{
		schemas.TextContent(schemas.RoleUser, "earlier question"),
		schemas.TextContent(schemas.RoleModel, "earlier answer"),
	}
	s.Resume("conv-42", prior)
	assert.Equal(t, "conv-42", s.ID())

	collect(t, s.RunTurn(context.Background(), "follow-up"))

	// The model saw the replayed history ahead of the new message.
	require.Len(t, model.histories, 1)
	require.Len(t, model.histories[0], 3)
	assert.Equal(t, "earlier question", model.histories[0][0].Parts[0].Text)

	require.Len(t, store.turns, 1)
	assert.Equal(t, "conv-42", store.turns[0].ConversationID)
}

func TestSessionsAreIndependent(t *testing.T) {
	a := newTestSession(t, &scriptedModel{responses: []*schemas.ModelResponse{{Text: "a"}}}, &memoryStore{}, 8)
	b := newTestSession(t, &scriptedModel{responses: []*schemas.ModelResponse{{Text: "b"}}}, &memoryStore{}, 8)

	assert.NotEqual(t, a.ID(), b.ID())

	collect(t, a.RunTurn(context.Background(), "hi"))
	assert.Len(t, a.History(), 2)
	assert.Empty(t, b.History())
}
