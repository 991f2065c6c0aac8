// File: internal/orchestrator/orchestrator.go
// Description: Drives the tool-orchestrated conversation loop. The session
// holds the turn history, executes model-requested tools locally, and streams
// progress events to the caller while the turn is in flight.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aurora/api/schemas"
	"aurora/internal/config"
	"aurora/internal/llmclient"
	"aurora/internal/tools"
	"aurora/internal/workspace"
)

// EventKind classifies a progress event emitted during a turn.
type EventKind int

const (
	// EventWorking is a liveness notice while waiting on the model.
	EventWorking EventKind = iota
	// EventToolStart announces a tool about to run.
	EventToolStart
	// EventToolOK reports a tool that completed normally.
	EventToolOK
	// EventToolFailed reports a tool whose result was an error string. The
	// turn continues; the model sees the error text and may recover.
	EventToolFailed
	// EventSources carries the deduplicated citation titles for the turn.
	EventSources
	// EventFinal carries the complete answer text. Always the last event of
	// a successful turn.
	EventFinal
	// EventFailed carries a user-facing apology when the turn could not
	// produce an answer. Always the last event of a failed turn.
	EventFailed
)

// Event is one unit of turn progress. Exactly one of the payload fields is
// meaningful for a given Kind.
type Event struct {
	Kind    EventKind
	Tool    string
	Message string
	Sources []string
}

const (
	quotaApology   = "I'm sorry, the request quota has been exceeded. Please wait a moment and try again."
	genericApology = "I'm sorry, an unexpected error occurred while processing your request."
)

// Session is one live conversation. It owns the in-memory turn history and
// the workspace context; both are scoped to this session, never shared.
type Session struct {
	id      string
	ws      *workspace.Context
	model   schemas.ChatModel
	tools   *tools.Registry
	store   schemas.TranscriptStore
	history []schemas.Content
	logger  *zap.Logger

	maxToolRounds int
}

// NewSession starts a fresh conversation with a generated id.
func NewSession(cfg config.ChatConfig, ws *workspace.Context, model schemas.ChatModel, registry *tools.Registry, store schemas.TranscriptStore, logger *zap.Logger) *Session {
	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = 8
	}
	return &Session{
		id:            uuid.NewString(),
		ws:            ws,
		model:         model,
		tools:         registry,
		store:         store,
		logger:        logger.Named("session"),
		maxToolRounds: rounds,
	}
}

// ID returns the conversation identifier used for persistence.
func (s *Session) ID() string { return s.id }

// Workspace returns the session's workspace context.
func (s *Session) Workspace() *workspace.Context { return s.ws }

// History returns the current turn history. Exposed for replay seeding and
// tests; callers must not mutate it mid-turn.
func (s *Session) History() []schemas.Content { return s.history }

// Resume adopts a stored conversation: its id and a replayed history.
func (s *Session) Resume(conversationID string, history []schemas.Content) {
	s.id = conversationID
	s.history = history
}

// RunTurn processes one user message. Events stream on the returned channel,
// ending with exactly one EventFinal or EventFailed; the channel is closed
// when the turn is over. The caller must drain it.
func (s *Session) RunTurn(ctx context.Context, message string) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		s.runTurn(ctx, message, events)
	}()
	return events
}

func (s *Session) runTurn(ctx context.Context, message string, events chan<- Event) {
	s.history = append(s.history, schemas.TextContent(schemas.RoleUser, message))

	var (
		turnCalls []schemas.ToolCall
		citations []string
		finalText string
	)

	for round := 0; ; round++ {
		events <- Event{Kind: EventWorking, Message: "Thinking..."}

		resp, err := s.model.SendTurn(ctx, s.history)
		if err != nil {
			s.logger.Error("Model turn failed", zap.Error(err), zap.String("conversation_id", s.id))
			// The failed turn is not persisted; the user message is also
			// rolled back so a retry re-sends it cleanly.
			s.history = s.history[:len(s.history)-1-2*round]
			if errors.Is(err, llmclient.ErrRateLimited) {
				events <- Event{Kind: EventFailed, Message: quotaApology}
			} else {
				events <- Event{Kind: EventFailed, Message: genericApology}
			}
			return
		}

		citations = mergeCitations(citations, resp.CitationTitles)

		if !resp.HasToolCalls() {
			finalText = resp.Text
			s.history = append(s.history, schemas.TextContent(schemas.RoleModel, resp.Text))
			break
		}

		if round >= s.maxToolRounds {
			s.logger.Warn("Tool round limit reached, forcing final answer",
				zap.Int("rounds", round), zap.String("conversation_id", s.id))
			finalText = s.forceAnswer(ctx, events)
			break
		}

		modelTurn, userTurn := s.executeCalls(ctx, resp, &turnCalls, events)
		s.history = append(s.history, modelTurn, userTurn)
	}

	if len(citations) > 0 {
		finalText += renderSources(citations)
		events <- Event{Kind: EventSources, Sources: citations}
	}

	s.persist(ctx, message, finalText, turnCalls)
	events <- Event{Kind: EventFinal, Message: finalText}
}

// executeCalls runs every tool the model requested this round and returns
// the paired model/user turns to append to the history.
func (s *Session) executeCalls(ctx context.Context, resp *schemas.ModelResponse, turnCalls *[]schemas.ToolCall, events chan<- Event) (schemas.Content, schemas.Content) {
	modelParts := make([]schemas.Part, 0, len(resp.FunctionCalls)+1)
	if resp.Text != "" {
		modelParts = append(modelParts, schemas.Part{Text: resp.Text})
	}
	resultParts := make([]schemas.Part, 0, len(resp.FunctionCalls))

	for _, call := range resp.FunctionCalls {
		call := call
		modelParts = append(modelParts, schemas.Part{FunctionCall: &call})
		events <- Event{Kind: EventToolStart, Tool: call.Name}

		result, err := s.tools.Execute(ctx, s.ws, call.Name, call.Args)
		if err != nil {
			s.logger.Warn("Tool reported an error",
				zap.String("tool", call.Name), zap.Error(err))
			events <- Event{Kind: EventToolFailed, Tool: call.Name, Message: result}
		} else {
			events <- Event{Kind: EventToolOK, Tool: call.Name}
		}

		*turnCalls = append(*turnCalls, schemas.ToolCall{
			Name:   call.Name,
			Args:   call.Args,
			Result: result,
		})
		resultParts = append(resultParts, schemas.ToolResultPart(call.Name, result))
	}

	return schemas.Content{Role: schemas.RoleModel, Parts: modelParts},
		schemas.Content{Role: schemas.RoleUser, Parts: resultParts}
}

// forceAnswer asks the model once more for a plain answer after the tool
// round budget is spent. Any further tool requests are ignored.
func (s *Session) forceAnswer(ctx context.Context, events chan<- Event) string {
	s.history = append(s.history, schemas.TextContent(schemas.RoleUser,
		"Please answer now using the information gathered so far, without calling any more tools."))
	events <- Event{Kind: EventWorking, Message: "Summarizing..."}

	resp, err := s.model.SendTurn(ctx, s.history)
	if err != nil || resp.Text == "" {
		if err != nil {
			s.logger.Error("Forced final answer failed", zap.Error(err))
		}
		fallback := "I gathered partial information but could not finish reasoning about it. Please narrow the question."
		s.history = append(s.history, schemas.TextContent(schemas.RoleModel, fallback))
		return fallback
	}
	s.history = append(s.history, schemas.TextContent(schemas.RoleModel, resp.Text))
	return resp.Text
}

// persist stores the completed turn. Turns with neither answer text nor tool
// activity carry no information and are skipped.
func (s *Session) persist(ctx context.Context, query, response string, calls []schemas.ToolCall) {
	if s.store == nil {
		return
	}
	if strings.TrimSpace(response) == "" && len(calls) == 0 {
		s.logger.Debug("Skipping persistence of empty turn", zap.String("conversation_id", s.id))
		return
	}
	turn := schemas.ConversationTurn{
		ConversationID: s.id,
		Timestamp:      time.Now().UTC(),
		Query:          query,
		Response:       response,
		RepoPath:       s.ws.Root(),
		ToolCalls:      calls,
	}
	if err := s.store.Append(ctx, turn); err != nil {
		s.logger.Error("Failed to persist turn", zap.Error(err), zap.String("conversation_id", s.id))
	}
}

// mergeCitations appends new titles, keeping first-seen order and dropping
// duplicates.
func mergeCitations(have, incoming []string) []string {
	seen := make(map[string]bool, len(have))
	for _, t := range have {
		seen[t] = true
	}
	for _, t := range incoming {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		have = append(have, t)
	}
	return have
}

func renderSources(titles []string) string {
	sorted := make([]string, len(titles))
	copy(sorted, titles)
	sort.Strings(sorted)

	var b strings.Builder
	b.WriteString("\n\n**Sources:**\n")
	for _, t := range sorted {
		fmt.Fprintf(&b, "- `%s`\n", t)
	}
	return strings.TrimRight(b.String(), "\n")
}
