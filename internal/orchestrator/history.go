// File: internal/orchestrator/history.go
// Description: Reconstructs a model-ready turn history from persisted
// conversation rows so a resumed session continues with full context.

package orchestrator

import (
	"strings"

	"aurora/api/schemas"
)

// ReplayHistory converts stored turns back into the wire history format.
// Each turn expands to the user query, one model turn carrying every
// functionCall of that turn with one paired user turn carrying every
// functionResponse, and the final model answer. Batching all of a turn's
// calls into a single pair mirrors what the model was actually sent live.
//
// A stored answer that is just a tool confirmation line (the "✅ `tool`"
// progress text an older client persisted by mistake) duplicates the
// functionResponse that precedes it and is dropped. Malformed rows are
// skipped rather than aborting the replay.
func ReplayHistory(turns []schemas.ConversationTurn) []schemas.Content {
	history := make([]schemas.Content, 0, len(turns)*2)

	for _, turn := range turns {
		if strings.TrimSpace(turn.Query) == "" && len(turn.ToolCalls) == 0 {
			continue
		}
		if turn.Query != "" {
			history = append(history, schemas.TextContent(schemas.RoleUser, turn.Query))
		}

		callParts := make([]schemas.Part, 0, len(turn.ToolCalls))
		resultParts := make([]schemas.Part, 0, len(turn.ToolCalls))
		for _, call := range turn.ToolCalls {
			if call.Name == "" {
				continue
			}
			callParts = append(callParts, schemas.Part{
				FunctionCall: &schemas.FunctionCall{Name: call.Name, Args: call.Args},
			})
			resultParts = append(resultParts, schemas.ToolResultPart(call.Name, call.Result))
		}
		if len(callParts) > 0 {
			history = append(history,
				schemas.Content{Role: schemas.RoleModel, Parts: callParts},
				schemas.Content{Role: schemas.RoleUser, Parts: resultParts},
			)
		}

		if text := turn.Response; text != "" && !isToolEcho(text, turn.ToolCalls) {
			history = append(history, schemas.TextContent(schemas.RoleModel, text))
		}
	}
	return history
}

// isToolEcho reports whether text is the confirmation line for the turn's
// first tool call rather than a real answer.
func isToolEcho(text string, calls []schemas.ToolCall) bool {
	if len(calls) == 0 {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(text), "✅ `"+calls[0].Name+"`")
}
