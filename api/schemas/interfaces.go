package schemas

import (
	"context"
)

// -- Centralized Core Service Interfaces --

// ChatModel is the remote model capability. The only contract is the turn
// format (Contents with paired functionCall/functionResponse parts) and a
// recognizable rate-limit error signal from the implementation.
type ChatModel interface {
	// SendTurn submits the full turn history and returns the decoded response.
	SendTurn(ctx context.Context, history []Content) (*ModelResponse, error)
}

// GraphReader loads the persisted knowledge graph for a workspace root.
type GraphReader interface {
	// Load returns the graph for root, or an error when none has been built.
	Load(root string) (*Graph, error)
}

// TranscriptStore is the persisted conversation log.
type TranscriptStore interface {
	// Append writes one completed turn.
	Append(ctx context.Context, turn ConversationTurn) error
	// Load returns all turns of a conversation in timestamp order.
	Load(ctx context.Context, conversationID string) ([]ConversationTurn, error)
	// Conversations lists stored conversations, newest first, optionally
	// filtered by repository path.
	Conversations(ctx context.Context, repoPath string) ([]ConversationSummary, error)
	// Delete removes every turn of a conversation.
	Delete(ctx context.Context, conversationID string) error
}

// FileSearchAdmin manages the remote document-retrieval index the model
// consults automatically. The core only creates stores, uploads documents,
// and passes the store identifier into the chat tool configuration.
type FileSearchAdmin interface {
	// EnsureStore returns the resource name of the store with the given
	// display name, creating it when absent.
	EnsureStore(ctx context.Context, displayName string) (string, error)
	// UploadFile uploads one document into a store and returns the name of
	// the long-running indexing operation.
	UploadFile(ctx context.Context, storeName, filePath, displayName, mimeType string) (string, error)
	// WaitForOperation blocks until the named operation completes.
	WaitForOperation(ctx context.Context, operationName string) error
}
