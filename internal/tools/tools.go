// Package tools exposes the local capabilities the remote model may invoke:
// listing files, reading files, querying the knowledge graph, and switching
// the active workspace.
package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"aurora/api/schemas"
	"aurora/internal/graph"
	"aurora/internal/scanner"
	"aurora/internal/workspace"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind is the closed set of tool identities. Dispatch runs on this enum, not
// on raw name strings, so a new tool has to be added here and in the lookup
// table to exist at all.
type Kind int

const (
	KindUnknown Kind = iota
	KindSetWorkspace
	KindListFiles
	KindReadFile
	KindSearchGraph
)

// Wire names, as declared to the model.
const (
	NameSetWorkspace = "set_workspace_path"
	NameListFiles    = "list_files"
	NameReadFile     = "read_file"
	NameSearchGraph  = "search_knowledge_graph"
)

var kindByName = map[string]Kind{
	NameSetWorkspace: KindSetWorkspace,
	NameListFiles:    KindListFiles,
	NameReadFile:     KindReadFile,
	NameSearchGraph:  KindSearchGraph,
}

// KindOf resolves a wire name to its Kind, KindUnknown for anything else.
func KindOf(name string) Kind {
	return kindByName[name]
}

// DefaultListLimit caps the JSON-encoded size of a list_files result. The
// model is expected to narrow its request when it sees the truncation
// message.
const DefaultListLimit = 50000

// Registry dispatches model-requested tool calls. Every execution produces a
// string result; internal failures become descriptive strings rather than
// errors, so a broken tool never aborts the conversation turn.
type Registry struct {
	scanner   *scanner.Scanner
	graphs    schemas.GraphReader
	listLimit int
	log       *zap.Logger
}

// NewRegistry wires the registry. A listLimit of 0 uses DefaultListLimit.
func NewRegistry(sc *scanner.Scanner, graphs schemas.GraphReader, listLimit int, logger *zap.Logger) *Registry {
	if listLimit <= 0 {
		listLimit = DefaultListLimit
	}
	return &Registry{
		scanner:   sc,
		graphs:    graphs,
		listLimit: listLimit,
		log:       logger.Named("tools"),
	}
}

// Execute runs one tool call against the session workspace. The returned
// string is always the result handed back to the model; err is non-nil only
// so the caller can classify the outcome for progress reporting, never to
// abort the turn.
func (r *Registry) Execute(ctx context.Context, ws *workspace.Context, name string, args map[string]any) (string, error) {
	switch KindOf(name) {
	case KindSetWorkspace:
		return r.setWorkspace(ws, stringArg(args, "path"))
	case KindListFiles:
		return r.listFiles(ctx, ws, stringArg(args, "directory_path"))
	case KindReadFile:
		return r.readFile(ws, stringArg(args, "file_path"))
	case KindSearchGraph:
		return r.searchGraph(ws, stringArg(args, "query"), stringArg(args, "repo_path"))
	default:
		err := fmt.Errorf("unknown tool %q", name)
		return fmt.Sprintf("Error: Function %s is not available.", name), err
	}
}

func (r *Registry) setWorkspace(ws *workspace.Context, path string) (string, error) {
	if path == "" {
		return "Error: No path provided.", workspace.ErrPathNotFound
	}
	if err := ws.Set(path); err != nil {
		return fmt.Sprintf("Error: Path '%s' does not exist.", path), err
	}
	r.log.Info("Workspace switched", zap.String("path", path))
	return fmt.Sprintf("Workspace path set to: %s", path), nil
}

func (r *Registry) listFiles(ctx context.Context, ws *workspace.Context, dir string) (string, error) {
	if dir == "" {
		dir = ws.Root()
	}

	files, err := r.scanner.Scan(ctx, dir, nil)
	if err != nil {
		return fmt.Sprintf("Error listing files: %v", err), err
	}

	encoded, err := json.Marshal(files)
	if err != nil {
		return fmt.Sprintf("Error listing files: %v", err), err
	}
	if len(encoded) > r.listLimit {
		msg := fmt.Sprintf(
			"Error: File list is too long (%d chars). Truncated. Found %d files. Please list a specific subdirectory.",
			len(encoded), len(files))
		return msg, fmt.Errorf("file list exceeds %d chars", r.listLimit)
	}
	return string(encoded), nil
}

func (r *Registry) readFile(ws *workspace.Context, path string) (string, error) {
	if path == "" {
		return "Error: No file path provided.", fmt.Errorf("missing file_path")
	}
	full := ws.Resolve(path)

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: File '%s' does not exist.", full), err
		}
		return fmt.Sprintf("Error reading file: %v", err), err
	}
	// Best-effort decoding: invalid byte sequences are replaced, never fatal.
	return strings.ToValidUTF8(string(data), "�"), nil
}

func (r *Registry) searchGraph(ws *workspace.Context, query, repoPath string) (string, error) {
	if repoPath == "" {
		repoPath = ws.Root()
	}

	g, err := r.graphs.Load(repoPath)
	if err != nil {
		msg := fmt.Sprintf("Error: Knowledge graph not found for '%s'. Please build it first with `aurora ingest`.", repoPath)
		return msg, err
	}

	results := graph.Search(g, query)
	encoded, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error searching knowledge graph: %v", err), err
	}
	return string(encoded), nil
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
