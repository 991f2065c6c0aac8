package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aurora/api/schemas"
	"aurora/internal/config"
	"aurora/internal/graph"
	"aurora/internal/scanner"
	"aurora/internal/workspace"
)

type fakeGraphReader struct {
	graph *schemas.Graph
	err   error
}

func (f *fakeGraphReader) Load(root string) (*schemas.Graph, error) {
	return f.graph, f.err
}

func newTestRegistry(t *testing.T, graphs schemas.GraphReader, listLimit int) *Registry {
	t.Helper()
	sc := scanner.New(config.IngestionConfig{}, zap.NewNop())
	return NewRegistry(sc, graphs, listLimit, zap.NewNop())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindListFiles, KindOf(NameListFiles))
	assert.Equal(t, KindReadFile, KindOf(NameReadFile))
	assert.Equal(t, KindSearchGraph, KindOf(NameSearchGraph))
	assert.Equal(t, KindSetWorkspace, KindOf(NameSetWorkspace))
	assert.Equal(t, KindUnknown, KindOf("made_up_tool"))
}

func TestExecuteUnknownTool(t *testing.T) {
	r := newTestRegistry(t, &fakeGraphReader{}, 0)
	ws := workspace.New(".")

	result, err := r.Execute(context.Background(), ws, "made_up_tool", nil)
	assert.Error(t, err)
	assert.Equal(t, "Error: Function made_up_tool is not available.", result)
}

func TestSetWorkspacePath(t *testing.T) {
	r := newTestRegistry(t, &fakeGraphReader{}, 0)
	ws := workspace.New(".")
	dir := t.TempDir()

	result, err := r.Execute(context.Background(), ws, NameSetWorkspace,
		map[string]any{"path": dir})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("Workspace path set to: %s", dir), result)
	assert.Equal(t, dir, ws.Root())

	result, err = r.Execute(context.Background(), ws, NameSetWorkspace,
		map[string]any{"path": "/missing/path"})
	assert.Error(t, err)
	assert.Equal(t, "Error: Path '/missing/path' does not exist.", result)
	assert.Equal(t, dir, ws.Root())
}

func TestListFilesReturnsJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.py"), []byte("x"), 0o644))

	r := newTestRegistry(t, &fakeGraphReader{}, 0)
	ws := workspace.New(dir)

	result, err := r.Execute(context.Background(), ws, NameListFiles, nil)
	require.NoError(t, err)

	var files []string
	require.NoError(t, json.Unmarshal([]byte(result), &files))
	assert.Len(t, files, 2)
}

func TestListFilesTruncation(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("file_with_a_rather_long_name_%02d.py", i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	r := newTestRegistry(t, &fakeGraphReader{}, 100)
	ws := workspace.New(dir)

	result, err := r.Execute(context.Background(), ws, NameListFiles, nil)
	assert.Error(t, err)
	assert.Contains(t, result, "too long")
	assert.Contains(t, result, "Found 20 files")
	assert.Contains(t, result, "specific subdirectory")
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "code.py"), []byte("def f():\n    pass\n"), 0o644))

	r := newTestRegistry(t, &fakeGraphReader{}, 0)
	ws := workspace.New(dir)

	result, err := r.Execute(context.Background(), ws, NameReadFile,
		map[string]any{"file_path": "code.py"})
	require.NoError(t, err)
	assert.Equal(t, "def f():\n    pass\n", result)
}

func TestReadFileMissing(t *testing.T) {
	r := newTestRegistry(t, &fakeGraphReader{}, 0)
	ws := workspace.New(t.TempDir())

	result, err := r.Execute(context.Background(), ws, NameReadFile,
		map[string]any{"file_path": "nope.py"})
	assert.Error(t, err)
	assert.True(t, strings.HasPrefix(result, "Error: File '"))
	assert.Contains(t, result, "does not exist")
}

func TestReadFileInvalidUTF8IsReplaced(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin.py"), []byte{0x64, 0xff, 0xfe, 0x65}, 0o644))

	r := newTestRegistry(t, &fakeGraphReader{}, 0)
	ws := workspace.New(dir)

	result, err := r.Execute(context.Background(), ws, NameReadFile,
		map[string]any{"file_path": "bin.py"})
	require.NoError(t, err)
	assert.Contains(t, result, "�")
	assert.Contains(t, result, "d")
}

func TestSearchKnowledgeGraph(t *testing.T) {
	g := &schemas.Graph{
		Nodes: []schemas.Node{{ID: "login", Type: schemas.NodeFunction, File: "auth.py"}},
	}
	r := newTestRegistry(t, &fakeGraphReader{graph: g}, 0)
	ws := workspace.New(".")

	result, err := r.Execute(context.Background(), ws, NameSearchGraph,
		map[string]any{"query": "login"})
	require.NoError(t, err)

	var sub schemas.Graph
	require.NoError(t, json.Unmarshal([]byte(result), &sub))
	require.Len(t, sub.Nodes, 1)
	assert.Equal(t, "login", sub.Nodes[0].ID)
}

func TestSearchKnowledgeGraphMissingGraph(t *testing.T) {
	r := newTestRegistry(t, &fakeGraphReader{err: graph.ErrGraphNotFound}, 0)
	ws := workspace.New("/repo")

	result, err := r.Execute(context.Background(), ws, NameSearchGraph,
		map[string]any{"query": "x"})
	assert.Error(t, err)
	assert.Contains(t, result, "Knowledge graph not found")
	assert.Contains(t, result, "aurora ingest")
}

func TestDeclarationsCoverEveryKind(t *testing.T) {
	decls := Declarations()
	require.Len(t, decls, 4)
	for _, d := range decls {
		assert.NotEqual(t, KindUnknown, KindOf(d.Name), "declaration %s has no kind", d.Name)
		assert.NotEmpty(t, d.Description)
	}
}
