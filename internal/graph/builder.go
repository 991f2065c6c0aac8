package graph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"go.uber.org/zap"

	"aurora/api/schemas"
	"aurora/internal/scanner"
)

// ErrNoSourceFiles indicates the workspace contained nothing this builder's
// language pass understands.
var ErrNoSourceFiles = errors.New("no python source files found")

// sourceExtension is the one language this builder parses. Files in other
// languages are not graphed, though the retrieval index may still hold them.
const sourceExtension = ".py"

// ProgressKind classifies a progress line from a build pass.
type ProgressKind int

const (
	ProgressInfo ProgressKind = iota
	ProgressSkip
	ProgressError
)

// Progress is one human-readable line of build progress. The build streams
// these over a channel; the consumer renders them as they arrive.
type Progress struct {
	Kind    ProgressKind
	File    string
	Message string
}

// BuildResult carries the finished graph, or the error that stopped the
// build outright. Per-file parse errors never appear here; they surface as
// ProgressError lines and the build continues.
type BuildResult struct {
	Graph *schemas.Graph
	Err   error
}

// Builder parses a workspace's source files into one knowledge graph and
// writes it wholesale to the store.
type Builder struct {
	scanner      *scanner.Scanner
	store        *Store
	qualifiedIDs bool
	log          *zap.Logger
}

// NewBuilder wires a Builder. When qualifiedIDs is false (legacy behavior),
// duplicate node ids are dropped first-write-wins, including legitimate
// same-named functions in different files. When true, definition ids are
// qualified as file::scope::name.
func NewBuilder(sc *scanner.Scanner, store *Store, qualifiedIDs bool, logger *zap.Logger) *Builder {
	return &Builder{
		scanner:      sc,
		store:        store,
		qualifiedIDs: qualifiedIDs,
		log:          logger.Named("graph_builder"),
	}
}

// Build runs a full build pass for root. It returns immediately; progress
// lines stream on the first channel until it closes, then exactly one
// BuildResult arrives on the second. The caller must drain progress.
func (b *Builder) Build(ctx context.Context, root string) (<-chan Progress, <-chan BuildResult) {
	progress := make(chan Progress, 16)
	result := make(chan BuildResult, 1)

	go func() {
		defer close(progress)
		defer close(result)
		g, err := b.run(ctx, root, progress)
		result <- BuildResult{Graph: g, Err: err}
	}()

	return progress, result
}

func (b *Builder) run(ctx context.Context, root string, progress chan<- Progress) (*schemas.Graph, error) {
	emit := func(p Progress) bool {
		select {
		case progress <- p:
			return true
		case <-ctx.Done():
			return false
		}
	}

	emit(Progress{Kind: ProgressInfo, Message: fmt.Sprintf("Scanning directory for graph construction: %s", root)})

	files, err := b.scanner.Scan(ctx, root, []string{sourceExtension})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		emit(Progress{Kind: ProgressSkip, Message: "No Python (.py) files found to build graph."})
		return nil, ErrNoSourceFiles
	}

	emit(Progress{Kind: ProgressInfo, Message: fmt.Sprintf("Found %d Python files. Building knowledge graph...", len(files))})

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	merged := &schemas.Graph{}
	seenNodes := make(map[string]struct{})
	addNode := func(n schemas.Node) {
		// First write wins on id collisions; later same-named definitions
		// from any file are silently dropped in legacy mode.
		if _, dup := seenNodes[n.ID]; dup {
			return
		}
		seenNodes[n.ID] = struct{}{}
		merged.Nodes = append(merged.Nodes, n)
	}

	for _, path := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		fileName := filepath.Base(path)
		emit(Progress{Kind: ProgressInfo, File: fileName, Message: fmt.Sprintf("Analyzing `%s`...", fileName)})

		content, err := os.ReadFile(path)
		if err != nil {
			emit(Progress{Kind: ProgressError, File: fileName, Message: fmt.Sprintf("Error reading `%s`: %v", fileName, err)})
			continue
		}
		if len(strings.TrimSpace(string(content))) == 0 {
			emit(Progress{Kind: ProgressSkip, File: fileName, Message: fmt.Sprintf("Skipping empty file: `%s`", fileName)})
			continue
		}

		addNode(schemas.Node{ID: fileName, Type: schemas.NodeFile, File: fileName})

		tree, err := parser.ParseCtx(ctx, nil, content)
		if err != nil || tree == nil {
			// One bad file never aborts the whole build.
			emit(Progress{Kind: ProgressError, File: fileName, Message: fmt.Sprintf("Error analyzing `%s`: %v", fileName, err)})
			continue
		}

		ex := &extractor{
			fileName:  fileName,
			source:    content,
			qualified: b.qualifiedIDs,
			scopeID:   fileName,
		}
		ex.walk(tree.RootNode())
		tree.Close()

		for _, n := range ex.nodes {
			addNode(n)
		}
		merged.Edges = append(merged.Edges, ex.edges...)
	}

	merged.Edges = dedupeEdges(merged.Edges)

	if err := b.store.Save(root, merged); err != nil {
		emit(Progress{Kind: ProgressError, Message: fmt.Sprintf("Error saving knowledge graph: %v", err)})
		return nil, err
	}
	emit(Progress{Kind: ProgressInfo, Message: fmt.Sprintf("Knowledge graph built successfully and saved to `%s`.", b.store.PathFor(root))})

	return merged, nil
}

// dedupeEdges drops duplicate (source, target, type) triples, keeping the
// first occurrence so insertion order survives.
func dedupeEdges(edges []schemas.Edge) []schemas.Edge {
	seen := make(map[schemas.Edge]struct{}, len(edges))
	out := edges[:0]
	for _, e := range edges {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// extractor accumulates nodes and edges for a single file's syntax tree.
// The current lexical scope is the innermost enclosing function or class,
// or the file itself at module level; nesting is not encoded in node ids,
// only in edge attribution.
type extractor struct {
	fileName  string
	source    []byte
	qualified bool

	// scope is the bare name of the innermost enclosing definition;
	// scopeID is the node id edges attribute to.
	scope   string
	scopeID string

	nodes []schemas.Node
	edges []schemas.Edge
}

func (e *extractor) walk(node *sitter.Node) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "function_definition", "class_definition":
		e.handleDefinition(node, nil)
		return // handleDefinition recurses with the new scope

	case "decorated_definition":
		e.handleDecorated(node)
		return

	case "import_statement":
		e.handleImport(node)

	case "import_from_statement":
		if mod := node.ChildByFieldName("module_name"); mod != nil {
			// Relative imports keep only the module name; a bare "from ."
			// has no module to point at.
			if name := strings.TrimLeft(mod.Content(e.source), "."); name != "" {
				e.addImportEdge(name)
			}
		}
		return // inner names are not modules

	case "call":
		// Direct name calls only; attribute access and computed calls are a
		// documented limitation of the model.
		if fn := node.ChildByFieldName("function"); fn != nil && fn.Type() == "identifier" {
			e.edges = append(e.edges, schemas.Edge{
				Source: e.scopeID,
				Target: fn.Content(e.source),
				Type:   schemas.EdgeCalls,
			})
		}
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		e.walk(node.NamedChild(i))
	}
}

// handleDecorated peels a decorated_definition apart so the decorator
// expressions are walked inside the wrapped definition's scope. A decorator
// call on `def f` is a call made by f, not by the enclosing file.
func (e *extractor) handleDecorated(node *sitter.Node) {
	def := node.ChildByFieldName("definition")
	if def == nil {
		return
	}

	var decorators []*sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == "decorator" {
			decorators = append(decorators, child)
		}
	}

	switch def.Type() {
	case "function_definition", "class_definition":
		e.handleDefinition(def, decorators)
	default:
		for _, d := range decorators {
			e.walk(d)
		}
		e.walk(def)
	}
}

func (e *extractor) handleDefinition(node *sitter.Node, decorators []*sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(e.source)

	nodeType := schemas.NodeFunction
	if node.Type() == "class_definition" {
		nodeType = schemas.NodeClass
	}

	id := e.makeID(name)
	e.nodes = append(e.nodes, schemas.Node{ID: id, Type: nodeType, File: e.fileName})

	prevScope, prevScopeID := e.scope, e.scopeID
	e.scope, e.scopeID = name, id
	for _, d := range decorators {
		e.walk(d)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		e.walk(node.NamedChild(i))
	}
	e.scope, e.scopeID = prevScope, prevScopeID
}

func (e *extractor) handleImport(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			e.addImportEdge(child.Content(e.source))
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				e.addImportEdge(name.Content(e.source))
			}
		}
	}
}

func (e *extractor) addImportEdge(module string) {
	e.edges = append(e.edges, schemas.Edge{
		Source: e.fileName,
		Target: module,
		Type:   schemas.EdgeImports,
	})
}

// makeID returns the node id for a definition: the bare name in legacy mode,
// or file::scope::name when qualified ids are enabled.
func (e *extractor) makeID(name string) string {
	if !e.qualified {
		return name
	}
	if e.scope == "" {
		return e.fileName + "::" + name
	}
	return e.fileName + "::" + e.scope + "::" + name
}
