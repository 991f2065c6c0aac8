// Package graph builds, persists, and queries the static code knowledge
// graph for a workspace.
package graph

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"aurora/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrGraphNotFound indicates no graph has been built for a workspace yet.
var ErrGraphNotFound = errors.New("knowledge graph not found")

// Store persists one JSON graph document per workspace, addressed by an
// md5 hash of the absolute workspace path so repeated runs agree across
// process restarts. Whole-file read/replace, no locking: concurrent builders
// targeting the same workspace race and the last writer wins, acceptable
// under the single-user assumption.
type Store struct {
	dataDir string
	log     *zap.Logger
}

// NewStore creates a Store rooted at dataDir.
func NewStore(dataDir string, logger *zap.Logger) *Store {
	return &Store{dataDir: dataDir, log: logger.Named("graph_store")}
}

// PathFor returns the deterministic file location for a workspace's graph.
func (s *Store) PathFor(workspaceRoot string) string {
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		abs = workspaceRoot
	}
	sum := md5.Sum([]byte(abs))
	return filepath.Join(s.dataDir, fmt.Sprintf("graph_%s.json", hex.EncodeToString(sum[:])))
}

// Save writes the graph wholesale, fully replacing any prior document for
// that workspace.
func (s *Store) Save(workspaceRoot string, g *schemas.Graph) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create graph data dir: %w", err)
	}

	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}

	path := s.PathFor(workspaceRoot)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write graph file: %w", err)
	}

	s.log.Info("Knowledge graph saved",
		zap.String("workspace", workspaceRoot),
		zap.String("path", path),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
	)
	return nil
}

// Load reads the graph for a workspace, or ErrGraphNotFound when no build
// has run for that path.
func (s *Store) Load(workspaceRoot string) (*schemas.Graph, error) {
	path := s.PathFor(workspaceRoot)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w for %q", ErrGraphNotFound, workspaceRoot)
		}
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}

	var g schemas.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode graph file %s: %w", path, err)
	}
	return &g, nil
}

// Ensure Store satisfies the reader interface used by the tool registry.
var _ schemas.GraphReader = (*Store)(nil)
