// Package repos maintains the registry of known repository workspaces, a
// small JSON document alongside the graph data.
package repos

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const registryFile = "repositories.json"

// Registry is the on-disk list of workspace roots the user has worked with.
type Registry struct {
	path string
}

// NewRegistry locates the registry inside dataDir.
func NewRegistry(dataDir string) *Registry {
	return &Registry{path: filepath.Join(dataDir, registryFile)}
}

// List returns the registered workspace roots. A missing registry is an
// empty list, not an error.
func (r *Registry) List() ([]string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read repository registry: %w", err)
	}

	var paths []string
	if err := json.Unmarshal(data, &paths); err != nil {
		return nil, fmt.Errorf("failed to decode repository registry: %w", err)
	}
	return paths, nil
}

// Add registers a workspace root, deduplicating on the absolute path.
func (r *Registry) Add(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	paths, err := r.List()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if p == abs {
			return nil
		}
	}
	paths = append(paths, abs)

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	encoded, err := json.MarshalIndent(paths, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.path, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write repository registry: %w", err)
	}
	return nil
}

// Remove unregisters a workspace root. Removing an unknown root is a no-op.
func (r *Registry) Remove(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	paths, err := r.List()
	if err != nil {
		return err
	}
	kept := paths[:0]
	for _, p := range paths {
		if p != abs {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(paths) {
		return nil
	}

	encoded, err := json.MarshalIndent(kept, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.path, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write repository registry: %w", err)
	}
	return nil
}
