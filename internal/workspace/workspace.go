// Package workspace tracks the repository root a conversation session
// resolves relative paths against. Each session owns its own Context rather
// than sharing a process global, so concurrent sessions cannot interfere;
// within a session the set_workspace_path tool may still swap the root
// mid-conversation, and two tools in the same batch can observe different
// roots if one of them changes it.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrPathNotFound indicates a requested workspace path does not exist.
var ErrPathNotFound = errors.New("path does not exist")

// Context is the active workspace pointer for one session.
type Context struct {
	mu   sync.RWMutex
	root string
}

// New creates a Context. An empty root defaults to the current directory.
func New(root string) *Context {
	if root == "" {
		root = "."
	}
	return &Context{root: root}
}

// Root returns the active workspace root.
func (c *Context) Root() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.root
}

// Set replaces the active root. The path must exist.
func (c *Context) Set(path string) error {
	if path == "" {
		return fmt.Errorf("%w: no path provided", ErrPathNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %q", ErrPathNotFound, path)
	}
	c.mu.Lock()
	c.root = path
	c.mu.Unlock()
	return nil
}

// Resolve joins a relative path against the active root; absolute paths
// pass through untouched.
func (c *Context) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Root(), path)
}
