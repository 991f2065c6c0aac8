// Package scanner walks a workspace tree applying the externally configured
// ignore rules and yields candidate file paths in a stable order.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"

	"aurora/internal/config"
)

// ErrInvalidPath indicates the requested root does not exist or is not a
// directory.
var ErrInvalidPath = errors.New("invalid workspace path")

// Scanner walks directory trees. Ignored directory names are pruned before
// descent, so excluded trees (dependency caches and the like) are never
// opened.
type Scanner struct {
	ignoredDirs  map[string]struct{}
	ignoredFiles map[string]struct{}
	useGitignore bool
	log          *zap.Logger
}

// New builds a Scanner from the ingestion config.
func New(cfg config.IngestionConfig, logger *zap.Logger) *Scanner {
	s := &Scanner{
		ignoredDirs:  make(map[string]struct{}, len(cfg.IgnoredDirectories)),
		ignoredFiles: make(map[string]struct{}, len(cfg.IgnoredFiles)),
		useGitignore: cfg.UseGitignore,
		log:          logger.Named("scanner"),
	}
	for _, d := range cfg.IgnoredDirectories {
		s.ignoredDirs[d] = struct{}{}
	}
	for _, f := range cfg.IgnoredFiles {
		s.ignoredFiles[f] = struct{}{}
	}
	return s
}

// Scan returns every candidate file under root, filtered by the ignore rules
// and, when non-empty, the extension allow-list. filepath.WalkDir visits
// entries in lexical order, so output order is deterministic for the same
// tree.
func (s *Scanner) Scan(ctx context.Context, root string, allowedExts []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, root)
	}

	var matcher *gitignore.GitIgnore
	if s.useGitignore {
		if m, err := gitignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
			matcher = m
		}
	}

	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are logged and skipped, never fatal.
			s.log.Warn("Skipping unreadable entry", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if _, ignored := s.ignoredDirs[name]; ignored {
				return filepath.SkipDir
			}
			if matcher != nil {
				if rel, relErr := filepath.Rel(root, path); relErr == nil && matcher.MatchesPath(rel+"/") {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}
		if _, ignored := s.ignoredFiles[name]; ignored {
			return nil
		}
		if len(allowedExts) > 0 && !hasAllowedExt(name, allowedExts) {
			return nil
		}
		if matcher != nil {
			if rel, relErr := filepath.Rel(root, path); relErr == nil && matcher.MatchesPath(rel) {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	s.log.Debug("Scan complete", zap.String("root", root), zap.Int("files", len(files)))
	return files, nil
}

func hasAllowedExt(name string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
