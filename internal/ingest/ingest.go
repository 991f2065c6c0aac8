// Package ingest pushes workspace documents into the remote file search
// store so the model can ground its answers in them. One store per
// workspace, named by the workspace basename.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"aurora/api/schemas"
	"aurora/internal/config"
	"aurora/internal/scanner"
)

const defaultMimeType = "text/plain"

// ProgressKind classifies one upload progress notice.
type ProgressKind int

const (
	ProgressInfo ProgressKind = iota
	ProgressUploaded
	ProgressError
)

// Progress is one unit of upload pipeline feedback.
type Progress struct {
	Kind    ProgressKind
	File    string
	Message string
}

// Result summarizes a finished upload run.
type Result struct {
	StoreName string
	Uploaded  int
	Failed    int
	Err       error
}

// Uploader drives the scan-upload-index pipeline.
type Uploader struct {
	admin       schemas.FileSearchAdmin
	scanner     *scanner.Scanner
	storePrefix string
	allowedExts []string
	mimeTypes   map[string]string
	log         *zap.Logger
}

// NewUploader wires the pipeline from configuration.
func NewUploader(admin schemas.FileSearchAdmin, sc *scanner.Scanner, gemini config.GeminiConfig, ingestion config.IngestionConfig, logger *zap.Logger) *Uploader {
	prefix := gemini.StorePrefix
	if prefix == "" {
		prefix = "Aurora Store"
	}
	return &Uploader{
		admin:       admin,
		scanner:     sc,
		storePrefix: prefix,
		allowedExts: ingestion.AllowedExtensions,
		mimeTypes:   ingestion.MimeTypeMap,
		log:         logger.Named("ingest"),
	}
}

// StoreDisplayName derives the retrieval store's display name for a
// workspace root.
func (u *Uploader) StoreDisplayName(root string) string {
	base := filepath.Base(strings.TrimRight(root, string(filepath.Separator)))
	if base == "." || base == "" {
		if abs, err := filepath.Abs(root); err == nil {
			base = filepath.Base(abs)
		}
	}
	return fmt.Sprintf("%s - %s", u.storePrefix, base)
}

// Run scans root and uploads every allowed file into the workspace's store,
// waiting for each indexing operation. Progress streams on the returned
// channel; the Result channel delivers exactly one value after the progress
// channel closes. Per-file failures are reported and skipped; only scan or
// store-creation failures abort the run.
func (u *Uploader) Run(ctx context.Context, root string) (<-chan Progress, <-chan Result) {
	progress := make(chan Progress, 16)
	done := make(chan Result, 1)

	go func() {
		defer close(done)
		defer close(progress)
		done <- u.run(ctx, root, progress)
	}()
	return progress, done
}

func (u *Uploader) run(ctx context.Context, root string, progress chan<- Progress) Result {
	displayName := u.StoreDisplayName(root)
	progress <- Progress{Kind: ProgressInfo, Message: fmt.Sprintf("Preparing store %q", displayName)}

	storeName, err := u.admin.EnsureStore(ctx, displayName)
	if err != nil {
		return Result{Err: fmt.Errorf("failed to prepare file search store: %w", err)}
	}

	files, err := u.scanner.Scan(ctx, root, u.allowedExts)
	if err != nil {
		return Result{StoreName: storeName, Err: fmt.Errorf("failed to scan %s: %w", root, err)}
	}
	progress <- Progress{Kind: ProgressInfo, Message: fmt.Sprintf("Uploading %d files", len(files))}

	res := Result{StoreName: storeName}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		rel, relErr := filepath.Rel(root, file)
		if relErr != nil {
			rel = filepath.Base(file)
		}

		opName, err := u.admin.UploadFile(ctx, storeName, file, rel, u.mimeFor(file))
		if err == nil {
			err = u.admin.WaitForOperation(ctx, opName)
		}
		if err != nil {
			res.Failed++
			u.log.Warn("Upload failed", zap.String("file", file), zap.Error(err))
			progress <- Progress{Kind: ProgressError, File: rel, Message: err.Error()}
			continue
		}

		res.Uploaded++
		progress <- Progress{Kind: ProgressUploaded, File: rel}
	}
	return res
}

func (u *Uploader) mimeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := u.mimeTypes[ext]; ok {
		return mt
	}
	return defaultMimeType
}
