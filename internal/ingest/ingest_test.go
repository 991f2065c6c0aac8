package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aurora/internal/config"
	"aurora/internal/scanner"
)

// fakeAdmin records the upload traffic it receives.
type fakeAdmin struct {
	storeName   string
	ensureErr   error
	uploads     []fakeUpload
	failFor     map[string]error
	waitedOps   []string
	ensureCalls []string
}

type fakeUpload struct {
	store, path, display, mime string
}

func (f *fakeAdmin) EnsureStore(ctx context.Context, displayName string) (string, error) {
	f.ensureCalls = append(f.ensureCalls, displayName)
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	return f.storeName, nil
}

func (f *fakeAdmin) UploadFile(ctx context.Context, storeName, filePath, displayName, mimeType string) (string, error) {
	if err, ok := f.failFor[displayName]; ok {
		return "", err
	}
	f.uploads = append(f.uploads, fakeUpload{storeName, filePath, displayName, mimeType})
	return "operations/" + displayName, nil
}

func (f *fakeAdmin) WaitForOperation(ctx context.Context, operationName string) error {
	f.waitedOps = append(f.waitedOps, operationName)
	return nil
}

func newTestUploader(admin *fakeAdmin, exts []string, mimes map[string]string) *Uploader {
	logger := zap.NewNop()
	sc := scanner.New(config.IngestionConfig{}, logger)
	return NewUploader(admin, sc,
		config.GeminiConfig{StorePrefix: "Aurora Store"},
		config.IngestionConfig{AllowedExtensions: exts, MimeTypeMap: mimes},
		logger)
}

func writeFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
	}
	return dir
}

func drain(t *testing.T, progress <-chan Progress, done <-chan Result) ([]Progress, Result) {
	t.Helper()
	var events []Progress
	for p := range progress {
		events = append(events, p)
	}
	return events, <-done
}

func TestRunUploadsEveryAllowedFile(t *testing.T) {
	root := writeFiles(t, "a.py", "sub/b.py", "notes.md")
	admin := &fakeAdmin{storeName: "fileSearchStores/s1"}
	u := newTestUploader(admin, []string{".py"}, map[string]string{".py": "text/x-python"})

	progress, done := u.Run(context.Background(), root)
	_, res := drain(t, progress, done)

	require.NoError(t, res.Err)
	assert.Equal(t, "fileSearchStores/s1", res.StoreName)
	assert.Equal(t, 2, res.Uploaded)
	assert.Zero(t, res.Failed)

	require.Len(t, admin.uploads, 2)
	assert.Equal(t, "a.py", admin.uploads[0].display)
	assert.Equal(t, filepath.Join("sub", "b.py"), admin.uploads[1].display)
	assert.Equal(t, "text/x-python", admin.uploads[0].mime)
	assert.Len(t, admin.waitedOps, 2)
}

func TestRunDerivesStoreNameFromWorkspaceBasename(t *testing.T) {
	u := newTestUploader(&fakeAdmin{}, nil, nil)
	assert.Equal(t, "Aurora Store - myrepo", u.StoreDisplayName("/home/dev/myrepo"))
	assert.Equal(t, "Aurora Store - myrepo", u.StoreDisplayName("/home/dev/myrepo/"))
}

func TestRunUnknownExtensionDefaultsToTextPlain(t *testing.T) {
	root := writeFiles(t, "config.toml")
	admin := &fakeAdmin{storeName: "s"}
	u := newTestUploader(admin, nil, map[string]string{".py": "text/x-python"})

	progress, done := u.Run(context.Background(), root)
	_, res := drain(t, progress, done)
	require.NoError(t, res.Err)
	require.Len(t, admin.uploads, 1)
	assert.Equal(t, "text/plain", admin.uploads[0].mime)
}

func TestRunPerFileFailuresAreNonFatal(t *testing.T) {
	root := writeFiles(t, "good.py", "bad.py")
	admin := &fakeAdmin{
		storeName: "s",
		failFor:   map[string]error{"bad.py": errors.New("too large")},
	}
	u := newTestUploader(admin, []string{".py"}, nil)

	progress, done := u.Run(context.Background(), root)
	events, res := drain(t, progress, done)

	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 1, res.Failed)

	sawError := false
	for _, p := range events {
		if p.Kind == ProgressError && p.File == "bad.py" {
			sawError = true
			assert.Contains(t, p.Message, "too large")
		}
	}
	assert.True(t, sawError)
}

func TestRunStoreCreationFailureAborts(t *testing.T) {
	root := writeFiles(t, "a.py")
	admin := &fakeAdmin{ensureErr: errors.New("permission denied")}
	u := newTestUploader(admin, []string{".py"}, nil)

	progress, done := u.Run(context.Background(), root)
	_, res := drain(t, progress, done)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "permission denied")
	assert.Empty(t, admin.uploads)
}

func TestRunScanFailureAborts(t *testing.T) {
	admin := &fakeAdmin{storeName: "s"}
	u := newTestUploader(admin, nil, nil)

	progress, done := u.Run(context.Background(), "/no/such/workspace")
	_, res := drain(t, progress, done)
	require.Error(t, res.Err)
	assert.Empty(t, admin.uploads)
}
