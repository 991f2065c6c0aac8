// internal/llmclient/filesearch.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// -- File Search Store Administration --
//
// The retrieval index is a remote, workspace-scoped file search store the
// model consults automatically during chat. This file covers the admin
// surface: find-or-create a store, upload documents, and wait for the
// indexing operation to finish.

type fileSearchStore struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type listStoresResponse struct {
	FileSearchStores []fileSearchStore `json:"fileSearchStores"`
	NextPageToken    string            `json:"nextPageToken,omitempty"`
}

type operationStatus struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// EnsureStore returns the resource name of the store with the given display
// name, creating it when no store matches. Listing every store is slow with
// many stores; fine for a personal tool.
func (c *GeminiClient) EnsureStore(ctx context.Context, displayName string) (string, error) {
	pageToken := ""
	for {
		listURL := fmt.Sprintf("%s/fileSearchStores?pageSize=100", c.endpoint)
		if pageToken != "" {
			listURL += "&pageToken=" + url.QueryEscape(pageToken)
		}

		var page listStoresResponse
		if err := c.doJSON(ctx, http.MethodGet, listURL, nil, &page); err != nil {
			return "", fmt.Errorf("failed to list file search stores: %w", err)
		}
		for _, store := range page.FileSearchStores {
			if store.DisplayName == displayName {
				return store.Name, nil
			}
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	c.logger.Info("File search store not found, creating", zap.String("display_name", displayName))
	var created fileSearchStore
	body := map[string]string{"displayName": displayName}
	createURL := fmt.Sprintf("%s/fileSearchStores", c.endpoint)
	if err := c.doJSON(ctx, http.MethodPost, createURL, body, &created); err != nil {
		return "", fmt.Errorf("failed to create file search store: %w", err)
	}
	return created.Name, nil
}

// UploadFile pushes one document into a store and returns the name of the
// long-running indexing operation.
func (c *GeminiClient) UploadFile(ctx context.Context, storeName, filePath, displayName, mimeType string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := w.CreatePart(metaHeader)
	if err != nil {
		return "", err
	}
	meta := map[string]string{"displayName": displayName, "mimeType": mimeType}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return "", err
	}

	fileHeader := textproto.MIMEHeader{}
	fileHeader.Set("Content-Type", mimeType)
	filePart, err := w.CreatePart(fileHeader)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(filePart, f); err != nil {
		return "", fmt.Errorf("failed to buffer %s: %w", filePath, err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	// Media uploads go through the upload host prefix.
	uploadURL := strings.Replace(c.endpoint, "/v1beta", "/upload/v1beta", 1) +
		"/" + storeName + ":uploadToFileSearchStore"

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+w.Boundary())
	req.Header.Set("X-Goog-Upload-Protocol", "multipart")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload failed: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var op operationStatus
	if err := json.Unmarshal(respBody, &op); err != nil {
		return "", fmt.Errorf("failed to decode upload operation: %w", err)
	}
	return op.Name, nil
}

// WaitForOperation polls the named long-running operation until it reports
// done or the context is cancelled.
func (c *GeminiClient) WaitForOperation(ctx context.Context, operationName string) error {
	if operationName == "" {
		return nil
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var op operationStatus
		opURL := fmt.Sprintf("%s/%s", c.endpoint, operationName)
		if err := c.doJSON(ctx, http.MethodGet, opURL, nil, &op); err != nil {
			return fmt.Errorf("failed to poll operation %s: %w", operationName, err)
		}
		if op.Done {
			if op.Error != nil {
				return fmt.Errorf("indexing operation failed: %s", op.Error.Message)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// doJSON performs one JSON request/response round trip with rate limiting.
func (c *GeminiClient) doJSON(ctx context.Context, method, rawURL string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
