// internal/llmclient/gemini_client.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"aurora/api/schemas"
	"aurora/internal/config"
)

// ErrRateLimited signals quota exhaustion (HTTP 429 / RESOURCE_EXHAUSTED)
// after all retry attempts were spent. Fatal for the turn, recoverable by
// the user retrying later.
var ErrRateLimited = errors.New("gemini rate limit exceeded")

// GeminiClient implements the schemas.ChatModel and schemas.FileSearchAdmin
// interfaces against the Gemini v1beta REST API.
type GeminiClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	systemPrompt  string
	declarations  []schemas.FunctionDeclaration
	storeNames    []string
	maxAttempts   int
	retryBaseWait time.Duration
	pollInterval  time.Duration
}

var (
	_ schemas.ChatModel       = (*GeminiClient)(nil)
	_ schemas.FileSearchAdmin = (*GeminiClient)(nil)
)

// NewGeminiClient initializes the client.
func NewGeminiClient(cfg config.GeminiConfig, chat config.ChatConfig, poll time.Duration, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set GEMINI_API_KEY)")
	}

	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	maxAttempts := chat.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseWait := chat.RetryBaseWait
	if baseWait <= 0 {
		baseWait = 10 * time.Second
	}
	if poll <= 0 {
		poll = 4 * time.Second
	}

	return &GeminiClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		model:    cfg.ChatModel,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		limiter:       rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		logger:        logger.Named("llm_client.gemini"),
		systemPrompt:  cfg.SystemPrompt,
		maxAttempts:   maxAttempts,
		retryBaseWait: baseWait,
		pollInterval:  poll,
	}, nil
}

// SetTools declares the local capabilities the model may invoke.
func (c *GeminiClient) SetTools(decls []schemas.FunctionDeclaration) {
	c.declarations = decls
}

// SetFileSearchStores names the retrieval indexes the model consults
// automatically.
func (c *GeminiClient) SetFileSearchStores(names []string) {
	c.storeNames = names
}

// -- Gemini API Request/Response Structures (Internal to this file) --

type geminiFileSearch struct {
	FileSearchStoreNames []string `json:"fileSearchStoreNames"`
}

type geminiTool struct {
	FunctionDeclarations []schemas.FunctionDeclaration `json:"functionDeclarations,omitempty"`
	FileSearch           *geminiFileSearch             `json:"fileSearch,omitempty"`
}

type geminiSystemInstruction struct {
	Parts []schemas.Part `json:"parts"`
}

type generateContentRequest struct {
	Contents          []schemas.Content        `json:"contents"`
	Tools             []geminiTool             `json:"tools,omitempty"`
	SystemInstruction *geminiSystemInstruction `json:"systemInstruction,omitempty"`
}

type retrievedContext struct {
	Title string `json:"title"`
}

type groundingChunk struct {
	RetrievedContext *retrievedContext `json:"retrievedContext,omitempty"`
}

type groundingMetadata struct {
	GroundingChunks []groundingChunk `json:"groundingChunks,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content           schemas.Content    `json:"content"`
		FinishReason      string             `json:"finishReason"`
		GroundingMetadata *groundingMetadata `json:"groundingMetadata,omitempty"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// SendTurn submits the full turn history and decodes the model's reply.
// Rate-limit signals are retried with fixed 10s/20s/30s waits up to the
// configured attempt budget; any other failure propagates immediately.
func (c *GeminiClient) SendTurn(ctx context.Context, history []schemas.Content) (*schemas.ModelResponse, error) {
	payload := generateContentRequest{Contents: history}
	if len(c.declarations) > 0 || len(c.storeNames) > 0 {
		tool := geminiTool{FunctionDeclarations: c.declarations}
		if len(c.storeNames) > 0 {
			tool.FileSearch = &geminiFileSearch{FileSearchStoreNames: c.storeNames}
		}
		payload.Tools = []geminiTool{tool}
	}
	if c.systemPrompt != "" {
		payload.SystemInstruction = &geminiSystemInstruction{
			Parts: []schemas.Part{{Text: c.systemPrompt}},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)

	var response *schemas.ModelResponse
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", c.apiKey)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to execute HTTP request: %w", err))
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to read response body: %w", err))
		}

		if resp.StatusCode != http.StatusOK {
			if isRateLimit(resp.StatusCode, respBody) {
				c.logger.Warn("Rate limit hit (429), will retry",
					zap.Int("status", resp.StatusCode))
				return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
			}
			c.logger.Error("Gemini API returned error status",
				zap.Int("status", resp.StatusCode), zap.String("response", string(respBody)))
			return backoff.Permanent(fmt.Errorf("gemini API error: status %d, body: %s", resp.StatusCode, string(respBody)))
		}

		decoded, err := decodeResponse(respBody)
		if err != nil {
			return backoff.Permanent(err)
		}

		var usage generateContentResponse
		_ = json.Unmarshal(respBody, &usage)
		c.logger.Info("LLM turn complete",
			zap.Duration("duration", time.Since(startTime)),
			zap.Int("prompt_tokens", usage.UsageMetadata.PromptTokenCount),
			zap.Int("completion_tokens", usage.UsageMetadata.CandidatesTokenCount),
			zap.Int("tool_calls", len(decoded.FunctionCalls)),
		)

		response = decoded
		return nil
	}

	bo := &stepBackOff{base: c.retryBaseWait, maxAttempts: c.maxAttempts}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return response, nil
}

// isRateLimit recognizes the quota exhaustion signal.
func isRateLimit(status int, body []byte) bool {
	return status == http.StatusTooManyRequests || bytes.Contains(body, []byte("RESOURCE_EXHAUSTED"))
}

// decodeResponse flattens the first candidate into a ModelResponse.
func decodeResponse(body []byte) (*schemas.ModelResponse, error) {
	var payload generateContentResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode response payload: %w", err)
	}
	if len(payload.Candidates) == 0 {
		return nil, fmt.Errorf("gemini API returned no candidates")
	}

	candidate := payload.Candidates[0]
	result := &schemas.ModelResponse{}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			result.FunctionCalls = append(result.FunctionCalls, *part.FunctionCall)
		}
	}
	result.Text = text.String()

	if gm := candidate.GroundingMetadata; gm != nil {
		for _, chunk := range gm.GroundingChunks {
			if chunk.RetrievedContext != nil && chunk.RetrievedContext.Title != "" {
				result.CitationTitles = append(result.CitationTitles, chunk.RetrievedContext.Title)
			}
		}
	}

	if result.Text == "" && len(result.FunctionCalls) == 0 {
		if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "BLOCKLIST" {
			return nil, fmt.Errorf("gemini API blocked the request (Reason: %s)", candidate.FinishReason)
		}
	}
	return result, nil
}

// stepBackOff waits base, 2*base, 3*base... between attempts and stops once
// the attempt budget is spent. With the defaults this is the 10s/20s/30s
// ladder, capped at three attempts total.
type stepBackOff struct {
	base        time.Duration
	maxAttempts int
	attempt     int
}

func (b *stepBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt >= b.maxAttempts {
		return backoff.Stop
	}
	return time.Duration(b.attempt) * b.base
}

func (b *stepBackOff) Reset() { b.attempt = 0 }
