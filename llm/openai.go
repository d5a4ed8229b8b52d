package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// DefaultOpenAIBaseURL is the local Ollama OpenAI-compatible endpoint.
const DefaultOpenAIBaseURL = "http://localhost:11434/v1"

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint
// (Ollama, LM Studio, vLLM, OpenRouter).
type OpenAIClient struct {
	url        string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// OpenAIOption configures an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) OpenAIOption {
	return func(c *OpenAIClient) { c.apiKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *OpenAIClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) OpenAIOption {
	return func(c *OpenAIClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewOpenAIClient creates a client for model at baseURL.
func NewOpenAIClient(baseURL, model string, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		url:   BuildChatURL(baseURL),
		model: model,
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // Allow time for LLM responses
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildChatURL constructs the chat completions endpoint.
func BuildChatURL(baseURL string) string {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

// chatRequest is the OpenAI-compatible request format.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the OpenAI-compatible response format.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *OpenAIClient) buildBody(req Request) ([]byte, error) {
	var msgs []chatMessage
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.User})

	body := chatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: req.Temperature, // nil = use default, 0 = deterministic
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		body.MaxTokens = &maxTokens
	}
	return json.Marshal(body)
}

// Generate implements Generator.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	body, err := c.buildBody(req)
	if err != nil {
		return "", NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("Sending generation request",
		"provider", "openai",
		"model", c.model,
		"url", c.url)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return "", ctxErr
		}
		return "", unavailable("HTTP request failed: %v", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return "", unavailable("read response body: %v", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", classifyStatus(httpResp.StatusCode, string(respBody))
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", NewFatalError(fmt.Errorf("parse chat response: %w", err))
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", NewFatalError(ErrEmptyResponse)
	}

	c.logger.Debug("Generation complete",
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens,
		"finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
