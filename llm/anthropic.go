package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicMaxTokens is used when a request leaves MaxTokens unset.
const DefaultAnthropicMaxTokens = 8192

// AnthropicClient generates through the Anthropic Messages API.
type AnthropicClient struct {
	inner  anthropic.Client
	model  anthropic.Model
	logger *slog.Logger
}

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	// Model defaults to Claude Sonnet 4.
	Model string
	// APIKey is required.
	APIKey string
	// BaseURL overrides the API endpoint.
	BaseURL string
	// Options are passed to the SDK after the ones derived above.
	Options []option.RequestOption
	Logger  *slog.Logger
}

// NewAnthropicClient creates a client. SDK-level retries are disabled so that
// the retry policy stays with the caller.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is not set")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.Options...)

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicClient{
		inner:  anthropic.NewClient(opts...),
		model:  model,
		logger: logger,
	}, nil
}

// Generate implements Generator.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	c.logger.Debug("Sending generation request", "provider", "anthropic", "model", c.model)

	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropicError(ctx, err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", NewFatalError(ErrEmptyResponse)
	}

	c.logger.Debug("Generation complete",
		"model", resp.Model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason)
	return b.String(), nil
}

func classifyAnthropicError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, apiErr.Error())
	}
	return unavailable("anthropic request failed: %v", err)
}
