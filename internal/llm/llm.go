// Package llm wraps the chat model used for translation, terminology
// extraction and repair behind a small interface so the pipeline can be
// tested without network access.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"

	"arxiv-translator/internal/logger"
	"arxiv-translator/internal/types"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o"
	// DefaultTimeout bounds a single chat completion call.
	DefaultTimeout = 120 * time.Second
)

// Client issues a single chat completion. Implementations must be safe
// for concurrent use.
type Client interface {
	// Generate sends a system and user message and returns the model's
	// reply plus the total tokens used for the call.
	Generate(ctx context.Context, system, user string) (string, int, error)
}

// Config configures the OpenAI-compatible chat client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ChatClient is the production Client backed by an eino chat model.
type ChatClient struct {
	model *openai.ChatModel
	name  string
}

// NewChatClient builds a ChatClient against an OpenAI-compatible endpoint.
func NewChatClient(ctx context.Context, cfg Config) (*ChatClient, error) {
	if cfg.APIKey == "" {
		return nil, types.NewAppError(types.ErrConfig, "API key is not configured", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	chatModelConfig := &openai.ChatModelConfig{
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	}
	if cfg.BaseURL != "" {
		chatModelConfig.BaseURL = cfg.BaseURL
	}

	model, err := openai.NewChatModel(ctx, chatModelConfig)
	if err != nil {
		return nil, types.NewAppError(types.ErrConfig, "failed to create chat model", err)
	}

	logger.Debug("chat client created", logger.String("model", cfg.Model))
	return &ChatClient{model: model, name: cfg.Model}, nil
}

// Model returns the configured model name.
func (c *ChatClient) Model() string { return c.name }

// Generate implements Client.
func (c *ChatClient) Generate(ctx context.Context, system, user string) (string, int, error) {
	messages := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}

	resp, err := c.model.Generate(ctx, messages)
	if err != nil {
		return "", 0, classifyAPIError(err)
	}
	if resp == nil || resp.Content == "" {
		return "", 0, types.NewAppError(types.ErrAPICall, "model returned empty response", nil)
	}

	tokens := 0
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		tokens = resp.ResponseMeta.Usage.TotalTokens
	}
	return resp.Content, tokens, nil
}

// classifyAPIError maps transport and provider errors onto the error
// taxonomy so callers can decide whether to retry.
func classifyAPIError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context canceled") || strings.Contains(msg, "context deadline"):
		return types.NewAppError(types.ErrNetwork, "request canceled or timed out", err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return types.NewAppError(types.ErrAPIRateLimit, "API rate limit exceeded", err)
	case strings.Contains(msg, "status code: 5") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "bad gateway"):
		return types.NewAppError(types.ErrTransientCollaborator, "API server error", err)
	case strings.Contains(msg, "connection") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "timeout"):
		return types.NewAppError(types.ErrNetwork, "network error calling API", err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		return types.NewAppErrorWithDetails(types.ErrAPICall, "API authentication failed",
			"invalid API key or unauthorized access", err)
	default:
		return types.NewAppError(types.ErrAPICall, "API call failed", err)
	}
}
