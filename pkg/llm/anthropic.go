package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/models"
)

const (
	DefaultAnthropicEndpoint = "https://api.anthropic.com/v1"
	DefaultAnthropicModel    = "claude-sonnet-4-5-20250929"
)

// AnthropicClient completes chat turns through the Anthropic Messages API.
type AnthropicClient struct {
	client      *anthropic.Client
	endpoint    string
	model       string
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// NewAnthropicClient creates a Messages API client. Endpoint is optional.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxTokens < 1 {
		return nil, fmt.Errorf("max tokens must be at least 1")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultAnthropicEndpoint
	}

	opts := []anthropic.ClientOption{anthropic.WithBaseURL(strings.TrimSuffix(endpoint, "/"))}
	if cfg.Timeout > 0 {
		opts = append(opts, anthropic.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	return &AnthropicClient{
		client:      anthropic.NewClient(cfg.APIKey, opts...),
		endpoint:    endpoint,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.Named("llm"),
	}, nil
}

// Complete sends the turn as a Messages request with the system prompt set separately.
func (c *AnthropicClient) Complete(ctx context.Context, req *ChatRequest) (string, error) {
	messages := make([]anthropic.Message, 0, len(req.History)+1)
	for _, m := range req.History {
		role := anthropic.RoleUser
		if m.Role == models.ChatRoleAssistant {
			role = anthropic.RoleAssistant
		}
		messages = append(messages, anthropic.Message{Role: role, Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(m.Content)}})
	}
	messages = append(messages, anthropic.Message{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(req.Prompt)}})

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Int("history", len(req.History)))

	start := time.Now()
	temperature := float32(c.temperature)

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		System:      req.System,
		Temperature: &temperature,
		Messages:    messages,
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		llmErr := ClassifyError(err)
		llmErr.Model = c.model
		llmErr.Endpoint = c.endpoint
		return "", llmErr
	}

	text := extractText(resp)
	if text == "" {
		return "", NewErrorWithContext(ErrorTypeUnknown, "no text in response", false, nil, c.model, c.endpoint, 0)
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return text, nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

func extractText(resp anthropic.MessagesResponse) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	return sb.String()
}
