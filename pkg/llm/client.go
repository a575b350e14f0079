package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/models"
)

// DefaultOpenAIEndpoint is used when no base URL is configured.
const DefaultOpenAIEndpoint = "https://api.openai.com/v1"

// DefaultOpenAIModel matches the model the chat was tuned against.
const DefaultOpenAIModel = "gpt-3.5-turbo"

// Client provides access to OpenAI-compatible chat completion endpoints.
type Client struct {
	client      *openai.Client
	endpoint    string
	model       string
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// Config holds configuration for creating an LLM client.
type Config struct {
	Endpoint    string // Base URL, e.g., "https://api.openai.com/v1"
	Model       string // Model name, e.g., "gpt-4o"
	APIKey      string // Optional for local endpoints
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewClient creates a new OpenAI-compatible LLM client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxTokens < 1 {
		return nil, fmt.Errorf("max tokens must be at least 1")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.Named("llm"),
	}, nil
}

// Complete sends the system prompt, the history and the new prompt as one chat completion.
func (c *Client) Complete(ctx context.Context, req *ChatRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == models.ChatRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Int("history", len(req.History)),
		zap.Float64("temperature", c.temperature))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(c.temperature),
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", c.parseError(err)
	}

	if len(resp.Choices) == 0 {
		return "", NewErrorWithContext(ErrorTypeUnknown, "no choices in response", false, nil, c.model, c.endpoint, 0)
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

func (c *Client) parseError(err error) error {
	llmErr := ClassifyError(err)
	llmErr.Model = c.model
	llmErr.Endpoint = c.endpoint
	return llmErr
}
