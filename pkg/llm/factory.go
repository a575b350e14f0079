package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/config"
)

// NewChatClient creates the chat client selected by cfg.Provider.
// Returns nil and no error when no provider is configured; chat is then unavailable.
// Network-backed clients are wrapped in a circuit breaker.
func NewChatClient(cfg *config.LLMConfig, logger *zap.Logger) (ChatClient, error) {
	clientCfg := &Config{
		Endpoint:    cfg.BaseURL,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	}

	switch cfg.Provider {
	case "":
		return nil, nil

	case config.ProviderMock:
		return NewOfflineClient(), nil

	case config.ProviderOpenAI:
		if clientCfg.Endpoint == "" {
			clientCfg.Endpoint = DefaultOpenAIEndpoint
		}
		if clientCfg.Model == "" {
			clientCfg.Model = DefaultOpenAIModel
		}
		client, err := NewClient(clientCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return NewGuardedClient(client, DefaultCircuitBreakerConfig(), logger), nil

	case config.ProviderAnthropic:
		if clientCfg.Model == "" {
			clientCfg.Model = DefaultAnthropicModel
		}
		client, err := NewAnthropicClient(clientCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return NewGuardedClient(client, DefaultCircuitBreakerConfig(), logger), nil
	}

	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}
