// Package llm provides the chat-completion clients used by the project chat.
package llm

import (
	"context"

	"github.com/lemur-data/lemur-engine/pkg/models"
)

// ChatRequest is one chat turn sent to a provider.
type ChatRequest struct {
	// System carries the assistant preamble, business context and data description.
	System string

	// History holds earlier turns in chronological order.
	History []models.ChatMessage

	// Prompt is the new user message.
	Prompt string

	// DataSummary is a short plain-text description of the datasets in scope.
	// Only the offline client reads it.
	DataSummary string

	// ProjectContext is the free-text business context of the project.
	ProjectContext string
}

// ChatClient completes a chat turn.
// Use this interface for dependency injection to enable mocking in tests.
type ChatClient interface {
	Complete(ctx context.Context, req *ChatRequest) (string, error)

	// GetModel returns the configured model name.
	GetModel() string
}

var (
	_ ChatClient = (*Client)(nil)
	_ ChatClient = (*AnthropicClient)(nil)
	_ ChatClient = (*OfflineClient)(nil)
	_ ChatClient = (*GuardedClient)(nil)
	_ ChatClient = (*MockChatClient)(nil)
)
