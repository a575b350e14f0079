package llm

import (
	"context"
	"sync"
)

// MockChatClient is a configurable mock for testing chat functionality.
// Set the function field to control behavior in tests.
type MockChatClient struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns "mock response" and nil error.
	CompleteFunc func(ctx context.Context, req *ChatRequest) (string, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	mu            sync.Mutex
	CompleteCalls int
	LastRequest   *ChatRequest
}

// NewMockChatClient creates a new mock with sensible defaults.
func NewMockChatClient() *MockChatClient {
	return &MockChatClient{Model: "mock-model"}
}

// Complete implements ChatClient.
func (m *MockChatClient) Complete(ctx context.Context, req *ChatRequest) (string, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.LastRequest = req
	fn := m.CompleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return "mock response", nil
}

// GetModel implements ChatClient.
func (m *MockChatClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// Calls returns the number of Complete calls so far.
func (m *MockChatClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls
}
