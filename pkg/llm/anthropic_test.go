package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/models"
)

func TestAnthropicClient_Complete(t *testing.T) {
	var captured struct {
		Model     string `json:"model"`
		System    string `json:"system"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	var path, apiKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		apiKey = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "Two datasets "}, {"type": "text", "text": "share customer_id."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 6}
		}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(&Config{
		Endpoint:  server.URL + "/v1",
		Model:     "claude-test",
		APIKey:    "key",
		MaxTokens: 500,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewAnthropicClient failed: %v", err)
	}

	got, err := client.Complete(context.Background(), &ChatRequest{
		System:  "You are a helpful data analysis assistant.",
		History: []models.ChatMessage{{Role: models.ChatRoleUser, Content: "hi"}, {Role: models.ChatRoleAssistant, Content: "hello"}},
		Prompt:  "How do the files join?",
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "Two datasets share customer_id." {
		t.Errorf("unexpected content %q", got)
	}
	if path != "/v1/messages" {
		t.Errorf("expected /v1/messages, got %s", path)
	}
	if apiKey != "key" {
		t.Errorf("expected api key header, got %q", apiKey)
	}
	if captured.System != "You are a helpful data analysis assistant." {
		t.Errorf("expected system prompt to be sent separately, got %q", captured.System)
	}
	if captured.MaxTokens != 500 {
		t.Errorf("expected max_tokens 500, got %d", captured.MaxTokens)
	}
	if len(captured.Messages) != 3 || captured.Messages[1].Role != "assistant" {
		t.Errorf("unexpected messages %+v", captured.Messages)
	}
}

func TestAnthropicClient_Complete_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "Number of requests has exceeded your rate limit"}}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(&Config{Endpoint: server.URL, Model: "claude-test", APIKey: "key", MaxTokens: 10}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewAnthropicClient failed: %v", err)
	}

	_, err = client.Complete(context.Background(), &ChatRequest{Prompt: "hi"})
	if GetErrorType(err) != ErrorTypeRateLimited {
		t.Errorf("expected rate limited error, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("rate limits are retryable")
	}
}

func TestNewAnthropicClient_RequiresKey(t *testing.T) {
	if _, err := NewAnthropicClient(&Config{Model: "m", MaxTokens: 1}, zap.NewNop()); err == nil {
		t.Error("expected error without api key")
	}
}
