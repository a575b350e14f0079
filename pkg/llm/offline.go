package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// OfflineClient answers without calling any provider. It describes the data in
// scope so the chat flow can be exercised without credentials.
type OfflineClient struct{}

// NewOfflineClient returns the deterministic offline client.
func NewOfflineClient() *OfflineClient {
	return &OfflineClient{}
}

// Complete builds the canned answer from the request.
func (c *OfflineClient) Complete(ctx context.Context, req *ChatRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("I'm analyzing your data in mock mode. Here's what I can tell you:\n\n")
	fmt.Fprintf(&sb, "Based on your question: %q\n\n", req.Prompt)

	if req.DataSummary != "" {
		sb.WriteString(req.DataSummary)
	} else {
		sb.WriteString("No data file has been uploaded yet.")
	}
	sb.WriteString("\n\n")

	if req.ProjectContext != "" {
		fmt.Fprintf(&sb, "Context provided: %s...\n\n", truncateRunes(req.ProjectContext, 100))
	} else {
		sb.WriteString("No business context has been provided.\n\n")
	}

	sb.WriteString("This is a mock response for testing purposes. To get real AI analysis, configure an LLM provider.")
	return sb.String(), nil
}

// GetModel implements ChatClient.
func (c *OfflineClient) GetModel() string {
	return "offline"
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
