package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

// requireProjectID reads and parses the project_id argument.
// The second return value is a ready-made error result when the argument is unusable.
func requireProjectID(req mcp.CallToolRequest) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString("project_id")
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_parameters", err.Error())
	}
	id, err := uuid.Parse(trimString(raw))
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_parameters", fmt.Sprintf("project_id %q is not a valid UUID", raw))
	}
	return id, nil
}

// requireTrimmed reads a required string argument and rejects blank values.
func requireTrimmed(req mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	raw, err := req.RequireString(key)
	if err != nil {
		return "", NewErrorResult("invalid_parameters", err.Error())
	}
	val := trimString(raw)
	if val == "" {
		return "", NewErrorResult("invalid_parameters", fmt.Sprintf("parameter '%s' cannot be empty", key))
	}
	return val, nil
}

// getStringSlice extracts a string array argument. Non-string elements are skipped.
func getStringSlice(req mcp.CallToolRequest, key string) []string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			if s = trimString(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// getOptionalInt extracts an optional integer argument. JSON numbers arrive as float64.
func getOptionalInt(req mcp.CallToolRequest, key string, defaultVal int) int {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return defaultVal
	}
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	return defaultVal
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
