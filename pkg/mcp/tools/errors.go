package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Returning it as a tool result keeps the details visible to the agent
// instead of being swallowed by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the caller can act on (bad ids, missing columns,
// disconnected datasets). Storage failures are still returned as Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
//
// Example:
//
//	return NewErrorResultWithDetails(
//	    "disconnected_datasets",
//	    "no relationship path to [b]",
//	    map[string]any{"unreachable": []string{"b"}},
//	), nil
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// engineErrorResult converts recoverable engine errors into error results.
// It returns nil for anything else so the caller can surface a Go error.
func engineErrorResult(err error) *mcp.CallToolResult {
	var (
		colErr   *apperrors.ColumnNotFoundError
		discErr  *apperrors.DisconnectedDatasetsError
		dsErr    *apperrors.DatasetNotFoundError
		tableErr *apperrors.MalformedTableError
	)

	switch {
	case errors.As(err, &colErr):
		return NewErrorResultWithDetails("column_not_found", err.Error(), map[string]any{
			"dataset_id": colErr.DatasetID,
			"column":     colErr.Column,
		})
	case errors.As(err, &discErr):
		return NewErrorResultWithDetails("disconnected_datasets", err.Error(), map[string]any{
			"unreachable": discErr.Unreachable,
		})
	case errors.As(err, &dsErr):
		return NewErrorResultWithDetails("dataset_not_found", err.Error(), map[string]any{
			"dataset_id": dsErr.ID,
		})
	case errors.As(err, &tableErr):
		return NewErrorResultWithDetails("malformed_table", err.Error(), map[string]any{
			"row": tableErr.Row,
		})
	case errors.Is(err, apperrors.ErrProjectNotFound):
		return NewErrorResult("project_not_found", err.Error())
	case errors.Is(err, apperrors.ErrInvalidRelationship):
		return NewErrorResult("invalid_relationship", err.Error())
	case errors.Is(err, apperrors.ErrInvalidInput):
		return NewErrorResult("invalid_parameters", err.Error())
	}
	return nil
}
