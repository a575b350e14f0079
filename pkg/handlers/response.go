package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
	"github.com/lemur-data/lemur-engine/pkg/llm"
	"github.com/lemur-data/lemur-engine/pkg/logging"
)

// ApiResponse is the standard success envelope.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// ErrorResponseWithDetails writes a JSON error response carrying extra diagnostics.
func ErrorResponseWithDetails(w http.ResponseWriter, statusCode int, errorCode, message string, details any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]any{
		"error":   errorCode,
		"message": message,
		"details": details,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeSuccess wraps data in ApiResponse.
func writeSuccess(w http.ResponseWriter, statusCode int, data any, logger *zap.Logger) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, statusCode int, code, message string, logger *zap.Logger) {
	if err := ErrorResponse(w, statusCode, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeServiceError maps engine and service errors to a status code and error code.
// Anything unrecognised is logged and reported as a 500 with failMessage.
func writeServiceError(w http.ResponseWriter, err error, failMessage string, logger *zap.Logger) {
	var (
		tableErr *apperrors.MalformedTableError
		colErr   *apperrors.ColumnNotFoundError
		discErr  *apperrors.DisconnectedDatasetsError
		llmErr   *llm.Error
		werr     error
	)

	switch {
	case errors.As(err, &tableErr):
		werr = ErrorResponseWithDetails(w, http.StatusBadRequest, "malformed_table", err.Error(),
			map[string]any{"row": tableErr.Row, "reason": tableErr.Reason})
	case errors.As(err, &colErr):
		werr = ErrorResponseWithDetails(w, http.StatusBadRequest, "column_not_found", err.Error(),
			map[string]any{"dataset_id": colErr.DatasetID, "column": colErr.Column})
	case errors.As(err, &discErr):
		werr = ErrorResponseWithDetails(w, http.StatusUnprocessableEntity, "disconnected_datasets", err.Error(),
			map[string]any{"unreachable": discErr.Unreachable})
	case errors.Is(err, apperrors.ErrDatasetNotFound):
		werr = ErrorResponse(w, http.StatusNotFound, "dataset_not_found", err.Error())
	case errors.Is(err, apperrors.ErrProjectNotFound):
		werr = ErrorResponse(w, http.StatusNotFound, "project_not_found", "Project not found")
	case errors.Is(err, apperrors.ErrInvalidRelationship):
		werr = ErrorResponse(w, http.StatusBadRequest, "invalid_relationship", err.Error())
	case errors.Is(err, apperrors.ErrInvalidInput):
		werr = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, apperrors.ErrLLMUnavailable):
		werr = ErrorResponse(w, http.StatusServiceUnavailable, "llm_unavailable", "No language model provider is configured")
	case errors.As(err, &llmErr):
		logger.Warn("LLM request failed",
			zap.String("type", string(llmErr.Type)),
			zap.String("error", logging.SanitizeError(err)))
		werr = ErrorResponse(w, http.StatusBadGateway, "llm_error", llmErr.Message)
	default:
		logger.Error(failMessage, zap.String("error", logging.SanitizeError(err)))
		werr = ErrorResponse(w, http.StatusInternalServerError, "internal_error", failMessage)
	}

	if werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}

// decodeJSON decodes the request body into dest, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest any, logger *zap.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", logger)
		return false
	}
	return true
}
