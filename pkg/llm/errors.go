package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorType indicates which configuration field caused the error.
type ErrorType string

const (
	ErrorTypeNone        ErrorType = ""
	ErrorTypeEndpoint    ErrorType = "endpoint"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeModel       ErrorType = "model"
	ErrorTypeRateLimited ErrorType = "rate_limited"
	ErrorTypeUnavailable ErrorType = "unavailable"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a structured LLM error with classification.
type Error struct {
	Type       ErrorType // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the operation can be retried
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Model      string    // Model name if known
	Endpoint   string    // Endpoint URL if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if host := endpointHost(e.Endpoint); host != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", host))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// endpointHost reduces an endpoint URL to its host so paths and query strings stay out of logs.
func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Host
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
// This allows the retry package to check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewErrorWithContext creates a new structured LLM error with additional context.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

// statusCodePattern only accepts a status code that follows a marker word,
// so "processed 503 records" or "port 5432" are not mistaken for HTTP statuses.
var statusCodePattern = regexp.MustCompile(`(?i)\b(?:http|status(?:\s+code)?|code)\s*:?\s*([1-5]\d\d)\b`)

// extractStatusCode finds an HTTP status code in an error string. Returns 0 when none is present.
func extractStatusCode(s string) int {
	m := statusCodePattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return code
}

// statusCodeOf prefers the status carried by go-openai's typed errors and
// falls back to parsing the message (go-anthropic and plain transport errors).
func statusCodeOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode
	}
	return extractStatusCode(err.Error())
}

// ClassifyError categorizes an error and returns a structured Error.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	statusCode := statusCodeOf(err)
	lower := strings.ToLower(err.Error())

	classified := func(t ErrorType, message string, retryable bool) *Error {
		e := NewError(t, message, retryable, err)
		e.StatusCode = statusCode
		return e
	}

	switch {
	// The caller gave up; retrying cannot help.
	case errors.Is(err, context.Canceled) || strings.Contains(lower, "context canceled"):
		return classified(ErrorTypeEndpoint, "request cancelled", false)

	case statusCode == 401 || statusCode == 403 ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid x-api-key") || strings.Contains(lower, "authentication_error"):
		return classified(ErrorTypeAuth, "authentication failed", false)

	case strings.Contains(lower, "model") &&
		(strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return classified(ErrorTypeModel, "model not found", false)

	case statusCode == 404:
		return classified(ErrorTypeEndpoint, "endpoint not found", false)

	case statusCode == 429 || strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "too many requests"):
		return classified(ErrorTypeRateLimited, "rate limited", true)

	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return classified(ErrorTypeEndpoint, "connection failed", true)

	case errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return classified(ErrorTypeEndpoint, "request timeout", true)

	// Anthropic reports an overloaded provider as 529 and its own faults as api_error.
	case statusCode >= 500 || strings.Contains(lower, "overloaded") || strings.Contains(lower, "api_error"):
		return classified(ErrorTypeEndpoint, "server error", true)
	}

	return classified(ErrorTypeUnknown, "llm error", false)
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypeNone
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
