// Package logging holds helpers that keep secrets and oversized cell values out of logs.
package logging

import (
	"regexp"
	"unicode/utf8"
)

const (
	// MaxValueLogLength is the longest argument or cell value written to a log line.
	MaxValueLogLength = 200

	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-_.~+/]+=*`)

	// api_key=..., apikey=..., key=... with a long value
	apiKeyParamPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9\-_]{20,}`)

	// Provider secret keys: OpenAI sk-..., Anthropic sk-ant-...
	providerKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9\-_]{16,}`)

	// user:pass@host in postgres:// and redis:// URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]*:[^@\s]+@[^/\s]+`)
)

// SanitizeConnectionString removes credentials from a DSN or key=value connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError returns the error text with credentials, bearer tokens and provider
// keys removed. Errors from the LLM and storage clients go through this before logging.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeText(err.Error())
}

// SanitizeText applies every redaction pattern to s.
func SanitizeText(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyParamPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = providerKeyPattern.ReplaceAllString(s, RedactedText)
	return connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
}

// TruncateCell shortens s to at most maxRunes runes, appending "..." when cut.
// Multi-byte characters are never split.
func TruncateCell(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes]) + "..."
}
