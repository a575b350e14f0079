package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/logging"
)

// maxLoggedArgs bounds how many array elements (dataset_ids) are logged.
const maxLoggedArgs = 20

// MCPRequestLogger returns middleware that logs MCP JSON-RPC calls: the method,
// the tool name with its arguments, and whether the call failed at the protocol
// level or returned an error result. Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var req jsonRPCRequest
			if err := json.Unmarshal(body, &req); err != nil {
				logger.Debug("Failed to parse MCP request JSON", zap.Error(err))
			}
			tool := req.Params.Name

			logger.Debug("MCP request",
				zap.String("method", req.Method),
				zap.String("tool", tool),
				zap.Any("arguments", sanitizeArguments(req.Params.Arguments)),
			)

			recorder := &mcpResponseRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			resp, ok := parseRPCResponse(recorder.body.Bytes())
			if !ok {
				return
			}

			switch {
			case resp.Error != nil:
				logger.Warn("MCP protocol error",
					zap.String("method", req.Method),
					zap.String("tool", tool),
					zap.Int("error_code", resp.Error.Code),
					zap.String("error_message", resp.Error.Message),
					zap.Duration("duration", duration),
				)
			case resp.Result.IsError:
				logger.Info("MCP tool error result",
					zap.String("tool", tool),
					zap.String("result", logging.TruncateCell(resp.Result.text(), logging.MaxValueLogLength)),
					zap.Duration("duration", duration),
				)
			default:
				logger.Debug("MCP response success",
					zap.String("method", req.Method),
					zap.String("tool", tool),
					zap.Duration("duration", duration),
				)
			}
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result toolResult    `json:"result"`
	Error  *jsonRPCError `json:"error"`
}

type toolResult struct {
	IsError bool `json:"isError"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (r toolResult) text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, " ")
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// parseRPCResponse decodes a plain JSON body or the first data line of an SSE stream.
func parseRPCResponse(body []byte) (jsonRPCResponse, bool) {
	var resp jsonRPCResponse
	body = bytes.TrimSpace(body)
	if bytes.HasPrefix(body, []byte("event:")) || bytes.HasPrefix(body, []byte("data:")) {
		for _, line := range bytes.Split(body, []byte("\n")) {
			if data, ok := bytes.CutPrefix(line, []byte("data:")); ok {
				body = bytes.TrimSpace(data)
				break
			}
		}
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, false
	}
	return resp, true
}

type mcpResponseRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// sanitizeArguments redacts credential-looking keys and truncates long values.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	sensitive := []string{"password", "secret", "token", "api_key", "credential"}
	out := make(map[string]any, len(args))
	for k, v := range args {
		lower := strings.ToLower(k)
		redact := false
		for _, word := range sensitive {
			if strings.Contains(lower, word) {
				redact = true
				break
			}
		}
		if redact {
			out[k] = logging.RedactedText
			continue
		}

		switch val := v.(type) {
		case string:
			out[k] = logging.TruncateCell(val, logging.MaxValueLogLength)
		case []any:
			if len(val) > maxLoggedArgs {
				out[k] = append(val[:maxLoggedArgs:maxLoggedArgs], "...")
			} else {
				out[k] = val
			}
		default:
			out[k] = v
		}
	}
	return out
}
