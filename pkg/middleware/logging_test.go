package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger_LogsRequests(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}

	entry := logs.All()[0]
	if entry.Message != "HTTP request" {
		t.Errorf("expected message 'HTTP request', got '%s'", entry.Message)
	}
	if entry.Level != zapcore.DebugLevel {
		t.Errorf("expected DEBUG for a 200, got %s", entry.Level)
	}
	if got := entry.ContextMap()["bytes"]; got != int64(11) {
		t.Errorf("expected 11 bytes, got %v", got)
	}
	if got := entry.ContextMap()["path"]; got != "/api/projects" {
		t.Errorf("expected path /api/projects, got %v", got)
	}
}

func TestRequestLogger_NilLogger_PassesThrough(t *testing.T) {
	called := false
	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if !called {
		t.Error("expected handler to be called")
	}
}

func TestRequestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{http.StatusCreated, zapcore.DebugLevel},
		{http.StatusNotFound, zapcore.InfoLevel},
		{http.StatusUnprocessableEntity, zapcore.InfoLevel},
		{http.StatusServiceUnavailable, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/projects/x/joins", nil))

			entry := logs.All()[0]
			if entry.Level != tt.level {
				t.Errorf("expected level %s, got %s", tt.level, entry.Level)
			}
			if got := entry.ContextMap()["status"]; got != int64(tt.status) {
				t.Errorf("expected status %d, got %v", tt.status, got)
			}
		})
	}
}

func TestResponseWriter_PreventsDuplicateWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusCreated {
		t.Errorf("expected status to remain %d, got %d", http.StatusCreated, rw.statusCode)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected recorded status %d, got %d", http.StatusCreated, rec.Code)
	}
}

func TestResponseWriter_WriteTriggersWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	if _, err := rw.Write([]byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !rw.headerWritten {
		t.Error("expected headerWritten to be true")
	}
	if rw.bytes != 5 {
		t.Errorf("expected 5 bytes, got %d", rw.bytes)
	}
}

func TestResponseWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.Flush()

	if !rec.Flushed {
		t.Error("expected flush to reach the underlying writer")
	}
}
