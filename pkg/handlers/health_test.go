package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/config"
)

func TestHealthHandler_Health(t *testing.T) {
	handler := NewHealthHandler(&config.Config{Version: "test-version", Env: "test"}, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %q", rec.Body.String())
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	cfg := &config.Config{
		Version: "1.2.3",
		Env:     "local",
		Store:   config.StoreConfig{Backend: config.StoreSQLite},
		LLM:     config.LLMConfig{Provider: config.ProviderMock},
	}
	mux := http.NewServeMux()
	NewHealthHandler(cfg, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp PingResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got %q", resp.Status)
	}
	if resp.Service != "lemur-engine" {
		t.Errorf("expected service 'lemur-engine', got %q", resp.Service)
	}
	if resp.Version != "1.2.3" || resp.Environment != "local" {
		t.Errorf("unexpected version/env: %q %q", resp.Version, resp.Environment)
	}
	if resp.StoreBackend != config.StoreSQLite {
		t.Errorf("expected store backend %q, got %q", config.StoreSQLite, resp.StoreBackend)
	}
	if resp.LLMProvider != config.ProviderMock {
		t.Errorf("expected llm provider %q, got %q", config.ProviderMock, resp.LLMProvider)
	}
	if resp.GoVersion == "" || resp.Hostname == "" {
		t.Error("expected go version and hostname to be set")
	}
}
