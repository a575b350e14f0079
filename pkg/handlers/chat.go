package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/models"
	"github.com/lemur-data/lemur-engine/pkg/services"
)

// ChatRequest is the body of POST /api/projects/{pid}/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatHandler handles conversational analysis and question suggestions.
type ChatHandler struct {
	chatService services.ChatService
	logger      *zap.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService services.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/projects/{pid}/chat", tenantMiddleware(h.Chat))
	mux.HandleFunc("GET /api/projects/{pid}/chat", tenantMiddleware(h.History))
	mux.HandleFunc("GET /api/projects/{pid}/suggestions", tenantMiddleware(h.Suggestions))
}

// Chat handles POST /api/projects/{pid}/chat
// Returns 503 when no language model provider is configured.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req ChatRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	resp, err := h.chatService.Chat(r.Context(), projectID, req.Message)
	if err != nil {
		writeServiceError(w, err, "Failed to process chat message", h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, resp, h.logger)
}

// History handles GET /api/projects/{pid}/chat?limit=N
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	limit, ok := parseOptionalInt(w, r, "limit", 0, h.logger)
	if !ok {
		return
	}

	messages, err := h.chatService.History(r.Context(), projectID, limit)
	if err != nil {
		writeServiceError(w, err, "Failed to load chat history", h.logger)
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}

	writeSuccess(w, http.StatusOK, messages, h.logger)
}

// Suggestions handles GET /api/projects/{pid}/suggestions
func (h *ChatHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	suggestions, err := h.chatService.Suggestions(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, err, "Failed to generate suggestions", h.logger)
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}

	writeSuccess(w, http.StatusOK, map[string]any{"suggestions": suggestions}, h.logger)
}
