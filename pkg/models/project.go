package models

import (
	"time"

	"github.com/google/uuid"
)

// Project owns a set of datasets, their relationships, and a free-text business context.
type Project struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Context   string    `json:"context"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of a project conversation.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatResponse is returned from a chat request.
type ChatResponse struct {
	Response    string   `json:"response"`
	Suggestions []string `json:"suggestions"`
}
