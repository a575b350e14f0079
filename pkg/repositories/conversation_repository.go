package repositories

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lemur-data/lemur-engine/pkg/database"
	"github.com/lemur-data/lemur-engine/pkg/models"
)

type conversationRepository struct {
	db *database.DB
}

// NewConversationRepository creates a PostgreSQL chat history repository.
func NewConversationRepository(db *database.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

var _ ConversationRepository = (*conversationRepository)(nil)

func (r *conversationRepository) Append(ctx context.Context, projectID uuid.UUID, msg *models.ChatMessage) error {
	query := `
		INSERT INTO lemur_chat_messages (project_id, role, content, created_at)
		VALUES ($1, $2, $3, $4)`

	return withTenantConn(ctx, r.db, projectID, func(conn *pgxpool.Conn) error {
		if _, err := conn.Exec(ctx, query, projectID, string(msg.Role), msg.Content, msg.CreatedAt); err != nil {
			return fmt.Errorf("failed to save chat message: %w", err)
		}
		return nil
	})
}

func (r *conversationRepository) List(ctx context.Context, projectID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	query := `
		SELECT role, content, created_at
		FROM lemur_chat_messages
		WHERE project_id = $1
		ORDER BY seq DESC
		LIMIT $2`
	if limit <= 0 {
		limit = maxHistory
	}

	var msgs []models.ChatMessage
	err := withTenantConn(ctx, r.db, projectID, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, projectID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m models.ChatMessage
			var role string
			if err := rows.Scan(&role, &m.Content, &m.CreatedAt); err != nil {
				return err
			}
			m.Role = models.ChatRole(role)
			msgs = append(msgs, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}

	slices.Reverse(msgs)
	return msgs, nil
}
