package postgres

import (
	"context"
	"fmt"

	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	pool        *pgxpool.Pool
	attachments *AttachmentRepository
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool, attachments: NewAttachmentRepository(pool)}
}

// Create inserts the message and bumps the conversation in one transaction
func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, timestamp, token_count)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.ConversationID, string(m.Role), m.Content, m.Timestamp, m.TokenCount)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations SET updated_at = GREATEST(updated_at, $1) WHERE id = $2
	`, m.Timestamp, m.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// ListByConversation returns the newest limit messages oldest first
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	query := `
		SELECT id, conversation_id, role, content, timestamp, token_count
		FROM messages
		WHERE conversation_id = $1
		ORDER BY timestamp DESC, seq DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, conversationID, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Timestamp, &m.TokenCount); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = domain.MessageRole(role)
		m.Timestamp = m.Timestamp.UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	// Reverse to chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	attachments, err := r.attachments.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return domain.AttachToMessages(messages, attachments), nil
}
