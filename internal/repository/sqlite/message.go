package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Rrens/chat-gateway/internal/domain"
)

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	db          *sql.DB
	attachments *AttachmentRepository
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db, attachments: NewAttachmentRepository(db)}
}

// Create inserts the message and bumps the conversation in one transaction
func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := toMicros(m.Timestamp)

	var tokenCount sql.NullInt64
	if m.TokenCount != nil {
		tokenCount = sql.NullInt64{Int64: int64(*m.TokenCount), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, timestamp, token_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.ConversationID, string(m.Role), m.Content, ts, tokenCount)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = MAX(updated_at, ?) WHERE id = ?
	`, ts, m.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// ListByConversation returns the newest limit messages oldest first
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, conversation_id, role, content, timestamp, token_count
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		var role string
		var ts int64
		var tokenCount sql.NullInt64
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &ts, &tokenCount); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = domain.MessageRole(role)
		m.Timestamp = fromMicros(ts)
		if tokenCount.Valid {
			n := int(tokenCount.Int64)
			m.TokenCount = &n
		}
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
