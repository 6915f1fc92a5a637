package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Rrens/chat-gateway/internal/domain"
)

// AttachmentRepository implements domain.AttachmentRepository
type AttachmentRepository struct {
	db *sql.DB
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(db *sql.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

func (r *AttachmentRepository) Create(ctx context.Context, a *domain.Attachment) error {
	query := `
		INSERT INTO attachments (id, message_id, mime_type, name, file_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, a.ID, a.MessageID, a.MimeType, a.Name, a.FilePath, toMicros(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

func (r *AttachmentRepository) ListByConversation(ctx context.Context, conversationID string) ([]domain.Attachment, error) {
	query := `
		SELECT a.id, a.message_id, a.mime_type, a.name, a.file_path, a.created_at
		FROM attachments a
		JOIN messages m ON m.id = a.message_id
		WHERE m.conversation_id = ?
		ORDER BY a.created_at ASC, a.rowid ASC
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.MessageID, &a.MimeType, &a.Name, &a.FilePath, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		a.CreatedAt = fromMicros(createdAt)
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}
