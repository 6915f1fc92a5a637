package postgres

import (
	"context"
	"fmt"

	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttachmentRepository implements domain.AttachmentRepository
type AttachmentRepository struct {
	pool *pgxpool.Pool
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(pool *pgxpool.Pool) *AttachmentRepository {
	return &AttachmentRepository{pool: pool}
}

func (r *AttachmentRepository) Create(ctx context.Context, a *domain.Attachment) error {
	query := `
		INSERT INTO attachments (id, message_id, mime_type, name, file_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, a.ID, a.MessageID, a.MimeType, a.Name, a.FilePath, a.CreatedAt)
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
		WHERE m.conversation_id = $1
		ORDER BY a.created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.MimeType, &a.Name, &a.FilePath, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}
