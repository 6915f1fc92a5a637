package domain

import (
	"context"
	"time"
)

// Attachment is the metadata row of a binary payload kept in blob storage.
// FilePath is the storage key, never the payload itself.
type Attachment struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId"`
	MimeType  string    `json:"mimeType"`
	Name      string    `json:"name"`
	FilePath  string    `json:"-"`
	CreatedAt time.Time `json:"-"`
}

// AttachmentRepository defines the interface for attachment metadata storage
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *Attachment) error
	ListByConversation(ctx context.Context, conversationID string) ([]Attachment, error)
}

// AttachToMessages groups attachments under their owning messages
func AttachToMessages(messages []Message, attachments []Attachment) []Message {
	if len(attachments) == 0 {
		return messages
	}
	byMessage := make(map[string][]Attachment, len(attachments))
	for _, a := range attachments {
		byMessage[a.MessageID] = append(byMessage[a.MessageID], a)
	}
	for i := range messages {
		messages[i].Attachments = byMessage[messages[i].ID]
	}
	return messages
}
