package domain

import (
	"context"
	"time"
)

// DefaultConversationTitle is used when a conversation is created without a title
const DefaultConversationTitle = "New Chat"

// Conversation represents a chat thread
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConversationRepository defines the interface for conversation storage
type ConversationRepository interface {
	Create(ctx context.Context, conversation *Conversation) error
	// Ensure inserts a conversation with the given id unless it already
	// exists and reports whether a row was created.
	Ensure(ctx context.Context, id, title string) (bool, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	List(ctx context.Context, limit int) ([]Conversation, error)
	// Delete removes the conversation; messages and attachments cascade.
	Delete(ctx context.Context, id string) error
}
